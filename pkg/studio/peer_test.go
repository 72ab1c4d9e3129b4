package studio

import (
	"sync"
	"testing"
	"time"

	"github.com/castlab/studiocast/pkg/api"
	"github.com/castlab/studiocast/pkg/config"
	"github.com/castlab/studiocast/pkg/logger"
	"github.com/goccy/go-json"
	"github.com/pion/webrtc/v4"
)

func TestInitiates(t *testing.T) {
	tests := []struct {
		own, remote string
		want        bool
	}{
		{"cfv68irdrc3ifu3jn6c0", "cfv68irdrc3ifu3jn6bg", true},
		{"cfv68irdrc3ifu3jn6bg", "cfv68irdrc3ifu3jn6c0", false},
		{"b", "a", true},
		{"a", "b", false},
	}
	for _, test := range tests {
		if got := initiates(test.own, test.remote); got != test.want {
			t.Errorf("initiates(%q, %q) = %v, want %v", test.own, test.remote, got, test.want)
		}
	}
}

type sentPacket struct {
	t       api.PT
	to      string
	payload any
}

type capture struct {
	mu   sync.Mutex
	sent []sentPacket
}

func (c *capture) send(t api.PT, to string, payload any) {
	c.mu.Lock()
	c.sent = append(c.sent, sentPacket{t: t, to: to, payload: payload})
	c.mu.Unlock()
}

func (c *capture) last(t *testing.T, kind api.PT) sentPacket {
	t.Helper()
	c.mu.Lock()
	defer c.mu.Unlock()
	for i := len(c.sent) - 1; i >= 0; i-- {
		if c.sent[i].t == kind {
			return c.sent[i]
		}
	}
	t.Fatalf("no %v packet sent", kind)
	return sentPacket{}
}

func newTestLink(t *testing.T, remote string, send signalFunc, onState func(string, PeerState)) *PeerLink {
	t.Helper()
	log := logger.Default()
	factory, err := NewApiFactory(config.Webrtc{LogLevel: 4}, log)
	if err != nil {
		t.Fatal(err)
	}
	media, err := NewStaticSource()
	if err != nil {
		t.Fatal(err)
	}
	p, err := NewPeerLink(remote, factory, media, send, onState, log)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(p.Close)
	return p
}

func testLink(t *testing.T, remote string, out *capture) *PeerLink {
	t.Helper()
	return newTestLink(t, remote, out.send, nil)
}

func TestNegotiationStates(t *testing.T) {
	var aOut, bOut capture
	a := testLink(t, "b", &aOut)
	b := testLink(t, "a", &bOut)

	if a.State() != PeerIdle {
		t.Fatalf("fresh link state = %v, want idle", a.State())
	}
	if err := a.Initiate(); err != nil {
		t.Fatal(err)
	}
	if a.State() != PeerOfferSent {
		t.Fatalf("state = %v, want offer-sent", a.State())
	}
	if err := a.Initiate(); err != ErrBadPeerState {
		t.Errorf("second Initiate() = %v, want ErrBadPeerState", err)
	}

	offer := aOut.last(t, api.Offer).payload.(api.OfferRequest)
	if err := b.HandleOffer(offer.Sdp); err != nil {
		t.Fatal(err)
	}
	if b.State() != PeerAnswerExchanged {
		t.Fatalf("state = %v, want answer-exchanged", b.State())
	}

	answer := bOut.last(t, api.Answer).payload.(api.AnswerRequest)
	if err := a.HandleAnswer(answer.Sdp); err != nil {
		t.Fatal(err)
	}
	if a.State() != PeerAnswerExchanged && a.State() != PeerConnected {
		t.Fatalf("state = %v, want answer-exchanged", a.State())
	}
}

func TestCandidateBuffering(t *testing.T) {
	var aOut, bOut capture
	a := testLink(t, "b", &aOut)
	b := testLink(t, "a", &bOut)

	candidate := json.RawMessage(`{"candidate":"candidate:1 1 udp 2130706431 127.0.0.1 54321 typ host","sdpMid":"0","sdpMLineIndex":0}`)
	if err := b.AddCandidate(candidate); err != nil {
		t.Fatal(err)
	}
	b.mu.Lock()
	buffered := len(b.pending)
	b.mu.Unlock()
	if buffered != 1 {
		t.Fatalf("%d candidates buffered, want 1", buffered)
	}

	if err := a.Initiate(); err != nil {
		t.Fatal(err)
	}
	offer := aOut.last(t, api.Offer).payload.(api.OfferRequest)
	if err := b.HandleOffer(offer.Sdp); err != nil {
		t.Fatal(err)
	}
	b.mu.Lock()
	buffered, hasRemote := len(b.pending), b.hasRemote
	b.mu.Unlock()
	if buffered != 0 || !hasRemote {
		t.Errorf("buffer not flushed: %d left, remote %v", buffered, hasRemote)
	}
}

func TestCandidateBroken(t *testing.T) {
	var out capture
	p := testLink(t, "b", &out)
	if err := p.AddCandidate(json.RawMessage(`{broken`)); err == nil {
		t.Error("broken candidate accepted")
	}
}

func TestLoopbackConnect(t *testing.T) {
	var aOut, bOut capture
	aCand := make(chan json.RawMessage, 32)
	bCand := make(chan json.RawMessage, 32)
	aStates := make(chan PeerState, 8)
	bStates := make(chan PeerState, 8)

	a := newTestLink(t, "b", func(kind api.PT, to string, payload any) {
		if kind == api.IceCandidate {
			aCand <- payload.(api.IceCandidateRequest).Candidate
			return
		}
		aOut.send(kind, to, payload)
	}, func(_ string, s PeerState) { aStates <- s })
	b := newTestLink(t, "a", func(kind api.PT, to string, payload any) {
		if kind == api.IceCandidate {
			bCand <- payload.(api.IceCandidateRequest).Candidate
			return
		}
		bOut.send(kind, to, payload)
	}, func(_ string, s PeerState) { bStates <- s })

	// trickle each side's candidates to the other
	go func() {
		for c := range aCand {
			_ = b.AddCandidate(c)
		}
	}()
	go func() {
		for c := range bCand {
			_ = a.AddCandidate(c)
		}
	}()

	if err := a.Initiate(); err != nil {
		t.Fatal(err)
	}
	offer := aOut.last(t, api.Offer).payload.(api.OfferRequest)
	if err := b.HandleOffer(offer.Sdp); err != nil {
		t.Fatal(err)
	}
	answer := bOut.last(t, api.Answer).payload.(api.AnswerRequest)
	if err := a.HandleAnswer(answer.Sdp); err != nil {
		t.Fatal(err)
	}

	waitConnected := func(states chan PeerState, tag string) {
		deadline := time.After(10 * time.Second)
		for {
			select {
			case s := <-states:
				if s == PeerConnected {
					return
				}
			case <-deadline:
				t.Fatalf("%s never connected", tag)
			}
		}
	}
	waitConnected(aStates, "initiator")
	waitConnected(bStates, "answerer")
}

func TestFailedIsTerminal(t *testing.T) {
	var out capture
	p := testLink(t, "b", &out)
	p.transition(PeerFailed)
	p.transition(PeerConnected)
	if p.State() != PeerFailed {
		t.Errorf("state = %v, want failed to stick", p.State())
	}
}

func TestFailedLinkStillReleases(t *testing.T) {
	var out capture
	p := testLink(t, "b", &out)
	p.transition(PeerFailed)
	p.Close()
	if p.State() != PeerFailed {
		t.Errorf("state = %v, want failed to stick", p.State())
	}
	if p.conn.SignalingState() != webrtc.SignalingStateClosed {
		t.Error("failed link kept its transport open")
	}
}

func TestTerminalPeerDropped(t *testing.T) {
	var out capture
	p := testLink(t, "b", &out)
	s := &Studio{
		peers:   map[string]*PeerLink{"b": p},
		cursors: make(map[string]api.CursorUpdateNotice),
		log:     logger.Default(),
	}
	s.peerStateChanged("b", PeerFailed)
	if s.peer("b") != nil {
		t.Error("failed link kept in the peer table")
	}
}

func TestStrayPacketsIgnored(t *testing.T) {
	var out capture
	p := testLink(t, "b", &out)
	// an answer without a preceding offer of ours changes nothing
	if err := p.HandleAnswer("v=0"); err != nil {
		t.Fatal(err)
	}
	if p.State() != PeerIdle {
		t.Errorf("state = %v, want idle", p.State())
	}
}
