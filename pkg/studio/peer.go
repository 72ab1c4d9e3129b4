package studio

import (
	"errors"
	"sync"

	"github.com/castlab/studiocast/pkg/api"
	"github.com/castlab/studiocast/pkg/logger"
	"github.com/goccy/go-json"
	"github.com/pion/webrtc/v4"
)

type PeerState uint8

// Peer negotiation states. Failed and Closed are terminal, with no way
// out but a fresh link. Connected is reached only through the
// transport connectivity callback, never by signaling alone.
const (
	PeerIdle PeerState = iota
	PeerOfferSent
	PeerOfferReceived
	PeerAnswerExchanged
	PeerConnected
	PeerClosed
	PeerFailed
)

func (s PeerState) String() string {
	switch s {
	case PeerIdle:
		return "idle"
	case PeerOfferSent:
		return "offer-sent"
	case PeerOfferReceived:
		return "offer-received"
	case PeerAnswerExchanged:
		return "answer-exchanged"
	case PeerConnected:
		return "connected"
	case PeerClosed:
		return "closed"
	case PeerFailed:
		return "failed"
	}
	return "unknown"
}

var ErrBadPeerState = errors.New("bad peer state")

type signalFunc func(t api.PT, to string, payload any)

// PeerLink is one negotiated peer connection to a remote session.
//
// Remote ICE candidates arriving before the remote description are
// buffered and applied right after it is set.
type PeerLink struct {
	remote string
	conn   *webrtc.PeerConnection
	log    *logger.Logger

	send    signalFunc
	onState func(remote string, state PeerState)

	mu        sync.Mutex
	state     PeerState
	hasRemote bool
	pending   []webrtc.ICECandidateInit

	closeOnce sync.Once
}

func NewPeerLink(remote string, factory *ApiFactory, media MediaSource, send signalFunc,
	onState func(remote string, state PeerState), log *logger.Logger) (*PeerLink, error) {
	conn, err := factory.NewPeerConnection()
	if err != nil {
		return nil, err
	}
	p := &PeerLink{
		remote:  remote,
		conn:    conn,
		send:    send,
		onState: onState,
		log:     log.Extend(log.With().Str("peer", remote)),
	}
	if media != nil {
		for _, track := range media.Tracks() {
			if _, err := conn.AddTrack(track); err != nil {
				_ = conn.Close()
				return nil, err
			}
		}
	}
	conn.OnICECandidate(func(c *webrtc.ICECandidate) {
		if c == nil {
			return
		}
		raw, err := json.Marshal(c.ToJSON())
		if err != nil {
			p.log.Error().Err(err).Msg("candidate marshal fail")
			return
		}
		p.send(api.IceCandidate, p.remote, api.IceCandidateRequest{Candidate: raw})
	})
	conn.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
		p.log.Debug().Msgf("transport %v", state)
		switch state {
		case webrtc.PeerConnectionStateConnected:
			p.transition(PeerConnected)
		case webrtc.PeerConnectionStateFailed:
			p.transition(PeerFailed)
			p.release()
		case webrtc.PeerConnectionStateDisconnected, webrtc.PeerConnectionStateClosed:
			p.Close()
		}
	})
	return p, nil
}

func (p *PeerLink) Remote() string { return p.remote }

func (p *PeerLink) State() PeerState {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// Initiate creates and sends an offer. Valid only for a fresh link.
func (p *PeerLink) Initiate() error {
	p.mu.Lock()
	if p.state != PeerIdle {
		p.mu.Unlock()
		return ErrBadPeerState
	}
	p.mu.Unlock()

	offer, err := p.conn.CreateOffer(nil)
	if err != nil {
		p.transition(PeerFailed)
		return err
	}
	if err = p.conn.SetLocalDescription(offer); err != nil {
		p.transition(PeerFailed)
		return err
	}
	p.transition(PeerOfferSent)
	p.send(api.Offer, p.remote, api.OfferRequest{Sdp: offer.SDP})
	return nil
}

// HandleOffer applies a remote offer and replies with an answer.
// A repeated offer supersedes the previous one.
func (p *PeerLink) HandleOffer(sdp string) error {
	p.mu.Lock()
	switch p.state {
	case PeerIdle, PeerOfferReceived:
	default:
		p.mu.Unlock()
		p.log.Warn().Msgf("offer in state %v ignored", p.state)
		return nil
	}
	p.state = PeerOfferReceived
	p.mu.Unlock()

	if err := p.conn.SetRemoteDescription(webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: sdp}); err != nil {
		p.transition(PeerFailed)
		return err
	}
	p.flushCandidates()
	answer, err := p.conn.CreateAnswer(nil)
	if err != nil {
		p.transition(PeerFailed)
		return err
	}
	if err = p.conn.SetLocalDescription(answer); err != nil {
		p.transition(PeerFailed)
		return err
	}
	p.transition(PeerAnswerExchanged)
	p.send(api.Answer, p.remote, api.AnswerRequest{Sdp: answer.SDP})
	return nil
}

// HandleAnswer completes the negotiation started with Initiate.
func (p *PeerLink) HandleAnswer(sdp string) error {
	p.mu.Lock()
	if p.state != PeerOfferSent {
		p.mu.Unlock()
		p.log.Warn().Msgf("answer in state %v ignored", p.state)
		return nil
	}
	p.mu.Unlock()

	if err := p.conn.SetRemoteDescription(webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: sdp}); err != nil {
		p.transition(PeerFailed)
		return err
	}
	p.flushCandidates()
	p.transition(PeerAnswerExchanged)
	return nil
}

// AddCandidate applies a remote ICE candidate or buffers it until the
// remote description is known.
func (p *PeerLink) AddCandidate(raw json.RawMessage) error {
	var candidate webrtc.ICECandidateInit
	if err := json.Unmarshal(raw, &candidate); err != nil {
		return err
	}
	p.mu.Lock()
	if !p.hasRemote {
		p.pending = append(p.pending, candidate)
		p.mu.Unlock()
		return nil
	}
	p.mu.Unlock()
	return p.conn.AddICECandidate(candidate)
}

func (p *PeerLink) flushCandidates() {
	p.mu.Lock()
	p.hasRemote = true
	pending := p.pending
	p.pending = nil
	p.mu.Unlock()
	for _, candidate := range pending {
		if err := p.conn.AddICECandidate(candidate); err != nil {
			p.log.Error().Err(err).Msg("buffered candidate fail")
		}
	}
}

// Close tears the transport down. A failed link keeps its state but
// still releases the connection and its tracks.
func (p *PeerLink) Close() {
	p.mu.Lock()
	terminal := p.state == PeerClosed || p.state == PeerFailed
	if !terminal {
		p.state = PeerClosed
	}
	p.mu.Unlock()
	p.release()
	if !terminal && p.onState != nil {
		p.onState(p.remote, PeerClosed)
	}
}

func (p *PeerLink) release() {
	p.closeOnce.Do(func() {
		if err := p.conn.Close(); err != nil {
			p.log.Error().Err(err).Msg("peer close fail")
		}
	})
}

// transition moves the link to the given state unless it is already
// terminated, and reports the change outside the lock.
func (p *PeerLink) transition(state PeerState) {
	p.mu.Lock()
	if p.state == PeerClosed || p.state == PeerFailed || p.state == state {
		p.mu.Unlock()
		return
	}
	old := p.state
	p.state = state
	p.mu.Unlock()
	p.log.Debug().Msgf("%v -> %v", old, state)
	if p.onState != nil {
		p.onState(p.remote, state)
	}
}
