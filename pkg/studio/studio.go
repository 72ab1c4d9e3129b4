package studio

import (
	"context"
	"errors"
	"net/url"
	"sync"
	"time"

	"github.com/castlab/studiocast/pkg/api"
	"github.com/castlab/studiocast/pkg/com"
	"github.com/castlab/studiocast/pkg/config"
	"github.com/castlab/studiocast/pkg/logger"
	"github.com/goccy/go-json"
)

// syncWait caps how long a fresh member waits for a canvas sync
// response before using its own empty replica.
const syncWait = 3 * time.Second

var ErrNoSession = errors.New("no session")

// Studio is a relay-connected client with its peer links and the
// shared canvas replica.
type Studio struct {
	conf    config.StudioConfig
	wire    *com.Client
	factory *ApiFactory
	media   MediaSource
	canvas  *Canvas
	log     *logger.Logger
	done    chan struct{}
	ready   chan struct{}

	mu      sync.Mutex
	id      string
	peers   map[string]*PeerLink
	cursors map[string]api.CursorUpdateNotice
	inRoom  bool

	// optional notification callbacks
	OnPeerState    func(remote string, state PeerState)
	OnVideoMessage func(from string, msg api.VideoMessageRequest)
	OnStickers     func(from string, stickers json.RawMessage)
	OnCursor       func(from string, cursor api.CursorUpdateNotice)
	OnReaction     func(from string, emoji string)
	OnMember       func(id string, joined bool)
}

func New(conf config.StudioConfig, media MediaSource, log *logger.Logger) (*Studio, error) {
	factory, err := NewApiFactory(conf.Webrtc, log)
	if err != nil {
		return nil, err
	}
	address, err := url.Parse(conf.Studio.Relay)
	if err != nil {
		return nil, err
	}
	conn, err := com.NewConnector(com.WithTag("studio")).NewClient(*address, log)
	if err != nil {
		return nil, err
	}
	s := &Studio{
		conf:    conf,
		wire:    conn,
		factory: factory,
		media:   media,
		canvas:  NewCanvas(),
		log:     log,
		peers:   make(map[string]*PeerLink),
		cursors: make(map[string]api.CursorUpdateNotice),
		ready:   make(chan struct{}),
	}
	conn.OnPacket(s.handlePacket)
	return s, nil
}

func (s *Studio) Run() {
	s.done = s.wire.Listen()
	if err := s.join(); err != nil {
		s.log.Fatal().Err(err).Msg("couldn't join the relay")
	}
	s.log.Info().Msgf("joined as %q [%v]", s.conf.Studio.Name, s.SessionId())
}

func (s *Studio) Shutdown(context.Context) error {
	s.mu.Lock()
	peers := s.peers
	s.peers = make(map[string]*PeerLink)
	s.mu.Unlock()
	for _, p := range peers {
		p.Close()
	}
	s.wire.Close()
	return nil
}

// Done closes when the relay connection is gone.
func (s *Studio) Done() chan struct{} { return s.done }

func (s *Studio) SessionId() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.id
}

func (s *Studio) Canvas() *Canvas { return s.canvas }

// Cursors returns a copy of the last known cursor per session.
func (s *Studio) Cursors() map[string]api.CursorUpdateNotice {
	s.mu.Lock()
	defer s.mu.Unlock()
	cursors := make(map[string]api.CursorUpdateNotice, len(s.cursors))
	for id, c := range s.cursors {
		cursors[id] = c
	}
	return cursors
}

func (s *Studio) forgetCursor(id string) {
	s.mu.Lock()
	delete(s.cursors, id)
	s.mu.Unlock()
}

func (s *Studio) join() error {
	payload, err := s.wire.Call(api.Join, api.JoinRequest{Name: s.conf.Studio.Name})
	ack, err := api.UnwrapChecked[api.JoinAckResponse](payload, err)
	if err != nil {
		return err
	}
	if ack == nil || ack.Sid == "" {
		return api.ErrMalformed
	}
	s.mu.Lock()
	s.id = ack.Sid
	s.mu.Unlock()
	close(s.ready)
	return nil
}

// initiates decides which side of a session pair sends the offer.
// Ids are lexicographically comparable, the greater one dials.
func initiates(own, remote string) bool { return own > remote }

func (s *Studio) handlePacket(in api.In) {
	// the join ack resolves in the call queue, not here, but the relay
	// may push the presence snapshot right behind it on the same
	// channel; hold dispatch until the acked session id is stored,
	// otherwise the tie-break sees an empty own id and never dials
	<-s.ready

	switch in.T {
	case api.PresenceSnapshot:
		snapshot := api.Unwrap[api.PresenceSnapshotResponse](in.Payload)
		if snapshot == nil {
			return
		}
		for _, info := range snapshot.Sessions {
			s.maybeDial(info.Id)
		}
	case api.SessionJoined:
		info := api.Unwrap[api.SessionJoinedNotice](in.Payload)
		if info == nil {
			return
		}
		s.maybeDial(info.Id)
	case api.SessionLeft:
		info := api.Unwrap[api.SessionLeftNotice](in.Payload)
		if info == nil {
			return
		}
		s.forgetCursor(info.Id)
		s.dropPeer(info.Id)
	case api.Offer:
		rq := api.Unwrap[api.OfferRequest](in.Payload)
		if rq == nil || in.From == "" {
			return
		}
		p, _, err := s.ensurePeer(in.From)
		if err != nil {
			s.log.Error().Err(err).Msgf("peer init fail for %v", in.From)
			return
		}
		if err := p.HandleOffer(rq.Sdp); err != nil {
			s.log.Error().Err(err).Msgf("offer fail from %v", in.From)
		}
	case api.Answer:
		rq := api.Unwrap[api.AnswerRequest](in.Payload)
		p := s.peer(in.From)
		if rq == nil || p == nil {
			return
		}
		if err := p.HandleAnswer(rq.Sdp); err != nil {
			s.log.Error().Err(err).Msgf("answer fail from %v", in.From)
		}
	case api.IceCandidate:
		rq := api.Unwrap[api.IceCandidateRequest](in.Payload)
		if rq == nil || in.From == "" {
			return
		}
		p, _, err := s.ensurePeer(in.From)
		if err != nil {
			return
		}
		if err := p.AddCandidate(rq.Candidate); err != nil {
			s.log.Error().Err(err).Msgf("candidate fail from %v", in.From)
		}
	case api.VideoMessage:
		rq := api.Unwrap[api.VideoMessageRequest](in.Payload)
		if rq != nil && s.OnVideoMessage != nil {
			s.OnVideoMessage(in.From, *rq)
		}
	case api.VideoMessageAck:
		s.log.Debug().Msg("video message delivered")
	case api.StickerUpdate:
		n := api.Unwrap[api.StickerUpdateNotice](in.Payload)
		if n != nil && s.OnStickers != nil {
			s.OnStickers(in.From, n.Stickers)
		}
	case api.StudioJoin:
		if s.OnMember != nil {
			s.OnMember(in.From, true)
		}
	case api.StudioLeave:
		s.forgetCursor(in.From)
		if s.OnMember != nil {
			s.OnMember(in.From, false)
		}
	case api.CursorUpdate:
		n := api.Unwrap[api.CursorUpdateNotice](in.Payload)
		if n == nil || in.From == "" {
			return
		}
		s.mu.Lock()
		s.cursors[in.From] = *n
		s.mu.Unlock()
		if s.OnCursor != nil {
			s.OnCursor(in.From, *n)
		}
	case api.ObjectAdded, api.ObjectModified:
		n := api.Unwrap[api.ObjectChangeNotice](in.Payload)
		if n == nil {
			return
		}
		s.canvas.Upsert(in.From, n.ObjectId, n.State)
	case api.ObjectRemoved:
		n := api.Unwrap[api.ObjectChangeNotice](in.Payload)
		if n == nil {
			return
		}
		s.canvas.Remove(n.ObjectId)
	case api.Reaction:
		n := api.Unwrap[api.ReactionNotice](in.Payload)
		if n != nil && s.OnReaction != nil {
			s.OnReaction(in.From, n.Emoji)
		}
	case api.CanvasSyncAsk:
		s.answerSync(in)
	case api.CanvasSync:
		n := api.Unwrap[api.CanvasSyncResponse](in.Payload)
		if n == nil {
			return
		}
		if s.canvas.ApplySync(*n) {
			s.log.Debug().Msgf("canvas synced, %d objects", s.canvas.Len())
		}
	default:
		s.log.Warn().Msgf("unhandled packet %v", in.T)
	}
}

// answerSync serves the canvas to a fresh member. Members that haven't
// settled their own replica yet stay silent, the asker takes whichever
// response lands first.
func (s *Studio) answerSync(in api.In) {
	n := api.Unwrap[api.CanvasSyncAskNotice](in.Payload)
	if n == nil || in.From == "" || !s.canvas.Ready() {
		return
	}
	objects, next := s.canvas.Snapshot()
	s.signal(api.CanvasSync, in.From, api.CanvasSyncResponse{
		RequestId:    n.RequestId,
		Objects:      objects,
		NextObjectId: next,
	})
}

func (s *Studio) maybeDial(remote string) {
	own := s.SessionId()
	if remote == "" || remote == own || !initiates(own, remote) {
		return
	}
	p, created, err := s.ensurePeer(remote)
	if err != nil {
		s.log.Error().Err(err).Msgf("peer init fail for %v", remote)
		return
	}
	if !created {
		return
	}
	if err := p.Initiate(); err != nil {
		s.log.Error().Err(err).Msgf("dial fail for %v", remote)
	}
}

func (s *Studio) ensurePeer(remote string) (*PeerLink, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p, ok := s.peers[remote]; ok {
		return p, false, nil
	}
	p, err := NewPeerLink(remote, s.factory, s.media, s.signal, s.peerStateChanged, s.log)
	if err != nil {
		return nil, false, err
	}
	s.peers[remote] = p
	return p, true, nil
}

func (s *Studio) peer(remote string) *PeerLink {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.peers[remote]
}

func (s *Studio) dropPeer(remote string) {
	s.mu.Lock()
	p := s.peers[remote]
	delete(s.peers, remote)
	s.mu.Unlock()
	if p != nil {
		p.Close()
	}
}

func (s *Studio) peerStateChanged(remote string, state PeerState) {
	// terminal links leave the table so a re-announce can negotiate anew
	if state == PeerClosed || state == PeerFailed {
		s.mu.Lock()
		delete(s.peers, remote)
		s.mu.Unlock()
	}
	if s.OnPeerState != nil {
		s.OnPeerState(remote, state)
	}
}

func (s *Studio) signal(t api.PT, to string, payload any) {
	if err := s.wire.NotifyTo(to, t, payload); err != nil {
		s.log.Error().Err(err).Msgf("send %v fail", t)
	}
}

func (s *Studio) broadcast(t api.PT, payload any) {
	if err := s.wire.Notify(t, payload); err != nil {
		s.log.Error().Err(err).Msgf("send %v fail", t)
	}
}

// EnterStudio joins the collaboration room and requests a full canvas
// sync. Repeated calls change nothing.
func (s *Studio) EnterStudio() error {
	if s.SessionId() == "" {
		return ErrNoSession
	}
	s.mu.Lock()
	if s.inRoom {
		s.mu.Unlock()
		return nil
	}
	s.inRoom = true
	s.mu.Unlock()

	s.broadcast(api.StudioJoin, api.StudioJoinNotice{Name: s.conf.Studio.Name})
	rid := s.canvas.BeginSync()
	s.broadcast(api.CanvasSyncAsk, api.CanvasSyncAskNotice{RequestId: rid})
	time.AfterFunc(syncWait, s.canvas.SealSync)
	return nil
}

func (s *Studio) LeaveStudio() {
	s.mu.Lock()
	if !s.inRoom {
		s.mu.Unlock()
		return
	}
	s.inRoom = false
	s.mu.Unlock()
	s.broadcast(api.StudioLeave, nil)
}

func (s *Studio) InStudio() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.inRoom
}

// AddObject puts a new object on the canvas and announces it.
func (s *Studio) AddObject(state json.RawMessage) int64 {
	oid := s.canvas.AllocId()
	s.canvas.Upsert(s.SessionId(), oid, state)
	s.broadcast(api.ObjectAdded, api.ObjectChangeNotice{ObjectId: oid, State: state})
	return oid
}

func (s *Studio) ModifyObject(oid int64, state json.RawMessage) {
	s.canvas.Upsert(s.SessionId(), oid, state)
	s.broadcast(api.ObjectModified, api.ObjectChangeNotice{ObjectId: oid, State: state})
}

func (s *Studio) RemoveObject(oid int64) {
	s.canvas.Remove(oid)
	s.broadcast(api.ObjectRemoved, api.ObjectChangeNotice{ObjectId: oid})
}

func (s *Studio) MoveCursor(x, y float64, color string) {
	s.broadcast(api.CursorUpdate, api.CursorUpdateNotice{X: x, Y: y, Color: color, Name: s.conf.Studio.Name})
}

func (s *Studio) SendReaction(emoji string) {
	s.broadcast(api.Reaction, api.ReactionNotice{Emoji: emoji})
}

func (s *Studio) SendStickers(stickers json.RawMessage) {
	s.broadcast(api.StickerUpdate, api.StickerUpdateNotice{Stickers: stickers})
}

// SendVideoMessage hands a recorded video link to a single session.
func (s *Studio) SendVideoMessage(to, videoUrl, filename string, size int64) {
	s.signal(api.VideoMessage, to, api.VideoMessageRequest{VideoUrl: videoUrl, Filename: filename, Size: size})
}
