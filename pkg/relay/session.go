package relay

import (
	"github.com/castlab/studiocast/pkg/api"
	"github.com/castlab/studiocast/pkg/com"
	"github.com/castlab/studiocast/pkg/logger"
)

// Session is a single connected client on the relay side.
type Session struct {
	id   com.Uid
	name string
	wire *com.Client
	log  *logger.Logger
}

func NewSession(conn *com.Client, log *logger.Logger) *Session {
	id := com.NewUid()
	return &Session{
		id:   id,
		wire: conn,
		log:  log.Extend(log.With().Str("cid", id.Short())),
	}
}

func (s *Session) Id() com.Uid { return s.id }
func (s *Session) Disconnect() { s.wire.Close() }

func (s *Session) Info() api.SessionInfo { return api.SessionInfo{Id: s.id.String(), Name: s.name} }

func (s *Session) OnPacket(fn func(api.In)) { s.wire.OnPacket(fn) }
func (s *Session) Listen() chan struct{}    { return s.wire.Listen() }

func (s *Session) Notify(t api.PT, payload any) {
	if err := s.wire.Notify(t, payload); err != nil {
		s.log.Error().Err(err).Msgf("notify %v fail", t)
	}
}

func (s *Session) Route(in api.In, payload any) {
	if err := s.wire.Route(in, payload); err != nil {
		s.log.Error().Err(err).Msgf("route %v fail", in.T)
	}
}

func (s *Session) Forward(in api.In, from string) {
	if err := s.wire.Forward(in, from); err != nil {
		s.log.Error().Err(err).Msgf("forward %v fail", in.T)
	}
}
