package relay

import (
	"net/http"

	"github.com/castlab/studiocast/pkg/api"
	"github.com/castlab/studiocast/pkg/com"
	"github.com/castlab/studiocast/pkg/config"
	"github.com/castlab/studiocast/pkg/logger"
)

// Hub routes packets between connected sessions.
//
// Unicast packets are forwarded to the session from the envelope's to
// field and silently dropped when it is gone, broadcast packets go to
// every studio member except the sender. The relay never interprets
// forwarded payloads.
type Hub struct {
	conf      config.RelayConfig
	connector *com.Connector
	registry  *Registry
	log       *logger.Logger
}

func NewHub(conf config.RelayConfig, log *logger.Logger) *Hub {
	return &Hub{
		conf:      conf,
		connector: com.NewConnector(com.WithOrigin(conf.Relay.Origin), com.WithTag("relay")),
		registry:  NewRegistry(),
		log:       log,
	}
}

// ServeHTTP handles all websocket connections from the studio clients.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.connector.NewServer(w, r, h.log)
	if err != nil {
		h.log.Error().Err(err).Msg("couldn't init client connection")
		return
	}
	usr := NewSession(conn, h.log)
	defer h.drop(usr)

	usr.OnPacket(func(in api.In) { h.dispatch(usr, in) })
	done := usr.Listen()
	metricSessions.Inc()
	usr.log.Info().Str(logger.DirectionField, "+").Msg("Connect")
	<-done
}

func (h *Hub) dispatch(usr *Session, in api.In) {
	if err := in.Validate(); err != nil {
		usr.log.Warn().Err(err).Msgf("dropped packet %v", in.T)
		metricDropped.WithLabelValues("malformed").Inc()
		return
	}
	if in.T != api.Join && !h.registry.Has(usr.Id()) {
		usr.log.Warn().Msgf("%v before join", in.T)
		metricDropped.WithLabelValues("unjoined").Inc()
		return
	}
	switch {
	case in.T == api.Join:
		h.handleJoin(usr, in)
	case in.T.IsUnicast():
		h.forward(usr, in)
	case in.T.IsBroadcast():
		h.broadcast(usr, in)
	default:
		usr.log.Warn().Msgf("unhandled packet %v", in.T)
		metricDropped.WithLabelValues("unroutable").Inc()
	}
}

func (h *Hub) handleJoin(usr *Session, in api.In) {
	rq := api.Unwrap[api.JoinRequest](in.Payload)
	if rq == nil {
		metricDropped.WithLabelValues("malformed").Inc()
		return
	}
	// a repeated join just re-acks the already assigned id
	if h.registry.Has(usr.Id()) {
		usr.Route(in, api.JoinAckResponse{Sid: usr.Id().String()})
		return
	}
	usr.name = rq.Name
	h.registry.Add(usr)
	usr.Route(in, api.JoinAckResponse{Sid: usr.Id().String()})

	others := h.registry.List(usr.Id())
	snapshot := api.PresenceSnapshotResponse{Sessions: make([]api.SessionInfo, 0, len(others))}
	for _, s := range others {
		snapshot.Sessions = append(snapshot.Sessions, s.Info())
	}
	usr.Notify(api.PresenceSnapshot, snapshot)

	notice := usr.Info()
	for _, s := range others {
		s.Notify(api.SessionJoined, notice)
	}
	usr.log.Info().Msgf("Join %q, sessions: %d", usr.name, h.registry.Len())
}

func (h *Hub) forward(usr *Session, in api.In) {
	to, err := com.UidFrom(in.To)
	if err != nil {
		metricDropped.WithLabelValues("malformed").Inc()
		return
	}
	dst, err := h.registry.Find(to)
	if err != nil {
		// gone destinations don't bounce
		usr.log.Debug().Msgf("no route for %v to %v", in.T, in.To)
		metricDropped.WithLabelValues("no_route").Inc()
		return
	}
	dst.Forward(in, usr.Id().String())
	metricRouted.WithLabelValues(in.T.String()).Inc()
	if in.T == api.VideoMessage {
		usr.Notify(api.VideoMessageAck, api.VideoMessageAckNotice{To: in.To})
	}
}

func (h *Hub) broadcast(usr *Session, in api.In) {
	switch in.T {
	case api.StudioJoin:
		if !h.registry.EnterRoom(usr.Id()) {
			return
		}
	case api.StudioLeave:
		if !h.registry.LeaveRoom(usr.Id()) {
			return
		}
	default:
		if !h.registry.InRoom(usr.Id()) {
			metricDropped.WithLabelValues("not_in_room").Inc()
			return
		}
	}
	from := usr.Id().String()
	for _, s := range h.registry.RoomMembers(usr.Id()) {
		s.Forward(in, from)
	}
	metricRouted.WithLabelValues(in.T.String()).Inc()
}

func (h *Hub) drop(usr *Session) {
	metricSessions.Dec()
	usr.Disconnect()
	if !h.registry.Has(usr.Id()) {
		return
	}
	h.registry.Remove(usr)
	notice := api.SessionLeftNotice{Id: usr.Id().String()}
	for _, s := range h.registry.List(usr.Id()) {
		s.Notify(api.SessionLeft, notice)
	}
	usr.log.Info().Str(logger.DirectionField, "x").Msgf("Disconnect, sessions: %d", h.registry.Len())
}
