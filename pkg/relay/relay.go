package relay

import (
	"net/http"

	"github.com/castlab/studiocast/pkg/config"
	"github.com/castlab/studiocast/pkg/logger"
	"github.com/castlab/studiocast/pkg/monitoring"
	"github.com/castlab/studiocast/pkg/network/httpx"
	"github.com/castlab/studiocast/pkg/service"
)

func New(conf config.RelayConfig, log *logger.Logger) (services service.Group) {
	hub := NewHub(conf, log)
	srv, err := NewHTTPServer(conf, log, hub)
	if err != nil {
		log.Error().Err(err).Msg("http init fail")
		return
	}
	services.Add(srv)
	if conf.Relay.Monitoring.IsEnabled() {
		services.Add(monitoring.New(conf.Relay.Monitoring, "rly", log))
	}
	return
}

func NewHTTPServer(conf config.RelayConfig, log *logger.Logger, hub *Hub) (*httpx.Server, error) {
	return httpx.NewServer(
		conf.Relay.Server.GetAddr(),
		func(*httpx.Server) http.Handler {
			h := http.NewServeMux()
			h.Handle("/ws", hub)
			h.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(http.StatusOK)
				_, _ = w.Write([]byte("ok"))
			})
			return h
		},
		httpx.WithServerConfig(conf.Relay.Server),
		httpx.WithLogger(log),
	)
}
