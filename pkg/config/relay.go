package config

import (
	"github.com/spf13/pflag"
)

type RelayConfig struct {
	Relay  Relay
	Webrtc Webrtc
}

type Relay struct {
	Debug      bool
	Monitoring Monitoring
	Origin     string
	Server     Server
}

// allows custom config path
var relayConfigPath string

func NewRelayConfig() (conf RelayConfig) {
	if err := LoadConfig(&conf, relayConfigPath); err != nil {
		panic(err)
	}
	return
}

func (c *RelayConfig) ParseFlags() {
	pflag.StringVarP(&c.Relay.Server.Address, "address", "a", c.Relay.Server.Address, "Relay server address")
	pflag.BoolVarP(&c.Relay.Debug, "debug", "d", c.Relay.Debug, "Enable debug logging")
	pflag.BoolVarP(&c.Relay.Monitoring.MetricEnabled, "monitoring.metric", "m", c.Relay.Monitoring.MetricEnabled, "Enable Prometheus metrics")
	pflag.BoolVarP(&c.Relay.Monitoring.ProfilingEnabled, "monitoring.pprof", "p", c.Relay.Monitoring.ProfilingEnabled, "Enable Go pprof")
	pflag.IntVar(&c.Relay.Monitoring.Port, "monitoring.port", c.Relay.Monitoring.Port, "Monitoring server port")
	pflag.StringVarP(&relayConfigPath, "conf", "c", relayConfigPath, "Set custom configuration file path")
	pflag.Parse()
}
