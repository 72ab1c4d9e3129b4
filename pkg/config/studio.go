package config

import (
	"github.com/spf13/pflag"
)

type StudioConfig struct {
	Studio Studio
	Webrtc Webrtc
}

type Studio struct {
	Debug bool
	Name  string `fig:"name" default:"guest"`
	Relay string `fig:"relay" default:"ws://localhost:8000/ws"`
}

var studioConfigPath string

func NewStudioConfig() (conf StudioConfig) {
	if err := LoadConfig(&conf, studioConfigPath); err != nil {
		panic(err)
	}
	return
}

func (c *StudioConfig) ParseFlags() {
	pflag.StringVarP(&c.Studio.Name, "name", "n", c.Studio.Name, "Display name")
	pflag.StringVarP(&c.Studio.Relay, "relay", "r", c.Studio.Relay, "Relay websocket endpoint")
	pflag.BoolVarP(&c.Studio.Debug, "debug", "d", c.Studio.Debug, "Enable debug logging")
	pflag.StringVarP(&studioConfigPath, "conf", "c", studioConfigPath, "Set custom configuration file path")
	pflag.Parse()
}
