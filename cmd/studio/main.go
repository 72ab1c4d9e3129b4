package main

import (
	"context"
	goflag "flag"

	"github.com/castlab/studiocast/pkg/config"
	"github.com/castlab/studiocast/pkg/logger"
	"github.com/castlab/studiocast/pkg/os"
	"github.com/castlab/studiocast/pkg/studio"
	flag "github.com/spf13/pflag"
)

var Version = "?"

func main() {
	conf := config.NewStudioConfig()
	flag.CommandLine.AddGoFlagSet(goflag.CommandLine)
	conf.ParseFlags()

	log := logger.NewConsole(conf.Studio.Debug, "s", false)

	log.Info().Msgf("version %s", Version)
	if log.GetLevel() < logger.InfoLevel {
		log.Debug().Msgf("config: %+v", conf)
	}

	media, err := studio.NewStaticSource()
	if err != nil {
		// no capture means no peers to negotiate with
		log.Fatal().Err(err).Msg("couldn't open media source")
	}
	s, err := studio.New(conf, media, log)
	if err != nil {
		log.Fatal().Err(err).Msg("couldn't connect to the relay")
	}
	s.Run()
	if err := s.EnterStudio(); err != nil {
		log.Fatal().Err(err).Msg("couldn't enter the studio")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer func() {
		if err := s.Shutdown(ctx); err != nil {
			log.Error().Err(err).Msg("service shutdown errors")
		}
	}()
	select {
	case <-s.Done():
		log.Warn().Msg("relay connection lost")
	case <-os.ExpectTermination():
	}
	cancel()
}
