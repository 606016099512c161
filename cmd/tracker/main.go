package main

import (
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v2"

	"transit-tracker/internal/config"

	_ "time/tzdata"
)

func main() {
	// Load configuration from .env and environment
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("config error")
	}
	setupLogging(cfg)

	app := &cli.App{
		Name:  "tracker",
		Usage: "Follow a planned trip timeline against live vehicle positions",

		Commands: []*cli.Command{
			inspectCommand(),
			runCommand(cfg),
			recordDelayCommand(cfg),
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal().Err(err).Send()
	}
}

func setupLogging(cfg *config.Config) {
	if !cfg.LogJSON {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339})
	}
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	log.Logger = log.Logger.Level(level)
}

var routeFlag = &cli.StringFlag{
	Name:     "route",
	Usage:    "JSON file with the directions response for the trip",
	Required: true,
}
