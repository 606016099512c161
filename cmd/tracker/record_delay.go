package main

import (
	"errors"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v2"

	"transit-tracker/internal/config"
	"transit-tracker/internal/db"
)

func recordDelayCommand(cfg *config.Config) *cli.Command {
	return &cli.Command{
		Name:  "record-delay",
		Usage: "Store a stop delay in the delay database",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "trip", Required: true},
			&cli.StringFlag{Name: "stop", Required: true},
			&cli.IntFlag{Name: "seconds", Usage: "delay in seconds, negative when early", Required: true},
		},
		Action: func(c *cli.Context) error {
			if cfg.DatabaseURL == "" {
				return errors.New("DATABASE_URL is not set")
			}
			sqlDB, err := db.Open(cfg.DatabaseURL)
			if err != nil {
				return err
			}
			defer sqlDB.Close()

			store := db.NewDelayStore(sqlDB)
			if err := store.EnsureSchema(c.Context); err != nil {
				return err
			}
			d := db.StopDelay{
				TripID:       c.String("trip"),
				StopID:       c.String("stop"),
				DelaySeconds: c.Int("seconds"),
				UpdatedAt:    time.Now().UTC(),
			}
			if err := store.UpsertStopDelay(c.Context, d); err != nil {
				return err
			}
			log.Info().Str("trip", d.TripID).Str("stop", d.StopID).Int("delay", d.DelaySeconds).Msg("stop delay recorded")
			return nil
		},
	}
}
