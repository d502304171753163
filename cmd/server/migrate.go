package main

import (
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/dkeye/Meet/internal/store"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply postgres schema migrations",
	RunE:  runMigrate,
}

func runMigrate(_ *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if cfg.Database.Driver != "postgres" {
		log.Info().Str("driver", cfg.Database.Driver).Msg("schema is created on open, nothing to migrate")
		return nil
	}
	if cfg.Database.URL == "" {
		return errors.New("database.url is required for migrate")
	}
	if err := store.MigrateUp(cfg.Database.URL); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}
