package main

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/dkeye/Meet/internal/domain"
	"github.com/dkeye/Meet/internal/store"
)

var (
	seedRoom    string
	seedOwners  []string
	seedMembers []string
)

var seedCmd = &cobra.Command{
	Use:     "seed",
	Short:   "Register room owners and members",
	Example: `  meet-server seed --room design --owner alice --member bob,carol`,
	RunE:    runSeed,
}

func init() {
	seedCmd.Flags().StringVar(&seedRoom, "room", "", "room id")
	seedCmd.Flags().StringSliceVar(&seedOwners, "owner", nil, "owner user ids")
	seedCmd.Flags().StringSliceVar(&seedMembers, "member", nil, "member user ids")
	_ = seedCmd.MarkFlagRequired("room")
}

func runSeed(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if cfg.Database.Driver == "postgres" && cfg.Database.URL != "" {
		if err := store.MigrateUp(cfg.Database.URL); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	st, err := store.Open(cfg.Database.Driver, cfg.Database.DSN, cfg.Debug())
	if err != nil {
		return err
	}
	defer st.Close()

	return seedRoomMembers(cmd.Context(), st, domain.RoomID(seedRoom), seedOwners, seedMembers)
}

func seedRoomMembers(ctx context.Context, st *store.Store, room domain.RoomID, owners, members []string) error {
	if room == "" {
		return domain.Invalid("room id")
	}
	add := func(raw string, owner bool) error {
		uid, err := domain.ParseUserID(raw)
		if err != nil {
			return fmt.Errorf("user %q: %w", raw, err)
		}
		if err := st.UpsertRoomMember(ctx, &domain.RoomMember{RoomID: room, UserID: uid, Owner: owner}); err != nil {
			return err
		}
		log.Info().Str("room", string(room)).Str("user", string(uid)).Bool("owner", owner).Msg("seeded")
		return nil
	}
	return st.Transaction(ctx, func(ctx context.Context) error {
		for _, u := range owners {
			if err := add(u, true); err != nil {
				return err
			}
		}
		for _, u := range members {
			if err := add(u, false); err != nil {
				return err
			}
		}
		return nil
	})
}
