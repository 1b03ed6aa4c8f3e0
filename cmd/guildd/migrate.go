package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"guildhall.org/internal/config"
	"guildhall.org/internal/migrate"
	"guildhall.org/internal/store/pg"
)

const migrateTimeout = 30 * time.Second

func migrateCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the PostgreSQL schema",
	}
	cmd.AddCommand(
		migrateSubcommand("up", "Apply pending migrations", func(ctx context.Context, cmd *cobra.Command, m *migrate.Manager) error {
			applied, err := m.Up(ctx)
			for _, name := range applied {
				fmt.Fprintln(cmd.OutOrStdout(), "applied", name)
			}
			return err
		}),
		migrateSubcommand("down", "Roll back the latest migration", func(ctx context.Context, cmd *cobra.Command, m *migrate.Manager) error {
			name, err := m.Down(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "rolled back", name)
			return nil
		}),
		migrateSubcommand("seed", "Apply seed files", func(ctx context.Context, cmd *cobra.Command, m *migrate.Manager) error {
			applied, err := m.Seed(ctx)
			for _, name := range applied {
				fmt.Fprintln(cmd.OutOrStdout(), "seeded", name)
			}
			return err
		}),
		migrateSubcommand("status", "List applied and pending migrations", func(ctx context.Context, cmd *cobra.Command, m *migrate.Manager) error {
			applied, pending, err := m.Status(ctx)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, r := range applied {
				fmt.Fprintf(out, "applied  %s  %s\n", r.Name, r.AppliedAt.UTC().Format(time.RFC3339))
			}
			for _, name := range pending {
				fmt.Fprintf(out, "pending  %s\n", name)
			}
			return nil
		}),
	)
	return cmd
}

func migrateSubcommand(use, short string, run func(context.Context, *cobra.Command, *migrate.Manager) error) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := commonRun()
			if err != nil {
				return err
			}
			if cfg.Storage.PostgresDSN == "" {
				return errors.New("storage.postgresDSN is required")
			}
			if cfg.Storage.Backend != config.BackendPostgres {
				logger.Warn("storage backend is not postgres; migrating anyway", "backend", cfg.Storage.Backend)
			}
			s, err := pg.Open(cfg.Storage.PostgresDSN)
			if err != nil {
				return err
			}
			defer s.Close()

			ctx, cancel := context.WithTimeout(cmd.Context(), migrateTimeout)
			defer cancel()
			mgr, err := newMigrator(cfg, s)
			if err != nil {
				return err
			}
			if err := run(ctx, cmd, mgr); err != nil {
				return fmt.Errorf("migrate %s: %w", use, err)
			}
			return nil
		},
	}
}
