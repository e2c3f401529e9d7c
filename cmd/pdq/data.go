package main

import (
	"fmt"
	"sort"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/pdq-signal-server/internal/database"
	"github.com/pdq-signal-server/internal/source"
)

func loadCmd(a *app) *cobra.Command {
	var dir, quarter string

	cmd := &cobra.Command{
		Use:   "load",
		Short: "Copy a FAERS quarter into the PostgreSQL staging tables",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.overrideSource(dir, quarter); err != nil {
				return err
			}
			cfg := a.configManager.GetConfig()
			if cfg.Source.Dir == "" || cfg.Source.Quarter == "" {
				return fmt.Errorf("load requires --dir and --quarter")
			}

			ctx, cancel := signalContext(cmd.Context())
			defer cancel()

			set, err := source.NewFAERSDirSource(cfg.Source.Dir, cfg.Source.Quarter, a.logger).Load(ctx)
			if err != nil {
				return err
			}

			db, err := database.NewConnection(ctx, cfg.Database, a.logger)
			if err != nil {
				return err
			}
			defer db.Close()

			stats, err := database.NewLoader(db, cfg.Database.CopyBatchSize, a.logger).Load(ctx, cfg.Source.Quarter, set)
			if err != nil {
				return err
			}

			tables := make([]string, 0, len(stats))
			for table := range stats {
				tables = append(tables, table)
			}
			sort.Strings(tables)
			for _, table := range tables {
				fmt.Fprintf(cmd.OutOrStdout(), "%-5s %d\n", table, stats[table])
			}
			fmt.Fprintf(cmd.OutOrStdout(), "total %d\n", stats.Total())
			return nil
		},
	}

	cmd.Flags().StringVar(&dir, "dir", "", "directory holding the FAERS ASCII files")
	cmd.Flags().StringVar(&quarter, "quarter", "", "quarter tag, e.g. 20Q4")
	return cmd
}

func migrateCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
	}

	run := func(direction string) *cobra.Command {
		return &cobra.Command{
			Use:   direction,
			Short: fmt.Sprintf("Migrate the staging schema %s", direction),
			RunE: func(cmd *cobra.Command, args []string) error {
				ctx, cancel := signalContext(cmd.Context())
				defer cancel()

				mr, err := database.NewMigrationRunner(
					a.configManager.GetDatabaseURL(),
					a.configManager.GetDatabaseConfig().MigrationsPath,
					a.logger,
				)
				if err != nil {
					return err
				}
				defer mr.Close()

				if direction == "up" {
					err = mr.Up(ctx)
				} else {
					err = mr.Down(ctx)
				}
				if err != nil {
					return err
				}

				version, dirty, err := mr.Version()
				if err != nil {
					// ErrNilVersion after a full down
					a.logger.WithError(err).Debug("No migration version")
					return nil
				}
				a.logger.WithFields(logrus.Fields{"version": version, "dirty": dirty}).Info("Migration complete")
				return nil
			},
		}
	}

	cmd.AddCommand(run("up"), run("down"))
	return cmd
}
