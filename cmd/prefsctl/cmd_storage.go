package main

import (
	"errors"
	"fmt"

	"github.com/fatih/color"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/dshills/prefstore/internal/prefs"
	"github.com/dshills/prefstore/internal/prefs/metrics"
	"github.com/dshills/prefstore/internal/prefs/storage"
)

func newKeysCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "keys",
		Short: "List every stored document key",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.withAdapter(cmd.Context(), func(a storage.Adapter) error {
				keys, err := a.Keys(cmd.Context())
				if err != nil {
					return err
				}
				for _, k := range keys {
					if _, err := fmt.Fprintln(c.out, k); err != nil {
						return err
					}
				}
				return nil
			})
		},
	}
}

func newClearCmd(c *cli) *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Delete every stored document",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if !yes {
				return errors.New("clear deletes every stored document; rerun with --yes")
			}
			return c.withAdapter(cmd.Context(), func(a storage.Adapter) error {
				if err := a.Clear(cmd.Context()); err != nil {
					return err
				}
				c.success("storage cleared")
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&yes, "yes", false, "confirm deletion")
	return cmd
}

func newMigrateCmd(c *cli) *cobra.Command {
	var (
		dryRun      bool
		workers     int
		metricsFile string
	)
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Upgrade every stored document to the current schema version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			return c.withAdapter(ctx, func(a storage.Adapter) error {
				results, err := prefs.MigrateAll(ctx, a, prefs.MigrateOptions{
					MaxWorkers: workers,
					DryRun:     dryRun,
					Logger:     c.logger,
				})
				if err != nil {
					return err
				}

				if metricsFile != "" {
					reg := prometheus.NewRegistry()
					metrics.New(reg).RecordMigration(results)
					if err := prometheus.WriteToTextfile(metricsFile, reg); err != nil {
						return fmt.Errorf("writing metrics: %w", err)
					}
				}
				return c.reportMigration(results, dryRun)
			})
		},
	}
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "report what would change without writing")
	cmd.Flags().IntVarP(&workers, "workers", "w", 4, "documents migrated concurrently")
	cmd.Flags().StringVar(&metricsFile, "metrics-file", "", "write Prometheus text metrics to this file")
	return cmd
}

func (c *cli) reportMigration(results []prefs.MigrateResult, dryRun bool) error {
	red := color.New(color.FgRed)
	green := color.New(color.FgGreen)
	yellow := color.New(color.FgYellow)

	var failed, changed int
	for _, r := range results {
		switch {
		case r.Err != nil:
			failed++
			red.Fprintf(c.out, "%s: %v\n", r.Key, r.Err)
		case r.Written:
			changed++
			green.Fprintf(c.out, "%s: %s -> %s (%d steps)\n", r.Key, r.From, r.To, len(r.Steps))
		case dryRun && (len(r.Steps) > 0 || len(r.Preserved) > 0):
			changed++
			yellow.Fprintf(c.out, "%s: %s -> %s (dry run)\n", r.Key, r.From, r.To)
		default:
			fmt.Fprintf(c.out, "%s: up to date (%s)\n", r.Key, r.From)
		}
		if len(r.Preserved) > 0 && r.Err == nil {
			fmt.Fprintf(c.out, "  preserved: %v\n", r.Preserved)
		}
	}

	fmt.Fprintf(c.out, "%d documents, %d migrated, %d failed\n", len(results), changed, failed)
	if failed > 0 {
		return fmt.Errorf("%d of %d documents failed to migrate", failed, len(results))
	}
	return nil
}
