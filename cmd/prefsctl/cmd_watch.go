package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/fatih/color"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/dshills/prefstore/internal/prefs"
	"github.com/dshills/prefstore/internal/prefs/metrics"
	"github.com/dshills/prefstore/internal/prefs/storage"
	"github.com/dshills/prefstore/internal/prefs/watcher"
)

func newWatchCmd(c *cli) *cobra.Command {
	var (
		debounce    time.Duration
		metricsAddr string
	)
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Check documents as they are edited on disk (file backend)",
		Long: `Watch the file backend directory and load every document written to it
through a store, reporting whether it migrates and validates. Nothing is
written back.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.withAdapter(cmd.Context(), func(a storage.Adapter) error {
				f, ok := a.(*storage.File)
				if !ok {
					return fmt.Errorf("watch requires the file backend, not %q", c.cfg.Storage.Backend)
				}
				return c.watch(cmd.Context(), f, debounce, metricsAddr)
			})
		},
	}
	cmd.Flags().DurationVar(&debounce, "debounce", 100*time.Millisecond, "quiet period before a change is reported")
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address, e.g. :9090")
	return cmd
}

func (c *cli) watch(ctx context.Context, f *storage.File, debounce time.Duration, metricsAddr string) error {
	reg := prometheus.NewRegistry()
	collector := metrics.New(reg)

	w := watcher.New(f, watcher.WithDebounce(debounce), watcher.WithLogger(c.logger))
	w.OnChange(func(ev watcher.Event) {
		c.checkDocument(ctx, f, collector, ev)
	})
	if err := w.Start(); err != nil {
		return err
	}
	defer w.Stop()

	color.New(color.FgCyan).Fprintf(c.out, "watching %s\n", f.Dir())

	g, gctx := errgroup.WithContext(ctx)
	if metricsAddr != "" {
		srv := &http.Server{
			Addr:              metricsAddr,
			Handler:           metricsHandler(reg),
			ReadHeaderTimeout: 5 * time.Second,
			BaseContext:       func(net.Listener) context.Context { return gctx },
		}
		g.Go(func() error {
			c.logger.Info("serving metrics", "addr", metricsAddr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("metrics server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		return nil
	})
	return g.Wait()
}

func metricsHandler(reg *prometheus.Registry) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	return mux
}

// checkDocument loads the document behind ev through a read-only store so
// migration and validation failures show up in the output and metrics.
func (c *cli) checkDocument(ctx context.Context, f *storage.File, collector *metrics.Collector, ev watcher.Event) {
	stamp := ev.Time.Format(time.TimeOnly)
	if ev.Op == watcher.OpRemove || ev.Op == watcher.OpRename {
		fmt.Fprintf(c.out, "%s %-6s %s\n", stamp, ev.Op, ev.Key)
		return
	}

	st := prefs.New(
		prefs.WithStorage(f),
		prefs.WithKey(ev.Key),
		prefs.WithAutoSave(false),
		prefs.WithLogger(c.logger),
	)
	subs := collector.Attach(st)
	defer metrics.Detach(subs)
	defer st.Close()

	if err := st.Initialize(ctx); err != nil {
		color.New(color.FgRed).Fprintf(c.out, "%s %-6s %s: %v\n", stamp, ev.Op, ev.Key, err)
		return
	}
	color.New(color.FgGreen).Fprintf(c.out, "%s %-6s %s: valid (%s)\n", stamp, ev.Op, ev.Key, st.Preferences().SchemaVersion)
}

func newVersionCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		// Version needs no configuration.
		PersistentPreRunE: func(*cobra.Command, []string) error { return nil },
		RunE: func(*cobra.Command, []string) error {
			_, err := fmt.Fprintf(c.out, "prefsctl %s (commit %s, built %s, schema %s)\n", version, commit, date, prefs.CurrentVersion)
			return err
		},
	}
}
