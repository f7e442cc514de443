package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"github.com/tidwall/pretty"

	"github.com/dshills/prefstore/internal/config"
	"github.com/dshills/prefstore/internal/prefs"
	"github.com/dshills/prefstore/internal/prefs/storage"
)

// cli carries the streams, global flags and resolved configuration shared
// by every command.
type cli struct {
	in     io.Reader
	out    io.Writer
	errOut io.Writer
	env    []string

	configPath string
	backend    string
	path       string
	key        string

	cfg    config.Config
	logger *slog.Logger
}

func newCLI(in io.Reader, out, errOut io.Writer, env []string) *cli {
	return &cli{in: in, out: out, errOut: errOut, env: env}
}

func newRootCmd(c *cli) *cobra.Command {
	root := &cobra.Command{
		Use:   "prefsctl",
		Short: "Inspect and edit stored accessibility preferences",
		Long: `prefsctl reads and writes preference documents through the same
store the services use, so every edit is validated and migrated.

Settings come from built-in defaults, then the TOML file given by --config,
then PREFSTORE_* environment variables, then the flags below.`,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: c.loadConfig,
	}
	root.SetIn(c.in)
	root.SetOut(c.out)
	root.SetErr(c.errOut)

	pf := root.PersistentFlags()
	pf.StringVarP(&c.configPath, "config", "c", "", "TOML configuration file")
	pf.StringVar(&c.backend, "backend", "", "storage backend (memory, file, badger, sqlite, redis)")
	pf.StringVar(&c.path, "path", "", "storage directory or database file")
	pf.StringVarP(&c.key, "key", "k", "", "storage key of the document")

	root.AddCommand(
		newShowCmd(c),
		newGetCmd(c),
		newSetCmd(c),
		newResetCmd(c),
		newExportCmd(c),
		newImportCmd(c),
		newKeysCmd(c),
		newClearCmd(c),
		newMigrateCmd(c),
		newWatchCmd(c),
		newVersionCmd(c),
	)
	return root
}

// loadConfig resolves the configuration before any command runs.
func (c *cli) loadConfig(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(config.WithFile(c.configPath), config.WithEnv(c.env))
	if err != nil {
		return err
	}
	if c.backend != "" {
		cfg.Storage.Backend = c.backend
	}
	if c.path != "" {
		cfg.Storage.Path = c.path
	}
	if c.key != "" {
		cfg.Store.Key = c.key
	}
	if err := config.Validate(cfg); err != nil {
		return err
	}

	c.cfg = cfg
	c.logger = config.NewLogger(cfg.Logging, c.errOut).With("component", "prefsctl", "command", cmd.Name())
	return nil
}

// withAdapter opens the configured backend for the duration of fn.
func (c *cli) withAdapter(ctx context.Context, fn func(storage.Adapter) error) error {
	adapter, err := storage.Open(ctx, c.cfg.StorageOptions())
	if err != nil {
		return fmt.Errorf("opening %s storage: %w", c.cfg.Storage.Backend, err)
	}
	defer func() {
		if err := storage.Close(adapter); err != nil {
			c.logger.Warn("closing storage", "error", err)
		}
	}()
	return fn(adapter)
}

// withStore opens the backend and an initialized store over the configured
// key for the duration of fn.
func (c *cli) withStore(ctx context.Context, fn func(*prefs.Store) error) error {
	return c.withAdapter(ctx, func(adapter storage.Adapter) error {
		st := prefs.New(
			prefs.WithStorage(adapter),
			prefs.WithKey(c.cfg.Store.Key),
			prefs.WithAutoSave(c.cfg.Store.AutoSave),
			prefs.WithLogger(c.logger),
		)
		defer st.Close()

		if err := st.Initialize(ctx); err != nil {
			return err
		}
		return fn(st)
	})
}

// commit persists st when auto-save is off, so edits made from the command
// line are never lost.
func (c *cli) commit(ctx context.Context, st *prefs.Store) error {
	if c.cfg.Store.AutoSave {
		return nil
	}
	return st.Save(ctx)
}

// printJSON writes data indented, and colourised on a terminal.
func (c *cli) printJSON(data []byte) {
	out := pretty.Pretty(data)
	if !color.NoColor {
		out = pretty.Color(out, nil)
	}
	_, _ = c.out.Write(out)
}

func (c *cli) success(format string, args ...any) {
	color.New(color.FgGreen).Fprintf(c.out, format+"\n", args...)
}
