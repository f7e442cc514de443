package prefs

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/tidwall/gjson"
	"golang.org/x/sync/errgroup"

	"github.com/dshills/prefstore/internal/prefs/codec"
	"github.com/dshills/prefstore/internal/prefs/schema"
	"github.com/dshills/prefstore/internal/prefs/storage"
)

// MigrateOptions configures MigrateAll.
type MigrateOptions struct {
	// Registry is the chain to apply. Defaults to DefaultRegistry.
	Registry *Registry
	// Validator checks each upgraded document. Defaults to a strict
	// validator over the embedded schema.
	Validator *schema.Validator
	// MaxWorkers bounds how many keys are processed at once. Defaults to 4.
	MaxWorkers int
	// DryRun reports what would change without writing.
	DryRun bool
	// Logger defaults to slog.Default.
	Logger *slog.Logger
	// Clock stamps documents that have no lastModified. Defaults to time.Now.
	Clock func() time.Time
}

// MigrateResult is the outcome for one key.
type MigrateResult struct {
	Key string
	// From is the version found in storage.
	From string
	// To is the version written (or that would be written in a dry run).
	To string
	// Written is true when the upgraded document was stored.
	Written bool
	// Steps are the migrations applied.
	Steps []MigrationResult
	// Preserved lists unknown fields moved to metadata.preserved.
	Preserved []string
	// Err is the failure for this key, if any.
	Err error
}

// MigrateAll brings every document in adapter up to the current version.
// Keys are processed concurrently. A failure on one key is recorded in its
// result and does not stop the others; the returned error is reserved for
// listing keys and context cancellation. Results are ordered by key.
func MigrateAll(ctx context.Context, adapter storage.Adapter, opts MigrateOptions) ([]MigrateResult, error) {
	if opts.Registry == nil {
		opts.Registry = DefaultRegistry()
	}
	if opts.Validator == nil {
		opts.Validator = schema.NewValidator(schema.MustLoadEmbedded()).WithStrictMode(true)
	}
	if opts.MaxWorkers <= 0 {
		opts.MaxWorkers = 4
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	logger := opts.Logger.With("component", "prefs.migrate")

	keys, err := adapter.Keys(ctx)
	if err != nil {
		return nil, &StorageError{Op: "keys", Err: err}
	}

	results := make([]MigrateResult, len(keys))
	eg, ctx := errgroup.WithContext(ctx)
	eg.SetLimit(opts.MaxWorkers)

	for i, key := range keys {
		eg.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			results[i] = migrateKey(ctx, adapter, key, opts)
			if r := results[i]; r.Err != nil {
				logger.Warn("migrating key failed", "key", key, "error", r.Err)
			} else if r.Written {
				logger.Info("migrated key", "key", key, "from", r.From, "to", r.To)
			}
			return nil
		})
	}

	if err := eg.Wait(); err != nil {
		return results, fmt.Errorf("migrating preferences: %w", err)
	}
	return results, nil
}

func migrateKey(ctx context.Context, adapter storage.Adapter, key string, opts MigrateOptions) MigrateResult {
	res := MigrateResult{Key: key}
	current := opts.Registry.Current().String()

	data, err := adapter.Get(ctx, key)
	if err != nil {
		res.Err = &StorageError{Op: "get", Key: key, Err: err}
		return res
	}
	if data == nil {
		return res
	}

	res.From = BaselineVersion
	if v := gjson.GetBytes(data, "schemaVersion"); v.Exists() {
		res.From = v.String()
	}

	raw, err := codec.Decode(codec.JSON, data)
	if err != nil {
		res.Err = newParseError(err)
		return res
	}

	up, err := upgrade(raw, opts.Registry, opts.Validator, opts.Clock())
	if err != nil {
		res.Err = err
		return res
	}
	res.To = current
	res.Steps = up.steps
	res.Preserved = up.preserved

	if !up.changed || opts.DryRun {
		return res
	}

	out, err := codec.Encode(codec.JSON, up.doc)
	if err != nil {
		res.Err = fmt.Errorf("encoding %s: %w", key, err)
		return res
	}
	if err := adapter.Set(ctx, key, out); err != nil {
		res.Err = &StorageError{Op: "set", Key: key, Err: err}
		return res
	}
	res.Written = true
	return res
}
