package storage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sort"

	"github.com/dgraph-io/badger/v4"
)

// DefaultBadgerPrefix namespaces preference keys inside a shared database.
const DefaultBadgerPrefix = "prefs/"

// BadgerConfig configures a Badger adapter.
type BadgerConfig struct {
	// Path is the database directory. Ignored when InMemory is true.
	Path string
	// InMemory keeps everything in RAM. Useful for tests.
	InMemory bool
	// SyncWrites fsyncs every write.
	SyncWrites bool
	// Prefix is prepended to every key. Defaults to DefaultBadgerPrefix.
	Prefix string
	// Logger receives Badger's internal log output. Nil disables it.
	Logger *slog.Logger
}

// Badger stores documents in an embedded BadgerDB.
type Badger struct {
	db     *badger.DB
	prefix []byte
	owned  bool
}

// NewBadger opens a database described by cfg. Close releases it.
func NewBadger(cfg BadgerConfig) (*Badger, error) {
	if !cfg.InMemory && cfg.Path == "" {
		return nil, errors.New("badger storage: path is required for a persistent database")
	}

	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(cfg.Path, 0o750); err != nil {
			return nil, fmt.Errorf("creating database directory %s: %w", cfg.Path, err)
		}
		opts = badger.DefaultOptions(cfg.Path)
	}
	opts = opts.WithSyncWrites(cfg.SyncWrites).WithNumVersionsToKeep(1)
	if cfg.Logger != nil {
		opts = opts.WithLogger(&badgerLogger{logger: cfg.Logger})
	} else {
		opts = opts.WithLogger(nil)
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("opening badger database: %w", err)
	}

	b := NewBadgerWithDB(db, cfg.Prefix)
	b.owned = true
	return b, nil
}

// NewBadgerWithDB wraps an already open database. Close does not close db.
func NewBadgerWithDB(db *badger.DB, prefix string) *Badger {
	if prefix == "" {
		prefix = DefaultBadgerPrefix
	}
	return &Badger{db: db, prefix: []byte(prefix)}
}

func (b *Badger) dbKey(key string) []byte {
	return append(append([]byte(nil), b.prefix...), key...)
}

// Get implements Adapter.
func (b *Badger) Get(ctx context.Context, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var value []byte
	err := b.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(b.dbKey(key))
		if err != nil {
			return err
		}
		value, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", key, err)
	}
	return value, nil
}

// Set implements Adapter.
func (b *Badger) Set(ctx context.Context, key string, value []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := validateKey(key); err != nil {
		return err
	}

	err := b.db.Update(func(txn *badger.Txn) error {
		return txn.Set(b.dbKey(key), append([]byte(nil), value...))
	})
	if err != nil {
		return fmt.Errorf("writing %s: %w", key, err)
	}
	return nil
}

// Remove implements Adapter.
func (b *Badger) Remove(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	err := b.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(b.dbKey(key))
	})
	if err != nil {
		return fmt.Errorf("removing %s: %w", key, err)
	}
	return nil
}

// Clear implements Adapter. Only keys under the adapter's prefix are deleted.
func (b *Badger) Clear(ctx context.Context) error {
	keys, err := b.Keys(ctx)
	if err != nil {
		return err
	}

	wb := b.db.NewWriteBatch()
	defer wb.Cancel()
	for _, k := range keys {
		if err := wb.Delete(b.dbKey(k)); err != nil {
			return fmt.Errorf("clearing: %w", err)
		}
	}
	if err := wb.Flush(); err != nil {
		return fmt.Errorf("clearing: %w", err)
	}
	return nil
}

// Keys implements Adapter.
func (b *Badger) Keys(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var keys []string
	err := b.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = b.prefix
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			k := it.Item().Key()
			keys = append(keys, string(k[len(b.prefix):]))
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("listing keys: %w", err)
	}
	sort.Strings(keys)
	return keys, nil
}

// Close closes the database if the adapter opened it.
func (b *Badger) Close() error {
	if !b.owned {
		return nil
	}
	return b.db.Close()
}

// badgerLogger adapts slog to Badger's logger interface.
type badgerLogger struct {
	logger *slog.Logger
}

func (l *badgerLogger) Errorf(format string, args ...any) {
	l.logger.Error(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Warningf(format string, args ...any) {
	l.logger.Warn(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Infof(format string, args ...any) {
	l.logger.Info(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Debugf(format string, args ...any) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}
