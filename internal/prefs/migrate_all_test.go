package prefs

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

	"github.com/dshills/prefstore/internal/prefs/storage"
)

type keysFailingStorage struct {
	*storage.Memory
}

func (keysFailingStorage) Keys(context.Context) ([]string, error) {
	return nil, errors.New("connection reset")
}

func seedMigrations(t *testing.T) *storage.Memory {
	t.Helper()
	ctx := context.Background()
	mem := storage.NewMemory()
	require.NoError(t, mem.Set(ctx, "user-a", []byte(legacyDoc)))
	require.NoError(t, mem.Set(ctx, "user-b", storedDoc(t, nil)))
	require.NoError(t, mem.Set(ctx, "user-c", []byte(`{"schemaVersion": "3.0.0"}`)))
	require.NoError(t, mem.Set(ctx, "user-d", []byte(`{broken`)))
	return mem
}

func TestMigrateAll(t *testing.T) {
	ctx := context.Background()
	mem := seedMigrations(t)
	before, err := mem.Get(ctx, "user-b")
	require.NoError(t, err)

	results, err := MigrateAll(ctx, mem, MigrateOptions{MaxWorkers: 2, Clock: newClock().Now})
	require.NoError(t, err)
	require.Len(t, results, 4)

	a, b, c, d := results[0], results[1], results[2], results[3]

	assert.Equal(t, "user-a", a.Key)
	require.NoError(t, a.Err)
	assert.Equal(t, "1.0.0", a.From)
	assert.Equal(t, CurrentVersion, a.To)
	assert.True(t, a.Written)
	assert.Len(t, a.Steps, 2)

	stored, err := mem.Get(ctx, "user-a")
	require.NoError(t, err)
	assert.Equal(t, CurrentVersion, gjson.GetBytes(stored, "schemaVersion").String())
	assert.Equal(t, "protanopia", gjson.GetBytes(stored, "sensory.colorVisionFilter").String())

	assert.Equal(t, "user-b", b.Key)
	require.NoError(t, b.Err)
	assert.False(t, b.Written, "an up to date document is left alone")
	after, err := mem.Get(ctx, "user-b")
	require.NoError(t, err)
	assert.Equal(t, before, after)

	assert.ErrorIs(t, c.Err, ErrUnsupportedVersion)
	assert.False(t, c.Written)

	assert.ErrorIs(t, d.Err, ErrParse)
	assert.False(t, d.Written)
}

func TestMigrateAll_DryRun(t *testing.T) {
	ctx := context.Background()
	mem := seedMigrations(t)

	results, err := MigrateAll(ctx, mem, MigrateOptions{DryRun: true})
	require.NoError(t, err)

	assert.Equal(t, "user-a", results[0].Key)
	assert.False(t, results[0].Written)
	assert.Len(t, results[0].Steps, 2)

	stored, err := mem.Get(ctx, "user-a")
	require.NoError(t, err)
	assert.Equal(t, legacyDoc, string(stored))
}

func TestMigrateAll_Preserved(t *testing.T) {
	ctx := context.Background()
	mem := storage.NewMemory()
	require.NoError(t, mem.Set(ctx, "k", storedDoc(t, func(m map[string]any) {
		m["theme"] = "dark"
	})))

	results, err := MigrateAll(ctx, mem, MigrateOptions{})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, []string{"theme"}, results[0].Preserved)
	assert.True(t, results[0].Written)

	stored, err := mem.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "dark", gjson.GetBytes(stored, "metadata.preserved.theme").String())
	assert.False(t, gjson.GetBytes(stored, "theme").Exists())
}

func TestMigrateAll_KeysError(t *testing.T) {
	_, err := MigrateAll(context.Background(), keysFailingStorage{storage.NewMemory()}, MigrateOptions{})
	assert.ErrorIs(t, err, ErrStorage)
}

func TestMigrateAll_Canceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := MigrateAll(ctx, seedMigrations(t), MigrateOptions{})
	assert.Error(t, err)
}
