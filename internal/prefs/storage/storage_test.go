package storage

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// runConformance exercises the Adapter contract every backend must honor.
func runConformance(t *testing.T, newAdapter func(t *testing.T) Adapter) {
	t.Helper()
	ctx := context.Background()

	t.Run("get missing key", func(t *testing.T) {
		a := newAdapter(t)
		v, err := a.Get(ctx, "absent")
		require.NoError(t, err)
		assert.Nil(t, v)
	})

	t.Run("set then get", func(t *testing.T) {
		a := newAdapter(t)
		require.NoError(t, a.Set(ctx, "k", []byte(`{"a":1}`)))
		v, err := a.Get(ctx, "k")
		require.NoError(t, err)
		assert.Equal(t, []byte(`{"a":1}`), v)
	})

	t.Run("set overwrites", func(t *testing.T) {
		a := newAdapter(t)
		require.NoError(t, a.Set(ctx, "k", []byte("one")))
		require.NoError(t, a.Set(ctx, "k", []byte("two")))
		v, err := a.Get(ctx, "k")
		require.NoError(t, err)
		assert.Equal(t, []byte("two"), v)
	})

	t.Run("empty key rejected", func(t *testing.T) {
		a := newAdapter(t)
		err := a.Set(ctx, "", []byte("x"))
		assert.ErrorIs(t, err, ErrInvalidKey)
	})

	t.Run("remove", func(t *testing.T) {
		a := newAdapter(t)
		require.NoError(t, a.Set(ctx, "k", []byte("v")))
		require.NoError(t, a.Remove(ctx, "k"))
		v, err := a.Get(ctx, "k")
		require.NoError(t, err)
		assert.Nil(t, v)

		assert.NoError(t, a.Remove(ctx, "k"), "removing an absent key is not an error")
	})

	t.Run("keys are sorted", func(t *testing.T) {
		a := newAdapter(t)
		for _, k := range []string{"user/b", "alpha", "user/a"} {
			require.NoError(t, a.Set(ctx, k, []byte("{}")))
		}
		keys, err := a.Keys(ctx)
		require.NoError(t, err)
		assert.Equal(t, []string{"alpha", "user/a", "user/b"}, keys)
	})

	t.Run("clear", func(t *testing.T) {
		a := newAdapter(t)
		require.NoError(t, a.Set(ctx, "a", []byte("1")))
		require.NoError(t, a.Set(ctx, "b", []byte("2")))
		require.NoError(t, a.Clear(ctx))

		keys, err := a.Keys(ctx)
		require.NoError(t, err)
		assert.Empty(t, keys)
	})

	t.Run("stored value is not aliased", func(t *testing.T) {
		a := newAdapter(t)
		in := []byte("abc")
		require.NoError(t, a.Set(ctx, "k", in))
		in[0] = 'X'

		out, err := a.Get(ctx, "k")
		require.NoError(t, err)
		assert.Equal(t, []byte("abc"), out)
	})
}

func TestMemory_Conformance(t *testing.T) {
	runConformance(t, func(t *testing.T) Adapter {
		return NewMemory()
	})
}

func TestMemory_CanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	m := NewMemory()
	_, err := m.Get(ctx, "k")
	assert.ErrorIs(t, err, context.Canceled)
	assert.ErrorIs(t, m.Set(ctx, "k", nil), context.Canceled)
}

func TestFile_Conformance(t *testing.T) {
	runConformance(t, func(t *testing.T) Adapter {
		f, err := NewFile(t.TempDir())
		require.NoError(t, err)
		return f
	})
}

func TestFile_KeyEscaping(t *testing.T) {
	dir := t.TempDir()
	f, err := NewFile(dir)
	require.NoError(t, err)

	require.NoError(t, f.Set(context.Background(), "user/42", []byte("{}")))

	_, err = os.Stat(filepath.Join(dir, "user%2F42.json"))
	require.NoError(t, err)

	key, ok := f.KeyFor(filepath.Join(dir, "user%2F42.json"))
	assert.True(t, ok)
	assert.Equal(t, "user/42", key)
}

func TestFile_IgnoresForeignFiles(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	f, err := NewFile(dir)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".hidden.json"), []byte("x"), 0o600))
	require.NoError(t, f.Set(ctx, "prefs", []byte("{}")))

	keys, err := f.Keys(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"prefs"}, keys)

	require.NoError(t, f.Clear(ctx))
	_, err = os.Stat(filepath.Join(dir, "notes.txt"))
	assert.NoError(t, err, "Clear must leave files it does not own")
}

func TestFile_RequiresDir(t *testing.T) {
	_, err := NewFile("")
	assert.Error(t, err)
}

func TestBadger_Conformance(t *testing.T) {
	runConformance(t, func(t *testing.T) Adapter {
		b, err := NewBadger(BadgerConfig{InMemory: true})
		require.NoError(t, err)
		t.Cleanup(func() { _ = b.Close() })
		return b
	})
}

func TestBadger_PrefixIsolation(t *testing.T) {
	ctx := context.Background()
	owner, err := NewBadger(BadgerConfig{InMemory: true})
	require.NoError(t, err)
	defer owner.Close()

	other := NewBadgerWithDB(owner.db, "other/")
	require.NoError(t, owner.Set(ctx, "k", []byte("mine")))
	require.NoError(t, other.Set(ctx, "k", []byte("theirs")))

	require.NoError(t, owner.Clear(ctx))

	v, err := other.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, []byte("theirs"), v)

	keys, err := owner.Keys(ctx)
	require.NoError(t, err)
	assert.Empty(t, keys)

	assert.NoError(t, other.Close(), "wrapped database is not closed")
}

func TestBadger_RequiresPath(t *testing.T) {
	_, err := NewBadger(BadgerConfig{})
	assert.Error(t, err)
}

func TestSQLite_Conformance(t *testing.T) {
	runConformance(t, func(t *testing.T) Adapter {
		s, err := NewSQLite(context.Background(), filepath.Join(t.TempDir(), "prefs.db"))
		require.NoError(t, err)
		t.Cleanup(func() { _ = s.Close() })
		return s
	})
}

func TestSQLite_Persists(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "nested", "prefs.db")

	s, err := NewSQLite(ctx, path)
	require.NoError(t, err)
	require.NoError(t, s.Set(ctx, "k", []byte("v")))
	require.NoError(t, s.Close())

	s, err = NewSQLite(ctx, path)
	require.NoError(t, err)
	defer s.Close()

	v, err := s.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, []byte("v"), v)
}

func TestSQLite_QueryErrors(t *testing.T) {
	ctx := context.Background()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS preferences").WillReturnResult(sqlmock.NewResult(0, 0))
	s, err := NewSQLiteWithDB(ctx, db)
	require.NoError(t, err)

	boom := errors.New("disk I/O error")

	mock.ExpectQuery("SELECT data FROM preferences").WithArgs("k").WillReturnError(boom)
	_, err = s.Get(ctx, "k")
	assert.ErrorIs(t, err, boom)

	mock.ExpectExec("INSERT INTO preferences").
		WithArgs("k", []byte("v"), sqlmock.AnyArg()).
		WillReturnError(boom)
	assert.ErrorIs(t, s.Set(ctx, "k", []byte("v")), boom)

	mock.ExpectQuery("SELECT name FROM preferences").WillReturnError(boom)
	_, err = s.Keys(ctx)
	assert.ErrorIs(t, err, boom)

	assert.NoError(t, s.Close(), "wrapped database is not closed")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLite_GetMissingRow(t *testing.T) {
	ctx := context.Background()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS preferences").WillReturnResult(sqlmock.NewResult(0, 0))
	s, err := NewSQLiteWithDB(ctx, db)
	require.NoError(t, err)

	mock.ExpectQuery("SELECT data FROM preferences").
		WithArgs("absent").
		WillReturnRows(sqlmock.NewRows([]string{"data"}))

	v, err := s.Get(ctx, "absent")
	require.NoError(t, err)
	assert.Nil(t, v)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLite_SchemaError(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS preferences").WillReturnError(errors.New("read-only database"))
	_, err = NewSQLiteWithDB(context.Background(), db)
	assert.Error(t, err)
}

func newMiniredis(t *testing.T) *miniredis.Miniredis {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)
	return mr
}

func TestRedis_Conformance(t *testing.T) {
	runConformance(t, func(t *testing.T) Adapter {
		mr := newMiniredis(t)
		r, err := NewRedis(context.Background(), RedisConfig{URL: "redis://" + mr.Addr()})
		require.NoError(t, err)
		t.Cleanup(func() { _ = r.Close() })
		return r
	})
}

func TestRedis_PrefixIsolation(t *testing.T) {
	ctx := context.Background()
	mr := newMiniredis(t)
	require.NoError(t, mr.Set("unrelated", "keep"))

	r, err := NewRedis(ctx, RedisConfig{URL: "redis://" + mr.Addr(), Prefix: "test:"})
	require.NoError(t, err)
	defer r.Close()

	require.NoError(t, r.Set(ctx, "k", []byte("v")))
	assert.True(t, mr.Exists("test:k"))

	require.NoError(t, r.Clear(ctx))
	assert.False(t, mr.Exists("test:k"))
	assert.True(t, mr.Exists("unrelated"))
}

func TestRedis_ServerDown(t *testing.T) {
	ctx := context.Background()
	mr := newMiniredis(t)

	r, err := NewRedis(ctx, RedisConfig{URL: "redis://" + mr.Addr()})
	require.NoError(t, err)
	defer r.Close()

	mr.SetError("ERR backend unavailable")
	_, err = r.Get(ctx, "k")
	assert.Error(t, err)
}

func TestRedis_BadURL(t *testing.T) {
	_, err := NewRedis(context.Background(), RedisConfig{URL: "not a url"})
	assert.Error(t, err)
}

func TestOpen(t *testing.T) {
	ctx := context.Background()

	a, err := Open(ctx, Options{})
	require.NoError(t, err)
	assert.IsType(t, &Memory{}, a)
	assert.NoError(t, Close(a))

	a, err = Open(ctx, Options{Backend: BackendFile, Path: t.TempDir()})
	require.NoError(t, err)
	assert.IsType(t, &File{}, a)

	a, err = Open(ctx, Options{Backend: "SQLITE", Path: filepath.Join(t.TempDir(), "p.db")})
	require.NoError(t, err)
	assert.IsType(t, &SQLite{}, a)
	assert.NoError(t, Close(a))

	_, err = Open(ctx, Options{Backend: "etcd"})
	assert.Error(t, err)
}
