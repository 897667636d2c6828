package spdb

import (
	"bytes"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/aalhour/spdb/internal/logging"
)

var backends = []struct {
	name string
	opts func() *Options
}{
	{"journal", func() *Options {
		return &Options{Backend: BackendJournal, Compression: CompressionSnappy, Logger: logging.Discard}
	}},
	{"journal-zstd", func() *Options {
		return &Options{Backend: BackendJournal, Compression: CompressionZstd, Sync: true, Logger: logging.Discard}
	}},
	{"bolt", func() *Options {
		return &Options{Backend: BackendBolt, Logger: logging.Discard}
	}},
}

func TestBackendRoundTrip(t *testing.T) {
	for _, be := range backends {
		t.Run(be.name, func(t *testing.T) {
			dir := filepath.Join(t.TempDir(), "db")
			db, err := New(be.opts())
			require.NoError(t, err)
			t.Cleanup(func() { _ = db.Destroy() })

			ok, err := db.Open(dir)
			require.NoError(t, err)
			require.True(t, ok)

			for i := range 200 {
				k := []byte(fmt.Sprintf("key-%04d", i))
				require.NoError(t, db.Set(k, bytes.Repeat(k, 3)))
			}
			require.NoError(t, db.Delete([]byte("key-0100")))

			ok, err = db.Close()
			require.NoError(t, err)
			require.True(t, ok)
			ok, err = db.Open(dir)
			require.NoError(t, err)
			require.True(t, ok)

			n, err := db.Count()
			require.NoError(t, err)
			require.EqualValues(t, 199, n)

			v, err := db.Get([]byte("key-0042"))
			require.NoError(t, err)
			require.Equal(t, bytes.Repeat([]byte("key-0042"), 3), v)
			_, err = db.Get([]byte("key-0100"))
			require.ErrorIs(t, err, ErrNotFound)

			keys := scanKeys(t, db, &ScanOptions{Start: []byte("key-0100"), Order: OrderLTE})
			require.Len(t, keys, 100)
			require.Equal(t, "key-0099", keys[0])
			require.Equal(t, "key-0000", keys[99])

			keys = scanKeys(t, db, &ScanOptions{Start: []byte("key-0197"), Order: OrderGT})
			require.Equal(t, []string{"key-0198", "key-0199"}, keys)
		})
	}
}

func TestBackendDeferredClose(t *testing.T) {
	for _, be := range backends {
		t.Run(be.name, func(t *testing.T) {
			dir := t.TempDir()
			db, err := New(be.opts())
			require.NoError(t, err)
			_, err = db.Open(dir)
			require.NoError(t, err)
			fillTestDB(t, db, "a", "b", "c")

			c, err := db.Items(nil)
			require.NoError(t, err)
			require.True(t, c.Next())

			ok, err := db.Close()
			require.NoError(t, err)
			require.False(t, ok)
			require.NoError(t, db.Set([]byte("d"), []byte("vd")))

			for c.Next() {
			}
			require.NoError(t, c.Err())
			require.True(t, db.IsClosed())

			require.NoError(t, db.Destroy())
		})
	}
}

func TestBackendTransactions(t *testing.T) {
	for _, be := range backends {
		t.Run(be.name, func(t *testing.T) {
			db, err := New(be.opts())
			require.NoError(t, err)
			_, err = db.Open(t.TempDir())
			require.NoError(t, err)
			t.Cleanup(func() { _ = db.Destroy() })

			require.NoError(t, db.Begin())
			require.NoError(t, db.Set([]byte("a"), []byte("1")))
			require.NoError(t, db.Rollback())
			_, err = db.Get([]byte("a"))
			require.ErrorIs(t, err, ErrNotFound)

			require.NoError(t, db.Begin())
			require.NoError(t, db.Set([]byte("a"), []byte("1")))
			require.NoError(t, db.Commit())
			v, err := db.Get([]byte("a"))
			require.NoError(t, err)
			require.Equal(t, []byte("1"), v)
		})
	}
}

func TestBackendScansSeeTransactionWrites(t *testing.T) {
	for _, be := range backends {
		t.Run(be.name, func(t *testing.T) {
			db, err := New(be.opts())
			require.NoError(t, err)
			_, err = db.Open(t.TempDir())
			require.NoError(t, err)
			t.Cleanup(func() { _ = db.Destroy() })
			fillTestDB(t, db, "b", "c")

			require.NoError(t, db.Begin())
			require.NoError(t, db.Set([]byte("a"), []byte("1")))
			require.NoError(t, db.Delete([]byte("c")))

			ok, err := db.Contains([]byte("a"))
			require.NoError(t, err)
			require.True(t, ok)
			n, err := db.Count()
			require.NoError(t, err)
			require.EqualValues(t, 2, n)
			require.Equal(t, []string{"a", "b"}, scanKeys(t, db, nil))
			require.Equal(t, []string{"b", "a"}, scanKeys(t, db, &ScanOptions{Order: OrderLTE}))

			require.NoError(t, db.Rollback())
			require.Equal(t, []string{"b", "c"}, scanKeys(t, db, nil))
		})
	}
}

func TestJournalCustomComparator(t *testing.T) {
	dir := t.TempDir()
	db, err := New(&Options{Logger: logging.Discard})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Destroy() })

	require.NoError(t, db.InstallComparator(func(a, b []byte) (int, error) {
		return bytes.Compare(b, a), nil
	}))
	_, err = db.Open(dir)
	require.NoError(t, err)
	fillTestDB(t, db, "a", "b", "c")
	require.Equal(t, []string{"c", "b", "a"}, scanKeys(t, db, nil))
	require.NoError(t, db.ComparatorErr())
}

func TestBoltRejectsCustomComparator(t *testing.T) {
	db, err := New(&Options{Backend: BackendBolt, Logger: logging.Discard})
	require.NoError(t, err)
	err = db.InstallComparator(func(a, b []byte) (int, error) { return bytes.Compare(a, b), nil })
	require.ErrorContains(t, err, "supports only")
	var engErr *EngineError
	require.ErrorAs(t, err, &engErr)

	require.NoError(t, db.InstallComparator(nil))
	require.NoError(t, db.Destroy())
}

func TestSecondHandleIsLockedOut(t *testing.T) {
	for _, be := range backends {
		t.Run(be.name, func(t *testing.T) {
			dir := t.TempDir()
			first, err := New(be.opts())
			require.NoError(t, err)
			_, err = first.Open(dir)
			require.NoError(t, err)
			t.Cleanup(func() { _ = first.Destroy() })

			second, err := New(be.opts())
			require.NoError(t, err)
			ok, err := second.Open(dir)
			require.Error(t, err)
			require.False(t, ok)
			require.True(t, second.IsClosed())
			require.NoError(t, second.Destroy())
		})
	}
}

func TestEmptyKeyIsEngineError(t *testing.T) {
	for _, be := range backends {
		t.Run(be.name, func(t *testing.T) {
			db, err := New(be.opts())
			require.NoError(t, err)
			_, err = db.Open(t.TempDir())
			require.NoError(t, err)
			t.Cleanup(func() { _ = db.Destroy() })

			var engErr *EngineError
			require.ErrorAs(t, db.Set(nil, []byte("v")), &engErr)
		})
	}
}
