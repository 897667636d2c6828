package spdb

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/aalhour/spdb/internal/engine/enginetest"
)

func fillTestDB(t *testing.T, db *DB, keys ...string) {
	t.Helper()
	for _, k := range keys {
		require.NoError(t, db.Set([]byte(k), []byte("v"+k)))
	}
}

func TestCursorOrders(t *testing.T) {
	db, _ := openTestDB(t, nil)
	fillTestDB(t, db, "a", "b", "c", "d")

	tests := []struct {
		name string
		opts *ScanOptions
		want []string
	}{
		{"default", nil, []string{"a", "b", "c", "d"}},
		{"gte unbounded", &ScanOptions{Order: OrderGTE}, []string{"a", "b", "c", "d"}},
		{"gt unbounded", &ScanOptions{Order: OrderGT}, []string{"a", "b", "c", "d"}},
		{"lte unbounded", &ScanOptions{Order: OrderLTE}, []string{"d", "c", "b", "a"}},
		{"lt unbounded", &ScanOptions{Order: OrderLT}, []string{"d", "c", "b", "a"}},
		{"gte", &ScanOptions{Start: []byte("b"), Order: OrderGTE}, []string{"b", "c", "d"}},
		{"gt", &ScanOptions{Start: []byte("b"), Order: OrderGT}, []string{"c", "d"}},
		{"lte", &ScanOptions{Start: []byte("c"), Order: OrderLTE}, []string{"c", "b", "a"}},
		{"lt", &ScanOptions{Start: []byte("c"), Order: OrderLT}, []string{"b", "a"}},
		{"gte between keys", &ScanOptions{Start: []byte("bb"), Order: OrderGTE}, []string{"c", "d"}},
		{"gt past end", &ScanOptions{Start: []byte("z"), Order: OrderGT}, nil},
		{"lt before start", &ScanOptions{Start: []byte("a"), Order: OrderLT}, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, scanKeys(t, db, tt.opts))
			require.Zero(t, db.Stats().ActiveCursors)
		})
	}
}

func TestCursorKinds(t *testing.T) {
	db, _ := openTestDB(t, nil)
	fillTestDB(t, db, "a", "b")

	keys, err := db.Keys(nil)
	require.NoError(t, err)
	require.True(t, keys.Next())
	require.Equal(t, []byte("a"), keys.Key())
	require.Nil(t, keys.Value())
	require.NoError(t, keys.Close())

	values, err := db.Values(nil)
	require.NoError(t, err)
	require.True(t, values.Next())
	require.Nil(t, values.Key())
	require.Equal(t, []byte("va"), values.Value())
	require.NoError(t, values.Close())

	items, err := db.Items(&ScanOptions{Start: []byte("b")})
	require.NoError(t, err)
	require.True(t, items.Next())
	require.Equal(t, []byte("b"), items.Key())
	require.Equal(t, []byte("vb"), items.Value())
	require.Equal(t, OrderGTE, items.Order())
	require.Equal(t, []byte("b"), items.Start())
	require.NoError(t, items.Close())
}

func TestCursorRejectsUnknownOrder(t *testing.T) {
	db, env := openTestDB(t, nil)
	_, err := db.Items(&ScanOptions{Order: Order(9)})
	require.ErrorIs(t, err, ErrInvalidOption)
	require.Zero(t, env.Count(enginetest.EventCursorOpen))
}

func TestCursorExhaustionIsIdempotent(t *testing.T) {
	db, env := openTestDB(t, nil)
	fillTestDB(t, db, "a")

	c, err := db.Items(nil)
	require.NoError(t, err)
	require.True(t, c.Next())
	require.False(t, c.Next())
	require.True(t, c.Done())
	require.Nil(t, c.Key())
	for range 3 {
		require.False(t, c.Next())
	}
	require.NoError(t, c.Close())
	require.NoError(t, c.Err())
	require.Equal(t, 1, env.Count(enginetest.EventCursorDestroy))
	require.Zero(t, env.OpenCursors())

	st := db.Stats()
	require.EqualValues(t, 1, st.CursorsOpened)
	require.EqualValues(t, 1, st.CursorsClosed)
	require.Zero(t, st.ActiveCursors)
}

func TestDeferredClose(t *testing.T) {
	db, env := openTestDB(t, nil)
	fillTestDB(t, db, "a", "b")

	c, err := db.Keys(nil)
	require.NoError(t, err)
	require.True(t, c.Next())

	ok, err := db.Close()
	require.NoError(t, err)
	require.False(t, ok, "close with an attached cursor must be deferred")
	require.True(t, db.ClosePending())
	require.True(t, db.IsOpen())

	_, err = db.Keys(nil)
	require.ErrorIs(t, err, ErrClosed)

	v, err := db.Get([]byte("b"))
	require.NoError(t, err)
	require.Equal(t, []byte("vb"), v)

	ok, err = db.Open("other")
	require.NoError(t, err)
	require.False(t, ok)

	require.True(t, c.Next())
	require.Equal(t, []byte("b"), c.Key())
	require.Zero(t, env.Count(enginetest.EventDBDestroy))

	require.False(t, c.Next())
	require.NoError(t, c.Err())
	require.True(t, db.IsClosed())
	require.False(t, db.ClosePending())
	require.Equal(t, 1, env.Count(enginetest.EventDBDestroy))

	require.NoError(t, c.Close())
	require.False(t, c.Next())
	require.Equal(t, 1, env.Count(enginetest.EventDBDestroy))

	st := db.Stats()
	require.EqualValues(t, 1, st.DeferredCloses)
	require.EqualValues(t, 1, st.DeferredCompleted)
}

func TestRepeatedDeferredRequestsCountOnce(t *testing.T) {
	db, _ := openTestDB(t, nil)
	fillTestDB(t, db, "a")

	c, err := db.Keys(nil)
	require.NoError(t, err)
	for range 2 {
		ok, err := db.Close()
		require.NoError(t, err)
		require.False(t, ok)
	}
	require.NoError(t, db.Destroy())
	require.NoError(t, c.Close())

	st := db.Stats()
	require.EqualValues(t, 1, st.DeferredCloses)
	require.EqualValues(t, 1, st.DeferredCompleted)

	// A failed close clears the pending marker, so a new request counts again.
	db2, env := openTestDB(t, nil)
	fillTestDB(t, db2, "a")
	c, err = db2.Keys(nil)
	require.NoError(t, err)
	ok, err := db2.Close()
	require.NoError(t, err)
	require.False(t, ok)
	env.Inject(enginetest.FaultDBDestroy, "busy")
	require.Error(t, c.Close())
	env.Clear(enginetest.FaultDBDestroy)

	c, err = db2.Keys(nil)
	require.NoError(t, err)
	ok, err = db2.Close()
	require.NoError(t, err)
	require.False(t, ok)
	require.NoError(t, c.Close())
	require.True(t, db2.IsClosed())
	require.EqualValues(t, 2, db2.Stats().DeferredCloses)
	require.EqualValues(t, 1, db2.Stats().DeferredCompleted)
}

func TestDeferredCloseWaitsForLastCursor(t *testing.T) {
	db, env := openTestDB(t, nil)
	fillTestDB(t, db, "a")

	c1, err := db.Keys(nil)
	require.NoError(t, err)
	c2, err := db.Values(nil)
	require.NoError(t, err)
	require.EqualValues(t, 2, db.Stats().ActiveCursors)

	ok, err := db.Close()
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, c1.Close())
	require.True(t, db.ClosePending())
	require.Zero(t, env.Count(enginetest.EventDBDestroy))

	require.NoError(t, c2.Close())
	require.True(t, db.IsClosed())
	require.Equal(t, []enginetest.Event{
		enginetest.EventOpen,
		enginetest.EventCursorOpen,
		enginetest.EventCursorOpen,
		enginetest.EventCursorDestroy,
		enginetest.EventCursorDestroy,
		enginetest.EventDBDestroy,
	}, env.Events())
}

func TestReopenAfterDeferredClose(t *testing.T) {
	db, _ := openTestDB(t, nil)
	fillTestDB(t, db, "a")

	c, err := db.Keys(nil)
	require.NoError(t, err)
	ok, err := db.Close()
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, c.Close())
	ok, err = db.Open("test")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, []string{"a"}, scanKeys(t, db, nil))
}

func TestCursorProtocolViolation(t *testing.T) {
	tests := []struct {
		name          string
		keys, values  bool
		kind          func(db *DB) (*Cursor, error)
		wantViolation bool
	}{
		{"empty key on keys", true, false, func(db *DB) (*Cursor, error) { return db.Keys(nil) }, true},
		{"empty value on items", false, true, func(db *DB) (*Cursor, error) { return db.Items(nil) }, true},
		{"empty key ignored on values", true, false, func(db *DB) (*Cursor, error) { return db.Values(nil) }, false},
		{"empty value ignored on keys", false, true, func(db *DB) (*Cursor, error) { return db.Keys(nil) }, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db, env := openTestDB(t, nil)
			fillTestDB(t, db, "a")
			env.CorruptCursors(tt.keys, tt.values)

			c, err := tt.kind(db)
			require.NoError(t, err)
			got := c.Next()
			if !tt.wantViolation {
				require.True(t, got)
				require.NoError(t, c.Close())
				return
			}
			require.False(t, got)
			require.EqualError(t, c.Err(), "cursor failed")
			require.ErrorIs(t, c.Err(), ErrProtocolViolation)
			require.True(t, c.Done())
			require.Zero(t, env.OpenCursors())
			require.Zero(t, db.Stats().ActiveCursors)
		})
	}
}

func TestProtocolViolationCompletesDeferredClose(t *testing.T) {
	db, env := openTestDB(t, nil)
	fillTestDB(t, db, "a")
	env.CorruptCursors(false, true)
	c, err := db.Items(nil)
	require.NoError(t, err)

	ok, err := db.Close()
	require.NoError(t, err)
	require.False(t, ok)

	require.False(t, c.Next())
	require.ErrorIs(t, c.Err(), ErrProtocolViolation)
	require.True(t, db.IsClosed())
	require.Equal(t, 1, env.Count(enginetest.EventDBDestroy))
}

func TestCursorAllBreakCloses(t *testing.T) {
	db, env := openTestDB(t, nil)
	fillTestDB(t, db, "a", "b", "c")

	c, err := db.Items(nil)
	require.NoError(t, err)
	var seen []string
	for k, v := range c.All() {
		seen = append(seen, string(k)+"="+string(v))
		if len(seen) == 2 {
			break
		}
	}
	require.Equal(t, []string{"a=va", "b=vb"}, seen)
	require.True(t, c.Done())
	require.NoError(t, c.Err())
	require.Zero(t, env.OpenCursors())
}

func TestCursorAllRunsToEnd(t *testing.T) {
	db, _ := openTestDB(t, nil)
	fillTestDB(t, db, "a", "b")

	c, err := db.Keys(&ScanOptions{Order: OrderLTE})
	require.NoError(t, err)
	var keys []string
	for k := range c.All() {
		keys = append(keys, string(k))
	}
	require.Equal(t, []string{"b", "a"}, keys)
	require.True(t, c.Done())
}

func TestDeferredDestroy(t *testing.T) {
	db, env := openTestDB(t, nil)
	fillTestDB(t, db, "a")

	c, err := db.Keys(nil)
	require.NoError(t, err)
	require.NoError(t, db.Destroy())
	require.False(t, env.Destroyed())

	_, err = db.Get([]byte("a"))
	require.ErrorIs(t, err, ErrDestroyed)

	require.True(t, c.Next())
	require.False(t, c.Next())
	require.NoError(t, c.Err())
	require.True(t, env.Destroyed())
	require.Equal(t, []enginetest.Event{
		enginetest.EventOpen,
		enginetest.EventCursorOpen,
		enginetest.EventCursorDestroy,
		enginetest.EventDBDestroy,
		enginetest.EventEnvDestroy,
	}, env.Events())
}

func TestDeferredDestroyFailure(t *testing.T) {
	db, env := openTestDB(t, nil)
	fillTestDB(t, db, "a")

	c, err := db.Keys(nil)
	require.NoError(t, err)
	require.NoError(t, db.Destroy())

	env.Inject(enginetest.FaultDBDestroy, "disk on fire")
	err = c.Close()
	require.EqualError(t, err, "disk on fire")
	require.True(t, c.Done())
	require.False(t, env.Destroyed())
	require.False(t, db.ClosePending())

	env.Clear(enginetest.FaultDBDestroy)
	require.NoError(t, db.Destroy())
	require.True(t, env.Destroyed())
	require.True(t, db.IsClosed())
}
