package boltdb

import (
	"bytes"
	"fmt"
	"strings"
	"testing"

	"github.com/aalhour/spdb/internal/engine"
	"github.com/aalhour/spdb/internal/logging"
)

func newEnv(t *testing.T, dir string) *Env {
	t.Helper()
	env := NewEnv(Config{NoSync: true, Logger: logging.Discard})
	if err := env.SetDir(dir, engine.Create|engine.ReadWrite); err != nil {
		t.Fatalf("SetDir: %v", err)
	}
	return env
}

func openDB(t *testing.T, env *Env) *DB {
	t.Helper()
	h, err := env.Open()
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	return h.(*DB)
}

func closeAll(t *testing.T, env *Env, db *DB) {
	t.Helper()
	if err := db.Destroy(); err != nil {
		t.Fatalf("DB.Destroy: %v", err)
	}
	if err := env.Destroy(); err != nil {
		t.Fatalf("Env.Destroy: %v", err)
	}
}

func mustSet(t *testing.T, db *DB, kv ...string) {
	t.Helper()
	for i := 0; i < len(kv); i += 2 {
		if err := db.Set([]byte(kv[i]), []byte(kv[i+1])); err != nil {
			t.Fatalf("Set(%q): %v", kv[i], err)
		}
	}
}

func scan(t *testing.T, db *DB, order engine.Order, start string) []string {
	t.Helper()
	var s []byte
	if start != "" {
		s = []byte(start)
	}
	c, err := db.Cursor(order, s)
	if err != nil {
		t.Fatalf("Cursor: %v", err)
	}
	var out []string
	for c.Fetch() {
		out = append(out, string(c.Key())+"="+string(c.Value()))
	}
	if err := c.Destroy(); err != nil {
		t.Fatalf("Cursor.Destroy: %v", err)
	}
	return out
}

func TestReopenPreservesData(t *testing.T) {
	dir := t.TempDir()
	env := newEnv(t, dir)
	db := openDB(t, env)
	mustSet(t, db, "a", "1", "b", "2")
	if err := db.Delete([]byte("a")); err != nil {
		t.Fatal(err)
	}
	closeAll(t, env, db)

	env = newEnv(t, dir)
	db = openDB(t, env)
	defer closeAll(t, env, db)
	v, ok, err := db.Get([]byte("b"))
	if err != nil || !ok || string(v) != "2" {
		t.Fatalf("Get(b) = %q, %v, %v", v, ok, err)
	}
	if _, ok, _ := db.Get([]byte("a")); ok {
		t.Error("deleted key survived reopen")
	}
}

func TestCursorOrders(t *testing.T) {
	env := newEnv(t, t.TempDir())
	db := openDB(t, env)
	defer closeAll(t, env, db)
	mustSet(t, db, "a", "1", "b", "2", "c", "3")

	tests := []struct {
		order engine.Order
		start string
		want  string
	}{
		{engine.GTE, "", "[a=1 b=2 c=3]"},
		{engine.LT, "", "[c=3 b=2 a=1]"},
		{engine.GTE, "b", "[b=2 c=3]"},
		{engine.GT, "b", "[c=3]"},
		{engine.LTE, "b", "[b=2 a=1]"},
		{engine.LT, "b", "[a=1]"},
		{engine.LTE, "bb", "[b=2 a=1]"},
		{engine.GT, "c", "[]"},
		{engine.LTE, "0", "[]"},
	}
	for _, tt := range tests {
		if got := fmt.Sprint(scan(t, db, tt.order, tt.start)); got != tt.want {
			t.Errorf("scan(%s %q) = %s, want %s", tt.order, tt.start, got, tt.want)
		}
	}
}

func TestCursorPagesAcrossWrites(t *testing.T) {
	env := newEnv(t, t.TempDir())
	if err := env.SetPageSize(1024); err != nil {
		t.Fatal(err)
	}
	db := openDB(t, env)
	defer closeAll(t, env, db)

	const n = 100 // several pages of batchSize records
	for i := range n {
		mustSet(t, db, fmt.Sprintf("k%03d", i), "v")
	}

	for _, order := range []engine.Order{engine.GTE, engine.LTE} {
		c, err := db.Cursor(order, nil)
		if err != nil {
			t.Fatal(err)
		}
		var prev []byte
		count := 0
		for c.Fetch() {
			k := c.Key()
			if prev != nil {
				cmp := bytes.Compare(prev, k)
				if (order == engine.GTE && cmp >= 0) || (order == engine.LTE && cmp <= 0) {
					t.Fatalf("%s: %q then %q", order, prev, k)
				}
			}
			prev = append(prev[:0], k...)
			count++
			// Writes between fetches must not block on the cursor.
			mustSet(t, db, "zzz-written-during-scan", "x")
		}
		if err := c.Destroy(); err != nil {
			t.Fatal(err)
		}
		if count < n {
			t.Errorf("%s: visited %d keys, want at least %d", order, count, n)
		}
	}
}

func TestCursorPageReadFailure(t *testing.T) {
	env := newEnv(t, t.TempDir())
	db := openDB(t, env)
	defer closeAll(t, env, db)
	mustSet(t, db, "a", "1", "b", "2", "c", "3")

	db.batchSize = 1
	c, err := db.Cursor(engine.GTE, nil)
	if err != nil {
		t.Fatal(err)
	}
	if !c.Fetch() || string(c.Key()) != "a" {
		t.Fatalf("first Fetch key = %q", c.Key())
	}
	if err := db.bdb.Close(); err != nil {
		t.Fatal(err)
	}
	if !c.Fetch() {
		t.Fatal("failed page read reported as end of range")
	}
	if c.Key() != nil || c.Value() != nil {
		t.Errorf("failed page read yielded %q=%q", c.Key(), c.Value())
	}
	if c.Fetch() {
		t.Error("Fetch after a failed page read succeeded")
	}
	if err := c.Destroy(); err != nil {
		t.Fatal(err)
	}
}

func TestTransactions(t *testing.T) {
	env := newEnv(t, t.TempDir())
	db := openDB(t, env)
	defer closeAll(t, env, db)
	mustSet(t, db, "k", "old")

	if err := db.Begin(); err != nil {
		t.Fatal(err)
	}
	if err := db.Begin(); err == nil {
		t.Fatal("nested Begin succeeded")
	}
	mustSet(t, db, "k", "new")
	if v, _, _ := db.Get([]byte("k")); string(v) != "new" {
		t.Errorf("read-your-writes Get = %q", v)
	}
	if got := fmt.Sprint(scan(t, db, engine.GTE, "")); got != "[k=new]" {
		t.Errorf("cursor inside transaction = %s", got)
	}
	if err := db.Rollback(); err != nil {
		t.Fatal(err)
	}
	if v, _, _ := db.Get([]byte("k")); string(v) != "old" {
		t.Errorf("after rollback = %q", v)
	}

	if err := db.Begin(); err != nil {
		t.Fatal(err)
	}
	mustSet(t, db, "k", "committed")
	if err := db.Commit(); err != nil {
		t.Fatal(err)
	}
	if v, _, _ := db.Get([]byte("k")); string(v) != "committed" {
		t.Errorf("after commit = %q", v)
	}
	if err := db.Rollback(); err == nil {
		t.Error("Rollback without transaction succeeded")
	}
}

func TestOnlyDefaultComparator(t *testing.T) {
	env := newEnv(t, t.TempDir())
	if err := env.SetComparator(engine.DefaultComparator{}); err != nil {
		t.Fatalf("default comparator rejected: %v", err)
	}
	err := env.SetComparator(custom{})
	if err == nil || !strings.Contains(err.Error(), "supports only") {
		t.Fatalf("custom comparator err = %v", err)
	}
}

type custom struct{ engine.DefaultComparator }

func (custom) Name() string { return "test.Custom" }

func TestSetterValidation(t *testing.T) {
	env := NewEnv(Config{})
	if err := env.SetPageSize(1000); err == nil {
		t.Error("page size 1000 accepted")
	}
	if err := env.SetMergeWatermark(0); err == nil {
		t.Error("zero watermark accepted")
	}
	if err := env.SetGCFactor(2); err == nil {
		t.Error("gc factor 2 accepted")
	}
	if err := env.SetGrow(1, 1); err == nil {
		t.Error("resize 1 accepted")
	}
	if err := env.SetGrow(64, 2); err != nil {
		t.Errorf("SetGrow: %v", err)
	}
}

func TestDestroyRulesAndLock(t *testing.T) {
	dir := t.TempDir()
	env := newEnv(t, dir)
	db := openDB(t, env)

	other := newEnv(t, dir)
	if _, err := other.Open(); err == nil || !strings.Contains(err.Error(), "in use") {
		t.Fatalf("second handle err = %v", err)
	}

	c, err := db.Cursor(engine.GTE, nil)
	if err != nil {
		t.Fatal(err)
	}
	if err := db.Destroy(); err == nil {
		t.Fatal("Destroy with open cursor succeeded")
	}
	if err := env.Destroy(); err == nil {
		t.Fatal("env destroyed before its database")
	}
	if err := c.Destroy(); err != nil {
		t.Fatal(err)
	}
	closeAll(t, env, db)
	if _, _, err := db.Get([]byte("k")); err == nil {
		t.Error("Get on destroyed database succeeded")
	}
}

func TestEmptyKeyAndValueRejected(t *testing.T) {
	env := newEnv(t, t.TempDir())
	db := openDB(t, env)
	defer closeAll(t, env, db)
	if err := db.Set(nil, []byte("v")); err == nil {
		t.Error("empty key accepted")
	}
	if err := db.Set([]byte("k"), nil); err == nil {
		t.Error("empty value accepted")
	}
}
