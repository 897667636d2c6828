// benchmark_test.go implements benchmarks for the handle layer.
package spdb

import (
	"fmt"
	"math/rand"
	"testing"

	"github.com/aalhour/spdb/internal/logging"
)

// =============================================================================
// DB Benchmarks
// =============================================================================

func openBenchDB(b *testing.B, backend Backend) *DB {
	b.Helper()
	db, err := New(&Options{Backend: backend, Compression: CompressionSnappy, Logger: logging.Discard})
	if err != nil {
		b.Fatalf("New() error = %v", err)
	}
	if _, err := db.Open(b.TempDir()); err != nil {
		b.Fatalf("Open() error = %v", err)
	}
	b.Cleanup(func() { _ = db.Destroy() })
	return db
}

func BenchmarkDBSetSequential(b *testing.B) {
	for _, backend := range []Backend{BackendJournal, BackendBolt} {
		b.Run(backend.String(), func(b *testing.B) {
			db := openBenchDB(b, backend)
			value := make([]byte, 100)
			for i := range value {
				value[i] = byte(i % 256)
			}

			b.ResetTimer()
			for i := range b.N {
				key := fmt.Appendf(nil, "key%016d", i)
				if err := db.Set(key, value); err != nil {
					b.Fatalf("Set error: %v", err)
				}
			}
		})
	}
}

func BenchmarkDBSetRandom(b *testing.B) {
	db := openBenchDB(b, BackendJournal)
	value := make([]byte, 100)
	rng := rand.New(rand.NewSource(42))

	b.ResetTimer()
	for b.Loop() {
		key := fmt.Appendf(nil, "key%016d", rng.Int63())
		if err := db.Set(key, value); err != nil {
			b.Fatalf("Set error: %v", err)
		}
	}
}

func BenchmarkDBGet(b *testing.B) {
	db := openBenchDB(b, BackendJournal)
	const numKeys = 10000
	for i := range numKeys {
		if err := db.Set(fmt.Appendf(nil, "key%08d", i), []byte("value")); err != nil {
			b.Fatalf("Set error: %v", err)
		}
	}
	rng := rand.New(rand.NewSource(42))

	b.ResetTimer()
	for b.Loop() {
		if _, err := db.Get(fmt.Appendf(nil, "key%08d", rng.Intn(numKeys))); err != nil {
			b.Fatalf("Get error: %v", err)
		}
	}
}

func BenchmarkCursorScan(b *testing.B) {
	db := openBenchDB(b, BackendJournal)
	const numKeys = 1000
	for i := range numKeys {
		if err := db.Set(fmt.Appendf(nil, "key%08d", i), []byte("value")); err != nil {
			b.Fatalf("Set error: %v", err)
		}
	}

	b.ResetTimer()
	for b.Loop() {
		c, err := db.Items(nil)
		if err != nil {
			b.Fatalf("Items error: %v", err)
		}
		n := 0
		for c.Next() {
			n++
		}
		if n != numKeys {
			b.Fatalf("scanned %d keys, want %d", n, numKeys)
		}
	}
}

func BenchmarkCustomComparator(b *testing.B) {
	db, err := New(&Options{Logger: logging.Discard})
	if err != nil {
		b.Fatal(err)
	}
	b.Cleanup(func() { _ = db.Destroy() })
	if err := db.InstallComparator(func(x, y []byte) (int, error) { return DefaultCompare(x, y), nil }); err != nil {
		b.Fatal(err)
	}
	if _, err := db.Open(b.TempDir()); err != nil {
		b.Fatal(err)
	}
	value := []byte("value")

	b.ResetTimer()
	for i := range b.N {
		if err := db.Set(fmt.Appendf(nil, "key%016d", i), value); err != nil {
			b.Fatalf("Set error: %v", err)
		}
	}
}
