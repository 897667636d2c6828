// Package engine defines the opaque handle API that spdb consumes from an
// embedded ordered key/value storage engine.
//
// The contract mirrors a classic C engine surface: an environment is created,
// configured and then opened into a database handle; cursors are opened on a
// database handle; every handle is destroyed explicitly, exactly once, by its
// owner. Engines report failures as errors whose message is the engine's own
// diagnostic text, which callers surface verbatim.
//
// Handles are not safe for concurrent use.
package engine

import "bytes"

// Order selects the direction and start bound of a range scan.
type Order uint8

const (
	// GTE scans ascending from the first key >= start.
	GTE Order = iota
	// GT scans ascending from the first key > start.
	GT
	// LTE scans descending from the last key <= start.
	LTE
	// LT scans descending from the last key < start.
	LT
)

// String returns the conventional operator spelling of the order.
func (o Order) String() string {
	switch o {
	case GTE:
		return ">="
	case GT:
		return ">"
	case LTE:
		return "<="
	case LT:
		return "<"
	default:
		return "invalid"
	}
}

// Valid reports whether o is one of the four defined orders.
func (o Order) Valid() bool {
	return o <= LT
}

// Ascending reports whether a scan in this order walks keys upwards.
func (o Order) Ascending() bool {
	return o == GT || o == GTE
}

// Inclusive reports whether a key equal to the start key is part of the scan.
func (o Order) Inclusive() bool {
	return o == GTE || o == LTE
}

// OpenFlags control how an environment opens its directory.
type OpenFlags uint8

const (
	// Create creates the directory when it does not exist.
	Create OpenFlags = 1 << iota
	// ReadWrite opens the database for writing.
	ReadWrite
)

// Comparator orders keys inside an engine. Compare must be a total order and
// must never fail: engines call it from their internal sort paths.
type Comparator interface {
	Compare(a, b []byte) int
	Name() string
}

// DefaultComparatorName identifies DefaultComparator. Engines that cannot
// honour arbitrary orderings accept only comparators with this name.
const DefaultComparatorName = "spdb.BytewiseLengthComparator"

// DefaultComparator compares the common prefix bytewise and, when it is
// equal, orders the shorter key first.
type DefaultComparator struct{}

// Compare implements Comparator.
func (DefaultComparator) Compare(a, b []byte) int {
	n := min(len(a), len(b))
	if c := bytes.Compare(a[:n], b[:n]); c != 0 {
		return c
	}
	switch {
	case len(a) == len(b):
		return 0
	case len(a) < len(b):
		return -1
	default:
		return 1
	}
}

// Name implements Comparator.
func (DefaultComparator) Name() string {
	return DefaultComparatorName
}

// Env is an engine environment. Configuration applies to the next Open.
type Env interface {
	SetDir(path string, flags OpenFlags) error
	SetComparator(cmp Comparator) error
	SetPageSize(size uint32) error
	SetMergeWatermark(wm uint32) error
	SetGC(enabled bool) error
	SetMerge(enabled bool) error
	SetGCFactor(factor float64) error
	SetGrow(newSize uint32, resize float64) error

	// Open opens the configured database. An environment owns at most one
	// open database at a time.
	Open() (DB, error)

	// Destroy releases the environment. The database must be destroyed first.
	Destroy() error
}

// DB is an open database handle.
type DB interface {
	// Get returns the value stored under key. found is false on a miss.
	Get(key []byte) (value []byte, found bool, err error)
	Set(key, value []byte) error
	Delete(key []byte) error

	Begin() error
	Commit() error
	Rollback() error

	// Cursor opens a range scan. A nil start scans from the open end implied
	// by order.
	Cursor(order Order, start []byte) (Cursor, error)

	// Destroy closes the database. It fails while engine cursors are open.
	Destroy() error
}

// Cursor is an engine-side range iterator.
type Cursor interface {
	// Fetch advances to the next record and reports whether one exists.
	Fetch() bool
	Key() []byte
	Value() []byte
	Destroy() error
}
