package spdb

// options.go implements database configuration options.

import (
	"fmt"
	"math"
	"reflect"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/aalhour/spdb/internal/compression"
	"github.com/aalhour/spdb/internal/engine"
	"github.com/aalhour/spdb/internal/logging"
)

// Logger is an alias for the logging.Logger interface.
// This allows users to pass their own logger implementation.
type Logger = logging.Logger

// CompressionType is an alias for the journal compression type.
type CompressionType = compression.Type

// Compression type constants.
const (
	CompressionNone   = compression.NoCompression
	CompressionSnappy = compression.SnappyCompression
	CompressionLZ4    = compression.LZ4Compression
	CompressionZstd   = compression.ZstdCompression
)

// Order selects the direction and start bound of a range scan.
type Order = engine.Order

// Scan orders.
const (
	OrderGTE = engine.GTE
	OrderGT  = engine.GT
	OrderLTE = engine.LTE
	OrderLT  = engine.LT
)

// Option identifies an engine setting changed with DB.Configure.
type Option int

const (
	// OptComparator installs a CompareFunc, or resets to the default
	// ordering when the value is nil.
	OptComparator Option = iota + 1
	// OptPageSize takes a uint32.
	OptPageSize
	// OptMergeWatermark takes a uint32.
	OptMergeWatermark
	// OptGC takes a bool.
	OptGC
	// OptMerge takes a bool.
	OptMerge
	// OptGCFactor takes a float64.
	OptGCFactor
	// OptGrow takes a uint32 new size and a float64 resize factor.
	OptGrow
)

// String returns the string representation of the option.
func (o Option) String() string {
	switch o {
	case OptComparator:
		return "comparator"
	case OptPageSize:
		return "page-size"
	case OptMergeWatermark:
		return "merge-watermark"
	case OptGC:
		return "gc"
	case OptMerge:
		return "merge"
	case OptGCFactor:
		return "gc-factor"
	case OptGrow:
		return "grow"
	default:
		return fmt.Sprintf("Option(%d)", int(o))
	}
}

// Backend selects the storage engine behind a DB.
type Backend int

const (
	// BackendJournal is the log-structured journal engine (default).
	BackendJournal Backend = iota
	// BackendBolt stores records in a bbolt B+tree file. It only supports
	// the default key ordering.
	BackendBolt
)

// String returns the string representation of the backend.
func (b Backend) String() string {
	switch b {
	case BackendJournal:
		return "journal"
	case BackendBolt:
		return "bolt"
	default:
		return fmt.Sprintf("Backend(%d)", int(b))
	}
}

// Options configures a DB at construction time. Engine settings that can
// change between opens go through DB.Configure instead.
type Options struct {
	// Backend selects the storage engine.
	Backend Backend

	// Logger receives diagnostics. Nil means WARN-level logging to stderr.
	Logger Logger

	// Compression is the journal record compression. Ignored by BackendBolt.
	Compression CompressionType

	// Sync forces an fsync after every committed write.
	Sync bool

	// OnComparatorFailure, if set, is called synchronously for every custom
	// comparator failure, from inside the engine call that triggered it.
	OnComparatorFailure func(err error)

	// Registerer, if set, receives the DB's metrics collector.
	Registerer prometheus.Registerer
}

// DefaultOptions returns the default options.
func DefaultOptions() *Options {
	return &Options{
		Backend:     BackendJournal,
		Compression: CompressionSnappy,
	}
}

// ScanOptions configures a cursor. The zero value scans every key in
// ascending order.
type ScanOptions struct {
	// Start is the scan bound. Nil or empty scans from the open end implied
	// by Order.
	Start []byte

	// Order is the scan order. The default is OrderGTE.
	Order Order
}

func toUint32(opt Option, v any) (uint32, error) {
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		n := rv.Int()
		if n < 0 || n > math.MaxUint32 {
			return 0, invalidOption("%s: value %d is out of bound", opt, n)
		}
		return uint32(n), nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		n := rv.Uint()
		if n > math.MaxUint32 {
			return 0, invalidOption("%s: value %d is out of bound", opt, n)
		}
		return uint32(n), nil
	default:
		return 0, invalidOption("%s: expected an unsigned 32-bit integer, got %T", opt, v)
	}
}

func toFloat64(opt Option, v any) (float64, error) {
	var f float64
	switch x := v.(type) {
	case float64:
		f = x
	case float32:
		f = float64(x)
	default:
		return 0, invalidOption("%s: expected a float, got %T", opt, v)
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, invalidOption("%s: value %v is not finite", opt, f)
	}
	return f, nil
}

func toBool(opt Option, v any) (bool, error) {
	b, ok := v.(bool)
	if !ok {
		return false, invalidOption("%s: expected a bool, got %T", opt, v)
	}
	return b, nil
}

func toCompareFunc(v any) (CompareFunc, error) {
	switch fn := v.(type) {
	case nil:
		return nil, nil
	case CompareFunc:
		return fn, nil
	case func(a, b []byte) (int, error):
		return fn, nil
	default:
		return nil, invalidOption("%s: expected either a CompareFunc or nil, got %T", OptComparator, v)
	}
}
