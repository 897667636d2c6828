package spdb

// comparator.go implements the bridge between user key orderings and the
// engine's comparator slot.
//
// The bridge never fails. A custom function that panics or returns an error
// is answered with the default ordering for that comparison, and the failure
// is reported out of band.

import (
	"fmt"

	"github.com/aalhour/spdb/internal/engine"
)

// CompareFunc is a user-supplied key ordering. It returns a negative number
// if a < b, zero if a == b and a positive number if a > b. Returning an error
// means the function could not order the keys.
type CompareFunc func(a, b []byte) (int, error)

// CustomComparatorName is the engine-visible name of a custom ordering.
const CustomComparatorName = "spdb.CustomComparator"

// DefaultCompare is the default ordering: the common prefix is compared
// bytewise and, when it is equal, the shorter key sorts first.
func DefaultCompare(a, b []byte) int {
	return engine.DefaultComparator{}.Compare(a, b)
}

type comparatorBridge struct {
	fn     CompareFunc
	report func(*ComparatorError)
}

// newComparatorBridge returns a bridge in default mode.
func newComparatorBridge(report func(*ComparatorError)) *comparatorBridge {
	return &comparatorBridge{report: report}
}

// install swaps the custom function. A nil fn resets to default mode and
// drops the reference to the previous function.
func (b *comparatorBridge) install(fn CompareFunc) {
	b.fn = fn
}

func (b *comparatorBridge) custom() bool {
	return b.fn != nil
}

// engineComparator returns what the engine should be configured with.
func (b *comparatorBridge) engineComparator() engine.Comparator {
	if b.fn == nil {
		return engine.DefaultComparator{}
	}
	return b
}

// Compare implements engine.Comparator.
func (b *comparatorBridge) Compare(x, y []byte) int {
	fn := b.fn
	if fn == nil {
		return DefaultCompare(x, y)
	}
	c, cerr := b.call(fn, x, y)
	if cerr != nil {
		if b.report != nil {
			b.report(cerr)
		}
		return DefaultCompare(x, y)
	}
	switch {
	case c < 0:
		return -1
	case c > 0:
		return 1
	default:
		return 0
	}
}

// Name implements engine.Comparator.
func (b *comparatorBridge) Name() string {
	if b.fn == nil {
		return engine.DefaultComparatorName
	}
	return CustomComparatorName
}

func (b *comparatorBridge) call(fn CompareFunc, x, y []byte) (c int, cerr *ComparatorError) {
	defer func() {
		if r := recover(); r != nil {
			err, ok := r.(error)
			if !ok {
				err = fmt.Errorf("%v", r)
			}
			cerr = &ComparatorError{Kind: ComparatorPanicked, Err: err}
		}
	}()
	// The callback gets its own copies so it cannot scribble on engine memory.
	c, err := fn(append([]byte(nil), x...), append([]byte(nil), y...))
	if err != nil {
		return 0, &ComparatorError{Kind: ComparatorGarbage, Err: err}
	}
	return c, nil
}
