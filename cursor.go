package spdb

// cursor.go implements range cursors.
//
// A cursor attaches to its DB when created and detaches exactly once: when
// it reaches the end of its range, when a fetch violates the engine
// protocol, or when it is closed. Detaching destroys the engine cursor first,
// then releases the DB's cursor slot (which may complete a pending close),
// and only then drops the cursor's reference to the DB (which may complete
// a pending Destroy).

import (
	"iter"

	"go.uber.org/multierr"

	"github.com/aalhour/spdb/internal/engine"
	"github.com/aalhour/spdb/internal/logging"
)

type cursorKind uint8

const (
	cursorKeys cursorKind = iota
	cursorValues
	cursorItems
)

func (k cursorKind) String() string {
	switch k {
	case cursorKeys:
		return "keys"
	case cursorValues:
		return "values"
	default:
		return "items"
	}
}

// Cursor is a forward-only, non-restartable iterator over a key range.
//
//	c, err := db.Items(nil)
//	if err != nil { ... }
//	defer c.Close()
//	for c.Next() {
//		use(c.Key(), c.Value())
//	}
//	if err := c.Err(); err != nil { ... }
//
// A cursor that is abandoned before its end must be closed, otherwise the
// DB it belongs to can never complete a deferred close.
type Cursor struct {
	db    *DB
	ec    engine.Cursor
	kind  cursorKind
	order Order
	start []byte

	key   []byte
	value []byte
	err   error
}

// Keys opens a cursor yielding keys.
func (db *DB) Keys(opts *ScanOptions) (*Cursor, error) {
	return db.newCursor(cursorKeys, opts)
}

// Values opens a cursor yielding values.
func (db *DB) Values(opts *ScanOptions) (*Cursor, error) {
	return db.newCursor(cursorValues, opts)
}

// Items opens a cursor yielding key/value pairs.
func (db *DB) Items(opts *ScanOptions) (*Cursor, error) {
	return db.newCursor(cursorItems, opts)
}

func (db *DB) newCursor(kind cursorKind, opts *ScanOptions) (*Cursor, error) {
	h, err := db.live()
	if err != nil {
		return nil, err
	}
	if db.lc.pending() {
		return nil, ErrClosed
	}
	var o ScanOptions
	if opts != nil {
		o = *opts
	}
	if !o.Order.Valid() {
		return nil, invalidOption("unknown scan order %d", o.Order)
	}
	var start []byte
	if len(o.Start) > 0 {
		start = append([]byte(nil), o.Start...)
	}

	ec, err := h.Cursor(o.Order, start)
	if err != nil {
		return nil, engineError("cursor", err)
	}
	if !db.lc.acquire() {
		// Unreachable: live() and pending() were checked above.
		_ = ec.Destroy()
		return nil, ErrClosed
	}
	db.stats.cursorsOpened.Add(1)
	db.logger.Debugf(logging.NSCursor+"open %s cursor order=%s, %d attached", kind, o.Order, db.lc.active)
	return &Cursor{
		db:    db,
		ec:    ec,
		kind:  kind,
		order: o.Order,
		start: start,
	}, nil
}

// Next advances to the next item and reports whether there is one. At the
// end of the range the cursor releases its engine resources immediately;
// further calls keep returning false.
func (c *Cursor) Next() bool {
	if c.ec == nil {
		return false
	}
	if !c.ec.Fetch() {
		c.key, c.value = nil, nil
		c.err = c.detach()
		return false
	}

	k, v := c.ec.Key(), c.ec.Value()
	if (c.kind != cursorValues && len(k) == 0) || (c.kind != cursorKeys && len(v) == 0) {
		c.key, c.value = nil, nil
		c.err = multierr.Append(errCursorFailed("next"), c.detach())
		return false
	}

	c.key, c.value = nil, nil
	if c.kind != cursorValues {
		c.key = append([]byte(nil), k...)
	}
	if c.kind != cursorKeys {
		c.value = append([]byte(nil), v...)
	}
	return true
}

// Key returns the current key. It is nil for value cursors.
func (c *Cursor) Key() []byte {
	return c.key
}

// Value returns the current value. It is nil for key cursors.
func (c *Cursor) Value() []byte {
	return c.value
}

// Err returns the error that ended iteration, if any.
func (c *Cursor) Err() error {
	return c.err
}

// Order returns the scan order.
func (c *Cursor) Order() Order {
	return c.order
}

// Start returns the scan bound, nil for an unbounded scan.
func (c *Cursor) Start() []byte {
	return c.start
}

// Done reports whether the cursor has released its engine resources.
func (c *Cursor) Done() bool {
	return c.ec == nil
}

// Close releases the cursor. Closing an exhausted or closed cursor is a
// no-op.
func (c *Cursor) Close() error {
	if c.ec == nil {
		return nil
	}
	c.key, c.value = nil, nil
	return c.detach()
}

// All returns an iterator over the remaining items. Breaking out of the
// loop closes the cursor. Check Err after the loop.
func (c *Cursor) All() iter.Seq2[[]byte, []byte] {
	return func(yield func([]byte, []byte) bool) {
		for c.Next() {
			if !yield(c.key, c.value) {
				if err := c.Close(); err != nil && c.err == nil {
					c.err = err
				}
				return
			}
		}
	}
}

// detach destroys the engine cursor, releases the DB's cursor slot and
// drops the reference to the DB, in that order.
func (c *Cursor) detach() error {
	var err error
	if derr := c.ec.Destroy(); derr != nil {
		err = engineError("cursor", derr)
	}
	c.ec = nil

	db := c.db
	err = multierr.Append(err, db.releaseCursor())
	c.db = nil
	return multierr.Append(err, db.teardownEnv())
}

// releaseCursor detaches one cursor and completes a pending close when it
// was the last one.
func (db *DB) releaseCursor() error {
	db.stats.cursorsClosed.Add(1)
	if !db.lc.release() {
		return nil
	}
	if err := db.destroyHandle("deferred close"); err != nil {
		return err
	}
	db.stats.deferredCompleted.Add(1)
	db.logger.Infof(logging.NSDB+"deferred close of %s completed", db.path)
	return nil
}
