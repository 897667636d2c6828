package logdb

// cursor.go implements range cursors over the table.
//
// Inside a transaction a cursor merges the transaction's buffered writes over
// the table, so scans agree with Get. Buffered deletes hide table records.

import (
	"errors"

	"github.com/aalhour/spdb/internal/engine"
	"github.com/aalhour/spdb/internal/memtable"
)

// Cursor walks the table in one direction, skipping tombstones. It sees
// writes made while it is open. It implements engine.Cursor.
type Cursor struct {
	db    *DB
	it    *memtable.Iterator
	cmp   engine.Comparator
	order engine.Order
	start []byte
	bound bool

	key     []byte // current key, owned by the cursor
	value   []byte
	last    []byte // key of the previous position
	fromMem bool   // the current position is the table iterator's

	started   bool
	done      bool
	destroyed bool
}

var _ engine.Cursor = (*Cursor)(nil)

// Fetch implements engine.Cursor.
func (c *Cursor) Fetch() bool {
	if c.done || c.destroyed {
		return false
	}
	if !c.started {
		c.started = true
		c.position()
	} else if c.fromMem {
		c.step()
	}
	for c.it.Valid() && (c.it.Deleted() || c.db.txnDeleted(c.it.Key())) {
		c.step()
	}

	tk, tv, tok := c.nextBuffered()
	switch {
	case !c.it.Valid() && !tok:
		c.done = true
		c.key, c.value = nil, nil
		return false
	case c.it.Valid() && (!tok || c.ahead(c.it.Key(), tk) <= 0):
		c.fromMem = true
		c.key = clone(c.it.Key())
		c.value = c.it.Value()
		if e, ok := c.db.txnView[string(c.key)]; ok {
			c.value = e.value
		}
	default:
		c.fromMem = false
		c.key, c.value = tk, tv
	}
	c.last = c.key
	return true
}

// ahead compares a and b in scan direction.
func (c *Cursor) ahead(a, b []byte) int {
	if c.order.Ascending() {
		return c.cmp.Compare(a, b)
	}
	return c.cmp.Compare(b, a)
}

// inRange reports whether a buffered key lies past the previous position,
// or within the start bound before the first one.
func (c *Cursor) inRange(k []byte) bool {
	if c.last != nil {
		return c.ahead(k, c.last) > 0
	}
	if !c.bound {
		return true
	}
	d := c.ahead(k, c.start)
	if c.order.Inclusive() {
		return d >= 0
	}
	return d > 0
}

// nextBuffered returns the nearest live transaction write in range.
func (c *Cursor) nextBuffered() ([]byte, []byte, bool) {
	var key, value []byte
	for k, e := range c.db.txnView {
		if e.deleted {
			continue
		}
		kb := []byte(k)
		if !c.inRange(kb) {
			continue
		}
		if key == nil || c.ahead(kb, key) < 0 {
			key, value = kb, e.value
		}
	}
	return key, value, key != nil
}

func (c *Cursor) position() {
	asc := c.order.Ascending()
	switch {
	case !c.bound && asc:
		c.it.SeekToFirst()
		return
	case !c.bound:
		c.it.SeekToLast()
		return
	case asc:
		c.it.Seek(c.start)
	default:
		c.it.SeekForPrev(c.start)
	}
	if !c.order.Inclusive() && c.it.Valid() && c.cmp.Compare(c.it.Key(), c.start) == 0 {
		c.step()
	}
}

func (c *Cursor) step() {
	if c.order.Ascending() {
		c.it.Next()
	} else {
		c.it.Prev()
	}
}

// Key implements engine.Cursor.
func (c *Cursor) Key() []byte {
	if c.done || !c.started {
		return nil
	}
	return c.key
}

// Value implements engine.Cursor.
func (c *Cursor) Value() []byte {
	if c.done || !c.started {
		return nil
	}
	return c.value
}

// Destroy implements engine.Cursor.
func (c *Cursor) Destroy() error {
	if c.destroyed {
		return errors.New("cursor already destroyed")
	}
	c.destroyed = true
	c.db.cursors--
	if c.db.cursors == 0 {
		c.db.maintain()
	}
	return nil
}
