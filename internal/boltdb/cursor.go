package boltdb

// cursor.go implements paged range cursors.
//
// A bbolt read transaction held across calls would block the writer when
// it has to grow the memory map, so a cursor never keeps one open: it reads
// a page of records per transaction and resumes after the last key it saw.

import (
	"bytes"
	"errors"

	bolt "go.etcd.io/bbolt"

	"github.com/aalhour/spdb/internal/engine"
	"github.com/aalhour/spdb/internal/logging"
)

type record struct {
	key, value []byte
}

// Cursor implements engine.Cursor.
type Cursor struct {
	db    *DB
	order engine.Order
	start []byte

	page    []record
	pos     int
	last    []byte // key of the last record read, the resume point
	drained bool   // the last page reached the end of the range
	err     error  // a page read failed

	done      bool
	destroyed bool
}

var _ engine.Cursor = (*Cursor)(nil)

// Fetch implements engine.Cursor.
func (c *Cursor) Fetch() bool {
	if c.done || c.destroyed || c.err != nil {
		c.done = true
		return false
	}
	c.pos++
	if c.pos < len(c.page) {
		return true
	}
	if c.drained {
		c.done = true
		c.page = nil
		return false
	}
	if err := c.fill(); err != nil {
		// A positioned cursor without a key tells the caller the scan broke.
		c.err = err
		c.page = nil
		c.db.env.logger.Errorf(logging.NSBolt+"cursor page read failed: %v", err)
		return true
	}
	if len(c.page) == 0 {
		c.done = true
		c.page = nil
		return false
	}
	return true
}

// fill reads the next page.
func (c *Cursor) fill() error {
	c.page = c.page[:0]
	c.pos = 0
	return c.db.view(func(b *bolt.Bucket) error {
		if b == nil {
			c.drained = true
			return nil
		}
		bc := b.Cursor()
		k, v := c.first(bc)
		for ; k != nil && len(c.page) < c.db.batchSize; k, v = c.next(bc) {
			c.page = append(c.page, record{
				key:   append([]byte{}, k...),
				value: append([]byte{}, v...),
			})
		}
		if k == nil {
			c.drained = true
		}
		if n := len(c.page); n > 0 {
			c.last = c.page[n-1].key
		}
		return nil
	})
}

// first positions bc at the first record of the next page.
func (c *Cursor) first(bc *bolt.Cursor) ([]byte, []byte) {
	asc := c.order.Ascending()
	if c.last != nil {
		if asc {
			return seekAfter(bc, c.last)
		}
		return seekBefore(bc, c.last)
	}
	switch {
	case c.start == nil && asc:
		return bc.First()
	case c.start == nil:
		return bc.Last()
	case c.order == engine.GTE:
		return bc.Seek(c.start)
	case c.order == engine.GT:
		return seekAfter(bc, c.start)
	case c.order == engine.LTE:
		if k, v := bc.Seek(c.start); k != nil && bytes.Equal(k, c.start) {
			return k, v
		}
		return seekBefore(bc, c.start)
	default:
		return seekBefore(bc, c.start)
	}
}

func (c *Cursor) next(bc *bolt.Cursor) ([]byte, []byte) {
	if c.order.Ascending() {
		return bc.Next()
	}
	return bc.Prev()
}

// seekAfter positions at the first key > key.
func seekAfter(bc *bolt.Cursor, key []byte) ([]byte, []byte) {
	k, v := bc.Seek(key)
	if k != nil && bytes.Equal(k, key) {
		return bc.Next()
	}
	return k, v
}

// seekBefore positions at the last key < key.
func seekBefore(bc *bolt.Cursor, key []byte) ([]byte, []byte) {
	if k, _ := bc.Seek(key); k == nil {
		return bc.Last()
	}
	return bc.Prev()
}

// Key implements engine.Cursor.
func (c *Cursor) Key() []byte {
	if c.done || c.pos >= len(c.page) {
		return nil
	}
	return c.page[c.pos].key
}

// Value implements engine.Cursor.
func (c *Cursor) Value() []byte {
	if c.done || c.pos >= len(c.page) {
		return nil
	}
	return c.page[c.pos].value
}

// Destroy implements engine.Cursor.
func (c *Cursor) Destroy() error {
	if c.destroyed {
		return errors.New("cursor already destroyed")
	}
	c.destroyed = true
	c.page = nil
	c.db.cursors--
	return nil
}
