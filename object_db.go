package spdb

// object_db.go implements a typed view over a DB.

import (
	"errors"
	"fmt"

	"go.uber.org/multierr"
)

// ObjectDB stores typed keys and values in a DB through codecs.
//
// It shares the DB's lifecycle: opening, closing and destroying go through
// the DB returned by DB().
type ObjectDB[K, V any] struct {
	db     *DB
	keys   Codec[K]
	values Codec[V]
}

// NewObjectDB wraps db. Nil codecs default to GobCodec.
func NewObjectDB[K, V any](db *DB, keys Codec[K], values Codec[V]) *ObjectDB[K, V] {
	if keys == nil {
		keys = GobCodec[K]{}
	}
	if values == nil {
		values = GobCodec[V]{}
	}
	return &ObjectDB[K, V]{db: db, keys: keys, values: values}
}

// DB returns the underlying database.
func (o *ObjectDB[K, V]) DB() *DB {
	return o.db
}

func (o *ObjectDB[K, V]) encodeKey(k K) ([]byte, error) {
	b, err := o.keys.Encode(k)
	if err != nil {
		return nil, fmt.Errorf("spdb: encode key: %w", err)
	}
	return b, nil
}

// Get returns the value stored under k, or ErrNotFound.
func (o *ObjectDB[K, V]) Get(k K) (V, error) {
	var zero V
	kb, err := o.encodeKey(k)
	if err != nil {
		return zero, err
	}
	vb, err := o.db.Get(kb)
	if err != nil {
		return zero, err
	}
	v, err := o.values.Decode(vb)
	if err != nil {
		return zero, fmt.Errorf("spdb: decode value: %w", err)
	}
	return v, nil
}

// GetOr returns the value stored under k, or def when there is none.
func (o *ObjectDB[K, V]) GetOr(k K, def V) (V, error) {
	v, err := o.Get(k)
	if errors.Is(err, ErrNotFound) {
		return def, nil
	}
	return v, err
}

// Contains reports whether k exists.
func (o *ObjectDB[K, V]) Contains(k K) (bool, error) {
	kb, err := o.encodeKey(k)
	if err != nil {
		return false, err
	}
	return o.db.Contains(kb)
}

// Set stores v under k.
func (o *ObjectDB[K, V]) Set(k K, v V) error {
	kb, err := o.encodeKey(k)
	if err != nil {
		return err
	}
	vb, err := o.values.Encode(v)
	if err != nil {
		return fmt.Errorf("spdb: encode value: %w", err)
	}
	return o.db.Set(kb, vb)
}

// Delete removes k.
func (o *ObjectDB[K, V]) Delete(k K) error {
	kb, err := o.encodeKey(k)
	if err != nil {
		return err
	}
	return o.db.Delete(kb)
}

// Keys opens a cursor over keys. A nil start scans from the open end.
func (o *ObjectDB[K, V]) Keys(order Order, start *K) (*ObjectCursor[K, V], error) {
	return o.scan(cursorKeys, order, start)
}

// Values opens a cursor over values.
func (o *ObjectDB[K, V]) Values(order Order, start *K) (*ObjectCursor[K, V], error) {
	return o.scan(cursorValues, order, start)
}

// Items opens a cursor over key/value pairs.
func (o *ObjectDB[K, V]) Items(order Order, start *K) (*ObjectCursor[K, V], error) {
	return o.scan(cursorItems, order, start)
}

func (o *ObjectDB[K, V]) scan(kind cursorKind, order Order, start *K) (*ObjectCursor[K, V], error) {
	opts := &ScanOptions{Order: order}
	if start != nil {
		kb, err := o.encodeKey(*start)
		if err != nil {
			return nil, err
		}
		opts.Start = kb
	}
	c, err := o.db.newCursor(kind, opts)
	if err != nil {
		return nil, err
	}
	return &ObjectCursor[K, V]{c: c, o: o}, nil
}

// ObjectCursor decodes the records of a Cursor.
type ObjectCursor[K, V any] struct {
	c     *Cursor
	o     *ObjectDB[K, V]
	key   K
	value V
	err   error
}

// Next advances to the next record. A record that fails to decode ends
// iteration; see Err.
func (oc *ObjectCursor[K, V]) Next() bool {
	var zk K
	var zv V
	oc.key, oc.value = zk, zv
	if oc.err != nil || !oc.c.Next() {
		return false
	}
	var err error
	if oc.c.kind != cursorValues {
		if oc.key, err = oc.o.keys.Decode(oc.c.Key()); err != nil {
			oc.fail(fmt.Errorf("spdb: decode key: %w", err))
			return false
		}
	}
	if oc.c.kind != cursorKeys {
		if oc.value, err = oc.o.values.Decode(oc.c.Value()); err != nil {
			oc.fail(fmt.Errorf("spdb: decode value: %w", err))
			return false
		}
	}
	return true
}

func (oc *ObjectCursor[K, V]) fail(err error) {
	var zk K
	oc.key = zk
	oc.err = multierr.Append(err, oc.c.Close())
}

// Key returns the current key.
func (oc *ObjectCursor[K, V]) Key() K {
	return oc.key
}

// Value returns the current value.
func (oc *ObjectCursor[K, V]) Value() V {
	return oc.value
}

// Err returns the error that ended iteration, if any.
func (oc *ObjectCursor[K, V]) Err() error {
	if oc.err != nil {
		return oc.err
	}
	return oc.c.Err()
}

// Close releases the cursor.
func (oc *ObjectCursor[K, V]) Close() error {
	return oc.c.Close()
}
