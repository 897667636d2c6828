package boltdb

// db.go implements the open database handle.

import (
	"errors"
	"fmt"

	bolt "go.etcd.io/bbolt"

	"github.com/aalhour/spdb/internal/engine"
	"github.com/aalhour/spdb/internal/logging"
)

var errEmptyValue = errors.New("value is empty")

// DB is an open bbolt database. It implements engine.DB.
type DB struct {
	env       *Env
	bdb       *bolt.DB
	tx        *bolt.Tx // open write transaction, if any
	txFailed  bool     // the last commit failed; Rollback ends the transaction
	batchSize int

	cursors   int
	destroyed bool
}

var _ engine.DB = (*DB)(nil)

func bucket(tx *bolt.Tx) *bolt.Bucket {
	return tx.Bucket([]byte(BucketName))
}

// view runs fn against the open transaction or a fresh read transaction.
// fn gets a nil bucket when the file has none yet.
func (db *DB) view(fn func(b *bolt.Bucket) error) error {
	if db.tx != nil {
		return fn(bucket(db.tx))
	}
	return db.bdb.View(func(tx *bolt.Tx) error {
		return fn(bucket(tx))
	})
}

// update runs fn against the open transaction or its own write transaction.
func (db *DB) update(fn func(b *bolt.Bucket) error) error {
	if db.tx != nil {
		return fn(bucket(db.tx))
	}
	return db.bdb.Update(func(tx *bolt.Tx) error {
		return fn(bucket(tx))
	})
}

// Get implements engine.DB.
func (db *DB) Get(key []byte) (value []byte, found bool, err error) {
	if db.destroyed {
		return nil, false, errDBDestroyed
	}
	if len(key) == 0 {
		return nil, false, bolt.ErrKeyRequired
	}
	err = db.view(func(b *bolt.Bucket) error {
		if b == nil {
			return nil
		}
		if v := b.Get(key); v != nil {
			value = append([]byte{}, v...)
			found = true
		}
		return nil
	})
	return value, found, err
}

// Set implements engine.DB.
func (db *DB) Set(key, value []byte) error {
	if db.destroyed {
		return errDBDestroyed
	}
	if len(value) == 0 {
		return errEmptyValue
	}
	return db.update(func(b *bolt.Bucket) error {
		return b.Put(key, value)
	})
}

// Delete implements engine.DB.
func (db *DB) Delete(key []byte) error {
	if db.destroyed {
		return errDBDestroyed
	}
	return db.update(func(b *bolt.Bucket) error {
		return b.Delete(key)
	})
}

// Begin implements engine.DB. The transaction holds the bbolt writer lock
// until it ends.
func (db *DB) Begin() error {
	if db.destroyed {
		return errDBDestroyed
	}
	if db.tx != nil {
		return errors.New("transaction already in progress")
	}
	db.txFailed = false
	tx, err := db.bdb.Begin(true)
	if err != nil {
		return err
	}
	db.tx = tx
	return nil
}

// Commit implements engine.DB.
func (db *DB) Commit() error {
	if db.destroyed {
		return errDBDestroyed
	}
	if db.tx == nil {
		return errors.New("no transaction in progress")
	}
	tx := db.tx
	db.tx = nil
	// bbolt closes the transaction even when the commit fails.
	if err := tx.Commit(); err != nil {
		db.txFailed = true
		return err
	}
	return nil
}

// Rollback implements engine.DB.
func (db *DB) Rollback() error {
	if db.destroyed {
		return errDBDestroyed
	}
	if db.txFailed {
		db.txFailed = false
		return nil
	}
	if db.tx == nil {
		return errors.New("no transaction in progress")
	}
	tx := db.tx
	db.tx = nil
	return tx.Rollback()
}

// Cursor implements engine.DB.
func (db *DB) Cursor(order engine.Order, start []byte) (engine.Cursor, error) {
	if db.destroyed {
		return nil, errDBDestroyed
	}
	if !order.Valid() {
		return nil, fmt.Errorf("unknown cursor order %d", order)
	}
	db.cursors++
	c := &Cursor{db: db, order: order}
	if len(start) > 0 {
		c.start = append([]byte{}, start...)
	}
	return c, nil
}

// Destroy implements engine.DB. An open transaction is rolled back.
func (db *DB) Destroy() error {
	if db.destroyed {
		return errDBDestroyed
	}
	if db.cursors > 0 {
		return fmt.Errorf("database has %d open cursors", db.cursors)
	}
	if db.tx != nil {
		_ = db.tx.Rollback()
		db.tx = nil
	}
	db.destroyed = true
	db.env.db = nil
	path := db.bdb.Path()
	if err := db.bdb.Close(); err != nil {
		return err
	}
	db.env.logger.Debugf(logging.NSBolt+"closed %s", path)
	return nil
}
