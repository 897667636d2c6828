package logdb

// db.go implements the open database handle.

import (
	"errors"
	"fmt"
	"io"

	"github.com/aalhour/spdb/internal/batch"
	"github.com/aalhour/spdb/internal/engine"
	"github.com/aalhour/spdb/internal/logging"
	"github.com/aalhour/spdb/internal/memtable"
)

var (
	errReadOnly   = errors.New("database is open read-only")
	errEmptyValue = errors.New("value is empty")
)

// txnEntry is a write buffered by an open transaction.
type txnEntry struct {
	value   []byte
	deleted bool
}

// DB is an open journal database. It implements engine.DB.
type DB struct {
	env    *Env
	dir    string
	set    settings
	logger logging.Logger
	lock   io.Closer

	mem      *memtable.Memtable
	journal  *journal
	seq      uint64
	pending  uint32 // journaled ops since the last merge
	capacity uint32 // key count the table is sized for
	readOnly bool

	txn     *batch.WriteBatch
	txnView map[string]txnEntry

	cursors   int
	bgErr     error
	destroyed bool
}

var _ engine.DB = (*DB)(nil)

func checkKey(key []byte) error {
	if len(key) == 0 {
		return errors.New("key is empty")
	}
	if len(key) > MaxKeySize {
		return fmt.Errorf("key of %d bytes exceeds the %d byte limit", len(key), MaxKeySize)
	}
	return nil
}

// Get implements engine.DB. Inside a transaction it sees the
// transaction's own writes.
func (db *DB) Get(key []byte) ([]byte, bool, error) {
	if db.destroyed {
		return nil, false, errDBDestroyed
	}
	if err := checkKey(key); err != nil {
		return nil, false, err
	}
	if e, ok := db.txnView[string(key)]; ok {
		if e.deleted {
			return nil, false, nil
		}
		return clone(e.value), true, nil
	}
	v, ok := db.mem.Get(key)
	if !ok {
		return nil, false, nil
	}
	return clone(v), true, nil
}

// txnDeleted reports whether the open transaction deletes key.
func (db *DB) txnDeleted(key []byte) bool {
	e, ok := db.txnView[string(key)]
	return ok && e.deleted
}

// Set implements engine.DB.
func (db *DB) Set(key, value []byte) error {
	if err := db.writable(key); err != nil {
		return err
	}
	if len(value) == 0 {
		return errEmptyValue
	}
	if db.txn != nil {
		db.txn.Put(key, value)
		db.txnView[string(key)] = txnEntry{value: clone(value)}
		return nil
	}
	wb := batch.New()
	wb.Put(key, value)
	return db.write(wb)
}

// Delete implements engine.DB.
func (db *DB) Delete(key []byte) error {
	if err := db.writable(key); err != nil {
		return err
	}
	if db.txn != nil {
		db.txn.Delete(key)
		db.txnView[string(key)] = txnEntry{deleted: true}
		return nil
	}
	wb := batch.New()
	wb.Delete(key)
	return db.write(wb)
}

func (db *DB) writable(key []byte) error {
	switch {
	case db.destroyed:
		return errDBDestroyed
	case db.readOnly:
		return errReadOnly
	case db.bgErr != nil:
		return db.bgErr
	}
	return checkKey(key)
}

// Begin implements engine.DB.
func (db *DB) Begin() error {
	switch {
	case db.destroyed:
		return errDBDestroyed
	case db.readOnly:
		return errReadOnly
	case db.txn != nil:
		return errors.New("transaction already in progress")
	}
	db.txn = batch.New()
	db.txnView = make(map[string]txnEntry)
	return nil
}

// Commit implements engine.DB. The transaction is one journal record.
func (db *DB) Commit() error {
	if db.destroyed {
		return errDBDestroyed
	}
	if db.txn == nil {
		return errors.New("no transaction in progress")
	}
	if db.bgErr != nil {
		return db.bgErr
	}
	if db.txn.Count() > 0 {
		// A failed commit leaves the transaction open for Rollback.
		if err := db.write(db.txn); err != nil {
			return err
		}
	}
	db.txn, db.txnView = nil, nil
	return nil
}

// Rollback implements engine.DB.
func (db *DB) Rollback() error {
	if db.destroyed {
		return errDBDestroyed
	}
	if db.txn == nil {
		return errors.New("no transaction in progress")
	}
	db.txn, db.txnView = nil, nil
	return nil
}

// write journals wb and applies it to the table.
func (db *DB) write(wb *batch.WriteBatch) error {
	wb.SetSequence(db.seq + 1)
	if err := db.journal.append(wb.Data()); err != nil {
		db.logger.Fatalf(logging.NSJournal+"%s: append batch %d: %v", db.dir, wb.Sequence(), err)
		db.bgErr = fmt.Errorf("%w: journal write failed: %v", logging.ErrFatal, err)
		return db.bgErr
	}
	db.seq++
	if err := wb.Iterate(tableWriter{mem: db.mem}); err != nil {
		// The batch was built in memory; it cannot be malformed.
		panic(fmt.Sprintf("logdb: apply batch %d: %v", wb.Sequence(), err))
	}
	db.pending += wb.Count()
	db.maintain()
	return nil
}

// maintain grows the table, purges tombstones and merges the journal when
// their thresholds are reached. It never runs under open cursors, which
// walk the current table in place.
func (db *DB) maintain() {
	if db.cursors > 0 || db.destroyed {
		return
	}

	live, dead := db.mem.Len(), db.mem.Tombstones()
	switch {
	case uint64(live) > uint64(db.capacity):
		grown := uint64(float64(db.capacity) * db.set.growResize)
		db.capacity = uint32(min(max(grown, uint64(live)+1), uint64(^uint32(0))))
		db.mem = db.mem.Compact(memtable.HeightFor(db.capacity))
		db.logger.Debugf(logging.NSMerge+"%s: table grown to %d keys", db.dir, db.capacity)
	case db.set.gc && dead > 0 && float64(dead)/float64(live+dead) >= db.set.gcFactor:
		db.mem = db.mem.Compact(memtable.HeightFor(db.capacity))
		db.logger.Debugf(logging.NSMerge+"%s: purged %d deleted keys", db.dir, dead)
	}

	if db.set.merge && db.pending >= db.set.mergeWatermark && db.bgErr == nil {
		if err := db.mergeJournal(); err != nil {
			db.logger.Errorf(logging.NSMerge+"%s: merge failed: %v", db.dir, err)
		}
	}
}

// mergeJournal writes the table to a new snapshot and empties the journal.
func (db *DB) mergeJournal() error {
	if err := writeSnapshot(db.env.fs, db.dir, db.mem, db.seq, db.env.cfg.Compression); err != nil {
		return err
	}
	// Replay skips batches at or below the snapshot sequence.
	if err := db.journal.reset(); err != nil {
		return err
	}
	db.logger.Infof(logging.NSMerge+"%s: merged %d operations, %d keys at sequence %d", db.dir, db.pending, db.mem.Len(), db.seq)
	db.pending = 0
	return nil
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
	return &Cursor{
		db:    db,
		it:    db.mem.NewIterator(),
		cmp:   db.set.cmp,
		order: order,
		start: clone(start),
		bound: len(start) > 0,
	}, nil
}

// Destroy implements engine.DB. An open transaction is rolled back.
func (db *DB) Destroy() error {
	if db.destroyed {
		return errDBDestroyed
	}
	if db.cursors > 0 {
		return fmt.Errorf("database has %d open cursors", db.cursors)
	}
	db.txn, db.txnView = nil, nil

	var err error
	if db.journal != nil {
		err = db.journal.close()
	}
	if lerr := db.lock.Close(); err == nil {
		err = lerr
	}
	db.destroyed = true
	db.env.db = nil
	if err != nil {
		return fmt.Errorf("close: %w", err)
	}
	return nil
}
