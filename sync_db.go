package spdb

// sync_db.go implements a mutex-guarded DB for use from several goroutines.

import (
	"sync"

	"go.uber.org/multierr"
)

// SyncDB serializes access to a DB. Scans hold the lock for the whole
// traversal, so a cursor is never interleaved with writes from another
// goroutine.
type SyncDB struct {
	mu sync.Mutex
	db *DB
}

// NewSyncDB wraps db. The caller must not use db directly afterwards.
func NewSyncDB(db *DB) *SyncDB {
	return &SyncDB{db: db}
}

// Do runs fn with exclusive access to the DB. Use it for sequences of
// calls that must not interleave, or to drive an ObjectDB built on the same
// DB.
func (s *SyncDB) Do(fn func(db *DB) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return fn(s.db)
}

// Open opens the database at path; see DB.Open.
func (s *SyncDB) Open(path string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.Open(path)
}

// Close closes the database; see DB.Close.
func (s *SyncDB) Close() (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.Close()
}

// Destroy releases the database and its environment; see DB.Destroy.
func (s *SyncDB) Destroy() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.Destroy()
}

// IsClosed reports whether no database is open.
func (s *SyncDB) IsClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.IsClosed()
}

// Get returns the value stored under key, or ErrNotFound.
func (s *SyncDB) Get(key []byte) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.Get(key)
}

// GetOr returns the value stored under key, or def.
func (s *SyncDB) GetOr(key, def []byte) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.GetOr(key, def)
}

// Contains reports whether key exists.
func (s *SyncDB) Contains(key []byte) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.Contains(key)
}

// Set stores value under key.
func (s *SyncDB) Set(key, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.Set(key, value)
}

// Delete removes key.
func (s *SyncDB) Delete(key []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.Delete(key)
}

// Count returns the number of records.
func (s *SyncDB) Count() (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.Count()
}

// Update runs fn inside a transaction, committing when it returns nil and
// rolling back otherwise.
func (s *SyncDB) Update(fn func(db *DB) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.db.Begin(); err != nil {
		return err
	}
	if err := fn(s.db); err != nil {
		return multierr.Append(err, s.db.Rollback())
	}
	return s.db.Commit()
}

// Scan calls fn for each record in the range until it returns false.
func (s *SyncDB) Scan(opts *ScanOptions, fn func(key, value []byte) bool) (err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, err := s.db.Items(opts)
	if err != nil {
		return err
	}
	defer func() {
		err = multierr.Append(err, c.Close())
	}()
	for c.Next() {
		if !fn(c.Key(), c.Value()) {
			return nil
		}
	}
	return c.Err()
}
