package spdb

// db.go implements the database handle: open/close with deferred close,
// configuration, point operations and transactions.

import (
	"errors"
	"fmt"
	"sync"

	"github.com/aalhour/spdb/internal/boltdb"
	"github.com/aalhour/spdb/internal/engine"
	"github.com/aalhour/spdb/internal/logdb"
	"github.com/aalhour/spdb/internal/logging"
)

// DB is a handle on one engine environment and, while open, the database
// opened in it.
//
// A DB and its cursors are not safe for concurrent use; see SyncDB.
type DB struct {
	opts   *Options
	logger Logger

	env    engine.Env
	handle engine.DB
	path   string

	lc     lifecycle
	bridge *comparatorBridge
	inTxn  bool

	// cmpErr is the most recent comparator failure not yet observed.
	cmpErr     *ComparatorError
	cmpErrLock sync.Mutex

	stats *stats

	destroyRequested bool
	envDestroyed     bool
}

// New creates a DB with a fresh engine environment. The DB starts closed.
func New(opts *Options) (*DB, error) {
	if opts == nil {
		opts = DefaultOptions()
	}
	logger := logging.OrDefault(opts.Logger)

	var env engine.Env
	switch opts.Backend {
	case BackendJournal:
		env = logdb.NewEnv(logdb.Config{
			Compression: opts.Compression,
			Sync:        opts.Sync,
			Logger:      logger,
		})
	case BackendBolt:
		env = boltdb.NewEnv(boltdb.Config{
			NoSync: !opts.Sync,
			Logger: logger,
		})
	default:
		return nil, invalidOption("unknown backend %s", opts.Backend)
	}
	return newWithEnv(env, opts)
}

// newWithEnv wraps an existing environment. The DB owns env from here on.
func newWithEnv(env engine.Env, opts *Options) (*DB, error) {
	if opts == nil {
		opts = DefaultOptions()
	}
	db := &DB{
		opts:   opts,
		logger: logging.OrDefault(opts.Logger),
		env:    env,
		stats:  newStats(),
	}
	db.bridge = newComparatorBridge(db.reportComparatorFailure)
	if opts.Registerer != nil {
		if err := opts.Registerer.Register(db.stats); err != nil {
			return nil, fmt.Errorf("spdb: register metrics: %w", err)
		}
	}
	return db, nil
}

// Open opens (or reopens) the database stored at path, creating it when it
// does not exist.
//
// If the DB is already open it is closed first. When that close has to be
// deferred because cursors are still attached, Open returns false and opens
// nothing: the caller should release its cursors and call Open again.
func (db *DB) Open(path string) (bool, error) {
	if db.destroyRequested {
		return false, ErrDestroyed
	}
	if db.inTxn {
		return false, ErrTxnInProgress
	}

	switch db.requestClose("open") {
	case closeDeferred:
		return false, nil
	case closeNow:
		if err := db.destroyHandle("open"); err != nil {
			return false, err
		}
	}

	if err := db.env.SetDir(path, engine.Create|engine.ReadWrite); err != nil {
		return false, engineError("open", err)
	}
	if err := db.env.SetComparator(db.bridge.engineComparator()); err != nil {
		return false, engineError("open", err)
	}
	h, err := db.env.Open()
	if err != nil {
		db.logger.Errorf(logging.NSDB+"open %s: %v", path, err)
		return false, engineError("open", err)
	}

	db.handle = h
	db.path = path
	db.lc.opened()
	db.logger.Debugf(logging.NSDB+"opened %s (comparator %s)", path, db.bridge.Name())
	return true, nil
}

// Close closes the database. It returns false, with a nil error, when
// cursors are still attached: the close then completes automatically when
// the last cursor is closed or exhausted. Closing a closed DB returns true.
func (db *DB) Close() (bool, error) {
	if db.destroyRequested {
		return false, ErrDestroyed
	}
	if db.inTxn {
		return false, ErrTxnInProgress
	}
	switch db.requestClose("close") {
	case closeDeferred:
		return false, nil
	case closeNow:
		if err := db.destroyHandle("close"); err != nil {
			return false, err
		}
	}
	return true, nil
}

// IsClosed reports whether no database is open. A DB whose close is pending
// is still open.
func (db *DB) IsClosed() bool {
	return db.handle == nil
}

// IsOpen is the negation of IsClosed.
func (db *DB) IsOpen() bool {
	return db.handle != nil
}

// ClosePending reports whether a deferred close is waiting on cursors.
func (db *DB) ClosePending() bool {
	return db.lc.pending()
}

// Path returns the path passed to the last successful Open.
func (db *DB) Path() string {
	return db.path
}

// Destroy closes the database and releases the engine environment. When
// cursors are still attached both happen when the last of them is released.
// Every other method returns ErrDestroyed afterwards. Destroy is idempotent;
// after a failed close it retries the close.
func (db *DB) Destroy() error {
	if db.envDestroyed || (db.destroyRequested && db.lc.pending()) {
		return nil
	}
	if db.inTxn {
		return ErrTxnInProgress
	}
	if db.requestClose("destroy") == closeNow {
		if err := db.destroyHandle("destroy"); err != nil {
			return err
		}
	}
	db.destroyRequested = true
	return db.teardownEnv()
}

// requestClose asks the lifecycle for a close decision. Only the transition
// into a pending close is counted, not repeated requests while it waits.
func (db *DB) requestClose(op string) closeDecision {
	repeat := db.lc.pending()
	d := db.lc.requestClose()
	if d == closeDeferred {
		if !repeat {
			db.stats.deferredCloses.Add(1)
		}
		db.logger.Infof(logging.NSDB+"%s: close of %s deferred, %d cursors attached", op, db.path, db.lc.active)
	}
	return d
}

// destroyHandle destroys the open database handle.
func (db *DB) destroyHandle(op string) error {
	if err := db.handle.Destroy(); err != nil {
		db.lc.closeFailed()
		db.logger.Errorf(logging.NSDB+"%s: destroy %s: %v", op, db.path, err)
		return engineError(op, err)
	}
	db.handle = nil
	db.lc.closed()
	db.logger.Debugf(logging.NSDB+"closed %s", db.path)
	return nil
}

// teardownEnv destroys the environment once Destroy was requested and the
// database handle is gone.
func (db *DB) teardownEnv() error {
	if !db.destroyRequested || db.envDestroyed || db.lc.usable() {
		return nil
	}
	db.envDestroyed = true
	if db.opts.Registerer != nil {
		db.opts.Registerer.Unregister(db.stats)
	}
	if err := db.env.Destroy(); err != nil {
		return engineError("destroy", err)
	}
	return nil
}

// live returns the open database handle or the reason there is none.
func (db *DB) live() (engine.DB, error) {
	if db.destroyRequested {
		return nil, ErrDestroyed
	}
	if db.handle == nil {
		return nil, ErrClosed
	}
	return db.handle, nil
}

// Configure changes an engine setting. See Option for the value each option
// takes; only OptGrow takes an extra value. Invalid ids, types and ranges
// fail with ErrInvalidOption before the engine is touched.
//
// The comparator can only be changed while the database is closed.
func (db *DB) Configure(opt Option, value any, extra ...any) error {
	if db.destroyRequested {
		return ErrDestroyed
	}
	if opt != OptGrow && len(extra) > 0 {
		return invalidOption("%s: unexpected extra value", opt)
	}

	var err error
	switch opt {
	case OptComparator:
		return db.installComparator(value)
	case OptPageSize, OptMergeWatermark:
		var n uint32
		if n, err = toUint32(opt, value); err != nil {
			return err
		}
		if opt == OptPageSize {
			err = db.env.SetPageSize(n)
		} else {
			err = db.env.SetMergeWatermark(n)
		}
	case OptGC, OptMerge:
		var b bool
		if b, err = toBool(opt, value); err != nil {
			return err
		}
		if opt == OptGC {
			err = db.env.SetGC(b)
		} else {
			err = db.env.SetMerge(b)
		}
	case OptGCFactor:
		var f float64
		if f, err = toFloat64(opt, value); err != nil {
			return err
		}
		err = db.env.SetGCFactor(f)
	case OptGrow:
		if len(extra) != 1 {
			return invalidOption("%s: expected a new size and a resize factor", opt)
		}
		var size uint32
		var resize float64
		if size, err = toUint32(opt, value); err != nil {
			return err
		}
		if resize, err = toFloat64(opt, extra[0]); err != nil {
			return err
		}
		err = db.env.SetGrow(size, resize)
	default:
		return invalidOption("unknown option %s", opt)
	}
	if err != nil {
		return engineError("configure", err)
	}
	return nil
}

// InstallComparator sets the key ordering used from the next Open. A nil
// fn restores the default ordering.
func (db *DB) InstallComparator(fn CompareFunc) error {
	return db.Configure(OptComparator, fn)
}

func (db *DB) installComparator(value any) error {
	fn, err := toCompareFunc(value)
	if err != nil {
		return err
	}
	if db.lc.usable() {
		return invalidOption("%s: the database must be closed", OptComparator)
	}
	prev := db.bridge.fn
	db.bridge.install(fn)
	if err := db.env.SetComparator(db.bridge.engineComparator()); err != nil {
		db.bridge.install(prev)
		return engineError("configure", err)
	}
	return nil
}

func (db *DB) reportComparatorFailure(err *ComparatorError) {
	db.stats.comparatorFailures.Add(1)
	db.cmpErrLock.Lock()
	db.cmpErr = err
	db.cmpErrLock.Unlock()
	db.logger.Warnf(logging.NSCmp+"%v; default ordering used", err)
	if db.opts.OnComparatorFailure != nil {
		db.opts.OnComparatorFailure(err)
	}
}

// ComparatorErr returns the most recent custom comparator failure and
// clears it. Failures never abort the engine operation they happened in;
// this is where callers observe them.
func (db *DB) ComparatorErr() error {
	db.cmpErrLock.Lock()
	defer db.cmpErrLock.Unlock()
	err := db.cmpErr
	db.cmpErr = nil
	if err == nil {
		// Avoid returning a typed nil.
		return nil
	}
	return err
}

// Get returns the value stored under key, or ErrNotFound.
func (db *DB) Get(key []byte) ([]byte, error) {
	h, err := db.live()
	if err != nil {
		return nil, err
	}
	v, found, err := h.Get(key)
	if err != nil {
		return nil, engineError("get", err)
	}
	if !found {
		return nil, ErrNotFound
	}
	return v, nil
}

// GetOr returns the value stored under key, or def when there is none.
func (db *DB) GetOr(key, def []byte) ([]byte, error) {
	v, err := db.Get(key)
	if errors.Is(err, ErrNotFound) {
		return def, nil
	}
	return v, err
}

// Contains reports whether key exists.
func (db *DB) Contains(key []byte) (bool, error) {
	h, err := db.live()
	if err != nil {
		return false, err
	}
	_, found, err := h.Get(key)
	if err != nil {
		return false, engineError("contains", err)
	}
	return found, nil
}

// Set stores value under key.
func (db *DB) Set(key, value []byte) error {
	h, err := db.live()
	if err != nil {
		return err
	}
	if err := h.Set(key, value); err != nil {
		return engineError("set", err)
	}
	return nil
}

// Delete removes key. Deleting a missing key is not an error.
func (db *DB) Delete(key []byte) error {
	h, err := db.live()
	if err != nil {
		return err
	}
	if err := h.Delete(key); err != nil {
		return engineError("delete", err)
	}
	return nil
}

// Begin starts a transaction. Open, Close and Destroy fail with
// ErrTxnInProgress until it is committed or rolled back.
func (db *DB) Begin() error {
	h, err := db.live()
	if err != nil {
		return err
	}
	if err := h.Begin(); err != nil {
		return engineError("begin", err)
	}
	db.inTxn = true
	return nil
}

// Commit commits the active transaction.
func (db *DB) Commit() error {
	h, err := db.live()
	if err != nil {
		return err
	}
	if err := h.Commit(); err != nil {
		return engineError("commit", err)
	}
	db.inTxn = false
	return nil
}

// Rollback discards the active transaction.
func (db *DB) Rollback() error {
	h, err := db.live()
	if err != nil {
		return err
	}
	if err := h.Rollback(); err != nil {
		return engineError("rollback", err)
	}
	db.inTxn = false
	return nil
}

// InTxn reports whether a transaction is active.
func (db *DB) InTxn() bool {
	return db.inTxn
}

// Count returns the number of records. It walks the whole database.
func (db *DB) Count() (uint64, error) {
	h, err := db.live()
	if err != nil {
		return 0, err
	}
	cur, err := h.Cursor(engine.GT, nil)
	if err != nil {
		return 0, engineError("count", err)
	}
	var n uint64
	for cur.Fetch() {
		n++
	}
	if err := cur.Destroy(); err != nil {
		return 0, engineError("count", err)
	}
	return n, nil
}

// Stats returns a snapshot of the handle counters.
func (db *DB) Stats() Stats {
	return db.stats.snapshot(db.lc.active)
}
