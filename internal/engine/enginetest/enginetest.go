// Package enginetest provides an in-memory, fault-injecting engine for tests.
//
// Env records every handle it creates and destroys so tests can assert the
// destruction order the lifecycle guarantees. Faults are injected per
// operation with the Inject* methods; an injected fault surfaces as an
// engine diagnostic exactly like a real engine failure would.
package enginetest

import (
	"errors"
	"slices"
	"sync"

	"github.com/aalhour/spdb/internal/engine"
)

// Fault names an engine operation that can be made to fail.
type Fault int

const (
	FaultOpen Fault = iota
	FaultDBDestroy
	FaultEnvDestroy
	FaultCursorOpen
	FaultSet
	FaultGet
	FaultDelete
	FaultBegin
	FaultCommit
	FaultRollback
	FaultConfigure
)

// Event is one entry of the handle journal kept by Env.
type Event string

const (
	EventOpen          Event = "db-open"
	EventDBDestroy     Event = "db-destroy"
	EventEnvDestroy    Event = "env-destroy"
	EventCursorOpen    Event = "cursor-open"
	EventCursorDestroy Event = "cursor-destroy"
)

type entry struct {
	key     []byte
	value   []byte
	deleted bool
}

// Env is a fault-injecting engine.Env backed by a sorted slice.
type Env struct {
	mu sync.Mutex

	dir   string
	flags engine.OpenFlags
	cmp   engine.Comparator

	PageSize       uint32
	MergeWatermark uint32
	GC             bool
	Merge          bool
	GCFactor       float64
	GrowSize       uint32
	GrowResize     float64

	faults map[Fault]string

	// Corrupt cursors report a successful fetch with empty keys or values.
	corruptKeys   bool
	corruptValues bool

	data      []entry
	db        *DB
	destroyed bool
	events    []Event
	cursors   int
}

// NewEnv returns an empty environment using the default comparator.
func NewEnv() *Env {
	return &Env{
		cmp:    engine.DefaultComparator{},
		faults: make(map[Fault]string),
	}
}

// Inject makes the next and all later calls of op fail with diag.
func (e *Env) Inject(op Fault, diag string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.faults[op] = diag
}

// Clear removes an injected fault.
func (e *Env) Clear(op Fault) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.faults, op)
}

// CorruptCursors makes cursors yield empty keys and/or values.
func (e *Env) CorruptCursors(keys, values bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.corruptKeys = keys
	e.corruptValues = values
}

// Events returns a copy of the handle journal.
func (e *Env) Events() []Event {
	e.mu.Lock()
	defer e.mu.Unlock()
	return slices.Clone(e.events)
}

// Count returns how many times ev was recorded.
func (e *Env) Count(ev Event) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	n := 0
	for _, x := range e.events {
		if x == ev {
			n++
		}
	}
	return n
}

// OpenCursors returns the number of engine cursors not yet destroyed.
func (e *Env) OpenCursors() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.cursors
}

// Dir returns the configured directory and flags.
func (e *Env) Dir() (string, engine.OpenFlags) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.dir, e.flags
}

// Comparator returns the comparator installed for the next open.
func (e *Env) Comparator() engine.Comparator {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.cmp
}

// Destroyed reports whether Destroy succeeded.
func (e *Env) Destroyed() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.destroyed
}

func (e *Env) fault(op Fault) error {
	if diag, ok := e.faults[op]; ok {
		return errors.New(diag)
	}
	return nil
}

func (e *Env) configure(apply func()) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.fault(FaultConfigure); err != nil {
		return err
	}
	apply()
	return nil
}

func (e *Env) SetDir(path string, flags engine.OpenFlags) error {
	return e.configure(func() { e.dir, e.flags = path, flags })
}

func (e *Env) SetComparator(cmp engine.Comparator) error {
	return e.configure(func() { e.cmp = cmp })
}

func (e *Env) SetPageSize(size uint32) error {
	return e.configure(func() { e.PageSize = size })
}

func (e *Env) SetMergeWatermark(wm uint32) error {
	return e.configure(func() { e.MergeWatermark = wm })
}

func (e *Env) SetGC(enabled bool) error {
	return e.configure(func() { e.GC = enabled })
}

func (e *Env) SetMerge(enabled bool) error {
	return e.configure(func() { e.Merge = enabled })
}

func (e *Env) SetGCFactor(factor float64) error {
	return e.configure(func() { e.GCFactor = factor })
}

func (e *Env) SetGrow(newSize uint32, resize float64) error {
	return e.configure(func() { e.GrowSize, e.GrowResize = newSize, resize })
}

// Open implements engine.Env. Data survives close/reopen cycles, re-sorted
// with the comparator installed at open time.
func (e *Env) Open() (engine.DB, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.destroyed {
		return nil, errors.New("environment destroyed")
	}
	if e.db != nil {
		return nil, errors.New("database already open")
	}
	if e.dir == "" {
		return nil, errors.New("directory is not set")
	}
	if err := e.fault(FaultOpen); err != nil {
		return nil, err
	}
	slices.SortFunc(e.data, func(a, b entry) int { return e.cmp.Compare(a.key, b.key) })
	e.db = &DB{env: e, cmp: e.cmp}
	e.events = append(e.events, EventOpen)
	return e.db, nil
}

// Destroy implements engine.Env.
func (e *Env) Destroy() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.destroyed {
		return errors.New("environment destroyed twice")
	}
	if e.db != nil {
		return errors.New("environment destroyed before its database")
	}
	if err := e.fault(FaultEnvDestroy); err != nil {
		return err
	}
	e.destroyed = true
	e.events = append(e.events, EventEnvDestroy)
	return nil
}

// DB is the database handle of Env.
type DB struct {
	env       *Env
	cmp       engine.Comparator
	txn       []entry
	inTxn     bool
	destroyed bool
}

func (d *DB) check(op Fault) error {
	if d.destroyed {
		return errors.New("use of destroyed database")
	}
	return d.env.fault(op)
}

func (d *DB) find(key []byte) (int, bool) {
	return slices.BinarySearchFunc(d.env.data, key, func(x entry, k []byte) int {
		return d.cmp.Compare(x.key, k)
	})
}

func (d *DB) put(key, value []byte, deleted bool) {
	i, ok := d.find(key)
	switch {
	case deleted && ok:
		d.env.data = slices.Delete(d.env.data, i, i+1)
	case deleted:
	case ok:
		d.env.data[i].value = slices.Clone(value)
	default:
		d.env.data = slices.Insert(d.env.data, i, entry{key: slices.Clone(key), value: slices.Clone(value)})
	}
}

func (d *DB) Get(key []byte) ([]byte, bool, error) {
	d.env.mu.Lock()
	defer d.env.mu.Unlock()
	if err := d.check(FaultGet); err != nil {
		return nil, false, err
	}
	i, ok := d.find(key)
	if !ok {
		return nil, false, nil
	}
	return slices.Clone(d.env.data[i].value), true, nil
}

func (d *DB) Set(key, value []byte) error {
	d.env.mu.Lock()
	defer d.env.mu.Unlock()
	if err := d.check(FaultSet); err != nil {
		return err
	}
	if d.inTxn {
		d.txn = append(d.txn, entry{key: slices.Clone(key), value: slices.Clone(value)})
		return nil
	}
	d.put(key, value, false)
	return nil
}

func (d *DB) Delete(key []byte) error {
	d.env.mu.Lock()
	defer d.env.mu.Unlock()
	if err := d.check(FaultDelete); err != nil {
		return err
	}
	if d.inTxn {
		d.txn = append(d.txn, entry{key: slices.Clone(key), deleted: true})
		return nil
	}
	d.put(key, nil, true)
	return nil
}

func (d *DB) Begin() error {
	d.env.mu.Lock()
	defer d.env.mu.Unlock()
	if err := d.check(FaultBegin); err != nil {
		return err
	}
	if d.inTxn {
		return errors.New("transaction already active")
	}
	d.inTxn = true
	return nil
}

func (d *DB) Commit() error {
	d.env.mu.Lock()
	defer d.env.mu.Unlock()
	if err := d.check(FaultCommit); err != nil {
		return err
	}
	if !d.inTxn {
		return errors.New("no active transaction")
	}
	for _, op := range d.txn {
		d.put(op.key, op.value, op.deleted)
	}
	d.txn, d.inTxn = nil, false
	return nil
}

func (d *DB) Rollback() error {
	d.env.mu.Lock()
	defer d.env.mu.Unlock()
	if err := d.check(FaultRollback); err != nil {
		return err
	}
	if !d.inTxn {
		return errors.New("no active transaction")
	}
	d.txn, d.inTxn = nil, false
	return nil
}

// Cursor implements engine.DB. The cursor iterates a snapshot of the data
// taken at open time.
func (d *DB) Cursor(order engine.Order, start []byte) (engine.Cursor, error) {
	d.env.mu.Lock()
	defer d.env.mu.Unlock()
	if err := d.check(FaultCursorOpen); err != nil {
		return nil, err
	}
	var snap []entry
	for _, x := range d.env.data {
		if start != nil {
			c := d.cmp.Compare(x.key, start)
			switch order {
			case engine.GT:
				if c <= 0 {
					continue
				}
			case engine.GTE:
				if c < 0 {
					continue
				}
			case engine.LT:
				if c >= 0 {
					continue
				}
			case engine.LTE:
				if c > 0 {
					continue
				}
			}
		}
		snap = append(snap, x)
	}
	if !order.Ascending() {
		slices.Reverse(snap)
	}
	d.env.cursors++
	d.env.events = append(d.env.events, EventCursorOpen)
	return &Cursor{
		env:           d.env,
		snap:          snap,
		pos:           -1,
		corruptKeys:   d.env.corruptKeys,
		corruptValues: d.env.corruptValues,
	}, nil
}

func (d *DB) Destroy() error {
	d.env.mu.Lock()
	defer d.env.mu.Unlock()
	if d.destroyed {
		return errors.New("database destroyed twice")
	}
	if d.env.cursors > 0 {
		return errors.New("database destroyed with open cursors")
	}
	if err := d.env.fault(FaultDBDestroy); err != nil {
		return err
	}
	d.destroyed = true
	d.env.db = nil
	d.env.events = append(d.env.events, EventDBDestroy)
	return nil
}

// Cursor is the engine cursor of DB.
type Cursor struct {
	env           *Env
	snap          []entry
	pos           int
	corruptKeys   bool
	corruptValues bool
	destroyed     bool
}

func (c *Cursor) Fetch() bool {
	if c.destroyed || c.pos+1 >= len(c.snap) {
		return false
	}
	c.pos++
	return true
}

func (c *Cursor) Key() []byte {
	if c.corruptKeys || c.pos < 0 || c.pos >= len(c.snap) {
		return nil
	}
	return c.snap[c.pos].key
}

func (c *Cursor) Value() []byte {
	if c.corruptValues || c.pos < 0 || c.pos >= len(c.snap) {
		return nil
	}
	return c.snap[c.pos].value
}

func (c *Cursor) Destroy() error {
	c.env.mu.Lock()
	defer c.env.mu.Unlock()
	if c.destroyed {
		return errors.New("cursor destroyed twice")
	}
	c.destroyed = true
	c.env.cursors--
	c.env.events = append(c.env.events, EventCursorDestroy)
	return nil
}
