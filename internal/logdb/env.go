// Package logdb implements the journal engine: an ordered key/value store
// held in a skip list, made durable by an append-only journal and a
// periodically merged snapshot.
//
// Directory layout:
//
//	LOCK         exclusive handle lock
//	journal.log  block-framed write batches since the last merge
//	snapshot.db  all live records as of the last merge
//
// Opening replays the snapshot, then every journal batch with a newer
// sequence number. A damaged journal tail is cut off at the last intact
// record.
package logdb

import (
	"errors"
	"fmt"
	"math/bits"
	"path/filepath"

	"github.com/aalhour/spdb/internal/compression"
	"github.com/aalhour/spdb/internal/engine"
	"github.com/aalhour/spdb/internal/logging"
	"github.com/aalhour/spdb/internal/memtable"
	"github.com/aalhour/spdb/internal/vfs"
)

// File names inside a database directory.
const (
	LockFileName     = "LOCK"
	JournalFileName  = "journal.log"
	SnapshotFileName = "snapshot.db"
)

// Defaults and bounds of the engine settings.
const (
	DefaultPageSize       = 4096
	MinPageSize           = 512
	MaxPageSize           = 1 << 20
	DefaultMergeWatermark = 100000
	DefaultGCFactor       = 0.5
	DefaultGrowSize       = 1024
	DefaultGrowResize     = 2.0

	// MaxKeySize is the largest accepted key.
	MaxKeySize = 1<<16 - 1
)

var (
	errEnvDestroyed = errors.New("environment is destroyed")
	errDBDestroyed  = errors.New("database is destroyed")
)

// Config holds the settings fixed when the environment is created.
type Config struct {
	// Compression is applied to journal records and snapshots.
	Compression compression.Type

	// Sync fsyncs the journal after every committed batch.
	Sync bool

	// Logger receives engine diagnostics. Nil means the default logger.
	Logger logging.Logger

	// FS is the filesystem. Nil means the OS filesystem.
	FS vfs.FS
}

// settings are the per-open options changed through the Env setters.
type settings struct {
	pageSize       uint32
	mergeWatermark uint32
	gc             bool
	merge          bool
	gcFactor       float64
	growSize       uint32
	growResize     float64
	cmp            engine.Comparator
}

// Env is a journal engine environment. It implements engine.Env.
type Env struct {
	cfg    Config
	logger logging.Logger
	fs     vfs.FS

	dir   string
	flags engine.OpenFlags
	set   settings

	db        *DB
	destroyed bool
}

var _ engine.Env = (*Env)(nil)

// NewEnv creates an environment with default settings.
func NewEnv(cfg Config) *Env {
	fs := cfg.FS
	if fs == nil {
		fs = vfs.Default()
	}
	return &Env{
		cfg:    cfg,
		logger: logging.OrDefault(cfg.Logger),
		fs:     fs,
		set: settings{
			pageSize:       DefaultPageSize,
			mergeWatermark: DefaultMergeWatermark,
			gc:             true,
			merge:          true,
			gcFactor:       DefaultGCFactor,
			growSize:       DefaultGrowSize,
			growResize:     DefaultGrowResize,
			cmp:            engine.DefaultComparator{},
		},
	}
}

// SetDir implements engine.Env.
func (e *Env) SetDir(path string, flags engine.OpenFlags) error {
	if e.destroyed {
		return errEnvDestroyed
	}
	if path == "" {
		return errors.New("directory path is empty")
	}
	e.dir = path
	e.flags = flags
	return nil
}

// SetComparator implements engine.Env.
func (e *Env) SetComparator(cmp engine.Comparator) error {
	if e.destroyed {
		return errEnvDestroyed
	}
	if cmp == nil {
		return errors.New("comparator is nil")
	}
	e.set.cmp = cmp
	return nil
}

// SetPageSize implements engine.Env. The page size is the journal write
// buffer size.
func (e *Env) SetPageSize(size uint32) error {
	if e.destroyed {
		return errEnvDestroyed
	}
	if size < MinPageSize || size > MaxPageSize || bits.OnesCount32(size) != 1 {
		return fmt.Errorf("bad page size %d: must be a power of two in [%d, %d]", size, MinPageSize, MaxPageSize)
	}
	e.set.pageSize = size
	return nil
}

// SetMergeWatermark implements engine.Env. It is the number of journaled
// operations after which the journal is merged into the snapshot.
func (e *Env) SetMergeWatermark(wm uint32) error {
	if e.destroyed {
		return errEnvDestroyed
	}
	if wm == 0 {
		return errors.New("merge watermark must be positive")
	}
	e.set.mergeWatermark = wm
	return nil
}

// SetGC implements engine.Env.
func (e *Env) SetGC(enabled bool) error {
	if e.destroyed {
		return errEnvDestroyed
	}
	e.set.gc = enabled
	return nil
}

// SetMerge implements engine.Env.
func (e *Env) SetMerge(enabled bool) error {
	if e.destroyed {
		return errEnvDestroyed
	}
	e.set.merge = enabled
	return nil
}

// SetGCFactor implements engine.Env. The factor is the tombstone ratio that
// triggers a purge of deleted keys.
func (e *Env) SetGCFactor(factor float64) error {
	if e.destroyed {
		return errEnvDestroyed
	}
	if !(factor > 0 && factor <= 1) {
		return fmt.Errorf("gc factor %v is out of range (0, 1]", factor)
	}
	e.set.gcFactor = factor
	return nil
}

// SetGrow implements engine.Env. newSize is the expected key count the
// table is sized for; resize multiplies it whenever it is exceeded.
func (e *Env) SetGrow(newSize uint32, resize float64) error {
	if e.destroyed {
		return errEnvDestroyed
	}
	if newSize == 0 {
		return errors.New("grow size must be positive")
	}
	if !(resize > 1) {
		return fmt.Errorf("grow resize factor %v must be greater than 1", resize)
	}
	e.set.growSize = newSize
	e.set.growResize = resize
	return nil
}

// Open implements engine.Env.
func (e *Env) Open() (engine.DB, error) {
	db, err := e.open()
	if err != nil {
		return nil, err
	}
	return db, nil
}

func (e *Env) open() (_ *DB, err error) {
	if e.destroyed {
		return nil, errEnvDestroyed
	}
	if e.db != nil {
		return nil, errors.New("database already open")
	}
	if e.dir == "" {
		return nil, errors.New("directory is not set")
	}

	if e.flags&engine.Create != 0 {
		if err := e.fs.MkdirAll(e.dir, 0755); err != nil {
			return nil, fmt.Errorf("create directory: %w", err)
		}
	} else if !e.fs.Exists(e.dir) {
		return nil, fmt.Errorf("directory %s does not exist", e.dir)
	}

	lock, err := e.fs.Lock(filepath.Join(e.dir, LockFileName))
	if err != nil {
		if errors.Is(err, vfs.ErrLocked) {
			return nil, fmt.Errorf("directory %s is in use by another handle", e.dir)
		}
		return nil, fmt.Errorf("lock directory: %w", err)
	}
	defer func() {
		if err != nil {
			_ = lock.Close()
		}
	}()

	set := e.set
	mem := memtable.New(set.cmp.Compare, memtable.HeightFor(set.growSize))

	seq, err := loadSnapshot(e.fs, filepath.Join(e.dir, SnapshotFileName), mem)
	if err != nil {
		return nil, err
	}
	rs, err := replayJournal(e.fs, filepath.Join(e.dir, JournalFileName), seq, mem)
	if err != nil {
		return nil, err
	}
	if rs.torn {
		e.logger.Warnf(logging.NSJournal+"%s: dropping %d bytes of damaged journal tail", e.dir, rs.size-rs.validEnd)
	}
	e.logger.Debugf(logging.NSJournal+"%s: replayed %d batches, %d keys", e.dir, rs.batches, mem.Len())

	db := &DB{
		env:      e,
		dir:      e.dir,
		set:      set,
		logger:   e.logger,
		lock:     lock,
		mem:      mem,
		seq:      max(seq, rs.lastSeq),
		pending:  uint32(min(rs.ops, uint64(^uint32(0)))),
		capacity: max(set.growSize, uint32(mem.Len())),
		readOnly: e.flags&engine.ReadWrite == 0,
	}
	if !db.readOnly {
		truncateAt := int64(-1)
		if rs.torn {
			truncateAt = rs.validEnd
		}
		db.journal, err = openJournal(e.fs, filepath.Join(e.dir, JournalFileName), journalOptions{
			bufferSize:  int(set.pageSize),
			sync:        e.cfg.Sync,
			compression: e.cfg.Compression,
			truncateAt:  truncateAt,
		})
		if err != nil {
			return nil, err
		}
	}

	e.db = db
	return db, nil
}

// Destroy implements engine.Env.
func (e *Env) Destroy() error {
	if e.destroyed {
		return errEnvDestroyed
	}
	if e.db != nil {
		return errors.New("environment destroyed before its database")
	}
	e.destroyed = true
	return nil
}
