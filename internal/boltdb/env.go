// Package boltdb implements the engine API on a bbolt B+tree file.
//
// Records live in the bucket "spdb" of <dir>/data.bolt. bbolt orders keys
// bytewise, which is exactly the default comparator, so only that ordering
// is accepted. The journal tuning options (merge, gc) have no bbolt
// counterpart; they are validated and otherwise ignored.
package boltdb

import (
	"errors"
	"fmt"
	"math/bits"
	"os"
	"path/filepath"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/aalhour/spdb/internal/engine"
	"github.com/aalhour/spdb/internal/logging"
)

// File and bucket names.
const (
	DataFileName = "data.bolt"
	BucketName   = "spdb"
)

// Bounds of the page size setting.
const (
	MinPageSize = 512
	MaxPageSize = 1 << 20
)

// lockTimeout bounds the wait for another handle's file lock.
const lockTimeout = 100 * time.Millisecond

var (
	errEnvDestroyed = errors.New("environment is destroyed")
	errDBDestroyed  = errors.New("database is destroyed")
)

// Config holds the settings fixed when the environment is created.
type Config struct {
	// NoSync skips the fsync after each commit.
	NoSync bool

	// Logger receives engine diagnostics. Nil means the default logger.
	Logger logging.Logger
}

// Env is a bbolt engine environment. It implements engine.Env.
type Env struct {
	cfg    Config
	logger logging.Logger

	dir      string
	flags    engine.OpenFlags
	pageSize uint32
	growSize uint32

	db        *DB
	destroyed bool
}

var _ engine.Env = (*Env)(nil)

// NewEnv creates an environment with default settings.
func NewEnv(cfg Config) *Env {
	return &Env{cfg: cfg, logger: logging.OrDefault(cfg.Logger)}
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
	if cmp == nil || cmp.Name() != engine.DefaultComparatorName {
		return fmt.Errorf("bolt engine supports only the %s comparator", engine.DefaultComparatorName)
	}
	return nil
}

// SetPageSize implements engine.Env. It becomes the bbolt page size of
// newly created files.
func (e *Env) SetPageSize(size uint32) error {
	if e.destroyed {
		return errEnvDestroyed
	}
	if size < MinPageSize || size > MaxPageSize || bits.OnesCount32(size) != 1 {
		return fmt.Errorf("bad page size %d: must be a power of two in [%d, %d]", size, MinPageSize, MaxPageSize)
	}
	e.pageSize = size
	return nil
}

// SetMergeWatermark implements engine.Env.
func (e *Env) SetMergeWatermark(wm uint32) error {
	if e.destroyed {
		return errEnvDestroyed
	}
	if wm == 0 {
		return errors.New("merge watermark must be positive")
	}
	return nil
}

// SetGC implements engine.Env.
func (e *Env) SetGC(bool) error {
	if e.destroyed {
		return errEnvDestroyed
	}
	return nil
}

// SetMerge implements engine.Env.
func (e *Env) SetMerge(bool) error {
	if e.destroyed {
		return errEnvDestroyed
	}
	return nil
}

// SetGCFactor implements engine.Env.
func (e *Env) SetGCFactor(factor float64) error {
	if e.destroyed {
		return errEnvDestroyed
	}
	if !(factor > 0 && factor <= 1) {
		return fmt.Errorf("gc factor %v is out of range (0, 1]", factor)
	}
	return nil
}

// SetGrow implements engine.Env. newSize pages are mapped up front.
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
	e.growSize = newSize
	return nil
}

func (e *Env) effectivePageSize() int {
	if e.pageSize != 0 {
		return int(e.pageSize)
	}
	return os.Getpagesize()
}

// Open implements engine.Env.
func (e *Env) Open() (engine.DB, error) {
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
		if err := os.MkdirAll(e.dir, 0755); err != nil {
			return nil, fmt.Errorf("create directory: %w", err)
		}
	}

	readOnly := e.flags&engine.ReadWrite == 0
	opts := &bolt.Options{
		Timeout:  lockTimeout,
		NoSync:   e.cfg.NoSync,
		PageSize: int(e.pageSize),
		ReadOnly: readOnly,
	}
	if e.growSize > 0 {
		opts.InitialMmapSize = int(e.growSize) * e.effectivePageSize()
	}

	path := filepath.Join(e.dir, DataFileName)
	bdb, err := bolt.Open(path, 0600, opts)
	if err != nil {
		if errors.Is(err, bolt.ErrTimeout) {
			return nil, fmt.Errorf("directory %s is in use by another handle", e.dir)
		}
		return nil, err
	}
	if !readOnly {
		err = bdb.Update(func(tx *bolt.Tx) error {
			_, err := tx.CreateBucketIfNotExists([]byte(BucketName))
			return err
		})
		if err != nil {
			_ = bdb.Close()
			return nil, err
		}
	}

	e.logger.Debugf(logging.NSBolt+"opened %s (page size %d)", path, bdb.Info().PageSize)
	e.db = &DB{
		env:       e,
		bdb:       bdb,
		batchSize: max(16, e.effectivePageSize()/64),
	}
	return e.db, nil
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
