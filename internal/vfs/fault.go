// fault.go implements a filesystem wrapper that fails writes on demand.
package vfs

import (
	"errors"
	"io"
	"os"
	"path/filepath"
	"sync"
)

var (
	// ErrInjectedWriteError is returned when a write error is injected.
	ErrInjectedWriteError = errors.New("vfs: injected write error")

	// ErrInjectedSyncError is returned when a sync error is injected.
	ErrInjectedSyncError = errors.New("vfs: injected sync error")
)

// FaultInjectionFS wraps an FS and allows injecting write and sync errors.
type FaultInjectionFS struct {
	base FS

	mu               sync.RWMutex
	injectWriteError bool
	injectSyncError  bool
	writeErrorPath   string // empty means every file
}

// NewFaultInjectionFS creates a new fault-injecting filesystem wrapper.
func NewFaultInjectionFS(base FS) *FaultInjectionFS {
	return &FaultInjectionFS{base: base}
}

// InjectWriteError makes writes to path fail. An empty path fails writes to
// every file.
func (fs *FaultInjectionFS) InjectWriteError(path string) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	fs.injectWriteError = true
	fs.writeErrorPath = path
}

// InjectSyncError makes every Sync fail.
func (fs *FaultInjectionFS) InjectSyncError() {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	fs.injectSyncError = true
}

// ClearErrors clears all error injection.
func (fs *FaultInjectionFS) ClearErrors() {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	fs.injectWriteError = false
	fs.injectSyncError = false
	fs.writeErrorPath = ""
}

func (fs *FaultInjectionFS) writeFails(path string) bool {
	fs.mu.RLock()
	defer fs.mu.RUnlock()
	if !fs.injectWriteError {
		return false
	}
	if fs.writeErrorPath == "" {
		return true
	}
	want, _ := filepath.Abs(fs.writeErrorPath)
	return want == path
}

func (fs *FaultInjectionFS) syncFails() bool {
	fs.mu.RLock()
	defer fs.mu.RUnlock()
	return fs.injectSyncError
}

func (fs *FaultInjectionFS) wrap(name string, open func(string) (WritableFile, error)) (WritableFile, error) {
	absPath, _ := filepath.Abs(name)
	if fs.writeFails(absPath) {
		return nil, ErrInjectedWriteError
	}
	f, err := open(name)
	if err != nil {
		return nil, err
	}
	return &faultWritableFile{base: f, fs: fs, path: absPath}, nil
}

// Create creates a new writable file with fault injection.
func (fs *FaultInjectionFS) Create(name string) (WritableFile, error) {
	return fs.wrap(name, fs.base.Create)
}

// OpenAppend opens a file for appending with fault injection.
func (fs *FaultInjectionFS) OpenAppend(name string) (WritableFile, error) {
	return fs.wrap(name, fs.base.OpenAppend)
}

// Open opens an existing file for sequential reading.
func (fs *FaultInjectionFS) Open(name string) (SequentialFile, error) {
	return fs.base.Open(name)
}

// Rename renames a file.
func (fs *FaultInjectionFS) Rename(oldname, newname string) error {
	absPath, _ := filepath.Abs(newname)
	if fs.writeFails(absPath) {
		return ErrInjectedWriteError
	}
	return fs.base.Rename(oldname, newname)
}

// Remove deletes a file.
func (fs *FaultInjectionFS) Remove(name string) error {
	return fs.base.Remove(name)
}

// MkdirAll creates a directory tree.
func (fs *FaultInjectionFS) MkdirAll(path string, perm os.FileMode) error {
	return fs.base.MkdirAll(path, perm)
}

// Exists reports whether a file exists.
func (fs *FaultInjectionFS) Exists(name string) bool {
	return fs.base.Exists(name)
}

// Lock acquires an exclusive lock on a file.
func (fs *FaultInjectionFS) Lock(name string) (io.Closer, error) {
	return fs.base.Lock(name)
}

// SyncDir syncs a directory.
func (fs *FaultInjectionFS) SyncDir(path string) error {
	if fs.syncFails() {
		return ErrInjectedSyncError
	}
	return fs.base.SyncDir(path)
}

// faultWritableFile wraps WritableFile with fault injection.
type faultWritableFile struct {
	base WritableFile
	fs   *FaultInjectionFS
	path string
}

func (f *faultWritableFile) Write(p []byte) (int, error) {
	if f.fs.writeFails(f.path) {
		return 0, ErrInjectedWriteError
	}
	return f.base.Write(p)
}

func (f *faultWritableFile) Close() error {
	return f.base.Close()
}

func (f *faultWritableFile) Sync() error {
	if f.fs.syncFails() {
		return ErrInjectedSyncError
	}
	return f.base.Sync()
}

func (f *faultWritableFile) Truncate(size int64) error {
	if f.fs.writeFails(f.path) {
		return ErrInjectedWriteError
	}
	return f.base.Truncate(size)
}

func (f *faultWritableFile) Size() (int64, error) {
	return f.base.Size()
}
