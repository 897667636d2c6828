package vfs

import (
	"errors"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"testing"
)

func TestOSFS_CreateAppendRead(t *testing.T) {
	fs := Default()
	path := filepath.Join(t.TempDir(), "journal.log")

	f, err := fs.Create(path)
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if _, err := f.Write([]byte("hello")); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	if err := f.Sync(); err != nil {
		t.Fatalf("Sync failed: %v", err)
	}
	if err := f.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	a, err := fs.OpenAppend(path)
	if err != nil {
		t.Fatalf("OpenAppend failed: %v", err)
	}
	if _, err := a.Write([]byte(" world")); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	size, err := a.Size()
	if err != nil || size != 11 {
		t.Fatalf("Size = %d, %v", size, err)
	}
	if err := a.Truncate(5); err != nil {
		t.Fatalf("Truncate failed: %v", err)
	}
	_ = a.Close()

	r, err := fs.Open(path)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer r.Close()
	data, err := io.ReadAll(r)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "hello" {
		t.Errorf("content = %q, want hello", data)
	}
}

func TestOSFS_RenameRemoveExists(t *testing.T) {
	fs := Default()
	dir := t.TempDir()
	src := filepath.Join(dir, "a.tmp")
	dst := filepath.Join(dir, "a")

	if err := os.WriteFile(src, []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}
	if err := fs.Rename(src, dst); err != nil {
		t.Fatalf("Rename failed: %v", err)
	}
	if err := fs.SyncDir(dir); err != nil {
		t.Fatalf("SyncDir failed: %v", err)
	}
	if fs.Exists(src) || !fs.Exists(dst) {
		t.Fatal("rename did not move the file")
	}
	if err := fs.Remove(dst); err != nil {
		t.Fatalf("Remove failed: %v", err)
	}
	if fs.Exists(dst) {
		t.Error("file still exists after Remove")
	}
}

func TestOSFS_LockIsExclusive(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("advisory locks are not enforced on windows")
	}
	fs := Default()
	path := filepath.Join(t.TempDir(), "LOCK")

	l, err := fs.Lock(path)
	if err != nil {
		t.Fatalf("Lock failed: %v", err)
	}
	if _, err := fs.Lock(path); !errors.Is(err, ErrLocked) {
		t.Fatalf("second Lock err = %v, want ErrLocked", err)
	}
	if err := l.Close(); err != nil {
		t.Fatal(err)
	}
	l2, err := fs.Lock(path)
	if err != nil {
		t.Fatalf("Lock after release failed: %v", err)
	}
	_ = l2.Close()
}

func TestFaultInjectionFS(t *testing.T) {
	dir := t.TempDir()
	fs := NewFaultInjectionFS(Default())
	path := filepath.Join(dir, "data")

	f, err := fs.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	fs.InjectWriteError(path)
	if _, err := f.Write([]byte("x")); !errors.Is(err, ErrInjectedWriteError) {
		t.Fatalf("Write err = %v", err)
	}
	if _, err := fs.OpenAppend(path); !errors.Is(err, ErrInjectedWriteError) {
		t.Fatalf("OpenAppend err = %v", err)
	}
	// Other files are unaffected.
	other, err := fs.Create(filepath.Join(dir, "other"))
	if err != nil {
		t.Fatalf("Create(other) err = %v", err)
	}
	_ = other.Close()

	fs.InjectSyncError()
	if err := f.Sync(); !errors.Is(err, ErrInjectedSyncError) {
		t.Fatalf("Sync err = %v", err)
	}
	if err := fs.SyncDir(dir); !errors.Is(err, ErrInjectedSyncError) {
		t.Fatalf("SyncDir err = %v", err)
	}

	fs.ClearErrors()
	if _, err := f.Write([]byte("x")); err != nil {
		t.Fatalf("Write after ClearErrors: %v", err)
	}
	if err := f.Sync(); err != nil {
		t.Fatalf("Sync after ClearErrors: %v", err)
	}
}
