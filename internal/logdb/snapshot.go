package logdb

// snapshot.go implements the merged snapshot file.
//
// Format:
//
//	magic (8 bytes) "SPDBSNP1"
//	compression frame of a write batch holding one Put per live record;
//	  the batch sequence is the last journal sequence merged in
//	xxh3 of everything above (8 bytes, little-endian)

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"path/filepath"

	"github.com/zeebo/xxh3"

	"github.com/aalhour/spdb/internal/batch"
	"github.com/aalhour/spdb/internal/compression"
	"github.com/aalhour/spdb/internal/memtable"
	"github.com/aalhour/spdb/internal/vfs"
)

var snapshotMagic = []byte("SPDBSNP1")

const snapshotTrailerSize = 8

// errSnapshotCorrupt is returned when snapshot.db fails validation.
var errSnapshotCorrupt = errors.New("snapshot is corrupt")

// loadSnapshot fills mem from the snapshot at path and returns its sequence.
// A missing snapshot is an empty database.
func loadSnapshot(fs vfs.FS, path string, mem *memtable.Memtable) (uint64, error) {
	if !fs.Exists(path) {
		return 0, nil
	}
	f, err := fs.Open(path)
	if err != nil {
		return 0, fmt.Errorf("open snapshot: %w", err)
	}
	data, err := io.ReadAll(f)
	_ = f.Close()
	if err != nil {
		return 0, fmt.Errorf("read snapshot: %w", err)
	}

	if len(data) < len(snapshotMagic)+snapshotTrailerSize || !bytes.Equal(data[:len(snapshotMagic)], snapshotMagic) {
		return 0, fmt.Errorf("%w: bad header", errSnapshotCorrupt)
	}
	body := data[:len(data)-snapshotTrailerSize]
	if xxh3.Hash(body) != binary.LittleEndian.Uint64(data[len(body):]) {
		return 0, fmt.Errorf("%w: checksum mismatch", errSnapshotCorrupt)
	}

	raw, err := compression.DecodeFrame(body[len(snapshotMagic):])
	if err != nil {
		return 0, fmt.Errorf("%w: %v", errSnapshotCorrupt, err)
	}
	wb, err := batch.NewFromData(raw)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", errSnapshotCorrupt, err)
	}
	if err := wb.Iterate(tableWriter{mem: mem}); err != nil {
		return 0, fmt.Errorf("%w: %v", errSnapshotCorrupt, err)
	}
	return wb.Sequence(), nil
}

// writeSnapshot atomically replaces the snapshot in dir with the live
// records of mem.
func writeSnapshot(fs vfs.FS, dir string, mem *memtable.Memtable, seq uint64, ct compression.Type) error {
	wb := batch.New()
	wb.SetSequence(seq)
	it := mem.NewIterator()
	for it.SeekToFirst(); it.Valid(); it.Next() {
		if !it.Deleted() {
			wb.Put(it.Key(), it.Value())
		}
	}
	frame, err := compression.EncodeFrame(ct, wb.Data())
	if err != nil {
		return err
	}

	out := make([]byte, 0, len(snapshotMagic)+len(frame)+snapshotTrailerSize)
	out = append(out, snapshotMagic...)
	out = append(out, frame...)
	out = binary.LittleEndian.AppendUint64(out, xxh3.Hash(out))

	path := filepath.Join(dir, SnapshotFileName)
	tmp := path + ".tmp"
	f, err := fs.Create(tmp)
	if err != nil {
		return err
	}
	if _, err := f.Write(out); err != nil {
		_ = f.Close()
		_ = fs.Remove(tmp)
		return err
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		_ = fs.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		_ = fs.Remove(tmp)
		return err
	}
	if err := fs.Rename(tmp, path); err != nil {
		_ = fs.Remove(tmp)
		return err
	}
	return fs.SyncDir(dir)
}
