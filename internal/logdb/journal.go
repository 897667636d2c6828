package logdb

// journal.go implements journal writing and replay.

import (
	"bufio"
	"errors"
	"fmt"
	"io"

	"github.com/aalhour/spdb/internal/batch"
	"github.com/aalhour/spdb/internal/compression"
	"github.com/aalhour/spdb/internal/memtable"
	"github.com/aalhour/spdb/internal/vfs"
	"github.com/aalhour/spdb/internal/wal"
)

type journalOptions struct {
	bufferSize  int
	sync        bool
	compression compression.Type
	// truncateAt cuts the file before appending; negative keeps it whole.
	truncateAt int64
}

// journal appends committed batches to journal.log.
type journal struct {
	file vfs.WritableFile
	buf  *bufio.Writer
	w    *wal.Writer
	opts journalOptions
}

func openJournal(fs vfs.FS, path string, opts journalOptions) (*journal, error) {
	file, err := fs.OpenAppend(path)
	if err != nil {
		return nil, fmt.Errorf("open journal: %w", err)
	}
	if opts.truncateAt >= 0 {
		if err := file.Truncate(opts.truncateAt); err != nil {
			_ = file.Close()
			return nil, fmt.Errorf("truncate journal: %w", err)
		}
	}
	size, err := file.Size()
	if err != nil {
		_ = file.Close()
		return nil, fmt.Errorf("stat journal: %w", err)
	}
	buf := bufio.NewWriterSize(file, opts.bufferSize)
	return &journal{
		file: file,
		buf:  buf,
		w:    wal.NewWriter(buf, size),
		opts: opts,
	}, nil
}

// append writes one batch and flushes it to the file.
func (j *journal) append(data []byte) error {
	frame, err := compression.EncodeFrame(j.opts.compression, data)
	if err != nil {
		return err
	}
	if _, err := j.w.AddRecord(frame); err != nil {
		return err
	}
	if err := j.buf.Flush(); err != nil {
		return err
	}
	if j.opts.sync {
		return j.file.Sync()
	}
	return nil
}

// reset empties the journal after its contents were merged.
func (j *journal) reset() error {
	if err := j.buf.Flush(); err != nil {
		return err
	}
	if err := j.file.Truncate(0); err != nil {
		return err
	}
	if err := j.file.Sync(); err != nil {
		return err
	}
	j.w = wal.NewWriter(j.buf, 0)
	return nil
}

func (j *journal) close() error {
	err := j.buf.Flush()
	if cerr := j.file.Close(); err == nil {
		err = cerr
	}
	return err
}

// replayStats describes a journal replay.
type replayStats struct {
	batches  int
	ops      uint64
	lastSeq  uint64
	torn     bool
	validEnd int64
	size     int64
}

// countingReader tracks how many bytes were read from the journal.
type countingReader struct {
	r io.Reader
	n int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	return n, err
}

// replayJournal applies every batch newer than afterSeq to mem.
func replayJournal(fs vfs.FS, path string, afterSeq uint64, mem *memtable.Memtable) (replayStats, error) {
	var rs replayStats
	if !fs.Exists(path) {
		return rs, nil
	}
	f, err := fs.Open(path)
	if err != nil {
		return rs, fmt.Errorf("open journal: %w", err)
	}
	defer f.Close()

	cr := &countingReader{r: f}
	r := wal.NewReader(cr)
	apply := tableWriter{mem: mem}
	for {
		rec, err := r.ReadRecord()
		if errors.Is(err, io.EOF) {
			break
		}
		if errors.Is(err, wal.ErrCorruptedRecord) || errors.Is(err, wal.ErrUnexpectedEOF) ||
			errors.Is(err, wal.ErrInvalidRecordType) {
			// Read the rest so size reflects the whole file.
			_, _ = io.Copy(io.Discard, cr)
			rs.torn = true
			break
		}
		if err != nil {
			return rs, fmt.Errorf("read journal: %w", err)
		}

		data, err := compression.DecodeFrame(rec)
		if err != nil {
			return rs, fmt.Errorf("journal record %d: %w", rs.batches+1, err)
		}
		wb, err := batch.NewFromData(data)
		if err != nil {
			return rs, fmt.Errorf("journal record %d: %w", rs.batches+1, err)
		}
		rs.batches++
		if wb.Sequence() <= afterSeq {
			continue
		}
		if err := wb.Iterate(apply); err != nil {
			return rs, fmt.Errorf("journal record %d: %w", rs.batches, err)
		}
		rs.ops += uint64(wb.Count())
		rs.lastSeq = wb.Sequence()
	}
	rs.validEnd = r.ValidEnd()
	rs.size = cr.n
	return rs, nil
}

// tableWriter applies batch records to a memtable, copying out of the
// batch buffer.
type tableWriter struct {
	mem *memtable.Memtable
}

func (t tableWriter) Put(key, value []byte) error {
	t.mem.Put(clone(key), clone(value))
	return nil
}

func (t tableWriter) Delete(key []byte) error {
	t.mem.Delete(key)
	return nil
}

func clone(b []byte) []byte {
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
