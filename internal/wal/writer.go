// writer.go implements log writing.
//
// Writer provides an append-only abstraction for writing logical records,
// fragmenting them across block boundaries.
package wal

import (
	"encoding/binary"
	"io"
)

// Writer writes records to a log file.
type Writer struct {
	dest        io.Writer
	blockOffset int // Current offset within the current block
	headerBuf   [HeaderSize]byte
}

// NewWriter creates a writer that appends to dest. size is the current size
// of the log, so appends to an existing file continue its block layout.
func NewWriter(dest io.Writer, size int64) *Writer {
	return &Writer{
		dest:        dest,
		blockOffset: int(size % BlockSize),
	}
}

// AddRecord writes a complete logical record to the log.
// The record may be split into multiple physical records if it doesn't fit
// in the current block.
//
// Returns the number of bytes written (including headers and padding).
func (w *Writer) AddRecord(data []byte) (int, error) {
	ptr := data
	left := len(data)
	totalWritten := 0
	begin := true

	// Note: even if data is empty, we emit a single zero-length record
	for {
		leftover := BlockSize - w.blockOffset

		// If there's not enough space for a header, pad and move to next block
		if leftover < HeaderSize {
			if leftover > 0 {
				n, err := w.dest.Write(make([]byte, leftover))
				totalWritten += n
				if err != nil {
					return totalWritten, err
				}
			}
			w.blockOffset = 0
		}

		avail := BlockSize - w.blockOffset - HeaderSize
		fragmentLength := min(left, avail)

		end := left == fragmentLength
		var recordType RecordType
		switch {
		case begin && end:
			recordType = FullType
		case begin:
			recordType = FirstType
		case end:
			recordType = LastType
		default:
			recordType = MiddleType
		}

		n, err := w.emitPhysicalRecord(recordType, ptr[:fragmentLength])
		totalWritten += n
		if err != nil {
			return totalWritten, err
		}

		ptr = ptr[fragmentLength:]
		left -= fragmentLength
		begin = false
		if left == 0 {
			return totalWritten, nil
		}
	}
}

func (w *Writer) emitPhysicalRecord(t RecordType, payload []byte) (int, error) {
	binary.LittleEndian.PutUint32(w.headerBuf[0:4], recordCRC(t, payload))
	binary.LittleEndian.PutUint16(w.headerBuf[4:6], uint16(len(payload)))
	w.headerBuf[6] = byte(t)

	total, err := w.dest.Write(w.headerBuf[:])
	if err != nil {
		return total, err
	}
	n, err := w.dest.Write(payload)
	total += n
	if err != nil {
		return total, err
	}
	w.blockOffset += HeaderSize + len(payload)
	return total, nil
}

// BlockOffset returns the current offset within the current block.
func (w *Writer) BlockOffset() int {
	return w.blockOffset
}
