// reader.go implements log reading.
//
// Reader reads logical records back, reassembling fragmented records. A
// damaged or truncated record ends the log: the journal engine treats
// everything after the last intact record as a torn write.
package wal

import (
	"encoding/binary"
	"errors"
	"io"
)

var (
	// ErrCorruptedRecord indicates a record with an invalid checksum.
	ErrCorruptedRecord = errors.New("wal: corrupted record (bad checksum)")

	// ErrInvalidRecordType indicates an unrecognized record type or an
	// out-of-order fragment.
	ErrInvalidRecordType = errors.New("wal: invalid record type")

	// ErrUnexpectedEOF indicates a log that ends inside a record.
	ErrUnexpectedEOF = errors.New("wal: unexpected end of file")
)

// Reader reads records from a log file.
type Reader struct {
	src          io.Reader
	backingStore []byte
	buffer       []byte // Unconsumed part of the current block
	blockStart   int64  // File offset of the current block
	blockLen     int    // Bytes read into the current block
	eof          bool

	// validEnd is the file offset just past the last complete logical record.
	validEnd int64

	fragments []byte
}

// NewReader creates a reader over src, which must be positioned at the
// start of the log.
func NewReader(src io.Reader) *Reader {
	return &Reader{
		src:          src,
		backingStore: make([]byte, BlockSize),
	}
}

// ReadRecord reads the next logical record. It returns io.EOF after the last
// record. The returned slice is owned by the caller.
func (r *Reader) ReadRecord() ([]byte, error) {
	r.fragments = r.fragments[:0]
	inFragmented := false

	for {
		t, payload, err := r.readPhysicalRecord()
		if err != nil {
			if errors.Is(err, io.EOF) && inFragmented {
				return nil, ErrUnexpectedEOF
			}
			return nil, err
		}

		switch t {
		case FullType:
			if inFragmented {
				return nil, ErrInvalidRecordType
			}
			r.validEnd = r.offset()
			return append([]byte(nil), payload...), nil

		case FirstType:
			if inFragmented {
				return nil, ErrInvalidRecordType
			}
			r.fragments = append(r.fragments, payload...)
			inFragmented = true

		case MiddleType:
			if !inFragmented {
				return nil, ErrInvalidRecordType
			}
			r.fragments = append(r.fragments, payload...)

		case LastType:
			if !inFragmented {
				return nil, ErrInvalidRecordType
			}
			r.fragments = append(r.fragments, payload...)
			r.validEnd = r.offset()
			return append([]byte(nil), r.fragments...), nil

		default:
			return nil, ErrInvalidRecordType
		}
	}
}

// ValidEnd returns the file offset just past the last complete record read.
// Truncating the log there removes a torn tail.
func (r *Reader) ValidEnd() int64 {
	return r.validEnd
}

func (r *Reader) offset() int64 {
	return r.blockStart + int64(r.blockLen-len(r.buffer))
}

func (r *Reader) readPhysicalRecord() (RecordType, []byte, error) {
	for {
		if len(r.buffer) < HeaderSize {
			if r.eof {
				return 0, nil, io.EOF
			}
			// Whatever is left of the current block is padding.
			r.blockStart += int64(r.blockLen)
			n, err := io.ReadFull(r.src, r.backingStore)
			switch {
			case errors.Is(err, io.EOF), errors.Is(err, io.ErrUnexpectedEOF):
				r.eof = true
			case err != nil:
				return 0, nil, err
			}
			r.blockLen = n
			r.buffer = r.backingStore[:n]
			if n < HeaderSize {
				return 0, nil, io.EOF
			}
		}

		header := r.buffer[:HeaderSize]
		crcStored := binary.LittleEndian.Uint32(header[0:4])
		length := int(binary.LittleEndian.Uint16(header[4:6]))
		t := RecordType(header[6])

		if t == ZeroType && length == 0 && crcStored == 0 {
			// Preallocated or padded space: nothing more in this block.
			r.buffer = r.buffer[len(r.buffer):]
			continue
		}
		if HeaderSize+length > len(r.buffer) {
			if r.eof {
				return 0, nil, ErrUnexpectedEOF
			}
			return 0, nil, ErrCorruptedRecord
		}

		payload := r.buffer[HeaderSize : HeaderSize+length]
		if recordCRC(t, payload) != crcStored {
			return 0, nil, ErrCorruptedRecord
		}
		r.buffer = r.buffer[HeaderSize+length:]
		return t, payload, nil
	}
}
