// Package batch implements the write batch format of the journal engine.
//
// Every committed write, a single Set or Delete as well as a whole
// transaction, is one batch and one journal record.
//
// WriteBatch Format:
//
//	Header (12 bytes):
//	  - 8 bytes: sequence number (little-endian uint64)
//	  - 4 bytes: count (little-endian uint32)
//	Records (repeated):
//	  - 1 byte: tag (record type)
//	  - length-prefixed key
//	  - (for Value): length-prefixed value
//
// Lengths are unsigned varints.
package batch

import (
	"encoding/binary"
	"errors"
)

// HeaderSize is the size in bytes of the WriteBatch header (8 bytes sequence + 4 bytes count).
const HeaderSize = 12

// Record types for WriteBatch entries.
// These values are embedded in the journal and MUST NOT change.
const (
	TypeDeletion byte = 0x00
	TypeValue    byte = 0x01
)

var (
	// ErrCorrupted indicates a malformed WriteBatch.
	ErrCorrupted = errors.New("batch: corrupted write batch")

	// ErrTooSmall indicates the batch is smaller than the header.
	ErrTooSmall = errors.New("batch: too small")
)

// WriteBatch represents a collection of writes to be applied atomically.
type WriteBatch struct {
	data []byte // The raw batch data including header
}

// New creates a new empty WriteBatch.
func New() *WriteBatch {
	return &WriteBatch{data: make([]byte, HeaderSize)}
}

// NewFromData creates a WriteBatch from existing data.
func NewFromData(data []byte) (*WriteBatch, error) {
	if len(data) < HeaderSize {
		return nil, ErrTooSmall
	}
	return &WriteBatch{data: data}, nil
}

// Clear resets the batch to empty state.
func (wb *WriteBatch) Clear() {
	wb.data = wb.data[:HeaderSize]
	clear(wb.data)
}

// Data returns the raw batch data.
func (wb *WriteBatch) Data() []byte {
	return wb.data
}

// Size returns the size of the batch data in bytes.
func (wb *WriteBatch) Size() int {
	return len(wb.data)
}

// Count returns the number of records in the batch.
func (wb *WriteBatch) Count() uint32 {
	return binary.LittleEndian.Uint32(wb.data[8:12])
}

func (wb *WriteBatch) setCount(count uint32) {
	binary.LittleEndian.PutUint32(wb.data[8:12], count)
}

// Sequence returns the sequence number of the batch.
func (wb *WriteBatch) Sequence() uint64 {
	return binary.LittleEndian.Uint64(wb.data[0:8])
}

// SetSequence sets the sequence number of the batch.
func (wb *WriteBatch) SetSequence(seq uint64) {
	binary.LittleEndian.PutUint64(wb.data[0:8], seq)
}

// Put adds a Put record to the batch.
func (wb *WriteBatch) Put(key, value []byte) {
	wb.data = append(wb.data, TypeValue)
	wb.data = appendLengthPrefixed(wb.data, key)
	wb.data = appendLengthPrefixed(wb.data, value)
	wb.setCount(wb.Count() + 1)
}

// Delete adds a Delete record to the batch.
func (wb *WriteBatch) Delete(key []byte) {
	wb.data = append(wb.data, TypeDeletion)
	wb.data = appendLengthPrefixed(wb.data, key)
	wb.setCount(wb.Count() + 1)
}

// Handler is called for each record in the batch during iteration.
type Handler interface {
	Put(key, value []byte) error
	Delete(key []byte) error
}

// Iterate calls the handler for each record in the batch, in insertion
// order. The slices passed to the handler alias the batch data.
func (wb *WriteBatch) Iterate(handler Handler) error {
	if len(wb.data) < HeaderSize {
		return ErrTooSmall
	}

	data := wb.data[HeaderSize:]
	var seen uint32
	for len(data) > 0 {
		tag := data[0]
		data = data[1:]

		var key, value []byte
		var err error
		switch tag {
		case TypeValue:
			if key, data, err = decodeLengthPrefixed(data); err != nil {
				return err
			}
			if value, data, err = decodeLengthPrefixed(data); err != nil {
				return err
			}
			if err := handler.Put(key, value); err != nil {
				return err
			}
		case TypeDeletion:
			if key, data, err = decodeLengthPrefixed(data); err != nil {
				return err
			}
			if err := handler.Delete(key); err != nil {
				return err
			}
		default:
			return ErrCorrupted
		}
		seen++
	}

	if seen != wb.Count() {
		return ErrCorrupted
	}
	return nil
}

func appendLengthPrefixed(dst, value []byte) []byte {
	dst = binary.AppendUvarint(dst, uint64(len(value)))
	return append(dst, value...)
}

func decodeLengthPrefixed(data []byte) ([]byte, []byte, error) {
	length, n := binary.Uvarint(data)
	if n <= 0 {
		return nil, nil, ErrCorrupted
	}
	data = data[n:]
	if uint64(len(data)) < length {
		return nil, nil, ErrCorrupted
	}
	return data[:length], data[length:], nil
}
