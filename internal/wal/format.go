// Package wal provides the block-framed record log used by the journal engine.
//
// File Format:
// A log file is divided into fixed-size blocks (32KB). Records are written
// sequentially and may span multiple blocks. Each physical record has a header
// containing a checksum, length, and type.
//
//	+----------+---------+------+---------+
//	| CRC (4B) | Len(2B) | Type | Payload |
//	+----------+---------+------+---------+
//
// CRC is the masked CRC32C of Type + Payload. A block never ends with fewer
// than HeaderSize bytes of a header; the tail is zero-padded instead.
package wal

import "hash/crc32"

// BlockSize is the size of each block in the log file.
const BlockSize = 32768

// HeaderSize is the size of the record header.
// Header: checksum (4) + length (2) + type (1) = 7 bytes
const HeaderSize = 7

// MaxRecordPayload is the maximum payload size of a single physical record.
const MaxRecordPayload = BlockSize - HeaderSize

// RecordType represents the type of a physical record.
// These values are embedded in the on-disk format and MUST NOT change.
type RecordType uint8

const (
	// ZeroType is reserved for padding.
	ZeroType RecordType = 0

	// FullType indicates a complete record that fits within a single fragment.
	FullType RecordType = 1

	// FirstType indicates the first fragment of a record that spans multiple blocks.
	FirstType RecordType = 2

	// MiddleType indicates a middle fragment of a record.
	MiddleType RecordType = 3

	// LastType indicates the final fragment of a record.
	LastType RecordType = 4
)

// String returns the string representation of a RecordType.
func (t RecordType) String() string {
	switch t {
	case ZeroType:
		return "ZeroType"
	case FullType:
		return "FullType"
	case FirstType:
		return "FirstType"
	case MiddleType:
		return "MiddleType"
	case LastType:
		return "LastType"
	default:
		return "UnknownType"
	}
}

var crcTable = crc32.MakeTable(crc32.Castagnoli)

// maskDelta is the constant added during CRC masking. Masking keeps the CRC
// of data that itself embeds CRCs well distributed.
const maskDelta = 0xa282ead8

func maskCRC(crc uint32) uint32 {
	return ((crc >> 15) | (crc << 17)) + maskDelta
}

// recordCRC returns the masked checksum stored in a header.
func recordCRC(t RecordType, payload []byte) uint32 {
	crc := crc32.Update(0, crcTable, []byte{byte(t)})
	return maskCRC(crc32.Update(crc, crcTable, payload))
}
