package flashstore

import (
	"encoding/binary"
	"hash/crc32"
)

// Endianness defines the byte order of every multi-byte field on flash.
var Endianness = binary.LittleEndian

// Page header layout:
//
//	[0:4] magic "TGPG"
//	[4:8] sequence number, incremented every time a page is opened
const (
	pageHeaderSize = 8
	pageMagic      = 0x47504754 // "TGPG" little-endian
)

// Record layout, padded to a multiple of recordAlign:
//
//	[0]   marker
//	[1]   key
//	[2:4] payload length
//	[4:8] crc32 (IEEE) of bytes [0:4] followed by the payload
//	[8:]  payload
const (
	recordHeaderSize = 8
	recordMarker     = 0x5A
	recordAlign      = 4
)

func alignUp(n int64) int64 {
	return (n + recordAlign - 1) &^ (recordAlign - 1)
}

// recordSize returns the number of bytes a record with an n byte payload
// occupies on flash, padding included.
func recordSize(n int) int64 {
	return alignUp(int64(recordHeaderSize + n))
}

func encodePageHeader(seq uint32) []byte {
	var b [pageHeaderSize]byte
	Endianness.PutUint32(b[0:], pageMagic)
	Endianness.PutUint32(b[4:], seq)
	return b[:]
}

// encodeRecord returns the record bytes without trailing padding. Padding is
// left erased.
func encodeRecord(key byte, payload []byte) []byte {
	b := make([]byte, recordHeaderSize+len(payload))
	b[0] = recordMarker
	b[1] = key
	Endianness.PutUint16(b[2:], uint16(len(payload)))
	copy(b[recordHeaderSize:], payload)
	Endianness.PutUint32(b[4:], recordChecksum(b))
	return b
}

func recordChecksum(rec []byte) uint32 {
	hash := crc32.NewIEEE()
	hash.Write(rec[:4])
	hash.Write(rec[recordHeaderSize:])
	return hash.Sum32()
}

func isErased(b []byte) bool {
	for _, c := range b {
		if c != Erased {
			return false
		}
	}
	return true
}
