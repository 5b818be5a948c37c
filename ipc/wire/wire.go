// Package wire centralizes the big-endian integer and UTF-8 string
// encoding used on every byte of the EE wire protocol. Every multi-byte
// field on the wire is big-endian regardless of host byte order; no
// other package in this module casts raw memory to do its own encoding.
package wire

import "encoding/binary"

// PutU16 appends a big-endian uint16.
func PutU16(dst []byte, v uint16) []byte {
	var b [2]byte
	binary.BigEndian.PutUint16(b[:], v)
	return append(dst, b[:]...)
}

// PutU32 appends a big-endian uint32.
func PutU32(dst []byte, v uint32) []byte {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], v)
	return append(dst, b[:]...)
}

// PutU64 appends a big-endian uint64.
func PutU64(dst []byte, v uint64) []byte {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], v)
	return append(dst, b[:]...)
}

// PutString appends a 4-byte big-endian length followed by the UTF-8
// bytes of s.
func PutString(dst []byte, s string) []byte {
	dst = PutU32(dst, uint32(len(s)))
	return append(dst, s...)
}

// PutBytes appends a 4-byte big-endian length followed by b.
func PutBytes(dst []byte, b []byte) []byte {
	dst = PutU32(dst, uint32(len(b)))
	return append(dst, b...)
}

// U16 reads a big-endian uint16 from the front of b.
func U16(b []byte) uint16 {
	return binary.BigEndian.Uint16(b)
}

// U32 reads a big-endian uint32 from the front of b.
func U32(b []byte) uint32 {
	return binary.BigEndian.Uint32(b)
}

// U64 reads a big-endian uint64 from the front of b.
func U64(b []byte) uint64 {
	return binary.BigEndian.Uint64(b)
}
