// Package checksum computes the CRC32C (Castagnoli) checksum used to
// guard the metadata+payload region of a frame, the same small wrapper
// shape as a checksum helper but over the Castagnoli
// polynomial the wire protocol requires.
package checksum

import "hash/crc32"

type CRC uint32

var castagnoliTable = crc32.MakeTable(crc32.Castagnoli)

// Checksum32C returns the CRC32C of data, seeded at 0.
func Checksum32C(data []byte) CRC {
	return CRC(crc32.Checksum(data, castagnoliTable))
}

// Verify reports whether data hashes to want under CRC32C.
func Verify(data []byte, want uint32) bool {
	return uint32(Checksum32C(data)) == want
}
