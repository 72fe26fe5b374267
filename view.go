package xbios

import "encoding/binary"

// The teacher parses its packed, little-endian, host-independent
// structs field by field into Go structs via binary.Read. Per
// SPEC_FULL.md DESIGN NOTES §9 ("re-architect as offset + length
// views"), this module instead reads/writes in place against the
// owned backing buffer through small helpers keyed by (offset, width)
// — no aliased struct overlays, and no copy in the read path.

// u32At reads a little-endian uint32 at byte offset off in buf.
func u32At(buf []byte, off int) uint32 {
	return binary.LittleEndian.Uint32(buf[off : off+4])
}

// putU32At writes a little-endian uint32 at byte offset off in buf.
func putU32At(buf []byte, off int, v uint32) {
	binary.LittleEndian.PutUint32(buf[off:off+4], v)
}

// u64At reads a little-endian uint64 at byte offset off in buf.
func u64At(buf []byte, off int) uint64 {
	return binary.LittleEndian.Uint64(buf[off : off+8])
}

// putU64At writes a little-endian uint64 at byte offset off in buf.
func putU64At(buf []byte, off int, v uint64) {
	binary.LittleEndian.PutUint64(buf[off:off+8], v)
}

// sliceAt returns the n-byte view of buf starting at off. The caller
// is expected to have already bounds-checked via Layout.Contains; this
// does not copy.
func sliceAt(buf []byte, off, n int) []byte {
	return buf[off : off+n]
}

// alignTo rounds v up to the next multiple of a, mirroring the
// teacher's align_to helper in common.go.
func alignTo(v, a int) int {
	return (v + a - 1) / a * a
}
