package xbios

import "fmt"

// Replicate tiles src across a buffer of exactly n bytes. n must be a
// multiple of len(src), and len(src) must itself be an allowed image
// size; this is the "smaller files are tiled replicas" rule in
// SPEC_FULL.md §3/§4.1. Replicate(Replicate(b, n), n) == Replicate(b, n)
// for any valid b, n: tiling an already-full-size buffer with itself is
// the identity copy.
func Replicate(src []byte, n int) ([]byte, error) {
	if !IsAllowedSize(len(src)) {
		return nil, fmt.Errorf("%w: replicate source size %d", ErrInvalidSize, len(src))
	}
	if n <= 0 || n%len(src) != 0 {
		return nil, fmt.Errorf("%w: target size %d not a multiple of source size %d", ErrInvalidSize, n, len(src))
	}

	out := make([]byte, n)
	for off := 0; off < n; off += len(src) {
		copy(out[off:], src)
	}
	return out, nil
}

// ReplicateToWindow is the common case used by load(): tile a
// sub-1-MiB image file up to the logical 1 MiB window the codec always
// operates against. A buffer that is already 1 MiB is returned
// unmodified (copied, not aliased).
func ReplicateToWindow(src []byte) ([]byte, error) {
	return Replicate(src, sizeOneMiB)
}
