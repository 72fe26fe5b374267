package xbios

import "fmt"

// Region sizes and offsets, bit-exact per SPEC_FULL.md §6.
const (
	// SizeMCPXBlock is derived from the S1 scenario in SPEC_FULL.md
	// §8 (preldr at 0xFD400, MCPX the final region of a 1 MiB image):
	// 0x100000 - (0xFD400 + 0x2A00) = 0x200.
	SizeMCPXBlock    = 0x200
	SizePreldrBlock  = 0x2A00
	SizeBldrBlock    = 0x6000
	SizeROMDigest    = 0x100
	SizePreldrParams = 0x80
	SizePreldrNonce  = 0x10

	// PreldrCodeSize is the usable preldr code region: the block minus
	// the ROM digest and the parameter struct.
	PreldrCodeSize = SizePreldrBlock - SizeROMDigest - SizePreldrParams

	// KernelDelayFlag marks that boot_params.kernel_key is supplied
	// externally rather than read from the image.
	KernelDelayFlag uint32 = 0x80000000

	// BootSignature is the fixed little-endian boot-params signature
	// ("JyTx") that a valid decrypted 2BL must carry.
	BootSignature uint32 = 2018801994

	// DefaultInitTableOffset is used when load params don't override
	// it. Chosen low in the image, well below the 2BL block.
	DefaultInitTableOffset = 0x1000

	sizeOneMiB     = 1 << 20
	sizeHalfMiB    = 1 << 19
	sizeQuarterMiB = 1 << 18
)

// AllowedImageSizes are the only byte lengths load() accepts.
var AllowedImageSizes = [...]int{sizeQuarterMiB, sizeHalfMiB, sizeOneMiB}

// IsAllowedSize reports whether n is one of the allowed BIOS image
// sizes.
func IsAllowedSize(n int) bool {
	for _, s := range AllowedImageSizes {
		if n == s {
			return true
		}
	}
	return false
}

// Layout holds the absolute byte offsets of every nested region within
// the logical 1 MiB image window. Pure data, computed once by
// ResolveLayout and never mutated.
type Layout struct {
	ImageSize int // the logical (always-1-MiB) window size this layout was computed against

	MCPXOffset   int
	PreldrOffset int
	BldrOffset   int

	PreldrParamsOffset int
	PreldrDigestOffset int

	InitTableOffset int
}

// ResolveLayout computes the region offsets for a buffer of imageSize
// bytes, honoring initTableOffset if non-zero (0 selects the default).
// Pure; performs no I/O and never touches a backing buffer.
func ResolveLayout(imageSize int, initTableOffset int) (Layout, error) {
	if !IsAllowedSize(imageSize) {
		return Layout{}, fmt.Errorf("%w: %d", ErrInvalidSize, imageSize)
	}

	top := sizeOneMiB // the logical window is always exactly 1 MiB

	mcpxOff := top - SizeMCPXBlock
	preldrOff := mcpxOff - SizePreldrBlock
	bldrOff := preldrOff - SizeBldrBlock
	if bldrOff < 0 {
		return Layout{}, fmt.Errorf("%w: layout does not fit in image", ErrInvalidSize)
	}

	paramsOff := preldrOff + PreldrCodeSize
	digestOff := paramsOff + SizePreldrParams

	if initTableOffset == 0 {
		initTableOffset = DefaultInitTableOffset
	}
	if initTableOffset < 0 || initTableOffset >= bldrOff {
		return Layout{}, fmt.Errorf("%w: init table offset %#x out of range", ErrInvalidSize, initTableOffset)
	}

	return Layout{
		ImageSize:          top,
		MCPXOffset:         mcpxOff,
		PreldrOffset:       preldrOff,
		BldrOffset:         bldrOff,
		PreldrParamsOffset: paramsOff,
		PreldrDigestOffset: digestOff,
		InitTableOffset:    initTableOffset,
	}, nil
}

// Contains reports whether the half-open byte range [off, off+n) lies
// entirely within the logical 1 MiB window. Every derived-pointer walk
// in the preldr/2BL decoders must pass through this before a read.
func (l Layout) Contains(off, n int) bool {
	if off < 0 || n < 0 {
		return false
	}
	end := off + n
	return end >= off && end <= sizeOneMiB
}
