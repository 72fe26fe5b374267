package xbios

import "fmt"

// Offsets are relative to the 2BL block base (layout.BldrOffset).
// Table-of-(offset,width,field) per SPEC_FULL.md DESIGN NOTES §9,
// rather than a struct overlay on the mmap'd buffer.
const (
	bldrEntryDescOffset = 0x20
	bldrEntryDescSize   = 0x10 // entry_point u32 + 12 bytes reserved

	bldrKeysOffset = bldrEntryDescOffset + bldrEntryDescSize // 0x30
	bldrKeySize    = 20
	bldrKeysSize   = 2 * bldrKeySize // kernel_key, kernel_data_key

	bldrBootParamsOffset = bldrKeysOffset + bldrKeysSize // 0x58
	bldrBootParamsSize   = 32

	bldrSignatureOffset        = bldrBootParamsOffset + 0
	bldrSizeOffset             = bldrBootParamsOffset + 4
	bldrKrnlDataSizeOffset     = bldrBootParamsOffset + 8
	bldrRomSizeOffset          = bldrBootParamsOffset + 12
	bldrKernelOffsetOffset     = bldrBootParamsOffset + 16
	bldrKernelDataOffsetOffset = bldrBootParamsOffset + 20
	bldrKernelKeyFlagsOffset   = bldrBootParamsOffset + 24

	bldrBFMKeyOffset = bldrBootParamsOffset + bldrBootParamsSize // 0x78

	// bldrHeaderReserved is the fixed-layout prefix of the 2BL block
	// (entry descriptor, keys, boot params, BFM key slot) that is
	// never available to bldr_size+krnl_data_size.
	bldrHeaderReserved = bldrBFMKeyOffset + bldrKeySize // 0x8C

	// bldrKernelRegionOffset is the conventional start of the
	// compressed-kernel region the builder places components at,
	// 16-byte aligned immediately after the fixed header.
	bldrKernelRegionOffset = (bldrHeaderReserved + 15) &^ 15 // 0x90
)

// BootParams is the decoded, validated boot-parameter block (SPEC_FULL.md
// §3/§4.3). Offset + length view over the 2BL block; no aliasing.
type BootParams struct {
	Signature        uint32
	BldrSize         uint32
	KrnlDataSize     uint32
	RomSize          uint32
	KernelOffset     uint32
	KernelDataOffset uint32
	KernelKeyFlags   uint32
}

// KernelKeyDelayed reports whether KD_DELAY_FLAG is set: the in-image
// kernel key field is ignored and params.KernelKey (externally
// supplied) must be used instead.
func (b BootParams) KernelKeyDelayed() bool {
	return b.KernelKeyFlags&KernelDelayFlag != 0
}

func readBootParams(block []byte) BootParams {
	return BootParams{
		Signature:        u32At(block, bldrSignatureOffset),
		BldrSize:         u32At(block, bldrSizeOffset),
		KrnlDataSize:     u32At(block, bldrKrnlDataSizeOffset),
		RomSize:          u32At(block, bldrRomSizeOffset),
		KernelOffset:     u32At(block, bldrKernelOffsetOffset),
		KernelDataOffset: u32At(block, bldrKernelDataOffsetOffset),
		KernelKeyFlags:   u32At(block, bldrKernelKeyFlagsOffset),
	}
}

func writeBootParams(block []byte, bp BootParams) {
	putU32At(block, bldrSignatureOffset, bp.Signature)
	putU32At(block, bldrSizeOffset, bp.BldrSize)
	putU32At(block, bldrKrnlDataSizeOffset, bp.KrnlDataSize)
	putU32At(block, bldrRomSizeOffset, bp.RomSize)
	putU32At(block, bldrKernelOffsetOffset, bp.KernelOffset)
	putU32At(block, bldrKernelDataOffsetOffset, bp.KernelDataOffset)
	putU32At(block, bldrKernelKeyFlagsOffset, bp.KernelKeyFlags)
}

// Bldr is the decoded 2BL entity (SPEC_FULL.md §3).
type Bldr struct {
	EntryPoint uint32

	KernelKey     [bldrKeySize]byte
	KernelDataKey [bldrKeySize]byte
	BFMKey        *[bldrKeySize]byte // nil unless the 2BL carries a boot-from-media key

	BootParams BootParams

	// Plaintext is the monotonic encryption-state flag: once true, the
	// decoder never flips it back to false.
	Plaintext bool
}

// validateBldrBootParams implements the structural checks in
// SPEC_FULL.md §4.3. physicalSize is the image's on-disk size (before
// any 1 MiB tiling), since the spec compares RomSize against "the
// loaded size", not the logical window.
func validateBldrBootParams(bp BootParams, physicalSize int) error {
	if bp.Signature != BootSignature {
		return fmt.Errorf("%w: signature %#x != %#x", ErrInvalidBldr, bp.Signature, BootSignature)
	}
	if bp.BldrSize == 0 {
		return fmt.Errorf("%w: bldr_size is zero", ErrInvalidBldr)
	}
	if bp.KrnlDataSize == 0 {
		return fmt.Errorf("%w: krnl_data_size is zero", ErrInvalidBldr)
	}
	sum := uint64(bp.BldrSize) + uint64(bp.KrnlDataSize)
	if sum > uint64(SizeBldrBlock-bldrHeaderReserved) {
		return fmt.Errorf("%w: bldr_size+krnl_data_size %d exceeds 2BL block", ErrInvalidBldr, sum)
	}
	if !IsAllowedSize(int(bp.RomSize)) || int(bp.RomSize) != physicalSize {
		return fmt.Errorf("%w: romsize %d does not match loaded size %d", ErrInvalidBldr, bp.RomSize, physicalSize)
	}
	return nil
}

// DecodeBldr implements decode_bldr (SPEC_FULL.md §4.3). buf is the
// full logical window; preldrDecrypted reports whether DecodePreldr
// already put the 2BL block in plaintext (PreldrBldrDecrypted).
// physicalSize is the on-disk image size used for the RomSize check.
func DecodeBldr(buf []byte, layout Layout, physicalSize int, bldrKey []byte, kernelKeyOverride []byte, preldrDecrypted bool, cipher CipherFactory) (*Bldr, LoadStatus, error) {
	if !layout.Contains(layout.BldrOffset, SizeBldrBlock) {
		return nil, LoadFailed, fmt.Errorf("%w: 2BL block out of bounds", ErrFatal)
	}
	block := sliceAt(buf, layout.BldrOffset, SizeBldrBlock)

	b := &Bldr{Plaintext: preldrDecrypted}
	if !preldrDecrypted {
		if len(bldrKey) == 0 {
			return nil, LoadFailed, ErrKeyMissing
		}
		decrypted, err := cipher.XORKeyStream(block, bldrKey)
		if err != nil {
			return nil, LoadFailed, fmt.Errorf("%w: %v", ErrFatal, err)
		}
		copy(block, decrypted)
		b.Plaintext = true
	}

	b.EntryPoint = u32At(block, bldrEntryDescOffset)
	copy(b.KernelKey[:], block[bldrKeysOffset:bldrKeysOffset+bldrKeySize])
	copy(b.KernelDataKey[:], block[bldrKeysOffset+bldrKeySize:bldrKeysOffset+bldrKeysSize])

	var bfm [bldrKeySize]byte
	copy(bfm[:], block[bldrBFMKeyOffset:bldrBFMKeyOffset+bldrKeySize])
	if bfm != ([bldrKeySize]byte{}) {
		b.BFMKey = &bfm
	}

	b.BootParams = readBootParams(block)

	if kernelKeyOverride != nil && b.BootParams.KernelKeyDelayed() {
		copy(b.KernelKey[:], kernelKeyOverride)
	}

	if err := validateBldrBootParams(b.BootParams, physicalSize); err != nil {
		return b, LoadInvalidBldr, err
	}
	return b, LoadSuccess, nil
}

// EffectiveKernelKey returns the key to use for kernel decryption,
// honoring KD_DELAY_FLAG.
func (b *Bldr) EffectiveKernelKey() [bldrKeySize]byte {
	return b.KernelKey
}
