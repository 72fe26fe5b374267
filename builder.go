package xbios

import "fmt"

// Components are the independently supplied inputs to Build
// (SPEC_FULL.md §4.5). Every byte slice is written verbatim into its
// canonical slot; Build never re-derives one component from another.
type Components struct {
	Preldr           []byte // raw preldr block (code+params+digest), exactly SizePreldrBlock bytes; nil leaves the block zeroed
	InitTable        []byte
	CompressedKernel []byte
	KernelData       []byte

	EntryPoint    uint32
	KernelKey     [bldrKeySize]byte
	KernelDataKey [bldrKeySize]byte
	BFMKey        *[bldrKeySize]byte

	// BldrKey encrypts the 2BL block when BuildParams.EncBldr is set.
	BldrKey []byte
}

// initTableChecksum is a simple additive checksum over the init table
// bytes. The base spec leaves the real init-table checksum algorithm
// as an unresolved collaborator contract (DESIGN NOTES §9); this is a
// placeholder fixup disabled by the hackinittbl flag, not a claim
// about the real console's algorithm.
func initTableChecksum(data []byte) uint32 {
	var sum uint32
	for _, b := range data {
		sum += uint32(b)
	}
	return sum
}

// Build implements build() (SPEC_FULL.md §4.5): assembles a fresh
// image from independently supplied components in the fixed encryption
// order (layout, populate, patch boot params, compute digests, encrypt
// kernel+data, encrypt 2BL), then tiles down to BuildParams.RomSize if
// it is smaller than the logical 1 MiB window.
func Build(c Components, bp BuildParams, prim Primitives) ([]byte, error) {
	if bp.RomSize == 0 {
		bp.RomSize = sizeOneMiB
	}
	if !IsAllowedSize(bp.RomSize) {
		return nil, fmt.Errorf("%w: romsize %d", ErrInvalidSize, bp.RomSize)
	}

	layout, err := ResolveLayout(sizeOneMiB, bp.InitTableOffset)
	if err != nil {
		return nil, err
	}

	lowWatermark := sizeOneMiB - bp.RomSize // regions must live at/above this offset to survive tiling

	buf := make([]byte, sizeOneMiB)

	if len(c.InitTable) > 0 {
		if !layout.Contains(layout.InitTableOffset, len(c.InitTable)) {
			return nil, fmt.Errorf("%w: init table does not fit at %#x", ErrFatal, layout.InitTableOffset)
		}
		if layout.InitTableOffset < lowWatermark {
			return nil, fmt.Errorf("%w: init table at %#x falls outside the %d-byte replicated window", ErrInvalidSize, layout.InitTableOffset, bp.RomSize)
		}
		copy(buf[layout.InitTableOffset:], c.InitTable)
		if !bp.HackInitTbl {
			putU32At(buf, layout.InitTableOffset+len(c.InitTable), initTableChecksum(c.InitTable))
		}
	}

	if len(c.Preldr) > 0 {
		if len(c.Preldr) != SizePreldrBlock {
			return nil, fmt.Errorf("%w: preldr component must be exactly %#x bytes", ErrFatal, SizePreldrBlock)
		}
		copy(buf[layout.PreldrOffset:], c.Preldr)
	}

	block := sliceAt(buf, layout.BldrOffset, SizeBldrBlock)

	kernelOff := bldrKernelRegionOffset
	kernelLen := len(c.CompressedKernel)
	dataOff := kernelOff + kernelLen
	dataLen := len(c.KernelData)
	if kernelOff+kernelLen+dataLen > SizeBldrBlock {
		return nil, fmt.Errorf("%w: compressed kernel + kernel data do not fit in the 2BL block", ErrInvalidBldr)
	}

	putU32At(block, bldrEntryDescOffset, c.EntryPoint)
	copy(block[bldrKeysOffset:], c.KernelKey[:])
	copy(block[bldrKeysOffset+bldrKeySize:], c.KernelDataKey[:])

	kernelKeyFlags := uint32(0)
	if bp.ZeroKernelKey {
		clear(block[bldrKeysOffset : bldrKeysOffset+bldrKeySize])
		kernelKeyFlags |= KernelDelayFlag
	}
	if bp.BFM {
		if c.BFMKey == nil {
			return nil, fmt.Errorf("%w: bfm flag set but no BFM key supplied", ErrKeyMissing)
		}
		copy(block[bldrBFMKeyOffset:], c.BFMKey[:])
	}

	copy(block[kernelOff:], c.CompressedKernel)
	copy(block[dataOff:], c.KernelData)

	if !bp.NoBootParams {
		sig := BootSignature
		if bp.HackSignature {
			sig = u32At(block, bldrSignatureOffset) // leave whatever is already there
		}
		writeBootParams(block, BootParams{
			Signature:        sig,
			BldrSize:         uint32(kernelLen),
			KrnlDataSize:     uint32(dataLen),
			RomSize:          uint32(bp.RomSize),
			KernelOffset:     uint32(kernelOff),
			KernelDataOffset: uint32(dataOff),
			KernelKeyFlags:   kernelKeyFlags,
		})
	}

	if bp.Fix2BLDigest {
		digest := prim.Hasher.Sum(block)
		digestRegion := sliceAt(buf, layout.PreldrDigestOffset, SizeROMDigest)
		clear(digestRegion)
		copy(digestRegion, digest[:])
	}

	if bp.EncKernel {
		if err := encryptInPlace(prim.Cipher, block[kernelOff:kernelOff+kernelLen], c.KernelKey[:]); err != nil {
			return nil, fmt.Errorf("%w: kernel: %v", ErrFatal, err)
		}
		if err := encryptInPlace(prim.Cipher, block[dataOff:dataOff+dataLen], c.KernelDataKey[:]); err != nil {
			return nil, fmt.Errorf("%w: kernel data: %v", ErrFatal, err)
		}
	}

	if bp.EncBldr {
		if len(c.BldrKey) == 0 {
			return nil, ErrKeyMissing
		}
		if err := encryptInPlace(prim.Cipher, block, c.BldrKey); err != nil {
			return nil, fmt.Errorf("%w: 2BL: %v", ErrFatal, err)
		}
	}

	if bp.RomSize == sizeOneMiB {
		return buf, nil
	}
	out := make([]byte, bp.RomSize)
	copy(out, buf[lowWatermark:])
	return out, nil
}

// encryptInPlace runs cipher over data with key and copies the result
// back, since CipherFactory.XORKeyStream returns a fresh buffer rather
// than mutating its argument.
func encryptInPlace(cipher CipherFactory, data, key []byte) error {
	out, err := cipher.XORKeyStream(data, key)
	if err != nil {
		return err
	}
	copy(data, out)
	return nil
}
