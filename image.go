package xbios

import (
	"fmt"
	"os"

	"github.com/edsrzf/mmap-go"

	"github.com/xbiosforge/xbioscodec/stub"
)

// Image is the handle at the center of the codec lifecycle: created by
// Load or LoadBytes (parse; Build only returns raw image bytes, which
// LoadBytes can turn into an Image), mutated only by the decoder
// steps in DecodePreldr/DecodeBldr/Kernel.Decrypt/Kernel.Decompress,
// and destroyed by Close, which zeroes derived key material and frees
// the owned buffer on every exit path (SPEC_FULL.md §5).
//
// Buf is the owned logical 1 MiB window; a source file smaller than
// 1 MiB has already been tiled into it by Load. Per DESIGN NOTES §9,
// Preldr/Bldr/Kernel hold offset+length views into Buf, not aliased
// pointers of their own.
type Image struct {
	Buf          []byte
	PhysicalSize int
	Layout       Layout
	Status       LoadStatus

	Preldr *Preldr
	Bldr   *Bldr
	Kernel *Kernel

	keyBuffers [][]byte // locked on derivation, zeroed+unlocked on Close
	closed     bool
}

func (im *Image) track(key []byte) {
	if len(key) == 0 {
		return
	}
	_ = stub.Lock(key)
	im.keyBuffers = append(im.keyBuffers, key)
}

// Close implements unload: zeroes every tracked key buffer, releases
// any mlock on them, and drops the owned buffer. Idempotent and safe
// to call on a partially-initialized Image from an early failure
// return, per the scoped-acquisition rule in §5.
func (im *Image) Close() error {
	if im.closed {
		return nil
	}
	im.closed = true
	for _, k := range im.keyBuffers {
		for i := range k {
			k[i] = 0
		}
		_ = stub.Unlock(k)
	}
	im.keyBuffers = nil
	im.Buf = nil
	return nil
}

// Load implements load(): reads path (which must be exactly 256 KiB,
// 512 KiB, or 1 MiB), memory-maps it read-only to copy its bytes into
// an owned, mutable 1 MiB logical window, then runs the preldr and 2BL
// decoders in the fixed sequence the spec requires. The mmap is
// released before Load returns; only the owned copy persists on the
// Image.
func Load(path string, params LoadParams, prim Primitives) (*Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("xbios: open %s: %w", path, err)
	}
	defer f.Close()

	m, err := mmap.Map(f, mmap.RDONLY, 0)
	if err != nil {
		return nil, fmt.Errorf("xbios: mmap %s: %w", path, err)
	}
	defer m.Unmap()

	return LoadBytes(m, params, prim)
}

// LoadBytes is the buffer-oriented core of Load, split out so tests and
// the builder's round-trip checks don't need a backing file.
func LoadBytes(src []byte, params LoadParams, prim Primitives) (*Image, error) {
	physicalSize := len(src)
	if !IsAllowedSize(physicalSize) {
		return nil, fmt.Errorf("%w: %d", ErrInvalidSize, physicalSize)
	}
	if params.RomSize != 0 && params.RomSize != physicalSize {
		return nil, fmt.Errorf("%w: %d, expected %d", ErrInvalidSize, physicalSize, params.RomSize)
	}

	buf, err := ReplicateToWindow(src)
	if err != nil {
		return nil, err
	}

	layout, err := ResolveLayout(len(buf), params.InitTableOffset)
	if err != nil {
		return nil, err
	}

	im := &Image{Buf: buf, PhysicalSize: physicalSize, Layout: layout, Status: LoadFailed}

	if params.MCPX == MCPXv1_0 {
		im.Preldr = &Preldr{Status: PreldrNotFound}
	} else {
		pre, err := DecodePreldr(buf, layout, params.SecretBootKey, prim.Cipher, prim.Hasher, prim.Verifier)
		if err != nil && pre.Status == PreldrError {
			im.Close()
			return nil, err
		}
		im.Preldr = pre
		if pre.Status == PreldrBldrDecrypted {
			im.track(pre.BldrKey[:])
		}
	}

	preldrDecrypted := im.Preldr.Status == PreldrBldrDecrypted
	bldrKey := params.BldrKey
	if preldrDecrypted {
		bldrKey = im.Preldr.BldrKey[:]
	}

	bldr, status, err := DecodeBldr(buf, layout, physicalSize, bldrKey, params.KernelKey, preldrDecrypted, prim.Cipher)
	im.Status = status
	if bldr == nil {
		im.Close()
		return nil, err
	}
	im.Bldr = bldr
	im.track(bldr.KernelKey[:])
	im.track(bldr.KernelDataKey[:])

	if status != LoadInvalidBldr {
		kern, kerr := DecodeKernel(buf, layout, bldr.BootParams)
		if kerr != nil {
			im.Close()
			return nil, kerr
		}
		im.Kernel = kern

		kernelKey := bldr.EffectiveKernelKey()
		if err := kern.Decrypt(prim.Cipher, kernelKey[:], bldr.KernelDataKey[:]); err != nil && err != ErrAlreadyPlaintext {
			im.Close()
			return nil, err
		}
		_ = kern.Decompress(prim.LZX) // DecompressFailed is a soft warning; kernel.Img stays nil
	}

	if params.RestoreBootParams && im.Bldr.Plaintext {
		// The kernel regions inside the 2BL block were decrypted in
		// place; re-encrypt them first so the 2BL pass below restores
		// the original bytes.
		if im.Kernel != nil && im.Kernel.Plaintext {
			kernelKey := bldr.EffectiveKernelKey()
			_ = encryptInPlace(prim.Cipher, im.Kernel.Compressed, kernelKey[:])
			_ = encryptInPlace(prim.Cipher, im.Kernel.Data, bldr.KernelDataKey[:])
		}
		block := sliceAt(buf, layout.BldrOffset, SizeBldrBlock)
		reEncrypted, err := prim.Cipher.XORKeyStream(block, bldrKey)
		if err == nil {
			copy(block, reEncrypted)
		}
	}

	return im, err
}
