package xbios

import (
	"bytes"
	"fmt"
)

// Kernel is the decoded kernel entity (SPEC_FULL.md §3/§4.4).
type Kernel struct {
	Compressed []byte // ciphertext-or-plaintext compressed image, offset view
	Img        []byte // uncompressed image, filled lazily by Decompress
	Data       []byte // kernel data section, offset view

	Plaintext bool

	// SniffedFormat is set only when Decompress fails: the name of a
	// well-known codec (gzip, xz, ...) whose magic matched the start
	// of the plaintext compressed region, for diagnostics. Empty if
	// no registered sniff codec matched, or decompression succeeded.
	SniffedFormat string
}

// DecodeKernel locates the compressed kernel and kernel-data regions
// inside the 2BL block per boot_params.kernel_offset/bldr_size and the
// immediately following krnl_data_size bytes, and returns a Kernel
// whose Compressed/Data views alias the backing buffer. It does not
// decrypt or decompress; call Decrypt then Decompress.
func DecodeKernel(buf []byte, layout Layout, bp BootParams) (*Kernel, error) {
	blockStart := layout.BldrOffset
	kernelOff := blockStart + int(bp.KernelOffset)
	kernelLen := int(bp.BldrSize)
	dataOff := kernelOff + kernelLen
	dataLen := int(bp.KrnlDataSize)

	if !layout.Contains(kernelOff, kernelLen) {
		return nil, fmt.Errorf("%w: compressed kernel region out of bounds", ErrFatal)
	}
	if !layout.Contains(dataOff, dataLen) {
		return nil, fmt.Errorf("%w: kernel data region out of bounds", ErrFatal)
	}

	return &Kernel{
		Compressed: sliceAt(buf, kernelOff, kernelLen),
		Data:       sliceAt(buf, dataOff, dataLen),
	}, nil
}

// Decrypt applies cipher over the compressed-kernel and kernel-data
// regions with their respective keys, in place. Calling Decrypt twice
// on an already-plaintext Kernel is a bug guarded by the encryption
// state flag: it returns ErrAlreadyPlaintext rather than re-scrambling
// the buffer.
func (k *Kernel) Decrypt(cipher CipherFactory, kernelKey, kernelDataKey []byte) error {
	if k.Plaintext {
		return ErrAlreadyPlaintext
	}

	plainKernel, err := cipher.XORKeyStream(k.Compressed, kernelKey)
	if err != nil {
		return fmt.Errorf("%w: kernel: %v", ErrFatal, err)
	}
	plainData, err := cipher.XORKeyStream(k.Data, kernelDataKey)
	if err != nil {
		return fmt.Errorf("%w: kernel data: %v", ErrFatal, err)
	}
	copy(k.Compressed, plainKernel)
	copy(k.Data, plainData)
	k.Plaintext = true
	return nil
}

// Decompress runs the LZX primitive over the plaintext compressed
// region and records the uncompressed image in k.Img. On failure it
// additionally sniffs the plaintext bytes against the well-known codec
// table for diagnostics (SPEC_FULL.md §4.4) and returns
// ErrDecompressFailed; k.Img is left nil.
func (k *Kernel) Decompress(lzx Decompressor) error {
	out, err := lzx.Decompress(bytes.NewReader(k.Compressed))
	if err != nil {
		k.SniffedFormat = sniffKernelFormat(k.Compressed)
		if k.SniffedFormat != "" {
			return fmt.Errorf("%w: stream looks like %s, not LZX", ErrDecompressFailed, k.SniffedFormat)
		}
		return fmt.Errorf("%w: %v", ErrDecompressFailed, err)
	}
	k.Img = out
	return nil
}
