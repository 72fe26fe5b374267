package xbios_test

import (
	"bytes"
	"errors"
	"testing"

	"github.com/xbiosforge/xbioscodec"
)

func TestKernelDecryptThenDecompressSniffsGzip(t *testing.T) {
	layout, err := xbios.ResolveLayout(1<<20, 0)
	if err != nil {
		t.Fatalf("ResolveLayout failed: %v", err)
	}

	buf := make([]byte, 1<<20)
	bp := xbios.BootParams{
		Signature:    xbios.BootSignature,
		KernelOffset: 0x100,
		BldrSize:     8,
		KrnlDataSize: 4,
	}

	kernelKey := []byte("kernel-key-0123456789")
	dataKey := []byte("kernel-data-key-0123456789a")

	plainKernel := []byte{0x1f, 0x8b, 0x08, 0x00, 0xAA, 0xBB, 0xCC, 0xDD}
	plainData := []byte{1, 2, 3, 4}

	region := buf[layout.BldrOffset+int(bp.KernelOffset):]
	cipherKernel, err := xbios.DefaultCipher.XORKeyStream(plainKernel, kernelKey)
	if err != nil {
		t.Fatalf("encrypt kernel failed: %v", err)
	}
	cipherData, err := xbios.DefaultCipher.XORKeyStream(plainData, dataKey)
	if err != nil {
		t.Fatalf("encrypt kernel data failed: %v", err)
	}
	copy(region, cipherKernel)
	copy(region[len(cipherKernel):], cipherData)

	k, err := xbios.DecodeKernel(buf, layout, bp)
	if err != nil {
		t.Fatalf("DecodeKernel failed: %v", err)
	}

	if err := k.Decrypt(xbios.DefaultCipher, kernelKey, dataKey); err != nil {
		t.Fatalf("Decrypt failed: %v", err)
	}
	if !bytes.Equal(k.Compressed, plainKernel) {
		t.Fatalf("decrypted kernel region mismatch")
	}
	if !bytes.Equal(k.Data, plainData) {
		t.Fatalf("decrypted kernel data region mismatch")
	}

	if err := k.Decrypt(xbios.DefaultCipher, kernelKey, dataKey); !errors.Is(err, xbios.ErrAlreadyPlaintext) {
		t.Fatalf("expected ErrAlreadyPlaintext on second Decrypt, got %v", err)
	}

	err = k.Decompress(xbios.DefaultLZXDecompressor)
	if !errors.Is(err, xbios.ErrDecompressFailed) {
		t.Fatalf("expected ErrDecompressFailed, got %v", err)
	}
	if k.SniffedFormat != "gzip" {
		t.Fatalf("SniffedFormat: want gzip, got %q", k.SniffedFormat)
	}
	if k.Img != nil {
		t.Fatalf("Img should remain nil after a failed decompress")
	}
}

func TestDecodeKernelRejectsOutOfBounds(t *testing.T) {
	layout, err := xbios.ResolveLayout(1<<20, 0)
	if err != nil {
		t.Fatalf("ResolveLayout failed: %v", err)
	}
	buf := make([]byte, 1<<20)
	bp := xbios.BootParams{
		KernelOffset: 0,
		BldrSize:     uint32(1 << 30), // absurdly large, forces an out-of-bounds region
		KrnlDataSize: 4,
	}
	if _, err := xbios.DecodeKernel(buf, layout, bp); err == nil {
		t.Fatalf("expected error for an out-of-bounds kernel region")
	}
}
