package xbios_test

import (
	"bytes"
	"testing"

	"github.com/xbiosforge/xbioscodec"
)

func TestReplicateExactMultiple(t *testing.T) {
	src := make([]byte, 1<<18) // quarter MiB, an allowed source size
	for i := range src {
		src[i] = byte(i)
	}
	out, err := xbios.Replicate(src, 3*len(src))
	if err != nil {
		t.Fatalf("Replicate failed: %v", err)
	}
	want := bytes.Repeat(src, 3)
	if !bytes.Equal(out, want) {
		t.Fatalf("Replicate output does not match three tiled copies of src")
	}
}

func TestReplicateRejectsNonMultiple(t *testing.T) {
	src := make([]byte, 1<<18)
	if _, err := xbios.Replicate(src, len(src)+1); err == nil {
		t.Fatalf("expected error when n is not a multiple of len(src)")
	}
}

func TestReplicateRejectsDisallowedSourceSize(t *testing.T) {
	if _, err := xbios.Replicate([]byte{1, 2, 3}, 6); err == nil {
		t.Fatalf("expected error for a source size outside {256K, 512K, 1M}")
	}
}

func TestReplicateToWindow(t *testing.T) {
	src := make([]byte, 1<<18) // quarter MiB
	for i := range src {
		src[i] = byte(i)
	}
	out, err := xbios.ReplicateToWindow(src)
	if err != nil {
		t.Fatalf("ReplicateToWindow failed: %v", err)
	}
	if len(out) != 1<<20 {
		t.Fatalf("ReplicateToWindow: want len %d, got %d", 1<<20, len(out))
	}
	if !bytes.Equal(out[:len(src)], out[len(src):2*len(src)]) {
		t.Fatalf("ReplicateToWindow: second tile does not match the first")
	}
}

func TestReplicateToWindowFullSizePassthrough(t *testing.T) {
	src := make([]byte, 1<<20)
	out, err := xbios.ReplicateToWindow(src)
	if err != nil {
		t.Fatalf("ReplicateToWindow failed: %v", err)
	}
	if len(out) != len(src) {
		t.Fatalf("expected a full 1 MiB image to pass through unchanged in length")
	}
}
