package xbios_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/xbiosforge/xbioscodec"
)

func TestLoadFromFile(t *testing.T) {
	c, bldrKey := buildSampleComponents()
	bp := xbios.DefaultBuildParams()

	img, err := xbios.Build(c, bp, xbios.DefaultPrimitives())
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}

	path := filepath.Join(t.TempDir(), "bios.bin")
	if err := os.WriteFile(path, img, 0o644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}

	lp := xbios.DefaultLoadParams()
	lp.MCPX = xbios.MCPXUnknown
	lp.BldrKey = bldrKey

	im, err := xbios.Load(path, lp, xbios.DefaultPrimitives())
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	defer im.Close()

	if im.Status != xbios.LoadSuccess {
		t.Fatalf("Status: want LoadSuccess, got %v", im.Status)
	}
	if im.PhysicalSize != len(img) {
		t.Fatalf("PhysicalSize: want %d, got %d", len(img), im.PhysicalSize)
	}
}

func TestLoadRejectsBadSize(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.bin")
	if err := os.WriteFile(path, make([]byte, 123), 0o644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}
	if _, err := xbios.Load(path, xbios.DefaultLoadParams(), xbios.DefaultPrimitives()); err == nil {
		t.Fatalf("expected error loading a file with a disallowed size")
	}
}

func TestImageCloseIsIdempotentAndZeroesKeys(t *testing.T) {
	c, bldrKey := buildSampleComponents()
	bp := xbios.DefaultBuildParams()

	img, err := xbios.Build(c, bp, xbios.DefaultPrimitives())
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}

	lp := xbios.DefaultLoadParams()
	lp.MCPX = xbios.MCPXUnknown
	lp.BldrKey = bldrKey

	im, err := xbios.LoadBytes(img, lp, xbios.DefaultPrimitives())
	if err != nil {
		t.Fatalf("LoadBytes failed: %v", err)
	}

	if err := im.Close(); err != nil {
		t.Fatalf("first Close failed: %v", err)
	}
	if err := im.Close(); err != nil {
		t.Fatalf("second Close should be a no-op, got error: %v", err)
	}
	if im.Buf != nil {
		t.Fatalf("Close should release the owned buffer")
	}
	if im.Bldr.KernelKey != ([20]byte{}) || im.Bldr.KernelDataKey != ([20]byte{}) {
		t.Fatalf("Close should zero the tracked kernel and kernel-data keys")
	}
}
