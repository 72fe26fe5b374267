package xbios_test

import (
	"errors"
	"testing"

	"github.com/xbiosforge/xbioscodec"
)

func TestLoadReportsInvalidBldrOnBadSignature(t *testing.T) {
	c, bldrKey := buildSampleComponents()
	bp := xbios.DefaultBuildParams()
	bp.HackSignature = true // leaves the signature field as whatever is already there: zero

	img, err := xbios.Build(c, bp, xbios.DefaultPrimitives())
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}

	lp := xbios.DefaultLoadParams()
	lp.MCPX = xbios.MCPXUnknown
	lp.BldrKey = bldrKey

	im, err := xbios.LoadBytes(img, lp, xbios.DefaultPrimitives())
	if im == nil {
		t.Fatalf("expected a non-nil Image for a soft LoadInvalidBldr failure, got nil (err=%v)", err)
	}
	defer im.Close()

	if !errors.Is(err, xbios.ErrInvalidBldr) {
		t.Fatalf("want ErrInvalidBldr, got %v", err)
	}
	if im.Status != xbios.LoadInvalidBldr {
		t.Fatalf("Status: want LoadInvalidBldr, got %v", im.Status)
	}
	// Boot params must still be readable for diagnosis even though
	// validation failed.
	if im.Bldr.EntryPoint != c.EntryPoint {
		t.Fatalf("EntryPoint should remain readable on a soft failure")
	}
}

func TestLoadRejectsMismatchedRomSize(t *testing.T) {
	c, bldrKey := buildSampleComponents()
	bp := xbios.DefaultBuildParams()
	bp.RomSize = 1 << 19 // half MiB

	img, err := xbios.Build(c, bp, xbios.DefaultPrimitives())
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}

	// Truncate/replicate to a different allowed size than was built,
	// so boot_params.rom_size no longer matches the loaded size.
	quarter := img[len(img)-(1<<18):]

	lp := xbios.DefaultLoadParams()
	lp.MCPX = xbios.MCPXUnknown
	lp.BldrKey = bldrKey

	im, err := xbios.LoadBytes(quarter, lp, xbios.DefaultPrimitives())
	if im == nil {
		t.Fatalf("expected a non-nil Image, got nil (err=%v)", err)
	}
	defer im.Close()

	if im.Status != xbios.LoadInvalidBldr {
		t.Fatalf("Status: want LoadInvalidBldr, got %v", im.Status)
	}
}
