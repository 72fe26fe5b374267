package xbios_test

import (
	"crypto/rand"
	"crypto/rsa"
	"encoding/binary"
	"testing"

	"github.com/xbiosforge/xbioscodec"
)

// craftPreldrBlock hand-assembles a SizePreldrBlock-length raw preldr
// component: an RSA header at the fixed 0x20 offset (so DecodePreldr's
// magic/bits/exponent checks pass) and a parameter struct at the end
// of the code region carrying jumpOffset and nonce. DecodePreldr never
// inspects the pointer/function block contents, only their bounds, so
// those bytes are left zero.
func craftPreldrBlock(t *testing.T, nonce [16]byte) []byte {
	t.Helper()

	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("GenerateKey failed: %v", err)
	}
	modulus := key.PublicKey.N.Bytes()
	padded := make([]byte, 256)
	copy(padded[256-len(modulus):], modulus)
	masked := make([]byte, 256)
	for i, b := range padded {
		masked[i] = b ^ 0x5A
	}

	block := make([]byte, xbios.SizePreldrBlock)
	copy(block[0x20:0x24], []byte("RSA1"))
	binary.LittleEndian.PutUint32(block[0x24:0x28], 2048)
	binary.LittleEndian.PutUint32(block[0x28:0x2c], 0x10001)
	copy(block[0x2c:0x2c+256], masked)

	paramsOff := xbios.PreldrCodeSize
	binary.LittleEndian.PutUint32(block[paramsOff:paramsOff+4], 0x100)
	copy(block[paramsOff+4:paramsOff+4+16], nonce[:])

	return block
}

func TestDecodePreldrDerivesAndDecryptsBldr(t *testing.T) {
	secretBootKey := []byte("mcpx-secret-boot-key-0123456789")
	var nonce [16]byte
	copy(nonce[:], []byte("preldr-nonce-abc"))

	preldrBlock := craftPreldrBlock(t, nonce)
	bldrKey := xbios.DeriveBldrKey(xbios.DefaultHasher, secretBootKey, nonce)

	c, _ := buildSampleComponents()
	c.Preldr = preldrBlock
	c.BldrKey = bldrKey[:]
	bp := xbios.DefaultBuildParams()

	img, err := xbios.Build(c, bp, xbios.DefaultPrimitives())
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}

	lp := xbios.DefaultLoadParams()
	lp.SecretBootKey = secretBootKey

	im, err := xbios.LoadBytes(img, lp, xbios.DefaultPrimitives())
	if err != nil {
		t.Fatalf("LoadBytes failed: %v", err)
	}
	defer im.Close()

	if im.Preldr.Status != xbios.PreldrBldrDecrypted {
		t.Fatalf("Preldr.Status: want PreldrBldrDecrypted, got %v", im.Preldr.Status)
	}
	if im.Preldr.BldrKey != bldrKey {
		t.Fatalf("derived BldrKey mismatch")
	}
	if im.Status != xbios.LoadSuccess {
		t.Fatalf("Status: want LoadSuccess, got %v", im.Status)
	}
	if im.Bldr.EntryPoint != c.EntryPoint {
		t.Fatalf("EntryPoint: want %#x, got %#x", c.EntryPoint, im.Bldr.EntryPoint)
	}
}

func TestDecodePreldrNotFoundWhenNoJumpOffset(t *testing.T) {
	c, bldrKey := buildSampleComponents()
	c.Preldr = make([]byte, xbios.SizePreldrBlock) // all zero: jumpOffset == 0
	bp := xbios.DefaultBuildParams()

	img, err := xbios.Build(c, bp, xbios.DefaultPrimitives())
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}

	lp := xbios.DefaultLoadParams()
	lp.SecretBootKey = []byte("irrelevant-secret-boot-key-here")
	lp.BldrKey = bldrKey

	im, err := xbios.LoadBytes(img, lp, xbios.DefaultPrimitives())
	if err != nil {
		t.Fatalf("LoadBytes failed: %v", err)
	}
	defer im.Close()

	if im.Preldr.Status != xbios.PreldrNotFound {
		t.Fatalf("Preldr.Status: want PreldrNotFound, got %v", im.Preldr.Status)
	}
	if im.Status != xbios.LoadSuccess {
		t.Fatalf("Status: want LoadSuccess (falls back to BldrKey), got %v", im.Status)
	}
}
