package xbios

import (
	"crypto/rsa"
	"fmt"
)

// Preldr-relative layout of the 128-byte parameter struct (SPEC_FULL.md
// §3): a 32-bit jump offset into the preldr code, followed by the
// 16-byte nonce. The remaining bytes are reserved.
const (
	preldrParamJumpOffsetOff = 0
	preldrParamNonceOff      = 4

	// preldrPointerSize is the width of a single resolved pointer slot
	// in the preldr's jump-pointer / function-pointer blocks.
	preldrPointerSize = 4

	// RSA header embedded in the preldr code region: magic, bit
	// length, public exponent, then the (masked) modulus.
	preldrRSAHeaderOffset = 0x20
	preldrRSABits         = 2048
	preldrRSAExponent     = 0x10001
	preldrModulusBytes    = preldrRSABits / 8

	preldrMagicOff    = 0
	preldrBitsOff     = 4
	preldrExponentOff = 8
	preldrModulusOff  = 12

	// pubKeyXORMask obfuscates the embedded modulus byte-wise; XOR
	// with the same mask recovers it (SPEC_FULL.md §4.2).
	pubKeyXORMask byte = 0x5A
)

var preldrRSAMagic = [4]byte{'R', 'S', 'A', '1'}

// Preldr is the decoded preldr entity (SPEC_FULL.md §3).
type Preldr struct {
	Status PreldrStatus

	Nonce      [SizePreldrNonce]byte
	JumpOffset uint32

	PointerBlockOffset int // absolute offset into the logical window
	FuncBlockOffset    int

	PublicKey *rsa.PublicKey

	// BldrKey is the derived 20-byte key. Zero unless Status is
	// PreldrFound or PreldrBldrDecrypted.
	BldrKey [20]byte
}

// DeriveBldrKey implements the double-SHA1 key schedule from
// SPEC_FULL.md §4.2: intermediate = SHA1(secretBootKey || nonce);
// bldrKey = SHA1(intermediate || nonce). Pure function of its inputs;
// always returns exactly 20 bytes.
func DeriveBldrKey(h Hasher, secretBootKey []byte, nonce [SizePreldrNonce]byte) [20]byte {
	mix1 := make([]byte, 0, len(secretBootKey)+len(nonce))
	mix1 = append(mix1, secretBootKey...)
	mix1 = append(mix1, nonce[:]...)
	intermediate := h.Sum(mix1)

	mix2 := make([]byte, 0, len(intermediate)+len(nonce))
	mix2 = append(mix2, intermediate[:]...)
	mix2 = append(mix2, nonce[:]...)
	return h.Sum(mix2)
}

// DecodePreldr implements decode_preldr (SPEC_FULL.md §4.2). buf is the
// full logical 1 MiB window; layout locates the preldr block within it.
// On PreldrFound the 2BL block is restored to ciphertext before
// returning, matching the "not the authority for this image" rule.
func DecodePreldr(buf []byte, layout Layout, secretBootKey []byte, cipher CipherFactory, hasher Hasher, verifier SignatureVerifier) (*Preldr, error) {
	p := &Preldr{Status: PreldrError}

	paramsOff := layout.PreldrParamsOffset
	if !layout.Contains(paramsOff, SizePreldrParams) {
		return p, fmt.Errorf("%w: preldr params out of bounds", ErrFatal)
	}
	params := sliceAt(buf, paramsOff, SizePreldrParams)

	jumpOffset := u32At(params, preldrParamJumpOffsetOff)
	if jumpOffset == 0 || int(jumpOffset) >= PreldrCodeSize {
		p.Status = PreldrNotFound
		return p, nil
	}

	copy(p.Nonce[:], params[preldrParamNonceOff:preldrParamNonceOff+SizePreldrNonce])
	p.JumpOffset = jumpOffset

	pointerBlockOff := layout.PreldrOffset + int(jumpOffset)
	funcBlockOff := alignTo(pointerBlockOff+preldrPointerSize, 16)

	if !layout.Contains(pointerBlockOff, preldrPointerSize) ||
		!layout.Contains(funcBlockOff, preldrPointerSize) ||
		pointerBlockOff < layout.PreldrOffset || funcBlockOff >= layout.PreldrOffset+PreldrCodeSize {
		p.Status = PreldrError
		return p, fmt.Errorf("%w: preldr pointer/function block out of bounds", ErrPreldrMalformed)
	}
	p.PointerBlockOffset = pointerBlockOff
	p.FuncBlockOffset = funcBlockOff

	rsaOff := layout.PreldrOffset + preldrRSAHeaderOffset
	if !layout.Contains(rsaOff, preldrModulusOff+preldrModulusBytes) {
		return p, fmt.Errorf("%w: RSA header out of bounds", ErrPreldrMalformed)
	}
	rsaHdr := sliceAt(buf, rsaOff, preldrModulusOff+preldrModulusBytes)

	var magic [4]byte
	copy(magic[:], rsaHdr[preldrMagicOff:preldrMagicOff+4])
	bits := u32At(rsaHdr, preldrBitsOff)
	exponent := u32At(rsaHdr, preldrExponentOff)
	if magic != preldrRSAMagic || bits != preldrRSABits || exponent != preldrRSAExponent {
		p.Status = PreldrError
		return p, fmt.Errorf("%w: RSA header magic/bits/exponent mismatch", ErrPreldrMalformed)
	}

	maskedModulus := rsaHdr[preldrModulusOff : preldrModulusOff+preldrModulusBytes]
	modulus := make([]byte, preldrModulusBytes)
	for i, b := range maskedModulus {
		modulus[i] = b ^ pubKeyXORMask
	}
	pub, err := verifier.ParsePublicKey(modulus, preldrRSAExponent)
	if err != nil {
		p.Status = PreldrError
		return p, fmt.Errorf("%w: %v", ErrPreldrMalformed, err)
	}
	p.PublicKey = pub

	p.BldrKey = DeriveBldrKey(hasher, secretBootKey, p.Nonce)

	if !layout.Contains(layout.BldrOffset, SizeBldrBlock) {
		p.BldrKey = [20]byte{}
		return p, fmt.Errorf("%w: 2BL block out of bounds", ErrFatal)
	}
	bldrBlock := sliceAt(buf, layout.BldrOffset, SizeBldrBlock)

	decrypted, err := cipher.XORKeyStream(bldrBlock, p.BldrKey[:])
	if err != nil {
		p.BldrKey = [20]byte{}
		p.Status = PreldrError
		return p, fmt.Errorf("%w: %v", ErrPreldrMalformed, err)
	}

	if u32At(decrypted, bldrSignatureOffset) == BootSignature {
		copy(bldrBlock, decrypted)
		p.Status = PreldrBldrDecrypted
		return p, nil
	}

	// Preldr is present but not the authority for this image: restore
	// ciphertext so the 2BL decoder can try its own key unmolested.
	p.Status = PreldrFound
	return p, nil
}
