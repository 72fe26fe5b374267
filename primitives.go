package xbios

import (
	"bytes"
	"compress/bzip2"
	"compress/gzip"
	"crypto/rc4"
	"crypto/rsa"
	"crypto/sha1"
	"crypto/x509"
	"errors"
	"io"
	"math/big"

	"github.com/pierrec/lz4/v4"
	"github.com/ulikunitz/xz"
	"github.com/ulikunitz/xz/lzma"
)

// The primitives layer is explicitly out of scope per the spec: the
// codec consumes a symmetric stream cipher, SHA-1, RSA verification,
// and LZX decompression through narrow interfaces and assumes their
// implementations are independently correct. Default, stdlib-backed
// implementations are provided below so the module is runnable
// end-to-end; a console-grade deployment can swap in an audited
// implementation by passing a different Primitives to Load, LoadBytes
// or Build.

// Hasher is the SHA-1 contract. Sum must return exactly 20 bytes.
type Hasher interface {
	Sum(data []byte) [20]byte
}

type sha1Hasher struct{}

func (sha1Hasher) Sum(data []byte) [20]byte {
	return sha1.Sum(data)
}

// DefaultHasher is the stdlib crypto/sha1-backed Hasher. The teacher
// codebase reaches for crypto/sha1 directly for its own "sha1"
// subcommand; this mirrors that precedent for the equivalent black-box
// primitive here.
var DefaultHasher Hasher = sha1Hasher{}

// CipherFactory is the RC4-style symmetric stream cipher contract. It
// must be an involution: XORKeyStream(XORKeyStream(b, k), k) == b.
type CipherFactory interface {
	// XORKeyStream returns a new buffer of len(data), transformed
	// under key. It must not mutate data.
	XORKeyStream(data, key []byte) ([]byte, error)
}

type rc4Cipher struct{}

func (rc4Cipher) XORKeyStream(data, key []byte) ([]byte, error) {
	c, err := rc4.NewCipher(key)
	if err != nil {
		return nil, err
	}
	out := make([]byte, len(data))
	c.XORKeyStream(out, data)
	return out, nil
}

// DefaultCipher is the stdlib crypto/rc4-backed CipherFactory.
var DefaultCipher CipherFactory = rc4Cipher{}

// SignatureVerifier is the RSA verification contract used to validate
// the preldr's embedded public key header and, where available, the
// 2BL/kernel signature chained from it.
type SignatureVerifier interface {
	// ParsePublicKey parses a raw, unmasked PKCS#1 modulus+exponent
	// blob into a usable key, validating bit length and exponent.
	ParsePublicKey(modulus []byte, exponent int) (*rsa.PublicKey, error)
	// VerifyPKCS1v15 checks sig against the SHA-1 digest of data
	// under pub.
	VerifyPKCS1v15(pub *rsa.PublicKey, data, sig []byte) error
	// ParseCertificate extracts an RSA public key from a DER-encoded
	// x509 certificate, for callers that want to verify a ROM digest
	// against an externally supplied signing certificate rather than
	// the key embedded in the preldr.
	ParseCertificate(der []byte) (*rsa.PublicKey, error)
}

type rsaVerifier struct{}

func (rsaVerifier) ParsePublicKey(modulus []byte, exponent int) (*rsa.PublicKey, error) {
	if exponent != 0x10001 {
		return nil, errors.New("xbios: unexpected RSA exponent")
	}
	if len(modulus)*8 != 2048 {
		return nil, errors.New("xbios: unexpected RSA modulus bit length")
	}
	return &rsa.PublicKey{N: new(big.Int).SetBytes(modulus), E: exponent}, nil
}

func (rsaVerifier) VerifyPKCS1v15(pub *rsa.PublicKey, data, sig []byte) error {
	digest := sha1.Sum(data)
	return rsa.VerifyPKCS1v15(pub, 0, digest[:], sig)
}

func (rsaVerifier) ParseCertificate(der []byte) (*rsa.PublicKey, error) {
	cert, err := x509.ParseCertificate(der)
	if err != nil {
		return nil, err
	}
	pub, ok := cert.PublicKey.(*rsa.PublicKey)
	if !ok {
		return nil, errors.New("xbios: certificate does not carry an RSA public key")
	}
	return pub, nil
}

// DefaultSignatureVerifier is the stdlib crypto/rsa + crypto/x509
// backed SignatureVerifier.
var DefaultSignatureVerifier SignatureVerifier = rsaVerifier{}

// Primitives bundles the four out-of-scope primitives the codec is
// built against, so Load/Build callers can swap in an audited
// implementation (e.g. a real LZX decoder) without changing call
// sites throughout the decoder.
type Primitives struct {
	Cipher   CipherFactory
	Hasher   Hasher
	Verifier SignatureVerifier
	LZX      Decompressor
}

// DefaultPrimitives wires the stdlib-backed defaults. The LZX slot is
// the one primitive with no available default: it always reports
// ErrLZXUnavailable until a caller injects a real implementation.
func DefaultPrimitives() Primitives {
	return Primitives{
		Cipher:   DefaultCipher,
		Hasher:   DefaultHasher,
		Verifier: DefaultSignatureVerifier,
		LZX:      DefaultLZXDecompressor,
	}
}

// Decompressor is the LZX decompression contract. The format-sniff
// table below does not go through it: sniffing only compares magic
// prefixes. Decompress must return the full uncompressed stream.
type Decompressor interface {
	Decompress(r io.Reader) ([]byte, error)
}

// ErrLZXUnavailable is returned by the default LZX slot: real LZX
// decompression is an out-of-scope primitive the spec assumes is
// supplied externally. Wire a verified implementation via
// Primitives.LZX to exercise actual kernels.
var ErrLZXUnavailable = errors.New("xbios: no LZX decompressor configured")

type unimplementedLZX struct{}

func (unimplementedLZX) Decompress(io.Reader) ([]byte, error) {
	return nil, ErrLZXUnavailable
}

// DefaultLZXDecompressor is the out-of-the-box LZX slot: it always
// fails, by design, until a real implementation is injected.
var DefaultLZXDecompressor Decompressor = unimplementedLZX{}

// sniffCodec is one entry of the diagnostic format-sniff table
// consulted by the kernel decoder when LZX decompression fails (see
// SPEC_FULL.md §4.4). Grounded on the teacher's CheckFmt/Decoder
// pairing in format.go/compress.go, generalized to a table instead of
// a hardcoded switch. The table is package-level and callers cannot
// change it; sniffKernelFormat reads only the magic field, and the
// open functions are not called.
type sniffCodec struct {
	name  string
	magic []byte
	open  func(io.Reader) (io.Reader, error)
}

// defaultSniffTable lists the codecs a misconfigured or homebrew image
// sometimes substitutes for LZX during bring-up. Detection is
// diagnostic only; it never supplies kernel.img.
var defaultSniffTable = []sniffCodec{
	{name: "gzip", magic: []byte{0x1f, 0x8b}, open: func(r io.Reader) (io.Reader, error) { return gzip.NewReader(r) }},
	{name: "bzip2", magic: []byte("BZh"), open: func(r io.Reader) (io.Reader, error) { return bzip2.NewReader(r), nil }},
	{name: "xz", magic: []byte("\xfd7zXZ"), open: func(r io.Reader) (io.Reader, error) { return xz.NewReader(r) }},
	{name: "lzma", magic: []byte{0x5d, 0x00, 0x00}, open: func(r io.Reader) (io.Reader, error) { return lzma.NewReader(r) }},
	{name: "lz4", magic: []byte{0x04, 0x22, 0x4d, 0x18}, open: func(r io.Reader) (io.Reader, error) { return lz4.NewReader(r), nil }},
}

// sniffKernelFormat reports the name of the first codec in
// defaultSniffTable whose magic matches the start of data, or "" if
// none match. It never decodes the full stream, only the header.
func sniffKernelFormat(data []byte) string {
	for _, c := range defaultSniffTable {
		if bytes.HasPrefix(data, c.magic) {
			return c.name
		}
	}
	return ""
}
