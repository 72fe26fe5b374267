package xbios

import "errors"

// Sentinel errors for the taxonomy in the spec. Wrap with fmt.Errorf
// ("...: %w", ErrXxx) to add context; callers unwrap with errors.Is.
var (
	// ErrInvalidSize means the file length is not one of the allowed
	// BIOS image sizes (256 KiB, 512 KiB, 1 MiB).
	ErrInvalidSize = errors.New("xbios: image size not in {256K, 512K, 1M}")

	// ErrPreldrNotFound means no preldr block was detected. Soft: the
	// image may still be a valid pre-preldr (MCPX v1.0) BIOS.
	ErrPreldrNotFound = errors.New("xbios: preldr not found")

	// ErrPreldrMalformed means a preldr block is present but its
	// pointers are out of bounds or its public key header is invalid.
	ErrPreldrMalformed = errors.New("xbios: preldr malformed")

	// ErrInvalidBldr means the 2BL failed signature or size
	// validation. Soft: boot params remain readable for diagnosis.
	ErrInvalidBldr = errors.New("xbios: 2BL boot params invalid")

	// ErrDecompressFailed means the LZX stream over the compressed
	// kernel region was malformed.
	ErrDecompressFailed = errors.New("xbios: kernel decompression failed")

	// ErrKeyMissing means an operation needed an external key
	// (bldr_key, kernel_key) that was not supplied.
	ErrKeyMissing = errors.New("xbios: required key not supplied")

	// ErrAlreadyPlaintext is the soft error returned when decrypt is
	// called on an entity whose encryption state is already plaintext.
	ErrAlreadyPlaintext = errors.New("xbios: already plaintext")

	// ErrFatal wraps any bounds violation encountered while walking
	// derived pointers during codec execution.
	ErrFatal = errors.New("xbios: fatal bounds violation")
)

// PreldrStatus is the outcome of decode_preldr.
type PreldrStatus int

const (
	PreldrError PreldrStatus = iota
	PreldrNotFound
	PreldrFound
	PreldrBldrDecrypted
)

func (s PreldrStatus) String() string {
	switch s {
	case PreldrBldrDecrypted:
		return "BLDR_DECRYPTED"
	case PreldrFound:
		return "FOUND"
	case PreldrNotFound:
		return "NOT_FOUND"
	default:
		return "ERROR"
	}
}

// LoadStatus is the top-level outcome of decoding an Image.
type LoadStatus int

const (
	LoadFailed LoadStatus = iota
	LoadSuccess
	LoadInvalidBldr
)

func (s LoadStatus) String() string {
	switch s {
	case LoadSuccess:
		return "SUCCESS"
	case LoadInvalidBldr:
		return "INVALID_BLDR"
	default:
		return "FAILED"
	}
}

// ExitCode maps a LoadStatus to the CLI-level exit code documented in
// the external interfaces: 0 success, 1 generic failure, 2 invalid bldr.
func (s LoadStatus) ExitCode() int {
	switch s {
	case LoadSuccess:
		return 0
	case LoadInvalidBldr:
		return 2
	default:
		return 1
	}
}
