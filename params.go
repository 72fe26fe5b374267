package xbios

// MCPXVersion identifies the on-die boot ROM generation supplying the
// secret boot key: v1.0 implies no preldr is expected, v1.1 implies one
// is (SPEC_FULL.md glossary).
type MCPXVersion int

const (
	MCPXUnknown MCPXVersion = iota
	MCPXv1_0
	MCPXv1_1
)

// LoadParams is the load-parameters surface (SPEC_FULL.md §6). Per
// DESIGN NOTES §9, defaults are enumerated explicitly by
// DefaultLoadParams rather than relying on Go zero-init, since a
// zero-valued MCPXVersion/bool set does not mean "no preldr expected."
type LoadParams struct {
	RomSize int // expected physical image size, checked by LoadBytes; 0 means "infer from buffer length"

	SecretBootKey []byte // supplied by the MCPX ROM provider collaborator
	BldrKey       []byte // used only if no preldr decrypts the 2BL
	KernelKey     []byte // used only when KD_DELAY_FLAG is set

	MCPX MCPXVersion

	// EncBldr/EncKernel record whether the source image carries its
	// 2BL/kernel in ciphertext; both are true for a retail image.
	// LoadBytes does not consult them: it always decrypts both layers.
	EncBldr   bool
	EncKernel bool

	// RestoreBootParams asks the loader to re-encrypt the 2BL after
	// decode so the backing buffer is left exactly as found, the way
	// DecodePreldr already does for a PreldrFound result.
	RestoreBootParams bool

	InitTableOffset int // 0 selects DefaultInitTableOffset
}

// DefaultLoadParams returns the baseline load configuration for a
// retail MCPX v1.1 image: preldr expected, both layers encrypted, no
// key overrides supplied (the caller must still provide SecretBootKey).
func DefaultLoadParams() LoadParams {
	return LoadParams{
		MCPX:              MCPXv1_1,
		EncBldr:           true,
		EncKernel:         true,
		RestoreBootParams: false,
		InitTableOffset:   DefaultInitTableOffset,
	}
}

// BuildParams is the build-parameters surface (SPEC_FULL.md §4.5/§6).
type BuildParams struct {
	BFM             bool
	HackInitTbl     bool
	HackSignature   bool
	NoBootParams    bool
	ZeroKernelKey   bool
	Fix2BLDigest    bool
	EncBldr         bool
	EncKernel       bool
	RomSize         int
	InitTableOffset int
}

// DefaultBuildParams returns the baseline build configuration: produce
// a structurally valid, fully-encrypted, digest-fixed 1 MiB image with
// no compatibility hacks enabled.
func DefaultBuildParams() BuildParams {
	return BuildParams{
		Fix2BLDigest:    true,
		EncBldr:         true,
		EncKernel:       true,
		RomSize:         sizeOneMiB,
		InitTableOffset: DefaultInitTableOffset,
	}
}
