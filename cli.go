package xbios

import (
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"
)

// Usage prints the command summary, mirroring the teacher's flat
// action-dispatch CLI.
func Usage() {
	fmt.Fprintf(os.Stderr, `xbiosctl - Xbox BIOS image codec

Usage: %s <action> [args...]

Supported actions:
  inspect <bios.bin> [secret_boot_key.hex]
    Load <bios.bin>, run the preldr/2BL/kernel decoders, and print a
    summary of every region found: preldr status, 2BL boot params,
    kernel sizes, and whether the kernel decompressed.
    If secret_boot_key.hex is given (a hex-encoded MCPX secret boot
    key), the preldr key-derivation path is exercised; otherwise the
    2BL is only attempted with a directly supplied bldr key, if any.
    Return values:
    0:valid    1:error    2:invalid bldr

  build <kernel_img> <kernel_dat> <entry_point.hex> <kernel_key.hex> <kernel_data_key.hex> <bldr_key.hex> <outfile>
    Assemble a fresh BIOS image from independently supplied components:
    the compressed kernel image, the kernel data section, the 2BL entry
    point (a hex uint32), the kernel/kernel-data/bldr keys (each
    hex-encoded), and write the result to <outfile>. Uses the default
    build flags (§4.5): fully encrypted, digest-fixed, 1 MiB output.

  verify <bios.bin> <secret_boot_key.hex>
    Load <bios.bin> and report whether the preldr-derived key
    decrypts a structurally valid 2BL. Exit code mirrors inspect.

  extract <bios.bin> <secret_boot_key.hex> <outfile>
    Load <bios.bin>, decrypt and decompress the kernel, and write the
    uncompressed kernel image to <outfile>.

  sha1 <file>
    Print the SHA1 checksum for <file>.

  cleanup
    Remove any scratch files this tool may have left in the current
    directory (header, kernel.img, kernel.dat).
`, os.Args[0])
	os.Exit(1)
}

const (
	scratchHeaderFile = "header"
	scratchKernelImg  = "kernel.img"
	scratchKernelDat  = "kernel.dat"
)

// Main is the CLI entrypoint, dispatched from cmd/xbiosctl. Kept as a
// plain function taking args (rather than reading os.Args directly),
// same as the teacher's Main(args). Every action except cleanup ends
// the process through os.Exit.
func Main(args []string) {
	if len(args) < 2 {
		Usage()
	}

	action := strings.TrimLeft(args[1], "-")

	switch {
	case action == "cleanup":
		fmt.Fprintf(os.Stderr, "Cleaning up...\n")
		for _, f := range []string{scratchHeaderFile, scratchKernelImg, scratchKernelDat} {
			os.Remove(f)
		}

	case action == "sha1" && len(args) > 2:
		os.Exit(runSHA1(args[2]))

	case action == "build" && len(args) > 8:
		os.Exit(runBuild(args[2:9]))

	case action == "inspect" && len(args) > 2:
		os.Exit(runInspect(args[2:]))

	case action == "verify" && len(args) > 3:
		os.Exit(runVerify(args[2], args[3]))

	case action == "extract" && len(args) > 4:
		os.Exit(runExtract(args[2], args[3], args[4]))

	default:
		Usage()
	}
}

func runBuild(rest []string) int {
	kernelImgPath, kernelDatPath := rest[0], rest[1]
	entryPointHex, kernelKeyHex, kernelDataKeyHex, bldrKeyHex := rest[2], rest[3], rest[4], rest[5]
	outPath := rest[6]

	compressed, err := os.ReadFile(kernelImgPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		return 1
	}
	data, err := os.ReadFile(kernelDatPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		return 1
	}

	entryPoint, err := strconv.ParseUint(strings.TrimSpace(entryPointHex), 16, 32)
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error: entry point:", err)
		return 1
	}
	kernelKey, err := parseHexKeyArg(kernelKeyHex)
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error: kernel key:", err)
		return 1
	}
	kernelDataKey, err := parseHexKeyArg(kernelDataKeyHex)
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error: kernel data key:", err)
		return 1
	}
	bldrKey, err := parseHexKeyArg(bldrKeyHex)
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error: bldr key:", err)
		return 1
	}

	c := Components{
		CompressedKernel: compressed,
		KernelData:       data,
		EntryPoint:       uint32(entryPoint),
		BldrKey:          bldrKey,
	}
	copy(c.KernelKey[:], kernelKey)
	copy(c.KernelDataKey[:], kernelDataKey)

	img, err := Build(c, DefaultBuildParams(), DefaultPrimitives())
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		return 1
	}
	if err := os.WriteFile(outPath, img, 0o644); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		return 1
	}
	fmt.Printf("wrote %s (%s)\n", outPath, humanize.IBytes(uint64(len(img))))
	return 0
}

func runSHA1(path string) int {
	data, err := os.ReadFile(path)
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		return 1
	}
	digest := DefaultHasher.Sum(data)
	fmt.Printf("%x\n", digest)
	return 0
}

func parseHexKeyArg(raw string) ([]byte, error) {
	if raw == "" {
		return nil, nil
	}
	return hex.DecodeString(strings.TrimSpace(raw))
}

func loadParamsFromArgs(rest []string) (LoadParams, error) {
	params := DefaultLoadParams()
	if len(rest) > 1 {
		key, err := parseHexKeyArg(rest[1])
		if err != nil {
			return LoadParams{}, fmt.Errorf("decoding secret boot key: %w", err)
		}
		params.SecretBootKey = key
	}
	if params.SecretBootKey == nil {
		params.MCPX = MCPXv1_0
	}
	return params, nil
}

func runInspect(rest []string) int {
	params, err := loadParamsFromArgs(rest)
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		return 1
	}

	im, err := Load(rest[0], params, DefaultPrimitives())
	if im == nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		return 1
	}
	defer im.Close()

	fmt.Printf("physical size: %s\n", humanize.IBytes(uint64(im.PhysicalSize)))
	fmt.Printf("status:        %s\n", im.Status)
	if im.Preldr != nil {
		fmt.Printf("preldr:        %s\n", im.Preldr.Status)
	}
	if im.Bldr != nil {
		fmt.Printf("entry point:   %#x\n", im.Bldr.EntryPoint)
		fmt.Printf("bldr_size:     %s\n", humanize.IBytes(uint64(im.Bldr.BootParams.BldrSize)))
		fmt.Printf("krnl_data:     %s\n", humanize.IBytes(uint64(im.Bldr.BootParams.KrnlDataSize)))
		fmt.Printf("delayed key:   %v\n", im.Bldr.BootParams.KernelKeyDelayed())
	}
	if im.Kernel != nil {
		fmt.Printf("kernel decompressed: %v\n", im.Kernel.Img != nil)
		if im.Kernel.SniffedFormat != "" {
			fmt.Printf("kernel looks like:   %s\n", im.Kernel.SniffedFormat)
		}
	}
	if err != nil && !errors.Is(err, ErrDecompressFailed) {
		fmt.Fprintln(os.Stderr, "Error:", err)
	}
	return im.Status.ExitCode()
}

func runVerify(path, keyHex string) int {
	params, err := loadParamsFromArgs([]string{path, keyHex})
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		return 1
	}

	im, err := Load(path, params, DefaultPrimitives())
	if im == nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		return 1
	}
	defer im.Close()

	fmt.Println(im.Status)
	return im.Status.ExitCode()
}

func runExtract(path, keyHex, outPath string) int {
	params, err := loadParamsFromArgs([]string{path, keyHex})
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		return 1
	}

	im, err := Load(path, params, DefaultPrimitives())
	if im == nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		return 1
	}
	defer im.Close()

	if im.Status != LoadSuccess {
		fmt.Fprintln(os.Stderr, "Error: bldr did not decode successfully:", im.Status)
		return im.Status.ExitCode()
	}
	if im.Kernel == nil || im.Kernel.Img == nil {
		fmt.Fprintln(os.Stderr, "Error: kernel did not decompress")
		return 1
	}
	if err := os.WriteFile(outPath, im.Kernel.Img, 0o644); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		return 1
	}
	fmt.Printf("wrote %s (%s)\n", outPath, humanize.IBytes(uint64(len(im.Kernel.Img))))
	return 0
}
