//go:build !windows
// +build !windows

package stub

import (
	"golang.org/x/sys/unix"
)

// Stub functions link to unix libraries

// Lock pins b in physical memory so the kernel never swaps it to disk,
// best effort. Used to keep derived key material (bldr_key, kernel_key,
// kernel_data_key) off swap for as long as it is held plaintext.
func Lock(b []byte) error {
	if len(b) == 0 {
		return nil
	}
	return unix.Mlock(b)
}

// Unlock reverses Lock. Safe to call on a buffer that was never locked;
// the kernel treats Munlock on a non-locked range as a no-op.
func Unlock(b []byte) error {
	if len(b) == 0 {
		return nil
	}
	return unix.Munlock(b)
}
