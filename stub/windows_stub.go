//go:build windows

package stub

// Stub functions, always no-op: Windows has no direct Mlock/Munlock
// equivalent wired up here, so key material still gets zeroed on Close,
// it just never gets pinned against paging.

func Lock(b []byte) error {
	return nil
}

func Unlock(b []byte) error {
	return nil
}
