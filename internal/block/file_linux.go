//go:build linux

package block

import (
	"os"

	"golang.org/x/sys/unix"
)

// openDirect opens path with O_DIRECT where the kernel supports it,
// falling back to a buffered handle if the filesystem rejects the flag
// (common on tmpfs, used heavily by tests).
func openDirect(path string, blockSize uint32) (*os.File, error) {
	f, err := os.OpenFile(path, os.O_RDWR|unix.O_DIRECT, 0644)
	if err != nil {
		return os.OpenFile(path, os.O_RDWR, 0644)
	}
	return f, nil
}

func createDirect(path string, blockSize uint32) (*os.File, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC|unix.O_DIRECT, 0644)
	if err != nil {
		return os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0644)
	}
	return f, nil
}
