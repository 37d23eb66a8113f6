//go:build darwin

package block

import (
	"os"

	"golang.org/x/sys/unix"
)

// openDirect opens path normally, then asks the kernel to bypass the
// unified buffer cache via F_NOCACHE (Darwin has no O_DIRECT open flag;
// F_NOCACHE is the fcntl-based equivalent).
func openDirect(path string, blockSize uint32) (*os.File, error) {
	f, err := os.OpenFile(path, os.O_RDWR, 0644)
	if err != nil {
		return nil, err
	}
	_, _ = unix.FcntlInt(f.Fd(), unix.F_NOCACHE, 1)
	return f, nil
}

func createDirect(path string, blockSize uint32) (*os.File, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return nil, err
	}
	_, _ = unix.FcntlInt(f.Fd(), unix.F_NOCACHE, 1)
	return f, nil
}
