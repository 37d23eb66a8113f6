package block

import (
	"fmt"
	"os"
)

// FileDevice backs a Device with a conventional file, opened with the
// OS's direct-I/O flag where available (see file_linux.go/file_darwin.go/
// file_other.go for the platform-specific open path). Reads and writes go
// through ReadAt/WriteAt at block-aligned offsets, following the
// sector-alignment discipline of buildbarn-bb-storage's
// partitioningBlockWriter (no partial-sector buffering is needed here
// since every caller is already block-aligned by contract).
type FileDevice struct {
	f         *os.File
	blockSize uint32
}

// OpenFileDevice opens path for block-aligned I/O with the given block
// size. The file must already exist and be a multiple of blockSize bytes;
// storage creation (internal/header) is responsible for sizing it.
func OpenFileDevice(path string, blockSize uint32) (*FileDevice, error) {
	f, err := openDirect(path, blockSize)
	if err != nil {
		return nil, fmt.Errorf("block: open %s: %w", path, err)
	}
	return &FileDevice{f: f, blockSize: blockSize}, nil
}

// CreateFileDevice creates (or truncates) path to totalBlocks*blockSize
// bytes and returns a Device over it.
func CreateFileDevice(path string, blockSize uint32, totalBlocks uint64) (*FileDevice, error) {
	f, err := createDirect(path, blockSize)
	if err != nil {
		return nil, fmt.Errorf("block: create %s: %w", path, err)
	}
	size := int64(totalBlocks) * int64(blockSize)
	if err := f.Truncate(size); err != nil {
		f.Close()
		return nil, fmt.Errorf("block: truncate %s: %w", path, err)
	}
	return &FileDevice{f: f, blockSize: blockSize}, nil
}

func (d *FileDevice) BlockSize() uint32 { return d.blockSize }

func (d *FileDevice) ReadAt(offsetBlocks, countBlocks uint64, buf []byte) error {
	CheckAligned(d.blockSize, countBlocks, buf)
	off := int64(offsetBlocks) * int64(d.blockSize)
	n, err := d.f.ReadAt(buf, off)
	if err != nil {
		return fmt.Errorf("block: read at block %d: %w", offsetBlocks, err)
	}
	if n != len(buf) {
		return fmt.Errorf("block: short read at block %d: got %d want %d", offsetBlocks, n, len(buf))
	}
	return nil
}

func (d *FileDevice) WriteAt(offsetBlocks uint64, buf []byte) error {
	countBlocks := uint64(len(buf)) / uint64(d.blockSize)
	CheckAligned(d.blockSize, countBlocks, buf)
	off := int64(offsetBlocks) * int64(d.blockSize)
	n, err := d.f.WriteAt(buf, off)
	if err != nil {
		return fmt.Errorf("block: write at block %d: %w", offsetBlocks, err)
	}
	if n != len(buf) {
		return fmt.Errorf("block: short write at block %d: wrote %d want %d", offsetBlocks, n, len(buf))
	}
	return nil
}

func (d *FileDevice) Sync() error {
	if err := d.f.Sync(); err != nil {
		return fmt.Errorf("block: sync: %w", err)
	}
	return nil
}

func (d *FileDevice) Close() error { return d.f.Close() }
