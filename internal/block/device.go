// Package block implements the direct-I/O block layer (§4.1): alignment-
// correct, fixed-size read/write of blocks against a backing device. Inputs
// must already be block-aligned in address and length; misalignment is a
// programming error, not a recoverable condition, so alignment violations
// panic rather than return an error (mirrored from the teacher's
// lock.go/header.go discipline of treating "this should never happen"
// conditions as a distinct, non-recoverable class).
package block

import "fmt"

// Device is the contract every backing store (plain file, memory-mapped
// non-volatile device) must satisfy. All offsets and counts are in
// blocks, not bytes; callers multiply by BlockSize themselves only when
// talking to the OS.
type Device interface {
	// ReadAt reads countBlocks blocks starting at offsetBlocks into buf.
	// len(buf) must equal countBlocks*BlockSize(). A short read is a
	// DeviceError (§7), never partial data silently returned.
	ReadAt(offsetBlocks, countBlocks uint64, buf []byte) error

	// WriteAt writes len(buf)/BlockSize() blocks starting at
	// offsetBlocks. A short write is propagated as an error, never
	// tolerated (§4.1).
	WriteAt(offsetBlocks uint64, buf []byte) error

	// Sync forces durability of prior writes (fsync/msync).
	Sync() error

	// BlockSize returns the device's fixed block size in bytes.
	BlockSize() uint32

	// Close releases the underlying file or mapping.
	Close() error
}

// AlignedBuffer allocates a byte slice whose address is a multiple of
// blockSize and whose length is size, rounded up to the next block
// boundary. Several OSes require O_DIRECT buffers to be memory-aligned to
// the block size, not just length-aligned; over-allocating and slicing to
// the aligned offset is the portable way to get that without cgo.
func AlignedBuffer(blockSize uint32, size int) []byte {
	if blockSize == 0 {
		panic("block: zero block size")
	}
	raw := make([]byte, size+int(blockSize))
	addr := uintptrOf(raw)
	offset := (int(blockSize) - int(addr%uintptr(blockSize))) % int(blockSize)
	return raw[offset : offset+size : offset+size]
}

// CheckAligned panics if offsetBlocks/countBlocks*blockSize doesn't match
// len(buf) — the "misalignment is a programming error" contract of §4.1.
func CheckAligned(blockSize uint32, countBlocks uint64, buf []byte) {
	want := countBlocks * uint64(blockSize)
	if uint64(len(buf)) != want {
		panic(fmt.Sprintf("block: buffer length %d does not match %d blocks of size %d", len(buf), countBlocks, blockSize))
	}
}
