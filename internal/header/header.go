// Package header implements the storage header and region map (§4.2, §6):
// the fixed layout written once at create() and validated at open().
package header

import (
	"encoding/binary"
	"errors"
	"fmt"
	"hash/adler32"

	"github.com/google/uuid"
)

// Magic identifies a lusf storage file. Matches §6's on-disk layout
// exactly: "lusfblk\0".
var Magic = [8]byte{'l', 'u', 's', 'f', 'b', 'l', 'k', 0}

const (
	// VersionMajor/VersionMinor are the only layout this implementation
	// understands. §4.2: "upgrading layouts requires a new storage."
	VersionMajor = 1
	VersionMinor = 0

	magicOff      = 0
	versionOff    = 8
	blockSizeOff  = 10
	journalOff    = 14
	dataOff       = 22
	uuidOff       = 30
	fixedFieldEnd = 46
	crcSize       = 4

	// MinBlockSize is the smallest block size the header format and the
	// direct-I/O alignment contract (§4.1) support.
	MinBlockSize = 512
)

var (
	// ErrBadMagic is returned by Decode when the file does not start with
	// the lusf magic.
	ErrBadMagic = errors.New("header: bad magic")
	// ErrBadVersion is returned when the on-disk layout version is not
	// one this build understands.
	ErrBadVersion = errors.New("header: unsupported version")
	// ErrCorrupt is returned when the header CRC does not match — §7
	// StorageCorrupted.
	ErrCorrupt = errors.New("header: corrupt (crc mismatch)")
	// ErrBlockSizeTooSmall is returned by Encode for a block size below
	// MinBlockSize or not a power of two.
	ErrBlockSizeTooSmall = errors.New("header: block size must be a power of two >= 512")
)

// Layout is the parsed, validated region map: everything needed to find
// the journal ring and the data region on disk.
type Layout struct {
	BlockSize      uint32
	JournalBlocks  uint64
	DataBlocks     uint64
	UUID           [16]byte
	VersionMajor   uint8
	VersionMinor   uint8
}

// JournalStart is the first block of the journal ring — always block 1,
// immediately after the header block (§6).
func (l Layout) JournalStart() uint64 { return 1 }

// DataStart is the first block of the data region.
func (l Layout) DataStart() uint64 { return 1 + l.JournalBlocks }

// TotalBlocks is the total size of the storage file in blocks: header +
// journal + data.
func (l Layout) TotalBlocks() uint64 { return 1 + l.JournalBlocks + l.DataBlocks }

func isPowerOfTwo(n uint32) bool { return n != 0 && n&(n-1) == 0 }

// Encode serializes a header block of exactly blockSize bytes, computing
// the trailing Adler-32 CRC. Adler-32 is mandated by §6's wire format for
// this field specifically (see DESIGN.md) — not a general-purpose hash
// choice, unlike the xxh3/blake2b options Config.IntegrityAlgorithm
// offers elsewhere.
func Encode(l Layout, blockSize uint32) ([]byte, error) {
	if !isPowerOfTwo(blockSize) || blockSize < MinBlockSize {
		return nil, ErrBlockSizeTooSmall
	}
	if int(blockSize) < fixedFieldEnd+crcSize {
		return nil, ErrBlockSizeTooSmall
	}

	buf := make([]byte, blockSize)
	copy(buf[magicOff:], Magic[:])
	buf[versionOff] = VersionMajor
	buf[versionOff+1] = VersionMinor
	binary.LittleEndian.PutUint32(buf[blockSizeOff:], blockSize)
	binary.LittleEndian.PutUint64(buf[journalOff:], l.JournalBlocks)
	binary.LittleEndian.PutUint64(buf[dataOff:], l.DataBlocks)
	copy(buf[uuidOff:uuidOff+16], l.UUID[:])
	// buf[fixedFieldEnd : blockSize-crcSize] is reserved, left zeroed.

	crc := adler32.Checksum(buf[:blockSize-crcSize])
	binary.LittleEndian.PutUint32(buf[blockSize-crcSize:], crc)
	return buf, nil
}

// Decode validates and parses a header block previously written by Encode.
func Decode(buf []byte) (Layout, error) {
	if len(buf) < fixedFieldEnd+crcSize {
		return Layout{}, fmt.Errorf("%w: short header", ErrCorrupt)
	}
	if string(buf[magicOff:magicOff+8]) != string(Magic[:]) {
		return Layout{}, ErrBadMagic
	}

	blockSize := binary.LittleEndian.Uint32(buf[blockSizeOff:])
	if int(blockSize) > len(buf) {
		return Layout{}, fmt.Errorf("%w: block size exceeds buffer", ErrCorrupt)
	}

	wantCRC := binary.LittleEndian.Uint32(buf[blockSize-crcSize:])
	gotCRC := adler32.Checksum(buf[:blockSize-crcSize])
	if wantCRC != gotCRC {
		return Layout{}, ErrCorrupt
	}

	major := buf[versionOff]
	minor := buf[versionOff+1]
	if major != VersionMajor {
		return Layout{}, ErrBadVersion
	}

	var l Layout
	l.VersionMajor = major
	l.VersionMinor = minor
	l.BlockSize = blockSize
	l.JournalBlocks = binary.LittleEndian.Uint64(buf[journalOff:])
	l.DataBlocks = binary.LittleEndian.Uint64(buf[dataOff:])
	copy(l.UUID[:], buf[uuidOff:uuidOff+16])
	return l, nil
}

// NewUUID generates a fresh random storage UUID (§6 `uuid` field), using
// google/uuid rather than hand-rolling a v4 generator over crypto/rand.
func NewUUID() [16]byte {
	id := uuid.New()
	var out [16]byte
	copy(out[:], id[:])
	return out
}
