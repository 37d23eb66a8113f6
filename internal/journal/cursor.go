package journal

import (
	"encoding/binary"
	"hash/adler32"
)

// cursor is the small persisted record of where the ring's tail and
// unreleasedHead sit, written to the ring's own reserved block 0. The
// storage header (internal/header) is immutable once written (§4.2), so
// the mutable cursor state that Append and inline GC advance on every
// call cannot live there; it gets its own block instead.
//
// Without a persisted unreleasedHead, replay after a restart would have
// to assume the whole ring content back to offset 0 is still needed,
// which is wrong once the ring has wrapped at least once: the live
// window at that point genuinely spans unreleasedHead through the
// physical end, then wraps via GoToFront to 0 (§4.4 "Replay"). The
// reserved block is the price of recovering that window correctly.
type cursor struct {
	Tail           uint64
	UnreleasedHead uint64
}

const cursorEncodedSize = 8 + 8 + 4 // tail + unreleasedHead + crc

func encodeCursor(c cursor, blockSize uint32) []byte {
	buf := make([]byte, blockSize)
	binary.LittleEndian.PutUint64(buf[0:8], c.Tail)
	binary.LittleEndian.PutUint64(buf[8:16], c.UnreleasedHead)
	crc := adler32.Checksum(buf[0:16])
	binary.LittleEndian.PutUint32(buf[16:20], crc)
	return buf
}

func decodeCursor(buf []byte) (cursor, bool) {
	if len(buf) < cursorEncodedSize {
		return cursor{}, false
	}
	crc := adler32.Checksum(buf[0:16])
	want := binary.LittleEndian.Uint32(buf[16:20])
	if crc != want {
		return cursor{}, false
	}
	return cursor{
		Tail:           binary.LittleEndian.Uint64(buf[0:8]),
		UnreleasedHead: binary.LittleEndian.Uint64(buf[8:16]),
	}, true
}
