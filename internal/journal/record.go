// Package journal implements the on-disk journal ring (§4.4, §6): an
// append-only sequence of crash-atomic mutation records with embedded
// checkpoints, read back at open() to rebuild the lump index.
package journal

import (
	"encoding/binary"
	"errors"
	"hash/adler32"

	"github.com/lusfblk/lusf/internal/alloc"
	"github.com/lusfblk/lusf/internal/lump"
)

// Tag identifies a journal record's variant (§3, §6).
type Tag byte

const (
	TagPut          Tag = 1
	TagEmbed        Tag = 2
	TagDelete       Tag = 3
	TagDeleteRange  Tag = 4
	TagGoToFront    Tag = 14
	TagEndOfRecords Tag = 15
)

const (
	frameHeaderSize = 1 + 2 // tag + length
	frameCRCSize    = 4
	// FrameOverhead is the fixed cost of a record frame, excluding
	// payload: tag(1) + length(2) + crc(4).
	FrameOverhead = frameHeaderSize + frameCRCSize
)

var (
	// ErrTruncated is returned by decode when fewer bytes are available
	// than the frame's declared length, or the buffer ends mid-frame —
	// the torn-write case §4.4/§7 says must be treated as the logical
	// tail, not an error to the caller.
	ErrTruncated = errors.New("journal: truncated record")
	// ErrChecksum is returned when a frame's CRC does not match its
	// content — also treated as the logical tail on replay (§4.4).
	ErrChecksum = errors.New("journal: checksum mismatch")
	// ErrPayload is returned when a well-framed record's payload does
	// not match its tag's fixed shape — structurally impossible data,
	// §7 StorageCorrupted.
	ErrPayload = errors.New("journal: malformed payload")
)

// Record is a decoded journal entry. Exactly one of the Put/Embed/Delete/
// DeleteRange fields is meaningful, selected by Tag.
type Record struct {
	Tag Tag

	ID       lump.Id      // Put, Embed, Delete
	Extent   alloc.Extent // Put
	Length   uint64       // Put: exact value length in bytes (<= Extent.Count*blockSize)
	Checksum uint64       // Put: optional read-path integrity checksum (§A.5), 0 if VerifyOnRead is off
	Data     []byte       // Embed (owned copy)
	Range    lump.Range   // DeleteRange
}

// Encode serializes r into a self-contained frame: tag, length-prefixed
// payload, trailing Adler-32 checksum over tag+length+payload. Adler-32
// is mandated by §6 for this field; see DESIGN.md.
func Encode(r Record) []byte {
	var payload []byte
	switch r.Tag {
	case TagPut:
		payload = make([]byte, 48)
		idb := r.ID.Bytes()
		copy(payload[0:16], idb[:])
		binary.LittleEndian.PutUint64(payload[16:24], r.Extent.Start)
		binary.LittleEndian.PutUint64(payload[24:32], r.Extent.Count)
		binary.LittleEndian.PutUint64(payload[32:40], r.Length)
		binary.LittleEndian.PutUint64(payload[40:48], r.Checksum)
	case TagEmbed:
		payload = make([]byte, 16+len(r.Data))
		idb := r.ID.Bytes()
		copy(payload[0:16], idb[:])
		copy(payload[16:], r.Data)
	case TagDelete:
		payload = make([]byte, 16)
		idb := r.ID.Bytes()
		copy(payload, idb[:])
	case TagDeleteRange:
		payload = make([]byte, 32)
		lo := r.Range.Low.Bytes()
		hi := r.Range.High.Bytes()
		copy(payload[0:16], lo[:])
		copy(payload[16:32], hi[:])
	case TagGoToFront, TagEndOfRecords:
		payload = nil
	}

	frame := make([]byte, frameHeaderSize+len(payload)+frameCRCSize)
	frame[0] = byte(r.Tag)
	binary.LittleEndian.PutUint16(frame[1:3], uint16(len(payload)))
	copy(frame[3:], payload)
	crc := adler32.Checksum(frame[:3+len(payload)])
	binary.LittleEndian.PutUint32(frame[3+len(payload):], crc)
	return frame
}

// Decode parses one frame from the start of buf. It returns the record,
// the number of bytes consumed, and an error. ErrTruncated and
// ErrChecksum are the two "stop replay here" conditions (§4.4); all
// other errors indicate a payload that is the wrong shape for its tag,
// which should never happen for a frame that passed its checksum and is
// treated as corruption (§7).
func Decode(buf []byte) (Record, int, error) {
	if len(buf) < frameHeaderSize {
		return Record{}, 0, ErrTruncated
	}
	tag := Tag(buf[0])
	length := int(binary.LittleEndian.Uint16(buf[1:3]))
	total := frameHeaderSize + length + frameCRCSize
	if len(buf) < total {
		return Record{}, 0, ErrTruncated
	}

	payload := buf[3 : 3+length]
	wantCRC := binary.LittleEndian.Uint32(buf[3+length : total])
	gotCRC := adler32.Checksum(buf[:3+length])
	if wantCRC != gotCRC {
		return Record{}, 0, ErrChecksum
	}

	r := Record{Tag: tag}
	switch tag {
	case TagPut:
		if length != 48 {
			return Record{}, 0, ErrPayload
		}
		r.ID = lump.IdFromBytes(payload[0:16])
		r.Extent = alloc.Extent{
			Start: binary.LittleEndian.Uint64(payload[16:24]),
			Count: binary.LittleEndian.Uint64(payload[24:32]),
		}
		r.Length = binary.LittleEndian.Uint64(payload[32:40])
		r.Checksum = binary.LittleEndian.Uint64(payload[40:48])
	case TagEmbed:
		if length < 16 {
			return Record{}, 0, ErrPayload
		}
		r.ID = lump.IdFromBytes(payload[0:16])
		r.Data = append([]byte(nil), payload[16:]...)
	case TagDelete:
		if length != 16 {
			return Record{}, 0, ErrPayload
		}
		r.ID = lump.IdFromBytes(payload[0:16])
	case TagDeleteRange:
		if length != 32 {
			return Record{}, 0, ErrPayload
		}
		r.Range = lump.Range{Low: lump.IdFromBytes(payload[0:16]), High: lump.IdFromBytes(payload[16:32])}
	case TagGoToFront, TagEndOfRecords:
		// no payload
	default:
		return Record{}, 0, ErrPayload
	}

	return r, total, nil
}

// Len returns the encoded size of r without allocating the frame, used
// to decide whether a record fits before the physical end of the ring.
func Len(r Record) int {
	switch r.Tag {
	case TagPut:
		return FrameOverhead + 48
	case TagDeleteRange:
		return FrameOverhead + 32
	case TagEmbed:
		return FrameOverhead + 16 + len(r.Data)
	case TagDelete:
		return FrameOverhead + 16
	default: // GoToFront, EndOfRecords
		return FrameOverhead
	}
}
