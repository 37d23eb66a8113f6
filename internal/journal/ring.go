package journal

import (
	"errors"
	"fmt"

	"github.com/lusfblk/lusf/internal/block"
)

// ErrJournalFull is returned when appending would cause the ring's tail
// to overrun unreleased_head (§4.4). It is recoverable: the caller may
// retry once inline GC has advanced unreleased_head (§7).
var ErrJournalFull = errors.New("journal: full")

// ErrCorruptCursor is returned by Open when the reserved cursor block
// fails its checksum (§7 StorageCorrupted).
var ErrCorruptCursor = errors.New("journal: corrupt cursor block")

// Ring is the on-disk journal ring (§3 "Journal state", §4.4). Block 0
// of the region is reserved for a persisted cursor (see cursor.go); the
// remaining blocks are the ring proper. An in-memory mirror of the whole
// ring is kept — at most a few tens of MiB per §6's defaults — so record
// framing, wraps, and the GoToFront/EndOfRecords bookkeeping are plain
// byte-slice operations; only the bytes that actually change are flushed
// back to the backing block.Device, which is what the disk-access budget
// (§4.6, §8.7) measures.
//
// Durability is established by flushing the bytes of each appended
// record (plus the EndOfRecords stub immediately following it, written
// in the same flush whenever it lands in the same blocks) and the cursor
// block, then syncing the device, before Append returns.
type Ring struct {
	dev        block.Device
	startBlock uint64 // first block of the region (the cursor block)
	blockSize  uint32
	capacity   uint64 // ring capacity in bytes, excluding the cursor block

	buf []byte // in-memory mirror of the ring proper, len == capacity

	head           uint64 // next byte to read (inline GC's reclaim cursor)
	tail           uint64 // next byte to write
	unreleasedHead uint64 // oldest record still needed to reconstruct state
}

// Open loads an existing journal ring from dev, reading the cursor block
// and the ring region into memory. The caller should follow Open with
// Replay to rebuild the lump index and allocator state from the record
// stream starting at the recovered unreleasedHead.
func Open(dev block.Device, startBlock, blocks uint64) (*Ring, error) {
	if blocks < 2 {
		return nil, fmt.Errorf("journal: ring needs at least 2 blocks (cursor + data), got %d", blocks)
	}
	blockSize := dev.BlockSize()
	capacity := (blocks - 1) * uint64(blockSize)

	cbuf := block.AlignedBuffer(blockSize, int(blockSize))
	if err := dev.ReadAt(startBlock, 1, cbuf); err != nil {
		return nil, fmt.Errorf("journal: load cursor: %w", err)
	}
	c, ok := decodeCursor(cbuf)
	if !ok {
		return nil, fmt.Errorf("journal: %w: cursor block checksum mismatch", ErrCorruptCursor)
	}

	buf := block.AlignedBuffer(blockSize, int(capacity))
	if err := dev.ReadAt(startBlock+1, blocks-1, buf); err != nil {
		return nil, fmt.Errorf("journal: load ring: %w", err)
	}

	r := &Ring{dev: dev, startBlock: startBlock, blockSize: blockSize, capacity: capacity, buf: buf}
	r.setCursors(c.UnreleasedHead, c.Tail, c.UnreleasedHead)
	return r, nil
}

// Create zero-initializes a fresh journal ring of the given size and
// writes it, plus an initial all-zero cursor, to dev (§4.2: "create ...
// zero-initializes the journal region").
func Create(dev block.Device, startBlock, blocks uint64) (*Ring, error) {
	if blocks < 2 {
		return nil, fmt.Errorf("journal: ring needs at least 2 blocks (cursor + data), got %d", blocks)
	}
	blockSize := dev.BlockSize()
	capacity := (blocks - 1) * uint64(blockSize)

	r := &Ring{dev: dev, startBlock: startBlock, blockSize: blockSize, capacity: capacity,
		buf: block.AlignedBuffer(blockSize, int(capacity))}

	if err := dev.WriteAt(startBlock+1, r.buf); err != nil {
		return nil, fmt.Errorf("journal: zero-init ring: %w", err)
	}
	if err := r.persistCursor(); err != nil {
		return nil, err
	}
	return r, nil
}

// persistCursor writes the current tail/unreleasedHead to the reserved
// cursor block and syncs the device, so the record bytes flushed before
// it are durable too. Called after every Append and every inline-GC step
// that mutates either cursor.
func (r *Ring) persistCursor() error {
	buf := encodeCursor(cursor{Tail: r.tail, UnreleasedHead: r.unreleasedHead}, r.blockSize)
	if err := r.dev.WriteAt(r.startBlock, buf); err != nil {
		return err
	}
	return r.dev.Sync()
}

// Head, Tail, UnreleasedHead expose the ring cursors for testing and for
// internal/diag.
func (r *Ring) Head() uint64           { return r.head }
func (r *Ring) Tail() uint64           { return r.tail }
func (r *Ring) UnreleasedHead() uint64 { return r.unreleasedHead }
func (r *Ring) Capacity() uint64       { return r.capacity }

// setCursors is used by Open to install the cursors read from the cursor
// block.
func (r *Ring) setCursors(head, tail, unreleasedHead uint64) {
	r.head, r.tail, r.unreleasedHead = head, tail, unreleasedHead
}

// used returns the number of bytes currently occupied between
// unreleasedHead and tail (mod capacity).
func (r *Ring) used() uint64 {
	if r.capacity == 0 {
		return 0
	}
	return (r.tail - r.unreleasedHead + r.capacity) % r.capacity
}

// flush writes buf[a:b) back to the device, rounded out to whole blocks.
// The range must not straddle the physical end of the ring (callers
// arrange this by wrapping via GoToFront before it would).
func (r *Ring) flush(a, b uint64) error {
	if a >= b {
		return nil
	}
	startBlock := a / uint64(r.blockSize)
	endBlock := (b + uint64(r.blockSize) - 1) / uint64(r.blockSize)
	off := startBlock * uint64(r.blockSize)
	end := endBlock * uint64(r.blockSize)
	if end > r.capacity {
		end = r.capacity
	}
	return r.dev.WriteAt(r.startBlock+1+startBlock, r.buf[off:end])
}

// Append writes rec to the ring, returning the byte offset it was
// written at. It enforces the wrap and JournalFull rules of §4.4:
//   - if rec fits before the physical end of the ring, it's written in
//     place;
//   - otherwise a GoToFront marker is written at the current tail and
//     rec is placed at offset 0;
//   - either way, if doing so would make tail overtake unreleasedHead,
//     the append fails with ErrJournalFull and the ring is left
//     unchanged.
//
// An EndOfRecords stub is written immediately after rec so that replay
// has an explicit marker for "nothing committed beyond this point" —
// without it, stale bytes left over from a previous trip around the ring
// could be mistaken for live records after a wrap (§4.4).
func (r *Ring) Append(rec Record) (uint64, error) {
	body := Encode(rec)
	eor := Encode(Record{Tag: TagEndOfRecords})

	writeAt := r.tail
	spaceToEnd := r.capacity - r.tail

	if uint64(len(body))+uint64(len(eor)) > spaceToEnd {
		// Need to wrap. After the wrap the live bytes are
		// [unreleasedHead, capacity) plus the new record and its
		// EndOfRecords stub at the front, so the wrap is refused when
		// tail is already behind unreleasedHead or when those bytes
		// would reach it.
		if r.unreleasedHead > r.tail {
			return 0, ErrJournalFull
		}
		newUsedIfWrapped := r.capacity - r.unreleasedHead
		if newUsedIfWrapped+uint64(len(body))+uint64(len(eor)) > r.capacity-1 {
			return 0, ErrJournalFull
		}

		// Writing GoToFront consumes the remainder of the ring up to the
		// physical end.
		markerLen := uint64(0)
		if spaceToEnd > 0 {
			marker := Encode(Record{Tag: TagGoToFront})
			if uint64(len(marker)) > spaceToEnd {
				// Not reached: every append leaves room for its
				// EndOfRecords stub before the physical end, and a
				// GoToFront marker is the same size as that stub.
			} else {
				copy(r.buf[r.tail:], marker)
				markerLen = uint64(len(marker))
			}
		}

		if markerLen > 0 {
			if err := r.flush(r.tail, r.tail+markerLen); err != nil {
				return 0, err
			}
		}

		writeAt = 0
		copy(r.buf[0:], body)
		copy(r.buf[uint64(len(body)):], eor)
		if err := r.flush(0, uint64(len(body))+uint64(len(eor))); err != nil {
			return 0, err
		}
		r.tail = uint64(len(body))
		if err := r.persistCursor(); err != nil {
			return 0, err
		}
		return writeAt, nil
	}

	// No wrap needed.
	needed := uint64(len(body)) + uint64(len(eor))
	if r.used()+needed > r.capacity-1 {
		return 0, ErrJournalFull
	}

	copy(r.buf[r.tail:], body)
	copy(r.buf[r.tail+uint64(len(body)):], eor)
	if err := r.flush(r.tail, r.tail+needed); err != nil {
		return 0, err
	}
	r.tail += uint64(len(body))
	if err := r.persistCursor(); err != nil {
		return 0, err
	}
	return writeAt, nil
}

// ReadAt decodes the record at byte offset off, returning it and the
// offset immediately following it (mod capacity). It does not advance
// any cursor; callers (replay, inline GC) do that themselves.
func (r *Ring) ReadAt(off uint64) (Record, uint64, error) {
	if off >= r.capacity {
		return Record{}, 0, fmt.Errorf("journal: offset %d out of range", off)
	}
	rec, n, err := Decode(r.buf[off:])
	if err != nil {
		return Record{}, 0, err
	}
	return rec, off + uint64(n), nil
}
