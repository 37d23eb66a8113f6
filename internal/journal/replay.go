package journal

import (
	"github.com/lusfblk/lusf/internal/alloc"
	"github.com/lusfblk/lusf/internal/lump"
)

// Replay rebuilds idx and occupies a's extents by reading the ring
// starting at the persisted unreleasedHead (§4.4 "Replay": "Starting
// from unreleased_head, read records sequentially"). A GoToFront
// encountered mid-scan redirects the read position to offset 0 rather
// than ending the scan — this is the only way the live window can be
// split in two (unreleasedHead..physical end, then 0..tail) once the
// ring has wrapped at least once since unreleasedHead was last
// advanced. The scan stops at the first EndOfRecords, or at the first
// record that fails to decode (truncated or bad checksum — the torn
// write case, §4.4/§7).
//
// Open seeds r.unreleasedHead/r.tail from the persisted cursor block
// before calling Replay, so this call re-derives the record-level state
// (the index and allocator) without needing to guess where the live
// data starts.
func Replay(r *Ring, idx *lump.Index, a *alloc.Allocator) error {
	pos := r.unreleasedHead
	seenWrap := false

	for {
		rec, next, err := r.ReadAt(pos)
		if err != nil {
			return nil
		}

		switch rec.Tag {
		case TagEndOfRecords:
			return nil
		case TagGoToFront:
			if seenWrap {
				// A second GoToFront before any EndOfRecords would mean
				// the ring wrapped twice without ever terminating the
				// epoch in between, which Append never produces.
				return nil
			}
			seenWrap = true
			pos = 0
			continue
		default:
			if err := apply(idx, a, rec); err != nil {
				return err
			}
			pos = next % r.capacity
		}
	}
}

// apply installs the effect of a single Put/Embed/Delete/DeleteRange
// record into idx and a, freeing any extent the record's key previously
// owned so replaying a superseding record never collides with the
// extent it replaces (§4.5, §8 invariant: every live extent belongs to
// exactly one key).
func apply(idx *lump.Index, a *alloc.Allocator, rec Record) error {
	switch rec.Tag {
	case TagPut:
		releaseOld(idx, a, rec.ID)
		if err := a.Occupy(rec.Extent); err != nil {
			return err
		}
		idx.Put(rec.ID, lump.Binding{Extent: rec.Extent, Length: rec.Length, Checksum: rec.Checksum})
	case TagEmbed:
		releaseOld(idx, a, rec.ID)
		idx.Put(rec.ID, lump.Binding{Embedded: true, Data: rec.Data})
	case TagDelete:
		releaseOld(idx, a, rec.ID)
		idx.Delete(rec.ID)
	case TagDeleteRange:
		for _, b := range idx.Range(rec.Range) {
			if !b.Embedded {
				_ = a.Free(b.Extent)
			}
		}
		idx.DeleteRange(rec.Range)
	}
	return nil
}

func releaseOld(idx *lump.Index, a *alloc.Allocator, id lump.Id) {
	if old, ok := idx.Get(id); ok && !old.Embedded {
		_ = a.Free(old.Extent)
	}
}
