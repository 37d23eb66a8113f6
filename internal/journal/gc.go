package journal

// Liveness reports, for a Put/Embed record read back from the journal,
// whether it is still the authoritative binding for its key — i.e. the
// index's current binding for that key matches this record's payload
// exactly (§4.4: "if it is still live (i.e. the current index binding
// for its key matches the record)"). The caller supplies this as a
// closure so the journal package does not need to import the specific
// binding representation used by internal/lump/internal/engine.
type Liveness func(rec Record) bool

// GC performs a single bounded inline-GC pass (§4.4, "inline GC"): it
// inspects up to maxSteps records starting at unreleasedHead and, for
// each:
//   - GoToFront/EndOfRecords markers are skipped without counting as a
//     step (they carry no key and nothing to preserve);
//   - Delete/DeleteRange tombstones are always rewritten forward. A
//     bounded inline pass cannot prove that no older, still-retained
//     Put/Embed record for the same key would be "resurrected" by
//     dropping the tombstone, so the safe, documented policy is to never
//     drop one (see DESIGN.md);
//   - a live Put/Embed (per isLive) is rewritten at the tail;
//   - a superseded Put/Embed is simply skipped (dropped).
//
// Stats summarizes one GC pass, surfaced to callers (internal/engine,
// internal/diag) that want to report GC effectiveness without the
// journal package needing to know anything about its consumers.
type Stats struct {
	Steps      int // records processed, <=maxSteps passed to GC
	Live       int // Put/Embed records rewritten forward because isLive(rec)
	Superseded int // Put/Embed records dropped because !isLive(rec)
	Tombstones int // Delete/DeleteRange records rewritten forward (always)
}

// It returns a Stats describing the pass (steps actually processed is
// <=maxSteps) and stops early once unreleasedHead reaches the tail as it
// stood when the pass began, so records the pass itself rewrites forward
// are not visited again in the same pass.
func GC(r *Ring, isLive Liveness, maxSteps int) (Stats, error) {
	var st Stats
	end := r.tail
	for st.Steps < maxSteps && r.unreleasedHead != end {
		rec, next, err := r.ReadAt(r.unreleasedHead)
		if err != nil {
			// The committed region should never fail to decode; treat
			// as caught up rather than propagating a spurious error
			// from stale bytes beyond any real record.
			break
		}

		switch rec.Tag {
		case TagGoToFront:
			r.unreleasedHead = 0
			r.head = r.unreleasedHead
			if err := r.persistCursor(); err != nil {
				return st, err
			}
			continue
		case TagEndOfRecords:
			// Nothing further is committed; GC is caught up.
			r.head = r.unreleasedHead
			return st, nil
		case TagDelete, TagDeleteRange:
			if _, err := r.Append(rec); err != nil {
				return st, err
			}
			r.unreleasedHead = next % r.capacity
			r.head = r.unreleasedHead
			if err := r.persistCursor(); err != nil {
				return st, err
			}
			st.Steps++
			st.Tombstones++
		case TagPut, TagEmbed:
			if isLive(rec) {
				if _, err := r.Append(rec); err != nil {
					return st, err
				}
				st.Live++
			} else {
				st.Superseded++
			}
			r.unreleasedHead = next % r.capacity
			r.head = r.unreleasedHead
			if err := r.persistCursor(); err != nil {
				return st, err
			}
			st.Steps++
		default:
			r.unreleasedHead = next % r.capacity
			r.head = r.unreleasedHead
			if err := r.persistCursor(); err != nil {
				return st, err
			}
		}
	}
	return st, nil
}

// ShouldGC reports whether the distance from unreleasedHead to tail has
// crossed triggerRatio of the ring's capacity (§4.4, §6
// journal_gc_trigger_ratio).
func ShouldGC(r *Ring, triggerRatio float64) bool {
	if r.capacity == 0 {
		return false
	}
	return float64(r.used())/float64(r.capacity) >= triggerRatio
}
