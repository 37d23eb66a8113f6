// Package alloc implements the data-region allocator (§4.3): a first-fit,
// size-indexed free list over the data region's block extents.
package alloc

import (
	"errors"
	"math/bits"
	"sort"

	"github.com/zeebo/xxh3"
)

// ErrNoSpace is returned when no single free extent can satisfy a request.
// The allocator never fragments a logical lump across multiple extents.
var ErrNoSpace = errors.New("alloc: no space")

// ErrOverlap is returned by Occupy when the requested extent overlaps an
// already-free or already-occupied extent — a structurally impossible
// state that the caller should treat as storage corruption (§7
// StorageCorrupted).
var ErrOverlap = errors.New("alloc: overlapping extent")

// sizeClass buckets a block count into the size class whose range is
// [2^(k-1), 2^k - 1] for class k>=1, with a single class 0 reserved for
// the (never valid) zero-length extent. First-fit scans size classes
// upward from sizeClass(requested) so that any extent found in a higher
// class is guaranteed large enough without a per-extent size check.
func sizeClass(count uint64) int {
	if count == 0 {
		return 0
	}
	return bits.Len64(count)
}

// Allocator tracks the free extents of a fixed-size data region. The
// region itself is defined purely by its total block count; the
// allocator never reads or writes blocks.
type Allocator struct {
	capacity uint64 // total blocks in the data region

	// free holds every free extent, kept sorted ascending by Start. This
	// single structure is both the coalescing index (a sorted interval
	// set: neighbors of a freed extent are its slice predecessor and
	// successor) and the source the size-indexed free list is computed
	// from: Allocate filters it by sizeClass while scanning classes
	// upward, so "every free list bucket contains only extents whose
	// size falls within the bucket's class" holds by construction rather
	// than needing separate bookkeeping to stay in sync.
	free []Extent
}

// New creates an allocator over an empty data region of the given size in
// blocks: the whole region starts free.
func New(capacityBlocks uint64) *Allocator {
	a := &Allocator{capacity: capacityBlocks}
	if capacityBlocks > 0 {
		a.free = []Extent{{Start: 0, Count: capacityBlocks}}
	}
	return a
}

// Capacity returns the total number of blocks in the data region.
func (a *Allocator) Capacity() uint64 { return a.capacity }

// FreeExtents returns a copy of the current free extents, sorted by start block.
func (a *Allocator) FreeExtents() []Extent {
	out := make([]Extent, len(a.free))
	copy(out, a.free)
	return out
}

// FreeBlocks returns the total number of free blocks.
func (a *Allocator) FreeBlocks() uint64 {
	var total uint64
	for _, e := range a.free {
		total += e.Count
	}
	return total
}

// index returns the sort.Search insertion point for an extent starting at
// `start`, preserving ascending order by Start.
func (a *Allocator) index(start uint64) int {
	return sort.Search(len(a.free), func(i int) bool { return a.free[i].Start >= start })
}

// Allocate reserves an extent of at least countBlocks blocks, returning
// ErrNoSpace if none exists. First-fit: scans size classes upward from
// sizeClass(countBlocks); within the first class holding a qualifying
// extent, the lowest-address match wins (the free list is sorted by
// address, so this is simply the first visited). The unused remainder of
// the chosen extent, if any, becomes a new free extent.
func (a *Allocator) Allocate(countBlocks uint64) (Extent, error) {
	if countBlocks == 0 {
		return Extent{}, ErrNoSpace
	}

	startClass := sizeClass(countBlocks)
	best := -1
	bestClass := -1
	for class := startClass; bestClass == -1 && class <= 64; class++ {
		for i, e := range a.free {
			if sizeClass(e.Count) != class {
				continue
			}
			if e.Count < countBlocks {
				continue
			}
			best = i
			bestClass = class
			break
		}
	}
	if best == -1 {
		return Extent{}, ErrNoSpace
	}

	chosen := a.free[best]
	result := Extent{Start: chosen.Start, Count: countBlocks}

	remainder := Extent{Start: chosen.Start + countBlocks, Count: chosen.Count - countBlocks}
	if remainder.Empty() {
		a.free = append(a.free[:best], a.free[best+1:]...)
	} else {
		a.free[best] = remainder
	}
	return result, nil
}

// Occupy reserves exactly the given extent, used during journal replay to
// mark extents referenced by surviving index entries as allocated before
// the remainder of the region is handed to the free list. It fails with
// ErrOverlap if the extent is not entirely free — replay treats that as
// StorageCorrupted (§7).
func (a *Allocator) Occupy(e Extent) error {
	if e.Empty() {
		return nil
	}
	if e.Start+e.Count > a.capacity {
		return ErrOverlap
	}

	for i, f := range a.free {
		if !e.Overlaps(f) {
			continue
		}
		if e.Start < f.Start || e.End() > f.End() {
			// Partially overlapping, not fully contained: impossible
			// for a well-formed free list.
			return ErrOverlap
		}

		var replacement []Extent
		if f.Start < e.Start {
			replacement = append(replacement, Extent{Start: f.Start, Count: e.Start - f.Start})
		}
		if e.End() < f.End() {
			replacement = append(replacement, Extent{Start: e.End(), Count: f.End() - e.End()})
		}

		a.free = append(a.free[:i], append(replacement, a.free[i+1:]...)...)
		return nil
	}
	return ErrOverlap
}

// Free releases an extent back to the pool, coalescing with adjacent free
// extents. Freeing an extent that overlaps an existing free extent is a
// programming error and returns ErrOverlap.
func (a *Allocator) Free(e Extent) error {
	if e.Empty() {
		return nil
	}

	pos := a.index(e.Start)

	// Check immediate neighbors for overlap (a sorted list only needs to
	// check the slots adjacent to the insertion point).
	if pos > 0 && a.free[pos-1].Overlaps(e) {
		return ErrOverlap
	}
	if pos < len(a.free) && a.free[pos].Overlaps(e) {
		return ErrOverlap
	}

	merged := e
	// Coalesce with predecessor.
	if pos > 0 && a.free[pos-1].Adjacent(merged) && a.free[pos-1].End() == merged.Start {
		merged = Extent{Start: a.free[pos-1].Start, Count: a.free[pos-1].Count + merged.Count}
		pos--
		a.free = append(a.free[:pos], a.free[pos+1:]...)
	}
	// Coalesce with successor (re-evaluate position after possible shift).
	succ := a.index(merged.Start)
	if succ < len(a.free) && merged.Adjacent(a.free[succ]) && merged.End() == a.free[succ].Start {
		merged = Extent{Start: merged.Start, Count: merged.Count + a.free[succ].Count}
		a.free = append(a.free[:succ], a.free[succ+1:]...)
	}

	insertAt := a.index(merged.Start)
	a.free = append(a.free, Extent{})
	copy(a.free[insertAt+1:], a.free[insertAt:])
	a.free[insertAt] = merged
	return nil
}

// bucketFingerprint hashes (size class, start block) with xxh3, the fast
// default hash the pack's document-store teacher uses for its own ID
// hashing (hash.go's AlgXXHash3). The allocator uses it only as an O(1)
// dedup key when building diagnostic free-list histograms (internal/diag)
// — it is not part of the allocation decision itself.
func bucketFingerprint(class int, start uint64) uint64 {
	var buf [16]byte
	buf[0] = byte(class)
	for i := 0; i < 8; i++ {
		buf[8+i] = byte(start >> (8 * i))
	}
	return xxh3.Hash(buf[:])
}

// Histogram returns the number of free extents per size class, used by
// internal/diag to report allocator fragmentation.
func (a *Allocator) Histogram() map[int]int {
	h := make(map[int]int)
	seen := make(map[uint64]struct{})
	for _, e := range a.free {
		class := sizeClass(e.Count)
		fp := bucketFingerprint(class, e.Start)
		if _, dup := seen[fp]; dup {
			continue // defensive: fingerprint collision, extent already counted
		}
		seen[fp] = struct{}{}
		h[class]++
	}
	return h
}

// Verify checks the allocator invariants (§8.3): no free extent has zero
// length, no two free extents overlap, and all lie within capacity. It
// does not check occupied extents — that is checked at the engine layer
// by comparing the index's referenced extents against FreeExtents.
func (a *Allocator) Verify() error {
	for i, e := range a.free {
		if e.Empty() {
			return ErrOverlap
		}
		if e.End() > a.capacity {
			return ErrOverlap
		}
		if i > 0 && a.free[i-1].End() > e.Start {
			return ErrOverlap
		}
	}
	return nil
}
