package alloc

import "fmt"

// Extent is a contiguous, half-open-by-length block range inside the data
// region: [Start, Start+Count). Extents never overlap except transiently
// during a replace (§3).
type Extent struct {
	Start uint64 // first block, relative to the data region
	Count uint64 // number of blocks
}

// End returns the first block past the extent.
func (e Extent) End() uint64 { return e.Start + e.Count }

// Empty reports whether the extent has zero length. No free extent may
// have zero length (§4.3 invariant).
func (e Extent) Empty() bool { return e.Count == 0 }

// Overlaps reports whether e and o share any block.
func (e Extent) Overlaps(o Extent) bool {
	return e.Start < o.End() && o.Start < e.End()
}

// Adjacent reports whether e immediately precedes or follows o with no gap,
// the condition under which Free coalesces them.
func (e Extent) Adjacent(o Extent) bool {
	return e.End() == o.Start || o.End() == e.Start
}

// Less orders extents by start block, the tie-break Free-list scans use
// for reproducible first-fit selection (§4.3: "ties ... broken by lowest
// block address").
func (e Extent) Less(o Extent) bool { return e.Start < o.Start }

func (e Extent) String() string {
	return fmt.Sprintf("[%d,%d)", e.Start, e.End())
}
