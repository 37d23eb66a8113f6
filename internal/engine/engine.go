// Package engine implements the storage engine (§4.6): put/get/delete/
// delete_range/list/list_range/journal_sync, wired over internal/block,
// internal/header, internal/alloc, internal/journal, and internal/lump.
//
// Engine is not safe for concurrent use by multiple goroutines calling
// mutating operations simultaneously — callers (the lusf façade) are
// expected to serialize through the deadline scheduler, matching §4.6's
// "no background I/O, one operation runs to completion before the next
// is dispatched" model. A single mutex enforces that here too, as a
// second line of defense.
package engine

import (
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/lusfblk/lusf/internal/alloc"
	"github.com/lusfblk/lusf/internal/block"
	"github.com/lusfblk/lusf/internal/header"
	"github.com/lusfblk/lusf/internal/journal"
	"github.com/lusfblk/lusf/internal/lump"
)

// Options configures an Engine, translated from the public lusf.Config
// by the root package (internal/engine cannot import lusf: lusf imports
// internal/engine).
type Options struct {
	EmbedThresholdBytes   uint64
	JournalGCTriggerRatio float64
	JournalGCStepsPerOp   int
	MaxLumpSize           uint64
	Logger                *zap.SugaredLogger

	// IntegrityAlgorithm and VerifyOnRead control the optional read-path
	// checksum (§A.5). When VerifyOnRead is false (the default) Put
	// never computes a checksum and Get never verifies one.
	IntegrityAlgorithm IntegrityAlgorithm
	VerifyOnRead       bool
}

func (o Options) withDefaults() Options {
	if o.JournalGCTriggerRatio == 0 {
		o.JournalGCTriggerRatio = 0.5
	}
	if o.JournalGCStepsPerOp == 0 {
		o.JournalGCStepsPerOp = 8
	}
	if o.MaxLumpSize == 0 {
		o.MaxLumpSize = 4 << 20 // a few MiB, per spec §3 LumpData
	}
	if o.Logger == nil {
		o.Logger = zap.NewNop().Sugar()
	}
	return o
}

// Engine is the open storage engine over a single block.Device.
type Engine struct {
	mu sync.Mutex

	dev    block.Device
	layout header.Layout
	ring   *journal.Ring
	idx    *lump.Index
	alloc  *alloc.Allocator

	opts       Options
	lastGC     journal.Stats
	gcObserved bool
}

// Create initializes a brand-new storage file: header in block 0, a
// zero-initialized journal ring, and an empty data region (§4.2
// create()).
func Create(dev block.Device, journalBlocks, dataBlocks uint64, opts Options) (*Engine, error) {
	opts = opts.withDefaults()
	blockSize := dev.BlockSize()

	layout := header.Layout{
		BlockSize:     blockSize,
		JournalBlocks: journalBlocks,
		DataBlocks:    dataBlocks,
		UUID:          header.NewUUID(),
		VersionMajor:  header.VersionMajor,
		VersionMinor:  header.VersionMinor,
	}
	buf, err := header.Encode(layout, blockSize)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	if err := dev.WriteAt(0, buf); err != nil {
		return nil, fmt.Errorf("%w: writing header: %v", ErrDeviceError, err)
	}

	ring, err := journal.Create(dev, layout.JournalStart(), layout.JournalBlocks)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDeviceError, err)
	}

	e := &Engine{
		dev:    dev,
		layout: layout,
		ring:   ring,
		idx:    lump.New(),
		alloc:  alloc.New(layout.DataBlocks),
		opts:   opts,
	}
	opts.Logger.Infow("engine created", "uuid", fmt.Sprintf("%x", layout.UUID), "journal_blocks", journalBlocks, "data_blocks", dataBlocks)
	return e, nil
}

// Open loads an existing storage file: reads and validates the header,
// loads the journal ring, and replays it to rebuild the lump index and
// allocator state (§4.2 open()).
func Open(dev block.Device, opts Options) (*Engine, error) {
	opts = opts.withDefaults()
	blockSize := dev.BlockSize()

	hbuf := block.AlignedBuffer(blockSize, int(blockSize))
	if err := dev.ReadAt(0, 1, hbuf); err != nil {
		return nil, fmt.Errorf("%w: reading header: %v", ErrDeviceError, err)
	}
	layout, err := header.Decode(hbuf)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStorageCorrupted, err)
	}
	if layout.BlockSize != blockSize {
		return nil, fmt.Errorf("%w: header block size %d does not match device block size %d", ErrStorageCorrupted, layout.BlockSize, blockSize)
	}

	ring, err := journal.Open(dev, layout.JournalStart(), layout.JournalBlocks)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStorageCorrupted, err)
	}

	idx := lump.New()
	a := alloc.New(layout.DataBlocks)
	if err := journal.Replay(ring, idx, a); err != nil {
		return nil, fmt.Errorf("%w: replay: %v", ErrStorageCorrupted, err)
	}

	e := &Engine{dev: dev, layout: layout, ring: ring, idx: idx, alloc: a, opts: opts}
	opts.Logger.Infow("engine opened", "uuid", fmt.Sprintf("%x", layout.UUID), "keys", idx.Len())
	return e, nil
}

func (e *Engine) blocksFor(n uint64) uint64 {
	bs := uint64(e.layout.BlockSize)
	return (n + bs - 1) / bs
}

// embed reports whether data of this length is embedded directly in the
// journal rather than stored in the data region (§9 Open Question,
// resolved literally: embed iff len <= embed_threshold_bytes).
func (e *Engine) embed(n int) bool {
	return uint64(n) <= e.opts.EmbedThresholdBytes
}

// isLive reports, for a Put/Embed record read back off the journal
// during a GC pass, whether it is still the binding e.idx currently
// holds for its key (§4.4's liveness test).
func (e *Engine) isLive(r journal.Record) bool {
	switch r.Tag {
	case journal.TagPut:
		b, ok := e.idx.Get(r.ID)
		return ok && !b.Embedded && b.Extent == r.Extent && b.Length == r.Length
	case journal.TagEmbed:
		b, ok := e.idx.Get(r.ID)
		return ok && b.Embedded && fingerprint(b.Data) == fingerprint(r.Data)
	}
	return false
}

// runGC performs one bounded inline-GC pass and records its Stats,
// converting a terminal journal.ErrJournalFull (the oldest retained
// record is still live, so GC's own rewrite-forward Append has nowhere
// to go) into the public ErrNoSpace rather than letting the internal
// sentinel escape the engine boundary (§7: this condition must surface
// as NoSpace).
func (e *Engine) runGC() error {
	st, err := journal.GC(e.ring, e.isLive, e.opts.JournalGCStepsPerOp)
	e.lastGC = st
	e.gcObserved = true
	if err == journal.ErrJournalFull {
		return ErrNoSpace
	}
	return err
}

// maybeProactiveGC runs a bounded GC pass before servicing the next
// mutating request if the ring has crossed JournalGCTriggerRatio (§4.4:
// "When the distance from unreleased_head to tail exceeds a high-water
// mark, the engine performs a bounded amount of inline reclamation
// before servicing the next request" — §6 journal_gc_trigger_ratio).
// This runs ahead of need, distinct from appendWithGC's reactive pass
// below, which only fires once Append has already hit the cliff.
func (e *Engine) maybeProactiveGC() error {
	if !journal.ShouldGC(e.ring, e.opts.JournalGCTriggerRatio) {
		return nil
	}
	return e.runGC()
}

// appendWithGC appends rec, first running a proactive inline-GC pass if
// the ring has crossed the trigger ratio and then, if the ring reports
// ErrJournalFull, one more pass before retrying once; each pass is
// bounded by JournalGCStepsPerOp steps (§4.6: "including inline journal
// GC" as part of the same synchronous op).
func (e *Engine) appendWithGC(rec journal.Record) (uint64, error) {
	if err := e.maybeProactiveGC(); err != nil {
		return 0, err
	}

	off, err := e.ring.Append(rec)
	if err == nil {
		return off, nil
	}
	if err != journal.ErrJournalFull {
		return 0, err
	}

	if err := e.runGC(); err != nil {
		return 0, err
	}

	off, err = e.ring.Append(rec)
	if err == journal.ErrJournalFull {
		return 0, ErrNoSpace
	}
	return off, err
}

// Put inserts or replaces id's value, returning whether a new key was
// created (§4.6 put). Disk-access budget: 1 write for the embedded
// branch, 2 writes (data, then journal) for the non-embedded branch —
// plus one journal-cursor write in both cases (see DESIGN.md).
func (e *Engine) Put(id lump.Id, data []byte) (bool, error) {
	if uint64(len(data)) > e.opts.MaxLumpSize {
		return false, fmt.Errorf("%w: value of %d bytes exceeds max lump size %d", ErrInvalidInput, len(data), e.opts.MaxLumpSize)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	old, existed := e.idx.Get(id)

	if e.embed(len(data)) {
		if _, err := e.appendWithGC(journal.Record{Tag: journal.TagEmbed, ID: id, Data: data}); err != nil {
			return false, err
		}
		e.idx.Put(id, lump.Binding{Embedded: true, Data: append([]byte(nil), data...)})
		e.releaseIfExtent(old, existed)
		return !existed, nil
	}

	count := e.blocksFor(uint64(len(data)))
	ext, err := e.alloc.Allocate(count)
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrNoSpace, err)
	}

	buf := block.AlignedBuffer(e.layout.BlockSize, int(count*uint64(e.layout.BlockSize)))
	copy(buf, data)
	if err := e.dev.WriteAt(e.layout.DataStart()+ext.Start, buf); err != nil {
		_ = e.alloc.Free(ext)
		return false, fmt.Errorf("%w: writing data: %v", ErrDeviceError, err)
	}

	var sum uint64
	if e.opts.VerifyOnRead {
		sum = checksum(e.opts.IntegrityAlgorithm, data)
	}

	rec := journal.Record{Tag: journal.TagPut, ID: id, Extent: ext, Length: uint64(len(data)), Checksum: sum}
	if _, err := e.appendWithGC(rec); err != nil {
		_ = e.alloc.Free(ext)
		return false, err
	}

	e.idx.Put(id, lump.Binding{Extent: ext, Length: uint64(len(data)), Checksum: sum})
	e.releaseIfExtent(old, existed)
	return !existed, nil
}

func (e *Engine) releaseIfExtent(old lump.Binding, existed bool) {
	if existed && !old.Embedded {
		_ = e.alloc.Free(old.Extent)
	}
}

// Get returns id's current value, or ok=false if absent (§4.6 get).
// Disk-access budget: 0 reads for an embedded binding, 1 read otherwise.
func (e *Engine) Get(id lump.Id) (data []byte, ok bool, err error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	b, ok := e.idx.Get(id)
	if !ok {
		return nil, false, nil
	}
	if b.Embedded {
		return append([]byte(nil), b.Data...), true, nil
	}

	buf := block.AlignedBuffer(e.layout.BlockSize, int(b.Extent.Count*uint64(e.layout.BlockSize)))
	if err := e.dev.ReadAt(e.layout.DataStart()+b.Extent.Start, b.Extent.Count, buf); err != nil {
		return nil, false, fmt.Errorf("%w: reading data: %v", ErrDeviceError, err)
	}
	out := buf[:b.Length]
	if e.opts.VerifyOnRead && b.Checksum != 0 {
		if checksum(e.opts.IntegrityAlgorithm, out) != b.Checksum {
			return nil, false, fmt.Errorf("%w: checksum mismatch reading %s", ErrStorageCorrupted, id)
		}
	}
	return out, true, nil
}

// Delete removes id's binding, returning whether it existed (§4.6
// delete). Disk-access budget: 1 journal write, embedded or not; none
// when id is absent.
func (e *Engine) Delete(id lump.Id) (bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	old, existed := e.idx.Get(id)
	if !existed {
		return false, nil
	}

	if _, err := e.appendWithGC(journal.Record{Tag: journal.TagDelete, ID: id}); err != nil {
		return false, err
	}
	e.idx.Delete(id)
	e.releaseIfExtent(old, true)
	return true, nil
}

// DeleteRange removes every key in the inclusive range [low, high],
// returning the count removed (§4.5 delete_range, inclusive both ends).
// §9's Open Question on a near-full journal during a wide delete_range
// is resolved as one Delete journal record per surviving key (see
// SPEC_FULL.md §C) rather than introducing an aggregate record form.
func (e *Engine) DeleteRange(r lump.Range) (int, error) {
	if r.High.Less(r.Low) {
		return 0, fmt.Errorf("%w: range high < low", ErrInvalidInput)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	var toDelete []lump.Id
	for id := range e.idx.Range(r) {
		toDelete = append(toDelete, id)
	}

	count := 0
	for _, id := range toDelete {
		old, existed := e.idx.Get(id)
		if !existed {
			continue // concurrently superseded between the snapshot and here
		}
		if _, err := e.appendWithGC(journal.Record{Tag: journal.TagDelete, ID: id}); err != nil {
			return count, err
		}
		e.idx.Delete(id)
		e.releaseIfExtent(old, true)
		count++
	}
	return count, nil
}

// List returns every bound key in ascending order (§4.6 list).
func (e *Engine) List() []lump.Id {
	e.mu.Lock()
	defer e.mu.Unlock()

	var out []lump.Id
	for id := range e.idx.All() {
		out = append(out, id)
	}
	return out
}

// ListRange returns every bound key in the inclusive range [low, high],
// in ascending order (§4.6 list_range).
func (e *Engine) ListRange(r lump.Range) []lump.Id {
	e.mu.Lock()
	defer e.mu.Unlock()

	var out []lump.Id
	for id := range e.idx.Range(r) {
		out = append(out, id)
	}
	return out
}

// JournalSync forces durability of any deferred journal writes (§4.6
// journal_sync). The default policy here is per-record sync (every
// Append already syncs the device before returning), so this is a plain
// device Sync, kept as a distinct operation so
// a future buffering policy has a place to hook in without changing the
// public surface.
func (e *Engine) JournalSync() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.dev.Sync(); err != nil {
		return fmt.Errorf("%w: %v", ErrDeviceError, err)
	}
	return nil
}

// Layout exposes the validated region map, used by internal/diag.
func (e *Engine) Layout() header.Layout { return e.layout }

// Allocator exposes the data-region allocator, used by internal/diag.
func (e *Engine) Allocator() *alloc.Allocator { return e.alloc }

// Ring exposes the journal ring, used by internal/diag.
func (e *Engine) Ring() *journal.Ring { return e.ring }

// Index exposes the lump index, used by internal/diag.
func (e *Engine) Index() *lump.Index { return e.idx }

// LastGC returns the Stats from the most recent inline-GC pass, proactive
// or triggered by a journal-full retry, and whether any pass has run yet (used by
// internal/diag; ok is false if the journal has never needed to GC).
func (e *Engine) LastGC() (stats journal.Stats, ok bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.lastGC, e.gcObserved
}
