package journal

import (
	"path/filepath"
	"testing"

	"github.com/lusfblk/lusf/internal/alloc"
	"github.com/lusfblk/lusf/internal/block"
	"github.com/lusfblk/lusf/internal/lump"
	"github.com/stretchr/testify/require"
)

func newTestRing(t *testing.T, blocks uint64) *Ring {
	t.Helper()
	dir := t.TempDir()
	dev, err := block.CreateFileDevice(filepath.Join(dir, "journal.img"), 512, blocks)
	require.NoError(t, err)
	t.Cleanup(func() { dev.Close() })
	r, err := Create(dev, 0, blocks)
	require.NoError(t, err)
	return r
}

func TestRingAppendAndReadBack(t *testing.T) {
	r := newTestRing(t, 4)
	id := lump.FromUint64(1)
	off, err := r.Append(Record{Tag: TagPut, ID: id, Extent: alloc.Extent{Start: 1, Count: 1}})
	require.NoError(t, err)
	require.Equal(t, uint64(0), off)

	rec, next, err := r.ReadAt(off)
	require.NoError(t, err)
	require.Equal(t, TagPut, rec.Tag)
	require.Equal(t, id, rec.ID)

	eor, _, err := r.ReadAt(next)
	require.NoError(t, err)
	require.Equal(t, TagEndOfRecords, eor.Tag)
}

func TestRingAppendAndReadBackCarriesChecksum(t *testing.T) {
	r := newTestRing(t, 4)
	id := lump.FromUint64(2)
	off, err := r.Append(Record{Tag: TagPut, ID: id, Extent: alloc.Extent{Start: 1, Count: 1}, Length: 17, Checksum: 0xdeadbeefcafef00d})
	require.NoError(t, err)

	rec, _, err := r.ReadAt(off)
	require.NoError(t, err)
	require.Equal(t, uint64(17), rec.Length)
	require.Equal(t, uint64(0xdeadbeefcafef00d), rec.Checksum)
}

func TestRingWrapsWhenRecordDoesNotFit(t *testing.T) {
	r := newTestRing(t, 2) // 1 cursor block + 512-byte ring
	big := make([]byte, 400)
	id1 := lump.FromUint64(1)
	_, err := r.Append(Record{Tag: TagEmbed, ID: id1, Data: big})
	require.NoError(t, err)
	// Release the first record, as a GC pass that found it superseded
	// would, so the wrap below does not overrun unreleasedHead.
	r.unreleasedHead = r.tail

	// A second record that won't fit in the 89 bytes left before the
	// physical end forces a GoToFront + wrap to offset 0.
	id2 := lump.FromUint64(2)
	off, err := r.Append(Record{Tag: TagEmbed, ID: id2, Data: make([]byte, 100)})
	require.NoError(t, err)
	require.Equal(t, uint64(0), off)

	rec, _, err := r.ReadAt(0)
	require.NoError(t, err)
	require.Equal(t, id2, rec.ID)
}

func TestRingReturnsJournalFullWhenUnreleasedHeadWouldBeOverrun(t *testing.T) {
	r := newTestRing(t, 2)
	data := make([]byte, 300)
	id := lump.FromUint64(1)

	_, err := r.Append(Record{Tag: TagEmbed, ID: id, Data: data})
	require.NoError(t, err)
	_, err = r.Append(Record{Tag: TagEmbed, ID: id, Data: data})
	require.ErrorIs(t, err, ErrJournalFull)
}

func TestRingReplayRebuildsIndexAndAllocator(t *testing.T) {
	r := newTestRing(t, 4)
	idx := lump.New()
	a := alloc.New(100)

	id1 := lump.FromUint64(1)
	id2 := lump.FromUint64(2)

	_, err := r.Append(Record{Tag: TagPut, ID: id1, Extent: alloc.Extent{Start: 0, Count: 4}})
	require.NoError(t, err)
	_, err = r.Append(Record{Tag: TagEmbed, ID: id2, Data: []byte("hello")})
	require.NoError(t, err)
	_, err = r.Append(Record{Tag: TagDelete, ID: id1})
	require.NoError(t, err)

	require.NoError(t, Replay(r, idx, a))

	_, ok := idx.Get(id1)
	require.False(t, ok)
	b, ok := idx.Get(id2)
	require.True(t, ok)
	require.Equal(t, []byte("hello"), b.Data)
	require.Equal(t, uint64(100), a.FreeBlocks())
}

func TestRingReplayStopsAtTornWrite(t *testing.T) {
	r := newTestRing(t, 4)
	idx := lump.New()
	a := alloc.New(100)

	id := lump.FromUint64(1)
	_, err := r.Append(Record{Tag: TagEmbed, ID: id, Data: []byte("ok")})
	require.NoError(t, err)

	// Corrupt a byte inside the EndOfRecords frame to simulate a torn
	// write; replay must stop cleanly rather than erroring.
	r.buf[r.tail+1] ^= 0xFF

	require.NoError(t, Replay(r, idx, a))
	_, ok := idx.Get(id)
	require.True(t, ok)
}

func TestRingCursorSurvivesReopen(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "journal.img")

	dev, err := block.CreateFileDevice(path, 512, 4)
	require.NoError(t, err)
	r, err := Create(dev, 0, 4)
	require.NoError(t, err)

	id := lump.FromUint64(1)
	_, err = r.Append(Record{Tag: TagEmbed, ID: id, Data: []byte("persisted")})
	require.NoError(t, err)
	wantTail := r.Tail()
	require.NoError(t, dev.Close())

	dev2, err := block.OpenFileDevice(path, 512)
	require.NoError(t, err)
	defer dev2.Close()
	r2, err := Open(dev2, 0, 4)
	require.NoError(t, err)
	require.Equal(t, wantTail, r2.Tail())
	require.Equal(t, uint64(0), r2.UnreleasedHead())

	idx := lump.New()
	a := alloc.New(100)
	require.NoError(t, Replay(r2, idx, a))
	b, ok := idx.Get(id)
	require.True(t, ok)
	require.Equal(t, []byte("persisted"), b.Data)
}

func TestGCRewritesLiveRecordsAndDropsSuperseded(t *testing.T) {
	r := newTestRing(t, 4)
	idx := lump.New()
	a := alloc.New(100)

	id := lump.FromUint64(1)
	_, err := r.Append(Record{Tag: TagEmbed, ID: id, Data: []byte("v1")})
	require.NoError(t, err)
	_, err = r.Append(Record{Tag: TagEmbed, ID: id, Data: []byte("v2")})
	require.NoError(t, err)
	require.NoError(t, Replay(r, idx, a))

	r.unreleasedHead = 0
	isLive := func(rec Record) bool {
		b, ok := idx.Get(rec.ID)
		return ok && b.Embedded && string(b.Data) == string(rec.Data)
	}
	startTail := r.tail
	st, err := GC(r, isLive, 10)
	require.NoError(t, err)
	require.Equal(t, 2, st.Steps)
	require.Equal(t, 1, st.Live)
	require.Equal(t, 1, st.Superseded)
	require.Equal(t, startTail, r.unreleasedHead)
}
