package alloc

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAllocateWholeRegion(t *testing.T) {
	a := New(100)
	e, err := a.Allocate(100)
	require.NoError(t, err)
	require.Equal(t, Extent{Start: 0, Count: 100}, e)

	_, err = a.Allocate(1)
	require.ErrorIs(t, err, ErrNoSpace)
}

func TestAllocateRemainderBecomesFree(t *testing.T) {
	a := New(100)
	e, err := a.Allocate(40)
	require.NoError(t, err)
	require.Equal(t, Extent{Start: 0, Count: 40}, e)
	require.Equal(t, uint64(60), a.FreeBlocks())

	free := a.FreeExtents()
	require.Len(t, free, 1)
	require.Equal(t, Extent{Start: 40, Count: 60}, free[0])
}

func TestFreeCoalescesAdjacent(t *testing.T) {
	a := New(100)
	e1, _ := a.Allocate(10)
	e2, _ := a.Allocate(10)
	e3, _ := a.Allocate(10)

	require.NoError(t, a.Free(e1))
	require.NoError(t, a.Free(e3))
	// e3 coalesces with the free tail right after it, but e1 stays a
	// separate extent because e2 is still allocated between them.
	require.Len(t, a.FreeExtents(), 2) // e1, and e3 merged with the tail

	require.NoError(t, a.Free(e2))
	// Now e1, e2, e3 and the original tail all merge into one free run.
	free := a.FreeExtents()
	require.Len(t, free, 1)
	require.Equal(t, Extent{Start: 0, Count: 100}, free[0])
}

func TestFreeOverlapRejected(t *testing.T) {
	a := New(100)
	e, _ := a.Allocate(10)
	require.NoError(t, a.Free(e))
	require.ErrorIs(t, a.Free(e), ErrOverlap)
}

func TestOccupyThenFreeRemainder(t *testing.T) {
	a := New(100)
	require.NoError(t, a.Occupy(Extent{Start: 10, Count: 20}))

	free := a.FreeExtents()
	require.Equal(t, []Extent{{Start: 0, Count: 10}, {Start: 30, Count: 70}}, free)

	require.ErrorIs(t, a.Occupy(Extent{Start: 15, Count: 5}), ErrOverlap)
}

func TestFirstFitLowestAddressTieBreak(t *testing.T) {
	a := New(1000)
	// Install three same-size free extents at different addresses within
	// the same size class, sorted by start block as the allocator keeps
	// its free list.
	a.free = []Extent{{Start: 100, Count: 16}, {Start: 500, Count: 16}, {Start: 900, Count: 16}}

	e, err := a.Allocate(10)
	require.NoError(t, err)
	require.Equal(t, uint64(100), e.Start, "first-fit must prefer the lowest address within a size class")
}

// TestAllocatorInvariantRandomized exercises the §8 invariant: after any
// sequence of operations, every free extent is disjoint from every other
// and from nothing outside [0, capacity).
func TestAllocatorInvariantRandomized(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	a := New(10_000)
	var live []Extent

	for i := 0; i < 2000; i++ {
		if len(live) == 0 || rng.Intn(2) == 0 {
			n := uint64(1 + rng.Intn(50))
			e, err := a.Allocate(n)
			if err == nil {
				live = append(live, e)
			}
		} else {
			idx := rng.Intn(len(live))
			e := live[idx]
			live = append(live[:idx], live[idx+1:]...)
			require.NoError(t, a.Free(e))
		}
		require.NoError(t, a.Verify())
	}

	// Union of live (simulated occupied) + free must equal capacity with
	// no overlap (§8 invariant 3).
	total := a.FreeBlocks()
	for _, e := range live {
		total += e.Count
	}
	require.Equal(t, a.Capacity(), total)
}
