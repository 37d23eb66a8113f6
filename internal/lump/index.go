package lump

import (
	"iter"
	"sort"
	"sync"
)

// Index is the in-memory map from Id to Binding that backs get/put/
// delete/delete_range/list (§4.5). It is rebuilt from the journal on
// open and kept current as operations are applied; the journal, not
// the index, is the durable record.
//
// keys is always sorted ascending and kept in lockstep with m, giving
// ordered iteration and range deletion without a separate tree
// structure — the same "sorted slice + binary search" shape as
// internal/alloc's free list.
type Index struct {
	mu   sync.RWMutex
	m    map[Id]Binding
	keys []Id
}

// New returns an empty index.
func New() *Index {
	return &Index{m: make(map[Id]Binding)}
}

func (x *Index) search(id Id) int {
	return sort.Search(len(x.keys), func(i int) bool { return !x.keys[i].Less(id) })
}

// Get returns the current binding for id, if any.
func (x *Index) Get(id Id) (Binding, bool) {
	x.mu.RLock()
	defer x.mu.RUnlock()
	b, ok := x.m[id]
	return b, ok
}

// Put installs or replaces the binding for id.
func (x *Index) Put(id Id, b Binding) {
	x.mu.Lock()
	defer x.mu.Unlock()
	if _, exists := x.m[id]; !exists {
		i := x.search(id)
		x.keys = append(x.keys, Id{})
		copy(x.keys[i+1:], x.keys[i:])
		x.keys[i] = id
	}
	x.m[id] = b
}

// Delete removes the binding for id, reporting whether it was present.
func (x *Index) Delete(id Id) bool {
	x.mu.Lock()
	defer x.mu.Unlock()
	if _, ok := x.m[id]; !ok {
		return false
	}
	delete(x.m, id)
	i := x.search(id)
	x.keys = append(x.keys[:i], x.keys[i+1:]...)
	return true
}

// DeleteRange removes every binding whose key falls in the inclusive
// range r in one pass, returning the removed keys in ascending order
// (§4.5: delete_range is inclusive on both ends). The engine's own
// DeleteRange does not call it; it journals and deletes one key at a
// time (see SPEC_FULL.md §C).
func (x *Index) DeleteRange(r Range) []Id {
	x.mu.Lock()
	defer x.mu.Unlock()

	lo := sort.Search(len(x.keys), func(i int) bool { return !x.keys[i].Less(r.Low) })
	hi := sort.Search(len(x.keys), func(i int) bool { return r.High.Less(x.keys[i]) })
	if lo >= hi {
		return nil
	}

	removed := append([]Id(nil), x.keys[lo:hi]...)
	for _, id := range removed {
		delete(x.m, id)
	}
	x.keys = append(x.keys[:lo], x.keys[hi:]...)
	return removed
}

// Len returns the number of bound keys.
func (x *Index) Len() int {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return len(x.keys)
}

// All iterates every binding in ascending key order (§4.6 list).
func (x *Index) All() iter.Seq2[Id, Binding] {
	return func(yield func(Id, Binding) bool) {
		x.mu.RLock()
		keys := append([]Id(nil), x.keys...)
		x.mu.RUnlock()
		for _, id := range keys {
			x.mu.RLock()
			b, ok := x.m[id]
			x.mu.RUnlock()
			if !ok {
				continue // concurrently deleted since the snapshot
			}
			if !yield(id, b) {
				return
			}
		}
	}
}

// Range iterates every binding whose key falls in the inclusive range r,
// in ascending order (§4.6 list_range).
func (x *Index) Range(r Range) iter.Seq2[Id, Binding] {
	return func(yield func(Id, Binding) bool) {
		x.mu.RLock()
		lo := sort.Search(len(x.keys), func(i int) bool { return !x.keys[i].Less(r.Low) })
		hi := sort.Search(len(x.keys), func(i int) bool { return r.High.Less(x.keys[i]) })
		keys := append([]Id(nil), x.keys[lo:hi]...)
		x.mu.RUnlock()
		for _, id := range keys {
			x.mu.RLock()
			b, ok := x.m[id]
			x.mu.RUnlock()
			if !ok {
				continue
			}
			if !yield(id, b) {
				return
			}
		}
	}
}
