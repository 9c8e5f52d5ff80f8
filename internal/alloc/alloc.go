// Package alloc tracks which page numbers are in use within an open
// pagedb file and hands out the smallest free page on demand.
package alloc

import (
	"sync"

	"github.com/robwalker/pagedb/internal/dberr"
	"github.com/robwalker/pagedb/internal/storage"
)

// Allocator tracks the in-use page set in memory. It never touches the
// underlying file. Allocate and AllocateAfter mark the page they return
// in use before returning it, so two allocations within one operation
// never collide.
type Allocator struct {
	mu    sync.Mutex
	inUse map[storage.PageNumber]struct{}
}

// New seeds an allocator from a pre-computed in-use set, typically the
// one catalog.Load returns.
func New(inUse map[storage.PageNumber]struct{}) *Allocator {
	seeded := make(map[storage.PageNumber]struct{}, len(inUse))
	for p := range inUse {
		seeded[p] = struct{}{}
	}
	seeded[0] = struct{}{}
	return &Allocator{inUse: seeded}
}

// Allocate returns the smallest page number >= 1 not currently in use
// and marks it in use. It fails with dberr.StorageFull if none remains.
func (a *Allocator) Allocate() (storage.PageNumber, error) {
	return a.allocateAfter(0)
}

// AllocateAfter returns the smallest page number > k not currently in
// use and marks it in use. It is used to pick the Meta page immediately
// after the Definition page chosen by Allocate.
func (a *Allocator) AllocateAfter(k storage.PageNumber) (storage.PageNumber, error) {
	return a.allocateAfter(k)
}

func (a *Allocator) allocateAfter(k storage.PageNumber) (storage.PageNumber, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if k >= storage.MaxPageNumber {
		// k+1 would overflow PageNumber's int32 range and wrap to a
		// negative page number instead of failing.
		return 0, dberr.New("alloc.Allocate", dberr.StorageFull)
	}
	for p := k + 1; p <= storage.MaxPageNumber; p++ {
		if _, used := a.inUse[p]; !used {
			a.inUse[p] = struct{}{}
			return p, nil
		}
	}
	return 0, dberr.New("alloc.Allocate", dberr.StorageFull)
}

// Mark inserts n into the in-use set.
func (a *Allocator) Mark(n storage.PageNumber) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.inUse[n] = struct{}{}
}

// Release removes n from the in-use set.
func (a *Allocator) Release(n storage.PageNumber) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.inUse, n)
}

// InUse reports whether n is currently marked in use.
func (a *Allocator) InUse(n storage.PageNumber) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	_, used := a.inUse[n]
	return used
}

// Snapshot returns a copy of the in-use set, for tests and diagnostics.
func (a *Allocator) Snapshot() map[storage.PageNumber]struct{} {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make(map[storage.PageNumber]struct{}, len(a.inUse))
	for p := range a.inUse {
		out[p] = struct{}{}
	}
	return out
}
