package transcoder

import (
	"sync"

	ffiboundary "github.com/wippyai/ffi-boundary"
)

type Memory = ffiboundary.Memory
type Allocator = ffiboundary.Allocator

type Allocation struct {
	Ptr   uint32
	Size  uint32
	Align uint32
}

type borrowedHandle struct {
	resource string
	handle   uint32
}

// AllocationList records what one call placed in linear memory or the
// handle table, so it can be released when the call completes.
type AllocationList struct {
	allocations []Allocation
	borrows     []borrowedHandle
}

var allocationListPool = sync.Pool{
	New: func() any {
		return &AllocationList{allocations: make([]Allocation, 0, 8)}
	},
}

func NewAllocationList() *AllocationList {
	return allocationListPool.Get().(*AllocationList)
}

const maxPooledAllocationCapacity = 128

// Release returns to pool. Must call after Free(); list invalid after Release.
func (al *AllocationList) Release() {
	if cap(al.allocations) > maxPooledAllocationCapacity {
		return
	}
	al.Reset()
	allocationListPool.Put(al)
}

func (al *AllocationList) FreeAndRelease(allocator Allocator, handles HandleTable) {
	al.Free(allocator)
	al.ReleaseBorrows(handles)
	al.Release()
}

func (al *AllocationList) Add(ptr, size, align uint32) {
	al.allocations = append(al.allocations, Allocation{
		Ptr:   ptr,
		Size:  size,
		Align: align,
	})
}

// AddBorrow records a temporary handle created to lend an object.
func (al *AllocationList) AddBorrow(resource string, h uint32) {
	al.borrows = append(al.borrows, borrowedHandle{resource: resource, handle: h})
}

func (al *AllocationList) Free(allocator Allocator) {
	if allocator == nil {
		return
	}
	for _, a := range al.allocations {
		if a.Ptr != 0 {
			allocator.Free(a.Ptr, a.Size, a.Align)
		}
	}
	al.allocations = al.allocations[:0]
}

// ReleaseBorrows drops every temporary handle recorded by AddBorrow.
func (al *AllocationList) ReleaseBorrows(handles HandleTable) {
	if handles == nil {
		return
	}
	for _, b := range al.borrows {
		_ = handles.Release(b.resource, b.handle)
	}
	al.borrows = al.borrows[:0]
}

func (al *AllocationList) Reset() {
	al.allocations = al.allocations[:0]
	al.borrows = al.borrows[:0]
}

func (al *AllocationList) Count() int {
	return len(al.allocations)
}

func (al *AllocationList) Borrows() int {
	return len(al.borrows)
}
