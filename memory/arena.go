package memory

import (
	"sort"
	"sync"

	ffiboundary "github.com/wippyai/ffi-boundary"
	"github.com/wippyai/ffi-boundary/errors"
)

// Growable is linear memory that can report its size and grow by pages.
type Growable interface {
	ffiboundary.MemorySizer
	Grow(deltaPages uint32) bool
}

var _ ffiboundary.Allocator = (*Arena)(nil)

// Arena is a host-managed first-fit allocator over a region of linear
// memory starting at base. Freed blocks are coalesced with their
// neighbours; a free block touching the top shrinks the bump pointer.
type Arena struct {
	mem  Growable
	live map[uint32]uint32
	free []block
	base uint32
	top  uint32
	mu   sync.Mutex
}

type block struct {
	ptr  uint32
	size uint32
}

// NewArena creates an arena that allocates from base upwards.
// base 0 is bumped to 8 so no allocation can return the null pointer.
func NewArena(mem Growable, base uint32) *Arena {
	if base < 8 {
		base = 8
	}
	return &Arena{
		mem:  mem,
		live: make(map[uint32]uint32),
		base: base,
		top:  base,
	}
}

func alignTo(offset, align uint32) uint64 {
	if align <= 1 {
		return uint64(offset)
	}
	a := uint64(align)
	return (uint64(offset) + a - 1) &^ (a - 1)
}

// Alloc reserves size bytes aligned to align.
func (a *Arena) Alloc(size, align uint32) (uint32, error) {
	if align == 0 || align&(align-1) != 0 {
		return 0, errors.InvalidInput(errors.PhaseRuntime, "alignment must be a power of two")
	}
	if size == 0 {
		size = 1
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	for i, b := range a.free {
		start := alignTo(b.ptr, align)
		end := start + uint64(size)
		if end > uint64(b.ptr)+uint64(b.size) {
			continue
		}
		a.free = append(a.free[:i], a.free[i+1:]...)
		if start > uint64(b.ptr) {
			a.insertFree(block{ptr: b.ptr, size: uint32(start) - b.ptr})
		}
		if tail := uint64(b.ptr) + uint64(b.size) - end; tail > 0 {
			a.insertFree(block{ptr: uint32(end), size: uint32(tail)})
		}
		a.live[uint32(start)] = size
		return uint32(start), nil
	}

	start := alignTo(a.top, align)
	end := start + uint64(size)
	if end > 1<<32 {
		return 0, errors.AllocationFailed(errors.PhaseRuntime, size, align)
	}
	if err := a.ensure(end); err != nil {
		return 0, err
	}
	if start > uint64(a.top) {
		a.insertFree(block{ptr: a.top, size: uint32(start) - a.top})
	}
	a.top = uint32(end)
	a.live[uint32(start)] = size
	return uint32(start), nil
}

func (a *Arena) ensure(end uint64) error {
	have := uint64(a.mem.Size())
	if end <= have {
		return nil
	}
	pages := (end - have + PageSize - 1) / PageSize
	if !a.mem.Grow(uint32(pages)) {
		return errors.New(errors.PhaseRuntime, errors.KindAllocation).
			Detail("cannot grow memory by %d pages", pages).
			Build()
	}
	return nil
}

// Free releases a block returned by Alloc. Unknown pointers are ignored.
func (a *Arena) Free(ptr, size, align uint32) {
	a.mu.Lock()
	defer a.mu.Unlock()

	n, ok := a.live[ptr]
	if !ok {
		return
	}
	delete(a.live, ptr)
	a.insertFree(block{ptr: ptr, size: n})
	a.trimTop()
}

// Reset releases every allocation.
func (a *Arena) Reset() {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.live = make(map[uint32]uint32)
	a.free = a.free[:0]
	a.top = a.base
}

// InUse returns the number of bytes held by live allocations.
func (a *Arena) InUse() uint32 {
	a.mu.Lock()
	defer a.mu.Unlock()

	var total uint32
	for _, n := range a.live {
		total += n
	}
	return total
}

// Live returns the number of live allocations.
func (a *Arena) Live() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.live)
}

// insertFree adds b keeping the list sorted and merging adjacent blocks.
func (a *Arena) insertFree(b block) {
	i := sort.Search(len(a.free), func(i int) bool { return a.free[i].ptr > b.ptr })
	a.free = append(a.free, block{})
	copy(a.free[i+1:], a.free[i:])
	a.free[i] = b

	if i+1 < len(a.free) && a.free[i].ptr+a.free[i].size == a.free[i+1].ptr {
		a.free[i].size += a.free[i+1].size
		a.free = append(a.free[:i+1], a.free[i+2:]...)
	}
	if i > 0 && a.free[i-1].ptr+a.free[i-1].size == a.free[i].ptr {
		a.free[i-1].size += a.free[i].size
		a.free = append(a.free[:i], a.free[i+1:]...)
	}
}

func (a *Arena) trimTop() {
	if len(a.free) == 0 {
		return
	}
	last := a.free[len(a.free)-1]
	if last.ptr+last.size == a.top {
		a.top = last.ptr
		a.free = a.free[:len(a.free)-1]
	}
}
