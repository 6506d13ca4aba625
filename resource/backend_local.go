package resource

import (
	"fmt"
	"sync"

	"github.com/wippyai/ffi-boundary/errors"
)

// LocalBackend is an in-memory slot store with reference counts.
// Freed slots are reused, so a stale handle may later name a different
// object; callers must not use a handle after its last release.
type LocalBackend struct {
	entries  []entry
	freeList []Handle
	mu       sync.RWMutex
	closed   bool
}

type entry struct {
	value    any
	resource string
	refs     uint32
	valid    bool
}

// NewLocalBackend creates an empty backend.
func NewLocalBackend() *LocalBackend {
	return &LocalBackend{
		entries:  make([]entry, 0, 64),
		freeList: make([]Handle, 0, 16),
	}
}

func closedError() error {
	return errors.New(errors.PhaseRuntime, errors.KindNotInitialized).
		Detail("handle table closed").
		Build()
}

// lookup returns the live entry for h. Callers hold mu.
func (b *LocalBackend) lookup(resource string, h Handle) (*entry, error) {
	if h == 0 {
		what := resource
		if what == "" {
			what = "handle"
		}
		return nil, errors.NullHandle(errors.PhaseRuntime, nil, what)
	}
	idx := int(h) - 1
	if idx >= len(b.entries) || !b.entries[idx].valid {
		return nil, errors.InvalidHandle(errors.PhaseRuntime, nil, uint32(h))
	}
	e := &b.entries[idx]
	if resource != "" && e.resource != resource {
		err := errors.InvalidHandle(errors.PhaseRuntime, nil, uint32(h))
		err.Detail = fmt.Sprintf("handle %d is a %s, not a %s", h, e.resource, resource)
		return nil, err
	}
	return e, nil
}

// Create stores value with one reference and returns its handle.
func (b *LocalBackend) Create(resource string, value any) (Handle, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return 0, closedError()
	}

	e := entry{
		value:    value,
		resource: resource,
		refs:     1,
		valid:    true,
	}

	if len(b.freeList) > 0 {
		h := b.freeList[len(b.freeList)-1]
		b.freeList = b.freeList[:len(b.freeList)-1]
		b.entries[h-1] = e
		return h, nil
	}

	b.entries = append(b.entries, e)
	return Handle(len(b.entries)), nil
}

// Get returns the value behind h. An empty resource matches any type.
func (b *LocalBackend) Get(resource string, h Handle) (any, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	e, err := b.lookup(resource, h)
	if err != nil {
		return nil, err
	}
	return e.value, nil
}

// Retain adds a reference and returns the new count.
func (b *LocalBackend) Retain(resource string, h Handle) (uint32, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	e, err := b.lookup(resource, h)
	if err != nil {
		return 0, err
	}
	e.refs++
	return e.refs, nil
}

// Release drops a reference. When the count reaches zero the slot is
// freed and the value returned with dropped set.
func (b *LocalBackend) Release(resource string, h Handle) (value any, refs uint32, dropped bool, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	e, err := b.lookup(resource, h)
	if err != nil {
		return nil, 0, false, err
	}
	e.refs--
	if e.refs > 0 {
		return e.value, e.refs, false, nil
	}

	value = e.value
	*e = entry{}
	b.freeList = append(b.freeList, h)
	return value, 0, true, nil
}

// Refs returns the reference count of h, or 0 when h is not live.
func (b *LocalBackend) Refs(h Handle) uint32 {
	b.mu.RLock()
	defer b.mu.RUnlock()

	e, err := b.lookup("", h)
	if err != nil {
		return 0
	}
	return e.refs
}

// Len returns the number of live handles.
func (b *LocalBackend) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.entries) - len(b.freeList)
}

// Each calls fn for every live handle until fn returns false.
func (b *LocalBackend) Each(fn func(Handle, string, any) bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for i, e := range b.entries {
		if e.valid && !fn(Handle(i+1), e.resource, e.value) {
			return
		}
	}
}

// Close frees every slot, dropping each value once, and rejects later
// inserts. Closing twice is a no-op.
func (b *LocalBackend) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	entries := b.entries
	b.entries = nil
	b.freeList = nil
	b.mu.Unlock()

	for _, e := range entries {
		if !e.valid {
			continue
		}
		if d, ok := e.value.(Dropper); ok {
			d.Drop()
		}
	}
	return nil
}

func invalidType(h Handle, v any) error {
	err := errors.InvalidHandle(errors.PhaseRuntime, nil, uint32(h))
	err.Detail = fmt.Sprintf("handle %d holds %T", h, v)
	return err
}
