package resource

import (
	"reflect"
	"sync"

	"github.com/wippyai/ffi-boundary/transcoder"
)

var _ transcoder.HandleTable = (*Table)(nil)

// Table is a reference-counted handle table with lifecycle observers.
// It is safe for concurrent use.
type Table struct {
	backend   *LocalBackend
	observers []Observer
	obsMu     sync.RWMutex
}

// NewTable creates an empty table.
func NewTable() *Table {
	return &Table{
		backend: NewLocalBackend(),
	}
}

// Insert stores v under the resource type and returns a handle holding
// one reference.
func (t *Table) Insert(resource string, v any) (uint32, error) {
	h, err := t.backend.Create(resource, v)
	if err != nil {
		return 0, err
	}
	t.notify(Event{Type: EventCreated, Handle: h, Resource: resource, Value: v, Refs: 1})
	return uint32(h), nil
}

// Get returns the object behind h. An empty resource matches any type.
func (t *Table) Get(resource string, h uint32) (any, error) {
	return t.backend.Get(resource, Handle(h))
}

// Retain adds a reference to h. The handle stays valid until every
// reference is released.
func (t *Table) Retain(resource string, h uint32) error {
	refs, err := t.backend.Retain(resource, Handle(h))
	if err != nil {
		return err
	}
	t.notify(Event{Type: EventRetained, Handle: Handle(h), Resource: resource, Refs: refs})
	return nil
}

// Release drops one reference held by h. The last release frees the
// handle and calls Drop on values implementing Dropper.
func (t *Table) Release(resource string, h uint32) error {
	value, refs, dropped, err := t.backend.Release(resource, Handle(h))
	if err != nil {
		return err
	}
	if !dropped {
		t.notify(Event{Type: EventReleased, Handle: Handle(h), Resource: resource, Value: value, Refs: refs})
		return nil
	}

	if d, ok := value.(Dropper); ok {
		d.Drop()
	}
	t.notify(Event{Type: EventDropped, Handle: Handle(h), Resource: resource, Value: value})
	return nil
}

// Refs returns the reference count of h, or 0 when h is not live.
func (t *Table) Refs(h uint32) uint32 {
	return t.backend.Refs(Handle(h))
}

// Subscribe adds an observer for lifecycle events.
func (t *Table) Subscribe(o Observer) {
	t.obsMu.Lock()
	defer t.obsMu.Unlock()
	t.observers = append(t.observers, o)
}

// Unsubscribe removes an observer added with Subscribe.
func (t *Table) Unsubscribe(o Observer) {
	t.obsMu.Lock()
	defer t.obsMu.Unlock()
	for i, obs := range t.observers {
		if sameObserver(obs, o) {
			t.observers = append(t.observers[:i], t.observers[i+1:]...)
			return
		}
	}
}

// Len returns the number of live handles.
func (t *Table) Len() int {
	return t.backend.Len()
}

// Clear releases every reference of every live handle.
func (t *Table) Clear() {
	// collect first; Release takes the backend lock
	type live struct {
		resource string
		h        Handle
	}
	var handles []live
	t.backend.Each(func(h Handle, resource string, _ any) bool {
		handles = append(handles, live{resource, h})
		return true
	})
	for _, l := range handles {
		for t.backend.Refs(l.h) > 0 {
			if err := t.Release(l.resource, uint32(l.h)); err != nil {
				break
			}
		}
	}
}

// Close drops every value and rejects further inserts.
func (t *Table) Close() error {
	return t.backend.Close()
}

// sameObserver compares observers without panicking on func values,
// which never compare equal.
func sameObserver(a, b Observer) bool {
	ta := reflect.TypeOf(a)
	return ta == reflect.TypeOf(b) && ta.Comparable() && a == b
}

func (t *Table) notify(e Event) {
	t.obsMu.RLock()
	defer t.obsMu.RUnlock()
	for _, o := range t.observers {
		o.OnResourceEvent(e)
	}
}

// Typed gives type-safe access to one resource type of a table.
type Typed[T any] struct {
	table    *Table
	resource string
}

// NewTyped binds the resource name to T.
func NewTyped[T any](table *Table, resource string) *Typed[T] {
	return &Typed[T]{table: table, resource: resource}
}

func (t *Typed[T]) Resource() string { return t.resource }

func (t *Typed[T]) Insert(v T) (Handle, error) {
	h, err := t.table.Insert(t.resource, v)
	return Handle(h), err
}

func (t *Typed[T]) Get(h Handle) (T, error) {
	var zero T
	v, err := t.table.Get(t.resource, uint32(h))
	if err != nil {
		return zero, err
	}
	typed, ok := v.(T)
	if !ok {
		return zero, invalidType(h, v)
	}
	return typed, nil
}

// Clone returns h after adding a reference; both uses must be released.
func (t *Typed[T]) Clone(h Handle) (Handle, error) {
	if err := t.table.Retain(t.resource, uint32(h)); err != nil {
		return 0, err
	}
	return h, nil
}

func (t *Typed[T]) Release(h Handle) error {
	return t.table.Release(t.resource, uint32(h))
}
