package record

import "sync"

// Field holds one value behind its own reader/writer lock. Readers of a
// field share it; a writer excludes readers and writers of that field
// only. The zero value is ready to use and holds the zero T.
//
// A Field must not be copied after first use.
type Field[T any] struct {
	mu    sync.RWMutex
	value T
}

// NewField returns a field holding v.
func NewField[T any](v T) *Field[T] {
	return &Field[T]{value: v}
}

// Load returns the current value under a shared lock.
func (f *Field[T]) Load() T {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.value
}

// Store replaces the value under an exclusive lock.
func (f *Field[T]) Store(v T) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.value = v
}

// Read calls fn with the value while holding a shared lock. The lock is
// released when fn returns, fails or panics.
func (f *Field[T]) Read(fn func(T) error) error {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return fn(f.value)
}

// Modify replaces the value with fn's result while holding an
// exclusive lock.
func (f *Field[T]) Modify(fn func(T) T) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.value = fn(f.value)
}

// Update replaces the value with fn's result while holding an exclusive
// lock. When fn fails the value is left unchanged. The lock is released
// on every exit path, including a panic in fn.
func (f *Field[T]) Update(fn func(T) (T, error)) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, err := fn(f.value)
	if err != nil {
		return err
	}
	f.value = v
	return nil
}
