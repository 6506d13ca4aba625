package memory

import (
	"encoding/binary"

	ffiboundary "github.com/wippyai/ffi-boundary"
)

// PageSize is the size of one linear memory page.
const PageSize = 65536

var _ ffiboundary.Memory = (*Linear)(nil)

// Linear is a growable in-process linear memory.
// It is not safe for concurrent use.
type Linear struct {
	data     []byte
	maxPages uint32
}

// NewLinear creates a memory with the given number of initial pages.
// maxPages of 0 means no limit beyond the 32-bit address space.
func NewLinear(pages, maxPages uint32) *Linear {
	if maxPages == 0 {
		maxPages = 65536
	}
	return &Linear{
		data:     make([]byte, int(pages)*PageSize),
		maxPages: maxPages,
	}
}

// Bytes exposes the backing slice.
func (m *Linear) Bytes() []byte {
	return m.data
}

func (m *Linear) Size() uint32 {
	return uint32(len(m.data))
}

// Grow grows memory by delta pages and reports success.
func (m *Linear) Grow(deltaPages uint32) bool {
	cur := uint32(len(m.data) / PageSize)
	if uint64(cur)+uint64(deltaPages) > uint64(m.maxPages) {
		return false
	}
	m.data = append(m.data, make([]byte, int(deltaPages)*PageSize)...)
	return true
}

func (m *Linear) check(offset uint32, n uint64) error {
	if uint64(offset)+n > uint64(len(m.data)) {
		return outOfBounds(offset, n)
	}
	return nil
}

// Read returns a copy of length bytes at offset.
func (m *Linear) Read(offset uint32, length uint32) ([]byte, error) {
	if err := m.check(offset, uint64(length)); err != nil {
		return nil, err
	}
	out := make([]byte, length)
	copy(out, m.data[offset:])
	return out, nil
}

func (m *Linear) Write(offset uint32, data []byte) error {
	if err := m.check(offset, uint64(len(data))); err != nil {
		return err
	}
	copy(m.data[offset:], data)
	return nil
}

func (m *Linear) ReadU8(offset uint32) (uint8, error) {
	if err := m.check(offset, 1); err != nil {
		return 0, err
	}
	return m.data[offset], nil
}

func (m *Linear) ReadU16(offset uint32) (uint16, error) {
	if err := m.check(offset, 2); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint16(m.data[offset:]), nil
}

func (m *Linear) ReadU32(offset uint32) (uint32, error) {
	if err := m.check(offset, 4); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(m.data[offset:]), nil
}

func (m *Linear) ReadU64(offset uint32) (uint64, error) {
	if err := m.check(offset, 8); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(m.data[offset:]), nil
}

func (m *Linear) WriteU8(offset uint32, value uint8) error {
	if err := m.check(offset, 1); err != nil {
		return err
	}
	m.data[offset] = value
	return nil
}

func (m *Linear) WriteU16(offset uint32, value uint16) error {
	if err := m.check(offset, 2); err != nil {
		return err
	}
	binary.LittleEndian.PutUint16(m.data[offset:], value)
	return nil
}

func (m *Linear) WriteU32(offset uint32, value uint32) error {
	if err := m.check(offset, 4); err != nil {
		return err
	}
	binary.LittleEndian.PutUint32(m.data[offset:], value)
	return nil
}

func (m *Linear) WriteU64(offset uint32, value uint64) error {
	if err := m.check(offset, 8); err != nil {
		return err
	}
	binary.LittleEndian.PutUint64(m.data[offset:], value)
	return nil
}
