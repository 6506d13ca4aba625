package transcoder

import (
	"bytes"
	"strings"
	"unicode/utf8"

	ffiboundary "github.com/wippyai/ffi-boundary"
	"github.com/wippyai/ffi-boundary/errors"
)

const cstringChunk = 256

// LowerCString copies s into memory followed by a NUL byte and returns its
// address. Text with an interior NUL or invalid UTF-8 cannot be expressed
// as a C string and is rejected before anything is allocated.
func LowerCString(s string, mem Memory, alloc Allocator, allocs *AllocationList) (uint32, error) {
	if i := strings.IndexByte(s, 0); i >= 0 {
		return 0, errors.InteriorNul(errors.PhaseLower, nil, i)
	}
	if !utf8.ValidString(s) {
		return 0, errors.InvalidUTF8(errors.PhaseLower, nil, []byte(s))
	}
	if len(s) >= MaxStringSize {
		return 0, errors.Overflow(errors.PhaseLower, nil, len(s), "string")
	}
	if alloc == nil {
		return 0, errors.NotInitialized(errors.PhaseLower, "allocator")
	}

	size := uint32(len(s)) + 1
	ptr, err := alloc.Alloc(size, 1)
	if err != nil {
		return 0, err
	}
	if allocs != nil {
		allocs.Add(ptr, size, 1)
	}

	buf := make([]byte, size)
	copy(buf, s)
	if err := mem.Write(ptr, buf); err != nil {
		return 0, err
	}
	return ptr, nil
}

// LiftCString reads the NUL-terminated string at ptr. A zero pointer is a
// null handle. The scan stops at the end of memory or MaxStringSize bytes.
func LiftCString(ptr uint32, mem Memory) (string, error) {
	raw, err := ScanCString(ptr, mem)
	if err != nil {
		return "", err
	}
	if !utf8.Valid(raw) {
		return "", errors.InvalidUTF8(errors.PhaseLift, nil, raw)
	}
	return string(raw), nil
}

// ScanCString returns the bytes at ptr up to, not including, the first NUL
// without validating their encoding.
func ScanCString(ptr uint32, mem Memory) ([]byte, error) {
	if ptr == 0 {
		return nil, errors.NullHandle(errors.PhaseLift, nil, "string pointer")
	}

	limit := uint64(ptr) + MaxStringSize
	if sizer, ok := mem.(ffiboundary.MemorySizer); ok && uint64(sizer.Size()) < limit {
		limit = uint64(sizer.Size())
	}

	var out []byte
	pos := uint64(ptr)
	for pos < limit {
		n := uint64(cstringChunk)
		if pos+n > limit {
			n = limit - pos
		}
		chunk, err := mem.Read(uint32(pos), uint32(n))
		if err != nil {
			return nil, err
		}
		if i := bytes.IndexByte(chunk, 0); i >= 0 {
			return append(out, chunk[:i]...), nil
		}
		out = append(out, chunk...)
		pos += n
	}
	return nil, errors.OutOfBounds(errors.PhaseLift, nil, uint64(ptr), pos-uint64(ptr))
}
