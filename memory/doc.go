// Package memory provides linear memory implementations and the host-side
// allocator used to place boundary values.
//
// Linear is a growable byte-slice memory used by pure-Go callers and
// tests. Wrapper adapts a wazero api.Memory so the same transcoder code
// runs against a real guest. Arena hands out regions of either one.
package memory
