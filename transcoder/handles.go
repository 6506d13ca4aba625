package transcoder

// HandleTable maps opaque u32 handles to Go objects for own and borrow
// values. Handle 0 is never issued.
type HandleTable interface {
	// Insert registers v under the resource type and returns a handle
	// holding one reference.
	Insert(resource string, v any) (uint32, error)
	// Get returns the object behind h without touching its references.
	Get(resource string, h uint32) (any, error)
	// Release drops one reference held by h.
	Release(resource string, h uint32) error
}
