// Package runtime provides the high-level API for binding Go operations
// behind the boundary.
//
// # Quick Start
//
//	ctx := context.Background()
//	rt, err := runtime.New(ctx, runtime.Options{})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer rt.Close(ctx)
//
//	// Bind every exported method of a host
//	if err := rt.RegisterHost(library.NewHost(rt.Handles())); err != nil {
//	    log.Fatal(err)
//	}
//
//	inst, err := rt.Instantiate(ctx)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer inst.Close(ctx)
//
//	result, err := inst.Call(ctx, "string-inc", "ab")
//	fmt.Println(result) // "abab"
//
// # Host Functions
//
//	// Register a typed function
//	rt.RegisterFunc("my:package/api@1.0.0", "greet",
//	    func(ctx context.Context, name string) string {
//	        return "Hello, " + name
//	    })
//
//	// Or implement the Host interface for a full namespace
//	rt.RegisterHost(myHost)
//
// Method names are converted from PascalCase to kebab-case. Hosts that
// need other names implement ExplicitRegistrar. Hosts implementing
// CStringHost also bind raw functions taking a null-terminated string
// and a call status record.
//
// # Type Mapping
//
// Go types are automatically mapped to boundary types:
//
//	Go Type            Boundary Type
//	───────────────────────────────────
//	bool               bool
//	int8/uint8         s8/u8
//	int16/uint16       s16/u16
//	int32/uint32       s32/u32
//	int64/uint64       s64/u64
//	float32            f32
//	float64            f64
//	string             string
//	[]T                list<T>
//	map[K]V            list<tuple<K, V>>
//	*T, Option[T]      option<T>
//	Result[T, E]       result<T, E>
//	struct{...}        record
//	Enum integer       enum
//	ResourceNamer      borrow<R> as parameter, own<R> as result
//
// A leading context.Context and a trailing error are not part of the
// boundary signature. A non-nil error traps the call.
//
// # Handles
//
// Pointer types implementing ResourceNamer cross as objects in the
// runtime's handle table; uint32 types implementing it cross as the
// handle number. A zero handle where one is required aborts the call.
//
// # Thread Safety
//
// Runtime is safe for concurrent use. Calls on one Instance are
// serialized; use one Instance per goroutine for parallel calls.
package runtime
