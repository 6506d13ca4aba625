// Package ffiboundary exposes Go functions across a foreign-function
// boundary and defines the marshaling contract every value follows on
// the way across.
//
// The foreign caller is a WebAssembly guest running inside wazero. Host
// functions are imported by the guest, and every argument and result
// travels through the guest's linear memory or core value slots.
//
// # Architecture Overview
//
//	ffiboundary/        Root package with Memory and Allocator interfaces
//	├── errors/         Structured error types (Phase + Kind)
//	├── memory/         Linear memory, arena allocator, wazero adapter
//	├── transcoder/     Lowering and lifting of every boundary shape
//	├── resource/       Reference-counted handle table
//	├── record/         Per-field read/write locked records (Point)
//	├── library/        The exposed operations
//	├── idl/            YAML interface descriptions with WIT types
//	├── runtime/        Host registry and high-level API
//	├── engine/         wazero integration and guest stub synthesis
//	└── cmd/ffidemo/    Command line driver
//
// # Shapes
//
// Only these shapes cross the boundary:
//
//	Shape            Go type                        Boundary form
//	──────────────────────────────────────────────────────────────────
//	scalar           bool, intN, uintN, float32/64  one core slot
//	text             string                         ptr+len / NUL-terminated
//	optional         transcoder.Option[T]           flag byte + payload
//	sequence         []string                       ptr+len of strings
//	mapping          map[string]int32               list of (string, s32)
//	shared record    *record.Point                  u32 handle
//	fallible result  transcoder.Result[T, E]        disc byte + payload
//
// # Quick Start
//
//	rt, err := runtime.New(ctx, runtime.Options{})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer rt.Close(ctx)
//
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
//	out, err := inst.Call(ctx, "string-inc", "Hello")
//	fmt.Println(out) // HelloHello
//
// # Thread Safety
//
// Runtime is safe for concurrent use. Instance is NOT thread-safe; each
// call runs to completion before the next may begin.
package ffiboundary
