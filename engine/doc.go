// Package engine carries typed calls across a WebAssembly boundary.
//
// Go handlers are registered with a boundary signature and become wazero
// host functions, one host module per namespace. The engine then
// synthesizes a guest stub module that owns a linear memory, imports
// every host function and exports a trampoline for it under
// "namespace#name". Calling through an Instance therefore goes
//
//	Go caller -> lower into guest memory -> trampoline -> host function
//	  -> lift -> handler -> lower results -> lift in caller
//
// and every value crosses the same flat slot and linear memory encoding
// a compiled guest would see.
//
// # Memory
//
// Each Instance has one memory and one arena allocator shared by both
// sides. The caller frees what it lowered once the call returns; result
// blocks the host allocated are freed by the caller after lifting.
// Borrowed handles the caller created for the call are released at the
// same point.
//
// # Failures
//
// A host function never returns a malformed result. Lift failures, null
// handles, lowering failures and handler errors panic inside the host
// function, wazero turns the panic into a trap of that one guest call,
// and the caller receives an errors.KindTrap error whose chain contains
// the original error. The instance stays usable.
//
// Raw C-string functions use a call status record instead: code 0 on
// success, 1 when the call reported an error and 2 when the handler
// panicked, with a message allocated in guest memory. A null string
// pointer still traps.
package engine
