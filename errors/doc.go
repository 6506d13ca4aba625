// Package errors provides structured error types for the boundary.
//
// Errors are categorized by Phase (where the error occurred) and Kind (error category).
// The Error type includes rich context: argument path, Go/WIT type names, and cause chain.
//
// Use the Builder for structured error construction:
//
//	err := errors.New(errors.PhaseLower, errors.KindTypeMismatch).
//		Path("param[0]").
//		GoType("int").
//		WitType("u8").
//		Detail("scalar width must match exactly").
//		Build()
//
// Or use convenience constructors for common patterns:
//
//	err := errors.InvalidUTF8(errors.PhaseLift, path, data)
//	err := errors.NullHandle(errors.PhaseLift, path, "point")
//	err := errors.IntegerOverflow(errors.PhaseCall, a, b)
//
// All errors implement the standard error interface and support errors.Is/As.
package errors
