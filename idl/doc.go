// Package idl reads interface description files.
//
// A description is a YAML document listing interfaces, the named types
// they declare and their functions. Types are written as expressions:
//
//	bool s8 s16 s32 s64 u8 u16 u32 u64 f32 f64 char string
//	list<T>  option<T>  tuple<T, ...>  result<T, E>  result<_, E>
//	own<R>  borrow<R>  <declared name>
//
// Verify checks a host registry against a description, so bindings
// derived from Go types cannot drift from the published interface.
package idl
