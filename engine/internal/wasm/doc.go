// Package wasm encodes the small WebAssembly modules the engine
// synthesizes: a guest stub that owns linear memory and forwards each
// exported function to one host import.
package wasm
