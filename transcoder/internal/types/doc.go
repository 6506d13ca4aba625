// Package types defines compiled type plans.
//
// A CompiledType pairs one WIT type with one Go type and records the
// layout, flat shape and Go representation once, so lowering and lifting
// do not rediscover them per value.
//
// This package is internal to the transcoder.
package types
