// Package abi holds the low-level rules shared by the lowering and lifting
// code: alignment arithmetic, size limits, NaN canonicalisation, scalar
// slot range checks and flat-type joins.
//
// This package is internal to the transcoder.
package abi
