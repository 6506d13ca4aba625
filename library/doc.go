// Package library holds the operations exposed across the boundary.
//
// The functions here are plain Go and know nothing about linear memory;
// Host adapts them into the method set the runtime binds by reflection.
// Scalar increments follow Go's wrapping arithmetic at the top of each
// width, so callers keep inputs below the maximum. ErrorInc and
// ErrorIncSigned are the checked variants.
package library
