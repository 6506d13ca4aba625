// Package record provides shared mutable records whose fields are
// locked one at a time.
package record
