// Package sanitizer normalizes caller-supplied identifiers and free text before
// validation and storage.
//
// All functions are idempotent. Invalid input is not rejected here; the
// validator decides whether the normalized value is acceptable.
package sanitizer
