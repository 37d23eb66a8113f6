package engine

import "errors"

// Error kinds (§7). These are the canonical sentinels; the root lusf
// package re-exports them under its own names at the public API
// boundary so callers using errors.Is don't need to import internal
// packages, the same "internal owns it, public aliases it" split the
// teacher's errors.go doesn't need (folio is a single package) but a
// multi-package layout does.
var (
	// ErrNoSpace: the data region lacks any extent large enough, or the
	// journal would overwrite unreleased_head and inline GC could not
	// free enough space within its per-op step budget.
	ErrNoSpace = errors.New("engine: no space")
	// ErrInvalidInput: the value violates a size constraint, or an
	// operation's key range is malformed (low > high).
	ErrInvalidInput = errors.New("engine: invalid input")
	// ErrStorageCorrupted: a structural invariant was violated reading
	// back committed data (header/journal checksum, overlapping
	// extents). Terminal for the device.
	ErrStorageCorrupted = errors.New("engine: storage corrupted")
	// ErrDeviceError: the backing block.Device returned an I/O error.
	// Terminal for the device.
	ErrDeviceError = errors.New("engine: device error")
)
