package lusf

import (
	"github.com/lusfblk/lusf/internal/engine"
	"github.com/lusfblk/lusf/internal/scheduler"
)

// Engine-level sentinels (§7), re-exported under the public package so
// callers using errors.Is don't need to import internal/engine.
var (
	ErrNoSpace          = engine.ErrNoSpace
	ErrInvalidInput     = engine.ErrInvalidInput
	ErrStorageCorrupted = engine.ErrStorageCorrupted
	ErrDeviceError      = engine.ErrDeviceError
)

// Scheduler-level sentinels (§4.7), re-exported the same way.
var (
	// ErrDeadlineExpired is returned when a request's deadline passed
	// (beyond the configured grace) before it reached the front of the
	// queue. No I/O was attempted.
	ErrDeadlineExpired = scheduler.ErrDeadlineExpired
	// ErrCanceled is the scheduler's outcome for a job canceled before it
	// was dispatched. Device methods do not return it: when a request's
	// context is done first they return ctx.Err().
	ErrCanceled = scheduler.ErrCanceled
)

// ErrClosed is returned by any Device method that submits a request
// after Close; it is the scheduler's closed sentinel.
var ErrClosed = scheduler.ErrClosed
