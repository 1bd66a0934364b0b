package present

import "errors"

var (
	// ErrBusy is returned by Pool.Acquire when every buffer is reserved or
	// committed. The caller skips the frame.
	ErrBusy = errors.New("present: all buffers busy")

	// ErrStaleSerial reports a configure serial acknowledged more than once.
	// The window is unusable afterwards.
	ErrStaleSerial = errors.New("present: stale configure serial")

	// ErrNotConfigured reports a buffer commit attempted before the first
	// configure was acknowledged.
	ErrNotConfigured = errors.New("present: surface not configured")

	// ErrWriteAfterCommit is the panic value for writes into a buffer that
	// has been handed to the compositor.
	ErrWriteAfterCommit = errors.New("present: write to committed buffer")

	// ErrClosed is returned once the window or pool has been torn down.
	ErrClosed = errors.New("present: closed")
)
