package domain

import "errors"

// Sentinel errors shared across the pipeline. Wrap with %w and check
// with errors.Is.
var (
	// ErrStreamNotFound indicates an operation referenced an unknown stream id.
	ErrStreamNotFound = errors.New("stream not found")

	// ErrSearchTimeout indicates the external search exceeded its processing budget.
	ErrSearchTimeout = errors.New("search timed out")

	// ErrChannelClosed indicates a send on a disconnected session channel.
	ErrChannelClosed = errors.New("session channel closed")
)
