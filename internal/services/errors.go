// Package services holds the gateway's message pipeline. This file
// centralizes service-level error values so that callers can check them
// with errors.Is.
package services

import "errors"

var (
	// ErrUnknownFlowMode is returned by ParseFlowMode for values other than
	// "deferred" and "resolve_first".
	ErrUnknownFlowMode = errors.New("unknown flow mode")
)

// ErrInvalidStatus is returned when a delivery status filter is neither
// "sent" nor "failed".
var ErrInvalidStatus = errors.New("delivery status must be sent or failed")
