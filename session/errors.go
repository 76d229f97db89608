package session

import "errors"

var (
	// ErrTransportUnavailable means the radio is disabled, unsupported, or the
	// role needed for an operation was not supplied
	ErrTransportUnavailable = errors.New("bluetooth transport unavailable")

	// ErrConnectionFailure means connect retries were exhausted
	ErrConnectionFailure = errors.New("connection failed")

	// ErrWriteFailure means a chunk write was rejected or answered with a non-OK status
	ErrWriteFailure = errors.New("write failed")

	// ErrStalledReceive means a partial inbound message was dropped after inactivity
	ErrStalledReceive = errors.New("stalled receive")

	// ErrNoConnection means a send was attempted with no link and no device id
	ErrNoConnection = errors.New("no connected device")

	// ErrClosed is returned by operations on a closed session
	ErrClosed = errors.New("session closed")
)
