package modem

import "errors"

var (
	// ErrNoDialer is returned when a Modem is constructed without a Dialer.
	//
	// This indicates a configuration error. A Dialer is required in order to
	// establish a connection to the modem.
	ErrNoDialer = errors.New("no dialer configured")

	// ErrNotInitialized is returned when the Dialer produced no Transport.
	ErrNotInitialized = errors.New("modem not initialized")

	// ErrAlreadyClosed is returned by every command once Close was called,
	// and by a second Close.
	ErrAlreadyClosed = errors.New("modem already closed")

	// ErrLoopRunning is returned when Loop is started while another Loop is
	// still running.
	ErrLoopRunning = errors.New("loop already running")

	// ErrInvalidState is returned when a command is issued in a connection
	// state that does not permit it. Nothing is sent and the state is left
	// unchanged.
	ErrInvalidState = errors.New("command not allowed in current state")

	// ErrAckPending is returned when a command would need an acknowledgment
	// while one of the same kind is still outstanding.
	ErrAckPending = errors.New("acknowledgment still pending")

	// ErrCommandTooLong is returned when a formatted AT command does not fit
	// the command scratch buffer.
	ErrCommandTooLong = errors.New("AT command too long")
)
