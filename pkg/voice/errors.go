package voice

import "errors"

var (
	// ErrPermissionRequired is returned by Start before microphone access is granted.
	ErrPermissionRequired = errors.New("voice: microphone permission required")

	// ErrActionInFlight is returned when Start, End or ToggleMute is already running.
	ErrActionInFlight = errors.New("voice: action in flight")

	// ErrInvalidState is returned when an action is not permitted in the current state.
	ErrInvalidState = errors.New("voice: action not permitted in current state")

	// ErrNotConnected is returned by ToggleMute outside a connected session.
	ErrNotConnected = errors.New("voice: not connected")

	// ErrClosed is returned after the controller was closed.
	ErrClosed = errors.New("voice: controller closed")
)
