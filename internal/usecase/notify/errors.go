package notify

import "errors"

var (
	// ErrChannelDisabled is returned by Send on a disabled channel.
	ErrChannelDisabled = errors.New("channel is disabled")

	// ErrInvalidMessage means the message or its change id is missing.
	ErrInvalidMessage = errors.New("invalid notification message")

	// ErrInvalidChange is returned by NotifyChange for a nil source or record.
	ErrInvalidChange = errors.New("invalid change notification input")

	// ErrServiceClosed is returned by NotifyChange after Shutdown.
	ErrServiceClosed = errors.New("notification service is shut down")
)
