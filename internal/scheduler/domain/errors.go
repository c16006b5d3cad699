package domain

import "errors"

var (
	// ErrNotFound indicates that a requested job does not exist.
	ErrNotFound = errors.New("job not found")
	// ErrStatusConflict indicates an attempt to move a job from one terminal
	// status to a different one.
	ErrStatusConflict = errors.New("job already in a different terminal status")
	// ErrStorageUnavailable indicates the backing store could not be reached;
	// callers must not assume the operation took effect.
	ErrStorageUnavailable = errors.New("job storage unavailable")

	// ErrInvalidScheduleFormat indicates a schedule expression that does not
	// parse as "YYYY-MM-DD HH:MM:SS".
	ErrInvalidScheduleFormat = errors.New("invalid schedule expression format")
	// ErrScheduleInPast indicates a well-formed expression whose instant is
	// not in the future. Callers decide whether to reject or send immediately.
	ErrScheduleInPast = errors.New("scheduled time is not in the future")

	// Delivery failure classification, known only after attempts complete.
	ErrClientNotReady    = errors.New("messaging client not ready")
	ErrDeliveryTimeout   = errors.New("delivery attempt timed out")
	ErrInvalidRecipient  = errors.New("invalid recipient")
	ErrTransientPlatform = errors.New("transient platform failure")
	ErrUnknownPlatform   = errors.New("unknown platform failure")
)
