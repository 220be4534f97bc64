package trek

import "errors"

// Business-rule violations surfaced to handlers, never retried.
var (
	ErrTrekNotFound    = errors.New("trek not found")
	ErrLegNotFound     = errors.New("leg not found")
	ErrForbidden       = errors.New("forbidden")
	ErrNotParticipant  = errors.New("user is not a trek participant")
	ErrUnfinishedLeg   = errors.New("trek has unfinished leg")
	ErrNotNextAdder    = errors.New("user is not in line to add leg")
	ErrLegDisconnected = errors.New("leg does not start where last ended")
	ErrInvalidHour     = errors.New("progress hour must be between 0 and 23")
	ErrEmptyRoute      = errors.New("route must contain at least two points")
)
