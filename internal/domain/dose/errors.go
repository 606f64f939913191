package dose

import "errors"

var (
	ErrDoseNotFound      = errors.New("dose not found")
	ErrInvalidRef        = errors.New("invalid dose id")
	ErrInvalidTransition = errors.New("invalid dose status transition")
	ErrUnsupportedAction = errors.New("action not supported for this dose")
	ErrConcurrentUpdate  = errors.New("dose was updated concurrently")
)
