package coordinator

import "errors"

var (
	ErrUnknownDoctor     = errors.New("unknown doctor")
	ErrUnknownPatient    = errors.New("unknown patient")
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrDischarged        = errors.New("patient discharged")
)
