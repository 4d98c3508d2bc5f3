package sim

import "errors"

// Validation failures. Every operation that returns one of these leaves the
// shared world state untouched.
var (
	ErrNotAdjacent         = errors.New("target location is not adjacent")
	ErrLocationFull        = errors.New("location is at capacity")
	ErrOutsideHours        = errors.New("outside business hours")
	ErrDuplicateID         = errors.New("duplicate id")
	ErrUnknownAgent        = errors.New("unknown agent")
	ErrUnknownLocation     = errors.New("unknown location")
	ErrUnknownExamType     = errors.New("unknown exam type")
	ErrUnknownEquipment    = errors.New("unknown equipment")
	ErrSlotTaken           = errors.New("reservation slot already taken")
	ErrDailyCapExceeded    = errors.New("daily usage cap reached")
	ErrDeviceInMaintenance = errors.New("device in maintenance")
)
