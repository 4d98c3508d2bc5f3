package workflow

import "errors"

var (
	// ErrAssignmentTimeout means no doctor was assigned in time.
	ErrAssignmentTimeout = errors.New("assignment timeout")

	// ErrResultTimeout means lab or imaging results did not arrive in time.
	ErrResultTimeout = errors.New("result timeout")

	// ErrShutdown is returned once the orchestrator stops accepting work.
	ErrShutdown = errors.New("orchestrator shut down")

	ErrUnknownHandle = errors.New("unknown workflow handle")
)
