package decision

import "errors"

var (
	// ErrIllegalTransition is returned for any transition request outside
	// the lifecycle table. State is left unchanged.
	ErrIllegalTransition = errors.New("illegal decision transition")

	// ErrNotFound is returned when a decision id is unknown.
	ErrNotFound = errors.New("decision not found")

	// ErrExecution wraps collaborator failures during execution.
	ErrExecution = errors.New("decision execution failed")
)
