package projects

import "errors"

var (
	// ErrInvalidProject is returned for malformed submissions
	ErrInvalidProject = errors.New("invalid project")
	// ErrNotFound is returned when no project has the given id
	ErrNotFound = errors.New("project not found")
	// ErrAlreadyDecided is returned to the loser of a transition race or for a terminal project
	ErrAlreadyDecided = errors.New("project already decided")
)
