package domain

import "errors"

var (
	ErrProjectNotFound = errors.New("project not found")
	ErrProjectExists   = errors.New("project already exists")
	ErrUserNotFound    = errors.New("user not found")
	ErrUserExists      = errors.New("user already exists")
	ErrForbidden       = errors.New("forbidden")
	ErrInvalidInput    = errors.New("invalid input")
	// ErrPersistFailed wraps repository failures on a board write; the returned
	// project holds the pre-change items.
	ErrPersistFailed = errors.New("could not update HU status")
)

// PermissionError is returned when the policy refuses an action.
type PermissionError struct {
	Message string
}

func (e *PermissionError) Error() string { return e.Message }

// Is lets errors.Is(err, ErrForbidden) match permission denials.
func (e *PermissionError) Is(target error) bool { return target == ErrForbidden }
