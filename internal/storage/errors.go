package storage

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound means the profile file does not exist.
	ErrNotFound = errors.New("profile not found")

	// ErrInvalidFormat means the profile file exists but is malformed or lacks http_base_url.
	ErrInvalidFormat = errors.New("invalid profile format")

	// ErrIOFailure covers every other filesystem failure.
	ErrIOFailure = errors.New("profile i/o failure")

	// ErrDefaultProfile is returned when deleting the default profile.
	ErrDefaultProfile = errors.New("the default profile cannot be deleted")

	// ErrInvalidID rejects ids that cannot be used as a file name.
	ErrInvalidID = errors.New("invalid profile id")
)

// ProfileError records the operation, the profile and the failure kind.
// errors.Is matches both Kind and the wrapped cause.
type ProfileError struct {
	Op   string
	ID   string
	Kind error
	Err  error
}

func (e *ProfileError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s %s: %v", e.Op, e.ID, e.Kind)
	}
	return fmt.Sprintf("%s %s: %v: %v", e.Op, e.ID, e.Kind, e.Err)
}

func (e *ProfileError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

func profileErr(op, id string, kind, err error) error {
	return &ProfileError{Op: op, ID: id, Kind: kind, Err: err}
}
