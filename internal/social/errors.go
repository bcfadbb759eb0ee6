package social

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidInput indicates missing or malformed arguments.
	ErrInvalidInput = errors.New("invalid input")
	// ErrNotFound indicates a user or friend request that does not exist.
	ErrNotFound = errors.New("not found")
	// ErrConflict indicates an operation that contradicts the current relationship state.
	ErrConflict = errors.New("conflict")
)

// ConflictReason qualifies an ErrConflict.
type ConflictReason string

const (
	ConflictAlreadyFriends   ConflictReason = "already friends"
	ConflictDuplicateRequest ConflictReason = "duplicate request"
	ConflictNotFriends       ConflictReason = "not friends"
)

// ConflictError reports why a relationship change was refused. It matches ErrConflict.
type ConflictError struct {
	Reason ConflictReason
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("conflict: %s", e.Reason)
}

// Is makes errors.Is(err, ErrConflict) hold.
func (e *ConflictError) Is(target error) bool {
	return target == ErrConflict
}

// Resource names the kind of record a NotFoundError refers to.
type Resource string

const (
	ResourceUser    Resource = "user"
	ResourceFriend  Resource = "friend"
	ResourceRequest Resource = "request"
)

// NotFoundError reports which record was missing. It matches ErrNotFound.
type NotFoundError struct {
	Resource Resource
	ID       string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %q not found", e.Resource, e.ID)
}

// Is makes errors.Is(err, ErrNotFound) hold.
func (e *NotFoundError) Is(target error) bool {
	return target == ErrNotFound
}

func conflict(reason ConflictReason) error {
	return &ConflictError{Reason: reason}
}

func notFound(resource Resource, id string) error {
	return &NotFoundError{Resource: resource, ID: id}
}

func invalidInput(msg string) error {
	return fmt.Errorf("%w: %s", ErrInvalidInput, msg)
}

// ConflictReasonOf extracts the reason of a conflict error.
func ConflictReasonOf(err error) (ConflictReason, bool) {
	var conflictErr *ConflictError
	if errors.As(err, &conflictErr) {
		return conflictErr.Reason, true
	}
	return "", false
}

// MissingResource extracts the resource of a not-found error.
func MissingResource(err error) (Resource, bool) {
	var notFoundErr *NotFoundError
	if errors.As(err, &notFoundErr) {
		return notFoundErr.Resource, true
	}
	return "", false
}
