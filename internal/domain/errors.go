package domain

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrQuizNotInProgress is returned when a command requires an active session.
	ErrQuizNotInProgress = errors.New("quiz session is not in progress")
	// ErrQuestionNotInQuiz is returned when an answer references a question outside the session.
	ErrQuestionNotInQuiz = errors.New("question is not part of this quiz session")
	// ErrQuestionAlreadyAnswered is returned when a question receives a second answer.
	ErrQuestionAlreadyAnswered = errors.New("question already answered")
	// ErrActiveSessionExists is returned when an owner tries to start a second active session.
	ErrActiveSessionExists = errors.New("owner already has a session in progress")
	// ErrQuestionNotFound indicates a question ID unknown to the question bank.
	ErrQuestionNotFound = errors.New("question not found")
	// ErrEmptyHistory is returned when an aggregate is rehydrated from zero events.
	ErrEmptyHistory = errors.New("cannot rehydrate session from empty history")
)

// UnknownEventTypeError indicates a stored row whose event type is not part of
// the known event set. It is fatal to the whole read: a session must never be
// partially reconstructed around an unrecognized event.
type UnknownEventTypeError struct {
	SessionID string
	EventType string
}

func (e *UnknownEventTypeError) Error() string {
	return fmt.Sprintf("session %s: unknown event type %q", e.SessionID, e.EventType)
}

// InvalidPayloadError indicates a stored payload that does not match the schema
// of its event type. Like UnknownEventTypeError it aborts the entire read.
type InvalidPayloadError struct {
	SessionID string
	EventType EventType
	Fields    []string
	Err       error
}

func (e *InvalidPayloadError) Error() string {
	msg := fmt.Sprintf("session %s: invalid %s payload", e.SessionID, e.EventType)
	if len(e.Fields) > 0 {
		msg += ": " + strings.Join(e.Fields, ", ")
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *InvalidPayloadError) Unwrap() error { return e.Err }

// ConflictError signals an optimistic concurrency conflict: another writer
// already advanced the session to the targeted (version, sequence). It means
// "reload and retry", never a permanent failure.
type ConflictError struct {
	SessionID string
	Err       error
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("session %s: concurrent modification detected", e.SessionID)
}

func (e *ConflictError) Unwrap() error { return e.Err }

// IsConflict reports whether err is an optimistic concurrency conflict.
func IsConflict(err error) bool {
	var conflict *ConflictError
	return errors.As(err, &conflict)
}

// StorageError wraps any storage failure that is not a concurrency conflict,
// tagged with the operation that produced it.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage: %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }
