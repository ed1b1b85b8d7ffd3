package domain

import (
	"errors"
	"fmt"
	"runtime/debug"
)

var (
	// Common domain errors
	ErrNotFound          = errors.New("entity not found")
	ErrInvalidArgument   = errors.New("invalid argument")
	ErrInvalidInput      = errors.New("invalid input")
	ErrInvalidTransition = errors.New("invalid job state transition")
	ErrQueueEmpty        = errors.New("queue empty")
	ErrQueueFull         = errors.New("queue full")
	ErrJobLocked         = errors.New("job is locked by another worker")
	ErrReadDatabaseRow   = errors.New("failed to read database row")
)

// Kind is the closed set of failure categories surfaced by the research pipeline.
type Kind string

const (
	KindModel           Kind = "ModelError"
	KindKnowledgeSource Kind = "KnowledgeSourceError"
	KindRender          Kind = "RenderError"
	KindNotFound        Kind = "NotFoundError"
	KindInvalidInput    Kind = "InvalidInputError"
	KindStorage         Kind = "StorageError"
)

// Error tags an underlying failure with its Kind and the operation that produced it.
type Error struct {
	Kind Kind
	Op   string
	Err  error

	stack []byte // goroutine stack where the failure was first tagged
}

func newError(kind Kind, op string, err error) *Error {
	st := StackOf(err)
	if st == nil {
		st = debug.Stack()
	}
	return &Error{Kind: kind, Op: op, Err: err, stack: st}
}

func (e *Error) Error() string {
	if e.Op == "" {
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %s: %v", e.Kind, e.Op, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Is lets errors.Is(err, ErrNotFound) and errors.Is(err, ErrInvalidInput) match tagged errors.
func (e *Error) Is(target error) bool {
	switch e.Kind {
	case KindNotFound:
		return target == ErrNotFound
	case KindInvalidInput:
		return target == ErrInvalidInput
	}
	return false
}

func ModelError(op string, err error) error {
	return newError(KindModel, op, err)
}

func KnowledgeSourceError(op string, err error) error {
	return newError(KindKnowledgeSource, op, err)
}

func RenderError(op string, err error) error {
	return newError(KindRender, op, err)
}

func NotFoundError(op string, err error) error {
	if err == nil {
		err = ErrNotFound
	}
	return newError(KindNotFound, op, err)
}

func InvalidInputError(op string, err error) error {
	if err == nil {
		err = ErrInvalidInput
	}
	return newError(KindInvalidInput, op, err)
}

func StorageError(op string, err error) error {
	return newError(KindStorage, op, err)
}

// KindOf returns the Kind of a tagged error, or "" when err carries no tag.
func KindOf(err error) Kind {
	var de *Error
	if errors.As(err, &de) {
		return de.Kind
	}
	return ""
}

// StackOf returns the stack captured when err was first tagged, or nil.
func StackOf(err error) []byte {
	var de *Error
	for errors.As(err, &de) {
		if de.stack != nil {
			return de.stack
		}
		err = de.Err
	}
	return nil
}

// FormatError renders a human-readable one-line description for the error record.
func FormatError(err error) string {
	if err == nil {
		return ""
	}
	var de *Error
	if !errors.As(err, &de) {
		return fmt.Sprintf("Error: %v", err)
	}
	switch de.Kind {
	case KindModel:
		return fmt.Sprintf("ModelError: the language model call failed (%s): %v", de.Op, de.Err)
	case KindKnowledgeSource:
		return fmt.Sprintf("KnowledgeSourceError: %s: %v", de.Op, de.Err)
	case KindRender:
		return fmt.Sprintf("RenderError: the report could not be rendered (%s): %v", de.Op, de.Err)
	case KindNotFound:
		return fmt.Sprintf("NotFoundError: %s: %v", de.Op, de.Err)
	case KindInvalidInput:
		return fmt.Sprintf("InvalidInputError: %s: %v", de.Op, de.Err)
	case KindStorage:
		return fmt.Sprintf("StorageError: %s: %v", de.Op, de.Err)
	default:
		return fmt.Sprintf("Error: %v", de)
	}
}
