package application

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrNilDatabase is returned when the pipeline has no database handle.
	ErrNilDatabase = errors.New("pipeline: nil database")
	// ErrNilStore is returned when the pipeline has no staging store.
	ErrNilStore = errors.New("pipeline: nil staging store")
	// ErrNilUnitDirectory is returned when the pipeline has no unit directory.
	ErrNilUnitDirectory = errors.New("pipeline: nil unit directory")
	// ErrNilLocker is returned when the pipeline has no period locker.
	ErrNilLocker = errors.New("pipeline: nil period locker")
	// ErrMissingStage is returned when one of the external stages is not wired.
	ErrMissingStage = errors.New("pipeline: missing stage")
	// ErrInvalidUnitPlaceholder is returned when the unknown-unit name pattern
	// does not take exactly one integer.
	ErrInvalidUnitPlaceholder = errors.New("pipeline: invalid unit placeholder")
)

// PhaseError reports the phase at which a run failed and was rolled back.
type PhaseError struct {
	Phase string
	Err   error
}

func (e *PhaseError) Error() string {
	return fmt.Sprintf("pipeline: %s failed: %v", e.Phase, e.Err)
}

func (e *PhaseError) Unwrap() error { return e.Err }

// publicMessage returns the caller-safe description of err.
func publicMessage(err error) string {
	var pub PublicError
	switch {
	case errors.As(err, &pub) && pub.PublicMessage() != "":
		return pub.PublicMessage()
	case errors.Is(err, context.Canceled):
		return "request cancelled"
	case errors.Is(err, context.DeadlineExceeded):
		return "timed out"
	}
	return "internal error"
}
