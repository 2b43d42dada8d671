package billing

import "errors"

var (
	// ErrInvalidPeriod is returned when a period cannot be parsed or is zero.
	ErrInvalidPeriod = errors.New("billing: invalid period")
	// ErrInvalidSubmission is returned when a reading submission fails validation.
	ErrInvalidSubmission = errors.New("billing: invalid submission")
	// ErrNoReadings is returned when a submission carries no unit readings.
	ErrNoReadings = errors.New("billing: no readings")
	// ErrInvalidUnitID is returned when a unit id is not positive.
	ErrInvalidUnitID = errors.New("billing: invalid unit id")
)
