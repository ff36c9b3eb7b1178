package core

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrClockRegression  = errors.New("call timestamp precedes the last applied call")
	ErrMissingTimestamp = errors.New("call has no timestamp")
)

// ClockValidator enforces non-decreasing call timestamps. Calls carry their
// own time; the engine never reads the wall clock.
// Not thread-safe. Accessed under the engine write lock.
type ClockValidator struct {
	last        time.Time
	regressions int64
}

func NewClockValidator() *ClockValidator {
	return &ClockValidator{}
}

// Validate checks ts against the last applied timestamp. Equal timestamps
// are accepted: several calls may land in the same second.
func (cv *ClockValidator) Validate(ts time.Time) error {
	if ts.IsZero() {
		return ErrMissingTimestamp
	}
	if ts.Before(cv.last) {
		cv.regressions++
		return fmt.Errorf("%w: got %s, last %s",
			ErrClockRegression, ts.UTC().Format(time.RFC3339Nano), cv.last.UTC().Format(time.RFC3339Nano))
	}
	return nil
}

// Advance records ts as applied
func (cv *ClockValidator) Advance(ts time.Time) {
	if ts.After(cv.last) {
		cv.last = ts
	}
}

// Last returns the timestamp of the last applied call
func (cv *ClockValidator) Last() time.Time {
	return cv.last
}

// Restore sets the last applied timestamp (used during recovery)
func (cv *ClockValidator) Restore(ts time.Time) {
	cv.last = ts
}

// Regressions returns how many calls were rejected
func (cv *ClockValidator) Regressions() int64 {
	return cv.regressions
}
