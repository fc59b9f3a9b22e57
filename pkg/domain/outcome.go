package domain

import "errors"

// OutcomeStatus is the discriminator of an Outcome.
type OutcomeStatus int

const (
	// OutcomeOk carries a value.
	OutcomeOk OutcomeStatus = iota
	// OutcomeStopped marks a cooperative stop; not a failure.
	OutcomeStopped
	// OutcomeFailed carries an error.
	OutcomeFailed
)

// Outcome is the closed result variant handed across the worker boundary.
// Workers never let errors propagate between goroutines implicitly; a
// request either produced a value, was stopped cooperatively, or failed.
type Outcome[T any] struct {
	Status OutcomeStatus
	Value  T
	Err    error
}

// Ok returns a successful outcome.
func Ok[T any](value T) Outcome[T] {
	return Outcome[T]{Status: OutcomeOk, Value: value}
}

// Stopped returns a cooperative-stop outcome.
func Stopped[T any]() Outcome[T] {
	return Outcome[T]{Status: OutcomeStopped}
}

// Failed returns a failure outcome.
func Failed[T any](err error) Outcome[T] {
	return Outcome[T]{Status: OutcomeFailed, Err: err}
}

// OutcomeFrom folds a (value, error) pair into an Outcome, classifying
// ErrStopRequested as a stop rather than a failure.
func OutcomeFrom[T any](value T, err error) Outcome[T] {
	switch {
	case err == nil:
		return Ok(value)
	case errors.Is(err, ErrStopRequested):
		return Stopped[T]()
	default:
		return Failed[T](err)
	}
}

// Unpack returns the carried value and error. A stopped outcome unpacks to
// ErrStopRequested so callers that only care about success can treat it
// uniformly.
func (o Outcome[T]) Unpack() (T, error) {
	switch o.Status {
	case OutcomeStopped:
		var zero T
		return zero, ErrStopRequested
	case OutcomeFailed:
		var zero T
		return zero, o.Err
	}
	return o.Value, nil
}
