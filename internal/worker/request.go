package worker

import (
	"context"
	"errors"
	"time"

	"github.com/hephy-dd/pqc/pkg/domain"
)

// DefaultTimeout bounds Get calls that do not specify their own deadline.
const DefaultTimeout = 4 * time.Second

// ErrRequestTimeout is returned when a request was not serviced before the
// caller's deadline elapsed. The request stays queued; a later Get may still
// observe its result.
var ErrRequestTimeout = errors.New("request timeout")

// Request is a one-shot future for a unit of work executed on a worker
// goroutine. The worker completes it exactly once; any number of Get calls
// observe the same outcome afterwards.
type Request[T any] struct {
	ready   chan struct{}
	outcome domain.Outcome[T]
}

// NewRequest returns an unresolved request.
func NewRequest[T any]() *Request[T] {
	return &Request[T]{ready: make(chan struct{})}
}

// complete resolves the request. Called exactly once, by the worker.
func (r *Request[T]) complete(value T, err error) {
	r.outcome = domain.OutcomeFrom(value, err)
	close(r.ready)
}

// Ready reports whether the request has been serviced.
func (r *Request[T]) Ready() bool {
	select {
	case <-r.ready:
		return true
	default:
		return false
	}
}

// Get blocks until the request is serviced, the context is done, or
// DefaultTimeout elapses, whichever comes first. A request that already
// resolved returns its cached outcome immediately; any number of Get
// calls observe the same outcome.
func (r *Request[T]) Get(ctx context.Context) domain.Outcome[T] {
	return r.get(ctx, DefaultTimeout)
}

// GetTimeout is Get with an explicit deadline.
func (r *Request[T]) GetTimeout(ctx context.Context, timeout time.Duration) domain.Outcome[T] {
	return r.get(ctx, timeout)
}

func (r *Request[T]) get(ctx context.Context, timeout time.Duration) domain.Outcome[T] {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-r.ready:
		return r.outcome
	case <-ctx.Done():
		return domain.Failed[T](ctx.Err())
	case <-timer.C:
		return domain.Failed[T](ErrRequestTimeout)
	}
}
