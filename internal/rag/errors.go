package rag

import (
	"context"
	"errors"
	"fmt"
	"time"
)

var (
	// ErrUpstreamTimeout is matched by errors from collaborators that ran past their deadline.
	ErrUpstreamTimeout = errors.New("upstream timeout")
	// ErrEmptyQuestion is returned for a blank question.
	ErrEmptyQuestion = errors.New("question is empty")
	// ErrInvalidReason is returned for a deletion reason the audit log would refuse.
	ErrInvalidReason = errors.New("invalid deletion reason")
)

// UpstreamError is a failure of a collaborator: search, llm, history, registry, index or audit.
type UpstreamError struct {
	Collaborator string
	Err          error
}

func (e *UpstreamError) Error() string {
	if e.Timeout() {
		return fmt.Sprintf("%s timed out: %v", e.Collaborator, e.Err)
	}
	return fmt.Sprintf("%s failed: %v", e.Collaborator, e.Err)
}

func (e *UpstreamError) Unwrap() error { return e.Err }

// Is matches ErrUpstreamTimeout when the cause is a deadline.
func (e *UpstreamError) Is(target error) bool {
	return target == ErrUpstreamTimeout && e.Timeout()
}

// Timeout reports whether the cause is a deadline.
func (e *UpstreamError) Timeout() bool {
	return errors.Is(e.Err, context.DeadlineExceeded)
}

// call runs fn under its own deadline and wraps any error as an UpstreamError.
func call[T any](ctx context.Context, timeout time.Duration, collaborator string, fn func(context.Context) (T, error)) (T, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	v, err := fn(ctx)
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded && !errors.Is(err, context.DeadlineExceeded) {
			err = fmt.Errorf("%w: %v", context.DeadlineExceeded, err)
		}
		return v, &UpstreamError{Collaborator: collaborator, Err: err}
	}
	return v, nil
}
