package cancel

import (
	"context"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/cmatc13/p2pservice/pkg/errors"
)

// Operation is one racer in WaitFirst. The context it receives is done when
// the token triggers or as soon as the race is decided, whichever comes first;
// losing operations are expected to return promptly once it is.
type Operation[T any] func(ctx context.Context) (T, error)

type outcome[T any] struct {
	value T
	err   error
}

var realClock = clockwork.NewRealClock()

// WaitFirst races ops against token and, when timeout is positive, a deadline.
// See WaitFirstWithClock.
func WaitFirst[T any](token *Token, timeout time.Duration, ops ...Operation[T]) (T, error) {
	return WaitFirstWithClock(realClock, token, timeout, ops...)
}

// WaitFirstWithClock races ops against token and an optional deadline measured
// on clock. Exactly one outcome is produced:
//
//   - the first operation to finish: its value and error are returned;
//   - the token fires first: a cancelled error (errors.ErrCancelled);
//   - the deadline elapses first: a timeout error (errors.ErrTimeout).
//
// A timeout of zero or less means no deadline. With no operations the call
// only waits for the token or the deadline. Every operation still pending when
// the call returns has its context cancelled and the deadline timer is
// stopped; nothing is left racing on behalf of the caller.
func WaitFirstWithClock[T any](clock clockwork.Clock, token *Token, timeout time.Duration, ops ...Operation[T]) (T, error) {
	var zero T
	if token.Triggered() {
		return zero, token.Err()
	}

	ctx, abandon := context.WithCancel(token.Context())
	defer abandon()

	// Buffered so losers can deliver and exit after we stop listening.
	results := make(chan outcome[T], len(ops))
	for _, op := range ops {
		go func(op Operation[T]) {
			value, err := op(ctx)
			results <- outcome[T]{value: value, err: err}
		}(op)
	}

	var deadline <-chan time.Time
	if timeout > 0 {
		timer := clock.NewTimer(timeout)
		defer timer.Stop()
		deadline = timer.Chan()
	}

	select {
	case res := <-results:
		if res.err != nil && errors.Is(res.err, context.Canceled) && token.Triggered() {
			// The operation only gave up because the token fired.
			return zero, token.Err()
		}
		return res.value, res.err
	case <-token.Done():
		return zero, token.Err()
	case <-deadline:
		return zero, errors.NewDeadlineError(token.Name(), timeout)
	}
}

// Wait races a single operation. See WaitFirst.
func Wait[T any](token *Token, timeout time.Duration, op Operation[T]) (T, error) {
	v, err := WaitFirst(token, timeout, op)
	if errors.IsTimeout(err) {
		err = errors.WrapWithOperation(err, errors.OpWait)
	}
	return v, err
}

// Sleep blocks for d on clock or until token triggers. It returns nil once d
// has elapsed and the token's cancelled error otherwise.
func Sleep(clock clockwork.Clock, token *Token, d time.Duration) error {
	if d <= 0 {
		return token.Err()
	}
	_, err := WaitFirstWithClock[struct{}](clock, token, d)
	if errors.IsTimeout(err) {
		return nil
	}
	return err
}
