package cancel

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cmatc13/p2pservice/pkg/errors"
)

func after(d time.Duration, v string) Operation[string] {
	return func(ctx context.Context) (string, error) {
		select {
		case <-time.After(d):
			return v, nil
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
}

func blocking(released chan<- struct{}) Operation[string] {
	return func(ctx context.Context) (string, error) {
		<-ctx.Done()
		close(released)
		return "", ctx.Err()
	}
}

func TestWaitFirst(t *testing.T) {
	t.Run("first operation wins", func(t *testing.T) {
		token := New("wait")
		loser := make(chan struct{})

		got, err := WaitFirst(token, time.Second, after(10*time.Millisecond, "fast"), blocking(loser))

		require.NoError(t, err)
		assert.Equal(t, "fast", got)
		assert.False(t, token.Triggered())

		select {
		case <-loser:
		case <-time.After(time.Second):
			t.Fatal("losing operation was not abandoned")
		}
	})

	t.Run("operation error is its result", func(t *testing.T) {
		token := New("wait")
		boom := errors.New("dial failed")

		_, err := WaitFirst(token, 0, func(ctx context.Context) (int, error) { return 0, boom })

		assert.ErrorIs(t, err, boom)
	})

	t.Run("token fires first", func(t *testing.T) {
		token := New("wait")
		loser := make(chan struct{})
		go func() {
			time.Sleep(10 * time.Millisecond)
			token.Trigger()
		}()

		_, err := WaitFirst(token, time.Second, blocking(loser), after(time.Minute, "slow"))

		assert.True(t, errors.IsCancelled(err))
		assert.False(t, errors.IsTimeout(err))
		<-loser
	})

	t.Run("deadline first", func(t *testing.T) {
		token := New("wait")
		loser := make(chan struct{})

		start := time.Now()
		_, err := WaitFirst(token, 20*time.Millisecond, blocking(loser))

		assert.True(t, errors.IsTimeout(err))
		assert.False(t, errors.IsCancelled(err))
		assert.GreaterOrEqual(t, time.Since(start), 20*time.Millisecond)
		assert.False(t, token.Triggered())
		<-loser
	})

	t.Run("no operations blocks until the token fires", func(t *testing.T) {
		token := New("wait")
		done := make(chan error, 1)
		go func() {
			_, err := WaitFirst[struct{}](token, 0)
			done <- err
		}()

		select {
		case <-done:
			t.Fatal("returned before the token fired")
		case <-time.After(20 * time.Millisecond):
		}

		token.Trigger()
		select {
		case err := <-done:
			assert.True(t, errors.IsCancelled(err))
		case <-time.After(time.Second):
			t.Fatal("did not return after the token fired")
		}
	})

	t.Run("no operations with timeout", func(t *testing.T) {
		_, err := WaitFirst[struct{}](New("wait"), 10*time.Millisecond)
		assert.True(t, errors.IsTimeout(err))
	})

	t.Run("already triggered token runs nothing", func(t *testing.T) {
		token := New("wait")
		token.Trigger()
		var ran atomic.Bool

		_, err := WaitFirst(token, 0, func(ctx context.Context) (int, error) {
			ran.Store(true)
			return 1, nil
		})

		assert.True(t, errors.IsCancelled(err))
		assert.False(t, ran.Load())
	})

	t.Run("operation giving up on the token reports cancellation", func(t *testing.T) {
		token := New("wait")
		go token.Trigger()

		_, err := WaitFirst(token, 0, func(ctx context.Context) (int, error) {
			<-ctx.Done()
			return 0, ctx.Err()
		})

		assert.True(t, errors.IsCancelled(err))
	})

	t.Run("deadline is measured on the given clock", func(t *testing.T) {
		clock := clockwork.NewFakeClock()
		token := New("wait")
		go func() {
			time.Sleep(30 * time.Millisecond)
			token.Trigger()
		}()

		// One nanosecond of fake time never passes on its own.
		_, err := WaitFirstWithClock[struct{}](clock, token, time.Nanosecond)

		assert.True(t, errors.IsCancelled(err))
	})

	t.Run("exactly one outcome", func(t *testing.T) {
		for i := 0; i < 50; i++ {
			token := New("wait")
			go token.Trigger()

			got, err := WaitFirst(token, time.Millisecond, after(time.Millisecond, "op"))

			outcomes := 0
			if err == nil {
				assert.Equal(t, "op", got)
				outcomes++
			}
			if errors.IsCancelled(err) {
				outcomes++
			}
			if errors.IsTimeout(err) {
				outcomes++
			}
			assert.Equal(t, 1, outcomes, "err=%v", err)
		}
	})
}

func TestWait(t *testing.T) {
	t.Run("result", func(t *testing.T) {
		v, err := Wait(New("wait"), time.Second, after(time.Millisecond, "pong"))
		require.NoError(t, err)
		assert.Equal(t, "pong", v)
	})

	t.Run("deadline names the operation", func(t *testing.T) {
		loser := make(chan struct{})
		_, err := Wait(New("wait"), 10*time.Millisecond, blocking(loser))
		<-loser

		require.True(t, errors.IsTimeout(err))
		var domainErr *errors.Error
		require.True(t, errors.As(err, &domainErr))
		assert.Equal(t, errors.OpWait, domainErr.Operation)
		assert.Equal(t, errors.CancelErrDeadline, domainErr.Code)
	})
}

func TestSleep(t *testing.T) {
	t.Run("elapses", func(t *testing.T) {
		assert.NoError(t, Sleep(clockwork.NewRealClock(), New("sleep"), 5*time.Millisecond))
	})

	t.Run("interrupted", func(t *testing.T) {
		token := New("sleep")
		go func() {
			time.Sleep(10 * time.Millisecond)
			token.Trigger()
		}()
		err := Sleep(clockwork.NewRealClock(), token, time.Minute)
		assert.True(t, errors.IsCancelled(err))
	})

	t.Run("zero duration", func(t *testing.T) {
		token := New("sleep")
		assert.NoError(t, Sleep(clockwork.NewRealClock(), token, 0))
		token.Trigger()
		assert.True(t, errors.IsCancelled(Sleep(clockwork.NewRealClock(), token, 0)))
	})
}
