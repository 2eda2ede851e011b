package cancel

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cmatc13/p2pservice/pkg/errors"
)

func tokenName(t *testing.T, err error) interface{} {
	t.Helper()
	var domainErr *errors.Error
	require.True(t, errors.As(err, &domainErr), "not a domain error: %v", err)
	return domainErr.Field(errors.TokenField)
}

func TestToken(t *testing.T) {
	t.Run("starts untriggered", func(t *testing.T) {
		token := New("peer")

		assert.False(t, token.Triggered())
		assert.NoError(t, token.Err())
		assert.NoError(t, token.Context().Err())
		assert.Equal(t, "peer", token.Name())
		assert.Equal(t, "<CancelToken: peer>", token.String())

		select {
		case <-token.Done():
			t.Fatal("done closed before trigger")
		default:
		}
	})

	t.Run("trigger is idempotent and monotonic", func(t *testing.T) {
		token := New("peer")
		token.Trigger()
		token.Trigger()

		assert.True(t, token.Triggered())
		assert.True(t, errors.IsCancelled(token.Err()))
		assert.Equal(t, "peer", tokenName(t, token.Err()))
		assert.ErrorIs(t, token.Context().Err(), context.Canceled)
		assert.Equal(t, token.Err(), context.Cause(token.Context()))

		done := make(chan struct{})
		go func() {
			token.Wait()
			close(done)
		}()
		select {
		case <-done:
		case <-time.After(time.Second):
			t.Fatal("Wait did not return for a triggered token")
		}
	})

	t.Run("wait blocks until trigger", func(t *testing.T) {
		token := New("peer")
		returned := make(chan struct{})
		go func() {
			token.Wait()
			close(returned)
		}()

		select {
		case <-returned:
			t.Fatal("Wait returned before trigger")
		case <-time.After(20 * time.Millisecond):
		}

		token.Trigger()
		select {
		case <-returned:
		case <-time.After(time.Second):
			t.Fatal("Wait did not return after trigger")
		}
	})
}

func TestChain(t *testing.T) {
	t.Run("first link propagates", func(t *testing.T) {
		a, b := New("a"), New("b")
		c := a.Chain(b)
		assert.Equal(t, "a+b", c.Name())

		a.Trigger()

		assert.True(t, c.Triggered())
		assert.False(t, b.Triggered())
		assert.Equal(t, "a", tokenName(t, c.Err()))
		<-c.Done()
	})

	t.Run("second link propagates", func(t *testing.T) {
		a, b := New("a"), New("b")
		c := a.Chain(b)

		b.Trigger()

		assert.True(t, c.Triggered())
		assert.False(t, a.Triggered())
		assert.Equal(t, "b", tokenName(t, c.Err()))
		select {
		case <-c.Done():
		case <-time.After(time.Second):
			t.Fatal("chained Done did not close")
		}
	})

	t.Run("triggering the chain leaves its inputs alone", func(t *testing.T) {
		a, b := New("a"), New("b")
		c := a.Chain(b)

		c.Trigger()

		assert.True(t, c.Triggered())
		assert.False(t, a.Triggered())
		assert.False(t, b.Triggered())
		assert.Equal(t, "a+b", tokenName(t, c.Err()))
	})

	t.Run("or law", func(t *testing.T) {
		for _, tc := range []struct{ a, b bool }{{false, false}, {true, false}, {false, true}, {true, true}} {
			a, b := New("a"), New("b")
			if tc.a {
				a.Trigger()
			}
			if tc.b {
				b.Trigger()
			}
			c := a.Chain(b)
			assert.Equal(t, tc.a || tc.b, c.Triggered(), "a=%v b=%v", tc.a, tc.b)
		}
	})

	t.Run("already triggered other closes done immediately", func(t *testing.T) {
		a, b := New("a"), New("b")
		b.Trigger()
		c := a.Chain(b)

		select {
		case <-c.Done():
		default:
			t.Fatal("chain of a triggered token is not done")
		}
	})

	t.Run("depth n", func(t *testing.T) {
		root := New("root")
		leaf := root
		for i := 0; i < 32; i++ {
			leaf = New(fmt.Sprintf("n%d", i)).Chain(leaf)
		}
		assert.False(t, leaf.Triggered())

		root.Trigger()

		assert.True(t, leaf.Triggered())
		assert.Equal(t, "root", tokenName(t, leaf.Err()))
		select {
		case <-leaf.Done():
		case <-time.After(time.Second):
			t.Fatal("leaf Done did not close")
		}
	})

	t.Run("siblings are independent", func(t *testing.T) {
		parent := New("parent")
		left := New("left").Chain(parent)
		right := New("right").Chain(parent)

		left.Trigger()
		assert.False(t, right.Triggered())
		assert.False(t, parent.Triggered())

		parent.Trigger()
		assert.True(t, right.Triggered())
	})

	t.Run("derives from", func(t *testing.T) {
		root := New("node")
		admin := New("admin").Chain(root)
		leaf := New("conn").Chain(admin)
		other := New("other")

		assert.True(t, leaf.DerivesFrom(leaf))
		assert.True(t, leaf.DerivesFrom(admin))
		assert.True(t, leaf.DerivesFrom(root))
		assert.False(t, root.DerivesFrom(leaf))
		assert.False(t, leaf.DerivesFrom(other))
	})
}
