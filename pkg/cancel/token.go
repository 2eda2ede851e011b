// Package cancel implements cooperative cancellation tokens and the
// wait-with-cancellation primitive the service framework is built on.
//
// A Token is a one-way stop signal. Tokens compose with Chain: the chained
// token reports triggered as soon as it, or any token it was chained from, is
// triggered. Nothing is ever preempted; work observes the token through Done,
// Wait, Context or WaitFirst and stops on its own.
package cancel

import (
	"context"

	"github.com/cmatc13/p2pservice/pkg/errors"
)

// Token is a cooperative cancellation signal with a monotonic triggered bit.
// The zero value is not usable; create tokens with New or Chain.
type Token struct {
	name   string
	ctx    context.Context
	cancel context.CancelCauseFunc
	// chain holds the tokens this one was chained from. They are borrowed;
	// their lifetime is independent of t.
	chain []*Token
}

// New returns a fresh, untriggered, unlinked token.
func New(name string) *Token {
	ctx, cancel := context.WithCancelCause(context.Background())
	return &Token{name: name, ctx: ctx, cancel: cancel}
}

// Chain returns a new token that is triggered when t, other, or the new token
// itself is triggered. Neither t nor other is modified, and triggering the
// returned token does not reach back into either of them.
func (t *Token) Chain(other *Token) *Token {
	ctx, cancel := context.WithCancelCause(t.ctx)
	chained := &Token{
		name:   t.name + "+" + other.name,
		ctx:    ctx,
		cancel: cancel,
		chain:  []*Token{t, other},
	}

	if other.Triggered() {
		cancel(other.Err())
		return chained
	}
	stop := context.AfterFunc(other.ctx, func() {
		cancel(context.Cause(other.ctx))
	})
	// Drop the registration on other once the chain is done either way.
	context.AfterFunc(ctx, func() { stop() })

	return chained
}

// Trigger sets the token's own bit. Calling it more than once is harmless; the
// first trigger observed by a token decides its Err.
func (t *Token) Trigger() {
	t.cancel(errors.NewCancelledError(t.name))
}

// Triggered reports whether t or any token it was chained from has fired.
// The answer is exact at the time of the call; Done may close a moment later
// for triggers that arrive through the second link of a chain.
func (t *Token) Triggered() bool {
	if t.ctx.Err() != nil {
		return true
	}
	for _, link := range t.chain {
		if link.Triggered() {
			return true
		}
	}
	return false
}

// DerivesFrom reports whether triggering other reaches t, either because t is
// other or because t was chained from it at any depth.
func (t *Token) DerivesFrom(other *Token) bool {
	if t == other {
		return true
	}
	for _, link := range t.chain {
		if link.DerivesFrom(other) {
			return true
		}
	}
	return false
}

// Done returns a channel that is closed once Triggered becomes true.
func (t *Token) Done() <-chan struct{} {
	return t.ctx.Done()
}

// Wait blocks until the token is triggered.
func (t *Token) Wait() {
	<-t.ctx.Done()
}

// Err returns nil while the token is untriggered. Afterwards it returns a
// cancelled error naming the token whose trigger reached t first.
func (t *Token) Err() error {
	if t.ctx.Err() != nil {
		return context.Cause(t.ctx)
	}
	for _, link := range t.chain {
		if err := link.Err(); err != nil {
			return err
		}
	}
	return nil
}

// Context returns a context that is cancelled when the token triggers, with
// the token's Err as its cause.
func (t *Token) Context() context.Context {
	return t.ctx
}

// Name returns the diagnostic name of the token.
func (t *Token) Name() string {
	return t.name
}

func (t *Token) String() string {
	return "<CancelToken: " + t.name + ">"
}
