package service

import (
	"time"

	"github.com/cmatc13/p2pservice/pkg/cancel"
)

// WaitFirst races ops against s's token, the optional extra token and the
// optional timeout, measured on the service's clock. Triggering either token
// cancels the wait. See cancel.WaitFirstWithClock for the outcomes.
func WaitFirst[T any](s *Service, token *cancel.Token, timeout time.Duration, ops ...cancel.Operation[T]) (T, error) {
	chain := s.token
	if token != nil {
		chain = token.Chain(s.token)
		// Release the temporary chain's registrations on both inputs.
		defer chain.Trigger()
	}
	return cancel.WaitFirstWithClock(s.clock, chain, timeout, ops...)
}

// Wait races a single operation. See WaitFirst.
func Wait[T any](s *Service, token *cancel.Token, timeout time.Duration, op cancel.Operation[T]) (T, error) {
	return WaitFirst(s, token, timeout, op)
}

// Sleep pauses for d unless the service is cancelled first, in which case the
// cancelled error is returned.
func Sleep(s *Service, d time.Duration) error {
	return cancel.Sleep(s.clock, s.token, d)
}
