package service

import (
	"context"

	"github.com/cmatc13/p2pservice/pkg/cancel"
)

// Null is a Routines implementation that does nothing.
type Null struct{}

// Run returns immediately.
func (Null) Run(context.Context) error { return nil }

// Cleanup has nothing to release.
func (Null) Cleanup() error { return nil }

// NewNull returns a service whose work and teardown do nothing, for use as a
// composition root and in tests.
func NewNull(parent *cancel.Token, opts ...Option) *Service {
	return New(Null{}, parent, append([]Option{WithName("NullService")}, opts...)...)
}
