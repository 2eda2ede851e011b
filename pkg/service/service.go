// Package service provides the managed, start-once lifecycle for long-running
// units of work inside the node.
//
// A Service hosts Routines: a work routine that runs until it is done or its
// cancel token fires, and a teardown routine that releases resources. The
// Service owns a token chained from whatever token its creator passed in, so
// cancelling any ancestor reaches it. Children started with RunChild are
// waited on during cleanup, which gives the tree a fan-in shutdown: a
// Service's CleanedUp channel closes only after its own teardown and every
// child's CleanedUp.
package service

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/cmatc13/p2pservice/pkg/cancel"
	"github.com/cmatc13/p2pservice/pkg/logging"
	"github.com/cmatc13/p2pservice/pkg/metrics"
)

// DefaultGracePeriod is how long Cancel waits for cleanup before returning.
const DefaultGracePeriod = 5 * time.Second

// Status represents the position of a service in its lifecycle.
type Status string

const (
	// StatusNotStarted indicates Run has not been called.
	StatusNotStarted Status = "NOT_STARTED"
	// StatusRunning indicates the work routine holds the run lock.
	StatusRunning Status = "RUNNING"
	// StatusCancelling indicates the token fired while the work routine is
	// still running.
	StatusCancelling Status = "CANCELLING"
	// StatusCleaningUp indicates teardown and the child fan-in are in progress.
	StatusCleaningUp Status = "CLEANING_UP"
	// StatusFinished indicates the service is cleaned up. It is terminal.
	StatusFinished Status = "FINISHED"
)

// Routines are the two entry points a concrete service supplies.
type Routines interface {
	// Run performs the service's job. The context is done when the service's
	// token fires; Run must then return, either nil or an error satisfying
	// errors.IsCancelled or wrapping context.Canceled. Run is never preempted,
	// so it has to poll or block on the context.
	Run(ctx context.Context) error

	// Cleanup releases the service's resources. It is invoked exactly once,
	// after Run returns, concurrently with the wait for children; it must not
	// assume children have finished their own teardown.
	Cleanup() error
}

// Service is a managed, start-once unit of long-running work.
type Service struct {
	name     string
	id       uuid.UUID
	routines Routines
	token    *cancel.Token

	// running is the run lock.
	running  atomic.Bool
	phase    atomic.Value // Status
	finished chan struct{}

	cleanedUp chan struct{}

	mu       sync.Mutex
	children []*Service
	closing  bool

	grace   time.Duration
	clock   clockwork.Clock
	logger  *logging.Logger
	metrics *metrics.Metrics
}

// Option configures a Service.
type Option func(*Service)

// WithName overrides the diagnostic name, which defaults to the routines'
// type name.
func WithName(name string) Option {
	return func(s *Service) { s.name = name }
}

// WithLogger sets the logger; fields identifying the service are added to it.
func WithLogger(logger *logging.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

// WithMetrics records lifecycle metrics into m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// WithGracePeriod sets how long Cancel waits for cleanup.
func WithGracePeriod(d time.Duration) Option {
	return func(s *Service) { s.grace = d }
}

// WithClock sets the clock used for the grace period and for Wait.
func WithClock(clock clockwork.Clock) Option {
	return func(s *Service) { s.clock = clock }
}

// New creates a Service hosting routines. When parent is non-nil the service's
// token is chained from it, so triggering parent cancels the service. Each
// Service gets its own token and child list.
func New(routines Routines, parent *cancel.Token, opts ...Option) *Service {
	s := &Service{
		name:      typeName(routines),
		id:        uuid.New(),
		routines:  routines,
		finished:  make(chan struct{}),
		cleanedUp: make(chan struct{}),
		children:  make([]*Service, 0),
		grace:     DefaultGracePeriod,
		clock:     clockwork.NewRealClock(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = logging.New(logging.DefaultConfig())
	}
	s.logger = s.logger.ForService(s.name, s.id.String())
	s.phase.Store(StatusNotStarted)

	base := cancel.New(s.name)
	if parent == nil {
		s.token = base
	} else {
		s.token = base.Chain(parent)
	}
	return s
}

func typeName(v interface{}) string {
	name := fmt.Sprintf("%T", v)
	name = strings.TrimLeft(name, "*")
	if i := strings.LastIndex(name, "."); i >= 0 {
		name = name[i+1:]
	}
	return name
}

// Name returns the diagnostic name.
func (s *Service) Name() string {
	return s.name
}

// ID returns the per-instance identifier used in logs.
func (s *Service) ID() uuid.UUID {
	return s.id
}

// CancelToken returns the service's token. Tokens of child services should be
// chained from it.
func (s *Service) CancelToken() *cancel.Token {
	return s.token
}

// Logger returns the service's logger.
func (s *Service) Logger() *logging.Logger {
	return s.logger
}

// IsRunning reports whether the run lock is held.
func (s *Service) IsRunning() bool {
	return s.running.Load()
}

// CleanedUp returns a channel closed once the service and all of its children
// have finished cleanup.
func (s *Service) CleanedUp() <-chan struct{} {
	return s.cleanedUp
}

// Finished returns a channel closed once Run has fully unwound, completion
// callback included.
func (s *Service) Finished() <-chan struct{} {
	return s.finished
}

// Status returns the service's lifecycle position.
func (s *Service) Status() Status {
	status := s.phase.Load().(Status)
	if status == StatusRunning && s.token.Triggered() {
		return StatusCancelling
	}
	return status
}

// Children returns a snapshot of the registered children.
func (s *Service) Children() []*Service {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*Service, len(s.children))
	copy(out, s.children)
	return out
}

func (s *Service) String() string {
	return s.name
}
