package service

import (
	"context"
	"runtime/debug"

	"golang.org/x/sync/errgroup"

	"github.com/cmatc13/p2pservice/pkg/errors"
	"github.com/cmatc13/p2pservice/pkg/metrics"
)

// Run executes the work routine and blocks until the service has been
// cleaned up. It returns a contract violation, without running anything, if
// the service is already running or its token was triggered before the call;
// otherwise it returns nil.
//
// However the work routine ends (returning, observing cancellation, failing,
// or panicking), Run triggers the service's token, releases the run lock,
// runs cleanup and finally calls onFinished, when given, with the service.
// Failures are logged and never reach the caller.
func (s *Service) Run(onFinished func(*Service)) error {
	if err := s.acquire(); err != nil {
		return err
	}
	s.execute(onFinished)
	return nil
}

// acquire takes the run lock. It is split from execute so RunChild can reject
// a child synchronously, before registering it.
func (s *Service) acquire() error {
	if s.token.Triggered() {
		return errors.NewContractViolation(errors.ServiceErrAlreadyCancelled, errors.OpRun, s.name,
			"cannot restart a service that has already been cancelled")
	}
	if !s.running.CompareAndSwap(false, true) {
		return errors.NewContractViolation(errors.ServiceErrAlreadyRunning, errors.OpRun, s.name,
			"cannot start the service while it's already running")
	}
	// The token may have fired between the check and the swap.
	if s.token.Triggered() {
		s.running.Store(false)
		return errors.NewContractViolation(errors.ServiceErrAlreadyCancelled, errors.OpRun, s.name,
			"cannot restart a service that has already been cancelled")
	}
	s.phase.Store(StatusRunning)
	s.metrics.RecordStart(s.name)
	return nil
}

func (s *Service) execute(onFinished func(*Service)) {
	defer close(s.finished)

	s.logger.Debug("Service started")
	err := s.work()
	cancelled := s.token.Triggered()

	// Trigger before releasing the run lock: once the lock is free a second
	// Run must already see the token fired.
	s.token.Trigger()
	s.running.Store(false)
	s.report(err, cancelled)

	s.cleanup()

	if onFinished != nil {
		onFinished(s)
	}
}

func (s *Service) work() (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.NewPanicError(s.name, errors.OpRun, r, string(debug.Stack()))
		}
	}()
	return s.routines.Run(s.token.Context())
}

// report logs how the work routine ended. Cancellation is the expected way to
// stop and is logged at info; anything else is a fault. A bare context.Canceled
// only counts as cancellation when the token had fired by the time work returned.
func (s *Service) report(err error, cancelled bool) {
	switch {
	case err == nil:
		s.logger.Debug("Service finished")
		s.metrics.RecordFinish(s.name, metrics.OutcomeReturned)
	case errors.IsCancelled(err) || (cancelled && errors.Is(err, context.Canceled)):
		s.logger.Info("Service finished", "reason", err.Error())
		s.metrics.RecordFinish(s.name, metrics.OutcomeCancelled)
	default:
		s.logFault("Unexpected error in service, exiting", err)
		s.metrics.RecordFinish(s.name, metrics.OutcomeFault)
	}
}

func (s *Service) logFault(msg string, err error) {
	s.logger.WithError(err).Error(msg)
}

// cleanup runs teardown concurrently with the wait for every registered
// child, then closes CleanedUp. Called exactly once, from execute.
func (s *Service) cleanup() {
	s.phase.Store(StatusCleaningUp)
	start := s.clock.Now()

	s.mu.Lock()
	s.closing = true
	children := make([]*Service, len(s.children))
	copy(children, s.children)
	s.mu.Unlock()

	var g errgroup.Group
	for _, child := range children {
		child := child
		g.Go(func() error {
			<-child.CleanedUp()
			return nil
		})
	}
	g.Go(s.teardown)

	if err := g.Wait(); err != nil {
		s.logFault("Service cleanup failed", err)
	}

	s.metrics.RecordCleanup(s.name, s.clock.Since(start))
	s.phase.Store(StatusFinished)
	close(s.cleanedUp)
	s.logger.Debug("Service cleaned up", "children", len(children))
}

func (s *Service) teardown() (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.NewPanicError(s.name, errors.OpCleanup, r, string(debug.Stack()))
		}
	}()
	return s.routines.Cleanup()
}

// RunChild registers child as a dependent of s and starts it in the
// background. It returns once the child holds its run lock; cleanup of s
// later waits for the child's CleanedUp. The child's token should have been
// chained from s's token when the child was built, making cancellation of s
// reach it.
//
// Registering nil, s itself, the same child twice, a child that cannot start,
// or any child once s has begun cleanup is a contract violation, and the
// child is not registered.
func (s *Service) RunChild(child *Service) error {
	if child == nil || child == s {
		return errors.NewContractViolation(errors.ServiceErrInvalidChild, errors.OpRunChild, s.name,
			"a service cannot be its own or a nil child")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closing {
		return errors.NewContractViolation(errors.ServiceErrCleaningUp, errors.OpRunChild, s.name,
			"cannot register "+child.name+" after cleanup began")
	}
	for _, registered := range s.children {
		if registered == child {
			return errors.NewContractViolation(errors.ServiceErrDuplicateChild, errors.OpRunChild, s.name,
				child.name+" is already registered")
		}
	}
	if err := child.acquire(); err != nil {
		return errors.WrapWithOperation(err, errors.OpRunChild)
	}

	s.children = append(s.children, child)
	go child.execute(nil)
	return nil
}

// Cancel triggers the service's token and waits up to the grace period for
// CleanedUp. If the token was already triggered it only logs. Cancelling a
// service that was never started is a contract violation.
//
// When the grace period runs out first, Cancel logs and returns an error
// satisfying errors.IsTimeout; the service keeps finishing in the background.
// If ctx is done first its error is returned.
func (s *Service) Cancel(ctx context.Context) error {
	if s.token.Triggered() {
		s.logger.Warn("Tried to cancel service, but it was already cancelled")
		return nil
	}
	if !s.IsRunning() {
		return errors.NewContractViolation(errors.ServiceErrNotStarted, errors.OpCancel, s.name,
			"cannot cancel a service that has not been started")
	}

	s.logger.Debug("Cancelling service")
	start := s.clock.Now()
	s.token.Trigger()

	timer := s.clock.NewTimer(s.grace)
	defer timer.Stop()

	select {
	case <-s.cleanedUp:
		s.metrics.RecordCancel(s.name, s.clock.Since(start), false)
		s.logger.Debug("Service finished cleanly")
		return nil
	case <-timer.Chan():
		s.metrics.RecordCancel(s.name, s.clock.Since(start), true)
		s.logger.Info("Timed out waiting for service to finish its cleanup, exiting anyway", "grace", s.grace.String())
		return errors.NewGraceExceededError(s.name, s.grace)
	case <-ctx.Done():
		return ctx.Err()
	}
}
