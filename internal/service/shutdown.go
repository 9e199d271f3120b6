package service

import (
	"errors"
	"sync"
)

// ErrDraining is returned when a job is submitted after shutdown was armed.
var ErrDraining = errors.New("coordinator is draining")

// Shutdown is the process-wide drain latch. Once armed it never disarms;
// teardown starts at most once.
type Shutdown struct {
	mu          sync.Mutex
	armed       bool
	terminating bool
	done        chan struct{}
	closeOnce   sync.Once
}

// NewShutdown creates a disarmed latch.
func NewShutdown() *Shutdown {
	return &Shutdown{done: make(chan struct{})}
}

// Admit runs register unless the latch is armed, then arms it when
// terminateWhenDone is set. The check, the registration and the arming are
// atomic with respect to BeginTeardown.
func (s *Shutdown) Admit(terminateWhenDone bool, register func() error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.armed {
		return ErrDraining
	}
	if err := register(); err != nil {
		return err
	}
	if terminateWhenDone {
		s.armed = true
	}
	return nil
}

// BeginTeardown returns true exactly once: the first time it is called
// while armed and idle reports no active jobs.
func (s *Shutdown) BeginTeardown(idle func() bool) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.armed || s.terminating || !idle() {
		return false
	}
	s.terminating = true
	return true
}

// Finish signals that teardown is over and the coordinator may exit.
func (s *Shutdown) Finish() {
	s.closeOnce.Do(func() { close(s.done) })
}

// Done is closed by Finish.
func (s *Shutdown) Done() <-chan struct{} {
	return s.done
}

// Armed reports whether new jobs are being refused.
func (s *Shutdown) Armed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.armed
}

// Terminating reports whether teardown has started.
func (s *Shutdown) Terminating() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.terminating
}
