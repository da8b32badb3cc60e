package viewmodel

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

// State is the lifecycle step of a Subscription.
type State int

// Subscription states. Delivered, Failed and Canceled are terminal.
const (
	Idle State = iota
	Pending
	Delivered
	Failed
	Canceled
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Pending:
		return "pending"
	case Delivered:
		return "delivered"
	case Failed:
		return "failed"
	case Canceled:
		return "canceled"
	}
	return "unknown"
}

// Terminal reports whether no further transition can happen from s.
func (s State) Terminal() bool {
	return s == Delivered || s == Failed || s == Canceled
}

// Subscription tracks one fetch from its start until its result is applied, or dropped.
type Subscription struct {
	id string

	mu      sync.Mutex
	state   State
	claimed bool
	cancel  context.CancelFunc
	done    chan struct{}
}

func newSubscription() *Subscription {
	return &Subscription{
		id:   uuid.NewString(),
		done: make(chan struct{}),
	}
}

// ID identifies the subscription in logs.
func (s *Subscription) ID() string {
	return s.id
}

// State returns the current state.
func (s *Subscription) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Done is closed once the subscription reaches a terminal state.
func (s *Subscription) Done() <-chan struct{} {
	return s.done
}

// Cancel stops the fetch and guarantees its result will not be applied, unless applying it already began.
// Canceling a terminated subscription does nothing.
func (s *Subscription) Cancel() {
	s.terminate(Canceled, false)
}

// start moves an idle subscription to pending. cancel releases its fetch once terminated.
func (s *Subscription) start(cancel context.CancelFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = Pending
	s.cancel = cancel
}

// claim reserves a pending subscription for applying its result. Cancel has no effect afterwards.
func (s *Subscription) claim() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != Pending || s.claimed {
		return false
	}
	s.claimed = true
	return true
}

// terminate moves the subscription to the terminal state to. Only the claimer can terminate a claimed subscription.
// It returns false if nothing changed.
func (s *Subscription) terminate(to State, claimer bool) bool {
	s.mu.Lock()
	if s.state.Terminal() || (s.claimed && !claimer) {
		s.mu.Unlock()
		return false
	}
	s.state = to
	cancel := s.cancel
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	close(s.done)
	return true
}
