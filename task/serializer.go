package task

import (
	"sync"

	"github.com/pkg/errors"
)

// ErrBusy is returned by AddStarted when an action is already in progress.
var ErrBusy = errors.New("task: an action is already in progress")

// A Serializer runs the actions given to it one at a time, in the order
// they were chained. The zero value is an idle Serializer ready for use.
// It is safe to use from multiple goroutines.
type Serializer struct {
	m      sync.Mutex // protects latest
	latest *Task      // nil when idle
}

// IsProcessing returns true if an action is outstanding.
func (s *Serializer) IsProcessing() bool {
	s.m.Lock()
	defer s.m.Unlock()
	return s.latest != nil
}

// Latest returns the Task of the last action in the chain at this moment,
// or nil if the serializer is idle.
func (s *Serializer) Latest() *Task {
	s.m.Lock()
	defer s.m.Unlock()
	return s.latest
}

// Start begins fn if the serializer is idle. If something is already
// running, fn is not started and false is returned. Use StartOrChain if
// fn must eventually run.
func (s *Serializer) Start(fn func() error) (*Task, bool) {
	s.m.Lock()
	defer s.m.Unlock()
	if s.latest != nil {
		return nil, false
	}
	s.latest = launch(nil, fn, s.settle)
	return s.latest, true
}

// StartOrChain begins fn right away if idle, otherwise it queues fn to run
// after the last chained action returns, whether that action failed or not.
// The returned Task completes with fn's own result.
func (s *Serializer) StartOrChain(fn func() error) *Task {
	s.m.Lock()
	defer s.m.Unlock()
	s.latest = launch(s.latest, fn, s.settle)
	return s.latest
}

// AddStarted makes an already running task the current occupant, so that
// later calls to StartOrChain are chained after it. It returns ErrBusy if
// the serializer is not idle.
func (s *Serializer) AddStarted(t *Task) error {
	s.m.Lock()
	defer s.m.Unlock()
	if s.latest != nil {
		return ErrBusy
	}
	s.latest = t
	go func() {
		<-t.done
		s.settle(t)
	}()
	return nil
}

// settle drops t as the current occupant if nothing was chained after it.
func (s *Serializer) settle(t *Task) {
	s.m.Lock()
	if s.latest == t {
		s.latest = nil
	}
	s.m.Unlock()
}
