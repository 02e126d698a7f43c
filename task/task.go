// Package task serializes asynchronous actions. A Serializer keeps at most
// one action running for a single resource, and a Keyed serializer does the
// same for every key of an arbitrary string key space.
//
// An action is a func() error. Each submitted action gets its own Task, which
// completes when that action returns. The outcome of an action is only seen
// through its own Task; a failing action never stops the actions chained
// after it.
package task

import (
	"context"

	"github.com/pkg/errors"
)

// A Task is the completion handle of one action.
type Task struct {
	done chan struct{}
	err  error
}

func newTask() *Task {
	return &Task{done: make(chan struct{})}
}

// Go starts fn in a new goroutine and returns its Task. It is intended for
// operations which are begun outside a serializer and later handed to one
// with AddStarted.
func Go(fn func() error) *Task {
	t := newTask()
	go func() {
		t.finish(call(fn))
	}()
	return t
}

// Done returns a channel which is closed once the action has returned.
func (t *Task) Done() <-chan struct{} {
	return t.done
}

// Wait blocks until the action has returned and gives back its error.
func (t *Task) Wait() error {
	<-t.done
	return t.err
}

// WaitContext is like Wait but gives up when ctx is done. Giving up does not
// stop the action; it keeps running to completion.
func (t *Task) WaitContext(ctx context.Context) error {
	select {
	case <-t.done:
		return t.err
	case <-ctx.Done():
		// prefer the real outcome if both are ready
		select {
		case <-t.done:
			return t.err
		default:
		}
		return ctx.Err()
	}
}

// Err returns the action's error, or nil if the action has not finished yet.
func (t *Task) Err() error {
	select {
	case <-t.done:
		return t.err
	default:
		return nil
	}
}

func (t *Task) finish(err error) {
	t.err = err
	close(t.done)
}

// call runs fn, turning a panic into an error.
func call(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.Errorf("task: action panicked: %v", r)
		}
	}()
	return fn()
}

// launch starts fn once prev (which may be nil) has completed. settle is
// called after fn returns but before the new task is completed, so by the
// time a waiter wakes up the serializer no longer reports it as current.
func launch(prev *Task, fn func() error, settle func(*Task)) *Task {
	t := newTask()
	go func() {
		if prev != nil {
			<-prev.done
		}
		err := call(fn)
		settle(t)
		t.finish(err)
	}()
	return t
}
