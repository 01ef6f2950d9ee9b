package workspace

import (
	"context"
	"errors"
)

// ErrLoopStopped is returned by Do once the loop has exited.
var ErrLoopStopped = errors.New("event loop stopped")

// Loop runs workflow handlers one at a time, in arrival order, on a single
// goroutine. Every piece of workflow state is touched only from inside a
// handler, so none of it needs locking.
type Loop struct {
	events chan func()
	done   chan struct{}
}

// NewLoop returns a loop that is not yet running.
func NewLoop() *Loop {
	return &Loop{
		events: make(chan func()),
		done:   make(chan struct{}),
	}
}

// Run processes events until ctx ends.
func (l *Loop) Run(ctx context.Context) error {
	defer close(l.done)

	for {
		select {
		case fn := <-l.events:
			fn()
		case <-ctx.Done():
			return nil
		}
	}
}

// Do runs fn on the loop and waits for it to return.
func (l *Loop) Do(ctx context.Context, fn func() error) error {
	var err error
	finished := make(chan struct{})

	select {
	case l.events <- func() {
		defer close(finished)
		err = fn()
	}:
	case <-l.done:
		return ErrLoopStopped
	case <-ctx.Done():
		return ctx.Err()
	}

	// once accepted, a handler always runs to completion
	<-finished

	return err
}
