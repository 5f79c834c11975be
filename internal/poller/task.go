package poller

import (
	"context"
	"sync"

	"github.com/ZHOUKAILIAN/smart-ingredients/internal/analysis"
)

// Task is a running polling session with an explicit cancel handle.
//
// Updates carries the latest snapshot; if the consumer falls behind, older
// snapshots are replaced rather than queued. The channel is closed once the
// session reaches a terminal state.
type Task struct {
	id      string
	cancel  context.CancelFunc
	updates chan analysis.Status
	done    chan struct{}

	mu    sync.Mutex
	state State
	last  analysis.Status
	err   error
}

// Start launches a polling session for id in its own goroutine.
func (p *Poller) Start(ctx context.Context, id string) *Task {
	ctx, cancel := context.WithCancel(ctx)
	t := &Task{
		id:      id,
		cancel:  cancel,
		updates: make(chan analysis.Status, 1),
		done:    make(chan struct{}),
		state:   StateInit,
	}
	go t.run(ctx, p)
	return t
}

func (t *Task) run(ctx context.Context, p *Poller) {
	defer close(t.done)
	defer close(t.updates)
	defer t.cancel()

	err := p.run(ctx, t.id, func(s analysis.Status) bool {
		if ctx.Err() != nil {
			return false
		}
		t.mu.Lock()
		t.last = s
		t.mu.Unlock()
		t.publish(s)
		return true
	}, t.setState)

	t.mu.Lock()
	t.err = err
	cancelled := t.state == StateCancelled
	t.mu.Unlock()

	if cancelled {
		// Nothing published before cancellation may be observed after it.
		select {
		case <-t.updates:
		default:
		}
	}
}

func (t *Task) publish(s analysis.Status) {
	select {
	case t.updates <- s:
		return
	default:
	}
	select {
	case <-t.updates:
	default:
	}
	t.updates <- s
}

func (t *Task) setState(s State) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state.Terminal() {
		return
	}
	t.state = s
}

// ID returns the analysis id this task polls.
func (t *Task) ID() string {
	return t.id
}

// Updates streams snapshots until the session ends.
func (t *Task) Updates() <-chan analysis.Status {
	return t.updates
}

// Done is closed once the session has stopped.
func (t *Task) Done() <-chan struct{} {
	return t.done
}

// Cancel stops the session and returns once no further work can happen.
// It is safe to call more than once and after completion.
func (t *Task) Cancel() {
	t.cancel()
	<-t.done
}

// Wait blocks until the session stops and returns the last snapshot and the
// poll error, if any.
func (t *Task) Wait() (analysis.Status, error) {
	<-t.done
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.last, t.err
}

// State reports the current lifecycle state.
func (t *Task) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// Last returns the most recent snapshot delivered by the session.
func (t *Task) Last() analysis.Status {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.last
}
