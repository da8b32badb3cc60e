package viewmodel_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/ubuntu/recordfeed/internal/api"
	"github.com/ubuntu/recordfeed/internal/model"
)

// manualLoop queues posted tasks until the test runs them.
type manualLoop struct {
	mu      sync.Mutex
	tasks   []func()
	stopped bool
	done    chan struct{}
	posted  chan struct{}
}

func newManualLoop() *manualLoop {
	return &manualLoop{done: make(chan struct{}), posted: make(chan struct{}, 100)}
}

func (l *manualLoop) Post(fn func()) bool {
	l.mu.Lock()
	if l.stopped {
		l.mu.Unlock()
		l.posted <- struct{}{}
		return false
	}
	l.tasks = append(l.tasks, fn)
	l.mu.Unlock()
	l.posted <- struct{}{}
	return true
}

func (l *manualLoop) Done() <-chan struct{} {
	return l.done
}

// stop drops the queued tasks and refuses new ones.
func (l *manualLoop) stop() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.stopped {
		return
	}
	l.stopped = true
	l.tasks = nil
	close(l.done)
}

// waitPosts waits for n posts, accepted or refused.
func (l *manualLoop) waitPosts(t *testing.T, n int) {
	t.Helper()
	for range n {
		select {
		case <-l.posted:
		case <-time.After(5 * time.Second):
			t.Fatal("Timed out waiting for a result to be posted to the loop")
		}
	}
}

// runAll runs every queued task, returning how many ran.
func (l *manualLoop) runAll() int {
	l.mu.Lock()
	tasks := l.tasks
	l.tasks = nil
	l.mu.Unlock()

	for _, fn := range tasks {
		fn()
	}
	return len(tasks)
}

type reply struct {
	records []model.Record
	err     error
}

// gatedSource holds every call until the test releases it with a reply.
type gatedSource struct {
	ignoreCtx bool

	mu    sync.Mutex
	gates map[string]chan reply
	calls []string
}

func newGatedSource() *gatedSource {
	return &gatedSource{gates: make(map[string]chan reply)}
}

func (s *gatedSource) gate(key string) chan reply {
	s.mu.Lock()
	defer s.mu.Unlock()
	ch, ok := s.gates[key]
	if !ok {
		ch = make(chan reply, 1)
		s.gates[key] = ch
	}
	return ch
}

// release lets the call identified by key return rep.
func (s *gatedSource) release(key string, rep reply) {
	s.gate(key) <- rep
}

func (s *gatedSource) wait(ctx context.Context, key string) reply {
	s.mu.Lock()
	s.calls = append(s.calls, key)
	s.mu.Unlock()

	if s.ignoreCtx {
		return <-s.gate(key)
	}
	select {
	case rep := <-s.gate(key):
		return rep
	case <-ctx.Done():
		return reply{err: &api.TransportError{Target: key, Err: ctx.Err()}}
	}
}

func (s *gatedSource) Record(ctx context.Context, id string) (model.Record, error) {
	rep := s.wait(ctx, id)
	if rep.err != nil {
		return model.Record{}, rep.err
	}
	return rep.records[0], nil
}

func (s *gatedSource) Records(ctx context.Context, q api.Query) ([]model.Record, error) {
	rep := s.wait(ctx, "?"+q.Encode())
	return rep.records, rep.err
}

func (s *gatedSource) Calls() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.calls...)
}

func waitDone(t *testing.T, done <-chan struct{}) {
	t.Helper()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Timed out waiting for the subscription to terminate")
	}
}
