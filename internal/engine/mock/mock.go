// Package mock provides a scriptable in-memory implementation of
// [engine.Engine] for tests. Uploads can be made to fail a configurable
// number of times, and results are pushed by the test via [Engine.Deliver].
package mock

import (
	"context"
	"sync"

	"github.com/PoisonIvory/sagevoice/internal/engine"
)

// Compile-time interface check.
var _ engine.Engine = (*Engine)(nil)

// Engine is a scriptable engine double. The zero value is ready to use.
// All methods are safe for concurrent use.
type Engine struct {
	mu sync.Mutex

	// UploadErrs is consumed one entry per Upload call; a nil entry means
	// that call succeeds. Once exhausted, uploads succeed.
	UploadErrs []error

	uploads []engine.SampleMetadata
	subs    map[string][]*Subscription
	// released counts Release calls per recording ID.
	released map[string]int
}

// Uploads returns a copy of the metadata from every Upload call so far.
func (e *Engine) Uploads() []engine.SampleMetadata {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]engine.SampleMetadata, len(e.uploads))
	copy(out, e.uploads)
	return out
}

// Upload records the call and returns the next scripted error, if any.
func (e *Engine) Upload(ctx context.Context, meta engine.SampleMetadata, _ []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.uploads = append(e.uploads, meta)
	if len(e.UploadErrs) > 0 {
		err := e.UploadErrs[0]
		e.UploadErrs = e.UploadErrs[1:]
		return err
	}
	return nil
}

// Subscribe opens a buffered feed for recordingID.
func (e *Engine) Subscribe(_ context.Context, recordingID string) (engine.Subscription, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.subs == nil {
		e.subs = make(map[string][]*Subscription)
	}
	sub := &Subscription{
		engine:      e,
		recordingID: recordingID,
		ch:          make(chan engine.Result, 8),
	}
	e.subs[recordingID] = append(e.subs[recordingID], sub)
	return sub, nil
}

// Deliver pushes a result to every open subscription for its recording ID.
// Calling Deliver twice with the same result simulates transport-level
// duplicate delivery.
func (e *Engine) Deliver(res engine.Result) {
	e.mu.Lock()
	subs := append([]*Subscription(nil), e.subs[res.RecordingID]...)
	e.mu.Unlock()
	for _, sub := range subs {
		sub.deliver(res)
	}
}

// Released reports how many times subscriptions for recordingID have been
// released.
func (e *Engine) Released(recordingID string) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.released[recordingID]
}

// OpenSubscriptions reports the number of unreleased subscriptions for
// recordingID.
func (e *Engine) OpenSubscriptions(recordingID string) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	open := 0
	for _, sub := range e.subs[recordingID] {
		sub.mu.Lock()
		if !sub.closed {
			open++
		}
		sub.mu.Unlock()
	}
	return open
}

// Subscription is the mock result feed handed out by [Engine.Subscribe].
type Subscription struct {
	engine      *Engine
	recordingID string

	mu     sync.Mutex
	ch     chan engine.Result
	closed bool
}

// Results implements [engine.Subscription].
func (s *Subscription) Results() <-chan engine.Result { return s.ch }

// Release implements [engine.Subscription]. It is idempotent.
func (s *Subscription) Release() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	close(s.ch)
	s.mu.Unlock()

	s.engine.mu.Lock()
	if s.engine.released == nil {
		s.engine.released = make(map[string]int)
	}
	s.engine.released[s.recordingID]++
	s.engine.mu.Unlock()
}

func (s *Subscription) deliver(res engine.Result) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	select {
	case s.ch <- res:
	default:
		// Feed is full; drop rather than block the test.
	}
}
