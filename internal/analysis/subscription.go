package analysis

import (
	"sync"

	"github.com/PoisonIvory/sagevoice/internal/engine"
)

// dedupSubscription wraps an [engine.Subscription] and enforces at-most-once
// delivery per recording identifier: the first result for the subscribed
// recording is forwarded, every later delivery from the transport is dropped.
// Release is forwarded to the underlying subscription and is idempotent.
type dedupSubscription struct {
	inner engine.Subscription
	out   chan engine.Result

	once    sync.Once
	relOnce sync.Once
	done    chan struct{}
}

// newDedupSubscription starts forwarding from inner. The caller must call
// Release when done; releasing the dedup wrapper releases inner.
func newDedupSubscription(inner engine.Subscription) *dedupSubscription {
	d := &dedupSubscription{
		inner: inner,
		out:   make(chan engine.Result, 1),
		done:  make(chan struct{}),
	}
	go d.forward()
	return d
}

// Results returns the deduplicated feed. At most one result is ever
// delivered on it.
func (d *dedupSubscription) Results() <-chan engine.Result { return d.out }

// Release tears down the wrapper and the underlying subscription. It returns
// only once the underlying feed will deliver no further results, so callers
// can rely on no dangling subscription after Release returns.
func (d *dedupSubscription) Release() {
	d.relOnce.Do(func() {
		close(d.done)
		d.inner.Release()
	})
}

func (d *dedupSubscription) forward() {
	defer close(d.out)
	for {
		select {
		case <-d.done:
			return
		case res, ok := <-d.inner.Results():
			if !ok {
				return
			}
			delivered := false
			d.once.Do(func() {
				delivered = true
				d.out <- res
			})
			if !delivered {
				// Transport redelivery of the logical result; drop.
				continue
			}
		}
	}
}
