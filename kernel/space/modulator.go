package space

import (
	"context"
	"time"

	"github.com/yasserelgammal/rate-limiter/limiter"
	"github.com/yasserelgammal/rate-limiter/store"

	"github.com/veilspace/kernel/kernel/event"
)

// RateLimitModulator is the optional Phase-1 admission gate (§4.5): a
// token bucket keyed by event topic, the same throttling shape the
// teacher's gossip layer uses to bound inbound message rates
// (kernel/core/mesh/routing/gossip.go), repurposed here from peer ids
// to event topics.
type RateLimitModulator struct {
	bucket *limiter.TokenBucket
}

// NewRateLimitModulator builds a modulator allowing up to burst events
// per topic, refilling at rate per duration.
func NewRateLimitModulator(rate int64, duration time.Duration, burst int64) (*RateLimitModulator, error) {
	st := store.NewMemoryStore(time.Minute)
	bucket, err := limiter.NewTokenBucket(limiter.Config{Rate: rate, Duration: duration, Burst: burst}, st)
	if err != nil {
		return nil, err
	}
	return &RateLimitModulator{bucket: bucket}, nil
}

// Admit reports whether e may proceed into Phase 1, keyed on its topic.
func (m *RateLimitModulator) Admit(ctx context.Context, e *event.Event) bool {
	return m.bucket.Allow(e.Topic)
}
