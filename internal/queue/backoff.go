package queue

import (
	"math/rand"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// RetryPolicy is the base*factor^retry_count+-jitter curve from spec §4.3:
// "default base=1s, factor=2.0, cap=300s", "Jitter is +-10% uniform".
type RetryPolicy struct {
	Base   time.Duration
	Factor float64
	Cap    time.Duration
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{Base: time.Second, Factor: 2.0, Cap: 300 * time.Second}
}

// NextDelay computes next_retry_at's offset for retryCount attempts
// already made, scaled by a failure-reason multiplier, grounded in
// github.com/cenkalti/backoff/v4's ExponentialBackOff curve but driven
// explicitly (per-attempt) rather than via its internal Reset/NextBackOff
// stateful loop, since the queue persists retry_count across restarts and
// must recompute the same delay from cold state.
func (p RetryPolicy) NextDelay(retryCount int, multiplier float64) time.Duration {
	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = p.Base
	eb.Multiplier = p.Factor
	eb.MaxInterval = p.Cap
	eb.RandomizationFactor = 0 // jitter applied separately below, +-10% uniform per spec

	interval := eb.InitialInterval
	for i := 0; i < retryCount; i++ {
		next := time.Duration(float64(interval) * eb.Multiplier)
		if next > eb.MaxInterval {
			next = eb.MaxInterval
		}
		interval = next
	}

	scaled := time.Duration(float64(interval) * multiplier)
	if scaled > p.Cap {
		scaled = p.Cap
	}

	jitter := (rand.Float64()*2 - 1) * 0.10 * float64(scaled)
	withJitter := scaled + time.Duration(jitter)
	if withJitter < 0 {
		withJitter = 0
	}
	return withJitter
}
