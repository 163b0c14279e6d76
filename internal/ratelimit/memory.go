package ratelimit

import (
	"context"
	"sync"
	"time"
)

// MemoryLimiter implements Limiter with one token bucket per key, held in
// process memory. Suitable for single-instance deployments; buckets are not
// shared across replicas.
type MemoryLimiter struct {
	refillPerSec float64
	capacity     float64

	mu      sync.Mutex
	buckets map[string]*tokenBucket

	closeOnce sync.Once
	done      chan struct{}
}

type tokenBucket struct {
	tokens float64
	seenAt time.Time
}

// How long an idle bucket survives before the sweeper drops it.
const bucketIdleTTL = 10 * time.Minute

// NewMemoryLimiter creates a limiter refilling rate tokens per second per
// key, with burst as the bucket capacity. A background sweeper drops idle
// buckets to bound memory; call Close to stop it.
func NewMemoryLimiter(rate float64, burst int) *MemoryLimiter {
	m := &MemoryLimiter{
		refillPerSec: rate,
		capacity:     float64(burst),
		buckets:      make(map[string]*tokenBucket),
		done:         make(chan struct{}),
	}
	go m.sweep()
	return m
}

// Allow takes one token from key's bucket, reporting whether one was
// available. New keys start with a full bucket.
func (m *MemoryLimiter) Allow(_ context.Context, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	b, ok := m.buckets[key]
	if !ok {
		m.buckets[key] = &tokenBucket{tokens: m.capacity - 1, seenAt: now}
		return true, nil
	}

	b.tokens += now.Sub(b.seenAt).Seconds() * m.refillPerSec
	if b.tokens > m.capacity {
		b.tokens = m.capacity
	}
	b.seenAt = now

	if b.tokens < 1 {
		return false, nil
	}
	b.tokens--
	return true, nil
}

// Close stops the sweeper goroutine. Safe to call more than once.
func (m *MemoryLimiter) Close() error {
	m.closeOnce.Do(func() { close(m.done) })
	return nil
}

func (m *MemoryLimiter) sweep() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-m.done:
			return
		case <-ticker.C:
			m.dropIdle(time.Now())
		}
	}
}

func (m *MemoryLimiter) dropIdle(now time.Time) {
	cutoff := now.Add(-bucketIdleTTL)
	m.mu.Lock()
	defer m.mu.Unlock()
	for key, b := range m.buckets {
		if b.seenAt.Before(cutoff) {
			delete(m.buckets, key)
		}
	}
}
