// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

// Package ratelimit provides per-source connection rate limiting using the
// token bucket algorithm.
package ratelimit

import (
	"net"
	"sync"
	"time"
)

// sweepInterval is how often idle buckets are dropped.
const sweepInterval = time.Minute

// TokenBucket implements the token bucket algorithm for rate limiting.
type TokenBucket struct {
	mu         sync.Mutex
	capacity   int64
	tokens     int64
	refillRate int64 // tokens per second
	lastRefill time.Time
	now        func() time.Time
}

// NewTokenBucket creates a new token bucket rate limiter.
// capacity is the maximum number of tokens.
// refillRate is the number of tokens added per second.
func NewTokenBucket(capacity, refillRate int64) *TokenBucket {
	return newTokenBucket(capacity, refillRate, time.Now)
}

func newTokenBucket(capacity, refillRate int64, now func() time.Time) *TokenBucket {
	return &TokenBucket{
		capacity:   capacity,
		tokens:     capacity,
		refillRate: refillRate,
		lastRefill: now(),
		now:        now,
	}
}

// Allow reports whether one more event fits in the bucket and consumes a
// token if so.
func (tb *TokenBucket) Allow() bool {
	tb.mu.Lock()
	defer tb.mu.Unlock()

	tb.refill()
	if tb.tokens > 0 {
		tb.tokens--
		return true
	}
	return false
}

// Available returns the number of available tokens.
func (tb *TokenBucket) Available() int64 {
	tb.mu.Lock()
	defer tb.mu.Unlock()

	tb.refill()
	return tb.tokens
}

func (tb *TokenBucket) full() bool {
	tb.mu.Lock()
	defer tb.mu.Unlock()

	tb.refill()
	return tb.tokens >= tb.capacity
}

// refill adds tokens based on elapsed time.
func (tb *TokenBucket) refill() {
	now := tb.now()
	elapsed := now.Sub(tb.lastRefill).Seconds()

	tokensToAdd := int64(elapsed * float64(tb.refillRate))
	if tokensToAdd > 0 {
		tb.tokens += tokensToAdd
		if tb.tokens > tb.capacity {
			tb.tokens = tb.capacity
		}
		tb.lastRefill = now
	}
}

// Limiter keeps one bucket per source host.
type Limiter struct {
	mu         sync.Mutex
	buckets    map[string]*TokenBucket
	capacity   int64
	refillRate int64
	maxClients int
	now        func() time.Time
	lastSweep  time.Time
}

// NewLimiter creates a limiter that admits capacity connections per source
// host, refilled at refillRate per second. At most maxClients sources are
// tracked; new sources beyond that are refused until idle buckets are swept.
func NewLimiter(capacity, refillRate int64, maxClients int) *Limiter {
	return newLimiter(capacity, refillRate, maxClients, time.Now)
}

func newLimiter(capacity, refillRate int64, maxClients int, now func() time.Time) *Limiter {
	if maxClients == 0 {
		maxClients = 10000
	}
	return &Limiter{
		buckets:    make(map[string]*TokenBucket),
		capacity:   capacity,
		refillRate: refillRate,
		maxClients: maxClients,
		now:        now,
		lastSweep:  now(),
	}
}

// Allow reports whether a new connection from remoteAddr is admitted.
// The port part of remoteAddr is ignored.
func (l *Limiter) Allow(remoteAddr string) bool {
	key := sourceHost(remoteAddr)

	l.mu.Lock()
	if l.now().Sub(l.lastSweep) >= sweepInterval {
		l.sweep()
	}
	tb, ok := l.buckets[key]
	if !ok {
		if len(l.buckets) >= l.maxClients {
			l.mu.Unlock()
			return false
		}
		tb = newTokenBucket(l.capacity, l.refillRate, l.now)
		l.buckets[key] = tb
	}
	l.mu.Unlock()

	return tb.Allow()
}

// sweep drops buckets that have refilled completely; they hold no state a
// fresh bucket would not. Callers hold l.mu.
func (l *Limiter) sweep() {
	for k, tb := range l.buckets {
		if tb.full() {
			delete(l.buckets, k)
		}
	}
	l.lastSweep = l.now()
}

// Stats returns the number of tracked sources.
func (l *Limiter) Stats() (clients int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.buckets)
}

func sourceHost(addr string) string {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return addr
	}
	return host
}
