// Package ratelimit admits a fixed number of requests per client per window.
package ratelimit

import (
	"context"
	"hash/fnv"
	"sync"
	"time"

	"github.com/brojonat/stellar-explain/service/metrics"
)

// Options configures a Limiter. Zero values get defaults.
type Options struct {
	// Limit is the number of requests admitted per window. Default 60.
	Limit int
	// Window is the window length. Default one minute.
	Window time.Duration
	// Shards is the number of independently locked partitions. Default 32.
	Shards int
	// Now is the clock. Default time.Now.
	Now func() time.Time
	// Metrics is optional.
	Metrics *metrics.Metrics
}

// Decision is the outcome of one admission check.
type Decision struct {
	Allowed   bool
	Limit     int
	Remaining int
	// RetryAfter is zero when allowed, otherwise whole seconds of at least one.
	RetryAfter time.Duration
	ResetAt    time.Time
}

// Limiter is a fixed-window limiter keyed by client identity. A window opens
// at an identity's first request and lasts Options.Window.
type Limiter struct {
	limit   int
	window  time.Duration
	now     func() time.Time
	shards  []*shard
	metrics *metrics.Metrics
}

type shard struct {
	mu      sync.Mutex
	windows map[string]*window
}

type window struct {
	start time.Time
	count int
}

// New creates a Limiter.
func New(opts Options) *Limiter {
	if opts.Limit <= 0 {
		opts.Limit = 60
	}
	if opts.Window <= 0 {
		opts.Window = time.Minute
	}
	if opts.Shards <= 0 {
		opts.Shards = 32
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	l := &Limiter{
		limit:   opts.Limit,
		window:  opts.Window,
		now:     opts.Now,
		shards:  make([]*shard, opts.Shards),
		metrics: opts.Metrics,
	}
	for i := range l.shards {
		l.shards[i] = &shard{windows: make(map[string]*window)}
	}
	return l
}

func (l *Limiter) shardFor(identity string) *shard {
	h := fnv.New32a()
	h.Write([]byte(identity))
	return l.shards[h.Sum32()%uint32(len(l.shards))]
}

// Admit records a request from identity and reports whether it may proceed.
func (l *Limiter) Admit(identity string) Decision {
	now := l.now()
	s := l.shardFor(identity)

	s.mu.Lock()
	w, ok := s.windows[identity]
	if !ok || !now.Before(w.start.Add(l.window)) {
		w = &window{start: now}
		s.windows[identity] = w
	}
	allowed := w.count < l.limit
	if allowed {
		w.count++
	}
	count := w.count
	resetAt := w.start.Add(l.window)
	s.mu.Unlock()

	l.metrics.RecordRateLimitDecision(allowed)

	d := Decision{
		Allowed:   allowed,
		Limit:     l.limit,
		Remaining: max(l.limit-count, 0),
		ResetAt:   resetAt,
	}
	if !allowed {
		d.RetryAfter = retryAfter(resetAt.Sub(now))
	}
	return d
}

// retryAfter rounds up to whole seconds, never below one.
func retryAfter(d time.Duration) time.Duration {
	secs := (d + time.Second - 1) / time.Second
	if secs < 1 {
		secs = 1
	}
	return secs * time.Second
}

// Sweep drops windows that have ended and returns how many were dropped.
func (l *Limiter) Sweep() int {
	now := l.now()
	dropped := 0
	for _, s := range l.shards {
		s.mu.Lock()
		for id, w := range s.windows {
			if !now.Before(w.start.Add(l.window)) {
				delete(s.windows, id)
				dropped++
			}
		}
		s.mu.Unlock()
	}
	return dropped
}

// Run sweeps every interval until ctx is done.
func (l *Limiter) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			l.Sweep()
		}
	}
}
