package memorylimiter

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Limit defines window and max count for a bucket.
type Limit struct {
	Limit  int
	Window time.Duration
}

type bucketState struct {
	// timestamps holds request times in Unix ms, newest last.
	timestamps []int64
	window     int64
}

// sweepInterval is how often Allow drops keys whose window has emptied.
const sweepInterval = time.Minute

// Limiter is an in-memory sliding-window rate limiter for a single gate
// instance.
type Limiter struct {
	mu      sync.Mutex
	limits  map[string]Limit
	buckets map[string]*bucketState
	now     func() time.Time
	swept   int64
}

// New constructs a limiter with per-bucket limits. The "default" entry
// applies to buckets without their own limit.
func New(limits map[string]Limit) *Limiter {
	if limits == nil {
		limits = map[string]Limit{}
	}
	return &Limiter{
		limits:  limits,
		buckets: make(map[string]*bucketState),
		now:     time.Now,
	}
}

func (l *Limiter) get(bucket string) Limit {
	if v, ok := l.limits[bucket]; ok {
		return v
	}
	if v, ok := l.limits["default"]; ok {
		return v
	}
	return Limit{Limit: 100, Window: time.Minute}
}

// Allow records one request for key in bucket and reports whether it fits
// the window. Denied requests are not recorded.
func (l *Limiter) Allow(_ context.Context, bucket, key string) (bool, error) {
	if l == nil {
		return true, nil
	}
	if bucket == "" || key == "" {
		return false, fmt.Errorf("bucket and key required")
	}

	lim := l.get(bucket)
	nowMs := l.now().UnixMilli()
	windowStart := nowMs - lim.Window.Milliseconds()
	limitKey := key + ":" + bucket

	l.mu.Lock()
	defer l.mu.Unlock()

	if nowMs-l.swept >= sweepInterval.Milliseconds() {
		l.sweep(nowMs)
	}

	b, ok := l.buckets[limitKey]
	if !ok {
		b = &bucketState{window: lim.Window.Milliseconds()}
		l.buckets[limitKey] = b
	}

	ts := b.timestamps
	pruneIdx := 0
	for pruneIdx < len(ts) && ts[pruneIdx] <= windowStart {
		pruneIdx++
	}
	ts = ts[pruneIdx:]

	if len(ts) >= lim.Limit {
		b.timestamps = ts
		return false, nil
	}
	b.timestamps = append(ts, nowMs)
	return true, nil
}

// sweep removes keys with no request inside their window. Callers hold mu.
func (l *Limiter) sweep(nowMs int64) {
	l.swept = nowMs
	for k, b := range l.buckets {
		if n := len(b.timestamps); n == 0 || b.timestamps[n-1] <= nowMs-b.window {
			delete(l.buckets, k)
		}
	}
}
