package http

import (
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/ma99us/MikeDB/lib/access"
	"golang.org/x/time/rate"
)

// RateResult is the outcome of a rate limit check
type RateResult struct {
	Allowed    bool
	Limit      int           // requests per window
	Remaining  int           // requests left in the current window
	ResetAt    time.Time     // when the bucket is full again
	RetryAfter time.Duration // 0 if allowed
}

// RateLimiter keeps one token bucket per API key (or client address for requests
// without a valid key).
type RateLimiter struct {
	mu      sync.Mutex
	buckets map[string]*bucket
	rate    rate.Limit
	burst   int
	window  time.Duration
	stop    chan struct{}
	once    sync.Once
}

type bucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewRateLimiter allows requests per window for every key, all of them in a burst
func NewRateLimiter(requests int, window time.Duration) *RateLimiter {
	l := &RateLimiter{
		buckets: make(map[string]*bucket),
		rate:    rate.Limit(float64(requests) / window.Seconds()),
		burst:   requests,
		window:  window,
		stop:    make(chan struct{}),
	}
	go l.cleanupLoop()
	return l
}

// Allow takes one token from the bucket of key
func (l *RateLimiter) Allow(key string) RateResult {
	now := time.Now()
	l.mu.Lock()
	b, ok := l.buckets[key]
	if !ok {
		b = &bucket{limiter: rate.NewLimiter(l.rate, l.burst)}
		l.buckets[key] = b
	}
	b.lastSeen = now
	l.mu.Unlock()

	reservation := b.limiter.ReserveN(now, 1)
	allowed := reservation.OK() && reservation.Delay() == 0
	if !allowed && reservation.OK() {
		reservation.Cancel()
	}

	tokens := b.limiter.TokensAt(now)
	refill := time.Duration((float64(l.burst) - tokens) / float64(l.rate) * float64(time.Second))

	var retryAfter time.Duration
	if !allowed {
		retryAfter = max(time.Duration(float64(time.Second)/float64(l.rate)), time.Second)
	}

	return RateResult{
		Allowed:    allowed,
		Limit:      int(float64(l.rate) * l.window.Seconds()),
		Remaining:  max(int(tokens), 0),
		ResetAt:    now.Add(refill),
		RetryAfter: retryAfter,
	}
}

// Close stops the cleanup goroutine
func (l *RateLimiter) Close() {
	l.once.Do(func() { close(l.stop) })
}

func (l *RateLimiter) cleanupLoop() {
	ticker := time.NewTicker(10 * time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			l.cleanup(time.Now())
		case <-l.stop:
			return
		}
	}
}

// cleanup forgets full buckets that were not used for 10 minutes
func (l *RateLimiter) cleanup(now time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()
	stale := now.Add(-10 * time.Minute)
	for key, b := range l.buckets {
		if b.lastSeen.Before(stale) && b.limiter.TokensAt(now) >= float64(l.burst) {
			delete(l.buckets, key)
		}
	}
}

// writeRateHeaders sets the X-RateLimit-* headers and, when rejected, Retry-After
func writeRateHeaders(w http.ResponseWriter, result RateResult) {
	w.Header().Set("X-RateLimit-Limit", strconv.Itoa(result.Limit))
	w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(result.Remaining))
	w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(result.ResetAt.Unix(), 10))
	if !result.Allowed {
		w.Header().Set("Retry-After", strconv.Itoa(int(result.RetryAfter.Seconds())))
	}
}

// rateKey picks the bucket of a request. An API key gets its own bucket only
// when it grants access to the database of the path; anything else is counted
// against the client address.
func (h *Handler) rateKey(r *http.Request) string {
	if apiKey := r.Header.Get(HeaderAPIKey); apiKey != "" {
		if dbName := pathDatabase(r.URL.Path); dbName != "" && h.checker.CheckAccess(apiKey, access.READ, dbName) {
			return "key:" + apiKey
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	return "ip:" + host
}

// pathDatabase returns the database segment of an api path
func pathDatabase(path string) string {
	rest, ok := strings.CutPrefix(path, BasePath+"/")
	if !ok {
		return ""
	}
	if sub, ok := strings.CutPrefix(rest, "subscribe/"); ok {
		rest = sub
	}
	dbName, _, _ := strings.Cut(rest, "/")
	return dbName
}
