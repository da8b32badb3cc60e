package server

import (
	"context"
	"log/slog"
	"math"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/time/rate"
)

const (
	// limiterIdleTTL is how long a client address keeps its limiter without sending requests.
	limiterIdleTTL = 3 * time.Minute
	// limiterSweepInterval is how often idle limiters are evicted.
	limiterSweepInterval = time.Minute
)

// client is the rate limiting state of one remote address.
type client struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// ipLimiter rate limits requests per remote address.
type ipLimiter struct {
	clients map[string]*client
	mu      sync.Mutex

	rate  rate.Limit
	burst int
	idle  time.Duration
	now   func() time.Time

	// rejected counts limited requests. It may be nil.
	rejected prometheus.Counter
	log      *slog.Logger
}

func newIPLimiter(r rate.Limit, b int, idle time.Duration) *ipLimiter {
	return &ipLimiter{
		clients: make(map[string]*client),
		rate:    r,
		burst:   b,
		idle:    idle,
		now:     time.Now,
		log:     slog.Default(),
	}
}

// reserve takes a token for ip at now and returns how long the request must wait for it.
// A request which must wait gives its token back.
func (l *ipLimiter) reserve(ip string, now time.Time) time.Duration {
	l.mu.Lock()
	defer l.mu.Unlock()

	c, ok := l.clients[ip]
	if !ok {
		c = &client{limiter: rate.NewLimiter(l.rate, l.burst)}
		l.clients[ip] = c
	}
	c.lastSeen = now

	res := c.limiter.ReserveN(now, 1)
	if !res.OK() {
		return rate.InfDuration
	}
	delay := res.DelayFrom(now)
	if delay > 0 {
		res.CancelAt(now)
	}
	return delay
}

// evictIdle drops the limiters of addresses not seen for the idle duration and returns how many were dropped.
func (l *ipLimiter) evictIdle() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	cutoff := l.now().Add(-l.idle)
	var n int
	for ip, c := range l.clients {
		if c.lastSeen.Before(cutoff) {
			delete(l.clients, ip)
			n++
		}
	}
	return n
}

// sweep evicts idle limiters every interval until ctx is done.
func (l *ipLimiter) sweep(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := l.evictIdle(); n > 0 {
				l.log.Debug("Evicted idle rate limiters", "count", n)
			}
		}
	}
}

func (l *ipLimiter) middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip, _, err := net.SplitHostPort(r.RemoteAddr)
		if err != nil {
			http.Error(w, "Unable to determine IP", http.StatusBadRequest)
			return
		}

		if delay := l.reserve(ip, l.now()); delay > 0 {
			if l.rejected != nil {
				l.rejected.Inc()
			}
			w.Header().Set("Retry-After", retryAfter(delay))
			http.Error(w, "Rate limit exceeded", http.StatusTooManyRequests)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// retryAfter formats delay in whole seconds, rounded up, for the Retry-After header.
func retryAfter(delay time.Duration) string {
	if delay == rate.InfDuration {
		delay = limiterIdleTTL
	}
	return strconv.Itoa(max(int(math.Ceil(delay.Seconds())), 1))
}
