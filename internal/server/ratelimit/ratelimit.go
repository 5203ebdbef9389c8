// Package ratelimit limits requests per client and endpoint with token buckets.
package ratelimit

import (
	"math"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// EndpointConfig represents rate limiting configuration for a specific endpoint.
type EndpointConfig struct {
	Path   string  // Endpoint path; a trailing "/" matches by prefix
	Method string  // HTTP method
	Rate   float64 // Tokens added per second
	Burst  int     // Bucket capacity
}

// Config holds rate limiting configuration.
type Config struct {
	Enabled         bool
	Endpoints       []EndpointConfig
	CleanupInterval time.Duration
	// IdleTTL is how long an unused bucket is kept.
	IdleTTL   time.Duration
	Whitelist map[string]bool
}

// RefreshConfig limits POST /api/refresh to ratePerSecond with the given burst.
// Other endpoints are not limited.
func RefreshConfig(ratePerSecond float64, burst int) *Config {
	return &Config{
		Enabled: true,
		Endpoints: []EndpointConfig{
			{Path: "/api/refresh", Method: "POST", Rate: ratePerSecond, Burst: burst},
		},
		CleanupInterval: 5 * time.Minute,
		IdleTTL:         time.Hour,
		Whitelist:       make(map[string]bool),
	}
}

// Info contains information about rate limit status.
type Info struct {
	Allowed    bool
	Limit      int
	Remaining  int
	RetryAfter time.Duration
}

type bucket struct {
	limiter    *rate.Limiter
	lastAccess time.Time
}

// Limiter manages rate limiting for multiple clients.
type Limiter struct {
	config *Config

	mu      sync.Mutex
	buckets map[string]*bucket

	cleanupStop chan struct{}
	cleanupDone chan struct{}
	stopOnce    sync.Once
}

// NewLimiter creates a limiter. A nil config disables limiting.
func NewLimiter(config *Config) *Limiter {
	if config == nil {
		config = &Config{Enabled: false}
	}
	l := &Limiter{
		config:  config,
		buckets: make(map[string]*bucket),
	}

	if config.Enabled && config.CleanupInterval > 0 {
		l.cleanupStop = make(chan struct{})
		l.cleanupDone = make(chan struct{})
		go l.cleanup()
	}
	return l
}

// Allow checks if a request from clientID to the endpoint is allowed and consumes a token if so.
func (l *Limiter) Allow(clientID, path, method string) (bool, Info) {
	return l.allowAt(clientID, path, method, time.Now())
}

func (l *Limiter) allowAt(clientID, path, method string, now time.Time) (bool, Info) {
	if !l.config.Enabled || l.config.Whitelist[clientID] {
		return true, Info{Allowed: true}
	}

	endpoint := MatchEndpoint(path, method, l.config.Endpoints)
	if endpoint == nil || endpoint.Rate <= 0 {
		return true, Info{Allowed: true}
	}

	key := clientID + ":" + endpoint.Method + ":" + endpoint.Path
	lim := l.getLimiter(key, endpoint, now)

	info := Info{Limit: lim.Burst()}
	if lim.AllowN(now, 1) {
		info.Allowed = true
	} else {
		r := lim.ReserveN(now, 1)
		if r.OK() {
			info.RetryAfter = r.DelayFrom(now)
			r.CancelAt(now)
		}
	}
	info.Remaining = int(math.Max(0, math.Floor(lim.TokensAt(now))))
	return info.Allowed, info
}

func (l *Limiter) getLimiter(key string, endpoint *EndpointConfig, now time.Time) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()

	b, ok := l.buckets[key]
	if !ok {
		burst := endpoint.Burst
		if burst <= 0 {
			burst = 1
		}
		b = &bucket{limiter: rate.NewLimiter(rate.Limit(endpoint.Rate), burst)}
		l.buckets[key] = b
	}
	b.lastAccess = now
	return b.limiter
}

// MatchEndpoint returns the configuration for path and method, or nil when the endpoint is not limited.
func MatchEndpoint(path, method string, configs []EndpointConfig) *EndpointConfig {
	for i := range configs {
		c := &configs[i]
		if c.Path == path && strings.EqualFold(c.Method, method) {
			return c
		}
	}
	for i := range configs {
		c := &configs[i]
		if strings.EqualFold(c.Method, method) && strings.HasSuffix(c.Path, "/") && strings.HasPrefix(path, c.Path) {
			return c
		}
	}
	return nil
}

func (l *Limiter) cleanup() {
	defer close(l.cleanupDone)
	ticker := time.NewTicker(l.config.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case now := <-ticker.C:
			l.removeIdle(now)
		case <-l.cleanupStop:
			return
		}
	}
}

// removeIdle drops buckets not used within IdleTTL.
func (l *Limiter) removeIdle(now time.Time) int {
	ttl := l.config.IdleTTL
	if ttl <= 0 {
		ttl = time.Hour
	}
	cutoff := now.Add(-ttl)

	l.mu.Lock()
	defer l.mu.Unlock()
	removed := 0
	for key, b := range l.buckets {
		if b.lastAccess.Before(cutoff) {
			delete(l.buckets, key)
			removed++
		}
	}
	return removed
}

// Stop stops the cleanup goroutine. It is safe to call more than once.
func (l *Limiter) Stop() {
	l.stopOnce.Do(func() {
		if l.cleanupStop != nil {
			close(l.cleanupStop)
			<-l.cleanupDone
		}
	})
}
