package fetch

import (
	"context"
	"net/http"
	"sync"
)

// CachedLoader is a Loader that revalidates URL sources instead of downloading them again.
// The ETag and Last-Modified of the last good response are sent as If-None-Match and
// If-Modified-Since; a 304 answer reuses the cached text. File sources are always read.
type CachedLoader struct {
	*Loader

	mu    sync.Mutex
	last  *Result
	stats CacheStats
}

// CacheStats counts revalidation outcomes.
type CacheStats struct {
	Hits   int // 304 answers served from the cached text
	Misses int // full downloads
}

// NewCachedLoader creates a cached loader for source.
func NewCachedLoader(source string, opts *Options) *CachedLoader {
	return &CachedLoader{Loader: NewLoader(source, opts)}
}

// Load fetches the current text, using the cached copy when the server reports it unchanged.
func (l *CachedLoader) Load(ctx context.Context) (*Result, error) {
	if !IsURL(l.source) {
		return File(ctx, l.source)
	}

	l.mu.Lock()
	last := l.last
	l.mu.Unlock()

	opts := l.options
	if last != nil {
		opts = withValidators(l.options, last)
	}

	result, err := URL(ctx, l.source, opts)
	if err != nil {
		return nil, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if result.NotModified {
		if last == nil {
			// Nothing to reuse; the server ignored the missing validators.
			return nil, &LoadError{Source: l.source, StatusCode: result.StatusCode, Message: "unexpected 304 Not Modified"}
		}
		l.stats.Hits++
		cached := *last
		cached.StatusCode = http.StatusNotModified
		return &cached, nil
	}

	l.stats.Misses++
	if result.ETag != "" || !result.ModTime.IsZero() {
		stored := *result
		l.last = &stored
	} else {
		l.last = nil
	}
	return result, nil
}

// Stats returns the revalidation counters.
func (l *CachedLoader) Stats() CacheStats {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.stats
}

// Invalidate drops the cached response so the next Load downloads the source again.
func (l *CachedLoader) Invalidate() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.last = nil
}

func withValidators(opts *Options, last *Result) *Options {
	cp := *opts
	cp.Headers = make(map[string]string, len(opts.Headers)+2)
	for k, v := range opts.Headers {
		cp.Headers[k] = v
	}
	if last.ETag != "" {
		cp.Headers["If-None-Match"] = last.ETag
	}
	if !last.ModTime.IsZero() {
		cp.Headers["If-Modified-Since"] = last.ModTime.UTC().Format(http.TimeFormat)
	}
	return &cp
}
