// Package source resolves a step's code reference to source text. Relative
// paths are read from the lesson directory; http(s) URLs are downloaded.
package source

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/livetemplate/mathwalk/internal/cache"
	"github.com/livetemplate/mathwalk/internal/security"
)

// Fetcher resolves a reference to script text.
type Fetcher interface {
	Fetch(ctx context.Context, ref string) (string, error)
}

// Options configures a Resolver.
type Options struct {
	Timeout   time.Duration // Per-fetch limit. 0 = no limit
	CacheTTL  time.Duration // Cache successful fetches. 0 = no cache
	Retry     RetryConfig
	Breaker   CircuitBreakerConfig // Zero fields take the defaults
	URLPolicy security.URLPolicy
	Logger    *slog.Logger
}

// Resolver dispatches references to the file or HTTP source. Only
// successful fetches are cached, so a failed step retries on revisit.
type Resolver struct {
	file    *FileSource
	http    *HTTPSource
	cache   *cache.MemoryCache[string]
	ttl     time.Duration
	timeout time.Duration
	logger  *slog.Logger
}

// NewResolver creates a resolver for lessons rooted at root.
func NewResolver(root string, opts Options) *Resolver {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "source")

	r := &Resolver{
		file:    NewFileSource(root),
		http:    NewHTTPSource(opts.URLPolicy, opts.Retry, opts.Breaker, logger),
		ttl:     opts.CacheTTL,
		timeout: opts.Timeout,
		logger:  logger,
	}
	if opts.CacheTTL > 0 {
		r.cache = cache.NewMemoryCache[string]()
	}
	return r
}

// IsRemote reports whether ref is an http(s) URL.
func IsRemote(ref string) bool {
	return strings.HasPrefix(ref, "http://") || strings.HasPrefix(ref, "https://")
}

// Fetch returns the script text for ref.
func (r *Resolver) Fetch(ctx context.Context, ref string) (string, error) {
	if r.cache != nil {
		if text, ok := r.cache.Get(ref); ok {
			r.logger.Debug("cache hit", "ref", ref)
			return text, nil
		}
	}

	fetchCtx := ctx
	if r.timeout > 0 {
		var cancel context.CancelFunc
		fetchCtx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	var text string
	var err error
	if IsRemote(ref) {
		text, err = r.http.Fetch(fetchCtx, ref)
	} else {
		text, err = r.file.Fetch(fetchCtx, ref)
	}
	if err != nil {
		if ctx.Err() == nil && errors.Is(err, context.DeadlineExceeded) {
			err = &TimeoutError{Ref: ref, Duration: r.timeout.String()}
		}
		return "", err
	}

	if r.cache != nil {
		r.cache.Set(ref, text, r.ttl)
	}
	return text, nil
}

// Invalidate drops every cached script. Called when lessons change on disk.
func (r *Resolver) Invalidate() {
	if r.cache != nil {
		r.cache.InvalidateAll()
	}
}

// Close releases the cache.
func (r *Resolver) Close() error {
	if r.cache != nil {
		r.cache.Stop()
	}
	return nil
}
