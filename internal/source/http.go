package source

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"github.com/livetemplate/mathwalk/internal/security"
)

// HTTPSource fetches scripts from http(s) URLs.
type HTTPSource struct {
	client        *http.Client
	policy        security.URLPolicy
	retryConfig   RetryConfig
	breakerConfig CircuitBreakerConfig
	logger        *slog.Logger

	mu       sync.Mutex
	breakers map[string]*CircuitBreaker
}

// NewHTTPSource creates an HTTP source. Timeouts come from the caller's context.
func NewHTTPSource(policy security.URLPolicy, retry RetryConfig, breaker CircuitBreakerConfig, logger *slog.Logger) *HTTPSource {
	return &HTTPSource{
		client:        &http.Client{},
		policy:        policy,
		retryConfig:   retry,
		breakerConfig: breaker,
		logger:        logger,
		breakers:      make(map[string]*CircuitBreaker),
	}
}

// Fetch downloads the script at rawURL with retry on transient failures.
// Hosts that keep failing are skipped until their breaker lets a probe through.
func (s *HTTPSource) Fetch(ctx context.Context, rawURL string) (string, error) {
	if err := s.policy.Check(ctx, rawURL); err != nil {
		return "", &ValidationError{Ref: rawURL, Reason: err.Error()}
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", &ValidationError{Ref: rawURL, Reason: err.Error()}
	}

	cb := s.breaker(u.Host)
	if err := cb.Allow(rawURL); err != nil {
		return "", err
	}

	text, err := WithRetry(ctx, s.logger, rawURL, s.retryConfig, func(ctx context.Context) (string, error) {
		return s.doFetch(ctx, rawURL)
	})
	cb.Record(err)
	return text, err
}

func (s *HTTPSource) breaker(host string) *CircuitBreaker {
	s.mu.Lock()
	defer s.mu.Unlock()
	cb, ok := s.breakers[host]
	if !ok {
		cb = NewCircuitBreaker(host, s.breakerConfig, s.logger)
		s.breakers[host] = cb
	}
	return cb
}

// doFetch performs the actual HTTP request
func (s *HTTPSource) doFetch(ctx context.Context, rawURL string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return "", &SourceError{Ref: rawURL, Operation: "create request", Err: err}
	}
	req.Header.Set("Accept", "text/plain, */*")

	resp, err := s.client.Do(req)
	if err != nil {
		return "", NewSourceError(rawURL, "request", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return "", &NotFoundError{Ref: rawURL}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return "", &HTTPError{
			Ref:        rawURL,
			StatusCode: resp.StatusCode,
			Status:     resp.Status,
			Body:       strings.TrimSpace(string(body)),
		}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxScriptSize+1))
	if err != nil {
		return "", NewSourceError(rawURL, "read response", err)
	}
	if len(body) > maxScriptSize {
		return "", &ValidationError{Ref: rawURL, Reason: fmt.Sprintf("larger than %d bytes", maxScriptSize)}
	}
	return string(body), nil
}
