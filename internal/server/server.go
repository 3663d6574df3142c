// Package server hosts a tutorial over HTTP: the page shell, its assets and
// one WebSocket session per open page.
package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"html/template"
	"log/slog"
	"net/http"
	"strings"
	"sync"

	"golang.org/x/time/rate"

	"github.com/livetemplate/mathwalk"
	"github.com/livetemplate/mathwalk/internal/assets"
	"github.com/livetemplate/mathwalk/internal/config"
	"github.com/livetemplate/mathwalk/internal/interp"
	"github.com/livetemplate/mathwalk/internal/source"
	"github.com/livetemplate/mathwalk/internal/tutor"
)

// lesson is everything derived from the lesson file. It is replaced as a
// whole on reload; sessions keep the one they started with.
type lesson struct {
	tutorial *mathwalk.Tutorial
	registry *mathwalk.Registry
	factory  interp.Factory
	packages []string
}

// Server is the mathwalk tutorial server.
type Server struct {
	config   *config.Config
	lessons  string // Lesson file or directory
	base     *slog.Logger
	logger   *slog.Logger
	resolver *source.Resolver
	page     *template.Template

	ctx         context.Context
	cancel      context.CancelFunc
	limiterDone <-chan struct{}
	handler     http.Handler

	mu     sync.RWMutex
	lesson *lesson

	connMu   sync.RWMutex
	sessions map[*Session]struct{}
	wg       sync.WaitGroup

	watcher   *Watcher
	closeOnce sync.Once
	closeErr  error
}

// New loads the lessons at path and prepares a server for them.
func New(cfg *config.Config, path string, logger *slog.Logger) (*Server, error) {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	page, err := template.New("index").Parse(assets.IndexTemplate())
	if err != nil {
		return nil, fmt.Errorf("failed to parse page template: %w", err)
	}

	s := &Server{
		config:   cfg,
		lessons:  path,
		base:     logger,
		logger:   logger.With("component", "server"),
		page:     page,
		sessions: make(map[*Session]struct{}),
	}

	l, err := s.load()
	if err != nil {
		return nil, err
	}
	s.lesson = l
	s.resolver = source.NewResolver(l.tutorial.Root, source.Options{
		Timeout:  cfg.Source.GetTimeout(),
		CacheTTL: cfg.Source.GetCacheTTL(),
		Retry:    source.DefaultRetryConfig(),
		Logger:   logger,
	})

	s.ctx, s.cancel = context.WithCancel(context.Background())
	limit, done := RateLimitMiddleware(s.ctx, s.logger,
		cfg.RateLimit.GetRequestsPerIP(),
		int(2*cfg.RateLimit.GetRequestsPerIP()),
		cfg.RateLimit.GetMaxTrackedIPs())
	s.limiterDone = done
	s.handler = SecurityHeadersMiddleware()(limit(WithCompression(http.HandlerFunc(s.ServeHTTP))))

	return s, nil
}

// load parses the lesson file and resolves the interpreter backend: the
// tutorial's own runtime and packages win over the configured ones.
func (s *Server) load() (*lesson, error) {
	tut, err := mathwalk.Load(s.lessons)
	if err != nil {
		return nil, err
	}
	reg, err := tut.Registry()
	if err != nil {
		return nil, fmt.Errorf("%s: %w", tut.SourceFile, err)
	}

	backend, packages := s.config.Runtime.Resolve(tut.Runtime, tut.Packages)
	factory, err := interp.NewFactory(backend, interp.OptionsFromConfig(s.config.Runtime, tut.Root, s.base))
	if err != nil {
		return nil, err
	}

	return &lesson{tutorial: tut, registry: reg, factory: factory, packages: packages}, nil
}

func (s *Server) current() *lesson {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lesson
}

// Tutorial returns the tutorial currently being served.
func (s *Server) Tutorial() *mathwalk.Tutorial {
	return s.current().tutorial
}

// Handler returns the server wrapped in its middleware.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// ServeHTTP routes requests without middleware.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch {
	case r.URL.Path == "/ws":
		s.serveWebSocket(w, r)
	case r.URL.Path == "/healthz":
		s.serveHealth(w, r)
	case strings.HasPrefix(r.URL.Path, "/assets/"):
		s.serveAsset(w, r)
	case r.URL.Path == "/":
		s.serveIndex(w, r)
	default:
		// There is only one page.
		http.Redirect(w, r, "/", http.StatusSeeOther)
	}
}

// pageData fills the page template. The first step is rendered server-side
// so the page is readable before the WebSocket connects.
type pageData struct {
	Title       string
	MinHeight   int
	MaxHeight   int
	Step        tutor.StepView
	Explanation template.HTML
	Code        string
	Output      tutor.Output
}

func (s *Server) serveIndex(w http.ResponseWriter, r *http.Request) {
	l := s.current()
	step := l.registry.Get(0)

	title := l.tutorial.Title
	if title == "" {
		title = s.config.Title
	}

	data := pageData{
		Title:     title,
		MinHeight: s.config.Output.MinHeight,
		MaxHeight: s.config.Output.MaxHeight,
		Step:      tutor.NewStepView(l.registry, 0),
		// Lesson explanations are trusted author markup.
		Explanation: template.HTML(step.Explanation),
		Output:      tutor.LoadingOutput(),
	}
	if step.HasInlineCode() {
		data.Code = step.Code
	}

	var buf bytes.Buffer
	if err := s.page.Execute(&buf, data); err != nil {
		s.logger.Error("Failed to render page", "error", err)
		http.Error(w, "Failed to render page", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write(buf.Bytes())
}

// serveAsset serves embedded client assets.
func (s *Server) serveAsset(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/assets/")

	var (
		body []byte
		err  error
	)
	switch path {
	case "mathwalk.js":
		body, err = assets.GetClientJS()
		w.Header().Set("Content-Type", "application/javascript")
	case "mathwalk.css":
		body, err = assets.GetClientCSS()
		w.Header().Set("Content-Type", "text/css")
	default:
		http.NotFound(w, r)
		return
	}
	if err != nil {
		http.Error(w, "Asset not found", http.StatusNotFound)
		return
	}
	w.Write(body)
}

func (s *Server) serveHealth(w http.ResponseWriter, r *http.Request) {
	l := s.current()
	s.connMu.RLock()
	n := len(s.sessions)
	s.connMu.RUnlock()

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"status":   "ok",
		"steps":    l.registry.Count(),
		"sessions": n,
	})
}

// serveWebSocket runs one tutorial session for the lifetime of the connection.
func (s *Server) serveWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("Failed to upgrade connection", "error", err)
		return
	}

	l := s.current()
	sess, err := newSession(s.ctx, conn, tutor.Options{
		Registry:          l.registry,
		Fetcher:           s.resolver,
		Factory:           l.factory,
		Packages:          l.packages,
		RunTimeout:        s.config.Runtime.GetRunTimeout(),
		HighlightDuration: s.config.Output.GetErrorHighlight(),
		Logger:            s.base,
	}, s.runLimiter(), s.base)
	if err != nil {
		s.logger.Error("Failed to start session", "error", err)
		conn.Close()
		return
	}

	if !s.register(sess) {
		sess.close()
		return
	}
	defer s.wg.Done()
	defer func() {
		s.unregister(sess)
		sess.close()
	}()

	sess.serve()
}

// runLimiter returns a fresh per-session limiter for run requests. A zero
// rate disables limiting.
func (s *Server) runLimiter() *rate.Limiter {
	rl := s.config.RateLimit
	if rl.RunsPerSecond <= 0 {
		return rate.NewLimiter(rate.Inf, 0)
	}
	burst := rl.Burst
	if burst < 1 {
		burst = 1
	}
	return rate.NewLimiter(rate.Limit(rl.RunsPerSecond), burst)
}

// register tracks sess, or reports false once Close has begun.
func (s *Server) register(sess *Session) bool {
	s.connMu.Lock()
	defer s.connMu.Unlock()
	if s.ctx.Err() != nil {
		return false
	}
	s.wg.Add(1)
	s.sessions[sess] = struct{}{}
	s.logger.Debug("Session registered", "active", len(s.sessions))
	return true
}

func (s *Server) unregister(sess *Session) {
	s.connMu.Lock()
	defer s.connMu.Unlock()
	delete(s.sessions, sess)
	s.logger.Debug("Session unregistered", "active", len(s.sessions))
}

// SessionCount returns the number of open sessions.
func (s *Server) SessionCount() int {
	s.connMu.RLock()
	defer s.connMu.RUnlock()
	return len(s.sessions)
}

// Reload re-reads the lessons and tells every open page to reload. When the
// lessons no longer parse, the previous version keeps being served.
func (s *Server) Reload(changed string) error {
	l, err := s.load()
	if err != nil {
		return fmt.Errorf("failed to reload lessons: %w", err)
	}

	s.mu.Lock()
	s.lesson = l
	s.mu.Unlock()

	s.resolver.Invalidate()
	s.BroadcastReload(changed)
	return nil
}

// BroadcastReload sends a reload message to all connected pages.
func (s *Server) BroadcastReload(filePath string) {
	s.connMu.RLock()
	defer s.connMu.RUnlock()

	if len(s.sessions) == 0 {
		return
	}

	s.logger.Info("Broadcasting reload", "file", filePath, "sessions", len(s.sessions))
	for sess := range s.sessions {
		sess.reload(filePath)
	}
}

// EnableWatch reloads the lessons when a file under the lesson directory changes.
func (s *Server) EnableWatch() error {
	root := s.current().tutorial.Root
	watcher, err := NewWatcher(root, func(filePath string) error {
		s.logger.Info("File changed", "file", filePath)
		return s.Reload(filePath)
	}, s.base)
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}

	s.watcher = watcher
	s.watcher.Start()

	s.logger.Info("File watcher started", "dir", root)
	return nil
}

// Close stops the watcher, ends every session and waits for them. It is
// safe to call more than once.
func (s *Server) Close() error {
	s.closeOnce.Do(func() {
		if s.watcher != nil {
			s.closeErr = s.watcher.Stop()
		}

		s.cancel()
		s.connMu.RLock()
		for sess := range s.sessions {
			// Unblocks the session's read loop.
			sess.conn.Close()
		}
		s.connMu.RUnlock()

		s.wg.Wait()
		<-s.limiterDone
		s.resolver.Close()
	})
	return s.closeErr
}
