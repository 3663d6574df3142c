// Package tutor implements the per-session tutorial controller: step
// navigation, interpreter bootstrap and code execution.
package tutor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/livetemplate/mathwalk"
	"github.com/livetemplate/mathwalk/internal/interp"
)

var (
	// ErrNotReady is returned by Run before the interpreter is loaded.
	ErrNotReady = errors.New("runtime is not ready")
	// ErrBusy is returned by Run while another run is in progress.
	ErrBusy = errors.New("a run is already in progress")
)

// DefaultHighlightDuration is how long error output stays highlighted.
const DefaultHighlightDuration = 2 * time.Second

// Options configures a Controller.
type Options struct {
	Registry *mathwalk.Registry
	View     View
	Fetcher  mathwalk.Fetcher // Resolves script references; may be nil when every step is inline
	Factory  interp.Factory
	Packages []string // Loaded into the interpreter before it is marked ready

	RunTimeout        time.Duration // 0 = no limit
	HighlightDuration time.Duration // 0 = DefaultHighlightDuration
	Logger            *slog.Logger
}

// Controller owns one session's navigation state and interpreter.
// All state is guarded by mu, and view calls are made while holding it so
// the view sees updates in order. Fetches and runs happen outside the lock.
type Controller struct {
	reg       *mathwalk.Registry
	view      View
	fetcher   mathwalk.Fetcher
	factory   interp.Factory
	packages  []string
	timeout   time.Duration
	highlight time.Duration
	logger    *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu         sync.Mutex
	current    int
	started    bool
	ready      bool
	busy       bool
	closed     bool
	runtime    interp.Runtime
	output     Output
	failure    *Output // bootstrap failure, shown in place of the run prompt
	outputGen  uint64
	fetchGen   uint64
	revertTime *time.Timer
}

// New creates a controller. Nothing is rendered until GoTo or Start is called.
// Cancelling ctx has the same effect on in-flight work as Close.
func New(ctx context.Context, opts Options) (*Controller, error) {
	if opts.Registry == nil {
		return nil, errors.New("tutor: registry is required")
	}
	if opts.View == nil {
		return nil, errors.New("tutor: view is required")
	}
	if opts.Factory == nil {
		return nil, errors.New("tutor: runtime factory is required")
	}
	if opts.HighlightDuration <= 0 {
		opts.HighlightDuration = DefaultHighlightDuration
	}
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.DiscardHandler)
	}

	ctx, cancel := context.WithCancel(ctx)
	return &Controller{
		reg:       opts.Registry,
		view:      opts.View,
		fetcher:   opts.Fetcher,
		factory:   opts.Factory,
		packages:  opts.Packages,
		timeout:   opts.RunTimeout,
		highlight: opts.HighlightDuration,
		logger:    opts.Logger.With("component", "tutor"),
		ctx:       ctx,
		cancel:    cancel,
	}, nil
}

// State is a snapshot of the controller, for tests and diagnostics.
type State struct {
	Current int
	Ready   bool
	Busy    bool
	Output  Output
}

func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return State{Current: c.current, Ready: c.ready, Busy: c.busy, Output: c.output}
}

// setOutput records and renders o. Callers hold mu.
func (c *Controller) setOutput(o Output) {
	c.outputGen++
	c.output = o
	c.view.RenderOutput(o)
}

// Close cancels in-flight fetches and runs, waits for them, and closes the
// interpreter. It is safe to call more than once.
func (c *Controller) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.cancel()
	if c.revertTime != nil {
		c.revertTime.Stop()
	}
	c.mu.Unlock()

	c.wg.Wait()

	c.mu.Lock()
	rt := c.runtime
	c.runtime = nil
	c.ready = false
	c.mu.Unlock()

	if rt != nil {
		return rt.Close()
	}
	return nil
}

// Start bootstraps the interpreter in the background. Only the first call
// has an effect; a failed bootstrap is not retried.
func (c *Controller) Start() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.started || c.closed {
		return
	}
	c.started = true
	c.view.SetReady(false)
	c.setOutput(LoadingOutput())

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		c.bootstrap()
	}()
}

func (c *Controller) bootstrap() {
	start := time.Now()
	rt, err := c.factory(c.ctx)
	if err == nil {
		for _, pkg := range c.packages {
			if err = rt.LoadDependency(c.ctx, pkg); err != nil {
				break
			}
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		if rt != nil {
			rt.Close()
		}
		return
	}
	if err != nil {
		if rt != nil {
			rt.Close()
		}
		c.logger.Error("Runtime failed to load", "error", err)
		c.failure = &Output{Text: fmt.Sprintf(msgRuntimeFailed, err), Kind: KindError}
		c.setOutput(*c.failure)
		return
	}

	c.runtime = rt
	c.ready = true
	c.logger.Debug("Runtime ready", "packages", c.packages, "elapsed", time.Since(start))
	c.view.SetReady(true)
	c.setOutput(Output{Text: msgRuntimeReady, Kind: KindStatus})
}
