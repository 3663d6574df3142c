package interp

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"

	"github.com/livetemplate/mathwalk/internal/interp/numpy"
	"go.starlark.net/lib/json"
	"go.starlark.net/lib/math"
	"go.starlark.net/lib/time"
	"go.starlark.net/resolve"
	"go.starlark.net/starlark"
	"go.starlark.net/syntax"
)

// stepFile is the file name reported in tracebacks.
const stepFile = "step.py"

var fileOptions = &syntax.FileOptions{
	Set:             true,
	While:           true,
	TopLevelControl: true,
	GlobalReassign:  true,
	Recursion:       true,
}

// Starlark runs code in an embedded Starlark interpreter. Top-level
// bindings from one run are visible to the next, the way a notebook
// kernel keeps its namespace.
type Starlark struct {
	mu       sync.Mutex
	out      strings.Builder
	globals  starlark.StringDict
	modules  map[string]starlark.Value
	maxSteps uint64
	logger   *slog.Logger
	closed   bool
}

// NewStarlark returns an interpreter with the math, json and time modules
// importable. Other packages become importable through LoadDependency.
func NewStarlark(maxSteps uint64, logger *slog.Logger) *Starlark {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Starlark{
		globals: starlark.StringDict{},
		modules: map[string]starlark.Value{
			"math": math.Module,
			"json": json.Module,
			"time": time.Module,
		},
		maxSteps: maxSteps,
		logger:   logger,
	}
}

// LoadDependency makes name importable. numpy is the only package that
// needs loading; the standard modules are always present.
func (s *Starlark) LoadDependency(ctx context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	if _, ok := s.modules[name]; ok {
		return nil
	}
	switch name {
	case numpy.Name:
		s.modules[name] = numpy.New().Value()
	default:
		return &ModuleNotFoundError{Name: name}
	}
	s.logger.Debug("Loaded dependency", "package", name)
	return nil
}

func (s *Starlark) ResetOutput() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.out.Reset()
}

func (s *Starlark) Output() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.out.String()
}

// Run executes code. Cancelling ctx interrupts the program at its next
// execution step.
func (s *Starlark) Run(ctx context.Context, code string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}

	src, bindings, err := rewriteImports(code, s.modules)
	if err != nil {
		return &RunError{Message: err.Error()}
	}
	for name, v := range bindings {
		s.globals[name] = v
	}

	predeclared := make(starlark.StringDict, len(s.globals))
	for name, v := range s.globals {
		predeclared[name] = v
	}

	_, prog, err := starlark.SourceProgramOptions(fileOptions, stepFile, src, predeclared.Has)
	if err != nil {
		return &RunError{Message: syntaxMessage(err)}
	}

	thread := &starlark.Thread{
		Name: "step",
		Print: func(_ *starlark.Thread, msg string) {
			s.out.WriteString(msg)
			s.out.WriteByte('\n')
		},
	}
	if s.maxSteps > 0 {
		thread.SetMaxExecutionSteps(s.maxSteps)
	}

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			thread.Cancel(ctx.Err().Error())
		case <-done:
		}
	}()

	globals, err := prog.Init(thread, predeclared)
	for name, v := range globals {
		s.globals[name] = v
	}
	if err != nil {
		var evalErr *starlark.EvalError
		if errors.As(err, &evalErr) {
			s.logger.Debug("Run failed", "error", evalErr.Msg)
			return &RunError{Message: evalErr.Backtrace()}
		}
		return &RunError{Message: err.Error()}
	}
	return nil
}

// syntaxMessage formats scanner and resolver errors one per line.
func syntaxMessage(err error) string {
	var list resolve.ErrorList
	if errors.As(err, &list) {
		msgs := make([]string, len(list))
		for i, e := range list {
			msgs[i] = e.Error()
		}
		return strings.Join(msgs, "\n")
	}
	return err.Error()
}

func (s *Starlark) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.globals = nil
	return nil
}
