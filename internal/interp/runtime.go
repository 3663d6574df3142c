// Package interp provides the interpreters that execute lesson code.
//
// A Runtime is owned by one session. Output written by the code is captured
// in a buffer that the caller resets before each run and reads afterwards.
package interp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/livetemplate/mathwalk/internal/config"
)

// Runtime executes code and captures what it prints.
type Runtime interface {
	// LoadDependency makes a package importable by later runs.
	LoadDependency(ctx context.Context, name string) error
	// ResetOutput clears the captured output.
	ResetOutput()
	// Run executes code. Globals persist between runs where the backend allows it.
	Run(ctx context.Context, code string) error
	// Output returns everything printed since the last ResetOutput.
	Output() string
	Close() error
}

// Factory creates a fresh Runtime.
type Factory func(ctx context.Context) (Runtime, error)

var (
	// ErrExecDisabled is returned when the exec backend is selected without --allow-exec.
	ErrExecDisabled = errors.New("the exec runtime is disabled; restart with --allow-exec")
	// ErrClosed is returned by a Runtime used after Close.
	ErrClosed = errors.New("runtime is closed")
)

// Options configures the backends. Fields a backend does not use are ignored.
type Options struct {
	MaxSteps    uint64 // starlark: execution step budget, 0 = unlimited
	Python      string // exec: interpreter binary
	Dir         string // exec: working directory
	WasmModule  string // wasi: interpreter module path
	PackagesDir string // wasi: directory of mountable packages
	Logger      *slog.Logger
}

// OptionsFromConfig builds Options from runtime settings. Relative paths
// resolve against root.
func OptionsFromConfig(rs config.RuntimeSettings, root string, logger *slog.Logger) Options {
	opts := Options{
		MaxSteps:    rs.MaxSteps,
		Python:      rs.GetPython(),
		Dir:         root,
		WasmModule:  rs.WasmModule,
		PackagesDir: rs.PackagesDir,
		Logger:      logger,
	}
	if opts.WasmModule != "" && !filepath.IsAbs(opts.WasmModule) {
		opts.WasmModule = filepath.Join(root, opts.WasmModule)
	}
	if opts.PackagesDir != "" && !filepath.IsAbs(opts.PackagesDir) {
		opts.PackagesDir = filepath.Join(root, opts.PackagesDir)
	}
	return opts
}

// NewFactory returns a Factory for the named backend.
func NewFactory(backend string, opts Options) (Factory, error) {
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.DiscardHandler)
	}
	logger := opts.Logger.With("component", "interp", "backend", backend)

	switch backend {
	case "", config.BackendStarlark:
		return func(ctx context.Context) (Runtime, error) {
			return NewStarlark(opts.MaxSteps, logger), nil
		}, nil
	case config.BackendExec:
		if !config.IsExecAllowed() {
			return nil, ErrExecDisabled
		}
		return func(ctx context.Context) (Runtime, error) {
			return NewExec(opts.Python, opts.Dir, logger), nil
		}, nil
	case config.BackendWASI:
		if opts.WasmModule == "" {
			return nil, fmt.Errorf("wasi runtime requires runtime.wasm_module")
		}
		return func(ctx context.Context) (Runtime, error) {
			return NewWASI(ctx, opts.WasmModule, opts.PackagesDir, logger)
		}, nil
	}
	return nil, fmt.Errorf("unknown runtime backend %q", backend)
}

// RunError is a failure of the executed code itself, as opposed to a
// failure of the runtime. Message is shown to the learner verbatim.
type RunError struct {
	Message string
}

func (e *RunError) Error() string {
	return e.Message
}
