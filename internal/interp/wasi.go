package interp

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/imports/wasi_snapshot_preview1"
	"github.com/tetratelabs/wazero/sys"
)

// packagesMount is where loaded packages appear inside the guest.
const packagesMount = "/packages"

// WASI runs code with an interpreter compiled to WebAssembly, such as a
// WASI build of CPython. The module is compiled once; every run is a fresh
// instance invoked as `<module> -c <code>`, so nothing persists between runs.
// Loaded packages are directories under the packages dir, mounted read-only
// and placed on PYTHONPATH.
type WASI struct {
	mu          sync.Mutex
	runtime     wazero.Runtime
	compiled    wazero.CompiledModule
	wasmPath    string
	packagesDir string
	packages    []string
	out         bytes.Buffer
	logger      *slog.Logger
	closed      bool
}

// NewWASI compiles the interpreter module at wasmPath.
func NewWASI(ctx context.Context, wasmPath, packagesDir string, logger *slog.Logger) (*WASI, error) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	wasmBytes, err := os.ReadFile(wasmPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read WASM file %s: %w", wasmPath, err)
	}

	r := wazero.NewRuntimeWithConfig(ctx, wazero.NewRuntimeConfig().WithCloseOnContextDone(true))
	if _, err := wasi_snapshot_preview1.Instantiate(ctx, r); err != nil {
		r.Close(ctx)
		return nil, fmt.Errorf("failed to instantiate WASI: %w", err)
	}

	compiled, err := r.CompileModule(ctx, wasmBytes)
	if err != nil {
		r.Close(ctx)
		return nil, fmt.Errorf("failed to compile WASM module: %w", err)
	}
	if _, ok := compiled.ExportedFunctions()["_start"]; !ok {
		r.Close(ctx)
		return nil, fmt.Errorf("WASM module %s is not a WASI command (missing export '_start')", wasmPath)
	}

	return &WASI{
		runtime:     r,
		compiled:    compiled,
		wasmPath:    wasmPath,
		packagesDir: packagesDir,
		logger:      logger,
	}, nil
}

// LoadDependency mounts packagesDir/name for later runs.
func (w *WASI) LoadDependency(ctx context.Context, name string) error {
	if !packageName.MatchString(name) || strings.Contains(name, ".") {
		return fmt.Errorf("invalid package name %q", name)
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return ErrClosed
	}
	if w.packagesDir == "" {
		return &ModuleNotFoundError{Name: name}
	}
	info, err := os.Stat(filepath.Join(w.packagesDir, name))
	if err != nil || !info.IsDir() {
		return &ModuleNotFoundError{Name: name}
	}
	for _, p := range w.packages {
		if p == name {
			return nil
		}
	}
	w.packages = append(w.packages, name)
	w.logger.Debug("Mounted package", "package", name, "dir", w.packagesDir)
	return nil
}

func (w *WASI) ResetOutput() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.out.Reset()
}

func (w *WASI) Output() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.out.String()
}

// Run instantiates the interpreter once for code. Cancelling ctx
// terminates the guest.
func (w *WASI) Run(ctx context.Context, code string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return ErrClosed
	}

	var stderr bytes.Buffer
	fsConfig := wazero.NewFSConfig()
	pythonPath := make([]string, 0, len(w.packages))
	for _, p := range w.packages {
		guest := packagesMount + "/" + p
		fsConfig = fsConfig.WithReadOnlyDirMount(filepath.Join(w.packagesDir, p), guest)
		pythonPath = append(pythonPath, guest)
	}

	moduleConfig := wazero.NewModuleConfig().
		WithName("").
		WithStdout(&w.out).
		WithStderr(&stderr).
		WithArgs("python", "-c", code).
		WithEnv("PYTHONPATH", strings.Join(pythonPath, ":")).
		WithEnv("PYTHONDONTWRITEBYTECODE", "1").
		WithFSConfig(fsConfig).
		WithSysWalltime().
		WithSysNanotime()

	mod, err := w.runtime.InstantiateModule(ctx, w.compiled, moduleConfig)
	if mod != nil {
		_ = mod.Close(ctx)
	}
	if err == nil {
		return nil
	}
	if ctx.Err() != nil {
		return &RunError{Message: fmt.Sprintf("Execution stopped: %v", ctx.Err())}
	}
	var exitErr *sys.ExitError
	if errors.As(err, &exitErr) {
		msg := strings.TrimRight(stderr.String(), "\n")
		if msg == "" {
			msg = fmt.Sprintf("exit status %d", exitErr.ExitCode())
		}
		return &RunError{Message: msg}
	}
	return fmt.Errorf("WASM run failed [%s]: %w", w.wasmPath, err)
}

// Close releases the compiled module and the wazero runtime.
func (w *WASI) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return nil
	}
	w.closed = true
	return w.runtime.Close(context.Background())
}
