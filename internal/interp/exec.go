package interp

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"regexp"
	"strings"
	"sync"
)

var packageName = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_.]*$`)

// Exec runs each piece of code in a fresh host interpreter process
// (python3 by default). Nothing persists between runs. Only enabled with
// --allow-exec since the code runs with the server's privileges.
type Exec struct {
	mu     sync.Mutex
	python string
	dir    string
	out    bytes.Buffer
	logger *slog.Logger
	closed bool
}

// NewExec returns an Exec runtime. dir is the working directory for runs.
func NewExec(python, dir string, logger *slog.Logger) *Exec {
	if python == "" {
		python = "python3"
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Exec{python: python, dir: dir, logger: logger}
}

// LoadDependency checks that the host interpreter can import name.
func (e *Exec) LoadDependency(ctx context.Context, name string) error {
	if !packageName.MatchString(name) {
		return fmt.Errorf("invalid package name %q", name)
	}
	e.mu.Lock()
	closed := e.closed
	e.mu.Unlock()
	if closed {
		return ErrClosed
	}

	_, stderr, err := e.command(ctx, "import "+name)
	if err != nil {
		if msg := lastLine(stderr); msg != "" {
			return errors.New(msg)
		}
		return fmt.Errorf("%s: %w", e.python, err)
	}
	return nil
}

func (e *Exec) ResetOutput() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.out.Reset()
}

func (e *Exec) Output() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.out.String()
}

func (e *Exec) Run(ctx context.Context, code string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return ErrClosed
	}

	stdout, stderr, err := e.command(ctx, code)
	e.out.Write(stdout)
	if err == nil {
		return nil
	}
	if ctx.Err() != nil {
		return &RunError{Message: fmt.Sprintf("Execution stopped: %v", ctx.Err())}
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return &RunError{Message: strings.TrimRight(string(stderr), "\n")}
	}
	return fmt.Errorf("%s: %w", e.python, err)
}

func (e *Exec) command(ctx context.Context, code string) ([]byte, []byte, error) {
	cmd := exec.CommandContext(ctx, e.python, "-c", code)
	cmd.Dir = e.dir
	cmd.Env = append(os.Environ(), "PYTHONUNBUFFERED=1", "PYTHONDONTWRITEBYTECODE=1")
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	e.logger.Debug("Running interpreter", "python", e.python, "bytes", len(code))
	err := cmd.Run()
	return stdout.Bytes(), stderr.Bytes(), err
}

func (e *Exec) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.closed = true
	return nil
}

// lastLine returns the final non-empty line, which for a Python traceback
// is the exception message.
func lastLine(b []byte) string {
	lines := strings.Split(strings.TrimSpace(string(b)), "\n")
	return strings.TrimSpace(lines[len(lines)-1])
}
