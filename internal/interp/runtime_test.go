package interp

import (
	"context"
	"testing"

	"github.com/livetemplate/mathwalk/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewFactory(t *testing.T) {
	ctx := context.Background()

	factory, err := NewFactory(config.BackendStarlark, Options{})
	require.NoError(t, err)
	rt, err := factory(ctx)
	require.NoError(t, err)
	assert.IsType(t, &Starlark{}, rt)
	require.NoError(t, rt.Close())

	factory, err = NewFactory("", Options{})
	require.NoError(t, err, "empty backend selects starlark")
	assert.NotNil(t, factory)

	_, err = NewFactory("ruby", Options{})
	assert.EqualError(t, err, `unknown runtime backend "ruby"`)

	_, err = NewFactory(config.BackendWASI, Options{})
	assert.ErrorContains(t, err, "wasm_module")
}

func TestNewFactoryExecRequiresOptIn(t *testing.T) {
	config.SetAllowExec(false)
	t.Cleanup(func() { config.SetAllowExec(false) })

	_, err := NewFactory(config.BackendExec, Options{})
	assert.ErrorIs(t, err, ErrExecDisabled)

	config.SetAllowExec(true)
	factory, err := NewFactory(config.BackendExec, Options{Python: "python3"})
	require.NoError(t, err)
	rt, err := factory(context.Background())
	require.NoError(t, err)
	assert.IsType(t, &Exec{}, rt)
	require.NoError(t, rt.Close())
}

func TestOptionsFromConfig(t *testing.T) {
	rs := config.RuntimeSettings{
		Backend:     config.BackendWASI,
		MaxSteps:    500,
		WasmModule:  "runtime/python.wasm",
		PackagesDir: "/opt/packages",
	}
	opts := OptionsFromConfig(rs, "/lessons", nil)

	assert.Equal(t, uint64(500), opts.MaxSteps)
	assert.Equal(t, "python3", opts.Python)
	assert.Equal(t, "/lessons", opts.Dir)
	assert.Equal(t, "/lessons/runtime/python.wasm", opts.WasmModule)
	assert.Equal(t, "/opt/packages", opts.PackagesDir)
}

func TestRunErrorMessage(t *testing.T) {
	err := &RunError{Message: "Error: boom"}
	assert.Equal(t, "Error: boom", err.Error())
}
