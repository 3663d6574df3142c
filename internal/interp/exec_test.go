package interp

import (
	"context"
	"os/exec"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func requirePython(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath("python3"); err != nil {
		t.Skip("python3 not available")
	}
}

func TestExecRun(t *testing.T) {
	requirePython(t)
	rt := NewExec("", t.TempDir(), nil)
	defer rt.Close()

	out, err := run(t, rt, "print(2 + 2)")
	require.NoError(t, err)
	assert.Equal(t, "4\n", out)

	_, err = run(t, rt, "x = 1")
	require.NoError(t, err)
	_, err = run(t, rt, "print(x)")
	var runErr *RunError
	require.ErrorAs(t, err, &runErr, "each run is a fresh process")
	assert.Contains(t, runErr.Message, "NameError")
}

func TestExecError(t *testing.T) {
	requirePython(t)
	rt := NewExec("python3", "", nil)
	defer rt.Close()

	out, err := run(t, rt, "print('partial')\nraise ValueError('bad input')")
	var runErr *RunError
	require.ErrorAs(t, err, &runErr)
	assert.Contains(t, runErr.Message, "ValueError: bad input")
	assert.Equal(t, "partial\n", out)
}

func TestExecLoadDependency(t *testing.T) {
	requirePython(t)
	rt := NewExec("", "", nil)
	defer rt.Close()

	require.NoError(t, rt.LoadDependency(context.Background(), "json"))

	err := rt.LoadDependency(context.Background(), "no_such_package_xyz")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "No module named")

	err = rt.LoadDependency(context.Background(), "os; import sys")
	assert.ErrorContains(t, err, "invalid package name")
}

func TestExecMissingInterpreter(t *testing.T) {
	rt := NewExec("definitely-not-a-python-binary", "", nil)
	defer rt.Close()

	err := rt.Run(context.Background(), "print(1)")
	require.Error(t, err)
	var runErr *RunError
	assert.NotErrorAs(t, err, &runErr, "a missing binary is a runtime failure, not a code error")
}
