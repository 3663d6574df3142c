package numpy

import (
	"fmt"

	"go.starlark.net/starlark"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

type reducer struct {
	name     string
	fn       func([]float64) float64
	keepInt  bool // Integer input gives integer output
	intOut   bool // Output is always integer (argmax)
	identity bool // Defined on empty input
}

var reducers = map[string]reducer{
	"sum":    {name: "sum", fn: floats.Sum, keepInt: true, identity: true},
	"max":    {name: "max", fn: floats.Max, keepInt: true},
	"min":    {name: "min", fn: floats.Min, keepInt: true},
	"mean":   {name: "mean", fn: func(x []float64) float64 { return stat.Mean(x, nil) }, identity: true},
	"var":    {name: "var", fn: func(x []float64) float64 { return stat.PopVariance(x, nil) }, identity: true},
	"std":    {name: "std", fn: func(x []float64) float64 { return stat.PopStdDev(x, nil) }, identity: true},
	"argmax": {name: "argmax", fn: func(x []float64) float64 { return float64(floats.MaxIdx(x)) }, intOut: true},
	"argmin": {name: "argmin", fn: func(x []float64) float64 { return float64(floats.MinIdx(x)) }, intOut: true},
}

// reduce applies r over the whole array (axis None) or along one axis.
func (r reducer) reduce(a *ndarray, axis starlark.Value, keepdims bool) (starlark.Value, error) {
	isInt := r.intOut || (r.keepInt && a.isInt)

	if axis == nil || axis == starlark.None {
		if a.size() == 0 && !r.identity {
			return nil, fmt.Errorf("%s: zero-size array to reduction operation which has no identity", r.name)
		}
		v := r.fn(a.data)
		if !keepdims {
			return (&ndarray{isInt: isInt}).scalar(v), nil
		}
		shape := make([]int, a.ndim())
		for i := range shape {
			shape[i] = 1
		}
		return newArray(shape, []float64{v}, isInt), nil
	}

	ax, err := starlark.AsInt32(axis)
	if err != nil {
		return nil, fmt.Errorf("%s: axis must be an int or None", r.name)
	}
	if ax < 0 {
		ax += a.ndim()
	}
	if ax < 0 || ax >= a.ndim() {
		return nil, fmt.Errorf("%s: axis %d is out of bounds for array of dimension %d", r.name, ax, a.ndim())
	}
	if a.ndim() == 1 {
		return r.reduce(a, starlark.None, keepdims)
	}

	rows, cols := a.rows(), a.cols()
	if (ax == 0 && rows == 0 || ax == 1 && cols == 0) && !r.identity {
		return nil, fmt.Errorf("%s: zero-size array to reduction operation which has no identity", r.name)
	}

	var out []float64
	var shape []int
	if ax == 0 {
		col := make([]float64, rows)
		out = make([]float64, cols)
		for j := 0; j < cols; j++ {
			for i := 0; i < rows; i++ {
				col[i] = a.at(i, j)
			}
			out[j] = r.fn(col)
		}
		shape = []int{cols}
		if keepdims {
			shape = []int{1, cols}
		}
	} else {
		out = make([]float64, rows)
		for i := 0; i < rows; i++ {
			out[i] = r.fn(a.data[i*cols : (i+1)*cols])
		}
		shape = []int{rows}
		if keepdims {
			shape = []int{rows, 1}
		}
	}
	return newArray(shape, out, isInt), nil
}

// builtin exposes the reducer as np.<name>(a, axis=None, keepdims=False).
func (r reducer) builtin() *starlark.Builtin {
	return starlark.NewBuiltin(r.name, r.call)
}

func (r reducer) call(thread *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var x starlark.Value
	var axis starlark.Value = starlark.None
	var keepdims bool
	if err := starlark.UnpackArgs(b.Name(), args, kwargs, "a", &x, "axis?", &axis, "keepdims?", &keepdims); err != nil {
		return nil, err
	}
	a, err := toArray(x)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", b.Name(), err)
	}
	if a.shape == nil {
		a = newArray([]int{1}, a.data, a.isInt)
	}
	return r.reduce(a, axis, keepdims)
}
