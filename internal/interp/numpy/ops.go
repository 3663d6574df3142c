package numpy

import (
	"fmt"
	"math"

	"go.starlark.net/starlark"
	"go.starlark.net/syntax"
)

// padded returns rows and columns with lower ranks treated as leading 1s.
func padded(shape []int) (int, int) {
	switch len(shape) {
	case 0:
		return 1, 1
	case 1:
		return 1, shape[0]
	}
	return shape[0], shape[1]
}

// broadcastShape applies numpy's broadcasting rule to two shapes of rank 0-2.
func broadcastShape(x, y []int) ([]int, error) {
	xr, xc := padded(x)
	yr, yc := padded(y)
	dim := func(a, b int) (int, bool) {
		switch {
		case a == b:
			return a, true
		case a == 1:
			return b, true
		case b == 1:
			return a, true
		}
		return 0, false
	}
	r, okR := dim(xr, yr)
	c, okC := dim(xc, yc)
	if !okR || !okC {
		return nil, fmt.Errorf("operands could not be broadcast together with shapes %s %s", shapeRepr(x), shapeRepr(y))
	}
	switch max(len(x), len(y)) {
	case 0:
		return nil, nil
	case 1:
		return []int{c}, nil
	}
	return []int{r, c}, nil
}

func shapeRepr(shape []int) string {
	if len(shape) == 0 {
		return "()"
	}
	return shapeString(shape)
}

// broadcast2 combines x and y element by element after broadcasting.
func broadcast2(x, y *ndarray, isInt bool, fn func(a, b float64) (float64, error)) (*ndarray, error) {
	shape, err := broadcastShape(x.shape, y.shape)
	if err != nil {
		return nil, err
	}
	xr, xc := padded(x.shape)
	yr, yc := padded(y.shape)
	r, c := padded(shape)

	data := make([]float64, r*c)
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			xi, xj := pick(i, xr), pick(j, xc)
			yi, yj := pick(i, yr), pick(j, yc)
			v, err := fn(x.data[xi*xc+xj], y.data[yi*yc+yj])
			if err != nil {
				return nil, err
			}
			data[i*c+j] = v
		}
	}
	return &ndarray{shape: shape, data: data, isInt: isInt}, nil
}

func pick(i, n int) int {
	if n == 1 {
		return 0
	}
	return i
}

// elementwise implements the arithmetic operators.
func elementwise(op syntax.Token, x, y *ndarray) (starlark.Value, error) {
	isInt := x.isInt && y.isInt && op != syntax.SLASH
	var fn func(a, b float64) (float64, error)
	switch op {
	case syntax.PLUS:
		fn = func(a, b float64) (float64, error) { return a + b, nil }
	case syntax.MINUS:
		fn = func(a, b float64) (float64, error) { return a - b, nil }
	case syntax.STAR:
		fn = func(a, b float64) (float64, error) { return a * b, nil }
	case syntax.SLASH:
		fn = func(a, b float64) (float64, error) { return a / b, nil }
	case syntax.SLASHSLASH:
		fn = func(a, b float64) (float64, error) {
			if b == 0 && isInt {
				return 0, fmt.Errorf("integer division by zero")
			}
			return math.Floor(a / b), nil
		}
	case syntax.PERCENT:
		fn = func(a, b float64) (float64, error) {
			if b == 0 && isInt {
				return 0, fmt.Errorf("integer modulo by zero")
			}
			return a - b*math.Floor(a/b), nil
		}
	default:
		return nil, fmt.Errorf("unsupported operator %s for numpy.ndarray", op)
	}
	out, err := broadcast2(x, y, isInt, fn)
	if err != nil {
		return nil, err
	}
	return result(out), nil
}

// mapArray applies fn to every element.
func mapArray(a *ndarray, fn func(float64) float64, isInt bool) *ndarray {
	data := make([]float64, len(a.data))
	for i, v := range a.data {
		data[i] = fn(v)
	}
	return &ndarray{shape: append([]int(nil), a.shape...), data: data, isInt: isInt}
}

// ufunc wraps a float function as a builtin accepting scalars or arrays.
func ufunc(name string, fn func(float64) float64) *starlark.Builtin {
	return starlark.NewBuiltin(name, func(thread *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
		var x starlark.Value
		if err := starlark.UnpackPositionalArgs(b.Name(), args, kwargs, 1, &x); err != nil {
			return nil, err
		}
		a, err := toArray(x)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", b.Name(), err)
		}
		return result(mapArray(a, fn, false)), nil
	})
}

// binaryFunc wraps a two-argument float function with broadcasting.
func binaryFunc(name string, keepInt bool, fn func(a, b float64) float64) *starlark.Builtin {
	return starlark.NewBuiltin(name, func(thread *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
		var x, y starlark.Value
		if err := starlark.UnpackPositionalArgs(b.Name(), args, kwargs, 2, &x, &y); err != nil {
			return nil, err
		}
		ax, err := toArray(x)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", b.Name(), err)
		}
		ay, err := toArray(y)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", b.Name(), err)
		}
		out, err := broadcast2(ax, ay, keepInt && ax.isInt && ay.isInt, func(a, b float64) (float64, error) {
			return fn(a, b), nil
		})
		if err != nil {
			return nil, fmt.Errorf("%s: %w", b.Name(), err)
		}
		return result(out), nil
	})
}

// roundHalfEven rounds to the given decimals the way numpy does.
func roundHalfEven(v float64, decimals int) float64 {
	if decimals == 0 {
		return math.RoundToEven(v)
	}
	p := math.Pow(10, float64(decimals))
	return math.RoundToEven(v*p) / p
}
