package numpy

import (
	"fmt"

	"go.starlark.net/starlark"
)

// toFloat converts an int or float Starlark value.
func toFloat(v starlark.Value) (float64, error) {
	switch v := v.(type) {
	case starlark.Int, starlark.Float:
		f, _ := starlark.AsFloat(v)
		return f, nil
	case starlark.Bool:
		if v {
			return 1, nil
		}
		return 0, nil
	}
	return 0, fmt.Errorf("expected a number, got %s", v.Type())
}

func isIntValue(v starlark.Value) bool {
	switch v.(type) {
	case starlark.Int, starlark.Bool:
		return true
	}
	return false
}

// toArray converts arrays, scalars and nested lists or tuples. Scalars
// become 1-element arrays with a nil shape so broadcasting treats them
// as rank 0.
func toArray(v starlark.Value) (*ndarray, error) {
	switch v := v.(type) {
	case *ndarray:
		return v, nil
	case starlark.Int, starlark.Float, starlark.Bool:
		f, err := toFloat(v)
		if err != nil {
			return nil, err
		}
		return &ndarray{shape: nil, data: []float64{f}, isInt: isIntValue(v)}, nil
	case starlark.Indexable:
		return fromSequence(v)
	}
	return nil, fmt.Errorf("cannot convert %s to an array", v.Type())
}

func fromSequence(seq starlark.Indexable) (*ndarray, error) {
	n := seq.Len()
	if n == 0 {
		return newArray([]int{0}, []float64{}, false), nil
	}

	if _, nested := rowLike(seq.Index(0)); !nested {
		data := make([]float64, n)
		isInt := true
		for i := 0; i < n; i++ {
			el := seq.Index(i)
			f, err := toFloat(el)
			if err != nil {
				return nil, fmt.Errorf("array element %d: %w", i, err)
			}
			data[i] = f
			isInt = isInt && isIntValue(el)
		}
		return newArray([]int{n}, data, isInt), nil
	}

	var data []float64
	cols := -1
	isInt := true
	for i := 0; i < n; i++ {
		row, ok := rowLike(seq.Index(i))
		if !ok {
			return nil, fmt.Errorf("setting an array element with a sequence: row %d is not a sequence", i)
		}
		r, err := toArray(row)
		if err != nil {
			return nil, err
		}
		if r.ndim() != 1 {
			return nil, fmt.Errorf("only 1-D and 2-D arrays are supported")
		}
		if cols == -1 {
			cols = r.size()
		} else if r.size() != cols {
			return nil, fmt.Errorf("inhomogeneous shape: row %d has %d elements, expected %d", i, r.size(), cols)
		}
		data = append(data, r.data...)
		isInt = isInt && r.isInt
	}
	return newArray([]int{n, cols}, data, isInt), nil
}

// rowLike reports whether v is a nested sequence (list, tuple or array).
func rowLike(v starlark.Value) (starlark.Value, bool) {
	switch v := v.(type) {
	case *starlark.List, starlark.Tuple, *ndarray:
		return v, true
	}
	return nil, false
}

// parseShape accepts an int or a tuple/list of one or two ints.
func parseShape(v starlark.Value) ([]int, error) {
	if n, err := starlark.AsInt32(v); err == nil {
		if n < 0 {
			return nil, fmt.Errorf("negative dimensions are not allowed")
		}
		return []int{n}, nil
	}
	seq, ok := v.(starlark.Indexable)
	if !ok {
		return nil, fmt.Errorf("shape must be an int or a tuple of ints, got %s", v.Type())
	}
	if seq.Len() < 1 || seq.Len() > 2 {
		return nil, fmt.Errorf("only 1-D and 2-D shapes are supported, got %d dimensions", seq.Len())
	}
	shape := make([]int, seq.Len())
	for i := range shape {
		n, err := starlark.AsInt32(seq.Index(i))
		if err != nil {
			return nil, fmt.Errorf("shape: %w", err)
		}
		if n < 0 {
			return nil, fmt.Errorf("negative dimensions are not allowed")
		}
		shape[i] = n
	}
	return shape, nil
}

func shapeSize(shape []int) int {
	n := 1
	for _, d := range shape {
		n *= d
	}
	return n
}

// result returns a scalar for rank-0 results and the array otherwise.
func result(a *ndarray) starlark.Value {
	if a.shape == nil {
		return a.scalar(a.data[0])
	}
	return a
}

// toList converts an array to nested Starlark lists.
func toList(a *ndarray) *starlark.List {
	if a.ndim() == 1 {
		elems := make([]starlark.Value, a.size())
		for i, v := range a.data {
			elems[i] = a.scalar(v)
		}
		return starlark.NewList(elems)
	}
	rows := make([]starlark.Value, a.rows())
	for i := range rows {
		rows[i] = toList(a.Index(i).(*ndarray))
	}
	return starlark.NewList(rows)
}
