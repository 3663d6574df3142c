// Package numpy is a Starlark module offering the slice of numpy that the
// neural-network lessons use. Arrays are one or two dimensional, stored row
// major as float64, and computed with gonum.
package numpy

import (
	"fmt"
	"sort"

	"go.starlark.net/starlark"
	"go.starlark.net/syntax"
)

// ndarray is a 1-D or 2-D numeric array. isInt tracks the dtype so integer
// inputs print and reduce like numpy's int64.
type ndarray struct {
	shape  []int
	data   []float64
	isInt  bool
	frozen bool
}

var (
	_ starlark.Value     = (*ndarray)(nil)
	_ starlark.Mapping   = (*ndarray)(nil)
	_ starlark.HasSetKey = (*ndarray)(nil)
	_ starlark.Sliceable = (*ndarray)(nil)
	_ starlark.Iterable  = (*ndarray)(nil)
	_ starlark.HasBinary = (*ndarray)(nil)
	_ starlark.HasUnary  = (*ndarray)(nil)
	_ starlark.HasAttrs  = (*ndarray)(nil)
)

func newArray(shape []int, data []float64, isInt bool) *ndarray {
	return &ndarray{shape: shape, data: data, isInt: isInt}
}

func (a *ndarray) ndim() int { return len(a.shape) }
func (a *ndarray) size() int { return len(a.data) }

func (a *ndarray) rows() int { return a.shape[0] }

func (a *ndarray) cols() int {
	if len(a.shape) == 1 {
		return a.shape[0]
	}
	return a.shape[1]
}

func (a *ndarray) at(i, j int) float64 { return a.data[i*a.cols()+j] }

func (a *ndarray) scalar(v float64) starlark.Value {
	if a.isInt {
		return starlark.MakeInt64(int64(v))
	}
	return starlark.Float(v)
}

func (a *ndarray) copyArray() *ndarray {
	data := make([]float64, len(a.data))
	copy(data, a.data)
	return newArray(append([]int(nil), a.shape...), data, a.isInt)
}

func (a *ndarray) String() string        { return format(a) }
func (a *ndarray) Type() string          { return "numpy.ndarray" }
func (a *ndarray) Freeze()               { a.frozen = true }
func (a *ndarray) Truth() starlark.Bool  { return a.size() > 0 }
func (a *ndarray) Hash() (uint32, error) { return 0, fmt.Errorf("unhashable type: numpy.ndarray") }

// Len implements starlark.Indexable along the first axis.
func (a *ndarray) Len() int { return a.shape[0] }

// Index returns an element of a 1-D array or a row view of a 2-D array.
func (a *ndarray) Index(i int) starlark.Value {
	if a.ndim() == 1 {
		return a.scalar(a.data[i])
	}
	c := a.cols()
	row := newArray([]int{c}, a.data[i*c:(i+1)*c:(i+1)*c], a.isInt)
	row.frozen = a.frozen
	return row
}

// Get implements a[i] and a[i, j].
func (a *ndarray) Get(k starlark.Value) (starlark.Value, bool, error) {
	switch k := k.(type) {
	case starlark.Int:
		i, err := a.axisIndex(k, 0)
		if err != nil {
			return nil, false, err
		}
		return a.Index(i), true, nil
	case starlark.Tuple:
		i, j, err := a.pairIndex(k)
		if err != nil {
			return nil, false, err
		}
		return a.scalar(a.at(i, j)), true, nil
	}
	return nil, false, fmt.Errorf("array indices must be integers or tuples of integers, not %s", k.Type())
}

// SetKey implements a[i] = v and a[i, j] = v.
func (a *ndarray) SetKey(k, v starlark.Value) error {
	if a.frozen {
		return fmt.Errorf("cannot assign to element of frozen array")
	}
	switch k := k.(type) {
	case starlark.Int:
		i, err := a.axisIndex(k, 0)
		if err != nil {
			return err
		}
		if a.ndim() == 1 {
			f, err := toFloat(v)
			if err != nil {
				return err
			}
			a.data[i] = a.cast(f)
			return nil
		}
		row, err := toArray(v)
		if err != nil {
			return err
		}
		c := a.cols()
		if row.ndim() != 1 || row.size() != c {
			return fmt.Errorf("could not broadcast input array of shape %s into shape (%d,)", shapeString(row.shape), c)
		}
		for j, f := range row.data {
			a.data[i*c+j] = a.cast(f)
		}
		return nil
	case starlark.Tuple:
		i, j, err := a.pairIndex(k)
		if err != nil {
			return err
		}
		f, err := toFloat(v)
		if err != nil {
			return err
		}
		a.data[i*a.cols()+j] = a.cast(f)
		return nil
	}
	return fmt.Errorf("array indices must be integers or tuples of integers, not %s", k.Type())
}

func (a *ndarray) cast(f float64) float64 {
	if a.isInt {
		return float64(int64(f))
	}
	return f
}

func (a *ndarray) axisIndex(k starlark.Value, axis int) (int, error) {
	i, err := starlark.AsInt32(k)
	if err != nil {
		return 0, fmt.Errorf("array index: %w", err)
	}
	n := a.shape[axis]
	orig := i
	if i < 0 {
		i += n
	}
	if i < 0 || i >= n {
		return 0, fmt.Errorf("index %d is out of bounds for axis %d with size %d", orig, axis, n)
	}
	return i, nil
}

func (a *ndarray) pairIndex(k starlark.Tuple) (int, int, error) {
	if len(k) != a.ndim() || len(k) != 2 {
		return 0, 0, fmt.Errorf("too many indices for array: array is %d-dimensional, but %d were indexed", a.ndim(), len(k))
	}
	i, err := a.axisIndex(k[0], 0)
	if err != nil {
		return 0, 0, err
	}
	j, err := a.axisIndex(k[1], 1)
	if err != nil {
		return 0, 0, err
	}
	return i, j, nil
}

// Slice implements a[start:end:step] along the first axis. The result is a copy.
func (a *ndarray) Slice(start, end, step int) starlark.Value {
	c := 1
	if a.ndim() == 2 {
		c = a.cols()
	}
	var data []float64
	n := 0
	for i := start; (step > 0 && i < end) || (step < 0 && i > end); i += step {
		data = append(data, a.data[i*c:(i+1)*c]...)
		n++
	}
	if data == nil {
		data = []float64{}
	}
	shape := []int{n}
	if a.ndim() == 2 {
		shape = []int{n, c}
	}
	return newArray(shape, data, a.isInt)
}

// Iterate yields elements (1-D) or rows (2-D).
func (a *ndarray) Iterate() starlark.Iterator { return &arrayIterator{a: a} }

type arrayIterator struct {
	a *ndarray
	i int
}

func (it *arrayIterator) Next(p *starlark.Value) bool {
	if it.i >= it.a.Len() {
		return false
	}
	*p = it.a.Index(it.i)
	it.i++
	return true
}

func (it *arrayIterator) Done() {}

// Binary implements + - * / // between arrays, scalars and lists.
func (a *ndarray) Binary(op syntax.Token, y starlark.Value, side starlark.Side) (starlark.Value, error) {
	switch op {
	case syntax.PLUS, syntax.MINUS, syntax.STAR, syntax.SLASH, syntax.SLASHSLASH, syntax.PERCENT:
	default:
		return nil, nil
	}
	other, err := toArray(y)
	if err != nil {
		return nil, nil
	}
	if side == starlark.Left {
		return elementwise(op, a, other)
	}
	return elementwise(op, other, a)
}

// Unary implements -a and +a.
func (a *ndarray) Unary(op syntax.Token) (starlark.Value, error) {
	switch op {
	case syntax.MINUS:
		return mapArray(a, func(v float64) float64 { return -v }, a.isInt), nil
	case syntax.PLUS:
		return a.copyArray(), nil
	}
	return nil, nil
}

// Attr implements array attributes and methods.
func (a *ndarray) Attr(name string) (starlark.Value, error) {
	switch name {
	case "shape":
		t := make(starlark.Tuple, len(a.shape))
		for i, n := range a.shape {
			t[i] = starlark.MakeInt(n)
		}
		return t, nil
	case "ndim":
		return starlark.MakeInt(a.ndim()), nil
	case "size":
		return starlark.MakeInt(a.size()), nil
	case "dtype":
		if a.isInt {
			return starlark.String("int64"), nil
		}
		return starlark.String("float64"), nil
	case "T":
		return transpose(a), nil
	}
	if fn, ok := methods[name]; ok {
		return starlark.NewBuiltin(name, fn).BindReceiver(a), nil
	}
	return nil, nil
}

// AttrNames lists attributes for dir().
func (a *ndarray) AttrNames() []string {
	names := []string{"T", "dtype", "ndim", "shape", "size"}
	for name := range methods {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func shapeString(shape []int) string {
	if len(shape) == 1 {
		return fmt.Sprintf("(%d,)", shape[0])
	}
	return fmt.Sprintf("(%d, %d)", shape[0], shape[1])
}
