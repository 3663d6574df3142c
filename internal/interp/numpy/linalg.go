package numpy

import (
	"fmt"

	"go.starlark.net/starlark"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// dense copies a 2-D array (or a 1-D array as a row or column) into a gonum matrix.
func dense(a *ndarray, asColumn bool) *mat.Dense {
	data := append([]float64(nil), a.data...)
	if a.ndim() == 1 {
		if asColumn {
			return mat.NewDense(a.size(), 1, data)
		}
		return mat.NewDense(1, a.size(), data)
	}
	return mat.NewDense(a.rows(), a.cols(), data)
}

// dot follows numpy.dot for arrays of rank 0 to 2.
func dot(x, y *ndarray) (starlark.Value, error) {
	isInt := x.isInt && y.isInt

	if x.shape == nil || y.shape == nil {
		out, err := broadcast2(x, y, isInt, func(a, b float64) (float64, error) { return a * b, nil })
		if err != nil {
			return nil, err
		}
		return result(out), nil
	}

	if x.ndim() == 1 && y.ndim() == 1 {
		if x.size() != y.size() {
			return nil, fmt.Errorf("shapes %s and %s not aligned", shapeString(x.shape), shapeString(y.shape))
		}
		return (&ndarray{isInt: isInt}).scalar(floats.Dot(x.data, y.data)), nil
	}

	inner := x.cols()
	yRows := y.rows()
	if y.ndim() == 1 {
		yRows = y.size()
	}
	if inner != yRows {
		return nil, fmt.Errorf("shapes %s and %s not aligned: %d (dim %d) != %d (dim 0)",
			shapeString(x.shape), shapeString(y.shape), inner, x.ndim()-1, yRows)
	}
	if x.size() == 0 || y.size() == 0 {
		return nil, fmt.Errorf("dot: empty operand with shapes %s and %s", shapeString(x.shape), shapeString(y.shape))
	}

	var prod mat.Dense
	prod.Mul(dense(x, false), dense(y, true))
	r, c := prod.Dims()
	data := make([]float64, 0, r*c)
	for i := 0; i < r; i++ {
		data = append(data, prod.RawRowView(i)...)
	}

	switch {
	case x.ndim() == 1:
		return newArray([]int{c}, data, isInt), nil
	case y.ndim() == 1:
		return newArray([]int{r}, data, isInt), nil
	}
	return newArray([]int{r, c}, data, isInt), nil
}

// outer returns the outer product of two flattened arrays.
func outer(x, y *ndarray) (*ndarray, error) {
	if len(x.data) == 0 || len(y.data) == 0 {
		return nil, fmt.Errorf("outer: empty operand")
	}
	u := mat.NewVecDense(len(x.data), append([]float64(nil), x.data...))
	v := mat.NewVecDense(len(y.data), append([]float64(nil), y.data...))
	m := mat.NewDense(u.Len(), v.Len(), nil)
	m.Outer(1, u, v)
	data := make([]float64, 0, u.Len()*v.Len())
	for i := 0; i < u.Len(); i++ {
		data = append(data, m.RawRowView(i)...)
	}
	return newArray([]int{u.Len(), v.Len()}, data, x.isInt && y.isInt), nil
}

func transpose(a *ndarray) *ndarray {
	if a.ndim() < 2 {
		return a.copyArray()
	}
	r, c := a.rows(), a.cols()
	data := make([]float64, r*c)
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			data[j*r+i] = a.data[i*c+j]
		}
	}
	return newArray([]int{c, r}, data, a.isInt)
}

// norm is the 2-norm of a vector or the Frobenius norm of a matrix, or
// row/column 2-norms along an axis.
func norm(a *ndarray, axis starlark.Value) (starlark.Value, error) {
	r := reducer{name: "norm", fn: func(x []float64) float64 { return floats.Norm(x, 2) }, identity: true}
	return r.reduce(a, axis, false)
}

func reshape(a *ndarray, shape []int) (*ndarray, error) {
	unknown := -1
	known := 1
	for i, d := range shape {
		if d == -1 {
			if unknown >= 0 {
				return nil, fmt.Errorf("can only specify one unknown dimension")
			}
			unknown = i
			continue
		}
		known *= d
	}
	if unknown >= 0 && known > 0 {
		shape[unknown] = a.size() / known
	}
	if shapeSize(shape) != a.size() {
		return nil, fmt.Errorf("cannot reshape array of size %d into shape %s", a.size(), shapeRepr(shape))
	}
	return newArray(shape, append([]float64(nil), a.data...), a.isInt), nil
}

// concatenate joins arrays along an existing axis.
func concatenate(arrays []*ndarray, axis int) (*ndarray, error) {
	if len(arrays) == 0 {
		return nil, fmt.Errorf("need at least one array to concatenate")
	}
	first := arrays[0]
	if axis < 0 {
		axis += first.ndim()
	}
	if axis < 0 || axis >= first.ndim() {
		return nil, fmt.Errorf("axis %d is out of bounds for array of dimension %d", axis, first.ndim())
	}
	isInt := true
	for _, a := range arrays {
		if a.ndim() != first.ndim() {
			return nil, fmt.Errorf("all the input arrays must have same number of dimensions")
		}
		isInt = isInt && a.isInt
	}

	if first.ndim() == 1 {
		var data []float64
		for _, a := range arrays {
			data = append(data, a.data...)
		}
		return newArray([]int{len(data)}, data, isInt), nil
	}

	if axis == 0 {
		var data []float64
		rows := 0
		for _, a := range arrays {
			if a.cols() != first.cols() {
				return nil, fmt.Errorf("all the input array dimensions except for the concatenation axis must match exactly")
			}
			data = append(data, a.data...)
			rows += a.rows()
		}
		return newArray([]int{rows, first.cols()}, data, isInt), nil
	}

	cols := 0
	for _, a := range arrays {
		if a.rows() != first.rows() {
			return nil, fmt.Errorf("all the input array dimensions except for the concatenation axis must match exactly")
		}
		cols += a.cols()
	}
	data := make([]float64, 0, first.rows()*cols)
	for i := 0; i < first.rows(); i++ {
		for _, a := range arrays {
			data = append(data, a.data[i*a.cols():(i+1)*a.cols()]...)
		}
	}
	return newArray([]int{first.rows(), cols}, data, isInt), nil
}

// stack joins 1-D arrays of equal length into a 2-D array.
func stack(arrays []*ndarray, axis int) (*ndarray, error) {
	if len(arrays) == 0 {
		return nil, fmt.Errorf("need at least one array to stack")
	}
	for _, a := range arrays {
		if a.ndim() != 1 || a.size() != arrays[0].size() {
			return nil, fmt.Errorf("all input arrays must be 1-D with the same shape")
		}
	}
	rows, err := concatenate(arrays, 0)
	if err != nil {
		return nil, err
	}
	out := newArray([]int{len(arrays), arrays[0].size()}, rows.data, rows.isInt)
	if axis == 1 || axis == -1 {
		return transpose(out), nil
	}
	return out, nil
}
