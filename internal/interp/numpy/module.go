package numpy

import (
	"fmt"
	"math"
	"math/rand/v2"
	"sync"
	"time"

	"go.starlark.net/starlark"
	"go.starlark.net/starlarkstruct"
)

// Name is the module name used in import statements.
const Name = "numpy"

type builtinFunc = func(thread *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error)

// methods are the ndarray methods; each takes the receiver as its first argument.
var methods map[string]builtinFunc

func init() {
	methods = map[string]builtinFunc{
		"dot":     asMethod(dotFn),
		"reshape": reshapeMethod,
		"round":   asMethod(roundFn),
		"tolist":  tolistFn,
		"flatten": flattenFn,
		"copy":    copyFn,
		"transpose": func(thread *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
			if err := starlark.UnpackPositionalArgs(b.Name(), args, kwargs, 0); err != nil {
				return nil, err
			}
			return transpose(b.Receiver().(*ndarray)), nil
		},
	}
	for _, name := range []string{"sum", "max", "min", "mean", "var", "std", "argmax", "argmin"} {
		methods[name] = asMethod(reducers[name].call)
	}
}

// asMethod adapts a module function so the receiver becomes its first argument.
func asMethod(fn builtinFunc) builtinFunc {
	return func(thread *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
		full := make(starlark.Tuple, 0, len(args)+1)
		full = append(full, b.Receiver())
		full = append(full, args...)
		return fn(thread, b, full, kwargs)
	}
}

// Module holds one numpy module instance. Its random generator is private
// to the instance, so interpreters never share state.
type Module struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// New returns a module seeded from the clock; np.random.seed reseeds it.
func New() *Module {
	m := &Module{}
	m.seed(uint64(time.Now().UnixNano()))
	return m
}

func (m *Module) seed(s uint64) {
	m.mu.Lock()
	m.rng = rand.New(rand.NewPCG(s, s^0x9e3779b97f4a7c15))
	m.mu.Unlock()
}

// Value builds the Starlark module value bound as "np" or "numpy".
func (m *Module) Value() *starlarkstruct.Module {
	members := starlark.StringDict{
		"array":       starlark.NewBuiltin("array", arrayFn),
		"asarray":     starlark.NewBuiltin("asarray", arrayFn),
		"zeros":       starlark.NewBuiltin("zeros", filled(0)),
		"ones":        starlark.NewBuiltin("ones", filled(1)),
		"zeros_like":  starlark.NewBuiltin("zeros_like", filledLike(0)),
		"ones_like":   starlark.NewBuiltin("ones_like", filledLike(1)),
		"eye":         starlark.NewBuiltin("eye", eyeFn),
		"arange":      starlark.NewBuiltin("arange", arangeFn),
		"linspace":    starlark.NewBuiltin("linspace", linspaceFn),
		"dot":         starlark.NewBuiltin("dot", dotFn),
		"matmul":      starlark.NewBuiltin("matmul", matmulFn),
		"outer":       starlark.NewBuiltin("outer", outerFn),
		"transpose":   starlark.NewBuiltin("transpose", transposeFn),
		"reshape":     starlark.NewBuiltin("reshape", reshapeFn),
		"concatenate": starlark.NewBuiltin("concatenate", joinFn(concatenate)),
		"stack":       starlark.NewBuiltin("stack", joinFn(stack)),
		"exp":         ufunc("exp", math.Exp),
		"log":         ufunc("log", math.Log),
		"sqrt":        ufunc("sqrt", math.Sqrt),
		"sin":         ufunc("sin", math.Sin),
		"cos":         ufunc("cos", math.Cos),
		"tan":         ufunc("tan", math.Tan),
		"tanh":        ufunc("tanh", math.Tanh),
		"radians":     ufunc("radians", func(v float64) float64 { return v * math.Pi / 180 }),
		"degrees":     ufunc("degrees", func(v float64) float64 { return v * 180 / math.Pi }),
		"abs":         starlark.NewBuiltin("abs", absFn),
		"power":       binaryFunc("power", true, math.Pow),
		"maximum":     binaryFunc("maximum", true, math.Max),
		"minimum":     binaryFunc("minimum", true, math.Min),
		"round":       starlark.NewBuiltin("round", roundFn),
		"around":      starlark.NewBuiltin("around", roundFn),
		"pi":          starlark.Float(math.Pi),
		"e":           starlark.Float(math.E),
		"inf":         starlark.Float(math.Inf(1)),
		"linalg": &starlarkstruct.Module{
			Name: "numpy.linalg",
			Members: starlark.StringDict{
				"norm": starlark.NewBuiltin("norm", normFn),
			},
		},
		"random": &starlarkstruct.Module{
			Name: "numpy.random",
			Members: starlark.StringDict{
				"seed":   starlark.NewBuiltin("seed", m.seedFn),
				"rand":   starlark.NewBuiltin("rand", m.sampler(func(r *rand.Rand) float64 { return r.Float64() })),
				"randn":  starlark.NewBuiltin("randn", m.sampler(func(r *rand.Rand) float64 { return r.NormFloat64() })),
				"normal": starlark.NewBuiltin("normal", m.normalFn),
			},
		},
	}
	for name, r := range reducers {
		members[name] = r.builtin()
	}
	return &starlarkstruct.Module{Name: Name, Members: members}
}

func unpackArray(fnName string, v starlark.Value) (*ndarray, error) {
	a, err := toArray(v)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", fnName, err)
	}
	return a, nil
}

// vector promotes a scalar to a 1-element array.
func vector(a *ndarray) *ndarray {
	if a.shape == nil {
		return newArray([]int{1}, a.data, a.isInt)
	}
	return a
}

func arrayFn(thread *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var obj starlark.Value
	var dtype starlark.Value = starlark.None
	if err := starlark.UnpackArgs(b.Name(), args, kwargs, "object", &obj, "dtype?", &dtype); err != nil {
		return nil, err
	}
	a, err := unpackArray(b.Name(), obj)
	if err != nil {
		return nil, err
	}
	out := vector(a).copyArray()

	switch dtypeName(dtype) {
	case "":
	case "float", "float64", "float32":
		out.isInt = false
	case "int", "int64", "int32":
		out.isInt = true
		for i, v := range out.data {
			out.data[i] = math.Trunc(v)
		}
	default:
		return nil, fmt.Errorf("%s: unsupported dtype %s", b.Name(), dtype)
	}
	return out, nil
}

func dtypeName(v starlark.Value) string {
	switch v := v.(type) {
	case starlark.String:
		return string(v)
	case *starlark.Builtin:
		return v.Name()
	}
	return ""
}

func filled(value float64) builtinFunc {
	return func(thread *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
		var shapeV starlark.Value
		if err := starlark.UnpackPositionalArgs(b.Name(), args, kwargs, 1, &shapeV); err != nil {
			return nil, err
		}
		shape, err := parseShape(shapeV)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", b.Name(), err)
		}
		data := make([]float64, shapeSize(shape))
		for i := range data {
			data[i] = value
		}
		return newArray(shape, data, false), nil
	}
}

func filledLike(value float64) builtinFunc {
	return func(thread *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
		var x starlark.Value
		if err := starlark.UnpackPositionalArgs(b.Name(), args, kwargs, 1, &x); err != nil {
			return nil, err
		}
		a, err := unpackArray(b.Name(), x)
		if err != nil {
			return nil, err
		}
		a = vector(a)
		return mapArray(a, func(float64) float64 { return value }, a.isInt), nil
	}
}

func eyeFn(thread *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var n int
	if err := starlark.UnpackPositionalArgs(b.Name(), args, kwargs, 1, &n); err != nil {
		return nil, err
	}
	if n < 0 {
		return nil, fmt.Errorf("%s: negative dimensions are not allowed", b.Name())
	}
	data := make([]float64, n*n)
	for i := 0; i < n; i++ {
		data[i*n+i] = 1
	}
	return newArray([]int{n, n}, data, false), nil
}

func arangeFn(thread *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var startV, stopV starlark.Value
	var stepV starlark.Value = starlark.MakeInt(1)
	if err := starlark.UnpackPositionalArgs(b.Name(), args, kwargs, 1, &startV, &stopV, &stepV); err != nil {
		return nil, err
	}
	if stopV == nil {
		startV, stopV = starlark.MakeInt(0), startV
	}
	start, err := toFloat(startV)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", b.Name(), err)
	}
	stop, err := toFloat(stopV)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", b.Name(), err)
	}
	step, err := toFloat(stepV)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", b.Name(), err)
	}
	if step == 0 {
		return nil, fmt.Errorf("%s: step must not be zero", b.Name())
	}
	n := int(math.Max(0, math.Ceil((stop-start)/step)))
	data := make([]float64, n)
	for i := range data {
		data[i] = start + float64(i)*step
	}
	isInt := isIntValue(startV) && isIntValue(stopV) && isIntValue(stepV)
	return newArray([]int{n}, data, isInt), nil
}

func linspaceFn(thread *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var startV, stopV starlark.Value
	num := 50
	if err := starlark.UnpackArgs(b.Name(), args, kwargs, "start", &startV, "stop", &stopV, "num?", &num); err != nil {
		return nil, err
	}
	start, err := toFloat(startV)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", b.Name(), err)
	}
	stop, err := toFloat(stopV)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", b.Name(), err)
	}
	if num < 0 {
		return nil, fmt.Errorf("%s: number of samples, %d, must be non-negative", b.Name(), num)
	}
	data := make([]float64, num)
	for i := range data {
		if num == 1 {
			data[i] = start
			break
		}
		data[i] = start + (stop-start)*float64(i)/float64(num-1)
	}
	return newArray([]int{num}, data, false), nil
}

func twoArrays(b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (*ndarray, *ndarray, error) {
	var x, y starlark.Value
	if err := starlark.UnpackPositionalArgs(b.Name(), args, kwargs, 2, &x, &y); err != nil {
		return nil, nil, err
	}
	ax, err := unpackArray(b.Name(), x)
	if err != nil {
		return nil, nil, err
	}
	ay, err := unpackArray(b.Name(), y)
	if err != nil {
		return nil, nil, err
	}
	return ax, ay, nil
}

func dotFn(thread *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	x, y, err := twoArrays(b, args, kwargs)
	if err != nil {
		return nil, err
	}
	v, err := dot(x, y)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", b.Name(), err)
	}
	return v, nil
}

func matmulFn(thread *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	x, y, err := twoArrays(b, args, kwargs)
	if err != nil {
		return nil, err
	}
	if x.shape == nil || y.shape == nil {
		return nil, fmt.Errorf("%s: input operand does not have enough dimensions", b.Name())
	}
	v, err := dot(x, y)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", b.Name(), err)
	}
	return v, nil
}

func outerFn(thread *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	x, y, err := twoArrays(b, args, kwargs)
	if err != nil {
		return nil, err
	}
	return outer(x, y)
}

func transposeFn(thread *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var x starlark.Value
	if err := starlark.UnpackPositionalArgs(b.Name(), args, kwargs, 1, &x); err != nil {
		return nil, err
	}
	a, err := unpackArray(b.Name(), x)
	if err != nil {
		return nil, err
	}
	return transpose(vector(a)), nil
}

func reshapeFn(thread *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var x, shapeV starlark.Value
	if err := starlark.UnpackPositionalArgs(b.Name(), args, kwargs, 2, &x, &shapeV); err != nil {
		return nil, err
	}
	a, err := unpackArray(b.Name(), x)
	if err != nil {
		return nil, err
	}
	return reshapeValue(b.Name(), vector(a), shapeV)
}

// reshapeMethod accepts a.reshape(2, 3) as well as a.reshape((2, 3)).
func reshapeMethod(thread *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	if len(kwargs) > 0 {
		return nil, fmt.Errorf("%s: unexpected keyword arguments", b.Name())
	}
	var shapeV starlark.Value = args
	if len(args) == 1 {
		shapeV = args[0]
	}
	return reshapeValue(b.Name(), b.Receiver().(*ndarray), shapeV)
}

func reshapeValue(name string, a *ndarray, shapeV starlark.Value) (starlark.Value, error) {
	shape, err := parseReshape(shapeV)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	out, err := reshape(a, shape)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	return out, nil
}

// parseReshape is parseShape with -1 allowed for one dimension.
func parseReshape(v starlark.Value) ([]int, error) {
	if n, err := starlark.AsInt32(v); err == nil {
		return []int{n}, nil
	}
	seq, ok := v.(starlark.Indexable)
	if !ok || seq.Len() < 1 || seq.Len() > 2 {
		return nil, fmt.Errorf("shape must be one or two ints")
	}
	shape := make([]int, seq.Len())
	for i := range shape {
		n, err := starlark.AsInt32(seq.Index(i))
		if err != nil {
			return nil, err
		}
		if n < -1 {
			return nil, fmt.Errorf("negative dimensions are not allowed")
		}
		shape[i] = n
	}
	return shape, nil
}

func joinFn(join func([]*ndarray, int) (*ndarray, error)) builtinFunc {
	return func(thread *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
		var seq starlark.Iterable
		axis := 0
		if err := starlark.UnpackArgs(b.Name(), args, kwargs, "arrays", &seq, "axis?", &axis); err != nil {
			return nil, err
		}
		var arrays []*ndarray
		iter := seq.Iterate()
		defer iter.Done()
		var v starlark.Value
		for iter.Next(&v) {
			a, err := unpackArray(b.Name(), v)
			if err != nil {
				return nil, err
			}
			arrays = append(arrays, vector(a))
		}
		out, err := join(arrays, axis)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", b.Name(), err)
		}
		return out, nil
	}
}

func absFn(thread *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var x starlark.Value
	if err := starlark.UnpackPositionalArgs(b.Name(), args, kwargs, 1, &x); err != nil {
		return nil, err
	}
	a, err := unpackArray(b.Name(), x)
	if err != nil {
		return nil, err
	}
	return result(mapArray(a, math.Abs, a.isInt)), nil
}

func roundFn(thread *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var x starlark.Value
	decimals := 0
	if err := starlark.UnpackArgs(b.Name(), args, kwargs, "a", &x, "decimals?", &decimals); err != nil {
		return nil, err
	}
	a, err := unpackArray(b.Name(), x)
	if err != nil {
		return nil, err
	}
	if a.isInt && decimals >= 0 {
		return result(a.copyArray()), nil
	}
	return result(mapArray(a, func(v float64) float64 { return roundHalfEven(v, decimals) }, a.isInt)), nil
}

func normFn(thread *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var x starlark.Value
	var axis starlark.Value = starlark.None
	if err := starlark.UnpackArgs(b.Name(), args, kwargs, "x", &x, "axis?", &axis); err != nil {
		return nil, err
	}
	a, err := unpackArray(b.Name(), x)
	if err != nil {
		return nil, err
	}
	return norm(vector(a), axis)
}

func tolistFn(thread *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	if err := starlark.UnpackPositionalArgs(b.Name(), args, kwargs, 0); err != nil {
		return nil, err
	}
	return toList(b.Receiver().(*ndarray)), nil
}

func flattenFn(thread *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	if err := starlark.UnpackPositionalArgs(b.Name(), args, kwargs, 0); err != nil {
		return nil, err
	}
	a := b.Receiver().(*ndarray)
	return newArray([]int{a.size()}, append([]float64(nil), a.data...), a.isInt), nil
}

func copyFn(thread *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	if err := starlark.UnpackPositionalArgs(b.Name(), args, kwargs, 0); err != nil {
		return nil, err
	}
	return b.Receiver().(*ndarray).copyArray(), nil
}

func (m *Module) seedFn(thread *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var s int
	if err := starlark.UnpackPositionalArgs(b.Name(), args, kwargs, 1, &s); err != nil {
		return nil, err
	}
	if s < 0 {
		return nil, fmt.Errorf("%s: seed must be non-negative", b.Name())
	}
	m.seed(uint64(s))
	return starlark.None, nil
}

// sampler builds rand/randn: no arguments gives a float, one or two
// dimensions give an array.
func (m *Module) sampler(draw func(*rand.Rand) float64) builtinFunc {
	return func(thread *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
		if len(kwargs) > 0 {
			return nil, fmt.Errorf("%s: unexpected keyword arguments", b.Name())
		}
		m.mu.Lock()
		defer m.mu.Unlock()
		if len(args) == 0 {
			return starlark.Float(draw(m.rng)), nil
		}
		shape, err := parseShape(args)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", b.Name(), err)
		}
		data := make([]float64, shapeSize(shape))
		for i := range data {
			data[i] = draw(m.rng)
		}
		return newArray(shape, data, false), nil
	}
}

func (m *Module) normalFn(thread *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var locV starlark.Value = starlark.Float(0)
	var scaleV starlark.Value = starlark.Float(1)
	var size starlark.Value = starlark.None
	if err := starlark.UnpackArgs(b.Name(), args, kwargs, "loc?", &locV, "scale?", &scaleV, "size?", &size); err != nil {
		return nil, err
	}
	loc, err := toFloat(locV)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", b.Name(), err)
	}
	scale, err := toFloat(scaleV)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", b.Name(), err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if size == starlark.None {
		return starlark.Float(loc + scale*m.rng.NormFloat64()), nil
	}
	shape, err := parseShape(size)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", b.Name(), err)
	}
	data := make([]float64, shapeSize(shape))
	for i := range data {
		data[i] = loc + scale*m.rng.NormFloat64()
	}
	return newArray(shape, data, false), nil
}
