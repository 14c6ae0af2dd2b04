package interp

import (
	"math"
	"math/bits"

	"github.com/pkg/errors"

	"github.com/gogpu/crossgpu/ir"
)

// ErrUnsupported is returned for constructs the evaluator does not model,
// such as texture sampling and derivatives.
var ErrUnsupported = errors.New("not supported by the evaluator")

var floatUnary = map[ir.BuiltinFunction]func(float64) float64{
	ir.BuiltinSin:         math.Sin,
	ir.BuiltinCos:         math.Cos,
	ir.BuiltinTan:         math.Tan,
	ir.BuiltinAsin:        math.Asin,
	ir.BuiltinAcos:        math.Acos,
	ir.BuiltinAtan:        math.Atan,
	ir.BuiltinSinh:        math.Sinh,
	ir.BuiltinCosh:        math.Cosh,
	ir.BuiltinTanh:        math.Tanh,
	ir.BuiltinRadians:     func(x float64) float64 { return x * math.Pi / 180 },
	ir.BuiltinDegrees:     func(x float64) float64 { return x * 180 / math.Pi },
	ir.BuiltinCeil:        math.Ceil,
	ir.BuiltinFloor:       math.Floor,
	ir.BuiltinRound:       math.RoundToEven,
	ir.BuiltinFract:       func(x float64) float64 { return x - math.Floor(x) },
	ir.BuiltinTrunc:       math.Trunc,
	ir.BuiltinExp:         math.Exp,
	ir.BuiltinExp2:        math.Exp2,
	ir.BuiltinLog:         math.Log,
	ir.BuiltinLog2:        math.Log2,
	ir.BuiltinSqrt:        math.Sqrt,
	ir.BuiltinInverseSqrt: func(x float64) float64 { return 1 / math.Sqrt(x) },
	ir.BuiltinSaturate:    func(x float64) float64 { return math.Min(math.Max(x, 0), 1) },
}

// mapArgs applies f per component when any argument is a vector, repeating
// scalar arguments.
func mapArgs(args []any, f func(xs []any) (any, error)) (any, error) {
	n := -1
	for _, a := range args {
		if v, ok := a.([]any); ok {
			n = len(v)
			break
		}
	}
	if n < 0 {
		return f(args)
	}
	out := make([]any, n)
	xs := make([]any, len(args))
	for i := range out {
		for j, a := range args {
			if v, ok := a.([]any); ok {
				xs[j] = v[i]
			} else {
				xs[j] = a
			}
		}
		r, err := f(xs)
		if err != nil {
			return nil, err
		}
		out[i] = r
	}
	return out, nil
}

// floats runs f over the float values of xs and converts back to the type
// of the first one.
func floats(xs []any, f func(v []float64) float64) (any, error) {
	v := make([]float64, len(xs))
	for i, x := range xs {
		fx, err := toFloat(x)
		if err != nil {
			return nil, err
		}
		v[i] = fx
	}
	return fromFloat(f(v), xs[0]), nil
}

func less(a, b any) (bool, error) {
	fa, err := toFloat(a)
	if err != nil {
		return false, err
	}
	fb, err := toFloat(b)
	return fa < fb, err
}

//nolint:gocyclo,cyclop,funlen // one case per builtin
func callBuiltin(fun ir.BuiltinFunction, args []any) (any, error) {
	if fun.IsBarrier() {
		return nil, nil
	}
	if f, ok := floatUnary[fun]; ok {
		return mapArgs(args, func(xs []any) (any, error) {
			return floats(xs, func(v []float64) float64 { return f(v[0]) })
		})
	}

	switch fun {
	case ir.BuiltinAbs:
		return mapArgs(args, func(xs []any) (any, error) {
			switch x := xs[0].(type) {
			case int32:
				if x < 0 {
					return -x, nil
				}
				return x, nil
			case uint32:
				return x, nil
			}
			return floats(xs, func(v []float64) float64 { return math.Abs(v[0]) })
		})
	case ir.BuiltinSign:
		return mapArgs(args, func(xs []any) (any, error) {
			if x, ok := xs[0].(int32); ok {
				switch {
				case x > 0:
					return int32(1), nil
				case x < 0:
					return int32(-1), nil
				}
				return int32(0), nil
			}
			return floats(xs, func(v []float64) float64 {
				switch {
				case v[0] > 0:
					return 1
				case v[0] < 0:
					return -1
				}
				return 0
			})
		})
	case ir.BuiltinMin, ir.BuiltinMax:
		return mapArgs(args, func(xs []any) (any, error) {
			lt, err := less(xs[1], xs[0])
			if err != nil {
				return nil, err
			}
			if lt == (fun == ir.BuiltinMin) {
				return xs[1], nil
			}
			return xs[0], nil
		})
	case ir.BuiltinClamp:
		return mapArgs(args, func(xs []any) (any, error) {
			x, lo, hi := xs[0], xs[1], xs[2]
			if lt, err := less(x, lo); err != nil || lt {
				return lo, err
			}
			if lt, err := less(hi, x); err != nil || lt {
				return hi, err
			}
			return x, nil
		})
	case ir.BuiltinAtan2:
		return mapArgs(args, func(xs []any) (any, error) {
			return floats(xs, func(v []float64) float64 { return math.Atan2(v[0], v[1]) })
		})
	case ir.BuiltinPow:
		return mapArgs(args, func(xs []any) (any, error) {
			return floats(xs, func(v []float64) float64 { return math.Pow(v[0], v[1]) })
		})
	case ir.BuiltinStep:
		return mapArgs(args, func(xs []any) (any, error) {
			return floats([]any{xs[1], xs[0]}, func(v []float64) float64 {
				if v[0] >= v[1] {
					return 1
				}
				return 0
			})
		})
	case ir.BuiltinFma:
		return mapArgs(args, func(xs []any) (any, error) {
			return floats(xs, func(v []float64) float64 { return v[0]*v[1] + v[2] })
		})
	case ir.BuiltinMix:
		return mapArgs(args, func(xs []any) (any, error) {
			return floats(xs, func(v []float64) float64 { return v[0]*(1-v[2]) + v[1]*v[2] })
		})
	case ir.BuiltinSmoothStep:
		return mapArgs(args, func(xs []any) (any, error) {
			return floats([]any{xs[2], xs[0], xs[1]}, func(v []float64) float64 {
				t := math.Min(math.Max((v[0]-v[1])/(v[2]-v[1]), 0), 1)
				return t * t * (3 - 2*t)
			})
		})
	case ir.BuiltinDot:
		return dot(args[0], args[1])
	case ir.BuiltinCross:
		a, aok := args[0].([]any)
		b, bok := args[1].([]any)
		if !aok || !bok || len(a) != 3 || len(b) != 3 {
			return nil, errors.New("cross requires two vec3 arguments")
		}
		out := make([]any, 3)
		for i := range out {
			j, k := (i+1)%3, (i+2)%3
			l, err := binaryScalar(ir.BinaryMultiply, a[j], b[k])
			if err != nil {
				return nil, err
			}
			r, err := binaryScalar(ir.BinaryMultiply, a[k], b[j])
			if err != nil {
				return nil, err
			}
			if out[i], err = binaryScalar(ir.BinarySubtract, l, r); err != nil {
				return nil, err
			}
		}
		return out, nil
	case ir.BuiltinLength:
		return length(args[0])
	case ir.BuiltinDistance:
		d, err := binary(ir.BinarySubtract, args[0], args[1])
		if err != nil {
			return nil, err
		}
		return length(d)
	case ir.BuiltinNormalize:
		l, err := length(args[0])
		if err != nil {
			return nil, err
		}
		return binary(ir.BinaryDivide, args[0], l)
	case ir.BuiltinReflect:
		d, err := dot(args[1], args[0])
		if err != nil {
			return nil, err
		}
		twice, err := binary(ir.BinaryMultiply, fromFloat(2, d), d)
		if err != nil {
			return nil, err
		}
		scaled, err := binary(ir.BinaryMultiply, twice, args[1])
		if err != nil {
			return nil, err
		}
		return binary(ir.BinarySubtract, args[0], scaled)
	case ir.BuiltinAll, ir.BuiltinAny:
		elems, ok := args[0].([]any)
		if !ok {
			elems = []any{args[0]}
		}
		want := fun == ir.BuiltinAny
		for _, e := range elems {
			b, err := asBool(e)
			if err != nil {
				return nil, err
			}
			if b == want {
				return want, nil
			}
		}
		return !want, nil
	case ir.BuiltinCountOneBits, ir.BuiltinReverseBits:
		return mapArgs(args, func(xs []any) (any, error) {
			var u uint32
			switch x := xs[0].(type) {
			case int32:
				u = uint32(x)
			case uint32:
				u = x
			default:
				return nil, errors.Errorf("%s requires an integer, got %T", fun, x)
			}
			if fun == ir.BuiltinCountOneBits {
				u = uint32(bits.OnesCount32(u))
			} else {
				u = bits.Reverse32(u)
			}
			if _, signed := xs[0].(int32); signed {
				return int32(u), nil
			}
			return u, nil
		})
	case ir.BuiltinTranspose:
		cols, ok := args[0].([]any)
		if !ok || len(cols) == 0 {
			return nil, errors.New("transpose requires a matrix")
		}
		rows := len(cols[0].([]any))
		out := make([]any, rows)
		for r := range out {
			col := make([]any, len(cols))
			for c := range cols {
				col[c] = cols[c].([]any)[r]
			}
			out[r] = col
		}
		return out, nil
	case ir.BuiltinDeterminant:
		cols, ok := args[0].([]any)
		if !ok || len(cols) == 0 {
			return nil, errors.New("determinant requires a matrix")
		}
		m := make([][]float64, len(cols))
		for c, col := range cols {
			m[c] = make([]float64, len(cols))
			for r, e := range col.([]any) {
				f, err := toFloat(e)
				if err != nil {
					return nil, err
				}
				m[c][r] = f
			}
		}
		return fromFloat(determinant(m), cols[0].([]any)[0]), nil
	}
	return nil, errors.Wrapf(ErrUnsupported, "builtin %s", fun)
}

func length(v any) (any, error) {
	d, err := dot(v, v)
	if err != nil {
		return nil, err
	}
	return floats([]any{d}, func(v []float64) float64 { return math.Sqrt(v[0]) })
}

// determinant expands along the first column.
func determinant(m [][]float64) float64 {
	n := len(m)
	if n == 1 {
		return m[0][0]
	}
	var det float64
	sign := 1.0
	for r := 0; r < n; r++ {
		minor := make([][]float64, 0, n-1)
		for c := 1; c < n; c++ {
			col := make([]float64, 0, n-1)
			col = append(col, m[c][:r]...)
			col = append(col, m[c][r+1:]...)
			minor = append(minor, col)
		}
		det += sign * m[0][r] * determinant(minor)
		sign = -sign
	}
	return det
}
