package interp

import (
	"math"

	"github.com/pkg/errors"
	"github.com/x448/float16"

	"github.com/gogpu/crossgpu/ir"
)

// ErrDivisionByZero is returned for an integer division or remainder by
// zero, which is undefined on some targets.
var ErrDivisionByZero = errors.New("integer division by zero")

// componentwise applies f to matching components of a and b, broadcasting a
// scalar operand over a composite one.
func componentwise(a, b any, f func(x, y any) (any, error)) (any, error) {
	av, aVec := a.([]any)
	bv, bVec := b.([]any)
	switch {
	case aVec && bVec:
		if len(av) != len(bv) {
			return nil, errors.Errorf("operand sizes differ: %d and %d", len(av), len(bv))
		}
		out := make([]any, len(av))
		for i := range av {
			v, err := f(av[i], bv[i])
			if err != nil {
				return nil, err
			}
			out[i] = v
		}
		return out, nil
	case aVec:
		out := make([]any, len(av))
		for i := range av {
			v, err := f(av[i], b)
			if err != nil {
				return nil, err
			}
			out[i] = v
		}
		return out, nil
	case bVec:
		out := make([]any, len(bv))
		for i := range bv {
			v, err := f(a, bv[i])
			if err != nil {
				return nil, err
			}
			out[i] = v
		}
		return out, nil
	default:
		return f(a, b)
	}
}

func binary(op ir.BinaryOperator, a, b any) (any, error) {
	return componentwise(a, b, func(x, y any) (any, error) {
		_, xVec := x.([]any)
		_, yVec := y.([]any)
		if xVec || yVec {
			return binary(op, x, y)
		}
		return binaryScalar(op, x, y)
	})
}

//nolint:gocyclo,cyclop // one case per scalar type
func binaryScalar(op ir.BinaryOperator, a, b any) (any, error) {
	if op == ir.BinaryShiftLeft || op == ir.BinaryShiftRight {
		amount, ok := b.(uint32)
		if !ok {
			return nil, errors.Errorf("shift amount must be u32, got %T", b)
		}
		amount &= 31
		switch x := a.(type) {
		case int32:
			if op == ir.BinaryShiftLeft {
				return x << amount, nil
			}
			return x >> amount, nil
		case uint32:
			if op == ir.BinaryShiftLeft {
				return x << amount, nil
			}
			return x >> amount, nil
		}
		return nil, errors.Errorf("cannot shift %T", a)
	}

	switch x := a.(type) {
	case bool:
		y, ok := b.(bool)
		if !ok {
			break
		}
		switch op {
		case ir.BinaryEqual:
			return x == y, nil
		case ir.BinaryNotEqual:
			return x != y, nil
		case ir.BinaryAnd, ir.BinaryLogicalAnd:
			return x && y, nil
		case ir.BinaryInclusiveOr, ir.BinaryLogicalOr:
			return x || y, nil
		case ir.BinaryExclusiveOr:
			return x != y, nil
		}
		return nil, errors.Errorf("operator %s does not apply to bool", op.Symbol())
	case int32:
		if y, ok := b.(int32); ok {
			return intOp(op, x, y)
		}
	case uint32:
		if y, ok := b.(uint32); ok {
			return intOp(op, x, y)
		}
	case float32:
		if y, ok := b.(float32); ok {
			return floatOp(op, x, y)
		}
	case float16.Float16:
		if y, ok := b.(float16.Float16); ok {
			v, err := floatOp(op, x.Float32(), y.Float32())
			if f, ok := v.(float32); ok {
				return float16.Fromfloat32(f), err
			}
			return v, err
		}
	}
	return nil, errors.Errorf("operator %s does not apply to %T and %T", op.Symbol(), a, b)
}

func intOp[T int32 | uint32](op ir.BinaryOperator, x, y T) (any, error) {
	switch op {
	case ir.BinaryAdd:
		return x + y, nil
	case ir.BinarySubtract:
		return x - y, nil
	case ir.BinaryMultiply:
		return x * y, nil
	case ir.BinaryDivide:
		if y == 0 {
			return nil, ErrDivisionByZero
		}
		return x / y, nil
	case ir.BinaryModulo:
		if y == 0 {
			return nil, ErrDivisionByZero
		}
		return x % y, nil
	case ir.BinaryAnd:
		return x & y, nil
	case ir.BinaryInclusiveOr:
		return x | y, nil
	case ir.BinaryExclusiveOr:
		return x ^ y, nil
	}
	return compare(op, x, y)
}

func floatOp(op ir.BinaryOperator, x, y float32) (any, error) {
	switch op {
	case ir.BinaryAdd:
		return x + y, nil
	case ir.BinarySubtract:
		return x - y, nil
	case ir.BinaryMultiply:
		return x * y, nil
	case ir.BinaryDivide:
		return x / y, nil
	case ir.BinaryModulo:
		return float32(math.Mod(float64(x), float64(y))), nil
	}
	return compare(op, x, y)
}

func compare[T int32 | uint32 | float32](op ir.BinaryOperator, x, y T) (any, error) {
	switch op {
	case ir.BinaryEqual:
		return x == y, nil
	case ir.BinaryNotEqual:
		return x != y, nil
	case ir.BinaryLess:
		return x < y, nil
	case ir.BinaryLessEqual:
		return x <= y, nil
	case ir.BinaryGreater:
		return x > y, nil
	case ir.BinaryGreaterEqual:
		return x >= y, nil
	}
	return nil, errors.Errorf("operator %s does not apply to %T", op.Symbol(), x)
}

func unary(op ir.UnaryOperator, v any) (any, error) {
	if elems, ok := v.([]any); ok {
		out := make([]any, len(elems))
		for i, e := range elems {
			r, err := unary(op, e)
			if err != nil {
				return nil, err
			}
			out[i] = r
		}
		return out, nil
	}
	switch op {
	case ir.UnaryLogicalNot:
		b, err := asBool(v)
		return !b, err
	case ir.UnaryBitwiseNot:
		switch x := v.(type) {
		case int32:
			return ^x, nil
		case uint32:
			return ^x, nil
		}
	case ir.UnaryNegate:
		switch x := v.(type) {
		case int32:
			return -x, nil
		case uint32:
			return -x, nil
		case float32:
			return -x, nil
		case float16.Float16:
			return float16.Fromfloat32(-x.Float32()), nil
		}
	}
	return nil, errors.Errorf("unary operator %d does not apply to %T", op, v)
}

// matMul multiplies matrices (slices of columns) and vectors.
func matMul(a, b any, aMat, bMat bool) (any, error) {
	av, _ := a.([]any)
	bv, _ := b.([]any)
	switch {
	case aMat && bMat:
		cols := make([]any, len(bv))
		for c, col := range bv {
			v, err := matMul(a, col, true, false)
			if err != nil {
				return nil, err
			}
			cols[c] = v
		}
		return cols, nil
	case aMat:
		// Sum of columns scaled by the vector's components.
		var sum any
		for c, col := range av {
			scaled, err := binary(ir.BinaryMultiply, col, bv[c])
			if err != nil {
				return nil, err
			}
			if sum == nil {
				sum = scaled
				continue
			}
			if sum, err = binary(ir.BinaryAdd, sum, scaled); err != nil {
				return nil, err
			}
		}
		return sum, nil
	default:
		out := make([]any, len(bv))
		for c, col := range bv {
			d, err := dot(a, col)
			if err != nil {
				return nil, err
			}
			out[c] = d
		}
		return out, nil
	}
}

func dot(a, b any) (any, error) {
	prod, err := binary(ir.BinaryMultiply, a, b)
	if err != nil {
		return nil, err
	}
	elems, ok := prod.([]any)
	if !ok {
		return prod, nil
	}
	sum := zeroLike(elems[0])
	for _, e := range elems {
		if sum, err = binaryScalar(ir.BinaryAdd, sum, e); err != nil {
			return nil, err
		}
	}
	return sum, nil
}
