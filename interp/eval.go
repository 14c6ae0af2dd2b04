package interp

import (
	"github.com/pkg/errors"
	"github.com/x448/float16"

	"github.com/gogpu/crossgpu/ir"
)

func (f *frame) inner(h ir.ExpressionHandle) ir.TypeInner {
	return f.fn.ExpressionTypes[h].Inner(f.m.module)
}

// ref evaluates a reference expression to the location it names.
func (f *frame) ref(h ir.ExpressionHandle) (Pointer, error) {
	switch e := f.fn.Expressions[h].Kind.(type) {
	case ir.ExprLocal:
		cell := f.locals[e.Local]
		if cell == nil {
			return Pointer{}, errors.Errorf("local %q used before its declaration", f.fn.Locals[e.Local].Name)
		}
		return Pointer{root: cell}, nil
	case ir.ExprGlobalVariable:
		return Pointer{root: f.m.globals[e.Variable]}, nil
	case ir.ExprDeref:
		v, err := f.value(e.Pointer)
		if err != nil {
			return Pointer{}, err
		}
		p, ok := v.(Pointer)
		if !ok {
			return Pointer{}, errors.Errorf("dereference of non-pointer %T", v)
		}
		return p, nil
	case ir.ExprAccess:
		base, err := f.ref(e.Base)
		if err != nil {
			return Pointer{}, err
		}
		iv, err := f.value(e.Index)
		if err != nil {
			return Pointer{}, err
		}
		i, err := asIndex(iv)
		if err != nil {
			return Pointer{}, err
		}
		return base.index(i), nil
	case ir.ExprAccessIndex:
		base, err := f.ref(e.Base)
		if err != nil {
			return Pointer{}, err
		}
		return base.index(int(e.Index)), nil
	}
	return Pointer{}, errors.Errorf("expression %d is not a reference", h)
}

func (f *frame) values(hs []ir.ExpressionHandle) ([]any, error) {
	out := make([]any, len(hs))
	for i, h := range hs {
		v, err := f.value(h)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

// value evaluates h. References are loaded.
//
//nolint:gocyclo,cyclop,funlen // one case per expression kind
func (f *frame) value(h ir.ExpressionHandle) (any, error) {
	module := f.m.module
	if ir.IsReference(module, f.fn, h) {
		p, err := f.ref(h)
		if err != nil {
			return nil, err
		}
		return p.load()
	}

	switch e := f.fn.Expressions[h].Kind.(type) {
	case ir.Literal:
		switch v := e.Value.(type) {
		case ir.LiteralF32:
			return float32(v), nil
		case ir.LiteralF16:
			return float16.Float16(v), nil
		case ir.LiteralU32:
			return uint32(v), nil
		case ir.LiteralI32:
			return int32(v), nil
		case ir.LiteralBool:
			return bool(v), nil
		}
		return nil, errors.Errorf("unknown literal %T", e.Value)
	case ir.ExprZeroValue:
		return decode(module, e.Type, nil, 0, 0)
	case ir.ExprCompose:
		comps, err := f.values(e.Components)
		if err != nil {
			return nil, err
		}
		if _, ok := module.TypeInner(e.Type).(ir.VectorType); ok {
			var flat []any
			for _, c := range comps {
				if elems, ok := c.([]any); ok {
					flat = append(flat, elems...)
				} else {
					flat = append(flat, c)
				}
			}
			return flat, nil
		}
		return comps, nil
	case ir.ExprSplat:
		v, err := f.value(e.Value)
		if err != nil {
			return nil, err
		}
		out := make([]any, e.Size)
		for i := range out {
			out[i] = v
		}
		return out, nil
	case ir.ExprSwizzle:
		v, err := f.value(e.Vector)
		if err != nil {
			return nil, err
		}
		elems, ok := v.([]any)
		if !ok {
			return nil, errors.Errorf("swizzle of non-vector %T", v)
		}
		out := make([]any, e.Size)
		for i := range out {
			if int(e.Pattern[i]) >= len(elems) {
				return nil, errors.Errorf("swizzle component %d out of range", e.Pattern[i])
			}
			out[i] = elems[e.Pattern[i]]
		}
		if e.Size == 1 {
			return out[0], nil
		}
		return out, nil
	case ir.ExprAccess:
		base, err := f.value(e.Base)
		if err != nil {
			return nil, err
		}
		iv, err := f.value(e.Index)
		if err != nil {
			return nil, err
		}
		i, err := asIndex(iv)
		if err != nil {
			return nil, err
		}
		return element(base, i)
	case ir.ExprAccessIndex:
		base, err := f.value(e.Base)
		if err != nil {
			return nil, err
		}
		return element(base, int(e.Index))
	case ir.ExprFunctionArgument:
		return f.args[e.Index], nil
	case ir.ExprLocal:
		cell := f.locals[e.Local]
		if cell == nil {
			return nil, errors.Errorf("local %q used before its declaration", f.fn.Locals[e.Local].Name)
		}
		return *cell, nil
	case ir.ExprGlobalVariable:
		// Handle-space globals are opaque.
		return nil, nil
	case ir.ExprAddressOf:
		return f.ref(e.Expr)
	case ir.ExprUnary:
		v, err := f.value(e.Expr)
		if err != nil {
			return nil, err
		}
		return unary(e.Op, v)
	case ir.ExprBinary:
		return f.binary(e)
	case ir.ExprSelect:
		reject, err := f.value(e.Reject)
		if err != nil {
			return nil, err
		}
		accept, err := f.value(e.Accept)
		if err != nil {
			return nil, err
		}
		cond, err := f.value(e.Condition)
		if err != nil {
			return nil, err
		}
		return selectValue(cond, accept, reject)
	case ir.ExprAs:
		v, err := f.value(e.Expr)
		if err != nil {
			return nil, err
		}
		if e.Convert != nil || e.Kind == ir.ScalarBool {
			width := uint8(4)
			if e.Convert != nil {
				width = *e.Convert
			}
			return convert(v, e.Kind, width)
		}
		return bitcast(v, e.Kind)
	case ir.ExprCall:
		args, err := f.values(e.Arguments)
		if err != nil {
			return nil, err
		}
		return f.m.call(e.Function, args)
	case ir.ExprBuiltin:
		if e.Fun == ir.BuiltinArrayLength {
			return f.arrayLength(e.Args[0])
		}
		args, err := f.values(e.Args)
		if err != nil {
			return nil, err
		}
		return callBuiltin(e.Fun, args)
	case ir.ExprTexture:
		return nil, errors.Wrapf(ErrUnsupported, "%s", e.Fun)
	case ir.ExprBufferSize:
		return f.m.sizes[e.Variable], nil
	}
	return nil, errors.Errorf("unknown expression %T", f.fn.Expressions[h].Kind)
}

func element(base any, i int) (any, error) {
	elems, ok := base.([]any)
	if !ok {
		return nil, errors.Errorf("cannot index into %T", base)
	}
	if i < 0 || i >= len(elems) {
		return nil, errors.Errorf("index %d out of bounds [0, %d)", i, len(elems))
	}
	return elems[i], nil
}

func (f *frame) binary(e ir.ExprBinary) (any, error) {
	left, err := f.value(e.Left)
	if err != nil {
		return nil, err
	}
	if e.Op.IsLogical() {
		l, err := asBool(left)
		if err != nil {
			return nil, err
		}
		if l == (e.Op == ir.BinaryLogicalOr) {
			return l, nil
		}
		right, err := f.value(e.Right)
		if err != nil {
			return nil, err
		}
		return asBool(right)
	}
	right, err := f.value(e.Right)
	if err != nil {
		return nil, err
	}
	if e.Op == ir.BinaryMultiply {
		_, lm := f.inner(e.Left).(ir.MatrixType)
		_, rm := f.inner(e.Right).(ir.MatrixType)
		_, lv := f.inner(e.Left).(ir.VectorType)
		_, rv := f.inner(e.Right).(ir.VectorType)
		if (lm && (rm || rv)) || (lv && rm) {
			return matMul(left, right, lm, rm)
		}
	}
	return binary(e.Op, left, right)
}

func selectValue(cond, accept, reject any) (any, error) {
	if c, ok := cond.(bool); ok {
		if c {
			return accept, nil
		}
		return reject, nil
	}
	cs, ok := cond.([]any)
	if !ok {
		return nil, errors.Errorf("select condition must be bool, got %T", cond)
	}
	as, aok := accept.([]any)
	rs, rok := reject.([]any)
	if !aok || !rok || len(as) != len(cs) || len(rs) != len(cs) {
		return nil, errors.New("component-wise select needs matching vectors")
	}
	out := make([]any, len(cs))
	for i, c := range cs {
		b, err := asBool(c)
		if err != nil {
			return nil, err
		}
		if b {
			out[i] = as[i]
		} else {
			out[i] = rs[i]
		}
	}
	return out, nil
}

// arrayLength counts the elements of the runtime-sized array ptr points at.
func (f *frame) arrayLength(ptr ir.ExpressionHandle) (any, error) {
	v, err := f.value(ptr)
	if err != nil {
		return nil, err
	}
	p, ok := v.(Pointer)
	if !ok {
		return nil, errors.Errorf("arrayLength of non-pointer %T", v)
	}
	arr, err := p.load()
	if err != nil {
		return nil, err
	}
	elems, ok := arr.([]any)
	if !ok {
		return nil, errors.Errorf("arrayLength of non-array %T", arr)
	}
	return uint32(len(elems)), nil
}
