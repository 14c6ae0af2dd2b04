// Copyright 2025 The GoGPU Authors
// SPDX-License-Identifier: MIT

package hlsl

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/gogpu/crossgpu/builtin"
	"github.com/gogpu/crossgpu/ir"
)

// expression returns the HLSL text of an expression used as a value.
// Operator results are parenthesized; names, calls and accesses are not.
func (w *Writer) expression(h ir.ExpressionHandle) (string, error) {
	return w.operand(h, false)
}

// reference returns the HLSL lvalue named by a reference expression.
func (w *Writer) reference(h ir.ExpressionHandle) (string, error) {
	return w.operand(h, true)
}

//nolint:gocyclo,cyclop // one case per expression kind
func (w *Writer) operand(h ir.ExpressionHandle, ref bool) (string, error) {
	if int(h) >= len(w.fn.Expressions) {
		return "", newError(ErrInvalidModule, "expression %d out of range", h)
	}
	if access, ok, err := w.storageAccess(h); err != nil {
		return "", err
	} else if ok {
		if ref {
			return "", newError(ErrUnsupportedFeature, "storage buffer %q is addressed by byte offset and has no lvalue",
				w.module.GlobalVariables[access.global].Name)
		}
		return w.storageLoad(access)
	}

	switch e := w.fn.Expressions[h].Kind.(type) {
	case ir.Literal:
		return formatLiteral(e.Value)
	case ir.ExprZeroValue:
		return w.zeroValue(e.Type)
	case ir.ExprCompose:
		args, err := w.expressions(e.Components)
		if err != nil {
			return "", err
		}
		return w.compose(e.Type, args)
	case ir.ExprAccess:
		base, err := w.operand(e.Base, true)
		if err != nil {
			return "", err
		}
		index, err := w.expression(e.Index)
		if err != nil {
			return "", err
		}
		return base + "[" + index + "]", nil
	case ir.ExprAccessIndex:
		return w.accessIndex(e)
	case ir.ExprSplat:
		ty, err := w.resolvedTypeName(h)
		if err != nil {
			return "", err
		}
		value, err := w.expression(e.Value)
		if err != nil {
			return "", err
		}
		return "((" + ty + ")" + value + ")", nil
	case ir.ExprSwizzle:
		vector, err := w.expression(e.Vector)
		if err != nil {
			return "", err
		}
		var b strings.Builder
		b.WriteString(vector)
		b.WriteByte('.')
		for i := 0; i < int(e.Size); i++ {
			b.WriteByte("xyzw"[e.Pattern[i]])
		}
		return b.String(), nil
	case ir.ExprFunctionArgument:
		return w.argumentName(w.fnHandle, int(e.Index)), nil
	case ir.ExprGlobalVariable:
		return w.globalOperand(e.Variable)
	case ir.ExprLocal:
		return w.localName(e.Local), nil
	case ir.ExprAddressOf:
		return w.reference(e.Expr)
	case ir.ExprDeref:
		return w.operand(e.Pointer, ref)
	case ir.ExprUnary:
		return w.unary(e)
	case ir.ExprBinary:
		return w.binary(e)
	case ir.ExprSelect:
		return w.selectExpr(e)
	case ir.ExprAs:
		return w.cast(e)
	case ir.ExprCall:
		args, err := w.expressions(e.Arguments)
		if err != nil {
			return "", err
		}
		name := w.names[nameKey{kind: nameKeyFunction, handle1: uint32(e.Function)}]
		return name + "(" + strings.Join(args, ", ") + ")", nil
	case ir.ExprBuiltin:
		return w.builtinCall(e)
	case ir.ExprTexture:
		return w.texture(e)
	case ir.ExprBufferSize:
		return w.bufferSize(e.Variable)
	default:
		return "", newError(ErrUnsupportedFeature, "expression %T", e)
	}
}

func (w *Writer) expressions(handles []ir.ExpressionHandle) ([]string, error) {
	out := make([]string, len(handles))
	for i, h := range handles {
		s, err := w.expression(h)
		if err != nil {
			return nil, err
		}
		out[i] = s
	}
	return out, nil
}

// globalOperand names a global. Uniform members live in their cbuffer's
// scope under the global's own name; handles are only read by texture calls.
func (w *Writer) globalOperand(h ir.GlobalVariableHandle) (string, error) {
	g := &w.module.GlobalVariables[h]
	if g.Space == ir.SpaceHandle {
		return "", newError(ErrUnsupportedFeature, "%q can only be used by texture calls", g.Name)
	}
	return w.globalName(h), nil
}

func (w *Writer) accessIndex(e ir.ExprAccessIndex) (string, error) {
	base, err := w.operand(e.Base, true)
	if err != nil {
		return "", err
	}

	res := w.fn.ExpressionTypes[e.Base]
	inner := res.Inner(w.module)
	handle := res.Handle
	if ptr, ok := inner.(ir.PointerType); ok {
		handle = &ptr.Base
		inner = w.module.TypeInner(ptr.Base)
	}

	switch inner.(type) {
	case ir.StructType:
		if handle == nil {
			return "", newError(ErrInvalidModule, "struct access on an unnamed type")
		}
		return base + "." + w.memberName(*handle, e.Index), nil
	case ir.VectorType:
		if e.Index > 3 {
			return "", newError(ErrInvalidModule, "vector component %d out of range", e.Index)
		}
		return base + "." + string("xyzw"[e.Index]), nil
	default:
		return fmt.Sprintf("%s[%d]", base, e.Index), nil
	}
}

// compose constructs a value of type h. Vectors and matrices have
// constructors; arrays and structs are built by helper functions.
func (w *Writer) compose(h ir.TypeHandle, args []string) (string, error) {
	switch t := w.module.TypeInner(h).(type) {
	case ir.VectorType, ir.MatrixType:
		ty, err := w.typeName(h)
		if err != nil {
			return "", err
		}
		return ty + "(" + strings.Join(args, ", ") + ")", nil
	case ir.ArrayType:
		if t.Size.IsRuntime() {
			return "", newError(ErrUnsupportedFeature, "runtime-sized arrays cannot be constructed")
		}
		name, err := w.arrayConstructor(h, t)
		if err != nil {
			return "", err
		}
		return name + "(" + strings.Join(args, ", ") + ")", nil
	case ir.StructType:
		name, err := w.structConstructor(h, t)
		if err != nil {
			return "", err
		}
		return name + "(" + strings.Join(args, ", ") + ")", nil
	default:
		return "", newError(ErrInvalidModule, "cannot compose type %T", t)
	}
}

// arrayConstructor returns a helper building an array from its elements.
// HLSL functions return arrays only through a typedef.
func (w *Writer) arrayConstructor(h ir.TypeHandle, t ir.ArrayType) (string, error) {
	if name, ok := w.constructors[h]; ok {
		return name, nil
	}
	n := int(*t.Size.Constant)
	params := make([]string, n)
	values := make([]string, n)
	for i := range params {
		decl, err := w.declaration(t.Base, fmt.Sprintf("arg%d", i))
		if err != nil {
			return "", err
		}
		params[i] = decl
		values[i] = fmt.Sprintf("arg%d", i)
	}
	name := w.symbols.New("construct_array")
	ret := w.symbols.New(name + "_ret")
	typedef, err := w.declaration(h, ret)
	if err != nil {
		return "", err
	}
	local, err := w.declaration(h, "ret")
	if err != nil {
		return "", err
	}
	w.addConstructor(h, name, fmt.Sprintf("typedef %s;\n%s %s(%s) {\n    %s = { %s };\n    return ret;\n}",
		typedef, ret, name, strings.Join(params, ", "), local, strings.Join(values, ", ")))
	return name, nil
}

// structConstructor returns a helper building a struct from its members.
func (w *Writer) structConstructor(h ir.TypeHandle, t ir.StructType) (string, error) {
	if name, ok := w.constructors[h]; ok {
		return name, nil
	}
	params := make([]string, len(t.Members))
	values := make([]string, len(t.Members))
	for i, m := range t.Members {
		decl, err := w.declaration(m.Type, fmt.Sprintf("arg%d", i))
		if err != nil {
			return "", err
		}
		params[i] = decl
		values[i] = fmt.Sprintf("arg%d", i)
	}
	ty := w.typeNameOf(h)
	name := w.symbols.New("construct_" + ty)
	w.addConstructor(h, name, fmt.Sprintf("%s %s(%s) {\n    %s ret = { %s };\n    return ret;\n}",
		ty, name, strings.Join(params, ", "), ty, strings.Join(values, ", ")))
	return name, nil
}

func (w *Writer) addConstructor(h ir.TypeHandle, name, source string) {
	w.constructors[h] = name
	w.helperSource = append(w.helperSource, source)
	w.helperOrder = append(w.helperOrder, name)
}

// formatLiteral writes a literal in HLSL syntax.
func formatLiteral(v ir.LiteralValue) (string, error) {
	switch l := v.(type) {
	case ir.LiteralF32:
		return formatFloat(float32(l))
	case ir.LiteralF16:
		f, err := formatFloat(l.Float32())
		if err != nil {
			return "", err
		}
		return f + "h", nil
	case ir.LiteralU32:
		return strconv.FormatUint(uint64(l), 10) + "u", nil
	case ir.LiteralI32:
		if int32(l) == math.MinInt32 {
			// The negation of 2147483648 overflows int.
			return "(-2147483647 - 1)", nil
		}
		return strconv.FormatInt(int64(l), 10), nil
	case ir.LiteralBool:
		return strconv.FormatBool(bool(l)), nil
	default:
		return "", newError(ErrUnsupportedFeature, "literal %T", v)
	}
}

func formatFloat(f float32) (string, error) {
	if math.IsNaN(float64(f)) || math.IsInf(float64(f), 0) {
		return "", newError(ErrUnsupportedFeature, "non-finite float literal")
	}
	s := strconv.FormatFloat(float64(f), 'g', -1, 32)
	if !strings.ContainsAny(s, ".e") {
		s += ".0"
	}
	return s, nil
}

// zeroValue returns the zero value of a type. Everything but arrays casts
// from a literal 0.
func (w *Writer) zeroValue(h ir.TypeHandle) (string, error) {
	arr, ok := w.module.TypeInner(h).(ir.ArrayType)
	if !ok {
		ty, err := w.typeName(h)
		if err != nil {
			return "", err
		}
		return "(" + ty + ")0", nil
	}
	if arr.Size.IsRuntime() {
		return "", newError(ErrUnsupportedFeature, "runtime-sized arrays have no zero value")
	}
	elem, err := w.zeroValue(arr.Base)
	if err != nil {
		return "", err
	}
	parts := make([]string, *arr.Size.Constant)
	for i := range parts {
		parts[i] = elem
	}
	return w.compose(h, parts)
}

func (w *Writer) unary(e ir.ExprUnary) (string, error) {
	operand, err := w.expression(e.Expr)
	if err != nil {
		return "", err
	}
	switch e.Op {
	case ir.UnaryNegate:
		return "(-" + operand + ")", nil
	case ir.UnaryLogicalNot:
		return "(!" + operand + ")", nil
	case ir.UnaryBitwiseNot:
		return "(~" + operand + ")", nil
	default:
		return "", newError(ErrUnsupportedFeature, "unary operator %d", e.Op)
	}
}

func (w *Writer) binary(e ir.ExprBinary) (string, error) {
	left, err := w.expression(e.Left)
	if err != nil {
		return "", err
	}
	right, err := w.expression(e.Right)
	if err != nil {
		return "", err
	}

	if e.Op == ir.BinaryMultiply {
		_, leftMatrix := w.fn.ExpressionTypes[e.Left].Inner(w.module).(ir.MatrixType)
		_, rightMatrix := w.fn.ExpressionTypes[e.Right].Inner(w.module).(ir.MatrixType)
		if leftMatrix || rightMatrix {
			// Matrices are stored transposed, so the product is too.
			return "mul(" + right + ", " + left + ")", nil
		}
	}
	return "(" + left + " " + e.Op.Symbol() + " " + right + ")", nil
}

// scalarOf returns the scalar type of a scalar or vector and the vector
// size, zero for scalars.
func scalarOf(inner ir.TypeInner) (ir.ScalarType, ir.VectorSize) {
	switch t := inner.(type) {
	case ir.ScalarType:
		return t, 0
	case ir.VectorType:
		return t.Scalar, t.Size
	case ir.MatrixType:
		return t.Scalar, 0
	}
	return ir.ScalarType{}, 0
}

func (w *Writer) selectExpr(e ir.ExprSelect) (string, error) {
	reject, err := w.expression(e.Reject)
	if err != nil {
		return "", err
	}
	accept, err := w.expression(e.Accept)
	if err != nil {
		return "", err
	}
	condition, err := w.expression(e.Condition)
	if err != nil {
		return "", err
	}
	// The conditional operator selects component-wise on vectors.
	return "(" + condition + " ? " + accept + " : " + reject + ")", nil
}

func (w *Writer) cast(e ir.ExprAs) (string, error) {
	value, err := w.expression(e.Expr)
	if err != nil {
		return "", err
	}
	from, size := scalarOf(w.fn.ExpressionTypes[e.Expr].Inner(w.module))

	if e.Convert != nil {
		to := ir.ScalarType{Kind: e.Kind, Width: *e.Convert}
		return builtin.TypeName(builtin.TargetHLSL, builtin.ClassOf(to), size) + "(" + value + ")", nil
	}

	if from.Width != 4 {
		return "", newError(ErrUnsupportedFeature, "bitcast of %d-byte scalars", from.Width)
	}
	if from.Kind == e.Kind {
		return value, nil
	}
	if from.Kind == ir.ScalarBool || e.Kind == ir.ScalarBool {
		return "", newError(ErrUnsupportedFeature, "bitcast from kind %d to kind %d", from.Kind, e.Kind)
	}
	return ScalarCast(e.Kind) + "(" + value + ")", nil
}

func (w *Writer) builtinCall(e ir.ExprBuiltin) (string, error) {
	shape := builtin.ShapeOf(w.module, w.fn, e.Args)
	lowering, err := w.mapper.Lookup(e.Fun, shape)
	if err != nil {
		return "", &Error{Kind: ErrUnmappedBuiltin, Message: err.Error(), Err: err}
	}
	args, err := w.expressions(e.Args)
	if err != nil {
		return "", err
	}
	helperName := ""
	if lowering.Kind == builtin.Helper {
		helperName = w.helper(lowering.Name, lowering.Helper)
	}
	return lowering.Expand(args, helperName), nil
}
