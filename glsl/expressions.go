// Copyright 2025 The GoGPU Authors
// SPDX-License-Identifier: MIT

package glsl

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/gogpu/crossgpu/builtin"
	"github.com/gogpu/crossgpu/ir"
)

// expression returns the GLSL text of an expression used as a value.
// Operator results are parenthesized; names, calls and accesses are not.
func (w *Writer) expression(h ir.ExpressionHandle) (string, error) {
	return w.operand(h, false)
}

// reference returns the GLSL lvalue named by a reference expression.
func (w *Writer) reference(h ir.ExpressionHandle) (string, error) {
	return w.operand(h, true)
}

//nolint:gocyclo,cyclop // one case per expression kind
func (w *Writer) operand(h ir.ExpressionHandle, ref bool) (string, error) {
	if int(h) >= len(w.fn.Expressions) {
		return "", newError(ErrInvalidModule, "expression %d out of range", h)
	}
	switch e := w.fn.Expressions[h].Kind.(type) {
	case ir.Literal:
		return formatLiteral(e.Value)
	case ir.ExprZeroValue:
		return w.zeroValue(e.Type)
	case ir.ExprCompose:
		ty, err := w.typeName(e.Type)
		if err != nil {
			return "", err
		}
		args, err := w.expressions(e.Components)
		if err != nil {
			return "", err
		}
		return ty + "(" + strings.Join(args, ", ") + ")", nil
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
		ty, err := w.resolvedTypeName(w.fn, h)
		if err != nil {
			return "", err
		}
		value, err := w.expression(e.Value)
		if err != nil {
			return "", err
		}
		return ty + "(" + value + ")", nil
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
		return w.names[nameKey{kind: nameKeyFunctionArgument, handle1: uint32(w.fnHandle), handle2: e.Index}], nil
	case ir.ExprGlobalVariable:
		return w.globalOperand(e.Variable, ref)
	case ir.ExprLocal:
		return w.names[nameKey{kind: nameKeyLocal, handle1: uint32(w.fnHandle), handle2: uint32(e.Local)}], nil
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
		return "", newError(ErrUnsupportedFeature, "buffer size queries have no GLSL spelling, use .length()")
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

// globalOperand names a global. Uniform and storage globals are read
// through their block; a block flattened from a struct can only be the base
// of a member access.
func (w *Writer) globalOperand(h ir.GlobalVariableHandle, ref bool) (string, error) {
	g := &w.module.GlobalVariables[h]
	name := w.globalName(h)
	switch g.Space {
	case ir.SpaceUniform, ir.SpaceStorage:
		member := blockMember(w.hasRuntimeArray(g.Type))
		if member != "" {
			return name + "." + member, nil
		}
		if !ref {
			return "", newError(ErrUnsupportedFeature, "storage buffer %q cannot be loaded as a whole", g.Name)
		}
		return name, nil
	case ir.SpaceHandle:
		if img, ok := w.module.TypeInner(g.Type).(ir.ImageType); ok && img.Class == ir.ImageClassStorage {
			return name, nil
		}
		return "", newError(ErrUnsupportedFeature, "%q can only be used by texture calls", g.Name)
	default:
		return name, nil
	}
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

// formatLiteral writes a literal in GLSL syntax.
func formatLiteral(v ir.LiteralValue) (string, error) {
	switch l := v.(type) {
	case ir.LiteralF32:
		return formatFloat(float32(l))
	case ir.LiteralF16:
		f, err := formatFloat(l.Float32())
		if err != nil {
			return "", err
		}
		return "float16_t(" + f + ")", nil
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

// zeroValue returns a constructor for the zero value of a type.
func (w *Writer) zeroValue(h ir.TypeHandle) (string, error) {
	switch t := w.module.TypeInner(h).(type) {
	case ir.ScalarType:
		return zeroScalar(t), nil
	case ir.VectorType:
		return vectorToGLSL(t) + "(" + zeroScalar(t.Scalar) + ")", nil
	case ir.MatrixType:
		return matrixToGLSL(t) + "(" + zeroScalar(t.Scalar) + ")", nil
	case ir.ArrayType:
		if t.Size.IsRuntime() {
			return "", newError(ErrUnsupportedFeature, "runtime-sized arrays have no zero value")
		}
		elem, err := w.zeroValue(t.Base)
		if err != nil {
			return "", err
		}
		ty, err := w.typeName(h)
		if err != nil {
			return "", err
		}
		parts := make([]string, *t.Size.Constant)
		for i := range parts {
			parts[i] = elem
		}
		return ty + "(" + strings.Join(parts, ", ") + ")", nil
	case ir.StructType:
		parts := make([]string, len(t.Members))
		for i, m := range t.Members {
			z, err := w.zeroValue(m.Type)
			if err != nil {
				return "", err
			}
			parts[i] = z
		}
		return w.typeNameOf(h) + "(" + strings.Join(parts, ", ") + ")", nil
	default:
		return "", newError(ErrUnsupportedFeature, "type %T has no zero value", t)
	}
}

func zeroScalar(s ir.ScalarType) string {
	switch s.Kind {
	case ir.ScalarBool:
		return "false"
	case ir.ScalarSint:
		return "0"
	case ir.ScalarUint:
		return "0u"
	default:
		if s.Width == 2 {
			return "float16_t(0.0)"
		}
		return "0.0"
	}
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
		if _, ok := w.fn.ExpressionTypes[e.Expr].Inner(w.module).(ir.VectorType); ok {
			return "not(" + operand + ")", nil
		}
		return "(!" + operand + ")", nil
	case ir.UnaryBitwiseNot:
		return "(~" + operand + ")", nil
	default:
		return "", newError(ErrUnsupportedFeature, "unary operator %d", e.Op)
	}
}

// vectorComparisons names the GLSL functions comparing vectors component-wise.
var vectorComparisons = map[ir.BinaryOperator]string{
	ir.BinaryEqual:        "equal",
	ir.BinaryNotEqual:     "notEqual",
	ir.BinaryLess:         "lessThan",
	ir.BinaryLessEqual:    "lessThanEqual",
	ir.BinaryGreater:      "greaterThan",
	ir.BinaryGreaterEqual: "greaterThanEqual",
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

	leftInner := w.fn.ExpressionTypes[e.Left].Inner(w.module)
	scalar, size := scalarOf(leftInner)

	switch {
	case e.Op.IsComparison() && size != 0:
		return vectorComparisons[e.Op] + "(" + left + ", " + right + ")", nil
	case e.Op == ir.BinaryModulo && scalar.Kind == ir.ScalarFloat:
		ty := builtin.TypeName(builtin.TargetGLSL, builtin.ClassOf(scalar), size)
		name := w.helper("tint_float_mod", fmt.Sprintf(
			"%[1]s {name}(%[1]s lhs, %[1]s rhs) {\n    return lhs - rhs * trunc(lhs / rhs);\n}", ty))
		if _, ok := w.fn.ExpressionTypes[e.Right].Inner(w.module).(ir.ScalarType); ok && size != 0 {
			right = ty + "(" + right + ")"
		}
		return name + "(" + left + ", " + right + ")", nil
	case (e.Op == ir.BinaryAnd || e.Op == ir.BinaryInclusiveOr) && scalar.Kind == ir.ScalarBool:
		// GLSL has no bitwise operators on booleans.
		boolTy := builtin.TypeName(builtin.TargetGLSL, builtin.ClassBool, size)
		uintTy := builtin.TypeName(builtin.TargetGLSL, builtin.ClassUint, size)
		return fmt.Sprintf("%s(%s(%s) %s %s(%s))", boolTy, uintTy, left, e.Op.Symbol(), uintTy, right), nil
	default:
		return "(" + left + " " + e.Op.Symbol() + " " + right + ")", nil
	}
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
	if cond, ok := w.fn.ExpressionTypes[e.Condition].Inner(w.module).(ir.VectorType); ok {
		scalar, _ := scalarOf(w.fn.ExpressionTypes[e.Accept].Inner(w.module))
		if scalar.Kind == ir.ScalarFloat || w.options.LangVersion.Supports(FeatureIntegerMix) {
			return "mix(" + reject + ", " + accept + ", " + condition + ")", nil
		}
		return w.selectHelper(scalar, cond.Size) + "(" + reject + ", " + accept + ", " + condition + ")", nil
	}
	return "(" + condition + " ? " + accept + " : " + reject + ")", nil
}

// selectHelper returns a component-wise select for versions whose mix()
// takes no integer or boolean operands. Each operand is evaluated once.
func (w *Writer) selectHelper(scalar ir.ScalarType, size ir.VectorSize) string {
	ty := builtin.TypeName(builtin.TargetGLSL, builtin.ClassOf(scalar), size)
	cond := builtin.TypeName(builtin.TargetGLSL, builtin.ClassBool, size)
	parts := make([]string, size)
	for i := range parts {
		c := "xyzw"[i : i+1]
		parts[i] = "c." + c + " ? t." + c + " : f." + c
	}
	return w.helper("tint_select", fmt.Sprintf(
		"%[1]s {name}(%[1]s f, %[1]s t, %[2]s c) {\n    return %[1]s(%[3]s);\n}", ty, cond, strings.Join(parts, ", ")))
}

func (w *Writer) cast(e ir.ExprAs) (string, error) {
	value, err := w.expression(e.Expr)
	if err != nil {
		return "", err
	}
	from, size := scalarOf(w.fn.ExpressionTypes[e.Expr].Inner(w.module))

	if e.Convert != nil {
		to := ir.ScalarType{Kind: e.Kind, Width: *e.Convert}
		return builtin.TypeName(builtin.TargetGLSL, builtin.ClassOf(to), size) + "(" + value + ")", nil
	}

	if from.Width != 4 {
		return "", newError(ErrUnsupportedFeature, "bitcast of %d-byte scalars", from.Width)
	}
	switch {
	case from.Kind == e.Kind:
		return value, nil
	case from.Kind == ir.ScalarFloat && e.Kind == ir.ScalarSint:
		return "floatBitsToInt(" + value + ")", nil
	case from.Kind == ir.ScalarFloat && e.Kind == ir.ScalarUint:
		return "floatBitsToUint(" + value + ")", nil
	case from.Kind == ir.ScalarSint && e.Kind == ir.ScalarFloat:
		return "intBitsToFloat(" + value + ")", nil
	case from.Kind == ir.ScalarUint && e.Kind == ir.ScalarFloat:
		return "uintBitsToFloat(" + value + ")", nil
	case from.Kind.IsInteger() && e.Kind.IsInteger():
		to := ir.ScalarType{Kind: e.Kind, Width: 4}
		return builtin.TypeName(builtin.TargetGLSL, builtin.ClassOf(to), size) + "(" + value + ")", nil
	default:
		return "", newError(ErrUnsupportedFeature, "bitcast from kind %d to kind %d", from.Kind, e.Kind)
	}
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
