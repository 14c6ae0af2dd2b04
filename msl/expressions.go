package msl

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/gogpu/crossgpu/builtin"
	"github.com/gogpu/crossgpu/ir"
)

// expression returns the MSL text of an expression used as a value.
// Operator results are parenthesized; names, calls and accesses are not.
func (w *Writer) expression(h ir.ExpressionHandle) (string, error) {
	return w.operand(h, false)
}

// reference returns the MSL lvalue named by a reference expression.
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
		return base + w.arraySubscript(e.Base) + "[" + index + "]", nil
	case ir.ExprAccessIndex:
		return w.accessIndex(e, ref)
	case ir.ExprSplat:
		ty, err := w.resolvedTypeName(h)
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
		return w.argumentName(w.fnHandle, int(e.Index)), nil
	case ir.ExprGlobalVariable:
		return w.globalName(e.Variable), nil
	case ir.ExprLocal:
		return w.localName(e.Local), nil
	case ir.ExprAddressOf:
		// References bind to the lvalue itself.
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
		return w.call(e)
	case ir.ExprBuiltin:
		return w.builtinCall(e)
	case ir.ExprTexture:
		return w.texture(e)
	case ir.ExprBufferSize:
		return "", newError(ErrUnsupportedFeature, "Metal cannot query the size of buffer %q; lower arrayLength through a uniform table",
			w.module.GlobalVariables[e.Variable].Name)
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

// baseType returns the type an access expression indexes into, looking
// through pointers.
func (w *Writer) baseType(base ir.ExpressionHandle) (*ir.TypeHandle, ir.TypeInner) {
	res := w.fn.ExpressionTypes[base]
	inner := res.Inner(w.module)
	handle := res.Handle
	if ptr, ok := inner.(ir.PointerType); ok {
		handle = &ptr.Base
		inner = w.module.TypeInner(ptr.Base)
	}
	return handle, inner
}

// arraySubscript returns ".inner" when base is a wrapped fixed-size array.
func (w *Writer) arraySubscript(base ir.ExpressionHandle) string {
	_, inner := w.baseType(base)
	if arr, ok := inner.(ir.ArrayType); ok && !arr.Size.IsRuntime() {
		return ".inner"
	}
	return ""
}

func (w *Writer) accessIndex(e ir.ExprAccessIndex, ref bool) (string, error) {
	base, err := w.operand(e.Base, true)
	if err != nil {
		return "", err
	}

	handle, inner := w.baseType(e.Base)
	switch t := inner.(type) {
	case ir.StructType:
		if handle == nil {
			return "", newError(ErrInvalidModule, "struct access on an unnamed type")
		}
		if int(e.Index) >= len(t.Members) {
			return "", newError(ErrInvalidModule, "struct member %d out of range", e.Index)
		}
		member := base + "." + w.memberName(*handle, e.Index)
		if !ref && w.isPacked(*handle, e.Index) {
			// Unpack so the value has the vector type callers expect.
			ty, err := w.typeName(t.Members[e.Index].Type)
			if err != nil {
				return "", err
			}
			return ty + "(" + member + ")", nil
		}
		return member, nil
	case ir.VectorType:
		if e.Index > 3 {
			return "", newError(ErrInvalidModule, "vector component %d out of range", e.Index)
		}
		return base + "." + string("xyzw"[e.Index]), nil
	default:
		return fmt.Sprintf("%s%s[%d]", base, w.arraySubscript(e.Base), e.Index), nil
	}
}

// compose constructs a value of type h. Vectors and matrices have
// constructors; structs and array wrappers use aggregate initialization.
func (w *Writer) compose(h ir.TypeHandle, args []string) (string, error) {
	ty, err := w.typeName(h)
	if err != nil {
		return "", err
	}
	switch t := w.module.TypeInner(h).(type) {
	case ir.VectorType, ir.MatrixType:
		return ty + "(" + strings.Join(args, ", ") + ")", nil
	case ir.ArrayType:
		return ty + " {{" + strings.Join(args, ", ") + "}}", nil
	case ir.StructType:
		return ty + " " + w.structInit(h, args), nil
	default:
		return "", newError(ErrInvalidModule, "cannot compose type %T", t)
	}
}

// structInit writes an aggregate initializer for struct h, skipping the
// padding members with empty braces.
func (w *Writer) structInit(h ir.TypeHandle, values []string) string {
	layout := w.layouts[h]
	parts := make([]string, 0, len(values))
	for i, v := range values {
		if layout != nil && i < len(layout.pads) && layout.pads[i] != "" {
			parts = append(parts, "{}")
		}
		parts = append(parts, v)
	}
	return "{" + strings.Join(parts, ", ") + "}"
}

// zeroValue returns the value-initialized form of a type.
func (w *Writer) zeroValue(h ir.TypeHandle) (string, error) {
	ty, err := w.typeName(h)
	if err != nil {
		return "", err
	}
	return ty + " {}", nil
}

// formatLiteral writes a literal in MSL syntax.
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
	if e.Op == ir.BinaryModulo && scalar.Kind == ir.ScalarFloat {
		// % is integer-only; fmod truncates like WGSL's remainder.
		if _, ok := w.fn.ExpressionTypes[e.Right].Inner(w.module).(ir.ScalarType); ok && size != 0 {
			right = builtin.TypeName(builtin.TargetMSL, builtin.ClassOf(scalar), size) + "(" + right + ")"
		}
		return Namespace + "fmod(" + left + ", " + right + ")", nil
	}
	// Metal matrices are column major like WGSL, so products keep their order.
	return "(" + left + " " + e.Op.Symbol() + " " + right + ")", nil
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
	if _, vector := w.fn.ExpressionTypes[e.Condition].Inner(w.module).(ir.VectorType); vector {
		return Namespace + "select(" + reject + ", " + accept + ", " + condition + ")", nil
	}
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
		return builtin.TypeName(builtin.TargetMSL, builtin.ClassOf(to), size) + "(" + value + ")", nil
	}

	if from.Kind == e.Kind {
		return value, nil
	}
	if from.Kind == ir.ScalarBool || e.Kind == ir.ScalarBool {
		return "", newError(ErrUnsupportedFeature, "bitcast from kind %d to kind %d", from.Kind, e.Kind)
	}
	to := ir.ScalarType{Kind: e.Kind, Width: from.Width}
	return "as_type<" + builtin.TypeName(builtin.TargetMSL, builtin.ClassOf(to), size) + ">(" + value + ")", nil
}

// call passes the globals the callee reaches after its own arguments.
func (w *Writer) call(e ir.ExprCall) (string, error) {
	args, err := w.expressions(e.Arguments)
	if err != nil {
		return "", err
	}
	for _, g := range w.fnGlobals[e.Function] {
		args = append(args, w.globalName(g))
	}
	return w.functionName(e.Function) + "(" + strings.Join(args, ", ") + ")", nil
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
