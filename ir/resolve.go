package ir

import (
	"fmt"

	"github.com/gogpu/gputypes"
)

// ResolveModule fills ExpressionTypes for every function in the module.
func ResolveModule(module *Module) error {
	for i := range module.Functions {
		fn := &module.Functions[i]
		if err := ResolveFunction(module, fn); err != nil {
			return fmt.Errorf("function %q: %w", fn.Name, err)
		}
	}
	return nil
}

// ResolveFunction recomputes ExpressionTypes for one function. Void
// expressions (barriers, texture stores, calls without a result) resolve
// to an empty TypeResolution.
func ResolveFunction(module *Module, fn *Function) error {
	fn.ExpressionTypes = make([]TypeResolution, len(fn.Expressions))
	for h := range fn.Expressions {
		res, err := ResolveExpressionType(module, fn, ExpressionHandle(h))
		if err != nil {
			return fmt.Errorf("expression %d: %w", h, err)
		}
		fn.ExpressionTypes[h] = res
	}
	return nil
}

// ResolveExpressionType resolves the type of an expression in a function.
// References resolve to the type of the value they hold.
//
//nolint:gocyclo,cyclop,funlen // Type resolution requires handling all expression kinds
func ResolveExpressionType(module *Module, fn *Function, handle ExpressionHandle) (TypeResolution, error) {
	if int(handle) >= len(fn.Expressions) {
		return TypeResolution{}, fmt.Errorf("expression handle %d out of range (max %d)", handle, len(fn.Expressions))
	}

	expr := fn.Expressions[handle]

	switch kind := expr.Kind.(type) {
	case Literal:
		return resolveLiteralType(kind)
	case ExprZeroValue:
		return ResolutionOf(kind.Type), nil
	case ExprCompose:
		return ResolutionOf(kind.Type), nil
	case ExprAccess:
		return resolveAccessType(module, fn, kind.Base, nil)
	case ExprAccessIndex:
		return resolveAccessType(module, fn, kind.Base, &kind.Index)
	case ExprSplat:
		return resolveSplatType(module, fn, kind)
	case ExprSwizzle:
		return resolveSwizzleType(module, fn, kind)
	case ExprFunctionArgument:
		if int(kind.Index) >= len(fn.Arguments) {
			return TypeResolution{}, fmt.Errorf("function argument index %d out of range", kind.Index)
		}
		return ResolutionOf(fn.Arguments[kind.Index].Type), nil
	case ExprGlobalVariable:
		if int(kind.Variable) >= len(module.GlobalVariables) {
			return TypeResolution{}, fmt.Errorf("global variable %d out of range", kind.Variable)
		}
		return ResolutionOf(module.GlobalVariables[kind.Variable].Type), nil
	case ExprLocal:
		if int(kind.Local) >= len(fn.Locals) {
			return TypeResolution{}, fmt.Errorf("local %d out of range", kind.Local)
		}
		return ResolutionOf(fn.Locals[kind.Local].Type), nil
	case ExprAddressOf:
		return resolveAddressOfType(module, fn, kind)
	case ExprDeref:
		return resolveDerefType(module, fn, kind)
	case ExprUnary:
		return resolveUnaryType(module, fn, kind)
	case ExprBinary:
		return resolveBinaryType(module, fn, kind)
	case ExprSelect:
		acceptType, err := ResolveExpressionType(module, fn, kind.Accept)
		if err != nil {
			return TypeResolution{}, fmt.Errorf("select accept: %w", err)
		}
		return acceptType, nil
	case ExprAs:
		return resolveAsType(module, fn, kind)
	case ExprCall:
		if int(kind.Function) >= len(module.Functions) {
			return TypeResolution{}, fmt.Errorf("function %d out of range", kind.Function)
		}
		result := module.Functions[kind.Function].Result
		if result == nil {
			return TypeResolution{}, nil
		}
		return ResolutionOf(result.Type), nil
	case ExprBuiltin:
		return resolveBuiltinType(module, fn, kind)
	case ExprTexture:
		return resolveTextureType(module, fn, kind)
	case ExprBufferSize:
		return TypeResolution{Value: U32}, nil
	default:
		return TypeResolution{}, fmt.Errorf("unsupported expression kind: %T", kind)
	}
}

func resolveLiteralType(lit Literal) (TypeResolution, error) {
	switch v := lit.Value.(type) {
	case LiteralF32:
		return TypeResolution{Value: F32}, nil
	case LiteralF16:
		return TypeResolution{Value: F16}, nil
	case LiteralU32:
		return TypeResolution{Value: U32}, nil
	case LiteralI32:
		return TypeResolution{Value: I32}, nil
	case LiteralBool:
		return TypeResolution{Value: Bool}, nil
	default:
		return TypeResolution{}, fmt.Errorf("unknown literal type: %T", v)
	}
}

// resolveInner resolves an expression and returns its inner type.
func resolveInner(module *Module, fn *Function, h ExpressionHandle) (TypeInner, error) {
	res, err := ResolveExpressionType(module, fn, h)
	if err != nil {
		return nil, err
	}
	inner := res.Inner(module)
	if inner == nil {
		return nil, fmt.Errorf("expression %d has no value", h)
	}
	return inner, nil
}

// resolveAccessType handles ExprAccess (index == nil) and ExprAccessIndex.
func resolveAccessType(module *Module, fn *Function, base ExpressionHandle, index *uint32) (TypeResolution, error) {
	inner, err := resolveInner(module, fn, base)
	if err != nil {
		return TypeResolution{}, fmt.Errorf("access base: %w", err)
	}

	switch t := inner.(type) {
	case ArrayType:
		return ResolutionOf(t.Base), nil
	case VectorType:
		return TypeResolution{Value: t.Scalar}, nil
	case MatrixType:
		// Matrix access returns a column vector
		return TypeResolution{Value: VectorType{Size: t.Rows, Scalar: t.Scalar}}, nil
	case StructType:
		if index == nil {
			return TypeResolution{}, fmt.Errorf("struct members need a constant index")
		}
		if int(*index) >= len(t.Members) {
			return TypeResolution{}, fmt.Errorf("struct member index %d out of range", *index)
		}
		return ResolutionOf(t.Members[*index].Type), nil
	case PointerType:
		return TypeResolution{}, fmt.Errorf("cannot index a pointer without dereferencing it")
	default:
		return TypeResolution{}, fmt.Errorf("cannot index into type %T", t)
	}
}

func resolveSplatType(module *Module, fn *Function, expr ExprSplat) (TypeResolution, error) {
	inner, err := resolveInner(module, fn, expr.Value)
	if err != nil {
		return TypeResolution{}, fmt.Errorf("splat value: %w", err)
	}
	scalar, ok := inner.(ScalarType)
	if !ok {
		return TypeResolution{}, fmt.Errorf("splat value must be scalar, got %T", inner)
	}
	return TypeResolution{Value: VectorType{Size: expr.Size, Scalar: scalar}}, nil
}

func resolveSwizzleType(module *Module, fn *Function, expr ExprSwizzle) (TypeResolution, error) {
	inner, err := resolveInner(module, fn, expr.Vector)
	if err != nil {
		return TypeResolution{}, fmt.Errorf("swizzle vector: %w", err)
	}
	vec, ok := inner.(VectorType)
	if !ok {
		return TypeResolution{}, fmt.Errorf("swizzle base must be vector, got %T", inner)
	}
	if expr.Size == 1 {
		return TypeResolution{Value: vec.Scalar}, nil
	}
	return TypeResolution{Value: VectorType{Size: expr.Size, Scalar: vec.Scalar}}, nil
}

func resolveAddressOfType(module *Module, fn *Function, expr ExprAddressOf) (TypeResolution, error) {
	space, ok := ReferenceSpace(module, fn, expr.Expr)
	if !ok {
		return TypeResolution{}, fmt.Errorf("address-of operand %d is not a reference", expr.Expr)
	}
	res, err := ResolveExpressionType(module, fn, expr.Expr)
	if err != nil {
		return TypeResolution{}, fmt.Errorf("address-of operand: %w", err)
	}
	base, ok := findTypeHandle(module, res)
	if !ok {
		return TypeResolution{}, fmt.Errorf("address-of operand type %T is not declared in the module", res.Value)
	}
	return TypeResolution{Value: PointerType{Base: base, Space: space}}, nil
}

// findTypeHandle returns the module handle of a resolution without adding types.
func findTypeHandle(module *Module, res TypeResolution) (TypeHandle, bool) {
	if res.Handle != nil {
		return *res.Handle, true
	}
	r := registryFor(module.Types)
	h, ok := r.typeMap[r.key("", res.Value)]
	return h, ok
}

func resolveDerefType(module *Module, fn *Function, expr ExprDeref) (TypeResolution, error) {
	inner, err := resolveInner(module, fn, expr.Pointer)
	if err != nil {
		return TypeResolution{}, fmt.Errorf("deref pointer: %w", err)
	}
	ptr, ok := inner.(PointerType)
	if !ok {
		return TypeResolution{}, fmt.Errorf("deref requires pointer type, got %T", inner)
	}
	return ResolutionOf(ptr.Base), nil
}

func resolveUnaryType(module *Module, fn *Function, expr ExprUnary) (TypeResolution, error) {
	operandType, err := ResolveExpressionType(module, fn, expr.Expr)
	if err != nil {
		return TypeResolution{}, fmt.Errorf("unary operand: %w", err)
	}
	// Unary operators preserve the operand type
	return operandType, nil
}

func resolveBinaryType(module *Module, fn *Function, expr ExprBinary) (TypeResolution, error) {
	leftType, err := ResolveExpressionType(module, fn, expr.Left)
	if err != nil {
		return TypeResolution{}, fmt.Errorf("binary left: %w", err)
	}
	rightType, err := ResolveExpressionType(module, fn, expr.Right)
	if err != nil {
		return TypeResolution{}, fmt.Errorf("binary right: %w", err)
	}
	leftInner := leftType.Inner(module)
	rightInner := rightType.Inner(module)

	switch {
	case expr.Op.IsComparison():
		for _, inner := range []TypeInner{leftInner, rightInner} {
			if vec, ok := inner.(VectorType); ok {
				return TypeResolution{Value: VectorType{Size: vec.Size, Scalar: Bool}}, nil
			}
		}
		return TypeResolution{Value: Bool}, nil

	case expr.Op.IsLogical():
		return TypeResolution{Value: Bool}, nil

	case expr.Op == BinaryMultiply:
		return resolveMulResultType(leftType, rightType, leftInner, rightInner), nil

	default:
		// Scalars broadcast against vectors.
		_, leftIsScalar := leftInner.(ScalarType)
		_, rightIsVec := rightInner.(VectorType)
		if leftIsScalar && rightIsVec {
			return rightType, nil
		}
		return leftType, nil
	}
}

// resolveMulResultType matches WGSL: scalar*vec→vec, scalar*mat→mat,
// mat*vec→vec(rows), vec*mat→vec(cols).
func resolveMulResultType(left, right TypeResolution, leftInner, rightInner TypeInner) TypeResolution {
	_, leftIsScalar := leftInner.(ScalarType)
	_, rightIsVec := rightInner.(VectorType)
	leftMat, leftIsMat := leftInner.(MatrixType)
	rightMat, rightIsMat := rightInner.(MatrixType)
	_, leftIsVec := leftInner.(VectorType)

	switch {
	case leftIsScalar && (rightIsVec || rightIsMat):
		return right
	case leftIsMat && rightIsVec:
		return TypeResolution{Value: VectorType{Size: leftMat.Rows, Scalar: leftMat.Scalar}}
	case leftIsVec && rightIsMat:
		return TypeResolution{Value: VectorType{Size: rightMat.Columns, Scalar: rightMat.Scalar}}
	case leftIsMat && rightIsMat:
		return TypeResolution{Value: MatrixType{Columns: rightMat.Columns, Rows: leftMat.Rows, Scalar: leftMat.Scalar}}
	default:
		return left
	}
}

func resolveAsType(module *Module, fn *Function, expr ExprAs) (TypeResolution, error) {
	inner, err := resolveInner(module, fn, expr.Expr)
	if err != nil {
		return TypeResolution{}, fmt.Errorf("as expr: %w", err)
	}

	width := uint8(4)
	if expr.Convert != nil {
		width = *expr.Convert
	}
	if expr.Kind == ScalarBool {
		width = 1
	}
	target := ScalarType{Kind: expr.Kind, Width: width}
	switch t := inner.(type) {
	case VectorType:
		return TypeResolution{Value: VectorType{Size: t.Size, Scalar: target}}, nil
	case ScalarType:
		return TypeResolution{Value: target}, nil
	default:
		return TypeResolution{}, fmt.Errorf("cannot convert %T", inner)
	}
}

//nolint:gocyclo,cyclop // one case per builtin family
func resolveBuiltinType(module *Module, fn *Function, expr ExprBuiltin) (TypeResolution, error) {
	if len(expr.Args) != expr.Fun.Arity() {
		return TypeResolution{}, fmt.Errorf("%s expects %d arguments, got %d", expr.Fun, expr.Fun.Arity(), len(expr.Args))
	}
	if expr.Fun.IsBarrier() {
		return TypeResolution{}, nil
	}
	if expr.Fun == BuiltinArrayLength {
		return TypeResolution{Value: U32}, nil
	}
	if expr.Fun.IsPack() {
		return TypeResolution{Value: U32}, nil
	}
	switch expr.Fun {
	case BuiltinUnpack4x8snorm, BuiltinUnpack4x8unorm:
		return TypeResolution{Value: VectorType{Size: Vec4, Scalar: F32}}, nil
	case BuiltinUnpack2x16snorm, BuiltinUnpack2x16unorm, BuiltinUnpack2x16float:
		return TypeResolution{Value: VectorType{Size: Vec2, Scalar: F32}}, nil
	}

	argType, err := ResolveExpressionType(module, fn, expr.Args[0])
	if err != nil {
		return TypeResolution{}, fmt.Errorf("%s argument: %w", expr.Fun, err)
	}
	inner := argType.Inner(module)

	switch expr.Fun {
	case BuiltinDot, BuiltinLength, BuiltinDistance:
		if vec, ok := inner.(VectorType); ok {
			return TypeResolution{Value: vec.Scalar}, nil
		}
		return argType, nil
	case BuiltinAll, BuiltinAny:
		return TypeResolution{Value: Bool}, nil
	case BuiltinDeterminant:
		mat, ok := inner.(MatrixType)
		if !ok {
			return TypeResolution{}, fmt.Errorf("determinant requires a matrix, got %T", inner)
		}
		return TypeResolution{Value: mat.Scalar}, nil
	case BuiltinTranspose:
		mat, ok := inner.(MatrixType)
		if !ok {
			return TypeResolution{}, fmt.Errorf("transpose requires a matrix, got %T", inner)
		}
		return TypeResolution{Value: MatrixType{Columns: mat.Rows, Rows: mat.Columns, Scalar: mat.Scalar}}, nil
	case BuiltinStep, BuiltinSmoothStep:
		// The last argument determines the shape when edges are scalars.
		last, err := ResolveExpressionType(module, fn, expr.Args[len(expr.Args)-1])
		if err != nil {
			return TypeResolution{}, fmt.Errorf("%s argument: %w", expr.Fun, err)
		}
		return last, nil
	default:
		// Most builtins preserve the argument type
		return argType, nil
	}
}

func resolveTextureType(module *Module, fn *Function, expr ExprTexture) (TypeResolution, error) {
	inner, err := resolveInner(module, fn, expr.Image)
	if err != nil {
		return TypeResolution{}, fmt.Errorf("%s image: %w", expr.Fun, err)
	}
	img, ok := inner.(ImageType)
	if !ok {
		return TypeResolution{}, fmt.Errorf("%s requires image type, got %T", expr.Fun, inner)
	}

	switch expr.Fun {
	case TextureStore:
		return TypeResolution{}, nil
	case TextureDimensions:
		switch img.Dim {
		case Dim1D:
			return TypeResolution{Value: U32}, nil
		case Dim3D:
			return TypeResolution{Value: VectorType{Size: Vec3, Scalar: U32}}, nil
		default:
			return TypeResolution{Value: VectorType{Size: Vec2, Scalar: U32}}, nil
		}
	case TextureNumLevels, TextureNumLayers, TextureNumSamples:
		return TypeResolution{Value: U32}, nil
	case TextureSampleCompare, TextureSampleCompareLevel:
		return TypeResolution{Value: F32}, nil
	case TextureGather, TextureGatherCompare:
		return TypeResolution{Value: VectorType{Size: Vec4, Scalar: TexelScalar(img)}}, nil
	}

	if img.Class == ImageClassDepth {
		return TypeResolution{Value: F32}, nil
	}
	return TypeResolution{Value: VectorType{Size: Vec4, Scalar: TexelScalar(img)}}, nil
}

// TexelScalar returns the scalar type of the texels read from an image.
func TexelScalar(img ImageType) ScalarType {
	switch img.Class {
	case ImageClassDepth:
		return F32
	case ImageClassStorage:
		return ScalarType{Kind: StorageFormatKind(img.StorageFormat), Width: 4}
	default:
		if img.SampledKind == ScalarBool {
			return F32
		}
		return ScalarType{Kind: img.SampledKind, Width: 4}
	}
}

// StorageFormatKind returns the scalar kind shaders observe for a storage texel format.
func StorageFormatKind(format gputypes.TextureFormat) ScalarKind {
	switch format {
	case gputypes.TextureFormatR32Uint, gputypes.TextureFormatRG32Uint, gputypes.TextureFormatRGBA32Uint,
		gputypes.TextureFormatRGBA16Uint, gputypes.TextureFormatRGBA8Uint:
		return ScalarUint
	case gputypes.TextureFormatR32Sint, gputypes.TextureFormatRG32Sint, gputypes.TextureFormatRGBA32Sint,
		gputypes.TextureFormatRGBA16Sint, gputypes.TextureFormatRGBA8Sint:
		return ScalarSint
	default:
		return ScalarFloat
	}
}

// IsReference reports whether an expression denotes a storage location
// rather than a plain value.
func IsReference(module *Module, fn *Function, h ExpressionHandle) bool {
	_, ok := ReferenceSpace(module, fn, h)
	return ok
}

// ReferenceSpace returns the address space of the location an expression
// denotes, or false when the expression is not a reference.
func ReferenceSpace(module *Module, fn *Function, h ExpressionHandle) (AddressSpace, bool) {
	if int(h) >= len(fn.Expressions) {
		return 0, false
	}
	switch e := fn.Expressions[h].Kind.(type) {
	case ExprLocal:
		if int(e.Local) < len(fn.Locals) && fn.Locals[e.Local].Kind == LocalVar {
			return SpaceFunction, true
		}
	case ExprGlobalVariable:
		if int(e.Variable) < len(module.GlobalVariables) {
			space := module.GlobalVariables[e.Variable].Space
			return space, space != SpaceHandle
		}
	case ExprDeref:
		res, err := ResolveExpressionType(module, fn, e.Pointer)
		if err != nil {
			return 0, false
		}
		if ptr, ok := res.Inner(module).(PointerType); ok {
			return ptr.Space, true
		}
	case ExprAccess:
		return ReferenceSpace(module, fn, e.Base)
	case ExprAccessIndex:
		return ReferenceSpace(module, fn, e.Base)
	}
	return 0, false
}
