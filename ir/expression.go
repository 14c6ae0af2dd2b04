package ir

import "github.com/x448/float16"

// Expression represents an expression in the IR.
//
// Expressions live in the owning function's arena and are evaluated where a
// statement references them. Locals, globals and access chains over them are
// references: used as a value they are read, used as an assignment target
// they name the storage location.
type Expression struct {
	Kind ExpressionKind
}

// ExpressionKind represents the different kinds of expressions.
type ExpressionKind interface {
	expressionKind()
}

// Literal represents a literal constant value.
type Literal struct {
	Value LiteralValue
}

func (Literal) expressionKind() {}

// LiteralValue represents the value of a literal.
type LiteralValue interface {
	literalValue()
}

// LiteralF32 represents a 32-bit float literal (may not be NaN or infinity).
type LiteralF32 float32

func (LiteralF32) literalValue() {}

// LiteralF16 represents a 16-bit float literal.
type LiteralF16 float16.Float16

func (LiteralF16) literalValue() {}

// Float32 widens the half-precision value.
func (l LiteralF16) Float32() float32 {
	return float16.Float16(l).Float32()
}

// LiteralU32 represents a 32-bit unsigned integer literal.
type LiteralU32 uint32

func (LiteralU32) literalValue() {}

// LiteralI32 represents a 32-bit signed integer literal.
type LiteralI32 int32

func (LiteralI32) literalValue() {}

// LiteralBool represents a boolean literal.
type LiteralBool bool

func (LiteralBool) literalValue() {}

// ExprZeroValue represents a zero-initialized value of a given type.
type ExprZeroValue struct {
	Type TypeHandle
}

func (ExprZeroValue) expressionKind() {}

// ExprCompose constructs a composite value (vector, matrix, array or struct).
type ExprCompose struct {
	Type       TypeHandle
	Components []ExpressionHandle
}

func (ExprCompose) expressionKind() {}

// ExprAccess indexes into a vector, matrix or array with a dynamic index.
// If Base is a reference the result is a reference.
type ExprAccess struct {
	Base  ExpressionHandle
	Index ExpressionHandle
}

func (ExprAccess) expressionKind() {}

// ExprAccessIndex accesses a struct member or a composite element with a
// compile-time constant index.
type ExprAccessIndex struct {
	Base  ExpressionHandle
	Index uint32
}

func (ExprAccessIndex) expressionKind() {}

// ExprSplat creates a vector by replicating a scalar value.
type ExprSplat struct {
	Size  VectorSize
	Value ExpressionHandle
}

func (ExprSplat) expressionKind() {}

// ExprSwizzle reorders or selects vector components.
type ExprSwizzle struct {
	Size    VectorSize
	Vector  ExpressionHandle
	Pattern [4]SwizzleComponent
}

func (ExprSwizzle) expressionKind() {}

// SwizzleComponent represents a component in a swizzle pattern.
type SwizzleComponent uint8

const (
	SwizzleX SwizzleComponent = iota
	SwizzleY
	SwizzleZ
	SwizzleW
)

// ExprFunctionArgument references a function argument by index.
type ExprFunctionArgument struct {
	Index uint32
}

func (ExprFunctionArgument) expressionKind() {}

// ExprGlobalVariable references a global variable.
// Uniform and storage globals are references; handle globals are opaque values.
type ExprGlobalVariable struct {
	Variable GlobalVariableHandle
}

func (ExprGlobalVariable) expressionKind() {}

// ExprLocal names a function-local binding. A LocalVar is a reference;
// a LocalLet is the value it was bound to.
type ExprLocal struct {
	Local LocalHandle
}

func (ExprLocal) expressionKind() {}

// ExprAddressOf takes the address of a reference expression, producing a pointer.
type ExprAddressOf struct {
	Expr ExpressionHandle
}

func (ExprAddressOf) expressionKind() {}

// ExprDeref turns a pointer back into a reference.
type ExprDeref struct {
	Pointer ExpressionHandle
}

func (ExprDeref) expressionKind() {}

// ExprUnary applies a unary operator to an expression.
type ExprUnary struct {
	Op   UnaryOperator
	Expr ExpressionHandle
}

func (ExprUnary) expressionKind() {}

// UnaryOperator represents unary operations.
type UnaryOperator uint8

const (
	UnaryNegate     UnaryOperator = iota // Arithmetic negation
	UnaryLogicalNot                      // Logical not (!)
	UnaryBitwiseNot                      // Bitwise not (~)
)

// ExprBinary applies a binary operator to two expressions.
type ExprBinary struct {
	Op    BinaryOperator
	Left  ExpressionHandle
	Right ExpressionHandle
}

func (ExprBinary) expressionKind() {}

// BinaryOperator represents binary operations.
type BinaryOperator uint8

const (
	// Arithmetic operations
	BinaryAdd      BinaryOperator = iota // Addition
	BinarySubtract                       // Subtraction
	BinaryMultiply                       // Multiplication
	BinaryDivide                         // Division
	BinaryModulo                         // Modulo (remainder)

	// Comparison operations
	BinaryEqual        // Equal (==)
	BinaryNotEqual     // Not equal (!=)
	BinaryLess         // Less than (<)
	BinaryLessEqual    // Less than or equal (<=)
	BinaryGreater      // Greater than (>)
	BinaryGreaterEqual // Greater than or equal (>=)

	// Bitwise operations
	BinaryAnd         // Bitwise AND
	BinaryExclusiveOr // Bitwise XOR
	BinaryInclusiveOr // Bitwise OR

	// Logical operations
	BinaryLogicalAnd // Logical AND (&&)
	BinaryLogicalOr  // Logical OR (||)

	// Shift operations
	BinaryShiftLeft  // Left shift (<<)
	BinaryShiftRight // Right shift (>>) - arithmetic for signed, logical for unsigned
)

// IsComparison reports whether the operator produces a boolean from two operands.
func (op BinaryOperator) IsComparison() bool {
	return op >= BinaryEqual && op <= BinaryGreaterEqual
}

// IsLogical reports whether the operator is a short-circuiting && or ||.
func (op BinaryOperator) IsLogical() bool {
	return op == BinaryLogicalAnd || op == BinaryLogicalOr
}

// Symbol returns the infix spelling shared by all C-like targets.
func (op BinaryOperator) Symbol() string {
	switch op {
	case BinaryAdd:
		return "+"
	case BinarySubtract:
		return "-"
	case BinaryMultiply:
		return "*"
	case BinaryDivide:
		return "/"
	case BinaryModulo:
		return "%"
	case BinaryEqual:
		return "=="
	case BinaryNotEqual:
		return "!="
	case BinaryLess:
		return "<"
	case BinaryLessEqual:
		return "<="
	case BinaryGreater:
		return ">"
	case BinaryGreaterEqual:
		return ">="
	case BinaryAnd:
		return "&"
	case BinaryExclusiveOr:
		return "^"
	case BinaryInclusiveOr:
		return "|"
	case BinaryLogicalAnd:
		return "&&"
	case BinaryLogicalOr:
		return "||"
	case BinaryShiftLeft:
		return "<<"
	case BinaryShiftRight:
		return ">>"
	default:
		return "?"
	}
}

// ExprSelect selects between two values based on a boolean condition.
// Equivalent to the ternary operator (condition ? accept : reject); a vector
// condition selects component-wise.
type ExprSelect struct {
	Condition ExpressionHandle
	Accept    ExpressionHandle
	Reject    ExpressionHandle
}

func (ExprSelect) expressionKind() {}

// ExprAs performs a type cast or conversion.
type ExprAs struct {
	Expr    ExpressionHandle
	Kind    ScalarKind
	Convert *uint8 // If set, convert to this byte width; otherwise bitcast
}

func (ExprAs) expressionKind() {}

// ExprCall calls a user-defined function. Calls are treated as having side effects.
type ExprCall struct {
	Function  FunctionHandle
	Arguments []ExpressionHandle
}

func (ExprCall) expressionKind() {}

// ExprBuiltin calls an intrinsic function. Void builtins such as barriers
// appear only as the operand of StmtExpr.
type ExprBuiltin struct {
	Fun  BuiltinFunction
	Args []ExpressionHandle
}

func (ExprBuiltin) expressionKind() {}

// ExprTexture calls a texture builtin. Which operands are present depends on Fun.
type ExprTexture struct {
	Fun        TextureFunction
	Image      ExpressionHandle
	Sampler    *ExpressionHandle
	Coordinate *ExpressionHandle
	ArrayIndex *ExpressionHandle
	Level      *ExpressionHandle // explicit LOD, or mip level for loads and dimensions
	Bias       *ExpressionHandle
	GradX      *ExpressionHandle
	GradY      *ExpressionHandle
	DepthRef   *ExpressionHandle
	Offset     *ExpressionHandle // must be a constant composite
	Sample     *ExpressionHandle // multisample index for loads
	Component  uint32            // gather component
	Value      *ExpressionHandle // texel written by TextureStore
}

func (ExprTexture) expressionKind() {}

// ExprBufferSize queries the size in bytes of the storage buffer bound to
// Variable. It is produced by the arrayLength lowering and never by a front end.
type ExprBufferSize struct {
	Variable GlobalVariableHandle
}

func (ExprBufferSize) expressionKind() {}
