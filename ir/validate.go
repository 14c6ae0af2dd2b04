package ir

import (
	"fmt"
)

// ValidationError represents a validation error.
type ValidationError struct {
	Message string
	// Optional context
	Function   string
	Expression *ExpressionHandle
	Statement  int
}

// Error implements the error interface.
func (e ValidationError) Error() string {
	if e.Function != "" {
		if e.Expression != nil {
			return fmt.Sprintf("in function %s, expression %d: %s", e.Function, *e.Expression, e.Message)
		}
		if e.Statement >= 0 {
			return fmt.Sprintf("in function %s, statement %d: %s", e.Function, e.Statement, e.Message)
		}
		return fmt.Sprintf("in function %s: %s", e.Function, e.Message)
	}
	return e.Message
}

// Validator validates IR modules.
type Validator struct {
	module  *Module
	errors  []ValidationError
	context validationContext
}

// validationContext holds current validation context.
type validationContext struct {
	function     *Function
	functionName string
	loopDepth    int
	switchDepth  int
	declared     map[LocalHandle]bool
}

// Validate checks the IR module for correctness.
// Returns validation errors if any, or nil if module is valid.
func Validate(module *Module) ([]ValidationError, error) {
	if module == nil {
		return nil, fmt.Errorf("module is nil")
	}

	v := &Validator{
		module: module,
		errors: make([]ValidationError, 0),
	}

	v.ValidateModule()

	if len(v.errors) > 0 {
		return v.errors, nil
	}
	return nil, nil
}

// ValidateModule validates the complete module.
func (v *Validator) ValidateModule() {
	v.validateTypes()
	v.validateGlobalVariables()
	v.validateFunctions()
	v.validateEntryPoints()
}

// validateTypes checks all types.
func (v *Validator) validateTypes() {
	for i, typ := range v.module.Types {
		v.validateType(TypeHandle(i), &typ)
	}
}

// validateType validates a single type.
//
//nolint:gocognit,gocyclo,cyclop // Type validation requires checking many type variants
func (v *Validator) validateType(handle TypeHandle, typ *Type) {
	if typ.Inner == nil {
		v.addError(fmt.Sprintf("type %d has nil inner type", handle))
		return
	}

	switch inner := typ.Inner.(type) {
	case ScalarType:
		if !validScalar(inner) {
			v.addError(fmt.Sprintf("type %d: invalid scalar width %d for kind %d", handle, inner.Width, inner.Kind))
		}

	case VectorType:
		if inner.Size != Vec2 && inner.Size != Vec3 && inner.Size != Vec4 {
			v.addError(fmt.Sprintf("type %d: vector size must be 2, 3, or 4, got %d", handle, inner.Size))
		}
		if !validScalar(inner.Scalar) {
			v.addError(fmt.Sprintf("type %d: invalid vector scalar width %d", handle, inner.Scalar.Width))
		}

	case MatrixType:
		if inner.Columns < Vec2 || inner.Columns > Vec4 {
			v.addError(fmt.Sprintf("type %d: matrix columns must be 2, 3, or 4, got %d", handle, inner.Columns))
		}
		if inner.Rows < Vec2 || inner.Rows > Vec4 {
			v.addError(fmt.Sprintf("type %d: matrix rows must be 2, 3, or 4, got %d", handle, inner.Rows))
		}
		if inner.Scalar.Kind != ScalarFloat {
			v.addError(fmt.Sprintf("type %d: matrix scalar must be float, got %v", handle, inner.Scalar.Kind))
		}

	case ArrayType:
		if !v.isValidTypeHandle(inner.Base) || inner.Base >= handle {
			v.addError(fmt.Sprintf("type %d: array base type %d must be declared before the array", handle, inner.Base))
		}
		if inner.Stride == 0 {
			v.addError(fmt.Sprintf("type %d: array stride must be non-zero", handle))
		}

	case StructType:
		memberNames := make(map[string]bool)
		for j, member := range inner.Members {
			if member.Name == "" {
				v.addError(fmt.Sprintf("type %d: struct member %d has empty name", handle, j))
			}
			if memberNames[member.Name] {
				v.addError(fmt.Sprintf("type %d: duplicate struct member name %q", handle, member.Name))
			}
			memberNames[member.Name] = true

			if !v.isValidTypeHandle(member.Type) || member.Type >= handle {
				v.addError(fmt.Sprintf("type %d: struct member %q type %d must be declared before the struct", handle, member.Name, member.Type))
				continue
			}
			if arr, ok := v.module.Types[member.Type].Inner.(ArrayType); ok && arr.Size.IsRuntime() && j != len(inner.Members)-1 {
				v.addError(fmt.Sprintf("type %d: runtime-sized member %q must be last", handle, member.Name))
			}
		}

	case PointerType:
		if !v.isValidTypeHandle(inner.Base) {
			v.addError(fmt.Sprintf("type %d: pointer base type %d does not exist", handle, inner.Base))
		}

	case SamplerType:

	case ImageType:
		if inner.Class == ImageClassStorage && inner.StorageAccess == 0 {
			v.addError(fmt.Sprintf("type %d: storage image needs an access mode", handle))
		}
		if inner.Dim == Dim3D && inner.Arrayed {
			v.addError(fmt.Sprintf("type %d: 3d images cannot be arrayed", handle))
		}
	}
}

func validScalar(s ScalarType) bool {
	switch s.Kind {
	case ScalarBool:
		return s.Width == 1
	case ScalarFloat:
		return s.Width == 2 || s.Width == 4
	default:
		return s.Width == 4
	}
}

// validateGlobalVariables checks all global variables.
func (v *Validator) validateGlobalVariables() {
	bindings := make(map[ResourceBinding]bool)
	names := make(map[string]bool)

	for i, gv := range v.module.GlobalVariables {
		if gv.Name != "" {
			if names[gv.Name] {
				v.addError(fmt.Sprintf("duplicate global variable name %q", gv.Name))
			}
			names[gv.Name] = true
		}

		if !v.isValidTypeHandle(gv.Type) {
			v.addError(fmt.Sprintf("global variable %d (%s): type %d does not exist", i, gv.Name, gv.Type))
			continue
		}

		switch gv.Space {
		case SpaceUniform, SpaceStorage, SpaceHandle:
			if gv.Binding == nil {
				v.addError(fmt.Sprintf("global variable %q: resource needs @group/@binding", gv.Name))
			}
		}
		if gv.Space == SpaceStorage && gv.Access&AccessRead == 0 {
			v.addError(fmt.Sprintf("global variable %q: storage buffers must be readable", gv.Name))
		}
		if gv.Space == SpaceHandle {
			switch v.module.Types[gv.Type].Inner.(type) {
			case ImageType, SamplerType:
			default:
				v.addError(fmt.Sprintf("global variable %q: handle space holds only textures and samplers", gv.Name))
			}
		}

		if gv.Binding != nil {
			if bindings[*gv.Binding] {
				v.addError(fmt.Sprintf("global variable %q: duplicate binding @group(%d) @binding(%d)",
					gv.Name, gv.Binding.Group, gv.Binding.Binding))
			}
			bindings[*gv.Binding] = true
		}
	}
}

// validateFunctions checks all functions.
func (v *Validator) validateFunctions() {
	names := make(map[string]bool)

	for i := range v.module.Functions {
		fn := &v.module.Functions[i]
		if fn.Name != "" {
			if names[fn.Name] {
				v.addError(fmt.Sprintf("duplicate function name %q", fn.Name))
			}
			names[fn.Name] = true
		}

		v.context = validationContext{
			function:     fn,
			functionName: fn.Name,
			declared:     make(map[LocalHandle]bool),
		}

		v.validateFunction(fn)
	}
}

// validateFunction validates a single function.
func (v *Validator) validateFunction(fn *Function) {
	for i, arg := range fn.Arguments {
		if !v.isValidTypeHandle(arg.Type) {
			v.addErrorInFunction(fmt.Sprintf("argument %d (%s): type %d does not exist", i, arg.Name, arg.Type))
		}
	}

	if fn.Result != nil && !v.isValidTypeHandle(fn.Result.Type) {
		v.addErrorInFunction(fmt.Sprintf("result type %d does not exist", fn.Result.Type))
	}

	for i, lv := range fn.Locals {
		if !v.isValidTypeHandle(lv.Type) {
			v.addErrorInFunction(fmt.Sprintf("local %d (%s): type %d does not exist", i, lv.Name, lv.Type))
			continue
		}
		if _, isPtr := v.module.Types[lv.Type].Inner.(PointerType); isPtr && lv.Kind == LocalVar {
			v.addErrorInFunction(fmt.Sprintf("local %q: variables cannot hold pointers", lv.Name))
		}
	}

	for i, expr := range fn.Expressions {
		v.validateExpression(ExpressionHandle(i), &expr)
	}

	v.validateBlock(fn.Body)
}

// validateExpression validates a single expression.
func (v *Validator) validateExpression(handle ExpressionHandle, expr *Expression) {
	if expr.Kind == nil {
		v.addErrorInExpression(handle, "expression has nil kind")
		return
	}

	bad := false
	Operands(expr.Kind, func(op ExpressionHandle) {
		if !v.isValidExpressionHandle(op) {
			v.addErrorInExpression(handle, fmt.Sprintf("operand %d does not exist", op))
			bad = true
		}
		if op == handle {
			v.addErrorInExpression(handle, "expression refers to itself")
			bad = true
		}
	})
	if bad {
		return
	}

	switch kind := expr.Kind.(type) {
	case ExprCall:
		if !v.isValidFunctionHandle(kind.Function) {
			v.addErrorInExpression(handle, fmt.Sprintf("function %d does not exist", kind.Function))
			return
		}
		callee := &v.module.Functions[kind.Function]
		if len(callee.Arguments) != len(kind.Arguments) {
			v.addErrorInExpression(handle, fmt.Sprintf("call to %s passes %d arguments, want %d",
				callee.Name, len(kind.Arguments), len(callee.Arguments)))
		}
	case ExprLocal:
		if int(kind.Local) >= len(v.context.function.Locals) {
			v.addErrorInExpression(handle, fmt.Sprintf("local %d does not exist", kind.Local))
			return
		}
	case ExprAddressOf:
		if !IsReference(v.module, v.context.function, kind.Expr) {
			v.addErrorInExpression(handle, "address-of operand is not a reference")
			return
		}
	case ExprBufferSize:
		if !v.isValidGlobalVariableHandle(kind.Variable) || v.module.GlobalVariables[kind.Variable].Space != SpaceStorage {
			v.addErrorInExpression(handle, "buffer size query needs a storage buffer")
			return
		}
	}

	if _, err := ResolveExpressionType(v.module, v.context.function, handle); err != nil {
		v.addErrorInExpression(handle, err.Error())
	}
}

// validateBlock validates a block of statements.
func (v *Validator) validateBlock(block Block) {
	for i, stmt := range block {
		v.validateStatement(i, &stmt)
	}
}

// validateStatement validates a single statement.
//
//nolint:gocognit,gocyclo,cyclop,funlen // Statement validation requires checking many statement variants
func (v *Validator) validateStatement(index int, stmt *Statement) {
	if stmt.Kind == nil {
		v.addErrorInStatement(index, "statement has nil kind")
		return
	}

	ok := true
	StatementOperands(stmt.Kind, func(h ExpressionHandle) {
		if !v.isValidExpressionHandle(h) {
			v.addErrorInStatement(index, fmt.Sprintf("expression %d does not exist", h))
			ok = false
		}
	})
	if !ok {
		return
	}
	fn := v.context.function

	switch kind := stmt.Kind.(type) {
	case StmtBlock:
		v.validateBlock(kind.Block)

	case StmtLet:
		v.declare(index, kind.Local, LocalLet)

	case StmtVar:
		v.declare(index, kind.Local, LocalVar)

	case StmtAssign:
		if !IsReference(v.module, fn, kind.Target) {
			v.addErrorInStatement(index, fmt.Sprintf("assignment target %d is not a reference", kind.Target))
		}

	case StmtIf:
		v.requireBool(index, kind.Condition, "if condition")
		v.validateBlock(kind.Accept)
		v.validateBlock(kind.Reject)

	case StmtSwitch:
		defaults := 0
		for _, c := range kind.Cases {
			if _, isDefault := c.Value.(SwitchValueDefault); isDefault {
				defaults++
			}
		}
		if defaults != 1 {
			v.addErrorInStatement(index, fmt.Sprintf("switch must have exactly one default case, has %d", defaults))
		}
		v.context.switchDepth++
		for _, c := range kind.Cases {
			v.validateBlock(c.Body)
		}
		v.context.switchDepth--

	case StmtLoop:
		v.context.loopDepth++
		v.validateBlock(kind.Body)
		v.validateBlock(kind.Continuing)
		v.context.loopDepth--
		if kind.BreakIf != nil {
			v.requireBool(index, *kind.BreakIf, "break-if condition")
		}

	case StmtBreak:
		if v.context.loopDepth == 0 && v.context.switchDepth == 0 {
			v.addErrorInStatement(index, "break outside of loop or switch")
		}

	case StmtContinue:
		if v.context.loopDepth == 0 {
			v.addErrorInStatement(index, "continue outside of loop")
		}

	case StmtReturn:
		switch {
		case fn.Result == nil && kind.Value != nil:
			v.addErrorInStatement(index, "return with a value from a function without a result")
		case fn.Result != nil && kind.Value == nil:
			v.addErrorInStatement(index, "return without a value")
		}

	case StmtKill, StmtExpr:
	}
}

func (v *Validator) declare(index int, local LocalHandle, kind LocalKind) {
	fn := v.context.function
	if int(local) >= len(fn.Locals) {
		v.addErrorInStatement(index, fmt.Sprintf("local %d does not exist", local))
		return
	}
	if fn.Locals[local].Kind != kind {
		v.addErrorInStatement(index, fmt.Sprintf("local %q declared with the wrong statement kind", fn.Locals[local].Name))
	}
	if v.context.declared[local] {
		v.addErrorInStatement(index, fmt.Sprintf("local %q declared twice", fn.Locals[local].Name))
	}
	v.context.declared[local] = true
}

func (v *Validator) requireBool(index int, h ExpressionHandle, what string) {
	res, err := ResolveExpressionType(v.module, v.context.function, h)
	if err != nil {
		return // reported by validateExpression
	}
	if s, ok := res.Inner(v.module).(ScalarType); !ok || s.Kind != ScalarBool {
		v.addErrorInStatement(index, what+" must be a bool")
	}
}

// validateEntryPoints checks all entry points.
func (v *Validator) validateEntryPoints() {
	names := make(map[string]bool)

	for i, ep := range v.module.EntryPoints {
		if ep.Name == "" {
			v.addError(fmt.Sprintf("entry point %d has empty name", i))
		}
		if names[ep.Name] {
			v.addError(fmt.Sprintf("duplicate entry point name %q", ep.Name))
		}
		names[ep.Name] = true

		if !v.isValidFunctionHandle(ep.Function) {
			v.addError(fmt.Sprintf("entry point %q: function %d does not exist", ep.Name, ep.Function))
			continue
		}

		fn := &v.module.Functions[ep.Function]

		switch ep.Stage {
		case StageVertex:
			// Position can be returned directly or as a struct member.
			if fn.Result == nil {
				v.addError(fmt.Sprintf("entry point %q (@vertex): must have a return value", ep.Name))
			} else if !v.hasPositionBuiltin(fn.Result) {
				v.addError(fmt.Sprintf("entry point %q (@vertex): must return @builtin(position)", ep.Name))
			}

		case StageFragment:

		case StageCompute:
			if ep.Workgroup[0] == 0 || ep.Workgroup[1] == 0 || ep.Workgroup[2] == 0 {
				v.addError(fmt.Sprintf("entry point %q (@compute): workgroup size must be non-zero", ep.Name))
			}
			if fn.Result != nil {
				v.addError(fmt.Sprintf("entry point %q (@compute): must not return a value", ep.Name))
			}
		}

		for _, arg := range fn.Arguments {
			if arg.Binding == nil && !v.structHasBindings(arg.Type) {
				v.addError(fmt.Sprintf("entry point %q: argument %q needs a binding", ep.Name, arg.Name))
			}
		}
	}
}

// hasPositionBuiltin checks if the function result contains @builtin(position).
func (v *Validator) hasPositionBuiltin(result *FunctionResult) bool {
	if result.Binding != nil && isPositionBuiltin(result.Binding) {
		return true
	}
	return v.structHasPositionBuiltin(result.Type)
}

// isPositionBuiltin checks if a binding is @builtin(position).
func isPositionBuiltin(binding Binding) bool {
	b, ok := binding.(BuiltinBinding)
	return ok && b.Builtin == BuiltinPosition
}

// structHasPositionBuiltin checks if a struct type has a member with @builtin(position).
func (v *Validator) structHasPositionBuiltin(typeHandle TypeHandle) bool {
	structType, ok := v.module.TypeInner(typeHandle).(StructType)
	if !ok {
		return false
	}
	for _, member := range structType.Members {
		if member.Binding != nil && isPositionBuiltin(member.Binding) {
			return true
		}
	}
	return false
}

func (v *Validator) structHasBindings(typeHandle TypeHandle) bool {
	structType, ok := v.module.TypeInner(typeHandle).(StructType)
	if !ok {
		return false
	}
	for _, member := range structType.Members {
		if member.Binding == nil {
			return false
		}
	}
	return len(structType.Members) > 0
}

// Helper methods for validation

func (v *Validator) isValidTypeHandle(handle TypeHandle) bool {
	return int(handle) < len(v.module.Types)
}

func (v *Validator) isValidGlobalVariableHandle(handle GlobalVariableHandle) bool {
	return int(handle) < len(v.module.GlobalVariables)
}

func (v *Validator) isValidFunctionHandle(handle FunctionHandle) bool {
	return int(handle) < len(v.module.Functions)
}

func (v *Validator) isValidExpressionHandle(handle ExpressionHandle) bool {
	if v.context.function == nil {
		return false
	}
	return int(handle) < len(v.context.function.Expressions)
}

func (v *Validator) addError(msg string) {
	v.errors = append(v.errors, ValidationError{
		Message:   msg,
		Statement: -1,
	})
}

func (v *Validator) addErrorInFunction(msg string) {
	v.errors = append(v.errors, ValidationError{
		Message:   msg,
		Function:  v.context.functionName,
		Statement: -1,
	})
}

func (v *Validator) addErrorInExpression(handle ExpressionHandle, msg string) {
	v.errors = append(v.errors, ValidationError{
		Message:    msg,
		Function:   v.context.functionName,
		Expression: &handle,
		Statement:  -1,
	})
}

func (v *Validator) addErrorInStatement(index int, msg string) {
	v.errors = append(v.errors, ValidationError{
		Message:   msg,
		Function:  v.context.functionName,
		Statement: index,
	})
}
