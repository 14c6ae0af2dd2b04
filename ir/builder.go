package ir

import "fmt"

// FunctionBuilder appends expressions and statements to a function under
// construction, resolving each expression's type as it is added.
type FunctionBuilder struct {
	module *Module
	fn     Function
	cur    *Block
	err    error
}

// NewFunction starts building a function named name in module.
func NewFunction(module *Module, name string) *FunctionBuilder {
	b := &FunctionBuilder{module: module, fn: Function{Name: name}}
	b.cur = &b.fn.Body
	return b
}

// Function exposes the function under construction.
func (b *FunctionBuilder) Function() *Function {
	return &b.fn
}

// Arg declares an argument and returns an expression referring to it.
func (b *FunctionBuilder) Arg(name string, ty TypeHandle, binding Binding) ExpressionHandle {
	index := uint32(len(b.fn.Arguments))
	b.fn.Arguments = append(b.fn.Arguments, FunctionArgument{Name: name, Type: ty, Binding: binding})
	return b.Expr(ExprFunctionArgument{Index: index})
}

// Returns sets the function result.
func (b *FunctionBuilder) Returns(ty TypeHandle, binding Binding) {
	b.fn.Result = &FunctionResult{Type: ty, Binding: binding}
}

// Expr adds an expression to the arena.
func (b *FunctionBuilder) Expr(kind ExpressionKind) ExpressionHandle {
	handle := ExpressionHandle(len(b.fn.Expressions))
	b.fn.Expressions = append(b.fn.Expressions, Expression{Kind: kind})

	res, err := ResolveExpressionType(b.module, &b.fn, handle)
	if err != nil && b.err == nil {
		b.err = fmt.Errorf("expression %d (%T): %w", handle, kind, err)
	}
	b.fn.ExpressionTypes = append(b.fn.ExpressionTypes, res)
	return handle
}

// U32 adds a u32 literal.
func (b *FunctionBuilder) U32(v uint32) ExpressionHandle { return b.Expr(Literal{Value: LiteralU32(v)}) }

// I32 adds an i32 literal.
func (b *FunctionBuilder) I32(v int32) ExpressionHandle { return b.Expr(Literal{Value: LiteralI32(v)}) }

// F32 adds an f32 literal.
func (b *FunctionBuilder) F32(v float32) ExpressionHandle { return b.Expr(Literal{Value: LiteralF32(v)}) }

// Bool adds a bool literal.
func (b *FunctionBuilder) Bool(v bool) ExpressionHandle { return b.Expr(Literal{Value: LiteralBool(v)}) }

// Global refers to a module-scope variable.
func (b *FunctionBuilder) Global(h GlobalVariableHandle) ExpressionHandle {
	return b.Expr(ExprGlobalVariable{Variable: h})
}

// Local refers to a local declared with Var or Let.
func (b *FunctionBuilder) Local(h LocalHandle) ExpressionHandle {
	return b.Expr(ExprLocal{Local: h})
}

// Binary adds left op right.
func (b *FunctionBuilder) Binary(op BinaryOperator, left, right ExpressionHandle) ExpressionHandle {
	return b.Expr(ExprBinary{Op: op, Left: left, Right: right})
}

// Member accesses struct member or constant element index.
func (b *FunctionBuilder) Member(base ExpressionHandle, index uint32) ExpressionHandle {
	return b.Expr(ExprAccessIndex{Base: base, Index: index})
}

// Index accesses base[index] with a dynamic index.
func (b *FunctionBuilder) Index(base, index ExpressionHandle) ExpressionHandle {
	return b.Expr(ExprAccess{Base: base, Index: index})
}

// AddressOf adds &ref.
func (b *FunctionBuilder) AddressOf(ref ExpressionHandle) ExpressionHandle {
	return b.Expr(ExprAddressOf{Expr: ref})
}

// Deref adds *ptr.
func (b *FunctionBuilder) Deref(ptr ExpressionHandle) ExpressionHandle {
	return b.Expr(ExprDeref{Pointer: ptr})
}

// Call adds a call to a finished function.
func (b *FunctionBuilder) Call(fn FunctionHandle, args ...ExpressionHandle) ExpressionHandle {
	return b.Expr(ExprCall{Function: fn, Arguments: args})
}

// Builtin adds an intrinsic call.
func (b *FunctionBuilder) Builtin(fun BuiltinFunction, args ...ExpressionHandle) ExpressionHandle {
	return b.Expr(ExprBuiltin{Fun: fun, Args: args})
}

// Compose adds a composite constructor.
func (b *FunctionBuilder) Compose(ty TypeHandle, components ...ExpressionHandle) ExpressionHandle {
	return b.Expr(ExprCompose{Type: ty, Components: components})
}

// Stmt appends a statement to the current block.
func (b *FunctionBuilder) Stmt(kind StatementKind) {
	*b.cur = append(*b.cur, Statement{Kind: kind})
}

// Var declares a mutable local. init may be nil.
func (b *FunctionBuilder) Var(name string, ty TypeHandle, init *ExpressionHandle) LocalHandle {
	h := b.addLocal(name, ty, LocalVar)
	b.Stmt(StmtVar{Local: h, Init: init})
	return h
}

// Let binds an immutable local to value and returns an expression naming it.
func (b *FunctionBuilder) Let(name string, value ExpressionHandle) ExpressionHandle {
	ty, err := b.handleOf(value)
	if err != nil && b.err == nil {
		b.err = fmt.Errorf("let %s: %w", name, err)
	}
	h := b.addLocal(name, ty, LocalLet)
	b.Stmt(StmtLet{Local: h, Value: value})
	return b.Local(h)
}

func (b *FunctionBuilder) addLocal(name string, ty TypeHandle, kind LocalKind) LocalHandle {
	h := LocalHandle(len(b.fn.Locals))
	b.fn.Locals = append(b.fn.Locals, LocalVariable{Name: name, Type: ty, Kind: kind})
	return h
}

// handleOf returns a module type handle for an expression's type, adding the
// type to the module if it is only known inline.
func (b *FunctionBuilder) handleOf(h ExpressionHandle) (TypeHandle, error) {
	if int(h) >= len(b.fn.ExpressionTypes) {
		return 0, fmt.Errorf("expression %d out of range", h)
	}
	res := b.fn.ExpressionTypes[h]
	if res.Handle != nil {
		return *res.Handle, nil
	}
	if res.Value == nil {
		return 0, fmt.Errorf("expression %d has no value", h)
	}
	return b.module.EnsureType(res.Value), nil
}

// Assign stores value into the reference target.
func (b *FunctionBuilder) Assign(target, value ExpressionHandle) {
	b.Stmt(StmtAssign{Target: target, Value: value})
}

// Eval evaluates an expression for its side effects.
func (b *FunctionBuilder) Eval(expr ExpressionHandle) {
	b.Stmt(StmtExpr{Expr: expr})
}

// Return appends a return statement; value may be nil.
func (b *FunctionBuilder) Return(value *ExpressionHandle) {
	b.Stmt(StmtReturn{Value: value})
}

// If appends an if statement whose branches are built by accept and reject.
func (b *FunctionBuilder) If(cond ExpressionHandle, accept, reject func()) {
	b.Stmt(StmtIf{Condition: cond, Accept: b.collect(accept), Reject: b.collect(reject)})
}

// Loop appends a loop. breakIf is built inside the continuing block when non-nil.
func (b *FunctionBuilder) Loop(body, continuing func(), breakIf func() ExpressionHandle) {
	loop := StmtLoop{Body: b.collect(body)}
	var cond *ExpressionHandle
	loop.Continuing = b.collect(func() {
		if continuing != nil {
			continuing()
		}
		if breakIf != nil {
			h := breakIf()
			cond = &h
		}
	})
	loop.BreakIf = cond
	b.Stmt(loop)
}

func (b *FunctionBuilder) collect(f func()) Block {
	if f == nil {
		return nil
	}
	saved := b.cur
	var block Block
	b.cur = &block
	f()
	b.cur = saved
	return block
}

// Finish appends the function to the module and returns its handle along
// with the first error encountered while building.
func (b *FunctionBuilder) Finish() (FunctionHandle, error) {
	if b.err != nil {
		return 0, b.err
	}
	h := FunctionHandle(len(b.module.Functions))
	b.module.Functions = append(b.module.Functions, b.fn)
	return h, nil
}

// AddGlobal appends a global variable to the module.
func (m *Module) AddGlobal(g GlobalVariable) GlobalVariableHandle {
	h := GlobalVariableHandle(len(m.GlobalVariables))
	m.GlobalVariables = append(m.GlobalVariables, g)
	return h
}

// AddEntryPoint registers fn as an entry point.
func (m *Module) AddEntryPoint(name string, stage ShaderStage, fn FunctionHandle, workgroup [3]uint32) {
	m.EntryPoints = append(m.EntryPoints, EntryPoint{Name: name, Stage: stage, Function: fn, Workgroup: workgroup})
}
