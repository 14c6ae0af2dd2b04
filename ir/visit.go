package ir

// Operands calls f for every operand of an expression, in evaluation order.
func Operands(kind ExpressionKind, f func(ExpressionHandle)) {
	switch e := kind.(type) {
	case ExprCompose:
		for _, c := range e.Components {
			f(c)
		}
	case ExprAccess:
		f(e.Base)
		f(e.Index)
	case ExprAccessIndex:
		f(e.Base)
	case ExprSplat:
		f(e.Value)
	case ExprSwizzle:
		f(e.Vector)
	case ExprAddressOf:
		f(e.Expr)
	case ExprDeref:
		f(e.Pointer)
	case ExprUnary:
		f(e.Expr)
	case ExprBinary:
		f(e.Left)
		f(e.Right)
	case ExprSelect:
		f(e.Reject)
		f(e.Accept)
		f(e.Condition)
	case ExprAs:
		f(e.Expr)
	case ExprCall:
		for _, a := range e.Arguments {
			f(a)
		}
	case ExprBuiltin:
		for _, a := range e.Args {
			f(a)
		}
	case ExprTexture:
		f(e.Image)
		for _, p := range e.optionalOperands() {
			if *p != nil {
				f(**p)
			}
		}
	}
}

// optionalOperands lists the optional operand slots of a texture call in evaluation order.
func (e *ExprTexture) optionalOperands() []**ExpressionHandle {
	return []**ExpressionHandle{
		&e.Sampler, &e.Coordinate, &e.ArrayIndex, &e.Level, &e.Bias,
		&e.GradX, &e.GradY, &e.DepthRef, &e.Offset, &e.Sample, &e.Value,
	}
}

// MapOperands returns a copy of kind with every operand replaced by f(operand).
// Operands are visited in evaluation order.
func MapOperands(kind ExpressionKind, f func(ExpressionHandle) ExpressionHandle) ExpressionKind {
	switch e := kind.(type) {
	case ExprCompose:
		e.Components = mapHandles(e.Components, f)
		return e
	case ExprAccess:
		e.Base = f(e.Base)
		e.Index = f(e.Index)
		return e
	case ExprAccessIndex:
		e.Base = f(e.Base)
		return e
	case ExprSplat:
		e.Value = f(e.Value)
		return e
	case ExprSwizzle:
		e.Vector = f(e.Vector)
		return e
	case ExprAddressOf:
		e.Expr = f(e.Expr)
		return e
	case ExprDeref:
		e.Pointer = f(e.Pointer)
		return e
	case ExprUnary:
		e.Expr = f(e.Expr)
		return e
	case ExprBinary:
		e.Left = f(e.Left)
		e.Right = f(e.Right)
		return e
	case ExprSelect:
		e.Reject = f(e.Reject)
		e.Accept = f(e.Accept)
		e.Condition = f(e.Condition)
		return e
	case ExprAs:
		e.Expr = f(e.Expr)
		return e
	case ExprCall:
		e.Arguments = mapHandles(e.Arguments, f)
		return e
	case ExprBuiltin:
		e.Args = mapHandles(e.Args, f)
		return e
	case ExprTexture:
		e.Image = f(e.Image)
		for _, p := range e.optionalOperands() {
			if *p != nil {
				h := f(**p)
				*p = &h
			}
		}
		return e
	default:
		return kind
	}
}

func mapHandles(in []ExpressionHandle, f func(ExpressionHandle) ExpressionHandle) []ExpressionHandle {
	if in == nil {
		return nil
	}
	out := make([]ExpressionHandle, len(in))
	for i, h := range in {
		out[i] = f(h)
	}
	return out
}

// HasSideEffects reports whether evaluating the expression tree rooted at h
// may be observable beyond its value: user calls, barriers and texture stores.
func HasSideEffects(fn *Function, h ExpressionHandle) bool {
	if int(h) >= len(fn.Expressions) {
		return false
	}
	kind := fn.Expressions[h].Kind
	switch e := kind.(type) {
	case ExprCall:
		return true
	case ExprBuiltin:
		if e.Fun.HasSideEffects() {
			return true
		}
	case ExprTexture:
		if e.Fun == TextureStore {
			return true
		}
	}
	found := false
	Operands(kind, func(child ExpressionHandle) {
		if !found && HasSideEffects(fn, child) {
			found = true
		}
	})
	return found
}

// StatementOperands calls f for every expression a statement evaluates
// directly, not including nested blocks. Loop BreakIf is included.
func StatementOperands(kind StatementKind, f func(ExpressionHandle)) {
	switch s := kind.(type) {
	case StmtLet:
		f(s.Value)
	case StmtVar:
		if s.Init != nil {
			f(*s.Init)
		}
	case StmtAssign:
		f(s.Target)
		f(s.Value)
	case StmtIf:
		f(s.Condition)
	case StmtSwitch:
		f(s.Selector)
	case StmtLoop:
		if s.BreakIf != nil {
			f(*s.BreakIf)
		}
	case StmtReturn:
		if s.Value != nil {
			f(*s.Value)
		}
	case StmtExpr:
		f(s.Expr)
	}
}

// WalkBlock calls f for every statement in block, descending into nested
// blocks in source order. Returning false from f skips the statement's children.
func WalkBlock(block Block, f func(StatementKind) bool) {
	for _, stmt := range block {
		if !f(stmt.Kind) {
			continue
		}
		for _, child := range ChildBlocks(stmt.Kind) {
			WalkBlock(child, f)
		}
	}
}

// ChildBlocks returns the nested blocks of a statement in source order.
func ChildBlocks(kind StatementKind) []Block {
	switch s := kind.(type) {
	case StmtBlock:
		return []Block{s.Block}
	case StmtIf:
		return []Block{s.Accept, s.Reject}
	case StmtSwitch:
		blocks := make([]Block, len(s.Cases))
		for i, c := range s.Cases {
			blocks[i] = c.Body
		}
		return blocks
	case StmtLoop:
		return []Block{s.Body, s.Continuing}
	default:
		return nil
	}
}

// WalkExpressions calls f for every expression reachable from the function
// body, children before parents. An expression shared by several parents is
// visited once per use.
func WalkExpressions(fn *Function, f func(ExpressionHandle)) {
	var visit func(h ExpressionHandle)
	visit = func(h ExpressionHandle) {
		if int(h) >= len(fn.Expressions) {
			return
		}
		Operands(fn.Expressions[h].Kind, visit)
		f(h)
	}
	WalkBlock(fn.Body, func(kind StatementKind) bool {
		StatementOperands(kind, visit)
		return true
	})
}

// Reachable marks the functions called, directly or transitively, from roots.
// The roots themselves are marked.
func Reachable(module *Module, roots ...FunctionHandle) []bool {
	seen := make([]bool, len(module.Functions))
	stack := append([]FunctionHandle(nil), roots...)
	for len(stack) > 0 {
		h := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if int(h) >= len(seen) || seen[h] {
			continue
		}
		seen[h] = true
		for _, e := range module.Functions[h].Expressions {
			if call, ok := e.Kind.(ExprCall); ok {
				stack = append(stack, call.Function)
			}
		}
	}
	return seen
}

// UsedGlobals marks the globals referenced by the marked functions.
func UsedGlobals(module *Module, functions []bool) []bool {
	used := make([]bool, len(module.GlobalVariables))
	mark := func(g GlobalVariableHandle) {
		if int(g) < len(used) {
			used[g] = true
		}
	}
	for i, live := range functions {
		if !live {
			continue
		}
		for _, e := range module.Functions[i].Expressions {
			switch k := e.Kind.(type) {
			case ExprGlobalVariable:
				mark(k.Variable)
			case ExprBufferSize:
				mark(k.Variable)
			}
		}
	}
	return used
}
