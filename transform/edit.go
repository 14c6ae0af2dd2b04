package transform

import (
	"github.com/pkg/errors"

	"github.com/gogpu/crossgpu/ir"
)

// editor appends to one function's arenas while keeping ExpressionTypes in step.
type editor struct {
	module *ir.Module
	fn     *ir.Function
	err    error
}

func (ed *editor) kind(h ir.ExpressionHandle) ir.ExpressionKind {
	return ed.fn.Expressions[h].Kind
}

func (ed *editor) add(kind ir.ExpressionKind) ir.ExpressionHandle {
	h := ir.ExpressionHandle(len(ed.fn.Expressions))
	ed.fn.Expressions = append(ed.fn.Expressions, ir.Expression{Kind: kind})
	res, err := ir.ResolveExpressionType(ed.module, ed.fn, h)
	if err != nil && ed.err == nil {
		ed.err = errors.Wrapf(err, "synthesized expression %d", h)
	}
	ed.fn.ExpressionTypes = append(ed.fn.ExpressionTypes, res)
	return h
}

// set replaces an expression in place. Every use of h observes the change.
func (ed *editor) set(h ir.ExpressionHandle, kind ir.ExpressionKind) {
	ed.fn.Expressions[h] = ir.Expression{Kind: kind}
	res, err := ir.ResolveExpressionType(ed.module, ed.fn, h)
	if err != nil && ed.err == nil {
		ed.err = errors.Wrapf(err, "rewritten expression %d", h)
	}
	ed.fn.ExpressionTypes[h] = res
}

func (ed *editor) inner(h ir.ExpressionHandle) ir.TypeInner {
	return ed.fn.ExpressionTypes[h].Inner(ed.module)
}

// typeOf returns a module type handle for the value type of h.
func (ed *editor) typeOf(h ir.ExpressionHandle) ir.TypeHandle {
	res := ed.fn.ExpressionTypes[h]
	if res.Handle != nil {
		return *res.Handle
	}
	if res.Value == nil {
		if ed.err == nil {
			ed.err = errors.Errorf("expression %d has no value", h)
		}
		return 0
	}
	return ed.module.EnsureType(res.Value)
}

func (ed *editor) addLocal(name string, ty ir.TypeHandle, kind ir.LocalKind) ir.LocalHandle {
	h := ir.LocalHandle(len(ed.fn.Locals))
	ed.fn.Locals = append(ed.fn.Locals, ir.LocalVariable{Name: name, Type: ty, Kind: kind})
	return h
}

// let binds value to a fresh immutable local, returning the binding
// statement and an expression naming the local.
func (ed *editor) let(name string, value ir.ExpressionHandle) (ir.Statement, ir.ExpressionHandle) {
	local := ed.addLocal(name, ed.typeOf(value), ir.LocalLet)
	return ir.Statement{Kind: ir.StmtLet{Local: local, Value: value}}, ed.add(ir.ExprLocal{Local: local})
}

func (ed *editor) isReference(h ir.ExpressionHandle) bool {
	return ir.IsReference(ed.module, ed.fn, h)
}

// rebuild maps the operands of h through f and returns h itself when no
// operand changed, so passes that find nothing to do leave the arena alone.
func (ed *editor) rebuild(h ir.ExpressionHandle, f func(ir.ExpressionHandle) ir.ExpressionHandle) ir.ExpressionHandle {
	changed := false
	kind := ir.MapOperands(ed.kind(h), func(child ir.ExpressionHandle) ir.ExpressionHandle {
		out := f(child)
		if out != child {
			changed = true
		}
		return out
	})
	if !changed {
		return h
	}
	return ed.add(kind)
}

// isImmutable reports whether h always yields the same value wherever it is
// evaluated within the function: literals, lets, value arguments and pure
// operations over them.
func (ed *editor) isImmutable(h ir.ExpressionHandle) bool {
	switch e := ed.kind(h).(type) {
	case ir.Literal, ir.ExprZeroValue, ir.ExprFunctionArgument:
		return true
	case ir.ExprLocal:
		return ed.fn.Locals[e.Local].Kind == ir.LocalLet
	case ir.ExprGlobalVariable:
		return ed.module.GlobalVariables[e.Variable].Space == ir.SpaceHandle
	case ir.ExprCall, ir.ExprDeref, ir.ExprAddressOf, ir.ExprBufferSize, ir.ExprTexture:
		return false
	case ir.ExprBuiltin:
		if e.Fun.HasSideEffects() {
			return false
		}
	case ir.ExprAccess, ir.ExprAccessIndex:
		if ed.isReference(h) {
			return false
		}
	}
	immutable := true
	ir.Operands(ed.kind(h), func(child ir.ExpressionHandle) {
		if immutable && !ed.isImmutable(child) {
			immutable = false
		}
	})
	return immutable
}

// mapBlock rewrites a block statement by statement. f returns the
// statements that replace stmt and is responsible for stmt's children.
func mapBlock(block ir.Block, f func(stmt ir.Statement) []ir.Statement) ir.Block {
	if block == nil {
		return nil
	}
	out := make(ir.Block, 0, len(block))
	for _, stmt := range block {
		out = append(out, f(stmt)...)
	}
	return out
}

// mapChildren returns kind with each nested block replaced by g(block).
func mapChildren(kind ir.StatementKind, g func(ir.Block) ir.Block) ir.StatementKind {
	switch s := kind.(type) {
	case ir.StmtBlock:
		s.Block = g(s.Block)
		return s
	case ir.StmtIf:
		s.Accept = g(s.Accept)
		s.Reject = g(s.Reject)
		return s
	case ir.StmtSwitch:
		cases := make([]ir.SwitchCase, len(s.Cases))
		for i, c := range s.Cases {
			cases[i] = ir.SwitchCase{Value: c.Value, Body: g(c.Body)}
		}
		s.Cases = cases
		return s
	case ir.StmtLoop:
		s.Body = g(s.Body)
		s.Continuing = g(s.Continuing)
		return s
	default:
		return kind
	}
}

// linearizer rewrites the expressions of a single statement, moving
// subexpressions into lets placed before it.
type linearizer struct {
	ed   *editor
	ctx  *Context
	base string

	// all hoists every call and every load so that evaluation order is kept
	// once any of them has to move. It also lowers && and || so that hoisted
	// right operands stay conditional.
	all bool

	// hoistBase reports whether the base of a value access must be named.
	hoistBase func(h ir.ExpressionHandle) bool
}

func (l *linearizer) hoist(h ir.ExpressionHandle, pre *ir.Block) ir.ExpressionHandle {
	stmt, local := l.ed.let(l.ctx.Symbols.New(l.base), h)
	*pre = append(*pre, stmt)
	return local
}

// value rewrites h evaluated as a value. A root is the top-level operand of
// a statement and is never hoisted itself.
func (l *linearizer) value(h ir.ExpressionHandle, pre *ir.Block, root bool) ir.ExpressionHandle {
	ed := l.ed
	switch e := ed.kind(h).(type) {
	case ir.ExprBinary:
		if l.all && e.Op.IsLogical() {
			return l.logical(e, pre)
		}
	case ir.ExprAddressOf:
		ref := l.reference(e.Expr, pre)
		if ref == e.Expr {
			return h
		}
		return ed.add(ir.ExprAddressOf{Expr: ref})
	case ir.ExprAccess, ir.ExprAccessIndex:
		if !ed.isReference(h) && l.hoistBase != nil {
			return l.valueAccess(h, pre)
		}
	}

	if ed.isReference(h) {
		ref := l.reference(h, pre)
		if l.all && !root {
			return l.hoist(ref, pre)
		}
		return ref
	}

	out := ed.rebuild(h, func(child ir.ExpressionHandle) ir.ExpressionHandle {
		return l.value(child, pre, false)
	})
	if l.all && !root && l.hasValue(out) {
		switch e := ed.kind(out).(type) {
		case ir.ExprCall:
			return l.hoist(out, pre)
		case ir.ExprTexture:
			if e.Fun != ir.TextureStore {
				return l.hoist(out, pre)
			}
		}
	}
	return out
}

func (l *linearizer) hasValue(h ir.ExpressionHandle) bool {
	return l.ed.inner(h) != nil
}

func (l *linearizer) valueAccess(h ir.ExpressionHandle, pre *ir.Block) ir.ExpressionHandle {
	ed := l.ed
	switch e := ed.kind(h).(type) {
	case ir.ExprAccess:
		base := l.value(e.Base, pre, false)
		if l.hoistBase(base) {
			base = l.hoist(base, pre)
		}
		index := l.value(e.Index, pre, false)
		if base == e.Base && index == e.Index {
			return h
		}
		return ed.add(ir.ExprAccess{Base: base, Index: index})
	case ir.ExprAccessIndex:
		base := l.value(e.Base, pre, false)
		if l.hoistBase(base) {
			base = l.hoist(base, pre)
		}
		if base == e.Base {
			return h
		}
		return ed.add(ir.ExprAccessIndex{Base: base, Index: e.Index})
	}
	return h
}

// reference rewrites a reference chain. Only the dynamic indices inside it
// are values.
func (l *linearizer) reference(h ir.ExpressionHandle, pre *ir.Block) ir.ExpressionHandle {
	ed := l.ed
	switch e := ed.kind(h).(type) {
	case ir.ExprAccess:
		base := l.reference(e.Base, pre)
		index := l.value(e.Index, pre, false)
		if base == e.Base && index == e.Index {
			return h
		}
		return ed.add(ir.ExprAccess{Base: base, Index: index})
	case ir.ExprAccessIndex:
		base := l.reference(e.Base, pre)
		if base == e.Base {
			return h
		}
		return ed.add(ir.ExprAccessIndex{Base: base, Index: e.Index})
	case ir.ExprDeref:
		ptr := l.value(e.Pointer, pre, true)
		if ptr == e.Pointer {
			return h
		}
		return ed.add(ir.ExprDeref{Pointer: ptr})
	default:
		return h
	}
}

// logical lowers a && b to
//
//	var t = a;
//	if (t) { t = b; }
//
// and a || b to the same with the condition negated.
func (l *linearizer) logical(e ir.ExprBinary, pre *ir.Block) ir.ExpressionHandle {
	ed := l.ed
	left := l.value(e.Left, pre, true)
	tmp := ed.addLocal(l.ctx.Symbols.New("tint_tmp"), ed.module.EnsureType(ir.Bool), ir.LocalVar)
	*pre = append(*pre, ir.Statement{Kind: ir.StmtVar{Local: tmp, Init: &left}})

	var inner ir.Block
	right := l.value(e.Right, &inner, true)
	inner = append(inner, ir.Statement{Kind: ir.StmtAssign{Target: ed.add(ir.ExprLocal{Local: tmp}), Value: right}})

	cond := ed.add(ir.ExprLocal{Local: tmp})
	if e.Op == ir.BinaryLogicalOr {
		cond = ed.add(ir.ExprUnary{Op: ir.UnaryLogicalNot, Expr: cond})
	}
	*pre = append(*pre, ir.Statement{Kind: ir.StmtIf{Condition: cond, Accept: inner}})
	return ed.add(ir.ExprLocal{Local: tmp})
}

// statement linearizes the expressions stmt evaluates directly and returns
// the hoisted statements followed by the rewritten statement. Hoisted parts
// of a loop's break-if condition go to the end of its continuing block.
func (l *linearizer) statement(stmt ir.Statement) []ir.Statement {
	var pre ir.Block
	root := func(h ir.ExpressionHandle) ir.ExpressionHandle { return l.value(h, &pre, true) }
	rootPtr := func(h *ir.ExpressionHandle) *ir.ExpressionHandle {
		if h == nil {
			return nil
		}
		out := root(*h)
		return &out
	}

	var kind ir.StatementKind
	switch s := stmt.Kind.(type) {
	case ir.StmtLet:
		kind = ir.StmtLet{Local: s.Local, Value: root(s.Value)}
	case ir.StmtVar:
		kind = ir.StmtVar{Local: s.Local, Init: rootPtr(s.Init)}
	case ir.StmtAssign:
		target := l.reference(s.Target, &pre)
		kind = ir.StmtAssign{Target: target, Value: root(s.Value)}
	case ir.StmtIf:
		s.Condition = root(s.Condition)
		kind = s
	case ir.StmtSwitch:
		s.Selector = root(s.Selector)
		kind = s
	case ir.StmtReturn:
		kind = ir.StmtReturn{Value: rootPtr(s.Value)}
	case ir.StmtExpr:
		kind = ir.StmtExpr{Expr: root(s.Expr)}
	case ir.StmtLoop:
		if s.BreakIf != nil {
			s.BreakIf = rootPtr(s.BreakIf)
			s.Continuing = append(append(ir.Block(nil), s.Continuing...), pre...)
			pre = nil
		}
		kind = s
	default:
		kind = s
	}
	return append(pre, ir.Statement{Kind: kind})
}

// runLinearizer rewrites every statement of the function for which setup
// returns a linearizer, descending into nested blocks first.
func runLinearizer(ed *editor, ctx *Context, setup func(stmt ir.Statement) *linearizer) {
	var walk func(block ir.Block) ir.Block
	walk = func(block ir.Block) ir.Block {
		return mapBlock(block, func(stmt ir.Statement) []ir.Statement {
			stmt = ir.Statement{Kind: mapChildren(stmt.Kind, walk)}
			l := setup(stmt)
			if l == nil {
				return []ir.Statement{stmt}
			}
			l.ed, l.ctx = ed, ctx
			if l.base == "" {
				l.base = "tint_symbol"
			}
			return l.statement(stmt)
		})
	}
	ed.fn.Body = walk(ed.fn.Body)
}

// statementHas reports whether any expression stmt evaluates directly
// contains a node satisfying pred.
func statementHas(ed *editor, stmt ir.Statement, pred func(ir.ExpressionHandle) bool) bool {
	found := false
	var visit func(h ir.ExpressionHandle)
	visit = func(h ir.ExpressionHandle) {
		if found {
			return
		}
		if pred(h) {
			found = true
			return
		}
		ir.Operands(ed.kind(h), visit)
	}
	ir.StatementOperands(stmt.Kind, visit)
	return found
}
