package transform

import (
	"github.com/gogpu/crossgpu/ir"
)

// SimplifyPointers removes let-bound pointers. Each `let p = &E` records p
// as an alias of the location E denotes, and every later use of p is
// rewritten to that location, so that `*p`, `(*p).f` and `&(*p)[i]` become
// plain access chains. `*&E` folds to E and `&*P` to P.
//
// Dynamic indices in an aliased location that could change between the let
// and a use are captured in a new let at the alias point. A pointer let whose
// initializer is not statically a location is kept and reported as a warning.
type SimplifyPointers struct{}

// Name implements Transform.
func (SimplifyPointers) Name() string { return "simplify_pointers" }

// Run implements Transform.
func (p SimplifyPointers) Run(module *ir.Module, ctx *Context) (*ir.Module, error) {
	return eachFunction(module, func(ed *editor) error {
		s := &simplifier{
			ed:      ed,
			ctx:     ctx,
			pass:    p.Name(),
			aliases: make(map[ir.LocalHandle]ir.ExpressionHandle),
		}
		ed.fn.Body = s.block(ed.fn.Body)
		return ed.err
	})
}

type simplifier struct {
	ed   *editor
	ctx  *Context
	pass string

	// aliases maps a pointer let to the reference expression of the location
	// it points at. Locations are stored already resolved, so chains of
	// aliases collapse as they are recorded.
	aliases map[ir.LocalHandle]ir.ExpressionHandle
}

func (s *simplifier) block(b ir.Block) ir.Block {
	return mapBlock(b, s.statement)
}

func (s *simplifier) isPointerLocal(l ir.LocalHandle) bool {
	_, ok := s.ed.module.TypeInner(s.ed.fn.Locals[l].Type).(ir.PointerType)
	return ok
}

func (s *simplifier) statement(stmt ir.Statement) []ir.Statement {
	switch st := stmt.Kind.(type) {
	case ir.StmtLet:
		if !s.isPointerLocal(st.Local) {
			return []ir.Statement{{Kind: ir.StmtLet{Local: st.Local, Value: s.value(st.Value)}}}
		}
		var pre ir.Block
		if loc, ok := s.location(st.Value, &pre); ok {
			s.aliases[st.Local] = loc
			return pre
		}
		s.ctx.warnf(s.pass, s.ed.fn.Name, "unresolved pointer alias %q", s.ed.fn.Locals[st.Local].Name)
		return []ir.Statement{{Kind: ir.StmtLet{Local: st.Local, Value: s.value(st.Value)}}}
	case ir.StmtVar:
		if st.Init != nil {
			init := s.value(*st.Init)
			st.Init = &init
		}
		return []ir.Statement{{Kind: st}}
	case ir.StmtAssign:
		return []ir.Statement{{Kind: ir.StmtAssign{Target: s.ref(st.Target, nil), Value: s.value(st.Value)}}}
	case ir.StmtIf:
		st.Condition = s.value(st.Condition)
		stmt.Kind = st
	case ir.StmtSwitch:
		st.Selector = s.value(st.Selector)
		stmt.Kind = st
	case ir.StmtLoop:
		// The body runs before continuing, so aliases declared in the body are
		// visible there; BreakIf is evaluated last.
		st.Body = s.block(st.Body)
		st.Continuing = s.block(st.Continuing)
		if st.BreakIf != nil {
			cond := s.value(*st.BreakIf)
			st.BreakIf = &cond
		}
		return []ir.Statement{{Kind: st}}
	case ir.StmtReturn:
		if st.Value != nil {
			v := s.value(*st.Value)
			st.Value = &v
		}
		return []ir.Statement{{Kind: st}}
	case ir.StmtExpr:
		return []ir.Statement{{Kind: ir.StmtExpr{Expr: s.value(st.Expr)}}}
	}
	return []ir.Statement{{Kind: mapChildren(stmt.Kind, s.block)}}
}

// location resolves the initializer of a pointer let to the reference it
// points at. Mutable indices are captured into lets appended to pre.
func (s *simplifier) location(ptr ir.ExpressionHandle, pre *ir.Block) (ir.ExpressionHandle, bool) {
	if ref, ok := s.pointee(ptr, pre); ok {
		return ref, true
	}
	if _, ok := s.ed.kind(ptr).(ir.ExprFunctionArgument); ok {
		return s.ed.add(ir.ExprDeref{Pointer: ptr}), true
	}
	return 0, false
}

// pointee returns the location a pointer expression points at, when it is
// statically known.
func (s *simplifier) pointee(ptr ir.ExpressionHandle, hoist *ir.Block) (ir.ExpressionHandle, bool) {
	switch e := s.ed.kind(ptr).(type) {
	case ir.ExprAddressOf:
		return s.ref(e.Expr, hoist), true
	case ir.ExprLocal:
		loc, ok := s.aliases[e.Local]
		return loc, ok
	}
	return 0, false
}

// ref canonicalizes a reference expression. When hoist is non-nil, mutable
// dynamic indices are captured into lets appended to it.
func (s *simplifier) ref(h ir.ExpressionHandle, hoist *ir.Block) ir.ExpressionHandle {
	ed := s.ed
	switch e := ed.kind(h).(type) {
	case ir.ExprDeref:
		if loc, ok := s.pointee(e.Pointer, hoist); ok {
			return loc
		}
		ptr := s.value(e.Pointer)
		if ptr == e.Pointer {
			return h
		}
		return ed.add(ir.ExprDeref{Pointer: ptr})
	case ir.ExprAccess:
		base := s.ref(e.Base, hoist)
		index := s.value(e.Index)
		if hoist != nil && !ed.isImmutable(index) {
			var stmt ir.Statement
			stmt, index = ed.let(s.ctx.Symbols.New("tint_symbol"), index)
			*hoist = append(*hoist, stmt)
		}
		if base == e.Base && index == e.Index {
			return h
		}
		return ed.add(ir.ExprAccess{Base: base, Index: index})
	case ir.ExprAccessIndex:
		base := s.ref(e.Base, hoist)
		if base == e.Base {
			return h
		}
		return ed.add(ir.ExprAccessIndex{Base: base, Index: e.Index})
	default:
		return h
	}
}

// value rewrites an expression evaluated for its value.
func (s *simplifier) value(h ir.ExpressionHandle) ir.ExpressionHandle {
	ed := s.ed
	switch e := ed.kind(h).(type) {
	case ir.ExprAddressOf:
		ref := s.ref(e.Expr, nil)
		if d, ok := ed.kind(ref).(ir.ExprDeref); ok {
			return d.Pointer
		}
		if ref == e.Expr {
			return h
		}
		return ed.add(ir.ExprAddressOf{Expr: ref})
	case ir.ExprLocal:
		if loc, ok := s.aliases[e.Local]; ok {
			if d, ok := ed.kind(loc).(ir.ExprDeref); ok {
				return d.Pointer
			}
			return ed.add(ir.ExprAddressOf{Expr: loc})
		}
		return h
	case ir.ExprDeref, ir.ExprAccess, ir.ExprAccessIndex:
		if ed.isReference(h) {
			return s.ref(h, nil)
		}
	}
	return ed.rebuild(h, s.value)
}
