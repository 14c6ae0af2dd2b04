package transform

import (
	"github.com/gogpu/crossgpu/ir"
)

// GuardIntegerDivision makes integer division and remainder by zero
// defined. The divisor d of every integer / and % becomes
// select(d, 1, d == 0), component-wise for vectors, unless d is a
// constant with no zero component. A divisor with side effects is first
// named in a let so it is still evaluated once.
type GuardIntegerDivision struct{}

// Name implements Transform.
func (GuardIntegerDivision) Name() string { return "guard_integer_division" }

// Run implements Transform.
func (GuardIntegerDivision) Run(module *ir.Module, ctx *Context) (*ir.Module, error) {
	return eachFunction(module, func(ed *editor) error {
		g := divisionGuard{ed: ed}
		runLinearizer(ed, ctx, func(stmt ir.Statement) *linearizer {
			if !statementHas(ed, stmt, func(h ir.ExpressionHandle) bool {
				e, ok := g.division(h)
				return ok && ir.HasSideEffects(ed.fn, e.Right)
			}) {
				return nil
			}
			return &linearizer{all: true}
		})

		var targets []ir.ExpressionHandle
		seen := make(map[ir.ExpressionHandle]bool)
		ir.WalkExpressions(ed.fn, func(h ir.ExpressionHandle) {
			if _, ok := g.division(h); ok && !seen[h] {
				seen[h] = true
				targets = append(targets, h)
			}
		})
		for _, h := range targets {
			e := ed.kind(h).(ir.ExprBinary)
			e.Right = g.guard(e.Right)
			ed.set(h, e)
		}
		return ed.err
	})
}

type divisionGuard struct {
	ed *editor
}

// division reports whether h is an integer division whose divisor may be zero.
func (g divisionGuard) division(h ir.ExpressionHandle) (ir.ExprBinary, bool) {
	e, ok := g.ed.kind(h).(ir.ExprBinary)
	if !ok || (e.Op != ir.BinaryDivide && e.Op != ir.BinaryModulo) {
		return e, false
	}
	scalar, ok := g.scalarOf(e.Right)
	if !ok || !scalar.Kind.IsInteger() {
		return e, false
	}
	return e, !g.nonZero(e.Right)
}

func (g divisionGuard) scalarOf(h ir.ExpressionHandle) (ir.ScalarType, bool) {
	switch t := g.ed.inner(h).(type) {
	case ir.ScalarType:
		return t, true
	case ir.VectorType:
		return t.Scalar, true
	}
	return ir.ScalarType{}, false
}

// nonZero reports whether h is a constant with no zero component.
func (g divisionGuard) nonZero(h ir.ExpressionHandle) bool {
	switch e := g.ed.kind(h).(type) {
	case ir.Literal:
		switch v := e.Value.(type) {
		case ir.LiteralI32:
			return v != 0
		case ir.LiteralU32:
			return v != 0
		}
	case ir.ExprSplat:
		return g.nonZero(e.Value)
	case ir.ExprCompose:
		for _, c := range e.Components {
			if !g.nonZero(c) {
				return false
			}
		}
		return len(e.Components) > 0
	}
	return false
}

func (g divisionGuard) guard(d ir.ExpressionHandle) ir.ExpressionHandle {
	ed := g.ed
	scalar, _ := g.scalarOf(d)
	lit := func(v uint32) ir.ExpressionHandle {
		if scalar.Kind == ir.ScalarSint {
			return ed.add(ir.Literal{Value: ir.LiteralI32(int32(v))})
		}
		return ed.add(ir.Literal{Value: ir.LiteralU32(v)})
	}
	zero, one := lit(0), lit(1)
	if vec, ok := ed.inner(d).(ir.VectorType); ok {
		zero = ed.add(ir.ExprSplat{Size: vec.Size, Value: zero})
		one = ed.add(ir.ExprSplat{Size: vec.Size, Value: one})
	}
	cond := ed.add(ir.ExprBinary{Op: ir.BinaryEqual, Left: d, Right: zero})
	return ed.add(ir.ExprSelect{Condition: cond, Accept: one, Reject: d})
}
