package transform

import (
	"github.com/gogpu/crossgpu/ir"
)

// PromoteInitializers names array and struct constructors that are indexed
// or member-accessed directly. `array<i32, 3>(a, b, c)[i]` becomes
//
//	let tint_symbol = array<i32, 3>(a, b, c);
//	... tint_symbol[i] ...
//
// When the statement also calls functions, every call and load in it is
// named in evaluation order so the constructor is still evaluated where it
// was written.
type PromoteInitializers struct{}

// Name implements Transform.
func (PromoteInitializers) Name() string { return "promote_initializers" }

// Run implements Transform.
func (PromoteInitializers) Run(module *ir.Module, ctx *Context) (*ir.Module, error) {
	return eachFunction(module, func(ed *editor) error {
		isComposite := func(h ir.ExpressionHandle) bool {
			c, ok := ed.kind(h).(ir.ExprCompose)
			if !ok {
				return false
			}
			switch ed.module.TypeInner(c.Type).(type) {
			case ir.ArrayType, ir.StructType:
				return true
			}
			return false
		}
		indexed := func(h ir.ExpressionHandle) bool {
			switch e := ed.kind(h).(type) {
			case ir.ExprAccess:
				return isComposite(e.Base)
			case ir.ExprAccessIndex:
				return isComposite(e.Base)
			}
			return false
		}
		runLinearizer(ed, ctx, func(stmt ir.Statement) *linearizer {
			if !statementHas(ed, stmt, indexed) {
				return nil
			}
			return &linearizer{
				all:       statementHas(ed, stmt, func(h ir.ExpressionHandle) bool { return ir.HasSideEffects(ed.fn, h) }),
				hoistBase: isComposite,
			}
		})
		return ed.err
	})
}
