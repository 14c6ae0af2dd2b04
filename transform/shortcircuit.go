package transform

import (
	"github.com/gogpu/crossgpu/ir"
)

// LowerShortCircuit turns && and || whose right operand has side effects
// into explicit control flow:
//
//	var tint_tmp = a;
//	if (tint_tmp) { tint_tmp = b; }
//
// for a && b, and the same guarded by !tint_tmp for a || b. Nested operators
// lower inside out. The other calls and loads of an affected statement are
// named in evaluation order so they keep their position relative to a and b.
type LowerShortCircuit struct{}

// Name implements Transform.
func (LowerShortCircuit) Name() string { return "lower_short_circuit" }

// Run implements Transform.
func (LowerShortCircuit) Run(module *ir.Module, ctx *Context) (*ir.Module, error) {
	return eachFunction(module, func(ed *editor) error {
		effectful := func(h ir.ExpressionHandle) bool {
			b, ok := ed.kind(h).(ir.ExprBinary)
			return ok && b.Op.IsLogical() && ir.HasSideEffects(ed.fn, b.Right)
		}
		runLinearizer(ed, ctx, func(stmt ir.Statement) *linearizer {
			if !statementHas(ed, stmt, effectful) {
				return nil
			}
			return &linearizer{all: true}
		})
		return ed.err
	})
}
