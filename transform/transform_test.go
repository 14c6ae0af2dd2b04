package transform

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gogpu/crossgpu/interp"
	"github.com/gogpu/crossgpu/ir"
)

func build(t *testing.T, m *ir.Module, name string, body func(b *ir.FunctionBuilder)) ir.FunctionHandle {
	t.Helper()
	b := ir.NewFunction(m, name)
	body(b)
	h, err := b.Finish()
	require.NoError(t, err)
	return h
}

func apply(t *testing.T, m *ir.Module, passes ...Transform) (*ir.Module, *Context) {
	t.Helper()
	ctx := NewContext(m)
	out, err := NewManager(passes...).Run(m, ctx)
	require.NoError(t, err)
	return out, ctx
}

func call(t *testing.T, m *ir.Module, name string, args []any, opts ...interp.Option) (any, *interp.Machine) {
	t.Helper()
	mach, err := interp.New(m, opts...)
	require.NoError(t, err)
	v, err := mach.Call(name, args...)
	require.NoError(t, err)
	return v, mach
}

// statements collects every statement of fn's body, nested ones included.
func statements(fn *ir.Function) []ir.StatementKind {
	var out []ir.StatementKind
	ir.WalkBlock(fn.Body, func(kind ir.StatementKind) bool {
		out = append(out, kind)
		return true
	})
	return out
}

func function(m *ir.Module, name string) *ir.Function {
	for i := range m.Functions {
		if m.Functions[i].Name == name {
			return &m.Functions[i]
		}
	}
	return nil
}

type failing struct{}

func (failing) Name() string { return "failing" }

func (failing) Run(*ir.Module, *Context) (*ir.Module, error) {
	return nil, errors.New("boom")
}

func TestManager(t *testing.T) {
	m := NewManager(SimplifyPointers{}, PromoteInitializers{})
	m.Add(GuardIntegerDivision{})
	assert.Equal(t, []string{"simplify_pointers", "promote_initializers", "guard_integer_division"}, m.Names())

	_, err := m.Run(nil, nil)
	assert.Error(t, err)

	_, err = NewManager(SimplifyPointers{}, failing{}).Run(&ir.Module{}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failing: boom")
}

func TestManagerLeavesInputUntouched(t *testing.T) {
	m := &ir.Module{}
	i32 := m.EnsureType(ir.I32)
	build(t, m, "f", func(b *ir.FunctionBuilder) {
		b.Returns(i32, nil)
		v := b.Var("v", i32, nil)
		p := b.Let("p", b.AddressOf(b.Local(v)))
		r := b.Deref(p)
		b.Return(&r)
	})
	before := len(m.Functions[0].Body)
	exprs := len(m.Functions[0].Expressions)

	out, _ := apply(t, m, SimplifyPointers{})
	assert.Len(t, m.Functions[0].Body, before)
	assert.Len(t, m.Functions[0].Expressions, exprs)
	assert.Less(t, len(out.Functions[0].Body), before)
}

func TestContextReservesModuleNames(t *testing.T) {
	m := &ir.Module{}
	i32 := m.EnsureType(ir.I32)
	build(t, m, "tint_symbol", func(b *ir.FunctionBuilder) {
		b.Var("tint_tmp", i32, nil)
	})
	ctx := NewContext(m)
	assert.True(t, ctx.Symbols.IsUsed("tint_symbol"))
	assert.True(t, ctx.Symbols.IsUsed("tint_tmp"))
	assert.NotEqual(t, "tint_symbol", ctx.Symbols.New("tint_symbol"))
}

func TestDiagnosticString(t *testing.T) {
	d := Diagnostic{Severity: SeverityWarning, Pass: "simplify_pointers", Function: "f", Message: "unresolved"}
	assert.Equal(t, `warning: simplify_pointers: in function "f": unresolved`, d.String())
	assert.Equal(t, "note", SeverityNote.String())
}
