package transform

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gogpu/crossgpu/ir"
)

func pointerLets(m *ir.Module, fn *ir.Function) int {
	n := 0
	for _, kind := range statements(fn) {
		if let, ok := kind.(ir.StmtLet); ok {
			if _, ok := m.TypeInner(fn.Locals[let.Local].Type).(ir.PointerType); ok {
				n++
			}
		}
	}
	return n
}

func TestSimplifyPointersResolvesAliases(t *testing.T) {
	m := &ir.Module{}
	i32 := m.EnsureType(ir.I32)
	vec := m.EnsureType(ir.VectorType{Size: ir.Vec4, Scalar: ir.I32})
	build(t, m, "f", func(b *ir.FunctionBuilder) {
		b.Returns(i32, nil)
		v := b.Var("v", vec, nil)
		p := b.Let("p", b.AddressOf(b.Local(v)))
		q := b.Let("q", b.AddressOf(b.Member(b.Deref(p), 1)))
		b.Assign(b.Deref(q), b.I32(7))
		b.Assign(b.Member(b.Deref(p), 2), b.Binary(ir.BinaryAdd, b.Deref(q), b.I32(1)))
		r := b.Binary(ir.BinaryAdd, b.Member(b.Local(v), 1), b.Member(b.Local(v), 2))
		b.Return(&r)
	})
	require.Equal(t, 2, pointerLets(m, &m.Functions[0]))

	out, ctx := apply(t, m, SimplifyPointers{})
	assert.Zero(t, pointerLets(out, &out.Functions[0]))
	assert.Empty(t, ctx.Diagnostics)

	want, _ := call(t, m, "f", nil)
	got, _ := call(t, out, "f", nil)
	assert.Equal(t, int32(15), want)
	assert.Equal(t, want, got)
}

func TestSimplifyPointersCapturesMutableIndex(t *testing.T) {
	m := &ir.Module{}
	i32 := m.EnsureType(ir.I32)
	four := uint32(4)
	arr := m.ArrayOf(i32, &four)
	build(t, m, "f", func(b *ir.FunctionBuilder) {
		b.Returns(i32, nil)
		a := b.Var("a", arr, nil)
		one := b.I32(1)
		i := b.Var("i", i32, &one)
		p := b.Let("p", b.AddressOf(b.Index(b.Local(a), b.Local(i))))
		b.Assign(b.Local(i), b.I32(2))
		b.Assign(b.Deref(p), b.I32(5))
		r := b.Binary(ir.BinaryAdd, b.Index(b.Local(a), b.I32(1)), b.Binary(ir.BinaryMultiply, b.Index(b.Local(a), b.I32(2)), b.I32(10)))
		b.Return(&r)
	})

	out, _ := apply(t, m, SimplifyPointers{})
	fn := &out.Functions[0]
	assert.Zero(t, pointerLets(out, fn))

	captured := false
	for _, kind := range statements(fn) {
		if let, ok := kind.(ir.StmtLet); ok {
			assert.Contains(t, fn.Locals[let.Local].Name, "tint_symbol")
			captured = true
		}
	}
	assert.True(t, captured, "index should be captured at the alias point")

	want, _ := call(t, m, "f", nil)
	got, _ := call(t, out, "f", nil)
	assert.Equal(t, int32(5), want)
	assert.Equal(t, want, got)
}

func TestSimplifyPointersThroughArguments(t *testing.T) {
	m := &ir.Module{}
	i32 := m.EnsureType(ir.I32)
	ptr := m.EnsureType(ir.PointerType{Base: i32, Space: ir.SpaceFunction})
	inc := build(t, m, "inc", func(b *ir.FunctionBuilder) {
		p := b.Arg("p", ptr, nil)
		q := b.Let("q", p)
		b.Assign(b.Deref(q), b.Binary(ir.BinaryAdd, b.Deref(q), b.I32(1)))
	})
	build(t, m, "main", func(b *ir.FunctionBuilder) {
		b.Returns(i32, nil)
		x := b.Var("x", i32, nil)
		p := b.Let("p", b.AddressOf(b.Local(x)))
		b.Eval(b.Call(inc, p))
		b.Eval(b.Call(inc, b.AddressOf(b.Deref(p))))
		r := b.Local(x)
		b.Return(&r)
	})

	out, ctx := apply(t, m, SimplifyPointers{})
	for i := range out.Functions {
		assert.Zero(t, pointerLets(out, &out.Functions[i]), out.Functions[i].Name)
	}
	assert.Empty(t, ctx.Diagnostics)

	got, mach := call(t, out, "main", nil)
	assert.Equal(t, int32(2), got)
	assert.Equal(t, 2, mach.Calls("inc"))
}

func TestSimplifyPointersWarnsOnUnresolvedAlias(t *testing.T) {
	m := &ir.Module{}
	i32 := m.EnsureType(ir.I32)
	boolTy := m.EnsureType(ir.Bool)
	build(t, m, "f", func(b *ir.FunctionBuilder) {
		c := b.Arg("c", boolTy, nil)
		b.Returns(i32, nil)
		x := b.Var("x", i32, nil)
		y := b.Var("y", i32, nil)
		p := b.Let("p", b.Expr(ir.ExprSelect{Condition: c, Accept: b.AddressOf(b.Local(x)), Reject: b.AddressOf(b.Local(y))}))
		b.Assign(b.Deref(p), b.I32(3))
		r := b.Binary(ir.BinarySubtract, b.Local(x), b.Local(y))
		b.Return(&r)
	})

	out, ctx := apply(t, m, SimplifyPointers{})
	require.Len(t, ctx.Diagnostics, 1)
	d := ctx.Diagnostics[0]
	assert.Equal(t, SeverityWarning, d.Severity)
	assert.Equal(t, "simplify_pointers", d.Pass)
	assert.Equal(t, "f", d.Function)
	assert.Contains(t, d.Message, `"p"`)
	assert.Equal(t, 1, pointerLets(out, &out.Functions[0]))

	for cond, want := range map[bool]int32{true: 3, false: -3} {
		got, _ := call(t, out, "f", []any{cond})
		assert.Equal(t, want, got)
	}
}

func TestSimplifyPointersIsIdempotent(t *testing.T) {
	m := &ir.Module{}
	i32 := m.EnsureType(ir.I32)
	vec := m.EnsureType(ir.VectorType{Size: ir.Vec2, Scalar: ir.I32})
	build(t, m, "f", func(b *ir.FunctionBuilder) {
		b.Returns(i32, nil)
		v := b.Var("v", vec, nil)
		p := b.Let("p", b.AddressOf(b.Local(v)))
		b.Assign(b.Member(b.Deref(p), 0), b.I32(4))
		r := b.Member(b.Deref(b.AddressOf(b.Local(v))), 0)
		b.Return(&r)
	})

	once, _ := apply(t, m, SimplifyPointers{})
	twice, ctx := apply(t, once, SimplifyPointers{})
	assert.Empty(t, ctx.Diagnostics)
	assert.Equal(t, once.Functions[0].Body, twice.Functions[0].Body)
	assert.Len(t, twice.Functions[0].Expressions, len(once.Functions[0].Expressions))

	got, _ := call(t, twice, "f", nil)
	assert.Equal(t, int32(4), got)
}
