package transform

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gogpu/crossgpu/interp"
	"github.com/gogpu/crossgpu/ir"
)

func TestGuardScalarDivision(t *testing.T) {
	m := &ir.Module{}
	i32 := m.EnsureType(ir.I32)
	u32 := m.EnsureType(ir.U32)
	build(t, m, "div", func(b *ir.FunctionBuilder) {
		d := b.Arg("d", i32, nil)
		b.Returns(i32, nil)
		r := b.Binary(ir.BinaryDivide, b.I32(5), d)
		b.Return(&r)
	})
	build(t, m, "rem", func(b *ir.FunctionBuilder) {
		d := b.Arg("d", u32, nil)
		b.Returns(u32, nil)
		r := b.Binary(ir.BinaryModulo, b.U32(7), d)
		b.Return(&r)
	})

	mach, err := interp.New(m)
	require.NoError(t, err)
	_, err = mach.Call("div", int32(0))
	assert.True(t, errors.Is(err, interp.ErrDivisionByZero))

	out, _ := apply(t, m, GuardIntegerDivision{})
	got, _ := call(t, out, "div", []any{int32(0)})
	assert.Equal(t, int32(5), got)
	got, _ = call(t, out, "div", []any{int32(2)})
	assert.Equal(t, int32(2), got)
	got, _ = call(t, out, "rem", []any{uint32(0)})
	assert.Equal(t, uint32(0), got)
	got, _ = call(t, out, "rem", []any{uint32(4)})
	assert.Equal(t, uint32(3), got)
}

func TestGuardVectorDivision(t *testing.T) {
	m := &ir.Module{}
	ivec4 := m.EnsureType(ir.VectorType{Size: ir.Vec4, Scalar: ir.I32})
	build(t, m, "f", func(b *ir.FunctionBuilder) {
		b.Returns(ivec4, nil)
		num := b.Expr(ir.ExprSplat{Size: ir.Vec4, Value: b.I32(100)})
		den := b.Compose(ivec4, b.I32(50), b.I32(0), b.I32(25), b.I32(0))
		r := b.Binary(ir.BinaryDivide, num, den)
		b.Return(&r)
	})

	out, _ := apply(t, m, GuardIntegerDivision{})
	got, _ := call(t, out, "f", nil)
	assert.Equal(t, []any{int32(2), int32(100), int32(4), int32(100)}, got)
}

func TestGuardSkipsSafeDivisions(t *testing.T) {
	m := &ir.Module{}
	i32 := m.EnsureType(ir.I32)
	f32 := m.EnsureType(ir.F32)
	build(t, m, "byTwo", func(b *ir.FunctionBuilder) {
		x := b.Arg("x", i32, nil)
		b.Returns(i32, nil)
		r := b.Binary(ir.BinaryDivide, x, b.I32(2))
		b.Return(&r)
	})
	build(t, m, "float", func(b *ir.FunctionBuilder) {
		x := b.Arg("x", f32, nil)
		b.Returns(f32, nil)
		r := b.Binary(ir.BinaryDivide, b.F32(1), x)
		b.Return(&r)
	})

	out, _ := apply(t, m, GuardIntegerDivision{})
	for i := range m.Functions {
		assert.Len(t, out.Functions[i].Expressions, len(m.Functions[i].Expressions), m.Functions[i].Name)
	}
}

func TestGuardEvaluatesDivisorOnce(t *testing.T) {
	m := &ir.Module{}
	i32 := m.EnsureType(ir.I32)
	counter := m.AddGlobal(ir.GlobalVariable{Name: "counter", Space: ir.SpacePrivate, Type: i32})
	next := build(t, m, "next", func(b *ir.FunctionBuilder) {
		b.Returns(i32, nil)
		b.Assign(b.Global(counter), b.Binary(ir.BinaryAdd, b.Global(counter), b.I32(1)))
		r := b.Binary(ir.BinarySubtract, b.Global(counter), b.I32(1))
		b.Return(&r)
	})
	build(t, m, "f", func(b *ir.FunctionBuilder) {
		b.Returns(i32, nil)
		r := b.Binary(ir.BinaryDivide, b.I32(5), b.Call(next))
		b.Return(&r)
	})

	out, _ := apply(t, m, GuardIntegerDivision{})
	assert.NotEmpty(t, lets(function(out, "f")))

	got, mach := call(t, out, "f", nil)
	assert.Equal(t, int32(5), got)
	assert.Equal(t, 1, mach.Calls("next"))
}
