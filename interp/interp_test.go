package interp

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/x448/float16"

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

func run(t *testing.T, m *ir.Module, name string, opts ...Option) any {
	t.Helper()
	mach, err := New(m, opts...)
	require.NoError(t, err)
	v, err := mach.Call(name)
	require.NoError(t, err)
	return v
}

func TestLoopAccumulates(t *testing.T) {
	m := &ir.Module{}
	u32 := m.EnsureType(ir.U32)
	build(t, m, "sum", func(b *ir.FunctionBuilder) {
		n := b.Arg("n", u32, nil)
		b.Returns(u32, nil)
		zero := b.U32(0)
		acc := b.Var("acc", u32, &zero)
		i := b.Var("i", u32, &zero)
		b.Loop(func() {
			b.If(b.Binary(ir.BinaryGreaterEqual, b.Local(i), n), func() { b.Stmt(ir.StmtBreak{}) }, nil)
			b.Assign(b.Local(acc), b.Binary(ir.BinaryAdd, b.Local(acc), b.Local(i)))
		}, func() {
			b.Assign(b.Local(i), b.Binary(ir.BinaryAdd, b.Local(i), b.U32(1)))
		}, nil)
		r := b.Local(acc)
		b.Return(&r)
	})

	mach, err := New(m)
	require.NoError(t, err)
	v, err := mach.Call("sum", uint32(5))
	require.NoError(t, err)
	assert.Equal(t, uint32(10), v)

	_, err = mach.Call("sum")
	assert.Error(t, err)
	_, err = mach.Call("missing")
	assert.Error(t, err)
}

func TestBreakIfAndStepLimit(t *testing.T) {
	m := &ir.Module{}
	i32 := m.EnsureType(ir.I32)
	build(t, m, "count", func(b *ir.FunctionBuilder) {
		b.Returns(i32, nil)
		zero := b.I32(0)
		i := b.Var("i", i32, &zero)
		b.Loop(nil, func() {
			b.Assign(b.Local(i), b.Binary(ir.BinaryAdd, b.Local(i), b.I32(1)))
		}, func() ir.ExpressionHandle {
			return b.Binary(ir.BinaryEqual, b.Local(i), b.I32(7))
		})
		r := b.Local(i)
		b.Return(&r)
	})
	build(t, m, "spin", func(b *ir.FunctionBuilder) {
		b.Loop(func() {}, nil, nil)
	})

	assert.Equal(t, int32(7), run(t, m, "count"))

	mach, err := New(m, WithStepLimit(100))
	require.NoError(t, err)
	_, err = mach.Call("spin")
	assert.True(t, errors.Is(err, ErrStepLimit))
}

func TestIntegerDivisionByZero(t *testing.T) {
	m := &ir.Module{}
	i32 := m.EnsureType(ir.I32)
	build(t, m, "div", func(b *ir.FunctionBuilder) {
		d := b.Arg("d", i32, nil)
		b.Returns(i32, nil)
		r := b.Binary(ir.BinaryDivide, b.I32(5), d)
		b.Return(&r)
	})
	mach, err := New(m)
	require.NoError(t, err)

	v, err := mach.Call("div", int32(2))
	require.NoError(t, err)
	assert.Equal(t, int32(2), v)

	_, err = mach.Call("div", int32(0))
	assert.True(t, errors.Is(err, ErrDivisionByZero))
}

func TestShortCircuitEvaluation(t *testing.T) {
	m := &ir.Module{}
	boolTy := m.EnsureType(ir.Bool)
	u32 := m.EnsureType(ir.U32)
	counter := m.AddGlobal(ir.GlobalVariable{Name: "counter", Space: ir.SpacePrivate, Type: u32})
	bump := build(t, m, "bump", func(b *ir.FunctionBuilder) {
		b.Returns(boolTy, nil)
		b.Assign(b.Global(counter), b.Binary(ir.BinaryAdd, b.Global(counter), b.U32(1)))
		r := b.Bool(true)
		b.Return(&r)
	})
	for _, op := range []ir.BinaryOperator{ir.BinaryLogicalAnd, ir.BinaryLogicalOr} {
		name := "and"
		if op == ir.BinaryLogicalOr {
			name = "or"
		}
		build(t, m, name, func(b *ir.FunctionBuilder) {
			a := b.Arg("a", boolTy, nil)
			b.Returns(boolTy, nil)
			r := b.Binary(op, a, b.Call(bump))
			b.Return(&r)
		})
	}

	tests := []struct {
		fn    string
		a     bool
		calls int
	}{
		{"and", true, 1},
		{"and", false, 0},
		{"or", true, 0},
		{"or", false, 1},
	}
	for _, tt := range tests {
		mach, err := New(m)
		require.NoError(t, err)
		_, err = mach.Call(tt.fn, tt.a)
		require.NoError(t, err)
		assert.Equal(t, tt.calls, mach.Calls("bump"), "%s(%v)", tt.fn, tt.a)
		got, err := mach.Global("counter")
		require.NoError(t, err)
		assert.Equal(t, uint32(tt.calls), got)
	}
}

// storageModule declares `var<storage, read_write> buf: Buf` at group 2,
// binding 1 where Buf { count: u32, data: array<u32> }.
func storageModule() (*ir.Module, ir.GlobalVariableHandle) {
	m := &ir.Module{}
	u32 := m.EnsureType(ir.U32)
	buf := m.StructOf("Buf",
		ir.StructMember{Name: "count", Type: u32},
		ir.StructMember{Name: "data", Type: m.ArrayOf(u32, nil)},
	)
	g := m.AddGlobal(ir.GlobalVariable{
		Name:    "buf",
		Space:   ir.SpaceStorage,
		Binding: &ir.ResourceBinding{Group: 2, Binding: 1},
		Type:    buf,
		Access:  ir.AccessReadWrite,
	})
	return m, g
}

func TestStorageBuffers(t *testing.T) {
	m, g := storageModule()
	u32 := m.EnsureType(ir.U32)
	build(t, m, "length", func(b *ir.FunctionBuilder) {
		b.Returns(u32, nil)
		r := b.Builtin(ir.BuiltinArrayLength, b.AddressOf(b.Member(b.Global(g), 1)))
		b.Return(&r)
	})
	build(t, m, "size", func(b *ir.FunctionBuilder) {
		b.Returns(u32, nil)
		r := b.Expr(ir.ExprBufferSize{Variable: g})
		b.Return(&r)
	})
	build(t, m, "write", func(b *ir.FunctionBuilder) {
		b.Assign(b.Index(b.Member(b.Global(g), 1), b.U32(2)), b.U32(42))
		b.Assign(b.Member(b.Global(g), 0), b.U32(1))
	})

	binding := ir.ResourceBinding{Group: 2, Binding: 1}
	assert.Equal(t, uint32(1023), run(t, m, "length", WithBufferSize(binding, 4096)))
	assert.Equal(t, uint32(4096), run(t, m, "size", WithBufferSize(binding, 4096)))

	mach, err := New(m, WithBuffer(binding, []uint32{9, 10, 11, 12}))
	require.NoError(t, err)
	_, err = mach.Call("write")
	require.NoError(t, err)
	got, err := mach.Global("buf")
	require.NoError(t, err)
	assert.Equal(t, []any{uint32(1), []any{uint32(10), uint32(11), uint32(42)}}, got)
}

func TestUniformTableDecode(t *testing.T) {
	m := &ir.Module{}
	rows := uint32(2)
	vec := m.EnsureType(ir.VectorType{Size: ir.Vec4, Scalar: ir.U32})
	binding := ir.ResourceBinding{Group: 0, Binding: 30}
	m.AddGlobal(ir.GlobalVariable{Name: "sizes", Space: ir.SpaceUniform, Binding: &binding, Type: m.ArrayOf(vec, &rows)})

	mach, err := New(m, WithBuffer(binding, []uint32{1, 2, 3, 4, 5, 6, 7, 8}))
	require.NoError(t, err)
	got, err := mach.Global("sizes")
	require.NoError(t, err)
	assert.Equal(t, []any{
		[]any{uint32(1), uint32(2), uint32(3), uint32(4)},
		[]any{uint32(5), uint32(6), uint32(7), uint32(8)},
	}, got)
}

func TestPointers(t *testing.T) {
	m := &ir.Module{}
	i32 := m.EnsureType(ir.I32)
	vec := m.EnsureType(ir.VectorType{Size: ir.Vec4, Scalar: ir.I32})
	ptr := m.EnsureType(ir.PointerType{Base: i32, Space: ir.SpaceFunction})

	inc := build(t, m, "inc", func(b *ir.FunctionBuilder) {
		p := b.Arg("p", ptr, nil)
		b.Assign(b.Deref(p), b.Binary(ir.BinaryAdd, b.Deref(p), b.I32(1)))
	})
	build(t, m, "main", func(b *ir.FunctionBuilder) {
		b.Returns(i32, nil)
		v := b.Var("v", vec, nil)
		p := b.Let("p", b.AddressOf(b.Local(v)))
		b.Assign(b.Member(b.Deref(p), 1), b.I32(7))
		b.Eval(b.Call(inc, b.AddressOf(b.Member(b.Local(v), 1))))
		b.Eval(b.Call(inc, b.AddressOf(b.Member(b.Deref(p), 1))))
		r := b.Member(b.Local(v), 1)
		b.Return(&r)
	})
	assert.Equal(t, int32(9), run(t, m, "main"))
}

func TestVectorsAndMatrices(t *testing.T) {
	m := &ir.Module{}
	f32 := m.EnsureType(ir.F32)
	vec2 := m.EnsureType(ir.VectorType{Size: ir.Vec2, Scalar: ir.F32})
	mat2 := m.EnsureType(ir.MatrixType{Columns: ir.Vec2, Rows: ir.Vec2, Scalar: ir.F32})
	i32 := m.EnsureType(ir.I32)
	ivec4 := m.EnsureType(ir.VectorType{Size: ir.Vec4, Scalar: ir.I32})
	half := m.EnsureType(ir.F16)

	build(t, m, "transform", func(b *ir.FunctionBuilder) {
		b.Returns(vec2, nil)
		mat := b.Compose(mat2, b.Compose(vec2, b.F32(1), b.F32(2)), b.Compose(vec2, b.F32(3), b.F32(4)))
		r := b.Binary(ir.BinaryMultiply, mat, b.Compose(vec2, b.F32(1), b.F32(1)))
		b.Return(&r)
	})
	build(t, m, "swizzle", func(b *ir.FunctionBuilder) {
		b.Returns(ivec4, nil)
		v := b.Compose(ivec4, b.I32(1), b.I32(2), b.I32(3), b.I32(4))
		r := b.Expr(ir.ExprSwizzle{Size: ir.Vec4, Vector: v, Pattern: [4]ir.SwizzleComponent{ir.SwizzleW, ir.SwizzleZ, ir.SwizzleY, ir.SwizzleX}})
		b.Return(&r)
	})
	build(t, m, "dot", func(b *ir.FunctionBuilder) {
		b.Returns(f32, nil)
		v := b.Compose(vec2, b.F32(3), b.F32(4))
		r := b.Builtin(ir.BuiltinLength, v)
		b.Return(&r)
	})
	build(t, m, "select", func(b *ir.FunctionBuilder) {
		b.Returns(i32, nil)
		r := b.Expr(ir.ExprSelect{Condition: b.Bool(false), Accept: b.I32(1), Reject: b.I32(2)})
		b.Return(&r)
	})
	build(t, m, "half", func(b *ir.FunctionBuilder) {
		b.Returns(half, nil)
		x := b.Expr(ir.Literal{Value: ir.LiteralF16(float16.Fromfloat32(1.5))})
		r := b.Binary(ir.BinaryAdd, x, x)
		b.Return(&r)
	})

	assert.Equal(t, []any{float32(4), float32(6)}, run(t, m, "transform"))
	assert.Equal(t, []any{int32(4), int32(3), int32(2), int32(1)}, run(t, m, "swizzle"))
	assert.Equal(t, float32(5), run(t, m, "dot"))
	assert.Equal(t, int32(2), run(t, m, "select"))
	assert.Equal(t, float16.Fromfloat32(3), run(t, m, "half"))
}

func TestSwitch(t *testing.T) {
	m := &ir.Module{}
	i32 := m.EnsureType(ir.I32)
	build(t, m, "pick", func(b *ir.FunctionBuilder) {
		x := b.Arg("x", i32, nil)
		b.Returns(i32, nil)
		one, two, other := b.I32(10), b.I32(20), b.I32(-1)
		b.Stmt(ir.StmtSwitch{Selector: x, Cases: []ir.SwitchCase{
			{Value: ir.SwitchValueI32(1), Body: ir.Block{{Kind: ir.StmtReturn{Value: &one}}}},
			{Value: ir.SwitchValueI32(2), Body: ir.Block{{Kind: ir.StmtReturn{Value: &two}}}},
			{Value: ir.SwitchValueDefault{}, Body: ir.Block{{Kind: ir.StmtReturn{Value: &other}}}},
		}})
	})
	mach, err := New(m)
	require.NoError(t, err)
	for in, want := range map[int32]int32{1: 10, 2: 20, 7: -1} {
		got, err := mach.Call("pick", in)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
}

func TestBuiltins(t *testing.T) {
	tests := []struct {
		fun  ir.BuiltinFunction
		args []any
		want any
	}{
		{ir.BuiltinAbs, []any{int32(-3)}, int32(3)},
		{ir.BuiltinMin, []any{uint32(3), uint32(2)}, uint32(2)},
		{ir.BuiltinMax, []any{[]any{int32(1), int32(5)}, int32(3)}, []any{int32(3), int32(5)}},
		{ir.BuiltinClamp, []any{float32(2), float32(0), float32(1)}, float32(1)},
		{ir.BuiltinSign, []any{int32(-9)}, int32(-1)},
		{ir.BuiltinFloor, []any{float32(1.5)}, float32(1)},
		{ir.BuiltinRound, []any{float32(2.5)}, float32(2)},
		{ir.BuiltinStep, []any{float32(1), float32(2)}, float32(1)},
		{ir.BuiltinAll, []any{[]any{true, false}}, false},
		{ir.BuiltinAny, []any{[]any{true, false}}, true},
		{ir.BuiltinCountOneBits, []any{uint32(0xff)}, uint32(8)},
		{ir.BuiltinReverseBits, []any{uint32(1)}, uint32(0x80000000)},
		{ir.BuiltinCross, []any{[]any{float32(1), float32(0), float32(0)}, []any{float32(0), float32(1), float32(0)}},
			[]any{float32(0), float32(0), float32(1)}},
		{ir.BuiltinWorkgroupBarrier, nil, nil},
	}
	for _, tt := range tests {
		t.Run(tt.fun.String(), func(t *testing.T) {
			got, err := callBuiltin(tt.fun, tt.args)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := callBuiltin(ir.BuiltinDpdx, []any{float32(1)})
	assert.True(t, errors.Is(err, ErrUnsupported))
}
