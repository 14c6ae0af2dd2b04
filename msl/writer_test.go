package msl

import (
	"errors"
	"fmt"
	"math"
	"testing"

	"github.com/gogpu/gputypes"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/x448/float16"

	"github.com/gogpu/crossgpu/builtin"
	"github.com/gogpu/crossgpu/ir"
	"github.com/gogpu/crossgpu/transform"
)

func build(t *testing.T, m *ir.Module, name string, body func(b *ir.FunctionBuilder)) ir.FunctionHandle {
	t.Helper()
	b := ir.NewFunction(m, name)
	body(b)
	h, err := b.Finish()
	require.NoError(t, err)
	return h
}

func errorKind(t *testing.T, err error) ErrorKind {
	t.Helper()
	require.Error(t, err)
	var e *Error
	require.True(t, errors.As(err, &e), "want *msl.Error, got %v", err)
	return e.Kind
}

var (
	vec2f = ir.VectorType{Size: ir.Vec2, Scalar: ir.F32}
	vec3f = ir.VectorType{Size: ir.Vec3, Scalar: ir.F32}
	vec4f = ir.VectorType{Size: ir.Vec4, Scalar: ir.F32}
)

// lengthModule stores arrayLength(&buf.data) into buf.count from a compute entry point.
func lengthModule(t *testing.T) *ir.Module {
	m := &ir.Module{}
	u32 := m.EnsureType(ir.U32)
	lengths := m.StructOf("Lengths",
		ir.StructMember{Name: "count", Type: u32},
		ir.StructMember{Name: "data", Type: m.ArrayOf(u32, nil)},
	)
	g := m.AddGlobal(ir.GlobalVariable{Name: "buf", Space: ir.SpaceStorage, Binding: &ir.ResourceBinding{Group: 0, Binding: 2}, Type: lengths, Access: ir.AccessReadWrite})
	fn := build(t, m, "main_cs", func(b *ir.FunctionBuilder) {
		n := b.Builtin(ir.BuiltinArrayLength, b.AddressOf(b.Member(b.Global(g), 1)))
		b.Assign(b.Member(b.Global(g), 0), n)
	})
	m.AddEntryPoint("main_cs", ir.StageCompute, fn, [3]uint32{64, 1, 1})
	return m
}

func sanitized(t *testing.T, m *ir.Module) *ir.Module {
	t.Helper()
	out, _, err := transform.Run(m, builtin.TargetMSL, transform.Options{
		ArrayLength: &transform.ArrayLengthOptions{
			Mode:  transform.ArrayLengthFromUniform,
			UBO:   ir.ResourceBinding{Group: 0, Binding: 30},
			Slots: transform.SlotsFor(ir.ResourceBinding{Group: 0, Binding: 2}),
		},
	})
	require.NoError(t, err)
	return out
}

func TestCompileArrayLengthFromSizeTable(t *testing.T) {
	src, info, err := Compile(sanitized(t, lengthModule(t)), DefaultOptions())
	require.NoError(t, err)

	assert.Contains(t, src, "// language: metal2.1\n#include <metal_stdlib>\n")
	assert.Contains(t, src, "struct Lengths {\n    uint count;\n    uint data[1];\n};")
	assert.Contains(t, src, "    buf.count = ((tint_array_lengths.inner[0].x - 4u) / 4u);\n")
	assert.Contains(t, src, "kernel void main_cs(\n    device Lengths& buf [[buffer(0)]],\n")
	assert.Contains(t, src, "    main_cs_1(buf, tint_array_lengths);\n}")

	assert.Equal(t, map[string]string{"main_cs": "main_cs"}, info.EntryPointNames)
	assert.Equal(t, map[string]string{"buf": "buffer(0)", "tint_array_lengths": "buffer(1)"}, info.ResourceSlots)
	assert.Equal(t, [3]uint32{64, 1, 1}, info.Workgroup)
}

func TestCompileBufferSizeUnsupported(t *testing.T) {
	m := &ir.Module{}
	u32 := m.EnsureType(ir.U32)
	lengths := m.StructOf("Lengths",
		ir.StructMember{Name: "count", Type: u32},
		ir.StructMember{Name: "data", Type: m.ArrayOf(u32, nil)},
	)
	g := m.AddGlobal(ir.GlobalVariable{Name: "buf", Space: ir.SpaceStorage, Binding: &ir.ResourceBinding{}, Type: lengths, Access: ir.AccessReadWrite})
	fn := build(t, m, "cs", func(b *ir.FunctionBuilder) {
		b.Assign(b.Member(b.Global(g), 0), b.Expr(ir.ExprBufferSize{Variable: g}))
	})
	m.AddEntryPoint("cs", ir.StageCompute, fn, [3]uint32{1, 1, 1})

	_, _, err := Compile(m, DefaultOptions())
	assert.Equal(t, ErrUnsupportedFeature, errorKind(t, err))
	assert.Contains(t, err.Error(), "uniform table")
}

func TestSanitizeRejectsBufferSizeForMetal(t *testing.T) {
	_, _, err := transform.Run(lengthModule(t), builtin.TargetMSL, transform.Options{
		ArrayLength: &transform.ArrayLengthOptions{Mode: transform.ArrayLengthFromBufferSize},
	})
	assert.Error(t, err)
}

func TestCompileIsDeterministic(t *testing.T) {
	m := sanitized(t, lengthModule(t))
	first, _, err := Compile(m, DefaultOptions())
	require.NoError(t, err)
	for i := 0; i < 5; i++ {
		again, _, err := Compile(m, DefaultOptions())
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}
}

func TestCompileBindingMap(t *testing.T) {
	m := sanitized(t, lengthModule(t))
	seven, three := uint8(7), uint8(3)
	opts := DefaultOptions()
	opts.BindingMap = map[ir.ResourceBinding]BindTarget{
		{Group: 0, Binding: 2}:  {Buffer: &seven},
		{Group: 0, Binding: 30}: {Buffer: &three},
	}
	src, info, err := Compile(m, opts)
	require.NoError(t, err)
	assert.Contains(t, src, "device Lengths& buf [[buffer(7)]]")
	assert.Equal(t, "buffer(3)", info.ResourceSlots["tint_array_lengths"])

	// Unmapped resources follow the highest mapped slot.
	opts.BindingMap = map[ir.ResourceBinding]BindTarget{{Group: 0, Binding: 30}: {Buffer: &three}}
	_, info, err = Compile(m, opts)
	require.NoError(t, err)
	assert.Equal(t, "buffer(4)", info.ResourceSlots["buf"])

	opts.FakeMissingBindings = false
	_, _, err = Compile(m, opts)
	assert.Equal(t, ErrMissingBinding, errorKind(t, err))
	assert.Contains(t, err.Error(), "@group(0) @binding(2)")
}

func TestCompileEntryPointNotFound(t *testing.T) {
	opts := DefaultOptions()
	opts.EntryPoint = "missing"
	_, _, err := Compile(lengthModule(t), opts)
	assert.Equal(t, ErrEntryPointNotFound, errorKind(t, err))
	assert.Contains(t, err.Error(), `"missing"`)
}

func TestCompileNilModule(t *testing.T) {
	_, _, err := Compile(nil, DefaultOptions())
	assert.Equal(t, ErrInvalidModule, errorKind(t, err))
}

// vertexModule returns a struct with a position builtin and one varying.
func vertexModule(t *testing.T) *ir.Module {
	m := &ir.Module{}
	u32 := m.EnsureType(ir.U32)
	v4 := m.EnsureType(vec4f)
	out := m.StructOf("VOut",
		ir.StructMember{Name: "pos", Type: v4, Binding: ir.BuiltinBinding{Builtin: ir.BuiltinPosition}},
		ir.StructMember{Name: "color", Type: v4, Binding: ir.LocationBinding{Location: 1}},
	)
	fn := build(t, m, "vs", func(b *ir.FunctionBuilder) {
		b.Arg("vi", u32, ir.BuiltinBinding{Builtin: ir.BuiltinVertexIndex})
		b.Returns(out, nil)
		r := b.Expr(ir.ExprZeroValue{Type: out})
		b.Return(&r)
	})
	m.AddEntryPoint("vs", ir.StageVertex, fn, [3]uint32{})
	return m
}

func TestCompileVertexOutputs(t *testing.T) {
	src, info, err := Compile(vertexModule(t), DefaultOptions())
	require.NoError(t, err)

	assert.Contains(t, src, "struct VOut {\n    float4 pos;\n    float4 color;\n};")
	assert.Contains(t, src, "VOut vs_1(uint vi) {\n    return VOut {};\n}")
	assert.Contains(t, src, "struct vsOutput {\n    float4 pos [[position]];\n    float4 color [[user(loc1)]];\n};")
	assert.Contains(t, src, "vertex vsOutput vs(\n"+
		"    uint vi_2 [[vertex_id]]\n"+
		") {\n"+
		"    VOut result = vs_1(vi_2);\n"+
		"    return vsOutput {result.pos, result.color};\n}")
	assert.Empty(t, info.ResourceSlots)
	assert.Equal(t, [3]uint32{}, info.Workgroup)
}

func TestCompileVertexAttributes(t *testing.T) {
	m := &ir.Module{}
	v4 := m.EnsureType(vec4f)
	fn := build(t, m, "vs", func(b *ir.FunctionBuilder) {
		pos := b.Arg("pos", v4, ir.LocationBinding{Location: 0})
		b.Returns(v4, ir.BuiltinBinding{Builtin: ir.BuiltinPosition})
		b.Return(&pos)
	})
	m.AddEntryPoint("vs", ir.StageVertex, fn, [3]uint32{})

	src, _, err := Compile(m, DefaultOptions())
	require.NoError(t, err)
	assert.Contains(t, src, "struct vsInput {\n    float4 pos_2 [[attribute(0)]];\n};")
	assert.Contains(t, src, "struct vsOutput {\n    float4 value [[position]];\n};")
	assert.Contains(t, src, "vertex vsOutput vs(\n"+
		"    vsInput varyings [[stage_in]]\n"+
		") {\n"+
		"    return vsOutput {vs_1(varyings.pos_2)};\n}")
}

func TestCompileZeroInitializesWorkgroupMemory(t *testing.T) {
	m := &ir.Module{}
	u32 := m.EnsureType(ir.U32)
	total := m.AddGlobal(ir.GlobalVariable{Name: "total", Space: ir.SpaceWorkGroup, Type: u32})
	fn := build(t, m, "cs", func(b *ir.FunctionBuilder) {
		b.Assign(b.Global(total), b.U32(1))
	})
	m.AddEntryPoint("cs", ir.StageCompute, fn, [3]uint32{8, 1, 1})

	src, info, err := Compile(m, DefaultOptions())
	require.NoError(t, err)
	assert.Contains(t, src, "void cs_1(threadgroup uint& total) {\n    total = 1u;\n}")
	assert.Contains(t, src, "kernel void cs(\n"+
		"    uint local_invocation_index [[thread_index_in_threadgroup]]\n"+
		") {\n"+
		"    threadgroup uint total;\n"+
		"    if (local_invocation_index == 0u) {\n"+
		"        total = uint {};\n"+
		"    }\n"+
		"    metal::threadgroup_barrier(metal::mem_flags::mem_threadgroup);\n"+
		"    cs_1(total);\n}")
	assert.Equal(t, [3]uint32{8, 1, 1}, info.Workgroup)

	opts := DefaultOptions()
	opts.ZeroInitializeWorkgroupMemory = false
	src, _, err = Compile(m, opts)
	require.NoError(t, err)
	assert.Contains(t, src, "kernel void cs() {\n    threadgroup uint total;\n    cs_1(total);\n}")
}

// textureModule runs one texture call in a fragment shader.
func textureModule(t *testing.T, img ir.ImageType, result ir.TypeInner, call func(b *ir.FunctionBuilder, tex, sam ir.GlobalVariableHandle, uv ir.ExpressionHandle) ir.ExpressionHandle) *ir.Module {
	m := &ir.Module{}
	v2 := m.EnsureType(vec2f)
	res := m.EnsureType(result)
	tex := m.AddGlobal(ir.GlobalVariable{Name: "t", Space: ir.SpaceHandle, Binding: &ir.ResourceBinding{Group: 0, Binding: 3}, Type: m.EnsureType(img)})
	sam := m.AddGlobal(ir.GlobalVariable{Name: "s", Space: ir.SpaceHandle, Binding: &ir.ResourceBinding{Group: 0, Binding: 4}, Type: m.EnsureType(ir.SamplerType{})})
	fn := build(t, m, "fs", func(b *ir.FunctionBuilder) {
		uv := b.Arg("uv", v2, ir.LocationBinding{Location: 0})
		b.Returns(res, ir.LocationBinding{Location: 0})
		r := call(b, tex, sam, uv)
		b.Return(&r)
	})
	m.AddEntryPoint("fs", ir.StageFragment, fn, [3]uint32{})
	return m
}

func sample(b *ir.FunctionBuilder, tex, sam ir.GlobalVariableHandle, uv ir.ExpressionHandle) ir.ExpressionHandle {
	sh := b.Global(sam)
	return b.Expr(ir.ExprTexture{Fun: ir.TextureSample, Image: b.Global(tex), Sampler: &sh, Coordinate: &uv})
}

var sampled2D = ir.ImageType{Dim: ir.Dim2D, Class: ir.ImageClassSampled, SampledKind: ir.ScalarFloat}

func TestCompileTextureSample(t *testing.T) {
	src, info, err := Compile(textureModule(t, sampled2D, vec4f, sample), DefaultOptions())
	require.NoError(t, err)

	texture := "metal::texture2d<float, metal::access::sample>"
	assert.Contains(t, src, "float4 fs_1(float2 uv, "+texture+" t, metal::sampler s) {\n    return t.sample(s, uv);\n}")
	assert.Contains(t, src, "struct fsInput {\n    float2 uv_2 [[user(loc0)]];\n};")
	assert.Contains(t, src, "struct fsOutput {\n    float4 value [[color(0)]];\n};")
	assert.Contains(t, src, "fragment fsOutput fs(\n"+
		"    fsInput varyings [[stage_in]],\n"+
		"    "+texture+" t [[texture(0)]],\n"+
		"    metal::sampler s [[sampler(0)]]\n"+
		") {\n"+
		"    return fsOutput {fs_1(varyings.uv_2, t, s)};\n}")
	assert.Equal(t, map[string]string{"t": "texture(0)", "s": "sampler(0)"}, info.ResourceSlots)
}

func TestCompileTextureDimensions(t *testing.T) {
	query := func(b *ir.FunctionBuilder, tex, _ ir.GlobalVariableHandle, _ ir.ExpressionHandle) ir.ExpressionHandle {
		return b.Expr(ir.ExprTexture{Fun: ir.TextureDimensions, Image: b.Global(tex)})
	}
	m := textureModule(t, sampled2D, ir.VectorType{Size: ir.Vec2, Scalar: ir.U32}, query)
	src, _, err := Compile(m, DefaultOptions())
	require.NoError(t, err)
	assert.Contains(t, src, "    return uint2(t.get_width(), t.get_height());\n")
}

func TestCompileReadWriteTextureNeedsVersion(t *testing.T) {
	storage := ir.ImageType{Dim: ir.Dim2D, Class: ir.ImageClassStorage, StorageFormat: gputypes.TextureFormatRGBA8Unorm, StorageAccess: ir.AccessReadWrite}
	m := &ir.Module{}
	m.AddGlobal(ir.GlobalVariable{Name: "img", Space: ir.SpaceHandle, Binding: &ir.ResourceBinding{}, Type: m.EnsureType(storage)})
	w := &Writer{module: m, options: &Options{LangVersion: Version{Major: 1, Minor: 1}}}

	_, err := w.imageTypeName(storage)
	assert.Equal(t, ErrUnsupportedFeature, errorKind(t, err))

	w.options.LangVersion = Version1_2
	name, err := w.imageTypeName(storage)
	require.NoError(t, err)
	assert.Equal(t, "metal::texture2d<float, metal::access::read_write>", name)
}

func TestCompilePacksVec3(t *testing.T) {
	m := &ir.Module{}
	f32 := m.EnsureType(ir.F32)
	v3 := m.EnsureType(vec3f)
	v2 := m.EnsureType(vec2f)
	light := m.StructOf("Light",
		ir.StructMember{Name: "dir", Type: v3},
		ir.StructMember{Name: "power", Type: f32},
		ir.StructMember{Name: "scale", Type: f32},
		ir.StructMember{Name: "uv", Type: v2},
	)
	u := m.AddGlobal(ir.GlobalVariable{Name: "light", Space: ir.SpaceUniform, Binding: &ir.ResourceBinding{Group: 0, Binding: 0}, Type: light})
	fn := build(t, m, "cs", func(b *ir.FunctionBuilder) {
		b.Let("d", b.Member(b.Global(u), 0))
	})
	m.AddEntryPoint("cs", ir.StageCompute, fn, [3]uint32{1, 1, 1})

	src, _, err := Compile(m, DefaultOptions())
	require.NoError(t, err)
	assert.Contains(t, src, "struct Light {\n"+
		"    metal::packed_float3 dir;\n"+
		"    float power;\n"+
		"    float scale;\n"+
		"    char pad[4];\n"+
		"    float2 uv;\n"+
		"};")
	assert.Contains(t, src, "    const float3 d = float3(light.dir);\n")
	assert.Contains(t, src, "constant Light& light [[buffer(0)]]")
}

func TestCompileComposePaddedStruct(t *testing.T) {
	m := &ir.Module{}
	f32 := m.EnsureType(ir.F32)
	v2 := m.EnsureType(vec2f)
	pair := m.StructOf("Pair",
		ir.StructMember{Name: "a", Type: f32},
		ir.StructMember{Name: "b", Type: v2},
	)
	build(t, m, "make", func(b *ir.FunctionBuilder) {
		b.Returns(pair, nil)
		r := b.Compose(pair, b.F32(1), b.Expr(ir.ExprZeroValue{Type: v2}))
		b.Return(&r)
	})

	src, _, err := Compile(m, DefaultOptions())
	require.NoError(t, err)
	assert.Contains(t, src, "struct Pair {\n    float a;\n    char pad[4];\n    float2 b;\n};")
	assert.Contains(t, src, "    return Pair {1.0, {}, float2 {}};\n")
}

func TestCompileFixedArrayWrapper(t *testing.T) {
	m := &ir.Module{}
	f32 := m.EnsureType(ir.F32)
	four := uint32(4)
	arr := m.ArrayOf(f32, &four)
	u32 := m.EnsureType(ir.U32)
	build(t, m, "pick", func(b *ir.FunctionBuilder) {
		i := b.Arg("i", u32, nil)
		b.Returns(f32, nil)
		weights := b.Var("weights", arr, nil)
		r := b.Index(b.Local(weights), i)
		b.Return(&r)
	})

	src, _, err := Compile(m, DefaultOptions())
	require.NoError(t, err)
	name := fmt.Sprintf("type_%d", arr)
	assert.Contains(t, src, "struct "+name+" {\n    float inner[4];\n};")
	assert.Contains(t, src, "    "+name+" weights = "+name+" {};\n")
	assert.Contains(t, src, "weights.inner[i]")
}

func TestCompileEscapesKeywords(t *testing.T) {
	m := &ir.Module{}
	u32 := m.EnsureType(ir.U32)
	mainFn := build(t, m, "main", func(b *ir.FunctionBuilder) {
		b.Returns(u32, nil)
		r := b.U32(1)
		b.Return(&r)
	})
	build(t, m, "kernel", func(b *ir.FunctionBuilder) {
		b.Returns(u32, nil)
		r := b.Call(mainFn)
		b.Return(&r)
	})

	src, info, err := Compile(m, DefaultOptions())
	require.NoError(t, err)
	assert.Empty(t, info.EntryPointNames)
	assert.Contains(t, src, "uint _main() {\n    return 1u;\n}")
	assert.Contains(t, src, "uint _kernel() {\n    return _main();\n}")
}

func TestEscape(t *testing.T) {
	tests := []struct {
		name string
		want string
	}{
		{"", UnnamedIdentifier},
		{"color", "color"},
		{"main", "_main"},
		{"float4", "_float4"},
		{"half3x3", "_half3x3"},
		{"a__b", "a_xb"},
		{"_Value", "x_Value"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Escape(tt.name), tt.name)
		assert.False(t, IsReserved(Escape(tt.name)), tt.name)
	}
	assert.True(t, IsReserved("threadgroup"))
	assert.True(t, IsReserved("__x"))
}

func TestVersion(t *testing.T) {
	assert.Equal(t, "2.1", Version2_1.String())
	assert.True(t, Version2_1.AtLeast(Version1_2))
	assert.True(t, Version2_1.AtLeast(Version2_1))
	assert.False(t, Version2_0.AtLeast(Version2_3))
	assert.True(t, Version3_0.AtLeast(Version2_3))
}

func TestFormatLiteral(t *testing.T) {
	tests := []struct {
		value ir.LiteralValue
		want  string
	}{
		{ir.LiteralF32(1), "1.0"},
		{ir.LiteralF32(0.25), "0.25"},
		{ir.LiteralF16(float16.Fromfloat32(1.5)), "1.5h"},
		{ir.LiteralU32(7), "7u"},
		{ir.LiteralI32(-3), "-3"},
		{ir.LiteralI32(math.MinInt32), "(-2147483647 - 1)"},
		{ir.LiteralBool(true), "true"},
	}
	for _, tt := range tests {
		got, err := formatLiteral(tt.value)
		require.NoError(t, err)
		assert.Equal(t, tt.want, got)
	}

	_, err := formatLiteral(ir.LiteralF32(float32(math.Inf(1))))
	assert.Error(t, err)
}

// guardedDivisionModule divides int4(100) by a vertex attribute, a divisor
// the sanitizer guards against zero components.
func guardedDivisionModule(t *testing.T) *ir.Module {
	m := &ir.Module{}
	ivec4 := m.EnsureType(ir.VectorType{Size: ir.Vec4, Scalar: ir.I32})
	v4 := m.EnsureType(vec4f)
	fn := build(t, m, "vs", func(b *ir.FunctionBuilder) {
		d := b.Arg("d", ivec4, ir.LocationBinding{Location: 0})
		b.Returns(v4, ir.BuiltinBinding{Builtin: ir.BuiltinPosition})
		q := b.Binary(ir.BinaryDivide, b.Expr(ir.ExprSplat{Size: ir.Vec4, Value: b.I32(100)}), d)
		width := uint8(4)
		r := b.Expr(ir.ExprAs{Expr: q, Kind: ir.ScalarFloat, Convert: &width})
		b.Return(&r)
	})
	m.AddEntryPoint("vs", ir.StageVertex, fn, [3]uint32{})
	return m
}

// shortCircuitModule stores counter == 0u && bump() from a compute entry
// point. bump has a side effect, so the operator must be lowered.
func shortCircuitModule(t *testing.T) *ir.Module {
	m := &ir.Module{}
	boolTy := m.EnsureType(ir.Bool)
	u32 := m.EnsureType(ir.U32)
	counter := m.AddGlobal(ir.GlobalVariable{Name: "counter", Space: ir.SpacePrivate, Type: u32})
	hit := m.AddGlobal(ir.GlobalVariable{Name: "hit", Space: ir.SpacePrivate, Type: boolTy})
	bump := build(t, m, "bump", func(b *ir.FunctionBuilder) {
		b.Returns(boolTy, nil)
		b.Assign(b.Global(counter), b.Binary(ir.BinaryAdd, b.Global(counter), b.U32(1)))
		r := b.Bool(true)
		b.Return(&r)
	})
	fn := build(t, m, "main_cs", func(b *ir.FunctionBuilder) {
		first := b.Binary(ir.BinaryEqual, b.Global(counter), b.U32(0))
		b.Assign(b.Global(hit), b.Binary(ir.BinaryLogicalAnd, first, b.Call(bump)))
	})
	m.AddEntryPoint("main_cs", ir.StageCompute, fn, [3]uint32{1, 1, 1})
	return m
}

func TestCompileLoweredShortCircuit(t *testing.T) {
	src, _, err := Compile(sanitized(t, shortCircuitModule(t)), DefaultOptions())
	require.NoError(t, err)
	assert.Contains(t, src, "if (tint_tmp) {")
	assert.NotContains(t, src, "&&")
}

func TestCompileGuardedVectorDivision(t *testing.T) {
	src, _, err := Compile(sanitized(t, guardedDivisionModule(t)), DefaultOptions())
	require.NoError(t, err)
	assert.Contains(t, src, "select(")
	assert.Contains(t, src, "int4(1)")
	assert.Contains(t, src, "int4(0)")
}
