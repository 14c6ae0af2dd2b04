package ir

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/x448/float16"
)

func TestResolveLiteralType(t *testing.T) {
	tests := []struct {
		name     string
		literal  Literal
		wantType TypeInner
	}{
		{"f32 literal", Literal{Value: LiteralF32(3.14)}, F32},
		{"f16 literal", Literal{Value: LiteralF16(float16.Fromfloat32(0.5))}, F16},
		{"i32 literal", Literal{Value: LiteralI32(42)}, I32},
		{"u32 literal", Literal{Value: LiteralU32(100)}, U32},
		{"bool literal", Literal{Value: LiteralBool(true)}, Bool},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := resolveLiteralType(tt.literal)
			require.NoError(t, err)
			assert.Nil(t, got.Handle)
			assert.Equal(t, tt.wantType, got.Value)
		})
	}
}

func TestLiteralF16RoundTrip(t *testing.T) {
	lit := LiteralF16(float16.Fromfloat32(1.5))
	assert.Equal(t, float32(1.5), lit.Float32())
}

// storageModule builds a module with `var<storage, read_write> buf: Buf`
// where Buf { count: u32, data: array<u32> }.
func storageModule(t *testing.T) (*Module, GlobalVariableHandle) {
	t.Helper()
	m := &Module{}
	u32 := m.EnsureType(U32)
	buf := m.StructOf("Buf",
		StructMember{Name: "count", Type: u32},
		StructMember{Name: "data", Type: m.ArrayOf(u32, nil)},
	)
	g := m.AddGlobal(GlobalVariable{
		Name:    "buf",
		Space:   SpaceStorage,
		Binding: &ResourceBinding{Group: 2, Binding: 1},
		Type:    buf,
		Access:  AccessReadWrite,
	})
	return m, g
}

func TestResolveReferencesAndPointers(t *testing.T) {
	m, g := storageModule(t)
	b := NewFunction(m, "f")

	data := b.Member(b.Global(g), 1)
	elem := b.Index(data, b.U32(3))
	ptr := b.AddressOf(elem)
	p := b.Let("p", ptr)
	deref := b.Deref(p)
	_, err := b.Finish()
	require.NoError(t, err)

	fn := &m.Functions[0]
	assert.Equal(t, U32, fn.ExpressionTypes[elem].Inner(m))

	ptrType, ok := fn.ExpressionTypes[ptr].Inner(m).(PointerType)
	require.True(t, ok)
	assert.Equal(t, SpaceStorage, ptrType.Space)
	assert.Equal(t, U32, m.TypeInner(ptrType.Base))

	assert.Equal(t, U32, fn.ExpressionTypes[deref].Inner(m))
	assert.True(t, IsReference(m, fn, deref))
	assert.True(t, IsReference(m, fn, elem))
	assert.False(t, IsReference(m, fn, p), "a let holding a pointer is a value")
}

func TestResolveBinaryBroadcast(t *testing.T) {
	m := &Module{}
	vec4 := m.EnsureType(VectorType{Size: Vec4, Scalar: I32})
	b := NewFunction(m, "f")
	v := b.Expr(ExprZeroValue{Type: vec4})
	s := b.I32(2)

	mul := b.Binary(BinaryMultiply, s, v)
	cmp := b.Binary(BinaryEqual, v, b.Expr(ExprSplat{Size: Vec4, Value: s}))
	and := b.Binary(BinaryLogicalAnd, b.Bool(true), b.Bool(false))
	_, err := b.Finish()
	require.NoError(t, err)

	fn := &m.Functions[0]
	assert.Equal(t, VectorType{Size: Vec4, Scalar: I32}, fn.ExpressionTypes[mul].Inner(m))
	assert.Equal(t, VectorType{Size: Vec4, Scalar: Bool}, fn.ExpressionTypes[cmp].Inner(m))
	assert.Equal(t, Bool, fn.ExpressionTypes[and].Inner(m))
}

func TestResolveBuiltinTypes(t *testing.T) {
	m := &Module{}
	vec3 := m.EnsureType(VectorType{Size: Vec3, Scalar: F32})
	b := NewFunction(m, "f")
	v := b.Expr(ExprZeroValue{Type: vec3})

	dot := b.Builtin(BuiltinDot, v, v)
	length := b.Builtin(BuiltinLength, v)
	pack := b.Builtin(BuiltinPack4x8snorm, b.Expr(ExprSplat{Size: Vec4, Value: b.F32(1)}))
	unpack := b.Builtin(BuiltinUnpack2x16float, b.U32(0))
	barrier := b.Builtin(BuiltinStorageBarrier)
	_, err := b.Finish()
	require.NoError(t, err)

	fn := &m.Functions[0]
	assert.Equal(t, F32, fn.ExpressionTypes[dot].Inner(m))
	assert.Equal(t, F32, fn.ExpressionTypes[length].Inner(m))
	assert.Equal(t, U32, fn.ExpressionTypes[pack].Inner(m))
	assert.Equal(t, VectorType{Size: Vec2, Scalar: F32}, fn.ExpressionTypes[unpack].Inner(m))
	assert.Nil(t, fn.ExpressionTypes[barrier].Inner(m))
}

func TestResolveBuiltinArity(t *testing.T) {
	m := &Module{}
	b := NewFunction(m, "f")
	b.Builtin(BuiltinDot, b.F32(1))
	_, err := b.Finish()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "dot expects 2 arguments")
}

func TestResolveTextureTypes(t *testing.T) {
	m := &Module{}
	depth := m.EnsureType(ImageType{Dim: Dim2D, Class: ImageClassDepth})
	color := m.EnsureType(ImageType{Dim: Dim3D, Class: ImageClassSampled, SampledKind: ScalarUint})
	gd := m.AddGlobal(GlobalVariable{Name: "d", Space: SpaceHandle, Type: depth, Binding: &ResourceBinding{Binding: 0}})
	gc := m.AddGlobal(GlobalVariable{Name: "c", Space: SpaceHandle, Type: color, Binding: &ResourceBinding{Binding: 1}})

	b := NewFunction(m, "f")
	load := b.Expr(ExprTexture{Fun: TextureLoad, Image: b.Global(gd)})
	dims := b.Expr(ExprTexture{Fun: TextureDimensions, Image: b.Global(gc)})
	texel := b.Expr(ExprTexture{Fun: TextureLoad, Image: b.Global(gc)})
	_, err := b.Finish()
	require.NoError(t, err)

	fn := &m.Functions[0]
	assert.Equal(t, F32, fn.ExpressionTypes[load].Inner(m))
	assert.Equal(t, VectorType{Size: Vec3, Scalar: U32}, fn.ExpressionTypes[dims].Inner(m))
	assert.Equal(t, VectorType{Size: Vec4, Scalar: U32}, fn.ExpressionTypes[texel].Inner(m))
}
