package ir

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func uint32Ptr(v uint32) *uint32 { return &v }

func messages(errs []ValidationError) []string {
	out := make([]string, len(errs))
	for i, e := range errs {
		out[i] = e.Error()
	}
	return out
}

func TestValidate_ValidModule(t *testing.T) {
	m, g := storageModule(t)
	vec3u := m.EnsureType(VectorType{Size: Vec3, Scalar: U32})

	b := NewFunction(m, "main")
	gid := b.Arg("gid", vec3u, BuiltinBinding{Builtin: BuiltinGlobalInvocationID})
	n := b.Builtin(BuiltinArrayLength, b.AddressOf(b.Member(b.Global(g), 1)))
	b.Assign(b.Member(b.Global(g), 0), b.Binary(BinaryAdd, n, b.Expr(ExprSwizzle{Size: 1, Vector: gid})))
	h, err := b.Finish()
	require.NoError(t, err)
	m.AddEntryPoint("main", StageCompute, h, [3]uint32{1, 1, 1})

	errs, err := Validate(m)
	require.NoError(t, err)
	assert.Empty(t, messages(errs))
}

func TestValidate_NilModule(t *testing.T) {
	_, err := Validate(nil)
	assert.Error(t, err)
}

func TestValidate_Types(t *testing.T) {
	tests := []struct {
		name  string
		types []Type
		want  string
	}{
		{
			name:  "array base out of range",
			types: []Type{{Inner: ArrayType{Base: 999, Size: ArraySize{Constant: uint32Ptr(4)}, Stride: 4}}},
			want:  "array base type 999",
		},
		{
			name:  "vector size",
			types: []Type{{Inner: VectorType{Size: 5, Scalar: F32}}},
			want:  "vector size must be 2, 3, or 4",
		},
		{
			name:  "integer matrix",
			types: []Type{{Inner: MatrixType{Columns: Vec2, Rows: Vec2, Scalar: I32}}},
			want:  "matrix scalar must be float",
		},
		{
			name: "runtime array not last",
			types: []Type{
				{Inner: U32},
				{Inner: ArrayType{Base: 0, Stride: 4}},
				{Name: "S", Inner: StructType{Members: []StructMember{
					{Name: "data", Type: 1},
					{Name: "tail", Type: 0, Offset: 4},
				}}},
			},
			want: `runtime-sized member "data" must be last`,
		},
		{
			name:  "storage image without access",
			types: []Type{{Inner: ImageType{Dim: Dim2D, Class: ImageClassStorage}}},
			want:  "storage image needs an access mode",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			errs, err := Validate(&Module{Types: tt.types})
			require.NoError(t, err)
			require.NotEmpty(t, errs)
			assert.Contains(t, messages(errs)[0], tt.want)
		})
	}
}

func TestValidate_GlobalNeedsBinding(t *testing.T) {
	m := &Module{}
	u32 := m.EnsureType(U32)
	m.AddGlobal(GlobalVariable{Name: "u", Space: SpaceUniform, Type: u32})

	errs, err := Validate(m)
	require.NoError(t, err)
	require.Len(t, errs, 1)
	assert.Contains(t, errs[0].Error(), "needs @group/@binding")
}

func TestValidate_DuplicateBinding(t *testing.T) {
	m := &Module{}
	u32 := m.EnsureType(U32)
	m.AddGlobal(GlobalVariable{Name: "a", Space: SpaceUniform, Type: u32, Binding: &ResourceBinding{Group: 0, Binding: 0}})
	m.AddGlobal(GlobalVariable{Name: "b", Space: SpaceUniform, Type: u32, Binding: &ResourceBinding{Group: 0, Binding: 0}})

	errs, err := Validate(m)
	require.NoError(t, err)
	require.Len(t, errs, 1)
	assert.Contains(t, errs[0].Error(), "duplicate binding @group(0) @binding(0)")
}

func TestValidate_Statements(t *testing.T) {
	tests := []struct {
		name  string
		build func(b *FunctionBuilder)
		want  string
	}{
		{
			name:  "break outside loop",
			build: func(b *FunctionBuilder) { b.Stmt(StmtBreak{}) },
			want:  "break outside of loop or switch",
		},
		{
			name:  "continue outside loop",
			build: func(b *FunctionBuilder) { b.Stmt(StmtContinue{}) },
			want:  "continue outside of loop",
		},
		{
			name: "assign to let",
			build: func(b *FunctionBuilder) {
				x := b.Let("x", b.U32(1))
				b.Assign(x, b.U32(2))
			},
			want: "is not a reference",
		},
		{
			name:  "non-bool condition",
			build: func(b *FunctionBuilder) { b.If(b.U32(1), nil, nil) },
			want:  "if condition must be a bool",
		},
		{
			name: "return value from void function",
			build: func(b *FunctionBuilder) {
				v := b.U32(1)
				b.Return(&v)
			},
			want: "return with a value",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := &Module{}
			b := NewFunction(m, "f")
			tt.build(b)
			_, err := b.Finish()
			require.NoError(t, err)

			errs, err := Validate(m)
			require.NoError(t, err)
			require.NotEmpty(t, errs)
			assert.Contains(t, messages(errs)[0], tt.want)
		})
	}
}

func TestValidate_LoopAllowsBreakAndContinue(t *testing.T) {
	m := &Module{}
	b := NewFunction(m, "f")
	b.Loop(func() {
		b.If(b.Bool(true), func() { b.Stmt(StmtBreak{}) }, func() { b.Stmt(StmtContinue{}) })
	}, nil, func() ExpressionHandle { return b.Bool(false) })
	_, err := b.Finish()
	require.NoError(t, err)

	errs, err := Validate(m)
	require.NoError(t, err)
	assert.Empty(t, messages(errs))
}

func TestValidate_EntryPoints(t *testing.T) {
	m := &Module{}
	vec4 := m.EnsureType(VectorType{Size: Vec4, Scalar: F32})

	vs := NewFunction(m, "vs")
	vs.Returns(vec4, LocationBinding{Location: 0})
	zero := vs.Expr(ExprZeroValue{Type: vec4})
	vs.Return(&zero)
	vh, err := vs.Finish()
	require.NoError(t, err)
	m.AddEntryPoint("vs", StageVertex, vh, [3]uint32{})

	cs := NewFunction(m, "cs")
	ch, err := cs.Finish()
	require.NoError(t, err)
	m.AddEntryPoint("cs", StageCompute, ch, [3]uint32{8, 0, 1})

	errs, err := Validate(m)
	require.NoError(t, err)
	got := messages(errs)
	require.Len(t, got, 2)
	assert.Contains(t, got[0], "must return @builtin(position)")
	assert.Contains(t, got[1], "workgroup size must be non-zero")
}
