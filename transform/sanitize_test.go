package transform

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gogpu/crossgpu/builtin"
	"github.com/gogpu/crossgpu/interp"
	"github.com/gogpu/crossgpu/ir"
)

func TestSanitizePipelines(t *testing.T) {
	all := []string{"simplify_pointers", "promote_initializers", "lower_short_circuit", "array_length", "guard_integer_division"}
	for _, target := range []builtin.Target{builtin.TargetGLSL, builtin.TargetHLSL, builtin.TargetMSL} {
		m, err := Sanitize(target, DefaultOptions())
		require.NoError(t, err, target)
		assert.Equal(t, all, m.Names(), target)
	}

	m, err := Sanitize(builtin.TargetGLSL, Options{DisableDivisionGuards: true})
	require.NoError(t, err)
	assert.Equal(t, all[:4], m.Names())
}

func TestSanitizeRejectsUnsupportedArrayLength(t *testing.T) {
	tests := []struct {
		target builtin.Target
		mode   ArrayLengthMode
	}{
		{builtin.TargetMSL, ArrayLengthNative},
		{builtin.TargetHLSL, ArrayLengthNative},
		{builtin.TargetGLSL, ArrayLengthFromBufferSize},
		{builtin.TargetMSL, ArrayLengthFromBufferSize},
	}
	for _, tt := range tests {
		_, err := Sanitize(tt.target, Options{ArrayLength: &ArrayLengthOptions{Mode: tt.mode}})
		assert.Error(t, err, "%s with %s", tt.target, tt.mode)
	}

	_, err := Sanitize(builtin.TargetGLSL, Options{ArrayLength: &ArrayLengthOptions{Mode: ArrayLengthFromUniform}})
	assert.NoError(t, err)
}

func TestDefaultArrayLength(t *testing.T) {
	assert.Equal(t, ArrayLengthNative, DefaultArrayLength(builtin.TargetGLSL).Mode)
	assert.Equal(t, ArrayLengthFromBufferSize, DefaultArrayLength(builtin.TargetHLSL).Mode)
	assert.Equal(t, ArrayLengthFromUniform, DefaultArrayLength(builtin.TargetMSL).Mode)
}

// sanitizeModule reads arrayLength through a pointer let and divides by it.
func sanitizeModule(t *testing.T) *ir.Module {
	m := lengthModule(t)
	u32 := m.EnsureType(ir.U32)
	build(t, m, "f", func(b *ir.FunctionBuilder) {
		d := b.Arg("d", u32, nil)
		b.Returns(u32, nil)
		p := b.Let("p", b.AddressOf(b.Member(b.Global(0), 1)))
		n := b.Binary(ir.BinaryAdd, b.Builtin(ir.BuiltinArrayLength, p), b.U32(1))
		r := b.Binary(ir.BinaryAdd, n, b.Binary(ir.BinaryDivide, b.U32(7), d))
		b.Return(&r)
	})
	return m
}

func TestRunSanitizesForEachTarget(t *testing.T) {
	m := sanitizeModule(t)
	msl := ArrayLengthOptions{Mode: ArrayLengthFromUniform, UBO: tableBinding, Slots: SlotsFor(structBinding)}

	tests := []struct {
		target builtin.Target
		opts   Options
		extra  []interp.Option
	}{
		{builtin.TargetGLSL, DefaultOptions(), nil},
		{builtin.TargetHLSL, DefaultOptions(), nil},
		{builtin.TargetMSL, Options{ArrayLength: &msl}, []interp.Option{
			interp.WithBuffer(tableBinding, msl.SizeTable(map[ir.ResourceBinding]uint32{structBinding: 4096})),
		}},
	}
	for _, tt := range tests {
		t.Run(tt.target.String(), func(t *testing.T) {
			out, ctx, err := Run(m, tt.target, tt.opts)
			require.NoError(t, err)
			assert.Empty(t, ctx.Diagnostics)
			assert.Zero(t, pointerLets(out, function(out, "f")))

			opts := append(buffers(4096), tt.extra...)
			got, _ := call(t, out, "f", []any{uint32(0)}, opts...)
			assert.Equal(t, uint32(1024+7), got)
			got, _ = call(t, out, "f", []any{uint32(7)}, opts...)
			assert.Equal(t, uint32(1024+1), got)
		})
	}
}

func TestRunMSLNeedsTable(t *testing.T) {
	_, _, err := Run(sanitizeModule(t), builtin.TargetMSL, DefaultOptions())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "sanitize for msl")
	assert.Contains(t, err.Error(), "no array length uniform table")
}
