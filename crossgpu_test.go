package crossgpu

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gogpu/crossgpu/interp"
	"github.com/gogpu/crossgpu/ir"
	"github.com/gogpu/crossgpu/transform"
)

var (
	dataBinding   = ir.ResourceBinding{Group: 2, Binding: 1}
	resultBinding = ir.ResourceBinding{Group: 0, Binding: 0}
	tableBinding  = ir.ResourceBinding{Group: 0, Binding: 30}
)

// lengthPlusOne builds a compute shader storing arrayLength(&buf.data) + 1u
// into result.value, where buf holds a bare runtime array of u32.
func lengthPlusOne(t *testing.T) *ir.Module {
	t.Helper()
	m := &ir.Module{}
	u32 := m.EnsureType(ir.U32)
	data := m.StructOf("Data", ir.StructMember{Name: "data", Type: m.ArrayOf(u32, nil)})
	result := m.StructOf("Result", ir.StructMember{Name: "value", Type: u32})
	buf := m.AddGlobal(ir.GlobalVariable{Name: "buf", Space: ir.SpaceStorage, Binding: &dataBinding, Type: data, Access: ir.AccessRead})
	res := m.AddGlobal(ir.GlobalVariable{Name: "result", Space: ir.SpaceStorage, Binding: &resultBinding, Type: result, Access: ir.AccessReadWrite})

	b := ir.NewFunction(m, "main")
	n := b.Builtin(ir.BuiltinArrayLength, b.AddressOf(b.Member(b.Global(buf), 0)))
	b.Assign(b.Member(b.Global(res), 0), b.Binary(ir.BinaryAdd, n, b.U32(1)))
	fn, err := b.Finish()
	require.NoError(t, err)
	m.AddEntryPoint("main", ir.StageCompute, fn, [3]uint32{1, 1, 1})
	return m
}

func lengthOptions() Options {
	opts := DefaultOptions()
	opts.MSL.ArrayLength = &transform.ArrayLengthOptions{
		Mode:  transform.ArrayLengthFromUniform,
		UBO:   tableBinding,
		Slots: transform.SlotsFor(dataBinding),
	}
	return opts
}

func TestArrayLengthPlusOneEveryTarget(t *testing.T) {
	const backing = 4096
	module := lengthPlusOne(t)
	opts := lengthOptions()

	spelling := map[Target]string{
		TargetGLSL: ".length()",
		TargetHLSL: "GetDimensions",
		TargetMSL:  "tint_array_lengths",
	}
	for _, target := range Targets {
		t.Run(target.String(), func(t *testing.T) {
			source, err := Translate(module, target, opts)
			require.NoError(t, err)
			assert.Contains(t, source, spelling[target])

			sanitized, _, err := Sanitize(module, target, opts)
			require.NoError(t, err)
			mach, err := interp.New(sanitized,
				interp.WithBufferSize(dataBinding, backing),
				interp.WithBuffer(tableBinding, opts.MSL.ArrayLength.SizeTable(map[ir.ResourceBinding]uint32{dataBinding: backing})),
			)
			require.NoError(t, err)
			_, err = mach.Call("main")
			require.NoError(t, err)
			got, err := mach.Global("result")
			require.NoError(t, err)
			assert.Equal(t, []any{uint32(1025)}, got)
		})
	}
}

func TestTranslateAll(t *testing.T) {
	module := lengthPlusOne(t)
	out, err := TranslateAll(module, lengthOptions())
	require.NoError(t, err)
	assert.Len(t, out, 3)

	again, err := TranslateAll(module, lengthOptions())
	require.NoError(t, err)
	assert.Equal(t, out, again, "translation must be deterministic")
}

func TestTranslateAllNeedsMetalSizeTable(t *testing.T) {
	_, err := TranslateAll(lengthPlusOne(t), DefaultOptions())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "msl")
}

func TestTranslateLeavesModuleUnchanged(t *testing.T) {
	module := lengthPlusOne(t)
	globals := len(module.GlobalVariables)
	exprs := len(module.Functions[0].Expressions)
	_, err := Translate(module, TargetMSL, lengthOptions())
	require.NoError(t, err)
	assert.Len(t, module.GlobalVariables, globals, "the size table is added to a copy")
	assert.Len(t, module.Functions[0].Expressions, exprs)
}

func TestTranslateResult(t *testing.T) {
	r, err := TranslateResult(lengthPlusOne(t), TargetGLSL, DefaultOptions())
	require.NoError(t, err)
	assert.Equal(t, TargetGLSL, r.Target)
	assert.Equal(t, "main", r.EntryPointNames["main"])
	assert.NotEmpty(t, r.Source)
}

func TestTranslateNilModule(t *testing.T) {
	_, err := Translate(nil, TargetGLSL, DefaultOptions())
	assert.Error(t, err)
}
