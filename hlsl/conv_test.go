// Copyright 2025 The GoGPU Authors
// SPDX-License-Identifier: MIT

package hlsl

import (
	"testing"

	"github.com/gogpu/gputypes"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gogpu/crossgpu/ir"
)

func TestImageToHLSL(t *testing.T) {
	tests := []struct {
		img  ir.ImageType
		want string
	}{
		{ir.ImageType{Dim: ir.Dim2D, Class: ir.ImageClassSampled, SampledKind: ir.ScalarFloat}, "Texture2D<float4>"},
		{ir.ImageType{Dim: ir.Dim2D, Arrayed: true, Class: ir.ImageClassSampled, SampledKind: ir.ScalarUint}, "Texture2DArray<uint4>"},
		{ir.ImageType{Dim: ir.DimCube, Class: ir.ImageClassDepth}, "TextureCube<float>"},
		{ir.ImageType{Dim: ir.Dim2D, Class: ir.ImageClassSampled, Multisampled: true, SampledKind: ir.ScalarSint}, "Texture2DMS<int4>"},
		{ir.ImageType{Dim: ir.Dim3D, Class: ir.ImageClassStorage, StorageFormat: gputypes.TextureFormatRGBA8Unorm, StorageAccess: ir.AccessWrite}, "RWTexture3D<float4>"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ImageToHLSL(tt.img))
	}
}

func TestMatrixToHLSL(t *testing.T) {
	// mat2x3 has two columns of three rows; each HLSL row holds a column.
	assert.Equal(t, "float2x3", MatrixToHLSL(ir.MatrixType{Columns: ir.Vec2, Rows: ir.Vec3, Scalar: ir.F32}))
	assert.Equal(t, "half4x4", MatrixToHLSL(ir.MatrixType{Columns: ir.Vec4, Rows: ir.Vec4, Scalar: ir.F16}))
}

func TestBuiltInToSemantic(t *testing.T) {
	s, err := BuiltInToSemantic(ir.BuiltinGlobalInvocationID)
	require.NoError(t, err)
	assert.Equal(t, "SV_DispatchThreadID", s)

	_, err = BuiltInToSemantic(ir.BuiltinNumWorkGroups)
	assert.Equal(t, ErrUnsupportedFeature, errorKind(t, err))
}

func TestShaderModel(t *testing.T) {
	assert.Equal(t, "SM 6.2", ShaderModel6_2.String())
	assert.Equal(t, "ps_5_1", ShaderProfile(ir.StageFragment, ShaderModel5_1))
	assert.Equal(t, "cs_6_0", ShaderProfile(ir.StageCompute, ShaderModel6_0))
	assert.False(t, ShaderModel6_1.SupportsFloat16())
	assert.True(t, ShaderModel6_2.SupportsFloat16())
	assert.True(t, ShaderModel6_0.SupportsDXIL())
	assert.False(t, ShaderModel5_1.SupportsDXIL())
	assert.True(t, ShaderModel5_1.Supports(FeatureTypedUAVLoad))
	assert.False(t, ShaderModel6_1.Supports(FeatureFloat16|FeatureTypedUAVLoad))
}

func TestMinimumShaderModel(t *testing.T) {
	assert.Equal(t, ShaderModel5_1, MinimumShaderModel(FeatureNone))
	assert.Equal(t, ShaderModel5_1, MinimumShaderModel(FeatureTypedUAVLoad))
	assert.Equal(t, ShaderModel6_2, MinimumShaderModel(FeatureFloat16|FeatureTypedUAVLoad))
}

func TestParseShaderModel(t *testing.T) {
	for _, s := range []string{"6.2", "6_2", "sm_6_2", "SM 6.2"} {
		sm, err := ParseShaderModel(s)
		require.NoError(t, err, s)
		assert.Equal(t, ShaderModel6_2, sm, s)
	}
	_, err := ParseShaderModel("5.0")
	assert.Error(t, err)
	_, err = ParseShaderModel("six")
	assert.Error(t, err)
}

func TestBindTarget(t *testing.T) {
	opts := &Options{
		BindingMap: map[ir.ResourceBinding]BindTarget{{Group: 1, Binding: 0}: {Space: 3, Register: 9}},
	}
	bt, err := opts.bindTarget(ir.ResourceBinding{Group: 1, Binding: 0})
	require.NoError(t, err)
	assert.Equal(t, "register(t9, space3)", bt.annotation(RegisterTypeT))

	_, err = opts.bindTarget(ir.ResourceBinding{Group: 0, Binding: 0})
	assert.Equal(t, ErrMissingBinding, errorKind(t, err))

	opts.FakeMissingBindings = true
	bt, err = opts.bindTarget(ir.ResourceBinding{Group: 2, Binding: 5})
	require.NoError(t, err)
	assert.Equal(t, BindTarget{Space: 2, Register: 5}, bt)

	_, err = opts.bindTarget(ir.ResourceBinding{Group: 256, Binding: 0})
	assert.Equal(t, ErrMissingBinding, errorKind(t, err))
}

func TestEscape(t *testing.T) {
	assert.Equal(t, "_float4", Escape("float4"))
	assert.Equal(t, "_SV_Position", Escape("SV_Position"))
	assert.Equal(t, "_Technique", Escape("Technique"))
	assert.Equal(t, UnnamedIdentifier, Escape(""))
	assert.Equal(t, "color", Escape("color"))
}

func TestFeatureFlagsString(t *testing.T) {
	assert.Equal(t, "none", FeatureNone.String())
	assert.Equal(t, "Float16, TypedUAVLoad", (FeatureFloat16 | FeatureTypedUAVLoad).String())
}
