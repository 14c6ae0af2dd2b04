// Copyright 2025 The GoGPU Authors
// SPDX-License-Identifier: MIT

package hlsl

import (
	"fmt"

	"github.com/gogpu/crossgpu/builtin"
	"github.com/gogpu/crossgpu/ir"
)

// ScalarToHLSL returns the HLSL type name for a scalar type.
// Ref: https://docs.microsoft.com/en-us/windows/win32/direct3dhlsl/dx-graphics-hlsl-scalar
func ScalarToHLSL(s ir.ScalarType) string {
	return builtin.TypeName(builtin.TargetHLSL, builtin.ClassOf(s), 0)
}

// VectorToHLSL returns the HLSL type name for a vector type.
// HLSL uses TypeN syntax (e.g., float4, int3).
func VectorToHLSL(v ir.VectorType) string {
	return builtin.TypeName(builtin.TargetHLSL, builtin.ClassOf(v.Scalar), v.Size)
}

// MatrixToHLSL returns the HLSL type name for a matrix type.
// A matCxR is written floatCxR: each HLSL row holds one column, so
// indexing yields a column and products are written mul(right, left).
func MatrixToHLSL(m ir.MatrixType) string {
	return fmt.Sprintf("%s%dx%d", ScalarToHLSL(m.Scalar), m.Columns, m.Rows)
}

// ScalarCast returns the HLSL cast function for a scalar kind.
// Used for reinterpreting bits (asfloat, asint, asuint).
func ScalarCast(k ir.ScalarKind) string {
	switch k {
	case ir.ScalarFloat:
		return "asfloat"
	case ir.ScalarSint:
		return "asint"
	default:
		return "asuint"
	}
}

// BuiltInToSemantic returns the HLSL semantic for a built-in value.
// Ref: https://docs.microsoft.com/en-us/windows/win32/direct3dhlsl/dx-graphics-hlsl-semantics
func BuiltInToSemantic(b ir.BuiltinValue) (string, error) {
	switch b {
	// Vertex shader
	case ir.BuiltinPosition:
		return "SV_Position", nil
	case ir.BuiltinVertexIndex:
		return "SV_VertexID", nil
	case ir.BuiltinInstanceIndex:
		return "SV_InstanceID", nil
	// Fragment shader
	case ir.BuiltinFrontFacing:
		return "SV_IsFrontFace", nil
	case ir.BuiltinFragDepth:
		return "SV_Depth", nil
	case ir.BuiltinSampleIndex:
		return "SV_SampleIndex", nil
	case ir.BuiltinSampleMask:
		return "SV_Coverage", nil
	// Compute shader
	case ir.BuiltinGlobalInvocationID:
		return "SV_DispatchThreadID", nil
	case ir.BuiltinLocalInvocationID:
		return "SV_GroupThreadID", nil
	case ir.BuiltinLocalInvocationIndex:
		return "SV_GroupIndex", nil
	case ir.BuiltinWorkGroupID:
		return "SV_GroupID", nil
	default:
		// num_workgroups has no semantic; it would need a root constant.
		return "", newError(ErrUnsupportedFeature, "builtin %d has no HLSL semantic", b)
	}
}

// ImageDimToHLSL returns the HLSL texture dimension suffix.
func ImageDimToHLSL(dim ir.ImageDimension, arrayed bool) string {
	var suffix string
	switch dim {
	case ir.Dim1D:
		suffix = "1D"
	case ir.Dim3D:
		suffix = "3D"
	case ir.DimCube:
		suffix = "Cube"
	default:
		suffix = "2D"
	}

	if arrayed && dim != ir.Dim3D { // 3D textures can't be arrays
		suffix += "Array"
	}

	return suffix
}

// ImageToHLSL returns the full HLSL texture type name, including the texel
// type template argument.
func ImageToHLSL(img ir.ImageType) string {
	prefix := "Texture"
	if img.Class == ir.ImageClassStorage {
		prefix = "RWTexture"
	}

	var dim string
	if img.Multisampled {
		// Texture2DMS, Texture2DMSArray
		dim = ImageDimToHLSL(img.Dim, false) + "MS"
		if img.Arrayed {
			dim += "Array"
		}
	} else {
		dim = ImageDimToHLSL(img.Dim, img.Arrayed)
	}

	texel := ScalarToHLSL(ir.TexelScalar(img))
	if img.Class != ir.ImageClassDepth {
		texel += "4"
	}
	return fmt.Sprintf("%s%s<%s>", prefix, dim, texel)
}

// SamplerToHLSL returns the HLSL sampler type name.
func SamplerToHLSL(comparison bool) string {
	if comparison {
		return "SamplerComparisonState"
	}
	return "SamplerState"
}

// ShaderStageToHLSL returns the HLSL profile prefix for a shader stage.
func ShaderStageToHLSL(stage ir.ShaderStage) string {
	switch stage {
	case ir.StageFragment:
		return "ps" // Pixel shader in HLSL terminology
	case ir.StageCompute:
		return "cs"
	default:
		return "vs"
	}
}

// ShaderProfile returns the HLSL shader profile string.
// Example: "vs_5_1", "ps_6_0", "cs_6_2"
func ShaderProfile(stage ir.ShaderStage, sm ShaderModel) string {
	return ShaderStageToHLSL(stage) + "_" + sm.ProfileSuffix()
}
