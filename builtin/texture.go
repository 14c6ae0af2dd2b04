package builtin

import (
	"fmt"

	"github.com/pkg/errors"

	"github.com/gogpu/crossgpu/ir"
)

// TextureOverload is the signature a texture call is resolved by.
type TextureOverload struct {
	Fun          ir.TextureFunction
	Dim          ir.ImageDimension
	Arrayed      bool
	Depth        bool
	Multisampled bool
	Storage      bool
	Offset       bool
}

// OverloadOf derives the overload of a texture call on an image type.
func OverloadOf(img ir.ImageType, call ir.ExprTexture) TextureOverload {
	return TextureOverload{
		Fun:          call.Fun,
		Dim:          img.Dim,
		Arrayed:      img.Arrayed,
		Depth:        img.Class == ir.ImageClassDepth,
		Multisampled: img.Multisampled,
		Storage:      img.Class == ir.ImageClassStorage,
		Offset:       call.Offset != nil,
	}
}

// String renders the overload as a WGSL-like signature.
func (o TextureOverload) String() string {
	kind := "texture"
	switch {
	case o.Storage:
		kind = "texture_storage"
	case o.Depth && o.Multisampled:
		kind = "texture_depth_multisampled"
	case o.Depth:
		kind = "texture_depth"
	case o.Multisampled:
		kind = "texture_multisampled"
	}
	dim := o.Dim.String()
	if o.Arrayed {
		dim += "_array"
	}
	s := fmt.Sprintf("%s(%s_%s", o.Fun, kind, dim)
	if o.Offset {
		s += ", offset"
	}
	return s + ")"
}

// TextureCall is the target call shape of a texture overload.
type TextureCall struct {
	// Name is a free function in GLSL and a method of the texture object in HLSL and MSL.
	Name   string
	Method bool

	// PackArrayIndex appends the array layer to the coordinate vector.
	PackArrayIndex bool
	// PackDepthRef appends the depth reference to the coordinate vector.
	PackDepthRef bool
	// PackLevel appends the mip level to the coordinate vector (HLSL Load).
	PackLevel bool
	// IntegerCoords converts coordinates to signed integers.
	IntegerCoords bool

	// LevelWrapper names the MSL level, bias or gradient option.
	LevelWrapper string
	// ZeroGradients replaces an explicit level 0 with zero gradients.
	ZeroGradients bool
	// ComponentSuffix selects the gathered channel through the method name (HLSL).
	ComponentSuffix bool
	// Subscript writes image[coords] instead of a call (HLSL stores).
	Subscript bool
	// Query answers a dimensions-style query through a helper (HLSL GetDimensions).
	Query bool
}

func unmapped(target Target, o TextureOverload, why string) error {
	return errors.Wrapf(ErrUnmapped, "%s: %s: %s", target, o, why)
}

// checkOverload rejects overloads no target can express.
//
//nolint:gocyclo,cyclop // one rule per texture family
func checkOverload(o TextureOverload) string {
	switch {
	case o.Storage && o.Multisampled:
		return "multisampled storage textures are not supported"
	case o.Storage && o.Depth:
		return "storage textures cannot be depth textures"
	case o.Dim == ir.Dim3D && o.Arrayed:
		return "3d textures cannot be arrayed"
	case o.Multisampled && (o.Dim != ir.Dim2D || o.Arrayed):
		return "multisampled textures must be 2d"
	case o.Storage && o.Dim == ir.DimCube:
		return "storage textures cannot be cube maps"
	case o.Depth && (o.Dim == ir.Dim1D || o.Dim == ir.Dim3D):
		return "depth textures must be 2d or cube"
	}

	if o.Offset {
		if o.Dim == ir.DimCube || o.Dim == ir.Dim1D {
			return "offsets require a 2d or 3d texture"
		}
		if !o.Fun.IsSampling() {
			return "offsets apply to sampling only"
		}
	}

	switch o.Fun {
	case ir.TextureStore:
		if !o.Storage {
			return "only storage textures can be stored to"
		}
		return ""
	case ir.TextureLoad:
		if o.Dim == ir.DimCube {
			return "cube textures cannot be loaded"
		}
		return ""
	case ir.TextureDimensions:
		return ""
	case ir.TextureNumLayers:
		if !o.Arrayed {
			return "texture is not arrayed"
		}
		return ""
	case ir.TextureNumLevels:
		if o.Storage || o.Multisampled {
			return "texture has no mip levels"
		}
		return ""
	case ir.TextureNumSamples:
		if !o.Multisampled {
			return "texture is not multisampled"
		}
		return ""
	}

	// Sampling.
	if o.Storage || o.Multisampled {
		return "texture cannot be sampled"
	}
	switch o.Fun {
	case ir.TextureSampleCompare, ir.TextureSampleCompareLevel, ir.TextureGatherCompare:
		if !o.Depth {
			return "comparison requires a depth texture"
		}
	case ir.TextureSampleBias, ir.TextureSampleGrad:
		if o.Depth {
			return "depth textures cannot be sampled with bias or gradients"
		}
	}
	if o.Dim == ir.Dim1D && o.Fun != ir.TextureSample {
		return "1d textures support implicit-lod sampling only"
	}
	if (o.Fun == ir.TextureGather || o.Fun == ir.TextureGatherCompare) && o.Dim == ir.Dim3D {
		return "3d textures cannot be gathered"
	}
	return ""
}

// ResolveTexture selects the call shape of a texture overload on target.
func ResolveTexture(target Target, o TextureOverload) (TextureCall, error) {
	if why := checkOverload(o); why != "" {
		return TextureCall{}, unmapped(target, o, why)
	}
	switch target {
	case TargetGLSL:
		return glslTexture(o)
	case TargetHLSL:
		return hlslTexture(o), nil
	case TargetMSL:
		return mslTexture(o), nil
	default:
		return TextureCall{}, unmapped(target, o, "unknown target")
	}
}

func withOffset(name string, o TextureOverload) string {
	if o.Offset {
		return name + "Offset"
	}
	return name
}

//nolint:gocyclo,cyclop // one case per texture function
func glslTexture(o TextureOverload) (TextureCall, error) {
	// Depth textures are shadow samplers in GLSL; only comparisons and queries apply.
	if o.Depth && !o.Fun.IsQuery() {
		switch o.Fun {
		case ir.TextureSampleCompare, ir.TextureSampleCompareLevel, ir.TextureGatherCompare:
		default:
			return TextureCall{}, unmapped(TargetGLSL, o, "shadow samplers only support comparisons")
		}
	}

	call := TextureCall{PackArrayIndex: o.Arrayed}
	cubeArray := o.Dim == ir.DimCube && o.Arrayed
	switch o.Fun {
	case ir.TextureSample, ir.TextureSampleBias:
		call.Name = withOffset("texture", o)
	case ir.TextureSampleLevel:
		call.Name = withOffset("textureLod", o)
	case ir.TextureSampleGrad:
		call.Name = withOffset("textureGrad", o)
	case ir.TextureSampleCompare:
		call.Name = withOffset("texture", o)
		call.PackDepthRef = !cubeArray
	case ir.TextureSampleCompareLevel:
		switch {
		case cubeArray:
			return TextureCall{}, unmapped(TargetGLSL, o, "samplerCubeArrayShadow has no explicit-lod comparison")
		case o.Dim == ir.Dim2D && !o.Arrayed:
			call.Name = withOffset("textureLod", o)
		default:
			call.Name = withOffset("textureGrad", o)
			call.ZeroGradients = true
		}
		call.PackDepthRef = true
	case ir.TextureGather, ir.TextureGatherCompare:
		call.Name = withOffset("textureGather", o)
	case ir.TextureLoad:
		call.IntegerCoords = true
		if o.Storage {
			call.Name = "imageLoad"
		} else {
			call.Name = "texelFetch"
		}
	case ir.TextureStore:
		call.Name = "imageStore"
		call.IntegerCoords = true
	case ir.TextureDimensions, ir.TextureNumLayers:
		call.PackArrayIndex = false
		if o.Storage {
			call.Name = "imageSize"
		} else {
			call.Name = "textureSize"
		}
	case ir.TextureNumLevels:
		call.PackArrayIndex = false
		call.Name = "textureQueryLevels"
	case ir.TextureNumSamples:
		call.PackArrayIndex = false
		if o.Storage {
			call.Name = "imageSamples"
		} else {
			call.Name = "textureSamples"
		}
	}
	return call, nil
}

func hlslTexture(o TextureOverload) TextureCall {
	call := TextureCall{Method: true, PackArrayIndex: o.Arrayed}
	switch o.Fun {
	case ir.TextureSample:
		call.Name = "Sample"
	case ir.TextureSampleBias:
		call.Name = "SampleBias"
	case ir.TextureSampleLevel:
		call.Name = "SampleLevel"
	case ir.TextureSampleGrad:
		call.Name = "SampleGrad"
	case ir.TextureSampleCompare:
		call.Name = "SampleCmp"
	case ir.TextureSampleCompareLevel:
		call.Name = "SampleCmpLevelZero"
	case ir.TextureGather:
		call.Name = "Gather"
		call.ComponentSuffix = !o.Depth
	case ir.TextureGatherCompare:
		call.Name = "GatherCmp"
	case ir.TextureLoad:
		call.Name = "Load"
		call.IntegerCoords = true
		call.PackLevel = !o.Storage && !o.Multisampled
	case ir.TextureStore:
		call.Subscript = true
		call.IntegerCoords = true
	default:
		call.Name = "GetDimensions"
		call.Query = true
		call.PackArrayIndex = false
	}
	return call
}

func mslTexture(o TextureOverload) TextureCall {
	call := TextureCall{Method: true}
	switch o.Fun {
	case ir.TextureSample:
		call.Name = "sample"
	case ir.TextureSampleBias:
		call.Name = "sample"
		call.LevelWrapper = "bias"
	case ir.TextureSampleLevel:
		call.Name = "sample"
		call.LevelWrapper = "level"
	case ir.TextureSampleGrad:
		call.Name = "sample"
		switch o.Dim {
		case ir.Dim3D:
			call.LevelWrapper = "gradient3d"
		case ir.DimCube:
			call.LevelWrapper = "gradientcube"
		default:
			call.LevelWrapper = "gradient2d"
		}
	case ir.TextureSampleCompare:
		call.Name = "sample_compare"
	case ir.TextureSampleCompareLevel:
		call.Name = "sample_compare"
		call.LevelWrapper = "level"
	case ir.TextureGather:
		call.Name = "gather"
	case ir.TextureGatherCompare:
		call.Name = "gather_compare"
	case ir.TextureLoad:
		call.Name = "read"
	case ir.TextureStore:
		call.Name = "write"
	case ir.TextureDimensions:
		call.Name = "get_width"
	case ir.TextureNumLevels:
		call.Name = "get_num_mip_levels"
	case ir.TextureNumLayers:
		call.Name = "get_array_size"
	case ir.TextureNumSamples:
		call.Name = "get_num_samples"
	}
	return call
}
