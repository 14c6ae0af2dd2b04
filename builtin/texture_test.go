package builtin

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gogpu/crossgpu/ir"
)

// allOverloads enumerates every combination of texture function, dimension
// and texture flavor.
func allOverloads() []TextureOverload {
	var out []TextureOverload
	dims := []ir.ImageDimension{ir.Dim1D, ir.Dim2D, ir.Dim3D, ir.DimCube}
	for fun := ir.TextureSample; fun <= ir.TextureNumSamples; fun++ {
		for _, dim := range dims {
			for flags := 0; flags < 32; flags++ {
				out = append(out, TextureOverload{
					Fun:          fun,
					Dim:          dim,
					Arrayed:      flags&1 != 0,
					Depth:        flags&2 != 0,
					Multisampled: flags&4 != 0,
					Storage:      flags&8 != 0,
					Offset:       flags&16 != 0,
				})
			}
		}
	}
	return out
}

func TestResolveTextureExhaustive(t *testing.T) {
	for _, o := range allOverloads() {
		common := checkOverload(o)
		for _, target := range targets {
			call, err := ResolveTexture(target, o)
			if common != "" {
				require.Error(t, err, "%s %s", target, o)
				assert.True(t, errors.Is(err, ErrUnmapped))
				continue
			}
			if err != nil {
				assert.True(t, errors.Is(err, ErrUnmapped), "%s %s: %v", target, o, err)
				assert.Equal(t, TargetGLSL, target, "only GLSL has target-specific gaps: %s %v", o, err)
				continue
			}
			if !call.Subscript {
				assert.NotEmpty(t, call.Name, "%s %s", target, o)
			}
			assert.Equal(t, target != TargetGLSL, call.Method, "%s %s", target, o)
			if target == TargetMSL {
				assert.False(t, call.PackArrayIndex || call.PackDepthRef || call.PackLevel, "MSL passes separate arguments")
			}
		}
	}
}

func TestResolveTextureRejectsInvalid(t *testing.T) {
	tests := []struct {
		name string
		o    TextureOverload
		want string
	}{
		{"multisampled storage", TextureOverload{Fun: ir.TextureLoad, Dim: ir.Dim2D, Storage: true, Multisampled: true}, "multisampled storage"},
		{"arrayed 3d", TextureOverload{Fun: ir.TextureSample, Dim: ir.Dim3D, Arrayed: true}, "3d textures cannot be arrayed"},
		{"store to sampled", TextureOverload{Fun: ir.TextureStore, Dim: ir.Dim2D}, "only storage textures"},
		{"cube load", TextureOverload{Fun: ir.TextureLoad, Dim: ir.DimCube}, "cannot be loaded"},
		{"cube offset", TextureOverload{Fun: ir.TextureSample, Dim: ir.DimCube, Offset: true}, "offsets require"},
		{"compare on color", TextureOverload{Fun: ir.TextureSampleCompare, Dim: ir.Dim2D}, "comparison requires a depth texture"},
		{"bias on depth", TextureOverload{Fun: ir.TextureSampleBias, Dim: ir.Dim2D, Depth: true}, "bias or gradients"},
		{"1d level", TextureOverload{Fun: ir.TextureSampleLevel, Dim: ir.Dim1D}, "implicit-lod"},
		{"3d gather", TextureOverload{Fun: ir.TextureGather, Dim: ir.Dim3D}, "cannot be gathered"},
		{"layers of flat texture", TextureOverload{Fun: ir.TextureNumLayers, Dim: ir.Dim2D}, "not arrayed"},
		{"samples of single-sampled", TextureOverload{Fun: ir.TextureNumSamples, Dim: ir.Dim2D}, "not multisampled"},
		{"sample multisampled", TextureOverload{Fun: ir.TextureSample, Dim: ir.Dim2D, Multisampled: true}, "cannot be sampled"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for _, target := range targets {
				_, err := ResolveTexture(target, tt.o)
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.want)
			}
		})
	}
}

func TestResolveTextureShapes(t *testing.T) {
	depth2DArray := TextureOverload{Fun: ir.TextureSampleCompareLevel, Dim: ir.Dim2D, Arrayed: true, Depth: true}
	tests := []struct {
		name   string
		target Target
		o      TextureOverload
		want   TextureCall
	}{
		{"glsl sample level", TargetGLSL, TextureOverload{Fun: ir.TextureSampleLevel, Dim: ir.Dim2D},
			TextureCall{Name: "textureLod"}},
		{"glsl sample level array offset", TargetGLSL, TextureOverload{Fun: ir.TextureSampleLevel, Dim: ir.Dim2D, Arrayed: true, Offset: true},
			TextureCall{Name: "textureLodOffset", PackArrayIndex: true}},
		{"glsl compare", TargetGLSL, TextureOverload{Fun: ir.TextureSampleCompare, Dim: ir.Dim2D, Depth: true},
			TextureCall{Name: "texture", PackDepthRef: true}},
		{"glsl compare cube array", TargetGLSL, TextureOverload{Fun: ir.TextureSampleCompare, Dim: ir.DimCube, Arrayed: true, Depth: true},
			TextureCall{Name: "texture", PackArrayIndex: true}},
		{"glsl compare level 2d", TargetGLSL, TextureOverload{Fun: ir.TextureSampleCompareLevel, Dim: ir.Dim2D, Depth: true},
			TextureCall{Name: "textureLod", PackDepthRef: true}},
		{"glsl compare level 2d array", TargetGLSL, depth2DArray,
			TextureCall{Name: "textureGrad", PackArrayIndex: true, PackDepthRef: true, ZeroGradients: true}},
		{"glsl load", TargetGLSL, TextureOverload{Fun: ir.TextureLoad, Dim: ir.Dim2D, Arrayed: true},
			TextureCall{Name: "texelFetch", PackArrayIndex: true, IntegerCoords: true}},
		{"glsl storage store", TargetGLSL, TextureOverload{Fun: ir.TextureStore, Dim: ir.Dim2D, Storage: true},
			TextureCall{Name: "imageStore", IntegerCoords: true}},
		{"glsl dimensions", TargetGLSL, TextureOverload{Fun: ir.TextureDimensions, Dim: ir.DimCube, Arrayed: true},
			TextureCall{Name: "textureSize"}},

		{"hlsl sample level", TargetHLSL, TextureOverload{Fun: ir.TextureSampleLevel, Dim: ir.Dim2D, Arrayed: true},
			TextureCall{Name: "SampleLevel", Method: true, PackArrayIndex: true}},
		{"hlsl compare level", TargetHLSL, depth2DArray,
			TextureCall{Name: "SampleCmpLevelZero", Method: true, PackArrayIndex: true}},
		{"hlsl gather", TargetHLSL, TextureOverload{Fun: ir.TextureGather, Dim: ir.Dim2D},
			TextureCall{Name: "Gather", Method: true, ComponentSuffix: true}},
		{"hlsl load", TargetHLSL, TextureOverload{Fun: ir.TextureLoad, Dim: ir.Dim2D},
			TextureCall{Name: "Load", Method: true, IntegerCoords: true, PackLevel: true}},
		{"hlsl load multisampled", TargetHLSL, TextureOverload{Fun: ir.TextureLoad, Dim: ir.Dim2D, Multisampled: true},
			TextureCall{Name: "Load", Method: true, IntegerCoords: true}},
		{"hlsl store", TargetHLSL, TextureOverload{Fun: ir.TextureStore, Dim: ir.Dim2D, Arrayed: true, Storage: true},
			TextureCall{Method: true, PackArrayIndex: true, IntegerCoords: true, Subscript: true}},
		{"hlsl num levels", TargetHLSL, TextureOverload{Fun: ir.TextureNumLevels, Dim: ir.Dim3D},
			TextureCall{Name: "GetDimensions", Method: true, Query: true}},

		{"msl sample level", TargetMSL, TextureOverload{Fun: ir.TextureSampleLevel, Dim: ir.Dim2D, Arrayed: true},
			TextureCall{Name: "sample", Method: true, LevelWrapper: "level"}},
		{"msl sample grad cube", TargetMSL, TextureOverload{Fun: ir.TextureSampleGrad, Dim: ir.DimCube},
			TextureCall{Name: "sample", Method: true, LevelWrapper: "gradientcube"}},
		{"msl sample bias", TargetMSL, TextureOverload{Fun: ir.TextureSampleBias, Dim: ir.Dim3D},
			TextureCall{Name: "sample", Method: true, LevelWrapper: "bias"}},
		{"msl compare level", TargetMSL, depth2DArray,
			TextureCall{Name: "sample_compare", Method: true, LevelWrapper: "level"}},
		{"msl gather compare", TargetMSL, TextureOverload{Fun: ir.TextureGatherCompare, Dim: ir.DimCube, Depth: true},
			TextureCall{Name: "gather_compare", Method: true}},
		{"msl store", TargetMSL, TextureOverload{Fun: ir.TextureStore, Dim: ir.Dim1D, Storage: true},
			TextureCall{Name: "write", Method: true}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ResolveTexture(tt.target, tt.o)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestResolveTextureGLSLGaps(t *testing.T) {
	gaps := []TextureOverload{
		{Fun: ir.TextureSampleCompareLevel, Dim: ir.DimCube, Arrayed: true, Depth: true},
		{Fun: ir.TextureSample, Dim: ir.Dim2D, Depth: true},
		{Fun: ir.TextureLoad, Dim: ir.Dim2D, Depth: true},
	}
	for _, o := range gaps {
		_, err := ResolveTexture(TargetGLSL, o)
		require.Error(t, err, o.String())
		assert.True(t, errors.Is(err, ErrUnmapped))

		for _, target := range []Target{TargetHLSL, TargetMSL} {
			_, err := ResolveTexture(target, o)
			assert.NoError(t, err, "%s %s", target, o)
		}
	}
}

func TestOverloadOf(t *testing.T) {
	off := ir.ExpressionHandle(3)
	o := OverloadOf(
		ir.ImageType{Dim: ir.Dim2D, Arrayed: true, Class: ir.ImageClassDepth},
		ir.ExprTexture{Fun: ir.TextureSampleCompare, Offset: &off},
	)
	assert.Equal(t, TextureOverload{Fun: ir.TextureSampleCompare, Dim: ir.Dim2D, Arrayed: true, Depth: true, Offset: true}, o)
	assert.Equal(t, "textureSampleCompare(texture_depth_2d_array, offset)", o.String())
}
