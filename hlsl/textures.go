// Copyright 2025 The GoGPU Authors
// SPDX-License-Identifier: MIT

package hlsl

import (
	"fmt"
	"strings"

	"github.com/gogpu/crossgpu/builtin"
	"github.com/gogpu/crossgpu/ir"
)

var gatherChannels = [4]string{"Red", "Green", "Blue", "Alpha"}

// texture writes a texture call as a method of the texture object.
//
//nolint:gocyclo,cyclop // one case per texture function
func (w *Writer) texture(e ir.ExprTexture) (string, error) {
	image, ok := w.fn.Expressions[e.Image].Kind.(ir.ExprGlobalVariable)
	if !ok {
		return "", newError(ErrUnsupportedFeature, "textures must be module-scope globals")
	}
	img, ok := w.module.TypeInner(w.module.GlobalVariables[image.Variable].Type).(ir.ImageType)
	if !ok {
		return "", newError(ErrInvalidModule, "texture call on a non-image")
	}

	call, err := builtin.ResolveTexture(builtin.TargetHLSL, builtin.OverloadOf(img, e))
	if err != nil {
		return "", &Error{Kind: ErrUnmappedTextureOverload, Message: err.Error(), Err: err}
	}
	target := w.globalName(image.Variable)

	if call.Query {
		return w.textureQuery(e, img, target)
	}

	coords, err := w.textureCoordinates(e, img, call)
	if err != nil {
		return "", err
	}
	if call.Subscript {
		if e.Value == nil {
			return "", newError(ErrInvalidModule, "texture store has no value")
		}
		value, err := w.expression(*e.Value)
		if err != nil {
			return "", err
		}
		return target + "[" + coords + "] = " + value, nil
	}

	var args []string
	if e.Sampler != nil {
		sampler, ok := w.fn.Expressions[*e.Sampler].Kind.(ir.ExprGlobalVariable)
		if !ok {
			return "", newError(ErrUnsupportedFeature, "samplers must be module-scope globals")
		}
		args = append(args, w.globalName(sampler.Variable))
	}
	args = append(args, coords)

	opt := func(h *ir.ExpressionHandle) error {
		if h == nil {
			return nil
		}
		s, err := w.expression(*h)
		if err != nil {
			return err
		}
		args = append(args, s)
		return nil
	}

	var extra []*ir.ExpressionHandle
	switch e.Fun {
	case ir.TextureSampleBias:
		extra = []*ir.ExpressionHandle{e.Bias}
	case ir.TextureSampleLevel:
		extra = []*ir.ExpressionHandle{e.Level}
	case ir.TextureSampleGrad:
		extra = []*ir.ExpressionHandle{e.GradX, e.GradY}
	case ir.TextureSampleCompare, ir.TextureSampleCompareLevel, ir.TextureGatherCompare:
		extra = []*ir.ExpressionHandle{e.DepthRef}
	case ir.TextureLoad:
		if img.Multisampled {
			extra = []*ir.ExpressionHandle{e.Sample}
		}
	}
	for _, h := range extra {
		if err := opt(h); err != nil {
			return "", err
		}
	}
	if err := opt(e.Offset); err != nil {
		return "", err
	}

	name := call.Name
	if call.ComponentSuffix {
		if e.Component > 3 {
			return "", newError(ErrInvalidModule, "gather component %d out of range", e.Component)
		}
		name += gatherChannels[e.Component]
	}
	return target + "." + name + "(" + strings.Join(args, ", ") + ")", nil
}

// textureCoordinates packs the coordinate with the array layer and, for
// Load, the mip level.
func (w *Writer) textureCoordinates(e ir.ExprTexture, img ir.ImageType, call builtin.TextureCall) (string, error) {
	if e.Coordinate == nil {
		return "", newError(ErrInvalidModule, "%s has no coordinate", e.Fun)
	}
	coord, err := w.expression(*e.Coordinate)
	if err != nil {
		return "", err
	}

	scalar := "float"
	if call.IntegerCoords {
		scalar = "int"
	}
	parts := []string{coord}
	size := img.Dim.CoordinateSize()
	if call.PackArrayIndex && e.ArrayIndex != nil {
		layer, err := w.expression(*e.ArrayIndex)
		if err != nil {
			return "", err
		}
		parts = append(parts, scalar+"("+layer+")")
		size++
	}
	if call.PackLevel {
		level := "0"
		if e.Level != nil {
			if level, err = w.expression(*e.Level); err != nil {
				return "", err
			}
		}
		parts = append(parts, "int("+level+")")
		size++
	}
	if len(parts) == 1 && !call.IntegerCoords {
		return coord, nil
	}
	if size == 1 {
		return scalar + "(" + coord + ")", nil
	}
	return fmt.Sprintf("%s%d(%s)", scalar, size, strings.Join(parts, ", ")), nil
}

// textureQuery answers a dimensions, level, layer or sample count query.
// GetDimensions returns through out parameters, so a helper per texture
// type collects them into a uint4.
func (w *Writer) textureQuery(e ir.ExprTexture, img ir.ImageType, target string) (string, error) {
	dims := img.Dim.CoordinateSize()
	if img.Dim == ir.DimCube {
		dims = 2
	}
	outputs := dims
	if img.Arrayed {
		outputs++
	}
	mipmapped := img.Class != ir.ImageClassStorage && !img.Multisampled
	if mipmapped || img.Multisampled {
		// The level count or the sample count comes last.
		outputs++
	}

	outs := make([]string, outputs)
	for i := range outs {
		outs[i] = "ret." + string("xyzw"[i])
	}
	params := ImageToHLSL(img) + " tex"
	call := "tex.GetDimensions(" + strings.Join(outs, ", ") + ")"
	level := ""
	if mipmapped {
		params += ", uint level"
		call = "tex.GetDimensions(level, " + strings.Join(outs, ", ") + ")"
		level = ", 0u"
		if e.Fun == ir.TextureDimensions && e.Level != nil {
			s, err := w.expression(*e.Level)
			if err != nil {
				return "", err
			}
			level = ", uint(" + s + ")"
		}
	}
	name := w.helper("texture_dimensions", fmt.Sprintf(
		"uint4 {name}(%s) {\n    uint4 ret;\n    %s;\n    return ret;\n}", params, call))
	q := name + "(" + target + level + ")"

	switch e.Fun {
	case ir.TextureDimensions:
		return q + "." + "xyz"[:dims], nil
	case ir.TextureNumLayers:
		if !img.Arrayed {
			return "", newError(ErrInvalidModule, "layer count of a non-arrayed texture")
		}
		return q + "." + string("xyzw"[dims]), nil
	case ir.TextureNumLevels:
		if !mipmapped {
			return "", newError(ErrInvalidModule, "level count of a texture without mipmaps")
		}
		return q + "." + string("xyzw"[outputs-1]), nil
	case ir.TextureNumSamples:
		if !img.Multisampled {
			return "", newError(ErrInvalidModule, "sample count of a single-sampled texture")
		}
		return q + "." + string("xyzw"[outputs-1]), nil
	default:
		return "", newError(ErrUnsupportedFeature, "texture query %s", e.Fun)
	}
}
