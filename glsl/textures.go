// Copyright 2025 The GoGPU Authors
// SPDX-License-Identifier: MIT

package glsl

import (
	"fmt"
	"strings"

	"github.com/gogpu/crossgpu/builtin"
	"github.com/gogpu/crossgpu/ir"
)

// texture writes a texture builtin call against the combined sampler (or
// image) the texture was paired with.
//
//nolint:gocyclo,cyclop // one case per texture function
func (w *Writer) texture(e ir.ExprTexture) (string, error) {
	imageGlobal, ok := w.fn.Expressions[e.Image].Kind.(ir.ExprGlobalVariable)
	if !ok {
		return "", newError(ErrUnsupportedFeature, "textures must be module-scope globals")
	}
	img, ok := w.module.TypeInner(w.module.GlobalVariables[imageGlobal.Variable].Type).(ir.ImageType)
	if !ok {
		return "", newError(ErrInvalidModule, "texture call on a non-image")
	}

	call, err := builtin.ResolveTexture(builtin.TargetGLSL, builtin.OverloadOf(img, e))
	if err != nil {
		return "", &Error{Kind: ErrUnmappedTextureOverload, Message: err.Error(), Err: err}
	}

	target, err := w.textureTarget(e, img, imageGlobal.Variable)
	if err != nil {
		return "", err
	}
	args := []string{target}

	if e.Fun.IsQuery() {
		return w.textureQuery(e, img, call, target)
	}

	coords, err := w.textureCoordinates(e, img, call)
	if err != nil {
		return "", err
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
	wrapped := func(ty string, h *ir.ExpressionHandle) error {
		if h == nil {
			return nil
		}
		s, err := w.expression(*h)
		if err != nil {
			return err
		}
		args = append(args, ty+"("+s+")")
		return nil
	}

	switch e.Fun {
	case ir.TextureSample, ir.TextureSampleBias:
		if err := opt(e.Offset); err != nil {
			return "", err
		}
		if err := opt(e.Bias); err != nil {
			return "", err
		}
	case ir.TextureSampleLevel:
		if err := wrapped("float", e.Level); err != nil {
			return "", err
		}
		if err := opt(e.Offset); err != nil {
			return "", err
		}
	case ir.TextureSampleGrad:
		if err := opt(e.GradX); err != nil {
			return "", err
		}
		if err := opt(e.GradY); err != nil {
			return "", err
		}
		if err := opt(e.Offset); err != nil {
			return "", err
		}
	case ir.TextureSampleCompare:
		if !call.PackDepthRef {
			if err := opt(e.DepthRef); err != nil {
				return "", err
			}
		}
		if err := opt(e.Offset); err != nil {
			return "", err
		}
	case ir.TextureSampleCompareLevel:
		if call.ZeroGradients {
			zero := fmt.Sprintf("vec%d(0.0)", img.Dim.CoordinateSize())
			args = append(args, zero, zero)
		} else {
			args = append(args, "0.0")
		}
		if err := opt(e.Offset); err != nil {
			return "", err
		}
	case ir.TextureGather:
		if err := opt(e.Offset); err != nil {
			return "", err
		}
		if e.Component != 0 {
			args = append(args, fmt.Sprintf("%d", e.Component))
		}
	case ir.TextureGatherCompare:
		if err := opt(e.DepthRef); err != nil {
			return "", err
		}
		if err := opt(e.Offset); err != nil {
			return "", err
		}
	case ir.TextureLoad:
		if img.Class != ir.ImageClassStorage {
			if img.Multisampled {
				if err := wrapped("int", e.Sample); err != nil {
					return "", err
				}
			} else if e.Level != nil {
				if err := wrapped("int", e.Level); err != nil {
					return "", err
				}
			} else {
				args = append(args, "0")
			}
		}
	case ir.TextureStore:
		if err := opt(e.Value); err != nil {
			return "", err
		}
	}
	return call.Name + "(" + strings.Join(args, ", ") + ")", nil
}

// textureTarget names the combined sampler or storage image a call reads.
func (w *Writer) textureTarget(e ir.ExprTexture, img ir.ImageType, image ir.GlobalVariableHandle) (string, error) {
	if img.Class == ir.ImageClassStorage {
		return w.globalName(image), nil
	}
	pair := samplerPair{image: image, alone: true}
	if e.Sampler != nil {
		sampler, ok := w.fn.Expressions[*e.Sampler].Kind.(ir.ExprGlobalVariable)
		if !ok {
			return "", newError(ErrUnsupportedFeature, "samplers must be module-scope globals")
		}
		pair = samplerPair{image: image, sampler: sampler.Variable}
	}
	name, ok := w.pairName[pair]
	if !ok {
		return "", newError(ErrInvalidModule, "texture %q was not paired", w.globalName(image))
	}
	return name, nil
}

// textureCoordinates packs the coordinate, array layer and depth
// reference into one vector where the call wants them together.
func (w *Writer) textureCoordinates(e ir.ExprTexture, img ir.ImageType, call builtin.TextureCall) (string, error) {
	if e.Coordinate == nil {
		return "", newError(ErrInvalidModule, "%s has no coordinate", e.Fun)
	}
	coord, err := w.expression(*e.Coordinate)
	if err != nil {
		return "", err
	}

	scalar, vector := "float", "vec"
	if call.IntegerCoords {
		scalar, vector = "int", "ivec"
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
	if call.PackDepthRef && e.DepthRef != nil {
		ref, err := w.expression(*e.DepthRef)
		if err != nil {
			return "", err
		}
		parts = append(parts, ref)
		size++
	}
	if len(parts) == 1 && !call.IntegerCoords {
		return coord, nil
	}
	if size == 1 {
		return scalar + "(" + coord + ")", nil
	}
	return fmt.Sprintf("%s%d(%s)", vector, size, strings.Join(parts, ", ")), nil
}

// textureQuery writes a dimensions, layer, level or sample count query.
func (w *Writer) textureQuery(e ir.ExprTexture, img ir.ImageType, call builtin.TextureCall, target string) (string, error) {
	args := []string{target}
	if call.Name == "textureSize" && !img.Multisampled {
		level := "0"
		if e.Level != nil && e.Fun == ir.TextureDimensions {
			s, err := w.expression(*e.Level)
			if err != nil {
				return "", err
			}
			level = "int(" + s + ")"
		}
		args = append(args, level)
	}
	q := call.Name + "(" + strings.Join(args, ", ") + ")"

	// Components the size query returns: the dimensions, then the layer count.
	dims := img.Dim.CoordinateSize()
	if img.Dim == ir.DimCube {
		dims = 2
	}
	total := dims
	if img.Arrayed {
		total++
	}

	switch e.Fun {
	case ir.TextureDimensions:
		if dims == 1 {
			if total > 1 {
				q += ".x"
			}
			return "uint(" + q + ")", nil
		}
		if total > dims {
			q += "." + "xyz"[:dims]
		}
		return fmt.Sprintf("uvec%d(%s)", dims, q), nil
	case ir.TextureNumLayers:
		return "uint(" + q + "." + string("xyz"[dims]) + ")", nil
	default:
		return "uint(" + q + ")", nil
	}
}
