package msl

import (
	"fmt"
	"strings"

	"github.com/gogpu/crossgpu/builtin"
	"github.com/gogpu/crossgpu/ir"
)

var gatherComponents = [4]string{"x", "y", "z", "w"}

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

	call, err := builtin.ResolveTexture(builtin.TargetMSL, builtin.OverloadOf(img, e))
	if err != nil {
		return "", &Error{Kind: ErrUnmappedTextureOverload, Message: err.Error(), Err: err}
	}
	target := w.globalName(image.Variable)

	switch e.Fun {
	case ir.TextureDimensions, ir.TextureNumLevels, ir.TextureNumLayers, ir.TextureNumSamples:
		return w.textureQuery(e, img, target, call)
	case ir.TextureLoad, ir.TextureStore:
		return w.textureAccess(e, img, target, call)
	}

	var args []string
	add := func(h *ir.ExpressionHandle, wrap string) error {
		if h == nil {
			return nil
		}
		s, err := w.expression(*h)
		if err != nil {
			return err
		}
		if wrap != "" {
			s = wrap + "(" + s + ")"
		}
		args = append(args, s)
		return nil
	}

	if e.Sampler == nil {
		return "", newError(ErrInvalidModule, "%s has no sampler", e.Fun)
	}
	sampler, ok := w.fn.Expressions[*e.Sampler].Kind.(ir.ExprGlobalVariable)
	if !ok {
		return "", newError(ErrUnsupportedFeature, "samplers must be module-scope globals")
	}
	args = append(args, w.globalName(sampler.Variable))
	if e.Coordinate == nil {
		return "", newError(ErrInvalidModule, "%s has no coordinate", e.Fun)
	}
	if err := add(e.Coordinate, ""); err != nil {
		return "", err
	}
	if img.Arrayed {
		if e.ArrayIndex == nil {
			return "", newError(ErrInvalidModule, "%s on an arrayed texture has no layer", e.Fun)
		}
		if err := add(e.ArrayIndex, "uint"); err != nil {
			return "", err
		}
	}
	if err := add(e.DepthRef, ""); err != nil {
		return "", err
	}

	switch call.LevelWrapper {
	case "level":
		if e.Fun == ir.TextureSampleCompareLevel {
			args = append(args, Namespace+"level(0.0)")
		} else if err := add(e.Level, Namespace+"level"); err != nil {
			return "", err
		}
	case "bias":
		if err := add(e.Bias, Namespace+"bias"); err != nil {
			return "", err
		}
	case "":
	default:
		if e.GradX == nil || e.GradY == nil {
			return "", newError(ErrInvalidModule, "%s needs both gradients", e.Fun)
		}
		dx, err := w.expression(*e.GradX)
		if err != nil {
			return "", err
		}
		dy, err := w.expression(*e.GradY)
		if err != nil {
			return "", err
		}
		args = append(args, Namespace+call.LevelWrapper+"("+dx+", "+dy+")")
	}

	if err := add(e.Offset, ""); err != nil {
		return "", err
	}
	if e.Fun == ir.TextureGather && img.Class != ir.ImageClassDepth && e.Component != 0 {
		if e.Component > 3 {
			return "", newError(ErrInvalidModule, "gather component %d out of range", e.Component)
		}
		if e.Offset == nil {
			// The component follows the offset, which then must be spelled.
			args = append(args, "int2(0)")
		}
		args = append(args, Namespace+"component::"+gatherComponents[e.Component])
	}
	return target + "." + call.Name + "(" + strings.Join(args, ", ") + ")", nil
}

// texelCoordinates converts a load or store coordinate to the unsigned
// vector Metal addresses texels with.
func (w *Writer) texelCoordinates(e ir.ExprTexture, img ir.ImageType) (string, error) {
	if e.Coordinate == nil {
		return "", newError(ErrInvalidModule, "%s has no coordinate", e.Fun)
	}
	coord, err := w.expression(*e.Coordinate)
	if err != nil {
		return "", err
	}
	size := img.Dim.CoordinateSize()
	if size == 1 {
		return "uint(" + coord + ")", nil
	}
	return fmt.Sprintf("uint%d(%s)", size, coord), nil
}

// textureAccess writes a read or a write of one texel.
func (w *Writer) textureAccess(e ir.ExprTexture, img ir.ImageType, target string, call builtin.TextureCall) (string, error) {
	coords, err := w.texelCoordinates(e, img)
	if err != nil {
		return "", err
	}
	var args []string
	if e.Fun == ir.TextureStore {
		if e.Value == nil {
			return "", newError(ErrInvalidModule, "texture store has no value")
		}
		value, err := w.expression(*e.Value)
		if err != nil {
			return "", err
		}
		args = append(args, value)
	}
	args = append(args, coords)

	extra := []*ir.ExpressionHandle{}
	if img.Arrayed {
		if e.ArrayIndex == nil {
			return "", newError(ErrInvalidModule, "%s on an arrayed texture has no layer", e.Fun)
		}
		extra = append(extra, e.ArrayIndex)
	}
	if e.Fun == ir.TextureLoad {
		switch {
		case img.Multisampled:
			extra = append(extra, e.Sample)
		case img.Class != ir.ImageClassStorage && img.Dim != ir.Dim1D && e.Level != nil:
			extra = append(extra, e.Level)
		}
	}
	for _, h := range extra {
		if h == nil {
			return "", newError(ErrInvalidModule, "%s is missing an operand", e.Fun)
		}
		s, err := w.expression(*h)
		if err != nil {
			return "", err
		}
		args = append(args, "uint("+s+")")
	}
	return target + "." + call.Name + "(" + strings.Join(args, ", ") + ")", nil
}

// textureQuery answers a dimensions, level, layer or sample count query.
func (w *Writer) textureQuery(e ir.ExprTexture, img ir.ImageType, target string, call builtin.TextureCall) (string, error) {
	if e.Fun != ir.TextureDimensions {
		return target + "." + call.Name + "()", nil
	}

	level := ""
	mipmapped := img.Class != ir.ImageClassStorage && !img.Multisampled
	if mipmapped && e.Level != nil && img.Dim != ir.Dim1D {
		s, err := w.expression(*e.Level)
		if err != nil {
			return "", err
		}
		level = "uint(" + s + ")"
	}
	width := target + ".get_width(" + level + ")"
	switch img.Dim {
	case ir.Dim1D:
		return width, nil
	case ir.Dim3D:
		return fmt.Sprintf("uint3(%s, %s.get_height(%s), %s.get_depth(%s))", width, target, level, target, level), nil
	default:
		return fmt.Sprintf("uint2(%s, %s.get_height(%s))", width, target, level), nil
	}
}
