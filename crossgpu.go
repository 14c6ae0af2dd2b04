// Package crossgpu translates shader IR to GLSL, HLSL and MSL.
//
// A module built with the ir package is first sanitized for its target:
// pointers are simplified, short-circuit operators and integer division are
// made explicit, and arrayLength is lowered the way the target can compute
// it. The sanitized module is then printed by the target's emitter.
//
// Example usage:
//
//	opts := crossgpu.DefaultOptions()
//	source, err := crossgpu.Translate(module, crossgpu.TargetHLSL, opts)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
// MSL has no buffer size query, so a module using arrayLength needs a size
// table configured for it:
//
//	opts.MSL.ArrayLength = &transform.ArrayLengthOptions{
//	    Mode:  transform.ArrayLengthFromUniform,
//	    UBO:   ir.ResourceBinding{Group: 0, Binding: 30},
//	    Slots: transform.SlotsFor(ir.ResourceBinding{Group: 2, Binding: 1}),
//	}
//
// The packages glsl, hlsl and msl can also be used directly on a module that
// has already been sanitized with transform.Run.
package crossgpu

import (
	"github.com/pkg/errors"
	"k8s.io/klog/v2"

	"github.com/gogpu/crossgpu/builtin"
	"github.com/gogpu/crossgpu/glsl"
	"github.com/gogpu/crossgpu/hlsl"
	"github.com/gogpu/crossgpu/ir"
	"github.com/gogpu/crossgpu/msl"
	"github.com/gogpu/crossgpu/transform"
)

// Target is an output shading language.
type Target = builtin.Target

// Supported targets.
const (
	TargetGLSL = builtin.TargetGLSL
	TargetHLSL = builtin.TargetHLSL
	TargetMSL  = builtin.TargetMSL
)

// Targets lists every supported target in a fixed order.
var Targets = []Target{TargetGLSL, TargetHLSL, TargetMSL}

// TargetOptions configures one target: how its module is sanitized and how
// it is printed.
type TargetOptions[E any] struct {
	// ArrayLength overrides the target's default arrayLength lowering.
	ArrayLength *transform.ArrayLengthOptions

	// Emit configures the emitter.
	Emit E
}

// Options configures translation.
type Options struct {
	// Validate checks the module before sanitizing it.
	Validate bool

	// DisableDivisionGuards leaves integer division by zero to the target.
	DisableDivisionGuards bool

	GLSL TargetOptions[glsl.Options]
	HLSL TargetOptions[*hlsl.Options]
	MSL  TargetOptions[msl.Options]
}

// DefaultOptions returns options with every emitter's defaults and
// validation enabled.
func DefaultOptions() Options {
	return Options{
		Validate: true,
		GLSL:     TargetOptions[glsl.Options]{Emit: glsl.DefaultOptions()},
		HLSL:     TargetOptions[*hlsl.Options]{Emit: hlsl.DefaultOptions()},
		MSL:      TargetOptions[msl.Options]{Emit: msl.DefaultOptions()},
	}
}

// Result is a translated module.
type Result struct {
	Target Target
	Source string

	// EntryPointNames maps entry point names to the names in Source.
	EntryPointNames map[string]string

	// Diagnostics are the sanitizer's non-fatal findings.
	Diagnostics []transform.Diagnostic
}

// Translate sanitizes module for target and prints it. The module is not
// modified.
func Translate(module *ir.Module, target Target, opts Options) (string, error) {
	r, err := TranslateResult(module, target, opts)
	if err != nil {
		return "", err
	}
	return r.Source, nil
}

// TranslateResult is Translate returning the emitter's metadata and the
// sanitizer's diagnostics along with the source.
func TranslateResult(module *ir.Module, target Target, opts Options) (*Result, error) {
	if module == nil {
		return nil, errors.New("module is nil")
	}
	if opts.Validate {
		verrs, err := ir.Validate(module)
		if err != nil {
			return nil, errors.Wrap(err, "validation error")
		}
		if len(verrs) > 0 {
			return nil, errors.Wrap(&verrs[0], "validation failed")
		}
	}

	sanitized, ctx, err := Sanitize(module, target, opts)
	if err != nil {
		return nil, err
	}
	r := &Result{Target: target, Diagnostics: ctx.Diagnostics}
	switch target {
	case TargetGLSL:
		source, info, err := glsl.Compile(sanitized, opts.GLSL.Emit)
		if err != nil {
			return nil, err
		}
		r.Source, r.EntryPointNames = source, info.EntryPointNames
	case TargetHLSL:
		emit := opts.HLSL.Emit
		if emit == nil {
			emit = hlsl.DefaultOptions()
		}
		source, info, err := hlsl.Compile(sanitized, emit)
		if err != nil {
			return nil, err
		}
		r.Source, r.EntryPointNames = source, info.EntryPointNames
	case TargetMSL:
		source, info, err := msl.Compile(sanitized, opts.MSL.Emit)
		if err != nil {
			return nil, err
		}
		r.Source, r.EntryPointNames = source, info.EntryPointNames
	default:
		return nil, errors.Errorf("unknown target %v", target)
	}
	klog.V(1).Infof("crossgpu: translated module to %s (%d bytes, %d diagnostics)", target, len(r.Source), len(r.Diagnostics))
	return r, nil
}

// Sanitize runs the target's sanitizer pipeline on a copy of module.
func Sanitize(module *ir.Module, target Target, opts Options) (*ir.Module, *transform.Context, error) {
	topts := transform.Options{DisableDivisionGuards: opts.DisableDivisionGuards}
	switch target {
	case TargetGLSL:
		topts.ArrayLength = opts.GLSL.ArrayLength
	case TargetHLSL:
		topts.ArrayLength = opts.HLSL.ArrayLength
	case TargetMSL:
		topts.ArrayLength = opts.MSL.ArrayLength
	}
	klog.V(1).Infof("crossgpu: sanitizing module for %s", target)
	return transform.Run(module, target, topts)
}

// TranslateAll translates module for every target in Targets. It stops at
// the first target that fails.
func TranslateAll(module *ir.Module, opts Options) (map[Target]string, error) {
	out := make(map[Target]string, len(Targets))
	for _, target := range Targets {
		source, err := Translate(module, target, opts)
		if err != nil {
			return nil, errors.Wrapf(err, "%s", target)
		}
		out[target] = source
	}
	return out, nil
}
