package transform

import (
	"github.com/pkg/errors"

	"github.com/gogpu/crossgpu/builtin"
	"github.com/gogpu/crossgpu/ir"
)

// Options configures the sanitizer pipeline of one target.
type Options struct {
	// ArrayLength overrides the target's default arrayLength lowering.
	ArrayLength *ArrayLengthOptions

	// DisableDivisionGuards leaves integer division by zero to the target.
	DisableDivisionGuards bool
}

// DefaultOptions returns the options every target is sanitized with unless
// told otherwise.
func DefaultOptions() Options {
	return Options{}
}

// DefaultArrayLength returns the arrayLength lowering a target needs: HLSL
// queries the buffer, MSL reads a uniform table that must be configured and
// GLSL uses the native .length().
func DefaultArrayLength(target builtin.Target) ArrayLengthOptions {
	switch target {
	case builtin.TargetHLSL:
		return ArrayLengthOptions{Mode: ArrayLengthFromBufferSize}
	case builtin.TargetMSL:
		return ArrayLengthOptions{Mode: ArrayLengthFromUniform}
	default:
		return ArrayLengthOptions{Mode: ArrayLengthNative}
	}
}

// Sanitize returns the pass pipeline that legalizes a module for target.
func Sanitize(target builtin.Target, opts Options) (*Manager, error) {
	length := DefaultArrayLength(target)
	if opts.ArrayLength != nil {
		length = *opts.ArrayLength
	}
	switch {
	case target == builtin.TargetMSL && length.Mode == ArrayLengthNative:
		return nil, errors.Errorf("%s cannot compute arrayLength natively", target)
	case target == builtin.TargetHLSL && length.Mode == ArrayLengthNative:
		return nil, errors.Errorf("%s cannot compute arrayLength natively", target)
	case target == builtin.TargetGLSL && length.Mode == ArrayLengthFromBufferSize:
		return nil, errors.Errorf("%s has no buffer size query", target)
	case target == builtin.TargetMSL && length.Mode == ArrayLengthFromBufferSize:
		return nil, errors.Errorf("%s has no buffer size query", target)
	}

	m := NewManager(
		SimplifyPointers{},
		PromoteInitializers{},
		LowerShortCircuit{},
		ArrayLength{Options: length},
	)
	if !opts.DisableDivisionGuards {
		m.Add(GuardIntegerDivision{})
	}
	return m, nil
}

// Run sanitizes module for target with a fresh context, returning the
// legalized module and the context holding its diagnostics and symbols.
func Run(module *ir.Module, target builtin.Target, opts Options) (*ir.Module, *Context, error) {
	m, err := Sanitize(target, opts)
	if err != nil {
		return nil, nil, err
	}
	ctx := NewContext(module)
	out, err := m.Run(module, ctx)
	if err != nil {
		return nil, ctx, errors.Wrapf(err, "sanitize for %s", target)
	}
	return out, ctx, nil
}
