package msl

import (
	"fmt"

	"github.com/gogpu/crossgpu/ir"
)

// Version represents an MSL language version.
type Version struct {
	Major uint8
	Minor uint8
}

// Common MSL versions.
var (
	Version1_2 = Version{Major: 1, Minor: 2}
	Version2_0 = Version{Major: 2, Minor: 0}
	Version2_1 = Version{Major: 2, Minor: 1}
	Version2_3 = Version{Major: 2, Minor: 3}
	Version3_0 = Version{Major: 3, Minor: 0}
)

// String returns the version as "major.minor".
func (v Version) String() string {
	return fmt.Sprintf("%d.%d", v.Major, v.Minor)
}

// AtLeast reports whether v is other or newer.
func (v Version) AtLeast(other Version) bool {
	if v.Major != other.Major {
		return v.Major > other.Major
	}
	return v.Minor >= other.Minor
}

// BindTarget specifies the Metal argument table slots of a resource. Only
// the slot matching the resource's class is read.
type BindTarget struct {
	// Buffer is the buffer slot of uniform and storage buffers.
	Buffer *uint8

	// Texture is the texture slot of sampled, depth and storage textures.
	Texture *uint8

	// Sampler is the sampler slot of samplers.
	Sampler *uint8
}

// Options configures MSL code generation.
type Options struct {
	// LangVersion is the target MSL version.
	// Defaults to Version2_1 if zero.
	LangVersion Version

	// BindingMap maps source resource bindings to Metal slots.
	// If a binding is not found in the map and FakeMissingBindings is false,
	// compilation will fail with ErrMissingBinding.
	BindingMap map[ir.ResourceBinding]BindTarget

	// FakeMissingBindings assigns unmapped resources consecutive slots of
	// their class, in global declaration order, after the highest mapped slot.
	FakeMissingBindings bool

	// ZeroInitializeWorkgroupMemory zeroes threadgroup variables at the start
	// of compute kernels. Metal leaves them undefined.
	ZeroInitializeWorkgroupMemory bool

	// EntryPoint specifies which entry point to compile.
	// If empty, the first entry point is used.
	EntryPoint string
}

// DefaultOptions returns sensible default options for MSL generation.
func DefaultOptions() Options {
	return Options{
		LangVersion:                   Version2_1,
		FakeMissingBindings:           true,
		ZeroInitializeWorkgroupMemory: true,
	}
}

// TranslationInfo contains metadata about the MSL translation.
type TranslationInfo struct {
	// EntryPointNames maps original entry point names to generated MSL names.
	EntryPointNames map[string]string

	// ResourceSlots maps resource names to their attribute, e.g. "buffer(0)".
	ResourceSlots map[string]string

	// Workgroup is the threadgroup size a compute kernel must be dispatched
	// with. Metal takes it from the host, not the shader.
	Workgroup [3]uint32

	// HelperFunctions lists the helper functions that were generated.
	HelperFunctions []string
}

// Compile generates MSL source code from an IR module.
// The module should already be sanitized for MSL; Compile does not modify it.
func Compile(module *ir.Module, options Options) (string, TranslationInfo, error) {
	if module == nil {
		return "", TranslationInfo{}, newError(ErrInvalidModule, "module is nil")
	}
	if options.LangVersion.Major == 0 {
		options.LangVersion = Version2_1
	}

	w, err := newWriter(module, &options)
	if err != nil {
		return "", TranslationInfo{}, fmt.Errorf("msl: %w", err)
	}
	if err := w.writeModule(); err != nil {
		return "", TranslationInfo{}, fmt.Errorf("msl: %w", err)
	}

	info := TranslationInfo{
		EntryPointNames: w.entryPointNames,
		ResourceSlots:   w.resourceSlots,
		HelperFunctions: w.helperOrder,
	}
	if w.entry != nil && w.entry.Stage == ir.StageCompute {
		info.Workgroup = w.entry.Workgroup
	}
	return w.String(), info, nil
}
