// Copyright 2025 The GoGPU Authors
// SPDX-License-Identifier: MIT

package glsl

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/gogpu/crossgpu/ir"
)

// Version is a GLSL language version. ES selects the OpenGL ES dialect.
type Version struct {
	Major uint8
	Minor uint8
	ES    bool
}

// Versions the emitter is tested against.
var (
	Version330 = Version{Major: 3, Minor: 30}
	Version400 = Version{Major: 4, Minor: 0}
	Version410 = Version{Major: 4, Minor: 10}
	Version420 = Version{Major: 4, Minor: 20}
	Version430 = Version{Major: 4, Minor: 30}
	Version450 = Version{Major: 4, Minor: 50}
	Version460 = Version{Major: 4, Minor: 60}

	VersionES300 = Version{Major: 3, Minor: 0, ES: true}
	VersionES310 = Version{Major: 3, Minor: 10, ES: true}
	VersionES320 = Version{Major: 3, Minor: 20, ES: true}
)

// String returns the value of the #version directive, as in "450 core".
func (v Version) String() string {
	if v.ES {
		return v.VersionNumber() + " es"
	}
	return v.VersionNumber() + " core"
}

// VersionNumber returns the bare version number, as in "450".
func (v Version) VersionNumber() string {
	return strconv.Itoa(v.number())
}

func (v Version) number() int {
	return int(v.Major)*100 + int(v.Minor)
}

// ParseVersion parses a #version value such as "450", "330 core" or "310 es".
func ParseVersion(s string) (Version, error) {
	fields := strings.Fields(s)
	if len(fields) == 0 || len(fields) > 2 {
		return Version{}, fmt.Errorf("glsl: malformed version %q", s)
	}
	n, err := strconv.Atoi(fields[0])
	if err != nil || n < 100 || n > 999 {
		return Version{}, fmt.Errorf("glsl: malformed version %q", s)
	}
	v := Version{Major: uint8(n / 100), Minor: uint8(n % 100)}
	if len(fields) == 2 {
		switch fields[1] {
		case "es":
			v.ES = true
		case "core":
		default:
			return Version{}, fmt.Errorf("glsl: unknown profile %q", fields[1])
		}
	}
	return v, nil
}

// Feature is a language capability that only some versions have.
type Feature uint8

const (
	// FeatureCompute is compute shaders.
	FeatureCompute Feature = iota
	// FeatureStorageBuffers is buffer blocks.
	FeatureStorageBuffers
	// FeatureExplicitBinding is layout(binding = N) on blocks and samplers.
	FeatureExplicitBinding
	// FeatureExplicitLocation is layout(location = N) between stages.
	FeatureExplicitLocation
	// FeatureIntegerMix is mix() with a boolean vector selector on integer
	// and boolean operands. Float operands have it in every version.
	FeatureIntegerMix
)

// introduced holds the first desktop and ES version with each feature.
var introduced = [...]struct{ desktop, es int }{
	FeatureCompute:          {430, 310},
	FeatureStorageBuffers:   {430, 310},
	FeatureExplicitBinding:  {420, 310},
	FeatureExplicitLocation: {410, 310},
	FeatureIntegerMix:       {450, 310},
}

// Supports reports whether v has f.
func (v Version) Supports(f Feature) bool {
	first := introduced[f].desktop
	if v.ES {
		first = introduced[f].es
	}
	return v.number() >= first
}

// Options configures GLSL code generation.
type Options struct {
	// LangVersion is the target GLSL version.
	// Defaults to Version450 if zero.
	LangVersion Version

	// EntryPoint specifies which entry point to compile.
	// If empty, the first entry point is compiled.
	EntryPoint string

	// SamplerBindingBase adds offset to combined sampler and image binding indices.
	SamplerBindingBase uint32

	// UniformBindingBase adds offset to uniform buffer binding indices.
	UniformBindingBase uint32

	// StorageBindingBase adds offset to storage buffer binding indices.
	StorageBindingBase uint32

	// EnableF16 allows f16 types through GL_EXT_shader_explicit_arithmetic_types_float16.
	EnableF16 bool

	// ForceHighPrecision forces highp precision for all float types (ES only).
	// If false, uses default precision qualifiers.
	ForceHighPrecision bool
}

// DefaultOptions returns sensible default options for GLSL generation.
func DefaultOptions() Options {
	return Options{
		LangVersion:        Version450,
		ForceHighPrecision: true,
	}
}

// TranslationInfo contains metadata about the translation.
type TranslationInfo struct {
	// EntryPointNames maps original entry point names to generated GLSL names.
	EntryPointNames map[string]string

	// UsedExtensions lists GLSL extensions required by the shader.
	UsedExtensions []string

	// RequiredVersion is the GLSL version the shader was written for.
	RequiredVersion Version

	// TextureSamplerPairs lists the combined texture-sampler pairs generated.
	// Each entry is "textureName_samplerName".
	TextureSamplerPairs []string
}

// Compile generates GLSL source code from an IR module.
// The module should already be sanitized for GLSL; Compile does not modify it.
func Compile(module *ir.Module, options Options) (string, TranslationInfo, error) {
	if module == nil {
		return "", TranslationInfo{}, newError(ErrInvalidModule, "module is nil")
	}
	if options.LangVersion.Major == 0 {
		options.LangVersion = Version450
	}

	w, err := newWriter(module, &options)
	if err != nil {
		return "", TranslationInfo{}, fmt.Errorf("glsl: %w", err)
	}
	if err := w.writeModule(); err != nil {
		return "", TranslationInfo{}, fmt.Errorf("glsl: %w", err)
	}

	info := TranslationInfo{
		EntryPointNames:     w.entryPointNames,
		UsedExtensions:      w.extensions,
		RequiredVersion:     options.LangVersion,
		TextureSamplerPairs: w.pairNames(),
	}
	return w.String(), info, nil
}
