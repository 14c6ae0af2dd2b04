// Copyright 2025 The GoGPU Authors
// SPDX-License-Identifier: MIT

package hlsl

import (
	"fmt"
	"strconv"
	"strings"
)

// ShaderModel is a DirectX shader model. It bounds which HLSL constructs
// the generated source may use.
type ShaderModel uint8

// Shader models the emitter can target. Every generated resource names its
// register space, so 5.1 is the oldest usable model.
const (
	ShaderModel5_1 ShaderModel = iota
	ShaderModel6_0
	ShaderModel6_1
	ShaderModel6_2
	ShaderModel6_3
	ShaderModel6_4
	ShaderModel6_5
	ShaderModel6_6
	ShaderModel6_7
)

// shaderModels holds the version and the features each model adds over the
// previous one, indexed by ShaderModel.
var shaderModels = [...]struct {
	major, minor uint8
	adds         FeatureFlags
}{
	ShaderModel5_1: {5, 1, FeatureTypedUAVLoad},
	ShaderModel6_0: {6, 0, FeatureNone},
	ShaderModel6_1: {6, 1, FeatureNone},
	ShaderModel6_2: {6, 2, FeatureFloat16},
	ShaderModel6_3: {6, 3, FeatureNone},
	ShaderModel6_4: {6, 4, FeatureNone},
	ShaderModel6_5: {6, 5, FeatureNone},
	ShaderModel6_6: {6, 6, FeatureNone},
	ShaderModel6_7: {6, 7, FeatureNone},
}

func (sm ShaderModel) version() (major, minor uint8) {
	if int(sm) >= len(shaderModels) {
		sm = ShaderModel5_1
	}
	v := shaderModels[sm]
	return v.major, v.minor
}

// String returns the model as "SM 6.2".
func (sm ShaderModel) String() string {
	major, minor := sm.version()
	return fmt.Sprintf("SM %d.%d", major, minor)
}

// ProfileSuffix returns the suffix of the model's shader profiles, as in
// "6_2" for "ps_6_2".
func (sm ShaderModel) ProfileSuffix() string {
	major, minor := sm.version()
	return fmt.Sprintf("%d_%d", major, minor)
}

// Major returns the major version number.
func (sm ShaderModel) Major() uint8 {
	major, _ := sm.version()
	return major
}

// Minor returns the minor version number.
func (sm ShaderModel) Minor() uint8 {
	_, minor := sm.version()
	return minor
}

// SupportsDXIL reports whether the model compiles to DXIL rather than DXBC.
func (sm ShaderModel) SupportsDXIL() bool {
	return sm.Major() >= 6
}

// Supports reports whether every feature in f is available in the model.
func (sm ShaderModel) Supports(f FeatureFlags) bool {
	var have FeatureFlags
	for m := ShaderModel5_1; m <= sm && int(m) < len(shaderModels); m++ {
		have |= shaderModels[m].adds
	}
	return f&^have == 0
}

// SupportsFloat16 reports whether the model has native half types.
func (sm ShaderModel) SupportsFloat16() bool {
	return sm.Supports(FeatureFloat16)
}

// MinimumShaderModel returns the oldest model that supports f.
func MinimumShaderModel(f FeatureFlags) ShaderModel {
	for m := range shaderModels {
		if ShaderModel(m).Supports(f) {
			return ShaderModel(m)
		}
	}
	return ShaderModel(len(shaderModels) - 1)
}

// ParseShaderModel parses "6.2", "6_2", "sm_6_2" or "SM 6.2".
func ParseShaderModel(s string) (ShaderModel, error) {
	v := strings.ToLower(strings.TrimSpace(s))
	v = strings.TrimPrefix(v, "sm")
	v = strings.TrimLeft(v, " _")
	major, minor, ok := strings.Cut(strings.ReplaceAll(v, "_", "."), ".")
	if ok {
		maj, err1 := strconv.ParseUint(major, 10, 8)
		mnr, err2 := strconv.ParseUint(minor, 10, 8)
		if err1 == nil && err2 == nil {
			for m, sm := range shaderModels {
				if uint64(sm.major) == maj && uint64(sm.minor) == mnr {
					return ShaderModel(m), nil
				}
			}
		}
	}
	return 0, fmt.Errorf("hlsl: unknown shader model %q", s)
}
