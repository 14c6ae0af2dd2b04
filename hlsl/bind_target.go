// Copyright 2025 The GoGPU Authors
// SPDX-License-Identifier: MIT

package hlsl

import (
	"fmt"

	"github.com/gogpu/crossgpu/ir"
)

// BindTarget specifies the HLSL register binding for a resource.
// HLSL uses register(x#, space#) syntax for resource binding.
type BindTarget struct {
	// Space is the register space (0-based).
	// Spaces allow multiple resources to use the same register index.
	Space uint8

	// Register is the register index within the space.
	Register uint32
}

// annotation returns the register(...) annotation for a register class.
func (bt BindTarget) annotation(rt RegisterType) string {
	return fmt.Sprintf("register(%s%d, space%d)", rt, bt.Register, bt.Space)
}

// RegisterType represents the HLSL register type.
type RegisterType uint8

const (
	// RegisterTypeB is for constant buffers (cbuffer).
	RegisterTypeB RegisterType = iota

	// RegisterTypeT is for textures and shader resource views.
	RegisterTypeT

	// RegisterTypeS is for samplers.
	RegisterTypeS

	// RegisterTypeU is for unordered access views (UAV).
	RegisterTypeU
)

// String returns the single-character register prefix.
func (rt RegisterType) String() string {
	switch rt {
	case RegisterTypeB:
		return "b"
	case RegisterTypeT:
		return "t"
	case RegisterTypeS:
		return "s"
	case RegisterTypeU:
		return "u"
	default:
		return "b"
	}
}

// registerTypeOf returns the register class a global binds to.
func registerTypeOf(module *ir.Module, g *ir.GlobalVariable) RegisterType {
	switch g.Space {
	case ir.SpaceUniform:
		return RegisterTypeB
	case ir.SpaceStorage:
		if g.Access&ir.AccessWrite != 0 {
			return RegisterTypeU
		}
		return RegisterTypeT
	}
	switch t := module.TypeInner(g.Type).(type) {
	case ir.SamplerType:
		return RegisterTypeS
	case ir.ImageType:
		if t.Class == ir.ImageClassStorage {
			return RegisterTypeU
		}
	}
	return RegisterTypeT
}

// bindTarget resolves the register of a resource binding. Unmapped
// bindings use their group as space and binding as register when
// FakeMissingBindings is set.
func (o *Options) bindTarget(b ir.ResourceBinding) (BindTarget, error) {
	if bt, ok := o.BindingMap[b]; ok {
		return bt, nil
	}
	if !o.FakeMissingBindings {
		return BindTarget{}, newError(ErrMissingBinding, "no register for @group(%d) @binding(%d)", b.Group, b.Binding)
	}
	if b.Group > 255 {
		return BindTarget{}, newError(ErrMissingBinding, "group %d does not fit a register space", b.Group)
	}
	return BindTarget{Space: uint8(b.Group), Register: b.Binding}, nil
}
