// Copyright 2025 The GoGPU Authors
// SPDX-License-Identifier: MIT

// Package hlsl generates HLSL source for Direct3D from a sanitized crossgpu
// IR module.
//
// Output targets the legacy FXC compiler (Shader Model 5.x) and DXC
// (Shader Model 6.x). f16 requires Shader Model 6.2.
//
// # Usage
//
//	options := hlsl.DefaultOptions()
//	options.ShaderModel = hlsl.ShaderModel6_0
//	source, info, err := hlsl.Compile(module, options)
//
// One entry point is compiled per call. The entry function is written as a
// regular function and a wrapper named after the entry point carries the
// semantics.
//
// # Register Binding
//
// Resources are bound to registers with spaces:
//
//	cbuffer   : register(b#, space#)  // uniform buffers
//	Texture   : register(t#, space#)  // textures and read-only storage
//	Sampler   : register(s#, space#)  // samplers
//	RWTexture : register(u#, space#)  // storage textures and writable storage
//
// Options.BindingMap assigns registers explicitly. With FakeMissingBindings
// an unmapped binding uses its group as the space and its binding as the
// register.
//
// # Matrices
//
// A WGSL matCxR is declared floatCxR. Each HLSL row holds one WGSL column,
// so indexing a matrix yields a column and products are written
// mul(right, left). Struct and cbuffer members are row_major.
//
// # Storage Buffers
//
// Storage buffers are (RW)ByteAddressBuffers. Accesses are lowered to Load
// and Store calls at byte offsets computed from the IR layout, which keeps
// WGSL's layout exact.
package hlsl
