// Copyright 2025 The GoGPU Authors
// SPDX-License-Identifier: MIT

// Package glsl generates GLSL (OpenGL Shading Language) source from a
// sanitized crossgpu IR module.
//
// It supports multiple GLSL versions for different target platforms:
//
//   - GLSL ES 3.00: WebGL 2.0, Mobile OpenGL ES 3.0
//   - GLSL 3.30 Core: Desktop OpenGL 3.3+
//   - GLSL ES 3.10: Android 5.0+ with compute shaders and storage buffers
//   - GLSL 4.30+ Core: Desktop OpenGL 4.3+ with compute shaders and storage buffers
//
// # Basic Usage
//
//	source, info, err := glsl.Compile(module, glsl.Options{
//	    LangVersion: glsl.Version450,
//	})
//
// One entry point is compiled per call and becomes main(). A module without
// entry points is written as a library of functions.
//
// # Texture/Sampler Handling
//
// WGSL separates textures and samplers, but GLSL combines them.
// The backend generates one combined sampler uniform per texture-sampler
// pair used together, named textureName_samplerName.
//
// # Reserved Words
//
// GLSL has over 500 reserved words (including future reserved).
// Every identifier is allocated through a symbol.Allocator that escapes
// conflicting names by prefixing them with an underscore.
package glsl
