// Package ir defines the intermediate representation consumed by the
// crossgpu sanitizer passes and target emitters.
//
// The IR is designed to be:
//   - Resolved: every expression carries a semantic type
//   - Arena-allocated: nodes live in per-function slices and refer to each
//     other through integer handles, never through owning pointers
//   - Closed: expression, statement and type kinds are sum types with
//     unexported marker methods, so a type switch over them is exhaustive
//
// # Structure
//
// A Module contains:
//   - Types: all type definitions, deduplicated through Module.EnsureType
//   - GlobalVariables: module-scope variables (uniforms, storage, textures)
//   - Functions: function definitions, each owning an expression arena,
//     a local arena and a statement tree
//   - EntryPoints: shader entry points with stage information
//
// Let bindings and pointer aliases refer to the objects they alias through
// handles (ExprLocal, ExprAddressOf). They never own them.
//
// # Translation Pipeline
//
//	front end → typed IR → transform.SimplifyPointers → sanitizer passes → glsl/hlsl/msl
//
// Passes do not mutate their input: they Clone the module and return the
// rewritten copy, which keeps idempotence and equality checks simple.
package ir
