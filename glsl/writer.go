// Copyright 2025 The GoGPU Authors
// SPDX-License-Identifier: MIT

package glsl

import (
	"fmt"
	"strings"

	"k8s.io/klog/v2"

	"github.com/gogpu/crossgpu/builtin"
	"github.com/gogpu/crossgpu/ir"
	"github.com/gogpu/crossgpu/symbol"
)

// nameKey identifies an IR entity for name lookup.
type nameKey struct {
	kind    nameKeyKind
	handle1 uint32
	handle2 uint32
}

type nameKeyKind uint8

const (
	nameKeyType nameKeyKind = iota
	nameKeyStructMember
	nameKeyGlobalVariable
	nameKeyFunction
	nameKeyFunctionArgument
	nameKeyLocal
)

// samplerPair is a texture global combined with the sampler it is used
// with. Textures used without a sampler (loads and queries) pair with
// themselves and have alone set.
type samplerPair struct {
	image   ir.GlobalVariableHandle
	sampler ir.GlobalVariableHandle
	alone   bool
}

// Writer generates GLSL source code from IR.
type Writer struct {
	module  *ir.Module
	options *Options

	// Output buffer
	out strings.Builder

	// Current indentation level
	indent int

	// Name management
	names   map[nameKey]string
	symbols *symbol.Allocator
	mapper  *builtin.Mapper

	// entry is the compiled entry point, nil when writing a library.
	entry *ir.EntryPoint

	// functions and globals mark what the entry point reaches.
	functions []bool
	globals   []bool

	// Texture-sampler pair tracking (WGSL separates, GLSL combines)
	pairs     []samplerPair
	pairName  map[samplerPair]string

	// Helper functions keyed by source template, in first-use order.
	helperNames  map[string]string
	helperSource []string

	// Function context (set during function writing)
	fn           *ir.Function
	fnHandle     ir.FunctionHandle
	inEntryPoint bool

	// Entry point inputs per argument, and outputs.
	inputs  [][]entryIO
	outputs []entryIO

	// Output tracking
	entryPointNames map[string]string
	extensions      []string
}

// newWriter prepares a writer for module. The module is cloned and its
// expression types refreshed, so the caller's copy is never touched.
func newWriter(module *ir.Module, options *Options) (*Writer, error) {
	module = module.Clone()
	if err := ir.ResolveModule(module); err != nil {
		return nil, &Error{Kind: ErrInvalidModule, Message: err.Error(), Err: err}
	}
	if errs, err := ir.Validate(module); err != nil || len(errs) > 0 {
		if err == nil {
			err = errs[0]
		}
		return nil, &Error{Kind: ErrInvalidModule, Message: err.Error(), Err: err}
	}

	w := &Writer{
		module:          module,
		options:         options,
		names:           make(map[nameKey]string),
		symbols:         symbol.NewAllocator(symbol.WithEscape(escapeKeyword)),
		mapper:          builtin.NewMapper(builtin.TargetGLSL),
		pairName:        make(map[samplerPair]string),
		helperNames:     make(map[string]string),
		entryPointNames: make(map[string]string),
	}

	if err := w.selectEntryPoint(); err != nil {
		return nil, err
	}
	w.registerNames()
	w.collectEntryIO()
	if err := w.collectSamplerPairs(); err != nil {
		return nil, err
	}
	return w, nil
}

// String returns the generated GLSL source code.
func (w *Writer) String() string {
	return w.out.String()
}

// selectEntryPoint picks the entry point to compile and marks the functions
// and globals it reaches. A module without entry points is a library and
// keeps everything.
func (w *Writer) selectEntryPoint() error {
	if len(w.module.EntryPoints) == 0 {
		if w.options.EntryPoint != "" {
			return newError(ErrEntryPointNotFound, "entry point %q not found", w.options.EntryPoint)
		}
		w.functions = make([]bool, len(w.module.Functions))
		for i := range w.functions {
			w.functions[i] = true
		}
		w.globals = ir.UsedGlobals(w.module, w.functions)
		for i := range w.globals {
			w.globals[i] = true
		}
		return nil
	}

	for i := range w.module.EntryPoints {
		ep := &w.module.EntryPoints[i]
		if w.options.EntryPoint == "" || ep.Name == w.options.EntryPoint {
			w.entry = ep
			break
		}
	}
	if w.entry == nil {
		return newError(ErrEntryPointNotFound, "entry point %q not found", w.options.EntryPoint)
	}
	if w.entry.Stage == ir.StageCompute && !w.options.LangVersion.Supports(FeatureCompute) {
		return newError(ErrUnsupportedFeature, "GLSL %s has no compute shaders", w.options.LangVersion)
	}
	w.functions = ir.Reachable(w.module, w.entry.Function)
	w.globals = ir.UsedGlobals(w.module, w.functions)
	w.entryPointNames[w.entry.Name] = "main"
	return nil
}

// registerNames assigns unique names to all IR entities, in handle order so
// the output does not depend on map iteration.
func (w *Writer) registerNames() {
	for handle, typ := range w.module.Types {
		st, ok := typ.Inner.(ir.StructType)
		if !ok {
			continue
		}
		base := typ.Name
		if base == "" {
			base = fmt.Sprintf("type_%d", handle)
		}
		w.names[nameKey{kind: nameKeyType, handle1: uint32(handle)}] = w.symbols.New(base) //nolint:gosec // G115: handle is valid slice index

		// Members live in their struct's scope.
		members := symbol.NewAllocator(symbol.WithEscape(escapeKeyword))
		for i, m := range st.Members {
			name := m.Name
			if name == "" {
				name = fmt.Sprintf("member_%d", i)
			}
			w.names[nameKey{kind: nameKeyStructMember, handle1: uint32(handle), handle2: uint32(i)}] = members.New(name) //nolint:gosec // G115: indices are valid
		}
	}

	for handle, g := range w.module.GlobalVariables {
		if !w.globals[handle] {
			continue
		}
		base := g.Name
		if base == "" {
			base = fmt.Sprintf("global_%d", handle)
		}
		w.names[nameKey{kind: nameKeyGlobalVariable, handle1: uint32(handle)}] = w.symbols.New(base) //nolint:gosec // G115: handle is valid slice index
	}

	for handle := range w.module.Functions {
		if !w.functions[handle] {
			continue
		}
		fn := &w.module.Functions[handle]
		if w.entry == nil || ir.FunctionHandle(handle) != w.entry.Function { //nolint:gosec // G115: handle is valid slice index
			base := fn.Name
			if base == "" {
				base = fmt.Sprintf("function_%d", handle)
			}
			w.names[nameKey{kind: nameKeyFunction, handle1: uint32(handle)}] = w.symbols.New(base) //nolint:gosec // G115: handle is valid slice index
		}
		for i, arg := range fn.Arguments {
			base := arg.Name
			if base == "" {
				base = fmt.Sprintf("arg_%d", i)
			}
			w.names[nameKey{kind: nameKeyFunctionArgument, handle1: uint32(handle), handle2: uint32(i)}] = w.symbols.New(base) //nolint:gosec // G115: indices are valid
		}
		for i, local := range fn.Locals {
			base := local.Name
			if base == "" {
				base = fmt.Sprintf("local_%d", i)
			}
			w.names[nameKey{kind: nameKeyLocal, handle1: uint32(handle), handle2: uint32(i)}] = w.symbols.New(base) //nolint:gosec // G115: indices are valid
		}
	}
}

// collectSamplerPairs finds every texture-sampler combination used by the
// reachable functions and names its combined sampler uniform.
func (w *Writer) collectSamplerPairs() error {
	for handle := range w.module.Functions {
		if !w.functions[handle] {
			continue
		}
		fn := &w.module.Functions[handle]
		for _, e := range fn.Expressions {
			tex, ok := e.Kind.(ir.ExprTexture)
			if !ok {
				continue
			}
			image, ok := fn.Expressions[tex.Image].Kind.(ir.ExprGlobalVariable)
			if !ok {
				return newError(ErrUnsupportedFeature, "in function %q: textures must be module-scope globals", fn.Name)
			}
			if img, ok := w.module.TypeInner(w.module.GlobalVariables[image.Variable].Type).(ir.ImageType); ok && img.Class == ir.ImageClassStorage {
				continue
			}

			pair := samplerPair{image: image.Variable, alone: true}
			if tex.Sampler != nil {
				sampler, ok := fn.Expressions[*tex.Sampler].Kind.(ir.ExprGlobalVariable)
				if !ok {
					return newError(ErrUnsupportedFeature, "in function %q: samplers must be module-scope globals", fn.Name)
				}
				pair = samplerPair{image: image.Variable, sampler: sampler.Variable}
			}
			if _, seen := w.pairName[pair]; seen {
				continue
			}

			imageName := w.globalName(pair.image)
			if pair.alone {
				w.pairName[pair] = imageName
			} else {
				w.pairName[pair] = w.symbols.New(imageName + "_" + w.globalName(pair.sampler))
			}
			w.pairs = append(w.pairs, pair)
		}
	}
	return nil
}

// pairNames lists the combined sampler uniforms in declaration order.
func (w *Writer) pairNames() []string {
	names := make([]string, 0, len(w.pairs))
	for _, p := range w.pairs {
		names = append(names, w.pairName[p])
	}
	return names
}

// writeModule generates GLSL code for the entire module.
func (w *Writer) writeModule() error {
	if err := w.checkF16(); err != nil {
		return err
	}

	// Functions are written first so helpers they need are known when the
	// header is assembled.
	if err := w.writeFunctions(); err != nil {
		return err
	}
	functions := w.out.String()
	w.out.Reset()

	w.writeVersionDirective()
	w.writePrecisionQualifiers()
	if w.entry != nil && w.entry.Stage == ir.StageCompute {
		size := w.entry.Workgroup
		w.writeLine("layout(local_size_x = %d, local_size_y = %d, local_size_z = %d) in;", size[0], size[1], size[2])
		w.writeLine("")
	}

	if err := w.writeTypes(); err != nil {
		return err
	}
	if err := w.writeGlobalVariables(); err != nil {
		return err
	}
	w.writeHelperFunctions()
	w.out.WriteString(functions)

	if w.entry != nil {
		klog.V(2).Infof("glsl: wrote entry point %q (%s)", w.entry.Name, w.entry.Stage)
	}
	return nil
}

// writeVersionDirective writes the #version directive and extensions.
func (w *Writer) writeVersionDirective() {
	w.writeLine("#version %s", w.options.LangVersion.String())
	for _, ext := range w.extensions {
		w.writeLine("#extension %s : require", ext)
	}
	w.writeLine("")
}

// writePrecisionQualifiers writes precision qualifiers for ES.
func (w *Writer) writePrecisionQualifiers() {
	if !w.options.LangVersion.ES {
		return
	}

	precision := "mediump"
	if w.options.ForceHighPrecision {
		precision = "highp"
	}
	w.writeLine("precision %s float;", precision)
	w.writeLine("precision %s int;", precision)
	w.writeLine("")
}

// checkF16 enables the explicit arithmetic types extension when the module
// uses f16, or rejects the module if f16 is not enabled.
func (w *Writer) checkF16() error {
	uses := false
	for _, t := range w.module.Types {
		uses = uses || isF16(t.Inner)
	}
	if !uses {
		return nil
	}
	if !w.options.EnableF16 {
		return newError(ErrUnsupportedFeature, "f16 requires Options.EnableF16")
	}
	w.extensions = append(w.extensions, "GL_EXT_shader_explicit_arithmetic_types_float16")
	return nil
}

func isF16(inner ir.TypeInner) bool {
	switch t := inner.(type) {
	case ir.ScalarType:
		return t == ir.F16
	case ir.VectorType:
		return t.Scalar == ir.F16
	case ir.MatrixType:
		return t.Scalar == ir.F16
	}
	return false
}

// writeHelperFunctions writes the helpers requested while writing functions.
func (w *Writer) writeHelperFunctions() {
	for _, source := range w.helperSource {
		w.out.WriteString(source)
		w.out.WriteString("\n\n")
	}
}

// helper returns the allocated name of a helper, registering its source on
// first use. source holds {name} where the helper's name goes.
func (w *Writer) helper(base, source string) string {
	if name, ok := w.helperNames[source]; ok {
		return name
	}
	name := w.symbols.New(base)
	w.helperNames[source] = name
	w.helperSource = append(w.helperSource, strings.ReplaceAll(source, "{name}", name))
	return name
}

//nolint:goprintffuncname
func (w *Writer) write(format string, args ...any) {
	if len(args) == 0 {
		w.out.WriteString(format)
		return
	}
	fmt.Fprintf(&w.out, format, args...)
}

//nolint:goprintffuncname
func (w *Writer) writeLine(format string, args ...any) {
	if format != "" {
		w.writeIndent()
	}
	w.write(format, args...)
	w.out.WriteByte('\n')
}

func (w *Writer) writeIndent() {
	for i := 0; i < w.indent; i++ {
		w.out.WriteString("    ")
	}
}

func (w *Writer) pushIndent() { w.indent++ }

func (w *Writer) popIndent() { w.indent-- }

func (w *Writer) globalName(h ir.GlobalVariableHandle) string {
	return w.names[nameKey{kind: nameKeyGlobalVariable, handle1: uint32(h)}]
}

func (w *Writer) typeNameOf(h ir.TypeHandle) string {
	return w.names[nameKey{kind: nameKeyType, handle1: uint32(h)}]
}

func (w *Writer) memberName(ty ir.TypeHandle, index uint32) string {
	return w.names[nameKey{kind: nameKeyStructMember, handle1: uint32(ty), handle2: index}]
}
