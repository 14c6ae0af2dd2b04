// Copyright 2025 The GoGPU Authors
// SPDX-License-Identifier: MIT

package hlsl

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

// Writer generates HLSL source code from IR.
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
	entry     *ir.EntryPoint
	entryName string

	// functions and globals mark what the entry point reaches.
	functions []bool
	globals   []bool

	// Helper functions keyed by source template, in first-use order.
	helperNames  map[string]string
	helperSource []string
	helperOrder  []string
	constructors map[ir.TypeHandle]string

	// Function context (set during function writing)
	fn       *ir.Function
	fnHandle ir.FunctionHandle

	// Output tracking
	entryPointNames  map[string]string
	registerBindings map[string]string
	usedFeatures     FeatureFlags
}

func newAllocator() *symbol.Allocator {
	return symbol.NewAllocator(symbol.WithCaseInsensitive(), symbol.WithEscape(Escape))
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
		module:           module,
		options:          options,
		names:            make(map[nameKey]string),
		symbols:          newAllocator(),
		mapper:           builtin.NewMapper(builtin.TargetHLSL),
		helperNames:      make(map[string]string),
		constructors:     make(map[ir.TypeHandle]string),
		entryPointNames:  make(map[string]string),
		registerBindings: make(map[string]string),
	}

	if err := w.selectEntryPoint(); err != nil {
		return nil, err
	}
	w.registerNames()
	return w, nil
}

// String returns the generated HLSL source code.
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
		w.globals = make([]bool, len(w.module.GlobalVariables))
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
	w.functions = ir.Reachable(w.module, w.entry.Function)
	w.globals = ir.UsedGlobals(w.module, w.functions)
	return nil
}

// registerNames assigns unique names to all IR entities, in handle order so
// the output does not depend on map iteration. The entry point is named
// first so it keeps the name the host pipeline asks for.
func (w *Writer) registerNames() {
	if w.entry != nil {
		w.entryName = w.symbols.New(w.entry.Name)
		w.entryPointNames[w.entry.Name] = w.entryName
	}

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
		members := newAllocator()
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
		base := fn.Name
		if base == "" {
			base = fmt.Sprintf("function_%d", handle)
		}
		w.names[nameKey{kind: nameKeyFunction, handle1: uint32(handle)}] = w.symbols.New(base) //nolint:gosec // G115: handle is valid slice index
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

// writeModule generates HLSL code for the entire module.
func (w *Writer) writeModule() error {
	if err := w.checkF16(); err != nil {
		return err
	}

	// Functions are written first so helpers they need are known when the
	// declarations are assembled.
	if err := w.writeFunctions(); err != nil {
		return err
	}
	functions := w.out.String()
	w.out.Reset()

	if err := w.writeTypes(); err != nil {
		return err
	}
	if err := w.writeGlobalVariables(); err != nil {
		return err
	}
	w.writeHelperFunctions()
	w.out.WriteString(functions)

	if w.entry != nil {
		klog.V(2).Infof("hlsl: wrote entry point %q as %s (%s)", w.entry.Name, w.entryName,
			ShaderProfile(w.entry.Stage, w.options.ShaderModel))
	}
	return nil
}

// checkF16 requires a shader model with native half support when the
// module uses f16.
func (w *Writer) checkF16() error {
	uses := false
	for _, t := range w.module.Types {
		uses = uses || isF16(t.Inner)
	}
	if !uses {
		return nil
	}
	if !w.options.ShaderModel.Supports(FeatureFloat16) {
		return newError(ErrUnsupportedFeature, "f16 requires %s, have %s", MinimumShaderModel(FeatureFloat16), w.options.ShaderModel)
	}
	w.usedFeatures |= FeatureFloat16
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
	w.helperOrder = append(w.helperOrder, name)
	return name
}

func (w *Writer) helperFunctionNames() []string {
	return w.helperOrder
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

func (w *Writer) localName(h ir.LocalHandle) string {
	return w.names[nameKey{kind: nameKeyLocal, handle1: uint32(w.fnHandle), handle2: uint32(h)}]
}

func (w *Writer) argumentName(fn ir.FunctionHandle, index int) string {
	return w.names[nameKey{kind: nameKeyFunctionArgument, handle1: uint32(fn), handle2: uint32(index)}] //nolint:gosec // G115: index is small
}
