package msl

import (
	"fmt"
	"strings"

	"k8s.io/klog/v2"

	"github.com/gogpu/crossgpu/builtin"
	"github.com/gogpu/crossgpu/ir"
	"github.com/gogpu/crossgpu/symbol"
)

// Namespace is the MSL standard library namespace prefix.
const Namespace = "metal::"

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

// Writer generates MSL source code from IR.
type Writer struct {
	module  *ir.Module
	options *Options

	out    strings.Builder
	indent int

	names   map[nameKey]string
	symbols *symbol.Allocator
	mapper  *builtin.Mapper

	// layouts holds the padding and packing of every struct.
	layouts map[ir.TypeHandle]*structLayout

	// entry is the compiled entry point, nil when writing a library.
	entry     *ir.EntryPoint
	entryName string

	// functions and globals mark what the entry point reaches.
	functions []bool
	globals   []bool

	// fnGlobals lists, per function, the globals it reaches. Metal has no
	// module-scope resources, so they are passed as trailing parameters.
	fnGlobals map[ir.FunctionHandle][]ir.GlobalVariableHandle

	// Helper functions keyed by source template, in first-use order.
	helperNames  map[string]string
	helperSource []string
	helperOrder  []string

	fn       *ir.Function
	fnHandle ir.FunctionHandle

	entryPointNames map[string]string
	resourceSlots   map[string]string
}

func newAllocator() *symbol.Allocator {
	return symbol.NewAllocator(symbol.WithEscape(Escape))
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
		symbols:         newAllocator(),
		mapper:          builtin.NewMapper(builtin.TargetMSL),
		layouts:         make(map[ir.TypeHandle]*structLayout),
		fnGlobals:       make(map[ir.FunctionHandle][]ir.GlobalVariableHandle),
		helperNames:     make(map[string]string),
		entryPointNames: make(map[string]string),
		resourceSlots:   make(map[string]string),
	}

	if err := w.selectEntryPoint(); err != nil {
		return nil, err
	}
	if err := w.registerNames(); err != nil {
		return nil, err
	}
	return w, nil
}

// String returns the generated MSL source code.
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
	} else {
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
	}

	for h, live := range w.functions {
		if !live {
			continue
		}
		fn := ir.FunctionHandle(h) //nolint:gosec // G115: handle is valid slice index
		used := ir.UsedGlobals(w.module, ir.Reachable(w.module, fn))
		for g, u := range used {
			if u {
				w.fnGlobals[fn] = append(w.fnGlobals[fn], ir.GlobalVariableHandle(g)) //nolint:gosec // G115: handle is valid slice index
			}
		}
	}
	return nil
}

// registerNames assigns unique names to all IR entities, in handle order so
// the output does not depend on map iteration. The entry point is named
// first so it keeps the name the host pipeline asks for.
func (w *Writer) registerNames() error {
	if w.entry != nil {
		w.entryName = w.symbols.New(w.entry.Name)
		w.entryPointNames[w.entry.Name] = w.entryName
	}

	for handle, typ := range w.module.Types {
		h := ir.TypeHandle(handle) //nolint:gosec // G115: handle is valid slice index
		switch t := typ.Inner.(type) {
		case ir.ArrayType:
			if t.Size.IsRuntime() {
				continue
			}
			w.names[nameKey{kind: nameKeyType, handle1: uint32(h)}] = w.symbols.New(fmt.Sprintf("type_%d", handle))

		case ir.StructType:
			base := typ.Name
			if base == "" {
				base = fmt.Sprintf("type_%d", handle)
			}
			w.names[nameKey{kind: nameKeyType, handle1: uint32(h)}] = w.symbols.New(base)

			// Members and padding live in their struct's scope.
			members := newAllocator()
			for i, m := range t.Members {
				name := m.Name
				if name == "" {
					name = fmt.Sprintf("member_%d", i)
				}
				w.names[nameKey{kind: nameKeyStructMember, handle1: uint32(h), handle2: uint32(i)}] = members.New(name) //nolint:gosec // G115: index is small
			}
			layout, err := w.layoutStruct(h, t, members)
			if err != nil {
				return err
			}
			w.layouts[h] = layout
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
	return nil
}

// writeModule generates MSL code for the entire module.
func (w *Writer) writeModule() error {
	// Functions are written first so helpers they need are known when the
	// declarations are assembled.
	if err := w.writeFunctions(); err != nil {
		return err
	}
	functions := w.out.String()
	w.out.Reset()

	w.writeLine("// language: metal%s", w.options.LangVersion)
	w.writeLine("#include <metal_stdlib>")
	w.writeLine("#include <simd/simd.h>")
	w.writeLine("")
	w.writeLine("using metal::uint;")
	w.writeLine("")

	if err := w.writeTypes(); err != nil {
		return err
	}
	for _, source := range w.helperSource {
		w.out.WriteString(source)
		w.out.WriteString("\n\n")
	}
	w.out.WriteString(functions)

	if w.entry != nil {
		klog.V(2).Infof("msl: wrote %s entry point %q as %s", w.entry.Stage, w.entry.Name, w.entryName)
	}
	return nil
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

func (w *Writer) functionName(h ir.FunctionHandle) string {
	return w.names[nameKey{kind: nameKeyFunction, handle1: uint32(h)}]
}

func (w *Writer) localName(h ir.LocalHandle) string {
	return w.names[nameKey{kind: nameKeyLocal, handle1: uint32(w.fnHandle), handle2: uint32(h)}]
}

func (w *Writer) argumentName(fn ir.FunctionHandle, index int) string {
	return w.names[nameKey{kind: nameKeyFunctionArgument, handle1: uint32(fn), handle2: uint32(index)}] //nolint:gosec // G115: index is small
}
