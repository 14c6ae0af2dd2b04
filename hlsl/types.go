// Copyright 2025 The GoGPU Authors
// SPDX-License-Identifier: MIT

package hlsl

import (
	"fmt"
	"strings"

	"github.com/gogpu/crossgpu/ir"
)

// typeName returns the HLSL spelling of a value type. Arrays have no
// spelling outside a declaration.
func (w *Writer) typeName(h ir.TypeHandle) (string, error) {
	return w.typeInnerName(h, w.module.TypeInner(h))
}

func (w *Writer) typeInnerName(h ir.TypeHandle, inner ir.TypeInner) (string, error) {
	switch t := inner.(type) {
	case ir.ScalarType:
		return ScalarToHLSL(t), nil
	case ir.VectorType:
		return VectorToHLSL(t), nil
	case ir.MatrixType:
		return MatrixToHLSL(t), nil
	case ir.StructType:
		return w.typeNameOf(h), nil
	case ir.PointerType:
		return w.typeName(t.Base)
	case ir.ImageType:
		return ImageToHLSL(t), nil
	case ir.SamplerType:
		return SamplerToHLSL(t.Comparison), nil
	case ir.ArrayType:
		return "", newError(ErrUnsupportedFeature, "array types can only be declared, not named")
	default:
		return "", newError(ErrUnsupportedFeature, "type %T has no HLSL spelling", inner)
	}
}

// resolvedTypeName names the resolved type of an expression, which may be
// an inline type with no handle.
func (w *Writer) resolvedTypeName(h ir.ExpressionHandle) (string, error) {
	res := w.fn.ExpressionTypes[h]
	if res.Handle != nil {
		return w.typeName(*res.Handle)
	}
	return w.typeInnerName(0, res.Value)
}

// declaration writes "T name[2][3]" for a variable of type h.
func (w *Writer) declaration(h ir.TypeHandle, name string) (string, error) {
	return w.declare(h, name, false)
}

// memberDeclaration is declaration for struct and cbuffer members, whose
// matrices must be packed row major so each WGSL column is contiguous.
func (w *Writer) memberDeclaration(h ir.TypeHandle, name string) (string, error) {
	return w.declare(h, name, true)
}

func (w *Writer) declare(h ir.TypeHandle, name string, packed bool) (string, error) {
	var dims strings.Builder
	for {
		arr, ok := w.module.TypeInner(h).(ir.ArrayType)
		if !ok {
			break
		}
		if arr.Size.IsRuntime() {
			return "", newError(ErrUnsupportedFeature, "runtime-sized arrays are only allowed in storage buffers")
		}
		fmt.Fprintf(&dims, "[%d]", *arr.Size.Constant)
		h = arr.Base
	}
	base, err := w.typeName(h)
	if err != nil {
		return "", err
	}
	if _, ok := w.module.TypeInner(h).(ir.MatrixType); ok && packed {
		base = "row_major " + base
	}
	return base + " " + name + dims.String(), nil
}

// hasRuntimeArray reports whether a struct ends in a runtime-sized array.
func (w *Writer) hasRuntimeArray(h ir.TypeHandle) bool {
	st, ok := w.module.TypeInner(h).(ir.StructType)
	if !ok || len(st.Members) == 0 {
		return false
	}
	arr, ok := w.module.TypeInner(st.Members[len(st.Members)-1].Type).(ir.ArrayType)
	return ok && arr.Size.IsRuntime()
}

// writeTypes writes struct declarations, members before the structs that
// contain them. Storage buffer layouts are addressed by byte offset and
// need no declaration.
func (w *Writer) writeTypes() error {
	written := make([]bool, len(w.module.Types))
	var visit func(h ir.TypeHandle) error
	visit = func(h ir.TypeHandle) error {
		if written[h] {
			return nil
		}
		written[h] = true
		switch t := w.module.TypeInner(h).(type) {
		case ir.ArrayType:
			return visit(t.Base)
		case ir.StructType:
			for _, m := range t.Members {
				if err := visit(m.Type); err != nil {
					return err
				}
			}
			if w.hasRuntimeArray(h) {
				return nil
			}
			return w.writeStruct(h, t)
		}
		return nil
	}

	for h := range w.module.Types {
		if err := visit(ir.TypeHandle(h)); err != nil { //nolint:gosec // G115: handle is valid slice index
			return err
		}
	}
	return nil
}

func (w *Writer) writeStruct(h ir.TypeHandle, st ir.StructType) error {
	w.writeLine("struct %s {", w.typeNameOf(h))
	w.pushIndent()
	for i, m := range st.Members {
		decl, err := w.memberDeclaration(m.Type, w.memberName(h, uint32(i))) //nolint:gosec // G115: member index is small
		if err != nil {
			return err
		}
		w.writeLine("%s;", decl)
	}
	w.popIndent()
	w.writeLine("};")
	w.writeLine("")
	return nil
}

// writeGlobalVariables declares the used globals with their registers.
func (w *Writer) writeGlobalVariables() error {
	wrote := false
	for handle := range w.module.GlobalVariables {
		if !w.globals[handle] {
			continue
		}
		if err := w.writeGlobal(ir.GlobalVariableHandle(handle)); err != nil { //nolint:gosec // G115: handle is valid slice index
			return err
		}
		wrote = true
	}
	if wrote {
		w.writeLine("")
	}
	return nil
}

func (w *Writer) writeGlobal(handle ir.GlobalVariableHandle) error {
	g := &w.module.GlobalVariables[handle]
	name := w.globalName(handle)

	switch g.Space {
	case ir.SpacePrivate:
		decl, err := w.declaration(g.Type, name)
		if err != nil {
			return err
		}
		zero, err := w.zeroValue(g.Type)
		if err != nil {
			return err
		}
		w.writeLine("static %s = %s;", decl, zero)
		return nil

	case ir.SpaceWorkGroup:
		decl, err := w.declaration(g.Type, name)
		if err != nil {
			return err
		}
		w.writeLine("groupshared %s;", decl)
		return nil
	}

	if g.Binding == nil {
		return newError(ErrMissingBinding, "resource %q has no binding", g.Name)
	}
	target, err := w.options.bindTarget(*g.Binding)
	if err != nil {
		return err
	}
	register := target.annotation(registerTypeOf(w.module, g))
	w.registerBindings[name] = register

	switch g.Space {
	case ir.SpaceUniform:
		if w.hasTwoRowMatrix(g.Type) {
			return newError(ErrUnsupportedFeature, "uniform %q holds a matCx2, which cbuffer packing pads differently", g.Name)
		}
		decl, err := w.memberDeclaration(g.Type, name)
		if err != nil {
			return err
		}
		w.writeLine("cbuffer %s : %s {", w.symbols.New(name+"_block"), register)
		w.pushIndent()
		w.writeLine("%s;", decl)
		w.popIndent()
		w.writeLine("}")

	case ir.SpaceStorage:
		buffer := "ByteAddressBuffer"
		if g.Access&ir.AccessWrite != 0 {
			buffer = "RWByteAddressBuffer"
		}
		w.writeLine("%s %s : %s;", buffer, name, register)

	case ir.SpaceHandle:
		switch t := w.module.TypeInner(g.Type).(type) {
		case ir.SamplerType:
			w.writeLine("%s %s : %s;", SamplerToHLSL(t.Comparison), name, register)
		case ir.ImageType:
			if t.Class == ir.ImageClassStorage {
				if t.Multisampled {
					return newError(ErrUnsupportedFeature, "storage texture %q cannot be multisampled", g.Name)
				}
				if t.StorageAccess&ir.AccessRead != 0 {
					w.usedFeatures |= FeatureTypedUAVLoad
				}
			}
			w.writeLine("%s %s : %s;", ImageToHLSL(t), name, register)
		default:
			return newError(ErrInvalidModule, "handle global %q is not a texture or sampler", g.Name)
		}

	default:
		return newError(ErrInvalidModule, "global %q has unknown address space %d", g.Name, g.Space)
	}
	return nil
}

// hasTwoRowMatrix reports whether a type contains a matrix with two-component
// columns, which WGSL packs at an 8-byte stride and cbuffers at 16.
func (w *Writer) hasTwoRowMatrix(h ir.TypeHandle) bool {
	switch t := w.module.TypeInner(h).(type) {
	case ir.MatrixType:
		return t.Rows == ir.Vec2
	case ir.ArrayType:
		return w.hasTwoRowMatrix(t.Base)
	case ir.StructType:
		for _, m := range t.Members {
			if w.hasTwoRowMatrix(m.Type) {
				return true
			}
		}
	}
	return false
}
