// Copyright 2025 The GoGPU Authors
// SPDX-License-Identifier: MIT

package hlsl

import (
	"fmt"
	"strings"

	"github.com/gogpu/crossgpu/ir"
)

// storageRef is a location inside a storage buffer. Storage buffers are
// (RW)ByteAddressBuffers, so a reference is the buffer plus a byte offset
// made of a constant and dynamic index terms.
type storageRef struct {
	global   ir.GlobalVariableHandle
	constant uint32
	terms    []string
	inner    ir.TypeInner
}

func (r storageRef) offset() string {
	parts := r.terms
	if r.constant != 0 || len(parts) == 0 {
		parts = append(parts[:len(parts):len(parts)], fmt.Sprintf("%du", r.constant))
	}
	return strings.Join(parts, " + ")
}

func (r storageRef) advance(bytes uint32, inner ir.TypeInner) storageRef {
	r.constant += bytes
	r.inner = inner
	return r
}

// storageAccess resolves an access chain rooted at a storage buffer.
// The boolean is false for anything else.
func (w *Writer) storageAccess(h ir.ExpressionHandle) (storageRef, bool, error) {
	switch e := w.fn.Expressions[h].Kind.(type) {
	case ir.ExprGlobalVariable:
		g := &w.module.GlobalVariables[e.Variable]
		if g.Space != ir.SpaceStorage {
			return storageRef{}, false, nil
		}
		return storageRef{global: e.Variable, inner: w.module.TypeInner(g.Type)}, true, nil

	case ir.ExprDeref:
		if addr, ok := w.fn.Expressions[e.Pointer].Kind.(ir.ExprAddressOf); ok {
			return w.storageAccess(addr.Expr)
		}
		return storageRef{}, false, nil

	case ir.ExprAccessIndex:
		base, ok, err := w.storageAccess(e.Base)
		if !ok || err != nil {
			return storageRef{}, false, err
		}
		switch t := base.inner.(type) {
		case ir.StructType:
			if int(e.Index) >= len(t.Members) {
				return storageRef{}, false, newError(ErrInvalidModule, "struct member %d out of range", e.Index)
			}
			m := t.Members[e.Index]
			return base.advance(m.Offset, w.module.TypeInner(m.Type)), true, nil
		case ir.ArrayType:
			return base.advance(e.Index*t.Stride, w.module.TypeInner(t.Base)), true, nil
		case ir.VectorType:
			return base.advance(e.Index*scalarBytes(t.Scalar), t.Scalar), true, nil
		case ir.MatrixType:
			return base.advance(e.Index*columnStride(t), ir.VectorType{Size: t.Rows, Scalar: t.Scalar}), true, nil
		}
		return storageRef{}, false, newError(ErrInvalidModule, "cannot index storage type %T", base.inner)

	case ir.ExprAccess:
		base, ok, err := w.storageAccess(e.Base)
		if !ok || err != nil {
			return storageRef{}, false, err
		}
		index, err := w.expression(e.Index)
		if err != nil {
			return storageRef{}, false, err
		}
		var stride uint32
		var inner ir.TypeInner
		switch t := base.inner.(type) {
		case ir.ArrayType:
			stride, inner = t.Stride, w.module.TypeInner(t.Base)
		case ir.VectorType:
			stride, inner = scalarBytes(t.Scalar), t.Scalar
		case ir.MatrixType:
			stride, inner = columnStride(t), ir.VectorType{Size: t.Rows, Scalar: t.Scalar}
		default:
			return storageRef{}, false, newError(ErrInvalidModule, "cannot index storage type %T", base.inner)
		}
		base.terms = append(base.terms[:len(base.terms):len(base.terms)], fmt.Sprintf("%s * %du", index, stride))
		base.inner = inner
		return base, true, nil
	}
	return storageRef{}, false, nil
}

func scalarBytes(s ir.ScalarType) uint32 {
	if s.Kind == ir.ScalarBool {
		return 4
	}
	return uint32(s.Width)
}

// columnStride is the byte distance between matrix columns: two-component
// columns are packed, wider ones are aligned to four components.
func columnStride(m ir.MatrixType) uint32 {
	if m.Rows == ir.Vec2 {
		return 2 * scalarBytes(m.Scalar)
	}
	return 4 * scalarBytes(m.Scalar)
}

// loadMethod names the ByteAddressBuffer method loading n 32-bit words.
func loadMethod(prefix string, n ir.VectorSize) string {
	if n <= 1 {
		return prefix
	}
	return fmt.Sprintf("%s%d", prefix, n)
}

// storageWords checks that a scalar or vector is made of 32-bit words and
// returns its scalar kind and component count.
func (w *Writer) storageWords(r storageRef) (ir.ScalarKind, ir.VectorSize, error) {
	name := w.module.GlobalVariables[r.global].Name
	var scalar ir.ScalarType
	var size ir.VectorSize = 1
	switch t := r.inner.(type) {
	case ir.ScalarType:
		scalar = t
	case ir.VectorType:
		scalar, size = t.Scalar, t.Size
	case ir.StructType, ir.ArrayType:
		return 0, 0, newError(ErrUnsupportedFeature,
			"whole-struct or whole-array access to byte-address storage buffer %q, access its members instead", name)
	default:
		return 0, 0, newError(ErrUnsupportedFeature, "type %T in storage buffer %q", t, name)
	}
	if scalar.Kind == ir.ScalarBool || scalar.Width != 4 {
		return 0, 0, newError(ErrUnsupportedFeature, "storage buffer %q holds %d-byte scalars, only 32-bit words are addressable", name, scalar.Width)
	}
	return scalar.Kind, size, nil
}

// storageLoad reads a scalar, vector or matrix from a storage buffer.
func (w *Writer) storageLoad(r storageRef) (string, error) {
	if m, ok := r.inner.(ir.MatrixType); ok {
		column := ir.VectorType{Size: m.Rows, Scalar: m.Scalar}
		columns := make([]string, m.Columns)
		for i := range columns {
			s, err := w.storageLoad(r.advance(uint32(i)*columnStride(m), column)) //nolint:gosec // G115: column index is small
			if err != nil {
				return "", err
			}
			columns[i] = s
		}
		return MatrixToHLSL(m) + "(" + strings.Join(columns, ", ") + ")", nil
	}

	kind, size, err := w.storageWords(r)
	if err != nil {
		return "", err
	}
	load := fmt.Sprintf("%s.%s(%s)", w.globalName(r.global), loadMethod("Load", size), r.offset())
	if kind == ir.ScalarUint {
		return load, nil
	}
	return ScalarCast(kind) + "(" + load + ")", nil
}

// writeStorageStore writes value to a storage buffer location.
func (w *Writer) writeStorageStore(r storageRef, value string) error {
	g := &w.module.GlobalVariables[r.global]
	if g.Access&ir.AccessWrite == 0 {
		return newError(ErrInvalidModule, "storage buffer %q is read-only", g.Name)
	}

	if m, ok := r.inner.(ir.MatrixType); ok {
		tmp := w.symbols.New("_tmp_store")
		w.writeLine("{")
		w.pushIndent()
		w.writeLine("%s %s = %s;", MatrixToHLSL(m), tmp, value)
		column := ir.VectorType{Size: m.Rows, Scalar: m.Scalar}
		for i := uint32(0); i < uint32(m.Columns); i++ {
			if err := w.writeStorageStore(r.advance(i*columnStride(m), column), fmt.Sprintf("%s[%d]", tmp, i)); err != nil {
				return err
			}
		}
		w.popIndent()
		w.writeLine("}")
		return nil
	}

	kind, size, err := w.storageWords(r)
	if err != nil {
		return err
	}
	if kind != ir.ScalarUint {
		value = "asuint(" + value + ")"
	}
	w.writeLine("%s.%s(%s, %s);", w.globalName(r.global), loadMethod("Store", size), r.offset(), value)
	return nil
}

// bufferSize queries the byte size of a storage buffer through a helper,
// since GetDimensions only returns through an out parameter.
func (w *Writer) bufferSize(h ir.GlobalVariableHandle) (string, error) {
	g := &w.module.GlobalVariables[h]
	if g.Space != ir.SpaceStorage {
		return "", newError(ErrInvalidModule, "buffer size of %q, which is not a storage buffer", g.Name)
	}
	buffer := "ByteAddressBuffer"
	if g.Access&ir.AccessWrite != 0 {
		buffer = "RWByteAddressBuffer"
	}
	name := w.helper("buffer_size", fmt.Sprintf(
		"uint {name}(%s buffer) {\n    uint size;\n    buffer.GetDimensions(size);\n    return size;\n}", buffer))
	return name + "(" + w.globalName(h) + ")", nil
}
