package msl

import (
	"fmt"
	"strings"

	"github.com/gogpu/crossgpu/builtin"
	"github.com/gogpu/crossgpu/ir"
	"github.com/gogpu/crossgpu/symbol"
)

// structLayout records how a struct is declared so Metal's natural layout
// reproduces the IR member offsets.
type structLayout struct {
	// packed marks vec3 members declared packed_T3, which drops their
	// alignment and size from 16 to 12 bytes.
	packed []bool

	// pads holds the padding declared before each member, empty for none.
	pads []string

	// trailing pads the struct to its IR span.
	trailing string
}

// scalarName returns the MSL spelling of a scalar type.
func scalarName(s ir.ScalarType) string {
	return builtin.TypeName(builtin.TargetMSL, builtin.ClassOf(s), 0)
}

// typeName returns the MSL spelling of a value type. Fixed-size arrays are
// wrapped in a struct so they can be copied and returned.
func (w *Writer) typeName(h ir.TypeHandle) (string, error) {
	return w.typeInnerName(h, w.module.TypeInner(h))
}

func (w *Writer) typeInnerName(h ir.TypeHandle, inner ir.TypeInner) (string, error) {
	switch t := inner.(type) {
	case ir.ScalarType:
		return scalarName(t), nil
	case ir.VectorType:
		return builtin.TypeName(builtin.TargetMSL, builtin.ClassOf(t.Scalar), t.Size), nil
	case ir.MatrixType:
		return fmt.Sprintf("%s%dx%d", scalarName(t.Scalar), t.Columns, t.Rows), nil
	case ir.StructType:
		return w.typeNameOf(h), nil
	case ir.ArrayType:
		if t.Size.IsRuntime() {
			return "", newError(ErrUnsupportedFeature, "runtime-sized arrays are only allowed in storage buffers")
		}
		return w.typeNameOf(h), nil
	case ir.PointerType:
		return w.typeName(t.Base)
	case ir.ImageType:
		return w.imageTypeName(t)
	case ir.SamplerType:
		return Namespace + "sampler", nil
	default:
		return "", newError(ErrUnsupportedFeature, "type %T has no MSL spelling", inner)
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

// imageTypeName returns the MSL texture type name.
//
//nolint:cyclop // one name per dimension and class
func (w *Writer) imageTypeName(img ir.ImageType) (string, error) {
	var b strings.Builder
	b.WriteString(Namespace)
	if img.Class == ir.ImageClassDepth {
		b.WriteString("depth")
	} else {
		b.WriteString("texture")
	}
	switch img.Dim {
	case ir.Dim1D:
		b.WriteString("1d")
	case ir.Dim2D:
		b.WriteString("2d")
	case ir.Dim3D:
		b.WriteString("3d")
	case ir.DimCube:
		b.WriteString("cube")
	}
	if img.Multisampled {
		b.WriteString("_ms")
	}
	if img.Arrayed {
		b.WriteString("_array")
	}

	access := "sample"
	switch {
	case img.Class == ir.ImageClassStorage:
		switch img.StorageAccess {
		case ir.AccessRead:
			access = "read"
		case ir.AccessWrite:
			access = "write"
		default:
			if !w.options.LangVersion.AtLeast(Version1_2) {
				return "", newError(ErrUnsupportedFeature, "read_write textures require MSL 1.2, have %s", w.options.LangVersion)
			}
			access = "read_write"
		}
	case img.Multisampled:
		access = "read"
	}
	fmt.Fprintf(&b, "<%s, %saccess::%s>", scalarName(ir.TexelScalar(img)), Namespace, access)
	return b.String(), nil
}

// declaration writes "T name" for a variable of type h. Runtime-sized
// arrays only appear as the last member of a storage struct, where they are
// declared with one element and indexed past it.
func (w *Writer) declaration(h ir.TypeHandle, name string) (string, error) {
	if arr, ok := w.module.TypeInner(h).(ir.ArrayType); ok && arr.Size.IsRuntime() {
		base, err := w.typeName(arr.Base)
		if err != nil {
			return "", err
		}
		return base + " " + name + "[1]", nil
	}
	ty, err := w.typeName(h)
	if err != nil {
		return "", err
	}
	return ty + " " + name, nil
}

// metalLayout returns the alignment and size Metal gives a type.
func (w *Writer) metalLayout(h ir.TypeHandle) (align, size uint32) {
	switch t := w.module.TypeInner(h).(type) {
	case ir.ScalarType:
		return uint32(t.Width), uint32(t.Width)
	case ir.VectorType:
		n := uint32(t.Size)
		if n == 3 {
			n = 4
		}
		return n * uint32(t.Scalar.Width), n * uint32(t.Scalar.Width)
	case ir.MatrixType:
		rows := uint32(t.Rows)
		if rows == 3 {
			rows = 4
		}
		column := rows * uint32(t.Scalar.Width)
		return column, column * uint32(t.Columns)
	case ir.ArrayType:
		align, size := w.metalLayout(t.Base)
		stride := roundUp(align, size)
		if t.Size.IsRuntime() {
			return align, stride
		}
		return align, stride * *t.Size.Constant
	case ir.StructType:
		var maxAlign uint32 = 1
		for i, m := range t.Members {
			a, _ := w.metalLayout(m.Type)
			if layout := w.layouts[h]; layout != nil && layout.packed[i] {
				a, _ = w.packedLayout(m.Type)
			}
			maxAlign = max(maxAlign, a)
		}
		return maxAlign, roundUp(maxAlign, t.Span)
	}
	return 4, 4
}

// packedLayout returns the alignment and size of a vec3 declared packed.
func (w *Writer) packedLayout(h ir.TypeHandle) (align, size uint32) {
	vec := w.module.TypeInner(h).(ir.VectorType)
	width := uint32(vec.Scalar.Width)
	return width, 3 * width
}

func roundUp(align, n uint32) uint32 {
	return (n + align - 1) / align * align
}

// layoutStruct decides padding and packing so each member lands at its IR
// offset. A vec3 followed by a member within its 16 bytes is packed, and
// gaps are filled with char arrays named from the struct's member scope.
func (w *Writer) layoutStruct(h ir.TypeHandle, st ir.StructType, members *symbol.Allocator) (*structLayout, error) {
	layout := &structLayout{
		packed: make([]bool, len(st.Members)),
		pads:   make([]string, len(st.Members)),
	}
	var offset uint32
	for i, m := range st.Members {
		if m.Offset > offset {
			layout.pads[i] = fmt.Sprintf("char %s[%d]", members.New("pad"), m.Offset-offset)
		}
		align, size := w.metalLayout(m.Type)
		if vec, ok := w.module.TypeInner(m.Type).(ir.VectorType); ok && vec.Size == ir.Vec3 {
			end := st.Span
			if i+1 < len(st.Members) {
				end = st.Members[i+1].Offset
			}
			if end < m.Offset+size || m.Offset%align != 0 {
				layout.packed[i] = true
				align, size = w.packedLayout(m.Type)
			}
		}
		if m.Offset < offset || m.Offset%align != 0 {
			return nil, newError(ErrUnsupportedFeature, "member %q of %q at offset %d cannot be placed in Metal's layout",
				m.Name, w.module.Types[h].Name, m.Offset)
		}
		offset = m.Offset + size
	}
	if st.Span > offset {
		layout.trailing = fmt.Sprintf("char %s[%d]", members.New("pad"), st.Span-offset)
	}
	return layout, nil
}

// isPacked reports whether member index of struct ty is declared packed.
func (w *Writer) isPacked(ty ir.TypeHandle, index uint32) bool {
	layout := w.layouts[ty]
	return layout != nil && int(index) < len(layout.packed) && layout.packed[index]
}

// writeTypes writes struct and array wrapper declarations, members before
// the types that contain them.
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
			if err := visit(t.Base); err != nil {
				return err
			}
			if t.Size.IsRuntime() {
				return nil
			}
			elem, err := w.typeName(t.Base)
			if err != nil {
				return err
			}
			w.writeLine("struct %s {", w.typeNameOf(h))
			w.writeLine("    %s inner[%d];", elem, *t.Size.Constant)
			w.writeLine("};")
			w.writeLine("")
		case ir.StructType:
			for _, m := range t.Members {
				if err := visit(m.Type); err != nil {
					return err
				}
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
	layout := w.layouts[h]
	w.writeLine("struct %s {", w.typeNameOf(h))
	w.pushIndent()
	for i, m := range st.Members {
		if layout.pads[i] != "" {
			w.writeLine("%s;", layout.pads[i])
		}
		name := w.memberName(h, uint32(i)) //nolint:gosec // G115: member index is small
		if layout.packed[i] {
			vec := w.module.TypeInner(m.Type).(ir.VectorType)
			w.writeLine("%spacked_%s3 %s;", Namespace, scalarName(vec.Scalar), name)
			continue
		}
		decl, err := w.declaration(m.Type, name)
		if err != nil {
			return err
		}
		w.writeLine("%s;", decl)
	}
	if layout.trailing != "" {
		w.writeLine("%s;", layout.trailing)
	}
	w.popIndent()
	w.writeLine("};")
	w.writeLine("")
	return nil
}

// addressSpace returns the MSL address space qualifier of a space.
func addressSpace(space ir.AddressSpace) string {
	switch space {
	case ir.SpaceUniform:
		return "constant"
	case ir.SpaceStorage:
		return "device"
	case ir.SpaceWorkGroup:
		return "threadgroup"
	default:
		return "thread"
	}
}

// globalParameter declares a global as a function parameter. Buffers and
// variables are passed by reference, textures and samplers by value.
func (w *Writer) globalParameter(h ir.GlobalVariableHandle) (string, error) {
	g := &w.module.GlobalVariables[h]
	name := w.globalName(h)
	if g.Space == ir.SpaceHandle {
		ty, err := w.typeName(g.Type)
		if err != nil {
			return "", err
		}
		return ty + " " + name, nil
	}

	space := addressSpace(g.Space)
	if g.Space == ir.SpaceStorage && g.Access&ir.AccessWrite == 0 {
		space = "const " + space
	}
	if arr, ok := w.module.TypeInner(g.Type).(ir.ArrayType); ok && arr.Size.IsRuntime() {
		elem, err := w.typeName(arr.Base)
		if err != nil {
			return "", err
		}
		return space + " " + elem + "* " + name, nil
	}
	ty, err := w.typeName(g.Type)
	if err != nil {
		return "", err
	}
	return space + " " + ty + "& " + name, nil
}
