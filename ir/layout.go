package ir

// AlignmentAndSize returns the WGSL host-shareable alignment and size of a type.
func (m *Module) AlignmentAndSize(handle TypeHandle) (align, size uint32) {
	switch t := m.TypeInner(handle).(type) {
	case ScalarType:
		w := uint32(t.Width)
		if t.Kind == ScalarBool {
			w = 4
		}
		return w, w

	case VectorType:
		return vectorAlignmentAndSize(t.Size, t.Scalar)

	case MatrixType:
		// Column-major: each column is a vector with its own alignment.
		colAlign, colSize := vectorAlignmentAndSize(t.Rows, t.Scalar)
		stride := roundUp(colAlign, colSize)
		return colAlign, stride * uint32(t.Columns)

	case ArrayType:
		elemAlign, _ := m.AlignmentAndSize(t.Base)
		if t.Size.Constant != nil {
			return elemAlign, t.Stride * *t.Size.Constant
		}
		// Runtime-sized arrays occupy one element for layout purposes.
		return elemAlign, t.Stride

	case StructType:
		var maxAlign uint32 = 1
		for _, member := range t.Members {
			a, _ := m.AlignmentAndSize(member.Type)
			if a > maxAlign {
				maxAlign = a
			}
		}
		return maxAlign, t.Span
	}

	return 4, 4
}

func vectorAlignmentAndSize(n VectorSize, scalar ScalarType) (align, size uint32) {
	w := uint32(scalar.Width)
	if scalar.Kind == ScalarBool {
		w = 4
	}
	switch n {
	case Vec2:
		return 2 * w, 2 * w
	case Vec3:
		return 4 * w, 3 * w
	default:
		return 4 * w, 4 * w
	}
}

func roundUp(align, n uint32) uint32 {
	return (n + align - 1) &^ (align - 1)
}

// ArrayOf returns the handle of an array of base with the natural stride.
// A nil count makes a runtime-sized array.
func (m *Module) ArrayOf(base TypeHandle, count *uint32) TypeHandle {
	align, size := m.AlignmentAndSize(base)
	return m.EnsureType(ArrayType{Base: base, Size: ArraySize{Constant: count}, Stride: roundUp(align, size)})
}

// StructOf lays out members in order, assigning offsets, and returns the
// handle of the named struct.
func (m *Module) StructOf(name string, members ...StructMember) TypeHandle {
	laid := make([]StructMember, len(members))
	var offset uint32
	var maxAlign uint32 = 1
	for i, member := range members {
		align, size := m.AlignmentAndSize(member.Type)
		if align > maxAlign {
			maxAlign = align
		}
		offset = roundUp(align, offset)
		member.Offset = offset
		laid[i] = member
		offset += size
	}
	return m.EnsureNamedType(name, StructType{Members: laid, Span: roundUp(maxAlign, offset)})
}
