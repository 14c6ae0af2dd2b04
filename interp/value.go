package interp

import (
	"math"

	"github.com/pkg/errors"
	"github.com/x448/float16"

	"github.com/gogpu/crossgpu/ir"
)

// Values are plain Go values: bool, int32, uint32, float32 and
// float16.Float16 for scalars, and []any for vectors, matrices (a slice of
// column vectors), arrays and structs. Pointers are Pointer.

// Pointer addresses a location: a variable's storage cell and the element
// path into it.
type Pointer struct {
	root *any
	path []int
}

func (p Pointer) index(i int) Pointer {
	path := make([]int, len(p.path), len(p.path)+1)
	copy(path, p.path)
	return Pointer{root: p.root, path: append(path, i)}
}

func (p Pointer) load() (any, error) {
	v := *p.root
	for _, i := range p.path {
		elems, ok := v.([]any)
		if !ok {
			return nil, errors.Errorf("cannot index into %T", v)
		}
		if i < 0 || i >= len(elems) {
			return nil, errors.Errorf("index %d out of bounds [0, %d)", i, len(elems))
		}
		v = elems[i]
	}
	return clone(v), nil
}

func (p Pointer) store(v any) error {
	if len(p.path) == 0 {
		*p.root = clone(v)
		return nil
	}
	parent := *p.root
	for n, i := range p.path {
		elems, ok := parent.([]any)
		if !ok {
			return errors.Errorf("cannot index into %T", parent)
		}
		if i < 0 || i >= len(elems) {
			return errors.Errorf("index %d out of bounds [0, %d)", i, len(elems))
		}
		if n == len(p.path)-1 {
			elems[i] = clone(v)
			return nil
		}
		parent = elems[i]
	}
	return nil
}

// clone deep-copies composite values so storage is never shared.
func clone(v any) any {
	elems, ok := v.([]any)
	if !ok {
		return v
	}
	out := make([]any, len(elems))
	for i, e := range elems {
		out[i] = clone(e)
	}
	return out
}

// decode reads a value of type ty at byte offset from little-endian words.
// Missing words read as zero, so decode(ty, nil, 0, size) is the zero value.
// size bounds the buffer and fixes the length of runtime-sized arrays.
func decode(module *ir.Module, ty ir.TypeHandle, words []uint32, offset, size uint32) (any, error) {
	switch t := module.TypeInner(ty).(type) {
	case ir.ScalarType:
		return decodeScalar(t, words, offset), nil
	case ir.VectorType:
		return decodeVector(t.Size, t.Scalar, words, offset), nil
	case ir.MatrixType:
		w := uint32(t.Scalar.Width)
		stride := 4 * w
		if t.Rows == ir.Vec2 {
			stride = 2 * w
		}
		cols := make([]any, t.Columns)
		for c := range cols {
			cols[c] = decodeVector(t.Rows, t.Scalar, words, offset+uint32(c)*stride)
		}
		return cols, nil
	case ir.ArrayType:
		var count uint32
		switch {
		case t.Size.Constant != nil:
			count = *t.Size.Constant
		case size > offset && t.Stride > 0:
			count = (size - offset) / t.Stride
		}
		elems := make([]any, count)
		for i := range elems {
			v, err := decode(module, t.Base, words, offset+uint32(i)*t.Stride, size)
			if err != nil {
				return nil, err
			}
			elems[i] = v
		}
		return elems, nil
	case ir.StructType:
		members := make([]any, len(t.Members))
		for i, m := range t.Members {
			v, err := decode(module, m.Type, words, offset+m.Offset, size)
			if err != nil {
				return nil, errors.Wrapf(err, "member %q", m.Name)
			}
			members[i] = v
		}
		return members, nil
	case ir.ImageType, ir.SamplerType:
		return nil, nil
	default:
		return nil, errors.Errorf("type %d has no value representation", ty)
	}
}

func decodeVector(n ir.VectorSize, scalar ir.ScalarType, words []uint32, offset uint32) []any {
	w := uint32(scalar.Width)
	if scalar.Kind == ir.ScalarBool {
		w = 4
	}
	out := make([]any, n)
	for i := range out {
		out[i] = decodeScalar(scalar, words, offset+uint32(i)*w)
	}
	return out
}

func decodeScalar(t ir.ScalarType, words []uint32, offset uint32) any {
	var word uint32
	if i := int(offset / 4); i < len(words) {
		word = words[i]
	}
	switch t.Kind {
	case ir.ScalarSint:
		return int32(word)
	case ir.ScalarUint:
		return word
	case ir.ScalarBool:
		return word != 0
	default:
		if t.Width == 2 {
			return float16.Frombits(uint16(word >> (8 * (offset % 4))))
		}
		return math.Float32frombits(word)
	}
}

// zeroLike returns the zero scalar of v's type.
func zeroLike(v any) any {
	switch v.(type) {
	case int32:
		return int32(0)
	case uint32:
		return uint32(0)
	case float16.Float16:
		return float16.Fromfloat32(0)
	case bool:
		return false
	default:
		return float32(0)
	}
}

func toFloat(v any) (float64, error) {
	switch x := v.(type) {
	case float32:
		return float64(x), nil
	case float16.Float16:
		return float64(x.Float32()), nil
	case int32:
		return float64(x), nil
	case uint32:
		return float64(x), nil
	}
	return 0, errors.Errorf("%T is not numeric", v)
}

// fromFloat converts f to the float type of like.
func fromFloat(f float64, like any) any {
	if _, ok := like.(float16.Float16); ok {
		return float16.Fromfloat32(float32(f))
	}
	return float32(f)
}

func asBool(v any) (bool, error) {
	b, ok := v.(bool)
	if !ok {
		return false, errors.Errorf("expected bool, got %T", v)
	}
	return b, nil
}

func asIndex(v any) (int, error) {
	switch x := v.(type) {
	case int32:
		return int(x), nil
	case uint32:
		return int(x), nil
	}
	return 0, errors.Errorf("index must be an integer, got %T", v)
}

// convert performs a value conversion to kind with byte width.
func convert(v any, kind ir.ScalarKind, width uint8) (any, error) {
	if elems, ok := v.([]any); ok {
		out := make([]any, len(elems))
		for i, e := range elems {
			c, err := convert(e, kind, width)
			if err != nil {
				return nil, err
			}
			out[i] = c
		}
		return out, nil
	}
	if b, ok := v.(bool); ok {
		if b {
			v = uint32(1)
		} else {
			v = uint32(0)
		}
	}
	f, err := toFloat(v)
	if err != nil {
		return nil, err
	}
	switch kind {
	case ir.ScalarBool:
		return f != 0, nil
	case ir.ScalarSint:
		return int32(clampFloat(f, math.MinInt32, math.MaxInt32)), nil
	case ir.ScalarUint:
		return uint32(clampFloat(f, 0, math.MaxUint32)), nil
	default:
		if width == 2 {
			return float16.Fromfloat32(float32(f)), nil
		}
		return float32(f), nil
	}
}

func clampFloat(f, lo, hi float64) float64 {
	switch {
	case math.IsNaN(f):
		return 0
	case f < lo:
		return lo
	case f > hi:
		return hi
	}
	return math.Trunc(f)
}

// bitcast reinterprets 32-bit scalars.
func bitcast(v any, kind ir.ScalarKind) (any, error) {
	if elems, ok := v.([]any); ok {
		out := make([]any, len(elems))
		for i, e := range elems {
			c, err := bitcast(e, kind)
			if err != nil {
				return nil, err
			}
			out[i] = c
		}
		return out, nil
	}
	var bits uint32
	switch x := v.(type) {
	case int32:
		bits = uint32(x)
	case uint32:
		bits = x
	case float32:
		bits = math.Float32bits(x)
	default:
		return nil, errors.Errorf("cannot bitcast %T", v)
	}
	switch kind {
	case ir.ScalarSint:
		return int32(bits), nil
	case ir.ScalarUint:
		return bits, nil
	case ir.ScalarFloat:
		return math.Float32frombits(bits), nil
	}
	return nil, errors.Errorf("cannot bitcast to kind %d", kind)
}
