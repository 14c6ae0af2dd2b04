// Package builtin maps IR intrinsics and texture calls to the spelling each
// target shading language uses for them.
//
// A Mapper is built once per target. Lookups are keyed by the builtin and the
// Shape of its arguments, because the same WGSL builtin may need a different
// lowering depending on its operand types: sign() on a float vector in HLSL
// returns an integer vector and must be cast back, integer dot products need
// an expansion in GLSL and MSL, and so on.
package builtin

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"github.com/gogpu/crossgpu/ir"
)

// ErrUnmapped is the cause of every lookup failure. Test with errors.Is.
var ErrUnmapped = errors.New("no mapping for target")

// Target identifies an output shading language.
type Target uint8

const (
	TargetGLSL Target = iota
	TargetHLSL
	TargetMSL
)

// String returns the target name.
func (t Target) String() string {
	switch t {
	case TargetGLSL:
		return "glsl"
	case TargetHLSL:
		return "hlsl"
	case TargetMSL:
		return "msl"
	default:
		return "target(" + strconv.Itoa(int(t)) + ")"
	}
}

// Class is the scalar class of a builtin's leading argument.
type Class uint8

const (
	ClassNone Class = iota
	ClassFloat
	ClassHalf
	ClassSint
	ClassUint
	ClassBool
)

// IsInteger reports whether the class is a signed or unsigned integer.
func (c Class) IsInteger() bool {
	return c == ClassSint || c == ClassUint
}

// ClassOf returns the class of a scalar type.
func ClassOf(s ir.ScalarType) Class {
	switch s.Kind {
	case ir.ScalarFloat:
		if s.Width == 2 {
			return ClassHalf
		}
		return ClassFloat
	case ir.ScalarSint:
		return ClassSint
	case ir.ScalarUint:
		return ClassUint
	case ir.ScalarBool:
		return ClassBool
	}
	return ClassNone
}

// Shape describes a builtin call's arguments.
type Shape struct {
	Arity  int
	Class  Class
	Size   ir.VectorSize // 0 for scalars
	Matrix bool
}

// ShapeOf computes the shape of a call from its resolved argument types.
func ShapeOf(module *ir.Module, fn *ir.Function, args []ir.ExpressionHandle) Shape {
	shape := Shape{Arity: len(args)}
	if len(args) == 0 || int(args[0]) >= len(fn.ExpressionTypes) {
		return shape
	}
	switch t := fn.ExpressionTypes[args[0]].Inner(module).(type) {
	case ir.ScalarType:
		shape.Class = ClassOf(t)
	case ir.VectorType:
		shape.Class = ClassOf(t.Scalar)
		shape.Size = t.Size
	case ir.MatrixType:
		shape.Class = ClassOf(t.Scalar)
		shape.Size = t.Columns
		shape.Matrix = true
	}
	return shape
}

// Kind selects how a builtin is written out.
type Kind uint8

const (
	// Rename calls a target function of a different name with the same arguments.
	Rename Kind = iota
	// Template substitutes the arguments into an inline expression.
	Template
	// Helper calls a synthesized function whose source the emitter writes once.
	Helper
)

// Lowering is the target spelling of one builtin shape.
type Lowering struct {
	Kind Kind

	// Name is the function called by Rename, or the base name of a Helper.
	Name string

	// Template holds {0}, {1}, ... placeholders for the arguments.
	Template string

	// Helper is the helper's source with {name} standing for its allocated name.
	Helper string
}

// Expand writes the call for already-formatted arguments. helperName is the
// allocated name of the helper and is ignored for other kinds.
func (l Lowering) Expand(args []string, helperName string) string {
	switch l.Kind {
	case Template:
		out := l.Template
		for i, a := range args {
			out = strings.ReplaceAll(out, "{"+strconv.Itoa(i)+"}", a)
		}
		return out
	case Helper:
		return helperName + "(" + strings.Join(args, ", ") + ")"
	default:
		return l.Name + "(" + strings.Join(args, ", ") + ")"
	}
}

// HelperSource returns the helper's source text under the given name.
func (l Lowering) HelperSource(name string) string {
	return strings.ReplaceAll(l.Helper, "{name}", name)
}

type rule struct {
	accepts func(Shape) bool
	lower   func(Shape) Lowering
}

type table map[ir.BuiltinFunction][]rule

func (t table) add(fun ir.BuiltinFunction, accepts func(Shape) bool, lower func(Shape) Lowering) {
	t[fun] = append(t[fun], rule{accepts: accepts, lower: lower})
}

func (t table) rename(name string, funs ...ir.BuiltinFunction) {
	for _, fun := range funs {
		t.add(fun, anyShape, renameTo(name))
	}
}

func (t table) same(prefix string, funs ...ir.BuiltinFunction) {
	for _, fun := range funs {
		t.add(fun, anyShape, renameTo(prefix+fun.String()))
	}
}

func (t table) template(fun ir.BuiltinFunction, accepts func(Shape) bool, tmpl string) {
	t.add(fun, accepts, func(Shape) Lowering { return Lowering{Kind: Template, Template: tmpl} })
}

func (t table) helper(fun ir.BuiltinFunction, name, source string) {
	t.add(fun, anyShape, func(Shape) Lowering { return Lowering{Kind: Helper, Name: name, Helper: source} })
}

func renameTo(name string) func(Shape) Lowering {
	return func(Shape) Lowering { return Lowering{Kind: Rename, Name: name} }
}

func anyShape(Shape) bool { return true }

func isScalar(s Shape) bool { return s.Size == 0 }

func isVector(s Shape) bool { return s.Size != 0 && !s.Matrix }

func isFloat(s Shape) bool { return s.Class == ClassFloat || s.Class == ClassHalf }

func isInteger(s Shape) bool { return s.Class.IsInteger() }

func both(a, b func(Shape) bool) func(Shape) bool {
	return func(s Shape) bool { return a(s) && b(s) }
}

// Mapper resolves builtins for one target.
type Mapper struct {
	target Target
	rules  table
}

// NewMapper builds the lookup table for target.
func NewMapper(target Target) *Mapper {
	var rules table
	switch target {
	case TargetGLSL:
		rules = glslTable()
	case TargetHLSL:
		rules = hlslTable()
	case TargetMSL:
		rules = mslTable()
	default:
		rules = table{}
	}
	return &Mapper{target: target, rules: rules}
}

// Target returns the mapper's target.
func (m *Mapper) Target() Target {
	return m.target
}

// Lookup returns the lowering of fun for arguments of the given shape.
func (m *Mapper) Lookup(fun ir.BuiltinFunction, shape Shape) (Lowering, error) {
	for _, r := range m.rules[fun] {
		if r.accepts(shape) {
			return r.lower(shape), nil
		}
	}
	return Lowering{}, errors.Wrapf(ErrUnmapped, "%s: builtin %s(%s)", m.target, fun, shape)
}

// String describes a shape the way diagnostics print it.
func (s Shape) String() string {
	var elem string
	switch s.Class {
	case ClassFloat:
		elem = "f32"
	case ClassHalf:
		elem = "f16"
	case ClassSint:
		elem = "i32"
	case ClassUint:
		elem = "u32"
	case ClassBool:
		elem = "bool"
	default:
		elem = "_"
	}
	switch {
	case s.Matrix:
		elem = fmt.Sprintf("mat%dx_<%s>", s.Size, elem)
	case s.Size != 0:
		elem = fmt.Sprintf("vec%d<%s>", s.Size, elem)
	}
	return fmt.Sprintf("%s, %d args", elem, s.Arity)
}

// dotExpansion writes an integer dot product component by component.
func dotExpansion(s Shape) Lowering {
	comps := []string{"x", "y", "z", "w"}
	terms := make([]string, s.Size)
	for i := range terms {
		terms[i] = fmt.Sprintf("({0}).%s * ({1}).%s", comps[i], comps[i])
	}
	return Lowering{Kind: Template, Template: "(" + strings.Join(terms, " + ") + ")"}
}
