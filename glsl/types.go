// Copyright 2025 The GoGPU Authors
// SPDX-License-Identifier: MIT

package glsl

import (
	"fmt"
	"strings"

	"github.com/gogpu/gputypes"

	"github.com/gogpu/crossgpu/builtin"
	"github.com/gogpu/crossgpu/ir"
)

// scalarToGLSL returns the GLSL name for a scalar type.
func scalarToGLSL(t ir.ScalarType) string {
	return builtin.TypeName(builtin.TargetGLSL, builtin.ClassOf(t), 0)
}

// vectorToGLSL returns the GLSL name for a vector type.
func vectorToGLSL(t ir.VectorType) string {
	return builtin.TypeName(builtin.TargetGLSL, builtin.ClassOf(t.Scalar), t.Size)
}

// matrixToGLSL returns the GLSL name for a matrix type.
func matrixToGLSL(t ir.MatrixType) string {
	prefix := "mat"
	if t.Scalar == ir.F16 {
		prefix = "f16mat"
	}
	if t.Columns == t.Rows {
		return fmt.Sprintf("%s%d", prefix, t.Columns)
	}
	return fmt.Sprintf("%s%dx%d", prefix, t.Columns, t.Rows)
}

// typeName returns the GLSL spelling of a type as it appears in a
// constructor. Fixed-size arrays are written as T[N].
func (w *Writer) typeName(h ir.TypeHandle) (string, error) {
	return w.typeInnerName(h, w.module.TypeInner(h))
}

func (w *Writer) typeInnerName(h ir.TypeHandle, inner ir.TypeInner) (string, error) {
	switch t := inner.(type) {
	case ir.ScalarType:
		return scalarToGLSL(t), nil
	case ir.VectorType:
		return vectorToGLSL(t), nil
	case ir.MatrixType:
		return matrixToGLSL(t), nil
	case ir.StructType:
		return w.typeNameOf(h), nil
	case ir.ArrayType:
		base, err := w.typeName(t.Base)
		if err != nil {
			return "", err
		}
		if t.Size.IsRuntime() {
			return "", newError(ErrUnsupportedFeature, "runtime-sized arrays are only allowed in storage buffers")
		}
		return fmt.Sprintf("%s[%d]", base, *t.Size.Constant), nil
	case ir.PointerType:
		return w.typeName(t.Base)
	default:
		return "", newError(ErrUnsupportedFeature, "type %T has no GLSL value spelling", inner)
	}
}

// resolvedTypeName names the resolved type of an expression, which may be
// an inline type with no handle.
func (w *Writer) resolvedTypeName(fn *ir.Function, h ir.ExpressionHandle) (string, error) {
	res := fn.ExpressionTypes[h]
	if res.Handle != nil {
		return w.typeName(*res.Handle)
	}
	return w.typeInnerName(0, res.Value)
}

// declaration writes "T name[2][3]" for a variable of type h. Runtime arrays
// are written as name[].
func (w *Writer) declaration(h ir.TypeHandle, name string) (string, error) {
	var dims strings.Builder
	for {
		arr, ok := w.module.TypeInner(h).(ir.ArrayType)
		if !ok {
			break
		}
		if arr.Size.IsRuntime() {
			dims.WriteString("[]")
		} else {
			fmt.Fprintf(&dims, "[%d]", *arr.Size.Constant)
		}
		h = arr.Base
	}
	base, err := w.typeName(h)
	if err != nil {
		return "", err
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
// contain them. Structs ending in a runtime array become storage blocks
// instead.
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
	if err := w.writeMembers(h, st); err != nil {
		return err
	}
	w.popIndent()
	w.writeLine("};")
	w.writeLine("")
	return nil
}

func (w *Writer) writeMembers(h ir.TypeHandle, st ir.StructType) error {
	for i, m := range st.Members {
		decl, err := w.declaration(m.Type, w.memberName(h, uint32(i))) //nolint:gosec // G115: member index is small
		if err != nil {
			return err
		}
		w.writeLine("%s;", decl)
	}
	return nil
}

// writeGlobalVariables declares the used globals, the combined samplers and
// the entry point's inputs and outputs.
func (w *Writer) writeGlobalVariables() error {
	for handle, g := range w.module.GlobalVariables {
		if !w.globals[handle] {
			continue
		}
		if err := w.writeGlobal(ir.GlobalVariableHandle(handle), &g); err != nil { //nolint:gosec // G115: handle is valid slice index
			return err
		}
	}
	for _, pair := range w.pairs {
		if err := w.writeSamplerPair(pair); err != nil {
			return err
		}
	}
	if len(w.pairs) > 0 {
		w.writeLine("")
	}
	return w.writeEntryIO()
}

func (w *Writer) writeGlobal(handle ir.GlobalVariableHandle, g *ir.GlobalVariable) error {
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
		w.writeLine("%s = %s;", decl, zero)
	case ir.SpaceWorkGroup:
		decl, err := w.declaration(g.Type, name)
		if err != nil {
			return err
		}
		w.writeLine("shared %s;", decl)
	case ir.SpaceUniform:
		return w.writeBlock(handle, g, "std140", "uniform", w.options.UniformBindingBase)
	case ir.SpaceStorage:
		if !w.options.LangVersion.Supports(FeatureStorageBuffers) {
			return newError(ErrUnsupportedFeature, "storage buffer %q requires GLSL 4.30 or ES 3.10", g.Name)
		}
		qualifier := "buffer"
		switch g.Access {
		case ir.AccessRead:
			qualifier = "readonly buffer"
		case ir.AccessWrite:
			qualifier = "writeonly buffer"
		}
		return w.writeBlock(handle, g, "std430", qualifier, w.options.StorageBindingBase)
	case ir.SpaceHandle:
		img, ok := w.module.TypeInner(g.Type).(ir.ImageType)
		if ok && img.Class == ir.ImageClassStorage {
			return w.writeStorageImage(handle, g, img)
		}
		// Sampled textures and samplers are declared as combined samplers.
		return nil
	default:
		return newError(ErrUnsupportedFeature, "global %q has unsupported address space %d", g.Name, g.Space)
	}
	w.writeLine("")
	return nil
}

// writeBlock declares a uniform or storage interface block. A struct ending
// in a runtime array is flattened into the block; anything else is wrapped
// in a single member so the global can be read as a whole.
func (w *Writer) writeBlock(handle ir.GlobalVariableHandle, g *ir.GlobalVariable, layout, qualifier string, base uint32) error {
	name := w.globalName(handle)
	if g.Binding != nil && w.options.LangVersion.Supports(FeatureExplicitBinding) {
		layout += fmt.Sprintf(", binding = %d", base+g.Binding.Binding)
	}
	w.writeLine("layout(%s) %s %s {", layout, qualifier, w.symbols.New(name+"_block"))
	w.pushIndent()
	if member := blockMember(w.hasRuntimeArray(g.Type)); member == "" {
		if err := w.writeMembers(g.Type, w.module.TypeInner(g.Type).(ir.StructType)); err != nil {
			return err
		}
	} else {
		decl, err := w.declaration(g.Type, member)
		if err != nil {
			return err
		}
		w.writeLine("%s;", decl)
	}
	w.popIndent()
	w.writeLine("} %s;", name)
	w.writeLine("")
	return nil
}

// blockMember returns the member wrapping a block's contents, or "" when
// the struct is flattened into the block.
func blockMember(flattened bool) string {
	if flattened {
		return ""
	}
	return "inner"
}

// storageFormats maps texel formats to GLSL image format qualifiers.
var storageFormats = map[gputypes.TextureFormat]string{
	gputypes.TextureFormatRGBA8Unorm:  "rgba8",
	gputypes.TextureFormatRGBA8Snorm:  "rgba8_snorm",
	gputypes.TextureFormatRGBA8Uint:   "rgba8ui",
	gputypes.TextureFormatRGBA8Sint:   "rgba8i",
	gputypes.TextureFormatRGBA16Float: "rgba16f",
	gputypes.TextureFormatRGBA16Uint:  "rgba16ui",
	gputypes.TextureFormatRGBA16Sint:  "rgba16i",
	gputypes.TextureFormatR32Float:    "r32f",
	gputypes.TextureFormatR32Uint:     "r32ui",
	gputypes.TextureFormatR32Sint:     "r32i",
	gputypes.TextureFormatRG32Float:   "rg32f",
	gputypes.TextureFormatRG32Uint:    "rg32ui",
	gputypes.TextureFormatRG32Sint:    "rg32i",
	gputypes.TextureFormatRGBA32Float: "rgba32f",
	gputypes.TextureFormatRGBA32Uint:  "rgba32ui",
	gputypes.TextureFormatRGBA32Sint:  "rgba32i",
}

func (w *Writer) writeStorageImage(handle ir.GlobalVariableHandle, g *ir.GlobalVariable, img ir.ImageType) error {
	format, ok := storageFormats[img.StorageFormat]
	if !ok {
		return newError(ErrUnsupportedFeature, "storage texture %q has format %v with no GLSL qualifier", g.Name, img.StorageFormat)
	}
	layout := format
	if g.Binding != nil && w.options.LangVersion.Supports(FeatureExplicitBinding) {
		layout += fmt.Sprintf(", binding = %d", w.options.SamplerBindingBase+g.Binding.Binding)
	}
	access := ""
	switch img.StorageAccess {
	case ir.AccessRead:
		access = "readonly "
	case ir.AccessWrite:
		access = "writeonly "
	}
	w.writeLine("layout(%s) uniform %s%s%s %s;", layout, access, w.precision(), imageTypeName(img), w.globalName(handle))
	w.writeLine("")
	return nil
}

func (w *Writer) writeSamplerPair(pair samplerPair) error {
	g := &w.module.GlobalVariables[pair.image]
	img, ok := w.module.TypeInner(g.Type).(ir.ImageType)
	if !ok {
		return newError(ErrInvalidModule, "texture %q is not an image", g.Name)
	}
	prefix := ""
	if g.Binding != nil && w.options.LangVersion.Supports(FeatureExplicitBinding) {
		prefix = fmt.Sprintf("layout(binding = %d) ", w.options.SamplerBindingBase+g.Binding.Binding)
	}
	w.writeLine("%suniform %s%s %s;", prefix, w.precision(), samplerTypeName(img), w.pairName[pair])
	return nil
}

// precision returns the precision qualifier opaque types need in ES.
func (w *Writer) precision() string {
	if w.options.LangVersion.ES {
		return "highp "
	}
	return ""
}

func texelPrefix(kind ir.ScalarKind) string {
	switch kind {
	case ir.ScalarSint:
		return "i"
	case ir.ScalarUint:
		return "u"
	default:
		return ""
	}
}

func dimSuffix(img ir.ImageType) string {
	var s string
	switch img.Dim {
	case ir.Dim1D:
		s = "1D"
	case ir.Dim2D:
		s = "2D"
	case ir.Dim3D:
		s = "3D"
	case ir.DimCube:
		s = "Cube"
	}
	if img.Multisampled {
		s += "MS"
	}
	if img.Arrayed {
		s += "Array"
	}
	return s
}

// samplerTypeName returns the combined sampler type for a texture.
// Depth textures become shadow samplers.
func samplerTypeName(img ir.ImageType) string {
	if img.Class == ir.ImageClassDepth {
		if img.Multisampled {
			return "sampler" + dimSuffix(img)
		}
		return "sampler" + dimSuffix(img) + "Shadow"
	}
	return texelPrefix(ir.TexelScalar(img).Kind) + "sampler" + dimSuffix(img)
}

func imageTypeName(img ir.ImageType) string {
	return texelPrefix(ir.TexelScalar(img).Kind) + "image" + dimSuffix(img)
}

// entryIO is one input or output variable of the entry point.
type entryIO struct {
	name    string
	ty      ir.TypeHandle
	binding ir.Binding
}

// collectEntryIO names the entry point's location inputs and outputs.
// Builtins map to gl_ variables and are not declared.
func (w *Writer) collectEntryIO() {
	if w.entry == nil {
		return
	}
	fn := &w.module.Functions[w.entry.Function]

	inPrefix, outPrefix := "_p2vs", "_vs2fs"
	if w.entry.Stage == ir.StageFragment {
		inPrefix, outPrefix = "_vs2fs", "_fs2p"
	}
	io := func(prefix string, ty ir.TypeHandle, binding ir.Binding) entryIO {
		e := entryIO{ty: ty, binding: binding}
		if loc, ok := binding.(ir.LocationBinding); ok {
			e.name = w.symbols.New(fmt.Sprintf("%s_location%d", prefix, loc.Location))
		}
		return e
	}
	expand := func(prefix string, ty ir.TypeHandle, binding ir.Binding) []entryIO {
		if binding != nil {
			return []entryIO{io(prefix, ty, binding)}
		}
		st, _ := w.module.TypeInner(ty).(ir.StructType)
		out := make([]entryIO, 0, len(st.Members))
		for _, m := range st.Members {
			out = append(out, io(prefix, m.Type, m.Binding))
		}
		return out
	}

	w.inputs = make([][]entryIO, len(fn.Arguments))
	for i, arg := range fn.Arguments {
		w.inputs[i] = expand(inPrefix, arg.Type, arg.Binding)
	}
	if fn.Result != nil {
		w.outputs = expand(outPrefix, fn.Result.Type, fn.Result.Binding)
	}
}

func (w *Writer) writeEntryIO() error {
	if w.entry == nil {
		return nil
	}
	wrote := false
	for _, arg := range w.inputs {
		for _, io := range arg {
			ok, err := w.writeIOVar(io, "in", w.entry.Stage == ir.StageVertex)
			if err != nil {
				return err
			}
			wrote = wrote || ok
		}
	}
	for _, io := range w.outputs {
		ok, err := w.writeIOVar(io, "out", w.entry.Stage == ir.StageFragment)
		if err != nil {
			return err
		}
		wrote = wrote || ok
	}
	if wrote {
		w.writeLine("")
	}
	return nil
}

// writeIOVar declares a location variable. Vertex inputs and fragment
// outputs always carry their location; varyings only where the version
// allows it.
func (w *Writer) writeIOVar(io entryIO, direction string, pipelineEdge bool) (bool, error) {
	loc, ok := io.binding.(ir.LocationBinding)
	if !ok {
		return false, nil
	}
	decl, err := w.declaration(io.ty, io.name)
	if err != nil {
		return false, err
	}
	var b strings.Builder
	if pipelineEdge || w.options.LangVersion.Supports(FeatureExplicitLocation) {
		fmt.Fprintf(&b, "layout(location = %d) ", loc.Location)
	}
	if !pipelineEdge && (loc.Flat || isIntegral(w.module.TypeInner(io.ty))) {
		b.WriteString("flat ")
	}
	w.writeLine("%s%s %s;", b.String(), direction, decl)
	return true, nil
}

func isIntegral(inner ir.TypeInner) bool {
	switch t := inner.(type) {
	case ir.ScalarType:
		return t.Kind.IsInteger()
	case ir.VectorType:
		return t.Scalar.Kind.IsInteger()
	}
	return false
}

// builtinInput returns the GLSL expression reading an input builtin.
func builtinInput(b ir.BuiltinValue) (string, error) {
	switch b {
	case ir.BuiltinPosition:
		return "gl_FragCoord", nil
	case ir.BuiltinVertexIndex:
		return "uint(gl_VertexID)", nil
	case ir.BuiltinInstanceIndex:
		return "uint(gl_InstanceID)", nil
	case ir.BuiltinFrontFacing:
		return "gl_FrontFacing", nil
	case ir.BuiltinSampleIndex:
		return "uint(gl_SampleID)", nil
	case ir.BuiltinSampleMask:
		return "uint(gl_SampleMaskIn[0])", nil
	case ir.BuiltinLocalInvocationID:
		return "gl_LocalInvocationID", nil
	case ir.BuiltinLocalInvocationIndex:
		return "gl_LocalInvocationIndex", nil
	case ir.BuiltinGlobalInvocationID:
		return "gl_GlobalInvocationID", nil
	case ir.BuiltinWorkGroupID:
		return "gl_WorkGroupID", nil
	case ir.BuiltinNumWorkGroups:
		return "gl_NumWorkGroups", nil
	default:
		return "", newError(ErrUnsupportedFeature, "builtin %d is not an input", b)
	}
}

// builtinOutput returns the assignment writing value to an output builtin.
func builtinOutput(b ir.BuiltinValue, value string) (string, error) {
	switch b {
	case ir.BuiltinPosition:
		return "gl_Position = " + value, nil
	case ir.BuiltinFragDepth:
		return "gl_FragDepth = " + value, nil
	case ir.BuiltinSampleMask:
		return "gl_SampleMask[0] = int(" + value + ")", nil
	default:
		return "", newError(ErrUnsupportedFeature, "builtin %d is not an output", b)
	}
}
