package msl

import (
	"fmt"
	"strings"

	"github.com/gogpu/crossgpu/ir"
)

// writeFunctions writes every reachable function, callees before callers,
// followed by the entry point wrapper.
func (w *Writer) writeFunctions() error {
	done := make([]bool, len(w.module.Functions))
	var visit func(h ir.FunctionHandle) error
	visit = func(h ir.FunctionHandle) error {
		if done[h] {
			return nil
		}
		done[h] = true
		for _, e := range w.module.Functions[h].Expressions {
			if call, ok := e.Kind.(ir.ExprCall); ok {
				if err := visit(call.Function); err != nil {
					return err
				}
			}
		}
		return w.writeFunction(h)
	}

	for h := range w.module.Functions {
		if !w.functions[h] {
			continue
		}
		if err := visit(ir.FunctionHandle(h)); err != nil { //nolint:gosec // G115: handle is valid slice index
			return err
		}
	}
	if w.entry != nil {
		return w.writeEntryPoint()
	}
	return nil
}

func (w *Writer) enterFunction(h ir.FunctionHandle) {
	w.fn = &w.module.Functions[h]
	w.fnHandle = h
}

// writeFunction writes a function. Pointer parameters become references in
// their address space, and the globals the function reaches follow its own
// parameters.
func (w *Writer) writeFunction(h ir.FunctionHandle) error {
	w.enterFunction(h)

	ret := "void"
	if w.fn.Result != nil {
		var err error
		if ret, err = w.typeName(w.fn.Result.Type); err != nil {
			return fmt.Errorf("function %q: %w", w.fn.Name, err)
		}
	}

	var params []string
	for i, arg := range w.fn.Arguments {
		name := w.argumentName(h, i)
		if ptr, ok := w.module.TypeInner(arg.Type).(ir.PointerType); ok {
			ty, err := w.typeName(ptr.Base)
			if err != nil {
				return err
			}
			params = append(params, addressSpace(ptr.Space)+" "+ty+"& "+name)
			continue
		}
		decl, err := w.declaration(arg.Type, name)
		if err != nil {
			return err
		}
		params = append(params, decl)
	}
	for _, g := range w.fnGlobals[h] {
		param, err := w.globalParameter(g)
		if err != nil {
			return err
		}
		params = append(params, param)
	}

	w.writeLine("%s %s(%s) {", ret, w.functionName(h), strings.Join(params, ", "))
	w.pushIndent()
	if err := w.writeBlock(w.fn.Body); err != nil {
		return fmt.Errorf("function %q: %w", w.fn.Name, err)
	}
	w.popIndent()
	w.writeLine("}")
	w.writeLine("")
	return nil
}

// builtinAttribute returns the attribute of a builtin stage input or output.
func builtinAttribute(b ir.BuiltinValue, output bool) (string, error) {
	switch b {
	case ir.BuiltinPosition:
		return "position", nil
	case ir.BuiltinVertexIndex:
		return "vertex_id", nil
	case ir.BuiltinInstanceIndex:
		return "instance_id", nil
	case ir.BuiltinFrontFacing:
		return "front_facing", nil
	case ir.BuiltinFragDepth:
		return "depth(any)", nil
	case ir.BuiltinSampleIndex:
		return "sample_id", nil
	case ir.BuiltinSampleMask:
		return "sample_mask", nil
	case ir.BuiltinLocalInvocationID:
		return "thread_position_in_threadgroup", nil
	case ir.BuiltinLocalInvocationIndex:
		return "thread_index_in_threadgroup", nil
	case ir.BuiltinGlobalInvocationID:
		return "thread_position_in_grid", nil
	case ir.BuiltinWorkGroupID:
		return "threadgroup_position_in_grid", nil
	case ir.BuiltinNumWorkGroups:
		return "threadgroups_per_grid", nil
	default:
		return "", newError(ErrUnsupportedFeature, "builtin %d as a stage %s", b, map[bool]string{false: "input", true: "output"}[output])
	}
}

// locationAttribute returns the attribute of a location input or output:
// vertex attributes in, colors out of fragments, and user varyings between.
func (w *Writer) locationAttribute(b ir.LocationBinding, output bool) string {
	switch {
	case !output && w.entry.Stage == ir.StageVertex:
		return fmt.Sprintf("attribute(%d)", b.Location)
	case output && w.entry.Stage == ir.StageFragment:
		return fmt.Sprintf("color(%d)", b.Location)
	case !output && b.Flat:
		return fmt.Sprintf("user(loc%d), flat", b.Location)
	default:
		return fmt.Sprintf("user(loc%d)", b.Location)
	}
}

// stageIO collects the wrapper's inputs while the entry function's
// arguments are walked. Locations go into the stage_in struct, builtins
// become parameters.
type stageIO struct {
	params   []string
	varyings []string
	prelude  []string
	args     []string

	// varyingsName is the stage_in parameter, allocated on first use.
	varyingsName string
	localIndex   string
}

func (w *Writer) stageInput(io *stageIO, ty ir.TypeHandle, base string, b ir.Binding) (string, error) {
	decl, err := w.declaration(ty, base)
	if err != nil {
		return "", err
	}
	switch b := b.(type) {
	case ir.BuiltinBinding:
		attr, err := builtinAttribute(b.Builtin, false)
		if err != nil {
			return "", err
		}
		io.params = append(io.params, decl+" [["+attr+"]]")
		if b.Builtin == ir.BuiltinLocalInvocationIndex {
			io.localIndex = base
		}
		return base, nil
	case ir.LocationBinding:
		if w.entry.Stage == ir.StageCompute {
			return "", newError(ErrInvalidModule, "compute entry point %q has a location input", w.entry.Name)
		}
		if io.varyingsName == "" {
			io.varyingsName = w.symbols.New("varyings")
		}
		io.varyings = append(io.varyings, decl+" [["+w.locationAttribute(b, false)+"]]")
		return io.varyingsName + "." + base, nil
	}
	return "", newError(ErrInvalidModule, "binding %T", b)
}

// writeEntryPoint writes the stage function the pipeline calls. It declares
// the resources with their slots, owns the private and threadgroup
// variables, rebuilds struct arguments from flattened inputs, and calls the
// entry function, which was written as a regular function.
//
//nolint:gocyclo,cyclop,funlen // inputs, resources, outputs and workgroup initialization
func (w *Writer) writeEntryPoint() error {
	w.enterFunction(w.entry.Function)
	fn := w.fn
	io := &stageIO{}

	for i, arg := range fn.Arguments {
		base := w.argumentName(w.fnHandle, i)
		if arg.Binding != nil {
			name := w.symbols.New(base)
			value, err := w.stageInput(io, arg.Type, name, arg.Binding)
			if err != nil {
				return err
			}
			io.args = append(io.args, value)
			continue
		}

		st, ok := w.module.TypeInner(arg.Type).(ir.StructType)
		if !ok {
			return newError(ErrInvalidModule, "entry point %q argument %q has no binding", w.entry.Name, arg.Name)
		}
		members := make([]string, len(st.Members))
		for j, m := range st.Members {
			if m.Binding == nil {
				return newError(ErrInvalidModule, "entry point %q input member %q has no binding", w.entry.Name, m.Name)
			}
			name := w.symbols.New(base + "_" + w.memberName(arg.Type, uint32(j))) //nolint:gosec // G115: index is small
			value, err := w.stageInput(io, m.Type, name, m.Binding)
			if err != nil {
				return err
			}
			members[j] = value
		}
		tmp := w.symbols.New(base)
		io.prelude = append(io.prelude, fmt.Sprintf("%s %s = %s;", w.typeNameOf(arg.Type), tmp, w.structInit(arg.Type, members)))
		io.args = append(io.args, tmp)
	}

	// Resources become parameters with slots; variables live in the wrapper.
	var locals, workgroup []ir.GlobalVariableHandle
	slots := newSlotAllocator(w.options)
	for _, h := range w.fnGlobals[w.fnHandle] {
		g := &w.module.GlobalVariables[h]
		switch g.Space {
		case ir.SpacePrivate:
			locals = append(locals, h)
			continue
		case ir.SpaceWorkGroup:
			if w.entry.Stage != ir.StageCompute {
				return newError(ErrInvalidModule, "threadgroup variable %q used outside a kernel", g.Name)
			}
			workgroup = append(workgroup, h)
			continue
		}
		attr, err := w.resourceAttribute(slots, h)
		if err != nil {
			return err
		}
		param, err := w.globalParameter(h)
		if err != nil {
			return err
		}
		w.resourceSlots[w.globalName(h)] = attr
		io.params = append(io.params, param+" [["+attr+"]]")
	}

	zeroWorkgroup := len(workgroup) > 0 && w.options.ZeroInitializeWorkgroupMemory
	if zeroWorkgroup && io.localIndex == "" {
		io.localIndex = w.symbols.New("local_invocation_index")
		io.params = append(io.params, "uint "+io.localIndex+" [[thread_index_in_threadgroup]]")
	}

	if io.varyingsName != "" {
		input := w.symbols.New(w.entry.Name + "Input")
		w.writeLine("struct %s {", input)
		w.pushIndent()
		for _, v := range io.varyings {
			w.writeLine("%s;", v)
		}
		w.popIndent()
		w.writeLine("};")
		w.writeLine("")
		io.params = append([]string{input + " " + io.varyingsName + " [[stage_in]]"}, io.params...)
	}

	// Results always travel in a struct so every output carries its attribute.
	ret := "void"
	var outputs []string
	single := false
	if result := fn.Result; result != nil {
		ret = w.symbols.New(w.entry.Name + "Output")
		var fields []string
		output := func(ty ir.TypeHandle, name string, b ir.Binding) error {
			var attr string
			switch b := b.(type) {
			case ir.BuiltinBinding:
				var err error
				if attr, err = builtinAttribute(b.Builtin, true); err != nil {
					return err
				}
			case ir.LocationBinding:
				attr = w.locationAttribute(b, true)
			default:
				return newError(ErrInvalidModule, "entry point %q result has no binding", w.entry.Name)
			}
			decl, err := w.declaration(ty, name)
			if err != nil {
				return err
			}
			fields = append(fields, decl+" [["+attr+"]]")
			outputs = append(outputs, name)
			return nil
		}
		if result.Binding != nil {
			single = true
			if err := output(result.Type, "value", result.Binding); err != nil {
				return err
			}
		} else {
			st, ok := w.module.TypeInner(result.Type).(ir.StructType)
			if !ok {
				return newError(ErrInvalidModule, "entry point %q result has no binding", w.entry.Name)
			}
			for j, m := range st.Members {
				if m.Binding == nil {
					return newError(ErrInvalidModule, "entry point %q output member %q has no binding", w.entry.Name, m.Name)
				}
				if err := output(m.Type, w.memberName(result.Type, uint32(j)), m.Binding); err != nil { //nolint:gosec // G115: index is small
					return err
				}
			}
		}
		w.writeLine("struct %s {", ret)
		w.pushIndent()
		for _, f := range fields {
			w.writeLine("%s;", f)
		}
		w.popIndent()
		w.writeLine("};")
		w.writeLine("")
	}

	stage := map[ir.ShaderStage]string{ir.StageVertex: "vertex", ir.StageFragment: "fragment", ir.StageCompute: "kernel"}[w.entry.Stage]
	if len(io.params) == 0 {
		w.writeLine("%s %s %s() {", stage, ret, w.entryName)
	} else {
		w.writeLine("%s %s %s(", stage, ret, w.entryName)
		w.pushIndent()
		for i, p := range io.params {
			sep := ","
			if i == len(io.params)-1 {
				sep = ""
			}
			w.writeLine("%s%s", p, sep)
		}
		w.popIndent()
		w.writeLine(") {")
	}
	w.pushIndent()

	for _, h := range locals {
		g := &w.module.GlobalVariables[h]
		decl, err := w.declaration(g.Type, w.globalName(h))
		if err != nil {
			return err
		}
		zero, err := w.zeroValue(g.Type)
		if err != nil {
			return err
		}
		w.writeLine("%s = %s;", decl, zero)
	}
	for _, h := range workgroup {
		decl, err := w.declaration(w.module.GlobalVariables[h].Type, w.globalName(h))
		if err != nil {
			return err
		}
		w.writeLine("threadgroup %s;", decl)
	}
	if zeroWorkgroup {
		w.writeLine("if (%s == 0u) {", io.localIndex)
		w.pushIndent()
		for _, h := range workgroup {
			zero, err := w.zeroValue(w.module.GlobalVariables[h].Type)
			if err != nil {
				return err
			}
			w.writeLine("%s = %s;", w.globalName(h), zero)
		}
		w.popIndent()
		w.writeLine("}")
		w.writeLine("%sthreadgroup_barrier(%smem_flags::mem_threadgroup);", Namespace, Namespace)
	}
	for _, line := range io.prelude {
		w.writeLine("%s", line)
	}

	args := io.args
	for _, g := range w.fnGlobals[w.fnHandle] {
		args = append(args, w.globalName(g))
	}
	call := w.functionName(w.fnHandle) + "(" + strings.Join(args, ", ") + ")"
	switch {
	case fn.Result == nil:
		w.writeLine("%s;", call)
	case single:
		w.writeLine("return %s {%s};", ret, call)
	default:
		result := w.symbols.New("result")
		w.writeLine("%s %s = %s;", w.typeNameOf(fn.Result.Type), result, call)
		values := make([]string, len(outputs))
		for j, name := range outputs {
			values[j] = result + "." + name
		}
		w.writeLine("return %s {%s};", ret, strings.Join(values, ", "))
	}
	w.popIndent()
	w.writeLine("}")
	return nil
}

// writeBlock writes a block of statements.
func (w *Writer) writeBlock(block ir.Block) error {
	for _, stmt := range block {
		if err := w.writeStatement(stmt.Kind); err != nil {
			return err
		}
	}
	return nil
}

// writeStatement writes a single statement.
//
//nolint:gocyclo,cyclop // one case per statement kind
func (w *Writer) writeStatement(kind ir.StatementKind) error {
	switch k := kind.(type) {
	case ir.StmtBlock:
		w.writeLine("{")
		w.pushIndent()
		if err := w.writeBlock(k.Block); err != nil {
			return err
		}
		w.popIndent()
		w.writeLine("}")
		return nil

	case ir.StmtLet:
		local := w.fn.Locals[k.Local]
		if _, ok := w.module.TypeInner(local.Type).(ir.PointerType); ok {
			return newError(ErrUnsupportedFeature, "unresolved pointer let %q", local.Name)
		}
		value, err := w.expression(k.Value)
		if err != nil {
			return err
		}
		decl, err := w.declaration(local.Type, w.localName(k.Local))
		if err != nil {
			return err
		}
		w.writeLine("const %s = %s;", decl, value)
		return nil

	case ir.StmtVar:
		local := w.fn.Locals[k.Local]
		var value string
		var err error
		if k.Init != nil {
			value, err = w.expression(*k.Init)
		} else {
			value, err = w.zeroValue(local.Type)
		}
		if err != nil {
			return err
		}
		decl, err := w.declaration(local.Type, w.localName(k.Local))
		if err != nil {
			return err
		}
		w.writeLine("%s = %s;", decl, value)
		return nil

	case ir.StmtAssign:
		lvalue, err := w.reference(k.Target)
		if err != nil {
			return err
		}
		value, err := w.expression(k.Value)
		if err != nil {
			return err
		}
		w.writeLine("%s = %s;", lvalue, value)
		return nil

	case ir.StmtIf:
		return w.writeIf(k)

	case ir.StmtSwitch:
		return w.writeSwitch(k)

	case ir.StmtLoop:
		return w.writeLoop(k)

	case ir.StmtBreak:
		w.writeLine("break;")
		return nil

	case ir.StmtContinue:
		w.writeLine("continue;")
		return nil

	case ir.StmtReturn:
		if k.Value == nil {
			w.writeLine("return;")
			return nil
		}
		value, err := w.expression(*k.Value)
		if err != nil {
			return err
		}
		w.writeLine("return %s;", value)
		return nil

	case ir.StmtKill:
		w.writeLine("%sdiscard_fragment();", Namespace)
		return nil

	case ir.StmtExpr:
		value, err := w.expression(k.Expr)
		if err != nil {
			return err
		}
		w.writeLine("%s;", value)
		return nil

	default:
		return newError(ErrUnsupportedFeature, "statement %T", kind)
	}
}

// writeIf writes an if statement.
func (w *Writer) writeIf(stmt ir.StmtIf) error {
	cond, err := w.expression(stmt.Condition)
	if err != nil {
		return err
	}
	w.writeLine("if (%s) {", cond)
	w.pushIndent()
	if err := w.writeBlock(stmt.Accept); err != nil {
		return err
	}
	w.popIndent()
	if len(stmt.Reject) > 0 {
		w.writeLine("} else {")
		w.pushIndent()
		if err := w.writeBlock(stmt.Reject); err != nil {
			return err
		}
		w.popIndent()
	}
	w.writeLine("}")
	return nil
}

// writeSwitch writes a switch statement. Cases never fall through.
func (w *Writer) writeSwitch(stmt ir.StmtSwitch) error {
	selector, err := w.expression(stmt.Selector)
	if err != nil {
		return err
	}
	w.writeLine("switch (%s) {", selector)
	w.pushIndent()
	for _, c := range stmt.Cases {
		switch v := c.Value.(type) {
		case ir.SwitchValueI32:
			w.writeLine("case %d: {", int32(v))
		case ir.SwitchValueU32:
			w.writeLine("case %du: {", uint32(v))
		case ir.SwitchValueDefault:
			w.writeLine("default: {")
		}
		w.pushIndent()
		if err := w.writeBlock(c.Body); err != nil {
			return err
		}
		if !endsInJump(c.Body) {
			w.writeLine("break;")
		}
		w.popIndent()
		w.writeLine("}")
	}
	w.popIndent()
	w.writeLine("}")
	return nil
}

func endsInJump(block ir.Block) bool {
	if len(block) == 0 {
		return false
	}
	switch block[len(block)-1].Kind.(type) {
	case ir.StmtBreak, ir.StmtContinue, ir.StmtReturn, ir.StmtKill:
		return true
	}
	return false
}

// writeLoop writes a loop. The continuing block and break-if run at the top
// of every iteration but the first, so continue statements reach them.
func (w *Writer) writeLoop(stmt ir.StmtLoop) error {
	if len(stmt.Continuing) == 0 && stmt.BreakIf == nil {
		w.writeLine("while (true) {")
		w.pushIndent()
		if err := w.writeBlock(stmt.Body); err != nil {
			return err
		}
		w.popIndent()
		w.writeLine("}")
		return nil
	}

	gate := w.symbols.New("loop_init")
	w.writeLine("bool %s = true;", gate)
	w.writeLine("while (true) {")
	w.pushIndent()
	w.writeLine("if (!%s) {", gate)
	w.pushIndent()
	if err := w.writeBlock(stmt.Continuing); err != nil {
		return err
	}
	if stmt.BreakIf != nil {
		cond, err := w.expression(*stmt.BreakIf)
		if err != nil {
			return err
		}
		w.writeLine("if (%s) {", cond)
		w.pushIndent()
		w.writeLine("break;")
		w.popIndent()
		w.writeLine("}")
	}
	w.popIndent()
	w.writeLine("}")
	w.writeLine("%s = false;", gate)
	if err := w.writeBlock(stmt.Body); err != nil {
		return err
	}
	w.popIndent()
	w.writeLine("}")
	return nil
}
