// Copyright 2025 The GoGPU Authors
// SPDX-License-Identifier: MIT

package hlsl

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

// writeFunction writes a function. Pointer parameters become inout.
func (w *Writer) writeFunction(h ir.FunctionHandle) error {
	w.enterFunction(h)

	ret := "void"
	if w.fn.Result != nil {
		var err error
		if ret, err = w.typeName(w.fn.Result.Type); err != nil {
			return fmt.Errorf("function %q: %w", w.fn.Name, err)
		}
	}

	params := make([]string, len(w.fn.Arguments))
	for i, arg := range w.fn.Arguments {
		ty := arg.Type
		qualifier := ""
		if ptr, ok := w.module.TypeInner(ty).(ir.PointerType); ok {
			if ptr.Space != ir.SpaceFunction && ptr.Space != ir.SpacePrivate {
				return newError(ErrUnsupportedFeature, "in function %q: pointer parameter %q must point to function or private memory", w.fn.Name, arg.Name)
			}
			qualifier = "inout "
			ty = ptr.Base
		}
		decl, err := w.declaration(ty, w.argumentName(h, i))
		if err != nil {
			return err
		}
		params[i] = qualifier + decl
	}

	name := w.names[nameKey{kind: nameKeyFunction, handle1: uint32(h)}]
	w.writeLine("%s %s(%s) {", ret, name, strings.Join(params, ", "))
	w.pushIndent()
	if err := w.writeBlock(w.fn.Body); err != nil {
		return fmt.Errorf("function %q: %w", w.fn.Name, err)
	}
	w.popIndent()
	w.writeLine("}")
	w.writeLine("")
	return nil
}

// semantic returns the semantic of a stage input or output and whether it
// is interpolated flat.
func (w *Writer) semantic(b ir.Binding, output bool) (string, bool, error) {
	switch b := b.(type) {
	case ir.BuiltinBinding:
		s, err := BuiltInToSemantic(b.Builtin)
		return s, false, err
	case ir.LocationBinding:
		if output && w.entry.Stage == ir.StageFragment {
			return fmt.Sprintf("SV_Target%d", b.Location), false, nil
		}
		// Vertex inputs are not interpolated.
		flat := b.Flat && (output || w.entry.Stage != ir.StageVertex)
		return fmt.Sprintf("LOC%d", b.Location), flat, nil
	}
	return "", false, newError(ErrInvalidModule, "binding %T", b)
}

// stageField declares one stage input or output with its semantic.
func (w *Writer) stageField(ty ir.TypeHandle, name string, b ir.Binding, output bool) (string, error) {
	semantic, flat, err := w.semantic(b, output)
	if err != nil {
		return "", err
	}
	decl, err := w.declaration(ty, name)
	if err != nil {
		return "", err
	}
	if flat {
		decl = "nointerpolation " + decl
	}
	return decl + " : " + semantic, nil
}

func isGroupIndex(b ir.Binding) bool {
	bb, ok := b.(ir.BuiltinBinding)
	return ok && bb.Builtin == ir.BuiltinLocalInvocationIndex
}

// writeEntryPoint writes the wrapper the pipeline calls. It carries the
// semantics, rebuilds struct arguments from flattened inputs, and calls the
// entry function, which was written as a regular function.
//
//nolint:gocyclo,cyclop // inputs, outputs and workgroup initialization
func (w *Writer) writeEntryPoint() error {
	w.enterFunction(w.entry.Function)
	fn := w.fn

	var params, args, prelude []string
	groupIndex := ""
	for i, arg := range fn.Arguments {
		base := w.argumentName(w.fnHandle, i)
		if arg.Binding != nil {
			name := w.symbols.New(base)
			field, err := w.stageField(arg.Type, name, arg.Binding, false)
			if err != nil {
				return err
			}
			params = append(params, field)
			args = append(args, name)
			if isGroupIndex(arg.Binding) {
				groupIndex = name
			}
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
			field, err := w.stageField(m.Type, name, m.Binding, false)
			if err != nil {
				return err
			}
			params = append(params, field)
			members[j] = name
			if isGroupIndex(m.Binding) {
				groupIndex = name
			}
		}
		tmp := w.symbols.New(base)
		prelude = append(prelude, fmt.Sprintf("%s %s = { %s };", w.typeNameOf(arg.Type), tmp, strings.Join(members, ", ")))
		args = append(args, tmp)
	}

	var workgroup []ir.GlobalVariableHandle
	if w.entry.Stage == ir.StageCompute && w.options.ZeroInitializeWorkgroupMemory {
		for h, g := range w.module.GlobalVariables {
			if w.globals[h] && g.Space == ir.SpaceWorkGroup {
				workgroup = append(workgroup, ir.GlobalVariableHandle(h)) //nolint:gosec // G115: handle is valid slice index
			}
		}
		if len(workgroup) > 0 && groupIndex == "" {
			groupIndex = w.symbols.New("local_invocation_index")
			params = append(params, "uint "+groupIndex+" : SV_GroupIndex")
		}
	}

	ret, retSemantic := "void", ""
	var output []string
	if result := fn.Result; result != nil {
		if result.Binding != nil {
			s, _, err := w.semantic(result.Binding, true)
			if err != nil {
				return err
			}
			if ret, err = w.typeName(result.Type); err != nil {
				return err
			}
			retSemantic = " : " + s
		} else {
			st, ok := w.module.TypeInner(result.Type).(ir.StructType)
			if !ok {
				return newError(ErrInvalidModule, "entry point %q result has no binding", w.entry.Name)
			}
			ret = w.symbols.New(w.entry.Name + "Output")
			w.writeLine("struct %s {", ret)
			w.pushIndent()
			for j, m := range st.Members {
				if m.Binding == nil {
					return newError(ErrInvalidModule, "entry point %q output member %q has no binding", w.entry.Name, m.Name)
				}
				name := w.memberName(result.Type, uint32(j)) //nolint:gosec // G115: index is small
				field, err := w.stageField(m.Type, name, m.Binding, true)
				if err != nil {
					return err
				}
				w.writeLine("%s;", field)
				output = append(output, name)
			}
			w.popIndent()
			w.writeLine("};")
			w.writeLine("")
		}
	}

	if w.entry.Stage == ir.StageCompute {
		size := w.entry.Workgroup
		w.writeLine("[numthreads(%d, %d, %d)]", max(size[0], 1), max(size[1], 1), max(size[2], 1))
	}
	w.writeLine("%s %s(%s)%s {", ret, w.entryName, strings.Join(params, ", "), retSemantic)
	w.pushIndent()

	if len(workgroup) > 0 {
		w.writeLine("if (%s == 0u) {", groupIndex)
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
		w.writeLine("GroupMemoryBarrierWithGroupSync();")
	}
	for _, line := range prelude {
		w.writeLine("%s", line)
	}

	call := w.names[nameKey{kind: nameKeyFunction, handle1: uint32(w.fnHandle)}] + "(" + strings.Join(args, ", ") + ")"
	switch {
	case fn.Result == nil:
		w.writeLine("%s;", call)
	case output == nil:
		w.writeLine("return %s;", call)
	default:
		result := w.symbols.New("result")
		out := w.symbols.New("output")
		w.writeLine("%s %s = %s;", w.typeNameOf(fn.Result.Type), result, call)
		values := make([]string, len(output))
		for j, name := range output {
			values[j] = result + "." + name
		}
		w.writeLine("%s %s = { %s };", ret, out, strings.Join(values, ", "))
		w.writeLine("return %s;", out)
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
		w.writeLine("%s = %s;", decl, value)
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
		return w.writeAssign(k)

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
		w.writeLine("discard;")
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

// writeAssign stores through a pointer. Storage buffer targets become
// Store calls at the computed byte offset.
func (w *Writer) writeAssign(stmt ir.StmtAssign) error {
	target := stmt.Target
	if addr, ok := w.fn.Expressions[target].Kind.(ir.ExprAddressOf); ok {
		target = addr.Expr
	}
	ref, ok, err := w.storageAccess(target)
	if err != nil {
		return err
	}
	value, err := w.expression(stmt.Value)
	if err != nil {
		return err
	}
	if ok {
		return w.writeStorageStore(ref, value)
	}

	lvalue, err := w.reference(stmt.Target)
	if err != nil {
		return err
	}
	w.writeLine("%s = %s;", lvalue, value)
	return nil
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
