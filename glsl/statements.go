// Copyright 2025 The GoGPU Authors
// SPDX-License-Identifier: MIT

package glsl

import (
	"fmt"
	"strings"

	"github.com/gogpu/crossgpu/ir"
)

// writeFunctions writes every reachable function, callees before callers,
// and the entry point last as main.
func (w *Writer) writeFunctions() error {
	done := make([]bool, len(w.module.Functions))
	var visit func(h ir.FunctionHandle) error
	visit = func(h ir.FunctionHandle) error {
		if done[h] {
			return nil
		}
		done[h] = true
		fn := &w.module.Functions[h]
		for _, e := range fn.Expressions {
			if call, ok := e.Kind.(ir.ExprCall); ok {
				if err := visit(call.Function); err != nil {
					return err
				}
			}
		}
		if w.entry != nil && h == w.entry.Function {
			return nil
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

// writeFunction writes a regular function. Pointer parameters become inout.
func (w *Writer) writeFunction(h ir.FunctionHandle) error {
	w.enterFunction(h)
	w.inEntryPoint = false

	ret := "void"
	if w.fn.Result != nil {
		var err error
		if ret, err = w.typeName(w.fn.Result.Type); err != nil {
			return err
		}
	}

	params := make([]string, len(w.fn.Arguments))
	for i, arg := range w.fn.Arguments {
		name := w.names[nameKey{kind: nameKeyFunctionArgument, handle1: uint32(h), handle2: uint32(i)}] //nolint:gosec // G115: index is small
		ty := arg.Type
		qualifier := ""
		if ptr, ok := w.module.TypeInner(ty).(ir.PointerType); ok {
			if ptr.Space != ir.SpaceFunction && ptr.Space != ir.SpacePrivate {
				return newError(ErrUnsupportedFeature, "in function %q: pointer parameter %q must point to function or private memory", w.fn.Name, arg.Name)
			}
			qualifier = "inout "
			ty = ptr.Base
		}
		decl, err := w.declaration(ty, name)
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

// writeEntryPoint writes main(). Arguments are rebuilt from the stage
// inputs before the body runs.
func (w *Writer) writeEntryPoint() error {
	w.enterFunction(w.entry.Function)
	w.inEntryPoint = true
	defer func() { w.inEntryPoint = false }()

	w.writeLine("void main() {")
	w.pushIndent()
	for i, arg := range w.fn.Arguments {
		value, err := w.entryInput(arg, w.inputs[i])
		if err != nil {
			return err
		}
		name := w.names[nameKey{kind: nameKeyFunctionArgument, handle1: uint32(w.fnHandle), handle2: uint32(i)}] //nolint:gosec // G115: index is small
		decl, err := w.declaration(arg.Type, name)
		if err != nil {
			return err
		}
		w.writeLine("%s = %s;", decl, value)
	}
	if err := w.writeBlock(w.fn.Body); err != nil {
		return fmt.Errorf("entry point %q: %w", w.entry.Name, err)
	}
	w.popIndent()
	w.writeLine("}")
	return nil
}

func (w *Writer) entryInput(arg ir.FunctionArgument, ios []entryIO) (string, error) {
	read := func(io entryIO) (string, error) {
		if b, ok := io.binding.(ir.BuiltinBinding); ok {
			return builtinInput(b.Builtin)
		}
		return io.name, nil
	}
	if arg.Binding != nil {
		return read(ios[0])
	}
	parts := make([]string, len(ios))
	for i, io := range ios {
		s, err := read(io)
		if err != nil {
			return "", err
		}
		parts[i] = s
	}
	return w.typeNameOf(arg.Type) + "(" + strings.Join(parts, ", ") + ")", nil
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
		target, err := w.reference(k.Target)
		if err != nil {
			return err
		}
		value, err := w.expression(k.Value)
		if err != nil {
			return err
		}
		w.writeLine("%s = %s;", target, value)
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
		return w.writeReturn(k)

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

func (w *Writer) localName(h ir.LocalHandle) string {
	return w.names[nameKey{kind: nameKeyLocal, handle1: uint32(w.fnHandle), handle2: uint32(h)}]
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

// writeReturn writes a return statement. In main the value is stored to
// the stage outputs instead.
func (w *Writer) writeReturn(stmt ir.StmtReturn) error {
	if stmt.Value == nil {
		w.writeLine("return;")
		return nil
	}
	value, err := w.expression(*stmt.Value)
	if err != nil {
		return err
	}
	if !w.inEntryPoint {
		w.writeLine("return %s;", value)
		return nil
	}

	result := w.fn.Result
	if result.Binding != nil {
		if err := w.writeOutput(w.outputs[0], value); err != nil {
			return err
		}
		w.writeLine("return;")
		return nil
	}

	tmp := w.symbols.New("_tmp_return")
	decl, err := w.declaration(result.Type, tmp)
	if err != nil {
		return err
	}
	w.writeLine("%s = %s;", decl, value)
	for i, io := range w.outputs {
		member := tmp + "." + w.memberName(result.Type, uint32(i)) //nolint:gosec // G115: index is small
		if err := w.writeOutput(io, member); err != nil {
			return err
		}
	}
	w.writeLine("return;")
	return nil
}

func (w *Writer) writeOutput(io entryIO, value string) error {
	if b, ok := io.binding.(ir.BuiltinBinding); ok {
		line, err := builtinOutput(b.Builtin, value)
		if err != nil {
			return err
		}
		w.writeLine("%s;", line)
		return nil
	}
	w.writeLine("%s = %s;", io.name, value)
	return nil
}
