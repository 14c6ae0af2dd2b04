package ir

// Clone returns a deep copy of the module. Passes clone their input so the
// caller's module is never mutated.
func (m *Module) Clone() *Module {
	out := &Module{
		Types:           make([]Type, len(m.Types)),
		GlobalVariables: make([]GlobalVariable, len(m.GlobalVariables)),
		Functions:       make([]Function, len(m.Functions)),
		EntryPoints:     append([]EntryPoint(nil), m.EntryPoints...),
	}
	for i, t := range m.Types {
		out.Types[i] = Type{Name: t.Name, Inner: cloneTypeInner(t.Inner)}
	}
	for i, g := range m.GlobalVariables {
		if g.Binding != nil {
			b := *g.Binding
			g.Binding = &b
		}
		out.GlobalVariables[i] = g
	}
	for i := range m.Functions {
		out.Functions[i] = m.Functions[i].Clone()
	}
	return out
}

func cloneTypeInner(inner TypeInner) TypeInner {
	switch t := inner.(type) {
	case StructType:
		t.Members = append([]StructMember(nil), t.Members...)
		return t
	case ArrayType:
		if t.Size.Constant != nil {
			n := *t.Size.Constant
			t.Size.Constant = &n
		}
		return t
	default:
		return inner
	}
}

// Clone returns a deep copy of the function.
func (f *Function) Clone() Function {
	out := Function{
		Name:            f.Name,
		Arguments:       append([]FunctionArgument(nil), f.Arguments...),
		Locals:          append([]LocalVariable(nil), f.Locals...),
		Expressions:     make([]Expression, len(f.Expressions)),
		ExpressionTypes: append([]TypeResolution(nil), f.ExpressionTypes...),
		Body:            CloneBlock(f.Body),
	}
	if f.Result != nil {
		r := *f.Result
		out.Result = &r
	}
	for i, e := range f.Expressions {
		// MapOperands copies every slice and optional operand it touches.
		out.Expressions[i] = Expression{Kind: MapOperands(e.Kind, func(h ExpressionHandle) ExpressionHandle { return h })}
	}
	return out
}

// CloneBlock returns a deep copy of a statement block.
func CloneBlock(block Block) Block {
	if block == nil {
		return nil
	}
	out := make(Block, len(block))
	for i, stmt := range block {
		out[i] = Statement{Kind: cloneStatement(stmt.Kind)}
	}
	return out
}

func cloneHandle(h *ExpressionHandle) *ExpressionHandle {
	if h == nil {
		return nil
	}
	v := *h
	return &v
}

func cloneStatement(kind StatementKind) StatementKind {
	switch s := kind.(type) {
	case StmtBlock:
		return StmtBlock{Block: CloneBlock(s.Block)}
	case StmtVar:
		return StmtVar{Local: s.Local, Init: cloneHandle(s.Init)}
	case StmtIf:
		return StmtIf{Condition: s.Condition, Accept: CloneBlock(s.Accept), Reject: CloneBlock(s.Reject)}
	case StmtSwitch:
		cases := make([]SwitchCase, len(s.Cases))
		for i, c := range s.Cases {
			cases[i] = SwitchCase{Value: c.Value, Body: CloneBlock(c.Body)}
		}
		return StmtSwitch{Selector: s.Selector, Cases: cases}
	case StmtLoop:
		return StmtLoop{Body: CloneBlock(s.Body), Continuing: CloneBlock(s.Continuing), BreakIf: cloneHandle(s.BreakIf)}
	case StmtReturn:
		return StmtReturn{Value: cloneHandle(s.Value)}
	default:
		return kind
	}
}
