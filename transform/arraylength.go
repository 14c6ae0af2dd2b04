package transform

import (
	"sort"

	"github.com/pkg/errors"

	"github.com/gogpu/crossgpu/ir"
)

// ArrayLengthMode selects how arrayLength is computed.
type ArrayLengthMode uint8

const (
	// ArrayLengthNative leaves arrayLength for the target to implement.
	ArrayLengthNative ArrayLengthMode = iota
	// ArrayLengthFromBufferSize queries the byte size of the bound buffer.
	ArrayLengthFromBufferSize
	// ArrayLengthFromUniform reads the byte size from a uniform table
	// filled in by the host.
	ArrayLengthFromUniform
)

func (m ArrayLengthMode) String() string {
	switch m {
	case ArrayLengthFromBufferSize:
		return "buffer-size"
	case ArrayLengthFromUniform:
		return "uniform"
	default:
		return "native"
	}
}

// SizeSlot locates one buffer size in the uniform table: component Column
// of the vec4<u32> at index Row.
type SizeSlot struct {
	Row    uint32
	Column uint32
}

// ArrayLengthOptions configures the arrayLength lowering.
type ArrayLengthOptions struct {
	Mode ArrayLengthMode

	// UBO is where the size table is bound in uniform mode.
	UBO ir.ResourceBinding
	// Slots maps each storage buffer binding to its entry in the table.
	Slots map[ir.ResourceBinding]SizeSlot
}

// SlotsFor assigns consecutive table entries to the given storage buffer
// bindings, four to a row, in the order given.
func SlotsFor(bindings ...ir.ResourceBinding) map[ir.ResourceBinding]SizeSlot {
	slots := make(map[ir.ResourceBinding]SizeSlot, len(bindings))
	for i, b := range bindings {
		slots[b] = SizeSlot{Row: uint32(i / 4), Column: uint32(i % 4)}
	}
	return slots
}

// SizeTable lays out the uniform contents the host binds at UBO: one u32 per
// slot, rows of four, sized to fit every configured slot.
func (o ArrayLengthOptions) SizeTable(sizes map[ir.ResourceBinding]uint32) []uint32 {
	table := make([]uint32, o.rows()*4)
	for b, slot := range o.Slots {
		table[slot.Row*4+slot.Column] = sizes[b]
	}
	return table
}

func (o ArrayLengthOptions) rows() uint32 {
	var rows uint32
	for _, slot := range o.Slots {
		if slot.Row+1 > rows {
			rows = slot.Row + 1
		}
	}
	return rows
}

// ArrayLength replaces arrayLength(&buffer.array) with
// (size - offset) / stride, where size is the byte size of the buffer, offset
// is the byte offset of the runtime-sized array in the buffer and stride is
// its element stride.
type ArrayLength struct {
	Options ArrayLengthOptions
}

// Name implements Transform.
func (ArrayLength) Name() string { return "array_length" }

// Run implements Transform.
func (p ArrayLength) Run(module *ir.Module, ctx *Context) (*ir.Module, error) {
	if p.Options.Mode == ArrayLengthNative {
		return module.Clone(), nil
	}
	if p.Options.Mode == ArrayLengthFromUniform {
		for _, slot := range p.Options.Slots {
			if slot.Column > 3 {
				return nil, errors.Errorf("size slot column %d out of range", slot.Column)
			}
		}
	}

	out := module.Clone()
	l := &lengthLowering{options: p.Options, ctx: ctx, module: out}
	for i := range out.Functions {
		ed := &editor{module: out, fn: &out.Functions[i]}
		if err := l.function(ed); err != nil {
			return nil, errors.Wrapf(err, "function %q", ed.fn.Name)
		}
	}
	return out, nil
}

type lengthLowering struct {
	options ArrayLengthOptions
	ctx     *Context
	module  *ir.Module

	table *ir.GlobalVariableHandle
}

func (l *lengthLowering) function(ed *editor) error {
	var calls []ir.ExpressionHandle
	seen := make(map[ir.ExpressionHandle]bool)
	ir.WalkExpressions(ed.fn, func(h ir.ExpressionHandle) {
		if b, ok := ed.kind(h).(ir.ExprBuiltin); ok && b.Fun == ir.BuiltinArrayLength && !seen[h] {
			seen[h] = true
			calls = append(calls, h)
		}
	})
	// Handles are visited in use order; sort for a stable arena layout.
	sort.Slice(calls, func(i, j int) bool { return calls[i] < calls[j] })

	for _, h := range calls {
		arg := ed.kind(h).(ir.ExprBuiltin).Args[0]
		g, offset, stride, err := runtimeArray(ed, arg)
		if err != nil {
			return err
		}
		size, err := l.size(ed, g)
		if err != nil {
			return err
		}
		if offset != 0 {
			size = ed.add(ir.ExprBinary{Op: ir.BinarySubtract, Left: size, Right: ed.add(ir.Literal{Value: ir.LiteralU32(offset)})})
		}
		ed.set(h, ir.ExprBinary{Op: ir.BinaryDivide, Left: size, Right: ed.add(ir.Literal{Value: ir.LiteralU32(stride)})})
	}
	return ed.err
}

// size returns an expression for the byte size of the buffer bound to g.
func (l *lengthLowering) size(ed *editor, g ir.GlobalVariableHandle) (ir.ExpressionHandle, error) {
	if l.options.Mode == ArrayLengthFromBufferSize {
		return ed.add(ir.ExprBufferSize{Variable: g}), nil
	}

	global := l.module.GlobalVariables[g]
	if global.Binding == nil {
		return 0, errors.Errorf("arrayLength of %q: buffer has no binding", global.Name)
	}
	if len(l.options.Slots) == 0 {
		return 0, errors.Errorf("arrayLength of %q: no array length uniform table is configured", global.Name)
	}
	slot, ok := l.options.Slots[*global.Binding]
	if !ok {
		return 0, errors.Errorf("arrayLength of %q: binding (%d, %d) has no size slot",
			global.Name, global.Binding.Group, global.Binding.Binding)
	}

	table := l.sizeTable()
	row := ed.add(ir.ExprAccessIndex{Base: ed.add(ir.ExprGlobalVariable{Variable: table}), Index: slot.Row})
	return ed.add(ir.ExprAccessIndex{Base: row, Index: slot.Column}), nil
}

// sizeTable declares the uniform size table on first use.
func (l *lengthLowering) sizeTable() ir.GlobalVariableHandle {
	if l.table != nil {
		return *l.table
	}
	rows := l.options.rows()
	vec := l.module.EnsureType(ir.VectorType{Size: ir.Vec4, Scalar: ir.U32})
	binding := l.options.UBO
	h := l.module.AddGlobal(ir.GlobalVariable{
		Name:    l.ctx.Symbols.New("tint_array_lengths"),
		Space:   ir.SpaceUniform,
		Binding: &binding,
		Type:    l.module.ArrayOf(vec, &rows),
	})
	l.table = &h
	return h
}

// runtimeArray resolves the argument of arrayLength to the buffer holding
// the array, the array's byte offset in the buffer and its stride.
func runtimeArray(ed *editor, ptr ir.ExpressionHandle) (g ir.GlobalVariableHandle, offset, stride uint32, err error) {
	addr, ok := ed.kind(ptr).(ir.ExprAddressOf)
	if !ok {
		return 0, 0, 0, errors.New("arrayLength argument is not the address of a buffer member")
	}
	ref := addr.Expr
	if d, ok := ed.kind(ref).(ir.ExprDeref); ok {
		if a, ok := ed.kind(d.Pointer).(ir.ExprAddressOf); ok {
			ref = a.Expr
		}
	}

	switch e := ed.kind(ref).(type) {
	case ir.ExprGlobalVariable:
		arr, ok := ed.module.TypeInner(ed.module.GlobalVariables[e.Variable].Type).(ir.ArrayType)
		if !ok || !arr.Size.IsRuntime() {
			return 0, 0, 0, errors.Errorf("global %q is not a runtime-sized array", ed.module.GlobalVariables[e.Variable].Name)
		}
		return e.Variable, 0, arr.Stride, nil
	case ir.ExprAccessIndex:
		base, ok := ed.kind(e.Base).(ir.ExprGlobalVariable)
		if !ok {
			break
		}
		global := ed.module.GlobalVariables[base.Variable]
		st, ok := ed.module.TypeInner(global.Type).(ir.StructType)
		if !ok || int(e.Index) >= len(st.Members) {
			break
		}
		member := st.Members[e.Index]
		arr, ok := ed.module.TypeInner(member.Type).(ir.ArrayType)
		if !ok || !arr.Size.IsRuntime() {
			return 0, 0, 0, errors.Errorf("member %q of %q is not a runtime-sized array", member.Name, global.Name)
		}
		return base.Variable, member.Offset, arr.Stride, nil
	}
	return 0, 0, 0, errors.New("arrayLength argument does not name a buffer member statically")
}
