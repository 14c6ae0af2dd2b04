package ir

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOperandsEvaluationOrder(t *testing.T) {
	sel := ExprSelect{Condition: 3, Accept: 2, Reject: 1}
	var got []ExpressionHandle
	Operands(sel, func(h ExpressionHandle) { got = append(got, h) })
	assert.Equal(t, []ExpressionHandle{1, 2, 3}, got, "select evaluates reject, accept, condition")

	s, c, l := ExpressionHandle(5), ExpressionHandle(6), ExpressionHandle(7)
	tex := ExprTexture{Fun: TextureSampleLevel, Image: 4, Sampler: &s, Coordinate: &c, Level: &l}
	got = nil
	Operands(tex, func(h ExpressionHandle) { got = append(got, h) })
	assert.Equal(t, []ExpressionHandle{4, 5, 6, 7}, got)
}

func TestMapOperandsCopies(t *testing.T) {
	c := ExpressionHandle(1)
	tex := ExprTexture{Fun: TextureLoad, Image: 0, Coordinate: &c}
	mapped := MapOperands(tex, func(h ExpressionHandle) ExpressionHandle { return h + 10 }).(ExprTexture)

	assert.Equal(t, ExpressionHandle(10), mapped.Image)
	assert.Equal(t, ExpressionHandle(11), *mapped.Coordinate)
	assert.Equal(t, ExpressionHandle(1), c, "original operand untouched")
}

func TestHasSideEffects(t *testing.T) {
	m := &Module{}
	u32 := m.EnsureType(U32)

	callee := NewFunction(m, "bump")
	callee.Returns(u32, nil)
	one := callee.U32(1)
	callee.Return(&one)
	bump, err := callee.Finish()
	require.NoError(t, err)

	b := NewFunction(m, "f")
	pure := b.Binary(BinaryAdd, b.U32(1), b.U32(2))
	call := b.Binary(BinaryAdd, b.U32(1), b.Call(bump))
	barrier := b.Builtin(BuiltinWorkgroupBarrier)
	_, err = b.Finish()
	require.NoError(t, err)

	fn := &m.Functions[1]
	assert.False(t, HasSideEffects(fn, pure))
	assert.True(t, HasSideEffects(fn, call))
	assert.True(t, HasSideEffects(fn, barrier))
}

func TestCloneIsDeep(t *testing.T) {
	m, g := storageModule(t)
	b := NewFunction(m, "f")
	v := b.Var("v", m.EnsureType(U32), nil)
	b.If(b.Bool(true), func() {
		b.Assign(b.Local(v), b.Member(b.Global(g), 0))
	}, nil)
	_, err := b.Finish()
	require.NoError(t, err)

	c := m.Clone()
	require.Equal(t, m, c)

	c.Functions[0].Body[1].Kind.(StmtIf).Accept[0] = Statement{Kind: StmtKill{}}
	c.GlobalVariables[g].Binding.Group = 7
	c.Functions[0].Expressions[0] = Expression{Kind: Literal{Value: LiteralBool(false)}}

	assert.IsType(t, StmtAssign{}, m.Functions[0].Body[1].Kind.(StmtIf).Accept[0].Kind)
	assert.Equal(t, uint32(2), m.GlobalVariables[g].Binding.Group)
	assert.NotEqual(t, c.Functions[0].Expressions[0], m.Functions[0].Expressions[0])
}

func TestWalkExpressionsChildrenFirst(t *testing.T) {
	m := &Module{}
	b := NewFunction(m, "f")
	sum := b.Binary(BinaryAdd, b.U32(1), b.U32(2))
	b.Let("s", sum)
	_, err := b.Finish()
	require.NoError(t, err)

	var order []ExpressionHandle
	WalkExpressions(&m.Functions[0], func(h ExpressionHandle) { order = append(order, h) })
	assert.Equal(t, []ExpressionHandle{0, 1, sum}, order)
}

func TestReachableAndUsedGlobals(t *testing.T) {
	m, g := storageModule(t)
	u32 := m.EnsureType(U32)
	private := m.AddGlobal(GlobalVariable{Name: "unused", Space: SpacePrivate, Type: u32})

	leaf := NewFunction(m, "leaf")
	leaf.Returns(u32, nil)
	r := leaf.Member(leaf.Global(g), 0)
	leaf.Return(&r)
	leafH, err := leaf.Finish()
	require.NoError(t, err)

	mid := NewFunction(m, "mid")
	mid.Eval(mid.Call(leafH))
	midH, err := mid.Finish()
	require.NoError(t, err)

	other := NewFunction(m, "other")
	other.Assign(other.Global(private), other.U32(1))
	_, err = other.Finish()
	require.NoError(t, err)

	live := Reachable(m, midH)
	assert.Equal(t, []bool{true, true, false}, live)

	used := UsedGlobals(m, live)
	assert.True(t, used[g])
	assert.False(t, used[private])
}
