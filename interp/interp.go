// Package interp evaluates IR functions on the CPU. It models values,
// locals, pointers, control flow, user calls and storage and uniform buffers,
// and is used to check that IR rewrites preserve meaning.
//
// Expressions are evaluated where statements use them, once per use, exactly
// as the target emitters print them.
package interp

import (
	"github.com/pkg/errors"
	"k8s.io/klog/v2"

	"github.com/gogpu/crossgpu/ir"
)

// ErrStepLimit is returned when evaluation runs more statements than allowed.
var ErrStepLimit = errors.New("step limit exceeded")

// ErrDiscarded is returned when a fragment is discarded.
var ErrDiscarded = errors.New("fragment discarded")

const defaultStepLimit = 1 << 20

type buffer struct {
	words []uint32
	size  uint32
}

// Option configures a Machine.
type Option func(*Machine)

// WithBuffer binds a storage or uniform buffer holding words at binding.
// Its byte size is 4*len(words).
func WithBuffer(binding ir.ResourceBinding, words []uint32) Option {
	return func(m *Machine) {
		m.buffers[binding] = buffer{words: words, size: uint32(4 * len(words))}
	}
}

// WithBufferSize binds a zero-filled buffer of size bytes at binding.
func WithBufferSize(binding ir.ResourceBinding, size uint32) Option {
	return func(m *Machine) {
		m.buffers[binding] = buffer{size: size}
	}
}

// WithStepLimit bounds the number of statements executed per call.
func WithStepLimit(n int) Option {
	return func(m *Machine) {
		m.stepLimit = n
	}
}

// Machine holds the globals of one module and runs its functions.
type Machine struct {
	module    *ir.Module
	buffers   map[ir.ResourceBinding]buffer
	globals   []*any
	sizes     []uint32
	calls     map[string]int
	stepLimit int
	steps     int

	// OnCall, when set, observes every user function call.
	OnCall func(name string)
}

// New creates a machine for module. Storage and uniform globals are
// initialized from the buffers bound with WithBuffer and WithBufferSize;
// unbound buffers and all other globals start zeroed.
func New(module *ir.Module, opts ...Option) (*Machine, error) {
	m := &Machine{
		module:    module,
		buffers:   make(map[ir.ResourceBinding]buffer),
		calls:     make(map[string]int),
		stepLimit: defaultStepLimit,
	}
	for _, opt := range opts {
		opt(m)
	}

	m.globals = make([]*any, len(module.GlobalVariables))
	m.sizes = make([]uint32, len(module.GlobalVariables))
	for i, g := range module.GlobalVariables {
		buf, ok := m.bound(g)
		if !ok {
			_, buf.size = module.AlignmentAndSize(g.Type)
		}
		v, err := decode(module, g.Type, buf.words, 0, buf.size)
		if err != nil {
			return nil, errors.Wrapf(err, "global %q", g.Name)
		}
		m.globals[i] = &v
		m.sizes[i] = buf.size
	}
	return m, nil
}

func (m *Machine) bound(g ir.GlobalVariable) (buffer, bool) {
	if g.Binding == nil || (g.Space != ir.SpaceStorage && g.Space != ir.SpaceUniform) {
		return buffer{}, false
	}
	buf, ok := m.buffers[*g.Binding]
	return buf, ok
}

// Calls reports how many times the named user function has been called.
func (m *Machine) Calls(name string) int {
	return m.calls[name]
}

// Global returns the current value of the named global.
func (m *Machine) Global(name string) (any, error) {
	for i, g := range m.module.GlobalVariables {
		if g.Name == name {
			return clone(*m.globals[i]), nil
		}
	}
	return nil, errors.Errorf("no global named %q", name)
}

// Call runs the named function, or the function of the named entry point,
// with value arguments.
func (m *Machine) Call(name string, args ...any) (any, error) {
	fh, ok := m.lookup(name)
	if !ok {
		return nil, errors.Errorf("no function named %q", name)
	}
	klog.V(3).Infof("interp: call %s", name)
	m.steps = 0
	return m.call(fh, args)
}

func (m *Machine) lookup(name string) (ir.FunctionHandle, bool) {
	for i := range m.module.Functions {
		if m.module.Functions[i].Name == name {
			return ir.FunctionHandle(i), true
		}
	}
	for _, ep := range m.module.EntryPoints {
		if ep.Name == name {
			return ep.Function, true
		}
	}
	return 0, false
}

type flow uint8

const (
	flowNext flow = iota
	flowBreak
	flowContinue
	flowReturn
)

type frame struct {
	m      *Machine
	fn     *ir.Function
	args   []any
	locals []*any
	result any
}

func (m *Machine) call(fh ir.FunctionHandle, args []any) (any, error) {
	fn := &m.module.Functions[fh]
	if len(args) != len(fn.Arguments) {
		return nil, errors.Errorf("%s takes %d arguments, got %d", fn.Name, len(fn.Arguments), len(args))
	}
	m.calls[fn.Name]++
	if m.OnCall != nil {
		m.OnCall(fn.Name)
	}
	f := &frame{m: m, fn: fn, args: args, locals: make([]*any, len(fn.Locals))}
	if _, err := f.block(fn.Body); err != nil {
		return nil, errors.Wrapf(err, "in %s", fn.Name)
	}
	return f.result, nil
}

func (f *frame) block(b ir.Block) (flow, error) {
	for _, stmt := range b {
		fl, err := f.statement(stmt.Kind)
		if err != nil || fl != flowNext {
			return fl, err
		}
	}
	return flowNext, nil
}

//nolint:gocyclo,cyclop // one case per statement kind
func (f *frame) statement(kind ir.StatementKind) (flow, error) {
	f.m.steps++
	if f.m.steps > f.m.stepLimit {
		return flowNext, ErrStepLimit
	}

	switch s := kind.(type) {
	case ir.StmtBlock:
		return f.block(s.Block)
	case ir.StmtLet:
		v, err := f.value(s.Value)
		if err != nil {
			return flowNext, err
		}
		f.locals[s.Local] = &v
	case ir.StmtVar:
		var v any
		var err error
		if s.Init != nil {
			v, err = f.value(*s.Init)
		} else {
			v, err = decode(f.m.module, f.fn.Locals[s.Local].Type, nil, 0, 0)
		}
		if err != nil {
			return flowNext, err
		}
		f.locals[s.Local] = &v
	case ir.StmtAssign:
		p, err := f.ref(s.Target)
		if err != nil {
			return flowNext, err
		}
		v, err := f.value(s.Value)
		if err != nil {
			return flowNext, err
		}
		return flowNext, p.store(v)
	case ir.StmtIf:
		c, err := f.value(s.Condition)
		if err != nil {
			return flowNext, err
		}
		cond, err := asBool(c)
		if err != nil {
			return flowNext, err
		}
		if cond {
			return f.block(s.Accept)
		}
		return f.block(s.Reject)
	case ir.StmtSwitch:
		return f.switchStatement(s)
	case ir.StmtLoop:
		return f.loop(s)
	case ir.StmtBreak:
		return flowBreak, nil
	case ir.StmtContinue:
		return flowContinue, nil
	case ir.StmtReturn:
		if s.Value != nil {
			v, err := f.value(*s.Value)
			if err != nil {
				return flowNext, err
			}
			f.result = v
		}
		return flowReturn, nil
	case ir.StmtKill:
		return flowNext, ErrDiscarded
	case ir.StmtExpr:
		_, err := f.value(s.Expr)
		return flowNext, err
	default:
		return flowNext, errors.Errorf("unknown statement %T", kind)
	}
	return flowNext, nil
}

func (f *frame) switchStatement(s ir.StmtSwitch) (flow, error) {
	sel, err := f.value(s.Selector)
	if err != nil {
		return flowNext, err
	}
	var body ir.Block
	found := false
	for _, c := range s.Cases {
		switch v := c.Value.(type) {
		case ir.SwitchValueI32:
			found = sel == any(int32(v))
		case ir.SwitchValueU32:
			found = sel == any(uint32(v))
		}
		if found {
			body = c.Body
			break
		}
	}
	if !found {
		for _, c := range s.Cases {
			if _, ok := c.Value.(ir.SwitchValueDefault); ok {
				body = c.Body
			}
		}
	}
	fl, err := f.block(body)
	if fl == flowBreak {
		fl = flowNext
	}
	return fl, err
}

func (f *frame) loop(s ir.StmtLoop) (flow, error) {
	for {
		fl, err := f.block(s.Body)
		if err != nil {
			return flowNext, err
		}
		switch fl {
		case flowBreak:
			return flowNext, nil
		case flowReturn:
			return fl, nil
		}
		fl, err = f.block(s.Continuing)
		if err != nil || fl == flowReturn {
			return fl, err
		}
		if s.BreakIf != nil {
			c, err := f.value(*s.BreakIf)
			if err != nil {
				return flowNext, err
			}
			done, err := asBool(c)
			if err != nil {
				return flowNext, err
			}
			if done {
				return flowNext, nil
			}
		}
	}
}
