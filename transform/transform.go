// Package transform holds the IR-to-IR passes that legalize a module for a
// target shading language: pointer simplification, initializer promotion,
// short-circuit lowering, arrayLength lowering and integer division guards.
//
// Passes never modify the module they are given; they return a rewritten
// copy. A Manager sequences them and refreshes expression types between runs.
package transform

import (
	"fmt"

	"github.com/pkg/errors"
	"k8s.io/klog/v2"

	"github.com/gogpu/crossgpu/ir"
	"github.com/gogpu/crossgpu/symbol"
)

// Transform is one IR-to-IR pass.
type Transform interface {
	Name() string
	Run(module *ir.Module, ctx *Context) (*ir.Module, error)
}

// Severity grades a Diagnostic.
type Severity uint8

const (
	SeverityNote Severity = iota
	SeverityWarning
)

func (s Severity) String() string {
	if s == SeverityWarning {
		return "warning"
	}
	return "note"
}

// Diagnostic is a non-fatal finding reported by a pass.
type Diagnostic struct {
	Severity Severity
	Pass     string
	Function string
	Message  string
}

func (d Diagnostic) String() string {
	return fmt.Sprintf("%s: %s: in function %q: %s", d.Severity, d.Pass, d.Function, d.Message)
}

// Context is shared by all passes run over one translation unit.
type Context struct {
	// Symbols names every synthesized variable and global.
	Symbols *symbol.Allocator

	Diagnostics []Diagnostic
}

// NewContext creates a context whose allocator reserves every identifier
// already used by module.
func NewContext(module *ir.Module, opts ...symbol.Option) *Context {
	symbols := symbol.NewAllocator(opts...)
	ReserveNames(symbols, module)
	return &Context{Symbols: symbols}
}

// ReserveNames reserves every identifier declared by module.
func ReserveNames(symbols *symbol.Allocator, module *ir.Module) {
	for _, t := range module.Types {
		if t.Name != "" {
			symbols.Reserve(t.Name)
		}
		if st, ok := t.Inner.(ir.StructType); ok {
			for _, m := range st.Members {
				symbols.Reserve(m.Name)
			}
		}
	}
	for _, g := range module.GlobalVariables {
		symbols.Reserve(g.Name)
	}
	for i := range module.Functions {
		fn := &module.Functions[i]
		symbols.Reserve(fn.Name)
		for _, a := range fn.Arguments {
			symbols.Reserve(a.Name)
		}
		for _, l := range fn.Locals {
			symbols.Reserve(l.Name)
		}
	}
	for _, ep := range module.EntryPoints {
		symbols.Reserve(ep.Name)
	}
}

func (c *Context) warnf(pass, function, format string, args ...any) {
	d := Diagnostic{Severity: SeverityWarning, Pass: pass, Function: function, Message: fmt.Sprintf(format, args...)}
	klog.V(2).Info(d.String())
	c.Diagnostics = append(c.Diagnostics, d)
}

// Manager runs passes in order.
type Manager struct {
	passes []Transform
}

// NewManager creates a manager running passes in the given order.
func NewManager(passes ...Transform) *Manager {
	return &Manager{passes: passes}
}

// Add appends a pass.
func (m *Manager) Add(t Transform) {
	m.passes = append(m.passes, t)
}

// Names lists the passes in run order.
func (m *Manager) Names() []string {
	names := make([]string, len(m.passes))
	for i, p := range m.passes {
		names[i] = p.Name()
	}
	return names
}

// Run applies every pass, stopping at the first error. The input module is
// left untouched.
func (m *Manager) Run(module *ir.Module, ctx *Context) (*ir.Module, error) {
	if module == nil {
		return nil, errors.New("transform: nil module")
	}
	if ctx == nil {
		ctx = NewContext(module)
	}
	out := module
	for _, p := range m.passes {
		klog.V(3).Infof("transform: running %s", p.Name())
		next, err := p.Run(out, ctx)
		if err != nil {
			return nil, errors.Wrap(err, p.Name())
		}
		if err := ir.ResolveModule(next); err != nil {
			return nil, errors.Wrapf(err, "%s produced an ill-typed module", p.Name())
		}
		out = next
	}
	return out, nil
}

// eachFunction clones module and applies f to every function of the clone.
func eachFunction(module *ir.Module, f func(ed *editor) error) (*ir.Module, error) {
	out := module.Clone()
	for i := range out.Functions {
		ed := &editor{module: out, fn: &out.Functions[i]}
		if err := f(ed); err != nil {
			return nil, errors.Wrapf(err, "function %q", out.Functions[i].Name)
		}
	}
	return out, nil
}
