package msl

import (
	"fmt"

	"github.com/gogpu/crossgpu/ir"
)

// slotClass is the Metal argument table a resource is bound through.
type slotClass uint8

const (
	slotBuffer slotClass = iota
	slotTexture
	slotSampler
)

// String returns the attribute spelling of the class.
func (c slotClass) String() string {
	switch c {
	case slotTexture:
		return "texture"
	case slotSampler:
		return "sampler"
	default:
		return "buffer"
	}
}

// slotAllocator hands out slots to resources missing from the binding map.
// Each class counts up from one past the highest slot the map uses.
type slotAllocator struct {
	options *Options
	next    [3]int
}

func newSlotAllocator(options *Options) *slotAllocator {
	a := &slotAllocator{options: options}
	for _, target := range options.BindingMap {
		for class, slot := range []*uint8{target.Buffer, target.Texture, target.Sampler} {
			if slot != nil && int(*slot)+1 > a.next[class] {
				a.next[class] = int(*slot) + 1
			}
		}
	}
	return a
}

// mapped returns the slot the binding map gives binding in class.
func (a *slotAllocator) mapped(binding ir.ResourceBinding, class slotClass) (uint8, bool) {
	target, ok := a.options.BindingMap[binding]
	if !ok {
		return 0, false
	}
	var slot *uint8
	switch class {
	case slotBuffer:
		slot = target.Buffer
	case slotTexture:
		slot = target.Texture
	case slotSampler:
		slot = target.Sampler
	}
	if slot == nil {
		return 0, false
	}
	return *slot, true
}

// slotClassOf classifies a global by the table it is bound through.
func (w *Writer) slotClassOf(g *ir.GlobalVariable) slotClass {
	if g.Space != ir.SpaceHandle {
		return slotBuffer
	}
	if _, ok := w.module.TypeInner(g.Type).(ir.SamplerType); ok {
		return slotSampler
	}
	return slotTexture
}

// resourceAttribute returns the slot attribute of a resource global, such
// as "buffer(0)" or "texture(2)".
func (w *Writer) resourceAttribute(slots *slotAllocator, h ir.GlobalVariableHandle) (string, error) {
	g := &w.module.GlobalVariables[h]
	if g.Binding == nil {
		return "", newError(ErrInvalidModule, "resource %q has no binding", g.Name)
	}
	class := w.slotClassOf(g)
	if slot, ok := slots.mapped(*g.Binding, class); ok {
		return fmt.Sprintf("%s(%d)", class, slot), nil
	}
	if !w.options.FakeMissingBindings {
		return "", newError(ErrMissingBinding, "no Metal %s slot for @group(%d) @binding(%d)", class, g.Binding.Group, g.Binding.Binding)
	}
	slot := slots.next[class]
	if slot > 255 {
		return "", newError(ErrMissingBinding, "out of Metal %s slots for @group(%d) @binding(%d)", class, g.Binding.Group, g.Binding.Binding)
	}
	slots.next[class]++
	return fmt.Sprintf("%s(%d)", class, slot), nil
}
