package gpu

import (
	"sort"

	"github.com/gogpu/gputypes"
)

// BindGroupLayoutEntry declares one binding of a bind group layout. Exactly
// one of Buffer, Sampler, Texture and StorageTexture is set.
type BindGroupLayoutEntry struct {
	Binding        uint32
	Visibility     gputypes.ShaderStage
	Buffer         *gputypes.BufferBindingLayout
	Sampler        *gputypes.SamplerBindingLayout
	Texture        *gputypes.TextureBindingLayout
	StorageTexture *gputypes.StorageTextureBindingLayout
}

// BindGroupLayout is a validated, binding-ordered set of layout entries.
type BindGroupLayout struct {
	device  *Device
	label   string
	entries []BindGroupLayoutEntry
}

// CreateBindGroupLayout validates and creates a layout.
func (d *Device) CreateBindGroupLayout(label string, entries []BindGroupLayoutEntry) (*BindGroupLayout, error) {
	if err := d.alive(); err != nil {
		return nil, err
	}
	sorted := append([]BindGroupLayoutEntry(nil), entries...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Binding < sorted[j].Binding })
	for i, e := range sorted {
		if i > 0 && sorted[i-1].Binding == e.Binding {
			return nil, d.record(newError(ErrBindingMismatch, "layout %q declares binding %d twice", label, e.Binding))
		}
		if n := e.kinds(); n != 1 {
			return nil, d.record(newError(ErrBindingMismatch, "layout %q binding %d declares %d resource kinds, want 1", label, e.Binding, n))
		}
	}
	return &BindGroupLayout{device: d, label: label, entries: sorted}, nil
}

func (e *BindGroupLayoutEntry) kinds() int {
	n := 0
	if e.Buffer != nil {
		n++
	}
	if e.Sampler != nil {
		n++
	}
	if e.Texture != nil {
		n++
	}
	if e.StorageTexture != nil {
		n++
	}
	return n
}

// capability returns what binding a resource through e asks of it.
func (e *BindGroupLayoutEntry) capability() (Capability, bool) {
	switch {
	case e.Buffer != nil:
		switch e.Buffer.Type {
		case gputypes.BufferBindingTypeStorage:
			return CapabilityStorage, true
		case gputypes.BufferBindingTypeReadOnlyStorage:
			return CapabilityStorageRead, true
		default:
			return CapabilityUniform, true
		}
	case e.Texture != nil:
		return CapabilitySampled, true
	case e.StorageTexture != nil:
		switch e.StorageTexture.Access {
		case gputypes.StorageTextureAccessReadOnly:
			return CapabilityStorageTextureRead, true
		case gputypes.StorageTextureAccessReadWrite:
			return CapabilityStorageTextureReadWrite, true
		default:
			return CapabilityStorageTextureWrite, true
		}
	}
	return 0, false
}

// BindGroupEntry binds one resource. Exactly one of Buffer, Sampler and
// TextureView is set, matching the layout entry of the same binding.
type BindGroupEntry struct {
	Binding     uint32
	Buffer      *Buffer
	Sampler     *Sampler
	TextureView *TextureView
}

// BindGroupDescriptor describes a bind group to create.
type BindGroupDescriptor struct {
	Label   string
	Layout  *BindGroupLayout
	Entries []BindGroupEntry
}

// BindGroup is a validated set of resources and what each is bound as.
type BindGroup struct {
	label  string
	usages []Usage

	// textures are the bound textures with their capabilities, in binding order.
	textures []boundTexture
}

type boundTexture struct {
	texture    *Texture
	capability Capability
}

// Usages returns the resource usages binding the group adds to a scope.
func (g *BindGroup) Usages() []Usage {
	return append([]Usage(nil), g.usages...)
}

// CreateBindGroup checks every entry against its layout entry: the resource
// kind, the usages the resource was created with, and for textures the
// format, view dimension and sample type. A failure is recorded in the
// device's error list and returned.
func (d *Device) CreateBindGroup(desc BindGroupDescriptor) (*BindGroup, error) {
	if err := d.alive(); err != nil {
		return nil, err
	}
	g, err := d.createBindGroup(desc)
	if err != nil {
		return nil, d.record(err)
	}
	return g, nil
}

func (d *Device) createBindGroup(desc BindGroupDescriptor) (*BindGroup, error) {
	if desc.Layout == nil {
		return nil, newError(ErrBindingMismatch, "bind group %q has no layout", desc.Label)
	}
	byBinding := make(map[uint32]BindGroupEntry, len(desc.Entries))
	for _, e := range desc.Entries {
		if _, dup := byBinding[e.Binding]; dup {
			return nil, newError(ErrBindingMismatch, "bind group %q sets binding %d twice", desc.Label, e.Binding)
		}
		byBinding[e.Binding] = e
	}
	if len(byBinding) != len(desc.Layout.entries) {
		return nil, newError(ErrBindingMismatch, "bind group %q has %d entries, layout %q has %d",
			desc.Label, len(byBinding), desc.Layout.label, len(desc.Layout.entries))
	}

	g := &BindGroup{label: desc.Label}
	for i := range desc.Layout.entries {
		layout := &desc.Layout.entries[i]
		entry, ok := byBinding[layout.Binding]
		if !ok {
			return nil, newError(ErrBindingMismatch, "bind group %q is missing binding %d", desc.Label, layout.Binding)
		}
		if err := g.bind(desc.Label, layout, entry); err != nil {
			return nil, err
		}
	}
	return g, nil
}

//nolint:gocyclo,cyclop // one check per binding kind
func (g *BindGroup) bind(label string, layout *BindGroupLayoutEntry, entry BindGroupEntry) error {
	capability, tracked := layout.capability()
	switch {
	case layout.Buffer != nil:
		buf := entry.Buffer
		if buf == nil {
			return newError(ErrBindingMismatch, "bind group %q binding %d needs a buffer", label, layout.Binding)
		}
		need := gputypes.BufferUsageStorage
		if layout.Buffer.Type == gputypes.BufferBindingTypeUniform {
			need = gputypes.BufferUsageUniform
		}
		if buf.desc.Usage&need == 0 {
			return newError(ErrUsageNotSubset, "bind group %q binding %d: buffer %q lacks usage %v", label, layout.Binding, buf.desc.Label, need)
		}
		if buf.desc.Size < layout.Buffer.MinBindingSize {
			return newError(ErrBindingMismatch, "bind group %q binding %d: buffer %q is %d bytes, binding needs %d",
				label, layout.Binding, buf.desc.Label, buf.desc.Size, layout.Buffer.MinBindingSize)
		}
		g.usages = append(g.usages, Usage{Resource: buf.id, Capability: capability, Label: buf.desc.Label})
		return nil

	case layout.Sampler != nil:
		if entry.Sampler == nil {
			return newError(ErrBindingMismatch, "bind group %q binding %d needs a sampler", label, layout.Binding)
		}
		return nil
	}

	view := entry.TextureView
	if view == nil {
		return newError(ErrBindingMismatch, "bind group %q binding %d needs a texture view", label, layout.Binding)
	}
	tex := view.texture
	switch {
	case layout.Texture != nil:
		if tex.desc.Usage&gputypes.TextureUsageTextureBinding == 0 {
			return newError(ErrUsageNotSubset, "bind group %q binding %d: texture %q lacks TextureBinding usage", label, layout.Binding, tex.desc.Label)
		}
		if view.dimension != layout.Texture.ViewDimension {
			return newError(ErrDimensionMismatch, "bind group %q binding %d: view dimension %v, binding declares %v",
				label, layout.Binding, view.dimension, layout.Texture.ViewDimension)
		}
		sampleType, _ := sampleTypeOf(view.format)
		if sampleType != layout.Texture.SampleType {
			return newError(ErrSampleTypeMismatch, "bind group %q binding %d: format %v samples as %v, binding declares %v",
				label, layout.Binding, view.format, sampleType, layout.Texture.SampleType)
		}
	case layout.StorageTexture != nil:
		if tex.desc.Usage&gputypes.TextureUsageStorageBinding == 0 {
			return newError(ErrUsageNotSubset, "bind group %q binding %d: texture %q lacks StorageBinding usage", label, layout.Binding, tex.desc.Label)
		}
		if view.format != layout.StorageTexture.Format {
			return newError(ErrFormatMismatch, "bind group %q binding %d: view format %v, binding declares %v",
				label, layout.Binding, view.format, layout.StorageTexture.Format)
		}
		if view.dimension != layout.StorageTexture.ViewDimension {
			return newError(ErrDimensionMismatch, "bind group %q binding %d: view dimension %v, binding declares %v",
				label, layout.Binding, view.dimension, layout.StorageTexture.ViewDimension)
		}
		if tex.desc.SampleCount > 1 {
			return newError(ErrUsageNotSubset, "bind group %q binding %d: multisampled texture %q cannot be a storage texture", label, layout.Binding, tex.desc.Label)
		}
	}
	if tracked {
		g.usages = append(g.usages, Usage{Resource: tex.id, Capability: capability, Label: tex.desc.Label})
		g.textures = append(g.textures, boundTexture{texture: tex, capability: capability})
	}
	return nil
}
