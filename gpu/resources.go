package gpu

import (
	"sync"
	"weak"

	"github.com/gogpu/gputypes"

	"github.com/gogpu/crossgpu/ir"
)

// ResourceID identifies a buffer or texture. Views share their texture's ID.
type ResourceID uint64

// BufferDescriptor describes a buffer to create.
type BufferDescriptor struct {
	Label string
	Size  uint64
	Usage gputypes.BufferUsage
}

// Buffer is a linear allocation.
type Buffer struct {
	id     ResourceID
	device *Device
	desc   BufferDescriptor
}

// CreateBuffer creates a buffer.
func (d *Device) CreateBuffer(desc BufferDescriptor) (*Buffer, error) {
	if err := d.alive(); err != nil {
		return nil, err
	}
	return &Buffer{id: newResourceID(), device: d, desc: desc}, nil
}

// ID returns the buffer's identity.
func (b *Buffer) ID() ResourceID { return b.id }

// Label returns the buffer's debug name.
func (b *Buffer) Label() string { return b.desc.Label }

// Size returns the buffer's size in bytes.
func (b *Buffer) Size() uint64 { return b.desc.Size }

// Usage returns the usages the buffer was created with.
func (b *Buffer) Usage() gputypes.BufferUsage { return b.desc.Usage }

// TextureDescriptor describes a texture to create.
type TextureDescriptor struct {
	Label       string
	Size        gputypes.Extent3D
	Dimension   gputypes.TextureDimension
	Format      gputypes.TextureFormat
	Usage       gputypes.TextureUsage
	SampleCount uint32
}

// Texture is an image resource. Its contents are tracked as initialized or
// not, so a read of undefined contents can clear them first.
//
// A texture created from shared memory may only be used between the
// memory's BeginAccess and EndAccess. It holds the memory's contents
// strongly and the memory itself weakly: the memory may be dropped while an
// access is open, and the access is then ended through the texture.
type Texture struct {
	id     ResourceID
	device *Device
	desc   TextureDescriptor

	memory   weak.Pointer[SharedTextureMemory]
	contents *sharedContents

	mu          sync.Mutex
	initialized bool
	destroyed   bool
	lazyClears  int

	// Access state, written by the memory under its lock and read by the
	// queue under mu.
	accessOpen bool
	waits      []FenceWait
	lastSerial uint64
}

// CreateTexture creates a texture with undefined contents.
func (d *Device) CreateTexture(desc TextureDescriptor) (*Texture, error) {
	if err := d.alive(); err != nil {
		return nil, err
	}
	if desc.SampleCount == 0 {
		desc.SampleCount = 1
	}
	if desc.Size.Width == 0 || desc.Size.Height == 0 || desc.Size.DepthOrArrayLayers == 0 {
		return nil, d.record(newError(ErrDimensionMismatch, "texture %q has an empty size", desc.Label))
	}
	return &Texture{id: newResourceID(), device: d, desc: desc}, nil
}

// ID returns the texture's identity.
func (t *Texture) ID() ResourceID { return t.id }

// Label returns the texture's debug name.
func (t *Texture) Label() string { return t.desc.Label }

// Format returns the texel format.
func (t *Texture) Format() gputypes.TextureFormat { return t.desc.Format }

// Size returns the texture's extent.
func (t *Texture) Size() gputypes.Extent3D { return t.desc.Size }

// Usage returns the usages the texture was created with.
func (t *Texture) Usage() gputypes.TextureUsage { return t.desc.Usage }

// Memory returns the shared memory the texture was created from, or nil if
// it was not created from one or the memory has been dropped.
func (t *Texture) Memory() *SharedTextureMemory { return t.memory.Value() }

// Initialized reports whether the contents are defined.
func (t *Texture) Initialized() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.initialized
}

// LazyClears returns how many times the contents were zeroed before a read.
func (t *Texture) LazyClears() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.lazyClears
}

// Destroy releases the texture. Commands using it fail to submit.
func (t *Texture) Destroy() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.destroyed = true
}

// TextureViewDescriptor selects how a texture is viewed. A zero descriptor
// views the whole texture with its own format.
type TextureViewDescriptor struct {
	Label     string
	Format    gputypes.TextureFormat
	Dimension gputypes.TextureViewDimension
}

// TextureView is a texture as a binding or attachment sees it.
type TextureView struct {
	texture   *Texture
	label     string
	format    gputypes.TextureFormat
	dimension gputypes.TextureViewDimension
}

// CreateView creates a view. A nil descriptor inherits the texture's format
// and dimension.
func (t *Texture) CreateView(desc *TextureViewDescriptor) (*TextureView, error) {
	if err := t.device.alive(); err != nil {
		return nil, err
	}
	v := &TextureView{
		texture:   t,
		label:     t.desc.Label,
		format:    t.desc.Format,
		dimension: viewDimensionOf(t.desc.Dimension),
	}
	if desc == nil {
		return v, nil
	}
	if desc.Label != "" {
		v.label = desc.Label
	}
	if desc.Format != gputypes.TextureFormatUndefined {
		if desc.Format != t.desc.Format {
			return nil, t.device.record(newError(ErrFormatMismatch, "view %q of %q: format %v differs from the texture's %v",
				v.label, t.desc.Label, desc.Format, t.desc.Format))
		}
	}
	if desc.Dimension != v.dimension && desc.Dimension != gputypes.TextureViewDimensionUndefined {
		return nil, t.device.record(newError(ErrDimensionMismatch, "view %q of %q: dimension %v cannot view a %v texture",
			v.label, t.desc.Label, desc.Dimension, t.desc.Dimension))
	}
	return v, nil
}

// Texture returns the viewed texture.
func (v *TextureView) Texture() *Texture { return v.texture }

// Format returns the view's format.
func (v *TextureView) Format() gputypes.TextureFormat { return v.format }

// Dimension returns the view's dimension.
func (v *TextureView) Dimension() gputypes.TextureViewDimension { return v.dimension }

func viewDimensionOf(d gputypes.TextureDimension) gputypes.TextureViewDimension {
	switch d {
	case gputypes.TextureDimension1D:
		return gputypes.TextureViewDimension1D
	case gputypes.TextureDimension3D:
		return gputypes.TextureViewDimension3D
	default:
		return gputypes.TextureViewDimension2D
	}
}

// Sampler is a sampler state object. Samplers are never written, so usage
// scopes do not track them.
type Sampler struct {
	device *Device
	label  string
}

// CreateSampler creates a sampler.
func (d *Device) CreateSampler(label string) (*Sampler, error) {
	if err := d.alive(); err != nil {
		return nil, err
	}
	return &Sampler{device: d, label: label}, nil
}

// sampleTypeOf returns the sample type a format can be bound as, and false
// for depth formats.
func sampleTypeOf(format gputypes.TextureFormat) (gputypes.TextureSampleType, bool) {
	if isDepthFormat(format) {
		return gputypes.TextureSampleTypeDepth, false
	}
	switch ir.StorageFormatKind(format) {
	case ir.ScalarUint:
		return gputypes.TextureSampleTypeUint, true
	case ir.ScalarSint:
		return gputypes.TextureSampleTypeSint, true
	default:
		return gputypes.TextureSampleTypeFloat, true
	}
}

func isDepthFormat(format gputypes.TextureFormat) bool {
	switch format {
	case gputypes.TextureFormatDepth24PlusStencil8, gputypes.TextureFormatDepth32Float:
		return true
	}
	return false
}
