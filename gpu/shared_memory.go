package gpu

import (
	"sync"
	"weak"

	"github.com/gogpu/gputypes"
	"github.com/google/uuid"
	"k8s.io/klog/v2"
)

// SharedTextureMemoryProperties describes what a shared memory can back.
type SharedTextureMemoryProperties struct {
	Size   gputypes.Extent3D
	Format gputypes.TextureFormat
	Usage  gputypes.TextureUsage
}

// SharedMemoryHandle is the platform's handle to shareable memory. The
// platform layer implements it; this package only asks what it holds.
type SharedMemoryHandle interface {
	Properties() SharedTextureMemoryProperties
}

// SoftwareMemoryHandle is an in-process SharedMemoryHandle.
type SoftwareMemoryHandle struct {
	Props SharedTextureMemoryProperties
}

// Properties implements SharedMemoryHandle.
func (h *SoftwareMemoryHandle) Properties() SharedTextureMemoryProperties { return h.Props }

// SharedTextureMemoryDescriptor describes memory to import.
type SharedTextureMemoryDescriptor struct {
	Label  string
	Handle SharedMemoryHandle
}

// BeginAccessDescriptor opens an access.
type BeginAccessDescriptor struct {
	// Initialized states whether the memory holds defined contents.
	Initialized bool

	// Fences must reach their values before the device uses the texture.
	Fences []FenceWait
}

// EndAccessState is what an access leaves for the next user.
type EndAccessState struct {
	// Initialized is false when the access left the contents undefined.
	Initialized bool

	// Fences reach their values once the access's work has completed.
	Fences []FenceWait
}

// SharedTextureMemory is one device's import of memory other devices or
// APIs may also use. It hands out any number of textures, and at most one
// of them holds an open access at a time.
type SharedTextureMemory struct {
	id       uuid.UUID
	props    SharedTextureMemoryProperties
	contents *sharedContents
}

// sharedContents is the access state of one import. The memory and every
// texture created from it hold it, so an access opened through the memory
// can be ended after the memory is gone.
type sharedContents struct {
	label  string
	device *Device

	// mu guards the access slot for the check-and-flip only.
	mu        sync.Mutex
	open      *Texture
	destroyed bool
}

// ImportSharedTextureMemory imports platform memory into d.
func (d *Device) ImportSharedTextureMemory(desc SharedTextureMemoryDescriptor) (*SharedTextureMemory, error) {
	if err := d.alive(); err != nil {
		return nil, err
	}
	if desc.Handle == nil {
		return nil, d.record(newError(ErrMissingDescriptor, "shared texture memory %q: no type descriptor", desc.Label))
	}
	m := &SharedTextureMemory{
		id:       uuid.New(),
		props:    desc.Handle.Properties(),
		contents: &sharedContents{label: desc.Label, device: d},
	}
	klog.V(2).Infof("gpu: imported shared texture memory %q (%s) on device %q", desc.Label, m.id, d.label)
	return m, nil
}

// ID returns the memory's identity.
func (m *SharedTextureMemory) ID() uuid.UUID { return m.id }

// Properties returns what the memory can back.
func (m *SharedTextureMemory) Properties() SharedTextureMemoryProperties { return m.props }

// Destroy drops the memory. No new textures or accesses can be made, but
// an open access stays valid and can still be ended.
func (m *SharedTextureMemory) Destroy() {
	c := m.contents
	c.mu.Lock()
	defer c.mu.Unlock()
	c.destroyed = true
}

// IsOpen reports whether an access is open.
func (m *SharedTextureMemory) IsOpen() bool {
	c := m.contents
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.open != nil
}

// CreateTexture creates a texture backed by the memory. A nil descriptor
// takes the memory's properties. A descriptor must match the memory's size
// and format and ask for no usage the memory lacks.
func (m *SharedTextureMemory) CreateTexture(desc *TextureDescriptor) (*Texture, error) {
	c := m.contents
	d := c.device
	if err := d.alive(); err != nil {
		return nil, err
	}
	c.mu.Lock()
	destroyed := c.destroyed
	c.mu.Unlock()
	if destroyed {
		return nil, d.record(newError(ErrDestroyed, "shared texture memory %q is destroyed", c.label))
	}

	td := TextureDescriptor{
		Label:       c.label,
		Size:        m.props.Size,
		Dimension:   gputypes.TextureDimension2D,
		Format:      m.props.Format,
		Usage:       m.props.Usage,
		SampleCount: 1,
	}
	if desc != nil {
		if desc.Format != m.props.Format {
			return nil, d.record(newError(ErrFormatMismatch, "texture %q: format %v, memory %q holds %v", desc.Label, desc.Format, c.label, m.props.Format))
		}
		if desc.Size != m.props.Size {
			return nil, d.record(newError(ErrDimensionMismatch, "texture %q: size %v, memory %q is %v", desc.Label, desc.Size, c.label, m.props.Size))
		}
		if desc.Usage&^m.props.Usage != 0 {
			return nil, d.record(newError(ErrUsageNotSubset, "texture %q: usage %v is not a subset of memory %q usage %v", desc.Label, desc.Usage, c.label, m.props.Usage))
		}
		td = *desc
		if td.SampleCount == 0 {
			td.SampleCount = 1
		}
	}

	t, err := d.CreateTexture(td)
	if err != nil {
		return nil, err
	}
	t.memory = weak.Make(m)
	t.contents = c
	return t, nil
}

// BeginAccess opens an access for t. It fails, leaving the memory as it
// was, if an access is already open, if t was not created from m, or if a
// fence belongs to another device.
func (m *SharedTextureMemory) BeginAccess(t *Texture, desc BeginAccessDescriptor) error {
	c := m.contents
	d := c.device
	if err := d.alive(); err != nil {
		return err
	}
	if t == nil || t.contents != c {
		return d.record(newError(ErrForeignObject, "BeginAccess on memory %q: texture was not created from it", c.label))
	}
	for i, f := range desc.Fences {
		if f.Fence == nil || f.Fence.device != d {
			return d.record(newError(ErrForeignObject, "BeginAccess on memory %q: fence %d belongs to another device; import it first", c.label, i))
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.destroyed {
		return d.record(newError(ErrDestroyed, "BeginAccess on memory %q: memory is destroyed", c.label))
	}
	if c.open != nil {
		return d.record(newError(ErrAccessAlreadyOpen, "BeginAccess on memory %q: texture %q already holds the access", c.label, c.open.desc.Label))
	}
	c.open = t

	t.mu.Lock()
	t.accessOpen = true
	t.initialized = desc.Initialized
	t.waits = append([]FenceWait(nil), desc.Fences...)
	t.lastSerial = 0
	t.mu.Unlock()

	klog.V(2).Infof("gpu: memory %q: access opened for %q (initialized=%t, %d fences)", c.label, t.desc.Label, desc.Initialized, len(desc.Fences))
	return nil
}

// EndAccess closes t's access. The returned fences reach their values when
// the work submitted against t during the access has completed. On a lost
// device the fences are already signaled, so a consumer never waits on
// work that will not finish.
func (m *SharedTextureMemory) EndAccess(t *Texture) (EndAccessState, error) {
	return m.contents.endAccess(t)
}

// EndAccess closes the texture's access like SharedTextureMemory.EndAccess.
// It works after the memory the texture was created from has been dropped.
func (t *Texture) EndAccess() (EndAccessState, error) {
	if t.contents == nil {
		return EndAccessState{}, t.device.record(newError(ErrForeignObject, "EndAccess on texture %q: not created from shared memory", t.desc.Label))
	}
	return t.contents.endAccess(t)
}

func (c *sharedContents) endAccess(t *Texture) (EndAccessState, error) {
	d := c.device
	c.mu.Lock()
	defer c.mu.Unlock()
	switch {
	case t == nil:
		return EndAccessState{}, d.record(newError(ErrForeignObject, "EndAccess on memory %q: nil texture", c.label))
	case c.open == nil:
		return EndAccessState{}, d.record(newError(ErrAccessNotOpen, "EndAccess on memory %q: no access is open", c.label))
	case c.open != t:
		return EndAccessState{}, d.record(newError(ErrAccessWrongTexture, "EndAccess on memory %q: access is held by %q, not %q",
			c.label, c.open.desc.Label, t.desc.Label))
	}
	c.open = nil

	t.mu.Lock()
	t.accessOpen = false
	t.waits = nil
	state := EndAccessState{Initialized: t.initialized}
	serial := t.lastSerial
	t.mu.Unlock()

	if d.IsLost() {
		state.Fences = []FenceWait{signaledFence(d)}
	} else {
		q := d.queue
		if serial == 0 {
			serial = q.serial.Load()
		}
		state.Fences = []FenceWait{{Fence: q.fence, Value: serial}}
	}
	klog.V(2).Infof("gpu: memory %q: access closed for %q (initialized=%t)", c.label, t.desc.Label, state.Initialized)
	return state, nil
}
