package gpu

import (
	"testing"

	"github.com/gogpu/gputypes"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestDevice(t *testing.T) *Device {
	t.Helper()
	return NewDevice(DeviceDescriptor{Label: t.Name()})
}

func requireKind(t *testing.T, err error, want ErrorKind) {
	t.Helper()
	require.Error(t, err)
	kind, ok := KindOf(err)
	require.True(t, ok, "want *gpu.Error, got %v", err)
	assert.Equal(t, want, kind, "error: %v", err)
}

const allTextureUsages = gputypes.TextureUsageTextureBinding | gputypes.TextureUsageStorageBinding |
	gputypes.TextureUsageRenderAttachment | gputypes.TextureUsageCopySrc | gputypes.TextureUsageCopyDst

func newTestTexture(t *testing.T, d *Device, label string) *Texture {
	t.Helper()
	tex, err := d.CreateTexture(TextureDescriptor{
		Label:     label,
		Size:      gputypes.Extent3D{Width: 16, Height: 16, DepthOrArrayLayers: 1},
		Dimension: gputypes.TextureDimension2D,
		Format:    gputypes.TextureFormatRGBA8Unorm,
		Usage:     allTextureUsages,
	})
	require.NoError(t, err)
	return tex
}

func TestValidateUsageScope(t *testing.T) {
	tests := []struct {
		name    string
		caps    []Capability
		wantErr bool
	}{
		{"read-only storage texture and sampled", []Capability{CapabilityStorageTextureRead, CapabilitySampled}, false},
		{"uniform and read-only storage", []Capability{CapabilityUniform, CapabilityStorageRead}, false},
		{"write-only storage texture and sampled", []Capability{CapabilityStorageTextureWrite, CapabilitySampled}, true},
		{"read-write and write-only storage texture", []Capability{CapabilityStorageTextureReadWrite, CapabilityStorageTextureWrite}, false},
		{"read-write storage texture and read-only storage texture", []Capability{CapabilityStorageTextureReadWrite, CapabilityStorageTextureRead}, true},
		{"storage buffer twice", []Capability{CapabilityStorage, CapabilityStorage}, false},
		{"storage and uniform", []Capability{CapabilityStorage, CapabilityUniform}, true},
		{"attachment and sampled", []Capability{CapabilityAttachment, CapabilitySampled}, true},
		{"attachment alone", []Capability{CapabilityAttachment}, false},
		{"attachment twice", []Capability{CapabilityAttachment, CapabilityAttachment}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			usages := make([]Usage, len(tt.caps))
			for i, c := range tt.caps {
				usages[i] = Usage{Resource: 7, Capability: c, Label: "res"}
			}
			err := ValidateUsageScope(usages)
			if !tt.wantErr {
				assert.NoError(t, err)
				return
			}
			requireKind(t, err, ErrAliasedWritableUsage)
			assert.True(t, errors.Is(err, ErrValidation))
			assert.Contains(t, err.Error(), `resource "res" (7)`)
		})
	}
}

func TestValidateUsageScopeIsPerResource(t *testing.T) {
	err := ValidateUsageScope([]Usage{
		{Resource: 1, Capability: CapabilityStorage},
		{Resource: 2, Capability: CapabilitySampled},
		{Resource: 3, Capability: CapabilityAttachment},
	})
	assert.NoError(t, err)
}

func TestCapabilityWritable(t *testing.T) {
	writable := map[Capability]bool{
		CapabilityUniform:                 false,
		CapabilityStorageRead:             false,
		CapabilityStorage:                 true,
		CapabilitySampled:                 false,
		CapabilityStorageTextureRead:      false,
		CapabilityStorageTextureWrite:     true,
		CapabilityStorageTextureReadWrite: true,
		CapabilityAttachment:              true,
	}
	for c, want := range writable {
		assert.Equal(t, want, c.Writable(), c.String())
	}
}

// storageAndSampledLayout binds one texture as a storage texture with the
// given access at binding 0 and as a sampled texture at binding 1.
func storageAndSampledLayout(t *testing.T, d *Device, access gputypes.StorageTextureAccess) *BindGroupLayout {
	t.Helper()
	layout, err := d.CreateBindGroupLayout("layout", []BindGroupLayoutEntry{
		{
			Binding:    0,
			Visibility: gputypes.ShaderStageFragment,
			StorageTexture: &gputypes.StorageTextureBindingLayout{
				Access:        access,
				Format:        gputypes.TextureFormatRGBA8Unorm,
				ViewDimension: gputypes.TextureViewDimension2D,
			},
		},
		{
			Binding:    1,
			Visibility: gputypes.ShaderStageFragment,
			Texture: &gputypes.TextureBindingLayout{
				SampleType:    gputypes.TextureSampleTypeFloat,
				ViewDimension: gputypes.TextureViewDimension2D,
			},
		},
	})
	require.NoError(t, err)
	return layout
}

func bindTwice(t *testing.T, d *Device, layout *BindGroupLayout, tex *Texture) *BindGroup {
	t.Helper()
	view, err := tex.CreateView(nil)
	require.NoError(t, err)
	g, err := d.CreateBindGroup(BindGroupDescriptor{
		Label:  "group",
		Layout: layout,
		Entries: []BindGroupEntry{
			{Binding: 0, TextureView: view},
			{Binding: 1, TextureView: view},
		},
	})
	require.NoError(t, err)
	return g
}

func renderWith(t *testing.T, d *Device, groups ...*BindGroup) (*CommandBuffer, error) {
	t.Helper()
	target := newTestTexture(t, d, "target")
	view, err := target.CreateView(nil)
	require.NoError(t, err)
	enc, err := d.CreateCommandEncoder("frame")
	require.NoError(t, err)
	pass := enc.BeginRenderPass(RenderPassDescriptor{
		Label: "main",
		ColorAttachments: []RenderPassColorAttachment{
			{View: view, LoadOp: gputypes.LoadOpClear, StoreOp: gputypes.StoreOpStore},
		},
	})
	for i, g := range groups {
		pass.SetBindGroup(uint32(i), g)
	}
	pass.Draw(3, 1)
	pass.End()
	return enc.Finish()
}

func TestRenderPassReadOnlyStorageAndSampled(t *testing.T) {
	d := newTestDevice(t)
	tex := newTestTexture(t, d, "image")
	g := bindTwice(t, d, storageAndSampledLayout(t, d, gputypes.StorageTextureAccessReadOnly), tex)

	_, err := renderWith(t, d, g)
	assert.NoError(t, err)
	assert.NoError(t, d.PopError())
}

func TestRenderPassWriteOnlyStorageAndSampledFailsAtFinish(t *testing.T) {
	d := newTestDevice(t)
	tex := newTestTexture(t, d, "image")
	// The bind group itself is valid; the conflict is in the pass.
	g := bindTwice(t, d, storageAndSampledLayout(t, d, gputypes.StorageTextureAccessWriteOnly), tex)

	_, err := renderWith(t, d, g)
	requireKind(t, err, ErrAliasedWritableUsage)
	assert.Contains(t, err.Error(), `render pass "main"`)
	assert.Equal(t, err, d.PopError())
}

func TestRenderPassReadWriteAndWriteOnlyStorage(t *testing.T) {
	d := newTestDevice(t)
	tex := newTestTexture(t, d, "image")
	layout, err := d.CreateBindGroupLayout("layout", []BindGroupLayoutEntry{
		{Binding: 0, StorageTexture: &gputypes.StorageTextureBindingLayout{
			Access: gputypes.StorageTextureAccessReadWrite, Format: gputypes.TextureFormatRGBA8Unorm, ViewDimension: gputypes.TextureViewDimension2D,
		}},
		{Binding: 1, StorageTexture: &gputypes.StorageTextureBindingLayout{
			Access: gputypes.StorageTextureAccessWriteOnly, Format: gputypes.TextureFormatRGBA8Unorm, ViewDimension: gputypes.TextureViewDimension2D,
		}},
	})
	require.NoError(t, err)
	g := bindTwice(t, d, layout, tex)

	_, err = renderWith(t, d, g)
	assert.NoError(t, err)
}

func TestRenderPassConflictAcrossBindGroups(t *testing.T) {
	d := newTestDevice(t)
	tex := newTestTexture(t, d, "image")
	view, err := tex.CreateView(nil)
	require.NoError(t, err)

	writeLayout, err := d.CreateBindGroupLayout("write", []BindGroupLayoutEntry{
		{Binding: 0, StorageTexture: &gputypes.StorageTextureBindingLayout{
			Access: gputypes.StorageTextureAccessWriteOnly, Format: gputypes.TextureFormatRGBA8Unorm, ViewDimension: gputypes.TextureViewDimension2D,
		}},
	})
	require.NoError(t, err)
	sampleLayout, err := d.CreateBindGroupLayout("sample", []BindGroupLayoutEntry{
		{Binding: 0, Texture: &gputypes.TextureBindingLayout{
			SampleType: gputypes.TextureSampleTypeFloat, ViewDimension: gputypes.TextureViewDimension2D,
		}},
	})
	require.NoError(t, err)
	write, err := d.CreateBindGroup(BindGroupDescriptor{Label: "write", Layout: writeLayout, Entries: []BindGroupEntry{{Binding: 0, TextureView: view}}})
	require.NoError(t, err)
	sample, err := d.CreateBindGroup(BindGroupDescriptor{Label: "sample", Layout: sampleLayout, Entries: []BindGroupEntry{{Binding: 0, TextureView: view}}})
	require.NoError(t, err)

	_, err = renderWith(t, d, write, sample)
	requireKind(t, err, ErrAliasedWritableUsage)
}

func TestRenderPassAttachmentAlsoSampled(t *testing.T) {
	d := newTestDevice(t)
	tex := newTestTexture(t, d, "target")
	view, err := tex.CreateView(nil)
	require.NoError(t, err)
	layout, err := d.CreateBindGroupLayout("sample", []BindGroupLayoutEntry{
		{Binding: 0, Texture: &gputypes.TextureBindingLayout{
			SampleType: gputypes.TextureSampleTypeFloat, ViewDimension: gputypes.TextureViewDimension2D,
		}},
	})
	require.NoError(t, err)
	g, err := d.CreateBindGroup(BindGroupDescriptor{Layout: layout, Entries: []BindGroupEntry{{Binding: 0, TextureView: view}}})
	require.NoError(t, err)

	enc, err := d.CreateCommandEncoder("frame")
	require.NoError(t, err)
	pass := enc.BeginRenderPass(RenderPassDescriptor{
		ColorAttachments: []RenderPassColorAttachment{{View: view, LoadOp: gputypes.LoadOpClear, StoreOp: gputypes.StoreOpStore}},
	})
	pass.SetBindGroup(0, g)
	pass.End()
	_, err = enc.Finish()
	requireKind(t, err, ErrAliasedWritableUsage)
}

func TestRenderPassSameAttachmentTwice(t *testing.T) {
	d := newTestDevice(t)
	view, err := newTestTexture(t, d, "target").CreateView(nil)
	require.NoError(t, err)
	attach := RenderPassColorAttachment{View: view, LoadOp: gputypes.LoadOpClear, StoreOp: gputypes.StoreOpStore}

	enc, err := d.CreateCommandEncoder("frame")
	require.NoError(t, err)
	enc.BeginRenderPass(RenderPassDescriptor{ColorAttachments: []RenderPassColorAttachment{attach, attach}}).End()
	_, err = enc.Finish()
	requireKind(t, err, ErrAliasedWritableUsage)
	assert.Contains(t, err.Error(), "2 attachments")
}

func TestStorageBufferAliasing(t *testing.T) {
	d := newTestDevice(t)
	buf, err := d.CreateBuffer(BufferDescriptor{
		Label: "data",
		Size:  256,
		Usage: gputypes.BufferUsageStorage | gputypes.BufferUsageUniform,
	})
	require.NoError(t, err)

	layoutOf := func(types ...gputypes.BufferBindingType) *BindGroupLayout {
		entries := make([]BindGroupLayoutEntry, len(types))
		for i, ty := range types {
			entries[i] = BindGroupLayoutEntry{Binding: uint32(i), Buffer: &gputypes.BufferBindingLayout{Type: ty}}
		}
		layout, err := d.CreateBindGroupLayout("buffers", entries)
		require.NoError(t, err)
		return layout
	}
	groupOf := func(layout *BindGroupLayout, n int) *BindGroup {
		entries := make([]BindGroupEntry, n)
		for i := range entries {
			entries[i] = BindGroupEntry{Binding: uint32(i), Buffer: buf}
		}
		g, err := d.CreateBindGroup(BindGroupDescriptor{Layout: layout, Entries: entries})
		require.NoError(t, err)
		return g
	}

	twoWrites := groupOf(layoutOf(gputypes.BufferBindingTypeStorage, gputypes.BufferBindingTypeStorage), 2)
	assert.NoError(t, ValidateUsageScope(twoWrites.Usages()))

	writeAndRead := groupOf(layoutOf(gputypes.BufferBindingTypeStorage, gputypes.BufferBindingTypeReadOnlyStorage), 2)
	requireKind(t, ValidateUsageScope(writeAndRead.Usages()), ErrAliasedWritableUsage)

	writeAndUniform := groupOf(layoutOf(gputypes.BufferBindingTypeStorage, gputypes.BufferBindingTypeUniform), 2)
	requireKind(t, ValidateUsageScope(writeAndUniform.Usages()), ErrAliasedWritableUsage)
}

func TestComputePassScopesPerDispatch(t *testing.T) {
	d := newTestDevice(t)
	buf, err := d.CreateBuffer(BufferDescriptor{Label: "data", Size: 64, Usage: gputypes.BufferUsageStorage})
	require.NoError(t, err)
	layout := func(ty gputypes.BufferBindingType) *BindGroupLayout {
		l, err := d.CreateBindGroupLayout("one", []BindGroupLayoutEntry{{Binding: 0, Buffer: &gputypes.BufferBindingLayout{Type: ty}}})
		require.NoError(t, err)
		return l
	}
	write, err := d.CreateBindGroup(BindGroupDescriptor{Label: "write", Layout: layout(gputypes.BufferBindingTypeStorage), Entries: []BindGroupEntry{{Binding: 0, Buffer: buf}}})
	require.NoError(t, err)
	read, err := d.CreateBindGroup(BindGroupDescriptor{Label: "read", Layout: layout(gputypes.BufferBindingTypeReadOnlyStorage), Entries: []BindGroupEntry{{Binding: 0, Buffer: buf}}})
	require.NoError(t, err)

	t.Run("separate dispatches", func(t *testing.T) {
		enc, err := d.CreateCommandEncoder("compute")
		require.NoError(t, err)
		pass := enc.BeginComputePass("sim")
		pass.SetBindGroup(0, write)
		pass.Dispatch(4, 1, 1)
		pass.SetBindGroup(0, read)
		pass.Dispatch(4, 1, 1)
		pass.End()
		_, err = enc.Finish()
		assert.NoError(t, err)
	})

	t.Run("same dispatch", func(t *testing.T) {
		enc, err := d.CreateCommandEncoder("compute")
		require.NoError(t, err)
		pass := enc.BeginComputePass("sim")
		pass.SetBindGroup(0, write)
		pass.SetBindGroup(1, read)
		pass.Dispatch(4, 1, 1)
		pass.End()
		_, err = enc.Finish()
		requireKind(t, err, ErrAliasedWritableUsage)
		assert.Contains(t, err.Error(), `compute pass "sim" dispatch (4, 1, 1)`)
	})
}
