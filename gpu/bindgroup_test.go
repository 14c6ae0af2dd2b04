package gpu

import (
	"testing"

	"github.com/gogpu/gputypes"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateBindGroupLayoutRejects(t *testing.T) {
	d := newTestDevice(t)
	uniform := &gputypes.BufferBindingLayout{Type: gputypes.BufferBindingTypeUniform}

	_, err := d.CreateBindGroupLayout("dup", []BindGroupLayoutEntry{
		{Binding: 3, Buffer: uniform},
		{Binding: 3, Buffer: uniform},
	})
	requireKind(t, err, ErrBindingMismatch)
	assert.Contains(t, err.Error(), "binding 3 twice")

	_, err = d.CreateBindGroupLayout("empty", []BindGroupLayoutEntry{{Binding: 0}})
	requireKind(t, err, ErrBindingMismatch)

	_, err = d.CreateBindGroupLayout("two kinds", []BindGroupLayoutEntry{
		{Binding: 0, Buffer: uniform, Sampler: &gputypes.SamplerBindingLayout{Type: gputypes.SamplerBindingTypeFiltering}},
	})
	requireKind(t, err, ErrBindingMismatch)
}

func TestCreateBindGroupChecksTextures(t *testing.T) {
	d := newTestDevice(t)
	storage := func(access gputypes.StorageTextureAccess, format gputypes.TextureFormat, dim gputypes.TextureViewDimension) *BindGroupLayout {
		layout, err := d.CreateBindGroupLayout("storage", []BindGroupLayoutEntry{{
			Binding:        0,
			StorageTexture: &gputypes.StorageTextureBindingLayout{Access: access, Format: format, ViewDimension: dim},
		}})
		require.NoError(t, err)
		return layout
	}
	sampled := func(sampleType gputypes.TextureSampleType) *BindGroupLayout {
		layout, err := d.CreateBindGroupLayout("sampled", []BindGroupLayoutEntry{{
			Binding: 0,
			Texture: &gputypes.TextureBindingLayout{SampleType: sampleType, ViewDimension: gputypes.TextureViewDimension2D},
		}})
		require.NoError(t, err)
		return layout
	}
	texture := func(format gputypes.TextureFormat, usage gputypes.TextureUsage) *TextureView {
		tex, err := d.CreateTexture(TextureDescriptor{
			Label:     "tex",
			Size:      gputypes.Extent3D{Width: 4, Height: 4, DepthOrArrayLayers: 1},
			Dimension: gputypes.TextureDimension2D,
			Format:    format,
			Usage:     usage,
		})
		require.NoError(t, err)
		view, err := tex.CreateView(nil)
		require.NoError(t, err)
		return view
	}

	tests := []struct {
		name   string
		layout *BindGroupLayout
		view   *TextureView
		want   ErrorKind
	}{
		{
			name:   "storage format",
			layout: storage(gputypes.StorageTextureAccessWriteOnly, gputypes.TextureFormatR32Float, gputypes.TextureViewDimension2D),
			view:   texture(gputypes.TextureFormatRGBA8Unorm, gputypes.TextureUsageStorageBinding),
			want:   ErrFormatMismatch,
		},
		{
			name:   "storage dimension",
			layout: storage(gputypes.StorageTextureAccessWriteOnly, gputypes.TextureFormatRGBA8Unorm, gputypes.TextureViewDimension3D),
			view:   texture(gputypes.TextureFormatRGBA8Unorm, gputypes.TextureUsageStorageBinding),
			want:   ErrDimensionMismatch,
		},
		{
			name:   "storage usage",
			layout: storage(gputypes.StorageTextureAccessReadOnly, gputypes.TextureFormatRGBA8Unorm, gputypes.TextureViewDimension2D),
			view:   texture(gputypes.TextureFormatRGBA8Unorm, gputypes.TextureUsageTextureBinding),
			want:   ErrUsageNotSubset,
		},
		{
			name:   "sampled usage",
			layout: sampled(gputypes.TextureSampleTypeFloat),
			view:   texture(gputypes.TextureFormatRGBA8Unorm, gputypes.TextureUsageStorageBinding),
			want:   ErrUsageNotSubset,
		},
		{
			name:   "sample type",
			layout: sampled(gputypes.TextureSampleTypeUint),
			view:   texture(gputypes.TextureFormatRGBA8Unorm, gputypes.TextureUsageTextureBinding),
			want:   ErrSampleTypeMismatch,
		},
		{
			name:   "depth is not float",
			layout: sampled(gputypes.TextureSampleTypeFloat),
			view:   texture(gputypes.TextureFormatDepth32Float, gputypes.TextureUsageTextureBinding),
			want:   ErrSampleTypeMismatch,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := d.CreateBindGroup(BindGroupDescriptor{
				Label:   tt.name,
				Layout:  tt.layout,
				Entries: []BindGroupEntry{{Binding: 0, TextureView: tt.view}},
			})
			requireKind(t, err, tt.want)
			assert.Equal(t, err, d.PopError())
		})
	}
}

func TestCreateBindGroupChecksBuffers(t *testing.T) {
	d := newTestDevice(t)
	layout, err := d.CreateBindGroupLayout("uniforms", []BindGroupLayoutEntry{{
		Binding: 0,
		Buffer:  &gputypes.BufferBindingLayout{Type: gputypes.BufferBindingTypeUniform, MinBindingSize: 64},
	}})
	require.NoError(t, err)

	storageOnly, err := d.CreateBuffer(BufferDescriptor{Label: "storage", Size: 64, Usage: gputypes.BufferUsageStorage})
	require.NoError(t, err)
	small, err := d.CreateBuffer(BufferDescriptor{Label: "small", Size: 16, Usage: gputypes.BufferUsageUniform})
	require.NoError(t, err)
	good, err := d.CreateBuffer(BufferDescriptor{Label: "good", Size: 64, Usage: gputypes.BufferUsageUniform})
	require.NoError(t, err)

	_, err = d.CreateBindGroup(BindGroupDescriptor{Layout: layout, Entries: []BindGroupEntry{{Binding: 0, Buffer: storageOnly}}})
	requireKind(t, err, ErrUsageNotSubset)

	_, err = d.CreateBindGroup(BindGroupDescriptor{Layout: layout, Entries: []BindGroupEntry{{Binding: 0, Buffer: small}}})
	requireKind(t, err, ErrBindingMismatch)

	_, err = d.CreateBindGroup(BindGroupDescriptor{Layout: layout})
	requireKind(t, err, ErrBindingMismatch)

	g, err := d.CreateBindGroup(BindGroupDescriptor{Layout: layout, Entries: []BindGroupEntry{{Binding: 0, Buffer: good}}})
	require.NoError(t, err)
	assert.Equal(t, []Usage{{Resource: good.ID(), Capability: CapabilityUniform, Label: "good"}}, g.Usages())
}

func TestCreateViewRejectsMismatch(t *testing.T) {
	d := newTestDevice(t)
	tex := newTestTexture(t, d, "tex")

	_, err := tex.CreateView(&TextureViewDescriptor{Format: gputypes.TextureFormatBGRA8Unorm})
	requireKind(t, err, ErrFormatMismatch)

	_, err = tex.CreateView(&TextureViewDescriptor{Dimension: gputypes.TextureViewDimension3D})
	requireKind(t, err, ErrDimensionMismatch)

	view, err := tex.CreateView(&TextureViewDescriptor{Label: "whole"})
	require.NoError(t, err)
	assert.Equal(t, gputypes.TextureFormatRGBA8Unorm, view.Format())
	assert.Equal(t, gputypes.TextureViewDimension2D, view.Dimension())
	assert.Same(t, tex, view.Texture())
}

func TestRenderAttachmentNeedsUsage(t *testing.T) {
	d := newTestDevice(t)
	tex, err := d.CreateTexture(TextureDescriptor{
		Label:     "sampled only",
		Size:      gputypes.Extent3D{Width: 4, Height: 4, DepthOrArrayLayers: 1},
		Dimension: gputypes.TextureDimension2D,
		Format:    gputypes.TextureFormatRGBA8Unorm,
		Usage:     gputypes.TextureUsageTextureBinding,
	})
	require.NoError(t, err)
	view, err := tex.CreateView(nil)
	require.NoError(t, err)

	enc, err := d.CreateCommandEncoder("frame")
	require.NoError(t, err)
	pass := enc.BeginRenderPass(RenderPassDescriptor{
		ColorAttachments: []RenderPassColorAttachment{{View: view, LoadOp: gputypes.LoadOpClear, StoreOp: gputypes.StoreOpStore}},
	})
	pass.End()
	_, err = enc.Finish()
	requireKind(t, err, ErrUsageNotSubset)
}
