package gpu

import (
	"sort"

	"github.com/gogpu/gputypes"
)

// textureOp is what a command does to a texture's contents.
type textureOp uint8

const (
	// opRead needs defined contents.
	opRead textureOp = iota
	// opWrite defines the contents.
	opWrite
	// opDiscard leaves the contents undefined.
	opDiscard
)

type textureAccess struct {
	texture *Texture
	op      textureOp
}

// command is one recorded pass or copy, reduced to its texture accesses in
// execution order.
type command struct {
	label    string
	accesses []textureAccess
}

// CommandBuffer is a finished, submittable list of commands.
type CommandBuffer struct {
	device    *Device
	label     string
	commands  []command
	submitted bool
}

// CommandEncoder records passes and copies. Validation failures inside a
// pass are held until Finish.
type CommandEncoder struct {
	device   *Device
	label    string
	commands []command
	err      error
	passOpen bool
	finished bool
}

// CreateCommandEncoder creates an encoder.
func (d *Device) CreateCommandEncoder(label string) (*CommandEncoder, error) {
	if err := d.alive(); err != nil {
		return nil, err
	}
	return &CommandEncoder{device: d, label: label}, nil
}

// fail keeps the first error for Finish.
func (e *CommandEncoder) fail(err error) {
	if e.err == nil {
		e.err = err
	}
}

// usable fails the encoder if a pass is open or it has finished, and
// reports whether recording may go on.
func (e *CommandEncoder) usable(what string) bool {
	switch {
	case e.finished:
		e.fail(newError(ErrEncoderState, "encoder %q: %s after Finish", e.label, what))
		return false
	case e.passOpen:
		e.fail(newError(ErrEncoderState, "encoder %q: %s while a pass is open", e.label, what))
		return false
	}
	return true
}

// RenderPassColorAttachment is one color target of a render pass.
type RenderPassColorAttachment struct {
	View    *TextureView
	LoadOp  gputypes.LoadOp
	StoreOp gputypes.StoreOp
}

// RenderPassDescriptor describes a render pass.
type RenderPassDescriptor struct {
	Label            string
	ColorAttachments []RenderPassColorAttachment
}

// RenderPassEncoder records one render pass. Every bind group set and every
// attachment joins the pass's single usage scope.
type RenderPassEncoder struct {
	encoder *CommandEncoder
	desc    RenderPassDescriptor
	scope   UsageScope
	groups  map[uint32]*BindGroup
	cmd     command
	ended   bool
}

// BeginRenderPass starts a render pass. Attachment views must come from
// textures created with RenderAttachment usage.
func (e *CommandEncoder) BeginRenderPass(desc RenderPassDescriptor) *RenderPassEncoder {
	p := &RenderPassEncoder{
		encoder: e,
		desc:    desc,
		groups:  make(map[uint32]*BindGroup),
		cmd:     command{label: desc.Label},
	}
	if !e.usable("BeginRenderPass") {
		p.ended = true
		return p
	}
	e.passOpen = true
	for i, a := range desc.ColorAttachments {
		if a.View == nil {
			e.fail(newError(ErrBindingMismatch, "render pass %q: color attachment %d has no view", desc.Label, i))
			continue
		}
		tex := a.View.texture
		if tex.desc.Usage&gputypes.TextureUsageRenderAttachment == 0 {
			e.fail(newError(ErrUsageNotSubset, "render pass %q: texture %q lacks RenderAttachment usage", desc.Label, tex.desc.Label))
			continue
		}
		p.scope.Add(Usage{Resource: tex.id, Capability: CapabilityAttachment, Label: tex.desc.Label})
		if a.LoadOp == gputypes.LoadOpLoad {
			p.cmd.accesses = append(p.cmd.accesses, textureAccess{texture: tex, op: opRead})
		}
	}
	return p
}

// SetBindGroup binds g at index for the following draws.
func (p *RenderPassEncoder) SetBindGroup(index uint32, g *BindGroup) {
	if p.ended || g == nil {
		return
	}
	p.groups[index] = g
	p.scope.AddBindGroup(g)
}

// Draw records a draw with the bind groups set so far.
func (p *RenderPassEncoder) Draw(vertexCount, instanceCount uint32) {
	if p.ended || vertexCount == 0 || instanceCount == 0 {
		return
	}
	p.cmd.accesses = append(p.cmd.accesses, boundAccesses(p.groups)...)
}

// End closes the pass. A usage conflict anywhere in the pass fails the
// encoder's Finish.
func (p *RenderPassEncoder) End() {
	if p.ended {
		return
	}
	p.ended = true
	e := p.encoder
	e.passOpen = false
	if err := p.scope.Validate(); err != nil {
		e.fail(errorf(err, "render pass %q", p.desc.Label))
	}
	for _, a := range p.desc.ColorAttachments {
		if a.View == nil {
			continue
		}
		op := opWrite
		if a.StoreOp == gputypes.StoreOpDiscard {
			op = opDiscard
		}
		p.cmd.accesses = append(p.cmd.accesses, textureAccess{texture: a.View.texture, op: op})
	}
	e.commands = append(e.commands, p.cmd)
}

// ComputePassEncoder records one compute pass. Each dispatch is its own
// usage scope holding the bind groups set at that moment.
type ComputePassEncoder struct {
	encoder *CommandEncoder
	label   string
	groups  map[uint32]*BindGroup
	cmd     command
	ended   bool
}

// BeginComputePass starts a compute pass.
func (e *CommandEncoder) BeginComputePass(label string) *ComputePassEncoder {
	p := &ComputePassEncoder{
		encoder: e,
		label:   label,
		groups:  make(map[uint32]*BindGroup),
		cmd:     command{label: label},
	}
	if !e.usable("BeginComputePass") {
		p.ended = true
		return p
	}
	e.passOpen = true
	return p
}

// SetBindGroup binds g at index for the following dispatches.
func (p *ComputePassEncoder) SetBindGroup(index uint32, g *BindGroup) {
	if p.ended || g == nil {
		return
	}
	p.groups[index] = g
}

// Dispatch records a dispatch and validates the bind groups it sees.
func (p *ComputePassEncoder) Dispatch(x, y, z uint32) {
	if p.ended {
		return
	}
	var scope UsageScope
	for _, index := range sortedIndices(p.groups) {
		scope.AddBindGroup(p.groups[index])
	}
	if err := scope.Validate(); err != nil {
		p.encoder.fail(errorf(err, "compute pass %q dispatch (%d, %d, %d)", p.label, x, y, z))
	}
	if x == 0 || y == 0 || z == 0 {
		return
	}
	p.cmd.accesses = append(p.cmd.accesses, boundAccesses(p.groups)...)
}

// End closes the pass.
func (p *ComputePassEncoder) End() {
	if p.ended {
		return
	}
	p.ended = true
	p.encoder.passOpen = false
	p.encoder.commands = append(p.encoder.commands, p.cmd)
}

// CopyTextureToTexture copies all of src into dst. Both must have the same
// size, src needs CopySrc usage and dst needs CopyDst.
func (e *CommandEncoder) CopyTextureToTexture(src, dst *Texture) {
	if !e.usable("CopyTextureToTexture") {
		return
	}
	switch {
	case src.desc.Usage&gputypes.TextureUsageCopySrc == 0:
		e.fail(newError(ErrUsageNotSubset, "copy source %q lacks CopySrc usage", src.desc.Label))
	case dst.desc.Usage&gputypes.TextureUsageCopyDst == 0:
		e.fail(newError(ErrUsageNotSubset, "copy destination %q lacks CopyDst usage", dst.desc.Label))
	case src.desc.Size != dst.desc.Size:
		e.fail(newError(ErrDimensionMismatch, "copy from %q (%v) to %q (%v)", src.desc.Label, src.desc.Size, dst.desc.Label, dst.desc.Size))
	case src.desc.Format != dst.desc.Format:
		e.fail(newError(ErrFormatMismatch, "copy from %q (%v) to %q (%v)", src.desc.Label, src.desc.Format, dst.desc.Label, dst.desc.Format))
	default:
		e.commands = append(e.commands, command{
			label:    "copy " + src.desc.Label + " to " + dst.desc.Label,
			accesses: []textureAccess{{texture: src, op: opRead}, {texture: dst, op: opWrite}},
		})
	}
}

// CopyTextureToBuffer copies all of src into dst.
func (e *CommandEncoder) CopyTextureToBuffer(src *Texture, dst *Buffer) {
	if !e.usable("CopyTextureToBuffer") {
		return
	}
	switch {
	case src.desc.Usage&gputypes.TextureUsageCopySrc == 0:
		e.fail(newError(ErrUsageNotSubset, "copy source %q lacks CopySrc usage", src.desc.Label))
	case dst.desc.Usage&gputypes.BufferUsageCopyDst == 0:
		e.fail(newError(ErrUsageNotSubset, "copy destination %q lacks CopyDst usage", dst.desc.Label))
	default:
		e.commands = append(e.commands, command{
			label:    "copy " + src.desc.Label + " to " + dst.desc.Label,
			accesses: []textureAccess{{texture: src, op: opRead}},
		})
	}
}

// Finish seals the encoder. It returns the first failure recorded while
// encoding, which is also kept in the device's error list.
func (e *CommandEncoder) Finish() (*CommandBuffer, error) {
	if e.passOpen {
		e.fail(newError(ErrEncoderState, "encoder %q: Finish while a pass is open", e.label))
	}
	if e.finished {
		e.fail(newError(ErrEncoderState, "encoder %q: Finish called twice", e.label))
	}
	e.finished = true
	if err := e.device.alive(); err != nil {
		return nil, err
	}
	if e.err != nil {
		return nil, e.device.record(e.err)
	}
	return &CommandBuffer{device: e.device, label: e.label, commands: e.commands}, nil
}

// boundAccesses lists what the bound textures do, in group and binding order.
func boundAccesses(groups map[uint32]*BindGroup) []textureAccess {
	var out []textureAccess
	for _, index := range sortedIndices(groups) {
		for _, b := range groups[index].textures {
			switch b.capability {
			case CapabilityStorageTextureWrite:
				out = append(out, textureAccess{texture: b.texture, op: opWrite})
			case CapabilityStorageTextureReadWrite:
				out = append(out,
					textureAccess{texture: b.texture, op: opRead},
					textureAccess{texture: b.texture, op: opWrite})
			default:
				out = append(out, textureAccess{texture: b.texture, op: opRead})
			}
		}
	}
	return out
}

func sortedIndices(groups map[uint32]*BindGroup) []uint32 {
	indices := make([]uint32, 0, len(groups))
	for i := range groups {
		indices = append(indices, i)
	}
	sort.Slice(indices, func(i, j int) bool { return indices[i] < indices[j] })
	return indices
}

// errorf prefixes a gpu error's message with where it was found, keeping
// its kind.
func errorf(err error, format string, args ...any) error {
	e, ok := err.(*Error)
	if !ok {
		return err
	}
	prefixed := newError(e.Kind, format, args...)
	prefixed.Message += ": " + e.Message
	return prefixed
}
