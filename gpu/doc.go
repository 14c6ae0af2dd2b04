// Package gpu validates how resources are used by GPU work and tracks
// access to texture memory shared between devices.
//
// It models the parts of a WebGPU-style device that decide whether work is
// valid, not the work itself: a Queue executes command buffers in software
// and only tracks what each command does to texture contents.
//
// # Usage scopes
//
// A render pass is one usage scope. A compute pass has one scope per
// Dispatch. Within a scope, a resource used through a writable capability
// (storage buffer, write-only or read-write storage texture, attachment)
// may not be used any other way. The two writable storage texture
// capabilities are the exception and may share a resource:
//
//	pass := encoder.BeginRenderPass(gpu.RenderPassDescriptor{ColorAttachments: targets})
//	pass.SetBindGroup(0, group)
//	pass.Draw(3, 1)
//	pass.End()
//	cmds, err := encoder.Finish() // a conflict anywhere in the pass fails here
//
// ValidateUsageScope applies the same rule to a plain list of usages.
//
// # Shared texture memory
//
// Memory imported with Device.ImportSharedTextureMemory can back any number
// of textures, and one of them at a time holds the access:
//
//	tex, _ := mem.CreateTexture(nil)
//	_ = mem.BeginAccess(tex, gpu.BeginAccessDescriptor{Initialized: true, Fences: waits})
//	_ = queue.Submit(ctx, cmds)
//	state, _ := mem.EndAccess(tex)
//
// The fences in state are raised once the work submitted during the access
// has completed. To hand them to another device, Export each fence and
// import it there with Device.ImportSharedFence; the wait values carry over
// unchanged.
//
// A texture keeps its access after the memory is dropped; tex.EndAccess
// then closes it.
//
// Failed calls return a *Error and leave every object as it was. Errors
// match ErrValidation or, once the device is lost, ErrDeviceLost.
package gpu
