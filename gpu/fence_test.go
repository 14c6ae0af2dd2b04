package gpu

import (
	"context"
	"testing"
	"time"

	"github.com/gogpu/gputypes"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFenceSignalIsMonotonic(t *testing.T) {
	d := newTestDevice(t)
	f, err := d.CreateSharedFence()
	require.NoError(t, err)

	assert.Equal(t, uint64(0), f.Completed())
	f.Signal(5)
	f.Signal(3)
	assert.Equal(t, uint64(5), f.Completed())
	assert.Same(t, d, f.Device())
}

func TestFenceWait(t *testing.T) {
	d := newTestDevice(t)
	f, err := d.CreateSharedFence()
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() { done <- f.Wait(context.Background(), 2) }()
	f.Signal(1)
	f.Signal(2)
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Wait did not return after the fence reached its value")
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err = f.Wait(ctx, 10)
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled))
}

func TestImportSharedFence(t *testing.T) {
	a := NewDevice(DeviceDescriptor{Label: "a"})
	b := NewDevice(DeviceDescriptor{Label: "b"})
	f, err := a.CreateSharedFence()
	require.NoError(t, err)

	info := f.Export()
	assert.Equal(t, SharedFenceTypeSoftware, info.Type)

	imported, err := b.ImportSharedFence(SharedFenceDescriptor{Label: "from a", Type: info.Type, Handle: info.Handle})
	require.NoError(t, err)
	assert.Same(t, b, imported.Device())

	f.Signal(41)
	assert.Equal(t, uint64(41), imported.Completed())

	_, err = b.ImportSharedFence(SharedFenceDescriptor{Type: SharedFenceTypeSoftware, Handle: uuid.New()})
	requireKind(t, err, ErrMissingDescriptor)
	_, err = b.ImportSharedFence(SharedFenceDescriptor{Type: SharedFenceTypeUndefined, Handle: info.Handle})
	requireKind(t, err, ErrMissingDescriptor)
}

// TestCrossDeviceHandOff passes a texture's contents from device a to
// device b through shared memory, carrying a's end fence over to b.
func TestCrossDeviceHandOff(t *testing.T) {
	a := NewDevice(DeviceDescriptor{Label: "a"})
	b := NewDevice(DeviceDescriptor{Label: "b"})
	handle := &SoftwareMemoryHandle{Props: sharedProps}

	memA, err := a.ImportSharedTextureMemory(SharedTextureMemoryDescriptor{Label: "on a", Handle: handle})
	require.NoError(t, err)
	memB, err := b.ImportSharedTextureMemory(SharedTextureMemoryDescriptor{Label: "on b", Handle: handle})
	require.NoError(t, err)
	texA := sharedTexture(t, memA)
	texB := sharedTexture(t, memB)
	viewA, err := texA.CreateView(nil)
	require.NoError(t, err)

	require.NoError(t, memA.BeginAccess(texA, BeginAccessDescriptor{}))
	require.NoError(t, submit(t, a, func(e *CommandEncoder) {
		pass := e.BeginRenderPass(RenderPassDescriptor{
			ColorAttachments: []RenderPassColorAttachment{{View: viewA, LoadOp: gputypes.LoadOpClear, StoreOp: gputypes.StoreOpStore}},
		})
		pass.End()
	}))
	endA, err := memA.EndAccess(texA)
	require.NoError(t, err)
	require.True(t, endA.Initialized)

	// a's fence cannot be handed to b directly.
	err = memB.BeginAccess(texB, BeginAccessDescriptor{Initialized: true, Fences: endA.Fences})
	requireKind(t, err, ErrForeignObject)

	waits := make([]FenceWait, len(endA.Fences))
	for i, w := range endA.Fences {
		info := w.Fence.Export()
		f, err := b.ImportSharedFence(SharedFenceDescriptor{Type: info.Type, Handle: info.Handle})
		require.NoError(t, err)
		waits[i] = FenceWait{Fence: f, Value: w.Value}
	}
	require.Equal(t, endA.Fences[0].Value, waits[0].Value)

	require.NoError(t, memB.BeginAccess(texB, BeginAccessDescriptor{Initialized: endA.Initialized, Fences: waits}))
	dst, err := b.CreateBuffer(BufferDescriptor{Size: 256, Usage: gputypes.BufferUsageCopyDst})
	require.NoError(t, err)
	require.NoError(t, submit(t, b, func(e *CommandEncoder) { e.CopyTextureToBuffer(texB, dst) }))
	assert.Equal(t, 0, texB.LazyClears())

	endB, err := memB.EndAccess(texB)
	require.NoError(t, err)
	assert.True(t, endB.Initialized)
}

func TestSubmitWaitsForBeginFences(t *testing.T) {
	d := newTestDevice(t)
	m := importMemory(t, d)
	tex := sharedTexture(t, m)
	dst, err := d.CreateBuffer(BufferDescriptor{Size: 256, Usage: gputypes.BufferUsageCopyDst})
	require.NoError(t, err)
	gate, err := d.CreateSharedFence()
	require.NoError(t, err)

	require.NoError(t, m.BeginAccess(tex, BeginAccessDescriptor{Initialized: true, Fences: []FenceWait{{Fence: gate, Value: 7}}}))
	enc, err := d.CreateCommandEncoder("read")
	require.NoError(t, err)
	enc.CopyTextureToBuffer(tex, dst)
	cmds, err := enc.Finish()
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err = d.Queue().Submit(ctx, cmds)
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
	assert.Equal(t, uint64(0), d.Queue().Serial())

	gate.Signal(7)
	require.NoError(t, d.Queue().Submit(context.Background(), cmds))
	assert.Equal(t, uint64(1), d.Queue().Serial())
}
