package gpu

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// Queue executes command buffers in submission order. Execution is
// software: a submission has completed by the time Submit returns, and the
// queue fence is then raised to the submission's serial.
type Queue struct {
	device *Device

	// mu serializes submissions so serials match execution order.
	mu     sync.Mutex
	serial atomic.Uint64
	fence  *SharedFence
}

func newQueue(d *Device) *Queue {
	return &Queue{device: d, fence: &SharedFence{device: d, timeline: newTimeline()}}
}

// Fence returns the fence the queue raises to each submission's serial.
func (q *Queue) Fence() *SharedFence { return q.fence }

// Serial returns the serial of the latest submission, zero before the first.
func (q *Queue) Serial() uint64 { return q.serial.Load() }

// Submit executes buffers. Every texture they use must be alive, and a
// texture created from shared memory must hold the memory's open access.
// Before executing, Submit waits for the fences given to BeginAccess; it
// gives up when ctx is done. Reading a texture whose contents are
// undefined clears it to zero first.
func (q *Queue) Submit(ctx context.Context, buffers ...*CommandBuffer) error {
	d := q.device
	if err := d.alive(); err != nil {
		return err
	}
	q.mu.Lock()
	defer q.mu.Unlock()

	textures, err := q.prepare(buffers)
	if err != nil {
		return d.record(err)
	}
	for _, t := range textures {
		t.mu.Lock()
		waits := t.waits
		t.mu.Unlock()
		for _, w := range waits {
			if err := w.Fence.Wait(ctx, w.Value); err != nil {
				return errors.Wrapf(err, "submitting work on texture %q", t.desc.Label)
			}
		}
	}

	serial := q.serial.Add(1)
	for _, b := range buffers {
		b.submitted = true
		for _, c := range b.commands {
			for _, a := range c.accesses {
				a.texture.apply(a.op, serial)
			}
		}
		klog.V(3).Infof("gpu: queue of %q executed %q (%d commands) at serial %d", d.label, b.label, len(b.commands), serial)
	}
	for _, t := range textures {
		t.mu.Lock()
		t.waits = nil
		t.mu.Unlock()
	}
	q.fence.Signal(serial)
	return nil
}

// prepare validates buffers and returns the textures they touch, each once,
// in first-use order.
func (q *Queue) prepare(buffers []*CommandBuffer) ([]*Texture, error) {
	var textures []*Texture
	seen := make(map[*Texture]bool)
	for _, b := range buffers {
		switch {
		case b == nil:
			return nil, newError(ErrEncoderState, "nil command buffer")
		case b.device != q.device:
			return nil, newError(ErrForeignObject, "command buffer %q belongs to device %q", b.label, b.device.label)
		case b.submitted:
			return nil, newError(ErrEncoderState, "command buffer %q was already submitted", b.label)
		}
		for _, c := range b.commands {
			for _, a := range c.accesses {
				t := a.texture
				if seen[t] {
					continue
				}
				seen[t] = true
				if err := t.usable(c.label); err != nil {
					return nil, err
				}
				textures = append(textures, t)
			}
		}
	}
	return textures, nil
}

// usable reports why t cannot be used by a submission, if it cannot.
func (t *Texture) usable(by string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	switch {
	case t.destroyed:
		return newError(ErrDestroyed, "%q uses destroyed texture %q", by, t.desc.Label)
	case t.contents != nil && !t.accessOpen:
		return newError(ErrAccessNotOpen, "%q uses shared texture %q outside BeginAccess/EndAccess", by, t.desc.Label)
	}
	return nil
}

// apply executes one access on the contents.
func (t *Texture) apply(op textureOp, serial uint64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	switch op {
	case opRead:
		if !t.initialized {
			t.initialized = true
			t.lazyClears++
			klog.V(2).Infof("gpu: texture %q cleared to zero before its first read", t.desc.Label)
		}
	case opWrite:
		t.initialized = true
	case opDiscard:
		t.initialized = false
	}
	if t.contents != nil {
		t.lastSerial = serial
	}
}
