package gpu

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// SharedFenceType tags the platform mechanism behind an exported fence.
type SharedFenceType uint8

const (
	SharedFenceTypeUndefined SharedFenceType = iota

	// SharedFenceTypeSoftware is an in-process timeline, the only mechanism
	// this package implements.
	SharedFenceTypeSoftware
)

// String returns the fence type's name.
func (t SharedFenceType) String() string {
	switch t {
	case SharedFenceTypeSoftware:
		return "software"
	default:
		return "undefined"
	}
}

// timeline is the platform object behind a fence: a counter that only
// grows. Every device that imports it sees the same counter.
type timeline struct {
	id    uuid.UUID
	value atomic.Uint64

	mu      sync.Mutex
	changed chan struct{}
}

func newTimeline() *timeline {
	return &timeline{id: uuid.New(), changed: make(chan struct{})}
}

func (t *timeline) signal(value uint64) {
	for {
		cur := t.value.Load()
		if value <= cur {
			return
		}
		if t.value.CompareAndSwap(cur, value) {
			break
		}
	}
	t.mu.Lock()
	close(t.changed)
	t.changed = make(chan struct{})
	t.mu.Unlock()
}

func (t *timeline) wait(ctx context.Context, value uint64) error {
	for {
		t.mu.Lock()
		changed := t.changed
		t.mu.Unlock()
		if t.value.Load() >= value {
			return nil
		}
		select {
		case <-changed:
		case <-ctx.Done():
			return errors.Wrapf(ctx.Err(), "waiting for fence %s to reach %d", t.id, value)
		}
	}
}

// exported holds the timelines reachable through exported handles. It
// stands in for the platform's handle namespace.
var exported sync.Map // uuid.UUID -> *timeline

// SharedFence is a device's view of a timeline fence that can cross
// devices. Fences given to BeginAccess must belong to the memory's device:
// a fence from another device is exported there and imported here first.
type SharedFence struct {
	device   *Device
	timeline *timeline
}

// FenceWait pairs a fence with the value it must reach.
type FenceWait struct {
	Fence *SharedFence
	Value uint64
}

// SharedFenceExportInfo is the platform handle of an exported fence.
type SharedFenceExportInfo struct {
	Type   SharedFenceType
	Handle uuid.UUID
}

// SharedFenceDescriptor describes a fence to import.
type SharedFenceDescriptor struct {
	Label  string
	Type   SharedFenceType
	Handle uuid.UUID
}

// CreateSharedFence creates a fence at value zero.
func (d *Device) CreateSharedFence() (*SharedFence, error) {
	if err := d.alive(); err != nil {
		return nil, err
	}
	return &SharedFence{device: d, timeline: newTimeline()}, nil
}

// signaledFence returns a fence that has already reached 1, for work that
// can never complete normally.
func signaledFence(d *Device) FenceWait {
	t := newTimeline()
	t.value.Store(1)
	return FenceWait{Fence: &SharedFence{device: d, timeline: t}, Value: 1}
}

// Device returns the device the fence belongs to.
func (f *SharedFence) Device() *Device { return f.device }

// Completed returns the highest value signaled.
func (f *SharedFence) Completed() uint64 { return f.timeline.value.Load() }

// Signal raises the fence to value. Lower values are ignored.
func (f *SharedFence) Signal(value uint64) { f.timeline.signal(value) }

// Wait blocks until the fence reaches value or ctx is done.
func (f *SharedFence) Wait(ctx context.Context, value uint64) error {
	return f.timeline.wait(ctx, value)
}

// Export publishes the fence so another device can import it.
func (f *SharedFence) Export() SharedFenceExportInfo {
	exported.LoadOrStore(f.timeline.id, f.timeline)
	return SharedFenceExportInfo{Type: SharedFenceTypeSoftware, Handle: f.timeline.id}
}

// ImportSharedFence opens an exported fence on d. The imported fence shares
// the exporter's timeline, so wait values carry over unchanged.
func (d *Device) ImportSharedFence(desc SharedFenceDescriptor) (*SharedFence, error) {
	if err := d.alive(); err != nil {
		return nil, err
	}
	if desc.Type != SharedFenceTypeSoftware {
		return nil, d.record(newError(ErrMissingDescriptor, "fence %q: unsupported fence type %v", desc.Label, desc.Type))
	}
	t, ok := exported.Load(desc.Handle)
	if !ok {
		return nil, d.record(newError(ErrMissingDescriptor, "fence %q: no exported fence %s", desc.Label, desc.Handle))
	}
	return &SharedFence{device: d, timeline: t.(*timeline)}, nil
}
