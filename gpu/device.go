package gpu

import (
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"k8s.io/klog/v2"
)

// nextID numbers buffers and textures process-wide so usage scopes can key
// resources from different devices without collisions.
var nextID atomic.Uint64

func newResourceID() ResourceID {
	return ResourceID(nextID.Add(1))
}

// DeviceDescriptor describes a device to create.
type DeviceDescriptor struct {
	// Label is an optional debug name.
	Label string
}

// Device creates resources and validates their use. Work recorded against
// it runs on its software Queue.
//
// Device is safe for concurrent use. Validation failures of creation and
// submission calls are returned and also kept in an error list that
// PopError drains, the way an uncaptured error scope would.
type Device struct {
	id    uuid.UUID
	label string
	queue *Queue

	mu     sync.Mutex
	lost   bool
	reason string
	errors []error
}

// NewDevice creates a device with its queue.
func NewDevice(desc DeviceDescriptor) *Device {
	d := &Device{id: uuid.New(), label: desc.Label}
	d.queue = newQueue(d)
	klog.V(2).Infof("gpu: created device %q (%s)", d.label, d.id)
	return d
}

// ID returns the device's identity.
func (d *Device) ID() uuid.UUID { return d.id }

// Label returns the device's debug name.
func (d *Device) Label() string { return d.label }

// Queue returns the device's queue.
func (d *Device) Queue() *Queue { return d.queue }

// Lose marks the device lost. Every later call against it fails with
// ErrDeviceLost; open shared accesses can still be ended.
func (d *Device) Lose(reason string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.lost {
		return
	}
	d.lost = true
	d.reason = reason
	klog.V(2).Infof("gpu: device %q lost: %s", d.label, reason)
}

// Destroy destroys the device. It behaves as a loss.
func (d *Device) Destroy() {
	d.Lose("destroyed")
}

// IsLost reports whether the device is lost or destroyed.
func (d *Device) IsLost() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.lost
}

// PopError removes and returns the oldest recorded error, nil when none.
func (d *Device) PopError() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.errors) == 0 {
		return nil
	}
	err := d.errors[0]
	d.errors = d.errors[1:]
	return err
}

// alive returns the device-lost error if the device can no longer be used.
func (d *Device) alive() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.lost {
		return newError(ErrLost, "device %q is lost: %s", d.label, d.reason)
	}
	return nil
}

// record keeps a validation error in the device's error list and returns
// it. Errors on a lost device are not recorded.
func (d *Device) record(err error) error {
	if err == nil {
		return nil
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.lost {
		d.errors = append(d.errors, err)
	}
	klog.V(2).Infof("gpu: device %q: %v", d.label, err)
	return err
}

// check returns the device-lost error or, for a live device, records and
// returns err.
func (d *Device) check(err error) error {
	if lost := d.alive(); lost != nil {
		return lost
	}
	return d.record(err)
}
