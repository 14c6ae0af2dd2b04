package gpu

import (
	"strings"

	"k8s.io/klog/v2"
)

// Capability is one way a pass uses a resource.
type Capability uint8

const (
	CapabilityUniform Capability = iota
	CapabilityStorageRead
	CapabilityStorage
	CapabilitySampled
	CapabilityStorageTextureRead
	CapabilityStorageTextureWrite
	CapabilityStorageTextureReadWrite
	CapabilityAttachment
)

// String returns the capability's name.
func (c Capability) String() string {
	switch c {
	case CapabilityUniform:
		return "uniform"
	case CapabilityStorageRead:
		return "read-only storage"
	case CapabilityStorage:
		return "storage"
	case CapabilitySampled:
		return "sampled"
	case CapabilityStorageTextureRead:
		return "read-only storage texture"
	case CapabilityStorageTextureWrite:
		return "write-only storage texture"
	case CapabilityStorageTextureReadWrite:
		return "read-write storage texture"
	case CapabilityAttachment:
		return "attachment"
	default:
		return "unknown"
	}
}

// Writable reports whether the capability lets the pass write the resource.
func (c Capability) Writable() bool {
	switch c {
	case CapabilityStorage, CapabilityStorageTextureWrite, CapabilityStorageTextureReadWrite, CapabilityAttachment:
		return true
	}
	return false
}

// storageTextureWrite reports whether c is one of the two storage texture
// writes, which share a resource with each other.
func (c Capability) storageTextureWrite() bool {
	return c == CapabilityStorageTextureWrite || c == CapabilityStorageTextureReadWrite
}

// Usage is one resource used one way.
type Usage struct {
	Resource   ResourceID
	Capability Capability

	// Label names the resource in error messages.
	Label string
}

// ValidateUsageScope checks the usages of one pass, or one dispatch, per
// resource. Read-only capabilities may be combined freely. A resource with
// a writable capability must be used in only that one way, except that the
// write-only and read-write storage texture capabilities may be combined.
// A resource is attached at most once.
func ValidateUsageScope(usages []Usage) error {
	type requested struct {
		label       string
		caps        []Capability
		attachments int
	}
	var order []ResourceID
	byResource := make(map[ResourceID]*requested)
	for _, u := range usages {
		r, ok := byResource[u.Resource]
		if !ok {
			r = &requested{label: u.Label}
			byResource[u.Resource] = r
			order = append(order, u.Resource)
		}
		if u.Capability == CapabilityAttachment {
			r.attachments++
		}
		seen := false
		for _, c := range r.caps {
			if c == u.Capability {
				seen = true
				break
			}
		}
		if !seen {
			r.caps = append(r.caps, u.Capability)
		}
	}

	for _, id := range order {
		r := byResource[id]
		if r.attachments > 1 {
			err := newError(ErrAliasedWritableUsage, "resource %q (%d) is used as %d attachments in one scope", r.label, id, r.attachments)
			klog.V(2).Info(err)
			return err
		}
		writable, allStorageWrites := false, true
		for _, c := range r.caps {
			writable = writable || c.Writable()
			allStorageWrites = allStorageWrites && c.storageTextureWrite()
		}
		if !writable || len(r.caps) == 1 || allStorageWrites {
			continue
		}
		names := make([]string, len(r.caps))
		for i, c := range r.caps {
			names[i] = c.String()
		}
		err := newError(ErrAliasedWritableUsage, "resource %q (%d) is used as %s in one scope",
			r.label, id, strings.Join(names, " and "))
		klog.V(2).Info(err)
		return err
	}
	return nil
}

// UsageScope accumulates the usages of a pass.
type UsageScope struct {
	usages []Usage
}

// Add records one usage.
func (s *UsageScope) Add(u Usage) {
	s.usages = append(s.usages, u)
}

// AddBindGroup records every usage of a bind group.
func (s *UsageScope) AddBindGroup(g *BindGroup) {
	s.usages = append(s.usages, g.usages...)
}

// Usages returns the usages recorded so far.
func (s *UsageScope) Usages() []Usage {
	return append([]Usage(nil), s.usages...)
}

// Validate checks the accumulated usages.
func (s *UsageScope) Validate() error {
	return ValidateUsageScope(s.usages)
}
