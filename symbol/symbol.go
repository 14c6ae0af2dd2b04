// Package symbol allocates collision-free identifiers for one translation unit.
//
// An Allocator is seeded with every name that must never be produced: target
// keywords, user identifiers and names fixed by the host API. New names are the
// requested base when it is free, otherwise base_N where N comes from a
// counter that only grows. A name once handed out is never handed out again.
package symbol

import (
	"fmt"
	"strings"
)

// DefaultBase is used when a caller asks for a name with an empty base.
const DefaultBase = "tint_symbol"

// Option configures an Allocator.
type Option func(*config)

type config struct {
	foldCase bool
	escape   func(string) string
	reserved []string
}

// WithCaseInsensitive makes names that differ only in case collide, as HLSL requires.
func WithCaseInsensitive() Option {
	return func(c *config) {
		c.foldCase = true
	}
}

// WithEscape transforms every base before allocation, typically to rename
// target keywords.
func WithEscape(escape func(string) string) Option {
	return func(c *config) {
		c.escape = escape
	}
}

// WithReserved reserves names up front.
func WithReserved(names ...string) Option {
	return func(c *config) {
		c.reserved = append(c.reserved, names...)
	}
}

// Allocator hands out unique identifiers. It is not safe for concurrent use;
// each translation unit owns its own allocator.
type Allocator struct {
	used     map[string]struct{}
	counter  uint32
	foldCase bool
	escape   func(string) string
}

// NewAllocator creates an allocator.
func NewAllocator(opts ...Option) *Allocator {
	var c config
	for _, opt := range opts {
		opt(&c)
	}
	a := &Allocator{
		used:     make(map[string]struct{}, len(c.reserved)),
		foldCase: c.foldCase,
		escape:   c.escape,
	}
	a.Reserve(c.reserved...)
	return a
}

func (a *Allocator) key(name string) string {
	if a.foldCase {
		return strings.ToLower(name)
	}
	return name
}

// Reserve marks names as taken without returning them.
func (a *Allocator) Reserve(names ...string) {
	for _, name := range names {
		a.used[a.key(name)] = struct{}{}
	}
}

// IsUsed reports whether a name has been reserved or allocated.
func (a *Allocator) IsUsed(name string) bool {
	_, ok := a.used[a.key(name)]
	return ok
}

// New returns base if it is still free, otherwise base_N for the next N
// that does not collide. The result is reserved.
func (a *Allocator) New(base string) string {
	if base == "" {
		base = DefaultBase
	}
	if a.escape != nil {
		base = a.escape(base)
	}

	if !a.IsUsed(base) {
		a.Reserve(base)
		return base
	}

	for {
		a.counter++
		candidate := fmt.Sprintf("%s_%d", base, a.counter)
		if !a.IsUsed(candidate) {
			a.Reserve(candidate)
			return candidate
		}
	}
}

// Fresh always appends a suffix, for synthesized temporaries that should
// never look like user names.
func (a *Allocator) Fresh(base string) string {
	if base == "" {
		base = DefaultBase
	}
	if a.escape != nil {
		base = a.escape(base)
	}
	for {
		a.counter++
		candidate := fmt.Sprintf("%s_%d", base, a.counter)
		if !a.IsUsed(candidate) {
			a.Reserve(candidate)
			return candidate
		}
	}
}

// Count returns the number of names reserved or allocated.
func (a *Allocator) Count() int {
	return len(a.used)
}
