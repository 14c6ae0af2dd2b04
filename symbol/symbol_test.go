package symbol

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewReturnsBaseWhenFree(t *testing.T) {
	a := NewAllocator()
	assert.Equal(t, "x", a.New("x"))
	assert.Equal(t, "x_1", a.New("x"))
	assert.Equal(t, "x_2", a.New("x"))
	assert.Equal(t, "y", a.New("y"))
}

func TestCounterIsMonotonic(t *testing.T) {
	a := NewAllocator(WithReserved("t_2"))
	assert.Equal(t, "t", a.New("t"))
	assert.Equal(t, "t_1", a.New("t"))
	assert.Equal(t, "t_3", a.New("t"), "reserved t_2 is skipped")
	assert.Equal(t, "u", a.New("u"))
	assert.Equal(t, "u_4", a.New("u"), "the counter is shared by all bases")
}

func TestReservedNamesAreNeverProduced(t *testing.T) {
	a := NewAllocator(WithReserved("float", "main"))
	assert.Equal(t, "float_1", a.New("float"))
	assert.Equal(t, "main_2", a.New("main"))
}

func TestEmptyBase(t *testing.T) {
	a := NewAllocator()
	assert.Equal(t, DefaultBase, a.New(""))
	assert.Equal(t, DefaultBase+"_1", a.New(""))
}

func TestFreshAlwaysSuffixes(t *testing.T) {
	a := NewAllocator()
	assert.Equal(t, "tmp_1", a.Fresh("tmp"))
	assert.Equal(t, "tmp", a.New("tmp"))
}

func TestCaseInsensitive(t *testing.T) {
	a := NewAllocator(WithCaseInsensitive(), WithReserved("Texture2D"))
	assert.True(t, a.IsUsed("texture2d"))
	assert.Equal(t, "TEXTURE2D_1", a.New("TEXTURE2D"))

	sensitive := NewAllocator(WithReserved("Texture2D"))
	assert.Equal(t, "texture2d", sensitive.New("texture2d"))
}

func TestEscape(t *testing.T) {
	a := NewAllocator(WithEscape(func(s string) string {
		if s == "kernel" {
			return "_kernel"
		}
		return s
	}))
	assert.Equal(t, "_kernel", a.New("kernel"))
	assert.Equal(t, "_kernel_1", a.New("kernel"))
}

func TestAllNamesDistinct(t *testing.T) {
	user := []string{"a", "a_1", "b", "tint_symbol", "tint_symbol_3"}
	a := NewAllocator(WithReserved(user...))

	seen := map[string]bool{}
	for _, u := range user {
		seen[u] = true
	}
	for i := 0; i < 50; i++ {
		base := []string{"a", "b", "", "c"}[i%4]
		name := a.New(base)
		assert.False(t, seen[name], "duplicate %q", name)
		assert.True(t, strings.HasPrefix(name, base) || base == "")
		seen[name] = true
	}
	assert.Equal(t, len(seen), a.Count())
}
