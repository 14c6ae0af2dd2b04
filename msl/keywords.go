package msl

import "strings"

// UnnamedIdentifier is the default name for empty identifiers.
const UnnamedIdentifier = "_unnamed"

// reservedWords lists C++14 keywords, Metal qualifiers and attributes, and
// the standard library names an identifier could shadow.
const reservedWords = `
	alignas alignof and and_eq asm auto bitand bitor bool break case catch char char16_t
	char32_t class compl const constexpr const_cast continue decltype default delete do
	double dynamic_cast else enum explicit export extern false float for friend goto if
	inline int long mutable namespace new noexcept not not_eq nullptr operator or or_eq
	private protected public register reinterpret_cast return short signed sizeof static
	static_assert static_cast struct switch template this thread_local throw true try
	typedef typeid typename union unsigned using virtual void volatile wchar_t while xor
	xor_eq override final

	main metal std simd

	device constant thread threadgroup threadgroup_imageblock ray_data object_data
	kernel vertex fragment visible stage_in

	half uchar ushort uint ulong size_t ptrdiff_t int8_t uint8_t int16_t uint16_t int32_t
	uint32_t int64_t uint64_t bfloat packed_float3 packed_half3 packed_int3 packed_uint3
	texture1d texture1d_array texture2d texture2d_array texture3d texturecube
	texturecube_array texture2d_ms texture2d_ms_array depth2d depth2d_array depthcube
	depthcube_array depth2d_ms depth2d_ms_array sampler access array

	abs acos acosh all any as_type asin asinh atan atan2 atanh ceil clamp cos cosh cross
	degrees determinant dfdx dfdy discard_fragment distance dot exp exp2 exp10 faceforward
	floor fma fmax fmin fmod fract frexp fwidth isfinite isinf isnan ldexp length log log2
	log10 max min mix modf normalize pow powr radians reflect refract rint round rsqrt
	saturate select sign sin sincos sinh smoothstep sqrt step tan tanh transpose trunc
	popcount reverse_bits clz ctz extract_bits insert_bits threadgroup_barrier mem_flags
	level bias gradient2d gradient3d gradientcube min_lod_clamp component
`

// reservedKeywords contains the words above plus the vector and matrix
// spellings of every scalar.
var reservedKeywords = func() map[string]struct{} {
	result := make(map[string]struct{})
	for _, word := range strings.Fields(reservedWords) {
		result[word] = struct{}{}
	}
	for _, scalar := range []string{"bool", "char", "uchar", "short", "ushort", "int", "uint", "long", "ulong", "half", "float"} {
		for n := 2; n <= 4; n++ {
			result[scalar+string(rune('0'+n))] = struct{}{}
		}
	}
	for _, scalar := range []string{"half", "float"} {
		for c := 2; c <= 4; c++ {
			for r := 2; r <= 4; r++ {
				result[scalar+string(rune('0'+c))+"x"+string(rune('0'+r))] = struct{}{}
			}
		}
	}
	return result
}()

// IsReserved checks if a name is reserved in MSL.
func IsReserved(name string) bool {
	if _, ok := reservedKeywords[name]; ok {
		return true
	}
	// Identifiers with a double underscore, or an underscore and a capital,
	// are reserved to the implementation in C++.
	if strings.Contains(name, "__") {
		return true
	}
	return len(name) > 1 && name[0] == '_' && name[1] >= 'A' && name[1] <= 'Z'
}

// Escape returns a safe identifier name. Keywords are prefixed with an
// underscore; names C++ reserves are rewritten so they no longer match.
func Escape(name string) string {
	if name == "" {
		return UnnamedIdentifier
	}
	for strings.Contains(name, "__") {
		name = strings.ReplaceAll(name, "__", "_x")
	}
	if len(name) > 1 && name[0] == '_' && name[1] >= 'A' && name[1] <= 'Z' {
		name = "x" + name
	}
	if _, ok := reservedKeywords[name]; ok {
		return "_" + name
	}
	return name
}
