package ir

// BuiltinFunction identifies an intrinsic function called through ExprBuiltin.
type BuiltinFunction uint8

const (
	// Component-wise numeric functions
	BuiltinAbs BuiltinFunction = iota
	BuiltinMin
	BuiltinMax
	BuiltinClamp
	BuiltinSaturate
	BuiltinSign

	// Trigonometric functions
	BuiltinSin
	BuiltinCos
	BuiltinTan
	BuiltinAsin
	BuiltinAcos
	BuiltinAtan
	BuiltinAtan2
	BuiltinSinh
	BuiltinCosh
	BuiltinTanh
	BuiltinRadians
	BuiltinDegrees

	// Decomposition and exponential functions
	BuiltinCeil
	BuiltinFloor
	BuiltinRound
	BuiltinFract
	BuiltinTrunc
	BuiltinExp
	BuiltinExp2
	BuiltinLog
	BuiltinLog2
	BuiltinPow
	BuiltinSqrt
	BuiltinInverseSqrt
	BuiltinFma
	BuiltinMix
	BuiltinStep
	BuiltinSmoothStep

	// Geometric and matrix functions
	BuiltinDot
	BuiltinCross
	BuiltinLength
	BuiltinDistance
	BuiltinNormalize
	BuiltinReflect
	BuiltinTranspose
	BuiltinDeterminant

	// Relational functions
	BuiltinAll
	BuiltinAny

	// Bit manipulation functions
	BuiltinCountOneBits
	BuiltinReverseBits

	// Data packing functions
	BuiltinPack4x8snorm
	BuiltinPack4x8unorm
	BuiltinPack2x16snorm
	BuiltinPack2x16unorm
	BuiltinPack2x16float
	BuiltinUnpack4x8snorm
	BuiltinUnpack4x8unorm
	BuiltinUnpack2x16snorm
	BuiltinUnpack2x16unorm
	BuiltinUnpack2x16float

	// Derivatives (fragment only)
	BuiltinDpdx
	BuiltinDpdy
	BuiltinFwidth

	// Buffer queries, removed by the arrayLength lowering
	BuiltinArrayLength

	// Barriers (void)
	BuiltinStorageBarrier
	BuiltinWorkgroupBarrier
	BuiltinTextureBarrier

	builtinCount
)

var builtinNames = [builtinCount]string{
	BuiltinAbs:              "abs",
	BuiltinMin:              "min",
	BuiltinMax:              "max",
	BuiltinClamp:            "clamp",
	BuiltinSaturate:         "saturate",
	BuiltinSign:             "sign",
	BuiltinSin:              "sin",
	BuiltinCos:              "cos",
	BuiltinTan:              "tan",
	BuiltinAsin:             "asin",
	BuiltinAcos:             "acos",
	BuiltinAtan:             "atan",
	BuiltinAtan2:            "atan2",
	BuiltinSinh:             "sinh",
	BuiltinCosh:             "cosh",
	BuiltinTanh:             "tanh",
	BuiltinRadians:          "radians",
	BuiltinDegrees:          "degrees",
	BuiltinCeil:             "ceil",
	BuiltinFloor:            "floor",
	BuiltinRound:            "round",
	BuiltinFract:            "fract",
	BuiltinTrunc:            "trunc",
	BuiltinExp:              "exp",
	BuiltinExp2:             "exp2",
	BuiltinLog:              "log",
	BuiltinLog2:             "log2",
	BuiltinPow:              "pow",
	BuiltinSqrt:             "sqrt",
	BuiltinInverseSqrt:      "inverseSqrt",
	BuiltinFma:              "fma",
	BuiltinMix:              "mix",
	BuiltinStep:             "step",
	BuiltinSmoothStep:       "smoothstep",
	BuiltinDot:              "dot",
	BuiltinCross:            "cross",
	BuiltinLength:           "length",
	BuiltinDistance:         "distance",
	BuiltinNormalize:        "normalize",
	BuiltinReflect:          "reflect",
	BuiltinTranspose:        "transpose",
	BuiltinDeterminant:      "determinant",
	BuiltinAll:              "all",
	BuiltinAny:              "any",
	BuiltinCountOneBits:     "countOneBits",
	BuiltinReverseBits:      "reverseBits",
	BuiltinPack4x8snorm:     "pack4x8snorm",
	BuiltinPack4x8unorm:     "pack4x8unorm",
	BuiltinPack2x16snorm:    "pack2x16snorm",
	BuiltinPack2x16unorm:    "pack2x16unorm",
	BuiltinPack2x16float:    "pack2x16float",
	BuiltinUnpack4x8snorm:   "unpack4x8snorm",
	BuiltinUnpack4x8unorm:   "unpack4x8unorm",
	BuiltinUnpack2x16snorm:  "unpack2x16snorm",
	BuiltinUnpack2x16unorm:  "unpack2x16unorm",
	BuiltinUnpack2x16float:  "unpack2x16float",
	BuiltinDpdx:             "dpdx",
	BuiltinDpdy:             "dpdy",
	BuiltinFwidth:           "fwidth",
	BuiltinArrayLength:      "arrayLength",
	BuiltinStorageBarrier:   "storageBarrier",
	BuiltinWorkgroupBarrier: "workgroupBarrier",
	BuiltinTextureBarrier:   "textureBarrier",
}

// String returns the WGSL name of the builtin.
func (f BuiltinFunction) String() string {
	if f < builtinCount {
		return builtinNames[f]
	}
	return "unknown"
}

// Arity returns the number of arguments the builtin takes.
func (f BuiltinFunction) Arity() int {
	switch f {
	case BuiltinMin, BuiltinMax, BuiltinAtan2, BuiltinPow, BuiltinStep,
		BuiltinDot, BuiltinCross, BuiltinDistance, BuiltinReflect:
		return 2
	case BuiltinClamp, BuiltinFma, BuiltinMix, BuiltinSmoothStep:
		return 3
	case BuiltinStorageBarrier, BuiltinWorkgroupBarrier, BuiltinTextureBarrier:
		return 0
	default:
		return 1
	}
}

// IsBarrier reports whether the builtin is a void synchronization barrier.
func (f BuiltinFunction) IsBarrier() bool {
	return f == BuiltinStorageBarrier || f == BuiltinWorkgroupBarrier || f == BuiltinTextureBarrier
}

// HasSideEffects reports whether evaluating the builtin is observable beyond its result.
func (f BuiltinFunction) HasSideEffects() bool {
	return f.IsBarrier()
}

// IsPack reports whether the builtin packs a vector into a u32.
func (f BuiltinFunction) IsPack() bool {
	return f >= BuiltinPack4x8snorm && f <= BuiltinPack2x16float
}

// IsUnpack reports whether the builtin unpacks a u32 into a float vector.
func (f BuiltinFunction) IsUnpack() bool {
	return f >= BuiltinUnpack4x8snorm && f <= BuiltinUnpack2x16float
}

// TextureFunction identifies a texture builtin called through ExprTexture.
type TextureFunction uint8

const (
	TextureSample TextureFunction = iota
	TextureSampleLevel
	TextureSampleBias
	TextureSampleGrad
	TextureSampleCompare
	TextureSampleCompareLevel
	TextureGather
	TextureGatherCompare
	TextureLoad
	TextureStore
	TextureDimensions
	TextureNumLevels
	TextureNumLayers
	TextureNumSamples
)

// String returns the WGSL name of the texture builtin.
func (f TextureFunction) String() string {
	switch f {
	case TextureSample:
		return "textureSample"
	case TextureSampleLevel:
		return "textureSampleLevel"
	case TextureSampleBias:
		return "textureSampleBias"
	case TextureSampleGrad:
		return "textureSampleGrad"
	case TextureSampleCompare:
		return "textureSampleCompare"
	case TextureSampleCompareLevel:
		return "textureSampleCompareLevel"
	case TextureGather:
		return "textureGather"
	case TextureGatherCompare:
		return "textureGatherCompare"
	case TextureLoad:
		return "textureLoad"
	case TextureStore:
		return "textureStore"
	case TextureDimensions:
		return "textureDimensions"
	case TextureNumLevels:
		return "textureNumLevels"
	case TextureNumLayers:
		return "textureNumLayers"
	case TextureNumSamples:
		return "textureNumSamples"
	default:
		return "unknown"
	}
}

// IsSampling reports whether the function takes a sampler.
func (f TextureFunction) IsSampling() bool {
	return f <= TextureGatherCompare
}

// IsQuery reports whether the function returns a property of the texture rather than texels.
func (f TextureFunction) IsQuery() bool {
	return f >= TextureDimensions
}
