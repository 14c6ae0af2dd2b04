package builtin

import (
	"fmt"

	"github.com/gogpu/crossgpu/ir"
)

// TypeName spells the scalar or vector type of a shape in the target's syntax.
func TypeName(target Target, class Class, size ir.VectorSize) string {
	switch target {
	case TargetGLSL:
		scalar := map[Class]string{ClassFloat: "float", ClassHalf: "float16_t", ClassSint: "int", ClassUint: "uint", ClassBool: "bool"}[class]
		if size == 0 {
			return scalar
		}
		prefix := map[Class]string{ClassFloat: "", ClassHalf: "f16", ClassSint: "i", ClassUint: "u", ClassBool: "b"}[class]
		return fmt.Sprintf("%svec%d", prefix, size)
	default:
		scalar := map[Class]string{ClassFloat: "float", ClassHalf: "half", ClassSint: "int", ClassUint: "uint", ClassBool: "bool"}[class]
		if size == 0 {
			return scalar
		}
		return fmt.Sprintf("%s%d", scalar, size)
	}
}

func castTemplate(target Target, inner string) func(Shape) Lowering {
	return func(s Shape) Lowering {
		return Lowering{Kind: Template, Template: TypeName(target, s.Class, s.Size) + "(" + inner + ")"}
	}
}

// commonMath lists the builtins every target spells the same way, up to a namespace prefix.
var commonMath = []ir.BuiltinFunction{
	ir.BuiltinAbs, ir.BuiltinMin, ir.BuiltinMax, ir.BuiltinClamp,
	ir.BuiltinSin, ir.BuiltinCos, ir.BuiltinTan, ir.BuiltinAsin, ir.BuiltinAcos, ir.BuiltinAtan,
	ir.BuiltinSinh, ir.BuiltinCosh, ir.BuiltinTanh,
	ir.BuiltinCeil, ir.BuiltinFloor, ir.BuiltinTrunc,
	ir.BuiltinExp, ir.BuiltinExp2, ir.BuiltinLog, ir.BuiltinLog2, ir.BuiltinPow, ir.BuiltinSqrt,
	ir.BuiltinStep, ir.BuiltinSmoothStep,
	ir.BuiltinCross, ir.BuiltinNormalize, ir.BuiltinReflect,
	ir.BuiltinTranspose, ir.BuiltinDeterminant,
}

func glslTable() table {
	t := table{}
	t.same("", commonMath...)
	t.same("", ir.BuiltinRadians, ir.BuiltinDegrees, ir.BuiltinFract, ir.BuiltinFma, ir.BuiltinMix,
		ir.BuiltinLength, ir.BuiltinDistance, ir.BuiltinSign, ir.BuiltinFwidth)
	t.rename("roundEven", ir.BuiltinRound)
	t.rename("inversesqrt", ir.BuiltinInverseSqrt)
	t.rename("atan", ir.BuiltinAtan2)
	t.rename("dFdx", ir.BuiltinDpdx)
	t.rename("dFdy", ir.BuiltinDpdy)

	t.template(ir.BuiltinSaturate, func(s Shape) bool { return s.Class == ClassFloat }, "clamp({0}, 0.0, 1.0)")
	t.template(ir.BuiltinSaturate, func(s Shape) bool { return s.Class == ClassHalf }, "clamp({0}, float16_t(0.0), float16_t(1.0))")

	t.add(ir.BuiltinDot, isFloat, renameTo("dot"))
	t.add(ir.BuiltinDot, both(isVector, isInteger), dotExpansion)

	t.add(ir.BuiltinAll, isVector, renameTo("all"))
	t.template(ir.BuiltinAll, isScalar, "({0})")
	t.add(ir.BuiltinAny, isVector, renameTo("any"))
	t.template(ir.BuiltinAny, isScalar, "({0})")

	// bitCount and bitfieldReverse return signed results.
	t.add(ir.BuiltinCountOneBits, func(s Shape) bool { return s.Class == ClassSint }, renameTo("bitCount"))
	t.add(ir.BuiltinCountOneBits, func(s Shape) bool { return s.Class == ClassUint }, castTemplate(TargetGLSL, "bitCount({0})"))
	t.rename("bitfieldReverse", ir.BuiltinReverseBits)

	t.rename("packSnorm4x8", ir.BuiltinPack4x8snorm)
	t.rename("packUnorm4x8", ir.BuiltinPack4x8unorm)
	t.rename("packSnorm2x16", ir.BuiltinPack2x16snorm)
	t.rename("packUnorm2x16", ir.BuiltinPack2x16unorm)
	t.rename("packHalf2x16", ir.BuiltinPack2x16float)
	t.rename("unpackSnorm4x8", ir.BuiltinUnpack4x8snorm)
	t.rename("unpackUnorm4x8", ir.BuiltinUnpack4x8unorm)
	t.rename("unpackSnorm2x16", ir.BuiltinUnpack2x16snorm)
	t.rename("unpackUnorm2x16", ir.BuiltinUnpack2x16unorm)
	t.rename("unpackHalf2x16", ir.BuiltinUnpack2x16float)

	t.template(ir.BuiltinArrayLength, anyShape, "uint({0}.length())")

	t.template(ir.BuiltinStorageBarrier, anyShape, "memoryBarrierBuffer(); barrier()")
	t.rename("barrier", ir.BuiltinWorkgroupBarrier)
	t.template(ir.BuiltinTextureBarrier, anyShape, "memoryBarrierImage(); barrier()")
	return t
}

func hlslTable() table {
	t := table{}
	t.same("", commonMath...)
	t.same("", ir.BuiltinRadians, ir.BuiltinDegrees, ir.BuiltinSaturate, ir.BuiltinRound, ir.BuiltinAtan2,
		ir.BuiltinLength, ir.BuiltinDistance, ir.BuiltinDot, ir.BuiltinAll, ir.BuiltinAny, ir.BuiltinFwidth)
	t.rename("frac", ir.BuiltinFract)
	t.rename("rsqrt", ir.BuiltinInverseSqrt)
	t.rename("mad", ir.BuiltinFma)
	t.rename("lerp", ir.BuiltinMix)
	t.rename("ddx", ir.BuiltinDpdx)
	t.rename("ddy", ir.BuiltinDpdy)

	// sign() of a float returns int in HLSL.
	t.add(ir.BuiltinSign, isFloat, castTemplate(TargetHLSL, "sign({0})"))
	t.add(ir.BuiltinSign, isInteger, renameTo("sign"))

	t.add(ir.BuiltinCountOneBits, func(s Shape) bool { return s.Class == ClassUint }, renameTo("countbits"))
	t.template(ir.BuiltinCountOneBits, func(s Shape) bool { return s.Class == ClassSint }, "asint(countbits(asuint({0})))")
	t.add(ir.BuiltinReverseBits, func(s Shape) bool { return s.Class == ClassUint }, renameTo("reversebits"))
	t.template(ir.BuiltinReverseBits, func(s Shape) bool { return s.Class == ClassSint }, "asint(reversebits(asuint({0})))")

	t.helper(ir.BuiltinPack4x8snorm, "tint_pack4x8snorm", `uint {name}(float4 value) {
  int4 i = int4(round(clamp(value, -1.0, 1.0) * 127.0)) & 0xff;
  return asuint(i.x | i.y << 8 | i.z << 16 | i.w << 24);
}`)
	t.helper(ir.BuiltinPack4x8unorm, "tint_pack4x8unorm", `uint {name}(float4 value) {
  uint4 i = uint4(round(clamp(value, 0.0, 1.0) * 255.0));
  return i.x | i.y << 8 | i.z << 16 | i.w << 24;
}`)
	t.helper(ir.BuiltinPack2x16snorm, "tint_pack2x16snorm", `uint {name}(float2 value) {
  int2 i = int2(round(clamp(value, -1.0, 1.0) * 32767.0)) & 0xffff;
  return asuint(i.x | i.y << 16);
}`)
	t.helper(ir.BuiltinPack2x16unorm, "tint_pack2x16unorm", `uint {name}(float2 value) {
  uint2 i = uint2(round(clamp(value, 0.0, 1.0) * 65535.0));
  return i.x | i.y << 16;
}`)
	t.helper(ir.BuiltinPack2x16float, "tint_pack2x16float", `uint {name}(float2 value) {
  uint2 i = f32tof16(value);
  return i.x | i.y << 16;
}`)
	t.helper(ir.BuiltinUnpack4x8snorm, "tint_unpack4x8snorm", `float4 {name}(uint value) {
  int4 i = int4(int(value << 24) >> 24, int(value << 16) >> 24, int(value << 8) >> 24, int(value) >> 24);
  return clamp(float4(i) / 127.0, -1.0, 1.0);
}`)
	t.helper(ir.BuiltinUnpack4x8unorm, "tint_unpack4x8unorm", `float4 {name}(uint value) {
  uint4 i = uint4(value & 0xff, (value >> 8) & 0xff, (value >> 16) & 0xff, value >> 24);
  return float4(i) / 255.0;
}`)
	t.helper(ir.BuiltinUnpack2x16snorm, "tint_unpack2x16snorm", `float2 {name}(uint value) {
  int2 i = int2(int(value << 16) >> 16, int(value) >> 16);
  return clamp(float2(i) / 32767.0, -1.0, 1.0);
}`)
	t.helper(ir.BuiltinUnpack2x16unorm, "tint_unpack2x16unorm", `float2 {name}(uint value) {
  uint2 i = uint2(value & 0xffff, value >> 16);
  return float2(i) / 65535.0;
}`)
	t.helper(ir.BuiltinUnpack2x16float, "tint_unpack2x16float", `float2 {name}(uint value) {
  uint2 i = uint2(value & 0xffff, value >> 16);
  return f16tof32(i);
}`)

	t.rename("DeviceMemoryBarrierWithGroupSync", ir.BuiltinStorageBarrier, ir.BuiltinTextureBarrier)
	t.rename("GroupMemoryBarrierWithGroupSync", ir.BuiltinWorkgroupBarrier)
	return t
}

func mslTable() table {
	t := table{}
	t.same("metal::", commonMath...)
	t.same("metal::", ir.BuiltinSaturate, ir.BuiltinAtan2, ir.BuiltinFract, ir.BuiltinFma, ir.BuiltinMix, ir.BuiltinFwidth)
	t.rename("metal::rint", ir.BuiltinRound)
	t.rename("metal::rsqrt", ir.BuiltinInverseSqrt)
	t.rename("metal::dfdx", ir.BuiltinDpdx)
	t.rename("metal::dfdy", ir.BuiltinDpdy)

	// Metal has no degrees/radians.
	t.template(ir.BuiltinDegrees, anyShape, "(({0}) * 57.295779513082322865)")
	t.template(ir.BuiltinRadians, anyShape, "(({0}) * 0.017453292519943295474)")

	// metal::length and metal::distance take vectors only.
	t.add(ir.BuiltinLength, isVector, renameTo("metal::length"))
	t.template(ir.BuiltinLength, isScalar, "metal::abs({0})")
	t.add(ir.BuiltinDistance, isVector, renameTo("metal::distance"))
	t.template(ir.BuiltinDistance, isScalar, "metal::abs(({0}) - ({1}))")

	t.add(ir.BuiltinDot, isFloat, renameTo("metal::dot"))
	t.add(ir.BuiltinDot, both(isVector, isInteger), dotExpansion)

	t.add(ir.BuiltinSign, isFloat, renameTo("metal::sign"))
	t.add(ir.BuiltinSign, func(s Shape) bool { return s.Class == ClassSint }, func(s Shape) Lowering {
		ty := TypeName(TargetMSL, s.Class, s.Size)
		return Lowering{Kind: Template, Template: fmt.Sprintf(
			"metal::select(metal::select(%[1]s(-1), %[1]s(1), ({0}) > 0), %[1]s(0), ({0}) == 0)", ty)}
	})

	t.add(ir.BuiltinAll, isVector, renameTo("metal::all"))
	t.template(ir.BuiltinAll, isScalar, "({0})")
	t.add(ir.BuiltinAny, isVector, renameTo("metal::any"))
	t.template(ir.BuiltinAny, isScalar, "({0})")

	t.rename("metal::popcount", ir.BuiltinCountOneBits)
	t.rename("metal::reverse_bits", ir.BuiltinReverseBits)

	t.rename("metal::pack_float_to_snorm4x8", ir.BuiltinPack4x8snorm)
	t.rename("metal::pack_float_to_unorm4x8", ir.BuiltinPack4x8unorm)
	t.rename("metal::pack_float_to_snorm2x16", ir.BuiltinPack2x16snorm)
	t.rename("metal::pack_float_to_unorm2x16", ir.BuiltinPack2x16unorm)
	t.template(ir.BuiltinPack2x16float, anyShape, "as_type<uint>(half2({0}))")
	t.rename("metal::unpack_snorm4x8_to_float", ir.BuiltinUnpack4x8snorm)
	t.rename("metal::unpack_unorm4x8_to_float", ir.BuiltinUnpack4x8unorm)
	t.rename("metal::unpack_snorm2x16_to_float", ir.BuiltinUnpack2x16snorm)
	t.rename("metal::unpack_unorm2x16_to_float", ir.BuiltinUnpack2x16unorm)
	t.template(ir.BuiltinUnpack2x16float, anyShape, "float2(as_type<half2>({0}))")

	t.template(ir.BuiltinStorageBarrier, anyShape, "metal::threadgroup_barrier(metal::mem_flags::mem_device)")
	t.template(ir.BuiltinWorkgroupBarrier, anyShape, "metal::threadgroup_barrier(metal::mem_flags::mem_threadgroup)")
	t.template(ir.BuiltinTextureBarrier, anyShape, "metal::threadgroup_barrier(metal::mem_flags::mem_texture)")
	return t
}
