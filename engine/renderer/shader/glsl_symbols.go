package shader

import "strings"

// glslKeywords are reserved words and qualifiers. They are never references to user symbols.
var glslKeywords = toSet(
	"attribute", "const", "uniform", "varying", "buffer", "shared", "coherent", "volatile",
	"restrict", "readonly", "writeonly", "layout", "centroid", "flat", "smooth", "noperspective",
	"patch", "sample", "break", "continue", "do", "for", "while", "switch", "case", "default",
	"if", "else", "subroutine", "in", "out", "inout", "true", "false", "invariant", "precise",
	"discard", "return", "struct", "precision", "lowp", "mediump", "highp", "defined",
)

// glslTypes are the built-in type names. An identifier following one of these is a declaration.
var glslTypes = toSet(
	"void", "bool", "int", "uint", "float", "double",
	"vec2", "vec3", "vec4", "dvec2", "dvec3", "dvec4",
	"bvec2", "bvec3", "bvec4", "ivec2", "ivec3", "ivec4", "uvec2", "uvec3", "uvec4",
	"mat2", "mat3", "mat4", "mat2x2", "mat2x3", "mat2x4", "mat3x2", "mat3x3", "mat3x4",
	"mat4x2", "mat4x3", "mat4x4", "dmat2", "dmat3", "dmat4",
	"sampler1D", "sampler2D", "sampler3D", "samplerCube", "sampler2DRect", "samplerBuffer",
	"sampler1DShadow", "sampler2DShadow", "samplerCubeShadow", "sampler1DArray", "sampler2DArray",
	"sampler2DArrayShadow", "sampler2DMS", "sampler2DMSArray",
	"isampler2D", "isampler3D", "usampler2D", "usampler3D", "isampler2DArray", "usampler2DArray",
	"texture2D", "texture3D", "textureCube", "texture2DArray", "sampler", "samplerShadow",
	"image2D", "iimage2D", "uimage2D", "atomic_uint",
)

// glslBuiltins are the built-in functions of GLSL 1.40 through 4.50, plus the legacy texture
// functions older modules still call.
var glslBuiltins = toSet(
	"radians", "degrees", "sin", "cos", "tan", "asin", "acos", "atan", "sinh", "cosh", "tanh",
	"asinh", "acosh", "atanh", "pow", "exp", "log", "exp2", "log2", "sqrt", "inversesqrt",
	"abs", "sign", "floor", "trunc", "round", "roundEven", "ceil", "fract", "mod", "modf",
	"min", "max", "clamp", "mix", "step", "smoothstep", "isnan", "isinf",
	"floatBitsToInt", "floatBitsToUint", "intBitsToFloat", "uintBitsToFloat", "fma", "frexp", "ldexp",
	"packUnorm2x16", "packSnorm2x16", "packUnorm4x8", "packSnorm4x8",
	"unpackUnorm2x16", "unpackSnorm2x16", "unpackUnorm4x8", "unpackSnorm4x8",
	"packHalf2x16", "unpackHalf2x16", "packDouble2x32", "unpackDouble2x32",
	"length", "distance", "dot", "cross", "normalize", "faceforward", "reflect", "refract",
	"matrixCompMult", "outerProduct", "transpose", "determinant", "inverse",
	"lessThan", "lessThanEqual", "greaterThan", "greaterThanEqual", "equal", "notEqual",
	"any", "all", "not",
	"textureSize", "textureQueryLod", "textureQueryLevels", "texture", "textureProj", "textureLod",
	"textureOffset", "texelFetch", "texelFetchOffset", "textureProjOffset", "textureLodOffset",
	"textureProjLod", "textureProjLodOffset", "textureGrad", "textureGradOffset", "textureProjGrad",
	"textureProjGradOffset", "textureGather", "textureGatherOffset", "textureGatherOffsets",
	"texture1D", "texture2DLod", "texture2DProj", "texture2DProjLod", "texture3DLod",
	"textureCubeLod", "shadow2D", "shadow2DProj",
	"dFdx", "dFdy", "dFdxFine", "dFdyFine", "dFdxCoarse", "dFdyCoarse",
	"fwidth", "fwidthFine", "fwidthCoarse",
	"interpolateAtCentroid", "interpolateAtSample", "interpolateAtOffset",
	"bitfieldExtract", "bitfieldInsert", "bitfieldReverse", "bitCount", "findLSB", "findMSB",
	"uaddCarry", "usubBorrow", "umulExtended", "imulExtended",
	"EmitVertex", "EndPrimitive", "barrier", "memoryBarrier",
)

// glslPredefinedMacros are macros every GLSL compiler defines.
var glslPredefinedMacros = toSet("__LINE__", "__FILE__", "__VERSION__", "GL_core_profile", "GL_ES", "VULKAN")

func toSet(names ...string) map[string]struct{} {
	set := make(map[string]struct{}, len(names))
	for _, n := range names {
		set[n] = struct{}{}
	}
	return set
}

// isBuiltinName reports whether name is provided by the language itself.
func isBuiltinName(name string) bool {
	if strings.HasPrefix(name, "gl_") || strings.HasPrefix(name, "GL_") {
		return true
	}
	if _, ok := glslKeywords[name]; ok {
		return true
	}
	if _, ok := glslTypes[name]; ok {
		return true
	}
	if _, ok := glslBuiltins[name]; ok {
		return true
	}
	_, ok := glslPredefinedMacros[name]
	return ok
}

// isBuiltinType reports whether name is a built-in GLSL type.
func isBuiltinType(name string) bool {
	_, ok := glslTypes[name]
	return ok
}
