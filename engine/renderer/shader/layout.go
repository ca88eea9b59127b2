package shader

import (
	"encoding/binary"
	"math"
)

// typeLayout holds the byte size and alignment of a uniform kind inside a std140 block.
type typeLayout struct {
	size  uint64
	align uint64
}

// std140LayoutMap maps every uniform kind that can live in the Globals block to its std140 layout.
var std140LayoutMap = map[UniformKind]typeLayout{
	KindFloat: {4, 4},
	KindInt:   {4, 4},
	KindUint:  {4, 4},
	KindBool:  {4, 4},
	KindVec2:  {8, 8},
	KindVec3:  {12, 16},
	KindVec4:  {16, 16},
	KindMat4:  {64, 16},
}

// roundUpAlign rounds value up to the next multiple of alignment.
// Alignment must be a power of two.
//
// Parameters:
//   - alignment: the required alignment (must be a power of two)
//   - value: the value to align
//
// Returns:
//   - uint64: value rounded up to the next multiple of alignment
func roundUpAlign(alignment, value uint64) uint64 {
	if alignment == 0 {
		return value
	}
	return (value + alignment - 1) &^ (alignment - 1)
}

// UniformField is one member of the std140 Globals block.
type UniformField struct {
	Name   string
	Kind   UniformKind
	Offset uint64
}

// UniformLayout is the std140 layout of every value uniform of a module, in declaration order.
type UniformLayout struct {
	Fields []UniformField

	// Size is the block size rounded up to 16 bytes; it is 0 when the module has no value uniforms.
	Size uint64
}

// Std140Layout lays the value uniforms of a module out as a std140 uniform block.
//
// Parameters:
//   - uniforms: the module's uniforms; samplers are skipped
//
// Returns:
//   - UniformLayout: the block layout
func Std140Layout(uniforms []UniformBinding) UniformLayout {
	var l UniformLayout
	offset := uint64(0)
	for _, u := range uniforms {
		tl, ok := std140LayoutMap[u.Kind]
		if !ok {
			continue
		}
		offset = roundUpAlign(tl.align, offset)
		l.Fields = append(l.Fields, UniformField{Name: u.Name, Kind: u.Kind, Offset: offset})
		offset += tl.size
	}
	if len(l.Fields) > 0 {
		l.Size = roundUpAlign(16, offset)
	}
	return l
}

// Field returns the field for a uniform name.
func (l UniformLayout) Field(name string) (UniformField, bool) {
	for _, f := range l.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return UniformField{}, false
}

// Value is the value of one flat uniform. Float kinds use Floats (column-major for mat4).
type Value struct {
	Kind   UniformKind
	Floats [16]float32
	Int    int32
	Uint   uint32
	Bool   bool
}

// FloatValue returns a float value.
func FloatValue(f float32) Value {
	v := Value{Kind: KindFloat}
	v.Floats[0] = f
	return v
}

// Vec4Value returns a vec4 value.
func Vec4Value(x, y, z, w float32) Value {
	v := Value{Kind: KindVec4}
	v.Floats[0], v.Floats[1], v.Floats[2], v.Floats[3] = x, y, z, w
	return v
}

// UintValue returns a uint value.
func UintValue(u uint32) Value {
	return Value{Kind: KindUint, Uint: u}
}

// IntValue returns an int value.
func IntValue(i int32) Value {
	return Value{Kind: KindInt, Int: i}
}

// Mat4Value returns a mat4 value from column-major components.
func Mat4Value(m [16]float32) Value {
	return Value{Kind: KindMat4, Floats: m}
}

// Convert returns v converted to kind. Scalars widen to vectors by filling x; vectors narrow by
// truncation; numeric kinds convert to each other.
func (v Value) Convert(kind UniformKind) Value {
	if v.Kind == kind {
		return v
	}
	scalar := v.Floats[0]
	switch v.Kind {
	case KindInt:
		scalar = float32(v.Int)
	case KindUint:
		scalar = float32(v.Uint)
	case KindBool:
		if v.Bool {
			scalar = 1
		}
	}
	out := Value{Kind: kind}
	switch kind {
	case KindInt:
		out.Int = int32(scalar)
	case KindUint:
		if scalar > 0 {
			out.Uint = uint32(scalar)
		}
	case KindBool:
		out.Bool = scalar != 0
	case KindFloat:
		out.Floats[0] = scalar
	default:
		if v.Kind == KindInt || v.Kind == KindUint || v.Kind == KindBool {
			out.Floats[0] = scalar
		} else {
			copy(out.Floats[:kind.Components()], v.Floats[:kind.Components()])
		}
	}
	return out
}

// Put writes a value at the field's offset in dst, converting it to the field's kind.
//
// Parameters:
//   - dst: the block's staging buffer, at least Size bytes long
//   - f: the field to write
//   - v: the value
func (f UniformField) Put(dst []byte, v Value) {
	v = v.Convert(f.Kind)
	b := dst[f.Offset:]
	switch f.Kind {
	case KindInt:
		binary.LittleEndian.PutUint32(b, uint32(v.Int))
	case KindUint:
		binary.LittleEndian.PutUint32(b, v.Uint)
	case KindBool:
		var u uint32
		if v.Bool {
			u = 1
		}
		binary.LittleEndian.PutUint32(b, u)
	default:
		for i := 0; i < f.Kind.Components(); i++ {
			binary.LittleEndian.PutUint32(b[i*4:], math.Float32bits(v.Floats[i]))
		}
	}
}
