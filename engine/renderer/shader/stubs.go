package shader

// Stub is a built-in fallback definition for a symbol commonly provided by shared includes. Stubs
// are the lowest precedence: one is injected only when neither the module nor any include it pulls
// in defines the symbol.
type Stub struct {
	Name   string
	Source string

	// Cosmetic stubs stand in for symbols whose absence cannot change the image; injecting one is
	// reported as a MissingSymbolWarning. Every other stub is structural.
	Cosmetic bool
}

var builtinStubs = []Stub{
	{Name: "PI", Source: "#define PI 3.1415926535897932384626433832795\n"},
	{Name: "TAU", Source: "#define TAU 6.283185307179586476925286766559\n"},
	{Name: "saturate", Source: "#define saturate(c) clamp(c, 0.0, 1.0)\n"},
	{Name: "lerp", Source: "#define lerp(a, b, t) mix(a, b, t)\n"},
	{Name: "mul", Source: "#define mul(a, b) ((b) * (a))\n"},
	{Name: "frac", Source: "#define frac(x) fract(x)\n"},
	{Name: "COMPAT_TEXTURE", Source: "#define COMPAT_TEXTURE(s, uv) texture(s, uv)\n"},
	{Name: "COMPAT_PRECISION", Source: "#define COMPAT_PRECISION\n", Cosmetic: true},
	{Name: "PRECISION", Source: "#define PRECISION\n", Cosmetic: true},
}

// lookupStub finds a stub by name, searching extra stubs before the built-in catalog.
//
// Parameters:
//   - extra: stubs registered on the compiler
//   - name: the symbol name
//
// Returns:
//   - Stub: the stub
//   - bool: false if no stub exists for name
func lookupStub(extra []Stub, name string) (Stub, bool) {
	for _, s := range extra {
		if s.Name == name {
			return s, true
		}
	}
	for _, s := range builtinStubs {
		if s.Name == name {
			return s, true
		}
	}
	return Stub{}, false
}
