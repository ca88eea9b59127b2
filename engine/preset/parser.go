package preset

import (
	"slices"
	"strconv"
	"strings"

	"cogentcore.org/core/base/keylist"
	"github.com/Carmen-Shannon/oxy-crt/common"
)

// entry is one `key = value` line.
type entry struct {
	value string
	line  int
	used  bool
}

// Per-pass key bases. The pass index is appended to each, e.g. "shader0", "scale_type_x2".
const (
	keyShader           = "shader"
	keyAlias            = "alias"
	keyScaleType        = "scale_type"
	keyScaleTypeX       = "scale_type_x"
	keyScaleTypeY       = "scale_type_y"
	keyScale            = "scale"
	keyScaleX           = "scale_x"
	keyScaleY           = "scale_y"
	keyFilterLinear     = "filter_linear"
	keyWrapMode         = "wrap_mode"
	keyMipmapInput      = "mipmap_input"
	keyFloatFramebuffer = "float_framebuffer"
	keyFloatFramework   = "float_framework"
	keySRGBFramebuffer  = "srgb_framebuffer"
	keyFrameCountMod    = "frame_count_mod"
)

// passKeys lists every per-pass key base. Longer bases that share a prefix with a shorter one
// (scale_type_x vs scale_type) are matched by exact base, so order does not matter.
var passKeys = []string{
	keyShader, keyAlias, keyScaleType, keyScaleTypeX, keyScaleTypeY, keyScale, keyScaleX, keyScaleY,
	keyFilterLinear, keyWrapMode, keyMipmapInput, keyFloatFramebuffer, keyFloatFramework,
	keySRGBFramebuffer, keyFrameCountMod,
}

// Parse parses preset text into a Preset.
// Passes are collected from shaderN keys and ordered by N, not by their position in the file.
//
// Parameters:
//   - text: the preset file content
//
// Returns:
//   - *Preset: the parsed preset
//   - error: a *ParseError naming the malformed key
func Parse(text string) (*Preset, error) {
	return ParseFile("", text)
}

// ParseFile parses preset text that was loaded from basePath. Module and texture paths in the preset
// are resolved relative to the directory of basePath.
//
// Parameters:
//   - basePath: the resolver path the preset was read from (may be empty)
//   - text: the preset file content
//
// Returns:
//   - *Preset: the parsed preset
//   - error: a *ParseError naming the malformed key
func ParseFile(basePath, text string) (*Preset, error) {
	entries, err := tokenizeLines(text)
	if err != nil {
		return nil, err
	}

	p := &Preset{
		BasePath:   common.CleanPath(basePath),
		Parameters: keylist.New[string, float32](),
		Extra:      map[string]string{},
	}

	// Overrides first: a parameter name must never be mistaken for a per-pass key.
	if err := parseParameters(p, entries); err != nil {
		return nil, err
	}
	if err := parseTextures(p, entries); err != nil {
		return nil, err
	}
	if err := parsePasses(p, entries); err != nil {
		return nil, err
	}

	for i, key := range entries.Keys {
		if e := entries.Values[i]; !e.used {
			p.Extra[key] = e.value
		}
	}
	return p, nil
}

// tokenizeLines splits preset text into an ordered key table. Repeated keys keep their first
// position but take the last value.
func tokenizeLines(text string) (*keylist.List[string, *entry], error) {
	entries := keylist.New[string, *entry]()
	for i, raw := range strings.Split(text, "\n") {
		lineNum := i + 1
		line := strings.TrimSpace(strings.TrimSuffix(raw, "\r"))
		if line == "" || strings.HasPrefix(line, "#") || strings.HasPrefix(line, "//") {
			continue
		}

		key, value, ok := strings.Cut(line, "=")
		if !ok {
			return nil, &ParseError{Line: lineNum, Key: line, Msg: "expected key = value"}
		}
		key = strings.TrimSpace(key)
		if key == "" {
			return nil, &ParseError{Line: lineNum, Key: line, Msg: "empty key"}
		}

		value = strings.TrimSpace(value)
		if strings.HasPrefix(value, `"`) {
			end := strings.Index(value[1:], `"`)
			if end < 0 {
				return nil, &ParseError{Line: lineNum, Key: key, Msg: "unterminated quoted value"}
			}
			value = value[1 : end+1]
		} else if idx := strings.Index(value, "#"); idx >= 0 {
			value = strings.TrimSpace(value[:idx])
		}

		entries.Set(key, &entry{value: value, line: lineNum})
	}
	return entries, nil
}

// splitList splits a `;` or `,` separated name list, dropping empty elements.
func splitList(s string) []string {
	fields := strings.FieldsFunc(s, func(r rune) bool {
		return r == ';' || r == ','
	})
	out := fields[:0]
	for _, f := range fields {
		if f = strings.TrimSpace(f); f != "" {
			out = append(out, f)
		}
	}
	return out
}

func parseParameters(p *Preset, entries *keylist.List[string, *entry]) error {
	list, ok := entries.AtTry("parameters")
	if !ok {
		return nil
	}
	list.used = true

	for _, name := range splitList(list.value) {
		e, ok := entries.AtTry(name)
		if !ok {
			return &ParseError{Line: list.line, Key: name, Msg: "parameter listed without a value"}
		}
		v, err := strconv.ParseFloat(e.value, 32)
		if err != nil {
			return &ParseError{Line: e.line, Key: name, Msg: "parameter value is not a number", Err: err}
		}
		e.used = true
		p.Parameters.Set(name, float32(v))
	}
	return nil
}

func parseTextures(p *Preset, entries *keylist.List[string, *entry]) error {
	list, ok := entries.AtTry("textures")
	if !ok {
		return nil
	}
	list.used = true

	for _, name := range splitList(list.value) {
		e, ok := entries.AtTry(name)
		if !ok || e.value == "" {
			return &ParseError{Line: list.line, Key: name, Msg: "texture listed without a path"}
		}
		e.used = true
		t := Texture{Name: name, Path: e.value, Linear: true}

		if le, ok := entries.AtTry(name + "_linear"); ok {
			v, err := strconv.ParseBool(le.value)
			if err != nil {
				return &ParseError{Line: le.line, Key: name + "_linear", Msg: "expected a boolean", Err: err}
			}
			le.used = true
			t.Linear = v
		}
		if we, ok := entries.AtTry(name + "_wrap_mode"); ok {
			w, err := common.ParseWrapMode(we.value)
			if err != nil {
				return &ParseError{Line: we.line, Key: name + "_wrap_mode", Msg: "invalid wrap mode", Err: err}
			}
			we.used = true
			t.Wrap = w
		}
		if me, ok := entries.AtTry(name + "_mipmap"); ok {
			v, err := strconv.ParseBool(me.value)
			if err != nil {
				return &ParseError{Line: me.line, Key: name + "_mipmap", Msg: "expected a boolean", Err: err}
			}
			me.used = true
			t.Mipmap = v
		}
		p.Textures = append(p.Textures, t)
	}
	return nil
}

// indexedKey splits a per-pass key such as "scale_type_x2" into its base and index.
func indexedKey(key string) (string, int, bool) {
	end := len(key)
	start := end
	for start > 0 && key[start-1] >= '0' && key[start-1] <= '9' {
		start--
	}
	if start == end || start == 0 {
		return "", 0, false
	}
	base := key[:start]
	if !slices.Contains(passKeys, base) {
		return "", 0, false
	}
	idx, err := strconv.Atoi(key[start:])
	if err != nil {
		return "", 0, false
	}
	return base, idx, true
}

func parsePasses(p *Preset, entries *keylist.List[string, *entry]) error {
	// Group per-pass keys by their numeric suffix.
	byIndex := map[int]map[string]*entry{}
	for i, key := range entries.Keys {
		e := entries.Values[i]
		if e.used {
			continue
		}
		base, idx, ok := indexedKey(key)
		if !ok {
			continue
		}
		if byIndex[idx] == nil {
			byIndex[idx] = map[string]*entry{}
		}
		byIndex[idx][base] = e
		e.used = true
	}

	var indices []int
	for idx, keys := range byIndex {
		if _, ok := keys[keyShader]; !ok {
			for _, base := range passKeys {
				if e, ok := keys[base]; ok {
					return &ParseError{Line: e.line, Key: base + strconv.Itoa(idx), Msg: "pass has no " + keyShader + strconv.Itoa(idx)}
				}
			}
		}
		indices = append(indices, idx)
	}
	slices.Sort(indices)

	if se, ok := entries.AtTry("shaders"); ok {
		se.used = true
		n, err := strconv.Atoi(se.value)
		if err != nil {
			return &ParseError{Line: se.line, Key: "shaders", Msg: "expected an integer", Err: err}
		}
		if n != len(indices) {
			return &ParseError{Line: se.line, Key: "shaders", Msg: "declares " + strconv.Itoa(n) + " passes but " + strconv.Itoa(len(indices)) + " shaderN keys are present"}
		}
	}
	if len(indices) == 0 {
		return &ParseError{Key: keyShader + "0", Msg: "preset declares no passes"}
	}

	p.Passes = make([]Pass, len(indices))
	for pos, idx := range indices {
		pass, err := parsePass(pos, idx, byIndex[idx], pos == len(indices)-1)
		if err != nil {
			return err
		}
		p.Passes[pos] = pass
	}
	return nil
}

func parsePass(pos, idx int, keys map[string]*entry, last bool) (Pass, error) {
	suffix := strconv.Itoa(idx)
	fail := func(base, msg string, err error) error {
		return &ParseError{Line: keys[base].line, Key: base + suffix, Msg: msg, Err: err}
	}

	pass := Pass{
		Index:  pos,
		Path:   keys[keyShader].value,
		ScaleX: Scale{Type: ScaleSource, Factor: 1},
		ScaleY: Scale{Type: ScaleSource, Factor: 1},
	}
	if pass.Path == "" {
		return pass, fail(keyShader, "empty module path", nil)
	}
	if e, ok := keys[keyAlias]; ok {
		pass.Alias = e.value
	}

	scaleType := func(base string, dst ...*Scale) error {
		e, ok := keys[base]
		if !ok {
			return nil
		}
		st, err := ParseScaleType(e.value)
		if err != nil {
			return fail(base, "invalid scale type", err)
		}
		for _, d := range dst {
			d.Type = st
		}
		pass.ScaleSet = true
		return nil
	}
	scaleFactor := func(base string, dst ...*Scale) error {
		e, ok := keys[base]
		if !ok {
			return nil
		}
		f, err := strconv.ParseFloat(e.value, 32)
		if err != nil || f <= 0 {
			return fail(base, "scale must be a positive number", err)
		}
		for _, d := range dst {
			d.Factor = float32(f)
		}
		pass.ScaleSet = true
		return nil
	}
	for _, step := range []error{
		scaleType(keyScaleType, &pass.ScaleX, &pass.ScaleY),
		scaleType(keyScaleTypeX, &pass.ScaleX),
		scaleType(keyScaleTypeY, &pass.ScaleY),
		scaleFactor(keyScale, &pass.ScaleX, &pass.ScaleY),
		scaleFactor(keyScaleX, &pass.ScaleX),
		scaleFactor(keyScaleY, &pass.ScaleY),
	} {
		if step != nil {
			return pass, step
		}
	}
	for axis, s := range map[string]Scale{"x": pass.ScaleX, "y": pass.ScaleY} {
		if s.Type != ScaleAbsolute {
			continue
		}
		_, shared := keys[keyScale]
		_, own := keys[keyScale+"_"+axis]
		if !shared && !own {
			return pass, fail(keyScaleType, "absolute scale requires a scale in pixels", nil)
		}
	}
	if last && !pass.ScaleSet {
		pass.ScaleX = Scale{Type: ScaleViewport, Factor: 1}
		pass.ScaleY = Scale{Type: ScaleViewport, Factor: 1}
	}

	boolKey := func(base string, dst *bool) error {
		e, ok := keys[base]
		if !ok {
			return nil
		}
		v, err := strconv.ParseBool(e.value)
		if err != nil {
			return fail(base, "expected a boolean", err)
		}
		*dst = v
		return nil
	}

	var linear bool
	if _, ok := keys[keyFilterLinear]; ok {
		if err := boolKey(keyFilterLinear, &linear); err != nil {
			return pass, err
		}
		pass.Filter = FilterNearest
		if linear {
			pass.Filter = FilterLinear
		}
	}
	if e, ok := keys[keyWrapMode]; ok {
		w, err := common.ParseWrapMode(e.value)
		if err != nil {
			return pass, fail(keyWrapMode, "invalid wrap mode", err)
		}
		pass.Wrap = w
	}
	for _, b := range []struct {
		base string
		dst  *bool
	}{
		{keyMipmapInput, &pass.MipmapInput},
		{keyFloatFramebuffer, &pass.FloatFramebuffer},
		{keyFloatFramework, &pass.FloatFramebuffer},
		{keySRGBFramebuffer, &pass.SRGBFramebuffer},
	} {
		if err := boolKey(b.base, b.dst); err != nil {
			return pass, err
		}
	}
	if e, ok := keys[keyFrameCountMod]; ok {
		n, err := strconv.ParseUint(e.value, 10, 32)
		if err != nil {
			return pass, fail(keyFrameCountMod, "expected a non-negative integer", err)
		}
		pass.FrameCountMod = uint32(n)
	}
	return pass, nil
}
