package engine

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/Carmen-Shannon/oxy-crt/engine/renderer"
)

// parameterSession is the part of a session the parameter controls drive.
type parameterSession interface {
	Parameters() []renderer.ParameterState
	SetParameter(name string, value float32) error
}

// controls steps the parameters of the active session from the keyboard and scroll wheel.
type controls struct {
	session  parameterSession
	selected int
}

func (c *controls) reset(s parameterSession) {
	c.session = s
	c.selected = 0
}

func (c *controls) current() (renderer.ParameterState, bool) {
	if c.session == nil {
		return renderer.ParameterState{}, false
	}
	params := c.session.Parameters()
	if len(params) == 0 {
		return renderer.ParameterState{}, false
	}
	c.selected = min(c.selected, len(params)-1)
	return params[c.selected], true
}

// move selects the parameter delta places away, wrapping at either end.
func (c *controls) move(delta int) {
	if c.session == nil {
		return
	}
	n := len(c.session.Parameters())
	if n == 0 {
		return
	}
	c.selected = ((c.selected+delta)%n + n) % n
}

// step changes the selected parameter by steps increments of its declared step. Parameters declared
// without a step move by a hundredth of their range.
func (c *controls) step(steps int) (renderer.ParameterState, error) {
	p, ok := c.current()
	if !ok {
		return renderer.ParameterState{}, fmt.Errorf("no parameters")
	}
	inc := p.Step
	if inc <= 0 {
		inc = (p.Max - p.Min) / 100
	}
	if err := c.session.SetParameter(p.Name, p.Value+float32(steps)*inc); err != nil {
		return p, err
	}
	p, _ = c.current()
	return p, nil
}

// title is the window title for the preset and the selected parameter.
func (c *controls) title(base, preset string) string {
	if preset == "" {
		return base
	}
	t := base + " - " + filepath.Base(preset)
	if p, ok := c.current(); ok {
		label := p.Label
		if label == "" {
			label = p.Name
		}
		t += fmt.Sprintf(" - %s: %.3g", strings.TrimSpace(label), p.Value)
	}
	return t
}

// presetLocation splits a preset path into the directory the resolver is rooted at and the preset
// path within it. Paths under the shader root stay relative to it so presets can reach shared
// modules beside their own directory.
func presetLocation(shaderRoot, path string) (root, rel string) {
	if !filepath.IsAbs(path) {
		return shaderRoot, filepath.ToSlash(filepath.Clean(path))
	}
	if absRoot, err := filepath.Abs(shaderRoot); err == nil {
		if r, err := filepath.Rel(absRoot, path); err == nil && r != ".." && !strings.HasPrefix(r, ".."+string(filepath.Separator)) {
			return absRoot, filepath.ToSlash(r)
		}
	}
	return filepath.Dir(path), filepath.Base(path)
}
