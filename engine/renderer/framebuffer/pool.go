package framebuffer

import (
	"fmt"
	"log/slog"

	"github.com/Carmen-Shannon/oxy-crt/common"
	"github.com/Carmen-Shannon/oxy-crt/engine/renderer/graph"
)

// Target is a backend render target that can also be sampled as a texture.
type Target interface {
	// Size returns the target's size in pixels.
	Size() common.Size

	// Format returns the target's pixel format.
	Format() common.PixelFormat
}

// Allocator creates and destroys backend render targets for a Pool.
type Allocator interface {
	// CreateTarget allocates a cleared render target.
	//
	// Parameters:
	//   - label: a debug label for the target
	//   - size: the target size in pixels
	//   - format: the pixel format
	//   - mipmap: whether the target needs a full mip chain
	//
	// Returns:
	//   - Target: the new target
	//   - error: an error if the backend could not allocate it
	CreateTarget(label string, size common.Size, format common.PixelFormat, mipmap bool) (Target, error)

	// DestroyTarget releases a target created by CreateTarget.
	DestroyTarget(t Target)
}

// Pool hands out render targets to the passes of one render graph. Retained passes own a
// persistent target for the pool's lifetime; feedback passes own two, swapped every frame; every
// other pass borrows a scratch target that goes back to a free list once its last reader has drawn.
// A Pool is not safe for concurrent use; a session drives it from its render call.
type Pool interface {
	// Acquire returns the target pass renders into this frame, creating or recreating it when
	// nothing of the requested size is available.
	//
	// Parameters:
	//   - pass: the pass index
	//   - size: the pass output size for this frame
	//
	// Returns:
	//   - Target: the target to render into
	//   - error: an error if the allocator fails
	Acquire(pass int, size common.Size) (Target, error)

	// Output returns the target holding pass's output, or nil if it has none this frame.
	Output(pass int) Target

	// Previous returns a feedback pass's output from the previous frame, or nil for other passes.
	Previous(pass int) Target

	// Release returns a scratch pass's target to the free list. It is a no-op for retained passes.
	Release(pass int)

	// Advance ends a frame: feedback passes that rendered swap so their output becomes Previous.
	Advance()

	// Trim destroys every free scratch target.
	Trim()

	// Stats reports the pool's current allocation counts.
	Stats() Stats

	// Dispose destroys every target the pool owns. The pool must not be used afterwards.
	Dispose()
}

// Stats are allocation counters of a Pool.
type Stats struct {
	// Persistent is the number of targets owned by retained passes (two per feedback pass).
	Persistent int
	// ScratchInUse is the number of scratch targets currently borrowed by a pass.
	ScratchInUse int
	// ScratchFree is the number of scratch targets on the free list.
	ScratchFree int
	// Created is the number of targets allocated over the pool's lifetime.
	Created int
}

type scratchKey struct {
	size   common.Size
	format common.PixelFormat
	mipmap bool
}

type slot struct {
	retained bool
	feedback bool
	format   common.PixelFormat
	mipmap   bool

	current  Target
	previous Target
	drawn    bool
}

type pool struct {
	logger *slog.Logger
	alloc  Allocator
	label  string

	slots []slot
	free  map[scratchKey][]Target

	created int
}

var _ Pool = &pool{}

// NewPool creates a Pool for the passes of g.
//
// Parameters:
//   - alloc: the backend allocator
//   - g: the render graph whose retention plan the pool follows
//   - options: optional PoolBuilderOption functions
//
// Returns:
//   - Pool: the pool
func NewPool(alloc Allocator, g *graph.RenderGraph, options ...PoolBuilderOption) Pool {
	p := &pool{
		logger: slog.Default(),
		alloc:  alloc,
		label:  "pass",
		slots:  make([]slot, len(g.Passes)),
		free:   make(map[scratchKey][]Target),
	}
	for i, gp := range g.Passes {
		p.slots[i] = slot{
			retained: gp.Retained,
			feedback: gp.Feedback,
			format:   gp.Format,
			mipmap:   gp.Mipmap,
		}
	}
	for _, opt := range options {
		opt(p)
	}
	return p
}

func (p *pool) Acquire(pass int, size common.Size) (Target, error) {
	s := &p.slots[pass]
	s.drawn = true

	if !s.retained {
		if s.current != nil {
			p.Release(pass)
		}
		key := scratchKey{size: size, format: s.format, mipmap: s.mipmap}
		if list := p.free[key]; len(list) > 0 {
			s.current = list[len(list)-1]
			p.free[key] = list[:len(list)-1]
			return s.current, nil
		}
		t, err := p.create(fmt.Sprintf("%s%d.scratch", p.label, pass), key)
		if err != nil {
			return nil, err
		}
		s.current = t
		return t, nil
	}

	if s.current != nil && s.current.Size() == size {
		return s.current, nil
	}

	key := scratchKey{size: size, format: s.format, mipmap: s.mipmap}
	current, err := p.create(fmt.Sprintf("%s%d", p.label, pass), key)
	if err != nil {
		return nil, err
	}
	var previous Target
	if s.feedback {
		previous, err = p.create(fmt.Sprintf("%s%d.feedback", p.label, pass), key)
		if err != nil {
			p.alloc.DestroyTarget(current)
			return nil, err
		}
	}
	if s.current != nil {
		p.logger.Debug("resizing retained target", "pass", pass, "from", s.current.Size(), "to", size)
	}
	p.destroySlot(s)
	s.current, s.previous = current, previous
	return current, nil
}

func (p *pool) create(label string, key scratchKey) (Target, error) {
	t, err := p.alloc.CreateTarget(label, key.size, key.format, key.mipmap)
	if err != nil {
		return nil, fmt.Errorf("framebuffer: creating %s (%dx%d %s): %w",
			label, key.size.Width, key.size.Height, key.format, err)
	}
	p.created++
	return t, nil
}

func (p *pool) destroySlot(s *slot) {
	if s.current != nil {
		p.alloc.DestroyTarget(s.current)
	}
	if s.previous != nil {
		p.alloc.DestroyTarget(s.previous)
	}
	s.current, s.previous = nil, nil
}

func (p *pool) Output(pass int) Target {
	return p.slots[pass].current
}

func (p *pool) Previous(pass int) Target {
	s := p.slots[pass]
	if !s.feedback {
		return nil
	}
	return s.previous
}

func (p *pool) Release(pass int) {
	s := &p.slots[pass]
	if s.retained || s.current == nil {
		return
	}
	key := scratchKey{size: s.current.Size(), format: s.current.Format(), mipmap: s.mipmap}
	p.free[key] = append(p.free[key], s.current)
	s.current = nil
}

func (p *pool) Advance() {
	for i := range p.slots {
		s := &p.slots[i]
		if s.feedback && s.drawn && s.previous != nil {
			s.current, s.previous = s.previous, s.current
		}
		s.drawn = false
	}
}

func (p *pool) Trim() {
	var n int
	for key, list := range p.free {
		for _, t := range list {
			p.alloc.DestroyTarget(t)
			n++
		}
		delete(p.free, key)
	}
	if n > 0 {
		p.logger.Debug("trimmed scratch targets", "count", n)
	}
}

func (p *pool) Stats() Stats {
	var st Stats
	for _, s := range p.slots {
		switch {
		case s.retained:
			if s.current != nil {
				st.Persistent++
			}
			if s.previous != nil {
				st.Persistent++
			}
		case s.current != nil:
			st.ScratchInUse++
		}
	}
	for _, list := range p.free {
		st.ScratchFree += len(list)
	}
	st.Created = p.created
	return st
}

func (p *pool) Dispose() {
	for i := range p.slots {
		p.destroySlot(&p.slots[i])
	}
	p.Trim()
}
