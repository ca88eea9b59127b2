package framebuffer

import (
	"errors"
	"fmt"
	"testing"

	"github.com/Carmen-Shannon/oxy-crt/common"
	"github.com/Carmen-Shannon/oxy-crt/engine/preset"
	"github.com/Carmen-Shannon/oxy-crt/engine/renderer/graph"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeTarget struct {
	id     int
	label  string
	size   common.Size
	format common.PixelFormat
	mipmap bool
}

func (t *fakeTarget) Size() common.Size          { return t.size }
func (t *fakeTarget) Format() common.PixelFormat { return t.format }

type fakeAllocator struct {
	next      int
	live      map[int]*fakeTarget
	destroyed int
	fail      bool
}

func newFakeAllocator() *fakeAllocator {
	return &fakeAllocator{live: make(map[int]*fakeTarget)}
}

func (a *fakeAllocator) CreateTarget(label string, size common.Size, format common.PixelFormat, mipmap bool) (Target, error) {
	if a.fail {
		return nil, errors.New("out of memory")
	}
	a.next++
	t := &fakeTarget{id: a.next, label: label, size: size, format: format, mipmap: mipmap}
	a.live[t.id] = t
	return t, nil
}

func (a *fakeAllocator) DestroyTarget(t Target) {
	delete(a.live, t.(*fakeTarget).id)
	a.destroyed++
}

func renderGraph(passes ...graph.Pass) *graph.RenderGraph {
	for i := range passes {
		passes[i].Index = i
	}
	return &graph.RenderGraph{Passes: passes}
}

var frameSize = common.Size{Width: 320, Height: 240}

// frame drives a pool the way a session does: acquire, then release each scratch producer once its
// last reader has drawn.
func frame(t *testing.T, p Pool, g *graph.RenderGraph) {
	t.Helper()
	for i := range g.Passes {
		_, err := p.Acquire(i, frameSize)
		require.NoError(t, err)
		for k, producer := range g.Passes[:i+1] {
			if producer.LastReader == i || (k == i && producer.LastReader < 0) {
				p.Release(k)
			}
		}
	}
	p.Advance()
}

func TestPoolScratchPingPong(t *testing.T) {
	alloc := newFakeAllocator()
	g := renderGraph(
		graph.Pass{LastReader: 1},
		graph.Pass{LastReader: 2},
		graph.Pass{LastReader: -1},
	)
	p := NewPool(alloc, g)

	a, err := p.Acquire(0, frameSize)
	require.NoError(t, err)
	b, err := p.Acquire(1, frameSize)
	require.NoError(t, err)
	assert.NotSame(t, a, b, "a reader and its producer never share a target")

	p.Release(0)
	c, err := p.Acquire(2, frameSize)
	require.NoError(t, err)
	assert.Same(t, a, c, "pass 2 reuses pass 0's released target")

	p.Release(1)
	p.Release(2)
	p.Advance()
	assert.Equal(t, Stats{ScratchFree: 2, Created: 2}, p.Stats())

	frame(t, p, g)
	frame(t, p, g)
	assert.Equal(t, 2, p.Stats().Created, "steady state allocates nothing")
}

func TestPoolUnreferencedPassFreesScratch(t *testing.T) {
	alloc := newFakeAllocator()
	g := renderGraph(
		graph.Pass{LastReader: 1},
		graph.Pass{LastReader: -1},
		graph.Pass{LastReader: -1},
	)
	p := NewPool(alloc, g)

	_, err := p.Acquire(0, frameSize)
	require.NoError(t, err)
	_, err = p.Acquire(1, frameSize)
	require.NoError(t, err)
	p.Release(0)
	p.Release(1)
	assert.Nil(t, p.Output(1))
	assert.Equal(t, 2, p.Stats().ScratchFree)

	_, err = p.Acquire(2, frameSize)
	require.NoError(t, err)
	assert.Equal(t, Stats{ScratchInUse: 1, ScratchFree: 1, Created: 2}, p.Stats())
}

func TestPoolRetainedTargetsPersist(t *testing.T) {
	alloc := newFakeAllocator()
	g := renderGraph(
		graph.Pass{Retained: true, LastReader: 2, Format: common.FormatRGBA16Float},
		graph.Pass{LastReader: 2},
		graph.Pass{LastReader: -1},
	)
	p := NewPool(alloc, g)

	frame(t, p, g)
	first := p.Output(0)
	require.NotNil(t, first)
	assert.Equal(t, common.FormatRGBA16Float, first.Format())

	p.Release(0)
	assert.Same(t, first, p.Output(0), "releasing a retained pass is a no-op")

	frame(t, p, g)
	assert.Same(t, first, p.Output(0))
	assert.Equal(t, 1, p.Stats().Persistent)
}

func TestPoolResizeRecreatesRetained(t *testing.T) {
	alloc := newFakeAllocator()
	g := renderGraph(graph.Pass{Retained: true, LastReader: -1})
	p := NewPool(alloc, g)

	small, err := p.Acquire(0, frameSize)
	require.NoError(t, err)
	large, err := p.Acquire(0, common.Size{Width: 640, Height: 480})
	require.NoError(t, err)

	assert.NotSame(t, small, large)
	assert.Equal(t, common.Size{Width: 640, Height: 480}, large.Size())
	assert.Equal(t, 1, alloc.destroyed)
	assert.Len(t, alloc.live, 1)
}

func TestPoolFeedbackSwaps(t *testing.T) {
	alloc := newFakeAllocator()
	g := renderGraph(graph.Pass{Retained: true, Feedback: true, LastReader: -1})
	p := NewPool(alloc, g)

	current, err := p.Acquire(0, frameSize)
	require.NoError(t, err)
	previous := p.Previous(0)
	require.NotNil(t, previous)
	assert.NotSame(t, current, previous)
	assert.Equal(t, 2, p.Stats().Persistent)

	p.Advance()
	assert.Same(t, current, p.Previous(0), "last frame's output becomes the feedback texture")
	assert.Same(t, previous, p.Output(0))

	p.Advance()
	assert.Same(t, current, p.Previous(0), "a pass that did not draw keeps its feedback")
}

func TestPoolScratchKeyedBySizeAndFormat(t *testing.T) {
	alloc := newFakeAllocator()
	g := renderGraph(
		graph.Pass{LastReader: -1},
		graph.Pass{LastReader: -1, Format: common.FormatRGBA16Float},
	)
	p := NewPool(alloc, g)

	_, err := p.Acquire(0, frameSize)
	require.NoError(t, err)
	p.Release(0)

	float, err := p.Acquire(1, frameSize)
	require.NoError(t, err)
	assert.Equal(t, common.FormatRGBA16Float, float.Format())

	other, err := p.Acquire(0, common.Size{Width: 64, Height: 64})
	require.NoError(t, err)
	assert.Equal(t, common.Size{Width: 64, Height: 64}, other.Size())
	assert.Equal(t, 3, p.Stats().Created)

	p.Release(0)
	p.Release(1)
	p.Trim()
	assert.Empty(t, alloc.live)
}

func TestPoolAllocatorFailure(t *testing.T) {
	alloc := newFakeAllocator()
	alloc.fail = true
	p := NewPool(alloc, renderGraph(graph.Pass{LastReader: -1}), WithLabel("crt"))

	_, err := p.Acquire(0, frameSize)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "crt0.scratch")
	assert.Contains(t, err.Error(), "out of memory")
}

func TestPoolDispose(t *testing.T) {
	alloc := newFakeAllocator()
	g := renderGraph(
		graph.Pass{Retained: true, Feedback: true, LastReader: 1},
		graph.Pass{LastReader: -1},
	)
	p := NewPool(alloc, g)
	frame(t, p, g)
	require.NotEmpty(t, alloc.live)

	p.Dispose()
	assert.Empty(t, alloc.live)
}

func TestPassSizes(t *testing.T) {
	tests := []struct {
		name   string
		scales [][2]preset.Scale
		want   []common.Size
	}{
		{
			name: "source then viewport",
			scales: [][2]preset.Scale{
				{{Type: preset.ScaleSource, Factor: 2}, {Type: preset.ScaleSource, Factor: 2}},
				{{Type: preset.ScaleViewport, Factor: 1}, {Type: preset.ScaleViewport, Factor: 1}},
			},
			want: []common.Size{{Width: 640, Height: 480}, {Width: 1920, Height: 1080}},
		},
		{
			name: "mixed axes",
			scales: [][2]preset.Scale{
				{{Type: preset.ScaleAbsolute, Factor: 800}, {Type: preset.ScaleSource, Factor: 0.5}},
				{{Type: preset.ScaleSource, Factor: 1}, {Type: preset.ScaleViewport, Factor: 0.5}},
			},
			want: []common.Size{{Width: 800, Height: 120}, {Width: 800, Height: 540}},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var passes []graph.Pass
			for _, s := range tt.scales {
				passes = append(passes, graph.Pass{ScaleX: s[0], ScaleY: s[1]})
			}
			got := PassSizes(renderGraph(passes...), frameSize, common.Size{Width: 1920, Height: 1080})
			assert.Equal(t, tt.want, got, fmt.Sprint(tt.scales))
		})
	}
}
