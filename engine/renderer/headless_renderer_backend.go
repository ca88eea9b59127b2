package renderer

import (
	"fmt"
	"regexp"
	"strings"
	"sync"

	"github.com/Carmen-Shannon/oxy-crt/common"
	"github.com/Carmen-Shannon/oxy-crt/engine/renderer/framebuffer"
	"github.com/Carmen-Shannon/oxy-crt/engine/renderer/pipeline"
	"github.com/Carmen-Shannon/oxy-crt/engine/renderer/shader"
)

// headlessTexture is a texture or pass target of the headless backend. Only uploaded textures keep pixels.
type headlessTexture struct {
	id     int
	label  string
	size   common.Size
	format common.PixelFormat
	mipmap bool
	target bool
	pixels []byte
}

func (t *headlessTexture) Size() common.Size          { return t.size }
func (t *headlessTexture) Format() common.PixelFormat { return t.format }

// headlessRendererBackend records every call instead of talking to a GPU.
type headlessRendererBackend struct {
	mu sync.Mutex

	size        common.Size
	presentMode PresentMode
	nextID      int
	live        map[int]*headlessTexture
	pipelines   map[string]pipeline.Pipeline
	nextProgram uint32

	inFrame bool
	pending []DrawCommand
	draws   []DrawCommand
	frames  int
	aborted int
	mipmaps []int
	present []int

	// failPipeline, failDraw and failTarget inject errors for the pipeline key, pass index or
	// target label they name.
	failPipeline map[string]error
	failDraw     map[int]error
	failTarget   map[string]error
}

var _ RendererBackend = &headlessRendererBackend{}

// newHeadlessRendererBackend creates a recording backend whose surface is width × height.
func newHeadlessRendererBackend(width, height int) *headlessRendererBackend {
	return &headlessRendererBackend{
		size:         common.Size{Width: width, Height: height},
		live:         make(map[int]*headlessTexture),
		pipelines:    make(map[string]pipeline.Pipeline),
		failPipeline: make(map[string]error),
		failDraw:     make(map[int]error),
		failTarget:   make(map[string]error),
	}
}

func (b *headlessRendererBackend) Type() RendererBackendType {
	return BackendTypeHeadless
}

func (b *headlessRendererBackend) allocate(label string, size common.Size, format common.PixelFormat, mipmap, target bool) *headlessTexture {
	b.nextID++
	t := &headlessTexture{id: b.nextID, label: label, size: size, format: format, mipmap: mipmap, target: target}
	b.live[t.id] = t
	return t
}

func (b *headlessRendererBackend) CreateTarget(label string, size common.Size, format common.PixelFormat, mipmap bool) (framebuffer.Target, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.failTarget[label]; err != nil {
		return nil, err
	}
	if size.Empty() {
		return nil, fmt.Errorf("empty target size %dx%d", size.Width, size.Height)
	}
	return b.allocate(label, size, format, mipmap, true), nil
}

func (b *headlessRendererBackend) DestroyTarget(t framebuffer.Target) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if ht, ok := t.(*headlessTexture); ok {
		delete(b.live, ht.id)
	}
}

func (b *headlessRendererBackend) RegisterPipeline(p pipeline.Pipeline) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.failPipeline[p.PipelineKey()]; err != nil {
		return err
	}
	if p.Type() == pipeline.PipelineTypePass && p.Module() == nil {
		return fmt.Errorf("pipeline %s has no module", p.PipelineKey())
	}
	if m := p.Module(); m != nil {
		if err := checkStageDeclarations(m); err != nil {
			return fmt.Errorf("pipeline %s: %w", p.PipelineKey(), err)
		}
	}
	b.nextProgram++
	p.SetProgram(b.nextProgram)
	b.pipelines[p.PipelineKey()] = p
	return nil
}

// checkStageDeclarations stands in for the driver's compiler: every uniform must be declared in each
// stage that can see it, and every emulated member must be copied from its flat uniform there.
func checkStageDeclarations(m *shader.CompiledModule) error {
	stages := []struct {
		stage shader.Stage
		text  string
	}{
		{shader.StageVertex, m.Vertex},
		{shader.StageFragment, m.Fragment},
	}
	for _, u := range m.Uniforms {
		decl := regexp.MustCompile(`\buniform\b[^;{}]*\b` + regexp.QuoteMeta(u.Name) + `\s*(\[[^\]]*\])?\s*;`)
		for _, st := range stages {
			if !u.Stage.Visible(st.stage) {
				continue
			}
			if !decl.MatchString(st.text) {
				return fmt.Errorf("%s stage does not declare uniform %s", st.stage, u.Name)
			}
			if u.Name != u.Semantic && !strings.Contains(st.text, u.Semantic+" = "+u.Name+";") {
				return fmt.Errorf("%s stage never initializes %s from %s", st.stage, u.Semantic, u.Name)
			}
		}
	}
	return nil
}

func (b *headlessRendererBackend) ReleasePipeline(p pipeline.Pipeline) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.pipelines[p.PipelineKey()] == p {
		delete(b.pipelines, p.PipelineKey())
	}
	p.SetProgram(0)
}

func (b *headlessRendererBackend) CreateTexture(label string, data common.TextureStagingData, mipmap bool) (Texture, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.failTarget[label]; err != nil {
		return nil, err
	}
	if len(data.Pixels) != int(data.Width*data.Height*4) {
		return nil, fmt.Errorf("texture %s: %d bytes for %dx%d", label, len(data.Pixels), data.Width, data.Height)
	}
	t := b.allocate(label, common.Size{Width: int(data.Width), Height: int(data.Height)}, common.FormatRGBA8Unorm, mipmap, false)
	t.pixels = append([]byte(nil), data.Pixels...)
	return t, nil
}

func (b *headlessRendererBackend) WriteTexture(t Texture, data common.TextureStagingData) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	ht := t.(*headlessTexture)
	if ht.size != (common.Size{Width: int(data.Width), Height: int(data.Height)}) {
		return fmt.Errorf("texture %s: writing %dx%d into %dx%d", ht.label, data.Width, data.Height, ht.size.Width, ht.size.Height)
	}
	ht.pixels = append(ht.pixels[:0], data.Pixels...)
	return nil
}

func (b *headlessRendererBackend) DestroyTexture(t Texture) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if ht, ok := t.(*headlessTexture); ok {
		delete(b.live, ht.id)
	}
}

func (b *headlessRendererBackend) GenerateMipmaps(t Texture) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.mipmaps = append(b.mipmaps, t.(*headlessTexture).id)
}

func (b *headlessRendererBackend) BeginFrame() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.inFrame {
		return fmt.Errorf("frame already begun")
	}
	b.inFrame = true
	b.pending = b.pending[:0]
	return nil
}

func (b *headlessRendererBackend) Draw(cmd DrawCommand) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.inFrame {
		return fmt.Errorf("draw outside a frame")
	}
	if err := b.failDraw[cmd.Pass]; err != nil {
		return err
	}
	if cmd.Pipeline.Program() == 0 {
		return fmt.Errorf("pipeline %s is not registered", cmd.Pipeline.PipelineKey())
	}
	for _, u := range cmd.Textures {
		if u.Texture == nil {
			return fmt.Errorf("texture unit %d (%s) is unbound", u.Unit, u.Name)
		}
		if u.Texture == Texture(cmd.Target) {
			return fmt.Errorf("texture unit %d (%s) samples the target being drawn", u.Unit, u.Name)
		}
	}
	cmd.Textures = append([]TextureUnit(nil), cmd.Textures...)
	cmd.Uniforms = append([]UniformValue(nil), cmd.Uniforms...)
	b.pending = append(b.pending, cmd)
	return nil
}

func (b *headlessRendererBackend) Present(t Texture) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.inFrame {
		return fmt.Errorf("present outside a frame")
	}
	b.draws = append(b.draws, b.pending...)
	b.pending = b.pending[:0]
	b.present = append(b.present, t.(*headlessTexture).id)
	b.frames++
	b.inFrame = false
	return nil
}

func (b *headlessRendererBackend) AbortFrame() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.pending = b.pending[:0]
	b.inFrame = false
	b.aborted++
}

func (b *headlessRendererBackend) ConfigureSurface(width, height int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.size = common.Size{Width: width, Height: height}
}

func (b *headlessRendererBackend) SurfaceSize() common.Size {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.size
}

func (b *headlessRendererBackend) SetPresentMode(mode PresentMode) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.presentMode = mode
}

func (b *headlessRendererBackend) MVP() [16]float32 {
	return orthoMVP(false)
}

func (b *headlessRendererBackend) Release() {
	b.mu.Lock()
	defer b.mu.Unlock()
	clear(b.live)
	clear(b.pipelines)
}

// drawsOf returns the presented draws of one pass in frame order.
func (b *headlessRendererBackend) drawsOf(pass int) []DrawCommand {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []DrawCommand
	for _, d := range b.draws {
		if d.Pass == pass {
			out = append(out, d)
		}
	}
	return out
}

// liveCount returns the number of textures and targets not yet destroyed.
func (b *headlessRendererBackend) liveCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.live)
}
