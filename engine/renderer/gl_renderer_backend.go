package renderer

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/Carmen-Shannon/oxy-crt/common"
	"github.com/Carmen-Shannon/oxy-crt/engine/renderer/framebuffer"
	"github.com/Carmen-Shannon/oxy-crt/engine/renderer/pipeline"
	"github.com/Carmen-Shannon/oxy-crt/engine/renderer/shader"
	"github.com/Carmen-Shannon/oxy-crt/engine/window"
	"github.com/go-gl/gl/v3.3-core/gl"
)

const glslVersion = "#version 330 core\n"

// glTexture is a GL texture. Pass targets also own the framebuffer object that renders into them.
type glTexture struct {
	label  string
	handle uint32
	fbo    uint32
	size   common.Size
	format common.PixelFormat
	mipmap bool
}

func (t *glTexture) Size() common.Size          { return t.size }
func (t *glTexture) Format() common.PixelFormat { return t.format }

// glProgram is a linked pass program and the locations of its value uniforms.
type glProgram struct {
	handle    uint32
	locations map[string]int32
}

// glRendererBackend renders passes with OpenGL 3.3 core into framebuffer objects and presents by
// blitting the final target to the window's default framebuffer.
type glRendererBackend struct {
	logger *slog.Logger
	win    window.Window

	size        common.Size
	presentMode PresentMode

	vao uint32
	vbo uint32

	programs map[uint32]*glProgram
	samplers map[common.SamplerStagingData]uint32

	inFrame bool
	srgb    bool
}

var _ RendererBackend = &glRendererBackend{}

// glFormats maps target formats to GL internal format, pixel format and type.
var glFormats = map[common.PixelFormat][3]uint32{
	common.FormatRGBA8Unorm:     {gl.RGBA8, gl.RGBA, gl.UNSIGNED_BYTE},
	common.FormatRGBA8UnormSRGB: {gl.SRGB8_ALPHA8, gl.RGBA, gl.UNSIGNED_BYTE},
	common.FormatRGBA16Float:    {gl.RGBA16F, gl.RGBA, gl.FLOAT},
	common.FormatRGBA32Float:    {gl.RGBA32F, gl.RGBA, gl.FLOAT},
	common.FormatRGB10A2Unorm:   {gl.RGB10_A2, gl.RGBA, gl.UNSIGNED_INT_2_10_10_10_REV},
}

var glWrapModes = map[common.WrapMode]int32{
	common.WrapClampToEdge:    gl.CLAMP_TO_EDGE,
	common.WrapClampToBorder:  gl.CLAMP_TO_BORDER,
	common.WrapRepeat:         gl.REPEAT,
	common.WrapMirroredRepeat: gl.MIRRORED_REPEAT,
}

// newGLRendererBackend makes the window's GL context current, loads the GL entry points and
// uploads the full-screen triangle.
func newGLRendererBackend(win window.Window, logger *slog.Logger) (RendererBackend, error) {
	if win.ClientAPI() != window.ClientAPIOpenGL {
		return nil, fmt.Errorf("window was created without an OpenGL context")
	}
	win.MakeContextCurrent()
	if err := gl.Init(); err != nil {
		return nil, fmt.Errorf("gl.Init: %w", err)
	}
	logger.Info("opengl context",
		"version", gl.GoStr(gl.GetString(gl.VERSION)),
		"renderer", gl.GoStr(gl.GetString(gl.RENDERER)))

	b := &glRendererBackend{
		logger:   logger,
		win:      win,
		size:     common.Size{Width: win.Width(), Height: win.Height()},
		programs: make(map[uint32]*glProgram),
		samplers: make(map[common.SamplerStagingData]uint32),
	}

	data := fullscreenVertexData()
	gl.GenVertexArrays(1, &b.vao)
	gl.BindVertexArray(b.vao)
	gl.GenBuffers(1, &b.vbo)
	gl.BindBuffer(gl.ARRAY_BUFFER, b.vbo)
	gl.BufferData(gl.ARRAY_BUFFER, len(data), gl.Ptr(data), gl.STATIC_DRAW)
	gl.EnableVertexAttribArray(0)
	gl.VertexAttribPointer(0, 4, gl.FLOAT, false, shader.FullscreenVertexStride, gl.PtrOffset(0))
	gl.EnableVertexAttribArray(1)
	gl.VertexAttribPointer(1, 2, gl.FLOAT, false, shader.FullscreenVertexStride, gl.PtrOffset(4*4))
	gl.BindVertexArray(0)

	gl.Disable(gl.DEPTH_TEST)
	gl.Disable(gl.CULL_FACE)
	gl.PixelStorei(gl.UNPACK_ALIGNMENT, 1)

	if err := glError("init"); err != nil {
		b.Release()
		return nil, err
	}
	return b, nil
}

func (b *glRendererBackend) Type() RendererBackendType {
	return BackendTypeGL
}

func (b *glRendererBackend) CreateTarget(label string, size common.Size, format common.PixelFormat, mipmap bool) (framebuffer.Target, error) {
	if size.Empty() {
		return nil, fmt.Errorf("target %s: empty size %dx%d", label, size.Width, size.Height)
	}
	f, ok := glFormats[format]
	if !ok {
		return nil, fmt.Errorf("target %s: unsupported format %s", label, format)
	}
	t := &glTexture{label: label, size: size, format: format, mipmap: mipmap}
	gl.GenTextures(1, &t.handle)
	gl.BindTexture(gl.TEXTURE_2D, t.handle)
	gl.TexImage2D(gl.TEXTURE_2D, 0, int32(f[0]), int32(size.Width), int32(size.Height), 0, f[1], f[2], nil)
	if mipmap {
		gl.GenerateMipmap(gl.TEXTURE_2D)
	}

	gl.GenFramebuffers(1, &t.fbo)
	gl.BindFramebuffer(gl.FRAMEBUFFER, t.fbo)
	gl.FramebufferTexture2D(gl.FRAMEBUFFER, gl.COLOR_ATTACHMENT0, gl.TEXTURE_2D, t.handle, 0)
	if status := gl.CheckFramebufferStatus(gl.FRAMEBUFFER); status != gl.FRAMEBUFFER_COMPLETE {
		gl.BindFramebuffer(gl.FRAMEBUFFER, 0)
		b.DestroyTarget(t)
		return nil, fmt.Errorf("target %s: framebuffer incomplete (0x%x)", label, status)
	}
	gl.ClearColor(0, 0, 0, 0)
	gl.Clear(gl.COLOR_BUFFER_BIT)
	gl.BindFramebuffer(gl.FRAMEBUFFER, 0)

	if err := glError("create target " + label); err != nil {
		b.DestroyTarget(t)
		return nil, err
	}
	return t, nil
}

func (b *glRendererBackend) DestroyTarget(t framebuffer.Target) {
	if gt, ok := t.(*glTexture); ok {
		b.destroy(gt)
	}
}

func (b *glRendererBackend) destroy(t *glTexture) {
	if t.fbo != 0 {
		gl.DeleteFramebuffers(1, &t.fbo)
		t.fbo = 0
	}
	if t.handle != 0 {
		gl.DeleteTextures(1, &t.handle)
		t.handle = 0
	}
}

func (b *glRendererBackend) RegisterPipeline(p pipeline.Pipeline) error {
	m := p.Module()
	if m == nil {
		return fmt.Errorf("pipeline %s has no module", p.PipelineKey())
	}
	vs, err := compileGLShader(gl.VERTEX_SHADER, glslVersion+m.Vertex)
	if err != nil {
		return fmt.Errorf("%s: vertex stage: %w", m.Path, err)
	}
	defer gl.DeleteShader(vs)
	fs, err := compileGLShader(gl.FRAGMENT_SHADER, glslVersion+m.Fragment)
	if err != nil {
		return fmt.Errorf("%s: fragment stage: %w", m.Path, err)
	}
	defer gl.DeleteShader(fs)

	handle := gl.CreateProgram()
	gl.AttachShader(handle, vs)
	gl.AttachShader(handle, fs)
	for _, in := range m.VertexInputs {
		if loc, ok := shader.VertexInputLocation(in); ok {
			gl.BindAttribLocation(handle, uint32(loc), gl.Str(in.Name+"\x00"))
		}
	}
	gl.LinkProgram(handle)

	var status int32
	gl.GetProgramiv(handle, gl.LINK_STATUS, &status)
	if status == gl.FALSE {
		var logLength int32
		gl.GetProgramiv(handle, gl.INFO_LOG_LENGTH, &logLength)
		log := strings.Repeat("\x00", int(logLength+1))
		gl.GetProgramInfoLog(handle, logLength, nil, gl.Str(log))
		gl.DeleteProgram(handle)
		return fmt.Errorf("%s: link error: %s", m.Path, strings.TrimRight(log, "\x00"))
	}

	prog := &glProgram{handle: handle, locations: make(map[string]int32, len(m.Uniforms))}
	gl.UseProgram(handle)
	for _, u := range m.ValueUniforms() {
		prog.locations[u.Name] = gl.GetUniformLocation(handle, gl.Str(u.Name+"\x00"))
	}
	for _, t := range m.Textures {
		if loc := gl.GetUniformLocation(handle, gl.Str(t.Name+"\x00")); loc >= 0 {
			gl.Uniform1i(loc, int32(t.Unit))
		}
	}
	gl.UseProgram(0)

	if err := glError("link " + m.Path); err != nil {
		gl.DeleteProgram(handle)
		return err
	}
	b.programs[handle] = prog
	p.SetProgram(handle)
	b.logger.Debug("gl program linked", "pipeline", p.PipelineKey(), "program", handle, "uniforms", len(prog.locations))
	return nil
}

func compileGLShader(shaderType uint32, source string) (uint32, error) {
	sh := gl.CreateShader(shaderType)
	csources, free := gl.Strs(source + "\x00")
	gl.ShaderSource(sh, 1, csources, nil)
	free()
	gl.CompileShader(sh)

	var status int32
	gl.GetShaderiv(sh, gl.COMPILE_STATUS, &status)
	if status == gl.FALSE {
		var logLength int32
		gl.GetShaderiv(sh, gl.INFO_LOG_LENGTH, &logLength)
		log := strings.Repeat("\x00", int(logLength+1))
		gl.GetShaderInfoLog(sh, logLength, nil, gl.Str(log))
		gl.DeleteShader(sh)
		return 0, fmt.Errorf("compile error: %s", strings.TrimRight(log, "\x00"))
	}
	return sh, nil
}

func (b *glRendererBackend) ReleasePipeline(p pipeline.Pipeline) {
	handle := p.Program()
	if prog, ok := b.programs[handle]; ok {
		gl.DeleteProgram(prog.handle)
		delete(b.programs, handle)
	}
	p.SetProgram(0)
}

func (b *glRendererBackend) CreateTexture(label string, data common.TextureStagingData, mipmap bool) (Texture, error) {
	if len(data.Pixels) != int(data.Width*data.Height*4) {
		return nil, fmt.Errorf("texture %s: %d bytes for %dx%d", label, len(data.Pixels), data.Width, data.Height)
	}
	t := &glTexture{
		label:  label,
		size:   common.Size{Width: int(data.Width), Height: int(data.Height)},
		format: common.FormatRGBA8Unorm,
		mipmap: mipmap,
	}
	gl.GenTextures(1, &t.handle)
	gl.BindTexture(gl.TEXTURE_2D, t.handle)
	gl.TexImage2D(gl.TEXTURE_2D, 0, gl.RGBA8, int32(data.Width), int32(data.Height), 0, gl.RGBA, gl.UNSIGNED_BYTE, gl.Ptr(data.Pixels))
	if mipmap {
		gl.GenerateMipmap(gl.TEXTURE_2D)
	}
	if err := glError("create texture " + label); err != nil {
		b.destroy(t)
		return nil, err
	}
	return t, nil
}

func (b *glRendererBackend) WriteTexture(t Texture, data common.TextureStagingData) error {
	gt := t.(*glTexture)
	if gt.size != (common.Size{Width: int(data.Width), Height: int(data.Height)}) {
		return fmt.Errorf("texture %s: writing %dx%d into %dx%d", gt.label, data.Width, data.Height, gt.size.Width, gt.size.Height)
	}
	gl.BindTexture(gl.TEXTURE_2D, gt.handle)
	gl.TexSubImage2D(gl.TEXTURE_2D, 0, 0, 0, int32(data.Width), int32(data.Height), gl.RGBA, gl.UNSIGNED_BYTE, gl.Ptr(data.Pixels))
	return glError("write texture " + gt.label)
}

func (b *glRendererBackend) DestroyTexture(t Texture) {
	if gt, ok := t.(*glTexture); ok {
		b.destroy(gt)
	}
}

func (b *glRendererBackend) GenerateMipmaps(t Texture) {
	gt := t.(*glTexture)
	if !gt.mipmap {
		return
	}
	gl.BindTexture(gl.TEXTURE_2D, gt.handle)
	gl.GenerateMipmap(gl.TEXTURE_2D)
}

// sampler returns the sampler object for a filter and wrap combination, creating it on first use.
func (b *glRendererBackend) sampler(s common.SamplerStagingData) uint32 {
	if h, ok := b.samplers[s]; ok {
		return h
	}
	var h uint32
	gl.GenSamplers(1, &h)

	magFilter, minFilter := int32(gl.NEAREST), int32(gl.NEAREST)
	switch {
	case s.Linear && s.Mipmap:
		magFilter, minFilter = gl.LINEAR, gl.LINEAR_MIPMAP_LINEAR
	case s.Linear:
		magFilter, minFilter = gl.LINEAR, gl.LINEAR
	case s.Mipmap:
		minFilter = gl.NEAREST_MIPMAP_NEAREST
	}
	wrap := glWrapModes[s.Wrap]
	gl.SamplerParameteri(h, gl.TEXTURE_MAG_FILTER, magFilter)
	gl.SamplerParameteri(h, gl.TEXTURE_MIN_FILTER, minFilter)
	gl.SamplerParameteri(h, gl.TEXTURE_WRAP_S, wrap)
	gl.SamplerParameteri(h, gl.TEXTURE_WRAP_T, wrap)
	b.samplers[s] = h
	return h
}

func (b *glRendererBackend) BeginFrame() error {
	if b.inFrame {
		return fmt.Errorf("frame already begun")
	}
	b.inFrame = true
	return nil
}

func (b *glRendererBackend) Draw(cmd DrawCommand) error {
	if !b.inFrame {
		return fmt.Errorf("draw outside a frame")
	}
	prog, ok := b.programs[cmd.Pipeline.Program()]
	if !ok {
		return fmt.Errorf("pipeline %s is not registered", cmd.Pipeline.PipelineKey())
	}
	target := cmd.Target.(*glTexture)

	gl.BindFramebuffer(gl.FRAMEBUFFER, target.fbo)
	gl.Viewport(0, 0, int32(target.size.Width), int32(target.size.Height))
	b.setSRGB(target.format == common.FormatRGBA8UnormSRGB)
	gl.Disable(gl.BLEND)

	gl.UseProgram(prog.handle)
	for _, tu := range cmd.Textures {
		tex, ok := tu.Texture.(*glTexture)
		if !ok || tex == nil {
			return fmt.Errorf("texture unit %d (%s) is unbound", tu.Unit, tu.Name)
		}
		if tex == target {
			return fmt.Errorf("texture unit %d (%s) samples the target being drawn", tu.Unit, tu.Name)
		}
		gl.ActiveTexture(gl.TEXTURE0 + uint32(tu.Unit))
		gl.BindTexture(gl.TEXTURE_2D, tex.handle)
		gl.BindSampler(uint32(tu.Unit), b.sampler(tu.Sampler))
	}
	for _, u := range cmd.Uniforms {
		loc, ok := prog.locations[u.Binding.Name]
		if !ok || loc < 0 {
			continue
		}
		setGLUniform(loc, u.Value.Convert(u.Binding.Kind))
	}

	gl.BindVertexArray(b.vao)
	gl.DrawArrays(gl.TRIANGLES, 0, 3)
	gl.BindVertexArray(0)
	return glError(fmt.Sprintf("draw pass %d", cmd.Pass))
}

func setGLUniform(loc int32, v shader.Value) {
	f := v.Floats
	switch v.Kind {
	case shader.KindFloat:
		gl.Uniform1f(loc, f[0])
	case shader.KindVec2:
		gl.Uniform2f(loc, f[0], f[1])
	case shader.KindVec3:
		gl.Uniform3f(loc, f[0], f[1], f[2])
	case shader.KindVec4:
		gl.Uniform4f(loc, f[0], f[1], f[2], f[3])
	case shader.KindInt:
		gl.Uniform1i(loc, v.Int)
	case shader.KindUint:
		gl.Uniform1ui(loc, v.Uint)
	case shader.KindBool:
		var i int32
		if v.Bool {
			i = 1
		}
		gl.Uniform1i(loc, i)
	case shader.KindMat4:
		gl.UniformMatrix4fv(loc, 1, false, &f[0])
	}
}

func (b *glRendererBackend) setSRGB(on bool) {
	if on == b.srgb {
		return
	}
	if on {
		gl.Enable(gl.FRAMEBUFFER_SRGB)
	} else {
		gl.Disable(gl.FRAMEBUFFER_SRGB)
	}
	b.srgb = on
}

// Present blits t to the default framebuffer, flipping it so that texture row 0 lands at the top of
// the window, and swaps buffers.
func (b *glRendererBackend) Present(t Texture) error {
	if !b.inFrame {
		return fmt.Errorf("present outside a frame")
	}
	src := t.(*glTexture)
	b.setSRGB(false)

	gl.BindFramebuffer(gl.DRAW_FRAMEBUFFER, 0)
	gl.Viewport(0, 0, int32(b.size.Width), int32(b.size.Height))
	gl.ClearColor(0, 0, 0, 1)
	gl.Clear(gl.COLOR_BUFFER_BIT)

	filter := uint32(gl.NEAREST)
	if src.size != b.size {
		filter = gl.LINEAR
	}
	gl.BindFramebuffer(gl.READ_FRAMEBUFFER, src.fbo)
	gl.BlitFramebuffer(
		0, 0, int32(src.size.Width), int32(src.size.Height),
		0, int32(b.size.Height), int32(b.size.Width), 0,
		gl.COLOR_BUFFER_BIT, filter)
	gl.BindFramebuffer(gl.READ_FRAMEBUFFER, 0)

	b.inFrame = false
	if err := glError("present"); err != nil {
		return err
	}
	b.win.SwapBuffers()
	return nil
}

func (b *glRendererBackend) AbortFrame() {
	gl.BindFramebuffer(gl.FRAMEBUFFER, 0)
	gl.UseProgram(0)
	b.inFrame = false
	for gl.GetError() != gl.NO_ERROR {
	}
}

func (b *glRendererBackend) ConfigureSurface(width, height int) {
	b.size = common.Size{Width: width, Height: height}
	interval := 1
	if b.presentMode == PresentModeUncapped {
		interval = 0
	}
	b.win.SetSwapInterval(interval)
}

func (b *glRendererBackend) SurfaceSize() common.Size {
	return b.size
}

func (b *glRendererBackend) SetPresentMode(mode PresentMode) {
	b.presentMode = mode
}

func (b *glRendererBackend) MVP() [16]float32 {
	return orthoMVP(false)
}

func (b *glRendererBackend) Release() {
	for h, prog := range b.programs {
		gl.DeleteProgram(prog.handle)
		delete(b.programs, h)
	}
	for s, h := range b.samplers {
		gl.DeleteSamplers(1, &h)
		delete(b.samplers, s)
	}
	if b.vbo != 0 {
		gl.DeleteBuffers(1, &b.vbo)
		b.vbo = 0
	}
	if b.vao != 0 {
		gl.DeleteVertexArrays(1, &b.vao)
		b.vao = 0
	}
}

// glError drains the GL error queue and reports the first error.
func glError(op string) error {
	var first uint32
	for {
		code := gl.GetError()
		if code == gl.NO_ERROR {
			break
		}
		if first == 0 {
			first = code
		}
	}
	if first != 0 {
		return fmt.Errorf("%s: gl error 0x%x", op, first)
	}
	return nil
}
