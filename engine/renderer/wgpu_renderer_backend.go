package renderer

import (
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"sync"

	"github.com/Carmen-Shannon/oxy-crt/common"
	"github.com/Carmen-Shannon/oxy-crt/engine/renderer/bind_group_provider"
	"github.com/Carmen-Shannon/oxy-crt/engine/renderer/framebuffer"
	"github.com/Carmen-Shannon/oxy-crt/engine/renderer/pipeline"
	"github.com/Carmen-Shannon/oxy-crt/engine/renderer/shader"
	"github.com/cogentcore/webgpu/wgpu"
)

// wgpuTexture is a WebGPU texture with a view over all of its mip levels and one view per level
// for mip generation.
type wgpuTexture struct {
	label   string
	texture *wgpu.Texture
	view    *wgpu.TextureView
	levels  []*wgpu.TextureView
	size    common.Size
	format  common.PixelFormat
	native  wgpu.TextureFormat
	target  bool
}

func (t *wgpuTexture) Size() common.Size          { return t.size }
func (t *wgpuTexture) Format() common.PixelFormat { return t.format }

func (t *wgpuTexture) release() {
	for _, v := range t.levels {
		v.Release()
	}
	t.levels = nil
	if t.view != nil {
		t.view.Release()
		t.view = nil
	}
	if t.texture != nil {
		t.texture.Release()
		t.texture = nil
	}
}

// wgpuPass holds the bind group state of one registered pass pipeline.
type wgpuPass struct {
	provider bind_group_provider.BindGroupProvider
	layout   shader.UniformLayout
	textures []shader.RetargetedTexture
}

// wgpuBlit is the WGSL copy pipeline for one color format, used for presenting and mip generation.
type wgpuBlit struct {
	pipeline *wgpu.RenderPipeline
	layout   *wgpu.BindGroupLayout
}

// wgpuRendererBackend renders passes with WebGPU. Pass programs are the retargeted GLSL 4.50
// stages; every pass of a frame is encoded on one command encoder that is submitted on Present.
type wgpuRendererBackend struct {
	mu     sync.Mutex
	logger *slog.Logger

	instance *wgpu.Instance
	adapter  *wgpu.Adapter
	surface  *wgpu.Surface
	device   *wgpu.Device
	queue    *wgpu.Queue

	surfaceFormat wgpu.TextureFormat
	size          common.Size
	presentMode   wgpu.PresentMode

	vertexBuffer *wgpu.Buffer
	passes       map[pipeline.Pipeline]*wgpuPass
	samplers     map[common.SamplerStagingData]*wgpu.Sampler
	blits        map[wgpu.TextureFormat]*wgpuBlit

	frameEncoder *wgpu.CommandEncoder
}

var _ RendererBackend = &wgpuRendererBackend{}

// wgpuFormats maps target formats to WebGPU texture formats. Full-float targets are stored as
// half-float because RGBA32Float is not filterable without an optional device feature.
var wgpuFormats = map[common.PixelFormat]wgpu.TextureFormat{
	common.FormatRGBA8Unorm:     wgpu.TextureFormatRGBA8Unorm,
	common.FormatRGBA8UnormSRGB: wgpu.TextureFormatRGBA8UnormSrgb,
	common.FormatRGBA16Float:    wgpu.TextureFormatRGBA16Float,
	common.FormatRGBA32Float:    wgpu.TextureFormatRGBA16Float,
	common.FormatRGB10A2Unorm:   wgpu.TextureFormatRGB10A2Unorm,
}

// wgpuAddressModes maps wrap modes to address modes. Core WebGPU has no border addressing, so
// clamp_to_border clamps to the edge texels.
var wgpuAddressModes = map[common.WrapMode]wgpu.AddressMode{
	common.WrapClampToEdge:    wgpu.AddressModeClampToEdge,
	common.WrapClampToBorder:  wgpu.AddressModeClampToEdge,
	common.WrapRepeat:         wgpu.AddressModeRepeat,
	common.WrapMirroredRepeat: wgpu.AddressModeMirrorRepeat,
}

// newWGPURendererBackend creates the instance, surface, adapter and device for a window surface.
//
// Parameters:
//   - surfaceDescriptor: the platform surface descriptor from the window
//   - forceFallbackAdapter: request the software adapter
//   - logger: the logger for device events
//
// Returns:
//   - RendererBackend: the backend; ConfigureSurface must be called before the first frame
//   - error: an error if no adapter or device is available
func newWGPURendererBackend(surfaceDescriptor *wgpu.SurfaceDescriptor, forceFallbackAdapter bool, logger *slog.Logger) (RendererBackend, error) {
	if surfaceDescriptor == nil {
		return nil, errors.New("wgpu: window has no surface")
	}
	if err := shader.ValidateWGSL("blit", shader.BlitWGSL); err != nil {
		return nil, fmt.Errorf("wgpu: %w", err)
	}
	runtime.LockOSThread()
	b := &wgpuRendererBackend{
		logger:      logger,
		instance:    wgpu.CreateInstance(nil),
		presentMode: wgpu.PresentModeFifo,
		passes:      make(map[pipeline.Pipeline]*wgpuPass),
		samplers:    make(map[common.SamplerStagingData]*wgpu.Sampler),
		blits:       make(map[wgpu.TextureFormat]*wgpuBlit),
	}
	b.surface = b.instance.CreateSurface(surfaceDescriptor)

	a, err := b.instance.RequestAdapter(&wgpu.RequestAdapterOptions{
		ForceFallbackAdapter: forceFallbackAdapter,
		CompatibleSurface:    b.surface,
	})
	if err != nil {
		b.Release()
		return nil, fmt.Errorf("wgpu: request adapter: %w", err)
	}
	b.adapter = a

	d, err := a.RequestDevice(&wgpu.DeviceDescriptor{
		Label: "oxy-crt device",
		RequiredLimits: &wgpu.RequiredLimits{
			Limits: wgpu.DefaultLimits(),
		},
	})
	if err != nil {
		b.Release()
		return nil, fmt.Errorf("wgpu: request device: %w", err)
	}
	b.device = d
	b.queue = d.GetQueue()

	vertexData := fullscreenVertexData()
	b.vertexBuffer, err = b.device.CreateBuffer(&wgpu.BufferDescriptor{
		Label: "Fullscreen Triangle Vertex Buffer",
		Size:  uint64(len(vertexData)),
		Usage: wgpu.BufferUsageVertex | wgpu.BufferUsageCopyDst,
	})
	if err != nil {
		b.Release()
		return nil, fmt.Errorf("wgpu: vertex buffer: %w", err)
	}
	b.queue.WriteBuffer(b.vertexBuffer, 0, vertexData)

	if logger != nil {
		logger.Info("wgpu device ready", "fallback", forceFallbackAdapter)
	}
	return b, nil
}

func (b *wgpuRendererBackend) Type() RendererBackendType {
	return BackendTypeWGPU
}

func (b *wgpuRendererBackend) newTexture(label string, size common.Size, format common.PixelFormat, mipmap, target bool) (*wgpuTexture, error) {
	native, ok := wgpuFormats[format]
	if !ok {
		return nil, fmt.Errorf("texture %s: unsupported format %s", label, format)
	}
	levels := uint32(1)
	if mipmap {
		levels = uint32(size.MipLevels())
	}
	usage := wgpu.TextureUsageTextureBinding | wgpu.TextureUsageRenderAttachment
	if target {
		usage |= wgpu.TextureUsageCopySrc
	} else {
		usage |= wgpu.TextureUsageCopyDst
	}
	tex, err := b.device.CreateTexture(&wgpu.TextureDescriptor{
		Label:     label,
		Usage:     usage,
		Dimension: wgpu.TextureDimension2D,
		Size: wgpu.Extent3D{
			Width:              uint32(size.Width),
			Height:             uint32(size.Height),
			DepthOrArrayLayers: 1,
		},
		Format:        native,
		MipLevelCount: levels,
		SampleCount:   1,
	})
	if err != nil {
		return nil, fmt.Errorf("texture %s: %w", label, err)
	}
	t := &wgpuTexture{label: label, texture: tex, size: size, format: format, native: native, target: target}

	t.view, err = tex.CreateView(nil)
	if err != nil {
		t.release()
		return nil, fmt.Errorf("texture %s: %w", label, err)
	}
	for level := uint32(0); level < levels; level++ {
		v, err := tex.CreateView(&wgpu.TextureViewDescriptor{
			Label:           fmt.Sprintf("%s mip %d", label, level),
			Format:          native,
			Dimension:       wgpu.TextureViewDimension2D,
			BaseMipLevel:    level,
			MipLevelCount:   1,
			BaseArrayLayer:  0,
			ArrayLayerCount: 1,
			Aspect:          wgpu.TextureAspectAll,
		})
		if err != nil {
			t.release()
			return nil, fmt.Errorf("texture %s: mip %d: %w", label, level, err)
		}
		t.levels = append(t.levels, v)
	}
	return t, nil
}

func (b *wgpuRendererBackend) CreateTarget(label string, size common.Size, format common.PixelFormat, mipmap bool) (framebuffer.Target, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if size.Empty() {
		return nil, fmt.Errorf("target %s: empty size %dx%d", label, size.Width, size.Height)
	}
	t, err := b.newTexture(label, size, format, mipmap, true)
	if err != nil {
		return nil, err
	}

	// Targets start cleared to transparent black; the clear is a pass of its own.
	encoder, err := b.device.CreateCommandEncoder(nil)
	if err != nil {
		t.release()
		return nil, err
	}
	defer encoder.Release()
	rp := encoder.BeginRenderPass(&wgpu.RenderPassDescriptor{
		Label: label + " Clear",
		ColorAttachments: []wgpu.RenderPassColorAttachment{{
			View:    t.levels[0],
			LoadOp:  wgpu.LoadOpClear,
			StoreOp: wgpu.StoreOpStore,
		}},
	})
	rp.End()
	rp.Release()
	cmd, err := encoder.Finish(nil)
	if err != nil {
		t.release()
		return nil, err
	}
	b.queue.Submit(cmd)
	cmd.Release()
	return t, nil
}

func (b *wgpuRendererBackend) DestroyTarget(t framebuffer.Target) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if wt, ok := t.(*wgpuTexture); ok {
		wt.release()
	}
}

func (b *wgpuRendererBackend) RegisterPipeline(p pipeline.Pipeline) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	r := p.Retargeted()
	vertexShader := p.Shader(shader.ShaderTypeVertex)
	fragmentShader := p.Shader(shader.ShaderTypeFragment)
	if r == nil || vertexShader == nil || fragmentShader == nil {
		return errors.New("both vertex and fragment shaders must be set to create a render pipeline")
	}
	native, ok := wgpuFormats[p.Format()]
	if !ok {
		return fmt.Errorf("pipeline %s: unsupported format %s", p.PipelineKey(), p.Format())
	}

	vs, err := b.device.CreateShaderModule(vertexShader.Module())
	if err != nil {
		return fmt.Errorf("pipeline %s: vertex: %w", p.PipelineKey(), err)
	}
	defer vs.Release()
	fs, err := b.device.CreateShaderModule(fragmentShader.Module())
	if err != nil {
		return fmt.Errorf("pipeline %s: fragment: %w", p.PipelineKey(), err)
	}
	defer fs.Release()

	layoutDesc := r.BindGroupLayoutDescriptor(p.PipelineKey() + " Bind Group Layout")
	bindGroupLayout, err := b.device.CreateBindGroupLayout(&layoutDesc)
	if err != nil {
		return fmt.Errorf("pipeline %s: bind group layout: %w", p.PipelineKey(), err)
	}
	provider := bind_group_provider.NewBindGroupProvider(p.PipelineKey(), bind_group_provider.WithBindGroupLayout(bindGroupLayout))
	if r.Layout.Size > 0 {
		buf, err := b.device.CreateBuffer(&wgpu.BufferDescriptor{
			Label: p.PipelineKey() + " Globals",
			Size:  r.Layout.Size,
			Usage: wgpu.BufferUsageUniform | wgpu.BufferUsageCopyDst,
		})
		if err != nil {
			provider.Release()
			return fmt.Errorf("pipeline %s: globals: %w", p.PipelineKey(), err)
		}
		provider.SetBuffer(0, buf, r.Layout.Size)
	}

	pipelineLayout, err := b.device.CreatePipelineLayout(&wgpu.PipelineLayoutDescriptor{
		Label:            p.PipelineKey(),
		BindGroupLayouts: []*wgpu.BindGroupLayout{bindGroupLayout},
	})
	if err != nil {
		provider.Release()
		return err
	}
	defer pipelineLayout.Release()

	target := wgpu.ColorTargetState{
		Format:    native,
		WriteMask: wgpu.ColorWriteMaskAll,
	}
	created, err := b.device.CreateRenderPipeline(&wgpu.RenderPipelineDescriptor{
		Label:  p.PipelineKey() + " Render Pipeline",
		Layout: pipelineLayout,
		Vertex: wgpu.VertexState{
			Module:     vs,
			EntryPoint: vertexShader.EntryPoint(),
			Buffers:    vertexShader.VertexLayouts(),
		},
		Fragment: &wgpu.FragmentState{
			Module:     fs,
			EntryPoint: fragmentShader.EntryPoint(),
			Targets:    []wgpu.ColorTargetState{target},
		},
		Primitive: wgpu.PrimitiveState{
			Topology:  wgpu.PrimitiveTopologyTriangleList,
			FrontFace: wgpu.FrontFaceCCW,
			CullMode:  wgpu.CullModeNone,
		},
		Multisample: wgpu.MultisampleState{
			Count: 1,
			Mask:  0xFFFFFFFF,
		},
	})
	if err != nil {
		provider.Release()
		return fmt.Errorf("pipeline %s: %w", p.PipelineKey(), err)
	}

	p.SetRenderPipeline(created)
	b.passes[p] = &wgpuPass{provider: provider, layout: r.Layout, textures: r.Textures}
	return nil
}

func (b *wgpuRendererBackend) ReleasePipeline(p pipeline.Pipeline) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if pass, ok := b.passes[p]; ok {
		pass.provider.Release()
		delete(b.passes, p)
	}
	if rp, ok := p.Pipeline().(*wgpu.RenderPipeline); ok {
		rp.Release()
	}
	p.SetRenderPipeline(nil)
}

func (b *wgpuRendererBackend) CreateTexture(label string, data common.TextureStagingData, mipmap bool) (Texture, error) {
	if len(data.Pixels) != int(data.Width*data.Height*4) {
		return nil, fmt.Errorf("texture %s: %d bytes for %dx%d", label, len(data.Pixels), data.Width, data.Height)
	}
	b.mu.Lock()
	t, err := b.newTexture(label, common.Size{Width: int(data.Width), Height: int(data.Height)}, common.FormatRGBA8Unorm, mipmap, false)
	if err == nil {
		b.writeTexture(t, data)
	}
	b.mu.Unlock()
	if err != nil {
		return nil, err
	}
	if mipmap {
		b.GenerateMipmaps(t)
	}
	return t, nil
}

func (b *wgpuRendererBackend) writeTexture(t *wgpuTexture, data common.TextureStagingData) {
	b.queue.WriteTexture(
		&wgpu.ImageCopyTexture{
			Texture:  t.texture,
			MipLevel: 0,
			Origin:   wgpu.Origin3D{},
			Aspect:   wgpu.TextureAspectAll,
		},
		data.Pixels,
		&wgpu.TextureDataLayout{
			Offset:       0,
			BytesPerRow:  data.Width * 4,
			RowsPerImage: data.Height,
		},
		&wgpu.Extent3D{
			Width:              data.Width,
			Height:             data.Height,
			DepthOrArrayLayers: 1,
		},
	)
}

func (b *wgpuRendererBackend) WriteTexture(t Texture, data common.TextureStagingData) error {
	wt := t.(*wgpuTexture)
	if wt.size != (common.Size{Width: int(data.Width), Height: int(data.Height)}) {
		return fmt.Errorf("texture %s: writing %dx%d into %dx%d", wt.label, data.Width, data.Height, wt.size.Width, wt.size.Height)
	}
	b.mu.Lock()
	b.writeTexture(wt, data)
	b.mu.Unlock()
	if len(wt.levels) > 1 {
		b.GenerateMipmaps(wt)
	}
	return nil
}

func (b *wgpuRendererBackend) DestroyTexture(t Texture) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if wt, ok := t.(*wgpuTexture); ok {
		wt.release()
	}
}

// GenerateMipmaps downsamples each level from the one above it with the blit pipeline. Inside a
// frame the passes are encoded on the frame encoder so they run after the pass that wrote level 0.
func (b *wgpuRendererBackend) GenerateMipmaps(t Texture) {
	b.mu.Lock()
	defer b.mu.Unlock()

	wt := t.(*wgpuTexture)
	if len(wt.levels) < 2 {
		return
	}
	blit, err := b.blit(wt.native)
	if err != nil {
		b.logError("mipmap blit pipeline", err)
		return
	}
	sampler, err := b.sampler(common.SamplerStagingData{Linear: true})
	if err != nil {
		b.logError("mipmap sampler", err)
		return
	}

	encoder := b.frameEncoder
	if encoder == nil {
		encoder, err = b.device.CreateCommandEncoder(nil)
		if err != nil {
			b.logError("mipmap encoder", err)
			return
		}
		defer encoder.Release()
	}

	var groups []*wgpu.BindGroup
	defer func() {
		for _, g := range groups {
			g.Release()
		}
	}()
	for level := 1; level < len(wt.levels); level++ {
		group, err := b.blitBindGroup(blit, wt.levels[level-1], sampler)
		if err != nil {
			b.logError("mipmap bind group", err)
			return
		}
		groups = append(groups, group)
		b.encodeBlit(encoder, blit, group, wt.levels[level], fmt.Sprintf("%s mip %d", wt.label, level))
	}

	if encoder != b.frameEncoder {
		cmd, err := encoder.Finish(nil)
		if err != nil {
			b.logError("mipmap finish", err)
			return
		}
		b.queue.Submit(cmd)
		cmd.Release()
	}
}

func (b *wgpuRendererBackend) BeginFrame() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.frameEncoder != nil {
		return errors.New("frame already begun")
	}
	encoder, err := b.device.CreateCommandEncoder(&wgpu.CommandEncoderDescriptor{Label: "Frame Encoder"})
	if err != nil {
		return err
	}
	b.frameEncoder = encoder
	return nil
}

func (b *wgpuRendererBackend) Draw(cmd DrawCommand) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.frameEncoder == nil {
		return errors.New("draw outside a frame")
	}
	pass, ok := b.passes[cmd.Pipeline]
	renderPipeline, isRP := cmd.Pipeline.Pipeline().(*wgpu.RenderPipeline)
	if !ok || !isRP {
		return fmt.Errorf("pipeline %s is not registered", cmd.Pipeline.PipelineKey())
	}
	target := cmd.Target.(*wgpuTexture)

	// Value uniforms are packed into the std140 staging copy and written ahead of the submit.
	if staging := pass.provider.Staging(0); staging != nil {
		for _, u := range cmd.Uniforms {
			if f, ok := pass.layout.Field(u.Binding.Name); ok {
				f.Put(staging, u.Value)
			}
		}
		w := bind_group_provider.BufferWrite{Provider: pass.provider, Binding: 0, Data: staging}
		if w.Pending() {
			b.queue.WriteBuffer(w.Provider.Buffer(w.Binding), w.Offset, w.Data)
		}
	}

	units := make(map[string]TextureUnit, len(cmd.Textures))
	for _, tu := range cmd.Textures {
		units[tu.Name] = tu
	}
	entries := make([]wgpu.BindGroupEntry, 0, 1+2*len(pass.textures))
	if buf := pass.provider.Buffer(0); buf != nil {
		entries = append(entries, wgpu.BindGroupEntry{Binding: 0, Buffer: buf, Offset: 0, Size: wgpu.WholeSize})
	}
	for _, rt := range pass.textures {
		tu, ok := units[rt.Name]
		tex, isTex := tu.Texture.(*wgpuTexture)
		if !ok || !isTex || tex == nil {
			return fmt.Errorf("texture %s is unbound", rt.Name)
		}
		if tex == target {
			return fmt.Errorf("texture unit %d (%s) samples the target being drawn", tu.Unit, tu.Name)
		}
		sampler, err := b.sampler(tu.Sampler)
		if err != nil {
			return err
		}
		entries = append(entries,
			wgpu.BindGroupEntry{Binding: rt.TextureBinding, TextureView: tex.view},
			wgpu.BindGroupEntry{Binding: rt.SamplerBinding, Sampler: sampler},
		)
	}
	group, err := b.device.CreateBindGroup(&wgpu.BindGroupDescriptor{
		Label:   pass.provider.Label() + " Bind Group",
		Layout:  pass.provider.BindGroupLayout(),
		Entries: entries,
	})
	if err != nil {
		return fmt.Errorf("pass %d: bind group: %w", cmd.Pass, err)
	}
	pass.provider.SetBindGroup(group)

	rp := b.frameEncoder.BeginRenderPass(&wgpu.RenderPassDescriptor{
		Label: fmt.Sprintf("pass %d", cmd.Pass),
		ColorAttachments: []wgpu.RenderPassColorAttachment{{
			View:    target.levels[0],
			LoadOp:  wgpu.LoadOpClear,
			StoreOp: wgpu.StoreOpStore,
		}},
	})
	rp.SetPipeline(renderPipeline)
	rp.SetBindGroup(0, group, nil)
	rp.SetVertexBuffer(0, b.vertexBuffer, 0, wgpu.WholeSize)
	rp.Draw(3, 1, 0, 0)
	rp.End()
	rp.Release()
	return nil
}

func (b *wgpuRendererBackend) Present(t Texture) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.frameEncoder == nil {
		return errors.New("present outside a frame")
	}
	encoder := b.frameEncoder
	b.frameEncoder = nil
	defer encoder.Release()

	surfaceTexture, err := b.surface.GetCurrentTexture()
	if err != nil {
		return fmt.Errorf("acquire surface: %w", err)
	}
	defer surfaceTexture.Release()
	view, err := surfaceTexture.CreateView(nil)
	if err != nil {
		return err
	}
	defer view.Release()

	blit, err := b.blit(b.surfaceFormat)
	if err != nil {
		return err
	}
	sampler, err := b.sampler(common.SamplerStagingData{Linear: true})
	if err != nil {
		return err
	}
	group, err := b.blitBindGroup(blit, t.(*wgpuTexture).view, sampler)
	if err != nil {
		return err
	}
	defer group.Release()
	b.encodeBlit(encoder, blit, group, view, "Present")

	cmd, err := encoder.Finish(nil)
	if err != nil {
		return err
	}
	b.queue.Submit(cmd)
	cmd.Release()
	b.surface.Present()
	return nil
}

func (b *wgpuRendererBackend) AbortFrame() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.frameEncoder != nil {
		b.frameEncoder.Release()
		b.frameEncoder = nil
	}
}

// blit returns the copy pipeline for a color format, creating it on first use.
func (b *wgpuRendererBackend) blit(format wgpu.TextureFormat) (*wgpuBlit, error) {
	if bl, ok := b.blits[format]; ok {
		return bl, nil
	}
	vertexShader, err := shader.NewWGSLShader("blit.vs", shader.ShaderTypeVertex, shader.BlitWGSL, "vs_main")
	if err != nil {
		return nil, err
	}
	fragmentShader, err := shader.NewWGSLShader("blit.fs", shader.ShaderTypeFragment, shader.BlitWGSL, "fs_main")
	if err != nil {
		return nil, err
	}
	module, err := b.device.CreateShaderModule(vertexShader.Module())
	if err != nil {
		return nil, err
	}
	defer module.Release()

	layout, err := b.device.CreateBindGroupLayout(&wgpu.BindGroupLayoutDescriptor{
		Label: "Blit Bind Group Layout",
		Entries: []wgpu.BindGroupLayoutEntry{
			{
				Binding:    0,
				Visibility: wgpu.ShaderStageFragment,
				Texture: wgpu.TextureBindingLayout{
					SampleType:    wgpu.TextureSampleTypeFloat,
					ViewDimension: wgpu.TextureViewDimension2D,
				},
			},
			{
				Binding:    1,
				Visibility: wgpu.ShaderStageFragment,
				Sampler:    wgpu.SamplerBindingLayout{Type: wgpu.SamplerBindingTypeFiltering},
			},
		},
	})
	if err != nil {
		return nil, err
	}
	pipelineLayout, err := b.device.CreatePipelineLayout(&wgpu.PipelineLayoutDescriptor{
		Label:            "Blit",
		BindGroupLayouts: []*wgpu.BindGroupLayout{layout},
	})
	if err != nil {
		layout.Release()
		return nil, err
	}
	defer pipelineLayout.Release()

	created, err := b.device.CreateRenderPipeline(&wgpu.RenderPipelineDescriptor{
		Label:  fmt.Sprintf("Blit Render Pipeline (%d)", format),
		Layout: pipelineLayout,
		Vertex: wgpu.VertexState{
			Module:     module,
			EntryPoint: vertexShader.EntryPoint(),
		},
		Fragment: &wgpu.FragmentState{
			Module:     module,
			EntryPoint: fragmentShader.EntryPoint(),
			Targets: []wgpu.ColorTargetState{{
				Format:    format,
				WriteMask: wgpu.ColorWriteMaskAll,
			}},
		},
		Primitive: wgpu.PrimitiveState{
			Topology:  wgpu.PrimitiveTopologyTriangleList,
			FrontFace: wgpu.FrontFaceCCW,
			CullMode:  wgpu.CullModeNone,
		},
		Multisample: wgpu.MultisampleState{
			Count: 1,
			Mask:  0xFFFFFFFF,
		},
	})
	if err != nil {
		layout.Release()
		return nil, err
	}
	bl := &wgpuBlit{pipeline: created, layout: layout}
	b.blits[format] = bl
	return bl, nil
}

func (b *wgpuRendererBackend) blitBindGroup(bl *wgpuBlit, src *wgpu.TextureView, sampler *wgpu.Sampler) (*wgpu.BindGroup, error) {
	return b.device.CreateBindGroup(&wgpu.BindGroupDescriptor{
		Label:  "Blit Bind Group",
		Layout: bl.layout,
		Entries: []wgpu.BindGroupEntry{
			{Binding: 0, TextureView: src},
			{Binding: 1, Sampler: sampler},
		},
	})
}

func (b *wgpuRendererBackend) encodeBlit(encoder *wgpu.CommandEncoder, bl *wgpuBlit, group *wgpu.BindGroup, dst *wgpu.TextureView, label string) {
	rp := encoder.BeginRenderPass(&wgpu.RenderPassDescriptor{
		Label: label,
		ColorAttachments: []wgpu.RenderPassColorAttachment{{
			View:       dst,
			LoadOp:     wgpu.LoadOpClear,
			StoreOp:    wgpu.StoreOpStore,
			ClearValue: wgpu.Color{R: 0, G: 0, B: 0, A: 1},
		}},
	})
	rp.SetPipeline(bl.pipeline)
	rp.SetBindGroup(0, group, nil)
	rp.Draw(3, 1, 0, 0)
	rp.End()
	rp.Release()
}

// sampler returns the sampler for a filter and wrap combination, creating it on first use.
func (b *wgpuRendererBackend) sampler(s common.SamplerStagingData) (*wgpu.Sampler, error) {
	if samp, ok := b.samplers[s]; ok {
		return samp, nil
	}
	filter := wgpu.FilterModeNearest
	mipFilter := wgpu.MipmapFilterModeNearest
	if s.Linear {
		filter = wgpu.FilterModeLinear
		mipFilter = wgpu.MipmapFilterModeLinear
	}
	var lodMax float32
	if s.Mipmap {
		lodMax = 32
	}
	address := wgpuAddressModes[s.Wrap]
	samp, err := b.device.CreateSampler(&wgpu.SamplerDescriptor{
		Label:         fmt.Sprintf("Sampler %s linear=%t mipmap=%t", s.Wrap, s.Linear, s.Mipmap),
		AddressModeU:  address,
		AddressModeV:  address,
		AddressModeW:  address,
		MagFilter:     filter,
		MinFilter:     filter,
		MipmapFilter:  mipFilter,
		LodMinClamp:   0,
		LodMaxClamp:   lodMax,
		MaxAnisotropy: 1,
	})
	if err != nil {
		return nil, fmt.Errorf("sampler: %w", err)
	}
	b.samplers[s] = samp
	return samp, nil
}

func (b *wgpuRendererBackend) logError(op string, err error) {
	if b.logger != nil {
		b.logger.Error("wgpu "+op, "error", err)
	}
}

func (b *wgpuRendererBackend) ConfigureSurface(width, height int) {
	b.mu.Lock()
	defer b.mu.Unlock()

	capabilities := b.surface.GetCapabilities(b.adapter)
	b.surfaceFormat = capabilities.Formats[0]
	b.size = common.Size{Width: width, Height: height}

	b.surface.Configure(b.adapter, b.device, &wgpu.SurfaceConfiguration{
		Usage:       wgpu.TextureUsageRenderAttachment,
		Format:      b.surfaceFormat,
		Width:       uint32(width),
		Height:      uint32(height),
		PresentMode: b.presentMode,
		AlphaMode:   capabilities.AlphaModes[0],
	})
}

func (b *wgpuRendererBackend) SurfaceSize() common.Size {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.size
}

func (b *wgpuRendererBackend) SetPresentMode(mode PresentMode) {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch mode {
	case PresentModeVSync:
		b.presentMode = wgpu.PresentModeFifo
	case PresentModeUncapped:
		fallthrough
	default:
		b.presentMode = wgpu.PresentModeImmediate
	}
}

func (b *wgpuRendererBackend) MVP() [16]float32 {
	return orthoMVP(true)
}

func (b *wgpuRendererBackend) Release() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.frameEncoder != nil {
		b.frameEncoder.Release()
		b.frameEncoder = nil
	}
	for p, pass := range b.passes {
		pass.provider.Release()
		delete(b.passes, p)
	}
	for s, samp := range b.samplers {
		samp.Release()
		delete(b.samplers, s)
	}
	for f, bl := range b.blits {
		bl.pipeline.Release()
		bl.layout.Release()
		delete(b.blits, f)
	}
	if b.vertexBuffer != nil {
		b.vertexBuffer.Release()
		b.vertexBuffer = nil
	}
	if b.queue != nil {
		b.queue.Release()
		b.queue = nil
	}
	if b.device != nil {
		b.device.Release()
		b.device = nil
	}
	if b.adapter != nil {
		b.adapter.Release()
		b.adapter = nil
	}
	if b.surface != nil {
		b.surface.Release()
		b.surface = nil
	}
	if b.instance != nil {
		b.instance.Release()
		b.instance = nil
	}
}
