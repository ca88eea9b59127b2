package renderer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"cogentcore.org/core/base/keylist"
	"github.com/Carmen-Shannon/automation/tools/worker"
	"github.com/Carmen-Shannon/oxy-crt/common"
	"github.com/Carmen-Shannon/oxy-crt/engine/preset"
	"github.com/Carmen-Shannon/oxy-crt/engine/renderer/framebuffer"
	"github.com/Carmen-Shannon/oxy-crt/engine/renderer/graph"
	"github.com/Carmen-Shannon/oxy-crt/engine/renderer/pipeline"
	"github.com/Carmen-Shannon/oxy-crt/engine/renderer/shader"
)

// loader runs one LoadPreset from preset text to an installed session.
type loader struct {
	logger   *slog.Logger
	backend  RendererBackend
	pool     worker.DynamicWorkerPool
	resolver common.Resolver
	stubs    []shader.Stub

	preset  *preset.Preset
	sources []string
	luts    []common.TextureStagingData
	modules []*shader.CompiledModule
	params  *keylist.List[string, shader.Parameter]
	values  map[string]float32
	graph   *graph.RenderGraph
	include []string

	// installed resources, released by rollback
	pipelines []pipeline.Pipeline
	textures  []Texture
}

// fetchResult is the outcome of one fetch task. LUT results carry decoded pixels.
type fetchResult struct {
	source string
	lut    common.TextureStagingData
	err    error
}

// run executes every load stage, rolling back whatever was installed if any of them fails.
func (l *loader) run(ctx context.Context, basePath, text string) (*session, error) {
	start := time.Now()

	p, err := preset.ParseFile(basePath, text)
	if err != nil {
		return nil, &LoadError{Stage: LoadStageParse, Err: err}
	}
	l.preset = p

	if err := l.fetch(ctx); err != nil {
		return nil, &LoadError{Stage: LoadStageFetch, Err: err}
	}
	l.logger.Debug("preset fetched", "passes", len(p.Passes), "luts", len(p.Textures), "elapsed", time.Since(start))

	if err := l.compile(ctx); err != nil {
		return nil, &LoadError{Stage: LoadStageCompile, Err: err}
	}
	l.logger.Debug("preset compiled", "includes", len(l.include), "elapsed", time.Since(start))

	l.buildParameters()
	g, err := graph.Build(p, l.modules, l.params, graph.WithLogger(l.logger))
	if err != nil {
		return nil, &LoadError{Stage: LoadStageGraph, Err: err}
	}
	l.graph = g

	if err := ctx.Err(); err != nil {
		return nil, &LoadError{Stage: LoadStageInstall, Err: err}
	}
	s, err := l.install()
	if err != nil {
		l.rollback()
		return nil, &LoadError{Stage: LoadStageInstall, Err: err}
	}
	return s, nil
}

// fetch resolves every module and lookup texture in parallel. Results are kept in pass and
// texture order; the error of the lowest index wins.
func (l *loader) fetch(ctx context.Context) error {
	p := l.preset
	results := make([]fetchResult, len(p.Passes)+len(p.Textures))

	var wg sync.WaitGroup
	for i := range results {
		wg.Add(1)
		id := i
		l.pool.SubmitTask(worker.Task{
			ID: id,
			Do: func() (any, error) {
				defer wg.Done()
				results[id] = l.fetchOne(ctx, id)
				return nil, nil
			},
		})
	}
	wg.Wait()

	l.sources = make([]string, len(p.Passes))
	l.luts = make([]common.TextureStagingData, len(p.Textures))
	for i, r := range results {
		if r.err != nil {
			return r.err
		}
		if i < len(p.Passes) {
			l.sources[i] = r.source
		} else {
			l.luts[i-len(p.Passes)] = r.lut
		}
	}
	return nil
}

func (l *loader) fetchOne(ctx context.Context, id int) fetchResult {
	if err := ctx.Err(); err != nil {
		return fetchResult{err: err}
	}
	p := l.preset
	if id < len(p.Passes) {
		path := p.ModulePath(id)
		data, err := l.resolver.Resolve(ctx, path)
		if err != nil {
			return fetchResult{err: fmt.Errorf("pass %d module %s: %w", id, path, err)}
		}
		return fetchResult{source: string(data)}
	}
	t := p.Textures[id-len(p.Passes)]
	path := p.TexturePath(t)
	data, err := l.resolver.Resolve(ctx, path)
	if err != nil {
		return fetchResult{err: fmt.Errorf("texture %s at %s: %w", t.Name, path, err)}
	}
	staged, err := common.DecodeTexture(data)
	if err != nil {
		return fetchResult{err: fmt.Errorf("texture %s at %s: %w", t.Name, path, err)}
	}
	return fetchResult{lut: staged}
}

// compile compiles every module with one compiler so includes are fetched once per load.
func (l *loader) compile(ctx context.Context) error {
	c := shader.NewCompiler(l.resolver, shader.WithLogger(l.logger), shader.WithStubs(l.stubs...))
	l.modules = make([]*shader.CompiledModule, len(l.sources))
	for i, src := range l.sources {
		m, err := c.Compile(ctx, i, l.preset.ModulePath(i), src)
		if err != nil {
			return err
		}
		l.modules[i] = m
	}
	l.include = c.Includes()
	return nil
}

// buildParameters merges every module's parameters in pass order. The first declaration of a name
// wins; later declarations with a different default are logged. Preset overrides are clamped to the
// declared range; overrides for undeclared names are ignored.
func (l *loader) buildParameters() {
	l.params = keylist.New[string, shader.Parameter]()
	for _, m := range l.modules {
		for _, prm := range m.Parameters {
			first, ok := l.params.AtTry(prm.Name)
			if !ok {
				_ = l.params.Add(prm.Name, prm)
				continue
			}
			if first.Default != prm.Default {
				l.logger.Warn("parameter redeclared with a different default",
					"parameter", prm.Name, "pass", m.Pass, "kept", first.Default, "ignored", prm.Default)
			}
		}
	}

	l.values = make(map[string]float32, l.params.Len())
	for i, name := range l.params.Keys {
		l.values[name] = l.params.Values[i].Default
	}
	if l.preset.Parameters == nil {
		return
	}
	for i, name := range l.preset.Parameters.Keys {
		prm, ok := l.params.AtTry(name)
		if !ok {
			l.logger.Warn("preset overrides an undeclared parameter", "parameter", name)
			continue
		}
		l.values[name] = prm.Clamp(l.preset.Parameters.Values[i])
	}
}

// install creates the backend resources of the session: one pipeline per pass, the lookup
// textures, and the framebuffer pool.
func (l *loader) install() (*session, error) {
	for i := range l.graph.Passes {
		gp := &l.graph.Passes[i]
		p, err := newPassPipeline(gp, l.backend.Type())
		if err != nil {
			return nil, fmt.Errorf("pass %d: %w", i, err)
		}
		if err := l.backend.RegisterPipeline(p); err != nil {
			return nil, fmt.Errorf("pass %d: %w", i, err)
		}
		l.pipelines = append(l.pipelines, p)
	}

	for i, t := range l.graph.Textures {
		tex, err := l.backend.CreateTexture(t.Name, l.luts[i], t.Mipmap)
		if err != nil {
			return nil, fmt.Errorf("texture %s: %w", t.Name, err)
		}
		l.textures = append(l.textures, tex)
	}

	fb := framebuffer.NewPool(l.backend, l.graph, framebuffer.WithLogger(l.logger))
	s := newSession(l.backend, l.graph, l.pipelines, l.textures, fb, l.params, l.values, l.logger)
	return s, nil
}

// newPassPipeline wraps a pass module in a pipeline. The WebGPU backend also needs the module
// retargeted to explicit bindings.
func newPassPipeline(gp *graph.Pass, backend RendererBackendType) (pipeline.Pipeline, error) {
	opts := []pipeline.PipelineBuilderOption{
		pipeline.WithModule(gp.Module),
		pipeline.WithFormat(gp.Format),
	}
	if backend == BackendTypeWGPU {
		r, err := shader.Retarget(gp.Module)
		if err != nil {
			return nil, err
		}
		key := fmt.Sprintf("pass%d", gp.Index)
		vs, err := shader.NewShader(key+".vert", shader.ShaderTypeVertex, r)
		if err != nil {
			return nil, err
		}
		fs, err := shader.NewShader(key+".frag", shader.ShaderTypeFragment, r)
		if err != nil {
			return nil, err
		}
		opts = append(opts, pipeline.WithRetargeted(r), pipeline.WithVertexShader(vs), pipeline.WithFragmentShader(fs))
	}
	return pipeline.NewPipeline(fmt.Sprintf("pass%d", gp.Index), pipeline.PipelineTypePass, opts...), nil
}

// rollback releases everything install created.
func (l *loader) rollback() {
	for _, p := range l.pipelines {
		l.backend.ReleasePipeline(p)
	}
	for _, t := range l.textures {
		l.backend.DestroyTexture(t)
	}
	l.pipelines, l.textures = nil, nil
}

// superseded reports whether err, or the context's cancellation cause, is ErrSuperseded.
func superseded(ctx context.Context, err error) bool {
	return errors.Is(err, ErrSuperseded) || errors.Is(context.Cause(ctx), ErrSuperseded)
}
