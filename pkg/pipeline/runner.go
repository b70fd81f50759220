package pipeline

import (
	"context"
	"time"

	"github.com/charmbracelet/log"

	"github.com/safetydesk/causemap/pkg/cache"
	"github.com/safetydesk/causemap/pkg/errors"
	"github.com/safetydesk/causemap/pkg/generate"
	"github.com/safetydesk/causemap/pkg/observability"
	"github.com/safetydesk/causemap/pkg/render"
	"github.com/safetydesk/causemap/pkg/tree"
)

// Runner encapsulates pipeline execution with caching.
// Both CLI and API can use this to avoid duplicating caching logic.
//
// The Runner is stateless except for the cache and logger - it doesn't
// store pipeline results. Multiple goroutines can safely use the same
// Runner with different options.
type Runner struct {
	Cache  cache.Cache
	Keyer  cache.Keyer
	Logger *log.Logger
}

// NewRunner creates a runner with the given cache and keyer.
// If keyer is nil, a DefaultKeyer is used.
// If cache is nil, a NullCache is used (caching disabled).
func NewRunner(c cache.Cache, keyer cache.Keyer, logger *log.Logger) *Runner {
	if keyer == nil {
		keyer = cache.NewDefaultKeyer()
	}
	if c == nil {
		c = cache.NewNullCache()
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Runner{
		Cache:  c,
		Keyer:  keyer,
		Logger: logger,
	}
}

// Execute runs the complete generate → depth → render pipeline with caching.
func (r *Runner) Execute(ctx context.Context, opts Options) (*Result, error) {
	if err := opts.ValidateAndSetDefaults(); err != nil {
		return nil, err
	}
	r.applyLogger(&opts)

	result := &Result{
		Artifacts: make(map[string][]byte),
	}

	// Stage 1+2: Generate and assign depths
	genStart := time.Now()
	nodes, err := r.Generate(ctx, opts)
	if err != nil {
		return nil, err
	}
	result.Nodes = nodes
	result.Stats.GenerateTime = time.Since(genStart)
	result.Stats.NodeCount = len(nodes)
	result.Stats.MaxDepth = tree.MaxDepth(nodes)

	// Content hash for cache keys and API responses
	if data, err := tree.Marshal(nodes); err == nil {
		result.NodesHash = cache.Hash(data)
	}

	r.Logger.Info("generated causal tree",
		"level", opts.Level,
		"nodes", len(nodes),
		"depth", result.Stats.MaxDepth,
		"duration", result.Stats.GenerateTime)

	// Stage 3: Render
	renderStart := time.Now()
	artifacts, renderHit, err := r.RenderWithCacheInfo(ctx, nodes, opts)
	if err != nil {
		return nil, err
	}
	result.Artifacts = artifacts
	result.Stats.RenderTime = time.Since(renderStart)
	result.CacheInfo.RenderHit = renderHit

	r.Logger.Info("rendered outputs",
		"formats", opts.Formats,
		"cached", renderHit,
		"duration", result.Stats.RenderTime)

	return result, nil
}

// Generate builds the causal tree and assigns depths. The output is
// deterministic for a given description and level, so it is never cached.
func (r *Runner) Generate(ctx context.Context, opts Options) ([]tree.Node, error) {
	if err := opts.ValidateForGenerate(); err != nil {
		return nil, err
	}

	start := time.Now()
	observability.Pipeline().OnGenerateStart(ctx, opts.Level)

	nodes, err := tree.AssignDepths(generate.Generate(opts.Description, opts.Level))
	observability.Pipeline().OnGenerateComplete(ctx, opts.Level, len(nodes), time.Since(start), err)
	if err != nil {
		return nil, err
	}
	return nodes, nil
}

// RenderWithCacheInfo renders artifacts with caching and returns cache hit info.
func (r *Runner) RenderWithCacheInfo(ctx context.Context, nodes []tree.Node, opts Options) (map[string][]byte, bool, error) {
	if err := opts.ValidateForRender(); err != nil {
		return nil, false, err
	}
	r.applyLogger(&opts)

	data, err := tree.Marshal(nodes)
	if err != nil {
		return nil, false, err
	}
	nodesHash := cache.Hash(data)

	// Try to get all formats from cache
	artifacts := make(map[string][]byte)
	allCached := !opts.Refresh
	if allCached {
		for _, format := range opts.Formats {
			key := r.Keyer.ArtifactKey(nodesHash, opts.ArtifactKeyOpts(format))
			if cached, hit, err := r.Cache.Get(ctx, key); err == nil && hit {
				observability.Cache().OnCacheHit(ctx, "artifact")
				artifacts[format] = cached
			} else {
				observability.Cache().OnCacheMiss(ctx, "artifact")
				allCached = false
				break
			}
		}
	}

	if allCached && len(artifacts) == len(opts.Formats) {
		return artifacts, true, nil
	}

	start := time.Now()
	observability.Pipeline().OnRenderStart(ctx, opts.Formats)

	rendered, err := r.renderAll(ctx, nodes, opts)
	observability.Pipeline().OnRenderComplete(ctx, opts.Formats, time.Since(start), err)
	if err != nil {
		return nil, false, err
	}

	// Cache each format
	for format, artifact := range rendered {
		key := r.Keyer.ArtifactKey(nodesHash, opts.ArtifactKeyOpts(format))
		if err := r.Cache.Set(ctx, key, artifact, cache.TTLArtifact); err == nil {
			observability.Cache().OnCacheSet(ctx, "artifact", len(artifact))
		}
	}

	return rendered, false, nil
}

// Render is a convenience wrapper that discards the cache hit info.
func (r *Runner) Render(ctx context.Context, nodes []tree.Node, opts Options) (map[string][]byte, error) {
	artifacts, _, err := r.RenderWithCacheInfo(ctx, nodes, opts)
	return artifacts, err
}

func (r *Runner) renderAll(ctx context.Context, nodes []tree.Node, opts Options) (map[string][]byte, error) {
	dot, err := render.ToDOT(nodes, render.Options{Detailed: opts.Detailed})
	if err != nil {
		return nil, err
	}

	out := make(map[string][]byte, len(opts.Formats))
	for _, format := range opts.Formats {
		var (
			artifact []byte
			err      error
		)
		switch format {
		case FormatDOT:
			artifact = []byte(dot)
		case FormatJSON:
			artifact, err = tree.Marshal(nodes)
		case FormatSVG:
			artifact, err = render.SVG(ctx, dot)
		case FormatPDF:
			artifact, err = render.PDF(ctx, dot)
		case FormatPNG:
			artifact, err = render.PNG(ctx, dot, opts.Scale)
		case FormatHTML:
			artifact, err = render.PrintDocument(ctx, nodes, render.PrintMeta{
				Incident:    opts.Title,
				Level:       opts.Level,
				GeneratedAt: time.Now(),
			})
		default:
			err = errors.New(errors.ErrCodeUnsupported, "invalid format: %q", format)
		}
		if err != nil {
			return nil, errors.Wrap(errors.ErrCodeInternal, err, "render %s", format)
		}
		out[format] = artifact
	}
	return out, nil
}

// Close releases resources held by the runner (primarily the cache).
func (r *Runner) Close() error {
	if r.Cache != nil {
		return r.Cache.Close()
	}
	return nil
}

// applyLogger sets the runner's logger on options if not already set.
func (r *Runner) applyLogger(opts *Options) {
	if opts.Logger == nil {
		opts.Logger = r.Logger
	}
}
