package pipeline

import (
	"context"
	stderrors "errors"
	"runtime"
	"time"

	"github.com/charmbracelet/log"
	"golang.org/x/sync/semaphore"

	"github.com/memebox/memebox/pkg/errors"
	"github.com/memebox/memebox/pkg/layout"
	"github.com/memebox/memebox/pkg/meme"
	"github.com/memebox/memebox/pkg/observability"
	"github.com/memebox/memebox/pkg/raster"
	"github.com/memebox/memebox/pkg/rendercache"
	"github.com/memebox/memebox/pkg/texts"
)

// DefaultTimeout bounds a single render including queue wait.
const DefaultTimeout = 30 * time.Second

// RunnerConfig wires a Runner's collaborators. Catalog, Layout, Raster
// and Store are required; the rest default sensibly.
type RunnerConfig struct {
	Catalog meme.Catalog
	Layout  *layout.Engine
	Raster  *raster.Renderer
	Store   *rendercache.Store

	// Workers caps concurrent layout+raster executions. Zero selects
	// the CPU count. Cache hits bypass the pool entirely.
	Workers int

	// Timeout bounds each render end to end. Zero selects
	// DefaultTimeout; negative disables the bound.
	Timeout time.Duration

	Logger *log.Logger
}

// Runner drives the full render flow for one request: resolve, layout,
// rasterize, all behind the render cache and a bounded worker pool.
// A Runner is safe for concurrent use.
type Runner struct {
	catalog  meme.Catalog
	resolver *meme.Resolver
	layout   *layout.Engine
	raster   *raster.Renderer
	store    *rendercache.Store
	workers  *semaphore.Weighted
	timeout  time.Duration
	logger   *log.Logger
}

// NewRunner creates a runner from cfg.
func NewRunner(cfg RunnerConfig) *Runner {
	workers := cfg.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = DefaultTimeout
	}
	logger := cfg.Logger
	if logger == nil {
		logger = log.Default()
	}
	return &Runner{
		catalog:  cfg.Catalog,
		resolver: meme.NewResolver(cfg.Catalog),
		layout:   cfg.Layout,
		raster:   cfg.Raster,
		store:    cfg.Store,
		workers:  semaphore.NewWeighted(int64(workers)),
		timeout:  timeout,
		logger:   logger,
	}
}

// SlugOptions carries the non-text parts of a slug render.
type SlugOptions struct {
	Style     meme.TextStyle
	Format    raster.Format
	Watermark string
	SkipCache bool
}

// RenderSlug decodes an encoded text path and renders it against the
// named template. Decode errors win over template resolution errors, so
// a malformed slug on an unknown template reports the slug problem.
func (r *Runner) RenderSlug(ctx context.Context, templateID, slug string, opts SlugOptions) (*rendercache.Result, error) {
	decoded, err := texts.DecodeSlug(slug)
	observability.Render().OnDecode(ctx, len(decoded), err)
	if err != nil {
		return nil, err
	}
	return r.Render(ctx, &Request{
		TemplateID: templateID,
		Texts:      decoded,
		Style:      opts.Style,
		Format:     opts.Format,
		Watermark:  opts.Watermark,
		SkipCache:  opts.SkipCache,
	})
}

// Render resolves req's template and produces the encoded image,
// serving from the cache when possible. Concurrent identical requests
// share a single execution. A timeout surfaces as a RENDER_TIMEOUT
// error; the shared execution keeps running and may still populate the
// cache.
func (r *Runner) Render(ctx context.Context, req *Request) (*rendercache.Result, error) {
	tmpl, err := r.resolver.Resolve(ctx, req.TemplateID)
	observability.Render().OnResolve(ctx, req.TemplateID, err)
	if err != nil {
		return nil, err
	}
	norm := r.normalize(tmpl, *req)
	req = &norm

	fp := fingerprint(tmpl.ID, req)

	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	result, err := r.store.GetOrRender(ctx, fp, req.SkipCache, func(renderCtx context.Context) (*rendercache.Result, error) {
		return r.execute(renderCtx, tmpl, req, fp)
	})
	if err != nil {
		if stderrors.Is(err, context.DeadlineExceeded) {
			return nil, errors.Wrap(errors.ErrCodeRenderTimeout, err, "render %s", tmpl.ID)
		}
		return nil, err
	}
	return result, nil
}

// Fingerprint resolves req and returns its render fingerprint without
// rendering. Servers use it for conditional requests.
func (r *Runner) Fingerprint(ctx context.Context, req *Request) (string, error) {
	tmpl, err := r.resolver.Resolve(ctx, req.TemplateID)
	if err != nil {
		return "", err
	}
	norm := r.normalize(tmpl, *req)
	return fingerprint(tmpl.ID, &norm), nil
}

// normalize canonicalizes a request against its resolved template so
// equivalent requests fingerprint identically: extra texts beyond the
// template's box count are dropped and an empty format becomes the
// default.
func (r *Runner) normalize(tmpl *meme.Template, req Request) Request {
	if len(req.Texts) > len(tmpl.Boxes) {
		req.Texts = req.Texts[:len(tmpl.Boxes)]
	}
	if req.Format == "" {
		req.Format = raster.DefaultFormat
	}
	return req
}

// execute is the cache-miss path: wait for a worker slot, fit every box,
// and composite the frames.
func (r *Runner) execute(ctx context.Context, tmpl *meme.Template, req *Request, fp string) (*rendercache.Result, error) {
	if err := r.workers.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	defer r.workers.Release(1)

	observability.Render().OnRenderStart(ctx, fp)
	start := time.Now()

	result, err := r.renderOnce(ctx, tmpl, req, fp)
	observability.Render().OnRenderComplete(ctx, fp, string(req.Format), time.Since(start), err)
	if err != nil {
		r.logger.Error("render failed", "template", tmpl.ID, "err", err)
		return nil, err
	}
	r.logger.Debug("rendered",
		"template", tmpl.ID,
		"format", req.Format,
		"bytes", len(result.Bytes),
		"duration", time.Since(start))
	return result, nil
}

// renderOnce performs one uncached render of req against tmpl.
func (r *Runner) renderOnce(ctx context.Context, tmpl *meme.Template, req *Request, fp string) (*rendercache.Result, error) {
	frames, err := r.catalog.Frames(ctx, tmpl)
	if err != nil {
		return nil, err
	}

	// Texts bind to boxes positionally; extras beyond the template's
	// box count are ignored, missing ones leave their box blank.
	boxes := make([]raster.BoxRender, 0, len(tmpl.Boxes))
	for i, box := range tmpl.Boxes {
		style := tmpl.BoxStyle(i).Merge(req.Style)
		text := ""
		if i < len(req.Texts) {
			text = req.Texts[i]
		}
		fitted, err := r.layout.Fit(text, box, style)
		if err != nil {
			return nil, errors.Wrap(errors.ErrCodeRenderFailed, err, "fit box %d of %s", i, tmpl.ID)
		}
		boxes = append(boxes, raster.BoxRender{
			Box:   box,
			Lines: fitted.Lines,
			Size:  fitted.Size,
			Style: style,
		})
	}

	data, contentType, err := r.raster.Render(frames, tmpl, boxes, req.Watermark, req.Format)
	if err != nil {
		return nil, err
	}
	return &rendercache.Result{
		Bytes:       data,
		ContentType: contentType,
		Fingerprint: fp,
	}, nil
}

// Templates lists the catalog for discovery surfaces.
func (r *Runner) Templates(ctx context.Context) ([]*meme.Template, error) {
	return r.catalog.List(ctx)
}

// Close releases the render cache backend.
func (r *Runner) Close() error {
	return r.store.Close()
}
