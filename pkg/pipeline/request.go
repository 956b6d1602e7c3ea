// Package pipeline orchestrates the render flow: decode text segments,
// resolve the template, fingerprint the request, consult the render
// cache, and on a miss run layout and rasterization on a bounded worker
// pool.
//
// # Architecture
//
// The pipeline consists of small stages wired by the Runner:
//
//  1. Decode: URL text segments to display strings (pkg/texts)
//  2. Resolve: template id or alias to descriptor (pkg/meme)
//  3. Fingerprint: deterministic digest of the logical render
//  4. Cache: single-flight lookup-or-render (pkg/rendercache)
//  5. Layout + Raster: font fitting and frame composition
//
// Data flows strictly forward; a cache hit short-circuits after the
// fingerprint. Errors propagate in stage order, so a malformed segment
// wins over an unknown template, which wins over render failures.
//
// # Usage
//
//	runner := pipeline.NewRunner(pipeline.RunnerConfig{
//	    Catalog: catalog,
//	    Layout:  layoutEngine,
//	    Raster:  renderer,
//	    Store:   store,
//	})
//	result, err := runner.RenderSlug(ctx, "fry", "not_sure_if/worth_the_risk", pipeline.SlugOptions{})
package pipeline

import (
	"encoding/json"

	"github.com/memebox/memebox/pkg/meme"
	"github.com/memebox/memebox/pkg/raster"
	"github.com/memebox/memebox/pkg/rendercache"
)

// Request is one logical render: a template, its texts bound to boxes
// positionally, optional style overrides, and the output format.
// Requests are immutable values constructed once per incoming call.
type Request struct {
	TemplateID string         `json:"template_id"`
	Texts      []string       `json:"texts"`
	Style      meme.TextStyle `json:"style"` // overrides on top of template defaults
	Format     raster.Format  `json:"format"`
	Watermark  string         `json:"watermark,omitempty"`

	// SkipCache bypasses the render cache entirely. Not part of the
	// fingerprint: the logical render is the same either way.
	SkipCache bool `json:"-"`
}

// fingerprintPayload is the canonical digest input. The resolved
// template id (not the requested alias) identifies the render, so alias
// and primary-id spellings of the same meme share cache entries.
type fingerprintPayload struct {
	TemplateID string         `json:"template_id"`
	Texts      []string       `json:"texts"`
	Style      meme.TextStyle `json:"style"`
	Format     raster.Format  `json:"format"`
	Watermark  string         `json:"watermark"`
}

// fingerprint computes the deterministic digest identifying a render.
// Two requests with the same fingerprint are the same logical render for
// both caching and in-flight coalescing.
func fingerprint(resolvedID string, req *Request) string {
	payload, _ := json.Marshal(fingerprintPayload{
		TemplateID: resolvedID,
		Texts:      req.Texts,
		Style:      req.Style,
		Format:     req.Format,
		Watermark:  req.Watermark,
	})
	return rendercache.Hash(payload)
}
