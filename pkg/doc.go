// Package pkg provides the core libraries for memebox meme rendering.
//
// # Overview
//
// Memebox turns a template name plus URL-encoded caption text into a
// finished image. The pkg directory is organized along the render flow:
//
//  1. [texts] - URL text codec (encode/decode caption segments)
//  2. [meme] - Template model, catalogs, and resolution
//  3. [layout] - Font-size search and word wrapping
//  4. [raster] - Frame composition and image encoding
//  5. [rendercache] - Content-addressed cache with coalescing
//  6. [pipeline] - Orchestration (decode → resolve → layout → raster)
//
// Supporting packages: [fonts] (truetype loading), [config] (TOML
// configuration), [errors] (structured error codes), [observability]
// (hook registry), [buildinfo] (version stamping).
//
// # Architecture
//
// The typical data flow through memebox:
//
//	/images/fry/not_sure_if/worth_the_risk.png
//	         ↓
//	    [texts] package (decode segments)
//	         ↓
//	    [meme] package (resolve template + frames)
//	         ↓
//	    [layout] package (fit text into boxes)
//	         ↓
//	    [raster] package (draw + encode)
//	         ↓
//	    PNG/JPEG/GIF bytes, cached by [rendercache]
//
// # Quick Start
//
//	runner := pipeline.NewRunner(pipeline.RunnerConfig{
//	    Catalog: catalog,
//	    Layout:  layout.NewEngine(faces, 0, 0),
//	    Raster:  raster.NewRenderer(faces, 0),
//	    Store:   rendercache.NewStore(rendercache.NewMemoryCache(256, time.Hour), time.Hour, nil),
//	})
//	result, err := runner.RenderSlug(ctx, "fry", "not_sure_if/worth_the_risk", pipeline.SlugOptions{})
package pkg
