package cli

import (
	"context"
	"os"
	"path/filepath"

	"github.com/charmbracelet/log"

	"github.com/memebox/memebox/pkg/config"
	"github.com/memebox/memebox/pkg/errors"
	"github.com/memebox/memebox/pkg/fonts"
	"github.com/memebox/memebox/pkg/layout"
	"github.com/memebox/memebox/pkg/meme"
	"github.com/memebox/memebox/pkg/pipeline"
	"github.com/memebox/memebox/pkg/raster"
	"github.com/memebox/memebox/pkg/rendercache"
)

// faces adapts a font library so an unset style family resolves to the
// configured default instead of the built-in one.
type faces struct {
	lib    *fonts.Library
	family string
}

// Source implements the layout and raster Faces interfaces.
func (f faces) Source(family string) fonts.Source {
	if family == "" {
		family = f.family
	}
	return f.lib.Source(family)
}

// buildRunner assembles the full render pipeline from configuration.
func buildRunner(ctx context.Context, cfg *config.Config, logger *log.Logger) (*pipeline.Runner, error) {
	catalog, err := meme.NewDirCatalog(cfg.Templates.Dir)
	if err != nil {
		return nil, err
	}
	logger.Debug("catalog loaded", "dir", cfg.Templates.Dir, "templates", catalog.Len())

	fontFaces := faces{lib: fonts.NewLibrary(cfg.Fonts.Files), family: cfg.Fonts.Family}
	backend, err := buildCache(ctx, cfg.Cache)
	if err != nil {
		return nil, err
	}

	return pipeline.NewRunner(pipeline.RunnerConfig{
		Catalog: catalog,
		Layout:  layout.NewEngine(fontFaces, cfg.Layout.MinFontSize, cfg.Layout.MaxFontSize),
		Raster:  raster.NewRenderer(fontFaces, cfg.Render.OutputWidth),
		Store:   rendercache.NewStore(backend, cfg.Cache.TTL.Duration, logger),
		Workers: cfg.Render.Workers,
		Timeout: cfg.Render.Timeout.Duration,
		Logger:  logger,
	}), nil
}

// buildCache constructs the configured render cache backend.
func buildCache(ctx context.Context, cfg config.CacheConfig) (rendercache.Cache, error) {
	switch cfg.Backend {
	case "memory", "":
		return rendercache.NewMemoryCache(cfg.Capacity, cfg.TTL.Duration), nil
	case "redis":
		return rendercache.NewRedisCache(ctx, rendercache.RedisConfig{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
	case "file":
		return rendercache.NewFileCache(cacheDir(cfg))
	case "off":
		return rendercache.NewNullCache(), nil
	default:
		return nil, errors.New(errors.ErrCodeInvalidInput, "unknown cache backend %q", cfg.Backend)
	}
}

// cacheDir resolves the file cache directory, defaulting to a memebox
// directory under the user cache dir.
func cacheDir(cfg config.CacheConfig) string {
	if cfg.Dir != "" {
		return cfg.Dir
	}
	base, err := os.UserCacheDir()
	if err != nil {
		base = os.TempDir()
	}
	return filepath.Join(base, "memebox", "renders")
}
