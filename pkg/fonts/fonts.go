// Package fonts provides font loading for the rasterizer and layout
// engine.
//
// Parsed fonts are cached per family inside a Library; font.Face values
// are created per call because freetype faces are not safe for concurrent
// use. Callers obtain a Source bound to one family and create short-lived
// faces from it around each render.
//
// Families resolve in two steps: an explicit path override from
// configuration wins, otherwise the family is located on the system via
// go-findfont. A family that cannot be resolved fails with a
// FONT_UNAVAILABLE error; there is no silent fallback substitution, since
// swapping fonts would change fingerprinted output unpredictably.
package fonts

import (
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/flopp/go-findfont"
	"github.com/golang/freetype/truetype"
	"golang.org/x/image/font"

	"github.com/memebox/memebox/pkg/errors"
)

// DefaultFamily is the classic meme typeface.
const DefaultFamily = "Impact"

// Source hands out a font.Face for a requested point size. Faces are not
// safe for concurrent use; create one per render and close it when done.
type Source interface {
	Face(points float64) (font.Face, error)
}

// Library loads and caches parsed truetype fonts by family name.
// The parsed *truetype.Font is immutable and shared; faces are minted
// fresh per request.
type Library struct {
	mu        sync.Mutex
	parsed    map[string]*truetype.Font
	overrides map[string]string // family (lowercased) -> font file path
}

// NewLibrary creates a font library. Overrides map family names to
// explicit font file paths and take precedence over system lookup.
func NewLibrary(overrides map[string]string) *Library {
	norm := make(map[string]string, len(overrides))
	for family, path := range overrides {
		norm[strings.ToLower(family)] = path
	}
	return &Library{
		parsed:    make(map[string]*truetype.Font),
		overrides: norm,
	}
}

// Font returns the parsed font for a family, loading it on first use.
func (l *Library) Font(family string) (*truetype.Font, error) {
	if family == "" {
		family = DefaultFamily
	}
	key := strings.ToLower(family)

	l.mu.Lock()
	defer l.mu.Unlock()

	if f, ok := l.parsed[key]; ok {
		return f, nil
	}

	path, err := l.locate(family)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeFontUnavailable, err, "read font file %s", path)
	}
	f, err := truetype.Parse(data)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeFontUnavailable, err, "parse font %s", path)
	}

	l.parsed[key] = f
	return f, nil
}

// Face creates a new face for the family at the given point size.
func (l *Library) Face(family string, points float64) (font.Face, error) {
	f, err := l.Font(family)
	if err != nil {
		return nil, err
	}
	return truetype.NewFace(f, &truetype.Options{
		Size:    points,
		DPI:     72,
		Hinting: font.HintingFull,
	}), nil
}

// Source returns a Source bound to one family. Resolution errors surface
// on the first Face call.
func (l *Library) Source(family string) Source {
	return familySource{lib: l, family: family}
}

// locate finds the font file for a family. Caller holds l.mu.
func (l *Library) locate(family string) (string, error) {
	if path, ok := l.overrides[strings.ToLower(family)]; ok {
		if _, err := os.Stat(path); err != nil {
			return "", errors.Wrap(errors.ErrCodeFontUnavailable, err, "configured font path for %q", family)
		}
		return path, nil
	}

	// findfont matches file names, not family metadata, so try the usual
	// spellings of the family name.
	candidates := []string{
		family + ".ttf",
		strings.ReplaceAll(family, " ", "") + ".ttf",
		strings.ToLower(strings.ReplaceAll(family, " ", "")) + ".ttf",
	}
	for _, name := range candidates {
		if path, err := findfont.Find(name); err == nil {
			return path, nil
		}
	}
	return "", errors.New(errors.ErrCodeFontUnavailable,
		"font family %q not found (searched %s)", family, fmt.Sprintf("%v", candidates))
}

// familySource binds a Library to one family.
type familySource struct {
	lib    *Library
	family string
}

// Face implements Source.
func (s familySource) Face(points float64) (font.Face, error) {
	return s.lib.Face(s.family, points)
}

// Ensure familySource implements Source.
var _ Source = familySource{}
