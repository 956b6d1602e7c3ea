// Package layout computes the font size and line wrap that fit a text
// fragment into a template box.
//
// # Algorithm
//
// Fit binary-searches the integer font size over the style's closed
// [min, max] interval, maximizing the size at which a greedy word wrap
// stays within the box: every wrapped line's measured width must fit the
// box width and the stacked line height must fit the box height. A single
// word wider than the box is hard-split at a character boundary rather
// than dropped. When even the minimum size overflows, the minimum is
// selected and vertical overflow is allowed; user text is never
// truncated.
//
// Each probe performs a full greedy wrap at that size, so the search runs
// O(log(max-min)) wraps. The engine returns raw lines and the chosen
// size; pixel positioning (anchoring, centering) belongs to the
// rasterizer.
package layout

import (
	"strings"

	"golang.org/x/image/font"

	"github.com/memebox/memebox/pkg/fonts"
	"github.com/memebox/memebox/pkg/meme"
)

// Default font size bounds, used when neither the template style nor the
// configuration narrows them.
const (
	DefaultMinFontSize = 7
	DefaultMaxFontSize = 50
)

// Faces resolves a font family to a face source. *fonts.Library
// implements this; tests substitute deterministic fakes.
type Faces interface {
	Source(family string) fonts.Source
}

// Fitted is the result of fitting one text fragment into one box.
type Fitted struct {
	Lines []string // wrapped lines, empty for empty text
	Size  int      // chosen font size in points; 0 when Lines is empty
}

// Empty reports whether there is nothing to draw for this box.
func (f Fitted) Empty() bool {
	return len(f.Lines) == 0
}

// Engine fits text fragments into boxes using measured glyph advances.
type Engine struct {
	faces   Faces
	minSize int
	maxSize int
}

// NewEngine creates a layout engine. minSize and maxSize bound the font
// size search when a style does not set its own bounds; zero values fall
// back to the package defaults.
func NewEngine(faces Faces, minSize, maxSize int) *Engine {
	if minSize <= 0 {
		minSize = DefaultMinFontSize
	}
	if maxSize <= 0 {
		maxSize = DefaultMaxFontSize
	}
	if maxSize < minSize {
		maxSize = minSize
	}
	return &Engine{faces: faces, minSize: minSize, maxSize: maxSize}
}

// Fit computes the wrapped lines and font size for text within box.
// Empty text yields zero lines; the box is skipped during rasterization.
func (e *Engine) Fit(text string, box meme.Box, style meme.TextStyle) (Fitted, error) {
	if strings.TrimSpace(text) == "" {
		return Fitted{}, nil
	}
	if style.Uppercase {
		text = strings.ToUpper(text)
	}

	lo, hi := e.bounds(style)
	src := e.faces.Source(style.Family)

	// Largest size first: most texts fit at max and the search ends in
	// one probe.
	lines, ok, err := e.probe(src, text, box, hi)
	if err != nil {
		return Fitted{}, err
	}
	if ok {
		return Fitted{Lines: lines, Size: hi}, nil
	}

	lines, ok, err = e.probe(src, text, box, lo)
	if err != nil {
		return Fitted{}, err
	}
	if !ok {
		// Nothing in range fits; keep the minimum and let the text
		// overflow the box vertically.
		return Fitted{Lines: lines, Size: lo}, nil
	}

	// Invariant: lo fits, hi does not.
	best := lines
	for hi-lo > 1 {
		mid := (lo + hi) / 2
		lines, ok, err = e.probe(src, text, box, mid)
		if err != nil {
			return Fitted{}, err
		}
		if ok {
			lo, best = mid, lines
		} else {
			hi = mid
		}
	}
	return Fitted{Lines: best, Size: lo}, nil
}

// bounds resolves the effective search interval for a style.
func (e *Engine) bounds(style meme.TextStyle) (lo, hi int) {
	lo, hi = e.minSize, e.maxSize
	if style.MinFontSize > 0 {
		lo = style.MinFontSize
	}
	if style.MaxFontSize > 0 {
		hi = style.MaxFontSize
	}
	if hi < lo {
		hi = lo
	}
	return lo, hi
}

// probe wraps text at one candidate size and reports whether the result
// stays inside the box.
func (e *Engine) probe(src fonts.Source, text string, box meme.Box, size int) ([]string, bool, error) {
	face, err := src.Face(float64(size))
	if err != nil {
		return nil, false, err
	}
	defer face.Close()

	lines := wrap(face, text, box.Width)

	for _, line := range lines {
		if measure(face, line) > box.Width {
			return lines, false, nil
		}
	}
	lineHeight := float64(face.Metrics().Height.Ceil())
	if lineHeight*float64(len(lines)) > box.Height {
		return lines, false, nil
	}
	return lines, true, nil
}

// wrap performs a greedy word wrap of text at the face's size. Explicit
// newlines force breaks; a word wider than maxWidth is hard-split at a
// character boundary, never dropped.
func wrap(face font.Face, text string, maxWidth float64) []string {
	var lines []string

	for _, paragraph := range strings.Split(text, "\n") {
		words := strings.Fields(paragraph)
		if len(words) == 0 {
			continue
		}

		current := ""
		for _, word := range words {
			candidate := word
			if current != "" {
				candidate = current + " " + word
			}
			if measure(face, candidate) <= maxWidth {
				current = candidate
				continue
			}
			if current != "" {
				lines = append(lines, current)
				current = ""
			}
			if measure(face, word) <= maxWidth {
				current = word
				continue
			}
			// Word alone exceeds the box: split at character
			// boundaries. The final chunk stays open so following
			// words can still join it.
			chunks := hardSplit(face, word, maxWidth)
			lines = append(lines, chunks[:len(chunks)-1]...)
			current = chunks[len(chunks)-1]
		}
		if current != "" {
			lines = append(lines, current)
		}
	}

	return lines
}

// hardSplit breaks word into chunks no wider than maxWidth, keeping at
// least one rune per chunk so progress is guaranteed even when a single
// glyph overflows.
func hardSplit(face font.Face, word string, maxWidth float64) []string {
	var chunks []string
	runes := []rune(word)

	for len(runes) > 0 {
		n := 1
		for n < len(runes) && measure(face, string(runes[:n+1])) <= maxWidth {
			n++
		}
		chunks = append(chunks, string(runes[:n]))
		runes = runes[n:]
	}
	return chunks
}

// measure returns the advance width of s in pixels.
func measure(face font.Face, s string) float64 {
	return float64(font.MeasureString(face, s).Ceil())
}
