package raster

import (
	"bytes"
	"image"
	"image/color"
	"image/draw"
	"image/gif"
	"image/jpeg"
	"image/png"
	"testing"

	"golang.org/x/image/font"
	"golang.org/x/image/math/fixed"

	"github.com/memebox/memebox/pkg/errors"
	"github.com/memebox/memebox/pkg/fonts"
	"github.com/memebox/memebox/pkg/meme"
)

// fakeFace is a minimal deterministic face so raster tests do not depend
// on system fonts. Glyphs draw nothing; only advances and metrics matter.
type fakeFace struct {
	size float64
}

func (f fakeFace) Close() error { return nil }

func (f fakeFace) Glyph(dot fixed.Point26_6, r rune) (image.Rectangle, image.Image, image.Point, fixed.Int26_6, bool) {
	return image.Rectangle{}, image.NewAlpha(image.Rect(0, 0, 1, 1)), image.Point{}, f.advance(), true
}

func (f fakeFace) GlyphBounds(r rune) (fixed.Rectangle26_6, fixed.Int26_6, bool) {
	return fixed.Rectangle26_6{}, f.advance(), true
}

func (f fakeFace) GlyphAdvance(r rune) (fixed.Int26_6, bool) { return f.advance(), true }
func (f fakeFace) Kern(r0, r1 rune) fixed.Int26_6            { return 0 }

func (f fakeFace) Metrics() font.Metrics {
	return font.Metrics{
		Height:  fixed.I(int(f.size)),
		Ascent:  fixed.I(int(f.size * 4 / 5)),
		Descent: fixed.I(int(f.size / 5)),
	}
}

func (f fakeFace) advance() fixed.Int26_6 { return fixed.Int26_6(f.size * 32) }

type fakeSource struct{}

func (fakeSource) Face(points float64) (font.Face, error) { return fakeFace{size: points}, nil }

type fakeFaces struct{}

func (fakeFaces) Source(family string) fonts.Source { return fakeSource{} }

// failingFaces simulates an unavailable font.
type failingFaces struct{}

type failingSource struct{}

func (failingSource) Face(points float64) (font.Face, error) {
	return nil, errors.New(errors.ErrCodeFontUnavailable, "no such font")
}

func (failingFaces) Source(family string) fonts.Source { return failingSource{} }

func staticFrames(w, h int) *meme.FrameSet {
	return &meme.FrameSet{Images: []image.Image{image.NewRGBA(image.Rect(0, 0, w, h))}}
}

func animatedFrames(w, h, n int) *meme.FrameSet {
	set := &meme.FrameSet{}
	for i := 0; i < n; i++ {
		set.Images = append(set.Images, image.NewRGBA(image.Rect(0, 0, w, h)))
		set.Delays = append(set.Delays, 5)
	}
	return set
}

func fryTemplate() *meme.Template {
	return &meme.Template{
		ID:     "fry",
		Source: "default.png",
		Width:  300,
		Boxes: []meme.Box{
			{X: 0, Y: 0, Width: 300, Height: 50, Anchor: meme.AnchorTop},
			{X: 0, Y: 250, Width: 300, Height: 50, Anchor: meme.AnchorBottom},
		},
	}
}

func fryBoxes(tmpl *meme.Template) []BoxRender {
	return []BoxRender{
		{Box: tmpl.Boxes[0], Lines: []string{"not sure if"}, Size: 32, Style: tmpl.BoxStyle(0)},
		{Box: tmpl.Boxes[1], Lines: []string{"worth the risk"}, Size: 32, Style: tmpl.BoxStyle(1)},
	}
}

func TestRenderPNG(t *testing.T) {
	r := NewRenderer(fakeFaces{}, 0)
	tmpl := fryTemplate()

	data, contentType, err := r.Render(staticFrames(300, 300), tmpl, fryBoxes(tmpl), "", FormatPNG)
	if err != nil {
		t.Fatalf("Render error: %v", err)
	}
	if contentType != "image/png" {
		t.Errorf("content type = %q, want image/png", contentType)
	}

	img, err := png.Decode(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("output is not valid PNG: %v", err)
	}
	if img.Bounds().Dx() != 300 || img.Bounds().Dy() != 300 {
		t.Errorf("output size = %v, want 300x300", img.Bounds())
	}
}

func TestRenderScalesToTemplateWidth(t *testing.T) {
	r := NewRenderer(fakeFaces{}, 0)
	tmpl := fryTemplate()
	tmpl.Width = 150

	data, _, err := r.Render(staticFrames(300, 200), tmpl, nil, "", FormatPNG)
	if err != nil {
		t.Fatalf("Render error: %v", err)
	}
	img, err := png.Decode(bytes.NewReader(data))
	if err != nil {
		t.Fatal(err)
	}
	if img.Bounds().Dx() != 150 || img.Bounds().Dy() != 100 {
		t.Errorf("output size = %v, want 150x100", img.Bounds())
	}
}

// A single-frame template requested as GIF yields a one-frame GIF, not
// an error.
func TestRenderSingleFrameGIF(t *testing.T) {
	r := NewRenderer(fakeFaces{}, 0)
	tmpl := fryTemplate()

	data, contentType, err := r.Render(staticFrames(300, 300), tmpl, fryBoxes(tmpl), "", FormatGIF)
	if err != nil {
		t.Fatalf("Render error: %v", err)
	}
	if contentType != "image/gif" {
		t.Errorf("content type = %q, want image/gif", contentType)
	}

	g, err := gif.DecodeAll(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("output is not valid GIF: %v", err)
	}
	if len(g.Image) != 1 {
		t.Errorf("frames = %d, want 1", len(g.Image))
	}
}

// A multi-frame source requested as JPEG degrades to the first frame.
func TestRenderAnimatedAsJPEG(t *testing.T) {
	r := NewRenderer(fakeFaces{}, 0)
	tmpl := fryTemplate()

	data, contentType, err := r.Render(animatedFrames(300, 300, 3), tmpl, fryBoxes(tmpl), "", FormatJPEG)
	if err != nil {
		t.Fatalf("Render error: %v", err)
	}
	if contentType != "image/jpeg" {
		t.Errorf("content type = %q, want image/jpeg", contentType)
	}
	if _, err := jpeg.Decode(bytes.NewReader(data)); err != nil {
		t.Fatalf("output is not valid JPEG: %v", err)
	}
}

func TestRenderAnimatedGIFKeepsTiming(t *testing.T) {
	r := NewRenderer(fakeFaces{}, 0)
	tmpl := fryTemplate()
	frames := animatedFrames(300, 300, 3)
	frames.Loop = 2

	data, _, err := r.Render(frames, tmpl, fryBoxes(tmpl), "", FormatGIF)
	if err != nil {
		t.Fatalf("Render error: %v", err)
	}

	g, err := gif.DecodeAll(bytes.NewReader(data))
	if err != nil {
		t.Fatal(err)
	}
	if len(g.Image) != 3 {
		t.Errorf("frames = %d, want 3", len(g.Image))
	}
	for i, d := range g.Delay {
		if d != 5 {
			t.Errorf("frame %d delay = %d, want 5", i, d)
		}
	}
	if g.LoopCount != 2 {
		t.Errorf("loop count = %d, want 2", g.LoopCount)
	}
}

// Delta-encoded frames cover only their changed sub-rectangle. They
// must composite onto the accumulated canvas at their own offset, not
// scale up to the full output.
func TestRenderAnimatedDeltaFrames(t *testing.T) {
	r := NewRenderer(fakeFaces{}, 0)
	tmpl := fryTemplate()
	tmpl.Width = 100

	base := image.NewRGBA(image.Rect(0, 0, 100, 100))
	draw.Draw(base, base.Bounds(), &image.Uniform{color.RGBA{R: 255, A: 255}}, image.Point{}, draw.Src)
	patch := image.NewRGBA(image.Rect(45, 45, 55, 55))
	draw.Draw(patch, patch.Bounds(), &image.Uniform{color.RGBA{B: 255, A: 255}}, image.Point{}, draw.Src)
	frames := &meme.FrameSet{
		Images: []image.Image{base, patch},
		Delays: []int{5, 5},
	}

	data, _, err := r.Render(frames, tmpl, nil, "", FormatGIF)
	if err != nil {
		t.Fatalf("Render error: %v", err)
	}
	g, err := gif.DecodeAll(bytes.NewReader(data))
	if err != nil {
		t.Fatal(err)
	}
	if len(g.Image) != 2 {
		t.Fatalf("frames = %d, want 2", len(g.Image))
	}

	second := g.Image[1]
	if second.Bounds().Dx() != 100 || second.Bounds().Dy() != 100 {
		t.Fatalf("frame 1 bounds = %v, want 100x100", second.Bounds())
	}
	// The corner keeps the base frame's red; only the center shows the
	// patch's blue.
	if cr, _, cb, _ := second.At(5, 5).RGBA(); cb >= cr {
		t.Errorf("frame 1 corner = %v, want red from the base frame", second.At(5, 5))
	}
	if cr, _, cb, _ := second.At(50, 50).RGBA(); cr >= cb {
		t.Errorf("frame 1 center = %v, want blue from the patch", second.At(50, 50))
	}
}

// Formats without an encoder are rejected up front.
func TestRenderUnsupportedFormat(t *testing.T) {
	r := NewRenderer(fakeFaces{}, 0)
	tmpl := fryTemplate()

	_, _, err := r.Render(staticFrames(300, 300), tmpl, nil, "", Format("webp"))
	if !errors.Is(err, errors.ErrCodeUnsupportedFormat) {
		t.Errorf("error = %v, want UNSUPPORTED_FORMAT", err)
	}
}

// Identical inputs produce byte-identical output.
func TestRenderDeterministic(t *testing.T) {
	r := NewRenderer(fakeFaces{}, 0)
	tmpl := fryTemplate()

	a, _, err := r.Render(staticFrames(300, 300), tmpl, fryBoxes(tmpl), "memebox.example", FormatPNG)
	if err != nil {
		t.Fatal(err)
	}
	b, _, err := r.Render(staticFrames(300, 300), tmpl, fryBoxes(tmpl), "memebox.example", FormatPNG)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(a, b) {
		t.Error("two renders of the same input differ")
	}
}

// Empty boxes are skipped entirely; a fully blank render still succeeds.
func TestRenderBlank(t *testing.T) {
	r := NewRenderer(fakeFaces{}, 0)
	tmpl := fryTemplate()
	boxes := []BoxRender{
		{Box: tmpl.Boxes[0]},
		{Box: tmpl.Boxes[1]},
	}

	data, _, err := r.Render(staticFrames(300, 300), tmpl, boxes, "", FormatPNG)
	if err != nil {
		t.Fatalf("Render error: %v", err)
	}
	if _, err := png.Decode(bytes.NewReader(data)); err != nil {
		t.Fatal(err)
	}
}

func TestRenderMissingFont(t *testing.T) {
	r := NewRenderer(failingFaces{}, 0)
	tmpl := fryTemplate()

	_, _, err := r.Render(staticFrames(300, 300), tmpl, fryBoxes(tmpl), "", FormatPNG)
	if !errors.Is(err, errors.ErrCodeRenderFailed) {
		t.Errorf("error = %v, want RENDER_FAILED", err)
	}
}

func TestRenderNoFrames(t *testing.T) {
	r := NewRenderer(fakeFaces{}, 0)
	tmpl := fryTemplate()

	if _, _, err := r.Render(&meme.FrameSet{}, tmpl, nil, "", FormatPNG); err == nil {
		t.Error("Render with no frames should fail")
	}
}
