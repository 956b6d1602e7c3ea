// Package raster composites template frames with laid-out text and
// encodes the result.
//
// The rasterizer scales each source frame to the template's canonical
// output width, draws every non-empty box's lines with the classic meme
// treatment (stroke outline behind a solid fill, horizontally centered,
// vertically anchored per box), stamps the optional watermark, and
// encodes the frames into the requested format.
//
// Frame-count mismatches degrade instead of failing: a multi-frame
// source requested as PNG or JPEG renders its first frame only, and a
// single-frame source requested as GIF produces a one-frame GIF. A
// missing font is fatal for the render; substituting another font would
// change fingerprinted output unpredictably.
package raster

import (
	"bytes"
	"image"
	"image/color/palette"
	"image/draw"
	"image/gif"
	"image/jpeg"
	"image/png"
	"math"

	"github.com/disintegration/imaging"
	"github.com/fogleman/gg"
	"golang.org/x/image/font"

	"github.com/memebox/memebox/pkg/errors"
	"github.com/memebox/memebox/pkg/fonts"
	"github.com/memebox/memebox/pkg/meme"
)

// Style fallbacks applied when a template leaves fields unset.
const (
	defaultColor       = "#ffffff"
	defaultStrokeColor = "#000000"
	watermarkSize      = 14
	jpegQuality        = 90
)

// DefaultOutputWidth is the canonical output width for templates that do
// not declare their own.
const DefaultOutputWidth = 600

// Faces resolves a font family to a face source.
type Faces interface {
	Source(family string) fonts.Source
}

// BoxRender pairs a template box with the lines and font size the layout
// engine chose for it.
type BoxRender struct {
	Box   meme.Box
	Lines []string
	Size  int
	Style meme.TextStyle
}

// Renderer draws captioned frames. It is stateless apart from the font
// source and safe for concurrent use; faces are created per render call.
type Renderer struct {
	faces       Faces
	outputWidth int
}

// NewRenderer creates a renderer. outputWidth is the fallback canonical
// width; zero selects DefaultOutputWidth.
func NewRenderer(faces Faces, outputWidth int) *Renderer {
	if outputWidth <= 0 {
		outputWidth = DefaultOutputWidth
	}
	return &Renderer{faces: faces, outputWidth: outputWidth}
}

// Render composites the template frames with the given box contents and
// encodes them. It returns the encoded bytes and their content type.
func (r *Renderer) Render(frames *meme.FrameSet, tmpl *meme.Template, boxes []BoxRender, watermark string, format Format) ([]byte, string, error) {
	if frames == nil || len(frames.Images) == 0 {
		return nil, "", errors.New(errors.ErrCodeRenderFailed, "template %s has no frames", tmpl.ID)
	}

	srcBounds := frames.Images[0].Bounds()
	outW := tmpl.Width
	if outW <= 0 {
		outW = r.outputWidth
	}
	scale := float64(outW) / float64(srcBounds.Dx())
	outH := int(math.Round(float64(srcBounds.Dy()) * scale))

	// Animated sources may be delta-encoded; flatten every frame onto
	// the logical canvas before scaling, or a sub-rectangle patch would
	// be stretched to the full output size.
	src := coalesceFrames(frames)

	// Only GIF can represent multiple frames; other formats reduce to
	// the first frame rather than erroring.
	if format != FormatGIF && len(src) > 1 {
		src = src[:1]
	}

	rendered := make([]image.Image, 0, len(src))
	for _, frame := range src {
		img, err := r.renderFrame(frame, outW, outH, scale, boxes, watermark)
		if err != nil {
			return nil, "", err
		}
		rendered = append(rendered, img)
	}

	data, err := encode(rendered, frames, format)
	if err != nil {
		return nil, "", err
	}
	return data, format.ContentType(), nil
}

// coalesceFrames flattens animation frames onto the logical canvas.
// A delta-encoded frame covers only its changed sub-rectangle, so each
// frame is drawn over the accumulated canvas at its own offset and the
// result snapshotted, honoring the source's disposal mode. The canvas
// is sized by the first frame's bounds.
func coalesceFrames(frames *meme.FrameSet) []image.Image {
	if len(frames.Images) == 1 {
		return frames.Images
	}

	bounds := frames.Images[0].Bounds()
	canvas := image.NewRGBA(bounds)
	out := make([]image.Image, 0, len(frames.Images))

	for i, frame := range frames.Images {
		var saved *image.RGBA
		if frames.DisposalAt(i) == gif.DisposalPrevious {
			saved = image.NewRGBA(bounds)
			draw.Draw(saved, bounds, canvas, bounds.Min, draw.Src)
		}

		draw.Draw(canvas, frame.Bounds(), frame, frame.Bounds().Min, draw.Over)

		flat := image.NewRGBA(bounds)
		draw.Draw(flat, bounds, canvas, bounds.Min, draw.Src)
		out = append(out, flat)

		switch frames.DisposalAt(i) {
		case gif.DisposalBackground:
			draw.Draw(canvas, frame.Bounds(), image.Transparent, image.Point{}, draw.Src)
		case gif.DisposalPrevious:
			canvas = saved
		}
	}
	return out
}

// renderFrame scales one source frame and draws all boxes plus the
// watermark onto it.
func (r *Renderer) renderFrame(frame image.Image, outW, outH int, scale float64, boxes []BoxRender, watermark string) (image.Image, error) {
	base := imaging.Resize(frame, outW, outH, imaging.Lanczos)

	dc := gg.NewContext(outW, outH)
	dc.DrawImage(base, 0, 0)

	for _, br := range boxes {
		if len(br.Lines) == 0 {
			continue
		}
		if err := r.drawBox(dc, br, scale); err != nil {
			return nil, err
		}
	}

	if watermark != "" {
		if err := r.drawWatermark(dc, watermark, outW, outH); err != nil {
			return nil, err
		}
	}

	return dc.Image(), nil
}

// drawBox draws one box's lines, horizontally centered and vertically
// anchored. The box is mapped from source to output pixel space.
func (r *Renderer) drawBox(dc *gg.Context, br BoxRender, scale float64) error {
	face, err := r.faces.Source(br.Style.Family).Face(float64(br.Size) * scale)
	if err != nil {
		return errors.Wrap(errors.ErrCodeRenderFailed, err, "font for box")
	}
	defer face.Close()
	dc.SetFontFace(face)

	box := br.Box.Scaled(scale)
	metrics := face.Metrics()
	lineHeight := float64(metrics.Height.Ceil())
	ascent := float64(metrics.Ascent.Ceil())
	total := lineHeight * float64(len(br.Lines))

	var y0 float64
	switch br.Box.Anchor {
	case meme.AnchorBottom:
		y0 = box.Y + box.Height - total
	case meme.AnchorMiddle:
		y0 = box.Y + (box.Height-total)/2
	default:
		y0 = box.Y
	}
	if total > box.Height {
		// Overflow grows downward regardless of anchor.
		y0 = box.Y
	}

	stroke := strokeWidth(br.Style, float64(br.Size)*scale)
	fill := br.Style.Color
	if fill == "" {
		fill = defaultColor
	}
	strokeColor := br.Style.StrokeColor
	if strokeColor == "" {
		strokeColor = defaultStrokeColor
	}

	for i, line := range br.Lines {
		lineW := measure(face, line)
		x := box.X + (box.Width-lineW)/2
		y := y0 + float64(i)*lineHeight + ascent
		drawOutlined(dc, line, x, y, stroke, strokeColor, fill)
	}
	return nil
}

// drawWatermark stamps the watermark near the bottom-right corner,
// independent of any box.
func (r *Renderer) drawWatermark(dc *gg.Context, text string, outW, outH int) error {
	face, err := r.faces.Source("").Face(watermarkSize)
	if err != nil {
		return errors.Wrap(errors.ErrCodeRenderFailed, err, "watermark font")
	}
	defer face.Close()
	dc.SetFontFace(face)

	w := measure(face, text)
	x := float64(outW) - w - 8
	y := float64(outH) - 8
	drawOutlined(dc, text, x, y, 1, defaultStrokeColor, "#cccccc")
	return nil
}

// drawOutlined draws text with a stroke outline behind the fill by
// repeating the string at integer offsets around the anchor point.
func drawOutlined(dc *gg.Context, s string, x, y, stroke float64, strokeColor, fillColor string) {
	n := int(math.Ceil(stroke))
	if n > 0 {
		dc.SetHexColor(strokeColor)
		for dy := -n; dy <= n; dy++ {
			for dx := -n; dx <= n; dx++ {
				if dx == 0 && dy == 0 {
					continue
				}
				dc.DrawString(s, x+float64(dx), y+float64(dy))
			}
		}
	}
	dc.SetHexColor(fillColor)
	dc.DrawString(s, x, y)
}

// strokeWidth resolves the effective outline width for a style at a
// rendered font size. Values below 1 scale with the size; zero selects
// the classic size/12 outline.
func strokeWidth(style meme.TextStyle, size float64) float64 {
	switch {
	case style.StrokeWidth >= 1:
		return style.StrokeWidth
	case style.StrokeWidth > 0:
		return math.Max(1, style.StrokeWidth*size)
	default:
		return math.Max(1, size/12)
	}
}

// measure returns the advance width of s in pixels.
func measure(face font.Face, s string) float64 {
	return float64(font.MeasureString(face, s).Ceil())
}

// encode serializes rendered frames into the requested format.
func encode(rendered []image.Image, frames *meme.FrameSet, format Format) ([]byte, error) {
	var buf bytes.Buffer

	switch format {
	case FormatJPEG:
		if err := jpeg.Encode(&buf, rendered[0], &jpeg.Options{Quality: jpegQuality}); err != nil {
			return nil, errors.Wrap(errors.ErrCodeRenderFailed, err, "encode jpeg")
		}
	case FormatGIF:
		out := &gif.GIF{LoopCount: frames.Loop}
		for i, img := range rendered {
			p := image.NewPaletted(img.Bounds(), palette.Plan9)
			draw.FloydSteinberg.Draw(p, img.Bounds(), img, image.Point{})
			out.Image = append(out.Image, p)
			out.Delay = append(out.Delay, frameDelay(frames, i))
		}
		if err := gif.EncodeAll(&buf, out); err != nil {
			return nil, errors.Wrap(errors.ErrCodeRenderFailed, err, "encode gif")
		}
	case FormatPNG, "":
		if err := png.Encode(&buf, rendered[0]); err != nil {
			return nil, errors.Wrap(errors.ErrCodeRenderFailed, err, "encode png")
		}
	default:
		return nil, errors.New(errors.ErrCodeUnsupportedFormat, "no encoder for format %q", format)
	}

	return buf.Bytes(), nil
}

// frameDelay preserves the source frame timing, defaulting to 10/100s
// for static sources rendered as GIF.
func frameDelay(frames *meme.FrameSet, i int) int {
	if i < len(frames.Delays) && frames.Delays[i] > 0 {
		return frames.Delays[i]
	}
	return 10
}
