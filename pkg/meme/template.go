// Package meme defines the template data model and the catalog that owns
// it: templates, their text boxes and styles, and resolution of template
// identifiers (including aliases) to descriptors.
package meme

import (
	"image"
	"strings"

	"github.com/memebox/memebox/pkg/errors"
)

// Anchor controls the vertical placement of wrapped lines within a box.
type Anchor string

// Supported anchors.
const (
	AnchorTop    Anchor = "top"
	AnchorMiddle Anchor = "middle"
	AnchorBottom Anchor = "bottom"
)

// valid reports whether a is a known anchor value.
func (a Anchor) valid() bool {
	switch a {
	case AnchorTop, AnchorMiddle, AnchorBottom:
		return true
	}
	return false
}

// TextStyle describes how a text fragment is drawn. Zero values mean
// "inherit" and are filled in by Merge.
type TextStyle struct {
	Family      string  `toml:"family"`
	Color       string  `toml:"color"`        // hex, e.g. "#ffffff"
	StrokeColor string  `toml:"stroke_color"` // hex
	StrokeWidth float64 `toml:"stroke_width"` // relative to font size when <1, absolute otherwise
	MinFontSize int     `toml:"min_font_size"`
	MaxFontSize int     `toml:"max_font_size"`
	Uppercase   bool    `toml:"uppercase"`
}

// Validate checks style invariants. Zero values mean "inherit" and
// always pass.
func (s TextStyle) Validate() error {
	if !validHexColor(s.Color) {
		return errors.New(errors.ErrCodeInvalidStyle, "bad color %q", s.Color)
	}
	if !validHexColor(s.StrokeColor) {
		return errors.New(errors.ErrCodeInvalidStyle, "bad stroke color %q", s.StrokeColor)
	}
	if s.StrokeWidth < 0 {
		return errors.New(errors.ErrCodeInvalidStyle, "negative stroke width")
	}
	if s.MinFontSize < 0 || s.MaxFontSize < 0 {
		return errors.New(errors.ErrCodeInvalidStyle, "negative font size bound")
	}
	if s.MinFontSize != 0 && s.MaxFontSize != 0 && s.MinFontSize > s.MaxFontSize {
		return errors.New(errors.ErrCodeInvalidStyle, "min_font_size exceeds max_font_size")
	}
	return nil
}

// validHexColor accepts "" (inherit) or "#" followed by 3, 6, or 8 hex
// digits.
func validHexColor(s string) bool {
	if s == "" {
		return true
	}
	if s[0] != '#' {
		return false
	}
	digits := s[1:]
	switch len(digits) {
	case 3, 6, 8:
	default:
		return false
	}
	for _, r := range digits {
		switch {
		case r >= '0' && r <= '9', r >= 'a' && r <= 'f', r >= 'A' && r <= 'F':
		default:
			return false
		}
	}
	return true
}

// Merge overlays o on top of s: any non-zero field of o wins.
// The Uppercase flag is sticky; either layer can switch it on.
func (s TextStyle) Merge(o TextStyle) TextStyle {
	out := s
	if o.Family != "" {
		out.Family = o.Family
	}
	if o.Color != "" {
		out.Color = o.Color
	}
	if o.StrokeColor != "" {
		out.StrokeColor = o.StrokeColor
	}
	if o.StrokeWidth != 0 {
		out.StrokeWidth = o.StrokeWidth
	}
	if o.MinFontSize != 0 {
		out.MinFontSize = o.MinFontSize
	}
	if o.MaxFontSize != 0 {
		out.MaxFontSize = o.MaxFontSize
	}
	if o.Uppercase {
		out.Uppercase = true
	}
	return out
}

// Box is a rectangular region in the template's source-image pixel space
// where one text fragment is drawn. Boxes are ordered; text fragments
// bind to boxes positionally. Boxes may overlap.
type Box struct {
	X      float64   `toml:"x"`
	Y      float64   `toml:"y"`
	Width  float64   `toml:"width"`
	Height float64   `toml:"height"`
	Anchor Anchor    `toml:"anchor"`
	Style  TextStyle `toml:"style"` // overrides the template default
}

// Scaled returns the box mapped by a uniform scale factor.
func (b Box) Scaled(f float64) Box {
	out := b
	out.X *= f
	out.Y *= f
	out.Width *= f
	out.Height *= f
	return out
}

// Template describes one meme background and its text regions.
// Templates are immutable once loaded and owned by the catalog; resolvers
// and the pipeline only hold references.
type Template struct {
	ID      string    `toml:"-"`
	Name    string    `toml:"name"`
	Aliases []string  `toml:"aliases"`
	Source  string    `toml:"source"` // image file, resolved by the catalog
	Width   int       `toml:"width"`  // canonical output width; 0 = native
	Boxes   []Box     `toml:"boxes"`
	Style   TextStyle `toml:"style"` // default text style
}

// Validate checks structural invariants of a loaded template.
func (t *Template) Validate() error {
	if t.ID == "" {
		return errors.New(errors.ErrCodeInvalidTemplate, "template id is empty")
	}
	if t.Source == "" {
		return errors.New(errors.ErrCodeInvalidTemplate, "template %s has no source image", t.ID)
	}
	for i, b := range t.Boxes {
		if b.Width <= 0 || b.Height <= 0 {
			return errors.New(errors.ErrCodeInvalidTemplate, "template %s box %d has non-positive size", t.ID, i)
		}
		if b.X < 0 || b.Y < 0 {
			return errors.New(errors.ErrCodeInvalidTemplate, "template %s box %d has negative origin", t.ID, i)
		}
		if b.Anchor != "" && !b.Anchor.valid() {
			return errors.New(errors.ErrCodeInvalidTemplate, "template %s box %d has unknown anchor %q", t.ID, i, b.Anchor)
		}
		if err := b.Style.Validate(); err != nil {
			return errors.Wrap(errors.ErrCodeInvalidStyle, err, "template %s box %d", t.ID, i)
		}
	}
	if err := t.Style.Validate(); err != nil {
		return errors.Wrap(errors.ErrCodeInvalidStyle, err, "template %s", t.ID)
	}
	return nil
}

// BoxStyle returns the effective style for box i: the template default
// merged with the box's own overrides.
func (t *Template) BoxStyle(i int) TextStyle {
	if i < 0 || i >= len(t.Boxes) {
		return t.Style
	}
	return t.Style.Merge(t.Boxes[i].Style)
}

// HasAlias reports whether alias matches one of the template's aliases,
// case-insensitively.
func (t *Template) HasAlias(alias string) bool {
	alias = strings.ToLower(alias)
	for _, a := range t.Aliases {
		if strings.ToLower(a) == alias {
			return true
		}
	}
	return false
}

// FrameSet holds the decoded source frames of a template: one frame for
// static images, several for animated GIF sources. Frames of an
// animated source may be delta-encoded: a frame's bounds can cover only
// the sub-rectangle that changed, offset within the logical canvas.
type FrameSet struct {
	Images   []image.Image
	Delays   []int  // per-frame delay in 1/100s; empty for static sources
	Disposal []byte // per-frame GIF disposal mode; empty for static sources
	Loop     int    // GIF loop count; 0 = loop forever
}

// Animated reports whether the set has more than one frame.
func (f *FrameSet) Animated() bool {
	return len(f.Images) > 1
}

// DisposalAt returns the disposal mode for frame i, zero when the
// source carries none.
func (f *FrameSet) DisposalAt(i int) byte {
	if i < len(f.Disposal) {
		return f.Disposal[i]
	}
	return 0
}
