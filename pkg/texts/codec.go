// Package texts implements the reversible mapping between URL path
// segments and the display strings drawn onto meme images.
//
// # Grammar
//
// A slug is a sequence of segments joined by "/"; each segment carries the
// text for one template box. Within a segment the following tokens are
// recognized, everything else is a literal character (case is preserved):
//
//	_    space
//	-    space (alternate form, accepted on decode only)
//	__   literal underscore
//	--   literal dash
//	''   double quote
//	~s   slash
//	~q   question mark
//	~h   hash
//	~p   percent
//	~a   ampersand
//	~n   newline
//	~b   backslash
//	~~   literal tilde
//
// A segment consisting of the single placeholder "_" decodes to the empty
// string, meaning "no text for this box". Encode trims surrounding
// whitespace, so texts differing only in leading/trailing spaces share a
// canonical segment. A tilde followed by any other character is a
// malformed escape and fails decoding.
//
// The codec is purely textual: it knows nothing about fonts, wrapping, or
// box geometry.
package texts

import (
	"strings"

	"github.com/memebox/memebox/pkg/errors"
)

// Placeholder is the segment that stands for "no text for this box".
const Placeholder = "_"

// MaxSegmentLen is the maximum accepted byte length of a single encoded
// segment. Longer segments are rejected before decoding.
const MaxSegmentLen = 200

// escapes maps a tilde-escape suffix to the character it represents.
var escapes = map[byte]rune{
	's': '/',
	'q': '?',
	'h': '#',
	'p': '%',
	'a': '&',
	'n': '\n',
	'b': '\\',
	'~': '~',
}

// Decode converts one URL path segment into its display string.
// It fails with an INVALID_ENCODING error when the segment contains a
// malformed tilde escape.
func Decode(segment string) (string, error) {
	if segment == Placeholder {
		return "", nil
	}

	var b strings.Builder
	b.Grow(len(segment))

	for i := 0; i < len(segment); i++ {
		c := segment[i]
		switch c {
		case '_':
			if i+1 < len(segment) && segment[i+1] == '_' {
				b.WriteByte('_')
				i++
			} else {
				b.WriteByte(' ')
			}
		case '-':
			if i+1 < len(segment) && segment[i+1] == '-' {
				b.WriteByte('-')
				i++
			} else {
				b.WriteByte(' ')
			}
		case '\'':
			if i+1 < len(segment) && segment[i+1] == '\'' {
				b.WriteByte('"')
				i++
			} else {
				b.WriteByte('\'')
			}
		case '~':
			if i+1 >= len(segment) {
				return "", errors.New(errors.ErrCodeInvalidEncoding, "segment %q ends with an incomplete escape", segment)
			}
			r, ok := escapes[segment[i+1]]
			if !ok {
				return "", errors.New(errors.ErrCodeInvalidEncoding, "segment %q contains unknown escape ~%c", segment, segment[i+1])
			}
			b.WriteRune(r)
			i++
		default:
			b.WriteByte(c)
		}
	}

	return b.String(), nil
}

// Encode converts a display string into its canonical URL path segment.
// The empty string (after trimming surrounding whitespace) encodes to the
// placeholder segment.
func Encode(text string) string {
	text = strings.TrimSpace(text)
	if text == "" {
		return Placeholder
	}

	var b strings.Builder
	b.Grow(len(text))

	for _, r := range text {
		switch r {
		case ' ':
			b.WriteByte('_')
		case '_':
			b.WriteString("__")
		case '-':
			b.WriteString("--")
		case '"':
			b.WriteString("''")
		case '/':
			b.WriteString("~s")
		case '?':
			b.WriteString("~q")
		case '#':
			b.WriteString("~h")
		case '%':
			b.WriteString("~p")
		case '&':
			b.WriteString("~a")
		case '\n':
			b.WriteString("~n")
		case '\\':
			b.WriteString("~b")
		case '~':
			b.WriteString("~~")
		default:
			b.WriteRune(r)
		}
	}

	return b.String()
}

// DecodeSlug splits a slug on "/" and decodes each segment.
// Escaped slashes (~s) never reach the splitter, so the split is safe.
func DecodeSlug(slug string) ([]string, error) {
	if slug == "" {
		return nil, nil
	}

	segments := strings.Split(slug, "/")
	out := make([]string, len(segments))
	for i, seg := range segments {
		if len(seg) > MaxSegmentLen {
			return nil, errors.New(errors.ErrCodeInvalidInput, "segment %d exceeds %d bytes", i, MaxSegmentLen)
		}
		text, err := Decode(seg)
		if err != nil {
			return nil, err
		}
		out[i] = text
	}
	return out, nil
}

// EncodeSlug encodes each text into a segment and joins them with "/".
func EncodeSlug(lines []string) string {
	segments := make([]string, len(lines))
	for i, line := range lines {
		segments[i] = Encode(line)
	}
	return strings.Join(segments, "/")
}

// Normalize decodes and re-encodes a slug, returning its canonical form
// and whether it differs from the input. Callers use this to redirect
// non-canonical URLs to their canonical spelling.
func Normalize(slug string) (string, bool, error) {
	lines, err := DecodeSlug(slug)
	if err != nil {
		return "", false, err
	}
	canonical := EncodeSlug(lines)
	return canonical, canonical != slug, nil
}
