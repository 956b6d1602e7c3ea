package raster

import (
	"strings"

	"github.com/memebox/memebox/pkg/errors"
)

// Format is the closed set of output encodings. Each format has exactly
// one encoder; there is no open plugin registry.
type Format string

// Supported output formats.
const (
	FormatPNG  Format = "png"
	FormatJPEG Format = "jpeg"
	FormatGIF  Format = "gif"
)

// DefaultFormat is used when a request does not name an extension.
const DefaultFormat = FormatPNG

// ParseFormat maps a file extension (with or without a leading dot) to a
// Format. Unknown extensions fail with an INVALID_FORMAT error.
func ParseFormat(ext string) (Format, error) {
	switch strings.ToLower(strings.TrimPrefix(ext, ".")) {
	case "png":
		return FormatPNG, nil
	case "jpg", "jpeg":
		return FormatJPEG, nil
	case "gif":
		return FormatGIF, nil
	case "":
		return DefaultFormat, nil
	}
	return "", errors.New(errors.ErrCodeInvalidFormat, "unsupported image format %q", ext)
}

// ContentType returns the MIME type for the format.
func (f Format) ContentType() string {
	switch f {
	case FormatJPEG:
		return "image/jpeg"
	case FormatGIF:
		return "image/gif"
	default:
		return "image/png"
	}
}

// Ext returns the canonical file extension (without dot).
func (f Format) Ext() string {
	if f == "" {
		return string(DefaultFormat)
	}
	return string(f)
}
