package imaging

import (
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	"image/color"
	"strconv"
	"strings"

	"github.com/disintegration/imaging"
	"github.com/lucasb-eyer/go-colorful"
)

var (
	// ErrEmptyRef is returned when an image reference is empty.
	ErrEmptyRef = errors.New("imaging: empty image reference")
	// ErrUnsupportedDataURI is returned for data URIs that are not base64.
	ErrUnsupportedDataURI = errors.New("imaging: only base64 data URIs are supported")
)

// ResolveRef turns a placeholder, error or fallback reference into an image.
//
// Supported forms:
//   - "#RGB", "#RRGGBB" or "#RRGGBBAA": a solid colour filling width x height
//     (1x1 when no size is known)
//   - "data:image/...;base64,...": an inline encoded image
//   - any other string: raw base64 image bytes
func ResolveRef(ref string, width, height int) (image.Image, error) {
	switch {
	case ref == "":
		return nil, ErrEmptyRef
	case strings.HasPrefix(ref, "#"):
		c, err := parseHexColor(ref)
		if err != nil {
			return nil, err
		}
		w, h := max(width, 1), max(height, 1)
		if err := CheckSize(w, h); err != nil {
			return nil, err
		}
		return imaging.New(w, h, c), nil
	case strings.HasPrefix(ref, "data:"):
		data, err := DecodeDataURI(ref)
		if err != nil {
			return nil, err
		}
		return Decode(data)
	default:
		data, err := base64.StdEncoding.DecodeString(ref)
		if err != nil {
			return nil, fmt.Errorf("imaging: image reference is not base64: %w", err)
		}
		return Decode(data)
	}
}

// DecodeDataURI returns the payload bytes of a base64 data URI.
func DecodeDataURI(uri string) ([]byte, error) {
	rest, ok := strings.CutPrefix(uri, "data:")
	if !ok {
		return nil, fmt.Errorf("imaging: not a data URI: %q", uri)
	}
	meta, payload, ok := strings.Cut(rest, ",")
	if !ok {
		return nil, fmt.Errorf("imaging: data URI has no payload")
	}
	if !strings.HasSuffix(meta, ";base64") {
		return nil, ErrUnsupportedDataURI
	}
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, fmt.Errorf("imaging: failed to decode data URI: %w", err)
	}
	return data, nil
}

// parseHexColor parses "#RGB", "#RRGGBB" or "#RRGGBBAA".
func parseHexColor(hex string) (color.NRGBA, error) {
	alpha := uint8(255)
	if len(hex) == 9 {
		a, err := strconv.ParseUint(hex[7:], 16, 8)
		if err != nil {
			return color.NRGBA{}, fmt.Errorf("imaging: invalid alpha in %q: %w", hex, err)
		}
		alpha = uint8(a)
		hex = hex[:7]
	}

	c, err := colorful.Hex(hex)
	if err != nil {
		return color.NRGBA{}, fmt.Errorf("imaging: invalid colour %q: %w", hex, err)
	}
	r, g, b := c.RGB255()
	return color.NRGBA{R: r, G: g, B: b, A: alpha}, nil
}
