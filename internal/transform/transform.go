// Package transform turns raw, string-tagged transform specs into a closed
// set of typed transform operations.
//
// Specs arrive from the declarative configuration as {className, args}
// pairs. Decode dispatches on the class name exactly once; everything past
// this package works with the Kind enum and the per-kind payload structs.
// Order matters: a pipeline is applied left to right, each transform
// consuming the output of the previous one.
package transform

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Kind enumerates the supported transform operations.
type Kind int

const (
	// Unrecognized marks a spec whose class name is not known.
	Unrecognized Kind = iota
	Blur
	Circle
	Grayscale
	Rounded
)

// String returns the class name for k.
func (k Kind) String() string {
	switch k {
	case Blur:
		return "blur"
	case Circle:
		return "circle"
	case Grayscale:
		return "grayscale"
	case Rounded:
		return "rounded"
	default:
		return "unrecognized"
	}
}

// DefaultSampling is the blur sampling factor used when none is given.
const DefaultSampling = 1.0

// MaxBlurRadius is the largest accepted blur radius.
const MaxBlurRadius = 25.0

// ErrBlurRadius is returned by Validate for a radius outside
// [0, MaxBlurRadius].
var ErrBlurRadius = errors.New("transform: blur radius out of range")

// Spec is a raw transform entry as supplied by the consumer.
type Spec struct {
	ClassName string    `json:"className"`
	Args      []float64 `json:"args"`
}

// BlurParams configures a Gaussian blur. Sampling downscales the image by
// that factor before blurring.
type BlurParams struct {
	Radius   float64
	Sampling float64
}

// RoundedParams holds the corner radii in pixels, clockwise from top-left.
type RoundedParams struct {
	TopLeft     float64
	TopRight    float64
	BottomRight float64
	BottomLeft  float64
}

// Transform is one decoded operation. Only the payload matching Kind is set.
type Transform struct {
	Kind    Kind
	Blur    BlurParams
	Rounded RoundedParams

	// Name keeps the original class name of an Unrecognized spec.
	Name string
}

// NewBlur returns a blur transform. A non-positive sampling falls back to
// DefaultSampling.
func NewBlur(radius, sampling float64) Transform {
	if sampling <= 0 {
		sampling = DefaultSampling
	}
	return Transform{Kind: Blur, Blur: BlurParams{Radius: radius, Sampling: sampling}}
}

// NewCircle returns a circle-crop transform.
func NewCircle() Transform { return Transform{Kind: Circle} }

// NewGrayscale returns a grayscale transform.
func NewGrayscale() Transform { return Transform{Kind: Grayscale} }

// NewRounded returns a rounded-corners transform.
func NewRounded(topLeft, topRight, bottomRight, bottomLeft float64) Transform {
	return Transform{Kind: Rounded, Rounded: RoundedParams{
		TopLeft:     topLeft,
		TopRight:    topRight,
		BottomRight: bottomRight,
		BottomLeft:  bottomLeft,
	}}
}

// Decode maps a spec onto its typed transform. Missing numeric arguments
// default to zero, except blur sampling which defaults to DefaultSampling.
func Decode(spec Spec) Transform {
	arg := func(i int, def float64) float64 {
		if i < len(spec.Args) {
			return spec.Args[i]
		}
		return def
	}

	switch spec.ClassName {
	case "blur":
		return NewBlur(arg(0, 0), arg(1, DefaultSampling))
	case "circle":
		return NewCircle()
	case "grayscale":
		return NewGrayscale()
	case "rounded":
		return NewRounded(arg(0, 0), arg(1, 0), arg(2, 0), arg(3, 0))
	default:
		return Transform{Kind: Unrecognized, Name: spec.ClassName}
	}
}

// Validate reports parameters the pipeline cannot apply.
func (t Transform) Validate() error {
	if t.Kind == Blur && !(t.Blur.Radius >= 0 && t.Blur.Radius <= MaxBlurRadius) {
		return fmt.Errorf("%w: %s", ErrBlurRadius, num(t.Blur.Radius))
	}
	return nil
}

// CacheKey returns a stable identifier for t, suitable for inclusion in a
// complex memory cache key.
func (t Transform) CacheKey() string {
	switch t.Kind {
	case Blur:
		return fmt.Sprintf("blur(radius=%s,sampling=%s)", num(t.Blur.Radius), num(t.Blur.Sampling))
	case Rounded:
		r := t.Rounded
		return fmt.Sprintf("rounded(%s,%s,%s,%s)", num(r.TopLeft), num(r.TopRight), num(r.BottomRight), num(r.BottomLeft))
	case Circle, Grayscale:
		return t.Kind.String()
	default:
		return "unrecognized(" + t.Name + ")"
	}
}

// String implements fmt.Stringer.
func (t Transform) String() string { return t.CacheKey() }

// CacheKeys returns the CacheKey of every transform in order.
func CacheKeys(pipeline []Transform) []string {
	if len(pipeline) == 0 {
		return nil
	}
	keys := make([]string, len(pipeline))
	for i, t := range pipeline {
		keys[i] = t.CacheKey()
	}
	return keys
}

// RequiresSize reports whether the pipeline needs an explicit target size
// to produce well-defined output. Rounded corners are computed against the
// final bounds, so without a size hint the result depends on engine defaults.
func RequiresSize(pipeline []Transform) bool {
	for _, t := range pipeline {
		if t.Kind == Rounded {
			return true
		}
	}
	return false
}

func num(f float64) string {
	return strings.TrimSuffix(strconv.FormatFloat(f, 'f', -1, 64), ".0")
}
