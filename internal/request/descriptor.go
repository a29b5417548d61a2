package request

import (
	"maps"
	"slices"

	"github.com/ironsheep/imageview-bridge/internal/cachekey"
	"github.com/ironsheep/imageview-bridge/internal/transform"
)

// DefaultCrossfade is the crossfade duration in milliseconds selected by
// `crossfade: true`.
const DefaultCrossfade = 100

// ResizeMode is how the host view fits the drawable into its bounds.
type ResizeMode int

const (
	ResizeCenter ResizeMode = iota
	ResizeContain
	ResizeCover
	ResizeStretch
)

var resizeModes = map[string]ResizeMode{
	"center":  ResizeCenter,
	"contain": ResizeContain,
	"cover":   ResizeCover,
	"stretch": ResizeStretch,
}

func (m ResizeMode) String() string {
	switch m {
	case ResizeContain:
		return "contain"
	case ResizeCover:
		return "cover"
	case ResizeStretch:
		return "stretch"
	default:
		return "center"
	}
}

// Scale is how the Engine fits a decoded image into the requested size.
type Scale int

const (
	ScaleFit Scale = iota
	ScaleFill
)

var scales = map[string]Scale{
	"fit":  ScaleFit,
	"fill": ScaleFill,
}

func (s Scale) String() string {
	if s == ScaleFill {
		return "fill"
	}
	return "fit"
}

// MaxSizeDimension bounds each side of a size hint.
const MaxSizeDimension = 8192

// Size is an explicit target size hint in pixels.
type Size struct {
	Width  int
	Height int
}

// ImageRef references a placeholder, error or fallback image. The Engine
// decides how to resolve it (base64 data, data URI or colour).
type ImageRef string

// Descriptor is an immutable snapshot of everything needed to issue one
// image load. Construct it with New or through Reducer.Apply; accessors
// return copies, so a Descriptor handed to the Engine can never change.
type Descriptor struct {
	uri     string
	headers map[string]string

	diskPolicy    CachePolicy
	memoryPolicy  CachePolicy
	networkPolicy CachePolicy

	transforms []transform.Transform
	resizeMode ResizeMode
	scale      Scale
	crossfade  int
	size       Size
	hasSize    bool

	// hasCrossfade separates an explicit 0 (crossfade: false) from unset.
	hasCrossfade bool

	placeholder ImageRef
	errorImage  ImageRef
	fallback    ImageRef

	memoryKey      cachekey.Key
	placeholderKey cachekey.Key

	videoFrameMillis int64
	videoFrameMicros int64
}

// Option configures a Descriptor built with New.
type Option func(*Descriptor)

// New builds a Descriptor for uri with the given options applied.
func New(uri string, opts ...Option) Descriptor {
	d := Descriptor{uri: uri}
	for _, opt := range opts {
		opt(&d)
	}
	return d
}

// WithHeaders sets request headers.
func WithHeaders(h map[string]string) Option {
	return func(d *Descriptor) { d.headers = cloneHeaders(h) }
}

// WithCachePolicies sets the disk, memory and network policies.
func WithCachePolicies(disk, memory, network CachePolicy) Option {
	return func(d *Descriptor) {
		d.diskPolicy, d.memoryPolicy, d.networkPolicy = disk, memory, network
	}
}

// WithTransforms sets the transform pipeline.
func WithTransforms(ts ...transform.Transform) Option {
	return func(d *Descriptor) { d.transforms = slices.Clone(ts) }
}

// WithSize sets an explicit size hint.
func WithSize(width, height int) Option {
	return func(d *Descriptor) { d.size, d.hasSize = Size{Width: width, Height: height}, true }
}

// WithScale sets the scale mode.
func WithScale(s Scale) Option {
	return func(d *Descriptor) { d.scale = s }
}

// WithCrossfade sets an explicit crossfade duration in milliseconds.
func WithCrossfade(ms int) Option {
	return func(d *Descriptor) { d.crossfade, d.hasCrossfade = ms, true }
}

// WithMemoryCacheKey sets the memory cache key.
func WithMemoryCacheKey(k cachekey.Key) Option {
	return func(d *Descriptor) { d.memoryKey = k }
}

// WithPlaceholderMemoryCacheKey sets the placeholder memory cache key.
func WithPlaceholderMemoryCacheKey(k cachekey.Key) Option {
	return func(d *Descriptor) { d.placeholderKey = k }
}

// WithImages sets the placeholder, error and fallback image references.
func WithImages(placeholder, errorImage, fallback ImageRef) Option {
	return func(d *Descriptor) {
		d.placeholder, d.errorImage, d.fallback = placeholder, errorImage, fallback
	}
}

func (d Descriptor) URI() string { return d.uri }
func (d Descriptor) Headers() map[string]string { return cloneHeaders(d.headers) }
func (d Descriptor) DiskCachePolicy() CachePolicy { return d.diskPolicy }
func (d Descriptor) MemoryCachePolicy() CachePolicy { return d.memoryPolicy }
func (d Descriptor) NetworkCachePolicy() CachePolicy { return d.networkPolicy }
func (d Descriptor) Transforms() []transform.Transform { return slices.Clone(d.transforms) }
func (d Descriptor) ResizeMode() ResizeMode { return d.resizeMode }
func (d Descriptor) Scale() Scale { return d.scale }
func (d Descriptor) Placeholder() ImageRef { return d.placeholder }
func (d Descriptor) ErrorImage() ImageRef { return d.errorImage }
func (d Descriptor) FallbackImage() ImageRef { return d.fallback }
func (d Descriptor) VideoFrameMillis() int64 { return d.videoFrameMillis }
func (d Descriptor) VideoFrameMicros() int64 { return d.videoFrameMicros }

// CrossfadeMillis returns the crossfade duration; 0 disables crossfade.
func (d Descriptor) CrossfadeMillis() int { return d.crossfade }

// HasCrossfade reports whether crossfade was set explicitly. An unset
// crossfade falls back to the loader default.
func (d Descriptor) HasCrossfade() bool { return d.hasCrossfade }

// Size returns the explicit size hint and whether one was set.
func (d Descriptor) Size() (Size, bool) { return d.size, d.hasSize }

// MemoryCacheKey returns the memory cache key and whether one was set.
func (d Descriptor) MemoryCacheKey() (cachekey.Key, bool) {
	return d.memoryKey, !d.memoryKey.IsZero()
}

// PlaceholderMemoryCacheKey returns the placeholder key and whether one was set.
func (d Descriptor) PlaceholderMemoryCacheKey() (cachekey.Key, bool) {
	return d.placeholderKey, !d.placeholderKey.IsZero()
}

// Equal reports structural equality. The Coordinator uses it to skip
// re-issuing a request whose configuration did not change.
func (d Descriptor) Equal(o Descriptor) bool {
	return d.uri == o.uri &&
		headersEqual(d.headers, o.headers) &&
		d.diskPolicy == o.diskPolicy &&
		d.memoryPolicy == o.memoryPolicy &&
		d.networkPolicy == o.networkPolicy &&
		transform.Equal(d.transforms, o.transforms) &&
		d.resizeMode == o.resizeMode &&
		d.scale == o.scale &&
		d.crossfade == o.crossfade &&
		d.hasCrossfade == o.hasCrossfade &&
		d.hasSize == o.hasSize &&
		d.size == o.size &&
		d.placeholder == o.placeholder &&
		d.errorImage == o.errorImage &&
		d.fallback == o.fallback &&
		d.memoryKey.Equal(o.memoryKey) &&
		d.placeholderKey.Equal(o.placeholderKey) &&
		d.videoFrameMillis == o.videoFrameMillis &&
		d.videoFrameMicros == o.videoFrameMicros
}

// clone returns a deep copy that the Reducer may modify.
func (d Descriptor) clone() Descriptor {
	c := d
	c.headers = cloneHeaders(d.headers)
	c.transforms = slices.Clone(d.transforms)
	return c
}

func cloneHeaders(h map[string]string) map[string]string {
	if len(h) == 0 {
		return nil
	}
	return maps.Clone(h)
}

func headersEqual(a, b map[string]string) bool {
	if len(a) != len(b) {
		return false
	}
	return maps.Equal(a, b)
}
