package request

import (
	"encoding/json"
	"fmt"
	"math"

	"github.com/ironsheep/imageview-bridge/internal/cachekey"
	"github.com/ironsheep/imageview-bridge/internal/transform"
)

// Fragment is a bag of declarative props, as decoded from JSON. A key that
// is absent leaves the previous value untouched; a key present with a nil
// value clears an optional field.
type Fragment map[string]any

// ParseFragment decodes a JSON object into a Fragment. Numbers are kept as
// json.Number so integer props survive exactly.
func ParseFragment(data []byte) (Fragment, error) {
	var f Fragment
	if err := decodeJSON(data, &f); err != nil {
		return nil, fmt.Errorf("request: failed to decode fragment: %w", err)
	}
	if f == nil {
		f = Fragment{}
	}
	return f, nil
}

// Reducer merges fragments into Descriptors. It is pure: Apply never
// touches the Engine or the view, and it never modifies prev.
type Reducer struct {
	unknownTransforms transform.UnknownPolicy
}

// ReducerOption configures a Reducer.
type ReducerOption func(*Reducer)

// WithUnknownTransformPolicy selects how unrecognized transform class names
// are handled. The default drops them with a warning.
func WithUnknownTransformPolicy(p transform.UnknownPolicy) ReducerOption {
	return func(r *Reducer) { r.unknownTransforms = p }
}

// NewReducer creates a Reducer.
func NewReducer(opts ...ReducerOption) *Reducer {
	r := &Reducer{unknownTransforms: transform.DropUnknown}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Apply produces the descriptor that results from applying fragment on top
// of prev (nil means no previous configuration).
//
// Returns:
//   - Descriptor: the new immutable descriptor.
//   - []Warning: settings that were accepted but look wrong, such as a
//     rounded transform without a size or both video frame units.
//   - error: a *ConfigError when any field is invalid. The fragment is
//     rejected as a whole and the returned Descriptor is the zero value.
func (r *Reducer) Apply(prev *Descriptor, fragment Fragment) (Descriptor, []Warning, error) {
	var d Descriptor
	if prev != nil {
		d = prev.clone()
	}

	var warnings []Warning
	warn := func(field, format string, args ...any) {
		warnings = append(warnings, Warning{Field: field, Message: fmt.Sprintf(format, args...)})
	}

	if v, ok := fragment["source"]; ok {
		if err := applySource(&d, v); err != nil {
			return Descriptor{}, nil, err
		}
	}

	transformsKey := "transforms"
	if _, ok := fragment[transformsKey]; !ok {
		transformsKey = "transform"
	}
	if v, ok := fragment[transformsKey]; ok {
		dropped, err := r.applyTransforms(&d, v, transformsKey)
		if err != nil {
			return Descriptor{}, nil, err
		}
		for _, name := range dropped {
			warn(transformsKey, "unrecognized transform %q dropped", name)
		}
	}

	if v, ok := fragment["resizeMode"]; ok {
		switch val := v.(type) {
		case nil:
			d.resizeMode = ResizeCenter
		case string:
			if m, ok := resizeModes[val]; ok {
				d.resizeMode = m
			} else {
				warn("resizeMode", "unknown resize mode %q ignored", val)
			}
		default:
			return Descriptor{}, nil, &ConfigError{Kind: InvalidFieldType, Field: "resizeMode", Value: v}
		}
	}

	if v, ok := fragment["scale"]; ok {
		switch val := v.(type) {
		case nil:
			d.scale = ScaleFit
		case string:
			if s, ok := scales[val]; ok {
				d.scale = s
			} else {
				warn("scale", "unknown scale %q ignored", val)
			}
		default:
			return Descriptor{}, nil, &ConfigError{Kind: InvalidFieldType, Field: "scale", Value: v}
		}
	}

	if v, ok := fragment["crossfade"]; ok {
		ms, err := resolveCrossfade(v)
		if err != nil {
			return Descriptor{}, nil, withField(err, "crossfade")
		}
		d.crossfade, d.hasCrossfade = ms, v != nil
	}

	if v, ok := fragment["size"]; ok {
		size, has, err := resolveSize(v)
		if err != nil {
			return Descriptor{}, nil, err
		}
		d.size, d.hasSize = size, has
	}

	for _, img := range []struct {
		field string
		dst   *ImageRef
	}{
		{"placeholder", &d.placeholder},
		{"error", &d.errorImage},
		{"fallback", &d.fallback},
	} {
		v, ok := fragment[img.field]
		if !ok {
			continue
		}
		ref, err := resolveImageRef(v, img.field)
		if err != nil {
			return Descriptor{}, nil, err
		}
		*img.dst = ref
	}

	for _, key := range []struct {
		field string
		dst   *cachekey.Key
	}{
		{"memoryCacheKey", &d.memoryKey},
		{"placeholderMemoryCacheKey", &d.placeholderKey},
	} {
		v, ok := fragment[key.field]
		if !ok {
			continue
		}
		if v == nil {
			*key.dst = cachekey.Key{}
			continue
		}
		k, err := cachekey.Parse(v)
		if err != nil {
			// A malformed key is treated as absent.
			*key.dst = cachekey.Key{}
			warn(key.field, "ignored: %v", err)
			continue
		}
		*key.dst = k
	}

	for _, frame := range []struct {
		field string
		dst   *int64
	}{
		{"videoFrameMilis", &d.videoFrameMillis},
		{"videoFrameMicro", &d.videoFrameMicros},
	} {
		v, ok := fragment[frame.field]
		if !ok {
			continue
		}
		if v == nil {
			*frame.dst = 0
			continue
		}
		n, ok := toInt(v)
		if !ok || n < 0 {
			return Descriptor{}, nil, &ConfigError{Kind: InvalidFieldType, Field: frame.field, Value: v}
		}
		*frame.dst = n
	}

	if d.videoFrameMillis != 0 && d.videoFrameMicros != 0 {
		warn("videoFrameMilis", "both videoFrameMilis and videoFrameMicro are set; the Engine picks one")
	}
	if transform.RequiresSize(d.transforms) && !d.hasSize {
		warn("size", "rounded transform without an explicit size uses engine default bounds")
	}

	return d, warnings, nil
}

func applySource(d *Descriptor, v any) error {
	if v == nil {
		d.uri = ""
		return nil
	}
	src, ok := v.(map[string]any)
	if !ok {
		return &ConfigError{Kind: InvalidFieldType, Field: "source", Value: v}
	}

	// Validate everything before mutating d so a failure leaves it intact.
	var (
		headers     map[string]string
		headersSeen bool
	)
	if hv, ok := src["headers"]; ok {
		headersSeen = true
		if hv != nil {
			hm, ok := hv.(map[string]any)
			if !ok {
				return &ConfigError{Kind: InvalidFieldType, Field: "source.headers", Value: hv}
			}
			headers = make(map[string]string, len(hm))
			for name, value := range hm {
				s, ok := value.(string)
				if !ok {
					return &ConfigError{Kind: InvalidHeaderValue, Field: "source.headers." + name, Value: value}
				}
				headers[name] = s
			}
		}
	}

	policies := []struct {
		field string
		dst   *CachePolicy
		val   CachePolicy
		set   bool
	}{
		{field: "diskCachePolicy", dst: &d.diskPolicy},
		{field: "memoryCachePolicy", dst: &d.memoryPolicy},
		{field: "networkCachePolicy", dst: &d.networkPolicy},
	}
	for i := range policies {
		p := &policies[i]
		raw, ok := src[p.field]
		if !ok {
			continue
		}
		if raw == nil {
			p.val, p.set = PolicyUnset, true
			continue
		}
		s, ok := raw.(string)
		if !ok {
			return &ConfigError{Kind: UnknownCachePolicy, Field: "source." + p.field, Value: raw}
		}
		resolved, err := ResolvePolicy(s)
		if err != nil {
			return withField(err, "source."+p.field)
		}
		p.val, p.set = resolved, true
	}

	var uri string
	if raw, ok := src["uri"]; ok && raw != nil {
		s, ok := raw.(string)
		if !ok {
			return &ConfigError{Kind: InvalidFieldType, Field: "source.uri", Value: raw}
		}
		uri = s
	}

	d.uri = uri
	if headersSeen {
		d.headers = cloneHeaders(headers)
	}
	for _, p := range policies {
		if p.set {
			*p.dst = p.val
		}
	}
	return nil
}

func (r *Reducer) applyTransforms(d *Descriptor, v any, field string) ([]string, error) {
	if v == nil {
		d.transforms = nil
		return nil, nil
	}
	raw, ok := v.([]any)
	if !ok {
		return nil, &ConfigError{Kind: InvalidFieldType, Field: field, Value: v}
	}

	specs := make([]transform.Spec, 0, len(raw))
	for i, entry := range raw {
		spec, err := decodeSpec(entry)
		if err != nil {
			return nil, withField(err, fmt.Sprintf("%s[%d]", field, i))
		}
		if err := transform.Decode(spec).Validate(); err != nil {
			return nil, &ConfigError{Kind: InvalidFieldType, Field: fmt.Sprintf("%s[%d]", field, i), Value: entry, Err: err}
		}
		specs = append(specs, spec)
	}

	pipeline, dropped, err := transform.Build(specs, r.unknownTransforms)
	if err != nil {
		return nil, &ConfigError{Kind: UnknownTransform, Field: field, Err: err}
	}
	if len(pipeline) == 0 {
		pipeline = nil
	}
	d.transforms = pipeline
	return dropped, nil
}

func decodeSpec(entry any) (transform.Spec, error) {
	m, ok := entry.(map[string]any)
	if !ok {
		return transform.Spec{}, &ConfigError{Kind: InvalidFieldType, Value: entry}
	}
	name, ok := m["className"].(string)
	if !ok {
		return transform.Spec{}, &ConfigError{Kind: InvalidFieldType, Value: m["className"]}
	}
	spec := transform.Spec{ClassName: name}
	if rawArgs, ok := m["args"]; ok && rawArgs != nil {
		list, ok := rawArgs.([]any)
		if !ok {
			return transform.Spec{}, &ConfigError{Kind: InvalidFieldType, Value: rawArgs}
		}
		for _, a := range list {
			f, ok := toFloat(a)
			if !ok {
				return transform.Spec{}, &ConfigError{Kind: InvalidFieldType, Value: a}
			}
			spec.Args = append(spec.Args, f)
		}
	}
	return spec, nil
}

// resolveCrossfade maps a crossfade prop onto a duration in milliseconds.
func resolveCrossfade(v any) (int, error) {
	switch val := v.(type) {
	case nil:
		return 0, nil
	case bool:
		if val {
			return DefaultCrossfade, nil
		}
		return 0, nil
	}
	n, ok := toInt(v)
	if !ok || n < 0 || n > math.MaxInt32 {
		return 0, &ConfigError{Kind: InvalidCrossfadeType, Value: v}
	}
	return int(n), nil
}

func resolveSize(v any) (Size, bool, error) {
	if v == nil {
		return Size{}, false, nil
	}
	invalid := &ConfigError{Kind: InvalidFieldType, Field: "size", Value: v}
	list, ok := v.([]any)
	if !ok || len(list) != 2 {
		return Size{}, false, invalid
	}
	w, okW := toInt(list[0])
	h, okH := toInt(list[1])
	if !okW || !okH || w < 0 || h < 0 || w > MaxSizeDimension || h > MaxSizeDimension {
		return Size{}, false, invalid
	}
	return Size{Width: int(w), Height: int(h)}, true, nil
}

func resolveImageRef(v any, field string) (ImageRef, error) {
	switch val := v.(type) {
	case nil:
		return "", nil
	case string:
		return ImageRef(val), nil
	default:
		return "", &ConfigError{Kind: InvalidFieldType, Field: field, Value: v}
	}
}

// toInt accepts any integral numeric representation produced by JSON
// decoding or by Go callers.
func toInt(v any) (int64, bool) {
	switch n := v.(type) {
	case int:
		return int64(n), true
	case int32:
		return int64(n), true
	case int64:
		return n, true
	case float64:
		if n != math.Trunc(n) || math.IsInf(n, 0) || n >= 1<<63 || n < -1<<63 {
			return 0, false
		}
		return int64(n), true
	case json.Number:
		i, err := n.Int64()
		if err != nil {
			return 0, false
		}
		return i, true
	default:
		return 0, false
	}
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	case json.Number:
		f, err := n.Float64()
		if err != nil {
			return 0, false
		}
		return f, true
	default:
		return 0, false
	}
}
