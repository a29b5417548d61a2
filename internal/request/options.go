package request

import (
	"bytes"
	"encoding/json"
)

// LoaderOptions are process-wide Engine defaults set through the static
// setLoaderOptions call. A nil field was not provided and keeps the
// Engine's base value.
type LoaderOptions struct {
	AvailableMemoryPercentage     *float64
	AddLastModifiedToFileCacheKey *bool
	AllowHardware                 *bool
	AllowRGB565                   *bool
	Crossfade                     *int
	BitmapPoolingEnabled          *bool
	BitmapPoolPercentage          *float64

	Placeholder *ImageRef
	Error       *ImageRef
	Fallback    *ImageRef

	DiskCachePolicy    *CachePolicy
	MemoryCachePolicy  *CachePolicy
	NetworkCachePolicy *CachePolicy
}

// ParseLoaderOptions decodes the options bag accepted by setLoaderOptions.
// Crossfade follows the same typing rules as the view prop; cache policy
// strings go through ResolvePolicy.
func ParseLoaderOptions(f Fragment) (LoaderOptions, error) {
	var o LoaderOptions

	bools := []struct {
		field string
		dst   **bool
	}{
		{"addLastModifiedToFileCacheKey", &o.AddLastModifiedToFileCacheKey},
		{"allowHardware", &o.AllowHardware},
		{"allowRgb565", &o.AllowRGB565},
		{"bitmapPoolingEnabled", &o.BitmapPoolingEnabled},
	}
	for _, b := range bools {
		v, ok := f[b.field]
		if !ok || v == nil {
			continue
		}
		val, ok := v.(bool)
		if !ok {
			return LoaderOptions{}, &ConfigError{Kind: InvalidFieldType, Field: b.field, Value: v}
		}
		*b.dst = &val
	}

	floats := []struct {
		field string
		dst   **float64
	}{
		{"availableMemoryPercentage", &o.AvailableMemoryPercentage},
		{"bitmapPoolPercentage", &o.BitmapPoolPercentage},
	}
	for _, fl := range floats {
		v, ok := f[fl.field]
		if !ok || v == nil {
			continue
		}
		val, ok := toFloat(v)
		if !ok || val < 0 || val > 1 {
			return LoaderOptions{}, &ConfigError{Kind: InvalidFieldType, Field: fl.field, Value: v}
		}
		*fl.dst = &val
	}

	if v, ok := f["crossfade"]; ok && v != nil {
		ms, err := resolveCrossfade(v)
		if err != nil {
			return LoaderOptions{}, withField(err, "crossfade")
		}
		o.Crossfade = &ms
	}

	refs := []struct {
		field string
		dst   **ImageRef
	}{
		{"placeholder", &o.Placeholder},
		{"error", &o.Error},
		{"fallback", &o.Fallback},
	}
	for _, r := range refs {
		v, ok := f[r.field]
		if !ok || v == nil {
			continue
		}
		ref, err := resolveImageRef(v, r.field)
		if err != nil {
			return LoaderOptions{}, err
		}
		*r.dst = &ref
	}

	policies := []struct {
		field string
		dst   **CachePolicy
	}{
		{"diskCachePolicy", &o.DiskCachePolicy},
		{"memoryCachePolicy", &o.MemoryCachePolicy},
		{"networkCachePolicy", &o.NetworkCachePolicy},
	}
	for _, p := range policies {
		v, ok := f[p.field]
		if !ok || v == nil {
			continue
		}
		s, ok := v.(string)
		if !ok {
			return LoaderOptions{}, &ConfigError{Kind: UnknownCachePolicy, Field: p.field, Value: v}
		}
		resolved, err := ResolvePolicy(s)
		if err != nil {
			return LoaderOptions{}, withField(err, p.field)
		}
		*p.dst = &resolved
	}

	return o, nil
}

func decodeJSON(data []byte, v any) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	return dec.Decode(v)
}
