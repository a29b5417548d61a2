package cachekey

import (
	"fmt"
	"slices"
	"strings"
)

// Tag identifies which variant of the union a Key holds.
type Tag int

const (
	// TagNone is the zero Key. It is never produced by a constructor.
	TagNone Tag = iota
	// TagSimple marks a key made of a single string value.
	TagSimple
	// TagComplex marks a key made of a base plus engine-derived fields.
	TagComplex
)

// String returns the wire name of the tag ("simple", "complex").
func (t Tag) String() string {
	switch t {
	case TagSimple:
		return "simple"
	case TagComplex:
		return "complex"
	default:
		return "none"
	}
}

// Size is the pixel size folded into a Complex key.
// The zero Size stands for the original, unconstrained size.
type Size struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// IsOriginal reports whether s is the original-size marker.
func (s Size) IsOriginal() bool {
	return s.Width == 0 && s.Height == 0
}

// Key is an immutable memory cache key.
//
// Only the fields of the active variant are meaningful: Value for Simple
// keys; Base, Transformations, Size and Parameters for Complex keys.
type Key struct {
	tag             Tag
	value           string
	base            string
	transformations []string
	size            Size
	unsized         bool
	parameters      map[string]string
}

// Simple creates a Simple key holding value. It never fails.
func Simple(value string) Key {
	return Key{tag: TagSimple, value: value}
}

// NewComplex creates a Complex key. The slices and maps are copied, so later
// changes by the caller do not leak into the key.
func NewComplex(base string, transformations []string, size Size, parameters map[string]string) Key {
	return Key{
		tag:             TagComplex,
		base:            base,
		transformations: slices.Clone(transformations),
		size:            size,
		parameters:      cloneParams(parameters),
	}
}

// NewComplexWithoutSize creates a Complex key that carries no size at all,
// as opposed to the original-size marker.
func NewComplexWithoutSize(base string, transformations []string, parameters map[string]string) Key {
	k := NewComplex(base, transformations, Size{}, parameters)
	k.unsized = true
	return k
}

// Tag returns the active variant.
func (k Key) Tag() Tag { return k.tag }

// IsZero reports whether k is the zero Key.
func (k Key) IsZero() bool { return k.tag == TagNone }

// Value returns the value of a Simple key, or "" for other variants.
func (k Key) Value() string { return k.value }

// Base returns the base of a Complex key, or "" for other variants.
func (k Key) Base() string { return k.base }

// Transformations returns a copy of the ordered transformation names.
func (k Key) Transformations() []string { return slices.Clone(k.transformations) }

// Size returns the size of a Complex key.
func (k Key) Size() Size { return k.size }

// HasSize reports whether a Complex key carries a size, either pixels or
// the original-size marker.
func (k Key) HasSize() bool { return k.tag == TagComplex && !k.unsized }

// Parameters returns a copy of the parameter map.
func (k Key) Parameters() map[string]string { return cloneParams(k.parameters) }

// Equal reports whether k and other hold the same variant with equal fields.
// Transformations compare in order; parameters compare as unordered maps,
// with nil and empty treated alike.
func (k Key) Equal(other Key) bool {
	if k.tag != other.tag {
		return false
	}
	switch k.tag {
	case TagSimple:
		return k.value == other.value
	case TagComplex:
		if k.base != other.base || k.size != other.size || k.unsized != other.unsized {
			return false
		}
		if !slices.Equal(k.transformations, other.transformations) {
			return false
		}
		if len(k.parameters) != len(other.parameters) {
			return false
		}
		for name, v := range k.parameters {
			ov, ok := other.parameters[name]
			if !ok || ov != v {
				return false
			}
		}
		return true
	default:
		return true
	}
}

// Equal reports whether a and b are equal keys. See Key.Equal.
func Equal(a, b Key) bool {
	return a.Equal(b)
}

// String renders the key for logs.
func (k Key) String() string {
	switch k.tag {
	case TagSimple:
		return fmt.Sprintf("simple(%s)", k.value)
	case TagComplex:
		size := "original"
		if k.unsized {
			size = "unsized"
		} else if !k.size.IsOriginal() {
			size = fmt.Sprintf("%dx%d", k.size.Width, k.size.Height)
		}
		return fmt.Sprintf("complex(%s [%s] %s %d params)",
			k.base, strings.Join(k.transformations, ","), size, len(k.parameters))
	default:
		return "none"
	}
}

func cloneParams(m map[string]string) map[string]string {
	if len(m) == 0 {
		return nil
	}
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
