package cachekey

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// originalSizeMarker is the string the Engine uses for an unconstrained size.
const originalSizeMarker = "OriginalSize"

// KeyFormatError reports an External key that lacks a required field.
type KeyFormatError struct {
	Field  string
	Reason string
}

func (e *KeyFormatError) Error() string {
	return fmt.Sprintf("cachekey: invalid key field %q: %s", e.Field, e.Reason)
}

// ExternalSize is the size as the Engine encodes it: either a width/height
// object or the "OriginalSize" marker string.
type ExternalSize struct {
	Original bool
	Width    int
	Height   int
}

// MarshalJSON implements json.Marshaler.
func (s ExternalSize) MarshalJSON() ([]byte, error) {
	if s.Original {
		return json.Marshal(originalSizeMarker)
	}
	return json.Marshal(Size{Width: s.Width, Height: s.Height})
}

// UnmarshalJSON implements json.Unmarshaler.
func (s *ExternalSize) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		var marker string
		if err := json.Unmarshal(data, &marker); err != nil {
			return err
		}
		if marker != originalSizeMarker {
			return fmt.Errorf("unknown size marker %q", marker)
		}
		*s = ExternalSize{Original: true}
		return nil
	}
	var px Size
	if err := json.Unmarshal(data, &px); err != nil {
		return err
	}
	*s = ExternalSize{Width: px.Width, Height: px.Height}
	return nil
}

// External is the engine-native representation of a Key.
type External struct {
	Type            string            `json:"type"`
	Value           *string           `json:"value,omitempty"`
	Base            *string           `json:"base,omitempty"`
	Transformations []string          `json:"transformations,omitempty"`
	Size            *ExternalSize     `json:"size,omitempty"`
	Parameters      map[string]string `json:"parameters,omitempty"`
}

// Canonical returns a deterministic string form of e. Map entries are
// emitted in sorted order, so equal keys always produce equal strings.
func (e External) Canonical() string {
	b, err := json.Marshal(e)
	if err != nil {
		return ""
	}
	return string(b)
}

// ToExternal converts k into the Engine's representation.
func ToExternal(k Key) (External, error) {
	switch k.tag {
	case TagSimple:
		v := k.value
		return External{Type: TagSimple.String(), Value: &v}, nil
	case TagComplex:
		if k.base == "" {
			return External{}, &KeyFormatError{Field: "base", Reason: "complex key has no base"}
		}
		base := k.base
		ext := External{Type: TagComplex.String(), Base: &base}
		if len(k.transformations) > 0 {
			ext.Transformations = k.Transformations()
		}
		switch {
		case k.unsized:
		case k.size.IsOriginal():
			ext.Size = &ExternalSize{Original: true}
		default:
			ext.Size = &ExternalSize{Width: k.size.Width, Height: k.size.Height}
		}
		if len(k.parameters) > 0 {
			ext.Parameters = k.Parameters()
		}
		return ext, nil
	default:
		return External{}, &KeyFormatError{Field: "type", Reason: "zero key"}
	}
}

// FromExternal rebuilds a Key from the Engine's representation, typically
// the memory cache key reported after a successful load.
func FromExternal(e External) (Key, error) {
	switch e.Type {
	case TagSimple.String():
		if e.Value == nil {
			return Key{}, &KeyFormatError{Field: "value", Reason: "simple key has no value"}
		}
		return Simple(*e.Value), nil
	case TagComplex.String():
		if e.Base == nil {
			return Key{}, &KeyFormatError{Field: "base", Reason: "complex key has no base"}
		}
		if e.Size == nil {
			return NewComplexWithoutSize(*e.Base, e.Transformations, e.Parameters), nil
		}
		var size Size
		if !e.Size.Original {
			if e.Size.Width < 0 || e.Size.Height < 0 {
				return Key{}, &KeyFormatError{Field: "size", Reason: "negative dimension"}
			}
			size = Size{Width: e.Size.Width, Height: e.Size.Height}
		}
		return NewComplex(*e.Base, e.Transformations, size, e.Parameters), nil
	case "":
		return Key{}, &KeyFormatError{Field: "type", Reason: "missing"}
	default:
		return Key{}, &KeyFormatError{Field: "type", Reason: fmt.Sprintf("unknown type %q", e.Type)}
	}
}

// Parse converts a declarative prop value into a Key. A string becomes a
// Simple key; a map is decoded as an External key.
func Parse(v any) (Key, error) {
	switch val := v.(type) {
	case string:
		return Simple(val), nil
	case Key:
		return val, nil
	case External:
		return FromExternal(val)
	case map[string]any:
		raw, err := json.Marshal(val)
		if err != nil {
			return Key{}, &KeyFormatError{Field: "key", Reason: err.Error()}
		}
		var ext External
		if err := json.Unmarshal(raw, &ext); err != nil {
			return Key{}, &KeyFormatError{Field: "key", Reason: err.Error()}
		}
		return FromExternal(ext)
	default:
		return Key{}, &KeyFormatError{Field: "key", Reason: fmt.Sprintf("unsupported value of type %T", v)}
	}
}
