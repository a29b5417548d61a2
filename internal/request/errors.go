package request

import (
	"errors"
	"fmt"
)

// Sentinel errors, one per ConfigError kind. Match with errors.Is.
var (
	ErrUnknownCachePolicy   = errors.New("request: unknown cache policy")
	ErrInvalidHeaderValue   = errors.New("request: header value must be a string")
	ErrInvalidCrossfadeType = errors.New("request: crossfade must be a boolean or a non-negative integer")
	ErrInvalidFieldType     = errors.New("request: invalid field type")
	ErrUnknownTransform     = errors.New("request: unknown transform")
)

// ErrorKind classifies a ConfigError.
type ErrorKind int

const (
	UnknownCachePolicy ErrorKind = iota + 1
	InvalidHeaderValue
	InvalidCrossfadeType
	InvalidFieldType
	UnknownTransform
)

// String returns the kind name used in logs and in protocol error data.
func (k ErrorKind) String() string {
	switch k {
	case UnknownCachePolicy:
		return "UnknownCachePolicy"
	case InvalidHeaderValue:
		return "InvalidHeaderValue"
	case InvalidCrossfadeType:
		return "InvalidCrossfadeType"
	case InvalidFieldType:
		return "InvalidFieldType"
	case UnknownTransform:
		return "UnknownTransform"
	default:
		return "Unknown"
	}
}

func (k ErrorKind) sentinel() error {
	switch k {
	case UnknownCachePolicy:
		return ErrUnknownCachePolicy
	case InvalidHeaderValue:
		return ErrInvalidHeaderValue
	case InvalidCrossfadeType:
		return ErrInvalidCrossfadeType
	case InvalidFieldType:
		return ErrInvalidFieldType
	case UnknownTransform:
		return ErrUnknownTransform
	default:
		return nil
	}
}

// ConfigError is returned synchronously when a configuration fragment
// cannot be applied. The fragment is rejected as a whole.
type ConfigError struct {
	Kind  ErrorKind
	Field string
	Value any

	// Err is an optional underlying cause.
	Err error
}

func (e *ConfigError) Error() string {
	msg := e.Kind.sentinel()
	if msg == nil {
		msg = errors.New("request: invalid configuration")
	}
	s := msg.Error()
	if e.Field != "" {
		s += fmt.Sprintf(" (field %q", e.Field)
		if e.Value != nil {
			s += fmt.Sprintf(", value %v of type %T", e.Value, e.Value)
		}
		s += ")"
	} else if e.Value != nil {
		s += fmt.Sprintf(" (value %v)", e.Value)
	}
	if e.Err != nil {
		s += ": " + e.Err.Error()
	}
	return s
}

// Unwrap exposes the kind sentinel and the underlying cause, if any.
func (e *ConfigError) Unwrap() []error {
	errs := make([]error, 0, 2)
	if s := e.Kind.sentinel(); s != nil {
		errs = append(errs, s)
	}
	if e.Err != nil {
		errs = append(errs, e.Err)
	}
	return errs
}

// withField returns err with Field filled in when err is a ConfigError that
// does not name one yet.
func withField(err error, field string) error {
	var ce *ConfigError
	if errors.As(err, &ce) && ce.Field == "" {
		ce.Field = field
	}
	return err
}

// Warning describes a configuration that was applied but is suspicious.
type Warning struct {
	Field   string
	Message string
}

func (w Warning) String() string {
	return w.Field + ": " + w.Message
}
