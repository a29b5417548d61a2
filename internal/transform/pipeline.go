package transform

import (
	"fmt"
	"slices"
)

// UnknownPolicy selects what Build does with unrecognized class names.
type UnknownPolicy int

const (
	// DropUnknown removes unrecognized specs from the pipeline and reports
	// their names to the caller.
	DropUnknown UnknownPolicy = iota
	// RejectUnknown fails the build on the first unrecognized spec.
	RejectUnknown
)

// ParseUnknownPolicy parses "drop" or "reject".
func ParseUnknownPolicy(s string) (UnknownPolicy, error) {
	switch s {
	case "", "drop":
		return DropUnknown, nil
	case "reject":
		return RejectUnknown, nil
	default:
		return DropUnknown, fmt.Errorf("transform: unknown policy %q (want drop or reject)", s)
	}
}

// String returns the policy name.
func (p UnknownPolicy) String() string {
	if p == RejectUnknown {
		return "reject"
	}
	return "drop"
}

// UnknownTransformError is returned by Build under RejectUnknown.
type UnknownTransformError struct {
	Index     int
	ClassName string
}

func (e *UnknownTransformError) Error() string {
	return fmt.Sprintf("transform: unrecognized class name %q at index %d", e.ClassName, e.Index)
}

// Build decodes specs into an ordered pipeline.
//
// Parameters:
//   - specs: raw transform entries in application order. Nil or empty
//     input yields an empty pipeline.
//   - policy: what to do with unrecognized class names.
//
// Returns:
//   - []Transform: decoded transforms, in input order.
//   - []string: class names dropped under DropUnknown.
//   - error: *UnknownTransformError under RejectUnknown.
func Build(specs []Spec, policy UnknownPolicy) ([]Transform, []string, error) {
	pipeline := make([]Transform, 0, len(specs))
	var dropped []string

	for i, spec := range specs {
		t := Decode(spec)
		if t.Kind == Unrecognized {
			if policy == RejectUnknown {
				return nil, nil, &UnknownTransformError{Index: i, ClassName: spec.ClassName}
			}
			dropped = append(dropped, spec.ClassName)
			continue
		}
		pipeline = append(pipeline, t)
	}

	return pipeline, dropped, nil
}

// Equal reports whether two pipelines hold the same transforms in the same
// order.
func Equal(a, b []Transform) bool {
	return slices.Equal(a, b)
}
