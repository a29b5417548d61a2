// Package request builds immutable image request descriptors from
// declarative, possibly partial configuration.
//
// The host view delivers props as fragments: on first render most props are
// present, later renders often carry only what changed. Reducer.Apply folds
// each fragment onto the previous Descriptor and returns a new one; the
// previous value is never modified. Two descriptors built from the same
// effective configuration are Equal, which lets the lifecycle layer skip
// re-issuing unchanged requests.
//
// # Fragment Semantics
//
//   - Absent key: keep the previous value.
//   - Key with nil value: clear the field (placeholder, error, fallback,
//     cache keys, size, headers) or reset it to its default (resizeMode,
//     scale, crossfade, video frame).
//   - Key with a value: replace the field.
//
// # Errors
//
// Invalid configuration is reported as *ConfigError and rejects the whole
// fragment. Each kind has a sentinel for errors.Is:
//
//   - ErrUnknownCachePolicy: policy string outside ENABLED, DISABLED,
//     WRITE_ONLY, READ_ONLY
//   - ErrInvalidHeaderValue: a header value that is not a string
//   - ErrInvalidCrossfadeType: crossfade that is neither a boolean nor a
//     non-negative integer
//   - ErrInvalidFieldType: any other prop with the wrong shape
//   - ErrUnknownTransform: unrecognized transform under the reject policy
//
// Malformed memory cache keys are not errors; they are dropped and reported
// as a Warning.
package request
