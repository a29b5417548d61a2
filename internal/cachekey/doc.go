// Package cachekey models memory cache keys as a closed tagged union.
//
// A Key is either Simple (a single opaque string chosen by the consumer) or
// Complex (a base plus the transformations, size and parameters the Engine
// folded into the key when it stored a result). Keys are immutable values:
// constructors copy their inputs and accessors hand out copies, so a Key
// can be shared freely between the Reducer, the Coordinator and event
// payloads.
//
// # External Form
//
// The Engine speaks a map-shaped representation (External) that mirrors
// what it stores and reports back after a successful load:
//
//	{"type": "simple", "value": "avatar-42"}
//	{"type": "complex", "base": "https://x/a.png",
//	 "transformations": ["circle"], "size": {"width": 64, "height": 64},
//	 "parameters": {"k": "v"}}
//
// A complex key with the original (unconstrained) size carries the string
// "OriginalSize" instead of a width/height object; one with no "size" at
// all stays unsized through a round trip. Conversion in either
// direction fails with *KeyFormatError when required fields are missing;
// callers recover by treating the key as absent.
package cachekey
