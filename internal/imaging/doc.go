// Package imaging provides the pixel-level operations behind the reference
// image engine.
//
// It decodes images, applies transform pipelines, resizes to a size hint,
// resolves placeholder/error/fallback references and keeps decoded results
// in a bounded memory cache. All operations work with standard Go
// image.Image types and use a coordinate system where (0,0) is at the
// top-left corner, X increases rightward, and Y increases downward.
//
// # Transforms
//
// ApplyTransforms runs a pipeline left to right:
//   - blur: downsample by the sampling factor, Gaussian blur, scale back
//   - circle: centre square crop, then a circular alpha mask
//   - grayscale: luminance conversion
//   - rounded: per-corner alpha masks, radii clamped to half the shorter side
//
// Masked pixels become fully transparent; results are *image.NRGBA.
//
// # Image References
//
// Placeholder, error and fallback images are referenced by string. A leading
// "#" selects a solid colour, "data:" an inline base64 image, and anything
// else is taken as raw base64 image bytes.
//
// # Thread Safety
//
// MemoryCache is safe for concurrent use. Individual image operations are
// stateless and never modify their input, so they can be called
// concurrently on shared images.
//
// # Error Handling
//
// Functions return errors for invalid inputs such as:
//   - Undecodable image bytes or unreadable files
//   - Malformed colour or data URI references
//   - Encoding errors during image output
package imaging
