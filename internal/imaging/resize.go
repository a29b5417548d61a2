package imaging

import (
	"image"

	"github.com/disintegration/imaging"
)

// Resize scales img towards a width x height target.
//
// With fill set the result covers the target exactly (centre-cropped);
// otherwise it fits inside the target and keeps its aspect ratio. Images
// already inside the target are never enlarged in fit mode.
//
// Returns:
//   - image.Image: the resized image, or img itself when no size is given.
//   - bool: true when the result has fewer pixels per source pixel than the
//     original, i.e. the image was sampled down.
func Resize(img image.Image, width, height int, fill bool) (image.Image, bool) {
	if width <= 0 || height <= 0 {
		return img, false
	}

	bounds := img.Bounds()
	srcW, srcH := bounds.Dx(), bounds.Dy()
	if srcW == 0 || srcH == 0 {
		return img, false
	}

	sx := float64(width) / float64(srcW)
	sy := float64(height) / float64(srcH)

	if fill {
		return imaging.Fill(img, width, height, imaging.Center, imaging.Lanczos), max(sx, sy) < 1
	}

	scale := min(sx, sy)
	if scale >= 1 {
		return img, false
	}
	return imaging.Fit(img, width, height, imaging.Lanczos), true
}
