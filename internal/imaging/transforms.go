package imaging

import (
	"image"
	"math"

	"github.com/anthonynsimon/bild/blur"
	"github.com/disintegration/imaging"

	"github.com/ironsheep/imageview-bridge/internal/transform"
)

// ApplyTransforms runs pipeline over img left to right, each transform
// consuming the previous output. Unrecognized transforms are skipped.
func ApplyTransforms(img image.Image, pipeline []transform.Transform) image.Image {
	out := img
	for _, t := range pipeline {
		switch t.Kind {
		case transform.Blur:
			out = applyBlur(out, t.Blur)
		case transform.Circle:
			out = applyCircle(out)
		case transform.Grayscale:
			out = imaging.Grayscale(out)
		case transform.Rounded:
			out = applyRounded(out, t.Rounded)
		}
	}
	return out
}

// applyBlur downsamples by p.Sampling, blurs with p.Radius and scales the
// result back to the original size. The radius is capped at
// transform.MaxBlurRadius.
func applyBlur(img image.Image, p transform.BlurParams) image.Image {
	if !(p.Radius > 0) {
		return img
	}
	radius := min(p.Radius, transform.MaxBlurRadius)

	bounds := img.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	if w == 0 || h == 0 {
		return img
	}

	src := img
	sampling := p.Sampling
	if sampling > 1 {
		sw := max(1, int(float64(w)/sampling))
		sh := max(1, int(float64(h)/sampling))
		src = imaging.Resize(img, sw, sh, imaging.Linear)
	}

	blurred := blur.Gaussian(src, radius)
	if sampling > 1 {
		return imaging.Resize(blurred, w, h, imaging.Linear)
	}
	return blurred
}

// applyCircle centre-crops img to a square and clears every pixel outside
// the inscribed circle.
func applyCircle(img image.Image) image.Image {
	bounds := img.Bounds()
	side := min(bounds.Dx(), bounds.Dy())
	if side == 0 {
		return img
	}

	dst := imaging.CropCenter(img, side, side)
	r := float64(side) / 2
	mask(dst, func(x, y float64) bool {
		return inCircle(x, y, r, r, r)
	})
	return dst
}

// applyRounded clears the pixels outside each corner's quarter circle.
// Radii are clamped to half the shorter side.
func applyRounded(img image.Image, p transform.RoundedParams) image.Image {
	bounds := img.Bounds()
	w, h := float64(bounds.Dx()), float64(bounds.Dy())
	if w == 0 || h == 0 {
		return img
	}

	limit := math.Min(w, h) / 2
	clamp := func(v float64) float64 { return math.Max(0, math.Min(v, limit)) }
	tl, tr := clamp(p.TopLeft), clamp(p.TopRight)
	br, bl := clamp(p.BottomRight), clamp(p.BottomLeft)

	dst := imaging.Clone(img)
	mask(dst, func(x, y float64) bool {
		switch {
		case x < tl && y < tl:
			return inCircle(x, y, tl, tl, tl)
		case x > w-tr && y < tr:
			return inCircle(x, y, w-tr, tr, tr)
		case x > w-br && y > h-br:
			return inCircle(x, y, w-br, h-br, br)
		case x < bl && y > h-bl:
			return inCircle(x, y, bl, h-bl, bl)
		default:
			return true
		}
	})
	return dst
}

// mask makes every pixel for which keep returns false fully transparent.
// keep receives pixel centre coordinates relative to the image origin.
func mask(img *image.NRGBA, keep func(x, y float64) bool) {
	b := img.Bounds()
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			if keep(float64(x-b.Min.X)+0.5, float64(y-b.Min.Y)+0.5) {
				continue
			}
			i := img.PixOffset(x, y)
			img.Pix[i+0] = 0
			img.Pix[i+1] = 0
			img.Pix[i+2] = 0
			img.Pix[i+3] = 0
		}
	}
}

func inCircle(x, y, cx, cy, r float64) bool {
	dx, dy := x-cx, y-cy
	return dx*dx+dy*dy <= r*r
}
