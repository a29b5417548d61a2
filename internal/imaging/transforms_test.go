package imaging

import (
	"image"
	"image/color"
	"testing"

	"github.com/ironsheep/imageview-bridge/internal/transform"
)

func alphaAt(img image.Image, x, y int) uint8 {
	_, _, _, a := img.At(x, y).RGBA()
	return uint8(a >> 8)
}

func TestApplyTransforms_Empty(t *testing.T) {
	img := newSolidImage(10, 10, color.White)
	if got := ApplyTransforms(img, nil); got != image.Image(img) {
		t.Error("empty pipeline should return the input unchanged")
	}
}

func TestApplyTransforms_Grayscale(t *testing.T) {
	img := newSolidImage(4, 4, color.RGBA{255, 0, 0, 255})
	out := ApplyTransforms(img, []transform.Transform{transform.NewGrayscale()})

	r, g, b, _ := out.At(1, 1).RGBA()
	if r != g || g != b {
		t.Errorf("grayscale pixel should have equal channels, got r=%d g=%d b=%d", r, g, b)
	}
	// input untouched
	if c := img.NRGBAAt(1, 1); c.G != 0 || c.R != 255 {
		t.Errorf("input was modified: %v", c)
	}
}

func TestApplyTransforms_Circle(t *testing.T) {
	img := newSolidImage(100, 60, color.White)
	out := ApplyTransforms(img, []transform.Transform{transform.NewCircle()})

	b := out.Bounds()
	if b.Dx() != 60 || b.Dy() != 60 {
		t.Fatalf("circle should crop to a square, got %dx%d", b.Dx(), b.Dy())
	}
	if a := alphaAt(out, 0, 0); a != 0 {
		t.Errorf("corner alpha: got %d, want 0", a)
	}
	if a := alphaAt(out, 30, 30); a != 255 {
		t.Errorf("centre alpha: got %d, want 255", a)
	}
}

func TestApplyTransforms_Rounded(t *testing.T) {
	img := newSolidImage(40, 40, color.White)
	out := ApplyTransforms(img, []transform.Transform{transform.NewRounded(10, 0, 10, 0)})

	tests := []struct {
		name  string
		x, y  int
		alpha uint8
	}{
		{"top-left corner cleared", 0, 0, 0},
		{"top-right corner kept", 39, 0, 255},
		{"bottom-right corner cleared", 39, 39, 0},
		{"bottom-left corner kept", 0, 39, 255},
		{"centre kept", 20, 20, 255},
		{"inside top-left arc", 9, 9, 255},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if a := alphaAt(out, tt.x, tt.y); a != tt.alpha {
				t.Errorf("alpha at (%d,%d): got %d, want %d", tt.x, tt.y, a, tt.alpha)
			}
		})
	}
}

func TestApplyTransforms_RoundedClampsRadius(t *testing.T) {
	img := newSolidImage(20, 20, color.White)
	out := ApplyTransforms(img, []transform.Transform{transform.NewRounded(500, 500, 500, 500)})

	if a := alphaAt(out, 10, 10); a != 255 {
		t.Errorf("centre alpha: got %d, want 255", a)
	}
	if a := alphaAt(out, 0, 0); a != 0 {
		t.Errorf("corner alpha: got %d, want 0", a)
	}
}

func TestApplyTransforms_BlurKeepsSize(t *testing.T) {
	img := newSolidImage(32, 16, color.Black)
	for y := 0; y < 16; y++ {
		img.Set(16, y, color.White)
	}

	for _, sampling := range []float64{1, 4} {
		out := ApplyTransforms(img, []transform.Transform{transform.NewBlur(3, sampling)})
		if out.Bounds().Dx() != 32 || out.Bounds().Dy() != 16 {
			t.Errorf("sampling %v: got %dx%d, want 32x16", sampling, out.Bounds().Dx(), out.Bounds().Dy())
		}
		r, _, _, _ := out.At(15, 8).RGBA()
		if r == 0 {
			t.Errorf("sampling %v: blur should spread the white line", sampling)
		}
	}
}

func TestApplyTransforms_BlurRadiusCapped(t *testing.T) {
	img := newSolidImage(8, 8, color.White)
	out := ApplyTransforms(img, []transform.Transform{transform.NewBlur(1e12, 1)})
	if out.Bounds().Dx() != 8 || out.Bounds().Dy() != 8 {
		t.Errorf("got %dx%d, want 8x8", out.Bounds().Dx(), out.Bounds().Dy())
	}
}

func TestApplyTransforms_ZeroRadiusBlurIsIdentity(t *testing.T) {
	img := newSolidImage(4, 4, color.White)
	out := ApplyTransforms(img, []transform.Transform{transform.NewBlur(0, 1)})
	if out != image.Image(img) {
		t.Error("zero radius blur should return the input")
	}
}

func TestApplyTransforms_Order(t *testing.T) {
	img := newSolidImage(50, 30, color.RGBA{0, 0, 255, 255})
	out := ApplyTransforms(img, []transform.Transform{
		transform.NewCircle(),
		transform.NewGrayscale(),
	})

	if out.Bounds().Dx() != 30 {
		t.Errorf("width: got %d, want 30", out.Bounds().Dx())
	}
	r, g, b, _ := out.At(15, 15).RGBA()
	if r != g || g != b {
		t.Error("grayscale should apply after the circle crop")
	}
}
