package imaging

import (
	"image"
	"image/color"
	"testing"
)

func gradientImage(w, h int) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			v := uint8(64 + (x*128)/w)
			img.SetNRGBA(x, y, color.NRGBA{v, v, v, 255})
		}
	}
	return img
}

func TestEnhancePreservesDimensions(t *testing.T) {
	img := gradientImage(120, 80)
	out := Enhance(img)
	if out.Bounds().Dx() != 120 || out.Bounds().Dy() != 80 {
		t.Fatalf("enhance changed dimensions: %v", out.Bounds())
	}
}

func TestEnhanceStretchesContrast(t *testing.T) {
	// Input luminance spans 64..192; enhanced output should reach
	// further toward both ends of the range.
	img := gradientImage(100, 40)
	out := Enhance(img).(*image.NRGBA)

	lo, hi := 255, 0
	for i := 0; i < len(out.Pix); i += 4 {
		v := int(out.Pix[i])
		if v < lo {
			lo = v
		}
		if v > hi {
			hi = v
		}
	}
	if lo > 32 || hi < 224 {
		t.Fatalf("expected stretched range, got %d..%d", lo, hi)
	}
}

func TestEnhanceIdempotentSafety(t *testing.T) {
	// Running the enhancer on its own output must never fail.
	img := gradientImage(60, 60)
	once := Enhance(img)
	twice := Enhance(once)
	if twice == nil {
		t.Fatal("second enhancement returned nil")
	}
	if twice.Bounds() != once.Bounds() {
		t.Fatalf("second enhancement changed bounds: %v vs %v", twice.Bounds(), once.Bounds())
	}
}

func TestEnhanceDegenerateInputs(t *testing.T) {
	tests := []struct {
		name string
		img  image.Image
	}{
		{"empty", image.NewNRGBA(image.Rect(0, 0, 0, 0))},
		{"single pixel", image.NewNRGBA(image.Rect(0, 0, 1, 1))},
		{"flat gray", gradientImage(1, 50)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := Enhance(tt.img)
			if out == nil {
				t.Fatal("enhance returned nil")
			}
		})
	}
}
