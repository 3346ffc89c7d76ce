package imaging

import (
	"image"
	"log/slog"
)

const (
	// contrastBoost is the linear gain applied around mid-gray.
	contrastBoost = 1.12
	// unsharpAmount keeps sharpening mild to avoid halos around text.
	unsharpAmount = 0.5
	unsharpRadius = 2
)

// Enhance normalizes contrast, applies a mild linear boost and a
// conservative unsharp mask. The stage is total: any internal failure
// is absorbed and the input returned unchanged.
func Enhance(img image.Image) (out image.Image) {
	out = img
	defer func() {
		if r := recover(); r != nil {
			slog.Warn("enhancement failed, keeping original image", "panic", r)
			out = img
		}
	}()

	src := toNRGBA(img)
	w, h := src.Bounds().Dx(), src.Bounds().Dy()
	if w == 0 || h == 0 {
		return img
	}

	stretchContrast(src)
	boostContrast(src)

	blurred := boxBlur(src, unsharpRadius)
	for i := 0; i < len(src.Pix); i += 4 {
		for c := 0; c < 3; c++ {
			orig := int(src.Pix[i+c])
			soft := int(blurred.Pix[i+c])
			src.Pix[i+c] = clampU8(orig + int(unsharpAmount*float64(orig-soft)))
		}
	}

	return src
}

// stretchContrast maps the observed luminance range onto 0..255.
func stretchContrast(img *image.NRGBA) {
	lo, hi := 255, 0
	for i := 0; i < len(img.Pix); i += 4 {
		l := luminance(img.Pix[i], img.Pix[i+1], img.Pix[i+2])
		if l < lo {
			lo = l
		}
		if l > hi {
			hi = l
		}
	}
	if hi <= lo {
		return
	}
	span := hi - lo
	for i := 0; i < len(img.Pix); i += 4 {
		for c := 0; c < 3; c++ {
			img.Pix[i+c] = clampU8((int(img.Pix[i+c]) - lo) * 255 / span)
		}
	}
}

func boostContrast(img *image.NRGBA) {
	var lut [256]uint8
	for v := range lut {
		lut[v] = clampU8(int(contrastBoost*float64(v-128)) + 128)
	}
	for i := 0; i < len(img.Pix); i += 4 {
		img.Pix[i] = lut[img.Pix[i]]
		img.Pix[i+1] = lut[img.Pix[i+1]]
		img.Pix[i+2] = lut[img.Pix[i+2]]
	}
}

// boxBlur is a two-pass separable box blur over the RGB channels.
func boxBlur(src *image.NRGBA, radius int) *image.NRGBA {
	w, h := src.Bounds().Dx(), src.Bounds().Dy()
	tmp := image.NewNRGBA(src.Bounds())
	dst := image.NewNRGBA(src.Bounds())
	window := 2*radius + 1

	// Horizontal pass.
	for y := 0; y < h; y++ {
		row := y * src.Stride
		for x := 0; x < w; x++ {
			var sum [3]int
			for k := -radius; k <= radius; k++ {
				xx := clampInt(x+k, 0, w-1)
				o := row + xx*4
				sum[0] += int(src.Pix[o])
				sum[1] += int(src.Pix[o+1])
				sum[2] += int(src.Pix[o+2])
			}
			o := row + x*4
			tmp.Pix[o] = uint8(sum[0] / window)
			tmp.Pix[o+1] = uint8(sum[1] / window)
			tmp.Pix[o+2] = uint8(sum[2] / window)
			tmp.Pix[o+3] = src.Pix[o+3]
		}
	}

	// Vertical pass.
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			var sum [3]int
			for k := -radius; k <= radius; k++ {
				yy := clampInt(y+k, 0, h-1)
				o := yy*tmp.Stride + x*4
				sum[0] += int(tmp.Pix[o])
				sum[1] += int(tmp.Pix[o+1])
				sum[2] += int(tmp.Pix[o+2])
			}
			o := y*dst.Stride + x*4
			dst.Pix[o] = uint8(sum[0] / window)
			dst.Pix[o+1] = uint8(sum[1] / window)
			dst.Pix[o+2] = uint8(sum[2] / window)
			dst.Pix[o+3] = tmp.Pix[o+3]
		}
	}

	return dst
}

func luminance(r, g, b uint8) int {
	return (299*int(r) + 587*int(g) + 114*int(b)) / 1000
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
