package imaging

import (
	"image"
	"log/slog"
)

const (
	// edgeThreshold classifies a sampled pixel as document content.
	edgeThreshold = 50
	// minCoverage is the fraction of each dimension the detected box
	// must span for the detection to be trusted.
	minCoverage = 0.60
	// cropMarginFrac expands the detected box before cropping.
	cropMarginFrac = 0.02
	cropMarginCap  = 30
)

// DetectBounds crops a photographed page down to the document region.
// Detection is fail-safe: when no confident region is found the input
// is returned unchanged.
func DetectBounds(img image.Image) image.Image {
	w := img.Bounds().Dx()
	h := img.Bounds().Dy()
	if w == 0 || h == 0 {
		return img
	}

	gray := toGray(img)
	normalizeGray(gray)

	stride := w / 100
	if stride < 2 {
		stride = 2
	}

	minX, minY := w, h
	maxX, maxY := -1, -1
	for y := 0; y < h; y += stride {
		row := y * gray.Stride
		for x := 0; x < w; x += stride {
			if gray.Pix[row+x] < edgeThreshold {
				if x < minX {
					minX = x
				}
				if x > maxX {
					maxX = x
				}
				if y < minY {
					minY = y
				}
				if y > maxY {
					maxY = y
				}
			}
		}
	}

	if maxX < 0 {
		slog.Debug("boundary detection found no document pixels")
		return img
	}

	boxW := maxX - minX + 1
	boxH := maxY - minY + 1
	if float64(boxW) < minCoverage*float64(w) || float64(boxH) < minCoverage*float64(h) {
		slog.Debug("boundary detection unreliable, keeping original",
			"box_width", boxW, "box_height", boxH, "width", w, "height", h)
		return img
	}

	mx := cropMargin(w)
	my := cropMargin(h)
	r := image.Rect(minX-mx, minY-my, maxX+1+mx, maxY+1+my).
		Intersect(image.Rect(0, 0, w, h)).
		Add(img.Bounds().Min)

	return crop(img, r)
}

func cropMargin(dim int) int {
	m := int(float64(dim) * cropMarginFrac)
	if m > cropMarginCap {
		m = cropMarginCap
	}
	return m
}
