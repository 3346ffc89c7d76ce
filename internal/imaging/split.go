package imaging

import (
	"image"
	"log/slog"
)

const (
	// Aspect-ratio fast path: photographs this wide hold 3 or 2 sheets.
	tripleAspect = 1.8
	doubleAspect = 1.3

	// sliceMarginFrac is added to the inner edge of each slice so the
	// seam region appears in both neighbours rather than neither.
	sliceMarginFrac = 0.02

	// Brightness-gap analysis parameters.
	analysisHeight   = 200
	gapBrightLevel   = 170
	gapRowLowFrac    = 0.20
	gapRowHighFrac   = 0.80
	gapBrightFrac    = 0.8
	minGapWidthFrac  = 0.05
	seamBandLowFrac  = 0.30
	seamBandHighFrac = 0.70
)

// Split decides whether one photograph contains multiple physical
// sheet-halves laid side by side and cuts accordingly. The result
// always has at least one image, ordered left to right.
func Split(img image.Image) []image.Image {
	w := img.Bounds().Dx()
	h := img.Bounds().Dy()
	if w == 0 || h == 0 {
		return []image.Image{img}
	}

	aspect := float64(w) / float64(h)
	switch {
	case aspect > tripleAspect:
		return sliceVertical(img, 3)
	case aspect > doubleAspect:
		return sliceVertical(img, 2)
	}

	if seam, ok := findBrightSeam(img); ok {
		slog.Debug("splitting at brightness seam", "column", seam, "width", w)
		return splitAt(img, seam)
	}

	return []image.Image{img}
}

// sliceVertical cuts the image into n equal-width slices, widening each
// inner edge by the safety margin so neighbouring slices overlap.
func sliceVertical(img image.Image, n int) []image.Image {
	b := img.Bounds()
	w := b.Dx()
	margin := int(float64(w/n) * sliceMarginFrac)

	out := make([]image.Image, 0, n)
	for i := 0; i < n; i++ {
		left := b.Min.X + i*w/n
		right := b.Min.X + (i+1)*w/n
		if i > 0 {
			left -= margin
		}
		if i < n-1 {
			right += margin
		}
		out = append(out, crop(img, image.Rect(left, b.Min.Y, right, b.Max.Y)))
	}
	return out
}

// splitAt cuts the image into two pieces at the given column, with the
// seam margin applied to both inner edges.
func splitAt(img image.Image, x int) []image.Image {
	b := img.Bounds()
	margin := int(float64(b.Dx()/2) * sliceMarginFrac)
	cut := b.Min.X + x
	return []image.Image{
		crop(img, image.Rect(b.Min.X, b.Min.Y, cut+margin, b.Max.Y)),
		crop(img, image.Rect(cut-margin, b.Min.Y, b.Max.X, b.Max.Y)),
	}
}

type gapRun struct {
	start, end int
	peak       float64
}

func (r gapRun) width() int { return r.end - r.start + 1 }

// findBrightSeam looks for a contiguous band of bright columns (the
// visible gap between two sheets) and returns the split column in full
// image coordinates.
func findBrightSeam(img image.Image) (int, bool) {
	w := img.Bounds().Dx()
	h := img.Bounds().Dy()

	aw := w * analysisHeight / h
	if aw < 2 {
		return 0, false
	}
	small := toGray(scaleTo(img, aw, analysisHeight))

	rowLo := int(gapRowLowFrac * analysisHeight)
	rowHi := int(gapRowHighFrac * analysisHeight)
	rows := rowHi - rowLo
	if rows <= 0 {
		return 0, false
	}

	fracs := make([]float64, aw)
	for x := 0; x < aw; x++ {
		bright := 0
		for y := rowLo; y < rowHi; y++ {
			if small.Pix[y*small.Stride+x] > gapBrightLevel {
				bright++
			}
		}
		fracs[x] = float64(bright) / float64(rows)
	}

	minWidth := int(minGapWidthFrac * float64(aw))
	var runs []gapRun
	for x := 0; x < aw; {
		if fracs[x] < gapBrightFrac {
			x++
			continue
		}
		run := gapRun{start: x, peak: fracs[x]}
		for x < aw && fracs[x] >= gapBrightFrac {
			if fracs[x] > run.peak {
				run.peak = fracs[x]
			}
			run.end = x
			x++
		}
		if run.width() >= minWidth {
			runs = append(runs, run)
		}
	}
	if len(runs) == 0 {
		return 0, false
	}

	best := runs[0]
	for _, r := range runs[1:] {
		if r.width() > best.width() || (r.width() == best.width() && r.peak > best.peak) {
			best = r
		}
	}

	center := (best.start + best.end) / 2
	seam := center * w / aw
	if float64(seam) < seamBandLowFrac*float64(w) || float64(seam) > seamBandHighFrac*float64(w) {
		slog.Debug("rejecting seam outside acceptance band", "column", seam, "width", w)
		return 0, false
	}
	return seam, true
}
