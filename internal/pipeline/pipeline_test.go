package pipeline

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"testing"

	"github.com/mkrall/examscan/internal/config"
)

func testPipeline() *Pipeline {
	return New(config.DefaultConfig().Processing)
}

// photoJPEG encodes a dark sheet photograph of the given size.
func photoJPEG(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetNRGBA(x, y, color.NRGBA{40, 40, 40, 255})
		}
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: 90}); err != nil {
		t.Fatalf("encode test image: %v", err)
	}
	return buf.Bytes()
}

func TestProcessSingleSquareImage(t *testing.T) {
	pages, err := testPipeline().Process(context.Background(), [][]byte{
		photoJPEG(t, 300, 300),
	})
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if len(pages) != 1 {
		t.Fatalf("expected 1 page, got %d", len(pages))
	}
	if pages[0].Position != 0 {
		t.Fatalf("expected position 0, got %d", pages[0].Position)
	}
	if len(pages[0].Data) == 0 {
		t.Fatal("page has no data")
	}
}

func TestProcessCoverSheetNeverSplit(t *testing.T) {
	// Both images have aspect ratio 2.0. The cover sheet must stay one
	// page while the second image splits into three.
	wide := photoJPEG(t, 600, 300)

	pages, err := testPipeline().Process(context.Background(), [][]byte{wide, wide})
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if len(pages) != 4 {
		t.Fatalf("expected 4 pages (1 cover + 3 splits), got %d", len(pages))
	}
	for i, p := range pages {
		if p.Position != i {
			t.Fatalf("page %d has position %d", i, p.Position)
		}
	}
	// The cover page keeps the full width; the splits are narrower.
	if pages[0].Width < 400 {
		t.Fatalf("cover page appears split: width %d", pages[0].Width)
	}
	for _, p := range pages[1:] {
		if p.Width > 300 {
			t.Fatalf("split page too wide: %d", p.Width)
		}
	}
}

func TestProcessPreservesInputOrder(t *testing.T) {
	// Distinguish images by size so output order is observable.
	inputs := [][]byte{
		photoJPEG(t, 100, 100),
		photoJPEG(t, 120, 120),
		photoJPEG(t, 140, 140),
		photoJPEG(t, 160, 160),
	}

	pages, err := testPipeline().Process(context.Background(), inputs)
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if len(pages) != 4 {
		t.Fatalf("expected 4 pages, got %d", len(pages))
	}
	for i, p := range pages {
		want := 100 + 20*i
		// Boundary detection may not crop the flat test sheet, so the
		// width is exact.
		if p.Width != want {
			t.Fatalf("page %d has width %d, want %d", i, p.Width, want)
		}
	}
}

func TestProcessDegradedImageDoesNotAbortBatch(t *testing.T) {
	inputs := [][]byte{
		photoJPEG(t, 200, 200),
		[]byte("not an image at all"),
		photoJPEG(t, 200, 200),
	}

	pages, err := testPipeline().Process(context.Background(), inputs)
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	// The corrupt buffer is dropped; both valid images survive.
	if len(pages) != 2 {
		t.Fatalf("expected 2 pages, got %d", len(pages))
	}
}

func TestProcessAllUnusable(t *testing.T) {
	_, err := testPipeline().Process(context.Background(), [][]byte{
		[]byte("garbage"),
		[]byte{0x00, 0x01},
	})
	if !errors.Is(err, ErrNoPages) {
		t.Fatalf("expected ErrNoPages, got %v", err)
	}
}

func TestProcessEmptyBatch(t *testing.T) {
	_, err := testPipeline().Process(context.Background(), nil)
	if !errors.Is(err, ErrNoPages) {
		t.Fatalf("expected ErrNoPages, got %v", err)
	}
}
