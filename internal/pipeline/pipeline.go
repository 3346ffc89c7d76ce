// Package pipeline turns raw photograph buffers into ordered,
// print-ready page images.
package pipeline

import (
	"bytes"
	"context"
	"errors"
	"image"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/mkrall/examscan/internal/config"
	"github.com/mkrall/examscan/internal/imaging"
)

// ErrNoPages is returned when no input image could be turned into a
// single usable page.
var ErrNoPages = errors.New("no pages could be produced from the batch")

// Page is one processed output page, JPEG-encoded.
type Page struct {
	Position int
	Data     []byte
	Width    int
	Height   int
}

// Pipeline runs detect, enhance and split over a batch of photographs
// with bounded concurrency.
type Pipeline struct {
	quality     int
	concurrency int
}

func New(cfg config.ProcessingConfig) *Pipeline {
	return &Pipeline{
		quality:     cfg.ImageQuality,
		concurrency: cfg.Concurrency,
	}
}

// Process runs the per-image pipeline over every buffer concurrently
// and returns the final pages in input order. Splits within one image
// keep their left-to-right order. The first image is the cover sheet
// and is never split.
//
// A failing image degrades to its most recent usable intermediate (or
// the raw buffer); the batch as a whole only fails when nothing at all
// could be produced.
func (p *Pipeline) Process(ctx context.Context, images [][]byte) ([]Page, error) {
	if len(images) == 0 {
		return nil, ErrNoPages
	}

	// One slot per input image; each worker writes only its own index,
	// so no locking is needed and input order is preserved.
	results := make([][]Page, len(images))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(p.concurrency)
	for i, buf := range images {
		g.Go(func() error {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			results[i] = p.processOne(i, buf)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var pages []Page
	for _, group := range results {
		for _, page := range group {
			page.Position = len(pages)
			pages = append(pages, page)
		}
	}
	if len(pages) == 0 {
		return nil, ErrNoPages
	}
	return pages, nil
}

// processOne runs detect, enhance and (except for the cover sheet)
// split for a single photograph. It never fails: each stage falls back
// to its input and the worst case degrades to the raw buffer.
func (p *Pipeline) processOne(index int, buf []byte) []Page {
	img, format, err := imaging.Decode(buf)
	if err != nil {
		slog.Warn("image undecodable, passing raw buffer through",
			"image_index", index, "error", err)
		return p.rawPage(index, buf)
	}
	slog.Debug("processing image", "image_index", index, "format", format,
		"width", img.Bounds().Dx(), "height", img.Bounds().Dy())

	img = imaging.DetectBounds(img)
	img = imaging.Enhance(img)

	parts := []image.Image{img}
	if index > 0 {
		parts = imaging.Split(img)
	}

	pages := make([]Page, 0, len(parts))
	for pi, part := range parts {
		data, err := imaging.EncodeJPEG(part, p.quality)
		if err != nil {
			slog.Warn("page encoding failed, dropping split part",
				"image_index", index, "part", pi, "error", err)
			continue
		}
		pages = append(pages, Page{
			Data:   data,
			Width:  part.Bounds().Dx(),
			Height: part.Bounds().Dy(),
		})
	}
	if len(pages) == 0 {
		slog.Warn("all parts failed to encode, passing raw buffer through",
			"image_index", index)
		return p.rawPage(index, buf)
	}
	return pages
}

// rawPage wraps an unprocessable buffer as a page so a single bad
// photograph does not sink the batch. The buffer must at least carry a
// readable image header; otherwise the image is dropped with a log.
func (p *Pipeline) rawPage(index int, buf []byte) []Page {
	cfg, _, err := image.DecodeConfig(bytes.NewReader(buf))
	if err != nil {
		slog.Error("dropping image, buffer is not a readable image",
			"image_index", index, "error", err)
		return nil
	}
	return []Page{{Data: buf, Width: cfg.Width, Height: cfg.Height}}
}
