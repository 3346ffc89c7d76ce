// Package pdf assembles processed page images into a single paginated
// PDF document.
package pdf

import (
	"bytes"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/mkrall/examscan/internal/pipeline"
)

// A4 portrait canvas in points, with the margin the page image is
// fitted into.
const (
	pageWidth  = 595.28
	pageHeight = 841.89
	pageMargin = 24.0
)

// Info is the document-level metadata written to the Info dictionary.
type Info struct {
	Title  string
	Author string
	// Creator defaults to "examscan" when empty.
	Creator string
}

// Assemble lays every page image onto its own A4 canvas, centered and
// scaled to fit inside the margin, and returns the serialized document.
// The whole document is produced in one shot after every page has been
// embedded.
func Assemble(pages []pipeline.Page, info Info) ([]byte, error) {
	if len(pages) == 0 {
		return nil, fmt.Errorf("no pages to assemble")
	}

	embedded := make([]*imageObject, len(pages))
	for i, page := range pages {
		obj, err := embedPage(page)
		if err != nil {
			return nil, fmt.Errorf("embed page %d: %w", i, err)
		}
		embedded[i] = obj
	}

	return serialize(embedded, info), nil
}

// embedPage tries each embed strategy in order and returns the first
// success.
func embedPage(page pipeline.Page) (*imageObject, error) {
	var lastErr error
	for _, s := range embedStrategies {
		obj, err := s.embed(page.Data)
		if err == nil {
			return obj, nil
		}
		lastErr = err
		slog.Warn("embed strategy failed, trying next",
			"page", page.Position, "strategy", s.name, "error", err)
	}
	return nil, fmt.Errorf("all embed strategies failed: %w", lastErr)
}

// writer emits PDF objects while tracking byte offsets for the xref
// table.
type writer struct {
	buf     bytes.Buffer
	offsets []int
}

func (w *writer) raw(s string) {
	w.buf.WriteString(s)
}

// object writes "<n> 0 obj ... endobj" and returns the object number.
func (w *writer) object(body string) int {
	num := len(w.offsets) + 1
	w.offsets = append(w.offsets, w.buf.Len())
	fmt.Fprintf(&w.buf, "%d 0 obj\n%s\nendobj\n", num, body)
	return num
}

// streamObject writes a stream object with the given dictionary entries.
func (w *writer) streamObject(dict string, stream []byte) int {
	num := len(w.offsets) + 1
	w.offsets = append(w.offsets, w.buf.Len())
	fmt.Fprintf(&w.buf, "%d 0 obj\n<< %s /Length %d >>\nstream\n", num, dict, len(stream))
	w.buf.Write(stream)
	w.buf.WriteString("\nendstream\nendobj\n")
	return num
}

func serialize(images []*imageObject, info Info) []byte {
	w := &writer{}
	w.raw("%PDF-1.4\n%\xe2\xe3\xcf\xd3\n")

	// Objects 1 and 2 are reserved for the catalog and the page tree;
	// page objects follow in groups of three.
	w.offsets = make([]int, 2, 2+3*len(images)+1)
	catalogPos := 0
	pagesPos := 1

	pageRefs := make([]string, 0, len(images))
	for _, img := range images {
		imgNum := w.streamObject(fmt.Sprintf(
			"/Type /XObject /Subtype /Image /Width %d /Height %d /ColorSpace %s /BitsPerComponent 8 /Filter %s",
			img.width, img.height, img.colorSpace, img.filter), img.data)

		drawW, drawH, offX, offY := placement(img.width, img.height)
		content := fmt.Sprintf("q\n%.2f 0 0 %.2f %.2f %.2f cm\n/Im0 Do\nQ\n",
			drawW, drawH, offX, offY)
		contentNum := w.streamObject("", []byte(content))

		pageNum := w.object(fmt.Sprintf(
			"<< /Type /Page /Parent 2 0 R /MediaBox [0 0 %.2f %.2f] /Resources << /XObject << /Im0 %d 0 R >> >> /Contents %d 0 R >>",
			pageWidth, pageHeight, imgNum, contentNum))
		pageRefs = append(pageRefs, fmt.Sprintf("%d 0 R", pageNum))
	}

	infoNum := w.object(infoDict(info))

	// Backfill catalog and page tree now that all refs are known.
	w.offsets[catalogPos] = w.buf.Len()
	fmt.Fprintf(&w.buf, "1 0 obj\n<< /Type /Catalog /Pages 2 0 R >>\nendobj\n")
	w.offsets[pagesPos] = w.buf.Len()
	fmt.Fprintf(&w.buf, "2 0 obj\n<< /Type /Pages /Kids [%s] /Count %d >>\nendobj\n",
		strings.Join(pageRefs, " "), len(images))

	xrefOffset := w.buf.Len()
	fmt.Fprintf(&w.buf, "xref\n0 %d\n", len(w.offsets)+1)
	w.raw("0000000000 65535 f \n")
	for _, off := range w.offsets {
		fmt.Fprintf(&w.buf, "%010d 00000 n \n", off)
	}
	fmt.Fprintf(&w.buf, "trailer\n<< /Size %d /Root 1 0 R /Info %d 0 R >>\nstartxref\n%d\n%%%%EOF\n",
		len(w.offsets)+1, infoNum, xrefOffset)

	return w.buf.Bytes()
}

// placement scales the image to fit inside the page margin while
// preserving aspect ratio, centered on the canvas.
func placement(w, h int) (drawW, drawH, offX, offY float64) {
	availW := pageWidth - 2*pageMargin
	availH := pageHeight - 2*pageMargin

	scale := availW / float64(w)
	if s := availH / float64(h); s < scale {
		scale = s
	}

	drawW = float64(w) * scale
	drawH = float64(h) * scale
	offX = (pageWidth - drawW) / 2
	offY = (pageHeight - drawH) / 2
	return drawW, drawH, offX, offY
}

func infoDict(info Info) string {
	creator := info.Creator
	if creator == "" {
		creator = "examscan"
	}
	var b strings.Builder
	b.WriteString("<<")
	if info.Title != "" {
		fmt.Fprintf(&b, " /Title (%s)", escapeString(info.Title))
	}
	if info.Author != "" {
		fmt.Fprintf(&b, " /Author (%s)", escapeString(info.Author))
	}
	fmt.Fprintf(&b, " /Creator (%s) /Producer (%s)", escapeString(creator), escapeString(creator))
	fmt.Fprintf(&b, " /CreationDate (D:%s)", time.Now().Format("20060102150405"))
	b.WriteString(" >>")
	return b.String()
}

// escapeString escapes the characters with meaning inside PDF literal
// strings.
func escapeString(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `(`, `\(`, `)`, `\)`)
	return r.Replace(s)
}
