// Package scan orchestrates a full scan session: batch image pipeline,
// document assembly, compression, and the swap of the student's live
// document reference.
package scan

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/pdfcpu/pdfcpu/pkg/api"

	"github.com/mkrall/examscan/internal/compress"
	"github.com/mkrall/examscan/internal/config"
	"github.com/mkrall/examscan/internal/pdf"
	"github.com/mkrall/examscan/internal/pipeline"
	"github.com/mkrall/examscan/internal/roster"
)

// Validation failures surfaced to the API layer.
var (
	ErrNoImages        = errors.New("scan request contains no images")
	ErrTooManyImages   = errors.New("scan request exceeds the image limit")
	ErrUnsupportedType = errors.New("unsupported image type")
)

// Error is a whole-request failure with the stage that caused it.
type Error struct {
	Stage string
	Err   error
}

func (e *Error) Error() string { return e.Stage + ": " + e.Err.Error() }
func (e *Error) Unwrap() error { return e.Err }

// Request is one scan submission: the target student and the
// photographs, first buffer being the cover/identity sheet.
type Request struct {
	StudentID   string
	RollNo      string
	StudentName string
	Images      [][]byte
}

// Result is the metadata returned to the caller on success.
type Result struct {
	SessionID  string        `json:"session_id"`
	PageCount  int           `json:"page_count"`
	FileSize   int64         `json:"file_size"`
	Duration   time.Duration `json:"duration_ms"`
	Path       string        `json:"path"`
	Compressed bool          `json:"compressed"`
}

// Update reports session progress to an optional observer.
type Update struct {
	SessionID string `json:"session_id"`
	StudentID string `json:"student_id"`
	Stage     string `json:"stage"`
	Progress  int    `json:"progress"`
	Message   string `json:"message,omitempty"`
	Error     string `json:"error,omitempty"`
}

// DocumentStore is the slice of the roster the controller needs to
// replace a student's live document reference.
type DocumentStore interface {
	ReplaceDocument(studentID string, rec roster.DocumentRecord) (prevPath string, err error)
}

// Controller runs scan sessions. It owns no persistent state beyond
// the files it writes under the storage root; the store owns the
// reference swap.
type Controller struct {
	cfg        config.ProcessingConfig
	storage    config.StorageConfig
	pipeline   *pipeline.Pipeline
	compressor *compress.Compressor
	store      DocumentStore

	// OnProgress, when set, receives session updates. Must not block.
	OnProgress func(Update)
}

func NewController(cfg *config.Config, store DocumentStore) *Controller {
	return &Controller{
		cfg:        cfg.Processing,
		storage:    cfg.Storage,
		pipeline:   pipeline.New(cfg.Processing),
		compressor: compress.New(cfg.Processing.Compress),
		store:      store,
	}
}

// Run executes one scan session. On success the student's document
// reference points at the new file and any superseded file is gone. On
// failure the prior reference and file are untouched and every
// partially written artifact has been removed.
func (c *Controller) Run(ctx context.Context, req Request) (*Result, error) {
	if err := c.validate(req); err != nil {
		return nil, err
	}

	sessionID := uuid.New().String()
	log := slog.With("session_id", sessionID, "student_id", req.StudentID, "images", len(req.Images))
	log.Info("scan session started")
	start := time.Now()

	c.progress(Update{SessionID: sessionID, StudentID: req.StudentID,
		Stage: "processing", Progress: 10, Message: "Processing images"})

	pages, err := c.pipeline.Process(ctx, req.Images)
	if err != nil {
		return nil, c.fail(log, sessionID, req.StudentID, "pipeline", err)
	}

	c.progress(Update{SessionID: sessionID, StudentID: req.StudentID,
		Stage: "assembling", Progress: 60, Message: "Assembling document"})

	doc, err := pdf.Assemble(pages, pdf.Info{
		Title:  "Answer Sheets - " + req.StudentName,
		Author: req.RollNo,
	})
	if err != nil {
		return nil, c.fail(log, sessionID, req.StudentID, "assemble", err)
	}

	if err := os.MkdirAll(c.storage.Root, 0o755); err != nil {
		return nil, c.fail(log, sessionID, req.StudentID, "storage", err)
	}
	if err := os.MkdirAll(c.storage.TempDirectory, 0o755); err != nil {
		return nil, c.fail(log, sessionID, req.StudentID, "storage", err)
	}

	// The uncompressed intermediate stays in the temp directory; only
	// the final document ever lands under the storage root.
	base := fmt.Sprintf("%s_%s", sanitizeFilename(req.RollNo), time.Now().Format("20060102_150405"))
	rawPath := filepath.Join(c.storage.TempDirectory, base+".pdf")
	finalPath := filepath.Join(c.storage.Root, base+"_compressed.pdf")

	if err := writeDurable(rawPath, doc); err != nil {
		os.Remove(rawPath)
		return nil, c.fail(log, sessionID, req.StudentID, "write", err)
	}

	// The document must be independently readable before it may
	// replace the student's live reference.
	if n, err := api.PageCountFile(rawPath); err != nil || n != len(pages) {
		os.Remove(rawPath)
		if err == nil {
			err = fmt.Errorf("document has %d pages, expected %d", n, len(pages))
		}
		return nil, c.fail(log, sessionID, req.StudentID, "verify", err)
	}

	c.progress(Update{SessionID: sessionID, StudentID: req.StudentID,
		Stage: "compressing", Progress: 80, Message: "Compressing document"})

	res, err := c.compressor.Compress(ctx, rawPath, finalPath)
	if err != nil {
		os.Remove(rawPath)
		os.Remove(finalPath)
		return nil, c.fail(log, sessionID, req.StudentID, "compress", err)
	}

	// The uncompressed intermediate is superseded by the compressed
	// (or fallback-copied) file.
	if err := os.Remove(rawPath); err != nil {
		log.Warn("failed to remove uncompressed intermediate", "path", rawPath, "error", err)
	}

	stat, err := os.Stat(res.Path)
	if err != nil {
		os.Remove(res.Path)
		return nil, c.fail(log, sessionID, req.StudentID, "stat", err)
	}

	prevPath, err := c.store.ReplaceDocument(req.StudentID, roster.DocumentRecord{
		Path:        res.Path,
		GeneratedAt: time.Now(),
		PageCount:   len(pages),
		SizeBytes:   stat.Size(),
	})
	if err != nil {
		os.Remove(res.Path)
		return nil, c.fail(log, sessionID, req.StudentID, "record", err)
	}

	// Only now, with the new file durable and referenced, may the old
	// document go away.
	if prevPath != "" && prevPath != res.Path {
		if err := os.Remove(prevPath); err != nil && !os.IsNotExist(err) {
			log.Warn("failed to remove superseded document", "path", prevPath, "error", err)
		}
	}

	result := &Result{
		SessionID:  sessionID,
		PageCount:  len(pages),
		FileSize:   stat.Size(),
		Duration:   time.Since(start),
		Path:       res.Path,
		Compressed: res.Compressed,
	}

	c.progress(Update{SessionID: sessionID, StudentID: req.StudentID,
		Stage: "done", Progress: 100, Message: "Document ready"})
	log.Info("scan session completed",
		"pages", result.PageCount, "size", result.FileSize,
		"duration", result.Duration, "compressed", result.Compressed)

	return result, nil
}

func (c *Controller) validate(req Request) error {
	if len(req.Images) == 0 {
		return ErrNoImages
	}
	if len(req.Images) > c.cfg.MaxImages {
		return fmt.Errorf("%w: %d > %d", ErrTooManyImages, len(req.Images), c.cfg.MaxImages)
	}
	for i, buf := range req.Images {
		mime := http.DetectContentType(buf)
		if !c.cfg.AllowsType(mime) {
			return fmt.Errorf("%w: image %d is %s", ErrUnsupportedType, i, mime)
		}
	}
	return nil
}

func (c *Controller) fail(log *slog.Logger, sessionID, studentID, stage string, err error) error {
	log.Error("scan session failed", "stage", stage, "error", err)
	c.progress(Update{SessionID: sessionID, StudentID: studentID,
		Stage: stage, Error: err.Error()})
	return &Error{Stage: stage, Err: err}
}

func (c *Controller) progress(u Update) {
	if c.OnProgress != nil {
		c.OnProgress(u)
	}
}

// writeDurable writes the document and fsyncs before the file may be
// treated as the student's current document.
func writeDurable(path string, data []byte) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create document: %w", err)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		return fmt.Errorf("write document: %w", err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return fmt.Errorf("sync document: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close document: %w", err)
	}
	return nil
}

func sanitizeFilename(name string) string {
	result := make([]byte, 0, len(name))
	for i := 0; i < len(name); i++ {
		c := name[i]
		if (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9') ||
			c == '-' || c == '_' || c == '.' {
			result = append(result, c)
		} else if c == ' ' {
			result = append(result, '_')
		}
	}
	if len(result) == 0 {
		return "student"
	}
	return string(result)
}
