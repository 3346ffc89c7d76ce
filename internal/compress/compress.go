// Package compress runs a best-effort external size-reduction pass over
// an assembled document.
package compress

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"time"

	"github.com/mkrall/examscan/internal/config"
)

// Result reports where the final document landed and whether the
// external tool actually shrank it.
type Result struct {
	Compressed bool
	Path       string
}

// Compressor invokes Ghostscript with a bounded timeout. Any failure
// (tool missing, timeout, non-zero exit, unusable output) degrades to a
// verbatim copy of the input; compression is never a reason for a scan
// to fail.
type Compressor struct {
	tool    string
	timeout time.Duration
	enabled bool
}

func New(cfg config.CompressConfig) *Compressor {
	timeout := cfg.Timeout.Duration()
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Compressor{
		tool:    cfg.Tool,
		timeout: timeout,
		enabled: cfg.Enabled,
	}
}

// Compress writes a size-reduced (or, on any failure, verbatim) copy of
// inputPath to outputPath. The returned error covers only the fallback
// copy itself; a failed compression run is not an error.
func (c *Compressor) Compress(ctx context.Context, inputPath, outputPath string) (Result, error) {
	if !c.enabled {
		return c.fallbackCopy(inputPath, outputPath)
	}

	toolPath, err := exec.LookPath(c.tool)
	if err != nil {
		slog.Warn("compression tool not found, copying document verbatim",
			"tool", c.tool, "error", err)
		return c.fallbackCopy(inputPath, outputPath)
	}

	runCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, toolPath,
		"-sDEVICE=pdfwrite",
		"-dCompatibilityLevel=1.4",
		"-dPDFSETTINGS=/ebook",
		"-dNOPAUSE",
		"-dQUIET",
		"-dBATCH",
		"-sOutputFile="+outputPath,
		inputPath,
	)

	start := time.Now()
	if err := cmd.Run(); err != nil {
		slog.Warn("compression tool failed, copying document verbatim",
			"tool", c.tool, "duration", time.Since(start), "error", err)
		os.Remove(outputPath)
		return c.fallbackCopy(inputPath, outputPath)
	}

	stat, err := os.Stat(outputPath)
	if err != nil || stat.Size() == 0 {
		slog.Warn("compression produced no usable output, copying document verbatim",
			"tool", c.tool)
		os.Remove(outputPath)
		return c.fallbackCopy(inputPath, outputPath)
	}

	slog.Debug("document compressed",
		"tool", c.tool, "size", stat.Size(), "duration", time.Since(start))
	return Result{Compressed: true, Path: outputPath}, nil
}

// fallbackCopy copies the uncompressed input verbatim so the output
// path always receives valid content.
func (c *Compressor) fallbackCopy(inputPath, outputPath string) (Result, error) {
	in, err := os.Open(inputPath)
	if err != nil {
		return Result{}, fmt.Errorf("open input for copy: %w", err)
	}
	defer in.Close()

	out, err := os.Create(outputPath)
	if err != nil {
		return Result{}, fmt.Errorf("create output: %w", err)
	}

	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		os.Remove(outputPath)
		return Result{}, fmt.Errorf("copy document: %w", err)
	}
	if err := out.Close(); err != nil {
		os.Remove(outputPath)
		return Result{}, fmt.Errorf("close output: %w", err)
	}

	return Result{Compressed: false, Path: outputPath}, nil
}
