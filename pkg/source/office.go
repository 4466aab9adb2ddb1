package source

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
)

// Format identifies a supported office document format.
type Format string

const (
	FormatDoc  Format = "doc"
	FormatDocx Format = "docx"
)

// DefaultConvertTimeout bounds a single office-to-PDF conversion.
const DefaultConvertTimeout = 60 * time.Second

// Converter turns office document bytes into PDF bytes. Implementations are
// supplied by the surrounding application; the core does not manage their
// installation or discovery.
type Converter interface {
	Convert(ctx context.Context, input []byte, format Format) ([]byte, error)
}

// OpenOffice converts an office document to PDF via the given converter and
// opens the result. Conversion failure surfaces as ConversionError and no
// source is constructed.
func OpenOffice(ctx context.Context, data []byte, format Format, conv Converter) (*PDFSource, error) {
	pdfBytes, err := conv.Convert(ctx, data, format)
	if err != nil {
		return nil, &ConversionError{Format: format, Err: err}
	}
	return OpenPDF(pdfBytes)
}

// SofficeConverter converts office documents by invoking a local LibreOffice
// binary in headless mode.
type SofficeConverter struct {
	// Path is the soffice binary; defaults to "soffice" on PATH.
	Path string

	// Timeout bounds one conversion; defaults to DefaultConvertTimeout.
	// On timeout the process is killed and the error wraps
	// context.DeadlineExceeded.
	Timeout time.Duration

	// Logger receives conversion diagnostics; defaults to a no-op logger.
	Logger zerolog.Logger
}

// Convert runs the converter and returns the produced PDF bytes.
func (c *SofficeConverter) Convert(ctx context.Context, input []byte, format Format) ([]byte, error) {
	binary := c.Path
	if binary == "" {
		binary = "soffice"
	}
	timeout := c.Timeout
	if timeout <= 0 {
		timeout = DefaultConvertTimeout
	}

	// soffice converts files on disk, so stage the input in a temp dir.
	tmpDir, err := os.MkdirTemp("", "pageextract-convert-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create temp directory: %w", err)
	}
	defer os.RemoveAll(tmpDir)

	inputPath := filepath.Join(tmpDir, "input."+string(format))
	if err := os.WriteFile(inputPath, input, 0644); err != nil {
		return nil, fmt.Errorf("failed to stage input file: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, binary,
		"--headless", "--convert-to", "pdf", "--outdir", tmpDir, inputPath)
	output, err := cmd.CombinedOutput()

	if ctx.Err() == context.DeadlineExceeded {
		c.Logger.Warn().Dur("timeout", timeout).Msg("office conversion timed out")
		return nil, fmt.Errorf("conversion timed out after %v: %w", timeout, context.DeadlineExceeded)
	}
	if err != nil {
		return nil, fmt.Errorf("soffice failed: %v\noutput: %s", err, output)
	}

	pdfPath := filepath.Join(tmpDir, "input.pdf")
	pdfBytes, err := os.ReadFile(pdfPath)
	if err != nil {
		return nil, fmt.Errorf("soffice produced no output: %w", err)
	}

	c.Logger.Debug().
		Str("format", string(format)).
		Int("pdf_bytes", len(pdfBytes)).
		Msg("office conversion complete")
	return pdfBytes, nil
}
