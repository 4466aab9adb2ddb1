// Package export persists extraction artifacts to the filesystem under a
// deterministic naming policy.
package export

import (
	"fmt"
	"image"
	"image/png"
	"os"
	"path/filepath"
	"strconv"

	"github.com/rs/zerolog"

	"github.com/pyhub-apps/pageextract-golang/pkg/extract"
	"github.com/pyhub-apps/pageextract-golang/pkg/ranges"
)

// DestinationError reports an unusable destination directory or path.
type DestinationError struct {
	Path string
	Err  error
}

func (e *DestinationError) Error() string {
	return fmt.Sprintf("destination %s unwritable: %v", e.Path, e.Err)
}

func (e *DestinationError) Unwrap() error { return e.Err }

// ExistsError reports a target path that already exists. Files are never
// overwritten implicitly; set Writer.Overwrite to allow it.
type ExistsError struct {
	Path string
}

func (e *ExistsError) Error() string {
	return fmt.Sprintf("destination %s already exists", e.Path)
}

// PartialWriteError reports a SeparateImages export where some files wrote
// and others did not. Callers receive both sides, never a silent partial
// success.
type PartialWriteError struct {
	Written []string
	Failed  []ranges.PageIndex
}

func (e *PartialWriteError) Error() string {
	return fmt.Sprintf("wrote %d files, %d pages failed", len(e.Written), len(e.Failed))
}

// Writer persists artifacts. The zero value writes PNG/PDF files and never
// overwrites.
type Writer struct {
	// Overwrite allows replacing existing target files.
	Overwrite bool

	// Logger receives write diagnostics; the zero value is silent.
	Logger zerolog.Logger
}

// Write persists an artifact into destDir using baseName and returns the
// written paths in order. CombinedImage and SubsetDocument write exactly one
// file; SeparateImages writes one file per page, suffixed with a zero-padded
// 1-based sequence number in selection order.
func (w *Writer) Write(artifact *extract.Artifact, destDir, baseName string) ([]string, error) {
	if err := ensureDir(destDir); err != nil {
		return nil, err
	}

	switch artifact.Kind {
	case extract.KindCombinedImage:
		path := filepath.Join(destDir, baseName+".png")
		if err := w.writePNG(path, artifact.Combined); err != nil {
			return nil, err
		}
		return []string{path}, nil

	case extract.KindSubsetDocument:
		path := filepath.Join(destDir, baseName+".pdf")
		if err := w.writeFile(path, artifact.Document); err != nil {
			return nil, err
		}
		return []string{path}, nil

	case extract.KindSeparateImages:
		return w.writeSeparate(artifact, destDir, baseName)

	default:
		return nil, fmt.Errorf("unsupported artifact kind %d", artifact.Kind)
	}
}

// writeSeparate writes one file per successfully rendered page. Pages whose
// render failed, and pages whose write fails, are reported together in a
// PartialWriteError alongside the paths that did write.
func (w *Writer) writeSeparate(artifact *extract.Artifact, destDir, baseName string) ([]string, error) {
	pad := len(strconv.Itoa(len(artifact.Pages)))
	var written []string
	var failed []ranges.PageIndex

	for i, pr := range artifact.Pages {
		if pr.Err != nil || pr.Image == nil {
			failed = append(failed, pr.Index)
			continue
		}

		path := separatePath(destDir, baseName, i+1, pad)
		if err := w.writePNG(path, pr.Image); err != nil {
			w.Logger.Warn().Str("path", path).Err(err).Msg("page write failed")
			failed = append(failed, pr.Index)
			continue
		}
		written = append(written, path)
	}

	if len(failed) > 0 {
		return written, &PartialWriteError{Written: written, Failed: failed}
	}
	return written, nil
}

// NewPageWriter prepares an incremental SeparateImages sink writing into
// destDir. total fixes the zero-padding width up front. Intended as the
// extraction engine's page sink, so a cancelled extraction leaves exactly
// the files for the pages that completed.
func (w *Writer) NewPageWriter(destDir, baseName string, total int) (*PageWriter, error) {
	if err := ensureDir(destDir); err != nil {
		return nil, err
	}
	return &PageWriter{
		writer: w,
		dir:    destDir,
		base:   baseName,
		pad:    len(strconv.Itoa(total)),
	}, nil
}

// PageWriter writes pages one at a time with sequential suffix numbering
// starting at 1.
type PageWriter struct {
	writer  *Writer
	dir     string
	base    string
	pad     int
	seq     int
	written []string
}

// WritePage persists the next page in sequence.
func (pw *PageWriter) WritePage(index ranges.PageIndex, img image.Image) error {
	pw.seq++
	path := separatePath(pw.dir, pw.base, pw.seq, pw.pad)
	if err := pw.writer.writePNG(path, img); err != nil {
		pw.seq--
		return err
	}
	pw.written = append(pw.written, path)
	return nil
}

// Written returns the paths written so far, in order.
func (pw *PageWriter) Written() []string {
	return pw.written
}

// separatePath builds "base_<seq>.png" with zero-padded sequence numbers.
func separatePath(dir, base string, seq, pad int) string {
	return filepath.Join(dir, fmt.Sprintf("%s_%0*d.png", base, pad, seq))
}

// ensureDir creates the destination directory when missing.
func ensureDir(dir string) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return &DestinationError{Path: dir, Err: err}
	}
	return nil
}

// writePNG encodes img to path, honoring the overwrite policy.
func (w *Writer) writePNG(path string, img image.Image) error {
	if err := w.checkExists(path); err != nil {
		return err
	}

	f, err := os.Create(path)
	if err != nil {
		return &DestinationError{Path: path, Err: err}
	}
	defer f.Close()

	if err := png.Encode(f, img); err != nil {
		return fmt.Errorf("failed to encode %s: %w", path, err)
	}
	w.Logger.Debug().Str("path", path).Msg("image written")
	return nil
}

// writeFile writes raw bytes to path, honoring the overwrite policy.
func (w *Writer) writeFile(path string, data []byte) error {
	if err := w.checkExists(path); err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return &DestinationError{Path: path, Err: err}
	}
	w.Logger.Debug().Str("path", path).Int("bytes", len(data)).Msg("document written")
	return nil
}

// checkExists enforces the no-implicit-overwrite policy.
func (w *Writer) checkExists(path string) error {
	if w.Overwrite {
		return nil
	}
	if _, err := os.Stat(path); err == nil {
		return &ExistsError{Path: path}
	}
	return nil
}
