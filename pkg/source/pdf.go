package source

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"os"
	"strconv"
	"strings"
	"sync"

	"github.com/gen2brain/go-fitz"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/rs/xid"

	"github.com/pyhub-apps/pageextract-golang/pkg/ranges"
)

// PDFSource implements the Source interface for PDF documents. pdfcpu backs
// structural operations (validation, page geometry, subset extraction) and
// MuPDF backs rasterization.
type PDFSource struct {
	id        string
	data      []byte
	conf      *model.Configuration
	doc       *fitz.Document
	pageCount int
	dims      []PageDim
	metadata  Metadata

	// MuPDF contexts are not safe for concurrent use; renders are
	// serialized on mu. Structural reads work on data directly.
	mu     sync.Mutex
	closed bool
}

// OpenPDF opens PDF bytes and returns a Source.
func OpenPDF(data []byte) (*PDFSource, error) {
	conf := model.NewDefaultConfiguration()

	// Parse and validate with pdfcpu.
	ctx, err := api.ReadContext(bytes.NewReader(data), conf)
	if err != nil {
		if isEncryptionErr(err) {
			return nil, fmt.Errorf("%w: %v", ErrEncrypted, err)
		}
		return nil, fmt.Errorf("%w: %v", ErrCorruptDocument, err)
	}
	if err := api.ValidateContext(ctx); err != nil {
		if isEncryptionErr(err) {
			return nil, fmt.Errorf("%w: %v", ErrEncrypted, err)
		}
		return nil, fmt.Errorf("%w: %v", ErrCorruptDocument, err)
	}

	// Page geometry for layout decisions, without rasterizing anything.
	pageDims, err := ctx.PageDims()
	if err != nil {
		return nil, fmt.Errorf("%w: reading page dimensions: %v", ErrCorruptDocument, err)
	}
	dims := make([]PageDim, len(pageDims))
	for i, d := range pageDims {
		dims[i] = PageDim{Width: d.Width, Height: d.Height}
	}

	// Open a render handle with MuPDF.
	doc, err := fitz.NewFromMemory(data)
	if err != nil {
		return nil, fmt.Errorf("%w: opening render handle: %v", ErrCorruptDocument, err)
	}

	src := &PDFSource{
		id:        xid.New().String(),
		data:      data,
		conf:      conf,
		doc:       doc,
		pageCount: ctx.PageCount,
		dims:      dims,
	}
	src.extractMetadata()

	return src, nil
}

// OpenPDFFile opens a PDF file and returns a Source.
func OpenPDFFile(filepath string) (*PDFSource, error) {
	data, err := os.ReadFile(filepath)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}
	return OpenPDF(data)
}

// extractMetadata pulls document info from the render handle.
func (s *PDFSource) extractMetadata() {
	m := s.doc.Metadata()
	s.metadata = Metadata{
		Title:    m["title"],
		Author:   m["author"],
		Subject:  m["subject"],
		Creator:  m["creator"],
		Producer: m["producer"],
	}
}

// ID returns a unique identity for this open document instance.
func (s *PDFSource) ID() string {
	return s.id
}

// PageCount returns the total number of pages.
func (s *PDFSource) PageCount() int {
	return s.pageCount
}

// PageDimensions returns the media box size of every page, in points.
func (s *PDFSource) PageDimensions() []PageDim {
	return s.dims
}

// GetMetadata returns the document metadata.
func (s *PDFSource) GetMetadata() Metadata {
	return s.metadata
}

// RenderPage rasterizes one page at the given pixel density.
func (s *PDFSource) RenderPage(ctx context.Context, index ranges.PageIndex, dpi float64) (image.Image, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if index < 0 || int(index) >= s.pageCount {
		return nil, &IndexError{Index: int(index), PageCount: s.pageCount}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrClosed
	}

	img, err := s.doc.ImageDPI(int(index), dpi)
	if err != nil {
		return nil, &RenderError{Index: int(index), Err: err}
	}
	return img, nil
}

// ExtractSubset returns the selected pages as single-page PDF fragments,
// in selection order, preserving vector content.
func (s *PDFSource) ExtractSubset(sel ranges.Selection) ([]PageFragment, error) {
	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return nil, ErrClosed
	}

	fragments := make([]PageFragment, 0, len(sel))
	for _, index := range sel {
		if index < 0 || int(index) >= s.pageCount {
			return nil, &IndexError{Index: int(index), PageCount: s.pageCount}
		}

		var buf bytes.Buffer
		pages := []string{strconv.Itoa(int(index) + 1)}
		if err := api.Trim(bytes.NewReader(s.data), &buf, pages, s.conf); err != nil {
			return nil, fmt.Errorf("extract page %d: %w", index+1, err)
		}
		fragments = append(fragments, PageFragment{Index: index, Data: buf.Bytes()})
	}
	return fragments, nil
}

// Close releases resources associated with the document.
func (s *PDFSource) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true

	err := s.doc.Close()
	s.doc = nil
	s.data = nil
	return err
}

// isEncryptionErr reports whether a pdfcpu error indicates password-protected
// content. pdfcpu does not expose a sentinel for this.
func isEncryptionErr(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "password") || strings.Contains(msg, "encrypt")
}
