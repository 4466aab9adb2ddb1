// Package source normalizes heterogeneous paginated documents into a uniform
// ordered sequence of renderable pages.
package source

import (
	"context"
	"image"

	"github.com/pyhub-apps/pageextract-golang/pkg/ranges"
)

// Source presents a paginated document as an ordered page sequence.
// Callers never branch on the underlying format.
type Source interface {
	// ID returns a unique identity for this open document instance.
	ID() string

	// PageCount returns the total number of pages.
	PageCount() int

	// PageDimensions returns the media box size of every page, in points.
	PageDimensions() []PageDim

	// GetMetadata returns the document metadata.
	GetMetadata() Metadata

	// RenderPage rasterizes one page at the given pixel density.
	// Repeated calls with the same arguments on an unmodified source
	// return pixel-identical output.
	RenderPage(ctx context.Context, index ranges.PageIndex, dpi float64) (image.Image, error)

	// ExtractSubset returns the selected pages as reassemblable fragments,
	// preserving each page's original content model. Fragment order matches
	// the selection order.
	ExtractSubset(sel ranges.Selection) ([]PageFragment, error)

	// Close releases resources associated with the document.
	Close() error
}

// PageDim holds a page's media box size in PDF points (1/72 inch).
type PageDim struct {
	Width  float64
	Height float64
}

// PageFragment is a single extracted page in document form, suitable for
// reassembly into a new document without rasterization.
type PageFragment struct {
	Index ranges.PageIndex
	Data  []byte
}

// Metadata represents document metadata.
type Metadata struct {
	Title    string
	Author   string
	Subject  string
	Creator  string
	Producer string
}
