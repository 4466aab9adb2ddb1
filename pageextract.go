// Package pageextract extracts user-selected page subsets from paginated
// documents and re-exports them as images or a new document.
package pageextract

import (
	"context"

	"github.com/pyhub-apps/pageextract-golang/pkg/extract"
	"github.com/pyhub-apps/pageextract-golang/pkg/ranges"
	"github.com/pyhub-apps/pageextract-golang/pkg/session"
	"github.com/pyhub-apps/pageextract-golang/pkg/source"
	"github.com/pyhub-apps/pageextract-golang/pkg/thumb"
)

// Re-export core types for the public API
type (
	PageIndex    = ranges.PageIndex
	Selection    = ranges.Selection
	Source       = source.Source
	PageFragment = source.PageFragment
	Converter    = source.Converter
	Format       = source.Format

	Engine   = extract.Engine
	Mode     = extract.Mode
	Artifact = extract.Artifact
	Options  = extract.Options

	CombinedImage  = extract.CombinedImage
	SeparateImages = extract.SeparateImages
	SubsetDocument = extract.SubsetDocument

	Cache   = thumb.Cache
	Tier    = thumb.Tier
	Session = session.Session
)

// Export mode and tier constants
const (
	TierLow  = thumb.TierLow
	TierHigh = thumb.TierHigh

	FormatDoc  = source.FormatDoc
	FormatDocx = source.FormatDocx
)

// Re-export entry points
var (
	ParseRange = ranges.Parse
	NewEngine  = extract.NewEngine
	NewCache   = thumb.New
	NewSession = session.New
)

// Open opens a PDF file and returns a Source.
func Open(filepath string) (Source, error) {
	return source.OpenPDFFile(filepath)
}

// OpenBytes opens PDF bytes and returns a Source.
func OpenBytes(data []byte) (Source, error) {
	return source.OpenPDF(data)
}

// OpenOffice converts an office document to PDF via the converter and opens
// the result.
func OpenOffice(ctx context.Context, data []byte, format Format, conv Converter) (Source, error) {
	return source.OpenOffice(ctx, data, format, conv)
}
