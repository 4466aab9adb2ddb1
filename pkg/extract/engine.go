// Package extract assembles export artifacts from a document source and a
// validated page selection.
package extract

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"math"
	"sync/atomic"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/pyhub-apps/pageextract-golang/pkg/ranges"
	"github.com/pyhub-apps/pageextract-golang/pkg/source"
)

// DefaultDPI is the raster density used when a mode does not set one.
const DefaultDPI = 150

// ErrEmptySelection is returned for an empty page selection. The range parser
// never produces one, but selections may also arrive from programmatic
// callers.
var ErrEmptySelection = errors.New("empty page selection")

// SubsetAssemblyError reports a failed subset document assembly. Assembly is
// atomic: no partial document is ever produced.
type SubsetAssemblyError struct {
	Err error
}

func (e *SubsetAssemblyError) Error() string {
	return fmt.Sprintf("subset assembly failed: %v", e.Err)
}

func (e *SubsetAssemblyError) Unwrap() error { return e.Err }

// Mode selects the shape of the output artifact.
type Mode interface {
	isMode()
}

// CombinedImage stacks all selected pages vertically into one raster image.
type CombinedImage struct {
	DPI float64
}

// SeparateImages renders each selected page into its own raster image.
type SeparateImages struct {
	DPI float64
}

// SubsetDocument assembles the selected pages into a new document,
// preserving their original resolution-independent content.
type SubsetDocument struct{}

func (CombinedImage) isMode()  {}
func (SeparateImages) isMode() {}
func (SubsetDocument) isMode() {}

// Kind tags the artifact variant.
type Kind int

const (
	KindCombinedImage Kind = iota
	KindSeparateImages
	KindSubsetDocument
)

// PageRender is one rendered page of a SeparateImages artifact. Err is set
// for pages that failed to render; Image is nil when a page sink consumed
// the raster instead of the artifact retaining it.
type PageRender struct {
	Index ranges.PageIndex
	Image image.Image
	Err   error
}

// Artifact is the in-memory result of an extraction, consumed once by an
// export writer and then discarded.
type Artifact struct {
	Kind     Kind
	Combined image.Image  // KindCombinedImage
	Pages    []PageRender // KindSeparateImages, in selection order
	Document []byte       // KindSubsetDocument

	// Completed counts pages fully processed; on cancellation it reports
	// how far the extraction got.
	Completed int
	Total     int
}

// Options tunes a single extraction.
type Options struct {
	// Progress is invoked after each completed page with (done, total).
	// It may be called from worker goroutines.
	Progress func(done, total int)

	// PageSink, when set for SeparateImages, receives each raster as soon
	// as it is rendered, in selection order; the artifact then records the
	// page without retaining the raster. This keeps memory bounded for
	// large selections and lets cancellation preserve the pages already
	// delivered.
	PageSink func(index ranges.PageIndex, img image.Image) error

	// Workers bounds the render pool for batch SeparateImages extraction.
	Workers int
}

const defaultWorkers = 4

// Engine extracts a page selection from a document source into an artifact.
type Engine struct {
	Logger zerolog.Logger
}

// NewEngine creates an engine with a no-op logger.
func NewEngine() *Engine {
	return &Engine{Logger: zerolog.Nop()}
}

// Extract produces the artifact for the given mode. It is long-running for
// large selections and expected to run off the interactive thread; the
// cancellation signal is checked between pages, never mid-page.
//
// On cancellation CombinedImage and SubsetDocument discard all partial work.
// SeparateImages returns the partial artifact alongside the context error so
// the caller knows how many pages completed.
func (e *Engine) Extract(ctx context.Context, src source.Source, sel ranges.Selection, mode Mode, opts Options) (*Artifact, error) {
	if len(sel) == 0 {
		return nil, ErrEmptySelection
	}
	for _, index := range sel {
		if index < 0 || int(index) >= src.PageCount() {
			return nil, &source.IndexError{Index: int(index), PageCount: src.PageCount()}
		}
	}

	switch m := mode.(type) {
	case CombinedImage:
		return e.extractCombined(ctx, src, sel, dpiOrDefault(m.DPI), opts)
	case SeparateImages:
		return e.extractSeparate(ctx, src, sel, dpiOrDefault(m.DPI), opts)
	case SubsetDocument:
		return e.extractSubset(ctx, src, sel, opts)
	default:
		return nil, fmt.Errorf("unsupported export mode %T", mode)
	}
}

func dpiOrDefault(dpi float64) float64 {
	if dpi <= 0 {
		return DefaultDPI
	}
	return dpi
}

// extractCombined renders the selection page by page onto a running canvas.
// Any page failure is fatal: a single composed artifact cannot represent a
// missing page safely.
func (e *Engine) extractCombined(ctx context.Context, src source.Source, sel ranges.Selection, dpi float64, opts Options) (*Artifact, error) {
	total := len(sel)

	// Pre-size the canvas from page geometry so it rarely regrows.
	width, height := 0, 0
	dims := src.PageDimensions()
	for _, index := range sel {
		if int(index) < len(dims) {
			width = maxInt(width, pixels(dims[index].Width, dpi))
			height += pixels(dims[index].Height, dpi)
		}
	}
	c := newCanvas(width, height)

	for done, index := range sel {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		img, err := src.RenderPage(ctx, index, dpi)
		if err != nil {
			return nil, fmt.Errorf("combined image aborted: %w", err)
		}
		c.append(img)

		e.Logger.Debug().Int("page", int(index)+1).Int("done", done+1).Int("total", total).Msg("page composed")
		if opts.Progress != nil {
			opts.Progress(done+1, total)
		}
	}

	return &Artifact{
		Kind:      KindCombinedImage,
		Combined:  c.image(),
		Completed: total,
		Total:     total,
	}, nil
}

// extractSeparate renders each selected page independently. Per-page render
// failures are recorded and the batch continues.
func (e *Engine) extractSeparate(ctx context.Context, src source.Source, sel ranges.Selection, dpi float64, opts Options) (*Artifact, error) {
	if opts.PageSink != nil {
		return e.extractSeparateStreaming(ctx, src, sel, dpi, opts)
	}

	total := len(sel)
	pages := make([]PageRender, total)
	var done atomic.Int64

	g, gctx := errgroup.WithContext(ctx)
	workers := opts.Workers
	if workers <= 0 {
		workers = defaultWorkers
	}
	g.SetLimit(workers)

	for i, index := range sel {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}

			img, err := src.RenderPage(gctx, index, dpi)
			pages[i] = PageRender{Index: index, Image: img, Err: err}
			if err != nil {
				// Recorded as a partial failure; the batch continues.
				e.Logger.Warn().Int("page", int(index)+1).Err(err).Msg("page render failed")
			}

			n := int(done.Add(1))
			if opts.Progress != nil {
				opts.Progress(n, total)
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return &Artifact{
			Kind:      KindSeparateImages,
			Pages:     compactRenders(pages),
			Completed: int(done.Load()),
			Total:     total,
		}, err
	}

	return &Artifact{
		Kind:      KindSeparateImages,
		Pages:     pages,
		Completed: total,
		Total:     total,
	}, nil
}

// extractSeparateStreaming delivers rasters to the page sink one at a time,
// in selection order, without retaining them. Cancellation preserves
// everything already delivered.
func (e *Engine) extractSeparateStreaming(ctx context.Context, src source.Source, sel ranges.Selection, dpi float64, opts Options) (*Artifact, error) {
	total := len(sel)
	pages := make([]PageRender, 0, total)
	completed := 0

	for _, index := range sel {
		if err := ctx.Err(); err != nil {
			return &Artifact{
				Kind:      KindSeparateImages,
				Pages:     pages,
				Completed: completed,
				Total:     total,
			}, err
		}

		img, err := src.RenderPage(ctx, index, dpi)
		if err != nil {
			e.Logger.Warn().Int("page", int(index)+1).Err(err).Msg("page render failed")
			pages = append(pages, PageRender{Index: index, Err: err})
			continue
		}

		if err := opts.PageSink(index, img); err != nil {
			return &Artifact{
				Kind:      KindSeparateImages,
				Pages:     pages,
				Completed: completed,
				Total:     total,
			}, fmt.Errorf("page sink failed for page %d: %w", index+1, err)
		}

		pages = append(pages, PageRender{Index: index})
		completed++
		if opts.Progress != nil {
			opts.Progress(completed, total)
		}
	}

	return &Artifact{
		Kind:      KindSeparateImages,
		Pages:     pages,
		Completed: completed,
		Total:     total,
	}, nil
}

// extractSubset reassembles page fragments into a new document. This never
// rasterizes and fails atomically.
func (e *Engine) extractSubset(ctx context.Context, src source.Source, sel ranges.Selection, opts Options) (*Artifact, error) {
	total := len(sel)
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	fragments, err := src.ExtractSubset(sel)
	if err != nil {
		return nil, &SubsetAssemblyError{Err: err}
	}
	if len(fragments) != total {
		return nil, &SubsetAssemblyError{Err: fmt.Errorf("expected %d fragments, got %d", total, len(fragments))}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var docBytes []byte
	if total == 1 {
		docBytes = fragments[0].Data
	} else {
		readers := make([]io.ReadSeeker, len(fragments))
		for i, frag := range fragments {
			readers[i] = bytes.NewReader(frag.Data)
		}

		var buf bytes.Buffer
		if err := api.MergeRaw(readers, &buf, false, model.NewDefaultConfiguration()); err != nil {
			return nil, &SubsetAssemblyError{Err: err}
		}
		docBytes = buf.Bytes()
	}

	e.Logger.Debug().Int("pages", total).Int("bytes", len(docBytes)).Msg("subset document assembled")
	if opts.Progress != nil {
		opts.Progress(total, total)
	}

	return &Artifact{
		Kind:      KindSubsetDocument,
		Document:  docBytes,
		Completed: total,
		Total:     total,
	}, nil
}

// compactRenders drops trailing zero-value slots left by workers that never
// ran before cancellation.
func compactRenders(pages []PageRender) []PageRender {
	out := pages[:0]
	for _, p := range pages {
		if p.Image != nil || p.Err != nil {
			out = append(out, p)
		}
	}
	return out
}

// pixels converts a length in points to pixels at the given density.
func pixels(points, dpi float64) int {
	return int(math.Ceil(points * dpi / 72))
}
