package extract

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"testing"

	"github.com/pyhub-apps/pageextract-golang/pkg/ranges"
	"github.com/pyhub-apps/pageextract-golang/pkg/source"
)

// fakeSource implements source.Source with synthetic rasters. Page i renders
// as a solid color at the size given by its dimensions entry; indices listed
// in failRender return a RenderError instead.
type fakeSource struct {
	id         string
	dims       []source.PageDim
	failRender map[ranges.PageIndex]bool
	fragments  func(sel ranges.Selection) ([]source.PageFragment, error)
}

func newFakeSource(pageWidths ...float64) *fakeSource {
	dims := make([]source.PageDim, len(pageWidths))
	for i, w := range pageWidths {
		dims[i] = source.PageDim{Width: w, Height: 72}
	}
	return &fakeSource{id: "fake", dims: dims, failRender: map[ranges.PageIndex]bool{}}
}

func pageColor(index ranges.PageIndex) color.RGBA {
	return color.RGBA{R: uint8(10 * (index + 1)), G: 0x20, B: 0x30, A: 0xFF}
}

func (f *fakeSource) ID() string                       { return f.id }
func (f *fakeSource) PageCount() int                   { return len(f.dims) }
func (f *fakeSource) PageDimensions() []source.PageDim { return f.dims }
func (f *fakeSource) GetMetadata() source.Metadata     { return source.Metadata{} }
func (f *fakeSource) Close() error                     { return nil }

func (f *fakeSource) RenderPage(ctx context.Context, index ranges.PageIndex, dpi float64) (image.Image, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if f.failRender[index] {
		return nil, &source.RenderError{Index: int(index), Err: errors.New("undecodable stream")}
	}
	w := int(f.dims[index].Width * dpi / 72)
	h := int(f.dims[index].Height * dpi / 72)
	return solid(w, h, pageColor(index)), nil
}

func (f *fakeSource) ExtractSubset(sel ranges.Selection) ([]source.PageFragment, error) {
	if f.fragments != nil {
		return f.fragments(sel)
	}
	return nil, errors.New("no fragments configured")
}

// makeOnePagePDF builds a minimal single-page PDF for assembly tests.
func makeOnePagePDF(width int) []byte {
	var buf bytes.Buffer
	var offsets []int

	writeObj := func(body string) {
		offsets = append(offsets, buf.Len())
		fmt.Fprintf(&buf, "%d 0 obj\n%s\nendobj\n", len(offsets), body)
	}

	buf.WriteString("%PDF-1.4\n")
	writeObj("<< /Type /Catalog /Pages 2 0 R >>")
	writeObj("<< /Type /Pages /Kids [3 0 R] /Count 1 >>")
	writeObj(fmt.Sprintf("<< /Type /Page /Parent 2 0 R /MediaBox [0 0 %d 792] /Resources << >> >>", width))

	xrefOffset := buf.Len()
	fmt.Fprintf(&buf, "xref\n0 %d\n", len(offsets)+1)
	buf.WriteString("0000000000 65535 f \n")
	for _, off := range offsets {
		fmt.Fprintf(&buf, "%010d 00000 n \n", off)
	}
	fmt.Fprintf(&buf, "trailer\n<< /Size %d /Root 1 0 R >>\nstartxref\n%d\n%%%%EOF\n",
		len(offsets)+1, xrefOffset)
	return buf.Bytes()
}

func TestExtractEmptySelection(t *testing.T) {
	engine := NewEngine()
	_, err := engine.Extract(context.Background(), newFakeSource(72), nil, CombinedImage{}, Options{})
	if !errors.Is(err, ErrEmptySelection) {
		t.Errorf("Expected ErrEmptySelection, got %v", err)
	}
}

func TestExtractIndexOutOfRange(t *testing.T) {
	engine := NewEngine()
	var idxErr *source.IndexError
	_, err := engine.Extract(context.Background(), newFakeSource(72, 72), ranges.Selection{0, 5}, SubsetDocument{}, Options{})
	if !errors.As(err, &idxErr) {
		t.Errorf("Expected IndexError for programmatic selection, got %v", err)
	}
}

func TestExtractCombined(t *testing.T) {
	// Page widths 100, 60, 80 points rendered at 72 dpi give the same
	// pixel widths; the canvas takes the widest and centers the rest.
	src := newFakeSource(100, 60, 80)
	engine := NewEngine()

	var lastDone, lastTotal int
	artifact, err := engine.Extract(context.Background(), src, ranges.Selection{0, 1, 2}, CombinedImage{DPI: 72}, Options{
		Progress: func(done, total int) { lastDone, lastTotal = done, total },
	})
	if err != nil {
		t.Fatalf("Extract failed: %v", err)
	}
	if artifact.Kind != KindCombinedImage {
		t.Fatalf("Expected combined image artifact, got kind %d", artifact.Kind)
	}
	if lastDone != 3 || lastTotal != 3 {
		t.Errorf("Expected final progress 3/3, got %d/%d", lastDone, lastTotal)
	}

	img := artifact.Combined
	b := img.Bounds()
	if b.Dx() != 100 || b.Dy() != 216 {
		t.Fatalf("Expected 100x216 canvas, got %dx%d", b.Dx(), b.Dy())
	}

	// Page 2 (60 wide) sits in rows 72..143, centered at columns 20..79.
	if got := img.At(b.Min.X+50, b.Min.Y+100); got != pageColor(1) {
		t.Errorf("Expected page 2 color at center, got %v", got)
	}
	if got := img.At(b.Min.X+5, b.Min.Y+100); got != canvasBackground {
		t.Errorf("Expected background beside centered page, got %v", got)
	}
	// Page 3 (80 wide) sits in rows 144..215, centered at columns 10..89.
	if got := img.At(b.Min.X+50, b.Min.Y+180); got != pageColor(2) {
		t.Errorf("Expected page 3 color, got %v", got)
	}
}

func TestExtractCombinedRenderFailureIsFatal(t *testing.T) {
	src := newFakeSource(72, 72)
	src.failRender[1] = true

	engine := NewEngine()
	var renderErr *source.RenderError
	_, err := engine.Extract(context.Background(), src, ranges.Selection{0, 1}, CombinedImage{DPI: 72}, Options{})
	if !errors.As(err, &renderErr) {
		t.Errorf("Expected fatal RenderError, got %v", err)
	}
}

func TestExtractSeparate(t *testing.T) {
	src := newFakeSource(72, 72, 72, 72)
	src.failRender[2] = true

	engine := NewEngine()
	sel := ranges.Selection{0, 2, 3}
	artifact, err := engine.Extract(context.Background(), src, sel, SeparateImages{DPI: 72}, Options{Workers: 2})
	if err != nil {
		t.Fatalf("Extract failed: %v", err)
	}

	if len(artifact.Pages) != 3 {
		t.Fatalf("Expected 3 page entries, got %d", len(artifact.Pages))
	}
	for i, pr := range artifact.Pages {
		if pr.Index != sel[i] {
			t.Errorf("Entry %d: expected index %d, got %d", i, sel[i], pr.Index)
		}
	}

	// The failing page is recorded, the rest still succeed.
	if artifact.Pages[1].Err == nil {
		t.Error("Expected a render error recorded for page index 2")
	}
	if artifact.Pages[0].Image == nil || artifact.Pages[2].Image == nil {
		t.Error("Expected successful renders for the other pages")
	}
	if artifact.Completed != 3 || artifact.Total != 3 {
		t.Errorf("Expected 3/3 processed, got %d/%d", artifact.Completed, artifact.Total)
	}
}

func TestExtractSeparateStreamingCancellation(t *testing.T) {
	src := newFakeSource(72, 72, 72, 72, 72)
	engine := NewEngine()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var delivered []ranges.PageIndex
	var lastDone, lastTotal int
	artifact, err := engine.Extract(ctx, src, ranges.Selection{0, 1, 2, 3, 4}, SeparateImages{DPI: 72}, Options{
		Progress: func(done, total int) { lastDone, lastTotal = done, total },
		PageSink: func(index ranges.PageIndex, img image.Image) error {
			delivered = append(delivered, index)
			if len(delivered) == 2 {
				cancel()
			}
			return nil
		},
	})

	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Expected context.Canceled, got %v", err)
	}
	if len(delivered) != 2 {
		t.Fatalf("Expected exactly 2 delivered pages, got %d", len(delivered))
	}
	if artifact.Completed != 2 || artifact.Total != 5 {
		t.Errorf("Expected progress 2/5, got %d/%d", artifact.Completed, artifact.Total)
	}
	if lastDone != 2 || lastTotal != 5 {
		t.Errorf("Expected last progress report 2/5, got %d/%d", lastDone, lastTotal)
	}
}

func TestExtractSeparateStreamingDoesNotRetainRasters(t *testing.T) {
	src := newFakeSource(72, 72)
	engine := NewEngine()

	artifact, err := engine.Extract(context.Background(), src, ranges.Selection{0, 1}, SeparateImages{DPI: 72}, Options{
		PageSink: func(index ranges.PageIndex, img image.Image) error { return nil },
	})
	if err != nil {
		t.Fatalf("Extract failed: %v", err)
	}
	for i, pr := range artifact.Pages {
		if pr.Image != nil {
			t.Errorf("Entry %d: expected raster released to the sink, found it retained", i)
		}
	}
}

func TestExtractSubsetDocument(t *testing.T) {
	src := newFakeSource(72, 72, 72)
	src.fragments = func(sel ranges.Selection) ([]source.PageFragment, error) {
		frags := make([]source.PageFragment, len(sel))
		for i, index := range sel {
			frags[i] = source.PageFragment{Index: index, Data: makeOnePagePDF(500 + 10*int(index))}
		}
		return frags, nil
	}

	engine := NewEngine()
	sel := ranges.Selection{0, 2}
	artifact, err := engine.Extract(context.Background(), src, sel, SubsetDocument{}, Options{})
	if err != nil {
		t.Fatalf("Extract failed: %v", err)
	}
	if artifact.Kind != KindSubsetDocument {
		t.Fatalf("Expected subset document artifact, got kind %d", artifact.Kind)
	}

	// Round-trip: the assembled document reopens with exactly the selected
	// pages, in selection order.
	reopened, err := source.OpenPDF(artifact.Document)
	if err != nil {
		t.Fatalf("Assembled document does not reopen: %v", err)
	}
	defer reopened.Close()

	if reopened.PageCount() != len(sel) {
		t.Fatalf("Expected %d pages, got %d", len(sel), reopened.PageCount())
	}
	for i, index := range sel {
		wantWidth := float64(500 + 10*int(index))
		if got := reopened.PageDimensions()[i].Width; got != wantWidth {
			t.Errorf("Page %d: expected width %.0f, got %.2f", i, wantWidth, got)
		}
	}
}

func TestExtractSubsetAssemblyFailed(t *testing.T) {
	src := newFakeSource(72, 72)
	src.fragments = func(sel ranges.Selection) ([]source.PageFragment, error) {
		return nil, errors.New("unusable fragment")
	}

	engine := NewEngine()
	var asmErr *SubsetAssemblyError
	_, err := engine.Extract(context.Background(), src, ranges.Selection{0, 1}, SubsetDocument{}, Options{})
	if !errors.As(err, &asmErr) {
		t.Errorf("Expected SubsetAssemblyError, got %v", err)
	}
}
