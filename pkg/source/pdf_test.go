package source

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image/png"
	"strings"
	"testing"

	"github.com/pyhub-apps/pageextract-golang/pkg/ranges"
)

// makePDF builds a minimal valid PDF with n empty pages. Page i has a media
// box width of 500+10*i points so tests can tell pages apart by geometry.
func makePDF(n int) []byte {
	var buf bytes.Buffer
	var offsets []int

	writeObj := func(body string) {
		offsets = append(offsets, buf.Len())
		fmt.Fprintf(&buf, "%d 0 obj\n%s\nendobj\n", len(offsets), body)
	}

	buf.WriteString("%PDF-1.4\n")
	writeObj("<< /Type /Catalog /Pages 2 0 R >>")

	kids := make([]string, n)
	for i := 0; i < n; i++ {
		kids[i] = fmt.Sprintf("%d 0 R", 3+i)
	}
	writeObj(fmt.Sprintf("<< /Type /Pages /Kids [%s] /Count %d >>", strings.Join(kids, " "), n))

	for i := 0; i < n; i++ {
		writeObj(fmt.Sprintf("<< /Type /Page /Parent 2 0 R /MediaBox [0 0 %d 792] /Resources << >> >>", 500+10*i))
	}

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

func TestOpenPDF(t *testing.T) {
	src, err := OpenPDF(makePDF(3))
	if err != nil {
		t.Fatalf("Failed to open PDF: %v", err)
	}
	defer src.Close()

	if src.PageCount() != 3 {
		t.Errorf("Expected 3 pages, got %d", src.PageCount())
	}
	if src.ID() == "" {
		t.Error("Expected a non-empty source ID")
	}

	dims := src.PageDimensions()
	if len(dims) != 3 {
		t.Fatalf("Expected 3 page dimensions, got %d", len(dims))
	}
	for i, d := range dims {
		want := float64(500 + 10*i)
		if d.Width != want {
			t.Errorf("Page %d: expected width %.0f, got %.2f", i, want, d.Width)
		}
		if d.Height != 792 {
			t.Errorf("Page %d: expected height 792, got %.2f", i, d.Height)
		}
	}
}

func TestOpenPDFUniqueIDs(t *testing.T) {
	a, err := OpenPDF(makePDF(1))
	if err != nil {
		t.Fatalf("Failed to open PDF: %v", err)
	}
	defer a.Close()

	b, err := OpenPDF(makePDF(1))
	if err != nil {
		t.Fatalf("Failed to open PDF: %v", err)
	}
	defer b.Close()

	if a.ID() == b.ID() {
		t.Errorf("Expected distinct IDs for distinct open instances, got %q twice", a.ID())
	}
}

func TestOpenCorrupt(t *testing.T) {
	_, err := OpenPDF([]byte("this is not a pdf"))
	if !errors.Is(err, ErrCorruptDocument) {
		t.Errorf("Expected ErrCorruptDocument, got %v", err)
	}
}

func TestRenderPageIdempotent(t *testing.T) {
	src, err := OpenPDF(makePDF(2))
	if err != nil {
		t.Fatalf("Failed to open PDF: %v", err)
	}
	defer src.Close()

	encode := func() []byte {
		img, err := src.RenderPage(context.Background(), 0, 72)
		if err != nil {
			t.Fatalf("RenderPage failed: %v", err)
		}
		var buf bytes.Buffer
		if err := png.Encode(&buf, img); err != nil {
			t.Fatalf("Failed to encode render: %v", err)
		}
		return buf.Bytes()
	}

	first := encode()
	second := encode()
	if !bytes.Equal(first, second) {
		t.Error("Expected pixel-identical output for repeated renders")
	}
}

func TestRenderPageOutOfRange(t *testing.T) {
	src, err := OpenPDF(makePDF(2))
	if err != nil {
		t.Fatalf("Failed to open PDF: %v", err)
	}
	defer src.Close()

	var idxErr *IndexError
	if _, err := src.RenderPage(context.Background(), 2, 72); !errors.As(err, &idxErr) {
		t.Fatalf("Expected IndexError, got %v", err)
	}
	if idxErr.Index != 2 || idxErr.PageCount != 2 {
		t.Errorf("Unexpected index error contents: %v", idxErr)
	}
}

func TestRenderAfterClose(t *testing.T) {
	src, err := OpenPDF(makePDF(1))
	if err != nil {
		t.Fatalf("Failed to open PDF: %v", err)
	}
	src.Close()

	if _, err := src.RenderPage(context.Background(), 0, 72); !errors.Is(err, ErrClosed) {
		t.Errorf("Expected ErrClosed, got %v", err)
	}
}

func TestExtractSubsetRoundTrip(t *testing.T) {
	src, err := OpenPDF(makePDF(5))
	if err != nil {
		t.Fatalf("Failed to open PDF: %v", err)
	}
	defer src.Close()

	sel := ranges.Selection{0, 2, 4}
	fragments, err := src.ExtractSubset(sel)
	if err != nil {
		t.Fatalf("ExtractSubset failed: %v", err)
	}
	if len(fragments) != len(sel) {
		t.Fatalf("Expected %d fragments, got %d", len(sel), len(fragments))
	}

	for i, frag := range fragments {
		if frag.Index != sel[i] {
			t.Errorf("Fragment %d: expected index %d, got %d", i, sel[i], frag.Index)
		}

		// Each fragment must reopen as a valid one-page document whose
		// geometry matches the page it came from.
		page, err := OpenPDF(frag.Data)
		if err != nil {
			t.Fatalf("Fragment %d does not reopen: %v", i, err)
		}
		if page.PageCount() != 1 {
			t.Errorf("Fragment %d: expected 1 page, got %d", i, page.PageCount())
		}
		wantWidth := float64(500 + 10*int(sel[i]))
		if dims := page.PageDimensions(); len(dims) == 1 && dims[0].Width != wantWidth {
			t.Errorf("Fragment %d: expected width %.0f, got %.2f", i, wantWidth, dims[0].Width)
		}
		page.Close()
	}
}

func TestExtractSubsetOutOfRange(t *testing.T) {
	src, err := OpenPDF(makePDF(2))
	if err != nil {
		t.Fatalf("Failed to open PDF: %v", err)
	}
	defer src.Close()

	var idxErr *IndexError
	if _, err := src.ExtractSubset(ranges.Selection{0, 7}); !errors.As(err, &idxErr) {
		t.Errorf("Expected IndexError, got %v", err)
	}
}
