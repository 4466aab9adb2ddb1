// Command extract_pages extracts a page selection from a PDF or DOC/DOCX
// file as a combined image, separate images, or a new PDF.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"

	pageextract "github.com/pyhub-apps/pageextract-golang"
	"github.com/pyhub-apps/pageextract-golang/pkg/export"
	"github.com/pyhub-apps/pageextract-golang/pkg/extract"
	"github.com/pyhub-apps/pageextract-golang/pkg/source"
)

func main() {
	// Optional .env for converter and render defaults.
	_ = godotenv.Load()

	var (
		rangeText = flag.String("range", "", "page range, e.g. 1,3-5,7 (required)")
		mode      = flag.String("mode", "pdf", "export mode: combined, separate, pdf")
		outDir    = flag.String("out", "extracted_images", "output directory")
		baseName  = flag.String("name", "", "output base name (default: input file name)")
		dpi       = flag.Float64("dpi", envFloat("EXTRACT_DPI", extract.DefaultDPI), "render density for image modes")
		overwrite = flag.Bool("overwrite", false, "replace existing output files")
		verbose   = flag.Bool("v", false, "verbose logging")
	)
	flag.Parse()

	log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()
	if !*verbose {
		log = log.Level(zerolog.InfoLevel)
	}

	if flag.NArg() < 1 || *rangeText == "" {
		fmt.Fprintln(os.Stderr, "Usage: extract_pages -range 1,3-5 [-mode combined|separate|pdf] <file>")
		os.Exit(1)
	}
	inputPath := flag.Arg(0)

	src, err := openInput(inputPath, log)
	if err != nil {
		log.Fatal().Err(err).Str("file", inputPath).Msg("failed to open document")
	}
	defer src.Close()
	log.Info().Int("pages", src.PageCount()).Str("file", filepath.Base(inputPath)).Msg("document loaded")

	sel, err := pageextract.ParseRange(*rangeText, src.PageCount())
	if err != nil {
		log.Fatal().Err(err).Msg("invalid page range")
	}
	log.Info().Str("selection", sel.String()).Int("count", len(sel)).Msg("pages selected")

	base := *baseName
	if base == "" {
		base = strings.TrimSuffix(filepath.Base(inputPath), filepath.Ext(inputPath))
	}

	engine := pageextract.NewEngine()
	engine.Logger = log
	writer := &export.Writer{Overwrite: *overwrite, Logger: log}
	opts := extract.Options{
		Progress: func(done, total int) {
			log.Info().Msgf("progress %d/%d", done, total)
		},
	}

	var paths []string
	switch *mode {
	case "combined":
		artifact, err := engine.Extract(context.Background(), src, sel, extract.CombinedImage{DPI: *dpi}, opts)
		if err != nil {
			log.Fatal().Err(err).Msg("extraction failed")
		}
		paths, err = writer.Write(artifact, *outDir, base)
		if err != nil {
			log.Fatal().Err(err).Msg("write failed")
		}

	case "separate":
		// Stream pages straight to disk so large selections stay
		// memory-bounded and cancellation keeps finished files.
		pw, err := writer.NewPageWriter(*outDir, base, len(sel))
		if err != nil {
			log.Fatal().Err(err).Msg("write failed")
		}
		opts.PageSink = pw.WritePage
		artifact, err := engine.Extract(context.Background(), src, sel, extract.SeparateImages{DPI: *dpi}, opts)
		if err != nil {
			log.Fatal().Err(err).Msg("extraction failed")
		}
		for _, pr := range artifact.Pages {
			if pr.Err != nil {
				log.Warn().Int("page", int(pr.Index)+1).Err(pr.Err).Msg("page skipped")
			}
		}
		paths = pw.Written()

	case "pdf":
		artifact, err := engine.Extract(context.Background(), src, sel, extract.SubsetDocument{}, opts)
		if err != nil {
			log.Fatal().Err(err).Msg("extraction failed")
		}
		paths, err = writer.Write(artifact, *outDir, base)
		if err != nil {
			log.Fatal().Err(err).Msg("write failed")
		}

	default:
		log.Fatal().Str("mode", *mode).Msg("unknown export mode")
	}

	for _, p := range paths {
		fmt.Println(p)
	}
}

// openInput opens a PDF directly or converts office formats first.
func openInput(path string, log zerolog.Logger) (pageextract.Source, error) {
	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".pdf":
		return pageextract.Open(path)

	case ".doc", ".docx":
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read file: %w", err)
		}
		conv := &source.SofficeConverter{
			Path:    os.Getenv("SOFFICE_PATH"),
			Timeout: envDuration("SOFFICE_TIMEOUT", source.DefaultConvertTimeout),
			Logger:  log,
		}
		return pageextract.OpenOffice(context.Background(), data, pageextract.Format(ext[1:]), conv)

	default:
		return nil, fmt.Errorf("unsupported file type %q", ext)
	}
}

func envFloat(name string, fallback float64) float64 {
	if v := os.Getenv(name); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func envDuration(name string, fallback time.Duration) time.Duration {
	if v := os.Getenv(name); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
