// Package session owns the single active document of an interactive
// workflow and coordinates safe document replacement.
package session

import (
	"context"
	"errors"
	"image"
	"sync"

	"github.com/rs/zerolog"

	"github.com/pyhub-apps/pageextract-golang/pkg/extract"
	"github.com/pyhub-apps/pageextract-golang/pkg/ranges"
	"github.com/pyhub-apps/pageextract-golang/pkg/source"
	"github.com/pyhub-apps/pageextract-golang/pkg/thumb"
)

// ErrNoDocument is returned for operations that need a loaded document.
var ErrNoDocument = errors.New("no document loaded")

// Session holds exactly one active document source at a time. Loading a new
// document waits for all in-flight renders and extractions against the old
// one before it is closed and swapped out.
type Session struct {
	engine *extract.Engine
	cache  *thumb.Cache
	log    zerolog.Logger

	mu  sync.Mutex
	src source.Source
	wg  sync.WaitGroup // in-flight extractions
}

// Option configures a Session.
type Option func(*Session)

// WithLogger sets the session logger, shared with the engine.
func WithLogger(log zerolog.Logger) Option {
	return func(s *Session) {
		s.log = log
		s.engine.Logger = log
	}
}

// New creates a session around a thumbnail cache.
func New(cache *thumb.Cache, opts ...Option) *Session {
	s := &Session{
		engine: extract.NewEngine(),
		cache:  cache,
		log:    zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Load makes src the active document, replacing and closing any previous
// one. The previous document is only closed after every render and
// extraction referencing it has finished.
func (s *Session) Load(src source.Source) error {
	s.mu.Lock()
	old := s.src
	s.src = nil
	s.mu.Unlock()

	// Drain work against the old source before closing it.
	s.cache.SetActive(nil)
	s.wg.Wait()

	var closeErr error
	if old != nil {
		closeErr = old.Close()
		s.log.Debug().Str("doc", old.ID()).Msg("document closed")
	}

	s.mu.Lock()
	s.src = src
	s.mu.Unlock()
	s.cache.SetActive(src)

	if src != nil {
		s.log.Info().Str("doc", src.ID()).Int("pages", src.PageCount()).Msg("document loaded")
	}
	return closeErr
}

// Source returns the active document, or ErrNoDocument.
func (s *Session) Source() (source.Source, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.src == nil {
		return nil, ErrNoDocument
	}
	return s.src, nil
}

// ParseRange validates a selection expression against the active document.
func (s *Session) ParseRange(text string) (ranges.Selection, error) {
	src, err := s.Source()
	if err != nil {
		return nil, err
	}
	return ranges.Parse(text, src.PageCount())
}

// Thumbnail requests a preview for a page of the active document. See
// thumb.Cache.Request for the miss/pending contract.
func (s *Session) Thumbnail(index ranges.PageIndex, tier thumb.Tier) (image.Image, *thumb.Pending, error) {
	src, err := s.Source()
	if err != nil {
		return nil, nil, err
	}
	img, pending := s.cache.Request(src.ID(), index, tier)
	return img, pending, nil
}

// Extract runs an extraction against the active document. The session keeps
// the document open until the extraction finishes, even if a Load starts
// concurrently.
func (s *Session) Extract(ctx context.Context, sel ranges.Selection, mode extract.Mode, opts extract.Options) (*extract.Artifact, error) {
	s.mu.Lock()
	src := s.src
	if src == nil {
		s.mu.Unlock()
		return nil, ErrNoDocument
	}
	s.wg.Add(1)
	s.mu.Unlock()
	defer s.wg.Done()

	return s.engine.Extract(ctx, src, sel, mode, opts)
}

// Close releases the active document and detaches the cache.
func (s *Session) Close() error {
	return s.Load(nil)
}
