// Package thumb keeps low-resolution page previews available without
// blocking interactive use.
package thumb

import (
	"container/list"
	"context"
	"image"
	"sync"

	"github.com/rs/zerolog"
	xdraw "golang.org/x/image/draw"

	"github.com/pyhub-apps/pageextract-golang/pkg/ranges"
	"github.com/pyhub-apps/pageextract-golang/pkg/source"
)

// Tier is a thumbnail resolution class.
type Tier int

const (
	// TierLow serves grid and list views.
	TierLow Tier = iota
	// TierHigh serves hover zoom.
	TierHigh
)

// dpi is the raster density a tier renders at.
func (t Tier) dpi() float64 {
	if t == TierHigh {
		return 96
	}
	return 36
}

// maxEdge bounds the longer edge of a tier's thumbnail in pixels.
func (t Tier) maxEdge() int {
	if t == TierHigh {
		return 320
	}
	return 160
}

// DefaultCapacity bounds the total entry count across both tiers.
const DefaultCapacity = 256

// DefaultWorkers bounds concurrent background renders.
const DefaultWorkers = 2

type key struct {
	docID string
	index ranges.PageIndex
	tier  Tier
}

type entry struct {
	key  key
	img  image.Image
	gen  uint64
	elem *list.Element
}

// Pending is a handle to an in-flight thumbnail render. Multiple requests
// for the same key share one Pending.
type Pending struct {
	done chan struct{}
	img  image.Image
	err  error
}

// Done is closed when the render has finished or been dropped.
func (p *Pending) Done() <-chan struct{} { return p.done }

// Wait blocks until the render finishes or ctx is cancelled. Both results
// are nil when the render was dropped because the document changed; that is
// a cancellation, not a failure.
func (p *Pending) Wait(ctx context.Context) (image.Image, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-p.done:
		return p.img, p.err
	}
}

// Cache is a bounded in-memory store of rendered page previews for the
// single active document source.
type Cache struct {
	capacity int
	workers  chan struct{}
	log      zerolog.Logger

	mu       sync.Mutex
	gen      uint64
	active   source.Source
	entries  map[key]*entry
	lru      *list.List // front = most recently displayed
	inflight map[key]*Pending
	wg       sync.WaitGroup
}

// Option configures a Cache.
type Option func(*Cache)

// WithCapacity bounds the total cached entry count.
func WithCapacity(n int) Option {
	return func(c *Cache) { c.capacity = n }
}

// WithWorkers bounds concurrent background renders.
func WithWorkers(n int) Option {
	return func(c *Cache) { c.workers = make(chan struct{}, n) }
}

// WithLogger sets the cache logger.
func WithLogger(log zerolog.Logger) Option {
	return func(c *Cache) { c.log = log }
}

// New creates an empty cache with no active document.
func New(opts ...Option) *Cache {
	c := &Cache{
		capacity: DefaultCapacity,
		workers:  make(chan struct{}, DefaultWorkers),
		log:      zerolog.Nop(),
		entries:  make(map[key]*entry),
		lru:      list.New(),
		inflight: make(map[key]*Pending),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// SetActive swaps the document the cache serves. The generation counter
// advances so every prior entry becomes unreachable, and the call waits for
// in-flight renders against the old document to drain before returning, so
// the caller may close the old source safely. Pass nil to detach.
func (c *Cache) SetActive(src source.Source) {
	c.mu.Lock()
	c.gen++
	c.active = nil
	c.mu.Unlock()

	// Renders against the previous source must complete before it can be
	// closed; their results are discarded by the generation check.
	c.wg.Wait()

	c.mu.Lock()
	c.active = src
	c.mu.Unlock()

	if src != nil {
		c.log.Debug().Str("doc", src.ID()).Msg("thumbnail cache rebound")
	}
}

// Request returns a cached thumbnail immediately when present and fresh.
// Otherwise it schedules a background render and returns a Pending handle
// the caller can await or ignore. It never blocks on rendering.
//
// Requests for a document that is no longer active return (nil, nil): the
// request is silently dropped, not failed.
func (c *Cache) Request(docID string, index ranges.PageIndex, tier Tier) (image.Image, *Pending) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.active == nil || c.active.ID() != docID {
		return nil, nil
	}

	k := key{docID: docID, index: index, tier: tier}
	if e, ok := c.entries[k]; ok && e.gen == c.gen {
		c.lru.MoveToFront(e.elem)
		return e.img, nil
	}

	// One render per key; later requests attach to the existing future.
	if p, ok := c.inflight[k]; ok {
		return nil, p
	}

	p := &Pending{done: make(chan struct{})}
	c.inflight[k] = p
	src, gen := c.active, c.gen
	c.wg.Add(1)
	go c.render(k, p, src, gen)
	return nil, p
}

// render runs on the worker pool and stores the result unless the document
// generation moved on in the meantime.
func (c *Cache) render(k key, p *Pending, src source.Source, gen uint64) {
	defer c.wg.Done()
	defer close(p.done)

	c.workers <- struct{}{}
	defer func() { <-c.workers }()

	// The document may have been replaced while this render sat queued.
	c.mu.Lock()
	stale := c.gen != gen
	c.mu.Unlock()
	if stale {
		c.forget(k)
		return
	}

	img, err := src.RenderPage(context.Background(), k.index, k.tier.dpi())
	if err == nil {
		img = scaleToFit(img, k.tier.maxEdge())
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.inflight, k)

	if c.gen != gen {
		// Dropped: the document changed mid-render. No error surfaces.
		return
	}
	if err != nil {
		c.log.Warn().Int("page", int(k.index)+1).Err(err).Msg("thumbnail render failed")
		p.err = err
		return
	}

	// A stale entry for this key may still be stored; unlink it so its
	// list element cannot evict the fresh one later.
	if old, ok := c.entries[k]; ok {
		c.lru.Remove(old.elem)
	}

	e := &entry{key: k, img: img, gen: gen}
	e.elem = c.lru.PushFront(e)
	c.entries[k] = e
	c.evictLocked()

	p.img = img
}

// forget clears an in-flight slot for a dropped render.
func (c *Cache) forget(k key) {
	c.mu.Lock()
	delete(c.inflight, k)
	c.mu.Unlock()
}

// evictLocked trims least-recently-displayed entries beyond capacity.
// Stale-generation entries drift to the back and reclaim first.
func (c *Cache) evictLocked() {
	for len(c.entries) > c.capacity {
		back := c.lru.Back()
		if back == nil {
			return
		}
		e := back.Value.(*entry)
		c.lru.Remove(back)
		delete(c.entries, e.key)
	}
}

// Len reports the number of stored entries, fresh or stale.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// scaleToFit shrinks img so its longer edge is at most maxEdge, preserving
// aspect ratio. Images already within the bound pass through unchanged.
func scaleToFit(img image.Image, maxEdge int) image.Image {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	longer := w
	if h > longer {
		longer = h
	}
	if longer <= maxEdge {
		return img
	}

	scale := float64(maxEdge) / float64(longer)
	dw := int(float64(w) * scale)
	dh := int(float64(h) * scale)
	if dw < 1 {
		dw = 1
	}
	if dh < 1 {
		dh = 1
	}

	dst := image.NewRGBA(image.Rect(0, 0, dw, dh))
	xdraw.ApproxBiLinear.Scale(dst, dst.Bounds(), img, b, xdraw.Src, nil)
	return dst
}
