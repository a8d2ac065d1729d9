// Package cache memoizes process and encode results per preprocessed image
// and side settings.
package cache

import (
	"container/list"
	"sync"

	"github.com/google/uuid"

	"github.com/aliskhannn/image-compressor/internal/model"
)

// Entry is a memoized side result.
type Entry struct {
	Image     uuid.UUID // identity of the preprocessed bitmap
	Processor *model.ProcessorSettings
	Encoder   *model.EncoderSettings

	Processed *model.Bitmap
	File      *model.File
	Preview   *model.Bitmap
}

func (e *Entry) matches(p *model.ProcessorSettings, enc *model.EncoderSettings) bool {
	return e.Processor.Equal(p) && e.Encoder.Equal(enc)
}

type group struct {
	image   uuid.UUID
	entries *list.List // of *Entry, most recent first
}

// Cache is a two-level LRU: at most maxImages preprocessed images, each with
// at most maxEntries results. It is safe for concurrent use.
type Cache struct {
	mu         sync.Mutex
	maxImages  int
	maxEntries int
	order      *list.List // of *group, most recent first
	groups     map[uuid.UUID]*list.Element
}

// New creates a Cache. Non-positive limits fall back to 1.
func New(maxImages, maxEntries int) *Cache {
	if maxImages < 1 {
		maxImages = 1
	}
	if maxEntries < 1 {
		maxEntries = 1
	}
	return &Cache{
		maxImages:  maxImages,
		maxEntries: maxEntries,
		order:      list.New(),
		groups:     make(map[uuid.UUID]*list.Element),
	}
}

// Match returns the entry for the image and settings, comparing the image by
// identity and the settings by value.
func (c *Cache) Match(image uuid.UUID, p *model.ProcessorSettings, enc *model.EncoderSettings) (Entry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	ge, ok := c.groups[image]
	if !ok {
		return Entry{}, false
	}
	g := ge.Value.(*group)

	for el := g.entries.Front(); el != nil; el = el.Next() {
		e := el.Value.(*Entry)
		if e.matches(p, enc) {
			c.order.MoveToFront(ge)
			g.entries.MoveToFront(el)
			return *e, true
		}
	}

	return Entry{}, false
}

// Add inserts e, replacing any entry with the same key.
func (c *Cache) Add(e Entry) {
	c.mu.Lock()
	defer c.mu.Unlock()

	ge, ok := c.groups[e.Image]
	if ok {
		c.order.MoveToFront(ge)
	} else {
		ge = c.order.PushFront(&group{image: e.Image, entries: list.New()})
		c.groups[e.Image] = ge
	}
	g := ge.Value.(*group)

	for el := g.entries.Front(); el != nil; el = el.Next() {
		if el.Value.(*Entry).matches(e.Processor, e.Encoder) {
			g.entries.Remove(el)
			break
		}
	}
	g.entries.PushFront(&e)

	for g.entries.Len() > c.maxEntries {
		g.entries.Remove(g.entries.Back())
	}
	for c.order.Len() > c.maxImages {
		last := c.order.Back()
		delete(c.groups, last.Value.(*group).image)
		c.order.Remove(last)
	}
}

// Len returns the number of cached entries.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	n := 0
	for el := c.order.Front(); el != nil; el = el.Next() {
		n += el.Value.(*group).entries.Len()
	}
	return n
}
