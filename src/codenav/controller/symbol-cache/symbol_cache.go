// Package symbolcache caches the normalized symbol tree of files, keyed by path and content hash.
package symbolcache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sync"
	"time"

	"github.com/uber-go/tally"
	"github.com/uber/codenav/src/codenav/entity"
	"github.com/uber/codenav/src/codenav/internal/clock"
	"github.com/uber/codenav/src/codenav/mapper"
	"golang.org/x/sync/singleflight"
)

// Loader fetches the raw textDocument/documentSymbol result for a document.
type Loader func(ctx context.Context) (json.RawMessage, error)

// Cache holds one entry per file. An entry is valid exactly while the stored content hash matches.
// Returned slices are shared between callers and must not be modified.
type Cache struct {
	clock clock.Clock
	stats tally.Scope

	mu      sync.RWMutex
	entries map[string]entry
	group   singleflight.Group
}

type entry struct {
	hash    [sha256.Size]byte
	symbols []entity.Symbol
	stored  time.Time
}

// New creates an empty cache.
func New(clk clock.Clock, stats tally.Scope) *Cache {
	return &Cache{
		clock:   clk,
		stats:   stats.SubScope("symbol_cache"),
		entries: make(map[string]entry),
	}
}

// Get returns the symbols of doc. A hit costs no language server traffic; on a miss load is called
// and its result normalized and stored. Concurrent misses for the same content share one load.
func (c *Cache) Get(ctx context.Context, doc entity.Document, load Loader) ([]entity.Symbol, error) {
	hash := sha256.Sum256(doc.Text)

	c.mu.RLock()
	e, ok := c.entries[doc.Path]
	c.mu.RUnlock()
	if ok && e.hash == hash {
		c.stats.Counter("hits").Inc(1)
		return e.symbols, nil
	}
	c.stats.Counter("misses").Inc(1)

	key := doc.Path + "@" + hex.EncodeToString(hash[:])
	v, err, _ := c.group.Do(key, func() (interface{}, error) {
		raw, err := load(ctx)
		if err != nil {
			return nil, err
		}
		symbols, err := mapper.DocumentSymbols(raw, doc)
		if err != nil {
			return nil, err
		}

		c.mu.Lock()
		c.entries[doc.Path] = entry{hash: hash, symbols: symbols, stored: c.clock.Now()}
		c.mu.Unlock()
		return symbols, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]entity.Symbol), nil
}

// Peek returns the stored symbols of path and when they were stored, regardless of the current content.
func (c *Cache) Peek(path string) ([]entity.Symbol, time.Time, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entries[path]
	return e.symbols, e.stored, ok
}

// Invalidate drops the entry of path.
func (c *Cache) Invalidate(path string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, path)
}

// Clear drops every entry.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]entry)
}

// Len returns the number of entries.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
