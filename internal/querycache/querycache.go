// Package querycache keeps parsed and validated query documents keyed by
// query text, so repeated queries skip parsing and validation.
package querycache

import (
	"context"

	"github.com/dgraph-io/ristretto/v2"
	"github.com/pkg/errors"

	eventbus "github.com/hanpama/projectql/internal/eventbus"
	events "github.com/hanpama/projectql/internal/events"
	language "github.com/hanpama/projectql/internal/language"
)

// DefaultSize is the number of documents kept when no size is configured.
const DefaultSize = 100

// Cache is safe for concurrent use. Only documents that passed validation
// are stored; the same document may be handed to many concurrent requests
// and must be treated as read-only.
type Cache struct {
	schema *language.ValidatedSchema
	docs   *ristretto.Cache[string, *language.QueryDocument]
	bus    *eventbus.Bus
}

// New creates a cache of up to size documents validated against s. Lookups
// are reported on bus, which may be nil.
func New(s *language.ValidatedSchema, size int64, bus *eventbus.Bus) (*Cache, error) {
	if size <= 0 {
		size = DefaultSize
	}
	docs, err := ristretto.NewCache(&ristretto.Config[string, *language.QueryDocument]{
		NumCounters:        size * 10,
		MaxCost:            size,
		BufferItems:        64,
		IgnoreInternalCost: true,
	})
	if err != nil {
		return nil, errors.Wrap(err, "creating query cache")
	}
	return &Cache{schema: s, docs: docs, bus: bus}, nil
}

// Get returns the document of query, parsing and validating it on a miss.
// Invalid queries are reported through the error list and never cached.
func (c *Cache) Get(ctx context.Context, query string) (*language.QueryDocument, language.ErrorList) {
	if doc, ok := c.docs.Get(query); ok {
		eventbus.Emit(ctx, c.bus, events.QueryCacheHit{Query: query})
		return doc, nil
	}

	doc, errs := language.LoadQuery(c.schema, query)
	if len(errs) > 0 {
		eventbus.Emit(ctx, c.bus, events.QueryCacheMiss{Query: query, Err: errs})
		return nil, errs
	}
	c.docs.Set(query, doc, 1)
	c.docs.Wait()
	eventbus.Emit(ctx, c.bus, events.QueryCacheMiss{Query: query})
	return doc, nil
}

// Close stops the cache's background goroutines.
func (c *Cache) Close() {
	c.docs.Close()
}
