// Package knowledge holds the code cache: a persisted mapping from
// (family, code) to description, filled on demand from external resolvers.
package knowledge

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sells-group/medcode-cli/internal/model"
)

var (
	// ErrNotFound is returned by a Resolver that has no description for a code.
	ErrNotFound = eris.New("knowledge: code not found")
	// ErrInvalidCode is returned for a code that is not a canonical token of
	// its family. Such codes are never fetched or stored.
	ErrInvalidCode = eris.New("knowledge: invalid code")
)

// Resolver turns a code into a description. It returns ErrNotFound when the
// source has no such code; any other error is treated as a transport failure.
type Resolver interface {
	Fetch(ctx context.Context, code string) (string, error)
}

// ResolverFunc adapts a function to Resolver.
type ResolverFunc func(ctx context.Context, code string) (string, error)

// Fetch implements Resolver.
func (f ResolverFunc) Fetch(ctx context.Context, code string) (string, error) { return f(ctx, code) }

// Store persists the code book.
type Store interface {
	LoadCodes(ctx context.Context) (*model.CodeBook, error)
	SaveCodes(ctx context.Context, book *model.CodeBook) error
}

// Source binds a resolver to a family. A positive CrawlDelay marks a
// crawl-based source: its fetches are spaced at least CrawlDelay apart.
type Source struct {
	Resolver   Resolver
	CrawlDelay time.Duration
}

type source struct {
	resolver Resolver
	pacer    *rate.Limiter
}

// Option configures a Cache.
type Option func(*Cache)

// WithSource registers the resolver for a code family.
func WithSource(family model.Family, s Source) Option {
	return func(c *Cache) {
		src := source{resolver: s.Resolver}
		if s.CrawlDelay > 0 {
			src.pacer = rate.NewLimiter(rate.Every(s.CrawlDelay), 1)
		}
		c.sources[family] = src
	}
}

// WithExplanations makes Resolve append an entry's explanation to its
// description.
func WithExplanations(on bool) Option {
	return func(c *Cache) {
		c.explain = on
	}
}

// Cache is the shared code cache. It is loaded once from its Store and
// flushed back after every insert or enrichment. Fetches are serialized, so
// a code is fetched at most once per run.
type Cache struct {
	store   Store
	sources map[model.Family]source
	explain bool

	mu     sync.Mutex
	book   *model.CodeBook
	loaded bool

	fetches int
}

// New creates a Cache over store.
func New(store Store, opts ...Option) *Cache {
	c := &Cache{
		store:   store,
		sources: make(map[model.Family]source),
		book:    model.NewCodeBook(),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Load reads the persisted code book, replacing anything held in memory.
func (c *Cache) Load(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.loadLocked(ctx)
}

func (c *Cache) loadLocked(ctx context.Context) error {
	book, err := c.store.LoadCodes(ctx)
	if err != nil {
		return eris.Wrap(err, "knowledge: load")
	}
	c.book = book
	c.loaded = true
	zap.L().Debug("knowledge: cache loaded", zap.Int("entries", book.Len()))
	return nil
}

// Placeholder is the description stored for a code no resolver could find.
func Placeholder(family model.Family, code string) string {
	return fmt.Sprintf("%s code %s: description unavailable (could not be resolved)", family, code)
}

// Resolve returns the description of (family, code), fetching and persisting
// it on a miss. Resolver failures never surface: a placeholder entry is
// stored instead. The returned error is non-nil when the code is invalid for
// its family, or when the cache cannot be loaded or flushed; in the last two
// cases the description is still valid.
func (c *Cache) Resolve(ctx context.Context, family model.Family, code string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.loaded {
		if err := c.loadLocked(ctx); err != nil {
			return Placeholder(family, code), err
		}
	}

	if e, ok := c.book.Get(family, code); ok {
		return c.render(e), nil
	}
	if !family.HasCodes() {
		return Placeholder(family, code), eris.Errorf("knowledge: family %q has no code table", family)
	}
	if !family.ValidCode(code) {
		return "", eris.Wrapf(ErrInvalidCode, "%s %q", family, code)
	}

	e := c.fetchLocked(ctx, family, code)
	if err := c.book.Put(family, e); err != nil {
		return e.Description, eris.Wrap(err, "knowledge: insert")
	}
	if err := c.store.SaveCodes(ctx, c.book); err != nil {
		return c.render(e), eris.Wrapf(err, "knowledge: flush after %s %s", family, code)
	}
	return c.render(e), nil
}

// fetchLocked asks the family's resolver for code, pacing crawl sources.
func (c *Cache) fetchLocked(ctx context.Context, family model.Family, code string) model.CodeEntry {
	placeholder := model.CodeEntry{Code: code, Description: Placeholder(family, code), Placeholder: true}
	log := zap.L().With(zap.String("family", string(family)), zap.String("code", code))

	src, ok := c.sources[family]
	if !ok || src.resolver == nil {
		log.Warn("knowledge: no resolver for family, storing placeholder")
		return placeholder
	}

	if src.pacer != nil {
		if err := src.pacer.Wait(ctx); err != nil {
			log.Warn("knowledge: crawl pacing interrupted, storing placeholder", zap.Error(err))
			return placeholder
		}
	}

	c.fetches++
	desc, err := src.resolver.Fetch(ctx, code)
	switch {
	case eris.Is(err, ErrNotFound):
		log.Warn("knowledge: code not found, storing placeholder")
		return placeholder
	case err != nil:
		log.Warn("knowledge: resolver failed, storing placeholder", zap.Error(err))
		return placeholder
	case desc == "":
		log.Warn("knowledge: resolver returned empty description, storing placeholder")
		return placeholder
	}
	log.Debug("knowledge: fetched description", zap.Int("len", len(desc)))
	return model.CodeEntry{Code: code, Description: desc}
}

func (c *Cache) render(e model.CodeEntry) string {
	if c.explain && e.Explanation != "" {
		return e.Description + "\n" + e.Explanation
	}
	return e.Description
}

// Lookup returns the cached entry without fetching.
func (c *Cache) Lookup(family model.Family, code string) (model.CodeEntry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.book.Get(family, code)
}

// Enrich sets the explanation of an existing entry and flushes. The
// description is never changed.
func (c *Cache) Enrich(ctx context.Context, family model.Family, code, explanation string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.book.Get(family, code)
	if !ok {
		return eris.Errorf("knowledge: enrich %s %s: not cached", family, code)
	}
	e.Explanation = explanation
	if err := c.book.Put(family, e); err != nil {
		return eris.Wrap(err, "knowledge: enrich")
	}
	if err := c.store.SaveCodes(ctx, c.book); err != nil {
		return eris.Wrapf(err, "knowledge: flush after enriching %s %s", family, code)
	}
	return nil
}

// Refresh re-fetches a placeholder entry. Entries with a real description are
// left alone and reported as not refreshed.
func (c *Cache) Refresh(ctx context.Context, family model.Family, code string) (bool, error) {
	if !family.ValidCode(code) {
		return false, eris.Wrapf(ErrInvalidCode, "%s %q", family, code)
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.book.Get(family, code)
	if ok && !e.Placeholder {
		return false, nil
	}
	fresh := c.fetchLocked(ctx, family, code)
	if fresh.Placeholder {
		return false, nil
	}
	fresh.Explanation = e.Explanation
	if err := c.book.Put(family, fresh); err != nil {
		return false, eris.Wrap(err, "knowledge: refresh")
	}
	if err := c.store.SaveCodes(ctx, c.book); err != nil {
		return true, eris.Wrapf(err, "knowledge: flush after refreshing %s %s", family, code)
	}
	return true, nil
}

// Snapshot returns a copy of the code book.
func (c *Cache) Snapshot() *model.CodeBook {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.book.Clone()
}

// Fetches reports how many resolver calls the cache has made.
func (c *Cache) Fetches() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.fetches
}
