// Package syncer keeps client-side query results consistent with optimistic
// writes and with broadcasts from the server.
//
// A Cache holds immutable pages keyed by query and page number. Writers
// never modify a page in place; they swap in a patched copy, so a page
// handed to a view stays valid while the cache moves on.
package syncer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"

	"github.com/nilotpaldhar/kwikchat-sub001/internal/dto"
)

// ErrSuperseded is returned by Load when a write or another load replaced
// the entry while the fetch was in flight. The fetched page is discarded.
var ErrSuperseded = errors.New("syncer: fetch superseded")

var ErrNoFetcher = errors.New("syncer: no fetcher registered")

// Key names one page of one query, for example {"messages/12", 1}.
type Key struct {
	Query string
	Page  int
}

func (k Key) String() string { return fmt.Sprintf("%s#%d", k.Query, k.Page) }

// Item is a cached entity. ID is the server id, or a temporary id while
// the entity only exists optimistically.
type Item[T any] struct {
	ID    string
	Value T
}

func (it Item[T]) Pending() bool { return IsTempID(it.ID) }

type Page[T any] struct {
	Items      []Item[T]
	Pagination dto.Pagination
}

// Index returns the position of id in the page, or -1.
func (p Page[T]) Index(id string) int {
	return slices.IndexFunc(p.Items, func(it Item[T]) bool { return it.ID == id })
}

func (p Page[T]) Values() []T {
	out := make([]T, len(p.Items))
	for i, it := range p.Items {
		out[i] = it.Value
	}
	return out
}

// Prepend returns a copy of p with it in front.
func (p Page[T]) Prepend(it Item[T]) Page[T] {
	items := make([]Item[T], 0, len(p.Items)+1)
	items = append(items, it)
	p.Items = append(items, p.Items...)
	return p
}

// Insert returns a copy of p with it at position i.
func (p Page[T]) Insert(i int, it Item[T]) Page[T] {
	p.Items = slices.Insert(slices.Clone(p.Items), i, it)
	return p
}

// Replace returns a copy of p with the item at i swapped for it.
func (p Page[T]) Replace(i int, it Item[T]) Page[T] {
	p.Items = slices.Clone(p.Items)
	p.Items[i] = it
	return p
}

// Without returns a copy of p without the item at i.
func (p Page[T]) Without(i int) Page[T] {
	p.Items = slices.Delete(slices.Clone(p.Items), i, i+1)
	return p
}

type Fetcher[T any] func(ctx context.Context, key Key) (*dto.Page[T], error)

type entry[T any] struct {
	page   Page[T]
	loaded bool
	// gen moves on every write so a fetch started earlier can tell it lost.
	gen    uint64
	cancel context.CancelFunc
	mounts int
}

type Cache[T any] struct {
	idOf   func(T) string
	logger *slog.Logger

	mu       sync.Mutex
	entries  map[Key]*entry[T]
	fetchers map[string]Fetcher[T]
}

// New returns an empty cache. idOf maps a confirmed entity to its server id.
func New[T any](idOf func(T) string, logger *slog.Logger) *Cache[T] {
	return &Cache[T]{
		idOf:     idOf,
		logger:   logger,
		entries:  make(map[Key]*entry[T]),
		fetchers: make(map[string]Fetcher[T]),
	}
}

// Register serves every query starting with prefix. The longest matching
// prefix wins.
func (c *Cache[T]) Register(prefix string, fetch Fetcher[T]) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.fetchers[prefix] = fetch
}

func (c *Cache[T]) fetcherFor(query string) (Fetcher[T], bool) {
	var (
		best  string
		fetch Fetcher[T]
		found bool
	)
	for prefix, f := range c.fetchers {
		if strings.HasPrefix(query, prefix) && (!found || len(prefix) > len(best)) {
			best, fetch, found = prefix, f, true
		}
	}
	return fetch, found
}

func (c *Cache[T]) Get(key Key) (Page[T], bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok || !e.loaded {
		return Page[T]{}, false
	}
	return e.page, true
}

// Set stores a page as if it had been fetched.
func (c *Cache[T]) Set(key Key, page *dto.Page[T]) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e := c.entry(key)
	e.page = c.wrap(page)
	e.loaded = true
	e.gen++
}

// Keys lists the loaded keys whose query starts with prefix.
func (c *Cache[T]) Keys(prefix string) []Key {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.keys(prefix)
}

func (c *Cache[T]) keys(prefix string) []Key {
	var keys []Key
	for k, e := range c.entries {
		if e.loaded && strings.HasPrefix(k.Query, prefix) {
			keys = append(keys, k)
		}
	}
	slices.SortFunc(keys, compareKeys)
	return keys
}

func compareKeys(a, b Key) int {
	if n := strings.Compare(a.Query, b.Query); n != 0 {
		return n
	}
	return a.Page - b.Page
}

// Find returns the first cached value of id under prefix.
func (c *Cache[T]) Find(prefix, id string) (T, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, k := range c.keys(prefix) {
		p := c.entries[k].page
		if i := p.Index(id); i >= 0 {
			return p.Items[i].Value, true
		}
	}
	var zero T
	return zero, false
}

// Mount marks key as shown by a view until the returned release runs.
// Writes to keys no view shows evict them instead.
func (c *Cache[T]) Mount(key Key) (release func()) {
	c.mu.Lock()
	c.entry(key).mounts++
	c.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			c.mu.Lock()
			defer c.mu.Unlock()
			if e, ok := c.entries[key]; ok {
				e.mounts--
			}
		})
	}
}

func (c *Cache[T]) Mounted(key Key) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	return ok && e.mounts > 0
}

// Load fetches key and stores the result unless a write happened meanwhile.
// A load cancels any load of the same key still in flight.
func (c *Cache[T]) Load(ctx context.Context, key Key) (Page[T], error) {
	c.mu.Lock()
	fetch, ok := c.fetcherFor(key.Query)
	if !ok {
		c.mu.Unlock()
		return Page[T]{}, fmt.Errorf("%w for %s", ErrNoFetcher, key)
	}
	e := c.entry(key)
	if e.cancel != nil {
		e.cancel()
	}
	e.gen++
	fetchCtx, cancel := context.WithCancel(ctx)
	e.cancel = cancel
	gen := e.gen
	c.mu.Unlock()

	fetched, err := fetch(fetchCtx, key)

	c.mu.Lock()
	defer c.mu.Unlock()
	cancel()

	e, ok = c.entries[key]
	if ok && e.gen == gen {
		e.cancel = nil
	}
	if err != nil {
		if ok && !e.loaded && e.mounts == 0 && e.gen == gen {
			delete(c.entries, key)
		}
		return Page[T]{}, err
	}
	if !ok || e.gen != gen {
		return Page[T]{}, ErrSuperseded
	}

	e.page = c.wrap(fetched)
	e.loaded = true
	e.gen++
	return e.page, nil
}

// Refetch reloads every loaded page of every query under prefix. Pages
// superseded by a newer write are left alone.
func (c *Cache[T]) Refetch(ctx context.Context, prefix string) error {
	var errs []error
	for _, key := range c.Keys(prefix) {
		if _, err := c.Load(ctx, key); err != nil && !errors.Is(err, ErrSuperseded) {
			errs = append(errs, fmt.Errorf("%s: %w", key, err))
		}
	}
	return errors.Join(errs...)
}

// Merge reconciles a broadcast entity into key: an unknown id goes in
// front and a known id is left alone, since the cached copy is at least as
// complete as the broadcast. Updates to known ids go through Patch.
func (c *Cache[T]) Merge(key Key, v T) {
	it := Item[T]{ID: c.idOf(v), Value: v}
	c.update(key, func(p Page[T]) Page[T] {
		if p.Index(it.ID) >= 0 {
			return p
		}
		return p.Prepend(it)
	})
}

// Patch rewrites id wherever it is cached under prefix. Pages that do not
// hold id are untouched.
func (c *Cache[T]) Patch(prefix, id string, fn func(T) T) {
	c.updateHolding(prefix, id, func(p Page[T], i int) Page[T] {
		return p.Replace(i, Item[T]{ID: id, Value: fn(p.Items[i].Value)})
	})
}

// Remove drops id wherever it is cached under prefix.
func (c *Cache[T]) Remove(prefix, id string) {
	c.updateHolding(prefix, id, func(p Page[T], i int) Page[T] {
		return p.Without(i)
	})
}

// Evict forgets every page under prefix that no view shows, and marks the
// shown ones for reload.
func (c *Cache[T]) Evict(prefix string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for k, e := range c.entries {
		if !strings.HasPrefix(k.Query, prefix) {
			continue
		}
		if e.cancel != nil {
			e.cancel()
			e.cancel = nil
		}
		if e.mounts == 0 {
			delete(c.entries, k)
			continue
		}
		e.loaded = false
		e.page = Page[T]{}
		e.gen++
	}
}

func (c *Cache[T]) updateHolding(prefix, id string, fn func(p Page[T], i int) Page[T]) {
	for _, key := range c.Keys(prefix) {
		c.update(key, func(p Page[T]) Page[T] {
			if i := p.Index(id); i >= 0 {
				return fn(p, i)
			}
			return p
		})
	}
}

// update applies fn to a loaded page. A page no view shows is evicted
// instead, so the next mount fetches it fresh.
func (c *Cache[T]) update(key Key, fn func(Page[T]) Page[T]) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok || !e.loaded {
		return
	}
	if e.mounts == 0 {
		if e.cancel != nil {
			e.cancel()
		}
		delete(c.entries, key)
		c.logger.Debug("evicted unmounted query", "key", key.String())
		return
	}

	e.page = fn(e.page)
	e.gen++
}

func (c *Cache[T]) entry(key Key) *entry[T] {
	e, ok := c.entries[key]
	if !ok {
		e = &entry[T]{}
		c.entries[key] = e
	}
	return e
}

func (c *Cache[T]) wrap(page *dto.Page[T]) Page[T] {
	if page == nil {
		return Page[T]{}
	}
	items := make([]Item[T], len(page.Items))
	for i, v := range page.Items {
		items[i] = Item[T]{ID: c.idOf(v), Value: v}
	}
	return Page[T]{Items: items, Pagination: page.Pagination}
}
