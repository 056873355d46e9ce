package syncer

import (
	"context"
	"errors"
	"reflect"
	"slices"
	"strconv"
	"strings"

	"github.com/google/uuid"
)

const tempPrefix = "tmp:"

func NewTempID() string { return tempPrefix + uuid.NewString() }

func IsTempID(id string) bool { return strings.HasPrefix(id, tempPrefix) }

// UintID formats a numeric server id the way the cache keys items.
func UintID(id uint) string { return strconv.FormatUint(uint64(id), 10) }

type snapshot[T any] struct {
	before  Page[T]
	loaded  bool
	after   Page[T]
	applied bool
}

// Rollback holds the pages a mutation may touch as they were before it.
// Exactly one of Restore or Release should be called.
type Rollback[T any] struct {
	c     *Cache[T]
	snaps map[Key]*snapshot[T]
}

// Begin cancels in-flight loads of keys, so they cannot overwrite the
// optimistic state, and snapshots the keys.
func (c *Cache[T]) Begin(keys ...Key) *Rollback[T] {
	c.mu.Lock()
	defer c.mu.Unlock()

	rb := &Rollback[T]{c: c, snaps: make(map[Key]*snapshot[T], len(keys))}
	for _, key := range keys {
		e, ok := c.entries[key]
		if !ok {
			rb.snaps[key] = &snapshot[T]{}
			continue
		}
		if e.cancel != nil {
			e.cancel()
			e.cancel = nil
		}
		e.gen++
		rb.snaps[key] = &snapshot[T]{before: e.page, loaded: e.loaded}
	}
	return rb
}

// Applied records the optimistic state. From then on Restore reverts only
// the items this write changed, so writes that overlap it on the same page
// survive its rollback.
func (rb *Rollback[T]) Applied() {
	if rb.snaps == nil {
		return
	}

	c := rb.c
	c.mu.Lock()
	defer c.mu.Unlock()

	for key, snap := range rb.snaps {
		e, ok := c.entries[key]
		if !ok || !e.loaded || !snap.loaded {
			continue
		}
		snap.after = e.page
		snap.applied = true
	}
}

// Restore rolls the keys back. Before Applied the snapshot is put back
// exactly; after it the write is undone item by item. Keys holding an item
// another writer changed since Applied keep that change and are returned
// so the caller can reload them.
func (rb *Rollback[T]) Restore() []Key {
	if rb.snaps == nil {
		return nil
	}

	c := rb.c
	c.mu.Lock()
	defer c.mu.Unlock()

	var stale []Key
	for key, snap := range rb.snaps {
		e, ok := c.entries[key]
		switch {
		case snap.applied:
			if !ok || !e.loaded {
				// Evicted or reloaded from the server since.
				continue
			}
			page, clean := undo(snap.before, snap.after, e.page)
			e.page = page
			if !clean {
				stale = append(stale, key)
			}
		case !snap.loaded:
			if ok {
				e.page = Page[T]{}
				e.loaded = false
				e.gen++
			}
		default:
			if !ok {
				e = c.entry(key)
			}
			e.page = snap.before
			e.loaded = true
			e.gen++
		}
	}
	rb.snaps = nil
	slices.SortFunc(stale, compareKeys)
	return stale
}

func (rb *Rollback[T]) Release() { rb.snaps = nil }

// undo reverts the difference between before and after on current. Items
// the write added are dropped, items it removed go back where they were,
// and items it rewrote get their old value unless someone rewrote them
// again. clean is false in that last case.
func undo[T any](before, after, current Page[T]) (Page[T], bool) {
	clean := true

	for _, it := range after.Items {
		if before.Index(it.ID) >= 0 {
			continue
		}
		if i := current.Index(it.ID); i >= 0 {
			current = current.Without(i)
		}
	}

	for i, it := range before.Items {
		j := after.Index(it.ID)
		if j < 0 {
			if current.Index(it.ID) < 0 {
				current = current.Insert(reinsertAt(before, current, i), it)
			}
			continue
		}
		if reflect.DeepEqual(after.Items[j].Value, it.Value) {
			continue
		}
		k := current.Index(it.ID)
		if k < 0 {
			continue
		}
		if reflect.DeepEqual(current.Items[k].Value, after.Items[j].Value) {
			current = current.Replace(k, it)
		} else {
			clean = false
		}
	}

	if !reflect.DeepEqual(before.Pagination, after.Pagination) && reflect.DeepEqual(current.Pagination, after.Pagination) {
		current.Pagination = before.Pagination
	}
	return current, clean
}

// Mutation is one optimistic write in three phases: Apply patches the
// cached pages right away, Do performs the write on the server, and then
// either Reconcile swaps the confirmed entity in or the snapshot is
// restored.
type Mutation[T any] struct {
	Keys []Key
	// Apply patches one page of Keys. tempID names the placeholder the
	// mutation may insert.
	Apply func(p Page[T], tempID string) Page[T]
	Do    func(ctx context.Context) (T, error)
	// Reconcile defaults to ReplacePlaceholder.
	Reconcile func(p Page[T], tempID string, confirmed T) Page[T]
	// Invalidate lists query prefixes reloaded after success.
	Invalidate []string
}

// Mutate runs m. On failure the cache is rolled back and Do's error is
// returned. Reload failures after success are only logged.
func (c *Cache[T]) Mutate(ctx context.Context, m Mutation[T]) (T, error) {
	tempID := NewTempID()
	rb := c.Begin(m.Keys...)

	if m.Apply != nil {
		for _, key := range m.Keys {
			c.update(key, func(p Page[T]) Page[T] { return m.Apply(p, tempID) })
		}
	}
	rb.Applied()

	confirmed, err := m.Do(ctx)
	if err != nil {
		for _, key := range rb.Restore() {
			if _, lerr := c.Load(ctx, key); lerr != nil && !errors.Is(lerr, ErrSuperseded) {
				c.logger.Warn("failed to reload after rollback", "key", key.String(), "err", lerr)
			}
		}
		var zero T
		return zero, err
	}
	rb.Release()

	reconcile := m.Reconcile
	if reconcile == nil {
		reconcile = c.ReplacePlaceholder
	}
	for _, key := range m.Keys {
		c.update(key, func(p Page[T]) Page[T] { return reconcile(p, tempID, confirmed) })
	}

	for _, prefix := range m.Invalidate {
		if err := c.Refetch(ctx, prefix); err != nil {
			c.logger.Warn("failed to reload after mutation", "prefix", prefix, "err", err)
		}
	}

	return confirmed, nil
}

// ReplacePlaceholder swaps the placeholder for the confirmed entity in
// place. If a broadcast already merged the entity, the placeholder is
// dropped instead so the entity appears once. Without a placeholder the
// confirmed value replaces the cached one of the same id.
func (c *Cache[T]) ReplacePlaceholder(p Page[T], tempID string, confirmed T) Page[T] {
	it := Item[T]{ID: c.idOf(confirmed), Value: confirmed}
	known := p.Index(it.ID)

	if i := p.Index(tempID); i >= 0 {
		if known >= 0 {
			return p.Without(i)
		}
		return p.Replace(i, it)
	}
	if known >= 0 {
		return p.Replace(known, it)
	}
	return p
}

// Placeholder is an Apply that puts v in front under the temp id.
func Placeholder[T any](v T) func(p Page[T], tempID string) Page[T] {
	return func(p Page[T], tempID string) Page[T] {
		return p.Prepend(Item[T]{ID: tempID, Value: v})
	}
}

// PatchItem is an Apply that rewrites the item with id, if cached.
func PatchItem[T any](id string, fn func(T) T) func(p Page[T], tempID string) Page[T] {
	return func(p Page[T], _ string) Page[T] {
		if i := p.Index(id); i >= 0 {
			return p.Replace(i, Item[T]{ID: id, Value: fn(p.Items[i].Value)})
		}
		return p
	}
}

// reinsertAt finds where before.Items[i] belongs in current: after the
// nearest earlier neighbour still there, else before the nearest later one.
func reinsertAt[T any](before, current Page[T], i int) int {
	for j := i - 1; j >= 0; j-- {
		if k := current.Index(before.Items[j].ID); k >= 0 {
			return k + 1
		}
	}
	for j := i + 1; j < len(before.Items); j++ {
		if k := current.Index(before.Items[j].ID); k >= 0 {
			return k
		}
	}
	return min(i, len(current.Items))
}
