package channel

import (
	"context"
	"sync"

	"github.com/nilotpaldhar/kwikchat-sub001/internal/event"
)

// Binding groups the handles owned by one view or connection so they can be
// released together on unmount or identity change.
type Binding struct {
	router *Router

	mu      sync.Mutex
	handles []Handle
}

func (r *Router) Bind() *Binding {
	return &Binding{router: r}
}

func (b *Binding) On(ctx context.Context, topic string, kind event.Kind, handler event.Handler) error {
	h, err := b.router.Subscribe(ctx, topic, kind, handler)
	if err != nil {
		return err
	}

	b.mu.Lock()
	b.handles = append(b.handles, h)
	b.mu.Unlock()
	return nil
}

// Has reports whether the binding holds any handle on topic.
func (b *Binding) Has(topic string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, h := range b.handles {
		if h.topic == topic {
			return true
		}
	}
	return false
}

// Leave releases every handle of the binding on one topic.
func (b *Binding) Leave(topic string) {
	b.mu.Lock()
	kept := b.handles[:0]
	var dropped []Handle
	for _, h := range b.handles {
		if h.topic == topic {
			dropped = append(dropped, h)
		} else {
			kept = append(kept, h)
		}
	}
	b.handles = kept
	b.mu.Unlock()

	for _, h := range dropped {
		b.router.Unsubscribe(h)
	}
}

// Close releases every handle. The binding may be reused afterwards, which
// is how an identity change rebinds: Close, then On with the new topics.
func (b *Binding) Close() {
	b.mu.Lock()
	handles := b.handles
	b.handles = nil
	b.mu.Unlock()

	for _, h := range handles {
		b.router.Unsubscribe(h)
	}
}
