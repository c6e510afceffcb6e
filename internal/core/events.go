package core

import (
	"sync"

	"github.com/rs/zerolog/log"
	"github.com/sourcegraph/conc/panics"
)

// Bus is a typed publish/subscribe point. A panicking listener is logged
// and does not stop delivery to the others.
type Bus[T any] struct {
	mu   sync.RWMutex
	next uint64
	subs []busSub[T]
}

type busSub[T any] struct {
	id uint64
	fn func(T)
}

// Subscribe registers fn and returns a handle that removes it.
func (b *Bus[T]) Subscribe(fn func(T)) (unsubscribe func()) {
	b.mu.Lock()
	b.next++
	id := b.next
	b.subs = append(b.subs, busSub[T]{id: id, fn: fn})
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			for i, s := range b.subs {
				if s.id == id {
					b.subs = append(b.subs[:i:i], b.subs[i+1:]...)
					return
				}
			}
		})
	}
}

func (b *Bus[T]) Publish(v T) {
	b.mu.RLock()
	subs := make([]busSub[T], len(b.subs))
	copy(subs, b.subs)
	b.mu.RUnlock()

	for _, s := range subs {
		var pc panics.Catcher
		pc.Try(func() { s.fn(v) })
		if r := pc.Recovered(); r != nil {
			log.Error().Str("module", "core.bus").Interface("panic", r.Value).Msg("listener panicked")
		}
	}
}

func (b *Bus[T]) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}
