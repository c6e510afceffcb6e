package app

import (
	"sync"

	"github.com/dkeye/callrelay/internal/domain"
)

// PendingBuffer holds notifications for conversations a user does not have
// open. Entries are never dropped; they leave only through a flush.
type PendingBuffer struct {
	mu      sync.Mutex
	focus   map[domain.UserID]domain.ConversationKey
	entries map[domain.UserID]map[domain.ConversationKey][]domain.Notification
}

func NewPendingBuffer() *PendingBuffer {
	return &PendingBuffer{
		focus:   make(map[domain.UserID]domain.ConversationKey),
		entries: make(map[domain.UserID]map[domain.ConversationKey][]domain.Notification),
	}
}

// Route buffers n unless its conversation is the one owner has open, in
// which case it reports true and the caller delivers it.
func (p *PendingBuffer) Route(owner domain.UserID, n domain.Notification) bool {
	key := n.ConversationFor(owner)
	p.mu.Lock()
	defer p.mu.Unlock()
	if cur, ok := p.focus[owner]; ok && cur == key {
		return true
	}
	byKey, ok := p.entries[owner]
	if !ok {
		byKey = make(map[domain.ConversationKey][]domain.Notification)
		p.entries[owner] = byKey
	}
	byKey[key] = append(byKey[key], n)
	return false
}

// Focus marks key as open for owner and returns what was buffered for it.
func (p *PendingBuffer) Focus(owner domain.UserID, key domain.ConversationKey) []domain.Notification {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.focus[owner] = key
	return p.flushLocked(owner, key)
}

// Flush returns the buffered entries for key in arrival order and clears them.
func (p *PendingBuffer) Flush(owner domain.UserID, key domain.ConversationKey) []domain.Notification {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.flushLocked(owner, key)
}

func (p *PendingBuffer) flushLocked(owner domain.UserID, key domain.ConversationKey) []domain.Notification {
	byKey, ok := p.entries[owner]
	if !ok {
		return nil
	}
	out := byKey[key]
	delete(byKey, key)
	if len(byKey) == 0 {
		delete(p.entries, owner)
	}
	return out
}

// Blur clears owner's open conversation, e.g. when its client goes away.
func (p *PendingBuffer) Blur(owner domain.UserID) {
	p.mu.Lock()
	delete(p.focus, owner)
	p.mu.Unlock()
}

func (p *PendingBuffer) Current(owner domain.UserID) (domain.ConversationKey, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	k, ok := p.focus[owner]
	return k, ok
}

// Counts reports buffered entries per conversation for owner.
func (p *PendingBuffer) Counts(owner domain.UserID) map[domain.ConversationKey]int {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make(map[domain.ConversationKey]int, len(p.entries[owner]))
	for k, v := range p.entries[owner] {
		out[k] = len(v)
	}
	return out
}
