package app

import (
	"strings"
	"sync"

	"github.com/dkeye/callrelay/internal/core"
)

// AckMatcher infers success of a chat command from its free-text reply.
// The chat server has no structured acknowledgement, so this is a heuristic.
type AckMatcher interface {
	Accepted(verb core.Verb, reply string) bool
}

// DefaultAckKeywords are the reply fragments the chat server is known to use.
func DefaultAckKeywords() map[core.Verb][]string {
	return map[core.Verb][]string{
		core.VerbMessage:      {"ok", "sent", "enviado"},
		core.VerbCreateGroup:  {"ok", "created", "creado"},
		core.VerbJoinGroup:    {"ok", "joined", "unido", "ya eres miembro"},
		core.VerbGroupMessage: {"ok", "sent", "enviado"},
	}
}

// KeywordMatcher accepts a reply that contains any keyword of its verb,
// compared case-insensitively.
type KeywordMatcher struct {
	mu       sync.RWMutex
	keywords map[core.Verb][]string
}

// NewKeywordMatcher overlays overrides on DefaultAckKeywords.
func NewKeywordMatcher(overrides map[string][]string) *KeywordMatcher {
	m := &KeywordMatcher{}
	m.Update(overrides)
	return m
}

// Update replaces the keyword table; used on config reload.
func (m *KeywordMatcher) Update(overrides map[string][]string) {
	kw := DefaultAckKeywords()
	for verb, words := range overrides {
		if len(words) == 0 {
			continue
		}
		lowered := make([]string, 0, len(words))
		for _, w := range words {
			lowered = append(lowered, strings.ToLower(w))
		}
		kw[core.Verb(strings.ToLower(verb))] = lowered
	}
	m.mu.Lock()
	m.keywords = kw
	m.mu.Unlock()
}

func (m *KeywordMatcher) Accepted(verb core.Verb, reply string) bool {
	m.mu.RLock()
	words := m.keywords[verb]
	m.mu.RUnlock()
	r := strings.ToLower(reply)
	for _, w := range words {
		if strings.Contains(r, w) {
			return true
		}
	}
	return false
}
