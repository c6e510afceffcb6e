package domain

import "strings"

// Scope tells a private exchange from a group one.
type Scope string

const (
	ScopePrivate Scope = "private"
	ScopeGroup   Scope = "group"
)

// ConversationKey identifies one conversation in the UI: "user:<id>" or "group:<name>".
type ConversationKey string

func UserConversation(id UserID) ConversationKey {
	return ConversationKey("user:" + string(id))
}

func GroupConversation(name GroupName) ConversationKey {
	return ConversationKey("group:" + string(name))
}

// ParseConversationKey accepts only the two known prefixes.
func ParseConversationKey(raw string) (ConversationKey, bool) {
	if rest, ok := strings.CutPrefix(raw, "user:"); ok && rest != "" {
		return ConversationKey(raw), true
	}
	if rest, ok := strings.CutPrefix(raw, "group:"); ok && rest != "" {
		return ConversationKey(raw), true
	}
	return "", false
}
