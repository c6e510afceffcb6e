package domain

// HistoryRecord is one line of the persisted conversation log.
type HistoryRecord struct {
	Scope     Scope     `json:"scope"`
	Sender    UserID    `json:"sender"`
	Recipient UserID    `json:"recipient,omitempty"`
	Group     GroupName `json:"group,omitempty"`
	Message   string    `json:"message,omitempty"`
	AudioFile string    `json:"audioFile,omitempty"`
	Timestamp string    `json:"timestamp"`
}

// HistoryQuery selects either a private pair or a group.
type HistoryQuery struct {
	Scope Scope
	User  UserID
	Peer  UserID
	Group GroupName
}

// Matches applies the query filter to a single record.
func (q HistoryQuery) Matches(r HistoryRecord) bool {
	if r.Scope != q.Scope {
		return false
	}
	switch q.Scope {
	case ScopePrivate:
		return (r.Sender == q.User && r.Recipient == q.Peer) ||
			(r.Sender == q.Peer && r.Recipient == q.User)
	case ScopeGroup:
		return r.Group == q.Group
	}
	return false
}
