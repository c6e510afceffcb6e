package domain

// PushKind classifies an inbound observer event.
type PushKind string

const (
	PushCallIncoming PushKind = "onCallIncoming"
	PushCallStarted  PushKind = "onCallStarted"
	PushCallAccepted PushKind = "onCallAccepted"
	PushCallRejected PushKind = "onCallRejected"
	PushCallEnded    PushKind = "onCallEnded"
	PushIceOffer     PushKind = "onIceOffer"
	PushIceAnswer    PushKind = "onIceAnswer"
	PushIceCandidate PushKind = "onIceCandidate"
	PushVoice        PushKind = "onVoice"
	PushMessage      PushKind = "onMessage"
)

// IsCall reports whether the event belongs to call signaling.
func (k PushKind) IsCall() bool {
	switch k {
	case PushCallIncoming, PushCallStarted, PushCallAccepted, PushCallRejected,
		PushCallEnded, PushIceOffer, PushIceAnswer, PushIceCandidate:
		return true
	}
	return false
}

// Push is one event received from the signaling middleware, addressed to User.
type Push struct {
	Kind      PushKind   `json:"event"`
	User      UserID     `json:"user"`
	CallID    CallID     `json:"call_id,omitempty"`
	From      UserID     `json:"from,omitempty"`
	To        UserID     `json:"to,omitempty"`
	CallKind  CallKind   `json:"kind,omitempty"`
	Group     GroupName  `json:"group,omitempty"`
	SDP       string     `json:"sdp,omitempty"`
	Candidate *Candidate `json:"candidate,omitempty"`
	AudioFile string     `json:"audioFile,omitempty"`
	Text      string     `json:"message,omitempty"`
	Timestamp string     `json:"timestamp,omitempty"`
}

// Notification is a near-real-time entry shown in a conversation (voice notes etc).
type Notification struct {
	Kind      PushKind  `json:"type"`
	Scope     Scope     `json:"scope"`
	From      UserID    `json:"from"`
	To        UserID    `json:"to,omitempty"`
	Group     GroupName `json:"group,omitempty"`
	AudioFile string    `json:"audioFile,omitempty"`
	Text      string    `json:"message,omitempty"`
	Timestamp string    `json:"timestamp"`
}

// ConversationFor derives the conversation an entry belongs to from owner's point of view.
func (n Notification) ConversationFor(owner UserID) ConversationKey {
	if n.Scope == ScopeGroup {
		return GroupConversation(n.Group)
	}
	if n.From == owner {
		return UserConversation(n.To)
	}
	return UserConversation(n.From)
}
