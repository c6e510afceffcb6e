package domain

type CallID string

type CallKind string

const (
	CallPrivate CallKind = "private"
	CallGroup   CallKind = "group"
)

type CallState string

const (
	CallIdle     CallState = "idle"
	CallOutgoing CallState = "outgoing"
	CallIncoming CallState = "incoming"
	CallActive   CallState = "active"
)

// Call is the record of the single call a participant may have at a time.
type Call struct {
	ID        CallID    `json:"call_id"`
	Kind      CallKind  `json:"kind"`
	Self      UserID    `json:"self"`
	Peer      UserID    `json:"peer,omitempty"`
	Group     GroupName `json:"group,omitempty"`
	Initiator bool      `json:"initiator"`
	State     CallState `json:"state"`
}

// Counterpart reports whether an event sender belongs to the other side of the call.
func (c *Call) Counterpart(from UserID) bool {
	if c.Kind == CallGroup {
		return from != c.Self
	}
	return from == c.Peer
}

// CallInvite is what the caller sends to the signaling endpoint.
type CallInvite struct {
	ID    CallID    `json:"call_id"`
	From  UserID    `json:"from"`
	To    UserID    `json:"to,omitempty"`
	Kind  CallKind  `json:"kind"`
	Group GroupName `json:"group,omitempty"`
}

// Candidate mirrors an ICE candidate init without tying domain to a media stack.
type Candidate struct {
	Candidate     string  `json:"candidate"`
	SDPMid        *string `json:"sdpMid,omitempty"`
	SDPMLineIndex *uint16 `json:"sdpMLineIndex,omitempty"`
}

type SignalKind string

const (
	SignalOffer     SignalKind = "offer"
	SignalAnswer    SignalKind = "answer"
	SignalCandidate SignalKind = "candidate"
)

// MediaSignal is one offer/answer/candidate exchanged for a call.
type MediaSignal struct {
	Kind      SignalKind `json:"kind"`
	CallID    CallID     `json:"call_id"`
	From      UserID     `json:"from"`
	To        UserID     `json:"to,omitempty"`
	Group     GroupName  `json:"group,omitempty"`
	SDP       string     `json:"sdp,omitempty"`
	Candidate *Candidate `json:"candidate,omitempty"`
}
