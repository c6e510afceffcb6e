package core

// Verb names a chat-server command independent of its wire spelling.
type Verb string

const (
	VerbRegister     Verb = "register"
	VerbMessage      Verb = "msg"
	VerbCreateGroup  Verb = "creategroup"
	VerbJoinGroup    Verb = "joingroup"
	VerbGroupMessage Verb = "msggroup"
)

// Command is one request to the chat server.
type Command struct {
	Verb   Verb
	Target string
	Text   string
}

// CommandCodec renders commands as a single protocol line.
type CommandCodec interface {
	Encode(Command) (string, error)
}
