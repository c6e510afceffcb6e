package orch

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	json "github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/dkeye/callrelay/internal/app"
	"github.com/dkeye/callrelay/internal/app/call"
	"github.com/dkeye/callrelay/internal/core"
	"github.com/dkeye/callrelay/internal/core/mocks"
	"github.com/dkeye/callrelay/internal/domain"
	"github.com/dkeye/callrelay/internal/storage"
)

type chatConn struct {
	data   core.Bus[[]byte]
	closed core.Bus[error]

	mu      sync.Mutex
	done    bool
	replies map[string]string
}

func (c *chatConn) Send(line string) error {
	c.mu.Lock()
	verb, _, _ := strings.Cut(line, " ")
	reply, ok := c.replies[verb]
	c.mu.Unlock()
	if ok {
		c.data.Publish([]byte(reply + "\n"))
	}
	return nil
}

func (c *chatConn) OnData(fn func([]byte)) func()  { return c.data.Subscribe(fn) }
func (c *chatConn) OnClosed(fn func(error)) func() { return c.closed.Subscribe(fn) }
func (c *chatConn) Start()                         {}

func (c *chatConn) Close() error {
	c.mu.Lock()
	if c.done {
		c.mu.Unlock()
		return nil
	}
	c.done = true
	c.mu.Unlock()
	c.closed.Publish(nil)
	return nil
}

// chatServer answers each command verb with a canned reply.
type chatServer struct {
	replies map[string]string
}

func (s chatServer) Dial(context.Context, string) (core.LineConn, error) {
	return &chatConn{replies: s.replies}, nil
}

type textCodec struct{}

func (textCodec) Encode(cmd core.Command) (string, error) {
	if cmd.Verb == core.VerbRegister {
		return cmd.Target, nil
	}
	return "/" + string(cmd.Verb) + " " + cmd.Target + " " + cmd.Text, nil
}

type fakeObserver struct {
	mu           sync.Mutex
	subscribed   []domain.UserID
	unsubscribed []domain.UserID
	voices       []domain.Notification
	events       core.Bus[domain.Push]
}

func (f *fakeObserver) Subscribe(_ context.Context, u domain.UserID) error {
	f.mu.Lock()
	f.subscribed = append(f.subscribed, u)
	f.mu.Unlock()
	return nil
}

func (f *fakeObserver) Unsubscribe(_ context.Context, u domain.UserID) error {
	f.mu.Lock()
	f.unsubscribed = append(f.unsubscribed, u)
	f.mu.Unlock()
	return nil
}

func (f *fakeObserver) SendVoice(_ context.Context, n domain.Notification) error {
	f.mu.Lock()
	f.voices = append(f.voices, n)
	f.mu.Unlock()
	return nil
}

func (f *fakeObserver) OnPush(fn func(domain.Push)) func() { return f.events.Subscribe(fn) }

type fakeSignal struct {
	mu     sync.Mutex
	frames []core.Frame
	err    error
}

func (s *fakeSignal) TrySend(f core.Frame) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.frames = append(s.frames, f)
	return nil
}

func (s *fakeSignal) Close() {}

func (s *fakeSignal) types(t *testing.T) []string {
	t.Helper()
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []string
	for _, f := range s.frames {
		var m struct {
			Type string `json:"type"`
		}
		require.NoError(t, json.Unmarshal(f, &m))
		out = append(out, m.Type)
	}
	return out
}

type controlUp bool

func (c controlUp) Connected() bool { return bool(c) }

type noMedia struct{}

func (noMedia) NewMedia(domain.UserID, domain.Call) (core.MediaSession, error) {
	return nil, errors.New("no media in tests")
}

type fixture struct {
	o   *Orchestrator
	obs *fakeObserver
	sig *mocks.MockCallSignaler
}

func newFixture(t *testing.T, replies map[string]string) *fixture {
	t.Helper()
	history, err := storage.OpenHistory(t.TempDir() + "/history.jsonl")
	require.NoError(t, err)

	ctrl := gomock.NewController(t)
	sig := mocks.NewMockCallSignaler(ctrl)
	obs := &fakeObserver{}
	o := &Orchestrator{
		Sessions:       app.NewRegistry(chatServer{replies: replies}, textCodec{}, app.RegistryOptions{Grace: time.Millisecond}),
		Clients:        app.NewClientRegistry(),
		Calls:          call.NewManager(sig, noMedia{}),
		Pending:        app.NewPendingBuffer(),
		History:        history,
		Observer:       obs,
		Control:        controlUp(true),
		Acks:           app.NewKeywordMatcher(nil),
		Codec:          textCodec{},
		Policy:         app.SimplePolicy{},
		CommandTimeout: time.Second,
		Now:            func() time.Time { return time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC) },
	}
	t.Cleanup(o.Wire())
	return &fixture{o: o, obs: obs, sig: sig}
}

func (f *fixture) register(t *testing.T, user domain.UserID) {
	t.Helper()
	_, err := f.o.Register(context.Background(), user)
	require.NoError(t, err)
}

func TestRegisterSubscribesOnce(t *testing.T) {
	f := newFixture(t, nil)
	f.register(t, "alice")

	res, err := f.o.Register(context.Background(), "alice")
	require.NoError(t, err)
	assert.True(t, res.AlreadyConnected)
	assert.Equal(t, []domain.UserID{"alice"}, f.obs.subscribed)
}

func TestSendPrivateRecordsHistory(t *testing.T) {
	f := newFixture(t, map[string]string{"/msg": "Message sent"})
	f.register(t, "alice")

	res, err := f.o.SendPrivate(context.Background(), "alice", "bob", "hello\nthere")
	require.NoError(t, err)
	assert.True(t, res.OK)
	assert.Equal(t, "Message sent", res.Reply)

	recs, err := f.o.QueryHistory(domain.HistoryQuery{Scope: domain.ScopePrivate, User: "bob", Peer: "alice"})
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "hello there", recs[0].Message)
	assert.Equal(t, "2026-01-02T03:04:05.000Z", recs[0].Timestamp)
}

func TestNegativeAckIsRemoteRejection(t *testing.T) {
	f := newFixture(t, map[string]string{"/joingroup": "Group does not exist"})
	f.register(t, "alice")

	res, err := f.o.JoinGroup(context.Background(), "alice", "nope")
	assert.ErrorIs(t, err, app.ErrRemoteRejection)
	assert.False(t, res.OK)
	assert.Equal(t, "Group does not exist", res.Reply)
}

func TestSendGroupNotConnected(t *testing.T) {
	f := newFixture(t, nil)
	_, err := f.o.SendGroup(context.Background(), "ghost", "g1", "hi")
	assert.ErrorIs(t, err, app.ErrNotConnected)
}

func TestVoiceWithoutClientGoesToMailbox(t *testing.T) {
	f := newFixture(t, nil)
	f.register(t, "bob")

	f.obs.events.Publish(domain.Push{Kind: domain.PushVoice, User: "bob", From: "alice", AudioFile: "a.webm"})

	items, err := f.o.Poll("bob")
	require.NoError(t, err)
	require.Len(t, items, 1)
	var n domain.Notification
	require.NoError(t, json.Unmarshal([]byte(items[0]), &n))
	assert.Equal(t, domain.UserConversation("alice"), n.ConversationFor("bob"))
	assert.Equal(t, "a.webm", n.AudioFile)
}

func TestVoiceBufferedUntilFocus(t *testing.T) {
	f := newFixture(t, nil)
	f.register(t, "bob")
	browser := &fakeSignal{}
	f.o.AttachClient("bob", browser, func() {})
	f.o.Focus("bob", domain.UserConversation("alice"))

	f.obs.events.Publish(domain.Push{Kind: domain.PushVoice, User: "bob", From: "carol", Group: "g1", AudioFile: "g.webm"})
	assert.Empty(t, browser.types(t))

	f.obs.events.Publish(domain.Push{Kind: domain.PushVoice, User: "bob", From: "alice", AudioFile: "a.webm"})
	assert.Equal(t, []string{"voice"}, browser.types(t))

	flushed := f.o.Focus("bob", domain.GroupConversation("g1"))
	require.Len(t, flushed, 1)
	assert.Equal(t, "g.webm", flushed[0].AudioFile)
	assert.Equal(t, []string{"voice", "pending_flush"}, browser.types(t))

	assert.Empty(t, f.o.Focus("bob", domain.GroupConversation("g1")))
}

func TestBackpressureFallsBackToMailbox(t *testing.T) {
	f := newFixture(t, nil)
	f.register(t, "bob")
	f.o.AttachClient("bob", &fakeSignal{err: errors.New("backpressure")}, func() {})

	f.o.Push("bob", map[string]string{"type": "ping"})

	items, err := f.o.Poll("bob")
	require.NoError(t, err)
	assert.Equal(t, []string{`{"type":"ping"}`}, items)
}

func TestBackpressureDropDiscardsFrame(t *testing.T) {
	f := newFixture(t, nil)
	f.o.Policy = app.FixedPolicy(app.DropEvent)
	f.register(t, "bob")
	canceled := false
	f.o.AttachClient("bob", &fakeSignal{err: errors.New("backpressure")}, func() { canceled = true })

	f.o.Push("bob", map[string]string{"type": "ping"})

	items, err := f.o.Poll("bob")
	require.NoError(t, err)
	assert.Empty(t, items)
	assert.False(t, canceled)
	_, ok := f.o.Clients.Get("bob")
	assert.True(t, ok)
}

func TestBackpressureKickCancelsClient(t *testing.T) {
	f := newFixture(t, nil)
	f.o.Policy = app.FixedPolicy(app.KickClient)
	f.register(t, "bob")
	canceled := false
	f.o.AttachClient("bob", &fakeSignal{err: errors.New("backpressure")}, func() { canceled = true })

	f.o.Push("bob", map[string]string{"type": "ping"})

	assert.True(t, canceled)
	items, err := f.o.Poll("bob")
	require.NoError(t, err)
	assert.Empty(t, items)
}

func TestChatPushGoesToMailbox(t *testing.T) {
	f := newFixture(t, nil)
	f.register(t, "bob")
	f.o.AttachClient("bob", &fakeSignal{}, func() {})

	f.obs.events.Publish(domain.Push{Kind: domain.PushMessage, User: "bob", From: "alice", Text: "hi"})

	items, err := f.o.Poll("bob")
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Contains(t, items[0], `"message":"hi"`)
}

func TestIncomingCallReachesBrowser(t *testing.T) {
	f := newFixture(t, nil)
	f.register(t, "bob")
	browser := &fakeSignal{}
	f.o.AttachClient("bob", browser, func() {})

	f.obs.events.Publish(domain.Push{Kind: domain.PushCallIncoming, User: "bob", CallID: "c1", From: "alice"})

	assert.Equal(t, []string{string(call.EventIncoming)}, browser.types(t))
	c, ok := f.o.CurrentCall("bob")
	require.True(t, ok)
	assert.Equal(t, domain.CallIncoming, c.State)
}

func TestCallEventForUnregisteredUserIsDropped(t *testing.T) {
	f := newFixture(t, nil)

	f.obs.events.Publish(domain.Push{Kind: domain.PushCallIncoming, User: "ghost", CallID: "c9", From: "alice"})

	_, ok := f.o.Calls.Lookup("ghost")
	require.False(t, ok)

	f.register(t, "ghost")
	c, ok := f.o.CurrentCall("ghost")
	assert.False(t, ok)
	assert.Equal(t, domain.CallIdle, c.State)

	f.sig.EXPECT().InitiateCall(gomock.Any(), gomock.Any()).Return(nil)
	_, err := f.o.StartCall(context.Background(), "ghost", domain.CallPrivate, "bob", "")
	assert.NoError(t, err)
}

func TestCallActionsRequireSession(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	assert.ErrorIs(t, f.o.AcceptCall(ctx, "ghost", "c1"), app.ErrNotConnected)
	assert.ErrorIs(t, f.o.RejectCall(ctx, "ghost", "c1"), app.ErrNotConnected)
	assert.ErrorIs(t, f.o.EndCall(ctx, "ghost", "c1"), app.ErrNotConnected)
	_, ok := f.o.Calls.Lookup("ghost")
	assert.False(t, ok)
}

func TestStartCallRequiresSession(t *testing.T) {
	f := newFixture(t, nil)
	_, err := f.o.StartCall(context.Background(), "ghost", domain.CallPrivate, "bob", "")
	assert.ErrorIs(t, err, app.ErrNotConnected)
}

func TestSessionCloseCleansUp(t *testing.T) {
	f := newFixture(t, nil)
	f.register(t, "bob")
	canceled := false
	f.o.AttachClient("bob", &fakeSignal{}, func() { canceled = true })
	f.obs.events.Publish(domain.Push{Kind: domain.PushCallIncoming, User: "bob", CallID: "c1", From: "alice"})

	f.sig.EXPECT().EndCall(gomock.Any(), domain.CallID("c1"), domain.UserID("bob")).Return(nil)
	require.NoError(t, f.o.Sessions.Disconnect("bob"))

	assert.True(t, canceled)
	assert.Equal(t, []domain.UserID{"bob"}, f.obs.unsubscribed)
	_, ok := f.o.Calls.Lookup("bob")
	assert.False(t, ok)
}

func TestSendVoiceRecordsAndAnnounces(t *testing.T) {
	f := newFixture(t, nil)
	f.register(t, "alice")

	n, err := f.o.SendVoice(context.Background(), domain.Notification{Scope: domain.ScopeGroup, From: "alice", Group: "g1", AudioFile: "v.webm"})
	require.NoError(t, err)
	assert.Equal(t, domain.PushVoice, n.Kind)
	require.Len(t, f.obs.voices, 1)

	recs, err := f.o.QueryHistory(domain.HistoryQuery{Scope: domain.ScopeGroup, Group: "g1"})
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "v.webm", recs[0].AudioFile)
}

func TestHealth(t *testing.T) {
	f := newFixture(t, nil)
	assert.Equal(t, "ok", f.o.Health().Status)

	f.o.Control = controlUp(false)
	h := f.o.Health()
	assert.Equal(t, "degraded", h.Status)
	assert.False(t, h.Control)
}
