package http

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	nethttp "net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dkeye/callrelay/internal/adapters/linetcp"
	"github.com/dkeye/callrelay/internal/adapters/signal"
	"github.com/dkeye/callrelay/internal/app"
	"github.com/dkeye/callrelay/internal/app/orch"
	"github.com/dkeye/callrelay/internal/config"
	"github.com/dkeye/callrelay/internal/domain"
	"github.com/dkeye/callrelay/internal/storage"
)

type upControl struct{}

func (upControl) Connected() bool { return true }

func newTestRouter(t *testing.T) (*gin.Engine, *config.Config, *orch.Orchestrator) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	dir := t.TempDir()
	history, err := storage.OpenHistory(filepath.Join(dir, "history.jsonl"))
	require.NoError(t, err)

	cfg := &config.Config{
		Mode:       "test",
		StaticPath: dir,
		Secret:     "test-secret",
		VoiceDir:   filepath.Join(dir, "voice"),
		Client:     config.ClientConfig{PollInterval: 1500 * time.Millisecond},
		Media:      config.MediaConfig{Mode: config.MediaBrowser, ICEServers: []string{"stun:stun.example:3478"}},
	}
	o := &orch.Orchestrator{
		Sessions: app.NewRegistry(nil, nil, app.RegistryOptions{}),
		Clients:  app.NewClientRegistry(),
		Pending:  app.NewPendingBuffer(),
		History:  history,
		Control:  upControl{},
		Codec:    linetcp.TextCodec{},
	}
	r := SetupRouter(context.Background(), cfg, o, &signal.SignalWSController{Orch: o})
	return r, cfg, o
}

func do(r nethttp.Handler, method, target string, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, target, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestHistoryEndpoint(t *testing.T) {
	r, _, o := newTestRouter(t)
	require.NoError(t, o.History.Append(domain.HistoryRecord{Scope: domain.ScopePrivate, Sender: "a", Recipient: "b", Message: "hi", Timestamp: "T1"}))
	require.NoError(t, o.History.Append(domain.HistoryRecord{Scope: domain.ScopeGroup, Sender: "a", Group: "g1", Message: "yo", Timestamp: "T2"}))

	w := do(r, nethttp.MethodGet, "/history?scope=private&user=a&peer=b", nil)
	require.Equal(t, nethttp.StatusOK, w.Code)
	var resp ItemsResponse[domain.HistoryRecord]
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp.Items, 1)
	assert.Equal(t, "hi", resp.Items[0].Message)

	w = do(r, nethttp.MethodGet, "/history?scope=group&group=g1", nil)
	require.Equal(t, nethttp.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp.Items, 1)
	assert.Equal(t, "yo", resp.Items[0].Message)

	assert.Equal(t, nethttp.StatusBadRequest, do(r, nethttp.MethodGet, "/history?scope=private&user=a", nil).Code)
	assert.Equal(t, nethttp.StatusBadRequest, do(r, nethttp.MethodGet, "/history?scope=room", nil).Code)
}

func TestRegisterRejectsBadUsername(t *testing.T) {
	r, _, _ := newTestRouter(t)
	w := do(r, nethttp.MethodPost, "/register", RegisterRequest{Username: "two words"})
	assert.Equal(t, nethttp.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "whitespace")
}

func TestUpdatesUnknownUser(t *testing.T) {
	r, _, _ := newTestRouter(t)
	assert.Equal(t, nethttp.StatusBadRequest, do(r, nethttp.MethodGet, "/updates?user=ghost", nil).Code)
	assert.Equal(t, nethttp.StatusBadRequest, do(r, nethttp.MethodGet, "/updates", nil).Code)
}

func TestChatWithoutSession(t *testing.T) {
	r, _, _ := newTestRouter(t)
	w := do(r, nethttp.MethodPost, "/chat", ChatRequest{Sender: "alice", Receiver: "bob", Message: "hi"})
	assert.Equal(t, nethttp.StatusNotFound, w.Code)
}

func TestHealthAndConfig(t *testing.T) {
	r, _, _ := newTestRouter(t)

	w := do(r, nethttp.MethodGet, "/health", nil)
	require.Equal(t, nethttp.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok","sessions":0,"clients":0,"control_connected":true}`, w.Body.String())

	w = do(r, nethttp.MethodGet, "/config", nil)
	require.Equal(t, nethttp.StatusOK, w.Code)
	assert.JSONEq(t, `{"pollInterval":1500,"iceServers":["stun:stun.example:3478"],"mediaMode":"browser"}`, w.Body.String())
}

func TestVoiceServesBaseNameOnly(t *testing.T) {
	r, cfg, _ := newTestRouter(t)
	require.NoError(t, os.MkdirAll(cfg.VoiceDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(cfg.VoiceDir, "note.webm"), []byte("audio"), 0o644))

	w := do(r, nethttp.MethodGet, "/voice/note.webm", nil)
	require.Equal(t, nethttp.StatusOK, w.Code)
	assert.Equal(t, "audio", w.Body.String())

	assert.Equal(t, nethttp.StatusNotFound, do(r, nethttp.MethodGet, "/voice/missing.webm", nil).Code)
	assert.Equal(t, nethttp.StatusNotFound, do(r, nethttp.MethodGet, "/voice/..%2Fhistory.jsonl", nil).Code)
}

func TestUploadVoiceWithoutSessionKeepsNoFile(t *testing.T) {
	r, cfg, _ := newTestRouter(t)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	require.NoError(t, mw.WriteField("from", "alice"))
	require.NoError(t, mw.WriteField("to", "bob"))
	part, err := mw.CreateFormFile("audio", "note.webm")
	require.NoError(t, err)
	_, err = part.Write([]byte("audio"))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(nethttp.MethodPost, "/voice", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, nethttp.StatusNotFound, w.Code)
	entries, err := os.ReadDir(cfg.VoiceDir)
	if err == nil {
		assert.Empty(t, entries)
	} else {
		assert.True(t, os.IsNotExist(err))
	}
}

func TestSignalSocketRequiresSession(t *testing.T) {
	r, _, o := newTestRouter(t)

	w := do(r, nethttp.MethodGet, "/api/ws/signal?user=ghost", nil)

	assert.Equal(t, nethttp.StatusNotFound, w.Code)
	assert.Equal(t, 0, o.Clients.Len())
}
