package http

import (
	"errors"
	nethttp "net/http"
	"os"
	"path/filepath"

	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/callrelay/internal/app"
	"github.com/dkeye/callrelay/internal/app/orch"
	"github.com/dkeye/callrelay/internal/config"
	"github.com/dkeye/callrelay/internal/domain"
)

const sessionUserKey = "user"

type Handlers struct {
	Orch *orch.Orchestrator
	Cfg  *config.Config
}

type RegisterRequest struct {
	Username string `json:"username"`
}

type ChatRequest struct {
	Sender   string `json:"sender"`
	Receiver string `json:"receiver"`
	Message  string `json:"message"`
}

type GroupRequest struct {
	GroupName string `json:"groupName"`
	Creator   string `json:"creator"`
	User      string `json:"user"`
	Sender    string `json:"sender"`
	Message   string `json:"message"`
}

type ItemsResponse[T any] struct {
	Items []T `json:"items"`
}

func abortError(c *gin.Context, status int, err error) {
	c.AbortWithStatusJSON(status, gin.H{"error": err.Error()})
}

// statusOf maps the error taxonomy onto HTTP codes.
func statusOf(err error) int {
	switch {
	case errors.Is(err, app.ErrNotConnected), errors.Is(err, app.ErrNotRegistered):
		return nethttp.StatusNotFound
	case errors.Is(err, app.ErrTimeout):
		return nethttp.StatusGatewayTimeout
	case errors.Is(err, app.ErrConnectionLost):
		return nethttp.StatusBadGateway
	case errors.Is(err, app.ErrRequestInFlight):
		return nethttp.StatusTooManyRequests
	case errors.Is(err, domain.ErrUserIDEmpty), errors.Is(err, domain.ErrUserIDTooLong), errors.Is(err, domain.ErrUserIDSpaces):
		return nethttp.StatusBadRequest
	}
	return nethttp.StatusInternalServerError
}

// user resolves the acting user from an explicit value or the cookie session.
func (h *Handlers) user(c *gin.Context, explicit string) (domain.UserID, bool) {
	if explicit == "" {
		if v, ok := sessions.Default(c).Get(sessionUserKey).(string); ok {
			explicit = v
		}
	}
	id, err := domain.ParseUserID(explicit)
	if err != nil {
		abortError(c, nethttp.StatusBadRequest, err)
		return "", false
	}
	return id, true
}

func (h *Handlers) Register(c *gin.Context) {
	var req RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortError(c, nethttp.StatusBadRequest, err)
		return
	}
	user, err := domain.ParseUserID(req.Username)
	if err != nil {
		abortError(c, nethttp.StatusBadRequest, err)
		return
	}
	res, err := h.Orch.Register(c.Request.Context(), user)
	if err != nil {
		log.Error().Err(err).Str("module", "adapters.http").Str("user", string(user)).Msg("register")
		abortError(c, nethttp.StatusInternalServerError, err)
		return
	}
	s := sessions.Default(c)
	s.Set(sessionUserKey, string(user))
	if err := s.Save(); err != nil {
		log.Warn().Err(err).Str("module", "adapters.http").Msg("session save")
	}
	c.JSON(nethttp.StatusOK, res)
}

func (h *Handlers) Updates(c *gin.Context) {
	user, ok := h.user(c, c.Query("user"))
	if !ok {
		return
	}
	items, err := h.Orch.Poll(user)
	if err != nil {
		abortError(c, nethttp.StatusBadRequest, err)
		return
	}
	c.JSON(nethttp.StatusOK, ItemsResponse[string]{Items: items})
}

// commandReply writes the chat server's verdict. A remote rejection is still
// a 200: the caller shows the raw reply.
func commandReply(c *gin.Context, res orch.CommandResult, err error) {
	if err != nil && !errors.Is(err, app.ErrRemoteRejection) {
		abortError(c, statusOf(err), err)
		return
	}
	c.JSON(nethttp.StatusOK, res)
}

func (h *Handlers) Chat(c *gin.Context) {
	var req ChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortError(c, nethttp.StatusBadRequest, err)
		return
	}
	sender, ok := h.user(c, req.Sender)
	if !ok {
		return
	}
	receiver, err := domain.ParseUserID(req.Receiver)
	if err != nil {
		abortError(c, nethttp.StatusBadRequest, err)
		return
	}
	res, err := h.Orch.SendPrivate(c.Request.Context(), sender, receiver, req.Message)
	commandReply(c, res, err)
}

func (h *Handlers) bindGroup(c *gin.Context) (GroupRequest, domain.GroupName, bool) {
	var req GroupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortError(c, nethttp.StatusBadRequest, err)
		return req, "", false
	}
	if req.GroupName == "" {
		abortError(c, nethttp.StatusBadRequest, errors.New("missing groupName"))
		return req, "", false
	}
	return req, domain.GroupName(req.GroupName), true
}

func (h *Handlers) CreateGroup(c *gin.Context) {
	req, group, ok := h.bindGroup(c)
	if !ok {
		return
	}
	user, ok := h.user(c, req.Creator)
	if !ok {
		return
	}
	res, err := h.Orch.CreateGroup(c.Request.Context(), user, group)
	commandReply(c, res, err)
}

func (h *Handlers) JoinGroup(c *gin.Context) {
	req, group, ok := h.bindGroup(c)
	if !ok {
		return
	}
	user, ok := h.user(c, req.User)
	if !ok {
		return
	}
	res, err := h.Orch.JoinGroup(c.Request.Context(), user, group)
	commandReply(c, res, err)
}

func (h *Handlers) GroupMessage(c *gin.Context) {
	req, group, ok := h.bindGroup(c)
	if !ok {
		return
	}
	user, ok := h.user(c, req.Sender)
	if !ok {
		return
	}
	res, err := h.Orch.SendGroup(c.Request.Context(), user, group, req.Message)
	commandReply(c, res, err)
}

func (h *Handlers) History(c *gin.Context) {
	q := domain.HistoryQuery{
		Scope: domain.Scope(c.Query("scope")),
		User:  domain.UserID(c.Query("user")),
		Peer:  domain.UserID(c.Query("peer")),
		Group: domain.GroupName(c.Query("group")),
	}
	switch q.Scope {
	case domain.ScopePrivate:
		if q.User == "" || q.Peer == "" {
			abortError(c, nethttp.StatusBadRequest, errors.New("private history needs user and peer"))
			return
		}
	case domain.ScopeGroup:
		if q.Group == "" {
			abortError(c, nethttp.StatusBadRequest, errors.New("group history needs group"))
			return
		}
	default:
		abortError(c, nethttp.StatusBadRequest, errors.New("scope must be private or group"))
		return
	}
	items, err := h.Orch.QueryHistory(q)
	if err != nil {
		abortError(c, nethttp.StatusInternalServerError, err)
		return
	}
	c.JSON(nethttp.StatusOK, ItemsResponse[domain.HistoryRecord]{Items: items})
}

// UploadVoice stores a multipart "audio" file and announces it to the
// recipient (field "to") or the group (field "group").
func (h *Handlers) UploadVoice(c *gin.Context) {
	from, ok := h.user(c, c.PostForm("from"))
	if !ok {
		return
	}
	n := domain.Notification{From: from, Scope: domain.ScopePrivate}
	if g := c.PostForm("group"); g != "" {
		n.Scope = domain.ScopeGroup
		n.Group = domain.GroupName(g)
	} else {
		to, err := domain.ParseUserID(c.PostForm("to"))
		if err != nil {
			abortError(c, nethttp.StatusBadRequest, err)
			return
		}
		n.To = to
	}

	file, err := c.FormFile("audio")
	if err != nil {
		abortError(c, nethttp.StatusBadRequest, err)
		return
	}
	if _, ok := h.Orch.Sessions.Get(from); !ok {
		abortError(c, nethttp.StatusNotFound, app.ErrNotConnected)
		return
	}
	ext := filepath.Ext(file.Filename)
	if ext == "" {
		ext = ".webm"
	}
	if err := os.MkdirAll(h.Cfg.VoiceDir, 0o755); err != nil {
		abortError(c, nethttp.StatusInternalServerError, err)
		return
	}
	n.AudioFile = uuid.NewString() + ext
	path := filepath.Join(h.Cfg.VoiceDir, n.AudioFile)
	if err := c.SaveUploadedFile(file, path); err != nil {
		abortError(c, nethttp.StatusInternalServerError, err)
		return
	}

	sent, err := h.Orch.SendVoice(c.Request.Context(), n)
	if err != nil {
		if rmErr := os.Remove(path); rmErr != nil {
			log.Warn().Err(rmErr).Str("module", "adapters.http").Str("file", n.AudioFile).Msg("remove unsent voice note")
		}
		log.Error().Err(err).Str("module", "adapters.http").Str("user", string(from)).Msg("voice")
		abortError(c, statusOf(err), err)
		return
	}
	c.JSON(nethttp.StatusOK, sent)
}

func (h *Handlers) Voice(c *gin.Context) {
	name := filepath.Base(c.Param("file"))
	if name == "." || name == "/" || name == ".." {
		abortError(c, nethttp.StatusBadRequest, errors.New("bad file name"))
		return
	}
	path := filepath.Join(h.Cfg.VoiceDir, name)
	if _, err := os.Stat(path); err != nil {
		abortError(c, nethttp.StatusNotFound, errors.New("audio file not found"))
		return
	}
	c.File(path)
}

func (h *Handlers) Health(c *gin.Context) {
	c.JSON(nethttp.StatusOK, h.Orch.Health())
}

func (h *Handlers) Config(c *gin.Context) {
	c.JSON(nethttp.StatusOK, gin.H{
		"pollInterval": h.Cfg.Client.PollInterval.Milliseconds(),
		"iceServers":   h.Cfg.Media.ICEServers,
		"mediaMode":    h.Cfg.Media.Mode,
	})
}
