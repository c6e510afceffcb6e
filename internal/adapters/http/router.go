package http

import (
	"context"
	nethttp "net/http"
	"path/filepath"

	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/callrelay/internal/adapters/signal"
	"github.com/dkeye/callrelay/internal/app"
	"github.com/dkeye/callrelay/internal/app/orch"
	"github.com/dkeye/callrelay/internal/config"
)

func genClientToken() string {
	return uuid.NewString()
}

func ClientTokenMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		token, _ := c.Cookie("ct")
		if token == "" {
			token = genClientToken()
			c.SetCookie("ct", token, 3600*24*7, "/", "", false, true)
		}
		c.Set("client_token", token)
		c.Next()
	}
}

func SetupRouter(ctx context.Context, cfg *config.Config, o *orch.Orchestrator, ws *signal.SignalWSController) *gin.Engine {
	if cfg.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	if cfg.Mode == "debug" {
		r.Use(gin.Logger())
	}
	r.Use(gin.Recovery())

	store := cookie.NewStore([]byte(cfg.Secret))
	r.Use(sessions.Sessions("CallRelaySessions", store))
	r.Use(ClientTokenMiddleware())

	h := &Handlers{Orch: o, Cfg: cfg}

	r.POST("/register", h.Register)
	r.GET("/updates", h.Updates)
	r.POST("/chat", h.Chat)
	r.POST("/group/create", h.CreateGroup)
	r.POST("/group/join", h.JoinGroup)
	r.POST("/group/message", h.GroupMessage)
	r.GET("/history", h.History)
	r.POST("/voice", h.UploadVoice)
	r.GET("/voice/:file", h.Voice)
	r.GET("/health", h.Health)
	r.GET("/config", h.Config)

	r.Static("/static", cfg.StaticPath)
	r.GET("/", func(c *gin.Context) {
		c.File(filepath.Join(cfg.StaticPath, "index.html"))
	})

	log.Info().Str("module", "adapters.http").Str("static", cfg.StaticPath).Msg("router setup")

	api := r.Group("/api")

	api.GET("/ws/signal", func(c *gin.Context) {
		user, ok := h.user(c, c.Query("user"))
		if !ok {
			return
		}
		if _, ok := o.Sessions.Get(user); !ok {
			abortError(c, nethttp.StatusNotFound, app.ErrNotConnected)
			return
		}
		log.Info().Str("module", "adapters.http").Str("sid", c.GetString("client_token")).Str("user", string(user)).Msg("ws signal endpoint hit")
		ws.HandleSignal(ctx, c, user)
	})

	return r
}
