package http

import (
	"context"
	"net/http"

	"github.com/dkeye/Conference/internal/adapters/loopback"
	"github.com/dkeye/Conference/internal/adapters/signal"
	"github.com/dkeye/Conference/internal/app/session"
	"github.com/dkeye/Conference/internal/config"
	"github.com/dkeye/Conference/internal/core"
	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

const clientTokenKey = "client_token"

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
		c.Set(clientTokenKey, token)
		c.Next()
	}
}

// RateLimitMiddleware rejects state-changing requests above the limit.
func RateLimitMiddleware(rl *ActionRateLimiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !rl.Allow(sessionID(c)) {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "too many requests"})
			return
		}
		c.Next()
	}
}

func sessionID(c *gin.Context) core.SessionID {
	return core.SessionID(c.GetString(clientTokenKey))
}

func SetupRouter(ctx context.Context, cfg *config.Config, hub *loopback.Hub, registry *session.Registry) *gin.Engine {
	if cfg.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	if cfg.Mode == "debug" {
		r.Use(gin.Logger())
	}
	r.Use(gin.Recovery())

	store := cookie.NewStore([]byte(cfg.Secret))
	r.Use(sessions.Sessions("ConferenceSessions", store))
	r.Use(ClientTokenMiddleware())

	r.Static("/static", cfg.StaticPath)
	r.GET("/", func(c *gin.Context) {
		c.File(cfg.StaticPath + "/index.html")
	})

	log.Info().Str("module", "adapters.http").Str("static", cfg.StaticPath).Msg("router setup")

	h := &Handlers{
		Hub:        hub,
		Sessions:   registry,
		Cfg:        cfg,
		ServerCtx:  ctx,
		ICEServers: cfg.ICEServers,
	}
	events := signal.NewEventWSController(registry, cfg.ReadLimit, cfg.PingPeriod, cfg.EventBuffer)
	limited := RateLimitMiddleware(NewActionRateLimiter(cfg.ActionLimit, cfg.ActionInterval))

	api := r.Group("/api")
	api.GET("/rooms", h.ListRooms)
	api.DELETE("/rooms/:name", limited, h.CloseRoom)
	api.GET("/streams", h.Streams)

	actions := api.Group("", limited)
	actions.POST("/connect", h.Connect)
	actions.POST("/disconnect", h.Disconnect)
	actions.POST("/mute", h.SwitchMute)
	actions.POST("/speaker", h.SwitchSpeaker)
	actions.POST("/video", h.SwitchVideo)
	actions.POST("/camera", h.SwitchCamera)
	actions.POST("/watch/:peer", h.Watch)

	api.GET("/ws/events", func(c *gin.Context) {
		log.Info().Str("module", "adapters.http").Str("sid", c.GetString(clientTokenKey)).Msg("ws events endpoint hit")
		events.HandleEvents(ctx, c)
	})

	return r
}
