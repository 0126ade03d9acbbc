package http

import (
	"context"

	"github.com/dkeye/VoiceRouter/internal/adapters/events"
	"github.com/dkeye/VoiceRouter/internal/adapters/signal"
	"github.com/dkeye/VoiceRouter/internal/app/profile"
	"github.com/dkeye/VoiceRouter/internal/app/routing"
	"github.com/dkeye/VoiceRouter/internal/config"
	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

func genClientToken() string {
	idStr := uuid.NewString()
	return idStr
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

// Deps are the services the HTTP surface exposes; nil ones are not routed.
type Deps struct {
	Engine   *routing.Engine
	Profiles *profile.Manager
	Signal   *signal.SignalWSController
	Events   *events.Hub
	// Stats returns the aggregated diagnostics served at /api/stats.
	Stats func() any
}

func SetupRouter(ctx context.Context, cfg *config.Config, d Deps) *gin.Engine {
	if cfg.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	if cfg.Mode == "debug" {
		r.Use(gin.Logger())
	}
	r.Use(gin.Recovery())

	store := cookie.NewStore([]byte(cfg.Secret))
	r.Use(sessions.Sessions("VoiceSessions", store))
	r.Use(ClientTokenMiddleware())

	if cfg.StaticPath != "" {
		r.Static("/static", cfg.StaticPath)
		r.GET("/", func(c *gin.Context) {
			c.File(cfg.StaticPath + "/index.html")
		})
	}

	log.Info().Str("module", "adapters.http").Str("static", cfg.StaticPath).Msg("router setup")

	api := r.Group("/api")

	if d.Signal != nil {
		api.GET("/ws/signal", func(c *gin.Context) {
			log.Info().Str("module", "adapters.http").Str("sid", c.GetString("client_token")).Msg("ws signal endpoint hit")
			d.Signal.HandleSignal(ctx, c)
		})
	}
	if d.Events != nil {
		api.GET("/ws/events", d.Events.HandleWS)
	}
	if d.Engine != nil {
		registerControl(api, &controlAPI{engine: d.Engine, profiles: d.Profiles, stats: d.Stats})
	}

	return r
}
