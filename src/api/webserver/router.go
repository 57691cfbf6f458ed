package webserver

import (
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/stake-plus/guildgov/src/config"
	"github.com/stake-plus/guildgov/src/governance"
)

// New builds the governance HTTP API.
func New(cfg config.APIConfig, svc *governance.Service, runner *governance.Runner) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	attachRoutes(r, cfg, svc, runner)
	return r
}

func attachRoutes(r *gin.Engine, cfg config.APIConfig, svc *governance.Service, runner *governance.Runner) {
	if len(cfg.AllowedOrigins) > 0 {
		r.Use(cors.New(cors.Config{
			AllowOrigins:     cfg.AllowedOrigins,
			AllowMethods:     []string{"GET", "POST", "OPTIONS"},
			AllowHeaders:     []string{"Origin", "Content-Type", "Authorization"},
			ExposeHeaders:    []string{"Content-Length"},
			AllowCredentials: true,
		}))
	}

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	h := NewGovernance(svc, runner, cfg.GuildIDs)
	limiter := NewRateLimiter(120, time.Minute)

	v1 := r.Group("/v1")
	guild := v1.Group("/guilds/:guild")
	guild.Use(RateLimitMiddleware(limiter))
	{
		guild.GET("/election", h.Election)
		guild.GET("/elections/:id/candidates", h.Candidates)
		guild.GET("/administrators", h.Administrators)
		guild.GET("/reelections/:id", h.Reelection)
		guild.GET("/impeachments/:id", h.Impeachment)
	}

	operator := v1.Group("/guilds/:guild")
	operator.Use(JWTMiddleware([]byte(cfg.JWTSecret)))
	{
		operator.POST("/elections/:id/candidates/:user/approval", h.SetApproval)
		operator.POST("/scan", h.Scan)
	}
}
