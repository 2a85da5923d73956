package router

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/stemsi/survey-backend/internal/config"
	"github.com/stemsi/survey-backend/internal/handler"
	"github.com/stemsi/survey-backend/internal/middleware"
	"github.com/stemsi/survey-backend/internal/response"
)

// Handlers groups all handler instances for route setup.
type Handlers struct {
	Survey  *handler.SurveyHandler
	Session *handler.SessionHandler
	WS      *handler.WSHandler
}

// SetupRouter configures all Gin route groups with appropriate middlewares.
func SetupRouter(
	handlers *Handlers,
	answerLimiter *middleware.RateLimiter,
	registry *prometheus.Registry,
	cfg *config.Config,
) *gin.Engine {
	gin.SetMode(cfg.GinMode)
	router := gin.Default()

	// ─── CORS ──────────────────────────────────────────────────────────
	// Restrict to AllowedOrigins when set; otherwise allow all so dev works
	// without extra config.
	corsConfig := cors.DefaultConfig()
	if len(cfg.AllowedOrigins) > 0 {
		corsConfig.AllowOrigins = cfg.AllowedOrigins
	} else {
		corsConfig.AllowAllOrigins = true
	}
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "X-Request-ID"}
	corsConfig.ExposeHeaders = []string{"X-Request-ID"}
	corsConfig.MaxAge = 12 * time.Hour
	router.Use(cors.New(corsConfig))

	router.Use(response.RequestIDMiddleware())

	// promhttp negotiates its own compression.
	router.Use(middleware.BrotliWithConfig(middleware.BrotliConfig{
		Quality:       middleware.DefaultBrotliConfig.Quality,
		MinLength:     middleware.DefaultBrotliConfig.MinLength,
		ExcludedPaths: []string{"/metrics"},
	}))

	router.GET("/health", func(c *gin.Context) {
		response.Success(c, http.StatusOK, gin.H{"status": "ok"})
	})
	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(registry, promhttp.HandlerOpts{Registry: registry})))

	// ─── 1. Survey definitions ─────────────────────────────────────────
	forms := router.Group("/api/v1/forms")
	{
		forms.PUT("/:form_id", middleware.NoStore(), handlers.Survey.PutSurvey)
		forms.GET("/:form_id", middleware.CacheControl(60), handlers.Survey.GetSurvey)
		forms.GET("/:form_id/lint", middleware.NoStore(), handlers.Survey.LintSurvey)
		forms.POST("/:form_id/sessions", middleware.NoStore(), handlers.Session.StartSession)
	}

	// ─── 2. Respondent sessions ────────────────────────────────────────
	sessions := router.Group("/api/v1/sessions/:session_id")
	sessions.Use(middleware.NoStore())
	{
		sessions.GET("", handlers.Session.GetSession)
		sessions.PUT("/answers", answerLimiter.Middleware(), handlers.Session.Answer)
		sessions.POST("/next", handlers.Session.Next)
		sessions.POST("/back", handlers.Session.Back)
		sessions.POST("/jump", handlers.Session.Jump)
		sessions.POST("/reset", handlers.Session.Reset)
		sessions.POST("/submit", handlers.Session.Submit)
	}

	// ─── 3. Live session stream ────────────────────────────────────────
	ws := router.Group("/ws/v1")
	{
		ws.GET("/sessions/:session_id/stream", handlers.WS.SessionStream)
	}

	return router
}
