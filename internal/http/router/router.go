package router

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/japaniel/glossary/internal/http/handler"
	"github.com/japaniel/glossary/internal/http/middleware"
)

type Handlers struct {
	Interactions *handler.InteractionHandler
	Quiz         *handler.QuizHandler
	Analytics    *handler.AnalyticsHandler
	Search       *handler.SearchHandler
	Annotate     *handler.AnnotateHandler
}

type RouterConfig struct {
	IsProduction bool
	// Health reports whether the service can serve traffic; nil means always.
	Health func(ctx context.Context) error
}

func SetupRoutes(router *gin.Engine, h Handlers, cfg RouterConfig) {
	router.GET("/health", func(c *gin.Context) {
		if cfg.Health != nil {
			if err := cfg.Health(c.Request.Context()); err != nil {
				c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "error": err.Error()})
				return
			}
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	glossary := router.Group("/api/glossary")
	glossary.Use(middleware.Identity(cfg.IsProduction))
	{
		glossary.POST("/track", h.Interactions.Track)
		glossary.POST("/quiz", h.Quiz.Submit)
		glossary.GET("/quiz", h.Quiz.Stats)
		glossary.GET("/trending", h.Analytics.Trending)
		glossary.GET("/analytics", h.Analytics.Report)
		glossary.GET("/search", h.Search.Search)
		glossary.POST("/annotate", h.Annotate.Annotate)
	}
}

// New builds an engine with the standard middleware and all routes.
func New(h Handlers, cfg RouterConfig) *gin.Engine {
	router := gin.New()
	router.Use(middleware.Recovery())
	router.Use(middleware.Logger())
	SetupRoutes(router, h, cfg)
	return router
}
