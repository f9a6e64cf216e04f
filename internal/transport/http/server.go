package http

import (
	"time"

	"github.com/gin-gonic/gin"

	"weekly-assistant/internal/ai"
	appsvc "weekly-assistant/internal/app"
	"weekly-assistant/internal/bootstrap"
	"weekly-assistant/internal/cache"
	"weekly-assistant/internal/repository"
	"weekly-assistant/internal/transport/http/handler"
	"weekly-assistant/internal/transport/http/middleware"
	"weekly-assistant/web"
)

func NewRouter(app *bootstrap.App) *gin.Engine {
	gin.SetMode(app.Config.App.GinMode)

	opts := appsvc.AskServiceOptions{
		EmbeddingConfig: ai.EmbeddingConfig{
			BaseURL: app.Config.LLM.BaseURL,
			APIKey:  app.Config.LLM.APIKey,
			Model:   app.Config.LLM.EmbeddingModel,
		},
		ChatConfig: ai.ChatConfig{
			BaseURL:     app.Config.LLM.BaseURL,
			APIKey:      app.Config.LLM.APIKey,
			Model:       app.Config.LLM.Model,
			Temperature: app.Config.LLM.Temperature,
		},
		SystemPrompt: app.Config.RAG.SystemPrompt,
		MatchCount:   app.Config.RAG.MatchCount,
	}
	if app.Redis != nil {
		ttl := time.Duration(app.Config.Redis.EmbeddingTTLSeconds) * time.Second
		opts.Cache = cache.NewEmbeddingCache(app.Redis, app.Config.LLM.EmbeddingModel, ttl)
	}

	askService := appsvc.NewAskService(
		app.LLM,
		repository.NewWeeklyReportRepository(app.Postgres),
		repository.NewEmployeeRepository(app.Postgres),
		opts,
	)

	return newEngine(handler.NewAskHandler(askService), handler.NewHealthHandler(app))
}

func newEngine(askHandler *handler.AskHandler, healthHandler *handler.HealthHandler) *gin.Engine {
	router := gin.New()
	router.Use(middleware.RequestID(), gin.Logger(), gin.Recovery())

	router.GET("/", func(c *gin.Context) {
		c.Data(200, "text/html; charset=utf-8", web.IndexHTML)
	})
	router.GET("/healthz", healthHandler.Check)

	api := router.Group("/api")
	api.POST("/ask", askHandler.Ask)

	return router
}
