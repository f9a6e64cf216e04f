package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"weekly-assistant/internal/bootstrap"
)

type HealthHandler struct {
	app *bootstrap.App
}

type dependencyStatus struct {
	OK      bool   `json:"ok"`
	Message string `json:"message,omitempty"`
}

func NewHealthHandler(app *bootstrap.App) *HealthHandler {
	return &HealthHandler{app: app}
}

func (h *HealthHandler) Check(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	postgresStatus := h.checkPostgres(ctx)
	dependencies := gin.H{"postgres": postgresStatus}
	allOK := postgresStatus.OK
	if h.app.Redis != nil {
		redisStatus := h.checkRedis(ctx)
		dependencies["redis"] = redisStatus
		allOK = allOK && redisStatus.OK
	}

	statusCode := http.StatusOK
	if !allOK {
		statusCode = http.StatusServiceUnavailable
	}

	c.JSON(statusCode, gin.H{
		"app":          h.app.Config.App.Name,
		"env":          h.app.Config.App.Env,
		"uptime_sec":   int(time.Since(h.app.StartedAt).Seconds()),
		"dependencies": dependencies,
	})
}

func (h *HealthHandler) checkPostgres(ctx context.Context) dependencyStatus {
	if h.app.Postgres == nil {
		return dependencyStatus{OK: false, Message: "not connected"}
	}
	sqlDB, err := h.app.Postgres.DB()
	if err != nil {
		return dependencyStatus{OK: false, Message: err.Error()}
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		return dependencyStatus{OK: false, Message: err.Error()}
	}
	return dependencyStatus{OK: true}
}

func (h *HealthHandler) checkRedis(ctx context.Context) dependencyStatus {
	if err := h.app.Redis.Ping(ctx).Err(); err != nil {
		return dependencyStatus{OK: false, Message: err.Error()}
	}
	return dependencyStatus{OK: true}
}
