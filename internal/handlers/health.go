package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

type healthResponse struct {
	Status      string `json:"status"`
	Database    string `json:"database"`
	Cache       string `json:"cache"`
	Environment string `json:"environment"`
}

func (h HandlerSet) Health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	status := http.StatusOK
	resp := healthResponse{Status: "ok", Database: "ok", Cache: "ok", Environment: h.cfg.Environment}

	if err := probe(ctx, h.dbCheck); err != nil {
		resp.Status, resp.Database = "degraded", "error"
		status = http.StatusServiceUnavailable
		h.log.Error().Err(err).Msg("database ping failed")
	}
	if err := probe(ctx, h.rdCheck); err != nil {
		resp.Status, resp.Cache = "degraded", "error"
		h.log.Error().Err(err).Msg("redis ping failed")
	}

	c.JSON(status, resp)
}

// HealthChecker only looks at the database.
func (h HandlerSet) HealthChecker(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	if err := probe(ctx, h.dbCheck); err != nil {
		h.log.Error().Err(err).Msg("database check failed")
		c.JSON(http.StatusInternalServerError, gin.H{"detail": "Error connecting to the database"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Contactbook API is healthy"})
}

func probe(ctx context.Context, check Check) error {
	if check == nil {
		return nil
	}
	return check(ctx)
}
