package http

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"
)

type pinger interface {
	Ping(ctx context.Context) error
}

type HealthHandler struct {
	db    *sqlx.DB
	cache pinger
}

func NewHealthHandler(db *sqlx.DB, cache pinger) *HealthHandler {
	return &HealthHandler{db: db, cache: cache}
}

func (h *HealthHandler) Liveness(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "alive"})
}

// Readiness probes the datastore and the cache within a shared 5s deadline.
func (h *HealthHandler) Readiness(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	type checkResult struct {
		Status    string `json:"status"`
		LatencyMs int64  `json:"latency_ms"`
	}

	checks := make(map[string]checkResult)
	healthy := true

	probe := func(name string, ping func(context.Context) error) {
		start := time.Now()
		result := checkResult{Status: "healthy"}
		if err := ping(ctx); err != nil {
			result.Status = "unhealthy"
			healthy = false
		}
		result.LatencyMs = time.Since(start).Milliseconds()
		checks[name] = result
	}

	probe("database", h.db.PingContext)
	probe("redis", h.cache.Ping)

	if !healthy {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unhealthy", "checks": checks})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "healthy", "checks": checks})
}
