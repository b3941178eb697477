package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/Tesseract-Nexus/go-shared/cache"
	"github.com/gin-gonic/gin"
)

// ServiceName is reported by the health endpoints
const ServiceName = "pharmacy-service"

// DependencyCheck is one named readiness probe
type DependencyCheck struct {
	Name  string
	Check func(ctx context.Context) error
	// Optional dependencies degrade the service instead of failing readiness
	Optional bool
}

type HealthHandler struct {
	checks     []DependencyCheck
	cacheStats func() *cache.CacheStats
}

func NewHealthHandler(cacheStats func() *cache.CacheStats, checks ...DependencyCheck) *HealthHandler {
	return &HealthHandler{checks: checks, cacheStats: cacheStats}
}

// HealthCheck returns service health status (basic)
func HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "healthy",
		"service": ServiceName,
	})
}

// ReadinessCheck runs every dependency check. A failing required dependency
// returns 503; a failing optional one reports the service as degraded.
func (h *HealthHandler) ReadinessCheck(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	status := "healthy"
	code := http.StatusOK
	checks := gin.H{}

	for _, dep := range h.checks {
		if err := dep.Check(ctx); err != nil {
			checks[dep.Name] = gin.H{
				"status": "unhealthy",
				"error":  err.Error(),
			}
			if dep.Optional {
				if status == "healthy" {
					status = "degraded"
				}
				continue
			}
			status = "unhealthy"
			code = http.StatusServiceUnavailable
			continue
		}
		checks[dep.Name] = gin.H{"status": "healthy"}
	}

	// Add cache stats if available
	if h.cacheStats != nil {
		if stats := h.cacheStats(); stats != nil {
			checks["cache_stats"] = gin.H{
				"l1_hits":   stats.L1Hits,
				"l1_misses": stats.L1Misses,
				"l2_hits":   stats.L2Hits,
				"l2_misses": stats.L2Misses,
			}
		}
	}

	c.JSON(code, gin.H{
		"status":  status,
		"service": ServiceName,
		"checks":  checks,
	})
}
