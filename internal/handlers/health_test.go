package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/Tesseract-Nexus/go-shared/cache"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func healthy(context.Context) error { return nil }

func failing(context.Context) error { return errors.New("connection refused") }

func readiness(t *testing.T, h *HealthHandler) (int, map[string]any) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/ready", h.ReadinessCheck)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ready", nil))

	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return w.Code, body
}

func TestReadinessCheck(t *testing.T) {
	tests := []struct {
		name   string
		checks []DependencyCheck
		code   int
		status string
	}{
		{"all healthy", []DependencyCheck{{Name: "store", Check: healthy}, {Name: "redis", Check: healthy, Optional: true}}, http.StatusOK, "healthy"},
		{"optional down", []DependencyCheck{{Name: "store", Check: healthy}, {Name: "redis", Check: failing, Optional: true}}, http.StatusOK, "degraded"},
		{"store down", []DependencyCheck{{Name: "store", Check: failing}, {Name: "redis", Check: failing, Optional: true}}, http.StatusServiceUnavailable, "unhealthy"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, body := readiness(t, NewHealthHandler(nil, tt.checks...))
			assert.Equal(t, tt.code, code)
			assert.Equal(t, tt.status, body["status"])
			assert.Equal(t, ServiceName, body["service"])
		})
	}
}

func TestReadinessCheck_IncludesCacheStats(t *testing.T) {
	stats := func() *cache.CacheStats { return &cache.CacheStats{L1Hits: 3} }
	_, body := readiness(t, NewHealthHandler(stats, DependencyCheck{Name: "store", Check: healthy}))

	checks := body["checks"].(map[string]any)
	cacheStats := checks["cache_stats"].(map[string]any)
	assert.Equal(t, float64(3), cacheStats["l1_hits"])
}
