package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"pharmacy-service/internal/models"
)

// Context keys set by the middleware in this package
const (
	PharmacyIDKey = "pharmacy_id"
	ActorKey      = "actor"
)

// PharmacyMiddleware scopes the request to the pharmacy named in X-Pharmacy-ID.
// Requests without one are rejected; there is no default pharmacy.
func PharmacyMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		pharmacyID := c.GetHeader("X-Pharmacy-ID")

		// If not in header, try to get from context (set by an upstream middleware)
		if pharmacyID == "" {
			pharmacyID = c.GetString(PharmacyIDKey)
		}

		if pharmacyID == "" {
			c.AbortWithStatusJSON(http.StatusBadRequest, models.ErrorResponse{
				Success: false,
				Error: models.Error{
					Code:    "PHARMACY_REQUIRED",
					Message: "Pharmacy ID is required. Include X-Pharmacy-ID header.",
				},
			})
			return
		}

		c.Set(PharmacyIDKey, pharmacyID)
		c.Next()
	}
}

// ActorMiddleware records who is making the request from X-User-ID so
// writes can be attributed. The header is optional and not verified.
func ActorMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if actor := c.GetHeader("X-User-ID"); actor != "" {
			c.Set(ActorKey, actor)
		}
		c.Next()
	}
}

// GetPharmacyID retrieves the pharmacy ID from gin context
func GetPharmacyID(c *gin.Context) string {
	return c.GetString(PharmacyIDKey)
}

// GetActor retrieves the acting user from gin context, empty when anonymous
func GetActor(c *gin.Context) string {
	return c.GetString(ActorKey)
}
