package middleware

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
)

const OperatorContextKey = "operatorID"

// AuthMiddleware trusts the gateway-provided operator header. Session and
// token handling live in the auth collaborator, not in the engine.
func AuthMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		operatorID := c.GetHeader("X-Operator-ID")
		if operatorID == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
			return
		}
		c.Set(OperatorContextKey, operatorID)
		c.Next()
	}
}

func GetOperatorID(c *gin.Context) (string, error) {
	if val, ok := c.Get(OperatorContextKey); ok {
		if id, ok := val.(string); ok && id != "" {
			return id, nil
		}
	}
	return "", errors.New("operator ID not found in context")
}
