package auth

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/your-org/facesessions/pkg/dto"
)

const (
	headerName = "userid"
	contextKey = "auth.userID"
)

// UserIDMiddleware requires a non-empty userid header and stores it on the context.
func UserIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := c.GetHeader(headerName)
		if strings.TrimSpace(userID) == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, dto.ErrorResponse{
				Error: "Invalid userid",
			})
			return
		}

		c.Set(contextKey, userID)
		c.Next()
	}
}

// UserID returns the caller identity set by UserIDMiddleware.
func UserID(c *gin.Context) string {
	return c.GetString(contextKey)
}
