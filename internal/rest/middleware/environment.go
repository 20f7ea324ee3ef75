package middleware

import (
	"context"

	"github.com/memberbill/memberbill/internal/types"
	"github.com/gin-gonic/gin"
)

// EnvironmentMiddleware promotes the environment header into the request
// context when authentication did not already resolve one. API key requests
// carry no environment claim, so the header is their only source.
func EnvironmentMiddleware(c *gin.Context) {
	ctx := c.Request.Context()
	if types.GetEnvironmentID(ctx) == "" {
		if environmentID := c.GetHeader(types.HeaderEnvironment); environmentID != "" {
			ctx = context.WithValue(ctx, types.CtxEnvironmentID, environmentID)
			c.Request = c.Request.WithContext(ctx)
		}
	}
	c.Next()
}
