package middleware

import (
	"github.com/gin-gonic/gin"

	"github.com/guidancehub/referral-api/internal/models"
	appErrors "github.com/guidancehub/referral-api/pkg/errors"
	"github.com/guidancehub/referral-api/pkg/response"
)

// RequireRoles enforces role-based access control for a route group.
func RequireRoles(roles ...models.UserRole) gin.HandlerFunc {
	allowed := make(map[models.UserRole]struct{}, len(roles))
	for _, r := range roles {
		allowed[r] = struct{}{}
	}

	return func(c *gin.Context) {
		claimsValue, exists := c.Get(ContextUserKey)
		if !exists {
			response.Error(c, appErrors.ErrUnauthorized)
			c.Abort()
			return
		}
		claims, ok := claimsValue.(*models.JWTClaims)
		if !ok {
			response.Error(c, appErrors.ErrUnauthorized)
			c.Abort()
			return
		}

		if _, ok := allowed[claims.Role]; ok {
			c.Next()
			return
		}

		response.Error(c, appErrors.Clone(appErrors.ErrForbidden, "forbidden: access denied"))
		c.Abort()
	}
}
