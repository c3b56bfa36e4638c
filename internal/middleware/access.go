package middleware

import (
	"github.com/gin-gonic/gin"

	"github.com/noah-isme/timetable-notifier/internal/models"
	appErrors "github.com/noah-isme/timetable-notifier/pkg/errors"
	"github.com/noah-isme/timetable-notifier/pkg/response"
)

// OwnerParam is the route parameter naming the owner whose data is touched.
const OwnerParam = "ownerId"

// OwnerAccess lets service tokens through and restricts owner tokens to
// their own :ownerId routes.
func OwnerAccess() gin.HandlerFunc {
	return func(c *gin.Context) {
		claims := ClaimsFromContext(c)
		if claims == nil {
			response.Error(c, appErrors.ErrUnauthorized)
			c.Abort()
			return
		}
		if !claims.CanAccess(c.Param(OwnerParam)) {
			response.Error(c, appErrors.ErrForbidden)
			c.Abort()
			return
		}
		c.Next()
	}
}

// ServiceOnly admits service tokens only.
func ServiceOnly() gin.HandlerFunc {
	return func(c *gin.Context) {
		claims := ClaimsFromContext(c)
		if claims == nil {
			response.Error(c, appErrors.ErrUnauthorized)
			c.Abort()
			return
		}
		if claims.Scope != models.ScopeService {
			response.Error(c, appErrors.ErrForbidden)
			c.Abort()
			return
		}
		c.Next()
	}
}
