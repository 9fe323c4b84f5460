package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"invoice-intake/pkg/errors"
)

const userContextKey = "user_context"

// UserContext is the caller identity forwarded by the API gateway via
// X-User-Id and X-Scopes headers. The service trusts the gateway; no token
// verification happens here.
type UserContext struct {
	UserID string
	Scopes map[string]struct{}
}

func (u UserContext) HasScope(scope string) bool {
	_, ok := u.Scopes[scope]
	return ok
}

// AuthMiddleware extracts the caller identity from request headers and
// rejects requests without one.
func AuthMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := c.GetHeader("X-User-Id")
		if userID == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, errors.ToErrorResponse(errors.ErrUnauthorized))
			return
		}

		scopes := make(map[string]struct{})
		for _, scope := range strings.Split(c.GetHeader("X-Scopes"), ",") {
			scope = strings.TrimSpace(scope)
			if scope != "" {
				scopes[scope] = struct{}{}
			}
		}

		c.Set(userContextKey, UserContext{UserID: userID, Scopes: scopes})
		c.Next()
	}
}

// RequireScope aborts with 403 unless the authenticated caller carries the
// given scope. Must run after AuthMiddleware.
func RequireScope(scope string) gin.HandlerFunc {
	return func(c *gin.Context) {
		user, ok := CurrentUser(c)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, errors.ToErrorResponse(errors.ErrUnauthorized))
			return
		}

		if !user.HasScope(scope) {
			c.AbortWithStatusJSON(http.StatusForbidden,
				errors.ToErrorResponse(errors.ErrForbidden.WithDetail("required_scope", scope)))
			return
		}

		c.Next()
	}
}

func CurrentUser(c *gin.Context) (UserContext, bool) {
	value, exists := c.Get(userContextKey)
	if !exists {
		return UserContext{}, false
	}
	user, ok := value.(UserContext)
	return user, ok
}
