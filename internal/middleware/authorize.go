package middleware

import (
	"github.com/gin-gonic/gin"

	"qrtrack/internal/apperr"
	"qrtrack/internal/types"
)

// Authorizer decides whether a role may call method on path.
type Authorizer interface {
	Allowed(role, path, method string) (bool, error)
}

// Authorize checks the role set by JWT against the request path. It must run after JWT.
func Authorize(authz Authorizer) gin.HandlerFunc {
	return func(c *gin.Context) {
		ok, err := authz.Allowed(Role(c), c.Request.URL.Path, c.Request.Method)
		if err != nil {
			types.Fail(c, apperr.Wrap(apperr.CodeInternal, "authorization failed", err))
			return
		}
		if !ok {
			types.Fail(c, apperr.New(apperr.CodeForbidden, "insufficient permissions"))
			return
		}
		c.Next()
	}
}
