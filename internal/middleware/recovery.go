package middleware

import (
	"fmt"
	"runtime/debug"

	"github.com/gin-gonic/gin"

	"qrtrack/internal/apperr"
	"qrtrack/internal/logging"
	"qrtrack/internal/types"
)

// Recovery turns a panic into a 500 envelope and logs the stack.
func Recovery() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if r := recover(); r != nil {
				logging.Ctx(c.Request.Context()).Error().
					Str("panic", fmt.Sprint(r)).
					Str("stack", string(debug.Stack())).
					Str("path", c.Request.URL.Path).
					Msg("Recovered from panic")
				types.Fail(c, apperr.New(apperr.CodeInternal, "internal server error"))
			}
		}()
		c.Next()
	}
}
