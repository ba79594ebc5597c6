package middleware

import (
	"log/slog"
	"net/http"
	"runtime/debug"

	"github.com/gin-gonic/gin"

	"github.com/jsamuelsen/tracecontext-service/internal/adapters/http/dto"
	"github.com/jsamuelsen/tracecontext-service/internal/platform/tracecontext"
)

// Recovery returns middleware that turns a panic into a 500 envelope. It
// must be the outermost middleware. By the time it runs TraceContext has
// already ended the span, so the correlation id comes from the gin context
// and is logged explicitly.
func Recovery(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			r := recover()
			if r == nil {
				return
			}

			traceID := dto.GetTraceID(c)
			attrs := []slog.Attr{
				slog.Any("error", r),
				slog.String("stack", string(debug.Stack())),
				slog.String("path", c.Request.URL.Path),
				slog.String("method", c.Request.Method),
			}
			if traceID != "" && tracecontext.TraceIDFromContext(c.Request.Context()) == "" {
				attrs = append(attrs, slog.String(tracecontext.KeyTraceID, traceID))
			}
			logger.LogAttrs(c.Request.Context(), slog.LevelError, "panic recovered", attrs...)

			if c.Writer.Written() {
				c.Abort()
				return
			}
			c.AbortWithStatusJSON(http.StatusInternalServerError,
				dto.NewErrorResponse(dto.ErrorCodeInternal, "an internal error occurred").WithTraceID(traceID))
		}()

		c.Next()
	}
}
