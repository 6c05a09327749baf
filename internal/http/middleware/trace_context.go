package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"

	"github.com/yungbote/ghiblify-backend/internal/platform/ctxutil"
)

const (
	headerTraceID   = "X-Trace-Id"
	headerRequestID = "X-Request-Id"
)

// AttachTraceContext gives every request a request id and a trace id, taken
// from the caller's headers, the active span, or minted fresh, and echoes both
// back so frontend bug reports can be matched to log lines.
func AttachTraceContext() gin.HandlerFunc {
	return func(c *gin.Context) {
		td := &ctxutil.TraceData{
			RequestID: headerOrNew(c, headerRequestID, ""),
			TraceID:   headerOrNew(c, headerTraceID, spanTraceID(c)),
		}
		c.Request = c.Request.WithContext(ctxutil.WithTraceData(c.Request.Context(), td))
		c.Header(headerTraceID, td.TraceID)
		c.Header(headerRequestID, td.RequestID)
		c.Next()
	}
}

func spanTraceID(c *gin.Context) string {
	if sc := trace.SpanContextFromContext(c.Request.Context()); sc.HasTraceID() {
		return sc.TraceID().String()
	}
	return ""
}

func headerOrNew(c *gin.Context, header, fallback string) string {
	if v := strings.TrimSpace(c.GetHeader(header)); v != "" {
		return v
	}
	if fallback != "" {
		return fallback
	}
	return uuid.NewString()
}
