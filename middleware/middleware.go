package middleware

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"moviecatalog/forms"
)

// RequestLogger logs one line per request.
func RequestLogger(log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path

		c.Next()

		fields := []zap.Field{
			zap.String("method", c.Request.Method),
			zap.String("path", path),
			zap.Int("status", c.Writer.Status()),
			zap.Int("size", c.Writer.Size()),
			zap.Duration("latency", time.Since(start)),
			zap.String("client_ip", c.ClientIP()),
		}
		if len(c.Errors) > 0 {
			fields = append(fields, zap.String("errors", c.Errors.String()))
		}

		switch status := c.Writer.Status(); {
		case status >= http.StatusInternalServerError:
			log.Error("Request failed", fields...)
		case status >= http.StatusBadRequest:
			log.Warn("Request rejected", fields...)
		default:
			log.Info("Request served", fields...)
		}
	}
}

// NoCacheHeaders asks browsers for the latest rendering engine and to
// revalidate every response.
func NoCacheHeaders() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("X-UA-Compatible", "IE=Edge,chrome=1")
		c.Header("Cache-Control", "public, max-age=0")
		c.Next()
	}
}

// BodyLimit caps every request body at limit bytes. Reads past the limit
// fail with *http.MaxBytesError. It wraps the whole handler stack so the
// cap already holds when the CSRF layer parses a form.
func BodyLimit(limit int64) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Body != nil && r.Body != http.NoBody {
				r.Body = http.MaxBytesReader(w, r.Body, limit)
			}
			next.ServeHTTP(w, r)
		})
	}
}

// ErrorBody is the JSON shape of every error response.
func ErrorBody(field, message string) gin.H {
	return gin.H{"errors": []forms.FieldError{{Field: field, Message: message}}}
}
