package logging

import (
	"time"

	"github.com/Desarso/shopbot/metrics"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// RequestIDHeader carries the request correlation ID.
const RequestIDHeader = "X-Request-ID"

// RequestLogger returns middleware that logs requests using zerolog
// and updates the request counters.
func RequestLogger(reg *metrics.Registry) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		req := c.Request
		rid := req.Header.Get(RequestIDHeader)
		if rid == "" {
			rid = uuid.NewString()
		}
		c.Header(RequestIDHeader, rid)

		// Attach request-scoped logger
		logger := log.With().
			Str("request_id", rid).
			Str("method", req.Method).
			Str("path", req.URL.Path).
			Str("remote_ip", c.ClientIP()).
			Str("user_agent", req.UserAgent()).
			Logger()
		c.Request = req.WithContext(logger.WithContext(req.Context()))

		c.Next()

		status := c.Writer.Status()
		duration := time.Since(start)
		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		labels := map[string]string{
			"method": req.Method,
			"path":   route,
			"status": statusClass(status),
		}
		reg.Inc(c.Request.Context(), metrics.HTTPRequests, labels, 1)

		if status >= 500 || len(c.Errors) > 0 {
			ev := logger.Error()
			if last := c.Errors.Last(); last != nil {
				ev = ev.Err(last)
			}
			ev.Int("status", status).
				Dur("duration", duration).
				Msg("http request failed")
			reg.Inc(c.Request.Context(), metrics.HTTPRequestErrors, labels, 1)
			return
		}
		logger.Info().
			Int("status", status).
			Dur("duration", duration).
			Msg("http request served")
	}
}

func statusClass(code int) string {
	switch {
	case code >= 100 && code < 200:
		return "1xx"
	case code >= 200 && code < 300:
		return "2xx"
	case code >= 300 && code < 400:
		return "3xx"
	case code >= 400 && code < 500:
		return "4xx"
	case code >= 500 && code < 600:
		return "5xx"
	default:
		return "0"
	}
}
