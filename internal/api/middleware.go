package api

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"marketplace-search/internal/common/auth"
	apperrors "marketplace-search/internal/common/errors"
	"marketplace-search/internal/common/logger"
	"marketplace-search/internal/common/metrics"
)

const (
	headerRequestID = "X-Request-ID"
	keyRequestID    = "requestId"
	keyCallerID     = "callerId"
)

// RequestLogger assigns a request ID and logs one line per completed request.
func RequestLogger(log logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		reqID := c.GetHeader(headerRequestID)
		if reqID == "" {
			reqID = uuid.New().String()
		}
		c.Set(keyRequestID, reqID)
		c.Header(headerRequestID, reqID)

		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		status := c.Writer.Status()
		elapsed := time.Since(start)
		metrics.HTTPRequestDuration.
			WithLabelValues(c.Request.Method, route, strconv.Itoa(status)).
			Observe(elapsed.Seconds())

		fields := map[string]interface{}{
			"requestId":  reqID,
			"method":     c.Request.Method,
			"path":       c.Request.URL.Path,
			"status":     status,
			"durationMs": elapsed.Milliseconds(),
			"clientIp":   c.ClientIP(),
		}
		if caller := CallerID(c); caller != "" {
			fields["callerId"] = caller
		}
		log.Info("Request completed", fields)
	}
}

// Caller resolves the caller identity from the Authorization header. Requests
// without the header continue anonymously.
func Caller(verifier *auth.Verifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := verifier.CallerID(c.GetHeader("Authorization"))
		if err != nil {
			c.Error(err)
			c.Abort()
			return
		}
		if id != "" {
			c.Set(keyCallerID, id)
		}
		c.Next()
	}
}

// CallerID returns the caller resolved by Caller, or "" when anonymous.
func CallerID(c *gin.Context) string {
	return c.GetString(keyCallerID)
}

// Errors renders the last error attached to the context as a StandardError.
func Errors(log logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) == 0 || c.Writer.Written() {
			return
		}

		stdErr := apperrors.Normalize(c.Errors.Last().Err)
		status := apperrors.HTTPStatus(stdErr.Code)

		fields := map[string]interface{}{
			"requestId": c.GetString(keyRequestID),
			"code":      stdErr.Code,
			"details":   stdErr.Details,
		}
		if status >= 500 {
			log.Error("Request failed", fields)
		} else {
			log.Debug("Request rejected", fields)
		}

		c.JSON(status, gin.H{"error": stdErr})
	}
}
