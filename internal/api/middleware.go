package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"nabz/internal/api/types"
)

// requestIDHeader carries the per-request correlation ID.
const requestIDHeader = "X-Request-ID"

// RequestID assigns each request a correlation ID, honoring one supplied
// by the client.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(requestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		c.Set("request_id", id)
		c.Header(requestIDHeader, id)
		c.Next()
	}
}

// PanicRecovery converts handler panics into 500 responses instead of
// tearing down the connection.
func PanicRecovery() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if r := recover(); r != nil {
				log.Error().
					Interface("panic", r).
					Str("path", c.Request.URL.Path).
					Str("request_id", c.GetString("request_id")).
					Msg("Handler panicked")
				c.AbortWithStatusJSON(http.StatusInternalServerError,
					types.InternalErrorResponse("unexpected server error"))
			}
		}()
		c.Next()
	}
}

// LoggerMiddleware logs one structured line per request.
func LoggerMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		event := log.Info()
		if c.Writer.Status() >= http.StatusInternalServerError {
			event = log.Error()
		}
		event.
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", c.Writer.Status()).
			Dur("duration", time.Since(start)).
			Str("request_id", c.GetString("request_id")).
			Msg("Request handled")
	}
}

// ErrorHandler translates errors attached to the context into the standard
// response envelope. Structured ErrorWithContext values keep their status
// and code; anything else becomes a 500.
func ErrorHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) == 0 || c.Writer.Written() {
			return
		}

		err := c.Errors.Last().Err
		var ewc *types.ErrorWithContext
		if errors.As(err, &ewc) {
			if ewc.Cause != nil {
				log.Error().
					Err(ewc.Cause).
					Str("details", ewc.Details).
					Str("request_id", c.GetString("request_id")).
					Msg("Request failed")
			}
			status, resp := types.ToResponse(ewc)
			c.JSON(status, resp)
			return
		}

		log.Error().
			Err(err).
			Str("request_id", c.GetString("request_id")).
			Msg("Request failed with unclassified error")
		c.JSON(http.StatusInternalServerError, types.InternalErrorResponse(err.Error()))
	}
}
