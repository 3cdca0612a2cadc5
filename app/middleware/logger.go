package middleware

import (
	"bytes"
	"io"
	"net/http"
	"time"

	"mteval/pkg/logger"

	"github.com/gin-gonic/gin"
	"github.com/tidwall/pretty"
)

const maxLoggedBody = 1000

// Logger logs one line per request, with the compacted body of POST/PUT requests
func Logger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		var body string
		if c.Request.Method == http.MethodPost || c.Request.Method == http.MethodPut {
			body = getRequestBody(c)
		}

		c.Next()

		status := c.Writer.Status()
		ctx := c.Request.Context()
		line := "[GIN] %3d | %13v | %15s | %s | %s"
		args := []interface{}{status, time.Since(start), c.ClientIP(), c.Request.Method, c.Request.RequestURI}
		if body != "" {
			line += " | body: %s"
			args = append(args, body)
		}

		switch {
		case status >= http.StatusInternalServerError:
			logger.ErrorCtx(ctx, line, args...)
		case status >= http.StatusBadRequest:
			logger.WarnCtx(ctx, line, args...)
		default:
			logger.InfoCtx(ctx, line, args...)
		}
	}
}

// getRequestBody reads the body and puts it back for the handler
func getRequestBody(c *gin.Context) string {
	if c.Request.Body == nil {
		return ""
	}
	bodyBytes, _ := io.ReadAll(c.Request.Body)
	c.Request.Body = io.NopCloser(bytes.NewBuffer(bodyBytes))
	return CompressBody(bodyBytes)
}

// CompressBody strips JSON whitespace and truncates long bodies
func CompressBody(body []byte) string {
	if len(body) == 0 {
		return ""
	}
	compressed := pretty.Ugly(body)
	if len(compressed) > maxLoggedBody {
		return string(compressed[:maxLoggedBody]) + "..."
	}
	return string(compressed)
}
