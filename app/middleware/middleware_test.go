package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"mteval/pkg/logger"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newEngine(handlers ...gin.HandlerFunc) *gin.Engine {
	engine := gin.New()
	engine.Use(handlers...)
	return engine
}

func TestAuthMiddleware(t *testing.T) {
	engine := newEngine(AuthMiddleware("secret"))
	engine.GET("/x", func(c *gin.Context) { c.Status(http.StatusOK) })

	tests := []struct {
		name   string
		header string
		want   int
	}{
		{"valid token", "Bearer secret", http.StatusOK},
		{"wrong token", "Bearer nope", http.StatusUnauthorized},
		{"missing header", "", http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/x", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			engine.ServeHTTP(rec, req)
			assert.Equal(t, tt.want, rec.Code)
		})
	}
}

func TestAuthMiddleware_DisabledWithoutKey(t *testing.T) {
	engine := newEngine(AuthMiddleware(""))
	engine.GET("/x", func(c *gin.Context) { c.Status(http.StatusOK) })

	rec := httptest.NewRecorder()
	engine.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/x", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRequestID(t *testing.T) {
	var seen string
	engine := newEngine(RequestID())
	engine.GET("/x", func(c *gin.Context) {
		seen = logger.TraceID(c.Request.Context())
		c.Status(http.StatusOK)
	})

	rec := httptest.NewRecorder()
	engine.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/x", nil))
	generated := rec.Header().Get(RequestIDHeader)
	assert.Len(t, generated, 36)
	assert.Equal(t, generated, seen)

	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set(RequestIDHeader, "given-id")
	rec = httptest.NewRecorder()
	engine.ServeHTTP(rec, req)
	assert.Equal(t, "given-id", rec.Header().Get(RequestIDHeader))
	assert.Equal(t, "given-id", seen)
}

func TestRecovery(t *testing.T) {
	engine := newEngine(Recovery())
	engine.GET("/panic", func(c *gin.Context) { panic("boom") })

	rec := httptest.NewRecorder()
	engine.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/panic", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.JSONEq(t, `{"error":"internal server error"}`, rec.Body.String())
}

func TestLogger_KeepsBodyForHandler(t *testing.T) {
	var got string
	engine := newEngine(Logger())
	engine.POST("/x", func(c *gin.Context) {
		data, _ := c.GetRawData()
		got = string(data)
		c.Status(http.StatusOK)
	})

	rec := httptest.NewRecorder()
	engine.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/x", strings.NewReader(`{ "metric": "bleu" }`)))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, `{ "metric": "bleu" }`, got)
}

func TestCompressBody(t *testing.T) {
	assert.Equal(t, "", CompressBody(nil))
	assert.Equal(t, `{"a":1,"b":[1,2]}`, CompressBody([]byte("{\n  \"a\": 1,\n  \"b\": [1, 2]\n}")))

	long := CompressBody([]byte(`"` + strings.Repeat("x", 2000) + `"`))
	assert.Len(t, long, maxLoggedBody+3)
	assert.True(t, strings.HasSuffix(long, "..."))
}
