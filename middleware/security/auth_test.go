package security

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func init() { gin.SetMode(gin.TestMode) }

func protected(opts *Options) *gin.Engine {
	r := gin.New()
	r.GET("/x", Middleware(opts), func(c *gin.Context) {
		c.String(http.StatusOK, c.GetString(CtxAuthKey))
	})
	return r
}

func TestMiddleware(t *testing.T) {
	r := protected(StaticTokenOptions("s3cret"))
	tests := []struct {
		name   string
		header map[string]string
		code   int
	}{
		{"no credential", nil, http.StatusUnauthorized},
		{"custom header", map[string]string{"X-Docdoor-Token": "s3cret"}, http.StatusOK},
		{"bearer", map[string]string{"Authorization": "Bearer s3cret"}, http.StatusOK},
		{"bearer lowercase", map[string]string{"Authorization": "bearer s3cret"}, http.StatusOK},
		{"wrong token", map[string]string{"Authorization": "Bearer nope"}, http.StatusUnauthorized},
		{"basic scheme", map[string]string{"Authorization": "Basic s3cret"}, http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/x", nil)
			for k, v := range tt.header {
				req.Header.Set(k, v)
			}
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)
			assert.Equal(t, tt.code, w.Code)
			if tt.code == http.StatusOK {
				assert.Equal(t, "s3cret", w.Body.String())
			} else {
				assert.Contains(t, w.Body.String(), `"code":1002`)
			}
		})
	}
}

func TestMiddleware_NilOptionsAcceptsAnyToken(t *testing.T) {
	r := protected(nil)
	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set("X-Docdoor-Token", "anything")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
}
