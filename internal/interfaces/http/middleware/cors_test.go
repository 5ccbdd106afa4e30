package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func corsEngine(cfg CORSConfig) *gin.Engine {
	r := gin.New()
	r.Use(CORS(cfg))
	r.POST("/api/v1/similar", func(c *gin.Context) { c.String(http.StatusOK, "ok") })
	r.OPTIONS("/api/v1/similar", func(c *gin.Context) { c.Status(http.StatusMethodNotAllowed) })
	return r
}

func originRequest(method, origin string) *http.Request {
	r := httptest.NewRequest(method, "/api/v1/similar", nil)
	if origin != "" {
		r.Header.Set("Origin", origin)
	}
	return r
}

func TestCORS_Preflight(t *testing.T) {
	cfg := DefaultCORSConfig()
	cfg.AllowedOrigins = []string{"https://app.example.com"}

	req := originRequest(http.MethodOptions, "https://app.example.com")
	req.Header.Set("Access-Control-Request-Method", "POST")
	w := serve(corsEngine(cfg), req)

	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "https://app.example.com", w.Header().Get("Access-Control-Allow-Origin"))
	assert.Contains(t, w.Header().Get("Access-Control-Allow-Methods"), "POST")
	assert.Contains(t, w.Header().Get("Access-Control-Allow-Headers"), HeaderRequestID)
	assert.Equal(t, "86400", w.Header().Get("Access-Control-Max-Age"))
	assert.Empty(t, w.Body.String())
}

func TestCORS_SimpleRequestExposesHeaders(t *testing.T) {
	cfg := DefaultCORSConfig()
	cfg.AllowedOrigins = []string{"https://app.example.com"}

	w := serve(corsEngine(cfg), originRequest(http.MethodPost, "https://APP.example.com"))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "https://APP.example.com", w.Header().Get("Access-Control-Allow-Origin"))
	assert.Contains(t, w.Header().Get("Access-Control-Expose-Headers"), "X-RateLimit-Remaining")
	assert.Contains(t, w.Header().Values("Vary"), "Origin")
	assert.Empty(t, w.Header().Get("Access-Control-Allow-Methods"))
}

func TestCORS_DisallowedOrigin(t *testing.T) {
	cfg := DefaultCORSConfig()
	cfg.AllowedOrigins = []string{"https://app.example.com"}

	w := serve(corsEngine(cfg), originRequest(http.MethodPost, "https://evil.test"))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))

	// preflight falls through to the route
	w = serve(corsEngine(cfg), originRequest(http.MethodOptions, "https://evil.test"))
	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
}

func TestCORS_NoOriginPassesThrough(t *testing.T) {
	w := serve(corsEngine(DefaultCORSConfig()), originRequest(http.MethodPost, ""))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))
}

func TestCORS_Wildcards(t *testing.T) {
	cases := []struct {
		name        string
		origins     []string
		wildcard    bool
		credentials bool
		origin      string
		want        string
	}{
		{"star", []string{"*"}, false, false, "https://any.test", "*"},
		{"star with credentials echoes origin", []string{"*"}, false, true, "https://any.test", "https://any.test"},
		{"subdomain", []string{"*.example.com"}, true, false, "https://court.example.com", "https://court.example.com"},
		{"subdomain disabled", []string{"*.example.com"}, false, false, "https://court.example.com", ""},
		{"suffix is not a subdomain", []string{"*.example.com"}, true, false, "https://example.com.evil.test", ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := DefaultCORSConfig()
			cfg.AllowedOrigins = tc.origins
			cfg.AllowWildcard = tc.wildcard
			cfg.AllowCredentials = tc.credentials

			w := serve(corsEngine(cfg), originRequest(http.MethodPost, tc.origin))
			assert.Equal(t, tc.want, w.Header().Get("Access-Control-Allow-Origin"))
			if tc.credentials {
				assert.Equal(t, "true", w.Header().Get("Access-Control-Allow-Credentials"))
			}
		})
	}
}

func TestDefaultCORSConfig(t *testing.T) {
	cfg := DefaultCORSConfig()
	assert.Empty(t, cfg.AllowedOrigins)
	assert.False(t, cfg.AllowCredentials)
	assert.Contains(t, cfg.AllowedMethods, http.MethodDelete)
	assert.Contains(t, cfg.AllowedHeaders, "X-API-Key")
	assert.Equal(t, 86400, cfg.MaxAge)
}

//Personal.AI order the ending
