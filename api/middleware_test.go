package api

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

func TestCORSMiddleware(t *testing.T) {
	tests := []struct {
		name        string
		origins     []string
		credentials bool
		origin      string
		wantOrigin  string
	}{
		{
			name:       "wildcard",
			origins:    []string{"*"},
			origin:     "https://example.com",
			wantOrigin: "*",
		},
		{
			name:        "wildcard with credentials reflects origin",
			origins:     []string{"*"},
			credentials: true,
			origin:      "https://example.com",
			wantOrigin:  "https://example.com",
		},
		{
			name:       "allowed origin",
			origins:    []string{"https://app.example.com"},
			origin:     "https://app.example.com",
			wantOrigin: "https://app.example.com",
		},
		{
			name:       "disallowed origin",
			origins:    []string{"https://app.example.com"},
			origin:     "https://evil.example.com",
			wantOrigin: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := newTestConfig()
			cfg.CORS.AllowedOrigins = tt.origins
			cfg.CORS.AllowCredentials = tt.credentials
			app := NewApp(cfg, []Controller{&thingsController{path: "/things"}}, zap.NewNop().Sugar(),
				WithConnector(connectedConnector()))

			req := httptest.NewRequest(http.MethodGet, "/api/things", nil)
			req.Header.Set("Origin", tt.origin)
			rec := httptest.NewRecorder()
			app.Handler().ServeHTTP(rec, req)

			assert.Equal(t, http.StatusOK, rec.Code)
			assert.Equal(t, tt.wantOrigin, rec.Header().Get("Access-Control-Allow-Origin"))
			if tt.credentials {
				assert.Equal(t, "true", rec.Header().Get("Access-Control-Allow-Credentials"))
			}
		})
	}
}

func TestCORSMiddleware_Preflight(t *testing.T) {
	app := newTestApp(t, &thingsController{path: "/things"})

	req := httptest.NewRequest(http.MethodOptions, "/api/things/echo", nil)
	req.Header.Set("Origin", "https://example.com")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	req.Header.Set("Access-Control-Request-Headers", "Content-Type, X-Custom")
	rec := httptest.NewRecorder()

	app.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "GET,HEAD,PUT,PATCH,POST,DELETE", rec.Header().Get("Access-Control-Allow-Methods"))
	assert.Equal(t, "Content-Type, X-Custom", rec.Header().Get("Access-Control-Allow-Headers"))
	assert.Empty(t, rec.Body.String())
}

func TestSecurityHeadersMiddleware(t *testing.T) {
	handler := securityHeadersMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	rec := httptest.NewRecorder()
	rec.Header().Set("X-Powered-By", "Express")
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	for name, value := range securityHeaders {
		assert.Equal(t, value, rec.Header().Get(name), name)
	}
	assert.Equal(t, "0", rec.Header().Get("X-XSS-Protection"))
	assert.Empty(t, rec.Header().Get("X-Powered-By"))
}

func TestCompressionMiddleware(t *testing.T) {
	app := newTestApp(t, &thingsController{path: "/things"})

	t.Run("gzip when accepted", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/things", nil)
		req.Header.Set("Accept-Encoding", "gzip")
		rec := httptest.NewRecorder()
		app.Handler().ServeHTTP(rec, req)

		assert.Equal(t, "gzip", rec.Header().Get("Content-Encoding"))
	})

	t.Run("identity otherwise", func(t *testing.T) {
		rec := httptest.NewRecorder()
		app.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/things", nil))

		assert.Empty(t, rec.Header().Get("Content-Encoding"))
		assert.Contains(t, rec.Body.String(), `"controller":"/things"`)
	})
}
