package app_test

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/fairyhunter13/findajob/internal/adapter/httpserver"
	"github.com/fairyhunter13/findajob/internal/app"
	"github.com/fairyhunter13/findajob/internal/config"
)

func TestParseOrigins(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   string
		want []string
	}{
		{"empty", "", []string{"*"}},
		{"wildcard", "*", []string{"*"}},
		{"single", "https://app.example.com", []string{"https://app.example.com"}},
		{"list with spaces", "https://a.example.com , https://b.example.com", []string{"https://a.example.com", "https://b.example.com"}},
		{"only commas", ",,", []string{"*"}},
		{"json array", `["https://a.example.com", "https://b.example.com"]`, []string{"https://a.example.com", "https://b.example.com"}},
		{"empty json array", "[]", []string{"*"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, app.ParseOrigins(tt.in))
		})
	}
}

func TestRouterHealthz(t *testing.T) {
	t.Parallel()

	cfg := config.Config{RateLimitPerMin: 30}
	h := app.BuildRouter(cfg, &httpserver.Server{Cfg: cfg})

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
}

func TestRouterRequestID(t *testing.T) {
	t.Parallel()

	cfg := config.Config{RateLimitPerMin: 30}
	h := app.BuildRouter(cfg, &httpserver.Server{Cfg: cfg})

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.NotEmpty(t, rec.Header().Get("X-Request-Id"))
}

func TestRouterUnknownRoute(t *testing.T) {
	t.Parallel()

	cfg := config.Config{RateLimitPerMin: 30}
	h := app.BuildRouter(cfg, &httpserver.Server{Cfg: cfg})

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/nope", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
