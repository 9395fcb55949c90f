package router

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/matryer/is"
)

func TestThatOnlyConfiguredOriginsAreAllowed(t *testing.T) {
	is := is.New(t)

	c := NewCORS([]string{"http://localhost:*", "https://farm.example.com"})

	for origin, allowed := range map[string]bool{
		"http://localhost:3000":    true,
		"https://farm.example.com": true,
		"https://evil.example.com": false,
	} {
		r := httptest.NewRequest(http.MethodGet, "/api/v0/events", nil)
		r.Header.Set("Origin", origin)
		is.Equal(c.OriginAllowed(r), allowed) // origin check should match configuration
	}
}

func TestPreflight(t *testing.T) {
	is := is.New(t)

	r := New("farm-operations", NewCORS([]string{"https://farm.example.com"}))
	r.Get("/api/v0/zones", func(w http.ResponseWriter, r *http.Request) {})

	req := httptest.NewRequest(http.MethodOptions, "/api/v0/zones", nil)
	req.Header.Set("Origin", "https://farm.example.com")
	req.Header.Set("Access-Control-Request-Method", http.MethodGet)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	is.Equal(w.Header().Get("Access-Control-Allow-Origin"), "https://farm.example.com")
}
