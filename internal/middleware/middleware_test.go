package middleware

import (
	"crypto/tls"
	"net/http"
	"net/http/httptest"
	"testing"
)

var ok = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusOK) })

func TestForceHTTPS(t *testing.T) {
	h := ForceHTTPS(true)(ok)

	cases := []struct {
		name   string
		setup  func(*http.Request)
		target string
		want   int
	}{
		{"plain", func(*http.Request) {}, "http://pulse.kg/api/reports?x=1", http.StatusPermanentRedirect},
		{"tls", func(r *http.Request) { r.TLS = &tls.ConnectionState{} }, "http://pulse.kg/", http.StatusOK},
		{"proxy", func(r *http.Request) { r.Header.Set("X-Forwarded-Proto", "https") }, "http://pulse.kg/", http.StatusOK},
		{"localhost", func(*http.Request) {}, "http://localhost:8080/", http.StatusOK},
		{"health", func(*http.Request) {}, "http://pulse.kg/healthz", http.StatusOK},
	}
	for _, c := range cases {
		req := httptest.NewRequest(http.MethodGet, c.target, nil)
		c.setup(req)
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		if rec.Code != c.want {
			t.Fatalf("%s: code = %d, want %d", c.name, rec.Code, c.want)
		}
	}

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "http://pulse.kg/api/reports?x=1", nil))
	if loc := rec.Header().Get("Location"); loc != "https://pulse.kg/api/reports?x=1" {
		t.Fatalf("Location = %q", loc)
	}

	rec = httptest.NewRecorder()
	ForceHTTPS(false)(ok).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "http://pulse.kg/", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("disabled redirect: %d", rec.Code)
	}
}

func TestSecurityHeadersVisible(t *testing.T) {
	rec := httptest.NewRecorder()
	Security(ok).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	for _, kv := range securityHeaders {
		if rec.Header().Get(kv[0]) != kv[1] {
			t.Fatalf("%s = %q", kv[0], rec.Header().Get(kv[0]))
		}
	}
}

func TestBearerAuth(t *testing.T) {
	h := BearerAuth("k-0123456789abcdef")(ok)
	for hdr, want := range map[string]int{
		"":                          http.StatusUnauthorized,
		"Bearer nope":               http.StatusUnauthorized,
		"k-0123456789abcdef":        http.StatusUnauthorized,
		"Bearer k-0123456789abcdef": http.StatusOK,
	} {
		req := httptest.NewRequest(http.MethodPost, "/api/status", nil)
		if hdr != "" {
			req.Header.Set("Authorization", hdr)
		}
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		if rec.Code != want {
			t.Fatalf("Authorization %q: code = %d, want %d", hdr, rec.Code, want)
		}
	}
}

func TestQueryTokenEmptyRejects(t *testing.T) {
	rec := httptest.NewRecorder()
	QueryToken("token", "")(ok).ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/events/pubsub?token=", nil))
	if rec.Code != http.StatusForbidden {
		t.Fatalf("code = %d", rec.Code)
	}
	rec = httptest.NewRecorder()
	QueryToken("token", "t0k")(ok).ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/events/pubsub?token=t0k", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("code = %d", rec.Code)
	}
}
