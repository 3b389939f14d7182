package requestinfo

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestEnrichAttachesInfo(t *testing.T) {
	var got *RequestInfo
	h := Enrich(nil, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = FromContext(r.Context())
	}))

	req := httptest.NewRequest(http.MethodPost, "/api/reports", nil)
	req.Header.Set("User-Agent", "Mozilla/5.0 (iPhone; CPU iPhone OS 17_4 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.4 Mobile/15E148 Safari/604.1")
	req.Header.Set("Accept-Language", "ky-KG,ru;q=0.8")
	req.Header.Set("X-Forwarded-For", "212.42.100.5, 10.0.0.1")
	h.ServeHTTP(httptest.NewRecorder(), req)

	if got == nil {
		t.Fatalf("no RequestInfo in context")
	}
	if got.UA.PrimaryLang != "ky" || got.Geo.IP.String() != "212.42.100.5" || got.Path != "/api/reports" {
		t.Fatalf("info = %+v", got)
	}
	if got.UA.Device != "Phone" || got.UA.IsBot {
		t.Fatalf("ua = %+v", got.UA)
	}
}

func TestPrimaryLang(t *testing.T) {
	cases := map[string]string{
		"":               "",
		"ru":             "ru",
		"RU-kg;q=0.9,en": "ru",
		" ky , ru;q=0.5": "ky",
	}
	for in, want := range cases {
		if got := primaryLang(in); got != want {
			t.Fatalf("primaryLang(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestClientIPFallsBackToRemoteAddr(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "192.0.2.7:5555"
	if ip := clientIP(req); ip.String() != "192.0.2.7" {
		t.Fatalf("clientIP = %v", ip)
	}
}
