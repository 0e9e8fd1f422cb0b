package authmw

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/linnemanlabs/go-core/log"
)

var okHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
})

func serve(h http.Handler, authorization string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/api/v1/incidents", http.NoBody)
	if authorization != "" {
		req.Header.Set("Authorization", authorization)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestRequire_ValidToken(t *testing.T) {
	t.Parallel()

	rec := serve(Require("secret-token-123", log.Nop())(okHandler), "Bearer secret-token-123")
	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusOK)
	}
}

func TestRequire_Rejected(t *testing.T) {
	t.Parallel()

	h := Require("secret", log.Nop())(okHandler)

	tests := []struct {
		name  string
		value string
	}{
		{"missing", ""},
		{"basic auth", "Basic dXNlcjpwYXNz"},
		{"lowercase bearer", "bearer secret"},
		{"no prefix", "secret"},
		{"wrong token", "Bearer wrong"},
		{"token prefix only", "Bearer secre"},
		{"token with suffix", "Bearer secret2"},
		{"empty token", "Bearer "},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			rec := serve(h, tt.value)
			if rec.Code != http.StatusUnauthorized {
				t.Errorf("Authorization %q: status = %d, want 401", tt.value, rec.Code)
			}
			if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
				t.Errorf("content-type = %q, want application/json", ct)
			}
			if rec.Header().Get("WWW-Authenticate") == "" {
				t.Error("missing WWW-Authenticate challenge")
			}
		})
	}
}

func TestRequire_EmptyTokenDisablesCheck(t *testing.T) {
	t.Parallel()

	h := Require("", nil)(okHandler)
	for _, value := range []string{"", "Bearer anything"} {
		if rec := serve(h, value); rec.Code != http.StatusOK {
			t.Errorf("Authorization %q: status = %d, want 200", value, rec.Code)
		}
	}
}
