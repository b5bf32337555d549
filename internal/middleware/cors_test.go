package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestCORS(t *testing.T) {
	t.Parallel()

	next := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})

	tests := []struct {
		name       string
		allowed    []string
		origin     string
		method     string
		wantOrigin string
		wantCreds  string
		wantCode   int
	}{
		{name: "explicit origin", allowed: []string{"https://desk.example"}, origin: "https://desk.example", method: http.MethodPost, wantOrigin: "https://desk.example", wantCreds: "true", wantCode: http.StatusTeapot},
		{name: "wildcard has no credentials", allowed: []string{"*"}, origin: "https://other.example", method: http.MethodGet, wantOrigin: "https://other.example", wantCode: http.StatusTeapot},
		{name: "rejected origin", allowed: []string{"https://desk.example"}, origin: "https://evil.example", method: http.MethodGet, wantCode: http.StatusTeapot},
		{name: "preflight", allowed: []string{"*"}, origin: "https://desk.example", method: http.MethodOptions, wantOrigin: "https://desk.example", wantCode: http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			req := httptest.NewRequest(tt.method, "/api/chat/completions", nil)
			req.Header.Set("Origin", tt.origin)
			w := httptest.NewRecorder()
			CORS(tt.allowed)(next).ServeHTTP(w, req)

			if w.Code != tt.wantCode {
				t.Errorf("status = %d, want %d", w.Code, tt.wantCode)
			}
			if got := w.Header().Get("Access-Control-Allow-Origin"); got != tt.wantOrigin {
				t.Errorf("allow-origin = %q, want %q", got, tt.wantOrigin)
			}
			if got := w.Header().Get("Access-Control-Allow-Credentials"); got != tt.wantCreds {
				t.Errorf("allow-credentials = %q, want %q", got, tt.wantCreds)
			}
		})
	}
}
