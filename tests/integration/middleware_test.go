//go:build integration

package integration

import (
	"net/http"
	"testing"
)

func TestRequestID(t *testing.T) {
	resp := doGet(t, "/livez")
	resp.Body.Close()
	if resp.Header.Get("X-Request-ID") == "" {
		t.Fatal("X-Request-ID header not generated")
	}

	const id = "coupon-request-42"
	resp = do(t, http.MethodGet, "/livez", nil, http.Header{"X-Request-Id": {id}})
	resp.Body.Close()
	if got := resp.Header.Get("X-Request-ID"); got != id {
		t.Errorf("X-Request-ID: got %q, want %q", got, id)
	}
}

func TestCORS(t *testing.T) {
	tests := []struct {
		name       string
		method     string
		header     http.Header
		wantStatus int
		wantHeader []string
	}{
		{
			name:   "preflight",
			method: http.MethodOptions,
			header: http.Header{
				"Origin":                        {"http://example.com"},
				"Access-Control-Request-Method": {http.MethodPost},
			},
			wantStatus: http.StatusNoContent,
			wantHeader: []string{"Access-Control-Allow-Origin", "Access-Control-Allow-Methods"},
		},
		{
			name:       "simple request",
			method:     http.MethodGet,
			header:     http.Header{"Origin": {"http://example.com"}},
			wantStatus: http.StatusOK,
			wantHeader: []string{"Access-Control-Allow-Origin", "Access-Control-Expose-Headers"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := do(t, tt.method, "/api/coupons/1111", nil, tt.header)
			defer resp.Body.Close()

			if resp.StatusCode != tt.wantStatus {
				t.Fatalf("expected %d, got %d", tt.wantStatus, resp.StatusCode)
			}
			for _, h := range tt.wantHeader {
				if resp.Header.Get(h) == "" {
					t.Errorf("%s header not present", h)
				}
			}
		})
	}
}

func TestRateLimit_Headers(t *testing.T) {
	resp := doGet(t, "/api/coupons/1111")
	defer resp.Body.Close()

	for _, h := range []string{"X-RateLimit-Limit", "X-RateLimit-Remaining"} {
		if resp.Header.Get(h) == "" {
			t.Errorf("%s header not present", h)
		}
	}
}
