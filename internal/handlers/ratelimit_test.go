package handlers

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/playsync/backend/internal/auth"
)

func TestRateLimitKey(t *testing.T) {
	tests := []struct {
		name   string
		remote string
		header map[string]string
		userID string
		want   string
	}{
		{name: "remote addr", remote: "10.0.0.1:5555", want: "login:ip:10.0.0.1"},
		{name: "forwarded for", remote: "10.0.0.1:5555", header: map[string]string{"X-Forwarded-For": " 203.0.113.9 , 10.0.0.2"}, want: "login:ip:203.0.113.9"},
		{name: "real ip", remote: "10.0.0.1:5555", header: map[string]string{"X-Real-IP": "198.51.100.4"}, want: "login:ip:198.51.100.4"},
		{name: "authenticated user", remote: "10.0.0.1:5555", userID: "u1", want: "login:user:u1"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/api/auth/login", nil)
			req.RemoteAddr = tc.remote
			for key, value := range tc.header {
				req.Header.Set(key, value)
			}
			if tc.userID != "" {
				req = req.WithContext(auth.WithUserID(req.Context(), tc.userID))
			}

			if got := rateLimitKey(req, "login"); got != tc.want {
				t.Fatalf("expected key %q, got %q", tc.want, got)
			}
		})
	}
}

func TestThrottleWithoutLimiterAllows(t *testing.T) {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/social/request", nil)

	if !throttle(rec, req, nil, "friend-request", "slow down") {
		t.Fatal("expected nil limiter to allow every request")
	}
	if rec.Body.Len() != 0 {
		t.Fatalf("expected no response to be written, got %q", rec.Body.String())
	}
}
