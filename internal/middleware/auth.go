package middleware

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/playsync/backend/internal/auth"
	"github.com/playsync/backend/internal/logging"
)

// TokenVerifier validates an access token and returns the user id it was issued to.
type TokenVerifier interface {
	Verify(accessToken string) (string, error)
}

// RequireAuth rejects requests without a valid bearer access token. The caller's
// user id is stored on the request context and on the request logger.
func RequireAuth(verifier TokenVerifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()

			token, ok := bearerToken(r.Header.Get("Authorization"))
			if !ok {
				logging.FromContext(ctx).Warn("missing bearer token")
				unauthorized(w, "authorization required")
				return
			}

			userID, err := verifier.Verify(token)
			if err != nil {
				logging.FromContext(ctx).Warn("access token rejected", "error", err)
				unauthorized(w, "invalid or expired token")
				return
			}

			ctx = auth.WithUserID(ctx, userID)
			ctx = logging.With(ctx, "user_id", userID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func bearerToken(header string) (string, bool) {
	scheme, token, found := strings.Cut(strings.TrimSpace(header), " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

func unauthorized(w http.ResponseWriter, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("WWW-Authenticate", `Bearer realm="playsync"`)
	w.WriteHeader(http.StatusUnauthorized)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
