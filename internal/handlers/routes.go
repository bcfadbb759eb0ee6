package handlers

import "net/http"

// RegisterRoutes wires HTTP handlers into the provided ServeMux.
func RegisterRoutes(mux *http.ServeMux, deps Dependencies) {
	health := HealthHandler{Store: deps.Health}
	auth := AuthHandler{Users: deps.Users, Sessions: deps.Sessions, Limiter: deps.AuthLimiter}
	social := SocialHandler{Social: deps.Social, Limiter: deps.RequestLimiter}
	search := SearchHandler{Users: deps.Search}

	protect := func(h http.HandlerFunc) http.Handler {
		if deps.RequireAuth == nil {
			return h
		}
		return deps.RequireAuth(h)
	}

	mux.HandleFunc("GET /healthz", health.Handle)

	mux.HandleFunc("POST /api/auth/register", auth.Register)
	mux.HandleFunc("POST /api/auth/login", auth.Login)
	mux.HandleFunc("POST /api/auth/refresh", auth.Refresh)
	mux.HandleFunc("POST /api/auth/logout", auth.Logout)
	mux.Handle("GET /api/auth/{userId}", protect(auth.Profile))
	mux.Handle("PATCH /api/auth/{userId}", protect(auth.UpdateProfile))

	mux.Handle("POST /api/social/request", protect(social.SendRequest))
	mux.Handle("GET /api/social/requests/{userId}", protect(social.ListPendingRequests))
	mux.Handle("GET /api/social/friends/{userId}", protect(social.ListFriends))
	mux.Handle("POST /api/social/check-friendship", protect(social.CheckFriendship))
	mux.Handle("DELETE /api/social/remove-friend/{userId}", protect(social.RemoveFriend))
	mux.Handle("GET /api/social/{reqId}", protect(social.GetRequest))
	mux.Handle("PATCH /api/social/{reqId}", protect(social.RespondToRequest))
	mux.Handle("DELETE /api/social/{reqId}", protect(social.CancelRequest))

	mux.Handle("GET /api/search/{type}", protect(search.Search))
}

// Dependencies aggregates collaborators required by HTTP handlers.
type Dependencies struct {
	Users    UserStore
	Search   UserSearcher
	Sessions SessionManager
	Social   SocialService
	Health   Pinger

	// RequireAuth guards the profile, social and search routes when set.
	RequireAuth func(http.Handler) http.Handler

	AuthLimiter    RateLimiter
	RequestLimiter RateLimiter
}
