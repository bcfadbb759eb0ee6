package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/playsync/backend/internal/auth"
	"github.com/playsync/backend/internal/models"
	"github.com/playsync/backend/internal/repositories"
)

func newTestSessions() *auth.Manager {
	return auth.NewManager([]byte("test-secret"), time.Minute, time.Hour, auth.NewMemorySessionStore())
}

func postJSON(t *testing.T, path string, payload any) *http.Request {
	t.Helper()
	body, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return httptest.NewRequest(http.MethodPost, path, bytes.NewReader(body))
}

func TestAuthHandlerRegister(t *testing.T) {
	store := repositories.NewMemoryStore()
	handler := AuthHandler{Users: store, Sessions: newTestSessions()}

	req := postJSON(t, "/api/auth/register", registerRequest{
		FirstName: "Ada",
		LastName:  "Lovelace",
		Username:  "ada",
		Email:     " Ada@Example.com ",
		Password:  "supersafe",
	})
	rec := httptest.NewRecorder()

	handler.Register(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected status %d got %d: %s", http.StatusCreated, rec.Code, rec.Body.String())
	}

	var resp registerResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.UserID == "" || resp.Username != "ada" || resp.Email != "ada@example.com" {
		t.Fatalf("unexpected response %+v", resp)
	}
	if resp.Tokens.AccessToken == "" || resp.Tokens.RefreshToken == "" {
		t.Fatalf("expected tokens to be issued, got %+v", resp.Tokens)
	}

	stored, err := store.FindByEmail(context.Background(), "ada@example.com")
	if err != nil {
		t.Fatalf("expected user to be stored: %v", err)
	}
	if bcrypt.CompareHashAndPassword([]byte(stored.Password), []byte("supersafe")) != nil {
		t.Fatal("stored password is not hashed")
	}
	if stored.OnlineStatus != models.OnlineStatusOffline {
		t.Fatalf("expected offline status, got %q", stored.OnlineStatus)
	}
}

func TestAuthHandlerRegisterRejections(t *testing.T) {
	store := repositories.NewMemoryStore()
	store.PutUser(models.User{ID: "u1", Username: "taken", Email: "taken@example.com"})
	handler := AuthHandler{Users: store, Sessions: newTestSessions()}

	valid := registerRequest{FirstName: "A", LastName: "B", Username: "fresh", Email: "fresh@example.com", Password: "longenough"}

	tests := []struct {
		name   string
		mutate func(*registerRequest)
		status int
	}{
		{"missing first name", func(r *registerRequest) { r.FirstName = " " }, http.StatusBadRequest},
		{"bad email", func(r *registerRequest) { r.Email = "not-an-email" }, http.StatusBadRequest},
		{"short password", func(r *registerRequest) { r.Password = "short" }, http.StatusBadRequest},
		{"existing email", func(r *registerRequest) { r.Email = "TAKEN@example.com" }, http.StatusConflict},
		{"existing username", func(r *registerRequest) { r.Username = "Taken" }, http.StatusConflict},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			payload := valid
			tc.mutate(&payload)

			rec := httptest.NewRecorder()
			handler.Register(rec, postJSON(t, "/api/auth/register", payload))

			if rec.Code != tc.status {
				t.Fatalf("expected status %d got %d: %s", tc.status, rec.Code, rec.Body.String())
			}
		})
	}
}

func TestAuthHandlerLogin(t *testing.T) {
	store := repositories.NewMemoryStore()
	sessions := newTestSessions()
	handler := AuthHandler{Users: store, Sessions: sessions}

	hashed, err := bcrypt.GenerateFromPassword([]byte("password123"), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("hash password: %v", err)
	}
	store.PutUser(models.User{ID: "user-1", Username: "login", Email: "login@example.com", Password: string(hashed)})

	rec := httptest.NewRecorder()
	handler.Login(rec, postJSON(t, "/api/auth/login", loginRequest{Email: "LOGIN@example.com", Password: "password123"}))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status %d got %d", http.StatusOK, rec.Code)
	}

	var resp loginResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.UserID != "user-1" || resp.Username != "login" {
		t.Fatalf("unexpected profile in response %+v", resp)
	}

	userID, err := sessions.Verify(resp.Tokens.AccessToken)
	if err != nil || userID != "user-1" {
		t.Fatalf("expected access token for user-1, got %q (%v)", userID, err)
	}

	stored, err := store.FindByID(context.Background(), "user-1")
	if err != nil || stored.OnlineStatus != models.OnlineStatusOnline {
		t.Fatalf("expected login to mark user online, got %+v (%v)", stored, err)
	}

	rec = httptest.NewRecorder()
	handler.Login(rec, postJSON(t, "/api/auth/login", loginRequest{Email: "login@example.com", Password: "wrong"}))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected unauthorized for wrong password, got %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	handler.Login(rec, postJSON(t, "/api/auth/login", loginRequest{Email: "nobody@example.com", Password: "password123"}))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected unauthorized for unknown email, got %d", rec.Code)
	}
}

func TestAuthHandlerLoginRateLimited(t *testing.T) {
	handler := AuthHandler{Users: repositories.NewMemoryStore(), Sessions: newTestSessions(), Limiter: denyAll{}}

	rec := httptest.NewRecorder()
	handler.Login(rec, postJSON(t, "/api/auth/login", loginRequest{Email: "a@example.com", Password: "x"}))

	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429 got %d", rec.Code)
	}
}

func TestAuthHandlerRefresh(t *testing.T) {
	manager := newTestSessions()
	tokens, err := manager.Issue(context.Background(), "user-123")
	if err != nil {
		t.Fatalf("issue tokens: %v", err)
	}

	handler := AuthHandler{Sessions: manager}

	rec := httptest.NewRecorder()
	handler.Refresh(rec, postJSON(t, "/api/auth/refresh", refreshRequest{RefreshToken: tokens.RefreshToken}))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status %d got %d", http.StatusOK, rec.Code)
	}

	var resp authResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Tokens.RefreshToken == tokens.RefreshToken {
		t.Fatal("expected a new refresh token to be issued")
	}

	rec = httptest.NewRecorder()
	handler.Refresh(rec, postJSON(t, "/api/auth/refresh", refreshRequest{RefreshToken: tokens.RefreshToken}))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected rotated token to be rejected, got %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	handler.Refresh(rec, postJSON(t, "/api/auth/refresh", refreshRequest{}))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected bad request for missing token, got %d", rec.Code)
	}
}

func TestAuthHandlerLogout(t *testing.T) {
	store := repositories.NewMemoryStore()
	store.PutUser(models.User{ID: "user-123", Username: "player", OnlineStatus: models.OnlineStatusOnline})

	manager := newTestSessions()
	tokens, err := manager.Issue(context.Background(), "user-123")
	if err != nil {
		t.Fatalf("issue tokens: %v", err)
	}

	handler := AuthHandler{Users: store, Sessions: manager}

	for i := 0; i < 2; i++ {
		rec := httptest.NewRecorder()
		handler.Logout(rec, postJSON(t, "/api/auth/logout", refreshRequest{RefreshToken: tokens.RefreshToken}))
		if rec.Code != http.StatusOK {
			t.Fatalf("logout %d: expected status 200 got %d", i+1, rec.Code)
		}
	}

	user, err := store.FindByID(context.Background(), "user-123")
	if err != nil || user.OnlineStatus != models.OnlineStatusOffline {
		t.Fatalf("expected logout to mark user offline, got %+v (%v)", user, err)
	}

	rec := httptest.NewRecorder()
	handler.Refresh(rec, postJSON(t, "/api/auth/refresh", refreshRequest{RefreshToken: tokens.RefreshToken}))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected revoked token to be rejected, got %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	handler.Logout(rec, postJSON(t, "/api/auth/logout", refreshRequest{RefreshToken: "  "}))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected bad request for blank token, got %d", rec.Code)
	}
}

type denyAll struct{}

func (denyAll) Allow(string) bool { return false }

func TestAuthHandlerRejectsOversizedBody(t *testing.T) {
	handler := AuthHandler{Users: repositories.NewMemoryStore(), Sessions: newTestSessions()}

	padding := strings.Repeat("a", maxBodyBytes)
	req := postJSON(t, "/api/auth/login", map[string]string{"email": "a@example.com", "password": padding})
	rec := httptest.NewRecorder()
	handler.Login(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for oversized body got %d", rec.Code)
	}
}

func newProfileMux(store *repositories.MemoryStore, guard func(http.Handler) http.Handler) *http.ServeMux {
	mux := http.NewServeMux()
	RegisterRoutes(mux, Dependencies{
		Users:       store,
		Search:      store,
		Sessions:    newTestSessions(),
		RequireAuth: guard,
	})
	return mux
}

func TestAuthHandlerProfile(t *testing.T) {
	store := repositories.NewMemoryStore()
	store.PutUser(models.User{
		ID:           "user-1",
		Username:     "ada",
		Email:        "ada@example.com",
		FirstName:    "Ada",
		Bio:          "first programmer",
		OnlineStatus: models.OnlineStatusAway,
		FriendsList:  []string{"user-2"},
	})
	mux := newProfileMux(store, nil)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/auth/user-1", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d: %s", rec.Code, rec.Body.String())
	}

	var resp profileResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Data.Username != "ada" || resp.Data.Bio != "first programmer" || resp.Data.NumOfFriends != 1 {
		t.Fatalf("unexpected profile %+v", resp.Data)
	}
	if resp.Data.OnlineStatus != models.OnlineStatusAway || resp.Data.FriendRequests == nil {
		t.Fatalf("unexpected presence or request list %+v", resp.Data)
	}

	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/auth/ghost", nil))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown user got %d", rec.Code)
	}
}

func TestAuthHandlerUpdateProfile(t *testing.T) {
	store := repositories.NewMemoryStore()
	store.PutUser(models.User{ID: "user-1", Username: "ada", Email: "ada@example.com", OnlineStatus: models.OnlineStatusOnline})
	store.PutUser(models.User{ID: "user-2", Username: "grace", Email: "grace@example.com"})
	mux := newProfileMux(store, nil)

	patch := func(path string, payload any) *httptest.ResponseRecorder {
		body, err := json.Marshal(payload)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, httptest.NewRequest(http.MethodPatch, path, bytes.NewReader(body)))
		return rec
	}

	rec := patch("/api/auth/user-1", updateProfileRequest{FirstName: "Ada", LastName: "King", Username: "Countess", Bio: " analyst ", OnlineStatus: "BUSY"})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d: %s", rec.Code, rec.Body.String())
	}
	user, err := store.FindByID(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("find user: %v", err)
	}
	if user.Username != "Countess" || user.LastName != "King" || user.Bio != "analyst" || user.OnlineStatus != models.OnlineStatusBusy {
		t.Fatalf("unexpected user after update %+v", user)
	}

	cases := []struct {
		name    string
		path    string
		payload updateProfileRequest
		status  int
	}{
		{"missing fields", "/api/auth/user-1", updateProfileRequest{FirstName: "Ada"}, http.StatusBadRequest},
		{"bad status", "/api/auth/user-1", updateProfileRequest{FirstName: "A", LastName: "K", Username: "ada", OnlineStatus: "invisible"}, http.StatusBadRequest},
		{"taken username", "/api/auth/user-1", updateProfileRequest{FirstName: "A", LastName: "K", Username: "GRACE"}, http.StatusConflict},
		{"unknown user", "/api/auth/ghost", updateProfileRequest{FirstName: "A", LastName: "K", Username: "ghost"}, http.StatusNotFound},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if rec := patch(tc.path, tc.payload); rec.Code != tc.status {
				t.Fatalf("expected status %d got %d: %s", tc.status, rec.Code, rec.Body.String())
			}
		})
	}
}

func TestAuthHandlerUpdateProfileOnlyForSelf(t *testing.T) {
	store := repositories.NewMemoryStore()
	store.PutUser(models.User{ID: "user-1", Username: "ada", Email: "ada@example.com"})
	mux := newProfileMux(store, bearerAsUserID)

	body, err := json.Marshal(updateProfileRequest{FirstName: "A", LastName: "K", Username: "taken-over"})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	req := httptest.NewRequest(http.MethodPatch, "/api/auth/user-1", bytes.NewReader(body))
	req.Header.Set("Authorization", "Bearer user-2")
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 editing another user got %d", rec.Code)
	}

	req = httptest.NewRequest(http.MethodPatch, "/api/auth/user-1", bytes.NewReader(body))
	req.Header.Set("Authorization", "Bearer user-1")
	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 editing own profile got %d: %s", rec.Code, rec.Body.String())
	}
}

// bearerAsUserID authenticates the bearer value itself as the caller's user id.
func bearerAsUserID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		if !ok || userID == "" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r.WithContext(auth.WithUserID(r.Context(), userID)))
	})
}
