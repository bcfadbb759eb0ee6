package handlers

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/playsync/backend/internal/auth"
	"github.com/playsync/backend/internal/logging"
	"github.com/playsync/backend/internal/models"
	"github.com/playsync/backend/internal/repositories"
)

// AuthHandler implements user registration and session endpoints.
type AuthHandler struct {
	Users    UserStore
	Sessions SessionManager
	Limiter  RateLimiter
	NowFunc  func() time.Time
}

type registerRequest struct {
	FirstName string `json:"firstName" validate:"required"`
	LastName  string `json:"lastName" validate:"required"`
	Username  string `json:"username" validate:"required,max=32"`
	Email     string `json:"email" validate:"required,email"`
	Password  string `json:"password" validate:"required,min=8"`
}

type loginRequest struct {
	Email    string `json:"email" validate:"required"`
	Password string `json:"password" validate:"required"`
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken" validate:"required"`
}

type updateProfileRequest struct {
	FirstName    string `json:"firstName" validate:"required"`
	LastName     string `json:"lastName" validate:"required"`
	Username     string `json:"username" validate:"required,max=32"`
	Bio          string `json:"bio" validate:"max=500"`
	OnlineStatus string `json:"onlineStatus"`
}

type profileData struct {
	UserID         string    `json:"userId"`
	Username       string    `json:"username"`
	Email          string    `json:"email"`
	FirstName      string    `json:"firstName"`
	LastName       string    `json:"lastName"`
	Bio            string    `json:"bio"`
	ProfilePic     string    `json:"profilePic"`
	OnlineStatus   string    `json:"onlineStatus"`
	FriendsList    []string  `json:"friendsList"`
	NumOfFriends   int       `json:"numOfFriends"`
	FriendRequests []string  `json:"friendRequests"`
	CreatedAt      time.Time `json:"createdAt"`
}

type profileResponse struct {
	Message string      `json:"message"`
	Data    profileData `json:"data"`
}

type registerResponse struct {
	Message  string               `json:"message"`
	UserID   string               `json:"userId"`
	Username string               `json:"username"`
	Email    string               `json:"email"`
	Tokens   models.SessionTokens `json:"tokens"`
}

type loginResponse struct {
	Message  string               `json:"message"`
	UserID   string               `json:"userId"`
	Username string               `json:"username"`
	Tokens   models.SessionTokens `json:"tokens"`
}

type authResponse struct {
	Tokens models.SessionTokens `json:"tokens"`
}

// Register handles POST /api/auth/register requests.
func (h AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := logging.FromContext(ctx)

	if !throttle(w, r, h.Limiter, "register", "too many registration attempts, try again later") {
		return
	}

	var req registerRequest
	if err := decodeJSON(w, r, &req); err != nil {
		logger.Warn("invalid register payload", "error", err)
		respondError(ctx, w, http.StatusBadRequest, "invalid request body")
		return
	}

	trimAll(&req.FirstName, &req.LastName, &req.Username, &req.Email)
	req.Email = strings.ToLower(req.Email)
	if err := validate.Struct(req); err != nil {
		logger.Warn("register validation failed", "error", err)
		respondError(ctx, w, http.StatusBadRequest, registerValidationMessage(err))
		return
	}

	if _, err := h.Users.FindByEmail(ctx, req.Email); err == nil {
		logger.Warn("register existing email", "email", req.Email)
		respondError(ctx, w, http.StatusConflict, "Email already in use")
		return
	} else if !errors.Is(err, repositories.ErrNotFound) {
		logger.Error("register email lookup failed", "error", err, "email", req.Email)
		respondError(ctx, w, http.StatusInternalServerError, "Registration failed.")
		return
	}

	if _, err := h.Users.FindByUsername(ctx, req.Username); err == nil {
		logger.Warn("register existing username", "username", req.Username)
		respondError(ctx, w, http.StatusConflict, "Username already in use")
		return
	} else if !errors.Is(err, repositories.ErrNotFound) {
		logger.Error("register username lookup failed", "error", err, "username", req.Username)
		respondError(ctx, w, http.StatusInternalServerError, "Registration failed.")
		return
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		logger.Error("register failed to hash password", "error", err)
		respondError(ctx, w, http.StatusInternalServerError, "Registration failed.")
		return
	}

	now := h.now()
	user := models.User{
		ID:           uuid.NewString(),
		Username:     req.Username,
		Email:        req.Email,
		Password:     string(hashed),
		FirstName:    req.FirstName,
		LastName:     req.LastName,
		OnlineStatus: models.OnlineStatusOffline,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := h.Users.Create(ctx, user); err != nil {
		if errors.Is(err, repositories.ErrConflict) {
			logger.Warn("register conflict", "email", req.Email, "username", req.Username)
			respondError(ctx, w, http.StatusConflict, "Email or username already in use")
			return
		}
		logger.Error("register failed to create user", "error", err, "email", req.Email)
		respondError(ctx, w, http.StatusInternalServerError, "Registration failed.")
		return
	}

	tokens, err := h.Sessions.Issue(ctx, user.ID)
	if err != nil {
		logger.Error("register failed to issue session", "error", err, "userId", user.ID)
		respondError(ctx, w, http.StatusInternalServerError, "failed to create session")
		return
	}

	respondJSON(ctx, w, http.StatusCreated, registerResponse{
		Message:  "User registered successfully",
		UserID:   user.ID,
		Username: user.Username,
		Email:    user.Email,
		Tokens:   tokens,
	})
}

// Login handles POST /api/auth/login requests.
func (h AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := logging.FromContext(ctx)

	if !throttle(w, r, h.Limiter, "login", "too many login attempts, try again later") {
		return
	}

	var req loginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		logger.Warn("invalid login payload", "error", err)
		respondError(ctx, w, http.StatusBadRequest, "invalid request body")
		return
	}

	req.Email = strings.TrimSpace(strings.ToLower(req.Email))
	if err := validate.Struct(req); err != nil {
		logger.Warn("login missing credentials", "email", req.Email)
		respondError(ctx, w, http.StatusBadRequest, "email and password are required")
		return
	}

	user, err := h.Users.FindByEmail(ctx, req.Email)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			logger.Warn("login unknown email", "email", req.Email)
		} else {
			logger.Error("login user lookup failed", "email", req.Email, "error", err)
		}
		respondError(ctx, w, http.StatusUnauthorized, "invalid credentials")
		return
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(req.Password)); err != nil {
		logger.Warn("login password mismatch", "userId", user.ID)
		respondError(ctx, w, http.StatusUnauthorized, "invalid credentials")
		return
	}

	if err := h.Users.UpdateOnlineStatus(ctx, user.ID, models.OnlineStatusOnline, h.now()); err != nil {
		logger.Error("login failed to mark user online", "error", err, "userId", user.ID)
		respondError(ctx, w, http.StatusInternalServerError, "Login failed.")
		return
	}

	tokens, err := h.Sessions.Issue(ctx, user.ID)
	if err != nil {
		logger.Error("failed to issue session", "error", err, "userId", user.ID)
		respondError(ctx, w, http.StatusInternalServerError, "failed to create session")
		return
	}

	respondJSON(ctx, w, http.StatusOK, loginResponse{
		Message:  "Login successful",
		UserID:   user.ID,
		Username: user.Username,
		Tokens:   tokens,
	})
}

// Refresh exchanges a refresh token for a new session.
func (h AuthHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := logging.FromContext(ctx)

	var req refreshRequest
	if err := decodeJSON(w, r, &req); err != nil {
		logger.Warn("invalid refresh payload", "error", err)
		respondError(ctx, w, http.StatusBadRequest, "invalid request body")
		return
	}

	trimAll(&req.RefreshToken)
	if err := validate.Struct(req); err != nil {
		logger.Warn("missing refresh token")
		respondError(ctx, w, http.StatusBadRequest, "refresh token is required")
		return
	}

	tokens, err := h.Sessions.Refresh(ctx, req.RefreshToken)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, auth.ErrRefreshTokenExpired) || errors.Is(err, auth.ErrSessionNotFound) {
			status = http.StatusUnauthorized
		}
		logger.Warn("refresh failed", "error", err, "status", status)
		respondError(ctx, w, status, "unable to refresh session")
		return
	}

	respondJSON(ctx, w, http.StatusOK, authResponse{Tokens: tokens})
}

// Logout revokes a refresh token and marks its owner offline. Unknown tokens are
// treated as already revoked.
func (h AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := logging.FromContext(ctx)

	var req refreshRequest
	if err := decodeJSON(w, r, &req); err != nil {
		logger.Warn("invalid logout payload", "error", err)
		respondError(ctx, w, http.StatusBadRequest, "invalid request body")
		return
	}

	trimAll(&req.RefreshToken)
	if err := validate.Struct(req); err != nil {
		respondError(ctx, w, http.StatusBadRequest, "refresh token is required")
		return
	}

	if userID := h.Sessions.Revoke(ctx, req.RefreshToken); userID != "" {
		err := h.Users.UpdateOnlineStatus(ctx, userID, models.OnlineStatusOffline, h.now())
		switch {
		case errors.Is(err, repositories.ErrNotFound):
			logger.Warn("logout for deleted user", "userId", userID)
		case err != nil:
			logger.Error("logout failed to mark user offline", "error", err, "userId", userID)
			respondError(ctx, w, http.StatusInternalServerError, "Failed to log out user!")
			return
		}
	}

	respondJSON(ctx, w, http.StatusOK, messageResponse{Message: "User logged out successfully!"})
}

// Profile handles GET /api/auth/{userId}.
func (h AuthHandler) Profile(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	userID := strings.TrimSpace(r.PathValue("userId"))
	if userID == "" {
		respondError(ctx, w, http.StatusBadRequest, "Missing required fields")
		return
	}

	user, err := h.Users.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			respondError(ctx, w, http.StatusNotFound, "User not found!")
			return
		}
		logging.FromContext(ctx).Error("profile lookup failed", "error", err, "userId", userID)
		respondError(ctx, w, http.StatusInternalServerError, "Failed to fetch user info!")
		return
	}

	respondJSON(ctx, w, http.StatusOK, profileResponse{
		Message: "Successfully fetched user details!",
		Data: profileData{
			UserID:         user.ID,
			Username:       user.Username,
			Email:          user.Email,
			FirstName:      user.FirstName,
			LastName:       user.LastName,
			Bio:            user.Bio,
			ProfilePic:     user.ProfilePictureURL,
			OnlineStatus:   user.OnlineStatus,
			FriendsList:    nonNilIDs(user.FriendsList),
			NumOfFriends:   user.NumOfFriends(),
			FriendRequests: nonNilIDs(user.FriendRequests),
			CreatedAt:      user.CreatedAt,
		},
	})
}

// UpdateProfile handles PATCH /api/auth/{userId}. An authenticated caller may only
// edit their own profile.
func (h AuthHandler) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := logging.FromContext(ctx)

	var req updateProfileRequest
	if err := decodeJSON(w, r, &req); err != nil {
		logger.Warn("invalid profile payload", "error", err)
		respondError(ctx, w, http.StatusBadRequest, "invalid request body")
		return
	}

	userID := strings.TrimSpace(r.PathValue("userId"))
	trimAll(&req.FirstName, &req.LastName, &req.Username, &req.Bio, &req.OnlineStatus)
	if err := validate.Struct(req); err != nil || userID == "" {
		logger.Warn("profile validation failed", "error", err)
		respondError(ctx, w, http.StatusBadRequest, registerValidationMessage(err))
		return
	}
	if !authorizeCaller(w, r, userID) {
		return
	}

	update := models.ProfileUpdate{
		FirstName: req.FirstName,
		LastName:  req.LastName,
		Username:  req.Username,
		Bio:       req.Bio,
		UpdatedAt: h.now(),
	}
	if req.OnlineStatus != "" {
		status, err := models.ParseOnlineStatus(req.OnlineStatus)
		if err != nil {
			respondError(ctx, w, http.StatusBadRequest, "invalid online status")
			return
		}
		update.OnlineStatus = status
	}

	if err := h.Users.UpdateProfile(ctx, userID, update); err != nil {
		switch {
		case errors.Is(err, repositories.ErrNotFound):
			respondError(ctx, w, http.StatusNotFound, "User not found!")
		case errors.Is(err, repositories.ErrConflict):
			respondError(ctx, w, http.StatusConflict, "Username already in use")
		default:
			logger.Error("profile update failed", "error", err, "userId", userID)
			respondError(ctx, w, http.StatusInternalServerError, "Failed to update user info!")
		}
		return
	}

	respondJSON(ctx, w, http.StatusOK, messageResponse{Message: "User info updated successfully!"})
}

func nonNilIDs(ids []string) []string {
	if ids == nil {
		return []string{}
	}
	return ids
}

func (h AuthHandler) now() time.Time {
	if h.NowFunc != nil {
		return h.NowFunc()
	}
	return time.Now().UTC()
}

func registerValidationMessage(err error) string {
	var validationErrs validator.ValidationErrors
	if !errors.As(err, &validationErrs) || len(validationErrs) == 0 {
		return "Missing required fields"
	}
	for _, fieldErr := range validationErrs {
		if fieldErr.Tag() == "required" {
			return "Missing required fields"
		}
	}
	switch first := validationErrs[0]; first.Field() {
	case "Email":
		return "invalid email address"
	case "Password":
		return "password must be at least 8 characters"
	case "Username":
		return "username must be at most 32 characters"
	case "Bio":
		return "bio must be at most 500 characters"
	default:
		return "invalid " + strings.ToLower(first.Field())
	}
}
