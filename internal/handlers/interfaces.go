package handlers

import (
	"context"
	"time"

	"github.com/playsync/backend/internal/models"
	"github.com/playsync/backend/internal/social"
)

// UserStore captures the persistence operations required by the auth handlers.
type UserStore interface {
	Create(ctx context.Context, user models.User) error
	FindByID(ctx context.Context, id string) (models.User, error)
	FindByEmail(ctx context.Context, email string) (models.User, error)
	FindByUsername(ctx context.Context, username string) (models.User, error)
	UpdateOnlineStatus(ctx context.Context, id, status string, at time.Time) error
	UpdateProfile(ctx context.Context, id string, update models.ProfileUpdate) error
}

// UserSearcher looks users up by username prefix.
type UserSearcher interface {
	SearchByUsername(ctx context.Context, prefix string, limit int) ([]models.User, error)
}

// SessionManager issues and refreshes authentication tokens for users.
type SessionManager interface {
	Issue(ctx context.Context, userID string) (models.SessionTokens, error)
	Refresh(ctx context.Context, refreshToken string) (models.SessionTokens, error)
	// Revoke returns the user the token belonged to, or "" when it was unknown.
	Revoke(ctx context.Context, refreshToken string) string
}

// SocialService is the friend relationship manager used by the social handlers.
type SocialService interface {
	SendRequest(ctx context.Context, recipientID, requestorID string) (models.FriendRequest, error)
	GetRequest(ctx context.Context, requestID string) (models.FriendRequest, error)
	RespondToRequest(ctx context.Context, requestID string, decision models.Decision) error
	CancelRequest(ctx context.Context, requestID string) error
	ListPendingRequests(ctx context.Context, userID string) (social.PendingRequests, error)
	FriendshipStatus(ctx context.Context, userID, otherID string) (models.FriendshipStatus, error)
	ListFriends(ctx context.Context, userID string, page social.Page) (social.FriendPage, error)
	RemoveFriend(ctx context.Context, userID, friendUsername string) error
}

var _ SocialService = (*social.Manager)(nil)
