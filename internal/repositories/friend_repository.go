package repositories

import (
	"context"

	"github.com/playsync/backend/internal/models"
)

// FriendRepository defines data access for friend requests and relationships.
type FriendRepository interface {
	FindRequest(ctx context.Context, requestID string) (models.FriendRequest, error)
	// FindRequestBetween looks a request up by the unordered pair of user ids.
	FindRequestBetween(ctx context.Context, userA, userB string) (models.FriendRequest, error)
	ListPendingForRecipient(ctx context.Context, userID string) ([]models.FriendRequest, error)
	// ApplyTransition applies every record change of t atomically, or none of them.
	ApplyTransition(ctx context.Context, t models.Transition) error
}
