package repositories

import (
	"context"
	"time"

	"github.com/playsync/backend/internal/models"
)

// UserRepository defines the data access contract for users.
type UserRepository interface {
	Create(ctx context.Context, user models.User) error
	FindByID(ctx context.Context, id string) (models.User, error)
	FindByEmail(ctx context.Context, email string) (models.User, error)
	// FindByUsername matches the username exactly, ignoring letter case.
	FindByUsername(ctx context.Context, username string) (models.User, error)
	// FindProfiles loads the users that exist among ids, without relationship sets.
	FindProfiles(ctx context.Context, ids []string) ([]models.User, error)
	SearchByUsername(ctx context.Context, prefix string, limit int) ([]models.User, error)
	UpdateOnlineStatus(ctx context.Context, id, status string, at time.Time) error
	// UpdateProfile returns ErrConflict when the new username belongs to another user.
	UpdateProfile(ctx context.Context, id string, update models.ProfileUpdate) error
}
