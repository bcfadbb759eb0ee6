package repositories

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/playsync/backend/internal/auth"
	"github.com/playsync/backend/internal/models"
)

// newTestMongoStore connects to PLAYSYNC_TEST_MONGO_URI and returns a store bound to
// a throwaway database. Transactions stay off so a standalone mongod is enough.
func newTestMongoStore(t *testing.T) *MongoStore {
	t.Helper()
	uri := os.Getenv("PLAYSYNC_TEST_MONGO_URI")
	if uri == "" || testing.Short() {
		t.Skip("PLAYSYNC_TEST_MONGO_URI not set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	require.NoError(t, err)

	database := fmt.Sprintf("playsync_test_%s", uuid.NewString()[:8])
	store := NewMongoStore(client, database, false, nil)
	require.NoError(t, store.Ping(ctx))
	require.NoError(t, store.EnsureIndexes(ctx))

	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = client.Database(database).Drop(ctx)
		_ = client.Disconnect(ctx)
	})
	return store
}

func createMongoUser(t *testing.T, store *MongoStore, username string) models.User {
	t.Helper()
	now := time.Now().UTC().Truncate(time.Millisecond)
	user := models.User{
		ID:        uuid.NewString(),
		Username:  username,
		Email:     username + "@example.com",
		Password:  "password-hash",
		CreatedAt: now,
		UpdatedAt: now,
	}
	require.NoError(t, store.Create(context.Background(), user))
	return user
}

func TestMongoStore_Users(t *testing.T) {
	store := newTestMongoStore(t)
	ctx := context.Background()

	alice := createMongoUser(t, store, "alice")
	createMongoUser(t, store, "alina")

	err := store.Create(ctx, models.User{ID: uuid.NewString(), Username: "ALICE", Email: "other@example.com"})
	assert.ErrorIs(t, err, ErrConflict)

	found, err := store.FindByUsername(ctx, "Alice")
	require.NoError(t, err)
	assert.Equal(t, alice.ID, found.ID)
	assert.Equal(t, models.OnlineStatusOffline, found.OnlineStatus)

	matches, err := store.SearchByUsername(ctx, "AL", 5)
	require.NoError(t, err)
	require.Len(t, matches, 2)
	assert.Equal(t, "alice", matches[0].Username)

	_, err = store.FindByID(ctx, uuid.NewString())
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMongoStore_UpdateStatusAndProfile(t *testing.T) {
	store := newTestMongoStore(t)
	ctx := context.Background()

	erin := createMongoUser(t, store, "erin")
	createMongoUser(t, store, "frank")
	at := time.Now().UTC().Truncate(time.Millisecond)

	require.NoError(t, store.UpdateOnlineStatus(ctx, erin.ID, models.OnlineStatusAway, at))

	update := models.ProfileUpdate{FirstName: "Erin", LastName: "Ng", Username: "ErinN", Bio: "speedrunner", UpdatedAt: at}
	require.NoError(t, store.UpdateProfile(ctx, erin.ID, update))

	found, err := store.FindByUsername(ctx, "erinn")
	require.NoError(t, err)
	assert.Equal(t, erin.ID, found.ID)
	assert.Equal(t, "speedrunner", found.Bio)
	assert.Equal(t, models.OnlineStatusAway, found.OnlineStatus)

	update.Username = "Frank"
	assert.ErrorIs(t, store.UpdateProfile(ctx, erin.ID, update), ErrConflict)
	assert.ErrorIs(t, store.UpdateOnlineStatus(ctx, uuid.NewString(), models.OnlineStatusOnline, at), ErrNotFound)
}

func TestMongoStore_FriendLifecycle(t *testing.T) {
	store := newTestMongoStore(t)
	ctx := context.Background()

	a := createMongoUser(t, store, "anna")
	b := createMongoUser(t, store, "ben")

	request := models.FriendRequest{
		ID:          uuid.NewString(),
		RecipientID: b.ID,
		RequestorID: a.ID,
		Status:      models.RequestStatusPending,
		CreatedAt:   time.Now().UTC(),
	}
	require.NoError(t, store.ApplyTransition(ctx, models.Transition{Kind: models.TransitionSend, Request: request}))

	reverse := request
	reverse.ID = uuid.NewString()
	reverse.RecipientID, reverse.RequestorID = a.ID, b.ID
	assert.ErrorIs(t, store.ApplyTransition(ctx, models.Transition{Kind: models.TransitionSend, Request: reverse}), ErrConflict)

	pending, err := store.ListPendingForRecipient(ctx, b.ID)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, request.ID, pending[0].ID)

	require.NoError(t, store.ApplyTransition(ctx, models.Transition{Kind: models.TransitionAccept, Request: request}))

	for _, id := range []string{a.ID, b.ID} {
		user, err := store.FindByID(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, 1, user.NumOfFriends())
		assert.Empty(t, user.FriendRequests)
	}

	remove := models.Transition{Kind: models.TransitionRemove, UserID: a.ID, FriendID: b.ID}
	require.NoError(t, store.ApplyTransition(ctx, remove))
	assert.ErrorIs(t, store.ApplyTransition(ctx, remove), ErrNotFound)
}

func TestMongoStore_SendToUnknownRecipientIsCompensated(t *testing.T) {
	store := newTestMongoStore(t)
	ctx := context.Background()

	a := createMongoUser(t, store, "solo")
	ghost := uuid.NewString()

	err := store.ApplyTransition(ctx, models.Transition{Kind: models.TransitionSend, Request: models.FriendRequest{
		ID:          uuid.NewString(),
		RecipientID: ghost,
		RequestorID: a.ID,
		Status:      models.RequestStatusPending,
		CreatedAt:   time.Now().UTC(),
	}})
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = store.FindRequestBetween(ctx, a.ID, ghost)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMongoSessionStore(t *testing.T) {
	store := newTestMongoStore(t)
	sessions := store.Sessions()
	ctx := context.Background()

	session := auth.Session{
		RefreshToken: uuid.NewString(),
		UserID:       uuid.NewString(),
		ExpiresAt:    time.Now().UTC().Add(time.Hour).Truncate(time.Millisecond),
	}
	require.NoError(t, sessions.Save(ctx, session))

	loaded, err := sessions.Find(ctx, session.RefreshToken)
	require.NoError(t, err)
	assert.Equal(t, session.UserID, loaded.UserID)
	assert.True(t, loaded.ExpiresAt.Equal(session.ExpiresAt))

	require.NoError(t, sessions.Delete(ctx, session.RefreshToken))
	_, err = sessions.Find(ctx, session.RefreshToken)
	assert.ErrorIs(t, err, auth.ErrSessionNotFound)
}
