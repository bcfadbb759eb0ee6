package repositories

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/playsync/backend/internal/models"
)

func seedMemoryUsers(t *testing.T, store *MemoryStore, usernames ...string) []models.User {
	t.Helper()
	users := make([]models.User, 0, len(usernames))
	for _, name := range usernames {
		user := models.User{ID: "id-" + name, Username: name, Email: name + "@example.com"}
		require.NoError(t, store.Create(context.Background(), user))
		users = append(users, user)
	}
	return users
}

func memoryRequest(id, recipientID, requestorID string) models.FriendRequest {
	return models.FriendRequest{
		ID:          id,
		RecipientID: recipientID,
		RequestorID: requestorID,
		Status:      models.RequestStatusPending,
		CreatedAt:   time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

func TestMemoryStore_CreateRejectsDuplicates(t *testing.T) {
	store := NewMemoryStore()
	seedMemoryUsers(t, store, "alice")
	ctx := context.Background()

	err := store.Create(ctx, models.User{ID: "other", Username: "ALICE", Email: "x@example.com"})
	assert.ErrorIs(t, err, ErrConflict)

	err = store.Create(ctx, models.User{ID: "other", Username: "bob", Email: "Alice@Example.com"})
	assert.ErrorIs(t, err, ErrConflict)

	user, err := store.FindByUsername(ctx, "aLiCe")
	require.NoError(t, err)
	assert.Equal(t, "id-alice", user.ID)

	_, err = store.FindByEmail(ctx, "missing@example.com")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStore_SearchAndProfiles(t *testing.T) {
	store := NewMemoryStore()
	seedMemoryUsers(t, store, "carol", "Cara", "dave", "carl")
	ctx := context.Background()

	matches, err := store.SearchByUsername(ctx, "CAR", 2)
	require.NoError(t, err)
	require.Len(t, matches, 2)
	assert.Equal(t, "Cara", matches[0].Username)
	assert.Equal(t, "carl", matches[1].Username)

	profiles, err := store.FindProfiles(ctx, []string{"id-dave", "missing", "id-carol"})
	require.NoError(t, err)
	require.Len(t, profiles, 2)
	assert.Equal(t, "id-dave", profiles[0].ID)
	assert.Equal(t, "id-carol", profiles[1].ID)
}

func TestMemoryStore_TransitionsKeepRelationsInStep(t *testing.T) {
	store := NewMemoryStore()
	seedMemoryUsers(t, store, "a", "b")
	ctx := context.Background()

	request := memoryRequest("r1", "id-b", "id-a")
	require.NoError(t, store.ApplyTransition(ctx, models.Transition{Kind: models.TransitionSend, Request: request}))

	reverse := memoryRequest("r2", "id-a", "id-b")
	assert.ErrorIs(t, store.ApplyTransition(ctx, models.Transition{Kind: models.TransitionSend, Request: reverse}), ErrConflict)

	recipient, err := store.FindByID(ctx, "id-b")
	require.NoError(t, err)
	assert.Equal(t, []string{"r1"}, recipient.FriendRequests)

	between, err := store.FindRequestBetween(ctx, "id-b", "id-a")
	require.NoError(t, err)
	assert.Equal(t, "r1", between.ID)

	require.NoError(t, store.ApplyTransition(ctx, models.Transition{Kind: models.TransitionAccept, Request: request}))

	for _, id := range []string{"id-a", "id-b"} {
		user, err := store.FindByID(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, 1, user.NumOfFriends())
		assert.Empty(t, user.FriendRequests)
	}

	_, err = store.FindRequest(ctx, "r1")
	assert.ErrorIs(t, err, ErrNotFound)

	remove := models.Transition{Kind: models.TransitionRemove, UserID: "id-b", FriendID: "id-a"}
	require.NoError(t, store.ApplyTransition(ctx, remove))
	assert.ErrorIs(t, store.ApplyTransition(ctx, remove), ErrNotFound)
}

func TestMemoryStore_SendToUnknownUser(t *testing.T) {
	store := NewMemoryStore()
	seedMemoryUsers(t, store, "a")

	err := store.ApplyTransition(context.Background(), models.Transition{
		Kind:    models.TransitionSend,
		Request: memoryRequest("r1", "ghost", "id-a"),
	})
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = store.FindRequestBetween(context.Background(), "ghost", "id-a")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStore_RemoveRequiresBothSides(t *testing.T) {
	store := NewMemoryStore()
	store.PutUser(models.User{ID: "a", Username: "a", FriendsList: []string{"b"}})
	store.PutUser(models.User{ID: "b", Username: "b"})

	err := store.ApplyTransition(context.Background(), models.Transition{Kind: models.TransitionRemove, UserID: "a", FriendID: "b"})
	assert.ErrorIs(t, err, ErrNotFound)

	user, err := store.FindByID(context.Background(), "a")
	require.NoError(t, err)
	assert.Equal(t, []string{"b"}, user.FriendsList)
}

func TestMemoryStore_PendingListKeepsCreationOrder(t *testing.T) {
	store := NewMemoryStore()
	seedMemoryUsers(t, store, "target", "s1", "s2", "s3")
	ctx := context.Background()

	for i, sender := range []string{"id-s2", "id-s3", "id-s1"} {
		request := memoryRequest(fmt.Sprintf("r%d", i), "id-target", sender)
		require.NoError(t, store.ApplyTransition(ctx, models.Transition{Kind: models.TransitionSend, Request: request}))
	}
	require.NoError(t, store.ApplyTransition(ctx, models.Transition{
		Kind:    models.TransitionCancel,
		Request: models.FriendRequest{ID: "r1"},
	}))

	pending, err := store.ListPendingForRecipient(ctx, "id-target")
	require.NoError(t, err)
	require.Len(t, pending, 2)
	assert.Equal(t, "r0", pending[0].ID)
	assert.Equal(t, "r2", pending[1].ID)
}

func TestMemoryStore_ConcurrentSendsYieldOneRequest(t *testing.T) {
	store := NewMemoryStore()
	seedMemoryUsers(t, store, "a", "b")
	ctx := context.Background()

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			request := memoryRequest(fmt.Sprintf("r%d", i), "id-b", "id-a")
			if i%2 == 1 {
				request = memoryRequest(fmt.Sprintf("r%d", i), "id-a", "id-b")
			}
			if err := store.ApplyTransition(ctx, models.Transition{Kind: models.TransitionSend, Request: request}); err == nil {
				mu.Lock()
				succeeded++
				mu.Unlock()
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 1, succeeded)
}

func TestMemoryStore_ReturnsCopies(t *testing.T) {
	store := NewMemoryStore()
	store.PutUser(models.User{ID: "a", Username: "a", FriendsList: []string{"b"}})

	user, err := store.FindByID(context.Background(), "a")
	require.NoError(t, err)
	user.FriendsList[0] = "mutated"

	again, err := store.FindByID(context.Background(), "a")
	require.NoError(t, err)
	assert.Equal(t, []string{"b"}, again.FriendsList)
}

func TestMemoryStore_UpdateOnlineStatus(t *testing.T) {
	store := NewMemoryStore()
	seedMemoryUsers(t, store, "alice")
	ctx := context.Background()
	at := time.Date(2025, 2, 1, 9, 0, 0, 0, time.UTC)

	require.NoError(t, store.UpdateOnlineStatus(ctx, "id-alice", models.OnlineStatusOnline, at))

	user, err := store.FindByID(ctx, "id-alice")
	require.NoError(t, err)
	assert.Equal(t, models.OnlineStatusOnline, user.OnlineStatus)
	assert.Equal(t, at, user.UpdatedAt)

	assert.ErrorIs(t, store.UpdateOnlineStatus(ctx, "ghost", models.OnlineStatusOnline, at), ErrNotFound)
}

func TestMemoryStore_UpdateProfile(t *testing.T) {
	store := NewMemoryStore()
	seedMemoryUsers(t, store, "alice", "bob")
	ctx := context.Background()

	update := models.ProfileUpdate{FirstName: "Alice", LastName: "Liddell", Username: "Wonder", Bio: "down the hole"}
	require.NoError(t, store.UpdateProfile(ctx, "id-alice", update))

	user, err := store.FindByUsername(ctx, "wonder")
	require.NoError(t, err)
	assert.Equal(t, "id-alice", user.ID)
	assert.Equal(t, "down the hole", user.Bio)
	assert.Empty(t, user.OnlineStatus)

	update.Username = "BOB"
	assert.ErrorIs(t, store.UpdateProfile(ctx, "id-alice", update), ErrConflict)

	update.Username = "alice"
	update.OnlineStatus = models.OnlineStatusBusy
	require.NoError(t, store.UpdateProfile(ctx, "id-alice", update))
	user, err = store.FindByID(ctx, "id-alice")
	require.NoError(t, err)
	assert.Equal(t, models.OnlineStatusBusy, user.OnlineStatus)

	assert.ErrorIs(t, store.UpdateProfile(ctx, "ghost", update), ErrNotFound)
}
