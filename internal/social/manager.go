// Package social implements the friend relationship lifecycle: friend requests,
// their acceptance or refusal, friendship status queries, friend listings and
// removal. Every multi-record change goes through the store's ApplyTransition so
// friendships stay symmetric.
package social

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/playsync/backend/internal/logging"
	"github.com/playsync/backend/internal/models"
	"github.com/playsync/backend/internal/repositories"
)

const (
	// DefaultLimit is the friends page size used when none or an invalid one is given.
	DefaultLimit = 10
	// UnknownUsername labels requests whose requestor record no longer exists.
	UnknownUsername = "Unknown"
)

// UserReader is the subset of the user record store the manager reads.
type UserReader interface {
	FindByID(ctx context.Context, id string) (models.User, error)
	FindByUsername(ctx context.Context, username string) (models.User, error)
	FindProfiles(ctx context.Context, ids []string) ([]models.User, error)
}

// FriendStore is the friend request store plus the atomic transition primitive.
type FriendStore interface {
	FindRequest(ctx context.Context, requestID string) (models.FriendRequest, error)
	FindRequestBetween(ctx context.Context, userA, userB string) (models.FriendRequest, error)
	ListPendingForRecipient(ctx context.Context, userID string) ([]models.FriendRequest, error)
	ApplyTransition(ctx context.Context, t models.Transition) error
}

// PendingRequests is the result of ListPendingRequests.
type PendingRequests struct {
	Total    int
	Requests []models.RequestSummary
}

// FriendPage is one page of a user's friends list. Total counts the whole list.
type FriendPage struct {
	Total   int
	Friends []models.FriendSummary
}

// Page selects a window of a friends list.
type Page struct {
	Limit  int
	Offset int
}

// Normalize applies the defaults: a non-positive limit becomes DefaultLimit and a
// negative offset becomes zero.
func (p Page) Normalize() Page {
	if p.Limit <= 0 {
		p.Limit = DefaultLimit
	}
	if p.Offset < 0 {
		p.Offset = 0
	}
	return p
}

// Manager orchestrates friend requests and friendships.
type Manager struct {
	users   UserReader
	friends FriendStore
	now     func() time.Time
	newID   func() string
}

// Option customises a Manager.
type Option func(*Manager)

// WithClock overrides the time source used for request timestamps.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		if now != nil {
			m.now = now
		}
	}
}

// WithIDGenerator overrides how request identifiers are generated.
func WithIDGenerator(newID func() string) Option {
	return func(m *Manager) {
		if newID != nil {
			m.newID = newID
		}
	}
}

// NewManager constructs a Manager over the provided stores.
func NewManager(users UserReader, friends FriendStore, opts ...Option) *Manager {
	m := &Manager{
		users:   users,
		friends: friends,
		now:     func() time.Time { return time.Now().UTC() },
		newID:   uuid.NewString,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// SendRequest creates a pending friend request from requestorID to recipientID.
func (m *Manager) SendRequest(ctx context.Context, recipientID, requestorID string) (_ models.FriendRequest, err error) {
	recipientID, requestorID = strings.TrimSpace(recipientID), strings.TrimSpace(requestorID)

	ctx, end := startSpan(ctx, "social.SendRequest", "recipientId", recipientID, "requestorId", requestorID)
	defer func() { end(err) }()

	if recipientID == "" || requestorID == "" {
		return models.FriendRequest{}, invalidInput("recipientId and requestorId are required")
	}
	if recipientID == requestorID {
		return models.FriendRequest{}, invalidInput("cannot send a friend request to yourself")
	}

	recipient, err := m.findUser(ctx, recipientID)
	if err != nil {
		return models.FriendRequest{}, err
	}
	requestor, err := m.findUser(ctx, requestorID)
	if err != nil {
		return models.FriendRequest{}, err
	}

	if recipient.HasFriend(requestorID) || requestor.HasFriend(recipientID) {
		return models.FriendRequest{}, conflict(ConflictAlreadyFriends)
	}

	if _, err := m.friends.FindRequestBetween(ctx, recipientID, requestorID); err == nil {
		return models.FriendRequest{}, conflict(ConflictDuplicateRequest)
	} else if !errors.Is(err, repositories.ErrNotFound) {
		return models.FriendRequest{}, fmt.Errorf("look up existing request: %w", err)
	}

	request := models.FriendRequest{
		ID:          m.newID(),
		RecipientID: recipientID,
		RequestorID: requestorID,
		Status:      models.RequestStatusPending,
		CreatedAt:   m.now(),
	}

	err = m.friends.ApplyTransition(ctx, models.Transition{Kind: models.TransitionSend, Request: request, At: request.CreatedAt})
	switch {
	case errors.Is(err, repositories.ErrConflict):
		return models.FriendRequest{}, conflict(ConflictDuplicateRequest)
	case errors.Is(err, repositories.ErrNotFound):
		return models.FriendRequest{}, notFound(ResourceUser, recipientID)
	case err != nil:
		return models.FriendRequest{}, fmt.Errorf("create friend request: %w", err)
	}

	logging.FromContext(ctx).Info("friend request sent", "requestId", request.ID)
	return request, nil
}

// GetRequest returns a single friend request.
func (m *Manager) GetRequest(ctx context.Context, requestID string) (models.FriendRequest, error) {
	requestID = strings.TrimSpace(requestID)
	if requestID == "" {
		return models.FriendRequest{}, invalidInput("request id is required")
	}
	return m.findRequest(ctx, requestID)
}

// RespondToRequest accepts or declines a pending friend request on behalf of its recipient.
func (m *Manager) RespondToRequest(ctx context.Context, requestID string, decision models.Decision) (err error) {
	requestID = strings.TrimSpace(requestID)

	ctx, end := startSpan(ctx, "social.RespondToRequest", "requestId", requestID, "decision", string(decision))
	defer func() { end(err) }()

	if requestID == "" {
		return invalidInput("request id is required")
	}

	var kind models.TransitionKind
	switch decision {
	case models.DecisionAccept:
		kind = models.TransitionAccept
	case models.DecisionDecline:
		kind = models.TransitionDecline
	default:
		return invalidInput(fmt.Sprintf("unknown decision %q", decision))
	}

	request, err := m.findRequest(ctx, requestID)
	if err != nil {
		return err
	}
	if request.Status != models.RequestStatusPending {
		return notFound(ResourceRequest, requestID)
	}

	if _, err := m.findUser(ctx, request.RecipientID); err != nil {
		return err
	}
	if _, err := m.findUser(ctx, request.RequestorID); err != nil {
		return err
	}

	if err := m.apply(ctx, models.Transition{Kind: kind, Request: request, At: m.now()}); err != nil {
		return err
	}

	logging.FromContext(ctx).Info("friend request resolved", "recipientId", request.RecipientID, "requestorId", request.RequestorID)
	return nil
}

// CancelRequest withdraws a pending friend request.
func (m *Manager) CancelRequest(ctx context.Context, requestID string) (err error) {
	requestID = strings.TrimSpace(requestID)

	ctx, end := startSpan(ctx, "social.CancelRequest", "requestId", requestID)
	defer func() { end(err) }()

	if requestID == "" {
		return invalidInput("request id is required")
	}

	request, err := m.findRequest(ctx, requestID)
	if err != nil {
		return err
	}
	if _, err := m.findUser(ctx, request.RecipientID); err != nil {
		return err
	}

	return m.apply(ctx, models.Transition{Kind: models.TransitionCancel, Request: request, At: m.now()})
}

// ListPendingRequests returns the pending requests addressed to userID.
func (m *Manager) ListPendingRequests(ctx context.Context, userID string) (PendingRequests, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return PendingRequests{}, invalidInput("user id is required")
	}

	requests, err := m.friends.ListPendingForRecipient(ctx, userID)
	if err != nil {
		return PendingRequests{}, fmt.Errorf("list pending requests: %w", err)
	}
	if len(requests) == 0 {
		return PendingRequests{Total: 0, Requests: []models.RequestSummary{}}, nil
	}

	requestorIDs := make([]string, 0, len(requests))
	seen := make(map[string]struct{}, len(requests))
	for _, request := range requests {
		if _, ok := seen[request.RequestorID]; ok {
			continue
		}
		seen[request.RequestorID] = struct{}{}
		requestorIDs = append(requestorIDs, request.RequestorID)
	}

	profiles, err := m.users.FindProfiles(ctx, requestorIDs)
	if err != nil {
		return PendingRequests{}, fmt.Errorf("load requestor profiles: %w", err)
	}
	usernames := make(map[string]string, len(profiles))
	for _, profile := range profiles {
		usernames[profile.ID] = profile.Username
	}

	summaries := make([]models.RequestSummary, 0, len(requests))
	for _, request := range requests {
		username, ok := usernames[request.RequestorID]
		if !ok || username == "" {
			username = UnknownUsername
		}
		summaries = append(summaries, models.RequestSummary{
			RequestID:         request.ID,
			RequestorID:       request.RequestorID,
			RequestorUsername: username,
			Status:            request.Status,
			CreatedAt:         request.CreatedAt,
		})
	}

	return PendingRequests{Total: len(requests), Requests: summaries}, nil
}

// FriendshipStatus reports how userID relates to otherID.
func (m *Manager) FriendshipStatus(ctx context.Context, userID, otherID string) (models.FriendshipStatus, error) {
	userID, otherID = strings.TrimSpace(userID), strings.TrimSpace(otherID)
	if userID == "" || otherID == "" {
		return "", invalidInput("userId and friendId are required")
	}

	user, err := m.findUser(ctx, userID)
	if err != nil {
		return "", err
	}
	other, err := m.findUser(ctx, otherID)
	if err != nil {
		return "", err
	}

	if user.HasFriend(otherID) && other.HasFriend(userID) {
		return models.FriendshipFriend, nil
	}

	request, err := m.friends.FindRequestBetween(ctx, userID, otherID)
	switch {
	case errors.Is(err, repositories.ErrNotFound):
		return models.FriendshipNone, nil
	case err != nil:
		return "", fmt.Errorf("look up pending request: %w", err)
	case request.Status == models.RequestStatusPending:
		return models.FriendshipPending, nil
	default:
		return models.FriendshipNone, nil
	}
}

// ListFriends returns one page of userID's friends list.
//
// Friends whose record no longer exists are left out of the page; Total still
// counts them because it mirrors the stored list.
func (m *Manager) ListFriends(ctx context.Context, userID string, page Page) (FriendPage, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return FriendPage{}, invalidInput("user id is required")
	}
	page = page.Normalize()

	user, err := m.findUser(ctx, userID)
	if err != nil {
		return FriendPage{}, err
	}

	total := len(user.FriendsList)
	if page.Offset >= total {
		return FriendPage{Total: total, Friends: []models.FriendSummary{}}, nil
	}
	end := total
	if page.Limit < total-page.Offset {
		end = page.Offset + page.Limit
	}
	ids := user.FriendsList[page.Offset:end]

	profiles, err := m.users.FindProfiles(ctx, ids)
	if err != nil {
		return FriendPage{}, fmt.Errorf("load friend profiles: %w", err)
	}

	friends := make([]models.FriendSummary, 0, len(profiles))
	for _, profile := range profiles {
		friends = append(friends, models.FriendSummary{
			UserID:            profile.ID,
			Username:          profile.Username,
			ProfilePictureURL: profile.ProfilePictureURL,
			OnlineStatus:      profile.OnlineStatus,
		})
	}

	if dropped := len(ids) - len(profiles); dropped > 0 {
		logging.FromContext(ctx).Warn("friends list references missing users", "userId", userID, "dropped", dropped)
	}

	return FriendPage{Total: total, Friends: friends}, nil
}

// RemoveFriend ends the friendship between userID and the user named friendUsername.
func (m *Manager) RemoveFriend(ctx context.Context, userID, friendUsername string) (err error) {
	userID, friendUsername = strings.TrimSpace(userID), strings.TrimSpace(friendUsername)

	ctx, end := startSpan(ctx, "social.RemoveFriend", "userId", userID, "friendUsername", friendUsername)
	defer func() { end(err) }()

	if userID == "" || friendUsername == "" {
		return invalidInput("userId and friendUsername are required")
	}

	friend, err := m.users.FindByUsername(ctx, friendUsername)
	if errors.Is(err, repositories.ErrNotFound) {
		return notFound(ResourceFriend, friendUsername)
	} else if err != nil {
		return fmt.Errorf("look up friend: %w", err)
	}

	user, err := m.findUser(ctx, userID)
	if err != nil {
		return err
	}

	if !user.HasFriend(friend.ID) || !friend.HasFriend(userID) {
		return conflict(ConflictNotFriends)
	}

	err = m.friends.ApplyTransition(ctx, models.Transition{Kind: models.TransitionRemove, UserID: userID, FriendID: friend.ID, At: m.now()})
	if errors.Is(err, repositories.ErrNotFound) {
		return conflict(ConflictNotFriends)
	} else if err != nil {
		return fmt.Errorf("remove friendship: %w", err)
	}

	logging.FromContext(ctx).Info("friend removed", "friendId", friend.ID)
	return nil
}

func (m *Manager) apply(ctx context.Context, t models.Transition) error {
	err := m.friends.ApplyTransition(ctx, t)
	if errors.Is(err, repositories.ErrNotFound) {
		return notFound(ResourceRequest, t.Request.ID)
	} else if err != nil {
		return fmt.Errorf("apply %s transition: %w", t.Kind, err)
	}
	return nil
}

func (m *Manager) findUser(ctx context.Context, id string) (models.User, error) {
	user, err := m.users.FindByID(ctx, id)
	if errors.Is(err, repositories.ErrNotFound) {
		return models.User{}, notFound(ResourceUser, id)
	} else if err != nil {
		return models.User{}, fmt.Errorf("look up user %s: %w", id, err)
	}
	return user, nil
}

func (m *Manager) findRequest(ctx context.Context, id string) (models.FriendRequest, error) {
	request, err := m.friends.FindRequest(ctx, id)
	if errors.Is(err, repositories.ErrNotFound) {
		return models.FriendRequest{}, notFound(ResourceRequest, id)
	} else if err != nil {
		return models.FriendRequest{}, fmt.Errorf("look up request %s: %w", id, err)
	}
	return request, nil
}

func startSpan(ctx context.Context, name string, attrs ...any) (context.Context, func(error)) {
	ctx, span := logging.StartSpan(ctx, name, attrs...)
	return ctx, span.End
}
