package repositories

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/playsync/backend/internal/models"
)

// MemoryStore keeps users and friend requests in process memory. It backs local
// development and tests; a single mutex makes every transition atomic.
type MemoryStore struct {
	mu       sync.RWMutex
	users    map[string]models.User
	requests map[string]models.FriendRequest
	pairs    map[string]string
	order    map[string]int
	seq      int
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users:    make(map[string]models.User),
		requests: make(map[string]models.FriendRequest),
		pairs:    make(map[string]string),
		order:    make(map[string]int),
	}
}

// Create persists a new user record.
func (s *MemoryStore) Create(_ context.Context, user models.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.users[user.ID]; exists {
		return ErrConflict
	}
	for _, existing := range s.users {
		if strings.EqualFold(existing.Email, user.Email) || strings.EqualFold(existing.Username, user.Username) {
			return ErrConflict
		}
	}

	user.FriendsList = append([]string(nil), user.FriendsList...)
	user.FriendRequests = append([]string(nil), user.FriendRequests...)
	s.users[user.ID] = user
	return nil
}

// FindByID fetches a user by identifier.
func (s *MemoryStore) FindByID(_ context.Context, id string) (models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	user, ok := s.users[id]
	if !ok {
		return models.User{}, ErrNotFound
	}
	return cloneUser(user), nil
}

// FindByEmail fetches a user by their email address.
func (s *MemoryStore) FindByEmail(_ context.Context, email string) (models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, user := range s.users {
		if strings.EqualFold(user.Email, email) {
			return cloneUser(user), nil
		}
	}
	return models.User{}, ErrNotFound
}

// FindByUsername fetches a user by username, ignoring case.
func (s *MemoryStore) FindByUsername(_ context.Context, username string) (models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, user := range s.users {
		if strings.EqualFold(user.Username, username) {
			return cloneUser(user), nil
		}
	}
	return models.User{}, ErrNotFound
}

// FindProfiles returns the users found among ids in the order requested.
func (s *MemoryStore) FindProfiles(_ context.Context, ids []string) ([]models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	profiles := make([]models.User, 0, len(ids))
	for _, id := range ids {
		user, ok := s.users[id]
		if !ok {
			continue
		}
		user.FriendsList = nil
		user.FriendRequests = nil
		profiles = append(profiles, user)
	}
	return profiles, nil
}

// SearchByUsername returns up to limit users whose username starts with prefix.
func (s *MemoryStore) SearchByUsername(_ context.Context, prefix string, limit int) ([]models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	prefix = strings.ToLower(prefix)
	var matches []models.User
	for _, user := range s.users {
		if strings.HasPrefix(strings.ToLower(user.Username), prefix) {
			user.FriendsList = nil
			user.FriendRequests = nil
			matches = append(matches, user)
		}
	}

	sort.Slice(matches, func(i, j int) bool {
		return strings.ToLower(matches[i].Username) < strings.ToLower(matches[j].Username)
	})
	if limit > 0 && len(matches) > limit {
		matches = matches[:limit]
	}
	return matches, nil
}

// UpdateOnlineStatus sets the presence value of a user.
func (s *MemoryStore) UpdateOnlineStatus(_ context.Context, id, status string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	user, ok := s.users[id]
	if !ok {
		return ErrNotFound
	}
	user.OnlineStatus = status
	user.UpdatedAt = at
	s.users[id] = user
	return nil
}

// UpdateProfile overwrites the editable profile fields of a user.
func (s *MemoryStore) UpdateProfile(_ context.Context, id string, update models.ProfileUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	user, ok := s.users[id]
	if !ok {
		return ErrNotFound
	}
	for otherID, other := range s.users {
		if otherID != id && strings.EqualFold(other.Username, update.Username) {
			return ErrConflict
		}
	}

	user.FirstName = update.FirstName
	user.LastName = update.LastName
	user.Username = update.Username
	user.Bio = update.Bio
	if update.OnlineStatus != "" {
		user.OnlineStatus = update.OnlineStatus
	}
	user.UpdatedAt = update.UpdatedAt
	s.users[id] = user
	return nil
}

// FindRequest fetches a friend request by id.
func (s *MemoryStore) FindRequest(_ context.Context, requestID string) (models.FriendRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	request, ok := s.requests[requestID]
	if !ok {
		return models.FriendRequest{}, ErrNotFound
	}
	return request, nil
}

// FindRequestBetween fetches the request linking two users in either direction.
func (s *MemoryStore) FindRequestBetween(_ context.Context, userA, userB string) (models.FriendRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.pairs[models.PairKey(userA, userB)]
	if !ok {
		return models.FriendRequest{}, ErrNotFound
	}
	return s.requests[id], nil
}

// ListPendingForRecipient returns pending requests addressed to userID in creation order.
func (s *MemoryStore) ListPendingForRecipient(_ context.Context, userID string) ([]models.FriendRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var pending []models.FriendRequest
	for _, request := range s.requests {
		if request.RecipientID == userID && request.Status == models.RequestStatusPending {
			pending = append(pending, request)
		}
	}

	sort.Slice(pending, func(i, j int) bool {
		return s.order[pending[i].ID] < s.order[pending[j].ID]
	})
	return pending, nil
}

// ApplyTransition applies t under the store lock.
func (s *MemoryStore) ApplyTransition(_ context.Context, t models.Transition) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch t.Kind {
	case models.TransitionSend:
		return s.sendLocked(t.Request)
	case models.TransitionAccept:
		return s.acceptLocked(t.Request.ID)
	case models.TransitionDecline, models.TransitionCancel:
		_, err := s.resolveLocked(t.Request.ID)
		return err
	case models.TransitionRemove:
		return s.removeLocked(t.UserID, t.FriendID)
	default:
		return fmt.Errorf("apply %s: unsupported transition", t.Kind)
	}
}

func (s *MemoryStore) sendLocked(request models.FriendRequest) error {
	if _, ok := s.requests[request.ID]; ok {
		return ErrConflict
	}
	if _, ok := s.pairs[request.PairKey()]; ok {
		return ErrConflict
	}
	recipient, ok := s.users[request.RecipientID]
	if !ok {
		return ErrNotFound
	}
	if _, ok := s.users[request.RequestorID]; !ok {
		return ErrNotFound
	}

	s.seq++
	s.requests[request.ID] = request
	s.pairs[request.PairKey()] = request.ID
	s.order[request.ID] = s.seq

	recipient.FriendRequests = appendUnique(recipient.FriendRequests, request.ID)
	s.users[recipient.ID] = recipient
	return nil
}

func (s *MemoryStore) acceptLocked(requestID string) error {
	request, ok := s.requests[requestID]
	if !ok {
		return ErrNotFound
	}
	recipient, okRecipient := s.users[request.RecipientID]
	requestor, okRequestor := s.users[request.RequestorID]
	if !okRecipient || !okRequestor {
		return ErrNotFound
	}

	if _, err := s.resolveLocked(requestID); err != nil {
		return err
	}

	recipient = s.users[recipient.ID]
	recipient.FriendsList = appendUnique(recipient.FriendsList, requestor.ID)
	requestor.FriendsList = appendUnique(requestor.FriendsList, recipient.ID)
	s.users[recipient.ID] = recipient
	s.users[requestor.ID] = requestor
	return nil
}

// resolveLocked deletes a request and unlinks it from its recipient.
func (s *MemoryStore) resolveLocked(requestID string) (models.FriendRequest, error) {
	request, ok := s.requests[requestID]
	if !ok {
		return models.FriendRequest{}, ErrNotFound
	}

	delete(s.requests, requestID)
	delete(s.pairs, request.PairKey())
	delete(s.order, requestID)

	if recipient, ok := s.users[request.RecipientID]; ok {
		recipient.FriendRequests = without(recipient.FriendRequests, requestID)
		s.users[recipient.ID] = recipient
	}
	return request, nil
}

func (s *MemoryStore) removeLocked(userID, friendID string) error {
	user, okUser := s.users[userID]
	friend, okFriend := s.users[friendID]
	if !okUser || !okFriend {
		return ErrNotFound
	}
	if !user.HasFriend(friendID) || !friend.HasFriend(userID) {
		return ErrNotFound
	}

	user.FriendsList = without(user.FriendsList, friendID)
	friend.FriendsList = without(friend.FriendsList, userID)
	s.users[userID] = user
	s.users[friendID] = friend
	return nil
}

// PutUser stores user as-is, replacing any record with the same id. Seeds and tests
// use it to set up relationship sets directly, including asymmetric ones.
func (s *MemoryStore) PutUser(user models.User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[user.ID] = cloneUser(user)
}

// DeleteUser removes a user record without touching references to it.
func (s *MemoryStore) DeleteUser(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.users, id)
}

func cloneUser(user models.User) models.User {
	user.FriendsList = append([]string(nil), user.FriendsList...)
	user.FriendRequests = append([]string(nil), user.FriendRequests...)
	return user
}

func appendUnique(list []string, id string) []string {
	for _, existing := range list {
		if existing == id {
			return list
		}
	}
	return append(list, id)
}

func without(list []string, id string) []string {
	out := make([]string, 0, len(list))
	for _, existing := range list {
		if existing != id {
			out = append(out, existing)
		}
	}
	return out
}

var _ UserRepository = (*MemoryStore)(nil)
var _ FriendRepository = (*MemoryStore)(nil)
