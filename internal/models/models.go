package models

import (
	"fmt"
	"strings"
	"time"
)

// Online presence values stored on a user record.
const (
	OnlineStatusOnline  = "online"
	OnlineStatusOffline = "offline"
	OnlineStatusBusy    = "busy"
	OnlineStatusAway    = "away"
)

// ParseOnlineStatus accepts one of the presence values in any letter case.
func ParseOnlineStatus(value string) (string, error) {
	switch status := strings.ToLower(strings.TrimSpace(value)); status {
	case OnlineStatusOnline, OnlineStatusOffline, OnlineStatusBusy, OnlineStatusAway:
		return status, nil
	default:
		return "", fmt.Errorf("unknown online status %q", value)
	}
}

// User represents an account within the PlaySync platform.
//
// FriendsList and FriendRequests are populated by point lookups (by id, email or
// username). Batched profile lookups leave them empty.
type User struct {
	ID                string
	Username          string
	Email             string
	Password          string
	FirstName         string
	LastName          string
	Bio               string
	ProfilePictureURL string
	OnlineStatus      string
	FriendsList       []string
	FriendRequests    []string
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// ProfileUpdate carries the editable profile fields. An empty OnlineStatus leaves
// the stored presence unchanged.
type ProfileUpdate struct {
	FirstName    string
	LastName     string
	Username     string
	Bio          string
	OnlineStatus string
	UpdatedAt    time.Time
}

// NumOfFriends is derived from the friends list and never stored separately.
func (u User) NumOfFriends() int {
	return len(u.FriendsList)
}

// HasFriend reports whether id is present in the user's friends list.
func (u User) HasFriend(id string) bool {
	for _, friendID := range u.FriendsList {
		if friendID == id {
			return true
		}
	}
	return false
}

// FriendRequest represents a pending proposal from a requestor to a recipient.
type FriendRequest struct {
	ID          string
	RecipientID string
	RequestorID string
	Status      RequestStatus
	CreatedAt   time.Time
}

// PairKey returns the canonical key of the request's unordered user pair.
func (r FriendRequest) PairKey() string {
	return PairKey(r.RecipientID, r.RequestorID)
}

// SessionTokens groups the bearer credentials issued to authenticated users.
type SessionTokens struct {
	AccessToken      string    `json:"accessToken"`
	AccessExpiresAt  time.Time `json:"accessExpiresAt"`
	RefreshToken     string    `json:"refreshToken"`
	RefreshExpiresAt time.Time `json:"refreshExpiresAt"`
}
