package models

import (
	"fmt"
	"strings"
	"time"
)

// RequestStatus is the lifecycle state of a friend request.
type RequestStatus string

const (
	RequestStatusPending  RequestStatus = "pending"
	RequestStatusAccepted RequestStatus = "accepted"
	RequestStatusDeclined RequestStatus = "declined"
)

// ParseRequestStatus converts a stored status value into a RequestStatus.
func ParseRequestStatus(value string) (RequestStatus, error) {
	switch status := RequestStatus(value); status {
	case RequestStatusPending, RequestStatusAccepted, RequestStatusDeclined:
		return status, nil
	default:
		return "", fmt.Errorf("unknown request status %q", value)
	}
}

// Decision is the recipient's answer to a pending friend request.
type Decision string

const (
	DecisionAccept  Decision = "accept"
	DecisionDecline Decision = "decline"
)

// ParseDecision accepts "accept" or "decline" in any letter case.
func ParseDecision(value string) (Decision, error) {
	switch decision := Decision(strings.ToLower(strings.TrimSpace(value))); decision {
	case DecisionAccept, DecisionDecline:
		return decision, nil
	default:
		return "", fmt.Errorf("unknown decision %q", value)
	}
}

// FriendshipStatus describes how two users relate to each other.
type FriendshipStatus string

const (
	FriendshipFriend  FriendshipStatus = "friend"
	FriendshipPending FriendshipStatus = "pending"
	FriendshipNone    FriendshipStatus = "none"
)

// PairKey builds the order-independent identifier of a user pair.
func PairKey(a, b string) string {
	if b < a {
		a, b = b, a
	}
	return a + ":" + b
}

// TransitionKind enumerates the multi-record changes a store applies atomically.
type TransitionKind int

const (
	// TransitionSend creates a pending request and links it to the recipient.
	TransitionSend TransitionKind = iota + 1
	// TransitionAccept links both users as friends and deletes the request.
	TransitionAccept
	// TransitionDecline unlinks the request from the recipient and deletes it.
	TransitionDecline
	// TransitionCancel is a requestor-initiated decline.
	TransitionCancel
	// TransitionRemove unlinks two friends in both directions.
	TransitionRemove
)

func (k TransitionKind) String() string {
	switch k {
	case TransitionSend:
		return "send"
	case TransitionAccept:
		return "accept"
	case TransitionDecline:
		return "decline"
	case TransitionCancel:
		return "cancel"
	case TransitionRemove:
		return "remove"
	default:
		return fmt.Sprintf("transition(%d)", int(k))
	}
}

// Transition describes a friendship state change.
//
// Send, Accept, Decline and Cancel act on Request. Remove acts on UserID and FriendID.
type Transition struct {
	Kind     TransitionKind
	Request  FriendRequest
	UserID   string
	FriendID string
	At       time.Time
}

// RequestSummary is a pending request enriched with the requestor's username.
type RequestSummary struct {
	RequestID         string        `json:"reqId"`
	RequestorID       string        `json:"requestorId"`
	RequestorUsername string        `json:"requestorUsername"`
	Status            RequestStatus `json:"status"`
	CreatedAt         time.Time     `json:"createdAt"`
}

// FriendSummary is the public view of a friend returned by paginated listings.
type FriendSummary struct {
	UserID            string `json:"userId"`
	Username          string `json:"username"`
	ProfilePictureURL string `json:"profilePictureUrl,omitempty"`
	OnlineStatus      string `json:"onlineStatus"`
}
