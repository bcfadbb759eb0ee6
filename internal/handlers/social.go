package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/playsync/backend/internal/auth"
	"github.com/playsync/backend/internal/logging"
	"github.com/playsync/backend/internal/models"
	"github.com/playsync/backend/internal/social"
)

// SocialHandler implements the friend request and friendship endpoints under /api/social.
type SocialHandler struct {
	Social  SocialService
	Limiter RateLimiter
}

type sendRequestPayload struct {
	RecipientID string `json:"recipientId" validate:"required"`
	RequestorID string `json:"requestorId" validate:"required"`
}

type sendRequestResponse struct {
	Message     string `json:"message"`
	RequestID   string `json:"reqId"`
	RecipientID string `json:"recipientId"`
	RequestorID string `json:"requestorId"`
}

type respondPayload struct {
	UserReq string `json:"userReq" validate:"required"`
}

type removeFriendPayload struct {
	FriendUsername string `json:"friendUsername" validate:"required"`
}

type checkFriendshipPayload struct {
	UserID   string `json:"userId" validate:"required"`
	FriendID string `json:"friendId" validate:"required"`
}

type requestDetail struct {
	RequestID   string               `json:"reqId"`
	RecipientID string               `json:"recipientId"`
	RequestorID string               `json:"requestorId"`
	Status      models.RequestStatus `json:"status"`
	CreatedAt   time.Time            `json:"createdAt"`
}

type requestDetailResponse struct {
	Message string        `json:"message"`
	Data    requestDetail `json:"data"`
}

type pendingRequestsResponse struct {
	Message string                  `json:"message"`
	Total   int                     `json:"total"`
	Data    []models.RequestSummary `json:"data"`
}

type friendsResponse struct {
	Message string                 `json:"message"`
	Total   int                    `json:"total"`
	Data    []models.FriendSummary `json:"data"`
}

type friendshipStatusResponse struct {
	Status models.FriendshipStatus `json:"status"`
}

// SendRequest handles POST /api/social/request.
func (h SocialHandler) SendRequest(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if !throttle(w, r, h.Limiter, "friend-request", "too many friend requests, try again later") {
		return
	}

	var req sendRequestPayload
	if err := decodeJSON(w, r, &req); err != nil {
		logging.FromContext(ctx).Warn("invalid friend request payload", "error", err)
		respondError(ctx, w, http.StatusBadRequest, "invalid request body")
		return
	}
	trimAll(&req.RecipientID, &req.RequestorID)
	if err := validate.Struct(req); err != nil {
		respondError(ctx, w, http.StatusBadRequest, "Missing fields")
		return
	}
	if !authorizeCaller(w, r, req.RequestorID) {
		return
	}

	request, err := h.Social.SendRequest(ctx, req.RecipientID, req.RequestorID)
	if err != nil {
		h.fail(w, r, err, failureMessages{
			invalid:   "Cannot send a friend request to yourself!",
			notFound:  "User not found!",
			internal:  "Internal error",
			conflicts: sendConflictMessages,
		})
		return
	}

	respondJSON(ctx, w, http.StatusCreated, sendRequestResponse{
		Message:     "Friend request sent!",
		RequestID:   request.ID,
		RecipientID: request.RecipientID,
		RequestorID: request.RequestorID,
	})
}

// GetRequest handles GET /api/social/{reqId}.
func (h SocialHandler) GetRequest(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	requestID := strings.TrimSpace(r.PathValue("reqId"))
	if requestID == "" {
		respondError(ctx, w, http.StatusBadRequest, "Missing required fields!")
		return
	}

	request, err := h.Social.GetRequest(ctx, requestID)
	if err != nil {
		h.fail(w, r, err, failureMessages{
			invalid:  "Missing required fields!",
			notFound: "Request not found!",
			internal: "Failed to fetch request info!",
		})
		return
	}

	respondJSON(ctx, w, http.StatusOK, requestDetailResponse{
		Message: "Successfully fetched request details!",
		Data: requestDetail{
			RequestID:   request.ID,
			RecipientID: request.RecipientID,
			RequestorID: request.RequestorID,
			Status:      request.Status,
			CreatedAt:   request.CreatedAt,
		},
	})
}

// RespondToRequest handles PATCH /api/social/{reqId}.
func (h SocialHandler) RespondToRequest(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req respondPayload
	if err := decodeJSON(w, r, &req); err != nil {
		logging.FromContext(ctx).Warn("invalid respond payload", "error", err)
		respondError(ctx, w, http.StatusBadRequest, "invalid request body")
		return
	}
	requestID := strings.TrimSpace(r.PathValue("reqId"))
	trimAll(&req.UserReq)
	if err := validate.Struct(req); err != nil || requestID == "" {
		respondError(ctx, w, http.StatusBadRequest, "Missing required fields!")
		return
	}

	decision, err := models.ParseDecision(req.UserReq)
	if err != nil {
		respondError(ctx, w, http.StatusBadRequest, "Invalid userReq value!")
		return
	}

	msgs := failureMessages{
		invalid:  "Invalid userReq value!",
		notFound: "User has no requests!",
		internal: "Failed to update request info!",
	}
	if !h.authorizeRequestParty(w, r, requestID, false, msgs) {
		return
	}

	if err := h.Social.RespondToRequest(ctx, requestID, decision); err != nil {
		h.fail(w, r, err, msgs)
		return
	}

	message := "Friend request accepted!"
	if decision == models.DecisionDecline {
		message = "Friend request declined!"
	}
	respondJSON(ctx, w, http.StatusOK, messageResponse{Message: message})
}

// CancelRequest handles DELETE /api/social/{reqId}.
func (h SocialHandler) CancelRequest(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	requestID := strings.TrimSpace(r.PathValue("reqId"))
	if requestID == "" {
		respondError(ctx, w, http.StatusBadRequest, "Missing required fields!")
		return
	}

	msgs := failureMessages{
		invalid:  "Missing required fields!",
		notFound: "Request not found!",
		internal: "Failed to cancel friend request!",
	}
	if !h.authorizeRequestParty(w, r, requestID, true, msgs) {
		return
	}

	if err := h.Social.CancelRequest(ctx, requestID); err != nil {
		h.fail(w, r, err, msgs)
		return
	}

	respondJSON(ctx, w, http.StatusOK, messageResponse{Message: "Friend request canceled!"})
}

// ListPendingRequests handles GET /api/social/requests/{userId}.
func (h SocialHandler) ListPendingRequests(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	userID := strings.TrimSpace(r.PathValue("userId"))
	if userID == "" {
		respondError(ctx, w, http.StatusBadRequest, "Missing required fields!")
		return
	}

	pending, err := h.Social.ListPendingRequests(ctx, userID)
	if err != nil {
		h.fail(w, r, err, failureMessages{
			invalid:  "Missing required fields!",
			notFound: "User not found!",
			internal: "Failed to fetch user's friend requests!",
		})
		return
	}

	message := "Successfully fetched user's friend requests!"
	if pending.Total == 0 {
		message = "No friend requests found!"
	}
	respondJSON(ctx, w, http.StatusOK, pendingRequestsResponse{
		Message: message,
		Total:   pending.Total,
		Data:    pending.Requests,
	})
}

// ListFriends handles GET /api/social/friends/{userId}?limit=&offset=.
func (h SocialHandler) ListFriends(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	userID := strings.TrimSpace(r.PathValue("userId"))
	if userID == "" {
		respondError(ctx, w, http.StatusBadRequest, "Missing required fields!")
		return
	}

	query := r.URL.Query()
	page := social.Page{
		Limit:  queryInt(query.Get("limit")),
		Offset: queryInt(query.Get("offset")),
	}

	friends, err := h.Social.ListFriends(ctx, userID, page)
	if err != nil {
		h.fail(w, r, err, failureMessages{
			invalid:  "Missing required fields!",
			notFound: "User not found",
			internal: "Failed to fetch friends",
		})
		return
	}

	message := "Fetched friends list!"
	if friends.Total == 0 {
		message = "User has no friends!"
	}
	respondJSON(ctx, w, http.StatusOK, friendsResponse{
		Message: message,
		Total:   friends.Total,
		Data:    friends.Friends,
	})
}

// RemoveFriend handles DELETE /api/social/remove-friend/{userId}.
func (h SocialHandler) RemoveFriend(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req removeFriendPayload
	if err := decodeJSON(w, r, &req); err != nil {
		logging.FromContext(ctx).Warn("invalid remove friend payload", "error", err)
		respondError(ctx, w, http.StatusBadRequest, "invalid request body")
		return
	}
	userID := strings.TrimSpace(r.PathValue("userId"))
	trimAll(&req.FriendUsername)
	if err := validate.Struct(req); err != nil || userID == "" {
		respondError(ctx, w, http.StatusBadRequest, "Missing required fields!")
		return
	}
	if !authorizeCaller(w, r, userID) {
		return
	}

	if err := h.Social.RemoveFriend(ctx, userID, req.FriendUsername); err != nil {
		h.fail(w, r, err, failureMessages{
			invalid:   "Missing required fields!",
			notFound:  "User not found!",
			internal:  "Failed to remove friend!",
			conflicts: removeConflictMessages,
		})
		return
	}

	respondJSON(ctx, w, http.StatusOK, messageResponse{Message: "Friend removed successfully!"})
}

// CheckFriendship handles POST /api/social/check-friendship.
func (h SocialHandler) CheckFriendship(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req checkFriendshipPayload
	if err := decodeJSON(w, r, &req); err != nil {
		logging.FromContext(ctx).Warn("invalid check friendship payload", "error", err)
		respondError(ctx, w, http.StatusBadRequest, "invalid request body")
		return
	}
	trimAll(&req.UserID, &req.FriendID)
	if err := validate.Struct(req); err != nil {
		respondError(ctx, w, http.StatusBadRequest, "Missing fields!")
		return
	}

	status, err := h.Social.FriendshipStatus(ctx, req.UserID, req.FriendID)
	if err != nil {
		h.fail(w, r, err, failureMessages{
			invalid:  "Missing fields!",
			notFound: "User not found!",
			internal: "Internal server error",
		})
		return
	}

	respondJSON(ctx, w, http.StatusOK, friendshipStatusResponse{Status: status})
}

var (
	sendConflictMessages = map[social.ConflictReason]string{
		social.ConflictAlreadyFriends:   "Users are already friends!",
		social.ConflictDuplicateRequest: "Friend request already exists!",
	}
	removeConflictMessages = map[social.ConflictReason]string{
		social.ConflictNotFriends: "User is not a friend!",
	}
)

// authorizeRequestParty checks an authenticated caller against the request's
// recipient, or against either party when includeRequestor is set. The request is
// only loaded when a caller is present.
func (h SocialHandler) authorizeRequestParty(w http.ResponseWriter, r *http.Request, requestID string, includeRequestor bool, msgs failureMessages) bool {
	if _, ok := auth.UserIDFromContext(r.Context()); !ok {
		return true
	}

	request, err := h.Social.GetRequest(r.Context(), requestID)
	if err != nil {
		h.fail(w, r, err, msgs)
		return false
	}

	allowed := []string{request.RecipientID}
	if includeRequestor {
		allowed = append(allowed, request.RequestorID)
	}
	return authorizeCaller(w, r, allowed...)
}

type failureMessages struct {
	invalid   string
	notFound  string
	internal  string
	conflicts map[social.ConflictReason]string
}

// fail maps a manager error onto a response. Conflicts are client errors and share
// the 400 status with invalid input.
func (h SocialHandler) fail(w http.ResponseWriter, r *http.Request, err error, msgs failureMessages) {
	ctx := r.Context()

	switch {
	case errors.Is(err, social.ErrInvalidInput):
		respondError(ctx, w, http.StatusBadRequest, msgs.invalid)
	case errors.Is(err, social.ErrConflict):
		reason, _ := social.ConflictReasonOf(err)
		msg, ok := msgs.conflicts[reason]
		if !ok {
			msg = string(reason)
		}
		respondError(ctx, w, http.StatusBadRequest, msg)
	case errors.Is(err, social.ErrNotFound):
		respondError(ctx, w, http.StatusNotFound, notFoundMessage(err, msgs.notFound))
	default:
		logging.FromContext(ctx).Error("social operation failed", "error", err)
		respondError(ctx, w, http.StatusInternalServerError, msgs.internal)
	}
}

func notFoundMessage(err error, fallback string) string {
	resource, _ := social.MissingResource(err)
	switch resource {
	case social.ResourceUser:
		return "User not found!"
	case social.ResourceFriend:
		return "Friend not found!"
	default:
		return fallback
	}
}

// queryInt parses a pagination parameter; anything unparsable becomes zero so the
// manager applies its defaults.
func queryInt(value string) int {
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return 0
	}
	return n
}
