package handlers

import (
	"net/http"
	"strings"

	"github.com/playsync/backend/internal/logging"
)

// SearchLimit caps the number of users returned by a username search.
const SearchLimit = 5

// SearchHandler implements GET /api/search/{type}.
type SearchHandler struct {
	Users UserSearcher
}

type userSearchResult struct {
	UserID       string `json:"userId"`
	Username     string `json:"username"`
	ProfilePic   string `json:"profilePic,omitempty"`
	OnlineStatus string `json:"onlineStatus"`
}

type searchResponse struct {
	Message string             `json:"message"`
	Data    []userSearchResult `json:"data"`
}

// Search looks resources up by prefix. Only the "username" type is supported.
func (h SearchHandler) Search(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	searchType := strings.TrimSpace(r.PathValue("type"))
	query := strings.TrimSpace(r.URL.Query().Get("query"))
	if searchType == "" || query == "" {
		respondError(ctx, w, http.StatusBadRequest, "Missing required fields!")
		return
	}
	if searchType != "username" {
		respondError(ctx, w, http.StatusBadRequest, "Invalid search type!")
		return
	}

	users, err := h.Users.SearchByUsername(ctx, query, SearchLimit)
	if err != nil {
		logging.FromContext(ctx).Error("user search failed", "error", err, "query", query)
		respondError(ctx, w, http.StatusInternalServerError, "Failed to fetch info!")
		return
	}
	if len(users) == 0 {
		respondError(ctx, w, http.StatusNotFound, "No matching users found!")
		return
	}

	results := make([]userSearchResult, 0, len(users))
	for _, user := range users {
		results = append(results, userSearchResult{
			UserID:       user.ID,
			Username:     user.Username,
			ProfilePic:   user.ProfilePictureURL,
			OnlineStatus: user.OnlineStatus,
		})
	}

	respondJSON(ctx, w, http.StatusOK, searchResponse{
		Message: "Successfully fetched user list!",
		Data:    results,
	})
}
