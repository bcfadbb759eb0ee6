package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/playsync/backend/internal/auth"
	"github.com/playsync/backend/internal/logging"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

type errorResponse struct {
	Error string `json:"error"`
}

type messageResponse struct {
	Message string `json:"message"`
}

func respondJSON(ctx context.Context, w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(payload); err != nil {
		logging.FromContext(ctx).Error("encode response body", "status", status, "error", err)
		return
	}

	logger := logging.FromContext(ctx)
	switch {
	case status >= http.StatusInternalServerError:
		logger.Error("request failed", "status", status, "response", payload)
	case status >= http.StatusBadRequest:
		logger.Warn("request returned client error", "status", status, "response", payload)
	}
}

func respondError(ctx context.Context, w http.ResponseWriter, status int, msg string) {
	respondJSON(ctx, w, status, errorResponse{Error: msg})
}

// maxBodyBytes caps every JSON request body.
const maxBodyBytes = 1 << 20

// decodeJSON reads a JSON body into dst. An empty body leaves dst untouched so the
// required-field validation reports it. Bodies over maxBodyBytes fail to decode.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

// authorizeCaller responds 403 unless the authenticated caller is one of allowed.
// Requests carrying no authenticated user pass, which is the case when the
// routes run without the auth middleware.
func authorizeCaller(w http.ResponseWriter, r *http.Request, allowed ...string) bool {
	ctx := r.Context()
	callerID, ok := auth.UserIDFromContext(ctx)
	if !ok {
		return true
	}
	for _, id := range allowed {
		if id == callerID {
			return true
		}
	}
	logging.FromContext(ctx).Warn("caller may not act for this user", "callerId", callerID, "allowed", allowed)
	respondError(ctx, w, http.StatusForbidden, "Forbidden")
	return false
}

func trimAll(fields ...*string) {
	for _, f := range fields {
		*f = strings.TrimSpace(*f)
	}
}
