package server

import (
	"errors"
	"net/http"

	"roombook/internal/booking"
	"roombook/internal/manager"
	"roombook/internal/model"
	"roombook/internal/store"
	"roombook/shared/access"
)

const conflictDetail = "Some rooms are already booked during the requested time."

type conflictResponse struct {
	Detail    string           `json:"detail"`
	Conflicts []model.Conflict `json:"conflicts"`
	Messages  []string         `json:"conflict_messages"`
}

// fail maps service and store errors to HTTP responses.
func (s *HTTPServer) fail(w http.ResponseWriter, err error) {
	var conflict *store.ConflictError
	switch {
	case errors.As(err, &conflict):
		messages := make([]string, len(conflict.Conflicts))
		for i, c := range conflict.Conflicts {
			messages[i] = c.Message()
		}
		writeJSON(w, http.StatusConflict, conflictResponse{
			Detail:    conflictDetail,
			Conflicts: conflict.Conflicts,
			Messages:  messages,
		})
	case booking.IsValidation(err),
		errors.Is(err, store.ErrInvalidRange),
		errors.Is(err, store.ErrUnknownRoom),
		errors.Is(err, store.ErrUsernameTaken),
		errors.Is(err, manager.ErrNotEditable),
		errors.Is(err, manager.ErrNoRooms):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, store.ErrInvalidToken):
		writeError(w, http.StatusUnauthorized, "Token is invalid or expired")
	case access.IsAccessDenied(err):
		writeError(w, http.StatusForbidden, err.Error())
	case errors.Is(err, store.ErrNotFound):
		writeError(w, http.StatusNotFound, "Not found.")
	default:
		s.logger.Error().Err(err).Msg("request failed")
		writeError(w, http.StatusInternalServerError, "Internal server error.")
	}
}
