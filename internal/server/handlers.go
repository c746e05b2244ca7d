package server

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"roombook/internal/booking"
	"roombook/internal/model"
)

func (s *HTTPServer) handleFloors(w http.ResponseWriter, r *http.Request, _ *model.User) {
	floors, err := s.db.Floors(r.Context())
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(floors))
}

func (s *HTTPServer) handleRooms(w http.ResponseWriter, r *http.Request, _ *model.User) {
	var floorID *int64
	if raw := r.URL.Query().Get("floor"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, "floor must be an integer")
			return
		}
		floorID = &id
	}

	rooms, err := s.db.Rooms(r.Context(), floorID)
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(rooms))
}

// handleCheckAvailability returns the hour grid of the requested rooms.
// GET /api/check_availability/?date=YYYY-MM-DD&room_ids=1,2
func (s *HTTPServer) handleCheckAvailability(w http.ResponseWriter, r *http.Request, _ *model.User) {
	q := r.URL.Query()
	if q.Get("date") == "" || q.Get("room_ids") == "" {
		writeError(w, http.StatusBadRequest, "date and room_ids are required")
		return
	}
	date, err := booking.ParseDate(q.Get("date"), s.db.Location())
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	roomIDs, err := parseIDs(q.Get("room_ids"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if _, err := s.db.RoomsByID(r.Context(), roomIDs); err != nil {
		s.fail(w, err)
		return
	}

	result, err := s.svc.Availability(r.Context(), date, roomIDs)
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// handleListBookings lists the day's reservations of the given rooms when
// date is set, and the caller's visible reservations otherwise. Owners of
// other users' reservations are hidden from non-admins.
func (s *HTTPServer) handleListBookings(w http.ResponseWriter, r *http.Request, u *model.User) {
	q := r.URL.Query()
	if q.Get("date") == "" {
		list, err := s.svc.Visible(r.Context(), u)
		if err != nil {
			s.fail(w, err)
			return
		}
		writeJSON(w, http.StatusOK, nonNil(list))
		return
	}

	date, err := booking.ParseDate(q.Get("date"), s.db.Location())
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	roomIDs, err := parseIDs(q.Get("room_ids"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	list, err := s.svc.DayReservations(r.Context(), u, date, roomIDs)
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(list))
}

func (s *HTTPServer) handleMyBookings(w http.ResponseWriter, r *http.Request, u *model.User) {
	list, err := s.svc.Mine(r.Context(), u)
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(list))
}

func (s *HTTPServer) handleGetBooking(w http.ResponseWriter, r *http.Request, u *model.User) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	res, err := s.svc.Get(r.Context(), u, id)
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *HTTPServer) handleCreateBooking(w http.ResponseWriter, r *http.Request, u *model.User) {
	var req booking.Request
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	res, err := s.svc.Create(r.Context(), u, req)
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

func (s *HTTPServer) handleUpdateBooking(w http.ResponseWriter, r *http.Request, u *model.User) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req booking.Request
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	res, err := s.svc.Update(r.Context(), u, id, req)
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// handleCancelBooking soft-cancels; the row stays with status Cancelled.
func (s *HTTPServer) handleCancelBooking(w http.ResponseWriter, r *http.Request, u *model.User) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	if _, err := s.svc.Cancel(r.Context(), u, id); err != nil {
		s.fail(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *HTTPServer) handleCalendar(w http.ResponseWriter, r *http.Request, u *model.User) {
	if s.feed == nil {
		writeError(w, http.StatusNotFound, "Calendar feed is disabled.")
		return
	}
	list, err := s.svc.Visible(r.Context(), u)
	if err != nil {
		s.fail(w, err)
		return
	}
	w.Header().Set("Content-Type", "text/calendar; charset=utf-8")
	w.Header().Set("Content-Disposition", `inline; filename="bookings.ics"`)
	if err := s.feed.Write(w, list); err != nil {
		s.logger.Error().Err(err).Msg("write calendar")
	}
}

func pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id <= 0 {
		writeError(w, http.StatusNotFound, "Not found.")
		return 0, false
	}
	return id, true
}

// parseIDs parses a comma separated id list, ignoring blanks.
func parseIDs(raw string) ([]int64, error) {
	var ids []int64
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, err := strconv.ParseInt(part, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid room id %q", part)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func nonNil[T any](list []T) []T {
	if list == nil {
		return []T{}
	}
	return list
}
