package server

import (
	"bytes"
	"fmt"
	"net/http"
	"strings"
	"time"

	"roombook/internal/model"
	"roombook/shared/audit"
)

func (s *HTTPServer) handleSetStatus(w http.ResponseWriter, r *http.Request, u *model.User) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req struct {
		Status string `json:"status"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	status, err := model.ParseStatus(req.Status)
	if err != nil {
		writeError(w, http.StatusBadRequest, "status must be one of Pending, Approved, Cancelled")
		return
	}

	res, err := s.svc.SetStatus(r.Context(), u, id, status)
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *HTTPServer) handleDeleteAll(w http.ResponseWriter, r *http.Request, u *model.User) {
	n, err := s.svc.DeleteAll(r.Context(), u)
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"deleted": n})
}

func (s *HTTPServer) handlePendingUsers(w http.ResponseWriter, r *http.Request, u *model.User) {
	users, err := s.svc.PendingUsers(r.Context(), u)
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(users))
}

// handleApproveUser applies {"action": "approve"|"deny", "role": "..."}.
func (s *HTTPServer) handleApproveUser(w http.ResponseWriter, r *http.Request, u *model.User) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req struct {
		Action string `json:"action"`
		Role   string `json:"role"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var approve bool
	switch strings.ToLower(strings.TrimSpace(req.Action)) {
	case "approve":
		approve = true
	case "deny":
	default:
		writeError(w, http.StatusBadRequest, `action must be "approve" or "deny"`)
		return
	}

	res, err := s.svc.DecideUser(r.Context(), u, id, approve, model.ParseRole(req.Role))
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *HTTPServer) handleExport(w http.ResponseWriter, r *http.Request, u *model.User) {
	if err := s.svc.RequireAdmin(u); err != nil {
		s.fail(w, err)
		return
	}
	if s.reports == nil {
		writeError(w, http.StatusNotFound, "Export is disabled.")
		return
	}

	var buf bytes.Buffer
	if err := s.reports.WriteReport(r.Context(), &buf); err != nil {
		s.fail(w, err)
		return
	}

	filename := audit.ReportFilename(time.Now().In(s.db.Location()))
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}
