package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/shannon-run/shannon/workflow/schedule"
)

// scheduleRequest is the wire shape accepted by POST/PUT
// /api/v1/schedules (spec §6 "GET /api/v1/schedules + CRUD,
// cron-validated on write").
type scheduleRequest struct {
	ID       string `json:"id"`
	Cron     string `json:"cron"`
	Query    string `json:"query"`
	Strategy string `json:"strategy"`
	Enabled  bool   `json:"enabled"`
}

func toSchedule(req scheduleRequest) schedule.Schedule {
	return schedule.Schedule{
		ID:       req.ID,
		Cron:     req.Cron,
		Query:    req.Query,
		Strategy: req.Strategy,
		Enabled:  req.Enabled,
	}
}

// listSchedules handles GET /api/v1/schedules.
func (s *Server) listSchedules(w http.ResponseWriter, r *http.Request) {
	rows, err := s.scheduleStore.List(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rows)
}

// getSchedule handles GET /api/v1/schedules/{id}.
func (s *Server) getSchedule(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	sch, ok, err := s.scheduleStore.Get(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	if !ok {
		writeError(w, newError(KindNotFound, "schedule not found: "+id))
		return
	}
	writeJSON(w, http.StatusOK, sch)
}

// createSchedule handles POST /api/v1/schedules. The cron expression is
// validated by Scheduler.Add before anything is persisted.
func (s *Server) createSchedule(w http.ResponseWriter, r *http.Request) {
	var req scheduleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, newError(KindInvalidInput, "malformed request body: "+err.Error()))
		return
	}
	sch, err := s.scheduler.Add(r.Context(), toSchedule(req))
	if err != nil {
		writeError(w, newError(KindInvalidInput, err.Error()))
		return
	}
	writeJSON(w, http.StatusCreated, sch)
}

// updateSchedule handles PUT /api/v1/schedules/{id}, replacing the rule
// (cron re-validated exactly as on creation).
func (s *Server) updateSchedule(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var req scheduleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, newError(KindInvalidInput, "malformed request body: "+err.Error()))
		return
	}
	req.ID = id
	sch, err := s.scheduler.Add(r.Context(), toSchedule(req))
	if err != nil {
		writeError(w, newError(KindInvalidInput, err.Error()))
		return
	}
	writeJSON(w, http.StatusOK, sch)
}

// deleteSchedule handles DELETE /api/v1/schedules/{id}.
func (s *Server) deleteSchedule(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.scheduleStore.Delete(r.Context(), id); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
