package http

import (
	"net/http"
	"time"

	"github.com/sfdxb7/oc-hub/internal/core/domain"
)

// ScheduleResponse describes a recurring task
// @Description Recurring task such as the periodic library scan
type ScheduleResponse struct {
	ID        string            `json:"id" example:"library-scan"`
	Name      string            `json:"name" example:"Library Scan"`
	Type      domain.TaskType   `json:"type" example:"scan_library"`
	Payload   map[string]string `json:"payload,omitempty"`
	Interval  string            `json:"interval" example:"6h0m0s"`
	Enabled   bool              `json:"enabled"`
	LastRun   *time.Time        `json:"last_run,omitempty"`
	NextRun   time.Time         `json:"next_run"`
	LastError string            `json:"last_error,omitempty"`
}

// UpdateScheduleRequest pauses or resumes a recurring task
type UpdateScheduleRequest struct {
	Enabled *bool `json:"enabled"`
}

// handleListSchedules godoc
// @Summary      List schedules
// @Description  Returns the recurring tasks and when they run next
// @Tags         Schedules
// @Produce      json
// @Success      200  {array}   ScheduleResponse
// @Failure      503  {object}  ErrorResponse  "Scheduler not configured"
// @Router       /schedules [get]
func (s *Server) handleListSchedules(w http.ResponseWriter, r *http.Request) {
	if s.scheduleService == nil {
		writeError(w, http.StatusServiceUnavailable, "scheduler not configured")
		return
	}
	schedules, err := s.scheduleService.ListSchedules(r.Context())
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	resp := make([]ScheduleResponse, 0, len(schedules))
	for _, sched := range schedules {
		resp = append(resp, toScheduleResponse(sched))
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleUpdateSchedule godoc
// @Summary      Pause or resume a schedule
// @Tags         Schedules
// @Accept       json
// @Produce      json
// @Param        id       path      string                 true  "Schedule ID"
// @Param        request  body      UpdateScheduleRequest  true  "New state"
// @Success      200      {object}  ScheduleResponse
// @Failure      400      {object}  ErrorResponse
// @Failure      404      {object}  ErrorResponse  "Schedule not found"
// @Router       /schedules/{id} [patch]
func (s *Server) handleUpdateSchedule(w http.ResponseWriter, r *http.Request) {
	if s.scheduleService == nil {
		writeError(w, http.StatusServiceUnavailable, "scheduler not configured")
		return
	}
	var req UpdateScheduleRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Enabled == nil {
		writeError(w, http.StatusBadRequest, "enabled is required")
		return
	}

	sched, err := s.scheduleService.SetScheduleEnabled(r.Context(), r.PathValue("id"), *req.Enabled)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toScheduleResponse(sched))
}

// handleTriggerSchedule godoc
// @Summary      Run a schedule now
// @Description  Enqueues the recurring task immediately and restarts its interval
// @Tags         Schedules
// @Produce      json
// @Param        id   path      string  true  "Schedule ID"
// @Success      202  {object}  TaskResponse
// @Failure      404  {object}  ErrorResponse  "Schedule not found"
// @Router       /schedules/{id}/trigger [post]
func (s *Server) handleTriggerSchedule(w http.ResponseWriter, r *http.Request) {
	if s.scheduleService == nil {
		writeError(w, http.StatusServiceUnavailable, "scheduler not configured")
		return
	}
	task, err := s.scheduleService.TriggerSchedule(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, toTaskResponse(task))
}

func toScheduleResponse(t *domain.ScheduledTask) ScheduleResponse {
	return ScheduleResponse{
		ID:        t.ID,
		Name:      t.Name,
		Type:      t.Type,
		Payload:   t.Payload,
		Interval:  t.Interval.String(),
		Enabled:   t.Enabled,
		LastRun:   t.LastRun,
		NextRun:   t.NextRun,
		LastError: t.LastError,
	}
}
