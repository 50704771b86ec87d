package handlers

import (
	"net/http"

	"roomplane/internal/logger"
	"roomplane/pkg/api"
)

// GetScheduler handles GET /admin/scheduler.
func (h *Handlers) GetScheduler(w http.ResponseWriter, r *http.Request) {
	h.respondScheduler(w)
}

// EnableScheduler handles POST /admin/scheduler/enable.
func (h *Handlers) EnableScheduler(w http.ResponseWriter, r *http.Request) {
	h.ctrl.SetEnabled(true)
	logger.FromContext(r.Context(), h.logger).Info("scheduler enabled by admin")
	h.respondScheduler(w)
}

// DisableScheduler handles POST /admin/scheduler/disable.
func (h *Handlers) DisableScheduler(w http.ResponseWriter, r *http.Request) {
	h.ctrl.SetEnabled(false)
	logger.FromContext(r.Context(), h.logger).Warn("scheduler disabled by admin")
	h.respondScheduler(w)
}

func (h *Handlers) respondScheduler(w http.ResponseWriter) {
	jobs := pendingJobs(h.ctrl.Pending())
	h.respondJson(w, http.StatusOK, api.SchedulerStateResponse{
		Enabled: h.ctrl.Enabled(),
		Pending: len(jobs),
		Jobs:    jobs,
	})
}
