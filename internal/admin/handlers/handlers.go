// Package handlers contains HTTP handlers for the admin API.
package handlers

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"roomplane/internal/orchestrator"
	"roomplane/internal/scheduler"
	"roomplane/pkg/api"

	"github.com/google/uuid"
)

// Controller is the orchestrator surface the admin API drives.
type Controller interface {
	SetEnabled(enabled bool)
	Enabled() bool
	Pending() []scheduler.JobInfo
	Status(ctx context.Context, recent int) (*orchestrator.Report, error)

	ScheduleRoomByID(ctx context.Context, id uuid.UUID) ([]orchestrator.PlannedJob, error)
	BuildPlaylist(ctx context.Context, id uuid.UUID) error
	StartStream(ctx context.Context, id uuid.UUID) error
	Notify(ctx context.Context, id uuid.UUID, lead int) error
	Cleanup(ctx context.Context, id uuid.UUID) error
	Launch(ctx context.Context, id uuid.UUID) error
}

// Pinger reports whether a dependency is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Handlers holds all HTTP handlers and their dependencies.
type Handlers struct {
	ctrl   Controller
	db     Pinger
	logger *slog.Logger
}

// New creates a new Handlers instance.
func New(ctrl Controller, db Pinger, logger *slog.Logger) *Handlers {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handlers{ctrl: ctrl, db: db, logger: logger}
}

// A helper function to write standard JSON responses.
func (h *Handlers) respondJson(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload != nil {
		json.NewEncoder(w).Encode(payload)
	}
}

// A helper function to return consistent error messages.
func (h *Handlers) httpError(w http.ResponseWriter, message string, code int) {
	h.respondJson(w, code, api.ErrorResponse{
		Error: message,
		Code:  strconv.Itoa(code),
	})
}

func pendingJobs(infos []scheduler.JobInfo) []api.PendingJob {
	out := make([]api.PendingJob, 0, len(infos))
	for _, j := range infos {
		pj := api.PendingJob{Key: j.Key, RunAt: j.RunAt.UTC()}
		if j.Interval > 0 {
			pj.Interval = j.Interval.String()
		}
		out = append(out, pj)
	}
	return out
}

func plannedJobs(plan []orchestrator.PlannedJob) []api.PendingJob {
	out := make([]api.PendingJob, 0, len(plan))
	for _, j := range plan {
		out = append(out, api.PendingJob{Key: j.Key, RunAt: j.RunAt.UTC().Truncate(time.Second)})
	}
	return out
}
