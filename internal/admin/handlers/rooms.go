package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"roomplane/internal/logger"
	"roomplane/internal/orchestrator"
	"roomplane/internal/store"
	"roomplane/internal/stream"
	"roomplane/pkg/api"

	"github.com/google/uuid"
)

// recentRooms is how many rooms the status listing returns.
const recentRooms = 50

func (h *Handlers) roomID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		h.httpError(w, "Invalid room ID", http.StatusBadRequest)
		return uuid.Nil, false
	}
	return id, true
}

// ScheduleRoom handles POST /admin/rooms/{id}/schedule.
func (h *Handlers) ScheduleRoom(w http.ResponseWriter, r *http.Request) {
	id, ok := h.roomID(w, r)
	if !ok {
		return
	}
	plan, err := h.ctrl.ScheduleRoomByID(r.Context(), id)
	if err != nil {
		h.phaseError(w, r, "schedule", err)
		return
	}
	h.respondJson(w, http.StatusOK, api.ScheduleResponse{RoomID: id.String(), Jobs: plannedJobs(plan)})
}

// BuildPlaylist handles POST /admin/rooms/{id}/build.
func (h *Handlers) BuildPlaylist(w http.ResponseWriter, r *http.Request) {
	h.trigger(w, r, "build", h.ctrl.BuildPlaylist)
}

// StartStream handles POST /admin/rooms/{id}/start.
func (h *Handlers) StartStream(w http.ResponseWriter, r *http.Request) {
	h.trigger(w, r, "start", h.ctrl.StartStream)
}

// Cleanup handles POST /admin/rooms/{id}/cleanup.
func (h *Handlers) Cleanup(w http.ResponseWriter, r *http.Request) {
	h.trigger(w, r, "cleanup", h.ctrl.Cleanup)
}

// Launch handles POST /admin/rooms/{id}/launch.
func (h *Handlers) Launch(w http.ResponseWriter, r *http.Request) {
	h.trigger(w, r, "launch", h.ctrl.Launch)
}

// Notify handles POST /admin/rooms/{id}/notify?lead=N.
func (h *Handlers) Notify(w http.ResponseWriter, r *http.Request) {
	lead, err := strconv.Atoi(r.URL.Query().Get("lead"))
	if err != nil || lead <= 0 {
		h.httpError(w, "lead must be a positive number of minutes", http.StatusBadRequest)
		return
	}
	h.trigger(w, r, "notify", func(ctx context.Context, id uuid.UUID) error {
		return h.ctrl.Notify(ctx, id, lead)
	})
}

// trigger runs a phase synchronously. The phase is detached from the request so a
// disconnecting client cannot abort a build or stream start halfway through.
func (h *Handlers) trigger(w http.ResponseWriter, r *http.Request, phase string, run func(context.Context, uuid.UUID) error) {
	id, ok := h.roomID(w, r)
	if !ok {
		return
	}
	logger.FromContext(r.Context(), h.logger).Info("manual trigger", "phase", phase, "room_id", id.String())

	if err := run(context.WithoutCancel(r.Context()), id); err != nil {
		h.phaseError(w, r, phase, err)
		return
	}
	h.respondJson(w, http.StatusOK, api.TriggerResponse{RoomID: id.String(), Phase: phase, Status: "ok"})
}

func (h *Handlers) phaseError(w http.ResponseWriter, r *http.Request, phase string, err error) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		h.httpError(w, "Room not found", http.StatusNotFound)
	case errors.Is(err, orchestrator.ErrNoProgram):
		h.httpError(w, "Room has no built playlist", http.StatusConflict)
	case errors.Is(err, stream.ErrNotReady):
		h.httpError(w, "Stream did not become ready", http.StatusGatewayTimeout)
	default:
		logger.FromContext(r.Context(), h.logger).Error("manual trigger failed", "phase", phase, "error", err)
		h.httpError(w, "Phase "+phase+" failed", http.StatusInternalServerError)
	}
}

// RoomsStatus handles GET /admin/rooms/status.
func (h *Handlers) RoomsStatus(w http.ResponseWriter, r *http.Request) {
	rep, err := h.ctrl.Status(r.Context(), recentRooms)
	if err != nil {
		logger.FromContext(r.Context(), h.logger).Error("failed to build status report", "error", err)
		h.httpError(w, "Failed to load rooms", http.StatusInternalServerError)
		return
	}

	resp := api.RoomsStatusResponse{
		Enabled:     rep.Enabled,
		Counts:      make(map[string]int64, len(rep.Counts)),
		Rooms:       make([]api.RoomSummary, 0, len(rep.Recent)),
		PendingJobs: len(rep.Pending),
		LiveStreams: rep.LiveStreams,
	}
	if resp.LiveStreams == nil {
		resp.LiveStreams = []string{}
	}
	for _, c := range rep.Counts {
		resp.Counts[string(c.Status)] = c.Count
	}
	for _, room := range rep.Recent {
		resp.Rooms = append(resp.Rooms, api.RoomSummary{
			ID:            room.ID.String(),
			Status:        string(room.Status),
			AnchorAt:      room.AnchorAt.UTC(),
			Night:         room.Night,
			Rakats:        room.Rakats,
			JuzNumber:     room.JuzNumber,
			IsPrivate:     room.IsPrivate,
			PlaylistBuilt: room.PlaylistBuilt,
			StartedAt:     room.StartedAt,
			EndedAt:       room.EndedAt,
		})
	}
	h.respondJson(w, http.StatusOK, resp)
}
