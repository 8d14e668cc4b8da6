package task

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/ovaphlow/pitchfork/service-tasks-go/internal/auth"
	"github.com/ovaphlow/pitchfork/service-tasks-go/internal/httpx"
	"github.com/ovaphlow/pitchfork/service-tasks-go/internal/task/entity"
	"github.com/ovaphlow/pitchfork/service-tasks-go/pkg/apperr"
)

// Handler exposes /api/tasks. Every route expects auth.Guard in front of it.
type Handler struct {
	svc    *Service
	logger *zap.SugaredLogger
}

func NewHandler(svc *Service, logger *zap.SugaredLogger) *Handler {
	return &Handler{svc: svc, logger: logger}
}

// taskRequest is the body of create and update. An "owner" key in the body is ignored.
type taskRequest struct {
	Title       *string         `json:"title"`
	Description *string         `json:"description"`
	Priority    *string         `json:"priority"`
	DueDate     *string         `json:"dueDate"`
	Completed   json.RawMessage `json:"completed"`
}

type taskResponse struct {
	Success bool         `json:"success"`
	Task    *entity.Task `json:"task"`
}

type listResponse struct {
	Success bool           `json:"success"`
	Tasks   []*entity.Task `json:"tasks"`
}

func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	who, ok := auth.IdentityFrom(r.Context())
	if !ok {
		httpx.Fail(w, h.logger, apperr.ErrUnauthenticated)
		return
	}
	var req taskRequest
	if err := httpx.Decode(w, r, &req); err != nil {
		h.logger.Debugw("invalid task payload", "err", err)
		httpx.Fail(w, h.logger, err)
		return
	}

	in := Input{Completed: ParseCompleted(req.Completed)}
	if req.Title != nil {
		in.Title = *req.Title
	}
	if req.Description != nil {
		in.Description = *req.Description
	}
	if req.Priority != nil {
		in.Priority = entity.Priority(*req.Priority)
	}
	if req.DueDate != nil {
		due, err := ParseDueDate(*req.DueDate)
		if err != nil {
			httpx.Fail(w, h.logger, err)
			return
		}
		in.DueDate = due
	}

	t, err := h.svc.Create(r.Context(), who.ID, in)
	if err != nil {
		httpx.Fail(w, h.logger, err)
		return
	}
	h.logger.Debugw("task created", "task", t.ID, "owner", who.ID)
	httpx.WriteJSON(w, http.StatusCreated, taskResponse{Success: true, Task: t})
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	who, ok := auth.IdentityFrom(r.Context())
	if !ok {
		httpx.Fail(w, h.logger, apperr.ErrUnauthenticated)
		return
	}
	tasks, err := h.svc.ListByOwner(r.Context(), who.ID)
	if err != nil {
		httpx.Fail(w, h.logger, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, listResponse{Success: true, Tasks: tasks})
}

func (h *Handler) GetOne(w http.ResponseWriter, r *http.Request) {
	who, id, ok := h.target(w, r)
	if !ok {
		return
	}
	t, err := h.svc.GetOne(r.Context(), who.ID, id)
	if err != nil {
		httpx.Fail(w, h.logger, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, taskResponse{Success: true, Task: t})
}

func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	who, id, ok := h.target(w, r)
	if !ok {
		return
	}
	var req taskRequest
	if err := httpx.Decode(w, r, &req); err != nil {
		h.logger.Debugw("invalid task payload", "err", err)
		httpx.Fail(w, h.logger, err)
		return
	}

	p := entity.Patch{Title: req.Title, Description: req.Description}
	if req.Priority != nil {
		pr := entity.Priority(*req.Priority)
		p.Priority = &pr
	}
	if req.DueDate != nil {
		due, err := ParseDueDate(*req.DueDate)
		if err != nil {
			httpx.Fail(w, h.logger, err)
			return
		}
		p.DueDate = due
		p.ClearDueDate = due == nil
	}
	if req.Completed != nil {
		done := ParseCompleted(req.Completed)
		p.Completed = &done
	}

	t, err := h.svc.Update(r.Context(), who.ID, id, p)
	if err != nil {
		httpx.Fail(w, h.logger, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, taskResponse{Success: true, Task: t})
}

func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	who, id, ok := h.target(w, r)
	if !ok {
		return
	}
	if err := h.svc.Delete(r.Context(), who.ID, id); err != nil {
		httpx.Fail(w, h.logger, err)
		return
	}
	h.logger.Debugw("task deleted", "task", id, "owner", who.ID)
	httpx.WriteJSON(w, http.StatusOK, httpx.Envelope{Success: true, Message: "task deleted"})
}

// target resolves the caller and the {id} path variable. A non-numeric id is
// reported as not found, the same as an id that does not exist.
func (h *Handler) target(w http.ResponseWriter, r *http.Request) (auth.Identity, int64, bool) {
	who, ok := auth.IdentityFrom(r.Context())
	if !ok {
		httpx.Fail(w, h.logger, apperr.ErrUnauthenticated)
		return auth.Identity{}, 0, false
	}
	id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		httpx.Fail(w, h.logger, errTaskNotFound)
		return auth.Identity{}, 0, false
	}
	return who, id, true
}
