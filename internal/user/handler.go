package user

import (
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/ovaphlow/pitchfork/service-tasks-go/internal/auth"
	"github.com/ovaphlow/pitchfork/service-tasks-go/internal/httpx"
	"github.com/ovaphlow/pitchfork/service-tasks-go/internal/metrics"
	"github.com/ovaphlow/pitchfork/service-tasks-go/internal/user/entity"
	"github.com/ovaphlow/pitchfork/service-tasks-go/pkg/apperr"
)

// Handler exposes HTTP endpoints for user operations under /api/user.
type Handler struct {
	svc    *UserService
	tokens *auth.TokenService
	logger *zap.SugaredLogger
}

func NewHandler(svc *UserService, tokens *auth.TokenService, logger *zap.SugaredLogger) *Handler {
	return &Handler{svc: svc, tokens: tokens, logger: logger}
}

// RegisterRequest request body for the register endpoint.
type RegisterRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// LoginRequest login payload.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type ProfileRequest struct {
	Name  string `json:"name"`
	Email string `json:"email"`
}

type PasswordRequest struct {
	CurrentPassword string `json:"currentPassword"`
	NewPassword     string `json:"newPassword"`
}

// AuthResponse is returned by register and login.
type AuthResponse struct {
	Success bool          `json:"success"`
	Token   string        `json:"token"`
	User    entity.Public `json:"user"`
}

type userResponse struct {
	Success bool          `json:"success"`
	User    entity.Public `json:"user"`
}

func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if err := httpx.Decode(w, r, &req); err != nil {
		h.logger.Debugw("invalid register payload", "err", err)
		httpx.Fail(w, h.logger, err)
		return
	}
	u, err := h.svc.Register(r.Context(), req.Name, req.Email, req.Password)
	if err != nil {
		h.logger.Debugw("register failed", "err", err)
		httpx.Fail(w, h.logger, err)
		return
	}
	h.respondWithToken(w, http.StatusCreated, u)
}

func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := httpx.Decode(w, r, &req); err != nil {
		h.logger.Debugw("invalid login payload", "err", err)
		httpx.Fail(w, h.logger, err)
		return
	}
	u, err := h.svc.Authenticate(r.Context(), req.Email, req.Password)
	if err != nil {
		if errors.Is(err, apperr.ErrInvalidCredentials) {
			metrics.LoginFailures.Inc()
			h.logger.Debugw("login failed", "err", err)
		}
		httpx.Fail(w, h.logger, err)
		return
	}
	h.respondWithToken(w, http.StatusOK, u)
}

func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	who, ok := auth.IdentityFrom(r.Context())
	if !ok {
		httpx.Fail(w, h.logger, apperr.ErrUnauthenticated)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, userResponse{
		Success: true,
		User:    entity.Public{ID: who.ID, Name: who.Name, Email: who.Email},
	})
}

func (h *Handler) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	who, ok := auth.IdentityFrom(r.Context())
	if !ok {
		httpx.Fail(w, h.logger, apperr.ErrUnauthenticated)
		return
	}
	var req ProfileRequest
	if err := httpx.Decode(w, r, &req); err != nil {
		httpx.Fail(w, h.logger, err)
		return
	}
	u, err := h.svc.UpdateProfile(r.Context(), who.ID, req.Name, req.Email)
	if err != nil {
		httpx.Fail(w, h.logger, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, userResponse{Success: true, User: u.Public()})
}

func (h *Handler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	who, ok := auth.IdentityFrom(r.Context())
	if !ok {
		httpx.Fail(w, h.logger, apperr.ErrUnauthenticated)
		return
	}
	var req PasswordRequest
	if err := httpx.Decode(w, r, &req); err != nil {
		httpx.Fail(w, h.logger, err)
		return
	}
	if err := h.svc.ChangePassword(r.Context(), who.ID, req.CurrentPassword, req.NewPassword); err != nil {
		// a wrong current password is a bad request here, not a failed login
		if errors.Is(err, apperr.ErrInvalidCredentials) {
			httpx.FailStatus(w, h.logger, http.StatusBadRequest, err)
			return
		}
		httpx.Fail(w, h.logger, err)
		return
	}
	h.logger.Debugw("password changed", "user", who.ID)
	httpx.WriteJSON(w, http.StatusOK, httpx.Envelope{Success: true, Message: "password changed"})
}

func (h *Handler) respondWithToken(w http.ResponseWriter, status int, u *entity.User) {
	token, _, err := h.tokens.Issue(u.ID)
	if err != nil {
		httpx.Fail(w, h.logger, err)
		return
	}
	httpx.WriteJSON(w, status, AuthResponse{Success: true, Token: token, User: u.Public()})
}
