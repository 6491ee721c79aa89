package handler

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"eatflow-gateway/internal/service"
	"eatflow-gateway/internal/util"
)

// AccountHandler handles account recovery, signup and login
type AccountHandler struct {
	responder
	accounts *service.AccountService
}

func NewAccountHandler(accounts *service.AccountService, logger *zap.Logger) *AccountHandler {
	return &AccountHandler{
		responder: responder{logger: logger},
		accounts:  accounts,
	}
}

type findIDRequest struct {
	VerificationID string `json:"verification_id" validate:"required"`
}

type checkUsernameRequest struct {
	Username string `json:"username" validate:"required,max=50,safe_text"`
}

type signupRequest struct {
	VerificationID  string `json:"verification_id" validate:"required"`
	Username        string `json:"username" validate:"required,max=50,safe_text"`
	Password        string `json:"password" validate:"required,max=128"`
	PasswordConfirm string `json:"password_confirm" validate:"required"`
}

type resetPasswordRequest struct {
	VerificationID  string `json:"verification_id" validate:"required"`
	Password        string `json:"password" validate:"required,max=128"`
	PasswordConfirm string `json:"password_confirm" validate:"required"`
}

type loginRequest struct {
	ID       string `json:"id" validate:"required,max=50"`
	Password string `json:"password" validate:"required,max=128"`
}

type updateAccountRequest struct {
	Username        string `json:"username" validate:"max=50,safe_text"`
	Password        string `json:"password" validate:"max=128"`
	PasswordConfirm string `json:"password_confirm"`
}

type loginResponse struct {
	SessionID string    `json:"session_id"`
	UserID    string    `json:"user_id"`
	ExpiresAt time.Time `json:"expires_at"`
}

// RegisterRoutes registers the public account routes; protected ones are
// registered by RegisterProtectedRoutes behind RequireSession.
func (h *AccountHandler) RegisterRoutes(router chi.Router) {
	router.Post("/account/find-id", h.FindID)
	router.Post("/account/username/check", h.CheckUsername)
	router.Post("/account/signup", h.Signup)
	router.Post("/account/password/reset", h.ResetPassword)
	router.Post("/auth/login", h.Login)
}

func (h *AccountHandler) RegisterProtectedRoutes(router chi.Router) {
	router.Post("/auth/logout", h.Logout)
	router.Put("/account", h.UpdateAccount)
}

func (h *AccountHandler) FindID(w http.ResponseWriter, r *http.Request) {
	var req findIDRequest
	if !h.decodeJSON(w, r, &req) {
		return
	}
	id, err := h.accounts.FindID(r.Context(), req.VerificationID)
	if err != nil {
		h.respondWithError(w, getStatusCode(err), err, "Failed to find id")
		return
	}
	h.respondWithJSON(w, http.StatusOK, successResponse(map[string]string{"id": id}, ""))
}

func (h *AccountHandler) CheckUsername(w http.ResponseWriter, r *http.Request) {
	var req checkUsernameRequest
	if !h.decodeJSON(w, r, &req) {
		return
	}
	available, err := h.accounts.CheckUsername(r.Context(), req.Username)
	if err != nil {
		h.respondWithError(w, getStatusCode(err), err, "Failed to check username")
		return
	}
	h.respondWithJSON(w, http.StatusOK, successResponse(map[string]bool{"available": available}, ""))
}

func (h *AccountHandler) Signup(w http.ResponseWriter, r *http.Request) {
	startTime := time.Now()
	var req signupRequest
	if !h.decodeJSON(w, r, &req) {
		return
	}
	err := h.accounts.Signup(r.Context(), service.SignupInput{
		VerificationID:  req.VerificationID,
		Username:        req.Username,
		Password:        req.Password,
		PasswordConfirm: req.PasswordConfirm,
	})
	if err != nil {
		h.respondWithError(w, getStatusCode(err), err, "Signup failed")
		return
	}
	h.respondWithJSON(w, http.StatusCreated, successResponse(nil, "Signup completed"))
	h.logger.Info("User signed up via HTTP",
		util.String("username", req.Username),
		util.Duration("duration", time.Since(startTime)))
}

func (h *AccountHandler) ResetPassword(w http.ResponseWriter, r *http.Request) {
	var req resetPasswordRequest
	if !h.decodeJSON(w, r, &req) {
		return
	}
	err := h.accounts.ResetPassword(r.Context(), service.ResetPasswordInput{
		VerificationID:  req.VerificationID,
		Password:        req.Password,
		PasswordConfirm: req.PasswordConfirm,
	})
	if err != nil {
		h.respondWithError(w, getStatusCode(err), err, "Password reset failed")
		return
	}
	h.respondWithJSON(w, http.StatusOK, successResponse(nil, "Password reset"))
}

func (h *AccountHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !h.decodeJSON(w, r, &req) {
		return
	}
	session, err := h.accounts.Login(r.Context(), req.ID, req.Password, r.RemoteAddr)
	if err != nil {
		h.respondWithError(w, getStatusCode(err), err, "Login failed")
		return
	}
	h.respondWithJSON(w, http.StatusOK, successResponse(loginResponse{
		SessionID: session.SessionID,
		UserID:    session.UserID,
		ExpiresAt: session.ExpiresAt,
	}, "Logged in"))
}

func (h *AccountHandler) Logout(w http.ResponseWriter, r *http.Request) {
	session := authSessionFrom(r.Context())
	if err := h.accounts.Logout(r.Context(), session.SessionID); err != nil {
		h.respondWithError(w, http.StatusInternalServerError, err, "Logout failed")
		return
	}
	h.respondWithJSON(w, http.StatusOK, successResponse(nil, "Logged out"))
}

func (h *AccountHandler) UpdateAccount(w http.ResponseWriter, r *http.Request) {
	var req updateAccountRequest
	if !h.decodeJSON(w, r, &req) {
		return
	}
	err := h.accounts.UpdateAccount(r.Context(), authSessionFrom(r.Context()), service.AccountUpdateInput{
		Username:        req.Username,
		Password:        req.Password,
		PasswordConfirm: req.PasswordConfirm,
	})
	if err != nil {
		h.respondWithError(w, getStatusCode(err), err, "Failed to update account")
		return
	}
	h.respondWithJSON(w, http.StatusOK, successResponse(nil, "Account updated"))
}
