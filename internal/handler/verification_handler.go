package handler

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"eatflow-gateway/internal/service"
	"eatflow-gateway/internal/util"
	"eatflow-gateway/internal/verification"
)

// VerificationHandler exposes email verification challenges
type VerificationHandler struct {
	responder
	verifications *service.VerificationService
}

func NewVerificationHandler(verifications *service.VerificationService, logger *zap.Logger) *VerificationHandler {
	return &VerificationHandler{
		responder:     responder{logger: logger},
		verifications: verifications,
	}
}

type startVerificationRequest struct {
	Flow string `json:"flow" validate:"required,oneof=find_id signup password_reset"`
}

// Email and code are checked by the challenge itself so the failure is
// recorded on its snapshot.
type requestCodeRequest struct {
	Email string `json:"email" validate:"max=320"`
}

type submitCodeRequest struct {
	Code string `json:"code" validate:"max=32"`
}

func (h *VerificationHandler) RegisterRoutes(router chi.Router) {
	router.Route("/verifications", func(r chi.Router) {
		r.Post("/", h.Start)
		r.Get("/{id}", h.Get)
		r.Post("/{id}/code", h.RequestCode)
		r.Post("/{id}/verify", h.SubmitCode)
		r.Post("/{id}/reset", h.Reset)
		r.Delete("/{id}", h.Discard)
	})
}

func (h *VerificationHandler) Start(w http.ResponseWriter, r *http.Request) {
	var req startVerificationRequest
	if !h.decodeJSON(w, r, &req) {
		return
	}
	snap, err := h.verifications.Start(req.Flow)
	if err != nil {
		h.respondWithError(w, getStatusCode(err), err, "Failed to start verification")
		return
	}
	h.respondWithJSON(w, http.StatusCreated, successResponse(snap, "Verification started"))
}

func (h *VerificationHandler) Get(w http.ResponseWriter, r *http.Request) {
	snap, err := h.verifications.Get(chi.URLParam(r, "id"))
	if err != nil {
		h.respondWithError(w, getStatusCode(err), err, "Verification not found")
		return
	}
	h.respondWithJSON(w, http.StatusOK, successResponse(snap, ""))
}

func (h *VerificationHandler) RequestCode(w http.ResponseWriter, r *http.Request) {
	startTime := time.Now()
	var req requestCodeRequest
	if !h.decodeJSON(w, r, &req) {
		return
	}
	snap, err := h.verifications.RequestCode(r.Context(), chi.URLParam(r, "id"), req.Email)
	if err != nil {
		h.respondWithChallengeError(w, snap, err, "Failed to send verification code")
		return
	}
	h.respondWithJSON(w, http.StatusOK, successResponse(snap, "Verification code sent"))
	h.logger.Debug("Verification code requested via HTTP",
		util.String("session_id", snap.ID),
		util.Int("resends", snap.Resends),
		util.Duration("duration", time.Since(startTime)))
}

func (h *VerificationHandler) SubmitCode(w http.ResponseWriter, r *http.Request) {
	var req submitCodeRequest
	if !h.decodeJSON(w, r, &req) {
		return
	}
	snap, err := h.verifications.SubmitCode(r.Context(), chi.URLParam(r, "id"), req.Code)
	if err != nil {
		h.respondWithChallengeError(w, snap, err, "Verification failed")
		return
	}
	h.respondWithJSON(w, http.StatusOK, successResponse(snap, "Email verified"))
}

func (h *VerificationHandler) Reset(w http.ResponseWriter, r *http.Request) {
	snap, err := h.verifications.Reset(chi.URLParam(r, "id"))
	if err != nil {
		h.respondWithChallengeError(w, snap, err, "Failed to reset verification")
		return
	}
	h.respondWithJSON(w, http.StatusOK, successResponse(snap, "Verification reset"))
}

func (h *VerificationHandler) Discard(w http.ResponseWriter, r *http.Request) {
	if err := h.verifications.Discard(chi.URLParam(r, "id")); err != nil {
		h.respondWithError(w, getStatusCode(err), err, "Verification not found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// challengeMessage never carries the wrapped cause, which can name upstream
// endpoints and their replies.
func challengeMessage(message string, kind verification.Kind) string {
	if kind == verification.KindNetwork {
		return message + ": verification service unavailable, try again"
	}
	if sentinel := kind.Err(); sentinel != nil {
		return message + ": " + sentinel.Error()
	}
	return message
}

// respondWithChallengeError reports the error kind next to the snapshot the
// challenge settled in.
func (h *VerificationHandler) respondWithChallengeError(w http.ResponseWriter, snap verification.Snapshot, err error, message string) {
	kind := verification.KindOf(err)
	status := kindStatus(kind)
	h.logger.Info("Verification operation failed",
		util.String("session_id", snap.ID),
		util.String("kind", string(kind)),
		util.String("status", string(snap.Status)),
		util.ErrorField(err))

	resp := Response{Success: false, Error: string(kind), Message: challengeMessage(message, kind)}
	if snap.ID != "" {
		resp.Data = snap
	}
	h.respondWithJSON(w, status, resp)
}
