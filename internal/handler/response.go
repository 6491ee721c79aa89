package handler

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"eatflow-gateway/internal/backend"
	"eatflow-gateway/internal/service"
	"eatflow-gateway/internal/util"
	"eatflow-gateway/internal/verification"

	"go.uber.org/zap"
)

const maxRequestBody = 1 << 20

// Response represents a standard API response
type Response struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
	Message string      `json:"message,omitempty"`
}

func successResponse(data interface{}, message string) Response {
	return Response{
		Success: true,
		Data:    data,
		Message: message,
	}
}

func errorResponse(err error, message string) Response {
	return Response{
		Success: false,
		Error:   err.Error(),
		Message: message,
	}
}

// responder carries the JSON helpers shared by every handler
type responder struct {
	logger *zap.Logger
}

func (h responder) respondWithJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("Failed to encode JSON response", util.ErrorField(err))
	}
}

func (h responder) respondWithError(w http.ResponseWriter, statusCode int, err error, message string) {
	fields := []zap.Field{
		util.ErrorField(err),
		util.Int("status_code", statusCode),
		util.String("message", message),
	}
	if statusCode >= http.StatusInternalServerError {
		h.logger.Error("HTTP error response", fields...)
	} else {
		h.logger.Warn("HTTP error response", fields...)
	}
	h.respondWithJSON(w, statusCode, errorResponse(err, message))
}

// decodeJSON reads a bounded JSON body and validates it
func (h responder) decodeJSON(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxRequestBody))
	if err := dec.Decode(dst); err != nil {
		h.respondWithError(w, http.StatusBadRequest, err, "Invalid request body")
		return false
	}
	if err := validate.Struct(dst); err != nil {
		h.respondWithError(w, http.StatusBadRequest, validationError(err), "Invalid request")
		return false
	}
	return true
}

// getStatusCode determines the appropriate HTTP status code for an error
func getStatusCode(err error) int {
	switch {
	case errors.Is(err, verification.ErrSessionNotFound):
		return http.StatusNotFound
	case errors.Is(err, service.ErrInvalidInput),
		errors.Is(err, service.ErrPasswordMismatch),
		errors.Is(err, service.ErrWeakPassword),
		errors.Is(err, service.ErrNothingToUpdate),
		errors.Is(err, service.ErrUnknownFlow):
		return http.StatusBadRequest
	case errors.Is(err, service.ErrUnauthenticated):
		return http.StatusUnauthorized
	case errors.Is(err, service.ErrNotVerified):
		return http.StatusForbidden
	case errors.Is(err, service.ErrWrongFlow):
		return http.StatusConflict
	case errors.Is(err, backend.ErrNotRegistered):
		return http.StatusNotFound
	case errors.Is(err, backend.ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, backend.ErrUnavailable):
		return http.StatusBadGateway
	}

	var apiErr *backend.APIError
	if errors.As(err, &apiErr) && apiErr.Status >= 400 && apiErr.Status < 500 {
		return apiErr.Status
	}
	return http.StatusInternalServerError
}

// kindStatus maps a failed challenge operation to its HTTP status
func kindStatus(kind verification.Kind) int {
	switch kind {
	case verification.KindInvalidTargetFormat, verification.KindEmptyCode:
		return http.StatusBadRequest
	case verification.KindInvalidState, verification.KindTargetChanged, verification.KindSuperseded:
		return http.StatusConflict
	case verification.KindCodeMismatch:
		return http.StatusUnprocessableEntity
	case verification.KindCodeExpired:
		return http.StatusGone
	case verification.KindRejectedTarget, verification.KindSessionClosed:
		return http.StatusNotFound
	case verification.KindResendLimit, verification.KindIssueLimited:
		return http.StatusTooManyRequests
	case verification.KindNetwork:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
