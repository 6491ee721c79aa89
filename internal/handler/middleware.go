package handler

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"eatflow-gateway/internal/models"
	"eatflow-gateway/internal/service"
	"eatflow-gateway/internal/util"
)

type authSessionKey struct{}

// LoggerMiddleware creates a middleware that logs HTTP requests
func LoggerMiddleware(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			defer func() {
				logger.Info("HTTP request",
					util.String("request_id", middleware.GetReqID(r.Context())),
					util.String("method", r.Method),
					util.String("path", r.URL.Path),
					util.String("remote_addr", r.RemoteAddr),
					util.Int("status", ww.Status()),
					util.Duration("duration", time.Since(start)),
					util.String("user_agent", r.UserAgent()),
				)
			}()
			next.ServeHTTP(ww, r)
		})
	}
}

// RequireSession resolves the bearer session id into an AuthSession
func RequireSession(accounts *service.AccountService, logger *zap.Logger) func(http.Handler) http.Handler {
	res := responder{logger: logger}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sessionID := bearerToken(r)
			if sessionID == "" {
				res.respondWithError(w, http.StatusUnauthorized, service.ErrUnauthenticated, "Missing bearer session")
				return
			}
			session, err := accounts.Authenticate(r.Context(), sessionID)
			if err != nil {
				res.respondWithError(w, getStatusCode(err), err, "Invalid session")
				return
			}
			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), authSessionKey{}, session)))
		})
	}
}

func bearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if len(h) < 7 || !strings.EqualFold(h[:7], "bearer ") {
		return ""
	}
	return strings.TrimSpace(h[7:])
}

func authSessionFrom(ctx context.Context) *models.AuthSession {
	session, _ := ctx.Value(authSessionKey{}).(*models.AuthSession)
	return session
}
