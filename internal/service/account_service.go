package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"eatflow-gateway/internal/backend"
	"eatflow-gateway/internal/models"
	"eatflow-gateway/internal/repository"
	"eatflow-gateway/internal/util"
	"eatflow-gateway/internal/verification"
)

// AccountBackend is the account half of the EatFlow API
type AccountBackend interface {
	FindID(ctx context.Context, email string) (string, error)
	CheckUsername(ctx context.Context, username string) (bool, error)
	Signup(ctx context.Context, req backend.SignupRequest) error
	ResetPassword(ctx context.Context, email, password string) error
	Login(ctx context.Context, id, password string) (string, error)
	UpdateAccount(ctx context.Context, token string, update backend.AccountUpdate) error
}

type SignupInput struct {
	VerificationID  string
	Username        string
	Password        string
	PasswordConfirm string
}

type ResetPasswordInput struct {
	VerificationID  string
	Password        string
	PasswordConfirm string
}

type AccountUpdateInput struct {
	Username        string
	Password        string
	PasswordConfirm string
}

// AccountService runs the account flows gated by email verification and
// owns the signed-in sessions.
type AccountService struct {
	backend       AccountBackend
	verifications *VerificationService
	sessions      repository.AuthSessionStore
	sessionTTL    time.Duration
	logger        *zap.Logger
	now           func() time.Time
}

func NewAccountService(
	b AccountBackend,
	verifications *VerificationService,
	sessions repository.AuthSessionStore,
	sessionTTL time.Duration,
	logger *zap.Logger,
) *AccountService {
	return &AccountService{
		backend:       b,
		verifications: verifications,
		sessions:      sessions,
		sessionTTL:    sessionTTL,
		logger:        logger,
		now:           time.Now,
	}
}

// FindID returns the username for a verified find-id challenge; the
// challenge is single use.
func (s *AccountService) FindID(ctx context.Context, verificationID string) (string, error) {
	email, err := s.verifications.VerifiedTarget(verificationID, verification.FlowFindID)
	if err != nil {
		return "", err
	}
	id, err := s.backend.FindID(ctx, email)
	if err != nil {
		return "", err
	}
	_ = s.verifications.Discard(verificationID)
	s.logger.Info("Account id recovered", zap.String("target", util.MaskEmail(email)))
	return id, nil
}

func (s *AccountService) CheckUsername(ctx context.Context, username string) (bool, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return false, fmt.Errorf("%w: username is required", ErrInvalidInput)
	}
	return s.backend.CheckUsername(ctx, username)
}

func (s *AccountService) Signup(ctx context.Context, in SignupInput) error {
	username := strings.TrimSpace(in.Username)
	if username == "" {
		return fmt.Errorf("%w: username is required", ErrInvalidInput)
	}
	if err := checkPassword(in.Password, in.PasswordConfirm); err != nil {
		return err
	}
	email, err := s.verifications.VerifiedTarget(in.VerificationID, verification.FlowSignup)
	if err != nil {
		return err
	}
	if err := s.backend.Signup(ctx, backend.SignupRequest{Email: email, Username: username, Password: in.Password}); err != nil {
		return err
	}
	_ = s.verifications.Discard(in.VerificationID)
	s.logger.Info("Account created",
		zap.String("username", username),
		zap.String("target", util.MaskEmail(email)))
	return nil
}

func (s *AccountService) ResetPassword(ctx context.Context, in ResetPasswordInput) error {
	if err := checkPassword(in.Password, in.PasswordConfirm); err != nil {
		return err
	}
	email, err := s.verifications.VerifiedTarget(in.VerificationID, verification.FlowPasswordReset)
	if err != nil {
		return err
	}
	if err := s.backend.ResetPassword(ctx, email, in.Password); err != nil {
		return err
	}
	_ = s.verifications.Discard(in.VerificationID)
	s.logger.Info("Password reset", zap.String("target", util.MaskEmail(email)))
	return nil
}

// Login acquires an auth session holding the backend token
func (s *AccountService) Login(ctx context.Context, id, password, clientIP string) (*models.AuthSession, error) {
	id = strings.TrimSpace(id)
	if id == "" || password == "" {
		return nil, fmt.Errorf("%w: id and password are required", ErrInvalidInput)
	}
	token, err := s.backend.Login(ctx, id, password)
	if err != nil {
		if errors.Is(err, backend.ErrUnauthorized) {
			s.logger.Info("Login rejected", zap.String("user_id", id))
			return nil, ErrUnauthenticated
		}
		return nil, err
	}

	now := s.now()
	session := &models.AuthSession{
		SessionID:    uuid.NewString(),
		UserID:       id,
		AccessToken:  token,
		CreatedAt:    now,
		LastActivity: now,
		ExpiresAt:    now.Add(s.sessionTTL),
		ClientIP:     clientIP,
	}
	if err := s.sessions.Save(ctx, session); err != nil {
		return nil, fmt.Errorf("failed to store session: %w", err)
	}
	s.logger.Info("User logged in", zap.String("user_id", id))
	return session, nil
}

// Authenticate resolves a session id and slides its expiry
func (s *AccountService) Authenticate(ctx context.Context, sessionID string) (*models.AuthSession, error) {
	if sessionID == "" {
		return nil, ErrUnauthenticated
	}
	session, err := s.sessions.Get(ctx, sessionID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrUnauthenticated
		}
		return nil, err
	}
	now := s.now()
	if session.Expired(now) {
		_ = s.sessions.Delete(ctx, sessionID)
		return nil, ErrUnauthenticated
	}
	expiresAt := now.Add(s.sessionTTL)
	if err := s.sessions.Touch(ctx, sessionID, now, expiresAt); errors.Is(err, repository.ErrNotFound) {
		// logged out while the request was in flight
		return nil, ErrUnauthenticated
	} else if err != nil {
		s.logger.Warn("Failed to refresh session", zap.Error(err))
	} else {
		session.LastActivity = now
		session.ExpiresAt = expiresAt
	}
	return session, nil
}

// Logout releases the session
func (s *AccountService) Logout(ctx context.Context, sessionID string) error {
	return s.sessions.Delete(ctx, sessionID)
}

func (s *AccountService) UpdateAccount(ctx context.Context, auth *models.AuthSession, in AccountUpdateInput) error {
	update := backend.AccountUpdate{Username: strings.TrimSpace(in.Username)}
	if in.Password != "" {
		if err := checkPassword(in.Password, in.PasswordConfirm); err != nil {
			return err
		}
		update.Password = in.Password
	}
	if update.Username == "" && update.Password == "" {
		return ErrNothingToUpdate
	}
	if err := s.backend.UpdateAccount(ctx, auth.AccessToken, update); err != nil {
		return s.dropIfUnauthorized(ctx, auth, err)
	}
	s.logger.Info("Account updated",
		zap.String("user_id", auth.UserID),
		zap.Bool("username_changed", update.Username != ""),
		zap.Bool("password_changed", update.Password != ""))
	return nil
}

// dropIfUnauthorized ends a session whose backend token stopped working
func (s *AccountService) dropIfUnauthorized(ctx context.Context, auth *models.AuthSession, err error) error {
	if !errors.Is(err, backend.ErrUnauthorized) {
		return err
	}
	_ = s.sessions.Delete(ctx, auth.SessionID)
	s.logger.Info("Backend token rejected, session dropped", zap.String("user_id", auth.UserID))
	return ErrUnauthenticated
}
