package backend

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"eatflow-gateway/internal/verification"
)

type emailRequest struct {
	Email string `json:"email"`
}

type verifyCodeRequest struct {
	Email string `json:"email"`
	Code  string `json:"code"`
}

// IssueCode asks the backend to email a verification code to target
func (c *Client) IssueCode(ctx context.Context, target string) error {
	err := c.do(ctx, http.MethodPost, "/users/send-verification-email", "", emailRequest{Email: target}, nil)
	if err == nil {
		return nil
	}
	switch StatusOf(err) {
	case http.StatusBadRequest, http.StatusNotFound, http.StatusConflict, http.StatusUnprocessableEntity:
		return fmt.Errorf("%w: %w", verification.ErrRejectedTarget, err)
	}
	return fmt.Errorf("%w: %w", verification.ErrNetwork, err)
}

// VerifyCode checks code for target. Client errors are answers about the
// code; only transport failures and 5xx are errors.
func (c *Client) VerifyCode(ctx context.Context, target, code string) (verification.Outcome, error) {
	err := c.do(ctx, http.MethodPost, "/users/verify-email-code", "", verifyCodeRequest{Email: target, Code: code}, nil)
	if err == nil {
		return verification.OutcomeMatched, nil
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.Status >= 400 && apiErr.Status < 500 && apiErr.Status != http.StatusUnauthorized {
		if apiErr.Status == http.StatusGone || strings.Contains(strings.ToLower(apiErr.Detail), "expir") {
			return verification.OutcomeExpired, nil
		}
		return verification.OutcomeMismatch, nil
	}
	return 0, fmt.Errorf("%w: %w", verification.ErrNetwork, err)
}

var (
	_ verification.Issuer   = (*Client)(nil)
	_ verification.Verifier = (*Client)(nil)
)
