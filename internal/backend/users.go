package backend

import (
	"context"
	"net/http"
	"strings"
)

type findIDResponse struct {
	ID string `json:"id"`
}

// FindID returns the username registered for email
func (c *Client) FindID(ctx context.Context, email string) (string, error) {
	var out findIDResponse
	if err := c.do(ctx, http.MethodPost, "/users/find-id", "", emailRequest{Email: email}, &out); err != nil {
		if StatusOf(err) == http.StatusNotFound {
			return "", ErrNotRegistered
		}
		return "", err
	}
	if strings.TrimSpace(out.ID) == "" {
		return "", ErrNotRegistered
	}
	return out.ID, nil
}

// CheckUsername reports whether username is still free
func (c *Client) CheckUsername(ctx context.Context, username string) (bool, error) {
	var out struct {
		Available bool `json:"available"`
	}
	err := c.do(ctx, http.MethodPost, "/users/verify-id", "", map[string]string{"username": username}, &out)
	return out.Available, err
}

type SignupRequest struct {
	Email    string `json:"email"`
	Username string `json:"username"`
	Password string `json:"password"`
}

func (c *Client) Signup(ctx context.Context, req SignupRequest) error {
	return c.do(ctx, http.MethodPost, "/users/signup", "", req, nil)
}

type resetPasswordRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (c *Client) ResetPassword(ctx context.Context, email, password string) error {
	return c.do(ctx, http.MethodPost, "/users/reset-password", "", resetPasswordRequest{Email: email, Password: password}, nil)
}

type loginRequest struct {
	ID       string `json:"id"`
	Password string `json:"password"`
}

// Login exchanges credentials for a backend access token
func (c *Client) Login(ctx context.Context, id, password string) (string, error) {
	var out struct {
		AccessToken string `json:"access_token"`
	}
	if err := c.do(ctx, http.MethodPost, "/users/login", "", loginRequest{ID: id, Password: password}, &out); err != nil {
		if status := StatusOf(err); status == http.StatusBadRequest || status == http.StatusNotFound {
			return "", ErrUnauthorized
		}
		return "", err
	}
	if out.AccessToken == "" {
		return "", ErrUnauthorized
	}
	return out.AccessToken, nil
}

// UserInfo is the subset of /users/my the gateway uses
type UserInfo struct {
	Username string `json:"username,omitempty"`
	Email    string `json:"email,omitempty"`
	Purpose  string `json:"purpose"`
}

func (c *Client) MyInfo(ctx context.Context, token string) (*UserInfo, error) {
	var out UserInfo
	if err := c.do(ctx, http.MethodGet, "/users/my", token, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ResetTime returns the user's daily reset time as reported by the backend
func (c *Client) ResetTime(ctx context.Context, token string) (string, error) {
	var out struct {
		ResetTime string `json:"reset_time"`
	}
	err := c.do(ctx, http.MethodGet, "/users/set-time", token, nil, &out)
	return out.ResetTime, err
}

// AccountUpdate leaves a field unchanged when it is empty
type AccountUpdate struct {
	Username string `json:"username,omitempty"`
	Password string `json:"password,omitempty"`
}

func (c *Client) UpdateAccount(ctx context.Context, token string, update AccountUpdate) error {
	return c.do(ctx, http.MethodPut, "/users/account", token, update, nil)
}
