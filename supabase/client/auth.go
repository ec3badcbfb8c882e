package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
)

// AuthClient calls the GoTrue endpoints under /auth/v1.
type AuthClient struct {
	client *Client
}

func (c *Client) Auth() *AuthClient {
	return &AuthClient{client: c}
}

// User is an authenticated identity.
type User struct {
	ID           string         `json:"id"`
	Email        string         `json:"email"`
	Role         string         `json:"role"`
	UserMetadata map[string]any `json:"user_metadata,omitempty"`
	AppMetadata  map[string]any `json:"app_metadata,omitempty"`
}

// Session is the result of a sign-in or sign-up.
type Session struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int    `json:"expires_in"`
	TokenType    string `json:"token_type"`
	User         User   `json:"user"`
}

// GetUser resolves an access token to its user.
func (a *AuthClient) GetUser(ctx context.Context, accessToken string) (*User, error) {
	accessToken = strings.TrimSpace(accessToken)
	if accessToken == "" {
		return nil, fmt.Errorf("supabase auth: access token is required")
	}
	req, err := a.client.newRequest(ctx, http.MethodGet, "/auth/v1/user", nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)

	resp, err := a.client.do(req)
	if err != nil {
		return nil, err
	}
	if err := resp.Error(); err != nil {
		return nil, err
	}
	var user User
	if err := resp.JSON(&user); err != nil {
		return nil, fmt.Errorf("decode user: %w", err)
	}
	if user.ID == "" {
		return nil, fmt.Errorf("supabase auth: user response has no id")
	}
	return &user, nil
}

// SignUp registers an email/password identity.
func (a *AuthClient) SignUp(ctx context.Context, email, password string) (*Session, error) {
	return a.credentials(ctx, "/auth/v1/signup", email, password)
}

// SignIn exchanges a password for a session.
func (a *AuthClient) SignIn(ctx context.Context, email, password string) (*Session, error) {
	return a.credentials(ctx, "/auth/v1/token?grant_type=password", email, password)
}

func (a *AuthClient) credentials(ctx context.Context, path, email, password string) (*Session, error) {
	raw, err := json.Marshal(map[string]string{"email": email, "password": password})
	if err != nil {
		return nil, err
	}
	req, err := a.client.newRequest(ctx, http.MethodPost, path, bytes.NewReader(raw))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.client.do(req)
	if err != nil {
		return nil, err
	}
	if err := resp.Error(); err != nil {
		return nil, err
	}
	var session Session
	if err := resp.JSON(&session); err != nil {
		return nil, fmt.Errorf("decode session: %w", err)
	}
	return &session, nil
}
