package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Session is a GoTrue sign-in result.
type Session struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int    `json:"expires_in"`
	User         struct {
		ID    string `json:"id"`
		Email string `json:"email"`
	} `json:"user"`
}

// GoTrueClient talks to the Supabase auth API.
type GoTrueClient struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// NewGoTrueClient constructs a client for {supabaseURL}/auth/v1.
func NewGoTrueClient(supabaseURL, anonKey string) *GoTrueClient {
	return &GoTrueClient{
		baseURL: strings.TrimRight(supabaseURL, "/") + "/auth/v1",
		apiKey:  anonKey,
		httpClient: &http.Client{
			Timeout: 15 * time.Second,
		},
	}
}

// SignInWithPassword exchanges email and password for an access token.
func (c *GoTrueClient) SignInWithPassword(ctx context.Context, email, password string) (*Session, error) {
	payload, err := json.Marshal(map[string]string{"email": email, "password": password})
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/token?grant_type=password", bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	c.authorize(req, "")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("auth: gotrue sign in: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	switch {
	case resp.StatusCode == http.StatusBadRequest || resp.StatusCode == http.StatusUnauthorized:
		return nil, ErrInvalidCredentials
	case resp.StatusCode >= 400:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("auth: gotrue sign in returned status %d: %s", resp.StatusCode, bytes.TrimSpace(body))
	}
	var out Session
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("auth: decode gotrue session: %w", err)
	}
	if out.AccessToken == "" {
		return nil, fmt.Errorf("auth: gotrue session without access token")
	}
	return &out, nil
}

// SignOut revokes the refresh tokens bound to accessToken.
func (c *GoTrueClient) SignOut(ctx context.Context, accessToken string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/logout", nil)
	if err != nil {
		return err
	}
	c.authorize(req, accessToken)
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("auth: gotrue sign out: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	// 401 means the token already expired; nothing left to revoke.
	if resp.StatusCode >= 400 && resp.StatusCode != http.StatusUnauthorized {
		return fmt.Errorf("auth: gotrue sign out returned status %d", resp.StatusCode)
	}
	return nil
}

func (c *GoTrueClient) authorize(req *http.Request, accessToken string) {
	if c.apiKey != "" {
		req.Header.Set("apikey", c.apiKey)
	}
	if accessToken != "" {
		req.Header.Set("Authorization", "Bearer "+accessToken)
	} else if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
}
