// internal/gateway/admin.go
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// The admin API is unauthenticated by convention (localhost only), so these
// calls carry no credentials.

// CreateOutcome classifies the gateway's answer to a user-creation request.
type CreateOutcome int

const (
	// CreateCreated means the account did not exist and was created.
	CreateCreated CreateOutcome = iota
	// CreateExists means the account was already present; for provisioning
	// purposes this is as good as a fresh creation.
	CreateExists
	// CreateRejected covers everything else (invalid username, admin error).
	CreateRejected
)

// User is an account record as the admin API reports it.
type User struct {
	Username  string `json:"username"`
	QuotaTier string `json:"quota_tier"`
	IsActive  bool   `json:"is_active"`
}

type createUserRequest struct {
	Username  string `json:"username"`
	Password  string `json:"password"`
	QuotaTier string `json:"quota_tier"`
}

type setActiveRequest struct {
	IsActive bool `json:"is_active"`
}

// CreateUser asks the admin API to create an account. Older gateway builds
// answer a duplicate create with 500 and an "exists" message rather than 200,
// so that shape is folded into CreateExists as well.
func (c *Client) CreateUser(ctx context.Context, username, password, quotaTier string) (CreateOutcome, error) {
	body := createUserRequest{Username: username, Password: password, QuotaTier: quotaTier}
	resp, err := c.postJSON(ctx, "/admin/users", body)
	if err != nil {
		return CreateRejected, err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusCreated:
		return CreateCreated, nil
	case resp.StatusCode == http.StatusOK:
		return CreateExists, nil
	case resp.StatusCode == http.StatusInternalServerError:
		text, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		if strings.Contains(strings.ToLower(string(text)), "exists") {
			return CreateExists, nil
		}
		return CreateRejected, fmt.Errorf("admin create %s: status 500", username)
	default:
		return CreateRejected, fmt.Errorf("admin create %s: status %d", username, resp.StatusCode)
	}
}

// SetUserActive flips an account's active flag.
func (c *Client) SetUserActive(ctx context.Context, username string, active bool) error {
	resp, err := c.postJSON(ctx, "/admin/users/"+username+"/active", setActiveRequest{IsActive: active})
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("admin set active %s: status %d", username, resp.StatusCode)
	}
	return nil
}

// GetUser fetches a single account record.
func (c *Client) GetUser(ctx context.Context, username string) (*User, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/admin/users/"+username, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("admin get %s: status %d", username, resp.StatusCode)
	}
	var user User
	if err := json.NewDecoder(resp.Body).Decode(&user); err != nil {
		return nil, fmt.Errorf("failed to decode response body: %w", err)
	}
	return &user, nil
}

// ListUsers fetches every account the gateway knows about.
func (c *Client) ListUsers(ctx context.Context) ([]User, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/admin/users", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("admin list users: status %d", resp.StatusCode)
	}
	var users []User
	if err := json.NewDecoder(resp.Body).Decode(&users); err != nil {
		return nil, fmt.Errorf("failed to decode response body: %w", err)
	}
	return users, nil
}

func (c *Client) postJSON(ctx context.Context, path string, payload any) (*http.Response, error) {
	jsonData, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewBuffer(jsonData))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	return c.httpClient.Do(req)
}
