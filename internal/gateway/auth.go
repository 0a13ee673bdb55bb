// internal/gateway/auth.go
package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"
)

// ErrUnauthorized is returned by Login when the gateway rejects the
// credentials outright. It is terminal: retrying the same password is useless.
var ErrUnauthorized = errors.New("gateway rejected credentials")

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type loginResponse struct {
	Token     string `json:"token"`
	ExpiresIn int    `json:"expires_in"`
}

// Login exchanges a username/password for a bearer token and its declared
// TTL. A missing expires_in falls back to 60 seconds, matching the gateway's
// own default token lifetime.
func (c *Client) Login(ctx context.Context, username, password string) (token string, ttl time.Duration, err error) {
	resp, err := c.postJSON(ctx, "/auth/login", loginRequest{Username: username, Password: password})
	if err != nil {
		return "", 0, err
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		var body loginResponse
		if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
			return "", 0, fmt.Errorf("login %s: decode response: %w", username, err)
		}
		if body.Token == "" {
			return "", 0, fmt.Errorf("login %s: response carried no token", username)
		}
		if body.ExpiresIn <= 0 {
			body.ExpiresIn = 60
		}
		return body.Token, time.Duration(body.ExpiresIn) * time.Second, nil
	case http.StatusUnauthorized:
		return "", 0, ErrUnauthorized
	default:
		return "", 0, fmt.Errorf("login %s: status %d", username, resp.StatusCode)
	}
}
