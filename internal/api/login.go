package api

import (
	"context"
	"fmt"
)

// Login authenticates with email/password to retrieve a member id and
// session token, ported from original_source/src/pydiction/auth.py's
// login(). The key-based signed requests elsewhere in this client
// don't need this flow; it exists because spec.md's auth taxonomy
// includes email/password as an alternative credential source.
func (c *Client) Login(ctx context.Context, email, password string) (*LoginResponse, error) {
	req := struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}{Email: email, Password: password}

	var resp LoginResponse
	if err := c.post(ctx, "/login", req, &resp); err != nil {
		return nil, fmt.Errorf("login: %w", err)
	}
	return &resp, nil
}
