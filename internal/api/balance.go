package api

import (
	"context"
	"fmt"
)

// GetBalance fetches the authenticated member's portfolio balance,
// ported from original_source/src/pydiction/auth.py's get_balance().
func (c *Client) GetBalance(ctx context.Context) (*BalanceResponse, error) {
	var resp BalanceResponse
	if err := c.get(ctx, "/portfolio/balance", nil, &resp); err != nil {
		return nil, fmt.Errorf("get balance: %w", err)
	}
	return &resp, nil
}
