// Package api provides the Kalshi REST API client. WebSocket dialing
// lives in internal/connection, not here.
//
// REST endpoints:
//   - Production: https://api.elections.kalshi.com/trade-api/v2
//   - Demo: https://demo-api.kalshi.co/trade-api/v2
package api
