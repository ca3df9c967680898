// Package wire defines the JSON frame shapes exchanged with the Kalshi
// WebSocket feed (spec §6): client-issued commands and the typed
// server-issued payloads the dispatcher routes.
package wire

// SubscribeCmd is the client->server subscribe command.
//
//	{"id": N, "cmd": "subscribe", "params": {"channels": [...], "market_tickers": [...]}}
//
// MarketTickers is omitted entirely (not sent as an empty list) when
// subscribing to every market.
type SubscribeCmd struct {
	ID     int64           `json:"id"`
	Cmd    string          `json:"cmd"`
	Params SubscribeParams `json:"params"`
}

// SubscribeParams are the parameters of a subscribe command.
type SubscribeParams struct {
	Channels      []string `json:"channels"`
	MarketTickers []string `json:"market_tickers,omitempty"`
}

// NewSubscribeCmd builds a subscribe command. allMarkets omits MarketTickers
// entirely per spec §6.
func NewSubscribeCmd(id int64, channels, tickers []string, allMarkets bool) SubscribeCmd {
	params := SubscribeParams{Channels: channels}
	if !allMarkets {
		params.MarketTickers = tickers
	}
	return SubscribeCmd{ID: id, Cmd: "subscribe", Params: params}
}

// UpdateSubscriptionCmd is the client->server add/remove-markets command.
//
//	{"id": N, "cmd": "update_subscription", "params": {"sids": [SID], "market_tickers": [...], "action": "add_markets"|"delete_markets"}}
type UpdateSubscriptionCmd struct {
	ID     int64                    `json:"id"`
	Cmd    string                   `json:"cmd"`
	Params UpdateSubscriptionParams `json:"params"`
}

// UpdateSubscriptionParams are the parameters of an update_subscription command.
type UpdateSubscriptionParams struct {
	SIDs          []int64  `json:"sids"`
	MarketTickers []string `json:"market_tickers"`
	Action        string   `json:"action"` // "add_markets" or "delete_markets"
}

const (
	ActionAddMarkets    = "add_markets"
	ActionDeleteMarkets = "delete_markets"
)

// NewUpdateSubscriptionCmd builds an update_subscription command for a single sid.
func NewUpdateSubscriptionCmd(id, sid int64, tickers []string, action string) UpdateSubscriptionCmd {
	return UpdateSubscriptionCmd{
		ID:  id,
		Cmd: "update_subscription",
		Params: UpdateSubscriptionParams{
			SIDs:          []int64{sid},
			MarketTickers: tickers,
			Action:        action,
		},
	}
}

// UnsubscribeCmd is the client->server unsubscribe command. It deliberately
// carries no "id" field so the command-id space stays distinct from the
// subscription-id space tracked locally.
//
//	{"cmd": "unsubscribe", "params": {"sids": [SID, ...]}}
type UnsubscribeCmd struct {
	Cmd    string            `json:"cmd"`
	Params UnsubscribeParams `json:"params"`
}

// UnsubscribeParams are the parameters of an unsubscribe command.
type UnsubscribeParams struct {
	SIDs []int64 `json:"sids"`
}

// NewUnsubscribeCmd builds an unsubscribe command for one or more sids.
func NewUnsubscribeCmd(sids []int64) UnsubscribeCmd {
	return UnsubscribeCmd{Cmd: "unsubscribe", Params: UnsubscribeParams{SIDs: sids}}
}
