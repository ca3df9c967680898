package wire

import "encoding/json"

// Envelope is used for a first-pass type extraction before the full
// frame is unmarshalled into its typed payload.
type Envelope struct {
	Type string          `json:"type"`
	ID   int64           `json:"id"`
	SID  int64           `json:"sid"`
	Msg  json.RawMessage `json:"msg"`
}

// Recognised frame types (spec §6).
const (
	TypeSubscribed        = "subscribed"
	TypeUnsubscribed      = "unsubscribed"
	TypeOK                = "ok"
	TypeError             = "error"
	TypeOrderbookSnapshot = "orderbook_snapshot"
	TypeOrderbookDelta    = "orderbook_delta"
	TypeTicker            = "ticker"
	TypeTrade             = "trade"
	TypeFill              = "fill"
	TypeMarketLifecycle   = "market_lifecycle"
)

// SubscribedMsg is the msg payload of a "subscribed" frame.
type SubscribedMsg struct {
	SID     int64  `json:"sid"`
	Channel string `json:"channel"`
}

// UnsubscribedMsg is the msg payload of an "unsubscribed" frame.
type UnsubscribedMsg struct {
	SIDs []int64 `json:"sids"`
}

// OKMsg is the msg payload of an "ok" acknowledgement frame, sent in
// response to update_subscription.
type OKMsg struct {
	MarketTickers []string `json:"market_tickers"`
}

// ErrorMsg is the msg payload of an "error" frame.
type ErrorMsg struct {
	Code    string `json:"code"`
	Message string `json:"msg"`
}

// PriceLevel is a single [price, quantity] pair from a snapshot payload.
// Kalshi sends these as two-element JSON arrays, not objects.
type PriceLevel struct {
	Price    int
	Quantity int
}

// UnmarshalJSON decodes a [price, quantity] pair.
func (l *PriceLevel) UnmarshalJSON(data []byte) error {
	var pair [2]int
	if err := json.Unmarshal(data, &pair); err != nil {
		return err
	}
	l.Price = pair[0]
	l.Quantity = pair[1]
	return nil
}

// MarshalJSON encodes a [price, quantity] pair.
func (l PriceLevel) MarshalJSON() ([]byte, error) {
	return json.Marshal([2]int{l.Price, l.Quantity})
}

// OrderbookSnapshotMsg is the msg payload of an "orderbook_snapshot" frame.
type OrderbookSnapshotMsg struct {
	Seq          *int64       `json:"seq"`
	MarketTicker string       `json:"market_ticker"`
	Yes          []PriceLevel `json:"yes"`
	No           []PriceLevel `json:"no"`
}

// OrderbookDeltaMsg is the msg payload of an "orderbook_delta" frame.
type OrderbookDeltaMsg struct {
	Seq          *int64 `json:"seq"`
	MarketTicker string `json:"market_ticker"`
	Price        int    `json:"price"`
	Delta        int    `json:"delta"`
	Side         string `json:"side"` // "yes" or "no"
}

// TickerMsg is the msg payload of a "ticker" frame.
type TickerMsg struct {
	MarketTicker       string `json:"market_ticker"`
	Price              int    `json:"price"`
	YesBid             int    `json:"yes_bid"`
	YesAsk             int    `json:"yes_ask"`
	Volume             int64  `json:"volume"`
	OpenInterest       int64  `json:"open_interest"`
	DollarVolume       int64  `json:"dollar_volume"`
	DollarOpenInterest int64  `json:"dollar_open_interest"`
	Ts                 int64  `json:"ts"` // unix seconds
}

// TradeMsg is the msg payload of a "trade" frame.
type TradeMsg struct {
	MarketTicker string `json:"market_ticker"`
	TakerSide    string `json:"taker_side"` // "yes" or "no"
	YesPrice     int    `json:"yes_price"`
	NoPrice      int    `json:"no_price"`
	Count        int64  `json:"count"`
	Ts           int64  `json:"ts"`
}

// LifecycleMsg is the msg payload of a "market_lifecycle" frame.
type LifecycleMsg struct {
	MarketTicker    string `json:"market_ticker"`
	IsDeactivated   bool   `json:"is_deactivated"`
	OpenTs          int64  `json:"open_ts"`
	CloseTs         int64  `json:"close_ts"`
	DeterminationTs *int64 `json:"determination_ts"`
	SettledTs       *int64 `json:"settled_ts"`
	Result          string `json:"result"` // "yes", "no", or ""
}
