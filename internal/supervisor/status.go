package supervisor

import "github.com/rickgao/kalshi-stream/internal/api"

// Status is the four-value exchange-status projection derived from
// the (exchange_active, trading_active) boolean pair returned by
// GET /exchange/status.
type Status string

const (
	ActiveTradingEnabled    Status = "ACTIVE_TRADING_ENABLED"
	ActiveTradingDisabled   Status = "ACTIVE_TRADING_DISABLED"
	InactiveTradingDisabled Status = "INACTIVE_TRADING_DISABLED"
	InvalidState            Status = "INVALID_STATE"
)

// deriveStatus maps the boolean pair to its named projection. The
// only combination not reachable in practice (exchange inactive but
// trading active) still needs a label, hence InvalidState.
func deriveStatus(resp api.ExchangeStatusResponse) Status {
	switch {
	case resp.ExchangeActive && resp.TradingActive:
		return ActiveTradingEnabled
	case resp.ExchangeActive && !resp.TradingActive:
		return ActiveTradingDisabled
	case !resp.ExchangeActive && !resp.TradingActive:
		return InactiveTradingDisabled
	default:
		return InvalidState
	}
}
