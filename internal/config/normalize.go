package config

import (
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

var (
	upperFold = cases.Upper(language.Und)
	lowerFold = cases.Lower(language.Und)
)

// NormalizeTickers upper-cases every market ticker, matching the
// convention Kalshi's REST and WebSocket APIs expect (KXFED-24DEC, not
// kxfed-24dec). Guards against stray casing in hand-edited YAML.
func NormalizeTickers(tickers []string) []string {
	out := make([]string, len(tickers))
	for i, t := range tickers {
		out[i] = upperFold.String(t)
	}
	return out
}

// NormalizeChannels lower-cases every channel name, matching the
// lowercase_snake_case channel identifiers ("orderbook_delta",
// "market_lifecycle_v2") the subscribe command expects.
func NormalizeChannels(channels []string) []string {
	out := make([]string, len(channels))
	for i, c := range channels {
		out[i] = lowerFold.String(c)
	}
	return out
}
