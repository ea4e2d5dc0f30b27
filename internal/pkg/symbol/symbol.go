// Package symbol normalizes trading pair spellings.
package symbol

import (
	"strings"
	"unicode"
)

type Symbol struct {
	Base  string
	Quote string
}

var quoteCurrencies = []string{"USDT", "BUSD", "USDC", "TUSD", "FDUSD", "USD", "BTC", "ETH", "BNB"}

// Compact strips everything but letters and digits and uppercases the rest:
// "btc/usdt" and "BTC-USDT" both become "BTCUSDT".
func Compact(s string) string {
	var b strings.Builder
	for _, r := range strings.ToUpper(strings.TrimSpace(s)) {
		if r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r)) {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// Parse splits a pair into base and quote. Exchange prefixes ("BINANCE:")
// are dropped.
func Parse(s string) Symbol {
	s = strings.ToUpper(strings.TrimSpace(s))
	if s == "" {
		return Symbol{}
	}
	if idx := strings.LastIndex(s, ":"); idx >= 0 {
		s = s[idx+1:]
	}
	for _, sep := range []string{"/", "-", "_"} {
		if parts := strings.SplitN(s, sep, 2); len(parts) == 2 {
			return Symbol{Base: Compact(parts[0]), Quote: Compact(parts[1])}
		}
	}
	s = Compact(s)
	for _, quote := range quoteCurrencies {
		if strings.HasSuffix(s, quote) && len(s) > len(quote) {
			return Symbol{Base: s[:len(s)-len(quote)], Quote: quote}
		}
	}
	return Symbol{}
}

// Binance renders the exchange spelling, "ETH/USDT" -> "ETHUSDT".
func Binance(s string) string {
	sym := Parse(s)
	if sym.Base == "" || sym.Quote == "" {
		return Compact(s)
	}
	return sym.Base + sym.Quote
}
