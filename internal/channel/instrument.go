package channel

import "strings"

// Quote currencies treated as interchangeable for USD-only index channels.
const (
	quoteUSD  = "USD"
	quoteUSDT = "USDT"
)

// NormalizeInstID returns the canonical instrument id for a channel.
// A bare base currency expands to its USDT pair. On USD-only index channels a
// USDT quote is rewritten to USD so a caller's pair and the exchange's echo agree.
func NormalizeInstID(instID, channel string) string {
	id := strings.ToUpper(strings.TrimSpace(instID))
	if id == "" {
		return ""
	}

	parts := strings.Split(id, "-")
	if len(parts) == 1 {
		parts = append(parts, quoteUSDT)
	}

	if USDIndexOnly(channel) && parts[1] == quoteUSDT {
		parts[1] = quoteUSD
	}
	return strings.Join(parts, "-")
}

// Equivalent reports whether two instrument ids name the same target. Bare
// bases compare against their USDT pair. USD and USDT quotes match only when
// quoteAlias is set, which callers do for USD-only index channels.
func Equivalent(a, b string, quoteAlias bool) bool {
	pa := splitInstID(a)
	pb := splitInstID(b)
	if len(pa) != len(pb) || pa[0] != pb[0] {
		return false
	}
	if pa[1] != pb[1] && !(quoteAlias && sameQuote(pa[1], pb[1])) {
		return false
	}
	for i := 2; i < len(pa); i++ {
		if pa[i] != pb[i] {
			return false
		}
	}
	return true
}

func sameQuote(a, b string) bool {
	if a == b {
		return true
	}
	alias := func(q string) bool { return q == quoteUSD || q == quoteUSDT }
	return alias(a) && alias(b)
}

func splitInstID(id string) []string {
	parts := strings.Split(strings.ToUpper(strings.TrimSpace(id)), "-")
	if len(parts) == 1 {
		parts = append(parts, quoteUSDT)
	}
	return parts
}

// InferInstType derives the OKX instrument type from the shape of an id:
// BTC-USDT is SPOT, BTC-USDT-SWAP is SWAP, BTC-USD-250328 is FUTURES and
// BTC-USD-250328-100000-C is OPTION.
func InferInstType(instID string) string {
	parts := strings.Split(strings.ToUpper(strings.TrimSpace(instID)), "-")
	switch {
	case len(parts) == 3 && parts[2] == "SWAP":
		return "SWAP"
	case len(parts) == 3:
		return "FUTURES"
	case len(parts) == 5:
		return "OPTION"
	}
	return InstTypeSpot
}
