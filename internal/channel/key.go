package channel

// Key is the canonical identifier used to deduplicate subscriptions and route
// events. Two subscriptions share a Key exactly when they share a wire channel.
// Wildcard keys carry InstType and leave InstID empty.
type Key struct {
	Channel  string
	InstID   string
	InstType string
}

// IsWildcard reports whether the key selects every instrument of a type.
func (k Key) IsWildcard() bool {
	return k.InstID == "" && k.InstType != ""
}

// String renders "candle1H:BTC-USDT" or, for wildcards, "tickers:SPOT:*".
func (k Key) String() string {
	if k.IsWildcard() {
		return k.Channel + ":" + k.InstType + ":*"
	}
	return k.Channel + ":" + k.InstID
}

// Arg returns the subscribe/unsubscribe argument for the key.
func (k Key) Arg() Arg {
	if k.IsWildcard() {
		return Arg{Channel: k.Channel, InstType: k.InstType}
	}
	return Arg{Channel: k.Channel, InstID: k.InstID}
}

// Class returns the connection class of the key's channel.
func (k Key) Class() Class {
	return ClassOf(k.Channel)
}
