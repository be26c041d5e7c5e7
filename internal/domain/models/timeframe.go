package models

// Timeframes used for ATR and candle data.
const (
	TFM5  = "M5"
	TFM15 = "M15"
	TFH1  = "H1"
	TFH4  = "H4"
	TFD1  = "D1"
)

// IsValidTimeframe returns true if tf is a supported timeframe.
func IsValidTimeframe(tf string) bool {
	switch tf {
	case TFM5, TFM15, TFH1, TFH4, TFD1:
		return true
	default:
		return false
	}
}

// DefaultTimeframe returns the default timeframe.
func DefaultTimeframe() string { return TFH1 }

// NormalizeTimeframe converts raw string to a valid timeframe (or default).
func NormalizeTimeframe(s string) string {
	if IsValidTimeframe(s) {
		return s
	}
	return DefaultTimeframe()
}
