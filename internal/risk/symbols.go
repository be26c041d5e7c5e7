package risk

import "strings"

// SymbolDefaults are per-instrument stop bounds in pips.
type SymbolDefaults struct {
	PipSize   float64
	MinSLPips float64
	MaxSLPips float64
}

var symbolDefaults = map[string]SymbolDefaults{
	"EUR_USD": {PipSize: 0.0001, MinSLPips: 10, MaxSLPips: 50},
	"GBP_USD": {PipSize: 0.0001, MinSLPips: 12, MaxSLPips: 60},
	"USD_JPY": {PipSize: 0.01, MinSLPips: 10, MaxSLPips: 50},
	"AUD_USD": {PipSize: 0.0001, MinSLPips: 10, MaxSLPips: 50},
	"USD_CAD": {PipSize: 0.0001, MinSLPips: 10, MaxSLPips: 50},
	"NZD_USD": {PipSize: 0.0001, MinSLPips: 10, MaxSLPips: 50},
	"XAU_USD": {PipSize: 0.1, MinSLPips: 50, MaxSLPips: 200},
}

// normalizeSymbol maps EURUSD, EUR/USD and eur_usd to EUR_USD.
func normalizeSymbol(s string) string {
	s = strings.ToUpper(strings.NewReplacer("/", "", "_", "", "-", "").Replace(s))
	if len(s) == 6 {
		return s[:3] + "_" + s[3:]
	}
	return s
}

// LookupSymbol returns the known defaults for a symbol.
func LookupSymbol(symbol string) (SymbolDefaults, bool) {
	d, ok := symbolDefaults[normalizeSymbol(symbol)]
	return d, ok
}

// PipSize resolves the pip for an instrument: explicit spec, then known
// symbol, then 0.01 for JPY quotes and 0.0001 otherwise.
func PipSize(symbol string, explicit float64) float64 {
	if explicit > 0 {
		return explicit
	}
	if d, ok := LookupSymbol(symbol); ok {
		return d.PipSize
	}
	if strings.Contains(strings.ToUpper(symbol), "JPY") {
		return 0.01
	}
	return 0.0001
}

// PipValuePerLot is the account-currency value of one pip for one lot:
// tickValue / tickSize * pip, or contractSize * pip when tick data is missing.
func PipValuePerLot(tickValue, tickSize, contractSize, pip float64) float64 {
	if tickValue > 0 && tickSize > 0 {
		return tickValue / tickSize * pip
	}
	if contractSize <= 0 {
		contractSize = 100000
	}
	return contractSize * pip
}
