package backtest

import (
	"time"

	"github.com/jwtly10/stratsim/internal/types"
)

// Results is everything one run produced. It is not modified after Run returns.
type Results struct {
	Symbol          string              `json:"symbol"`
	IntervalMinutes int                 `json:"intervalMinutes"`
	From            time.Time           `json:"from"`
	To              time.Time           `json:"to"`
	Candles         int                 `json:"candles"`
	StartingBalance float64             `json:"startingBalance"`
	EndingBalance   float64             `json:"endingBalance"`
	Trades          []types.Trade       `json:"trades"`
	EquityCurve     []types.EquityPoint `json:"equityCurve"`
	// Returns holds the candle-over-candle equity return for every candle
	// after the first.
	Returns            []float64 `json:"-"`
	PeakEquity         float64   `json:"peakEquity"`
	MaxDrawdown        float64   `json:"maxDrawdown"`
	MaxDrawdownPercent float64   `json:"maxDrawdownPercent"`
	AdvisoryCalls      int       `json:"advisoryCalls"`

	stats *Statistics
}
