package types

import "time"

const (
	BUY  Action = "buy"
	SELL Action = "sell"
	HOLD Action = "hold"
)

// Bar is a single OHLCV candle. Bars are passed by value and never mutated
// once produced by a data source or the aggregator.
type Bar struct {
	Timestamp time.Time
	Open      float64
	High      float64
	Low       float64
	Close     float64
	Volume    float64
}

type Action string

func (a Action) Valid() bool {
	return a == BUY || a == SELL || a == HOLD
}

// Trade is one fill. ProfitLoss and ProfitLossPercent are only set on sells.
type Trade struct {
	Timestamp         time.Time `json:"timestamp"`
	Type              Action    `json:"type"`
	Price             float64   `json:"price"`
	Amount            float64   `json:"amount"`
	Value             float64   `json:"value"`
	Reason            string    `json:"reason"`
	ProfitLoss        *float64  `json:"profitLoss,omitempty"`
	ProfitLossPercent *float64  `json:"profitLossPercent,omitempty"`
}

type EquityPoint struct {
	Timestamp time.Time `json:"timestamp"`
	Equity    float64   `json:"equity"`
}

// Closes extracts the close series from bars.
func Closes(bars []Bar) []float64 {
	out := make([]float64, len(bars))
	for i, b := range bars {
		out[i] = b.Close
	}
	return out
}
