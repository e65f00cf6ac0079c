package mtf

import (
	"math"

	"github.com/jwtly10/stratsim/internal/confluence"
	"github.com/jwtly10/stratsim/internal/indicators"
	"github.com/jwtly10/stratsim/internal/types"
)

const (
	// MinCandles is the aggregated history a timeframe needs to be scored.
	MinCandles = 15
	// ScoreWindow caps the aggregated bars fed to the indicators.
	ScoreWindow = 120

	rangeLookback = 10
	histEpsilon   = 1e-9
)

// ScoreTimeframe turns the aggregated bars of one timeframe into a signal. It
// returns false when there are fewer than MinCandles bars.
func ScoreTimeframe(tf types.Timeframe, bars []types.Bar) (confluence.TimeframeSignal, bool) {
	if len(bars) < MinCandles {
		return confluence.TimeframeSignal{}, false
	}
	if len(bars) > ScoreWindow {
		bars = bars[len(bars)-ScoreWindow:]
	}

	closes := types.Closes(bars)
	price := closes[len(closes)-1]

	var c confluence.Contributions

	if rsi, ok := indicators.RSI(closes, indicators.RSIPeriod); ok {
		switch {
		case rsi < 30:
			c.RSIScore = 2
		case rsi < 40:
			c.RSIScore = 1
		case rsi > 70:
			c.RSIScore = -2
		case rsi > 60:
			c.RSIScore = -1
		}
	}

	if m, ok := indicators.MACD(closes); ok && m.HasSignal {
		switch {
		case m.Histogram > histEpsilon:
			c.MACDScore = 1.5
		case m.Histogram < -histEpsilon:
			c.MACDScore = -1.5
		}
	}

	if ma, ok := indicators.SMA(closes, 20); ok {
		c.MA20Score = side(price, ma)
	}
	if ma, ok := indicators.SMA(closes, 50); ok {
		c.MA50Score = side(price, ma)
	}

	c.RangeScore = rangePosition(bars[len(bars)-min(rangeLookback, len(bars)):], price)

	c.TotalScore = c.RSIScore + c.MACDScore + c.MA20Score + c.MA50Score + c.RangeScore

	sig := confluence.TimeframeSignal{
		Timeframe:     tf,
		Signal:        indicators.TrendNeutral,
		Strength:      math.Min(100, math.Abs(c.TotalScore)*20),
		Contributions: c,
	}
	switch {
	case c.TotalScore > 1:
		sig.Signal = indicators.TrendBullish
	case c.TotalScore < -1:
		sig.Signal = indicators.TrendBearish
	}
	return sig, true
}

func side(price, ma float64) float64 {
	switch {
	case price > ma:
		return 0.5
	case price < ma:
		return -0.5
	}
	return 0
}

// rangePosition favours the bottom fifth of the recent range and penalises
// the top fifth.
func rangePosition(window []types.Bar, price float64) float64 {
	low, high := window[0].Low, window[0].High
	for _, b := range window {
		low = math.Min(low, b.Low)
		high = math.Max(high, b.High)
	}
	if high <= low {
		return 0
	}

	pos := (price - low) / (high - low)
	switch {
	case pos <= 0.2:
		return 0.5
	case pos >= 0.8:
		return -0.5
	}
	return 0
}
