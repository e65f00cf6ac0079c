package indicators

import (
	"math"

	"github.com/markcheno/go-talib"

	"github.com/jwtly10/stratsim/internal/types"
)

const (
	RegimeTrendingUp   Regime = "trending_up"
	RegimeTrendingDown Regime = "trending_down"
	RegimeRanging      Regime = "ranging"
	RegimeChoppy       Regime = "choppy"
)

const (
	RegimeDXPeriod  = 14
	RegimeMinBars   = 2*RegimeDXPeriod + 2
	RegimeMaxWindow = 50

	choppyThreshold      = 0.6
	trendDXThreshold     = 25.0
	trendEfficiency      = 0.5
	narrowRangeRatio     = 0.01
	lowEfficiency        = 0.3
	weakTrendDXThreshold = 20.0
	weakTrendEfficiency  = 0.35
	weakChoppyThreshold  = 0.4
)

type Regime string

type RegimeResult struct {
	Regime   Regime
	Strength float64 // 0..100

	DX          float64
	Choppiness  float64
	Efficiency  float64
	NetMove     float64
	RangeToMean float64
}

// ClassifyRegime labels the recent market as trending, ranging or choppy.
// The directional index uses the bars' real high/low; close-only series get
// deterministic bands from consecutive closes.
func ClassifyRegime(bars []types.Bar) (RegimeResult, bool) {
	if len(bars) < RegimeMinBars {
		return RegimeResult{}, false
	}
	if len(bars) > RegimeMaxWindow {
		bars = bars[len(bars)-RegimeMaxWindow:]
	}

	closes := types.Closes(bars)
	highs, lows := priceBands(bars)

	res := RegimeResult{
		DX:         directionalIndex(highs, lows, closes),
		Choppiness: choppiness(closes),
	}

	low, high := closes[0], closes[0]
	for _, c := range closes {
		low = math.Min(low, c)
		high = math.Max(high, c)
	}
	span := high - low
	res.NetMove = closes[len(closes)-1] - closes[0]
	if span > 0 {
		res.Efficiency = math.Abs(res.NetMove) / span
	}
	if m := mean(closes); m != 0 {
		res.RangeToMean = span / m
	}

	switch {
	case res.Choppiness > choppyThreshold:
		res.Regime = RegimeChoppy
		res.Strength = res.Choppiness * 100
	case res.DX > trendDXThreshold && res.Efficiency > trendEfficiency:
		res.Regime = trendDirection(res.NetMove)
		res.Strength = math.Min(100, res.DX)
	case res.RangeToMean < narrowRangeRatio || res.Efficiency < lowEfficiency:
		res.Regime = RegimeRanging
		res.Strength = (1 - res.Efficiency) * 100
	case res.DX > weakTrendDXThreshold && res.Efficiency > weakTrendEfficiency:
		res.Regime = trendDirection(res.NetMove)
		res.Strength = math.Min(100, res.DX)
	case res.Choppiness > weakChoppyThreshold:
		res.Regime = RegimeChoppy
		res.Strength = res.Choppiness * 100
	default:
		res.Regime = RegimeRanging
		res.Strength = (1 - res.Efficiency) * 100
	}

	return res, true
}

func trendDirection(netMove float64) Regime {
	if netMove < 0 {
		return RegimeTrendingDown
	}
	return RegimeTrendingUp
}

func priceBands(bars []types.Bar) ([]float64, []float64) {
	highs := make([]float64, len(bars))
	lows := make([]float64, len(bars))

	if HasRange(bars) {
		for i, b := range bars {
			highs[i] = b.High
			lows[i] = b.Low
		}
		return highs, lows
	}

	for i, b := range bars {
		highs[i], lows[i] = b.Close, b.Close
		if i > 0 {
			highs[i] = math.Max(b.Close, bars[i-1].Close)
			lows[i] = math.Min(b.Close, bars[i-1].Close)
		}
	}
	return highs, lows
}

func directionalIndex(highs, lows, closes []float64) float64 {
	dx := talib.Dx(highs, lows, closes, RegimeDXPeriod)
	if len(dx) == 0 {
		return 0
	}
	v := dx[len(dx)-1]
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}

// choppiness is the fraction of consecutive non-zero moves that flip direction.
func choppiness(closes []float64) float64 {
	if len(closes) < 3 {
		return 0
	}

	reversals := 0
	pairs := 0
	for i := 2; i < len(closes); i++ {
		prev := closes[i-1] - closes[i-2]
		cur := closes[i] - closes[i-1]
		pairs++
		if prev*cur < 0 {
			reversals++
		}
	}
	return float64(reversals) / float64(pairs)
}
