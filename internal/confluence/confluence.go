package confluence

import (
	"math"

	"github.com/jwtly10/stratsim/internal/indicators"
	"github.com/jwtly10/stratsim/internal/types"
)

const (
	StrongBuy  Signal = "strong_buy"
	Buy        Signal = "buy"
	Neutral    Signal = "neutral"
	Sell       Signal = "sell"
	StrongSell Signal = "strong_sell"
)

type Signal string

// Weights is the share each canonical timeframe carries in the consensus.
var Weights = map[types.Timeframe]float64{
	types.TF1m:  0.08,
	types.TF5m:  0.10,
	types.TF15m: 0.14,
	types.TF30m: 0.14,
	types.TF1h:  0.18,
	types.TF4h:  0.18,
	types.TF1d:  0.18,
}

// Contributions breaks a timeframe's total score down by source. The five
// parts always add up to TotalScore.
type Contributions struct {
	RSIScore   float64 `json:"rsiScore"`
	MACDScore  float64 `json:"macdScore"`
	MA20Score  float64 `json:"ma20Score"`
	MA50Score  float64 `json:"ma50Score"`
	RangeScore float64 `json:"rangeScore"`
	TotalScore float64 `json:"totalScore"`
}

type TimeframeSignal struct {
	Timeframe     types.Timeframe  `json:"timeframe"`
	Signal        indicators.Trend `json:"signal"`
	Strength      float64          `json:"strength"`
	Contributions Contributions    `json:"contributions"`
}

// Signed is the strength carrying the direction of the signal. Neutral
// timeframes count as zero.
func (s TimeframeSignal) Signed() float64 {
	switch s.Signal {
	case indicators.TrendBullish:
		return s.Strength
	case indicators.TrendBearish:
		return -s.Strength
	}
	return 0
}

type Thresholds struct {
	StrongScore     float64 `yaml:"strong_score" json:"strongScore"`
	StrongAlignment float64 `yaml:"strong_alignment" json:"strongAlignment"`
	Score           float64 `yaml:"score" json:"score"`
	TradeScore      float64 `yaml:"trade_score" json:"tradeScore"`
	TradeAlignment  float64 `yaml:"trade_alignment" json:"tradeAlignment"`
}

func DefaultThresholds() Thresholds {
	return Thresholds{
		StrongScore:     60,
		StrongAlignment: 0.8,
		Score:           30,
		TradeScore:      25,
		TradeAlignment:  0.6,
	}
}

type Result struct {
	OverallSignal Signal            `json:"overallSignal"`
	Score         float64           `json:"confluenceScore"`
	Timeframes    []TimeframeSignal `json:"timeframes"`
	// Alignment is the share (0..1) of evaluated timeframes in the majority direction.
	Alignment   float64          `json:"alignment"`
	Majority    indicators.Trend `json:"majority"`
	ShouldTrade bool             `json:"shouldTrade"`
}

// Bullish reports whether the overall signal is buy or strong_buy.
func (r Result) Bullish() bool {
	return r.OverallSignal == Buy || r.OverallSignal == StrongBuy
}

// Bearish reports whether the overall signal is sell or strong_sell.
func (r Result) Bearish() bool {
	return r.OverallSignal == Sell || r.OverallSignal == StrongSell
}

// Score combines per-timeframe signals into the weighted consensus. Only the
// timeframes present in signals contribute weight; timeframes that could not
// be evaluated must be left out by the caller rather than passed as neutral.
func Score(signals []TimeframeSignal, th Thresholds) Result {
	res := Result{
		OverallSignal: Neutral,
		Majority:      indicators.TrendNeutral,
		Timeframes:    signals,
	}
	if len(signals) == 0 {
		return res
	}

	var weighted, totalWeight float64
	counts := map[indicators.Trend]int{}
	for _, s := range signals {
		w := Weights[s.Timeframe]
		weighted += w * s.Signed()
		totalWeight += w
		counts[s.Signal]++
	}
	if totalWeight > 0 {
		res.Score = weighted / totalWeight
	}

	var agreeing int
	res.Majority, agreeing = majority(counts, res.Score)
	res.Alignment = float64(agreeing) / float64(len(signals))

	switch {
	case res.Score > th.StrongScore && res.Alignment >= th.StrongAlignment:
		res.OverallSignal = StrongBuy
	case res.Score > th.Score:
		res.OverallSignal = Buy
	case res.Score < -th.StrongScore && res.Alignment >= th.StrongAlignment:
		res.OverallSignal = StrongSell
	case res.Score < -th.Score:
		res.OverallSignal = Sell
	}

	res.ShouldTrade = math.Abs(res.Score) > th.TradeScore && res.Alignment >= th.TradeAlignment

	return res
}

// majority picks the most common direction and its count. On a tie the
// direction agreeing with the sign of the score wins, otherwise neutral.
func majority(counts map[indicators.Trend]int, score float64) (indicators.Trend, int) {
	best := 0
	for _, c := range counts {
		best = max(best, c)
	}

	bull := counts[indicators.TrendBullish] == best
	bear := counts[indicators.TrendBearish] == best
	neutral := counts[indicators.TrendNeutral] == best

	switch {
	case bull && !bear && !neutral:
		return indicators.TrendBullish, best
	case bear && !bull && !neutral:
		return indicators.TrendBearish, best
	case score > 0 && bull:
		return indicators.TrendBullish, best
	case score < 0 && bear:
		return indicators.TrendBearish, best
	}
	return indicators.TrendNeutral, best
}
