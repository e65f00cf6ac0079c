package indicators

import (
	"math"

	"github.com/jwtly10/stratsim/internal/types"
)

const (
	TrendBullish Trend = "bullish"
	TrendBearish Trend = "bearish"
	TrendNeutral Trend = "neutral"
)

const (
	StrengthStrong   Strength = "strong"
	StrengthModerate Strength = "moderate"
	StrengthWeak     Strength = "weak"
)

const RSIPeriod = 14

type Trend string

type Strength string

// Snapshot is every indicator computable from a series ending at one index.
// A nil field means the series was too short for that indicator.
type Snapshot struct {
	Price float64 `json:"price"`

	RSI14  *float64 `json:"rsi14"`
	SMA20  *float64 `json:"sma20"`
	SMA50  *float64 `json:"sma50"`
	EMA5   *float64 `json:"ema5"`
	EMA12  *float64 `json:"ema12"`
	EMA20  *float64 `json:"ema20"`
	EMA26  *float64 `json:"ema26"`

	MACD          *float64 `json:"macd"`
	MACDSignal    *float64 `json:"macdSignal"`
	MACDHistogram *float64 `json:"macdHistogram"`

	BollingerUpper  *float64 `json:"bollingerUpper"`
	BollingerMiddle *float64 `json:"bollingerMiddle"`
	BollingerLower  *float64 `json:"bollingerLower"`

	ATR14      *float64 `json:"atr14"`
	VWAP       *float64 `json:"vwap"`
	Support    *float64 `json:"support"`
	Resistance *float64 `json:"resistance"`

	Trend    Trend    `json:"trend"`
	Strength Strength `json:"strength"`

	Regime         Regime   `json:"regime,omitempty"`
	RegimeStrength *float64 `json:"regimeStrength"`
}

// Compute builds the snapshot for the last bar of bars.
func Compute(bars []types.Bar) Snapshot {
	if len(bars) == 0 {
		return Snapshot{Trend: TrendNeutral, Strength: StrengthWeak}
	}

	closes := types.Closes(bars)
	s := Snapshot{Price: closes[len(closes)-1]}

	s.RSI14 = opt(RSI(closes, RSIPeriod))
	s.SMA20 = opt(SMA(closes, 20))
	s.SMA50 = opt(SMA(closes, 50))
	s.EMA5 = opt(EMAValue(closes, 5))
	s.EMA12 = opt(EMAValue(closes, 12))
	s.EMA20 = opt(EMAValue(closes, 20))
	s.EMA26 = opt(EMAValue(closes, 26))

	if m, ok := MACD(closes); ok {
		s.MACD = ptr(m.MACD)
		if m.HasSignal {
			s.MACDSignal = ptr(m.Signal)
			s.MACDHistogram = ptr(m.Histogram)
		}
	}

	if bb, ok := Bollinger(closes, BollingerPeriod, BollingerMultiplier); ok {
		s.BollingerUpper = ptr(bb.Upper)
		s.BollingerMiddle = ptr(bb.Middle)
		s.BollingerLower = ptr(bb.Lower)
	}

	s.ATR14 = opt(ATR(bars, ATRPeriod))
	s.VWAP = opt(VWAP(bars))

	if lv, ok := SupportResistance(closes, DefaultLevelsLookback); ok {
		s.Support = ptr(lv.Support)
		s.Resistance = ptr(lv.Resistance)
	}

	s.Trend, s.Strength = classifyTrend(s)

	if r, ok := ClassifyRegime(bars); ok {
		s.Regime = r.Regime
		s.RegimeStrength = ptr(r.Strength)
	}

	return s
}

// BollingerBands returns the bands held by the snapshot, if any.
func (s Snapshot) BollingerBands() (BollingerBands, bool) {
	if s.BollingerUpper == nil || s.BollingerMiddle == nil || s.BollingerLower == nil {
		return BollingerBands{}, false
	}
	return BollingerBands{
		Upper:  *s.BollingerUpper,
		Middle: *s.BollingerMiddle,
		Lower:  *s.BollingerLower,
	}, true
}

// classifyTrend votes price vs SMA20, SMA20 vs SMA50, EMA12 vs EMA26 and the
// MACD histogram sign. Absent indicators do not vote.
func classifyTrend(s Snapshot) (Trend, Strength) {
	if s.SMA20 == nil {
		return TrendNeutral, StrengthWeak
	}

	score := 0
	score += vote(s.Price, *s.SMA20)
	if s.SMA50 != nil {
		score += vote(*s.SMA20, *s.SMA50)
	}
	if s.EMA12 != nil && s.EMA26 != nil {
		score += vote(*s.EMA12, *s.EMA26)
	}
	if s.MACDHistogram != nil {
		score += vote(*s.MACDHistogram, 0)
	}

	trend := TrendNeutral
	switch {
	case score >= 2:
		trend = TrendBullish
	case score <= -2:
		trend = TrendBearish
	}

	strength := StrengthWeak
	switch abs := int(math.Abs(float64(score))); {
	case abs >= 3:
		strength = StrengthStrong
	case abs == 2:
		strength = StrengthModerate
	}

	return trend, strength
}

func vote(a, b float64) int {
	switch {
	case a > b:
		return 1
	case a < b:
		return -1
	}
	return 0
}

func opt(v float64, ok bool) *float64 {
	if !ok {
		return nil
	}
	return &v
}

func ptr(v float64) *float64 {
	return &v
}
