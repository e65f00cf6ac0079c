package strategy

import (
	"context"
	"fmt"
	"math"
	"strings"

	"github.com/jwtly10/stratsim/internal/indicators"
	"github.com/jwtly10/stratsim/internal/logging"
	"github.com/jwtly10/stratsim/internal/types"
)

var scoreLog = logging.New("score")

const histEpsilon = 1e-9

type ScoreConfig struct {
	EMAFast  int `yaml:"ema_fast" json:"emaFast"`
	EMASlow  int `yaml:"ema_slow" json:"emaSlow"`
	EMATrend int `yaml:"ema_trend" json:"emaTrend"`
	RSI      int `yaml:"rsi_period" json:"rsiPeriod"`

	// MinScore is the absolute floor the winning side must reach.
	MinScore float64 `yaml:"min_score" json:"minScore"`
	// DominanceRatio is how many times the losing side the winner must be.
	DominanceRatio float64 `yaml:"dominance_ratio" json:"dominanceRatio"`

	MomentumBars    int     `yaml:"momentum_bars" json:"momentumBars"`
	MomentumPercent float64 `yaml:"momentum_percent" json:"momentumPercent"`

	// GateEntries only lets buys through when confluence agrees.
	GateEntries bool `yaml:"gate_entries" json:"gateEntries"`

	// Window, when positive, caps the history fed to the indicators. EMAs
	// are then seeded inside the window instead of at the first candle.
	Window int `yaml:"window" json:"window"`
}

func DefaultScoreConfig() ScoreConfig {
	return ScoreConfig{
		EMAFast:         9,
		EMASlow:         21,
		EMATrend:        50,
		RSI:             indicators.RSIPeriod,
		MinScore:        3,
		DominanceRatio:  1.2,
		MomentumBars:    3,
		MomentumPercent: 0.5,
	}
}

// Score is the bull/bear point tally for one candle.
type Score struct {
	Bull    float64
	Bear    float64
	Reasons []string
}

func (s Score) Net() float64 {
	return s.Bull - s.Bear
}

func (s *Score) add(bull bool, points float64, reason string) {
	if bull {
		s.Bull += points
	} else {
		s.Bear += points
	}
	s.Reasons = append(s.Reasons, reason)
}

// ScorePolicy is the deterministic rule based policy. A side only wins when
// it clears MinScore and beats the other side by DominanceRatio.
type ScorePolicy struct {
	cfg ScoreConfig
}

func NewScorePolicy(cfg ScoreConfig) *ScorePolicy {
	return &ScorePolicy{cfg: cfg}
}

func (p *ScorePolicy) Config() ScoreConfig {
	return p.cfg
}

// Score tallies the indicator votes for the last bar of bars.
func (p *ScorePolicy) Score(bars []types.Bar) Score {
	var s Score
	if len(bars) == 0 {
		return s
	}
	if w := p.cfg.Window; w > 0 && len(bars) > w {
		bars = bars[len(bars)-w:]
	}

	closes := types.Closes(bars)
	price := closes[len(closes)-1]

	if rsi, ok := indicators.RSI(closes, p.cfg.RSI); ok {
		switch {
		case rsi < 30:
			s.add(true, 2, fmt.Sprintf("RSI oversold %.1f", rsi))
		case rsi < 40:
			s.add(true, 1, fmt.Sprintf("RSI low %.1f", rsi))
		case rsi > 70:
			s.add(false, 2, fmt.Sprintf("RSI overbought %.1f", rsi))
		case rsi > 60:
			s.add(false, 1, fmt.Sprintf("RSI high %.1f", rsi))
		}
	}

	fast, okFast := indicators.EMAValue(closes, p.cfg.EMAFast)
	slow, okSlow := indicators.EMAValue(closes, p.cfg.EMASlow)
	if okFast && okSlow {
		switch {
		case fast > slow:
			s.add(true, 2, "EMA fast above slow")
		case fast < slow:
			s.add(false, 2, "EMA fast below slow")
		}
	}

	if trend, ok := indicators.EMAValue(closes, p.cfg.EMATrend); ok {
		switch {
		case price > trend:
			s.add(true, 1, "price above trend EMA")
		case price < trend:
			s.add(false, 1, "price below trend EMA")
		}
	}

	if m, ok := indicators.MACD(closes); ok && m.HasSignal {
		switch {
		case m.Histogram > histEpsilon:
			s.add(true, 1, "MACD histogram positive")
		case m.Histogram < -histEpsilon:
			s.add(false, 1, "MACD histogram negative")
		}
	}

	if bb, ok := indicators.Bollinger(closes, indicators.BollingerPeriod, indicators.BollingerMultiplier); ok {
		if pb, ok := bb.PercentB(price); ok {
			switch {
			case pb <= 0.05:
				s.add(true, 1.5, "price at lower band")
			case pb >= 0.95:
				s.add(false, 1.5, "price at upper band")
			}
		}
	}

	if n := p.cfg.MomentumBars; n > 0 && len(closes) > n {
		ref := closes[len(closes)-1-n]
		if ref != 0 {
			change := (price - ref) / ref * 100
			switch {
			case change >= p.cfg.MomentumPercent:
				s.add(true, 1, fmt.Sprintf("momentum %+.2f%%", change))
			case change <= -p.cfg.MomentumPercent:
				s.add(false, 1, fmt.Sprintf("momentum %+.2f%%", change))
			}
		}
	}

	return s
}

// Signal turns a tally into an action given the current position. Buys are
// only proposed when flat and sells only when holding.
func (p *ScorePolicy) Signal(s Score, holding bool) Decision {
	switch {
	case !holding && p.dominates(s.Bull, s.Bear):
		return Decision{
			Action:     types.BUY,
			Confidence: confidence(s.Bull, s.Bear),
			Reasoning:  fmt.Sprintf("bull %.1f vs bear %.1f: %s", s.Bull, s.Bear, strings.Join(s.Reasons, ", ")),
		}
	case holding && p.dominates(s.Bear, s.Bull):
		return Decision{
			Action:     types.SELL,
			Confidence: confidence(s.Bear, s.Bull),
			Reasoning:  fmt.Sprintf("bear %.1f vs bull %.1f: %s", s.Bear, s.Bull, strings.Join(s.Reasons, ", ")),
		}
	}
	return Hold(fmt.Sprintf("no edge (bull %.1f, bear %.1f)", s.Bull, s.Bear))
}

func (p *ScorePolicy) dominates(winner, loser float64) bool {
	return winner >= p.cfg.MinScore && winner >= loser*p.cfg.DominanceRatio
}

func confidence(winner, loser float64) float64 {
	return math.Min(95, 50+10*(winner-loser))
}

func (p *ScorePolicy) Decide(_ context.Context, in Input) (Decision, error) {
	return p.decide(p.Score(in.Bars), in), nil
}

func (p *ScorePolicy) decide(s Score, in Input) Decision {
	d := p.Signal(s, in.Position != nil)

	if d.Action == types.BUY && p.cfg.GateEntries && in.Confluence != nil {
		if !in.Confluence.ShouldTrade || !in.Confluence.Bullish() {
			scoreLog.Debug("Entry blocked by confluence", "index", in.Index, "signal", in.Confluence.OverallSignal, "score", in.Confluence.Score)
			return Hold(fmt.Sprintf("confluence %s (score %.1f) blocks entry", in.Confluence.OverallSignal, in.Confluence.Score))
		}
	}

	scoreLog.Debug("Score evaluated", "index", in.Index, "bull", s.Bull, "bear", s.Bear, "action", d.Action)
	return d
}
