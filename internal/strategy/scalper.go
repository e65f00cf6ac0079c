package strategy

import (
	"context"
	"fmt"
	"math"

	"github.com/jwtly10/stratsim/internal/indicators"
	"github.com/jwtly10/stratsim/internal/logging"
	"github.com/jwtly10/stratsim/internal/types"
)

var watchLog = logging.New("watch")

const (
	PatternPosition       = "position"
	PatternScoreCross     = "score_cross"
	PatternBreakoutHigh   = "breakout_high"
	PatternBreakdownLow   = "breakdown_low"
	PatternVolumeSpike    = "volume_spike"
	PatternRangeExpansion = "range_expansion"
)

// WatchState is what the scalper remembers between candles.
type WatchState struct {
	Pattern   string  `json:"pattern"`
	Since     int     `json:"since"`
	LastScore float64 `json:"lastScore"`
}

type ScalperConfig struct {
	// TriggerScore is the net score magnitude whose crossing wakes the advisor.
	TriggerScore          float64 `yaml:"trigger_score" json:"triggerScore"`
	VolumeSpikeMultiplier float64 `yaml:"volume_spike_multiplier" json:"volumeSpikeMultiplier"`
	VolumeLookback        int     `yaml:"volume_lookback" json:"volumeLookback"`
	StructureLookback     int     `yaml:"structure_lookback" json:"structureLookback"`
	// ATRMultiplier flags candles whose body is larger than ATR times this.
	// Zero disables the check.
	ATRMultiplier float64 `yaml:"atr_multiplier" json:"atrMultiplier"`
}

func DefaultScalperConfig() ScalperConfig {
	return ScalperConfig{
		TriggerScore:          3,
		VolumeSpikeMultiplier: 2,
		VolumeLookback:        20,
		StructureLookback:     20,
		ATRMultiplier:         1.5,
	}
}

// ScalperPolicy watches the market cheaply and only runs the advised path on
// candles a local pre-filter finds interesting.
type ScalperPolicy struct {
	cfg     ScalperConfig
	score   *ScorePolicy
	advised *AdvisedPolicy
}

func NewScalperPolicy(cfg ScalperConfig, advised *AdvisedPolicy) *ScalperPolicy {
	return &ScalperPolicy{cfg: cfg, score: advised.score, advised: advised}
}

func (p *ScalperPolicy) ObserveCalls(fn func()) {
	p.advised.ObserveCalls(fn)
}

func (p *ScalperPolicy) Decide(ctx context.Context, in Input) (Decision, error) {
	net := p.score.Score(in.Bars).Net()
	prev := in.Watch

	pattern := p.detect(in, net, prev.LastScore)
	if pattern == "" {
		next := WatchState{LastScore: net}
		reason := "idle"
		if prev.Pattern != "" && in.Index-prev.Since <= p.cfg.StructureLookback {
			next.Pattern, next.Since = prev.Pattern, prev.Since
			reason = fmt.Sprintf("watching %s since candle %d", prev.Pattern, prev.Since)
		}
		d := Hold(reason)
		d.Watch = next
		return d, nil
	}

	next := WatchState{Pattern: pattern, Since: in.Index, LastScore: net}
	if pattern == prev.Pattern {
		next.Since = prev.Since
	}
	watchLog.Debug("Interesting candle", "index", in.Index, "pattern", pattern, "net_score", net, "since", next.Since)

	d, err := p.advised.Decide(ctx, in)
	if err != nil {
		return Decision{}, err
	}
	d.Watch = next
	return d, nil
}

// detect returns the first pre-filter that fires, or "" if the candle is not
// worth an advisor call.
func (p *ScalperPolicy) detect(in Input, net, lastNet float64) string {
	if in.Position != nil {
		return PatternPosition
	}

	if t := p.cfg.TriggerScore; t > 0 {
		if (net >= t && lastNet < t) || (net <= -t && lastNet > -t) {
			return PatternScoreCross
		}
	}

	bars := in.Bars
	cur := bars[len(bars)-1]
	prior := bars[:len(bars)-1]

	if n := p.cfg.StructureLookback; n > 0 && len(prior) >= n {
		window := prior[len(prior)-n:]
		high, low := window[0].High, window[0].Low
		for _, b := range window {
			high = math.Max(high, b.High)
			low = math.Min(low, b.Low)
		}
		switch {
		case cur.Close > high:
			return PatternBreakoutHigh
		case cur.Close < low:
			return PatternBreakdownLow
		}
	}

	if n := p.cfg.VolumeLookback; n > 0 && p.cfg.VolumeSpikeMultiplier > 0 && len(prior) >= n {
		sum := 0.0
		for _, b := range prior[len(prior)-n:] {
			sum += b.Volume
		}
		avg := sum / float64(n)
		if avg > 0 && cur.Volume > avg*p.cfg.VolumeSpikeMultiplier {
			return PatternVolumeSpike
		}
	}

	if p.cfg.ATRMultiplier > 0 && rangeExpansion(bars, p.cfg.ATRMultiplier) {
		return PatternRangeExpansion
	}

	return ""
}

// rangeExpansion reports whether the last candle body is larger than the ATR
// of the bars before it times multiplier.
func rangeExpansion(bars []types.Bar, multiplier float64) bool {
	prior := bars[max(0, len(bars)-indicators.ATRPeriod-2) : len(bars)-1]
	atr, ok := indicators.ATR(prior, indicators.ATRPeriod)
	if !ok || atr <= 0 {
		return false
	}

	cur := bars[len(bars)-1]
	body := math.Abs(cur.Close - cur.Open)
	threshold := atr * multiplier

	watchLog.Debug("Range expansion check", "timestamp", cur.Timestamp, "body", body, "atr", atr, "threshold", threshold)
	return body > threshold
}
