package mtf

import (
	"github.com/jwtly10/stratsim/internal/confluence"
	"github.com/jwtly10/stratsim/internal/logging"
	"github.com/jwtly10/stratsim/internal/types"
)

var mtfLog = logging.New("mtf")

type frame struct {
	tf    types.Timeframe
	ratio int
}

// Analyzer scores every canonical timeframe that can be built from the base
// interval and combines them into a confluence result.
type Analyzer struct {
	symbol     string
	thresholds confluence.Thresholds
	cache      *Cache
	frames     []frame
}

// NewAnalyzer prepares the timeframes at or above baseMinutes that are an
// exact multiple of it.
func NewAnalyzer(symbol string, baseMinutes int, th confluence.Thresholds) *Analyzer {
	a := &Analyzer{
		symbol:     symbol,
		thresholds: th,
		cache:      NewCache(),
	}
	if baseMinutes <= 0 {
		return a
	}
	for _, tf := range types.Timeframes {
		m := tf.Minutes()
		if m < baseMinutes || m%baseMinutes != 0 {
			continue
		}
		a.frames = append(a.frames, frame{tf: tf, ratio: m / baseMinutes})
	}
	return a
}

func (a *Analyzer) Timeframes() []types.Timeframe {
	out := make([]types.Timeframe, len(a.frames))
	for i, f := range a.frames {
		out[i] = f.tf
	}
	return out
}

// Analyze evaluates prefix, the base series up to and including the current
// bar. Timeframes without enough history are left out of the result.
func (a *Analyzer) Analyze(prefix []types.Bar) confluence.Result {
	var signals []confluence.TimeframeSignal
	for _, f := range a.frames {
		bars := a.cache.Aggregator(a.symbol, f.tf, f.ratio).Update(prefix, ScoreWindow)
		sig, ok := ScoreTimeframe(f.tf, bars)
		if !ok {
			continue
		}
		signals = append(signals, sig)
	}

	res := confluence.Score(signals, a.thresholds)
	mtfLog.Debug("Confluence evaluated",
		"symbol", a.symbol,
		"bars", len(prefix),
		"timeframes", len(signals),
		"signal", res.OverallSignal,
		"score", res.Score,
		"alignment", res.Alignment)
	return res
}
