package mtf

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwtly10/stratsim/internal/confluence"
	"github.com/jwtly10/stratsim/internal/indicators"
	"github.com/jwtly10/stratsim/internal/types"
)

func makeBars(n int, f func(i int) float64) []types.Bar {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	bars := make([]types.Bar, n)
	for i := range bars {
		c := f(i)
		bars[i] = types.Bar{
			Timestamp: start.Add(time.Duration(i) * 5 * time.Minute),
			Open:      c - 0.5, High: c + 1, Low: c - 1, Close: c, Volume: float64(10 + i),
		}
	}
	return bars
}

func TestAggregate(t *testing.T) {
	bars := []types.Bar{
		{Timestamp: time.Unix(0, 0), Open: 10, High: 12, Low: 9, Close: 11, Volume: 1},
		{Timestamp: time.Unix(60, 0), Open: 11, High: 15, Low: 10, Close: 14, Volume: 2},
		{Timestamp: time.Unix(120, 0), Open: 14, High: 14, Low: 7, Close: 8, Volume: 3},
		{Timestamp: time.Unix(180, 0), Open: 8, High: 9, Low: 6, Close: 9, Volume: 4},
		{Timestamp: time.Unix(240, 0), Open: 9, High: 10, Low: 8, Close: 10, Volume: 5},
	}

	got := Aggregate(bars, 3)

	require.Len(t, got, 2)
	assert.Equal(t, types.Bar{Timestamp: time.Unix(0, 0), Open: 10, High: 15, Low: 7, Close: 8, Volume: 6}, got[0])
	assert.Equal(t, types.Bar{Timestamp: time.Unix(180, 0), Open: 8, High: 10, Low: 6, Close: 10, Volume: 9}, got[1], "forming bucket")

	assert.Equal(t, bars, Aggregate(bars, 1))
}

func TestAggregator_MatchesAggregateOnEveryPrefix(t *testing.T) {
	bars := makeBars(50, func(i int) float64 { return 100 + float64(i%7) })
	agg := NewAggregator(4)

	for k := 0; k <= len(bars); k++ {
		assert.Equal(t, Aggregate(bars[:k], 4), agg.Update(bars[:k], 0), "prefix %d", k)
	}

	// Limited output keeps the most recent bars.
	full := Aggregate(bars, 4)
	assert.Equal(t, full[len(full)-5:], agg.Update(bars, 5))

	// A shorter prefix starts over.
	assert.Equal(t, Aggregate(bars[:9], 4), agg.Update(bars[:9], 0))
}

func TestAggregator_NoLookAhead(t *testing.T) {
	bars := makeBars(12, func(i int) float64 { return float64(i) })
	agg := NewAggregator(5)

	out := agg.Update(bars[:7], 0)

	require.Len(t, out, 2)
	assert.Equal(t, 6.0, out[1].Close, "forming bar ends at the prefix")
	assert.Equal(t, bars[6].High, out[1].High)
}

func TestCache_ReturnsSameAggregator(t *testing.T) {
	c := NewCache()

	a := c.Aggregator("BTCUSDT", types.TF15m, 3)
	b := c.Aggregator("BTCUSDT", types.TF15m, 3)
	other := c.Aggregator("ETHUSDT", types.TF15m, 3)

	assert.Same(t, a, b)
	assert.NotSame(t, a, other)
	assert.Equal(t, 2, c.Len())

	c.Reset()
	assert.Equal(t, 0, c.Len())
}

func TestScoreTimeframe_NeedsMinimumCandles(t *testing.T) {
	_, ok := ScoreTimeframe(types.TF5m, makeBars(MinCandles-1, func(i int) float64 { return 100 }))
	assert.False(t, ok)

	sig, ok := ScoreTimeframe(types.TF5m, makeBars(MinCandles, func(i int) float64 { return 100 }))
	require.True(t, ok)
	assert.Equal(t, 0.0, sig.Contributions.MA50Score, "MA50 unavailable contributes nothing")
	assert.Equal(t, 0.0, sig.Contributions.MACDScore, "MACD unavailable contributes nothing")
}

func TestScoreTimeframe_Contributions(t *testing.T) {
	tests := []struct {
		name   string
		bars   []types.Bar
		want   confluence.Contributions
		signal indicators.Trend
	}{
		{
			name: "falling",
			bars: makeBars(60, func(i int) float64 { return 200 - float64(i) }),
			want: confluence.Contributions{
				RSIScore: 2, MA20Score: -0.5, MA50Score: -0.5, RangeScore: 0.5, TotalScore: 1.5,
			},
			signal: indicators.TrendBullish,
		},
		{
			name: "rising",
			bars: makeBars(60, func(i int) float64 { return 100 + float64(i) }),
			want: confluence.Contributions{
				RSIScore: -2, MA20Score: 0.5, MA50Score: 0.5, RangeScore: -0.5, TotalScore: -1.5,
			},
			signal: indicators.TrendBearish,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sig, ok := ScoreTimeframe(types.TF1h, tt.bars)
			require.True(t, ok)

			assert.Equal(t, tt.want, sig.Contributions)
			assert.Equal(t, tt.signal, sig.Signal)
			assert.Equal(t, 30.0, sig.Strength)
			assert.Equal(t, types.TF1h, sig.Timeframe)
		})
	}
}

func TestScoreTimeframe_ContributionsSumToTotal(t *testing.T) {
	for n := MinCandles; n < 150; n += 7 {
		bars := makeBars(n, func(i int) float64 { return 100 + float64((i*13)%11) - float64(i%4) })
		sig, ok := ScoreTimeframe(types.TF15m, bars)
		require.True(t, ok)

		c := sig.Contributions
		assert.InDelta(t, c.TotalScore, c.RSIScore+c.MACDScore+c.MA20Score+c.MA50Score+c.RangeScore, 1e-12)
		assert.GreaterOrEqual(t, sig.Strength, 0.0)
		assert.LessOrEqual(t, sig.Strength, 100.0)
	}
}

func TestAnalyzer(t *testing.T) {
	a := NewAnalyzer("BTCUSDT", 5, confluence.DefaultThresholds())

	assert.Equal(t, []types.Timeframe{types.TF5m, types.TF15m, types.TF30m, types.TF1h, types.TF4h, types.TF1d}, a.Timeframes())

	bars := makeBars(100, func(i int) float64 { return 100 + float64(i%9) })
	var res confluence.Result
	for k := 1; k <= len(bars); k++ {
		res = a.Analyze(bars[:k])
	}

	// 5m: 100 bars, 15m: 34, 30m: 17, 1h: 9 (too few).
	require.Len(t, res.Timeframes, 3)
	assert.Equal(t, types.TF5m, res.Timeframes[0].Timeframe)
	assert.Equal(t, types.TF30m, res.Timeframes[2].Timeframe)
	assert.GreaterOrEqual(t, res.Alignment, 0.0)
	assert.LessOrEqual(t, res.Alignment, 1.0)

	fresh := NewAnalyzer("BTCUSDT", 5, confluence.DefaultThresholds()).Analyze(bars)
	assert.Equal(t, fresh, res, "incremental and one-shot analysis agree")
}

func TestAnalyzer_OddInterval(t *testing.T) {
	a := NewAnalyzer("X", 45, confluence.DefaultThresholds())
	assert.Empty(t, a.Timeframes(), "no canonical timeframe is a multiple of 45m")
	assert.Equal(t, confluence.Neutral, a.Analyze(makeBars(20, func(int) float64 { return 1 })).OverallSignal)
}
