package indicators

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwtly10/stratsim/internal/types"
)

func series(n int, f func(i int) float64) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = f(i)
	}
	return out
}

func closeBars(values []float64) []types.Bar {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	bars := make([]types.Bar, len(values))
	for i, v := range values {
		bars[i] = types.Bar{
			Timestamp: start.Add(time.Duration(i) * 5 * time.Minute),
			Open:      v, High: v, Low: v, Close: v, Volume: 100,
		}
	}
	return bars
}

func TestEMASeries_SeedsWithSMA(t *testing.T) {
	values := series(10, func(i int) float64 { return float64(i + 1) })

	got := EMASeries(values, 3)

	assert.Equal(t, []float64{2, 3, 4, 5, 6, 7, 8, 9}, got)
	assert.Nil(t, EMASeries(values[:2], 3), "EMA needs period values")
}

func TestEMA_IncrementalMatchesFromScratch(t *testing.T) {
	values := series(80, func(i int) float64 { return 100 + float64(i%7)*1.3 - float64(i%3) })
	period := 12

	full := EMASeries(values, period)
	require.Len(t, full, len(values)-period+1)

	stream := NewEMA(period)
	for k := 1; k <= len(values); k++ {
		stream.Update(values[k-1])

		v, ok := EMAValue(values[:k], period)
		if k < period {
			assert.False(t, ok)
			assert.False(t, stream.Ready())
			continue
		}
		require.True(t, ok)
		assert.Equal(t, full[k-period], v, "prefix %d", k)
		assert.Equal(t, v, stream.Value(), "stream at prefix %d", k)
	}
}

func TestSMA(t *testing.T) {
	v, ok := SMA([]float64{1, 2, 3, 4, 5}, 2)
	require.True(t, ok)
	assert.Equal(t, 4.5, v)

	_, ok = SMA([]float64{1}, 2)
	assert.False(t, ok)
}

func TestRSI(t *testing.T) {
	tests := []struct {
		name   string
		values []float64
		period int
		want   float64
		ok     bool
	}{
		{name: "not enough data", values: series(14, func(i int) float64 { return float64(i) }), period: 14},
		{name: "only gains", values: series(15, func(i int) float64 { return float64(i) }), period: 14, want: 100, ok: true},
		{name: "flat", values: series(15, func(int) float64 { return 5 }), period: 14, want: 100, ok: true},
		{name: "gain two loss one", values: []float64{10, 12, 11}, period: 2, want: 100 - 100/3.0, ok: true},
		{name: "only losses", values: []float64{10, 9, 8}, period: 2, want: 0, ok: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := RSI(tt.values, tt.period)
			assert.Equal(t, tt.ok, ok)
			assert.InDelta(t, tt.want, got, 1e-9)
		})
	}
}

func TestMACD_MinimumHistory(t *testing.T) {
	values := series(40, func(i int) float64 { return 100 + float64(i%5) })

	_, ok := MACD(values[:25])
	assert.False(t, ok, "line needs 26 points")

	res, ok := MACD(values[:30])
	require.True(t, ok)
	assert.False(t, res.HasSignal, "signal needs 35 points")

	res, ok = MACD(values[:35])
	require.True(t, ok)
	assert.True(t, res.HasSignal)
	assert.InDelta(t, res.MACD-res.Signal, res.Histogram, 1e-12)
}

func TestMACD_SignalIsEMAOfLine(t *testing.T) {
	values := series(60, func(i int) float64 { return 100 + float64(i%9)*0.7 })

	var line []float64
	for k := MACDSlow; k <= len(values); k++ {
		res, ok := MACD(values[:k])
		require.True(t, ok)
		line = append(line, res.MACD)
	}

	want, ok := EMAValue(line, MACDSignal)
	require.True(t, ok)

	res, _ := MACD(values)
	assert.InDelta(t, want, res.Signal, 1e-9)
}

func TestBollinger(t *testing.T) {
	bb, ok := Bollinger([]float64{2, 4, 4, 4, 5, 5, 7, 9}, 8, 2)
	require.True(t, ok)
	assert.InDelta(t, 5.0, bb.Middle, 1e-12)
	assert.InDelta(t, 9.0, bb.Upper, 1e-12)
	assert.InDelta(t, 1.0, bb.Lower, 1e-12)

	pb, ok := bb.PercentB(5)
	require.True(t, ok)
	assert.InDelta(t, 0.5, pb, 1e-12)

	flat, ok := Bollinger(series(20, func(int) float64 { return 3 }), 20, 2)
	require.True(t, ok)
	_, ok = flat.PercentB(3)
	assert.False(t, ok, "%B is undefined on collapsed bands")
}

func TestATR(t *testing.T) {
	v, ok := ATR(closeBars([]float64{1, 2, 4, 7}), 3)
	require.True(t, ok)
	assert.InDelta(t, 2.0, v, 1e-12, "close-only bars use mean absolute change")

	bars := []types.Bar{
		{Open: 10, High: 11, Low: 9, Close: 10},
		{Open: 10, High: 12, Low: 10, Close: 11},
		{Open: 11, High: 11, Low: 8, Close: 9},
	}
	v, ok = ATR(bars, 2)
	require.True(t, ok)
	// TR: max(2, 2, 0) = 2, max(3, 0, 3) = 3
	assert.InDelta(t, 2.5, v, 1e-12)

	_, ok = ATR(bars, 3)
	assert.False(t, ok)
}

func TestVWAP(t *testing.T) {
	bars := []types.Bar{
		{High: 12, Low: 8, Close: 10, Volume: 1},
		{High: 22, Low: 18, Close: 20, Volume: 3},
	}
	v, ok := VWAP(bars)
	require.True(t, ok)
	assert.InDelta(t, 17.5, v, 1e-12)

	_, ok = VWAP([]types.Bar{{High: 1, Low: 1, Close: 1}})
	assert.False(t, ok, "zero volume")
}

func TestSupportResistance(t *testing.T) {
	lv, ok := SupportResistance([]float64{10, 8, 9, 12, 11, 13, 10.5}, 7)
	require.True(t, ok)
	assert.Equal(t, 8.0, lv.Support)
	assert.Equal(t, 12.0, lv.Resistance)

	lv, ok = SupportResistance([]float64{1, 2, 3, 4, 5, 6}, 5)
	require.True(t, ok)
	assert.Equal(t, 2.0, lv.Support, "falls back to window minimum")
	assert.Equal(t, 6.0, lv.Resistance, "falls back to window maximum")

	_, ok = SupportResistance([]float64{1, 2, 3, 4, 5, 6}, 4)
	assert.False(t, ok, "lookback below minimum")
}

func TestClassifyRegime(t *testing.T) {
	tests := []struct {
		name   string
		values []float64
		want   Regime
	}{
		{name: "flat", values: series(40, func(int) float64 { return 100 }), want: RegimeRanging},
		{name: "zigzag", values: series(40, func(i int) float64 { return 100 + float64(i%2) }), want: RegimeChoppy},
		{name: "rising", values: series(40, func(i int) float64 { return 100 + float64(i) }), want: RegimeTrendingUp},
		{name: "falling", values: series(40, func(i int) float64 { return 200 - float64(i) }), want: RegimeTrendingDown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, ok := ClassifyRegime(closeBars(tt.values))
			require.True(t, ok)
			assert.Equal(t, tt.want, res.Regime)
			assert.GreaterOrEqual(t, res.Strength, 0.0)
			assert.LessOrEqual(t, res.Strength, 100.0)
		})
	}

	_, ok := ClassifyRegime(closeBars(series(RegimeMinBars-1, func(int) float64 { return 1 })))
	assert.False(t, ok)
}

func TestCompute_PropagatesMissingData(t *testing.T) {
	snap := Compute(closeBars(series(10, func(i int) float64 { return 100 + float64(i) })))

	assert.NotNil(t, snap.EMA5)
	assert.Nil(t, snap.RSI14)
	assert.Nil(t, snap.SMA20)
	assert.Nil(t, snap.SMA50)
	assert.Nil(t, snap.EMA12)
	assert.Nil(t, snap.MACD)
	assert.Nil(t, snap.MACDHistogram)
	assert.Nil(t, snap.BollingerUpper)
	assert.Nil(t, snap.ATR14)
	assert.Nil(t, snap.Support)
	assert.Nil(t, snap.RegimeStrength)
	assert.Empty(t, snap.Regime)
	assert.Equal(t, TrendNeutral, snap.Trend)
	assert.Equal(t, StrengthWeak, snap.Strength)
}

func TestCompute_RisingSeriesIsBullish(t *testing.T) {
	snap := Compute(closeBars(series(60, func(i int) float64 { return 100 + float64(i) })))

	require.NotNil(t, snap.SMA50)
	require.NotNil(t, snap.MACDHistogram)
	require.NotNil(t, snap.VWAP)
	assert.Equal(t, TrendBullish, snap.Trend)
	assert.Equal(t, RegimeTrendingUp, snap.Regime)
	assert.Equal(t, 159.0, snap.Price)
}

func BenchmarkCompute(b *testing.B) {
	bars := closeBars(series(500, func(i int) float64 { return 100 + float64(i%17) }))
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		Compute(bars)
	}
}
