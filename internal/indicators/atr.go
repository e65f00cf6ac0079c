package indicators

import (
	"math"

	"github.com/jwtly10/stratsim/internal/types"
)

const ATRPeriod = 14

// ATR averages the true range of the last period bars. Bars without a real
// high/low range (close-only data) fall back to ATRCloses.
func ATR(bars []types.Bar, period int) (float64, bool) {
	if period <= 0 || len(bars) < period+1 {
		return 0, false
	}
	if !HasRange(bars) {
		return ATRCloses(types.Closes(bars), period)
	}

	window := bars[len(bars)-period-1:]
	sum := 0.0
	for i := 1; i < len(window); i++ {
		sum += trueRange(window[i], window[i-1].Close)
	}
	return sum / float64(period), true
}

// ATRCloses is the simplified ATR: the mean absolute close-to-close change
// over the last period deltas.
func ATRCloses(values []float64, period int) (float64, bool) {
	if period <= 0 || len(values) < period+1 {
		return 0, false
	}

	window := values[len(values)-period-1:]
	sum := 0.0
	for i := 1; i < len(window); i++ {
		sum += math.Abs(window[i] - window[i-1])
	}
	return sum / float64(period), true
}

// HasRange reports whether any bar carries a high/low range distinct from a
// single price, i.e. whether real OHLC data is available.
func HasRange(bars []types.Bar) bool {
	for _, b := range bars {
		if b.High != b.Low {
			return true
		}
	}
	return false
}

// True Range = max of:
// 1. Current High - Current Low
// 2. |Current High - Previous Close|
// 3. |Current Low - Previous Close|
func trueRange(bar types.Bar, prevClose float64) float64 {
	tr1 := bar.High - bar.Low
	tr2 := math.Abs(bar.High - prevClose)
	tr3 := math.Abs(bar.Low - prevClose)
	return math.Max(tr1, math.Max(tr2, tr3))
}
