package indicators

import (
	"github.com/montanaflynn/stats"
)

const (
	BollingerPeriod     = 20
	BollingerMultiplier = 2.0
)

type BollingerBands struct {
	Upper  float64
	Middle float64
	Lower  float64
}

// PercentB locates price within the bands (0 = lower, 1 = upper). It is
// undefined when the bands have collapsed to a single price.
func (b BollingerBands) PercentB(price float64) (float64, bool) {
	width := b.Upper - b.Lower
	if width <= 0 {
		return 0, false
	}
	return (price - b.Lower) / width, true
}

// Bollinger computes SMA(period) +/- multiplier * population standard
// deviation over the same window.
func Bollinger(values []float64, period int, multiplier float64) (BollingerBands, bool) {
	if period <= 0 || len(values) < period {
		return BollingerBands{}, false
	}

	window := stats.Float64Data(values[len(values)-period:])
	middle, err := stats.Mean(window)
	if err != nil {
		return BollingerBands{}, false
	}
	sd, err := stats.StandardDeviationPopulation(window)
	if err != nil {
		return BollingerBands{}, false
	}

	return BollingerBands{
		Upper:  middle + multiplier*sd,
		Middle: middle,
		Lower:  middle - multiplier*sd,
	}, true
}
