package indicators

import "math"

const (
	MinLevelsLookback     = 5
	DefaultLevelsLookback = 20
)

type Levels struct {
	Support    float64
	Resistance float64
}

// SupportResistance scans the last lookback values for local minima and
// maxima (strictly below/above both neighbours). Support is the nearest local
// minimum below the current price, falling back to the window minimum;
// resistance is the nearest local maximum above it, falling back to the window
// maximum.
func SupportResistance(values []float64, lookback int) (Levels, bool) {
	if lookback < MinLevelsLookback || len(values) < lookback {
		return Levels{}, false
	}

	window := values[len(values)-lookback:]
	price := window[len(window)-1]

	low, high := window[0], window[0]
	for _, v := range window {
		low = math.Min(low, v)
		high = math.Max(high, v)
	}

	support, resistance := low, high
	foundSupport, foundResistance := false, false
	for i := 1; i < len(window)-1; i++ {
		v := window[i]
		if v < window[i-1] && v < window[i+1] && v < price {
			if !foundSupport || v > support {
				support = v
				foundSupport = true
			}
		}
		if v > window[i-1] && v > window[i+1] && v > price {
			if !foundResistance || v < resistance {
				resistance = v
				foundResistance = true
			}
		}
	}

	return Levels{Support: support, Resistance: resistance}, true
}
