package indicators

import "github.com/jwtly10/stratsim/internal/types"

// VWAP is the volume weighted typical price over all given bars.
func VWAP(bars []types.Bar) (float64, bool) {
	var tpv, vol float64
	for _, b := range bars {
		typical := (b.High + b.Low + b.Close) / 3.0
		tpv += typical * b.Volume
		vol += b.Volume
	}
	if vol <= 0 {
		return 0, false
	}
	return tpv / vol, true
}
