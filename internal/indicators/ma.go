package indicators

import (
	"github.com/jwtly10/stratsim/internal/logging"
)

var emaLog = logging.New("ema")

// EMA is a streaming exponential moving average. The first value is the SMA
// of the first period prices, after which it recurses with alpha = 2/(period+1).
type EMA struct {
	period int
	alpha  float64
	value  float64
	seed   []float64
	ready  bool
}

func NewEMA(period int) *EMA {
	return &EMA{
		period: period,
		alpha:  2.0 / float64(period+1),
		seed:   make([]float64, 0, period),
	}
}

func (e *EMA) Update(price float64) {
	if !e.ready {
		e.seed = append(e.seed, price)
		if len(e.seed) < e.period {
			return
		}
		e.value = mean(e.seed)
		e.ready = true
		e.seed = nil
		emaLog.Debug("EMA seeded", "period", e.period, "value", e.value)
		return
	}

	e.value = (price * e.alpha) + (e.value * (1 - e.alpha))
}

func (e *EMA) Value() float64 {
	return e.value
}

func (e *EMA) Ready() bool {
	return e.ready
}

// EMASeries returns the EMA for every index from period-1 onwards, so
// series[k] belongs to values[k+period-1]. Nil when there is not enough data.
func EMASeries(values []float64, period int) []float64 {
	if period <= 0 || len(values) < period {
		return nil
	}

	ema := NewEMA(period)
	out := make([]float64, 0, len(values)-period+1)
	for _, v := range values {
		ema.Update(v)
		if ema.Ready() {
			out = append(out, ema.Value())
		}
	}
	return out
}

// EMAValue returns the EMA at the last index of values.
func EMAValue(values []float64, period int) (float64, bool) {
	series := EMASeries(values, period)
	if len(series) == 0 {
		return 0, false
	}
	return series[len(series)-1], true
}

// SMA is the unweighted mean of the last period values.
func SMA(values []float64, period int) (float64, bool) {
	if period <= 0 || len(values) < period {
		return 0, false
	}
	return mean(values[len(values)-period:]), true
}

func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}
