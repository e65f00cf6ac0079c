package indicators

const (
	MACDFast   = 12
	MACDSlow   = 26
	MACDSignal = 9

	// MACDSignalMinPoints is the history needed before the signal line and
	// histogram are reported.
	MACDSignalMinPoints = 35
)

type MACDResult struct {
	MACD      float64
	Signal    float64
	Histogram float64
	// HasSignal is false when only the MACD line is available.
	HasSignal bool
}

// MACD computes EMA12 - EMA26 and the EMA9 signal of that line. The signal
// EMA is fed incrementally with every MACD value as it is produced rather than
// being derived from the latest line value alone.
func MACD(values []float64) (MACDResult, bool) {
	if len(values) < MACDSlow {
		return MACDResult{}, false
	}

	fast := NewEMA(MACDFast)
	slow := NewEMA(MACDSlow)
	signal := NewEMA(MACDSignal)

	var line float64
	for _, v := range values {
		fast.Update(v)
		slow.Update(v)
		if !slow.Ready() {
			continue
		}
		line = fast.Value() - slow.Value()
		signal.Update(line)
	}

	res := MACDResult{MACD: line}
	if len(values) >= MACDSignalMinPoints && signal.Ready() {
		res.Signal = signal.Value()
		res.Histogram = line - res.Signal
		res.HasSignal = true
	}
	return res, true
}
