package marketdata

import (
	"context"
	"strings"
	"time"

	"github.com/jwtly10/stratsim/internal/oanda"
	"github.com/jwtly10/stratsim/internal/types"
)

// OandaSource fetches mid-price candles for FX and CFD instruments.
type OandaSource struct {
	client *oanda.Client
	now    func() time.Time
}

func NewOandaSource(client *oanda.Client) *OandaSource {
	return &OandaSource{client: client, now: time.Now}
}

func (s *OandaSource) FetchCandles(ctx context.Context, symbol string, intervalMinutes int, since time.Time) ([]types.Bar, error) {
	granularity, err := oanda.GranularityFromMinutes(intervalMinutes)
	if err != nil {
		return nil, err
	}

	bars, err := s.client.FetchBars(ctx, oanda.CandleRequest{
		Instrument:  Instrument(symbol),
		Granularity: granularity,
		From:        since,
		To:          s.now(),
	})
	if err != nil {
		return nil, err
	}
	return normalise(bars, since), nil
}

// Instrument maps a symbol such as "gbpusd" onto Oanda's "GBP_USD" form.
// Symbols that already carry an underscore are only upper-cased.
func Instrument(symbol string) oanda.InstrumentName {
	s := strings.ToUpper(strings.TrimSpace(symbol))
	if !strings.Contains(s, "_") && len(s) == 6 {
		s = s[:3] + "_" + s[3:]
	}
	return oanda.InstrumentName(s)
}
