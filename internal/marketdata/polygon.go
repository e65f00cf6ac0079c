package marketdata

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	polygon "github.com/polygon-io/client-go/rest"
	"github.com/polygon-io/client-go/rest/models"

	"github.com/jwtly10/stratsim/internal/types"
)

// PolygonSource fetches aggregates from the Polygon REST API.
type PolygonSource struct {
	client *polygon.Client
	now    func() time.Time
}

func NewPolygonSource(apiKey string) *PolygonSource {
	return &PolygonSource{client: polygon.New(apiKey), now: time.Now}
}

func (s *PolygonSource) FetchCandles(ctx context.Context, symbol string, intervalMinutes int, since time.Time) ([]types.Bar, error) {
	multiplier, timespan, err := polygonTimespan(intervalMinutes)
	if err != nil {
		return nil, err
	}

	slog.Debug("Fetching polygon aggregates", "symbol", symbol, "multiplier", multiplier, "timespan", timespan, "since", since)

	params := models.ListAggsParams{
		Ticker:     symbol,
		Multiplier: multiplier,
		Timespan:   timespan,
		From:       models.Millis(since),
		To:         models.Millis(s.now()),
	}.WithOrder(models.Asc).WithAdjusted(true)

	iter := s.client.ListAggs(ctx, params)

	var bars []types.Bar
	for iter.Next() {
		bars = append(bars, aggToBar(iter.Item()))
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("failed to fetch polygon aggregates for %s: %w", symbol, err)
	}

	bars = normalise(bars, since)
	slog.Info("Loaded candles from polygon", "symbol", symbol, "count", len(bars))
	return bars, nil
}

func aggToBar(a models.Agg) types.Bar {
	return types.Bar{
		Timestamp: time.Time(a.Timestamp).UTC(),
		Open:      a.Open,
		High:      a.High,
		Low:       a.Low,
		Close:     a.Close,
		Volume:    a.Volume,
	}
}

// polygonTimespan picks the coarsest polygon timespan that divides the
// interval evenly.
func polygonTimespan(intervalMinutes int) (int, models.Timespan, error) {
	switch {
	case intervalMinutes <= 0:
		return 0, "", fmt.Errorf("invalid interval %d", intervalMinutes)
	case intervalMinutes%1440 == 0:
		return intervalMinutes / 1440, models.Day, nil
	case intervalMinutes%60 == 0:
		return intervalMinutes / 60, models.Hour, nil
	default:
		return intervalMinutes, models.Minute, nil
	}
}
