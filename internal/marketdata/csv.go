package marketdata

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/gocarina/gocsv"

	"github.com/jwtly10/stratsim/internal/mtf"
	"github.com/jwtly10/stratsim/internal/types"
)

type candleRow struct {
	Timestamp string  `csv:"timestamp"`
	Open      float64 `csv:"open"`
	High      float64 `csv:"high"`
	Low       float64 `csv:"low"`
	Close     float64 `csv:"close"`
	Volume    float64 `csv:"volume"`
}

// CSVSource reads <Dir>/<SYMBOL>.csv. Files may hold a finer interval than
// requested, in which case candles are aggregated up.
type CSVSource struct {
	Dir string
}

func NewCSVSource(dir string) *CSVSource {
	return &CSVSource{Dir: dir}
}

func (s *CSVSource) FetchCandles(ctx context.Context, symbol string, intervalMinutes int, since time.Time) ([]types.Bar, error) {
	path := filepath.Join(s.Dir, strings.ToUpper(symbol)+".csv")
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open candles for %s: %w", symbol, err)
	}
	defer f.Close()

	var rows []*candleRow
	if err := gocsv.UnmarshalFile(f, &rows); err != nil {
		return nil, fmt.Errorf("error unmarshalling %s: %w", path, err)
	}

	bars := make([]types.Bar, 0, len(rows))
	for i, r := range rows {
		ts, err := parseTimestamp(r.Timestamp)
		if err != nil {
			return nil, fmt.Errorf("%s row %d: %w", path, i+2, err)
		}
		bars = append(bars, types.Bar{Timestamp: ts, Open: r.Open, High: r.High, Low: r.Low, Close: r.Close, Volume: r.Volume})
	}
	bars = normalise(bars, time.Time{})

	bars, err = resample(bars, intervalMinutes)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	bars = normalise(bars, since)

	slog.Info("Loaded candles from csv", "symbol", symbol, "file", path, "count", len(bars))
	return bars, nil
}

// resample aggregates bars up to intervalMinutes when the file holds a finer
// interval that divides it evenly.
func resample(bars []types.Bar, intervalMinutes int) ([]types.Bar, error) {
	if len(bars) < 2 || intervalMinutes <= 0 {
		return bars, nil
	}
	step := int(bars[1].Timestamp.Sub(bars[0].Timestamp) / time.Minute)
	switch {
	case step <= 0:
		return nil, fmt.Errorf("cannot infer candle interval")
	case step == intervalMinutes:
		return bars, nil
	case intervalMinutes%step != 0:
		return nil, fmt.Errorf("file interval %dm cannot build %dm candles", step, intervalMinutes)
	}
	ratio := intervalMinutes / step
	out := mtf.Aggregate(bars, ratio)
	if len(bars)%ratio != 0 {
		out = out[:len(out)-1] // incomplete last candle
	}
	return out, nil
}

// parseTimestamp accepts RFC 3339, "2006-01-02 15:04:05" (UTC) or unix
// seconds/milliseconds.
func parseTimestamp(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		if n > 1e12 {
			return time.UnixMilli(n).UTC(), nil
		}
		return time.Unix(n, 0).UTC(), nil
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02 15:04:05", "2006-01-02T15:04:05"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognised timestamp %q", s)
}
