package oanda

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/jwtly10/stratsim/internal/types"
)

const (
	DefaultBaseURL       = "https://api-fxpractice.oanda.com"
	MaxCandlesPerRequest = 4000 // Limit is 5000 but we maintain a buffer

	// Oanda granularities
	M1  CandlestickGranularity = "M1"
	M5  CandlestickGranularity = "M5"
	M15 CandlestickGranularity = "M15"
	M30 CandlestickGranularity = "M30"
	H1  CandlestickGranularity = "H1"
	H4  CandlestickGranularity = "H4"
	D   CandlestickGranularity = "D"
)

var granularityMinutes = map[CandlestickGranularity]int{
	M1:  1,
	M5:  5,
	M15: 15,
	M30: 30,
	H1:  60,
	H4:  240,
	D:   1440,
}

func (g CandlestickGranularity) ToDuration() (time.Duration, error) {
	m, ok := granularityMinutes[g]
	if !ok {
		return 0, fmt.Errorf("invalid granularity: %s", g)
	}
	return time.Duration(m) * time.Minute, nil
}

func (g CandlestickGranularity) String() string {
	return string(g)
}

// GranularityFromMinutes maps a candle interval onto the matching Oanda
// granularity.
func GranularityFromMinutes(minutes int) (CandlestickGranularity, error) {
	for g, m := range granularityMinutes {
		if m == minutes {
			return g, nil
		}
	}
	return "", fmt.Errorf("no oanda granularity for %d minute candles", minutes)
}

type Client struct {
	accountID string
	http      *resty.Client
	now       func() time.Time
}

func NewClient(accountID, apiKey, baseURL string) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}

	http := resty.New().
		SetBaseURL(baseURL).
		SetAuthToken(apiKey).
		SetHeader("Accept-Datetime-Format", "RFC3339").
		SetTimeout(30 * time.Second)

	return &Client{accountID: accountID, http: http, now: time.Now}
}

// FetchBars will iteratively fetch all complete bars between 2 dates.
//
// Note: We are not limiting the number of candles returned here,
// so there is scope for memory issues if not used carefully.
func (c *Client) FetchBars(ctx context.Context, req CandleRequest) ([]types.Bar, error) {
	slog.Info("Initiating batched Oanda fetch", "instrument", req.Instrument, "from", req.From, "to", req.To, "period", req.Granularity.String())
	period, err := req.Granularity.ToDuration()
	if err != nil {
		return nil, err
	}

	if now := c.now(); req.To.After(now) {
		req.To = now
		slog.Warn("Adjusted 'To' time to current time as it was in the future", "newTo", req.To)
	}

	var allBars []types.Bar
	currentFrom := req.From

	for currentFrom.Before(req.To) {
		batchTo := currentFrom.Add(period * time.Duration(MaxCandlesPerRequest))
		if batchTo.After(req.To) {
			batchTo = req.To
		}

		batch, err := c.fetchHistoricCandles(ctx, CandleRequest{
			Instrument:  req.Instrument,
			Granularity: req.Granularity,
			From:        currentFrom,
			To:          batchTo,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to fetch candles between %s and %s: %w", currentFrom, batchTo, err)
		}

		slog.Debug("Found bars in latest fetch", "count", len(batch.Candles), "from", currentFrom, "to", batchTo)

		if len(batch.Candles) == 0 {
			break // No more data available
		}

		bars, err := candlesToBars(batch.Candles)
		if err != nil {
			return nil, fmt.Errorf("failed to convert candles to bars: %w", err)
		}
		if len(bars) == 0 {
			break // Only the forming candle was left
		}

		allBars = append(allBars, bars...)

		// includeFirst=false excludes the candle at from, so resume from the
		// last one we have.
		last := bars[len(bars)-1].Timestamp
		if !last.After(currentFrom) {
			break
		}
		currentFrom = last
	}

	slog.Info("Completed fetching all oanda bars", "totalBars", len(allBars))
	return allBars, nil
}

// candlesToBars converts mid prices and drops the still-forming candle.
func candlesToBars(candles []Candlestick) ([]types.Bar, error) {
	bars := make([]types.Bar, 0, len(candles))
	for _, candle := range candles {
		if !candle.Complete {
			continue
		}

		timestamp, err := time.Parse(time.RFC3339, candle.Time)
		if err != nil {
			return nil, fmt.Errorf("failed to parse candle time %s: %w", candle.Time, err)
		}

		prices := make([]float64, 4)
		for i, raw := range []PriceValue{candle.Mid.O, candle.Mid.H, candle.Mid.L, candle.Mid.C} {
			prices[i], err = strconv.ParseFloat(string(raw), 64)
			if err != nil {
				return nil, fmt.Errorf("failed to parse candle price %q at %s: %w", raw, candle.Time, err)
			}
		}

		bars = append(bars, types.Bar{
			Timestamp: timestamp.UTC(),
			Open:      prices[0],
			High:      prices[1],
			Low:       prices[2],
			Close:     prices[3],
			Volume:    float64(candle.Volume),
		})
	}
	return bars, nil
}

func (c *Client) fetchHistoricCandles(ctx context.Context, req CandleRequest) (*CandlestickResponse, error) {
	slog.Debug("Fetching historic candles", "instrument", req.Instrument, "from", req.From, "to", req.To)

	var candleResp CandlestickResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetPathParams(map[string]string{
			"account":    c.accountID,
			"instrument": string(req.Instrument),
		}).
		SetQueryParams(map[string]string{
			"granularity":  string(req.Granularity),
			"from":         strconv.FormatInt(req.From.Unix(), 10),
			"to":           strconv.FormatInt(req.To.Unix(), 10),
			"includeFirst": "false",
		}).
		SetResult(&candleResp).
		Get("/v3/accounts/{account}/instruments/{instrument}/candles")
	if err != nil {
		return nil, err
	}

	if resp.IsError() {
		slog.Error("Failed to fetch candles: API returned an error status",
			"statusCode", resp.StatusCode(),
			"rawResponse", resp.String())
		return nil, fmt.Errorf("failed to fetch candles: status code %d, API Response: %s", resp.StatusCode(), resp.String())
	}

	return &candleResp, nil
}
