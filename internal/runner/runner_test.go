package runner

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwtly10/stratsim/internal/advisor"
	"github.com/jwtly10/stratsim/internal/backtest"
	"github.com/jwtly10/stratsim/internal/config"
	"github.com/jwtly10/stratsim/internal/marketdata"
	"github.com/jwtly10/stratsim/internal/strategy"
	"github.com/jwtly10/stratsim/internal/types"
)

var t0 = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

type fakeSource struct {
	mu     sync.Mutex
	series map[string][]types.Bar
	err    error
}

func (f *fakeSource) FetchCandles(_ context.Context, symbol string, _ int, _ time.Time) ([]types.Bar, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	return f.series[symbol], nil
}

type fakeAdvisor struct {
	mu    sync.Mutex
	calls int
}

func (f *fakeAdvisor) Advise(context.Context, string, string) (string, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	return `{"action":"buy","confidence":90,"reasoning":"ok"}`, nil
}

func rising(n int) []types.Bar {
	bars := make([]types.Bar, n)
	for i := range bars {
		c := 100 + float64(i)
		bars[i] = types.Bar{Timestamp: t0.Add(time.Duration(i) * 5 * time.Minute), Open: c, High: c, Low: c, Close: c, Volume: 10}
	}
	return bars
}

func baseConfig(symbols ...string) config.Config {
	cfg := config.Default()
	cfg.Symbols = symbols
	cfg.Risk.TakeProfitPercent = 50
	cfg.Risk.StopLossPercent = 0
	return cfg
}

func TestRunner_RunAll(t *testing.T) {
	src := &fakeSource{series: map[string][]types.Bar{
		"BTCUSDT": rising(60),
		"ETHUSDT": rising(80),
	}}

	results, err := New(baseConfig("BTCUSDT", "ETHUSDT"), src, nil).RunAll(context.Background())
	require.NoError(t, err)

	require.Len(t, results, 2)
	assert.Equal(t, 60, results["BTCUSDT"].Candles)
	assert.Equal(t, 80, results["ETHUSDT"].Candles)
	for _, r := range results {
		require.Len(t, r.Trades, 2)
		assert.Equal(t, types.BUY, r.Trades[0].Type)
	}
}

func TestRunner_RunAllFailsOnAnySymbol(t *testing.T) {
	src := &fakeSource{series: map[string][]types.Bar{
		"BTCUSDT": rising(60),
		"THIN":    rising(10),
	}}

	_, err := New(baseConfig("BTCUSDT", "THIN"), src, nil).RunAll(context.Background())

	assert.ErrorIs(t, err, backtest.ErrInsufficientData)
	assert.ErrorContains(t, err, "THIN")
}

func TestRunner_SourceErrorMarksProgress(t *testing.T) {
	r := New(baseConfig("BTCUSDT"), &fakeSource{err: errors.New("rate limited")}, nil)
	progress := r.NewProgress()

	_, err := r.Run(context.Background(), "BTCUSDT", progress)

	assert.ErrorContains(t, err, "rate limited")
	assert.Equal(t, backtest.PhaseError, progress.Snapshot().Phase)
	assert.NotEmpty(t, progress.Snapshot().RunID)
}

func TestRunner_AdvisedRunsGetTheirOwnAdvisor(t *testing.T) {
	cfg := baseConfig("BTCUSDT", "ETHUSDT")
	cfg.Strategy = strategy.KindAdvised
	cfg.Advisor.Endpoint = "http://advisor.invalid"

	var mu sync.Mutex
	var built []*fakeAdvisor
	src := &fakeSource{series: map[string][]types.Bar{"BTCUSDT": rising(60), "ETHUSDT": rising(60)}}

	r := New(cfg, src, nil).WithAdvisorFactory(func(advisor.Config) (advisor.Advisor, error) {
		a := &fakeAdvisor{}
		mu.Lock()
		built = append(built, a)
		mu.Unlock()
		return a, nil
	})

	results, err := r.RunAll(context.Background())
	require.NoError(t, err)

	require.Len(t, built, 2)
	for _, a := range built {
		assert.Equal(t, 1, a.calls)
	}
	assert.Equal(t, 1, results["BTCUSDT"].AdvisoryCalls)
}

func TestNewPolicy(t *testing.T) {
	cfg := baseConfig("BTCUSDT")

	tests := []struct {
		kind strategy.Kind
		want any
	}{
		{kind: strategy.KindScore, want: &strategy.ScorePolicy{}},
		{kind: strategy.KindAdvised, want: &strategy.AdvisedPolicy{}},
		{kind: strategy.KindScalper, want: &strategy.ScalperPolicy{}},
	}
	for _, tt := range tests {
		cfg.Strategy = tt.kind
		p, err := NewPolicy(cfg, nil)
		require.NoError(t, err)
		assert.IsType(t, tt.want, p)
	}

	cfg.Strategy = "grid"
	_, err := NewPolicy(cfg, nil)
	assert.ErrorIs(t, err, config.ErrInvalidConfig)
}

func TestNewSource(t *testing.T) {
	src, err := NewSource(config.DataConfig{Source: config.SourceCSV, Dir: "data"})
	require.NoError(t, err)
	assert.IsType(t, &marketdata.CSVSource{}, src)

	src, err = NewSource(config.DataConfig{Source: config.SourceOanda, OandaAccountID: "a", OandaAPIKey: "k"})
	require.NoError(t, err)
	assert.IsType(t, &marketdata.OandaSource{}, src)

	_, err = NewSource(config.DataConfig{Source: "ftp"})
	assert.ErrorIs(t, err, config.ErrInvalidConfig)
}
