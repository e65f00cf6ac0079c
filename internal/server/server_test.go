package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwtly10/stratsim/internal/backtest"
	"github.com/jwtly10/stratsim/internal/config"
	"github.com/jwtly10/stratsim/internal/types"
)

type fakeSource struct {
	bars map[string][]types.Bar
}

func (f fakeSource) FetchCandles(_ context.Context, symbol string, _ int, _ time.Time) ([]types.Bar, error) {
	return f.bars[symbol], nil
}

func rising(n int) []types.Bar {
	t0 := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	bars := make([]types.Bar, n)
	for i := range bars {
		c := 100 + float64(i)
		bars[i] = types.Bar{Timestamp: t0.Add(time.Duration(i) * 5 * time.Minute), Open: c, High: c, Low: c, Close: c, Volume: 10}
	}
	return bars
}

func newTestServer(t *testing.T) (*Server, *httptest.Server) {
	base := config.Default()
	base.Risk.StopLossPercent = 0
	base.Risk.TakeProfitPercent = 50

	s := New(context.Background(), base, fakeSource{bars: map[string][]types.Bar{
		"BTCUSDT": rising(60),
		"THIN":    rising(5),
	}})
	srv := httptest.NewServer(s.Router())
	t.Cleanup(srv.Close)
	return s, srv
}

func post(t *testing.T, url, body string) *http.Response {
	t.Helper()
	resp, err := http.Post(url+"/backtests", "application/json", strings.NewReader(body))
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func get(t *testing.T, url string, out any) int {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	if out != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

func TestServer_RunLifecycle(t *testing.T) {
	s, srv := newTestServer(t)

	resp := post(t, srv.URL, `{"symbols":["BTCUSDT"],"intervalMinutes":5}`)
	require.Equal(t, http.StatusAccepted, resp.StatusCode)

	var created []createdRun
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&created))
	require.Len(t, created, 1)
	assert.Equal(t, "BTCUSDT", created[0].Symbol)

	s.Wait()

	var run struct {
		Progress   backtest.ProgressSnapshot `json:"progress"`
		Statistics backtest.Statistics       `json:"statistics"`
		Error      string                    `json:"error"`
	}
	require.Equal(t, http.StatusOK, get(t, srv.URL+"/backtests/"+created[0].ID, &run))
	assert.Equal(t, backtest.PhaseCompleted, run.Progress.Phase)
	assert.Equal(t, 100, run.Progress.Percent)
	assert.Equal(t, 1, run.Statistics.TotalTrades)
	assert.Empty(t, run.Error)

	var trades []types.Trade
	require.Equal(t, http.StatusOK, get(t, srv.URL+"/backtests/"+created[0].ID+"/trades", &trades))
	require.Len(t, trades, 2)
	assert.Equal(t, types.BUY, trades[0].Type)
	assert.Equal(t, "end of backtest", trades[1].Reason)
}

func TestServer_FailedRun(t *testing.T) {
	s, srv := newTestServer(t)

	resp := post(t, srv.URL, `{"symbols":["THIN"]}`)
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	var created []createdRun
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&created))

	s.Wait()

	var run struct {
		Progress backtest.ProgressSnapshot `json:"progress"`
		Error    string                    `json:"error"`
	}
	require.Equal(t, http.StatusOK, get(t, srv.URL+"/backtests/"+created[0].ID, &run))
	assert.Equal(t, backtest.PhaseError, run.Progress.Phase)
	assert.Contains(t, run.Error, "need at least 30")

	assert.Equal(t, http.StatusConflict, get(t, srv.URL+"/backtests/"+created[0].ID+"/trades", nil))
}

func TestServer_BadRequests(t *testing.T) {
	_, srv := newTestServer(t)

	assert.Equal(t, http.StatusBadRequest, post(t, srv.URL, `{not json`).StatusCode)
	assert.Equal(t, http.StatusBadRequest, post(t, srv.URL, `{"symbols":[]}`).StatusCode)
	assert.Equal(t, http.StatusBadRequest, post(t, srv.URL, `{"symbols":["BTCUSDT"],"strategy":"grid"}`).StatusCode)

	assert.Equal(t, http.StatusNotFound, get(t, srv.URL+"/backtests/does-not-exist", nil))
	assert.Equal(t, http.StatusNotFound, get(t, srv.URL+"/backtests/does-not-exist/trades", nil))
}
