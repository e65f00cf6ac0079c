package strategy

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwtly10/stratsim/internal/account"
	"github.com/jwtly10/stratsim/internal/confluence"
	"github.com/jwtly10/stratsim/internal/types"
)

func closeBars(n int, f func(i int) float64) []types.Bar {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	bars := make([]types.Bar, n)
	for i := range bars {
		c := f(i)
		bars[i] = types.Bar{
			Timestamp: start.Add(time.Duration(i) * 5 * time.Minute),
			Open:      c, High: c, Low: c, Close: c, Volume: 100,
		}
	}
	return bars
}

func rising(i int) float64 { return 100 + float64(i) }
func flat(int) float64     { return 100 }

func input(bars []types.Bar, index int) Input {
	return Input{Symbol: "BTCUSDT", Bars: bars[:index+1], Index: index}
}

type fakeAdvisor struct {
	reply string
	err   error
	calls int
}

func (f *fakeAdvisor) Advise(_ context.Context, contextText string, model string) (string, error) {
	f.calls++
	return f.reply, f.err
}

func TestScorePolicy_FlatSeriesHolds(t *testing.T) {
	p := NewScorePolicy(DefaultScoreConfig())
	bars := closeBars(100, flat)

	for i := range bars {
		d, err := p.Decide(context.Background(), input(bars, i))
		require.NoError(t, err)
		assert.Equal(t, types.HOLD, d.Action, "candle %d", i)
	}
}

func TestScorePolicy_RisingSeriesBuysWhenSlowEMAIsReady(t *testing.T) {
	p := NewScorePolicy(DefaultScoreConfig())
	bars := closeBars(60, rising)

	first := -1
	for i := range bars {
		d, err := p.Decide(context.Background(), input(bars, i))
		require.NoError(t, err)
		if d.Action == types.BUY {
			first = i
			assert.Equal(t, 60.0, d.Confidence)
			break
		}
	}
	assert.Equal(t, 20, first)
}

func TestScorePolicy_Signal(t *testing.T) {
	p := NewScorePolicy(DefaultScoreConfig())

	tests := []struct {
		name    string
		score   Score
		holding bool
		want    types.Action
		conf    float64
	}{
		{name: "below floor", score: Score{Bull: 2}, want: types.HOLD},
		{name: "not dominant", score: Score{Bull: 3, Bear: 2.6}, want: types.HOLD},
		{name: "buy", score: Score{Bull: 3, Bear: 2}, want: types.BUY, conf: 60},
		{name: "confidence capped", score: Score{Bull: 10}, want: types.BUY, conf: 95},
		{name: "no buy while holding", score: Score{Bull: 5}, holding: true, want: types.HOLD},
		{name: "sell while holding", score: Score{Bull: 1, Bear: 4}, holding: true, want: types.SELL, conf: 80},
		{name: "no sell while flat", score: Score{Bear: 5}, want: types.HOLD},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := p.Signal(tt.score, tt.holding)
			assert.Equal(t, tt.want, d.Action)
			if tt.want != types.HOLD {
				assert.Equal(t, tt.conf, d.Confidence)
			}
		})
	}
}

func TestScorePolicy_ConfluenceGate(t *testing.T) {
	cfg := DefaultScoreConfig()
	cfg.GateEntries = true
	p := NewScorePolicy(cfg)
	bars := closeBars(60, rising)

	in := input(bars, 20)
	in.Confluence = &confluence.Result{OverallSignal: confluence.Sell, Score: -40}
	d, err := p.Decide(context.Background(), in)
	require.NoError(t, err)
	assert.Equal(t, types.HOLD, d.Action)

	in.Confluence = &confluence.Result{OverallSignal: confluence.Buy, Score: 40, Alignment: 1, ShouldTrade: true}
	d, err = p.Decide(context.Background(), in)
	require.NoError(t, err)
	assert.Equal(t, types.BUY, d.Action)
}

func TestAdvisedPolicy(t *testing.T) {
	bars := closeBars(60, rising)

	tests := []struct {
		name    string
		advisor *fakeAdvisor
		index   int
		action  types.Action
		conf    float64
		calls   int
	}{
		{
			name:    "no signal no call",
			advisor: &fakeAdvisor{reply: `{"action":"buy","confidence":90}`},
			index:   10,
			action:  types.HOLD,
			calls:   0,
		},
		{
			name:    "advisor raises confidence",
			advisor: &fakeAdvisor{reply: `{"action":"buy","confidence":85,"reasoning":"trend"}`},
			index:   20,
			action:  types.BUY,
			conf:    85,
			calls:   1,
		},
		{
			name:    "advisor cannot lower confidence",
			advisor: &fakeAdvisor{reply: `{"action":"buy","confidence":55}`},
			index:   20,
			action:  types.BUY,
			conf:    60,
			calls:   1,
		},
		{
			name:    "advisor cannot change action",
			advisor: &fakeAdvisor{reply: `{"action":"sell","confidence":90}`},
			index:   20,
			action:  types.BUY,
			conf:    90,
			calls:   1,
		},
		{
			name:    "low confidence vetoes",
			advisor: &fakeAdvisor{reply: `{"action":"buy","confidence":30}`},
			index:   20,
			action:  types.HOLD,
			conf:    30,
			calls:   1,
		},
		{
			name:    "advisor failure keeps score decision",
			advisor: &fakeAdvisor{err: errors.New("connection refused")},
			index:   20,
			action:  types.BUY,
			conf:    60,
			calls:   1,
		},
		{
			name:    "unparseable reply keeps score decision",
			advisor: &fakeAdvisor{reply: "no comment"},
			index:   20,
			action:  types.BUY,
			conf:    60,
			calls:   1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := NewAdvisedPolicy(NewScorePolicy(DefaultScoreConfig()), tt.advisor, "model", 50)
			observed := 0
			p.ObserveCalls(func() { observed++ })

			d, err := p.Decide(context.Background(), input(bars, tt.index))

			require.NoError(t, err)
			assert.Equal(t, tt.action, d.Action)
			if tt.conf > 0 {
				assert.Equal(t, tt.conf, d.Confidence)
			}
			assert.Equal(t, tt.calls, tt.advisor.calls)
			assert.Equal(t, tt.calls, observed)
		})
	}
}

func TestAdvisedPolicy_MissingConfidenceNeverVetoes(t *testing.T) {
	bars := closeBars(60, rising)

	for _, reply := range []string{
		`{"action":"buy","reasoning":"agree with the setup"}`,
		`{"action":"buy","confidence":"n/a","reasoning":"agree"}`,
		`action: buy`,
	} {
		t.Run(reply, func(t *testing.T) {
			adv := &fakeAdvisor{reply: reply}
			p := NewAdvisedPolicy(NewScorePolicy(DefaultScoreConfig()), adv, "model", DefaultConfidenceThreshold)

			d, err := p.Decide(context.Background(), input(bars, 20))

			require.NoError(t, err)
			assert.Equal(t, types.BUY, d.Action)
			assert.Equal(t, 60.0, d.Confidence)
			assert.Equal(t, 1, adv.calls)
		})
	}
}

func TestAdvisedPolicy_StatedConfidenceVetoesAtDefaultThreshold(t *testing.T) {
	adv := &fakeAdvisor{reply: `{"action":"buy","confidence":1,"reasoning":"not convinced"}`}
	p := NewAdvisedPolicy(NewScorePolicy(DefaultScoreConfig()), adv, "model", DefaultConfidenceThreshold)

	d, err := p.Decide(context.Background(), input(closeBars(60, rising), 20))

	require.NoError(t, err)
	assert.Equal(t, types.HOLD, d.Action)
	assert.Equal(t, 1.0, d.Confidence)
	assert.Contains(t, d.Reasoning, "not convinced")
}

func TestAdvisedPolicy_CancelledContextAborts(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	p := NewAdvisedPolicy(NewScorePolicy(DefaultScoreConfig()), &fakeAdvisor{err: context.Canceled}, "model", 50)
	_, err := p.Decide(ctx, input(closeBars(60, rising), 20))

	assert.ErrorIs(t, err, context.Canceled)
}

func TestAdvisedPolicy_NilAdvisorIsScoreOnly(t *testing.T) {
	p := NewAdvisedPolicy(NewScorePolicy(DefaultScoreConfig()), nil, "", 50)

	d, err := p.Decide(context.Background(), input(closeBars(60, rising), 20))

	require.NoError(t, err)
	assert.Equal(t, types.BUY, d.Action)
	assert.Equal(t, 60.0, d.Confidence)
}

func newScalper(adv *fakeAdvisor) *ScalperPolicy {
	advised := NewAdvisedPolicy(NewScorePolicy(DefaultScoreConfig()), adv, "model", 50)
	return NewScalperPolicy(DefaultScalperConfig(), advised)
}

func TestScalperPolicy_QuietMarketNeverCallsAdvisor(t *testing.T) {
	adv := &fakeAdvisor{reply: `{"action":"buy","confidence":90}`}
	p := newScalper(adv)
	bars := closeBars(80, flat)

	var watch WatchState
	for i := range bars {
		in := input(bars, i)
		in.Watch = watch
		d, err := p.Decide(context.Background(), in)
		require.NoError(t, err)
		assert.Equal(t, types.HOLD, d.Action)
		assert.Equal(t, "idle", d.Reasoning)
		watch = d.Watch
	}

	assert.Equal(t, 0, adv.calls)
}

func TestScalperPolicy_OpenPositionIsAlwaysMonitored(t *testing.T) {
	adv := &fakeAdvisor{reply: `{"action":"hold","confidence":90}`}
	p := newScalper(adv)
	bars := closeBars(80, flat)

	in := input(bars, 50)
	in.Position = &account.Position{Amount: 1, EntryPrice: 100, EntryTime: bars[40].Timestamp}
	d, err := p.Decide(context.Background(), in)

	require.NoError(t, err)
	assert.Equal(t, PatternPosition, d.Watch.Pattern)
	assert.Equal(t, 50, d.Watch.Since)
}

func TestScalperPolicy_VolumeSpikeThenWatching(t *testing.T) {
	adv := &fakeAdvisor{reply: `{"action":"buy","confidence":90}`}
	p := newScalper(adv)
	bars := closeBars(80, flat)
	bars[40].Volume = 1000

	in := input(bars, 40)
	d, err := p.Decide(context.Background(), in)
	require.NoError(t, err)
	assert.Equal(t, PatternVolumeSpike, d.Watch.Pattern)
	assert.Equal(t, types.HOLD, d.Action, "score has no buy so the advisor is not asked")
	assert.Equal(t, 0, adv.calls)

	in = input(bars, 41)
	in.Watch = d.Watch
	d, err = p.Decide(context.Background(), in)
	require.NoError(t, err)
	assert.Equal(t, types.HOLD, d.Action)
	assert.Equal(t, "watching volume_spike since candle 40", d.Reasoning)
	assert.Equal(t, 40, d.Watch.Since)
}

func TestScalperPolicy_BreakoutReachesAdvisor(t *testing.T) {
	adv := &fakeAdvisor{reply: `{"action":"buy","confidence":90,"reasoning":"breakout"}`}
	p := newScalper(adv)
	bars := closeBars(60, rising)

	// Candle 20 closes above the previous 20 highs while the score signals a buy.
	in := input(bars, 20)
	d, err := p.Decide(context.Background(), in)

	require.NoError(t, err)
	assert.Equal(t, PatternBreakoutHigh, d.Watch.Pattern)
	assert.Equal(t, types.BUY, d.Action)
	assert.Equal(t, 90.0, d.Confidence)
	assert.Equal(t, 1, adv.calls)
}

func TestParseKind(t *testing.T) {
	k, err := ParseKind("scalper")
	require.NoError(t, err)
	assert.Equal(t, KindScalper, k)

	_, err = ParseKind("martingale")
	assert.Error(t, err)
}
