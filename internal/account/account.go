package account

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/jwtly10/stratsim/internal/logging"
	"github.com/jwtly10/stratsim/internal/types"
)

const (
	FLAT State = "FLAT"
	OPEN State = "OPEN"
)

const (
	ReasonTrailingStop  = "trailing stop"
	ReasonStopLoss      = "stop loss"
	ReasonTakeProfit    = "take profit"
	ReasonTimeout       = "timeout"
	ReasonEndOfBacktest = "end of backtest"
)

var (
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrNoPosition          = errors.New("no open position")
	ErrPositionOpen        = errors.New("position already open")
)

var exitLog = logging.New("exits")

type State string

// RiskConfig holds the exit rules and the quote amount spent per entry. A zero
// percentage or timeout disables that exit.
type RiskConfig struct {
	StopLossPercent     float64 `yaml:"stop_loss_percent" json:"stopLossPercent"`
	TakeProfitPercent   float64 `yaml:"take_profit_percent" json:"takeProfitPercent"`
	TrailingStopPercent float64 `yaml:"trailing_stop_percent" json:"trailingStopPercent"`
	TimeoutMinutes      int     `yaml:"timeout_minutes" json:"timeoutMinutes"`
	TradeSize           float64 `yaml:"trade_size" json:"tradeSize"`
}

type Position struct {
	Amount        float64
	EntryPrice    float64
	EntryTime     time.Time
	EntryIndex    int
	HighWaterMark float64

	amount decimal.Decimal
	cost   decimal.Decimal
}

// UnrealizedPercent is the P/L at price relative to the entry price.
func (p Position) UnrealizedPercent(price float64) float64 {
	if p.EntryPrice == 0 {
		return 0
	}
	return (price - p.EntryPrice) / p.EntryPrice * 100
}

// Account is a spot account holding at most one long position. Balance and
// P/L are kept in decimal so ending balance equals starting balance plus the
// sum of realised P/L exactly.
type Account struct {
	starting decimal.Decimal
	balance  decimal.Decimal
	risk     RiskConfig
	position *Position
	trades   []types.Trade
}

func NewAccount(startingBalance float64, risk RiskConfig) *Account {
	start := decimal.NewFromFloat(startingBalance)
	return &Account{
		starting: start,
		balance:  start,
		risk:     risk,
		trades:   []types.Trade{},
	}
}

func (a *Account) State() State {
	if a.position == nil {
		return FLAT
	}
	return OPEN
}

// Position returns a copy of the open position, or nil when FLAT.
func (a *Account) Position() *Position {
	if a.position == nil {
		return nil
	}
	p := *a.position
	return &p
}

func (a *Account) Risk() RiskConfig {
	return a.risk
}

func (a *Account) Balance() float64 {
	return a.balance.InexactFloat64()
}

func (a *Account) StartingBalance() float64 {
	return a.starting.InexactFloat64()
}

// Equity marks the open position to price.
func (a *Account) Equity(price float64) float64 {
	equity := a.balance
	if a.position != nil {
		equity = equity.Add(a.position.amount.Mul(decimal.NewFromFloat(price)))
	}
	return equity.InexactFloat64()
}

// RealisedPnL is the balance change since the account was opened, excluding
// any open position.
func (a *Account) RealisedPnL() float64 {
	if a.position != nil {
		return a.balance.Add(a.position.cost).Sub(a.starting).InexactFloat64()
	}
	return a.balance.Sub(a.starting).InexactFloat64()
}

func (a *Account) Trades() []types.Trade {
	return a.trades
}

// Buy spends the configured trade size at the bar close.
func (a *Account) Buy(bar types.Bar, index int, reason string) (types.Trade, error) {
	if a.position != nil {
		return types.Trade{}, ErrPositionOpen
	}
	if bar.Close <= 0 {
		return types.Trade{}, fmt.Errorf("invalid fill price %v", bar.Close)
	}

	size := decimal.NewFromFloat(a.risk.TradeSize)
	if size.LessThanOrEqual(decimal.Zero) || a.balance.LessThan(size) {
		slog.Warn("Skipping buy", "balance", a.Balance(), "trade_size", a.risk.TradeSize, "timestamp", bar.Timestamp)
		return types.Trade{}, ErrInsufficientBalance
	}

	price := decimal.NewFromFloat(bar.Close)
	amount := size.Div(price)
	cost := amount.Mul(price)

	a.balance = a.balance.Sub(cost)
	a.position = &Position{
		Amount:        amount.InexactFloat64(),
		EntryPrice:    bar.Close,
		EntryTime:     bar.Timestamp,
		EntryIndex:    index,
		HighWaterMark: bar.Close,
		amount:        amount,
		cost:          cost,
	}

	trade := types.Trade{
		Timestamp: bar.Timestamp,
		Type:      types.BUY,
		Price:     bar.Close,
		Amount:    a.position.Amount,
		Value:     cost.InexactFloat64(),
		Reason:    reason,
	}
	a.trades = append(a.trades, trade)

	slog.Info("Opened position", "price", bar.Close, "amount", trade.Amount, "value", trade.Value, "reason", reason, "timestamp", bar.Timestamp)
	return trade, nil
}

// Sell closes the open position at the bar close.
func (a *Account) Sell(bar types.Bar, reason string) (types.Trade, error) {
	pos := a.position
	if pos == nil {
		return types.Trade{}, ErrNoPosition
	}

	proceeds := pos.amount.Mul(decimal.NewFromFloat(bar.Close))
	pnl := proceeds.Sub(pos.cost)
	pnlPercent := 0.0
	if !pos.cost.IsZero() {
		pnlPercent = pnl.Div(pos.cost).Mul(decimal.NewFromInt(100)).InexactFloat64()
	}

	a.balance = a.balance.Add(proceeds)
	a.position = nil

	pl := pnl.InexactFloat64()
	trade := types.Trade{
		Timestamp:         bar.Timestamp,
		Type:              types.SELL,
		Price:             bar.Close,
		Amount:            pos.Amount,
		Value:             proceeds.InexactFloat64(),
		Reason:            reason,
		ProfitLoss:        &pl,
		ProfitLossPercent: &pnlPercent,
	}
	a.trades = append(a.trades, trade)

	slog.Info("Closed position", "entry_price", pos.EntryPrice, "exit_price", bar.Close, "pnl", pl, "pnl_percent", pnlPercent, "reason", reason, "timestamp", bar.Timestamp)
	return trade, nil
}

// CheckExits evaluates the exit rules against bar in fixed priority order:
// trailing stop, stop loss, take profit, timeout. The first rule that fires
// closes the position at the bar close.
func (a *Account) CheckExits(bar types.Bar) (types.Trade, bool) {
	if a.position == nil {
		return types.Trade{}, false
	}

	reason, ok := a.exitReason(bar)
	if !ok {
		return types.Trade{}, false
	}

	trade, err := a.Sell(bar, reason)
	if err != nil {
		return types.Trade{}, false
	}
	return trade, true
}

func (a *Account) exitReason(bar types.Bar) (string, bool) {
	pos := a.position
	if bar.Close > pos.HighWaterMark {
		pos.HighWaterMark = bar.Close
	}

	pl := pos.UnrealizedPercent(bar.Close)

	if a.risk.TrailingStopPercent > 0 && pl > 0 {
		retracement := (pos.HighWaterMark - bar.Close) / pos.HighWaterMark * 100
		if retracement >= a.risk.TrailingStopPercent {
			exitLog.Debug("Trailing stop hit", "high_water_mark", pos.HighWaterMark, "close", bar.Close, "retracement", retracement)
			return ReasonTrailingStop, true
		}
	}

	if a.risk.StopLossPercent != 0 && pl <= -a.risk.StopLossPercent {
		exitLog.Debug("Stop loss hit", "entry_price", pos.EntryPrice, "close", bar.Close, "pnl_percent", pl)
		return ReasonStopLoss, true
	}

	if a.risk.TakeProfitPercent != 0 && pl >= a.risk.TakeProfitPercent {
		exitLog.Debug("Take profit hit", "entry_price", pos.EntryPrice, "close", bar.Close, "pnl_percent", pl)
		return ReasonTakeProfit, true
	}

	if a.risk.TimeoutMinutes > 0 {
		held := bar.Timestamp.Sub(pos.EntryTime)
		if held >= time.Duration(a.risk.TimeoutMinutes)*time.Minute {
			exitLog.Debug("Position timed out", "held", held, "pnl_percent", pl)
			return ReasonTimeout, true
		}
	}

	return "", false
}

// CloseAll force-closes any open position at the last bar.
func (a *Account) CloseAll(lastBar types.Bar) (types.Trade, bool) {
	if a.position == nil {
		return types.Trade{}, false
	}
	trade, err := a.Sell(lastBar, ReasonEndOfBacktest)
	if err != nil {
		return types.Trade{}, false
	}
	return trade, true
}
