package backtest

import (
	"fmt"
	"io"
	"math"
	"time"

	"github.com/montanaflynn/stats"
	"github.com/olekukonko/tablewriter"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/jwtly10/stratsim/internal/types"
)

// ProfitFactorNoLosses is reported when there is gross profit and no gross loss.
const ProfitFactorNoLosses = 999.0

const minutesPerYear = 365 * 24 * 60

type Statistics struct {
	// Basic, over closed trades (sells)
	TotalTrades   int     `json:"totalTrades"`
	WinningTrades int     `json:"winningTrades"`
	LosingTrades  int     `json:"losingTrades"`
	WinRate       float64 `json:"winRate"`

	// P&L
	TotalPnL        float64 `json:"totalProfitLoss"`
	TotalPnLPercent float64 `json:"totalProfitLossPercent"`
	GrossProfit     float64 `json:"grossProfit"`
	GrossLoss       float64 `json:"grossLoss"`
	ProfitFactor    float64 `json:"profitFactor"`

	// Averages
	AvgWin        float64 `json:"avgWin"`
	AvgLoss       float64 `json:"avgLoss"`
	LargestWin    float64 `json:"largestWin"`
	LargestLoss   float64 `json:"largestLoss"`
	ExpectedValue float64 `json:"expectedValue"`

	// Risk
	MaxDrawdown        float64 `json:"maxDrawdown"`
	MaxDrawdownPercent float64 `json:"maxDrawdownPercent"`
	SharpeRatio        float64 `json:"sharpeRatio"`

	// Duration
	AvgHoldingTime time.Duration `json:"avgHoldingTime"`
}

// Calculate derives the run statistics. The result is cached on first use.
func (r *Results) Calculate() *Statistics {
	if r.stats != nil {
		return r.stats
	}

	s := &Statistics{
		MaxDrawdown:        r.MaxDrawdown,
		MaxDrawdownPercent: r.MaxDrawdownPercent,
		SharpeRatio:        Sharpe(r.Returns, r.IntervalMinutes),
		TotalPnL:           r.EndingBalance - r.StartingBalance,
	}
	if r.StartingBalance > 0 {
		s.TotalPnLPercent = s.TotalPnL / r.StartingBalance * 100
	}

	var held time.Duration
	var paired int
	var entry *types.Trade

	for i := range r.Trades {
		trade := &r.Trades[i]
		if trade.Type == types.BUY {
			entry = trade
			continue
		}
		if trade.Type != types.SELL || trade.ProfitLoss == nil {
			continue
		}

		s.TotalTrades++
		pl := *trade.ProfitLoss
		switch {
		case pl > 0:
			s.WinningTrades++
			s.GrossProfit += pl
			s.LargestWin = math.Max(s.LargestWin, pl)
		case pl < 0:
			s.LosingTrades++
			s.GrossLoss += -pl
			s.LargestLoss = math.Min(s.LargestLoss, pl)
		}

		if entry != nil {
			held += trade.Timestamp.Sub(entry.Timestamp)
			paired++
			entry = nil
		}
	}

	if s.TotalTrades == 0 {
		r.stats = s
		return s
	}

	s.WinRate = float64(s.WinningTrades) / float64(s.TotalTrades) * 100
	s.ProfitFactor = profitFactor(s.GrossProfit, s.GrossLoss)

	if s.WinningTrades > 0 {
		s.AvgWin = s.GrossProfit / float64(s.WinningTrades)
	}
	if s.LosingTrades > 0 {
		s.AvgLoss = -s.GrossLoss / float64(s.LosingTrades)
	}
	s.ExpectedValue = s.TotalPnL / float64(s.TotalTrades)

	if paired > 0 {
		s.AvgHoldingTime = held / time.Duration(paired)
	}

	r.stats = s
	return s
}

func profitFactor(grossProfit, grossLoss float64) float64 {
	switch {
	case grossLoss > 0:
		return grossProfit / grossLoss
	case grossProfit > 0:
		return ProfitFactorNoLosses
	default:
		return 0
	}
}

// PeriodsPerYear is the number of candles of the given interval in a year.
func PeriodsPerYear(intervalMinutes int) float64 {
	if intervalMinutes <= 0 {
		return 0
	}
	return float64(minutesPerYear) / float64(intervalMinutes)
}

// Sharpe annualises mean/σ of the per-candle returns. It is 0 when there are
// no returns or they do not vary.
func Sharpe(returns []float64, intervalMinutes int) float64 {
	if len(returns) < 2 {
		return 0
	}
	mean, err := stats.Mean(returns)
	if err != nil {
		return 0
	}
	sd, err := stats.StandardDeviationPopulation(returns)
	if err != nil || sd < 1e-12 || math.IsNaN(sd) {
		return 0
	}
	return mean / sd * math.Sqrt(PeriodsPerYear(intervalMinutes))
}

func (s *Statistics) Print(w io.Writer) {
	p := message.NewPrinter(language.English)
	money := func(v float64) string { return p.Sprintf("$%.2f", v) }

	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"Metric", "Value"})
	table.SetAlignment(tablewriter.ALIGN_LEFT)

	table.Append([]string{"Total Trades", fmt.Sprintf("%d", s.TotalTrades)})
	table.Append([]string{"Winning Trades", fmt.Sprintf("%d (%.2f%%)", s.WinningTrades, s.WinRate)})
	table.Append([]string{"Losing Trades", fmt.Sprintf("%d", s.LosingTrades)})
	table.Append([]string{"Total P&L", fmt.Sprintf("%s (%.2f%%)", money(s.TotalPnL), s.TotalPnLPercent)})
	table.Append([]string{"Gross Profit", money(s.GrossProfit)})
	table.Append([]string{"Gross Loss", money(s.GrossLoss)})
	table.Append([]string{"Profit Factor", fmt.Sprintf("%.2f", s.ProfitFactor)})
	table.Append([]string{"Avg Win", money(s.AvgWin)})
	table.Append([]string{"Avg Loss", money(s.AvgLoss)})
	table.Append([]string{"Largest Win", money(s.LargestWin)})
	table.Append([]string{"Largest Loss", money(s.LargestLoss)})
	table.Append([]string{"Expected Value", money(s.ExpectedValue) + " per trade"})
	table.Append([]string{"Max Drawdown", fmt.Sprintf("%s (%.2f%%)", money(s.MaxDrawdown), s.MaxDrawdownPercent)})
	table.Append([]string{"Sharpe Ratio", fmt.Sprintf("%.2f", s.SharpeRatio)})
	table.Append([]string{"Avg Holding Time", s.AvgHoldingTime.Round(time.Minute).String()})

	table.Render()
}

func (r *Results) PrintTrades(w io.Writer) {
	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"#", "Time", "Type", "Price", "Amount", "Value", "P&L", "Reason"})
	table.SetAlignment(tablewriter.ALIGN_CENTER)

	for i, trade := range r.Trades {
		pl := ""
		if trade.ProfitLoss != nil {
			pl = fmt.Sprintf("%.2f (%.2f%%)", *trade.ProfitLoss, *trade.ProfitLossPercent)
		}
		table.Append([]string{
			fmt.Sprintf("%d", i+1),
			trade.Timestamp.Format("2006-01-02 15:04"),
			string(trade.Type),
			fmt.Sprintf("%.5f", trade.Price),
			fmt.Sprintf("%.6f", trade.Amount),
			fmt.Sprintf("%.2f", trade.Value),
			pl,
			trade.Reason,
		})
	}

	table.Render()
}
