package backtest

import (
	"fmt"
	"io"
	"time"

	"github.com/gocarina/gocsv"
)

type tradeRow struct {
	Timestamp         string  `csv:"timestamp"`
	Type              string  `csv:"type"`
	Price             float64 `csv:"price"`
	Amount            float64 `csv:"amount"`
	Value             float64 `csv:"value"`
	ProfitLoss        string  `csv:"profit_loss"`
	ProfitLossPercent string  `csv:"profit_loss_percent"`
	Reason            string  `csv:"reason"`
}

type equityRow struct {
	Timestamp string  `csv:"timestamp"`
	Equity    float64 `csv:"equity"`
}

// WriteTradesCSV writes the trade log. P/L columns are empty on buys.
func (r *Results) WriteTradesCSV(w io.Writer) error {
	rows := make([]*tradeRow, 0, len(r.Trades))
	for _, t := range r.Trades {
		row := &tradeRow{
			Timestamp: t.Timestamp.UTC().Format(time.RFC3339),
			Type:      string(t.Type),
			Price:     t.Price,
			Amount:    t.Amount,
			Value:     t.Value,
			Reason:    t.Reason,
		}
		if t.ProfitLoss != nil {
			row.ProfitLoss = fmt.Sprintf("%.8f", *t.ProfitLoss)
		}
		if t.ProfitLossPercent != nil {
			row.ProfitLossPercent = fmt.Sprintf("%.4f", *t.ProfitLossPercent)
		}
		rows = append(rows, row)
	}
	if err := gocsv.Marshal(rows, w); err != nil {
		return fmt.Errorf("writing trades csv: %w", err)
	}
	return nil
}

func (r *Results) WriteEquityCSV(w io.Writer) error {
	rows := make([]*equityRow, 0, len(r.EquityCurve))
	for _, p := range r.EquityCurve {
		rows = append(rows, &equityRow{Timestamp: p.Timestamp.UTC().Format(time.RFC3339), Equity: p.Equity})
	}
	if err := gocsv.Marshal(rows, w); err != nil {
		return fmt.Errorf("writing equity csv: %w", err)
	}
	return nil
}
