package tradingview

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/jwtly10/stratsim/internal/types"
)

// WritePineScript writes the trade markers for trades to w.
func WritePineScript(w io.Writer, trades []types.Trade) error {
	_, err := io.WriteString(w, GeneratePineScript(trades))
	return err
}

// GeneratePineScript generates the Pine Script code for visualizing trades on a chart.
// Each buy is paired with the sell that follows it; an unmatched buy only gets
// an entry marker. Exits are green when profitable and red otherwise.
func GeneratePineScript(trades []types.Trade) string {
	var sb strings.Builder

	sb.WriteString("// ============================================\n")
	sb.WriteString("// TRADE VALIDATION MARKERS\n")
	sb.WriteString("// ============================================\n\n")

	id := 0
	for _, trade := range trades {
		switch trade.Type {
		case types.BUY:
			id++
			entryText := fmt.Sprintf("#%d BUY\\nEntry: %.5f\\nSize: %.2f", id, trade.Price, trade.Value)

			sb.WriteString(fmt.Sprintf("t%d_entry = time == %s\n", id, formatPineTimestamp(trade.Timestamp)))
			sb.WriteString(fmt.Sprintf("plotshape(t%d_entry, title=\"#%d Entry\", location=location.bottom, color=color.blue, style=shape.labelup, size=size.small, text=\"%s\", textcolor=color.white)\n\n",
				id, id, entryText))

		case types.SELL:
			exitColor := "color.green"
			pl := 0.0
			if trade.ProfitLoss != nil {
				pl = *trade.ProfitLoss
			}
			if pl <= 0 {
				exitColor = "color.red"
			}
			exitText := fmt.Sprintf("#%d EXIT\\nExit: %.5f\\nP&L: %.2f\\n%s", id, trade.Price, pl, pineEscape(trade.Reason))

			sb.WriteString(fmt.Sprintf("t%d_exit = time == %s\n", id, formatPineTimestamp(trade.Timestamp)))
			sb.WriteString(fmt.Sprintf("plotshape(t%d_exit, title=\"#%d EXIT\", location=location.top, color=%s, style=shape.labeldown, size=size.small, text=\"%s\", textcolor=color.white)\n\n",
				id, id, exitColor, exitText))
		}
	}

	return sb.String()
}

// pineEscape keeps free-form reasons on one line inside a string literal.
func pineEscape(s string) string {
	s = strings.ReplaceAll(s, `"`, `'`)
	return strings.ReplaceAll(s, "\n", " ")
}

func formatPineTimestamp(t time.Time) string {
	utc := t.UTC()
	return fmt.Sprintf("timestamp(\"UTC\", %d, %d, %d, %d, %d)",
		utc.Year(), int(utc.Month()), utc.Day(), utc.Hour(), utc.Minute())
}
