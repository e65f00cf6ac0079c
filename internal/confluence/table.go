package confluence

import (
	"fmt"
	"strings"

	"github.com/olekukonko/tablewriter"
)

// String renders the per-timeframe breakdown followed by the consensus line.
func (r Result) String() string {
	display := &strings.Builder{}

	table := tablewriter.NewWriter(display)
	table.SetHeader([]string{"TF", "Signal", "Strength", "RSI", "MACD", "MA20", "MA50", "Range", "Total"})
	table.SetAlignment(tablewriter.ALIGN_CENTER)

	for _, tf := range r.Timeframes {
		c := tf.Contributions
		table.Append([]string{
			tf.Timeframe.String(),
			string(tf.Signal),
			fmt.Sprintf("%.0f", tf.Strength),
			fmt.Sprintf("%+.1f", c.RSIScore),
			fmt.Sprintf("%+.1f", c.MACDScore),
			fmt.Sprintf("%+.1f", c.MA20Score),
			fmt.Sprintf("%+.1f", c.MA50Score),
			fmt.Sprintf("%+.1f", c.RangeScore),
			fmt.Sprintf("%+.1f", c.TotalScore),
		})
	}
	table.Render()

	fmt.Fprintf(display, "Confluence: %s (score %.1f, alignment %.0f%%, trade %t)\n",
		r.OverallSignal, r.Score, r.Alignment*100, r.ShouldTrade)
	return display.String()
}
