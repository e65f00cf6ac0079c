package advisor

import (
	"fmt"
	"strings"

	"github.com/jwtly10/stratsim/internal/account"
	"github.com/jwtly10/stratsim/internal/confluence"
	"github.com/jwtly10/stratsim/internal/indicators"
	"github.com/jwtly10/stratsim/internal/types"
)

type ContextInput struct {
	Symbol     string
	Bar        types.Bar
	Snapshot   indicators.Snapshot
	Confluence *confluence.Result
	Position   *account.Position
	// Proposed is the action the local score already settled on.
	Proposed  types.Action
	ScoreBull float64
	ScoreBear float64
}

// BuildContext renders the market state as plain text for the advisor. The
// output depends only on the input, so identical candles give identical
// prompts.
func BuildContext(in ContextInput) string {
	var b strings.Builder
	s := in.Snapshot

	fmt.Fprintf(&b, "Symbol: %s\n", in.Symbol)
	fmt.Fprintf(&b, "Time: %s\n", in.Bar.Timestamp.UTC().Format("2006-01-02 15:04"))
	fmt.Fprintf(&b, "Candle: O %.4f H %.4f L %.4f C %.4f V %.2f\n",
		in.Bar.Open, in.Bar.High, in.Bar.Low, in.Bar.Close, in.Bar.Volume)

	b.WriteString("\nIndicators:\n")
	line(&b, "RSI(14)", s.RSI14)
	line(&b, "SMA(20)", s.SMA20)
	line(&b, "SMA(50)", s.SMA50)
	line(&b, "EMA(12)", s.EMA12)
	line(&b, "EMA(26)", s.EMA26)
	line(&b, "MACD", s.MACD)
	line(&b, "MACD signal", s.MACDSignal)
	line(&b, "MACD histogram", s.MACDHistogram)
	line(&b, "Bollinger upper", s.BollingerUpper)
	line(&b, "Bollinger lower", s.BollingerLower)
	line(&b, "ATR(14)", s.ATR14)
	line(&b, "VWAP", s.VWAP)
	line(&b, "Support", s.Support)
	line(&b, "Resistance", s.Resistance)
	fmt.Fprintf(&b, "- Trend: %s (%s)\n", s.Trend, s.Strength)
	if s.Regime != "" && s.RegimeStrength != nil {
		fmt.Fprintf(&b, "- Regime: %s (%.0f/100)\n", s.Regime, *s.RegimeStrength)
	} else {
		b.WriteString("- Regime: n/a\n")
	}

	b.WriteString("\nMulti-timeframe confluence:\n")
	if in.Confluence == nil || len(in.Confluence.Timeframes) == 0 {
		b.WriteString("- n/a\n")
	} else {
		c := in.Confluence
		fmt.Fprintf(&b, "- Overall: %s score %.1f alignment %.0f%% trade %t\n",
			c.OverallSignal, c.Score, c.Alignment*100, c.ShouldTrade)
		for _, tf := range c.Timeframes {
			fmt.Fprintf(&b, "- %s: %s strength %.0f\n", tf.Timeframe, tf.Signal, tf.Strength)
		}
	}

	b.WriteString("\nPosition:\n")
	if in.Position == nil {
		b.WriteString("- Flat\n")
	} else {
		p := in.Position
		fmt.Fprintf(&b, "- Long %.6f @ %.4f since %s, unrealised %.2f%%\n",
			p.Amount, p.EntryPrice, p.EntryTime.UTC().Format("2006-01-02 15:04"), p.UnrealizedPercent(in.Bar.Close))
	}

	fmt.Fprintf(&b, "\nLocal signal: %s (bull %.1f / bear %.1f)\n", in.Proposed, in.ScoreBull, in.ScoreBear)
	return b.String()
}

func line(b *strings.Builder, name string, v *float64) {
	if v == nil {
		fmt.Fprintf(b, "- %s: n/a\n", name)
		return
	}
	fmt.Fprintf(b, "- %s: %.4f\n", name, *v)
}
