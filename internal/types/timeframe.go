package types

import (
	"fmt"
	"strings"
	"time"
)

const (
	TF1m  Timeframe = "1m"
	TF5m  Timeframe = "5m"
	TF15m Timeframe = "15m"
	TF30m Timeframe = "30m"
	TF1h  Timeframe = "1h"
	TF4h  Timeframe = "4h"
	TF1d  Timeframe = "1d"
)

type Timeframe string

// Timeframes lists the canonical timeframes, smallest first.
var Timeframes = []Timeframe{TF1m, TF5m, TF15m, TF30m, TF1h, TF4h, TF1d}

var timeframeMinutes = map[Timeframe]int{
	TF1m:  1,
	TF5m:  5,
	TF15m: 15,
	TF30m: 30,
	TF1h:  60,
	TF4h:  240,
	TF1d:  1440,
}

func (tf Timeframe) String() string {
	return string(tf)
}

func (tf Timeframe) Minutes() int {
	return timeframeMinutes[tf]
}

func (tf Timeframe) Duration() time.Duration {
	return time.Duration(tf.Minutes()) * time.Minute
}

func ParseTimeframe(s string) (Timeframe, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "1m", "m1":
		return TF1m, nil
	case "5m", "m5":
		return TF5m, nil
	case "15m", "m15":
		return TF15m, nil
	case "30m", "m30":
		return TF30m, nil
	case "1h", "h1", "60m":
		return TF1h, nil
	case "4h", "h4":
		return TF4h, nil
	case "1d", "d1", "d", "day":
		return TF1d, nil
	}
	return "", fmt.Errorf("invalid timeframe: %q", s)
}

func TimeframeFromMinutes(minutes int) (Timeframe, error) {
	for _, tf := range Timeframes {
		if tf.Minutes() == minutes {
			return tf, nil
		}
	}
	return "", fmt.Errorf("no canonical timeframe for %d minutes", minutes)
}
