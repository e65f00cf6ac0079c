package backtest

import (
	"errors"
	"fmt"
)

// MinCandles is the shortest range a run accepts.
const MinCandles = 30

var ErrInsufficientData = errors.New("insufficient data")

type InsufficientDataError struct {
	Symbol string
	Have   int
	Need   int
}

func (e *InsufficientDataError) Error() string {
	return fmt.Sprintf("%s: %d candles in range, need at least %d", e.Symbol, e.Have, e.Need)
}

func (e *InsufficientDataError) Unwrap() error {
	return ErrInsufficientData
}
