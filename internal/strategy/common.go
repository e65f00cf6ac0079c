package strategy

import (
	"context"
	"fmt"

	"github.com/jwtly10/stratsim/internal/account"
	"github.com/jwtly10/stratsim/internal/confluence"
	"github.com/jwtly10/stratsim/internal/indicators"
	"github.com/jwtly10/stratsim/internal/types"
)

const (
	KindScore   Kind = "score"
	KindAdvised Kind = "advised"
	KindScalper Kind = "scalper"
)

type Kind string

func ParseKind(s string) (Kind, error) {
	switch k := Kind(s); k {
	case KindScore, KindAdvised, KindScalper:
		return k, nil
	}
	return "", fmt.Errorf("unknown strategy %q", s)
}

// Input is everything a policy may look at for one candle. Bars ends at the
// current candle, so nothing after Index is visible.
type Input struct {
	Symbol     string
	Bars       []types.Bar
	Index      int
	Position   *account.Position
	Snapshot   indicators.Snapshot
	Confluence *confluence.Result
	Watch      WatchState
}

// Bar returns the current candle.
func (in Input) Bar() types.Bar {
	return in.Bars[len(in.Bars)-1]
}

type Decision struct {
	Action     types.Action
	Confidence float64
	Reasoning  string
	// Watch is carried into the next candle's Input.
	Watch WatchState
}

func Hold(reason string) Decision {
	return Decision{Action: types.HOLD, Reasoning: reason}
}

type Policy interface {
	Decide(ctx context.Context, in Input) (Decision, error)
}

// CallObserver is implemented by policies that consult the advisor, so the
// caller can count advisory calls.
type CallObserver interface {
	ObserveCalls(fn func())
}
