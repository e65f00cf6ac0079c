package strategy

import (
	"context"
	"fmt"
	"log/slog"
	"math"

	"github.com/jwtly10/stratsim/internal/advisor"
	"github.com/jwtly10/stratsim/internal/types"
)

const DefaultConfidenceThreshold = 60.0

// AdvisedPolicy asks the advisor for a second opinion on score signals. The
// score decides the action; the advisor can only raise confidence or veto,
// and only with a confidence it actually stated.
type AdvisedPolicy struct {
	score     *ScorePolicy
	advisor   advisor.Advisor
	model     string
	threshold float64
	onCall    func()
}

func NewAdvisedPolicy(score *ScorePolicy, adv advisor.Advisor, model string, threshold float64) *AdvisedPolicy {
	return &AdvisedPolicy{
		score:     score,
		advisor:   adv,
		model:     model,
		threshold: threshold,
	}
}

func (p *AdvisedPolicy) ObserveCalls(fn func()) {
	p.onCall = fn
}

func (p *AdvisedPolicy) Decide(ctx context.Context, in Input) (Decision, error) {
	s := p.score.Score(in.Bars)
	local := p.score.decide(s, in)
	if local.Action == types.HOLD || p.advisor == nil {
		return local, nil
	}

	text := advisor.BuildContext(advisor.ContextInput{
		Symbol:     in.Symbol,
		Bar:        in.Bar(),
		Snapshot:   in.Snapshot,
		Confluence: in.Confluence,
		Position:   in.Position,
		Proposed:   local.Action,
		ScoreBull:  s.Bull,
		ScoreBear:  s.Bear,
	})

	raw, err := p.advisor.Advise(ctx, text, p.model)
	if p.onCall != nil {
		p.onCall()
	}
	if err != nil {
		if ctx.Err() != nil {
			return Decision{}, ctx.Err()
		}
		slog.Warn("Advisor unavailable, using score decision", "index", in.Index, "error", err)
		return local, nil
	}

	adv, err := advisor.ParseAdvice(raw)
	if err != nil {
		slog.Warn("Advisor reply unparseable, using score decision", "index", in.Index, "error", err)
		return local, nil
	}

	if !adv.ConfidenceGiven {
		return Decision{
			Action:     local.Action,
			Confidence: local.Confidence,
			Reasoning:  fmt.Sprintf("%s; advisor (%s, %s, no confidence): %s", local.Reasoning, adv.Action, adv.Method, adv.Reasoning),
		}, nil
	}

	if adv.Confidence < p.threshold {
		slog.Info("Advisor vetoed trade", "index", in.Index, "action", local.Action, "advisor_confidence", adv.Confidence, "threshold", p.threshold)
		d := Hold(fmt.Sprintf("advisor veto (%.0f < %.0f): %s", adv.Confidence, p.threshold, adv.Reasoning))
		d.Confidence = adv.Confidence
		return d, nil
	}

	return Decision{
		Action:     local.Action,
		Confidence: math.Max(local.Confidence, adv.Confidence),
		Reasoning:  fmt.Sprintf("%s; advisor (%s, %s): %s", local.Reasoning, adv.Action, adv.Method, adv.Reasoning),
	}, nil
}
