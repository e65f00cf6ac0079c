package backtest

import (
	"sync"

	"github.com/asaskevich/EventBus"
)

const (
	PhaseQueued    Phase = "queued"
	PhaseLoading   Phase = "loading"
	PhaseRunning   Phase = "running"
	PhaseCompleted Phase = "completed"
	PhaseError     Phase = "error"
)

// ProgressTopic is the EventBus topic progress snapshots are published on.
const ProgressTopic = "backtest:progress"

type Phase string

type ProgressSnapshot struct {
	RunID         string `json:"runId,omitempty"`
	Percent       int    `json:"percent"`
	Message       string `json:"message"`
	Phase         Phase  `json:"phase"`
	CurrentCandle int    `json:"currentCandle"`
	TotalCandles  int    `json:"totalCandles"`
	AdvisoryCalls int    `json:"advisoryCalls"`
}

// Progress is the pollable state of one run. It is written by the run loop and
// read from anywhere; readers may see a slightly stale snapshot. When a bus is
// set every phase or percent change is also published on ProgressTopic.
type Progress struct {
	mu   sync.RWMutex
	snap ProgressSnapshot
	bus  EventBus.Bus
}

func NewProgress(runID string, bus EventBus.Bus) *Progress {
	return &Progress{
		snap: ProgressSnapshot{RunID: runID, Phase: PhaseQueued, Message: "queued"},
		bus:  bus,
	}
}

func (p *Progress) Snapshot() ProgressSnapshot {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.snap
}

func (p *Progress) SetPhase(phase Phase, message string) {
	p.mu.Lock()
	p.snap.Phase = phase
	p.snap.Message = message
	if phase == PhaseCompleted {
		p.snap.Percent = 100
	}
	snap := p.snap
	p.mu.Unlock()

	p.publish(snap)
}

// Update records the candle just processed. Snapshots are only published when
// the whole percentage changes.
func (p *Progress) Update(current, total int, message string) {
	percent := 0
	if total > 0 {
		percent = current * 100 / total
	}

	p.mu.Lock()
	changed := percent != p.snap.Percent || p.snap.Phase != PhaseRunning
	p.snap.Phase = PhaseRunning
	p.snap.CurrentCandle = current
	p.snap.TotalCandles = total
	p.snap.Percent = percent
	p.snap.Message = message
	snap := p.snap
	p.mu.Unlock()

	if changed {
		p.publish(snap)
	}
}

func (p *Progress) RecordAdvisoryCall() {
	p.mu.Lock()
	p.snap.AdvisoryCalls++
	p.mu.Unlock()
}

func (p *Progress) Fail(err error) {
	p.SetPhase(PhaseError, err.Error())
}

func (p *Progress) publish(snap ProgressSnapshot) {
	if p.bus == nil {
		return
	}
	p.bus.Publish(ProgressTopic, snap)
}
