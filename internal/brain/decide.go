package brain

import (
	"github.com/Mickdownunder/worldclass-agent-sub001/internal/memory"
)

// Decision is the Decide phase output: the chosen action and whether
// governance lets it run.
type Decision struct {
	Action   string   `json:"action"`
	Reason   string   `json:"reason"`
	Urgency  string   `json:"urgency"`
	Approved bool     `json:"approved"`
	Note     string   `json:"note"`
	Planned  []string `json:"planned,omitempty"`
}

// Decide picks the plan's first step and translates the governance
// level into an approval. Levels 0 and 1 never execute; levels 2 and 3
// do.
func (b *Brain) Decide(trace string, plan *Plan) *Decision {
	d := &Decision{Action: "hold", Reason: "empty plan"}
	if len(plan.Steps) > 0 {
		step := plan.Steps[0]
		d.Action = step.Action
		d.Reason = step.Reason
		d.Urgency = step.Urgency
		for _, s := range plan.Steps {
			d.Planned = append(d.Planned, s.Action)
		}
	}

	switch {
	case b.cfg.Governance.Approves():
		d.Approved = true
		d.Note = "approved: " + d.Action
	default:
		d.Note = "withheld by governance " + b.cfg.Governance.String() + ": " + d.Action
	}

	_ = b.mem.RecordDecision(memoryDecision("decide", trace, plan.Summary(), d.Reason, d.Note, plan.Confidence))
	return d
}

func memoryDecision(phase, trace, inputs, reasoning, decision string, confidence float64) memory.Decision {
	return memory.Decision{
		Phase:      phase,
		Inputs:     inputs,
		Reasoning:  reasoning,
		Decision:   decision,
		Confidence: confidence,
		TraceID:    trace,
	}
}
