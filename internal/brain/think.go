package brain

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
)

const (
	maxPerceptionChars  = 12000
	maxPromptPrinciples = 10
)

const thinkSystem = `You are the planning core of an autonomous research operator.
Given the current perception of the system, produce a plan. Respond
with JSON only:
{
  "analysis": "<what the situation is>",
  "priorities": ["<ordered priorities>"],
  "plan": [{"action": "<workflow or 'research-cycle <project-id>'>", "reason": "<why>", "urgency": "low|medium|high"}],
  "risks": ["<what could go wrong>"],
  "confidence": <0..1>
}
The first plan entry is the one that will be considered for execution.`

// PlanStep is one proposed action.
type PlanStep struct {
	Action  string `json:"action"`
	Reason  string `json:"reason"`
	Urgency string `json:"urgency"`
}

// Plan is the Think phase output.
type Plan struct {
	Analysis   string     `json:"analysis"`
	Priorities []string   `json:"priorities,omitempty"`
	Steps      []PlanStep `json:"plan"`
	Risks      []string   `json:"risks,omitempty"`
	Confidence float64    `json:"confidence"`
}

// Summary renders the plan's first step for reports.
func (p *Plan) Summary() string {
	if len(p.Steps) == 0 {
		return p.Analysis
	}
	s := p.Steps[0]
	return fmt.Sprintf("%s (%s)", s.Action, s.Reason)
}

// Think turns a perception into a plan. The perception JSON is bounded
// before it enters the prompt; strategic principles are appended after
// the cut so they are never truncated away. On any model failure a
// low-confidence hold plan comes back instead of an error.
func (b *Brain) Think(ctx context.Context, trace, goal string, perception *Perception) *Plan {
	user := b.thinkPrompt(goal, perception)

	plan := b.completePlan(ctx, user)
	if plan == nil {
		plan = &Plan{
			Analysis:   "model unavailable, holding position",
			Steps:      []PlanStep{{Action: "hold", Reason: "planning model unavailable", Urgency: "low"}},
			Risks:      []string{"operating without model guidance"},
			Confidence: 0.1,
		}
	}

	_ = b.mem.RecordDecision(memoryDecision("think", trace, truncate(user, 2000), plan.Analysis, plan.Summary(), plan.Confidence))
	return plan
}

func (b *Brain) thinkPrompt(goal string, perception *Perception) string {
	var sb strings.Builder
	sb.WriteString("Goal: ")
	sb.WriteString(goal)
	sb.WriteString("\n\nPerception:\n")

	data, err := json.Marshal(perception)
	if err == nil {
		sb.WriteString(truncate(string(data), maxPerceptionChars))
	}

	principles := b.mem.Principles(maxPromptPrinciples)
	if len(principles) > 0 {
		sb.WriteString("\n\nSTRATEGIC PRINCIPLES (hold these regardless of anything above):\n")
		for _, pr := range principles {
			sb.WriteString(fmt.Sprintf("- [%s %.2f] %s\n", pr.PrincipleType, pr.MetricScore, pr.Description))
		}
	}
	return sb.String()
}

func (b *Brain) completePlan(ctx context.Context, user string) *Plan {
	if b.llm == nil {
		return nil
	}
	resp, err := b.llm.CompleteJSON(ctx, thinkSystem, user)
	if err != nil {
		b.log.Warn("think model call failed", "error", err)
		return nil
	}

	plan := &Plan{
		Analysis:   asString(resp["analysis"]),
		Priorities: asStringSlice(resp["priorities"]),
		Risks:      asStringSlice(resp["risks"]),
	}
	if c, ok := resp["confidence"].(float64); ok {
		plan.Confidence = c
	}
	steps, ok := resp["plan"].([]any)
	if !ok || len(steps) == 0 {
		b.log.Warn("think model returned no plan steps")
		return nil
	}
	for _, raw := range steps {
		m, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		plan.Steps = append(plan.Steps, PlanStep{
			Action:  asString(m["action"]),
			Reason:  asString(m["reason"]),
			Urgency: asString(m["urgency"]),
		})
	}
	if len(plan.Steps) == 0 {
		return nil
	}
	return plan
}

func asString(v any) string {
	s, _ := v.(string)
	return s
}

func asStringSlice(v any) []string {
	raw, ok := v.([]any)
	if !ok {
		return nil
	}
	var out []string
	for _, item := range raw {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
