// Package brain drives the operator's cognitive loop. One cycle runs
// Perceive, Think, Decide, Act, Reflect and Remember in order, under a
// shared trace id, with every phase leaving a durable record in memory.
package brain

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"log/slog"
	"os/exec"

	"github.com/Mickdownunder/worldclass-agent-sub001/internal/config"
	"github.com/Mickdownunder/worldclass-agent-sub001/internal/jobs"
	"github.com/Mickdownunder/worldclass-agent-sub001/internal/memory"
)

// execCommand is swapped by tests to stub system probes.
var execCommand = exec.CommandContext

// jsonCompleter is the LLM capability the loop needs.
type jsonCompleter interface {
	CompleteJSON(ctx context.Context, system, user string) (map[string]any, error)
}

// Brain ties the loop's phases together.
type Brain struct {
	cfg    *config.Config
	mem    *memory.Store
	llm    jsonCompleter
	runner *jobs.Runner
	log    *slog.Logger
}

// New builds a brain. llm may be nil, in which case Think and Reflect
// fall back to their deterministic heuristics.
func New(cfg *config.Config, mem *memory.Store, llm jsonCompleter, runner *jobs.Runner, log *slog.Logger) *Brain {
	if log == nil {
		log = slog.Default()
	}
	if runner == nil {
		runner = jobs.NewRunner(cfg.Root)
	}
	return &Brain{cfg: cfg, mem: mem, llm: llm, runner: runner, log: log}
}

// NewTraceID returns a fresh 12-hex-digit trace id.
func NewTraceID() string {
	var buf [6]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return "000000000000"
	}
	return hex.EncodeToString(buf[:])
}

// CycleResult summarizes one full cycle for callers and the CLI.
type CycleResult struct {
	TraceID        string  `json:"trace_id"`
	Goal           string  `json:"goal"`
	GovernanceMode string  `json:"governance_mode"`
	PlanSummary    string  `json:"plan_summary"`
	Decision       string  `json:"decision"`
	Executed       bool    `json:"executed"`
	Status         string  `json:"status,omitempty"`
	Quality        float64 `json:"quality,omitempty"`
	Learnings      string  `json:"learnings,omitempty"`
	ShouldRetry    bool    `json:"should_retry,omitempty"`
}

// RunCycle executes one complete cognitive cycle.
func (b *Brain) RunCycle(ctx context.Context, goal string) (*CycleResult, error) {
	trace := NewTraceID()
	b.log.Info("cycle start", "trace_id", trace, "goal", goal,
		"governance", b.cfg.Governance.String())

	perception := b.Perceive(ctx, trace)
	plan := b.Think(ctx, trace, goal, perception)
	decision := b.Decide(trace, plan)

	result := &CycleResult{
		TraceID:        trace,
		Goal:           goal,
		GovernanceMode: b.cfg.Governance.String(),
		PlanSummary:    plan.Summary(),
		Decision:       decision.Note,
	}

	act := b.Act(ctx, trace, decision)
	result.Executed = act.Executed
	result.Status = act.Status

	if act.Executed && act.JobDir != "" {
		refl := b.ReflectOnJob(ctx, trace, act.JobDir, goal)
		result.Quality = refl.Quality
		result.Learnings = refl.Learnings
		result.ShouldRetry = refl.ShouldRetry
	}

	b.remember(trace, result)
	b.log.Info("cycle complete", "trace_id", trace, "executed", result.Executed,
		"status", result.Status)
	return result, nil
}

// remember closes the loop with a cycle_complete episode.
func (b *Brain) remember(trace string, result *CycleResult) {
	_ = b.mem.RecordEpisode("cycle_complete", result.PlanSummary, map[string]any{
		"goal":         result.Goal,
		"governance":   result.GovernanceMode,
		"decision":     result.Decision,
		"executed":     result.Executed,
		"status":       result.Status,
		"quality":      result.Quality,
		"should_retry": result.ShouldRetry,
	}, trace)
}
