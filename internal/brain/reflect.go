package brain

import (
	"context"
	"fmt"
	"strings"

	"github.com/Mickdownunder/worldclass-agent-sub001/internal/jobs"
	"github.com/Mickdownunder/worldclass-agent-sub001/internal/memory"
)

const reflectSystem = `You review a finished automation job and extract what it taught us.
Respond with JSON only:
{
  "outcome_summary": "<one line>",
  "went_well": "<text>",
  "went_wrong": "<text>",
  "learnings": "<text>",
  "quality_score": <0..1>,
  "should_retry": <bool>,
  "playbook_update": {"domain": "<domain>", "strategy": "<text>", "evidence": "<text>", "success_rate": <0..1>}
}
Omit playbook_update if the job taught nothing strategy-level.`

// ReflectionResult is the Reflect phase output.
type ReflectionResult struct {
	Outcome     string  `json:"outcome"`
	Quality     float64 `json:"quality"`
	WentWell    string  `json:"went_well,omitempty"`
	WentWrong   string  `json:"went_wrong,omitempty"`
	Learnings   string  `json:"learnings,omitempty"`
	ShouldRetry bool    `json:"should_retry"`
}

// ReflectOnJob reviews one finished job, scores it, and persists the
// reflection, the quality record, and any playbook update. When the
// model is unavailable the score falls back to a status heuristic.
func (b *Brain) ReflectOnJob(ctx context.Context, trace, jobDir, goal string) *ReflectionResult {
	job, err := jobs.Load(jobDir)
	if err != nil {
		b.log.Warn("reflect: job record unreadable", "job_dir", jobDir, "error", err)
		job = &jobs.Job{Dir: jobDir, Status: jobs.StatusFailed, ExitCode: -1}
	}
	logTail := jobs.LogTail(jobDir, 2000)
	artifacts := jobs.Artifacts(jobDir)

	result, playbook := b.completeReflection(ctx, job, goal, logTail, artifacts)
	if result == nil {
		result = heuristicReflection(job)
	}

	_ = b.mem.RecordReflection(memory.Reflection{
		JobID:      job.ID,
		Outcome:    result.Outcome,
		Quality:    result.Quality,
		WorkflowID: job.WorkflowID,
		Goal:       goal,
		WentWell:   result.WentWell,
		WentWrong:  result.WentWrong,
		Learnings:  result.Learnings,
		TraceID:    trace,
	})
	_ = b.mem.RecordQuality(memory.QualityRecord{
		JobID:      job.ID,
		Score:      result.Quality,
		WorkflowID: job.WorkflowID,
		Notes:      result.Outcome,
		TraceID:    trace,
	})
	if playbook != nil {
		domain := playbook.Domain
		if domain == "" {
			domain = job.WorkflowID
		}
		_ = b.mem.UpsertPlaybook(domain, playbook.Strategy, playbook.Evidence, playbook.SuccessRate)
	}
	_ = b.mem.RecordDecision(memoryDecision("reflect", trace, jobDir, result.Learnings, result.Outcome, result.Quality))

	return result
}

type playbookUpdate struct {
	Domain      string
	Strategy    string
	Evidence    string
	SuccessRate float64
}

func (b *Brain) completeReflection(ctx context.Context, job *jobs.Job, goal, logTail string, artifacts []string) (*ReflectionResult, *playbookUpdate) {
	if b.llm == nil {
		return nil, nil
	}
	user := fmt.Sprintf("Goal: %s\nWorkflow: %s\nStatus: %s (exit %d)\nArtifacts: %s\n\nLog tail:\n%s",
		goal, job.WorkflowID, job.Status, job.ExitCode,
		strings.Join(artifacts, ", "), logTail)

	resp, err := b.llm.CompleteJSON(ctx, reflectSystem, user)
	if err != nil {
		b.log.Warn("reflect model call failed", "error", err)
		return nil, nil
	}
	quality, ok := resp["quality_score"].(float64)
	if !ok {
		return nil, nil
	}
	result := &ReflectionResult{
		Outcome:   asString(resp["outcome_summary"]),
		Quality:   quality,
		WentWell:  asString(resp["went_well"]),
		WentWrong: asString(resp["went_wrong"]),
		Learnings: asString(resp["learnings"]),
	}
	if retry, ok := resp["should_retry"].(bool); ok {
		result.ShouldRetry = retry
	}

	var playbook *playbookUpdate
	if raw, ok := resp["playbook_update"].(map[string]any); ok {
		playbook = &playbookUpdate{
			Domain:   asString(raw["domain"]),
			Strategy: asString(raw["strategy"]),
			Evidence: asString(raw["evidence"]),
		}
		if rate, ok := raw["success_rate"].(float64); ok {
			playbook.SuccessRate = rate
		}
		if playbook.Strategy == "" {
			playbook = nil
		}
	}
	return result, playbook
}

// heuristicReflection scores a job from its status alone.
func heuristicReflection(job *jobs.Job) *ReflectionResult {
	switch {
	case job.Status == jobs.StatusDone && job.ExitCode == 0:
		return &ReflectionResult{
			Outcome: "completed cleanly",
			Quality: 0.75,
		}
	case job.Status == jobs.StatusFailed:
		return &ReflectionResult{
			Outcome:     "failed",
			Quality:     0.25,
			ShouldRetry: true,
		}
	}
	return &ReflectionResult{
		Outcome: "ambiguous outcome",
		Quality: 0.4,
	}
}
