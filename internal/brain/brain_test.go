package brain

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Mickdownunder/worldclass-agent-sub001/internal/config"
	"github.com/Mickdownunder/worldclass-agent-sub001/internal/jobs"
	"github.com/Mickdownunder/worldclass-agent-sub001/internal/logging"
	"github.com/Mickdownunder/worldclass-agent-sub001/internal/memory"
)

type scriptedLLM struct {
	think   map[string]any
	reflect map[string]any
	err     error
}

func (s *scriptedLLM) CompleteJSON(_ context.Context, system, _ string) (map[string]any, error) {
	if s.err != nil {
		return nil, s.err
	}
	if strings.Contains(system, "planning core") {
		return s.think, nil
	}
	return s.reflect, nil
}

// opStub is a fake op binary: job new prints a fresh job directory,
// run writes the job record and reports DONE.
const opStub = `#!/bin/sh
case "$1" in
  job)
    d="$(pwd)/jobs/2026-08-31/j1"
    mkdir -p "$d"
    printf '%s\n' "$d"
    ;;
  run)
    dir="$2"
    printf '{"id":"j1","workflow_id":"site-monitor","status":"DONE","exit_code":0,"created_at":"2026-08-31T10:00:00Z"}\n' > "$dir/job.json"
    printf 'working\n' > "$dir/log.txt"
    echo DONE
    ;;
esac
`

func newTestBrain(t *testing.T, governance int, llm jsonCompleter) *Brain {
	t.Helper()
	root := t.TempDir()
	for _, d := range []string{"workflows", "conf", "memory", "bin", "research"} {
		require.NoError(t, os.MkdirAll(filepath.Join(root, d), 0755))
	}
	cfg := &config.Config{Root: root, Governance: config.ClampGovernance(governance)}

	mem, err := memory.Open(cfg.MemoryDir(), logging.Discard())
	require.NoError(t, err)
	t.Cleanup(func() { mem.Close() })

	opBin := filepath.Join(root, "bin", "op")
	require.NoError(t, os.WriteFile(opBin, []byte(opStub), 0755))
	runner := &jobs.Runner{OpBin: opBin, Dir: root}

	return New(cfg, mem, llm, runner, logging.Discard())
}

func addWorkflow(t *testing.T, b *Brain, name string) {
	t.Helper()
	path := filepath.Join(b.cfg.WorkflowsDir(), name+".sh")
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/bash\necho ok\n"), 0755))
}

func TestNewTraceID(t *testing.T) {
	a, b := NewTraceID(), NewTraceID()
	assert.Regexp(t, regexp.MustCompile(`^[0-9a-f]{12}$`), a)
	assert.NotEqual(t, a, b)
}

func TestResolveAction(t *testing.T) {
	tests := []struct {
		action, reason    string
		workflow, request string
	}{
		{"research-cycle proj-abc12", "", "research-cycle", "proj-abc12"},
		{"research-cycle for proj-x9", "", "research-cycle", "proj-x9"},
		{"research-cycle", "proj-b7 needs another pass", "research-cycle", "proj-b7"},
		{"research-cycle", "resume work on proj-abc12 today", "research-cycle", "proj-abc12"},
		{"research-cycle", "continue", "research-cycle", "unknown"},
		{"site-monitor", "check uptime", "site-monitor", "brain::check uptime"},
		{"site-monitor", "", "site-monitor", "brain::site-monitor"},
	}
	for _, tt := range tests {
		workflow, request := resolveAction(tt.action, tt.reason)
		assert.Equal(t, tt.workflow, workflow, tt.action)
		assert.Equal(t, tt.request, request, tt.action)
	}
}

func TestDecideGovernanceTranslation(t *testing.T) {
	plan := &Plan{Steps: []PlanStep{{Action: "site-monitor", Reason: "routine", Urgency: "low"}}, Confidence: 0.8}

	low := newTestBrain(t, 1, nil)
	d := low.Decide(NewTraceID(), plan)
	assert.False(t, d.Approved)
	assert.Contains(t, d.Note, "withheld by governance suggest")

	high := newTestBrain(t, 2, nil)
	d = high.Decide(NewTraceID(), plan)
	assert.True(t, d.Approved)
	assert.Contains(t, d.Note, "approved")
}

func TestDecideCarriesPlannedActions(t *testing.T) {
	b := newTestBrain(t, 2, nil)
	plan := &Plan{Steps: []PlanStep{
		{Action: "site-monitor", Reason: "routine", Urgency: "low"},
		{Action: "research-cycle proj-a1", Reason: "resume", Urgency: "medium"},
	}, Confidence: 0.8}

	d := b.Decide(NewTraceID(), plan)
	assert.Equal(t, "site-monitor", d.Action)
	assert.Equal(t, []string{"site-monitor", "research-cycle proj-a1"}, d.Planned)
}

func TestDecideEmptyPlanHolds(t *testing.T) {
	b := newTestBrain(t, 3, nil)
	d := b.Decide(NewTraceID(), &Plan{})
	assert.Equal(t, "hold", d.Action)
	assert.True(t, d.Approved)
}

func TestThinkFallbackOnModelFailure(t *testing.T) {
	b := newTestBrain(t, 3, &scriptedLLM{err: errors.New("boom")})
	plan := b.Think(context.Background(), NewTraceID(), "keep things healthy", &Perception{})
	require.Len(t, plan.Steps, 1)
	assert.Equal(t, "hold", plan.Steps[0].Action)
	assert.InDelta(t, 0.1, plan.Confidence, 1e-9)
	assert.NotEmpty(t, plan.Risks)
}

func TestThinkFallbackWithoutModel(t *testing.T) {
	b := newTestBrain(t, 3, nil)
	plan := b.Think(context.Background(), NewTraceID(), "goal", &Perception{})
	require.Len(t, plan.Steps, 1)
	assert.Equal(t, "hold", plan.Steps[0].Action)
}

func TestThinkParsesPlan(t *testing.T) {
	b := newTestBrain(t, 3, &scriptedLLM{think: map[string]any{
		"analysis":   "all quiet",
		"priorities": []any{"monitor"},
		"plan": []any{
			map[string]any{"action": "site-monitor", "reason": "routine sweep", "urgency": "low"},
			map[string]any{"action": "research-cycle proj-a1", "reason": "resume", "urgency": "medium"},
		},
		"risks":      []any{"none"},
		"confidence": 0.9,
	}})
	plan := b.Think(context.Background(), NewTraceID(), "goal", &Perception{})
	require.Len(t, plan.Steps, 2)
	assert.Equal(t, "site-monitor", plan.Steps[0].Action)
	assert.Equal(t, []string{"monitor"}, plan.Priorities)
	assert.InDelta(t, 0.9, plan.Confidence, 1e-9)
	assert.Equal(t, "site-monitor (routine sweep)", plan.Summary())
}

func TestThinkPromptRendersPrincipleScores(t *testing.T) {
	b := newTestBrain(t, 3, nil)
	require.NoError(t, b.mem.AddStrategicPrinciple(memory.StrategicPrinciple{
		Description:   "prefer fresh sources",
		PrincipleType: memory.PrincipleGuiding,
		MetricScore:   0.8,
	}))

	prompt := b.thinkPrompt("goal", &Perception{})
	assert.Contains(t, prompt, "STRATEGIC PRINCIPLES")
	assert.Contains(t, prompt, "[guiding 0.80] prefer fresh sources")
}

func TestThinkRejectsEmptyPlan(t *testing.T) {
	b := newTestBrain(t, 3, &scriptedLLM{think: map[string]any{
		"analysis": "hmm", "confidence": 0.5, "plan": []any{},
	}})
	plan := b.Think(context.Background(), NewTraceID(), "goal", &Perception{})
	assert.Equal(t, "hold", plan.Steps[0].Action)
	assert.InDelta(t, 0.1, plan.Confidence, 1e-9)
}

func TestHeuristicReflection(t *testing.T) {
	r := heuristicReflection(&jobs.Job{Status: jobs.StatusDone, ExitCode: 0})
	assert.InDelta(t, 0.75, r.Quality, 1e-9)
	assert.False(t, r.ShouldRetry)

	r = heuristicReflection(&jobs.Job{Status: jobs.StatusFailed, ExitCode: 1})
	assert.InDelta(t, 0.25, r.Quality, 1e-9)
	assert.True(t, r.ShouldRetry)

	r = heuristicReflection(&jobs.Job{Status: "UNKNOWN"})
	assert.InDelta(t, 0.4, r.Quality, 1e-9)
}

func TestActSkipsUnapprovedDecision(t *testing.T) {
	b := newTestBrain(t, 1, nil)
	addWorkflow(t, b, "site-monitor")
	res := b.Act(context.Background(), NewTraceID(), &Decision{
		Action: "site-monitor", Approved: false, Note: "withheld",
	})
	assert.False(t, res.Executed)
	assert.Equal(t, "skipped", res.Status)
	// op was never called, so no jobs tree exists.
	_, err := os.Stat(filepath.Join(b.cfg.Root, "jobs"))
	assert.True(t, os.IsNotExist(err))
}

func TestActHoldsOnBlankAction(t *testing.T) {
	b := newTestBrain(t, 3, nil)
	res := b.Act(context.Background(), NewTraceID(), &Decision{
		Action: "   ", Approved: true,
	})
	assert.False(t, res.Executed)
	assert.Equal(t, "skipped", res.Status)
}

func TestActMissingWorkflow(t *testing.T) {
	b := newTestBrain(t, 3, nil)
	res := b.Act(context.Background(), NewTraceID(), &Decision{
		Action: "does-not-exist", Approved: true,
	})
	assert.False(t, res.Executed)
	assert.Equal(t, "no_workflow", res.Status)
}

func TestActRunsWorkflow(t *testing.T) {
	b := newTestBrain(t, 3, nil)
	addWorkflow(t, b, "site-monitor")
	res := b.Act(context.Background(), NewTraceID(), &Decision{
		Action: "site-monitor", Reason: "routine", Approved: true,
	})
	assert.True(t, res.Executed)
	assert.Equal(t, jobs.StatusDone, res.Status)
	assert.NotEmpty(t, res.JobDir)
	assert.Equal(t, "brain::routine", res.Request)
}

func TestCycleRejectedDecisionDoesNotExecute(t *testing.T) {
	b := newTestBrain(t, 1, &scriptedLLM{think: map[string]any{
		"analysis":   "monitor due",
		"plan":       []any{map[string]any{"action": "site-monitor", "reason": "routine", "urgency": "low"}},
		"confidence": 0.8,
	}})
	addWorkflow(t, b, "site-monitor")

	result, err := b.RunCycle(context.Background(), "stay healthy")
	require.NoError(t, err)
	assert.Equal(t, "suggest", result.GovernanceMode)
	assert.False(t, result.Executed)
	assert.Equal(t, "skipped", result.Status)
	assert.Contains(t, result.Decision, "withheld")
	_, statErr := os.Stat(filepath.Join(b.cfg.Root, "jobs"))
	assert.True(t, os.IsNotExist(statErr))
}

func TestCycleExecutesAndReflects(t *testing.T) {
	llm := &scriptedLLM{
		think: map[string]any{
			"analysis":   "monitor due",
			"plan":       []any{map[string]any{"action": "site-monitor", "reason": "routine", "urgency": "low"}},
			"confidence": 0.8,
		},
		reflect: map[string]any{
			"outcome_summary": "sweep clean",
			"went_well":       "fast",
			"learnings":       "site is stable",
			"quality_score":   0.9,
			"should_retry":    false,
			"playbook_update": map[string]any{
				"domain": "monitoring", "strategy": "sweep hourly",
				"evidence": "j1", "success_rate": 1.0,
			},
		},
	}
	b := newTestBrain(t, 3, llm)
	addWorkflow(t, b, "site-monitor")

	result, err := b.RunCycle(context.Background(), "stay healthy")
	require.NoError(t, err)
	assert.True(t, result.Executed)
	assert.Equal(t, jobs.StatusDone, result.Status)
	assert.InDelta(t, 0.9, result.Quality, 1e-9)
	assert.Equal(t, "site is stable", result.Learnings)

	// The reflection carries the cycle's trace id.
	reflections := b.mem.RecentReflections(10, 0)
	require.Len(t, reflections, 1)
	assert.Equal(t, result.TraceID, reflections[0].TraceID)
	assert.Equal(t, "j1", reflections[0].JobID)

	playbooks := b.mem.Playbooks(10)
	require.Len(t, playbooks, 1)
	assert.Equal(t, "monitoring", playbooks[0].Domain)
}

func TestReflectFallbackScoresFailedJob(t *testing.T) {
	b := newTestBrain(t, 3, nil)
	jobDir := filepath.Join(b.cfg.JobsDir(), "2026-08-31", "j9")
	require.NoError(t, os.MkdirAll(jobDir, 0755))
	rec := `{"id":"j9","workflow_id":"scrape","status":"FAILED","exit_code":2,"created_at":"2026-08-31T09:00:00Z"}`
	require.NoError(t, os.WriteFile(filepath.Join(jobDir, "job.json"), []byte(rec), 0644))

	r := b.ReflectOnJob(context.Background(), NewTraceID(), jobDir, "goal")
	assert.InDelta(t, 0.25, r.Quality, 1e-9)
	assert.True(t, r.ShouldRetry)

	reflections := b.mem.RecentReflections(10, 0)
	require.Len(t, reflections, 1)
	assert.Equal(t, "scrape", reflections[0].WorkflowID)
}

func TestPerceiveGathersSnapshot(t *testing.T) {
	b := newTestBrain(t, 0, nil)
	addWorkflow(t, b, "site-monitor")
	addWorkflow(t, b, "research-cycle")
	require.NoError(t, os.WriteFile(filepath.Join(b.cfg.ConfDir(), "goals.md"),
		[]byte("# Goals\nKeep the fleet healthy.\n"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(b.cfg.ConfDir(), "clients.yaml"),
		[]byte("- name: acme\n- globex\n"), 0644))

	projDir := filepath.Join(b.cfg.ResearchDir(), "proj-a1")
	require.NoError(t, os.MkdirAll(projDir, 0755))
	proj := `{"id":"proj-a1","question":"battery chemistry trends","status":"running","created_at":"2026-08-30T00:00:00Z","last_phase_at":"2026-08-30T01:00:00Z"}`
	require.NoError(t, os.WriteFile(filepath.Join(projDir, "project.json"), []byte(proj), 0644))

	orig := execCommand
	execCommand = func(ctx context.Context, name string, args ...string) *exec.Cmd {
		return exec.Command("sh", "-c",
			`printf 'Filesystem 1024-blocks Used Available Capacity Mounted on\n/dev/sda1 100 63 37 63%% /\n'`)
	}
	defer func() { execCommand = orig }()

	p := b.Perceive(context.Background(), NewTraceID())
	assert.InDelta(t, 63, p.DiskUsedPct, 1e-9)
	assert.Equal(t, []string{"research-cycle", "site-monitor"}, p.Workflows)
	assert.Equal(t, []string{"acme", "globex"}, p.Clients)
	assert.Contains(t, p.GoalNotes, "fleet healthy")
	require.Len(t, p.Projects, 1)
	assert.Equal(t, "standard", p.Projects[0].Mode)
	require.NotNil(t, p.Context)
	assert.Contains(t, p.Context, "totals")
}
