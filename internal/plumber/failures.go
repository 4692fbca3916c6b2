package plumber

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/Mickdownunder/worldclass-agent-sub001/internal/jobs"
)

const (
	failureScanWindow   = 50
	repeatFailThreshold = 2
)

// CheckRepeatedFailures scans the recent job history for workflows
// that keep failing with the same error, fingerprints the error, and
// routes the owning workflow script through the fix pipeline.
func (p *Plumber) CheckRepeatedFailures(ctx context.Context) []Issue {
	recent := jobs.Recent(p.cfg.JobsDir(), failureScanWindow)

	failed := make(map[string][]*jobs.Job)
	for _, j := range recent {
		if j.Status == jobs.StatusFailed {
			failed[j.WorkflowID] = append(failed[j.WorkflowID], j)
		}
	}

	var issues []Issue
	for workflow, js := range failed {
		if len(js) < repeatFailThreshold {
			continue
		}
		errLine, sampled := commonErrorLine(js)
		issue := Issue{
			Category: CategoryFailures,
			Severity: SeverityCritical,
			Workflow: workflow,
			Message:  fmt.Sprintf("%d of last %d jobs failed", len(js), len(recent)),
			Detail:   errLine,
		}
		if !sampled {
			issue.FixOutcome = FixNoLogs
			issues = append(issues, issue)
			continue
		}
		issue.FixOutcome = p.fixFailingWorkflow(ctx, workflow, errLine)
		issues = append(issues, issue)
	}
	return issues
}

func (p *Plumber) fixFailingWorkflow(ctx context.Context, workflow, errLine string) string {
	entry := p.prints.Record(workflow, errLine, false, false, "", CategoryFailures)
	if entry.NonRepairable {
		return FixNonRepairablePrefix + entry.NonRepairableWhy
	}
	if p.prints.IsOnCooldown(workflow, errLine) {
		return FixCooldownSkip
	}
	if !p.cfg.Governance.ProducesPatches() {
		return FixBlocked
	}

	script := filepath.Join(p.cfg.WorkflowsDir(), workflow+".sh")
	raw, err := os.ReadFile(script)
	if err != nil {
		return FixNoLogs
	}
	return p.llmFix(ctx, workflow, errLine, script, string(raw), p.verifyShellContent)
}

// commonErrorLine picks the most frequent final error line across the
// failed jobs' logs, falling back to the recorded job error. The
// second return is false when no job produced any text at all.
func commonErrorLine(failed []*jobs.Job) (string, bool) {
	counts := make(map[string]int)
	var best string
	for _, j := range failed {
		line := lastLogLine(j)
		if line == "" {
			continue
		}
		counts[line]++
		if best == "" || counts[line] > counts[best] {
			best = line
		}
	}
	if best == "" {
		return "", false
	}
	return best, true
}

func lastLogLine(j *jobs.Job) string {
	tail := jobs.LogTail(j.Dir, 2000)
	lines := strings.Split(tail, "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		if s := strings.TrimSpace(lines[i]); s != "" && s != jobs.StatusFailed {
			return s
		}
	}
	return strings.TrimSpace(j.Error)
}
