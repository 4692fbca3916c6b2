package brain

import (
	"context"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"
)

// Timeouts are layered: the engine gets engineTimeout via the op flag,
// and the parent kills op itself shortly after in case the engine
// timeout never fires.
const (
	engineTimeout = 180 * time.Second
	parentTimeout = 200 * time.Second
)

var reProjectID = regexp.MustCompile(`\bproj-[A-Za-z0-9-]+`)

// ActResult is the Act phase output.
type ActResult struct {
	Executed bool   `json:"executed"`
	Workflow string `json:"workflow,omitempty"`
	Request  string `json:"request,omitempty"`
	JobDir   string `json:"job_dir,omitempty"`
	Status   string `json:"status"`
	ExitCode int    `json:"exit_code,omitempty"`
}

// Act executes an approved decision by dispatching the matching
// workflow through op. Unapproved decisions are recorded and skipped.
func (b *Brain) Act(ctx context.Context, trace string, d *Decision) *ActResult {
	if !d.Approved {
		_ = b.mem.RecordEpisode("act_skipped", d.Note, map[string]any{"action": d.Action}, trace)
		return &ActResult{Status: "skipped"}
	}
	if action := strings.TrimSpace(d.Action); action == "hold" || action == "" {
		_ = b.mem.RecordEpisode("act_skipped", "hold", nil, trace)
		return &ActResult{Status: "skipped"}
	}

	workflow, request := resolveAction(d.Action, d.Reason)
	script := filepath.Join(b.cfg.WorkflowsDir(), workflow+".sh")
	if _, err := os.Stat(script); err != nil {
		_ = b.mem.RecordEpisode("act_no_workflow", d.Action,
			map[string]any{"workflow": workflow}, trace)
		return &ActResult{Workflow: workflow, Status: "no_workflow"}
	}

	jobDir, err := b.runner.NewJob(ctx, workflow, request)
	if err != nil {
		b.log.Warn("job creation failed", "workflow", workflow, "error", err)
		_ = b.mem.RecordEpisode("act_error", err.Error(),
			map[string]any{"workflow": workflow}, trace)
		return &ActResult{Workflow: workflow, Status: "error"}
	}

	res := b.runner.Run(ctx, jobDir, engineTimeout, parentTimeout)
	_ = b.mem.RecordEpisode("act", d.Action, map[string]any{
		"workflow":  workflow,
		"request":   request,
		"job_dir":   jobDir,
		"status":    res.Status,
		"exit_code": res.ExitCode,
		"timed_out": res.TimedOut,
	}, trace)

	return &ActResult{
		Executed: true,
		Workflow: workflow,
		Request:  request,
		JobDir:   jobDir,
		Status:   res.Status,
		ExitCode: res.ExitCode,
	}
}

// resolveAction splits an action into workflow and request. The
// research-cycle workflow takes a project id as its request, parsed
// from the plan reason (prefix match, then a regex scan of reason and
// action); when none can be parsed, the engine gets "unknown" and
// picks its own project. Everything else carries the plan reason so
// job records stay attributable.
func resolveAction(action, reason string) (workflow, request string) {
	fields := strings.Fields(action)
	if len(fields) == 0 {
		return "", ""
	}
	workflow = fields[0]

	if workflow == "research-cycle" {
		if strings.HasPrefix(strings.TrimSpace(reason), "proj-") {
			return workflow, strings.Fields(reason)[0]
		}
		if m := reProjectID.FindString(reason); m != "" {
			return workflow, m
		}
		if m := reProjectID.FindString(action); m != "" {
			return workflow, m
		}
		return workflow, "unknown"
	}

	request = "brain::" + reason
	if reason == "" {
		request = "brain::" + action
	}
	return workflow, request
}
