package plumber

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"
)

const (
	psTimeout         = 5 * time.Second
	maxCycleRuntime   = 10 * time.Minute
	maxReflectRuntime = 5 * time.Minute
)

// CheckProcessHealth inspects the process table for stuck operator
// work: cycles that have run far past their timeout budget, reflection
// passes that never returned, and zombies left behind by the engine.
func (p *Plumber) CheckProcessHealth(ctx context.Context) []Issue {
	cctx, cancel := context.WithTimeout(ctx, psTimeout)
	defer cancel()
	out, err := execCommand(cctx, "ps", "-eo", "pid,etimes,stat,args").Output()
	if err != nil {
		return []Issue{{
			Category: CategoryProcess,
			Severity: SeverityWarning,
			Message:  "ps unavailable, process check skipped",
			Detail:   err.Error(),
		}}
	}
	return diagnoseProcesses(string(out))
}

func diagnoseProcesses(psOut string) []Issue {
	var issues []Issue
	lines := strings.Split(psOut, "\n")
	for i, line := range lines {
		if i == 0 {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 4 {
			continue
		}
		pid := fields[0]
		elapsed, err := strconv.Atoi(fields[1])
		if err != nil {
			continue
		}
		stat := fields[2]
		args := strings.Join(fields[3:], " ")
		runtime := time.Duration(elapsed) * time.Second

		switch {
		case strings.HasPrefix(stat, "Z") && operatorProcess(args):
			issues = append(issues, Issue{
				Category: CategoryProcess,
				Severity: SeverityWarning,
				Message:  fmt.Sprintf("zombie process pid %s", pid),
				Detail:   args,
			})
		case strings.Contains(args, "operator cycle") && runtime > maxCycleRuntime:
			issues = append(issues, Issue{
				Category: CategoryProcess,
				Severity: SeverityCritical,
				Message:  fmt.Sprintf("cycle pid %s running for %s", pid, runtime),
				Detail:   args,
			})
		case strings.Contains(args, "operator reflect") && runtime > maxReflectRuntime:
			issues = append(issues, Issue{
				Category: CategoryProcess,
				Severity: SeverityWarning,
				Message:  fmt.Sprintf("reflect pid %s running for %s", pid, runtime),
				Detail:   args,
			})
		}
	}
	return issues
}

func operatorProcess(args string) bool {
	return strings.Contains(args, "operator ") || strings.Contains(args, "op run")
}
