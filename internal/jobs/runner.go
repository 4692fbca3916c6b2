package jobs

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"time"
)

// execCommand is swapped by tests to stub the op CLI.
var execCommand = exec.CommandContext

// RunResult captures one op run invocation.
type RunResult struct {
	Status   string `json:"status"`
	ExitCode int    `json:"exit_code"`
	Stdout   string `json:"stdout,omitempty"`
	Stderr   string `json:"stderr,omitempty"`
	TimedOut bool   `json:"timed_out,omitempty"`
}

// Runner dispatches workflow jobs via the external op CLI.
type Runner struct {
	// OpBin is the op executable; default "op".
	OpBin string
	// Dir is the working directory for op invocations (the operator root).
	Dir string
}

// NewRunner builds a runner rooted at the operator directory.
func NewRunner(root string) *Runner {
	return &Runner{OpBin: "op", Dir: root}
}

// NewJob creates a job for the workflow with the given request string
// and returns the new job directory printed by op.
func (r *Runner) NewJob(ctx context.Context, workflow, request string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	cmd := execCommand(ctx, r.OpBin, "job", "new", "--workflow", workflow, "--request", request)
	cmd.Dir = r.Dir
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("op job new %s: %w: %s", workflow, err, strings.TrimSpace(stderr.String()))
	}
	jobDir := strings.TrimSpace(stdout.String())
	if jobDir == "" {
		return "", errors.New("op job new printed no job directory")
	}
	return jobDir, nil
}

// Run executes a job with two layered timeouts: engineTimeout is passed
// to op as a flag, and parentTimeout kills the child if the engine
// timeout fails to take effect. A timed-out run reports FAILED.
func (r *Runner) Run(ctx context.Context, jobDir string, engineTimeout, parentTimeout time.Duration) RunResult {
	ctx, cancel := context.WithTimeout(ctx, parentTimeout)
	defer cancel()

	cmd := execCommand(ctx, r.OpBin, "run", jobDir,
		"--timeout", strconv.Itoa(int(engineTimeout.Seconds())))
	cmd.Dir = r.Dir
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	result := RunResult{
		Stdout: stdout.String(),
		Stderr: stderr.String(),
	}

	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		result.Status = StatusFailed
		result.ExitCode = -1
		result.TimedOut = true
		return result
	}

	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			result.ExitCode = exitErr.ExitCode()
		} else {
			result.ExitCode = -1
		}
	}

	// op prints a status word on stdout; fall back to the exit code.
	status := strings.ToUpper(lastWord(stdout.String()))
	switch status {
	case StatusDone, StatusFailed:
		result.Status = status
	default:
		if result.ExitCode == 0 {
			result.Status = StatusDone
		} else {
			result.Status = StatusFailed
		}
	}
	return result
}

func lastWord(s string) string {
	fields := strings.Fields(s)
	if len(fields) == 0 {
		return ""
	}
	return fields[len(fields)-1]
}
