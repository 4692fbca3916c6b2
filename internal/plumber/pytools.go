package plumber

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

const pyCheckTimeout = 15 * time.Second

// importProbe imports a tool by path in a throwaway interpreter so
// top-level import errors surface without running main().
const importProbe = `
import importlib.util, pathlib, sys
path = pathlib.Path(sys.argv[1])
spec = importlib.util.spec_from_file_location(path.stem, path)
mod = importlib.util.module_from_spec(spec)
spec.loader.exec_module(mod)
`

// CheckPythonTools byte-compiles every tools/*.py and then verifies
// each one survives a bare import.
func (p *Plumber) CheckPythonTools(ctx context.Context) []Issue {
	tools, err := filepath.Glob(filepath.Join(p.cfg.ToolsDir(), "*.py"))
	if err != nil {
		return nil
	}
	sort.Strings(tools)

	var issues []Issue
	for _, tool := range tools {
		name := filepath.Base(tool)
		if msg := p.runPython(ctx, "-m", "py_compile", tool); msg != "" {
			issue := Issue{
				Category: CategoryPyTools,
				Severity: SeverityCritical,
				File:     tool,
				Message:  "python tool does not compile",
				Detail:   msg,
			}
			issue.FixOutcome = p.fixPythonTool(ctx, tool, name, msg)
			issues = append(issues, issue)
			continue
		}
		if msg := p.runPython(ctx, "-c", importProbe, tool); msg != "" {
			issues = append(issues, Issue{
				Category: CategoryPyTools,
				Severity: SeverityWarning,
				File:     tool,
				Message:  "python tool fails to import",
				Detail:   msg,
			})
		}
	}
	return issues
}

// runPython returns combined output on failure, "" on success. A probe
// that exceeds its timeout is itself a diagnosis.
func (p *Plumber) runPython(ctx context.Context, args ...string) string {
	cctx, cancel := context.WithTimeout(ctx, pyCheckTimeout)
	defer cancel()
	cmd := execCommand(cctx, p.pythonBin(), args...)
	cmd.Dir = p.cfg.ToolsDir()
	out, err := cmd.CombinedOutput()
	if err == nil {
		return ""
	}
	if cctx.Err() == context.DeadlineExceeded {
		return fmt.Sprintf("check timed out after %s", pyCheckTimeout)
	}
	msg := strings.TrimSpace(string(out))
	if msg == "" {
		msg = err.Error()
	}
	return msg
}

// pythonBin prefers the operator venv interpreter when present.
func (p *Plumber) pythonBin() string {
	venv := filepath.Join(p.cfg.Root, "venv", "bin", "python3")
	if _, err := os.Stat(venv); err == nil {
		return venv
	}
	return "python3"
}

func (p *Plumber) fixPythonTool(ctx context.Context, tool, name, checkErr string) string {
	entry := p.prints.Record(name, checkErr, false, false, "", CategoryPyTools)
	if entry.NonRepairable {
		return FixNonRepairablePrefix + entry.NonRepairableWhy
	}
	if p.prints.IsOnCooldown(name, checkErr) {
		return FixCooldownSkip
	}
	if !p.cfg.Governance.ProducesPatches() {
		return FixBlocked
	}
	raw, err := os.ReadFile(tool)
	if err != nil {
		return FixNoLogs
	}
	return p.llmFix(ctx, name, checkErr, tool, string(raw), p.verifyPythonContent)
}

// verifyPythonContent byte-compiles candidate content via a temp file.
func (p *Plumber) verifyPythonContent(ctx context.Context, content string) bool {
	tmp, err := os.CreateTemp("", "plumber-*.py")
	if err != nil {
		return false
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.WriteString(content); err != nil {
		tmp.Close()
		return false
	}
	tmp.Close()
	return p.runPython(ctx, "-m", "py_compile", tmp.Name()) == ""
}
