package plumber

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"
)

const shellCheckTimeout = 10 * time.Second

// CheckShellSyntax validates every workflows/*.sh with bash -n and,
// per governance, attempts a deterministic repair of the common
// breakage classes (missing block terminators, unterminated quotes).
func (p *Plumber) CheckShellSyntax(ctx context.Context) []Issue {
	scripts, err := filepath.Glob(filepath.Join(p.cfg.WorkflowsDir(), "*.sh"))
	if err != nil {
		return nil
	}
	sort.Strings(scripts)

	var issues []Issue
	for _, script := range scripts {
		checkErr := p.verifyShell(ctx, script)
		if checkErr == "" {
			continue
		}
		workflow := strings.TrimSuffix(filepath.Base(script), ".sh")
		issue := Issue{
			Category: CategoryShell,
			Severity: SeverityCritical,
			File:     script,
			Workflow: workflow,
			Message:  "shell syntax error",
			Detail:   checkErr,
		}
		issue.FixOutcome = p.fixShell(ctx, script, workflow, checkErr)
		issues = append(issues, issue)
	}
	return issues
}

// verifyShell returns bash -n stderr for the script, or "" when the
// script parses. A check that cannot run at all is reported as its
// own diagnosis rather than swallowed.
func (p *Plumber) verifyShell(ctx context.Context, script string) string {
	cctx, cancel := context.WithTimeout(ctx, shellCheckTimeout)
	defer cancel()
	out, err := execCommand(cctx, "bash", "-n", script).CombinedOutput()
	if err == nil {
		return ""
	}
	msg := strings.TrimSpace(string(out))
	if msg == "" {
		msg = err.Error()
	}
	return msg
}

func (p *Plumber) fixShell(ctx context.Context, script, workflow, checkErr string) string {
	entry := p.prints.Record(workflow, checkErr, false, false, "", CategoryShell)
	if entry.NonRepairable {
		return FixNonRepairablePrefix + entry.NonRepairableWhy
	}
	if p.prints.IsOnCooldown(workflow, checkErr) {
		return FixCooldownSkip
	}
	if !p.cfg.Governance.ProducesPatches() {
		return FixBlocked
	}

	raw, err := os.ReadFile(script)
	if err != nil {
		return FixNoLogs
	}
	fixed, changed := repairShellSource(string(raw))
	if changed && p.verifyShellContent(ctx, fixed) {
		return p.deliverFix(ctx, workflow, checkErr, script, string(raw), fixed, "deterministic shell repair")
	}
	if changed {
		p.prints.Record(workflow, checkErr, true, false, "deterministic shell repair", CategoryShell)
	}
	return p.llmFix(ctx, workflow, checkErr, script, string(raw), p.verifyShellContent)
}

// verifyShellContent round-trips candidate content through bash -n via
// a temp file.
func (p *Plumber) verifyShellContent(ctx context.Context, content string) bool {
	tmp, err := os.CreateTemp("", "plumber-*.sh")
	if err != nil {
		return false
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.WriteString(content); err != nil {
		tmp.Close()
		return false
	}
	tmp.Close()
	return p.verifyShell(ctx, tmp.Name()) == ""
}

// deliverFix writes the patch artifacts and, at the highest governance
// level, the fixed file itself. Patches are produced even when the fix
// is not applied so an operator can review the dry run. Nothing is
// written, not even patch metadata, for a path outside the safe zone.
func (p *Plumber) deliverFix(ctx context.Context, workflow, errText, path, oldContent, newContent, summary string) string {
	if ok, err := p.inSafeZone(path); err != nil || !ok {
		p.prints.Record(workflow, errText, true, false, summary, "")
		return FixBlocked
	}
	apply := p.cfg.Governance.AppliesFixes()
	if _, err := p.writePatch(ctx, path, workflow, oldContent, newContent, summary, apply); err != nil {
		p.log.Warn("patch write failed", "file", path, "error", err)
	}
	if !apply {
		return FixDryRun
	}
	if err := os.WriteFile(path, []byte(newContent), 0755); err != nil {
		p.prints.Record(workflow, errText, true, false, summary, "")
		return FixFailedVerification
	}
	p.prints.Record(workflow, errText, true, true, summary, "")
	p.log.Info("fix applied", "file", path, "summary", summary)
	return FixApplied
}

var (
	reHeredocOpen = regexp.MustCompile(`<<-?\s*['"]?([A-Za-z_][A-Za-z0-9_]*)['"]?`)
	reBlockOpen   = regexp.MustCompile(`^(if|case|for|while|until)\b`)
	reBlockClose  = regexp.MustCompile(`^(fi|esac|done)\b`)
)

// repairShellSource applies the deterministic repairs: close quotes
// left open at end of line and append missing block terminators, both
// computed outside heredoc bodies.
func repairShellSource(src string) (string, bool) {
	lines := strings.Split(src, "\n")
	changed := false
	var heredoc string
	var stack []string

	for i, line := range lines {
		if heredoc != "" {
			if strings.TrimLeft(line, "\t") == heredoc {
				heredoc = ""
			}
			continue
		}
		if fixed, ok := closeDanglingQuote(line); ok {
			lines[i] = fixed
			line = fixed
			changed = true
		}
		if m := reHeredocOpen.FindStringSubmatch(line); m != nil {
			heredoc = m[1]
			continue
		}
		trimmed := strings.TrimSpace(line)
		if m := reBlockOpen.FindStringSubmatch(trimmed); m != nil {
			switch m[1] {
			case "if":
				stack = append(stack, "fi")
			case "case":
				stack = append(stack, "esac")
			default:
				stack = append(stack, "done")
			}
		} else if m := reBlockClose.FindStringSubmatch(trimmed); m != nil {
			if len(stack) > 0 && stack[len(stack)-1] == m[1] {
				stack = stack[:len(stack)-1]
			}
		}
	}

	for i := len(stack) - 1; i >= 0; i-- {
		lines = append(lines, stack[i])
		changed = true
	}
	out := strings.Join(lines, "\n")
	if changed && !strings.HasSuffix(out, "\n") {
		out += "\n"
	}
	return out, changed
}

// closeDanglingQuote appends the closing quote when a line ends inside
// a single- or double-quoted string.
func closeDanglingQuote(line string) (string, bool) {
	var inSingle, inDouble bool
	for i := 0; i < len(line); i++ {
		c := line[i]
		switch {
		case c == '\\' && !inSingle:
			i++
		case c == '\'' && !inDouble:
			inSingle = !inSingle
		case c == '"' && !inSingle:
			inDouble = !inDouble
		}
	}
	switch {
	case inSingle:
		return line + "'", true
	case inDouble:
		return line + `"`, true
	}
	return line, false
}

// String summary helper used by the CLI.
func (r *Report) Summary() string {
	return fmt.Sprintf("%d critical, %d warnings across %d categories",
		r.Critical, r.Warnings, len(r.IssuesByCat))
}
