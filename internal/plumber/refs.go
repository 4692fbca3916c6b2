package plumber

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
)

var toolRefPatterns = []*regexp.Regexp{
	regexp.MustCompile(`\$TOOLS/([\w.-]+\.py)`),
	regexp.MustCompile(`\$OPERATOR_ROOT/tools/([\w.-]+\.py)`),
	regexp.MustCompile(`\btools/(research_[\w.-]+\.py)`),
}

// CheckToolReferences verifies that every tool a workflow script
// invokes exists, and flags research_* tools no workflow references.
func (p *Plumber) CheckToolReferences(_ context.Context) []Issue {
	scripts, err := filepath.Glob(filepath.Join(p.cfg.WorkflowsDir(), "*.sh"))
	if err != nil {
		return nil
	}
	phases, _ := filepath.Glob(filepath.Join(p.cfg.PhaseScriptsDir(), "*.sh"))
	scripts = append(scripts, phases...)
	sort.Strings(scripts)

	referenced := make(map[string][]string)
	for _, script := range scripts {
		data, err := os.ReadFile(script)
		if err != nil {
			continue
		}
		for _, re := range toolRefPatterns {
			for _, m := range re.FindAllStringSubmatch(string(data), -1) {
				referenced[m[1]] = append(referenced[m[1]], filepath.Base(script))
			}
		}
	}

	var issues []Issue
	names := make([]string, 0, len(referenced))
	for name := range referenced {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if _, err := os.Stat(filepath.Join(p.cfg.ToolsDir(), name)); err == nil {
			continue
		}
		issues = append(issues, Issue{
			Category: CategoryRefs,
			Severity: SeverityCritical,
			File:     name,
			Message:  "referenced tool does not exist",
			Detail:   fmt.Sprintf("referenced by %s", strings.Join(dedupe(referenced[name]), ", ")),
		})
	}

	// Orphan scan covers only the research_* namespace; shared helper
	// tools are legitimately invoked by the engine, not workflows.
	orphans, _ := filepath.Glob(filepath.Join(p.cfg.ToolsDir(), "research_*.py"))
	sort.Strings(orphans)
	for _, tool := range orphans {
		name := filepath.Base(tool)
		if _, ok := referenced[name]; ok {
			continue
		}
		issues = append(issues, Issue{
			Category: CategoryRefs,
			Severity: SeverityWarning,
			File:     tool,
			Message:  "research tool is not referenced by any workflow",
		})
	}
	return issues
}

func dedupe(in []string) []string {
	seen := make(map[string]bool, len(in))
	var out []string
	for _, s := range in {
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	return out
}
