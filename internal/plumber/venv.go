package plumber

import (
	"context"
	"os"
	"path/filepath"
	"strings"
)

// CheckVenvHealth verifies the operator virtualenv is present, its
// interpreter runs, and the essential packages the engine depends on
// import cleanly.
func (p *Plumber) CheckVenvHealth(ctx context.Context) []Issue {
	venv := filepath.Join(p.cfg.Root, "venv")
	python := filepath.Join(venv, "bin", "python3")

	if _, err := os.Stat(venv); err != nil {
		return []Issue{{
			Category: CategoryVenv,
			Severity: SeverityCritical,
			File:     venv,
			Message:  "virtualenv missing",
		}}
	}
	if _, err := os.Stat(python); err != nil {
		return []Issue{{
			Category: CategoryVenv,
			Severity: SeverityCritical,
			File:     python,
			Message:  "virtualenv has no interpreter",
		}}
	}
	if msg := p.runPython(ctx, "--version"); msg != "" {
		return []Issue{{
			Category: CategoryVenv,
			Severity: SeverityCritical,
			File:     python,
			Message:  "interpreter does not run",
			Detail:   msg,
		}}
	}

	var issues []Issue
	if msg := p.runPython(ctx, "-m", "pip", "--version"); msg != "" {
		issues = append(issues, Issue{
			Category: CategoryVenv,
			Severity: SeverityWarning,
			Message:  "pip unavailable in virtualenv",
			Detail:   msg,
		})
	}
	for _, pkg := range p.cfg.Plumber.EssentialPackages {
		imp := importName(pkg)
		if msg := p.runPython(ctx, "-c", "import "+imp); msg != "" {
			issue := Issue{
				Category: CategoryVenv,
				Severity: SeverityCritical,
				Message:  "essential package does not import: " + pkg,
				Detail:   msg,
			}
			issue.FixOutcome = p.installDependency(ctx, imp, normalizeDist(pkg))
			issues = append(issues, issue)
		}
	}
	return issues
}

// importName reverses the distribution-to-import mapping for the
// packages whose names differ.
func importName(dist string) string {
	norm := normalizeDist(dist)
	for imp, d := range importToPyPI {
		if normalizeDist(d) == norm {
			return imp
		}
	}
	return strings.ReplaceAll(norm, "-", "_")
}
