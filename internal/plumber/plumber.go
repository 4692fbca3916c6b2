// Package plumber is the operator's self-healing subsystem. It runs
// seven diagnostic categories over the operator tree, records error
// fingerprints, and, subject to governance, applies narrow fixes to
// files inside the safe zone with a full patch audit trail and
// automatic rollback.
package plumber

import (
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/Mickdownunder/worldclass-agent-sub001/internal/config"
	"github.com/Mickdownunder/worldclass-agent-sub001/internal/fingerprint"
)

// execCommand is swapped by tests to stub subprocess calls.
var execCommand = exec.CommandContext

// Diagnostic categories.
const (
	CategoryShell    = "shell_syntax"
	CategoryFailures = "repeated_failures"
	CategoryPyTools  = "python_tools"
	CategoryDeps     = "dependency_consistency"
	CategoryRefs     = "tool_references"
	CategoryProcess  = "process_health"
	CategoryVenv     = "venv_health"
)

// Severities.
const (
	SeverityCritical = "critical"
	SeverityWarning  = "warning"
)

// Fix outcomes.
const (
	FixApplied             = "applied"
	FixDryRun              = "dry_run"
	FixBlocked             = "blocked"
	FixNoLogs              = "no_logs"
	FixCooldownSkip        = "cooldown_skip"
	FixLowConfidence       = "low_confidence"
	FixDiffTooLarge        = "diff_too_large"
	FixNoChanges           = "no_changes"
	FixFailedVerification  = "fix_failed_verification"
	FixLLMError            = "llm_error"
	FixLLMBadResponse      = "llm_bad_response"
	FixDisabled            = "disabled"
	FixNonRepairablePrefix = "non_repairable:"
)

// Issue is one diagnosed problem, possibly with a fix outcome attached.
type Issue struct {
	Category   string `json:"category"`
	Severity   string `json:"severity"`
	File       string `json:"file,omitempty"`
	Workflow   string `json:"workflow,omitempty"`
	Message    string `json:"message"`
	Detail     string `json:"detail,omitempty"`
	FixOutcome string `json:"fix_outcome,omitempty"`
}

// Report is the persisted result of one plumber run.
type Report struct {
	RanAt          time.Time         `json:"ran_at"`
	Governance     string            `json:"governance"`
	IssuesByCat    map[string]int    `json:"issues_by_category"`
	Critical       int               `json:"critical"`
	Warnings       int               `json:"warnings"`
	Issues         []Issue           `json:"issues"`
	Fingerprints   fingerprint.Stats `json:"fingerprints"`
	PatchImpact    PatchImpact       `json:"patch_impact"`
	RolledBack     []string          `json:"rolled_back,omitempty"`
	DurationMillis int64             `json:"duration_ms"`
}

// jsonCompleter is the LLM capability the fix fallback needs.
type jsonCompleter interface {
	CompleteJSON(ctx context.Context, system, user string) (map[string]any, error)
}

// Plumber diagnoses and (per governance) repairs the operator tree.
type Plumber struct {
	cfg    *config.Config
	prints *fingerprint.Ledger
	llm    jsonCompleter
	log    *slog.Logger

	// llmFixedFiles enforces the one-LLM-fix-per-file-per-session budget.
	llmFixedFiles map[string]bool
}

// New builds a plumber. llm may be nil; LLM fixes are then disabled
// regardless of configuration.
func New(cfg *config.Config, prints *fingerprint.Ledger, llm jsonCompleter, log *slog.Logger) *Plumber {
	if log == nil {
		log = slog.Default()
	}
	return &Plumber{
		cfg:           cfg,
		prints:        prints,
		llm:           llm,
		log:           log,
		llmFixedFiles: make(map[string]bool),
	}
}

// Run executes the rollback pass, all seven diagnostic categories, and
// writes plumber/last_run.json.
func (p *Plumber) Run(ctx context.Context) (*Report, error) {
	start := time.Now()
	report := &Report{
		RanAt:       start.UTC(),
		Governance:  p.cfg.Governance.String(),
		IssuesByCat: make(map[string]int),
	}

	report.RolledBack = p.autoRollback(ctx)

	checks := []func(context.Context) []Issue{
		p.CheckShellSyntax,
		p.CheckRepeatedFailures,
		p.CheckPythonTools,
		p.CheckDependencies,
		p.CheckToolReferences,
		p.CheckProcessHealth,
		p.CheckVenvHealth,
	}
	for _, check := range checks {
		report.Issues = append(report.Issues, check(ctx)...)
	}

	for _, issue := range report.Issues {
		report.IssuesByCat[issue.Category]++
		switch issue.Severity {
		case SeverityCritical:
			report.Critical++
		case SeverityWarning:
			report.Warnings++
		}
	}
	report.Fingerprints = p.prints.Summary()
	report.PatchImpact = p.patchImpact()
	report.DurationMillis = time.Since(start).Milliseconds()

	if err := p.writeReport(report); err != nil {
		p.log.Warn("plumber report write failed", "error", err)
	}
	return report, nil
}

func (p *Plumber) writeReport(report *Report) error {
	if err := os.MkdirAll(p.cfg.PlumberDir(), 0755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(p.cfg.PlumberDir(), "last_run.json"), data, 0644)
}

// LoadLastReport reads plumber/last_run.json, if any.
func LoadLastReport(plumberDir string) (*Report, error) {
	data, err := os.ReadFile(filepath.Join(plumberDir, "last_run.json"))
	if err != nil {
		return nil, err
	}
	var r Report
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, err
	}
	return &r, nil
}
