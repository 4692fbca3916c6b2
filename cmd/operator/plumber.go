package main

import (
	"fmt"
	"os"
	"sort"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/Mickdownunder/worldclass-agent-sub001/internal/fingerprint"
	"github.com/Mickdownunder/worldclass-agent-sub001/internal/plumber"
)

var plumberCmd = &cobra.Command{
	Use:   "plumber",
	Short: "Diagnose and repair the operator tree",
	Long: `Run all plumber diagnostics: shell syntax, repeated job failures,
python tools, dependency consistency, tool references, process health
and virtualenv health.

What happens with a diagnosed issue depends on governance: levels 0
and 1 only report, level 2 produces dry-run patches, level 3 applies
fixes that pass verification. Every applied or proposed fix leaves a
patch and side-car under plumber/patches/.

Examples:
  operator plumber
  operator plumber --governance 3
  operator plumber -o json`,
	RunE: runPlumber,
}

func init() {
	rootCmd.AddCommand(plumberCmd)
}

func runPlumber(cmd *cobra.Command, args []string) error {
	cfg, log, err := loadConfig()
	if err != nil {
		return err
	}
	prints := fingerprint.Load(cfg.PlumberDir(), log)

	var p *plumber.Plumber
	if cfg.Plumber.LLMFix {
		if client := newCompleter(cfg.PlumberModel(), log); client != nil {
			p = plumber.New(cfg, prints, client, log)
		}
	}
	if p == nil {
		p = plumber.New(cfg, prints, nil, log)
	}

	report, err := p.Run(cmd.Context())
	if err != nil {
		return err
	}
	return outputResult(report, func() error { return plumberTable(report) })
}

func plumberTable(r *plumber.Report) error {
	fmt.Printf("Plumber run (%s): %s\n", r.Governance, r.Summary())
	fmt.Println("=====================================")

	if len(r.RolledBack) > 0 {
		fmt.Printf("Rolled back patches: %v\n", r.RolledBack)
	}
	if len(r.Issues) == 0 {
		fmt.Println("No issues found")
	} else {
		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "CATEGORY\tSEVERITY\tTARGET\tFIX\tMESSAGE")
		for _, issue := range r.Issues {
			target := issue.File
			if target == "" {
				target = issue.Workflow
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
				issue.Category, issue.Severity, target, issue.FixOutcome, issue.Message)
		}
		if err := w.Flush(); err != nil {
			return err
		}
	}

	var cats []string
	for cat := range r.IssuesByCat {
		cats = append(cats, cat)
	}
	sort.Strings(cats)
	fmt.Println()
	for _, cat := range cats {
		fmt.Printf("  %s: %d\n", cat, r.IssuesByCat[cat])
	}
	fmt.Printf("Fingerprints: %d total, %d non-repairable, %d cooling down\n",
		r.Fingerprints.Total, r.Fingerprints.NonRepairable, r.Fingerprints.OnCooldown)
	fmt.Printf("Patches: %d total, %d applied, %d reverted\n",
		r.PatchImpact.Total, r.PatchImpact.Applied, r.PatchImpact.Reverted)
	return nil
}
