package main

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/Mickdownunder/worldclass-agent-sub001/internal/fingerprint"
	"github.com/Mickdownunder/worldclass-agent-sub001/internal/jobs"
	"github.com/Mickdownunder/worldclass-agent-sub001/internal/plumber"
	"github.com/Mickdownunder/worldclass-agent-sub001/internal/research"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show operator state",
	Long: `Display the operator's current state: recent jobs, open research
projects, the last plumber run and the fingerprint ledger.

Examples:
  operator status
  operator status -o json`,
	RunE: runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

type statusOutput struct {
	Root         string             `json:"root"`
	Governance   string             `json:"governance"`
	RecentJobs   []jobBrief         `json:"recent_jobs,omitempty"`
	Projects     []projectBrief     `json:"projects,omitempty"`
	LastPlumber  *plumberBrief      `json:"last_plumber_run,omitempty"`
	Fingerprints *fingerprint.Stats `json:"fingerprints,omitempty"`
}

type jobBrief struct {
	ID       string `json:"id"`
	Workflow string `json:"workflow"`
	Status   string `json:"status"`
	Age      string `json:"age"`
}

type projectBrief struct {
	ID       string `json:"id"`
	Status   string `json:"status"`
	Mode     string `json:"mode"`
	Gate     string `json:"gate,omitempty"`
	Question string `json:"question"`
}

type plumberBrief struct {
	RanAt    time.Time `json:"ran_at"`
	Critical int       `json:"critical"`
	Warnings int       `json:"warnings"`
}

func runStatus(cmd *cobra.Command, args []string) error {
	cfg, log, err := loadConfig()
	if err != nil {
		return err
	}

	out := &statusOutput{
		Root:       cfg.Root,
		Governance: cfg.Governance.String(),
	}

	for _, j := range jobs.Recent(cfg.JobsDir(), 5) {
		out.RecentJobs = append(out.RecentJobs, jobBrief{
			ID:       j.ID,
			Workflow: j.WorkflowID,
			Status:   j.Status,
			Age:      time.Since(j.CreatedAt).Round(time.Minute).String(),
		})
	}

	for _, p := range research.ListProjects(cfg.ResearchDir()) {
		brief := projectBrief{
			ID:       p.ID,
			Status:   p.Status,
			Mode:     p.Mode(),
			Question: p.Question,
		}
		if p.QualityGate != nil {
			brief.Gate = p.QualityGate.Status
		}
		out.Projects = append(out.Projects, brief)
	}

	if report, err := plumber.LoadLastReport(cfg.PlumberDir()); err == nil {
		out.LastPlumber = &plumberBrief{
			RanAt:    report.RanAt,
			Critical: report.Critical,
			Warnings: report.Warnings,
		}
	}

	stats := fingerprint.Load(cfg.PlumberDir(), log).Summary()
	out.Fingerprints = &stats

	return outputResult(out, func() error { return statusTable(out) })
}

func statusTable(s *statusOutput) error {
	fmt.Printf("Operator at %s (%s)\n", s.Root, s.Governance)
	fmt.Println("=====================================")

	if len(s.RecentJobs) > 0 {
		fmt.Println("\nRecent jobs:")
		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tWORKFLOW\tSTATUS\tAGE")
		for _, j := range s.RecentJobs {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", j.ID, j.Workflow, j.Status, j.Age)
		}
		if err := w.Flush(); err != nil {
			return err
		}
	}

	if len(s.Projects) > 0 {
		fmt.Println("\nResearch projects:")
		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tSTATUS\tMODE\tGATE\tQUESTION")
		for _, p := range s.Projects {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", p.ID, p.Status, p.Mode, p.Gate, p.Question)
		}
		if err := w.Flush(); err != nil {
			return err
		}
	}

	if s.LastPlumber != nil {
		fmt.Printf("\nLast plumber run: %s (%d critical, %d warnings)\n",
			s.LastPlumber.RanAt.Format(time.RFC3339), s.LastPlumber.Critical, s.LastPlumber.Warnings)
	}
	if s.Fingerprints != nil {
		fmt.Printf("Fingerprints: %d total, %d non-repairable, %d cooling down\n",
			s.Fingerprints.Total, s.Fingerprints.NonRepairable, s.Fingerprints.OnCooldown)
	}
	return nil
}
