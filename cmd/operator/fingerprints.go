package main

import (
	"fmt"
	"os"
	"sort"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/Mickdownunder/worldclass-agent-sub001/internal/fingerprint"
)

var fingerprintsCmd = &cobra.Command{
	Use:   "fingerprints",
	Short: "Show the error fingerprint ledger",
	Long: `List every error fingerprint the plumber has seen, with occurrence
and fix-attempt counters, cooldown state, and non-repairable
classifications.

Examples:
  operator fingerprints
  operator fingerprints -o json`,
	RunE: runFingerprints,
}

func init() {
	rootCmd.AddCommand(fingerprintsCmd)
}

func runFingerprints(cmd *cobra.Command, args []string) error {
	cfg, log, err := loadConfig()
	if err != nil {
		return err
	}
	ledger := fingerprint.Load(cfg.PlumberDir(), log)

	entries := ledger.Entries()
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].LastSeen.After(entries[j].LastSeen)
	})

	return outputResult(entries, func() error { return fingerprintsTable(entries) })
}

func fingerprintsTable(entries []*fingerprint.Entry) error {
	if len(entries) == 0 {
		fmt.Println("No fingerprints recorded")
		return nil
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "FINGERPRINT\tWORKFLOW\tSEEN\tFIXES\tSTATE\tERROR")
	now := time.Now().UTC()
	for _, e := range entries {
		state := "open"
		switch {
		case e.NonRepairable:
			state = "non-repairable"
		case e.CooldownUntil.After(now):
			state = "cooldown " + time.Until(e.CooldownUntil).Round(time.Minute).String()
		}
		fmt.Fprintf(w, "%s\t%s\t%d\t%d/%d\t%s\t%s\n",
			e.Fingerprint, e.Workflow, e.Occurrences,
			e.FixSuccesses, e.FixAttempts, state, e.ErrorSample)
	}
	return w.Flush()
}
