package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/Mickdownunder/worldclass-agent-sub001/internal/gate"
	"github.com/Mickdownunder/worldclass-agent-sub001/internal/research"
)

var ledgerCmd = &cobra.Command{
	Use:   "ledger <project-id|project-dir>",
	Short: "Build the claim ledger for a project",
	Long: `Rebuild verify/claim_ledger.json from the project's raw verification
artifacts: claim verdicts, source reliability, fact-check disputes and
CoVe overlays. A claim is verified only with at least two distinct
supporting sources, no matching dispute, and no CoVe rejection.

Examples:
  operator ledger proj-a1b2c3
  operator ledger research/proj-a1b2c3 -o json`,
	Args: cobra.ExactArgs(1),
	RunE: runLedger,
}

func init() {
	rootCmd.AddCommand(ledgerCmd)
}

func runLedger(cmd *cobra.Command, args []string) error {
	cfg, _, err := loadConfig()
	if err != nil {
		return err
	}
	dir := resolveProjectDir(cfg, args[0])

	ledger, err := gate.BuildAndSaveLedger(dir)
	if err != nil {
		return err
	}
	return outputResult(ledger, func() error { return ledgerTable(ledger) })
}

func ledgerTable(ledger *research.ClaimLedger) error {
	if len(ledger.Claims) == 0 {
		fmt.Println("No claims in ledger")
		return nil
	}
	verified := 0
	for _, c := range ledger.Claims {
		if c.IsVerified {
			verified++
		}
	}
	fmt.Printf("Claim ledger: %d verified of %d\n", verified, len(ledger.Claims))
	fmt.Println("==============================")

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "CLAIM\tTIER\tSOURCES\tCREDIBILITY\tREASON")
	for _, c := range ledger.Claims {
		fmt.Fprintf(w, "%s\t%s\t%d\t%.2f\t%s\n",
			c.ClaimID, c.VerificationTier, len(c.SupportingSourceIDs),
			c.CredibilityWeight, c.VerificationReason)
	}
	return w.Flush()
}
