package main

import (
	"encoding/json"
	"errors"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/Mickdownunder/worldclass-agent-sub001/internal/config"
	"github.com/Mickdownunder/worldclass-agent-sub001/internal/llm"
	"github.com/Mickdownunder/worldclass-agent-sub001/internal/logging"
	"github.com/Mickdownunder/worldclass-agent-sub001/internal/memory"
)

var (
	// Global flags
	rootFlag       string
	governanceFlag int
	verbose        bool
	output         string
)

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "operator",
	Short: "Autonomous research operator",
	Long: `operator runs an autonomous research system: a cognitive loop that
perceives, plans, acts through workflow jobs, and reflects on the
results; a plumber that diagnoses and repairs the workflow tree; and
an evidence gate that decides whether research output is trustworthy.

Core Commands:
  cycle         Run one cognitive cycle
  plumber       Diagnose and repair the operator tree
  gate          Evaluate a research project against the evidence gate
  ledger        Build the claim ledger for a project
  reflect       Reflect on a finished job
  status        Show operator state
  fingerprints  Show the error fingerprint ledger

Governance levels:
  0 report_only      observe and record only
  1 suggest          propose actions, execute nothing
  2 act_and_report   execute decisions, dry-run fixes
  3 full_autonomous  execute decisions, apply verified fixes`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and runs it.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&rootFlag, "root", "", "Operator root (default: $OPERATOR_ROOT or ~/operator)")
	rootCmd.PersistentFlags().IntVar(&governanceFlag, "governance", 1, "Governance level 0-3")
	rootCmd.PersistentFlags().StringVarP(&output, "output", "o", "table", "Output format (json, table, yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")
}

// loadConfig resolves flags into the runtime configuration and logger.
func loadConfig() (*config.Config, *slog.Logger, error) {
	cfg, err := config.Load(rootFlag, governanceFlag)
	if err != nil {
		return nil, nil, err
	}
	logging.SetVerbose(verbose)
	return cfg, logging.New(cfg.Root), nil
}

// openMemory opens the shared memory store.
func openMemory(cfg *config.Config, log *slog.Logger) (*memory.Store, error) {
	return memory.Open(cfg.MemoryDir(), log)
}

// newCompleter builds an LLM client, or nil when no key is configured.
// Callers degrade to their deterministic fallbacks on nil.
func newCompleter(model string, log *slog.Logger) *llm.Client {
	client, err := llm.New(model)
	if err != nil {
		if errors.Is(err, llm.ErrNoAPIKey) {
			log.Warn("no API key configured, model calls disabled", "model", model)
		} else {
			log.Warn("model client unavailable", "model", model, "error", err)
		}
		return nil
	}
	return client
}

// outputResult renders v as json or yaml, or falls back to the
// command's table renderer.
func outputResult(v any, table func() error) error {
	switch output {
	case "json":
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(v)

	case "yaml":
		enc := yaml.NewEncoder(os.Stdout)
		defer enc.Close()
		return enc.Encode(v)

	default:
		return table()
	}
}
