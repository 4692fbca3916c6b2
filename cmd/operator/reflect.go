package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Mickdownunder/worldclass-agent-sub001/internal/brain"
)

var reflectGoal string

var reflectCmd = &cobra.Command{
	Use:   "reflect <job-dir>",
	Short: "Reflect on a finished job",
	Long: `Review one finished job outside the normal cycle: score it, extract
learnings, and persist the reflection, quality record and any playbook
update, exactly as the Reflect phase would.

Examples:
  operator reflect jobs/2026-08-31/j1
  operator reflect jobs/2026-08-31/j1 --goal "site monitoring"`,
	Args: cobra.ExactArgs(1),
	RunE: runReflect,
}

func init() {
	reflectCmd.Flags().StringVar(&reflectGoal, "goal", "", "Goal the job served")
	rootCmd.AddCommand(reflectCmd)
}

func runReflect(cmd *cobra.Command, args []string) error {
	cfg, log, err := loadConfig()
	if err != nil {
		return err
	}
	mem, err := openMemory(cfg, log)
	if err != nil {
		return err
	}
	defer mem.Close()

	var b *brain.Brain
	if client := newCompleter(cfg.BrainModel(), log); client != nil {
		b = brain.New(cfg, mem, client, nil, log)
	} else {
		b = brain.New(cfg, mem, nil, nil, log)
	}

	result := b.ReflectOnJob(cmd.Context(), brain.NewTraceID(), args[0], reflectGoal)
	return outputResult(result, func() error { return reflectTable(result) })
}

func reflectTable(r *brain.ReflectionResult) error {
	fmt.Printf("Outcome:  %s\n", r.Outcome)
	fmt.Printf("Quality:  %.2f\n", r.Quality)
	if r.WentWell != "" {
		fmt.Printf("Well:     %s\n", r.WentWell)
	}
	if r.WentWrong != "" {
		fmt.Printf("Wrong:    %s\n", r.WentWrong)
	}
	if r.Learnings != "" {
		fmt.Printf("Learned:  %s\n", r.Learnings)
	}
	if r.ShouldRetry {
		fmt.Println("Retry:    recommended")
	}
	return nil
}
