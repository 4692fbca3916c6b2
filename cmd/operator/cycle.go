package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Mickdownunder/worldclass-agent-sub001/internal/brain"
)

const defaultGoal = "advance open research and keep the system healthy"

var cycleCmd = &cobra.Command{
	Use:   "cycle [goal...]",
	Short: "Run one cognitive cycle",
	Long: `Run one Perceive-Think-Decide-Act-Reflect-Remember cycle.

The goal defaults to steady-state operation. Whether the decided action
actually executes depends on the governance level: 0 and 1 record the
decision and stop, 2 and 3 dispatch the workflow through op.

Examples:
  operator cycle
  operator cycle --governance 3 "finish the battery chemistry project"
  operator cycle -o json`,
	RunE: runCycle,
}

func init() {
	rootCmd.AddCommand(cycleCmd)
}

func runCycle(cmd *cobra.Command, args []string) error {
	cfg, log, err := loadConfig()
	if err != nil {
		return err
	}
	mem, err := openMemory(cfg, log)
	if err != nil {
		return err
	}
	defer mem.Close()

	goal := defaultGoal
	if len(args) > 0 {
		goal = strings.Join(args, " ")
	}

	var b *brain.Brain
	if client := newCompleter(cfg.BrainModel(), log); client != nil {
		b = brain.New(cfg, mem, client, nil, log)
	} else {
		b = brain.New(cfg, mem, nil, nil, log)
	}

	result, err := b.RunCycle(cmd.Context(), goal)
	if err != nil {
		return err
	}
	return outputResult(result, func() error { return cycleTable(result) })
}

func cycleTable(r *brain.CycleResult) error {
	fmt.Printf("Cycle %s (%s)\n", r.TraceID, r.GovernanceMode)
	fmt.Println("================================")
	fmt.Printf("Goal:      %s\n", r.Goal)
	fmt.Printf("Plan:      %s\n", r.PlanSummary)
	fmt.Printf("Decision:  %s\n", r.Decision)
	fmt.Printf("Executed:  %v\n", r.Executed)
	if r.Status != "" {
		fmt.Printf("Status:    %s\n", r.Status)
	}
	if r.Executed {
		fmt.Printf("Quality:   %.2f\n", r.Quality)
		if r.Learnings != "" {
			fmt.Printf("Learnings: %s\n", r.Learnings)
		}
		if r.ShouldRetry {
			fmt.Println("Retry:     recommended")
		}
	}
	return nil
}
