package main

import (
	"fmt"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/voxpense/voxpense/internal/cli"
	"github.com/voxpense/voxpense/internal/runlog"
)

func statsCmd() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Aggregate statistics over saved run logs",
		Long: `Summarize the diagnostic run logs persisted by parse --save-log and
eval --save-logs: how often the model was consulted, how often its
responses validated, and which fields needed refinement most.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			store, err := openRunLogStore()
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			logs, err := store.List(cmd.Context(), limit)
			if err != nil {
				return fmt.Errorf("failed to list run logs: %w", err)
			}
			if len(logs) == 0 {
				fmt.Println(cli.FormatInfo("No run logs saved yet. Parse with --save-log to keep one."))
				return nil
			}

			printRunStats(aggregateRuns(logs))
			return nil
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 200, "maximum number of runs to aggregate")
	return cmd
}

// runStats summarizes a set of run logs by entry type.
type runStats struct {
	fieldPrompts     map[string]int
	runs             int
	prompts          int
	validationPasses int
	validationFails  int
	errors           int
	unavailableRuns  int
}

func aggregateRuns(logs []runlog.Log) runStats {
	stats := runStats{fieldPrompts: make(map[string]int)}
	stats.runs = len(logs)

	for _, log := range logs {
		for _, e := range log.Entries {
			switch e.Type {
			case runlog.EntryPrompt:
				stats.prompts++
				if e.Field != "" {
					stats.fieldPrompts[e.Field]++
				}
			case runlog.EntryValidation:
				if strings.HasPrefix(e.Title, "Validation failed") {
					stats.validationFails++
				} else {
					stats.validationPasses++
				}
			case runlog.EntryError:
				stats.errors++
				if e.Title == "GenAI unavailable" {
					stats.unavailableRuns++
				}
			}
		}
	}
	return stats
}

func printRunStats(stats runStats) {
	var b strings.Builder
	w := tabwriter.NewWriter(&b, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "%s\t%d\n", cli.BoldStyle.Render("Runs"), stats.runs)
	fmt.Fprintf(w, "%s\t%d\n", cli.BoldStyle.Render("Prompts sent"), stats.prompts)
	fmt.Fprintf(w, "%s\t%d\n", cli.BoldStyle.Render("Validations passed"), stats.validationPasses)
	fmt.Fprintf(w, "%s\t%d\n", cli.BoldStyle.Render("Validations failed"), stats.validationFails)
	fmt.Fprintf(w, "%s\t%d\n", cli.BoldStyle.Render("Errors logged"), stats.errors)
	fmt.Fprintf(w, "%s\t%d\n", cli.BoldStyle.Render("Runs without model"), stats.unavailableRuns)
	_ = w.Flush()

	fmt.Println(cli.RenderBox(cli.ChartIcon+" Run log statistics", strings.TrimRight(b.String(), "\n")))

	if len(stats.fieldPrompts) == 0 {
		return
	}

	fields := make([]string, 0, len(stats.fieldPrompts))
	for f := range stats.fieldPrompts {
		fields = append(fields, f)
	}
	sort.Slice(fields, func(i, j int) bool {
		if stats.fieldPrompts[fields[i]] != stats.fieldPrompts[fields[j]] {
			return stats.fieldPrompts[fields[i]] > stats.fieldPrompts[fields[j]]
		}
		return fields[i] < fields[j]
	})

	fmt.Println(cli.BoldStyle.Render("Most refined fields:"))
	for _, f := range fields {
		fmt.Printf("  %s %s (%d)\n", cli.SubtleStyle.Render("-"), f, stats.fieldPrompts[f])
	}
}
