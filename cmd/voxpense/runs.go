package main

import (
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/voxpense/voxpense/internal/cli"
	"github.com/voxpense/voxpense/internal/runlog"
)

func runsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "runs",
		Short: "Inspect saved diagnostic run logs",
	}

	cmd.AddCommand(listRunsCmd())
	cmd.AddCommand(showRunCmd())

	return cmd
}

func listRunsCmd() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List recent run logs",
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

			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			defer func() { _ = w.Flush() }()

			fmt.Fprintf(w, "%s\t%s\t%s\t%s\n",
				cli.TableHeaderStyle.Render("Run ID"),
				cli.TableHeaderStyle.Render("Created"),
				cli.TableHeaderStyle.Render("Entries"),
				cli.TableHeaderStyle.Render("Input"))

			for _, log := range logs {
				fmt.Fprintf(w, "%s\t%s\t%d\t%s\n",
					log.RunID,
					log.CreatedAt.Format("2006-01-02 15:04:05"),
					len(log.Entries),
					firstInput(log.Entries))
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 20, "maximum number of runs to list")
	return cmd
}

func showRunCmd() *cobra.Command {
	var note string

	cmd := &cobra.Command{
		Use:   "show [run-id]",
		Short: "Render one run log as markdown",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openRunLogStore()
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			log, err := store.Get(cmd.Context(), args[0])
			if err != nil {
				return fmt.Errorf("failed to load run log: %w", err)
			}
			if log == nil {
				return fmt.Errorf("run %s not found", args[0])
			}

			fmt.Println(log.Markdown(note))
			return nil
		},
	}

	cmd.Flags().StringVar(&note, "note", "", "note to include in the rendered report")
	return cmd
}

// firstInput pulls the recorded utterance out of a run's entries.
func firstInput(entries []runlog.Entry) string {
	for _, e := range entries {
		if e.Type == runlog.EntryInput {
			line := strings.ReplaceAll(e.Detail, "\n", " ")
			if len(line) > 60 {
				line = line[:57] + "..."
			}
			return line
		}
	}
	return ""
}
