package main

import (
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/voxpense/voxpense/internal/cli"
	"github.com/voxpense/voxpense/internal/genai"
	"github.com/voxpense/voxpense/internal/hybrid"
	"github.com/voxpense/voxpense/internal/model"
	"github.com/voxpense/voxpense/internal/runlog"
)

func parseCmd() *cobra.Command {
	var (
		dateFlag string
		legacy   bool
		offline  bool
		saveLog  bool
	)

	cmd := &cobra.Command{
		Use:   "parse [utterance]",
		Short: "Parse a natural-language expense description",
		Long: `Parse a spoken or typed transaction description into a structured record.

Heuristics run first and fill in what they can; any fields that stayed
uncertain are refined one at a time by the configured model.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			input := strings.Join(args, " ")

			pctx, err := buildParsingContext(dateFlag)
			if err != nil {
				return err
			}

			builder := runlog.NewBuilder(input)
			pctx.RunLog = builder

			cfg := gatewayConfig()
			if offline {
				cfg.Provider = "off"
			}
			gateway, err := genai.NewGateway(cfg, nil)
			if err != nil {
				return err
			}
			defer closeGateway(gateway)

			var opts []hybrid.Option
			if legacy {
				opts = append(opts, hybrid.WithLegacyMode())
			}
			parser := hybrid.NewParser(gateway, nil, opts...)

			var result hybrid.HybridParsingResult
			if legacy {
				result = parser.Parse(cmd.Context(), input, pctx)
			} else {
				snapshot := parser.PrepareStage1(input, pctx)
				printDraft(snapshot)
				result = parser.ParseStaged(cmd.Context(), input, pctx, &snapshot, printRefinement)
			}

			printResult(result)

			if saveLog {
				store, storeErr := openRunLogStore()
				if storeErr != nil {
					return storeErr
				}
				defer func() { _ = store.Close() }()
				saveRunLog(store, builder)
				fmt.Println(cli.FormatInfo("Run log saved as " + builder.RunID()))
			}

			return nil
		},
	}

	cmd.Flags().StringVar(&dateFlag, "date", "", "reference date for relative parsing (YYYY-MM-DD)")
	cmd.Flags().BoolVar(&legacy, "legacy", false, "use the single-shot prompt instead of staged refinement")
	cmd.Flags().BoolVar(&offline, "offline", false, "skip the model and return the heuristic result")
	cmd.Flags().BoolVar(&saveLog, "save-log", false, "persist the diagnostic run log")

	return cmd
}

// printDraft shows what the heuristics produced before refinement starts.
func printDraft(snapshot hybrid.Stage1Snapshot) {
	draft := snapshot.Draft

	var parts []string
	if draft.Merchant != "" {
		parts = append(parts, fmt.Sprintf("merchant=%q", draft.Merchant))
	}
	if draft.AmountUSD != nil {
		parts = append(parts, "amount=$"+draft.AmountUSD.StringFixed(2))
	}
	parts = append(parts, "type="+string(draft.Type))
	if draft.Account != "" {
		parts = append(parts, fmt.Sprintf("account=%q", draft.Account))
	}

	fmt.Println(cli.SubtleStyle.Render(fmt.Sprintf("heuristics (%s): %s",
		snapshot.Stage1Duration.String(), strings.Join(parts, " "))))

	if len(snapshot.TargetFields) > 0 {
		names := make([]string, len(snapshot.TargetFields))
		for i, f := range snapshot.TargetFields {
			names[i] = string(f)
		}
		fmt.Println(cli.SubtleStyle.Render("refining: " + strings.Join(names, ", ")))
	}
}

// printRefinement reports each field as it finishes.
func printRefinement(update hybrid.FieldRefinementUpdate) {
	if update.Err != "" {
		fmt.Println(cli.FormatWarning(fmt.Sprintf("%s: %s", update.Field, update.Err)))
		return
	}
	fmt.Println(cli.FormatSuccess(fmt.Sprintf("%s refined (%s)", update.Field, update.Duration)))
}

// printResult renders the final transaction.
func printResult(result hybrid.HybridParsingResult) {
	var b strings.Builder
	w := tabwriter.NewWriter(&b, 0, 0, 2, ' ', 0)
	for _, row := range resultRows(result) {
		fmt.Fprintf(w, "%s\t%s\n", cli.BoldStyle.Render(row[0]), row[1])
	}
	_ = w.Flush()

	fmt.Println(cli.RenderBox("Parsed transaction", strings.TrimRight(b.String(), "\n")))

	for _, msg := range result.Errors {
		fmt.Println(cli.FormatWarning(msg))
	}
	if result.Method == hybrid.MethodHeuristic && result.Result.Type != model.TypeTransfer && result.Result.Merchant == "" {
		fmt.Fprintln(os.Stderr, cli.SubtleStyle.Render("tip: add recent merchants to hints.recent_merchants for better extraction"))
	}
}
