package main

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/voxpense/voxpense/internal/cli"
	"github.com/voxpense/voxpense/internal/genai"
	"github.com/voxpense/voxpense/internal/hybrid"
	"github.com/voxpense/voxpense/internal/model"
	"github.com/voxpense/voxpense/internal/runlog"
)

// evalCase is one corpus line. Plain lines are bare utterances; JSON lines
// can carry per-case vocabularies and a reference date.
type evalCase struct {
	Input             string   `json:"input"`
	Date              string   `json:"date,omitempty"`
	RecentMerchants   []string `json:"recentMerchants,omitempty"`
	RecentCategories  []string `json:"recentCategories,omitempty"`
	KnownAccounts     []string `json:"knownAccounts,omitempty"`
	ExpenseCategories []string `json:"expenseCategories,omitempty"`
	IncomeCategories  []string `json:"incomeCategories,omitempty"`
	Tags              []string `json:"tags,omitempty"`
	Accounts          []string `json:"accounts,omitempty"`
}

// evalVerdict is the JSON record emitted per utterance with --json.
type evalVerdict struct {
	Input      string        `json:"input"`
	Method     string        `json:"method"`
	Validated  bool          `json:"validated"`
	Confidence float64       `json:"confidence"`
	DurationMs int64         `json:"durationMs"`
	Errors     []string      `json:"errors,omitempty"`
	Refined    []string      `json:"refinedFields,omitempty"`
	Result     verdictResult `json:"result"`
}

type verdictResult struct {
	Type            string   `json:"type"`
	Merchant        string   `json:"merchant,omitempty"`
	Description     string   `json:"description,omitempty"`
	AmountUSD       *string  `json:"amountUsd,omitempty"`
	OverallUSD      *string  `json:"splitOverallChargedUsd,omitempty"`
	Date            string   `json:"userLocalDate"`
	ExpenseCategory string   `json:"expenseCategory,omitempty"`
	IncomeCategory  string   `json:"incomeCategory,omitempty"`
	Account         string   `json:"account,omitempty"`
	Tags            []string `json:"tags,omitempty"`
	Note            string   `json:"note,omitempty"`
}

func evalCmd() *cobra.Command {
	var (
		dateFlag   string
		recordPath string
		replayPath string
		saveLogs   bool
		jsonOut    bool
	)

	cmd := &cobra.Command{
		Use:   "eval [file]",
		Short: "Run the parser over a file of utterances",
		Long: `Run the staged pipeline over a corpus, one case per line. A case is
either a bare utterance or a JSON object with "input" plus optional
vocabularies and a "date". Lines starting with # are skipped.

With --record, every model exchange is captured so a later run can replay
the corpus deterministically with --replay. With --json, one verdict per
case is written to stdout.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cases, err := readCorpus(args[0])
			if err != nil {
				return err
			}
			if len(cases) == 0 {
				fmt.Println(cli.FormatWarning("corpus is empty"))
				return nil
			}

			cfg := gatewayConfig()
			if replayPath != "" {
				cfg.Provider = "replay"
				cfg.ReplayPath = replayPath
			}
			gateway, err := genai.NewGateway(cfg, nil)
			if err != nil {
				return err
			}
			defer closeGateway(gateway)

			var recorder *genai.RecordingGateway
			if recordPath != "" {
				recorder = genai.NewRecordingGateway(gateway, recordPath)
				gateway = recorder
			}

			var store *runlog.SQLiteStore
			if saveLogs {
				store, err = openRunLogStore()
				if err != nil {
					return err
				}
				defer func() { _ = store.Close() }()
			}

			parser := hybrid.NewParser(gateway, nil)
			encoder := json.NewEncoder(os.Stdout)

			bar := progressbar.NewOptions(len(cases),
				progressbar.OptionSetWriter(os.Stderr),
				progressbar.OptionEnableColorCodes(true),
				progressbar.OptionShowCount(),
				progressbar.OptionShowElapsedTimeOnFinish(),
				progressbar.OptionSetWidth(40),
				progressbar.OptionSetDescription("[cyan][bold]Parsing utterances...[reset]"),
			)

			failures := 0
			for _, c := range cases {
				if cmd.Context().Err() != nil {
					return cmd.Context().Err()
				}

				pctx, ctxErr := caseContext(c, dateFlag)
				if ctxErr != nil {
					return ctxErr
				}
				builder := runlog.NewBuilder(c.Input)
				pctx.RunLog = builder

				result := parser.Parse(cmd.Context(), c.Input, pctx)
				if len(result.Errors) > 0 {
					failures++
				}
				saveRunLog(store, builder)

				if jsonOut {
					if encErr := encoder.Encode(buildVerdict(c.Input, result)); encErr != nil {
						return encErr
					}
				}
				_ = bar.Add(1)
			}
			fmt.Fprintln(os.Stderr)

			if recorder != nil {
				if err := recorder.Flush(); err != nil {
					return err
				}
				fmt.Fprintln(os.Stderr, cli.FormatInfo("Recorded model exchanges to "+recordPath))
			}

			printEvalSummary(parser.Monitor().Snapshot(), failures, jsonOut)
			return nil
		},
	}

	cmd.Flags().StringVar(&dateFlag, "date", "", "reference date for relative parsing (YYYY-MM-DD)")
	cmd.Flags().StringVar(&recordPath, "record", "", "capture model exchanges to this file")
	cmd.Flags().StringVar(&replayPath, "replay", "", "answer prompts from a recording instead of the live model")
	cmd.Flags().BoolVar(&saveLogs, "save-logs", false, "persist a diagnostic run log per utterance")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "write one JSON verdict per case to stdout")

	return cmd
}

// readCorpus loads cases from a file, one per line.
func readCorpus(path string) ([]evalCase, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open corpus: %w", err)
	}
	defer func() { _ = f.Close() }()

	var cases []evalCase
	scanner := bufio.NewScanner(f)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if strings.HasPrefix(line, "{") {
			var c evalCase
			if err := json.Unmarshal([]byte(line), &c); err != nil {
				return nil, fmt.Errorf("corpus line %d: %w", lineNo, err)
			}
			if strings.TrimSpace(c.Input) == "" {
				return nil, fmt.Errorf("corpus line %d: missing input", lineNo)
			}
			cases = append(cases, c)
			continue
		}
		cases = append(cases, evalCase{Input: line})
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read corpus: %w", err)
	}
	return cases, nil
}

// caseContext builds the parsing context for one case: configured defaults
// overlaid with the case's own vocabularies.
func caseContext(c evalCase, dateFlag string) (model.ParsingContext, error) {
	date := dateFlag
	if c.Date != "" {
		date = c.Date
	}
	pctx, err := buildParsingContext(date)
	if err != nil {
		return pctx, err
	}

	if len(c.RecentMerchants) > 0 {
		pctx.RecentMerchants = c.RecentMerchants
	}
	if len(c.RecentCategories) > 0 {
		pctx.RecentCategories = c.RecentCategories
	}
	if len(c.KnownAccounts) > 0 {
		pctx.KnownAccounts = c.KnownAccounts
	}
	if len(c.ExpenseCategories) > 0 {
		pctx.AllowedExpenseCategories = c.ExpenseCategories
	}
	if len(c.IncomeCategories) > 0 {
		pctx.AllowedIncomeCategories = c.IncomeCategories
	}
	if len(c.Tags) > 0 {
		pctx.AllowedTags = c.Tags
	}
	if len(c.Accounts) > 0 {
		pctx.AllowedAccounts = c.Accounts
	}
	return pctx, nil
}

// buildVerdict flattens a parse outcome into its JSON form.
func buildVerdict(input string, res hybrid.HybridParsingResult) evalVerdict {
	r := res.Result

	verdict := evalVerdict{
		Input:      input,
		Method:     string(res.Method),
		Validated:  res.Validated,
		Confidence: res.Confidence,
		DurationMs: res.Stats.Duration.Milliseconds(),
		Errors:     res.Errors,
		Result: verdictResult{
			Type:            string(r.Type),
			Merchant:        r.Merchant,
			Description:     r.Description,
			Date:            r.Date.Format("2006-01-02"),
			ExpenseCategory: r.ExpenseCategory,
			IncomeCategory:  r.IncomeCategory,
			Account:         r.Account,
			Tags:            r.Tags,
			Note:            r.Note,
		},
	}
	if r.AmountUSD != nil {
		s := r.AmountUSD.StringFixed(2)
		verdict.Result.AmountUSD = &s
	}
	if r.SplitOverallChargedUSD != nil {
		s := r.SplitOverallChargedUSD.StringFixed(2)
		verdict.Result.OverallUSD = &s
	}
	if res.Staged != nil {
		for _, f := range res.Staged.FieldsRefined {
			verdict.Refined = append(verdict.Refined, string(f))
		}
	}
	return verdict
}

// printEvalSummary renders aggregate statistics for the run. With JSON output
// active the summary moves to stderr so stdout stays machine-readable.
func printEvalSummary(snapshot hybrid.MonitorSnapshot, failures int, jsonOut bool) {
	var b strings.Builder
	w := tabwriter.NewWriter(&b, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "%s\t%d\n", cli.BoldStyle.Render("Utterances"), snapshot.Total)
	fmt.Fprintf(w, "%s\t%d (%.0f%%)\n", cli.BoldStyle.Render("Model-assisted"), snapshot.AI, snapshot.AIRate()*100)
	fmt.Fprintf(w, "%s\t%d (%.0f%%)\n", cli.BoldStyle.Render("Heuristic-only"), snapshot.Heuristic, snapshot.FallbackRate()*100)
	fmt.Fprintf(w, "%s\t%.0f%%\n", cli.BoldStyle.Render("Validated"), snapshot.ValidationRate()*100)
	fmt.Fprintf(w, "%s\t%s\n", cli.BoldStyle.Render("Avg parse time"), (time.Duration(snapshot.AvgTimeMs())*time.Millisecond).String())
	fmt.Fprintf(w, "%s\t%d\n", cli.BoldStyle.Render("Runs with errors"), failures)
	_ = w.Flush()

	box := cli.RenderBox(cli.ChartIcon+" Evaluation summary", strings.TrimRight(b.String(), "\n"))
	if jsonOut {
		fmt.Fprintln(os.Stderr, box)
		return
	}
	fmt.Println(box)
}
