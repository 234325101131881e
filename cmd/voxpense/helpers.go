package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/viper"

	"github.com/voxpense/voxpense/internal/genai"
	"github.com/voxpense/voxpense/internal/hybrid"
	"github.com/voxpense/voxpense/internal/model"
	"github.com/voxpense/voxpense/internal/runlog"
)

// gatewayConfig assembles the gateway configuration from viper, with flag
// overrides applied by the caller. With no gateway configured at all the
// provider defaults to "off" so parsing degrades to heuristics instead of
// failing.
func gatewayConfig() genai.Config {
	cfg := genai.Config{
		Provider:       viper.GetString("gateway.provider"),
		Endpoint:       viper.GetString("gateway.endpoint"),
		APIKey:         viper.GetString("gateway.api_key"),
		Model:          viper.GetString("gateway.model"),
		Temperature:    viper.GetFloat64("gateway.temperature"),
		MaxTokens:      viper.GetInt("gateway.max_tokens"),
		RateLimit:      viper.GetInt("gateway.rate_limit"),
		CacheTTL:       viper.GetDuration("gateway.cache_ttl"),
		ReplayPath:     viper.GetString("gateway.replay_path"),
		RequestTimeout: viper.GetDuration("gateway.request_timeout"),
	}
	if cfg.Provider == "" && cfg.Endpoint == "" {
		cfg.Provider = "off"
	}
	return cfg
}

// buildParsingContext assembles vocabularies and hints from configuration.
// The default date comes from the --date flag when set, otherwise today.
func buildParsingContext(dateFlag string) (model.ParsingContext, error) {
	pctx := model.ParsingContext{
		RecentMerchants:          viper.GetStringSlice("hints.recent_merchants"),
		RecentCategories:         viper.GetStringSlice("hints.recent_categories"),
		KnownAccounts:            viper.GetStringSlice("hints.known_accounts"),
		AllowedExpenseCategories: viper.GetStringSlice("vocab.expense_categories"),
		AllowedIncomeCategories:  viper.GetStringSlice("vocab.income_categories"),
		AllowedTags:              viper.GetStringSlice("vocab.tags"),
		AllowedAccounts:          viper.GetStringSlice("vocab.accounts"),
	}

	if dateFlag != "" {
		parsed, err := time.Parse("2006-01-02", dateFlag)
		if err != nil {
			return pctx, fmt.Errorf("invalid --date (want YYYY-MM-DD): %w", err)
		}
		pctx.DefaultDate = parsed
	}

	return pctx, nil
}

// openRunLogStore opens the run log database, creating its directory when
// needed.
func openRunLogStore() (*runlog.SQLiteStore, error) {
	path := viper.GetString("runlog.db")
	if path == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get home directory: %w", err)
		}
		path = filepath.Join(home, ".local", "share", "voxpense", "runs.db")
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("failed to create run log directory: %w", err)
	}

	return runlog.OpenSQLiteStore(path)
}

// closeGateway releases gateway resources when the implementation holds any.
func closeGateway(gw hybrid.Gateway) {
	if closer, ok := gw.(interface{ Close() }); ok {
		closer.Close()
	}
}

// amountCell renders a decimal pointer for display.
func amountCell(d *decimal.Decimal) string {
	if d == nil {
		return "-"
	}
	return "$" + d.StringFixed(2)
}

// resultRows builds the label/value pairs shown for a parsed transaction.
func resultRows(res hybrid.HybridParsingResult) [][2]string {
	r := res.Result

	rows := [][2]string{
		{"Type", string(r.Type)},
		{"Merchant", orDash(r.Merchant)},
		{"Description", orDash(r.Description)},
		{"Amount", amountCell(r.AmountUSD)},
		{"Date", r.Date.Format("2006-01-02")},
	}
	if r.Type == model.TypeIncome {
		rows = append(rows, [2]string{"Income category", orDash(r.IncomeCategory)})
	} else if r.Type == model.TypeExpense {
		rows = append(rows, [2]string{"Expense category", orDash(r.ExpenseCategory)})
	}
	if r.SplitOverallChargedUSD != nil {
		rows = append(rows, [2]string{"Overall charged", amountCell(r.SplitOverallChargedUSD)})
	}
	rows = append(rows,
		[2]string{"Account", orDash(r.Account)},
		[2]string{"Tags", orDash(strings.Join(r.Tags, ", "))},
	)
	if r.Note != "" {
		rows = append(rows, [2]string{"Note", r.Note})
	}
	rows = append(rows,
		[2]string{"Method", string(res.Method)},
		[2]string{"Confidence", fmt.Sprintf("%.2f", res.Confidence)},
		[2]string{"Duration", res.Stats.Duration.Round(time.Millisecond).String()},
	)
	return rows
}

func orDash(s string) string {
	if strings.TrimSpace(s) == "" {
		return "-"
	}
	return s
}

// saveRunLog persists the run log, logging rather than failing the parse when
// the store is unhealthy.
func saveRunLog(store *runlog.SQLiteStore, builder *runlog.Builder) {
	if store == nil || builder == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := store.Save(ctx, builder.Snapshot()); err != nil {
		slog.Warn("failed to persist run log", "run_id", builder.RunID(), "error", err)
	}
}
