package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/voxpense/voxpense/internal/hybrid"
	"github.com/voxpense/voxpense/internal/model"
)

func writeCorpus(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "corpus.txt")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestReadCorpusPlainLines(t *testing.T) {
	path := writeCorpus(t, "# comment\n\nspent 4.75 at starbucks\npaycheck of 2500\n")

	cases, err := readCorpus(path)
	require.NoError(t, err)
	require.Len(t, cases, 2)
	assert.Equal(t, "spent 4.75 at starbucks", cases[0].Input)
	assert.Equal(t, "paycheck of 2500", cases[1].Input)
}

func TestReadCorpusJSONLines(t *testing.T) {
	path := writeCorpus(t, `{"input":"lunch at chipotle","date":"2026-08-30","recentMerchants":["Chipotle"]}`+"\n")

	cases, err := readCorpus(path)
	require.NoError(t, err)
	require.Len(t, cases, 1)
	assert.Equal(t, "lunch at chipotle", cases[0].Input)
	assert.Equal(t, "2026-08-30", cases[0].Date)
	assert.Equal(t, []string{"Chipotle"}, cases[0].RecentMerchants)
}

func TestReadCorpusRejectsBadJSON(t *testing.T) {
	path := writeCorpus(t, "{not json}\n")
	_, err := readCorpus(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "corpus line 1")
}

func TestReadCorpusRejectsMissingInput(t *testing.T) {
	path := writeCorpus(t, `{"date":"2026-08-30"}`+"\n")
	_, err := readCorpus(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing input")
}

func TestCaseContextOverlaysVocabularies(t *testing.T) {
	pctx, err := caseContext(evalCase{
		Input:         "lunch",
		Date:          "2026-08-30",
		KnownAccounts: []string{"Citi Double Cash"},
		Tags:          []string{"Splitwise"},
	}, "")
	require.NoError(t, err)

	assert.Equal(t, time.Date(2026, 8, 30, 0, 0, 0, 0, time.UTC), pctx.DefaultDate)
	assert.Equal(t, []string{"Citi Double Cash"}, pctx.KnownAccounts)
	assert.Equal(t, []string{"Splitwise"}, pctx.AllowedTags)
}

func TestCaseContextRejectsBadDate(t *testing.T) {
	_, err := caseContext(evalCase{Input: "lunch", Date: "08/30/2026"}, "")
	require.Error(t, err)
}

func TestBuildVerdict(t *testing.T) {
	amount := decimal.RequireFromString("4.75")
	res := hybrid.HybridParsingResult{
		Method:     hybrid.MethodAI,
		Validated:  true,
		Confidence: 0.9,
		Stats:      hybrid.ProcessingStatistics{Duration: 1500 * time.Millisecond},
		Result: model.ParsedResult{
			Type:      model.TypeExpense,
			Merchant:  "Starbucks",
			AmountUSD: &amount,
			Date:      time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC),
			Tags:      []string{"Coffee"},
		},
		Staged: &hybrid.StagedParsingResult{
			FieldsRefined: []model.FieldKey{model.FieldMerchant},
		},
	}

	verdict := buildVerdict("spent 4.75 at starbucks", res)

	assert.Equal(t, "spent 4.75 at starbucks", verdict.Input)
	assert.Equal(t, "AI", verdict.Method)
	assert.True(t, verdict.Validated)
	assert.Equal(t, int64(1500), verdict.DurationMs)
	require.NotNil(t, verdict.Result.AmountUSD)
	assert.Equal(t, "4.75", *verdict.Result.AmountUSD)
	assert.Nil(t, verdict.Result.OverallUSD)
	assert.Equal(t, "2026-09-01", verdict.Result.Date)
	assert.Equal(t, []string{"merchant"}, verdict.Refined)
}
