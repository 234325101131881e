package hybrid

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/voxpense/voxpense/internal/heuristic"
	"github.com/voxpense/voxpense/internal/model"
)

func testOrchestrator(gateway Gateway) *Orchestrator {
	o := NewOrchestrator(heuristic.NewExtractor(), gateway, slog.Default())
	o.waitTimeout = 5 * time.Millisecond
	o.pollInterval = time.Millisecond
	return o
}

func decPtr(t *testing.T, value string) *decimal.Decimal {
	t.Helper()
	d, err := decimal.NewFromString(value)
	require.NoError(t, err)
	return &d
}

func expenseSnapshot(t *testing.T, targets ...model.FieldKey) *Stage1Snapshot {
	t.Helper()
	return &Stage1Snapshot{
		Draft: heuristic.Draft{
			Type:      model.TypeExpense,
			AmountUSD: decPtr(t, "4.75"),
			Confidences: map[model.FieldKey]float64{
				model.FieldAmount: 0.85,
				model.FieldType:   0.6,
			},
		},
		TargetFields: targets,
	}
}

func TestParseStagedRefinesTargetFields(t *testing.T) {
	gateway := NewMockGateway()
	gateway.Respond("Field: Merchant", `{"merchant":"Starbucks"}`)
	gateway.Respond("Field: Description", `{"description":"latte and pastry"}`)
	orchestrator := testOrchestrator(gateway)
	snapshot := expenseSnapshot(t, model.FieldMerchant, model.FieldDescription)
	pctx := model.ParsingContext{DefaultDate: time.Date(2025, 9, 12, 0, 0, 0, 0, time.UTC)}

	result := orchestrator.ParseStaged(context.Background(), "spent 4.75 at starbucks", pctx, snapshot, nil)

	require.True(t, result.WasFieldRefined(model.FieldMerchant))
	require.True(t, result.WasFieldRefined(model.FieldDescription))
	merchant, _ := result.RefinementValue(model.FieldMerchant)
	assert.Equal(t, "Starbucks", merchant)
	assert.Equal(t, "Starbucks", result.MergedResult.Merchant)
	assert.Equal(t, "Latte and pastry", result.MergedResult.Description)
	require.NotNil(t, result.MergedResult.AmountUSD)
	assert.True(t, result.MergedResult.AmountUSD.Equal(decimal.RequireFromString("4.75")))
	assert.False(t, result.HasErrors())
	assert.Equal(t, 2, gateway.CallCount())

	// The returned draft stays the untouched stage-1 snapshot.
	assert.Empty(t, result.Draft.Merchant)
}

func TestParseStagedFeedsRefinedValuesIntoLaterPrompts(t *testing.T) {
	gateway := NewMockGateway()
	gateway.Respond("Field: Merchant", `{"merchant":"Starbucks"}`)
	orchestrator := testOrchestrator(gateway)
	snapshot := expenseSnapshot(t, model.FieldMerchant, model.FieldDescription)

	orchestrator.ParseStaged(context.Background(), "spent 4.75 at starbucks", model.ParsingContext{}, snapshot, nil)

	prompts := gateway.Prompts()
	require.Len(t, prompts, 2)
	assert.Contains(t, prompts[1], "The merchant is 'Starbucks'")
}

func TestParseStagedRecordsValidationFailures(t *testing.T) {
	gateway := NewMockGateway()
	gateway.Respond("Field: Merchant", `{"merchant":"Gas Bill","amountUsd":30,"splitOverallChargedUsd":20}`)
	orchestrator := testOrchestrator(gateway)
	snapshot := expenseSnapshot(t, model.FieldMerchant)

	result := orchestrator.ParseStaged(context.Background(), "gas bill", model.ParsingContext{}, snapshot, nil)

	assert.False(t, result.WasFieldRefined(model.FieldMerchant))
	require.True(t, result.HasErrors())
	assert.Contains(t, result.RefinementErrors[0], "share exceeds overall")
	assert.Equal(t, "Unknown", result.MergedResult.Merchant)
}

func TestParseStagedTreatsBlankResponseAsError(t *testing.T) {
	gateway := NewMockGateway()
	orchestrator := testOrchestrator(gateway)
	snapshot := expenseSnapshot(t, model.FieldMerchant)

	result := orchestrator.ParseStaged(context.Background(), "spent 4.75", model.ParsingContext{}, snapshot, nil)

	assert.False(t, result.WasFieldRefined(model.FieldMerchant))
	assert.Contains(t, result.RefinementErrors, "AI blank response")
}

func TestParseStagedFallsBackWhenUnavailable(t *testing.T) {
	gateway := NewMockGateway()
	gateway.SetAvailable(false)
	orchestrator := testOrchestrator(gateway)
	snapshot := expenseSnapshot(t, model.FieldMerchant)
	pctx := model.ParsingContext{DefaultDate: time.Date(2025, 9, 12, 0, 0, 0, 0, time.UTC)}

	result := orchestrator.ParseStaged(context.Background(), "spent 4.75", pctx, snapshot, nil)

	assert.Empty(t, result.FieldsRefined)
	assert.Contains(t, result.RefinementErrors, "AI unavailable")
	assert.Zero(t, gateway.CallCount())
	require.NotNil(t, result.MergedResult.AmountUSD)
	assert.True(t, result.MergedResult.AmountUSD.Equal(decimal.RequireFromString("4.75")))
}

func TestParseStagedSkipsGatewayWithoutTargets(t *testing.T) {
	gateway := NewMockGateway()
	orchestrator := testOrchestrator(gateway)
	snapshot := expenseSnapshot(t)

	result := orchestrator.ParseStaged(context.Background(), "spent 4.75", model.ParsingContext{}, snapshot, nil)

	assert.Zero(t, gateway.CallCount())
	assert.Empty(t, result.RefinementErrors)
	assert.Empty(t, result.TargetFields)
}

func TestParseStagedNotifiesListenerPerField(t *testing.T) {
	gateway := NewMockGateway()
	gateway.Respond("Field: Merchant", `{"merchant":"Starbucks"}`)
	orchestrator := testOrchestrator(gateway)
	snapshot := expenseSnapshot(t, model.FieldMerchant, model.FieldDescription)

	var updates []FieldRefinementUpdate
	orchestrator.ParseStaged(context.Background(), "spent 4.75 at starbucks", model.ParsingContext{}, snapshot,
		func(update FieldRefinementUpdate) { updates = append(updates, update) })

	require.Len(t, updates, 2)
	assert.Equal(t, model.FieldMerchant, updates[0].Field)
	assert.Equal(t, "Starbucks", updates[0].Value)
	assert.Empty(t, updates[0].Err)
	// The description prompt got a blank response, reported as an error.
	assert.Equal(t, model.FieldDescription, updates[1].Field)
	assert.Nil(t, updates[1].Value)
	assert.Equal(t, "AI blank response", updates[1].Err)
}

func TestParseStagedNormalizesRefinedTags(t *testing.T) {
	gateway := NewMockGateway()
	gateway.Respond("Field: Tags", `{"tags":["autopaid","splitwise"]}`)
	orchestrator := testOrchestrator(gateway)
	snapshot := expenseSnapshot(t, model.FieldTags)
	pctx := model.ParsingContext{AllowedTags: []string{"Auto-Paid", "Splitwise"}}

	result := orchestrator.ParseStaged(context.Background(), "split the gas bill", pctx, snapshot, nil)

	require.True(t, result.WasFieldRefined(model.FieldTags))
	assert.Equal(t, []string{"Auto-Paid", "Splitwise"}, result.MergedResult.Tags)
}

func TestParseStagedDropsUnmatchedAccountInMerge(t *testing.T) {
	gateway := NewMockGateway()
	gateway.Respond("Field: Account", `{"account":"citi"}`)
	orchestrator := testOrchestrator(gateway)
	snapshot := expenseSnapshot(t, model.FieldAccount)
	pctx := model.ParsingContext{AllowedAccounts: []string{"Citi Double Cash"}}

	result := orchestrator.ParseStaged(context.Background(), "paid with citi", pctx, snapshot, nil)

	// The refined value survives as raw text but the merge enforces the
	// account vocabulary, so an unmatched name is dropped.
	require.True(t, result.WasFieldRefined(model.FieldAccount))
	assert.Empty(t, result.MergedResult.Account)
}

func TestParseStagedMatchesAccountCaseInsensitively(t *testing.T) {
	gateway := NewMockGateway()
	gateway.Respond("Field: Account", `{"account":"citi double cash"}`)
	orchestrator := testOrchestrator(gateway)
	snapshot := expenseSnapshot(t, model.FieldAccount)
	pctx := model.ParsingContext{AllowedAccounts: []string{"Citi Double Cash"}}

	result := orchestrator.ParseStaged(context.Background(), "paid with citi", pctx, snapshot, nil)

	assert.Equal(t, "Citi Double Cash", result.MergedResult.Account)
}
