package hybrid

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/voxpense/voxpense/internal/heuristic"
	"github.com/voxpense/voxpense/internal/model"
)

func TestFocusedPromptSingleFieldTemplate(t *testing.T) {
	builder := NewFocusedPromptBuilder()
	draft := heuristic.Draft{
		Type:        model.TypeExpense,
		Merchant:    "starbucks",
		Confidences: map[model.FieldKey]float64{model.FieldMerchant: 0.65},
	}
	ctx := model.ParsingContext{RecentMerchants: []string{"Starbucks", "Target"}}

	prompt := builder.Build("coffee at starbucks", draft, []model.FieldKey{model.FieldMerchant}, ctx)

	assert.Contains(t, prompt, focusedSystem)
	assert.Contains(t, prompt, "Input: coffee at starbucks")
	assert.Contains(t, prompt, `Field: Merchant (key "merchant")`)
	assert.Contains(t, prompt, `Heuristic: "starbucks" (confidence 0.65)`)
	assert.Contains(t, prompt, "Allowed values: Starbucks, Target")

	category := builder.Build("coffee", draft, []model.FieldKey{model.FieldExpenseCategory}, model.ParsingContext{})
	for _, name := range []string{"'Eating Out'", "'Transportation'", "'Groceries'", "'Home'", "'Personal'", "'Health/medical'"} {
		assert.Contains(t, category, name)
	}
	assert.Contains(t, category, "utility bills, not vehicle fuel")
}

func TestFocusedPromptHidesLowConfidenceValues(t *testing.T) {
	builder := NewFocusedPromptBuilder()
	draft := heuristic.Draft{
		Type:        model.TypeExpense,
		Merchant:    "starbucks",
		Confidences: map[model.FieldKey]float64{model.FieldMerchant: 0.2},
	}

	prompt := builder.Build("coffee", draft, []model.FieldKey{model.FieldMerchant}, model.ParsingContext{})

	assert.Contains(t, prompt, "Heuristic: missing (confidence 0.20)")
	assert.NotContains(t, prompt, `"starbucks"`)
}

func TestFocusedPromptClampsLength(t *testing.T) {
	builder := NewFocusedPromptBuilder()
	input := strings.Repeat("very long utterance ", 100)

	prompt := builder.Build(input, heuristic.Draft{}, []model.FieldKey{model.FieldMerchant}, model.ParsingContext{})

	assert.LessOrEqual(t, len(prompt), maxFocusedPromptLength)
}

func TestFocusedPromptEmptyTargets(t *testing.T) {
	builder := NewFocusedPromptBuilder()

	prompt := builder.Build("coffee", heuristic.Draft{}, nil, model.ParsingContext{})

	assert.Equal(t, focusedSystem+"\nInput: coffee", prompt)
}

func TestFocusedPromptFiltersSplitwiseWithoutSplitCue(t *testing.T) {
	builder := NewFocusedPromptBuilder()
	ctx := model.ParsingContext{AllowedTags: []string{"Splitwise", "Auto-Paid"}}

	prompt := builder.Build("coffee at starbucks", heuristic.Draft{}, []model.FieldKey{model.FieldTags}, ctx)
	assert.NotContains(t, prompt, "Splitwise")
	assert.Contains(t, prompt, "Auto-Paid")

	split := builder.Build("split dinner with emily", heuristic.Draft{}, []model.FieldKey{model.FieldTags}, ctx)
	assert.Contains(t, split, "Splitwise")
}

func TestFocusedPromptSplitwiseAllowedWhenDraftTagged(t *testing.T) {
	builder := NewFocusedPromptBuilder()
	ctx := model.ParsingContext{AllowedTags: []string{"Splitwise", "Auto-Paid"}}
	draft := heuristic.Draft{Tags: []string{"splitwise"}}

	prompt := builder.Build("gas bill", draft, []model.FieldKey{model.FieldTags}, ctx)

	assert.Contains(t, prompt, "Splitwise")
}

func TestFocusedPromptMultiFieldCompactMode(t *testing.T) {
	builder := NewFocusedPromptBuilder()
	targets := []model.FieldKey{model.FieldMerchant, model.FieldDescription, model.FieldExpenseCategory}

	prompt := builder.Build("coffee", heuristic.Draft{}, targets, model.ParsingContext{})

	assert.Contains(t, prompt, "Return a JSON object with only these keys:")
	assert.Contains(t, prompt, `"merchant", "description", "expenseCategory"`)
	assert.Contains(t, prompt, "Heuristic summary:")
	assert.Contains(t, prompt, "Guideline for expenseCategory: Choose exactly one expense category:")
	assert.Contains(t, prompt, "'Eating Out' for food/drinks")
	assert.Contains(t, prompt, "'Personal' for subscriptions/services")
}

func TestFocusedPromptAccountOptionsUncapped(t *testing.T) {
	builder := NewFocusedPromptBuilder()
	accounts := []string{"One", "Two", "Three", "Four", "Five", "Six", "Seven", "Eight"}
	ctx := model.ParsingContext{AllowedAccounts: accounts}

	prompt := builder.Build("paid with card", heuristic.Draft{}, []model.FieldKey{model.FieldAccount}, ctx)
	for _, account := range accounts {
		assert.Contains(t, prompt, account)
	}
}

func TestFocusedPromptRealisticAccountListFitsBudget(t *testing.T) {
	builder := NewFocusedPromptBuilder()
	accounts := []string{
		"Chase Sapphire",
		"Citi Double Cash",
		"Bilt Mastercard",
		"Amex Gold",
		"Capital One",
		"Discover It",
		"Apple Card",
		"Ally Checking",
		"Fidelity Visa",
	}
	ctx := model.ParsingContext{AllowedAccounts: accounts}

	prompt := builder.Build("which card", heuristic.Draft{}, []model.FieldKey{model.FieldAccount}, ctx)

	assert.Less(t, len(prompt), maxFocusedPromptLength)
	for _, account := range accounts {
		assert.Contains(t, prompt, account)
	}
	assert.True(t, strings.HasSuffix(prompt, "rather than guessing."))
}

func TestFocusedPromptMerchantOptionsCapped(t *testing.T) {
	builder := NewFocusedPromptBuilder()
	merchants := []string{"M1", "M2", "M3", "M4", "M5", "M6", "M7", "M8"}
	ctx := model.ParsingContext{RecentMerchants: merchants}

	prompt := builder.Build("coffee", heuristic.Draft{}, []model.FieldKey{model.FieldMerchant}, ctx)

	assert.Contains(t, prompt, "M6")
	assert.NotContains(t, prompt, "M7")
}

func TestFocusedPromptOrdersFieldsByDeclaration(t *testing.T) {
	builder := NewFocusedPromptBuilder()
	targets := []model.FieldKey{model.FieldDescription, model.FieldMerchant}

	prompt := builder.Build("coffee", heuristic.Draft{}, targets, model.ParsingContext{})

	merchantAt := strings.Index(prompt, `Field: Merchant`)
	descriptionAt := strings.Index(prompt, `Field: Description`)
	assert.Greater(t, descriptionAt, merchantAt)
	assert.GreaterOrEqual(t, merchantAt, 0)
}
