package hybrid

import (
	"sort"

	"github.com/voxpense/voxpense/internal/heuristic"
	"github.com/voxpense/voxpense/internal/model"
)

// Fields the refinement stage may target. Amount, date, and split-overall
// are owned by the heuristic pipeline and never sent to the model.
var refinableFields = map[model.FieldKey]struct{}{
	model.FieldMerchant:        {},
	model.FieldDescription:     {},
	model.FieldExpenseCategory: {},
	model.FieldIncomeCategory:  {},
	model.FieldTags:            {},
	model.FieldAccount:         {},
}

var fieldOrder = []model.FieldKey{
	model.FieldMerchant,
	model.FieldDescription,
	model.FieldExpenseCategory,
	model.FieldIncomeCategory,
	model.FieldTags,
	model.FieldAccount,
}

var fieldOrderIndex = func() map[model.FieldKey]int {
	index := make(map[model.FieldKey]int, len(fieldOrder))
	for i, field := range fieldOrder {
		index[field] = i
	}
	return index
}()

// Merchant and description drive the rest of the refinement pass, so their
// absence outranks everything else.
var criticalFields = map[model.FieldKey]struct{}{
	model.FieldMerchant:    {},
	model.FieldDescription: {},
}

const maxRefinableFields = 6

type fieldCandidate struct {
	field      model.FieldKey
	confidence float64
	missing    bool
}

func (c fieldCandidate) priority() int {
	_, critical := criticalFields[c.field]
	switch {
	case critical && c.missing:
		return 0
	case c.missing:
		return 1
	default:
		return 2
	}
}

// SelectFieldsForRefinement returns the ordered list of draft fields worth a
// focused model call: fields below their confidence threshold or missing a
// value entirely, capped to keep the refinement loop short. Category fields
// that do not apply to the draft's type are excluded.
func SelectFieldsForRefinement(draft heuristic.Draft, thresholds model.FieldConfidenceThresholds) []model.FieldKey {
	var candidates []fieldCandidate
	for field := range refinableFields {
		if !fieldAppliesToType(field, draft.Type) {
			continue
		}
		confidence := draft.Confidence(field)
		belowThreshold := confidence <= 0 || confidence < thresholds.ThresholdFor(field)
		missing := fieldMissing(field, draft)
		if !belowThreshold && !missing {
			continue
		}
		candidates = append(candidates, fieldCandidate{
			field:      field,
			confidence: confidence,
			missing:    missing,
		})
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		if a.priority() != b.priority() {
			return a.priority() < b.priority()
		}
		if fieldOrderIndex[a.field] != fieldOrderIndex[b.field] {
			return fieldOrderIndex[a.field] < fieldOrderIndex[b.field]
		}
		return a.confidence < b.confidence
	})

	selected := make([]model.FieldKey, 0, len(candidates))
	for _, candidate := range candidates {
		if len(selected) == maxRefinableFields {
			break
		}
		selected = append(selected, candidate.field)
	}
	return selected
}

func fieldAppliesToType(field model.FieldKey, txType model.TransactionType) bool {
	switch field {
	case model.FieldExpenseCategory:
		return txType != model.TypeIncome && txType != model.TypeTransfer
	case model.FieldIncomeCategory:
		return txType != model.TypeExpense && txType != model.TypeTransfer
	default:
		return true
	}
}

func fieldMissing(field model.FieldKey, draft heuristic.Draft) bool {
	switch field {
	case model.FieldMerchant:
		return draft.Merchant == ""
	case model.FieldDescription:
		return draft.Description == ""
	case model.FieldExpenseCategory:
		if draft.Type == model.TypeIncome || draft.Type == model.TypeTransfer {
			return false
		}
		return draft.ExpenseCategory == ""
	case model.FieldIncomeCategory:
		if draft.Type == model.TypeIncome {
			return draft.IncomeCategory == ""
		}
		return false
	case model.FieldAccount:
		return draft.Account == ""
	case model.FieldTags:
		return len(draft.Tags) == 0
	default:
		return false
	}
}
