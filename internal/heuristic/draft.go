// Package heuristic derives transaction fields from a spoken utterance using
// deterministic rules, before any generative model is consulted. Each derived
// field carries a confidence score so the hybrid pipeline can decide whether
// model help is still required.
package heuristic

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/voxpense/voxpense/internal/model"
)

// Draft is the intermediate, partially-populated transaction produced by the
// extractor. It is refined copy-on-write by the staged orchestrator and
// discarded after the merge into a ParsedResult.
type Draft struct {
	Date                   *time.Time
	AmountUSD              *decimal.Decimal
	SplitOverallChargedUSD *decimal.Decimal
	Merchant               string
	Description            string
	ExpenseCategory        string
	IncomeCategory         string
	Account                string
	Note                   string
	Type                   model.TransactionType
	Tags                   []string
	Confidences            map[model.FieldKey]float64
}

// Confidence returns the draft's confidence for a field, zero when unset.
func (d Draft) Confidence(field model.FieldKey) float64 {
	return d.Confidences[field]
}

// WithConfidence returns a copy of the draft with one confidence replaced.
func (d Draft) WithConfidence(field model.FieldKey, value float64) Draft {
	confidences := make(map[model.FieldKey]float64, len(d.Confidences)+1)
	for k, v := range d.Confidences {
		confidences[k] = v
	}
	confidences[field] = value
	d.Confidences = confidences
	return d
}

// CoverageScore averages the draft's confidence across the mandatory fields
// of the default threshold policy. It is used as the fallback confidence for
// heuristic-only results.
func (d Draft) CoverageScore() float64 {
	mandatory := model.DefaultThresholds().MandatoryFields()
	if len(mandatory) == 0 {
		return 0
	}
	var sum float64
	for _, field := range mandatory {
		sum += d.Confidence(field)
	}
	return sum / float64(len(mandatory))
}

// RequiresAI reports whether the draft needs generative refinement under the
// given policy: false only when a merchant-like field clears the merchant
// threshold and every mandatory field has positive confidence at or above its
// own threshold.
func (d Draft) RequiresAI(thresholds model.FieldConfidenceThresholds) bool {
	merchantThreshold := thresholds.ThresholdFor(model.FieldMerchant)
	hasMerchantLike := d.Confidence(model.FieldMerchant) >= merchantThreshold ||
		d.Confidence(model.FieldDescription) >= merchantThreshold
	if !hasMerchantLike {
		return true
	}

	for _, field := range thresholds.MandatoryFields() {
		conf := d.Confidence(field)
		if conf <= 0 || conf < thresholds.ThresholdFor(field) {
			return true
		}
	}
	return false
}

// ToParsedResult converts the draft into a final result, applying defaults
// and sanitation. Categories default per type so heuristic-only results stay
// usable without model help.
func (d Draft) ToParsedResult(ctx model.ParsingContext) model.ParsedResult {
	txType := d.Type
	if txType == "" {
		txType = model.TypeExpense
	}

	expenseCategory := ""
	incomeCategory := ""
	switch txType {
	case model.TypeExpense:
		expenseCategory = d.ExpenseCategory
		if expenseCategory == "" {
			expenseCategory = "Uncategorized"
		}
	case model.TypeIncome:
		incomeCategory = d.IncomeCategory
		if incomeCategory == "" {
			incomeCategory = "Salary"
		}
	}

	merchant := d.Merchant
	if merchant == "" {
		merchant = "Unknown"
	}

	date := ctx.ReferenceDate()
	if d.Date != nil {
		date = *d.Date
	}

	confidence := d.CoverageScore()
	if confidence < 0 {
		confidence = 0
	} else if confidence > 1 {
		confidence = 1
	}

	return model.Sanitize(model.ParsedResult{
		AmountUSD:              d.AmountUSD,
		Merchant:               merchant,
		Description:            d.Description,
		Type:                   txType,
		ExpenseCategory:        expenseCategory,
		IncomeCategory:         incomeCategory,
		Tags:                   dedupe(d.Tags),
		Date:                   date,
		Account:                d.Account,
		SplitOverallChargedUSD: d.SplitOverallChargedUSD,
		Note:                   d.Note,
		Confidence:             confidence,
	})
}

func dedupe(tags []string) []string {
	if len(tags) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(tags))
	out := make([]string, 0, len(tags))
	for _, tag := range tags {
		if _, ok := seen[tag]; ok {
			continue
		}
		seen[tag] = struct{}{}
		out = append(out, tag)
	}
	return out
}
