package model

import (
	"strings"

	"github.com/shopspring/decimal"
)

// Sanitize normalizes a result's monetary and string fields: amounts become
// non-negative and rounded to cents, strings are trimmed with empty values
// dropped. Tags are trimmed individually.
func Sanitize(r ParsedResult) ParsedResult {
	r.AmountUSD = sanitizeAmount(r.AmountUSD)
	r.SplitOverallChargedUSD = sanitizeAmount(r.SplitOverallChargedUSD)
	r.Merchant = strings.TrimSpace(r.Merchant)
	r.Description = strings.TrimSpace(r.Description)
	r.Note = strings.TrimSpace(r.Note)
	r.ExpenseCategory = strings.TrimSpace(r.ExpenseCategory)
	r.IncomeCategory = strings.TrimSpace(r.IncomeCategory)
	r.Account = strings.TrimSpace(r.Account)

	if len(r.Tags) > 0 {
		tags := make([]string, 0, len(r.Tags))
		for _, tag := range r.Tags {
			if trimmed := strings.TrimSpace(tag); trimmed != "" {
				tags = append(tags, trimmed)
			}
		}
		if len(tags) == 0 {
			tags = nil
		}
		r.Tags = tags
	}
	return r
}

func sanitizeAmount(v *decimal.Decimal) *decimal.Decimal {
	if v == nil {
		return nil
	}
	rounded := v.Abs().Round(2)
	return &rounded
}
