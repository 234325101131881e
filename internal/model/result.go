// Package model defines the core domain types shared across the parsing
// pipeline: the structured transaction record, the caller-supplied parsing
// context, and the field vocabulary used by confidence scoring and staged
// refinement.
package model

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// TransactionType classifies a parsed transaction.
type TransactionType string

// Transaction type constants.
const (
	TypeExpense  TransactionType = "Expense"
	TypeIncome   TransactionType = "Income"
	TypeTransfer TransactionType = "Transfer"
)

// NormalizeType maps free-form model output onto a known transaction type.
// Unrecognized values fall back to Expense rather than failing; the pipeline
// prefers a mostly-good result over discarding the whole response.
func NormalizeType(raw string) (TransactionType, bool) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "expense":
		return TypeExpense, true
	case "income":
		return TypeIncome, true
	case "transfer":
		return TypeTransfer, true
	default:
		return TypeExpense, false
	}
}

// ParsedResult is the final structured transaction produced by a parse.
// Optional string fields use the empty string for "absent"; optional amounts
// use nil pointers.
type ParsedResult struct {
	Date                   time.Time
	Merchant               string
	Description            string
	ExpenseCategory        string
	IncomeCategory         string
	Account                string
	Note                   string
	Type                   TransactionType
	Tags                   []string
	AmountUSD              *decimal.Decimal
	SplitOverallChargedUSD *decimal.Decimal
	Confidence             float64
}

// Validate checks the structural invariants of a parsed result: a known type,
// the split constraint, and category nulling for transfers.
func (r ParsedResult) Validate() error {
	if r.Type != TypeExpense && r.Type != TypeIncome && r.Type != TypeTransfer {
		return ErrInvalidType
	}
	if r.AmountUSD != nil && r.SplitOverallChargedUSD != nil && r.AmountUSD.GreaterThan(*r.SplitOverallChargedUSD) {
		return ErrShareExceedsOverall
	}
	if r.Type == TypeTransfer && (r.ExpenseCategory != "" || r.IncomeCategory != "") {
		return ErrTransferCategory
	}
	return nil
}
