package model

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func dec(v string) *decimal.Decimal {
	d := decimal.RequireFromString(v)
	return &d
}

func TestNormalizeType(t *testing.T) {
	tests := []struct {
		name       string
		raw        string
		want       TransactionType
		recognized bool
	}{
		{name: "expense", raw: "Expense", want: TypeExpense, recognized: true},
		{name: "lowercase income", raw: "income", want: TypeIncome, recognized: true},
		{name: "padded transfer", raw: "  TRANSFER ", want: TypeTransfer, recognized: true},
		{name: "unknown falls back to expense", raw: "refund", want: TypeExpense, recognized: false},
		{name: "empty falls back to expense", raw: "", want: TypeExpense, recognized: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := NormalizeType(tt.raw)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.recognized, ok)
		})
	}
}

func TestParsedResultValidate(t *testing.T) {
	tests := []struct {
		name    string
		result  ParsedResult
		wantErr error
	}{
		{
			name:   "valid expense",
			result: ParsedResult{Type: TypeExpense, Merchant: "Starbucks", AmountUSD: dec("4.75")},
		},
		{
			name:    "unknown type",
			result:  ParsedResult{Type: TransactionType("Refund")},
			wantErr: ErrInvalidType,
		},
		{
			name: "share exceeds overall",
			result: ParsedResult{
				Type:                   TypeExpense,
				AmountUSD:              dec("80.00"),
				SplitOverallChargedUSD: dec("40.00"),
			},
			wantErr: ErrShareExceedsOverall,
		},
		{
			name: "share within overall",
			result: ParsedResult{
				Type:                   TypeExpense,
				AmountUSD:              dec("40.00"),
				SplitOverallChargedUSD: dec("80.00"),
			},
		},
		{
			name:    "transfer with expense category",
			result:  ParsedResult{Type: TypeTransfer, ExpenseCategory: "Transfers"},
			wantErr: ErrTransferCategory,
		},
		{
			name:    "transfer with income category",
			result:  ParsedResult{Type: TypeTransfer, IncomeCategory: "Other"},
			wantErr: ErrTransferCategory,
		},
		{
			name:   "clean transfer",
			result: ParsedResult{Type: TypeTransfer, AmountUSD: dec("500.00")},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.result.Validate()
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
