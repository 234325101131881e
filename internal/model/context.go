package model

import (
	"time"

	"github.com/voxpense/voxpense/internal/runlog"
)

// ParsingContext carries caller-supplied configuration for a single parse
// call. Allowed lists act as closed vocabularies: resolved values must match
// an entry case-insensitively or they are dropped. The context is treated as
// immutable for the duration of a parse.
type ParsingContext struct {
	DefaultDate              time.Time
	RecentMerchants          []string
	RecentCategories         []string
	KnownAccounts            []string
	AllowedExpenseCategories []string
	AllowedIncomeCategories  []string
	AllowedTags              []string
	AllowedAccounts          []string
	RunLog                   *runlog.Builder
}

// ReferenceDate returns the context's default date, falling back to the
// current day when unset.
func (c ParsingContext) ReferenceDate() time.Time {
	if c.DefaultDate.IsZero() {
		return time.Now()
	}
	return c.DefaultDate
}

// AccountOptions returns the account vocabulary: the allowed list when
// configured, otherwise the known-accounts hints.
func (c ParsingContext) AccountOptions() []string {
	if len(c.AllowedAccounts) > 0 {
		return c.AllowedAccounts
	}
	return c.KnownAccounts
}
