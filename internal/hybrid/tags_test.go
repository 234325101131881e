package hybrid

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeTagsMatchesVocabulary(t *testing.T) {
	allowed := []string{"Auto-Paid", "Splitwise", "Subscription"}

	tests := []struct {
		name string
		raw  []string
		want []string
	}{
		{
			name: "case insensitive match",
			raw:  []string{"splitwise", "SUBSCRIPTION"},
			want: []string{"Splitwise", "Subscription"},
		},
		{
			name: "punctuation and spacing collapse",
			raw:  []string{"autopaid", "auto paid"},
			want: []string{"Auto-Paid"},
		},
		{
			name: "unknown tags dropped",
			raw:  []string{"splitwise", "groceries"},
			want: []string{"Splitwise"},
		},
		{
			name: "duplicates collapse preserving order",
			raw:  []string{"subscription", "Splitwise", "subscription"},
			want: []string{"Subscription", "Splitwise"},
		},
		{
			name: "blank entries ignored",
			raw:  []string{"  ", "splitwise"},
			want: []string{"Splitwise"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, NormalizeTags(tt.raw, allowed))
		})
	}
}

func TestNormalizeTagsWithoutVocabulary(t *testing.T) {
	got := NormalizeTags([]string{"auto paid", "AUTO PAID", "travel-fund"}, nil)
	assert.Equal(t, []string{"Auto Paid", "Travel-Fund"}, got)
}

func TestNormalizeTagsEmptyInput(t *testing.T) {
	assert.Nil(t, NormalizeTags(nil, []string{"Splitwise"}))
	assert.Nil(t, NormalizeTags([]string{}, nil))
}
