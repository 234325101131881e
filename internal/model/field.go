package model

// FieldKey identifies one refinable semantic field of a transaction. It is
// the shared vocabulary between confidence thresholds, field selection,
// prompt building, and merge logic.
type FieldKey string

// Refinable transaction fields.
const (
	FieldAmount          FieldKey = "amountUsd"
	FieldMerchant        FieldKey = "merchant"
	FieldDescription     FieldKey = "description"
	FieldType            FieldKey = "type"
	FieldExpenseCategory FieldKey = "expenseCategory"
	FieldIncomeCategory  FieldKey = "incomeCategory"
	FieldTags            FieldKey = "tags"
	FieldDate            FieldKey = "userLocalDate"
	FieldAccount         FieldKey = "account"
	FieldSplitOverall    FieldKey = "splitOverallChargedUsd"
	FieldNote            FieldKey = "note"
)

// JSONKey returns the key the generative model is asked to use for the field.
// FieldKey values double as JSON keys, so this is the identity; it exists to
// keep call sites explicit about which namespace they mean.
func (f FieldKey) JSONKey() string { return string(f) }

// FieldConfidenceThresholds is the policy mapping mandatory fields to their
// minimum acceptable heuristic confidence. Fields absent from the map use the
// default threshold.
type FieldConfidenceThresholds struct {
	Mandatory map[FieldKey]float64
	Default   float64
}

// DefaultThresholds returns the standard policy used by the hybrid parser.
func DefaultThresholds() FieldConfidenceThresholds {
	return FieldConfidenceThresholds{
		Mandatory: map[FieldKey]float64{
			FieldAmount:   0.8,
			FieldDate:     0.75,
			FieldType:     0.6,
			FieldMerchant: 0.6,
			FieldAccount:  0.7,
		},
	}
}

// ThresholdFor returns the minimum confidence required for the field.
func (t FieldConfidenceThresholds) ThresholdFor(field FieldKey) float64 {
	if v, ok := t.Mandatory[field]; ok {
		return v
	}
	return t.Default
}

// MandatoryFields returns the fields with an explicit threshold.
func (t FieldConfidenceThresholds) MandatoryFields() []FieldKey {
	fields := make([]FieldKey, 0, len(t.Mandatory))
	for f := range t.Mandatory {
		fields = append(fields, f)
	}
	return fields
}
