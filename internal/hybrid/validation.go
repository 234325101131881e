package hybrid

import (
	"encoding/json"
	"regexp"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/voxpense/voxpense/internal/model"
)

// ValidationOutcome is the result of validating a raw model response:
// whether it passed, the re-serialized payload when it did, the collected
// rule violations, and a completeness-based confidence score.
type ValidationOutcome struct {
	NormalizedJSON string
	Errors         []string
	Confidence     float64
	Valid          bool
}

// Responses only need to satisfy the parts of the schema that break mapping
// when wrong; everything else is handled leniently downstream.
const transactionSchemaJSON = `{
	"type": "object",
	"properties": {
		"tags": {
			"type": ["array", "null"],
			"items": {"type": "string"}
		}
	}
}`

var transactionSchema = jsonschema.MustCompileString("transaction.json", transactionSchemaJSON)

var (
	trailingCommaArray  = regexp.MustCompile(`,\s*]`)
	trailingCommaObject = regexp.MustCompile(`,\s*}`)
	trailingComma       = regexp.MustCompile(`,\s*$`)
	leadingJSONLabel    = regexp.MustCompile(`(?i)^json\s*`)
)

// ValidateRawResponse recovers a JSON object from raw model text, checks it
// against the schema and business rules, and scores the result. Schema
// violations are collected rather than fatal so a mostly-good response still
// reaches the caller with its errors attached.
func ValidateRawResponse(text string) ValidationOutcome {
	var errs []string

	normalized := RecoverJSON(text)

	payload, err := decodeObject(normalized)
	if err != nil {
		errs = append(errs, err.Error())
		return ValidationOutcome{Errors: errs, Confidence: 0}
	}
	if schemaErr := checkSchema(payload); schemaErr != "" {
		errs = append(errs, schemaErr)
	}

	applyFieldAliases(payload)

	rawType, _ := payload["type"].(string)
	normalizedType, typeValid := model.NormalizeType(strings.TrimSpace(rawType))
	// Unknown types degrade to Expense so a mostly-good response survives.
	payload["type"] = string(normalizedType)

	amount := numberField(payload, "amountUsd")
	overall := numberField(payload, "splitOverallChargedUsd")
	if amount != nil && overall != nil && *amount > *overall {
		errs = append(errs, "share exceeds overall")
	}

	if normalizedType == model.TypeTransfer {
		if payload["expenseCategory"] != nil {
			errs = append(errs, "transfer: expenseCategory must be null")
		}
		if payload["incomeCategory"] != nil {
			errs = append(errs, "transfer: incomeCategory must be null")
		}
	}

	score := 0.4
	if typeValid {
		score += 0.15
	}
	if merchant, _ := payload["merchant"].(string); strings.TrimSpace(merchant) != "" {
		score += 0.1
	}
	if amount != nil {
		score += 0.15
	}
	if tags, ok := payload["tags"]; ok && tags != nil {
		score += 0.05
	}
	if overall == nil || amount == nil || *amount <= *overall {
		score += 0.05
	}
	if normalizedType == model.TypeTransfer && payload["expenseCategory"] == nil && payload["incomeCategory"] == nil {
		score += 0.05
	}
	if len(errs) > 0 {
		penalty := 0.1 * float64(len(errs))
		if penalty > 0.3 {
			penalty = 0.3
		}
		score -= penalty
	}
	if score < 0 {
		score = 0
	} else if score > 1 {
		score = 1
	}

	valid := len(errs) == 0
	normalizedJSON := ""
	if valid {
		if encoded, err := json.Marshal(payload); err == nil {
			normalizedJSON = string(encoded)
		}
	}
	return ValidationOutcome{
		Valid:          valid,
		NormalizedJSON: normalizedJSON,
		Errors:         errs,
		Confidence:     score,
	}
}

// ValidateResult applies the final-result business rules: known type, no
// currency symbols in the description, and split share not exceeding the
// overall charge.
func ValidateResult(r model.ParsedResult) error {
	if strings.Contains(r.Description, "$") {
		return ErrCurrencySymbol
	}
	return r.Validate()
}

// ErrCurrencySymbol reports a description carrying a currency symbol; all
// monetary values are plain USD numbers.
var ErrCurrencySymbol = errorString("currency symbol not allowed")

type errorString string

func (e errorString) Error() string { return string(e) }

func decodeObject(normalized string) (map[string]any, error) {
	attempt := func(candidate string) (map[string]any, error) {
		var value any
		if err := json.Unmarshal([]byte(candidate), &value); err != nil {
			return nil, err
		}
		obj, ok := value.(map[string]any)
		if !ok {
			return nil, errorString("invalid json: not object")
		}
		return obj, nil
	}

	obj, err := attempt(normalized)
	if err == nil {
		return obj, nil
	}
	// Retry once with trailing commas stripped; small models emit them often.
	repaired := trailingCommaArray.ReplaceAllString(normalized, "]")
	repaired = trailingCommaObject.ReplaceAllString(repaired, "}")
	if obj, retryErr := attempt(repaired); retryErr == nil {
		return obj, nil
	}
	return nil, errorString("invalid json: " + err.Error())
}

func checkSchema(payload map[string]any) string {
	if err := transactionSchema.Validate(map[string]any(payload)); err != nil {
		return "tags must be array of strings"
	}
	return ""
}

func applyFieldAliases(payload map[string]any) {
	if _, ok := payload["amountUsd"]; !ok {
		if amount, exists := payload["amount"].(float64); exists {
			payload["amountUsd"] = amount
		}
	}
	if _, ok := payload["splitOverallChargedUsd"]; !ok {
		if overall, exists := payload["overall"].(float64); exists {
			payload["splitOverallChargedUsd"] = overall
		} else if total, exists := payload["total"].(float64); exists {
			payload["splitOverallChargedUsd"] = total
		}
	}
}

func numberField(payload map[string]any, key string) *float64 {
	if value, ok := payload[key].(float64); ok {
		return &value
	}
	return nil
}

// RecoverJSON extracts the first balanced top-level JSON object from model
// text that may carry surrounding prose or markdown code fences. When the
// object is truncated it salvages up to the last complete top-level field
// and closes the brace.
func RecoverJSON(text string) string {
	s := strings.ReplaceAll(text, "\r", "")
	s = strings.ReplaceAll(s, "```json", "```")
	s = strings.ReplaceAll(s, "```JSON", "```")
	s = strings.ReplaceAll(s, "```", "")
	s = strings.TrimSpace(s)
	s = strings.TrimSpace(leadingJSONLabel.ReplaceAllString(s, ""))

	depth := 0
	start := -1
	inString := false
	escape := false
	lastTopLevelComma := -1
	for i := 0; i < len(s); i++ {
		ch := s[i]
		if inString {
			switch {
			case escape:
				escape = false
			case ch == '\\':
				escape = true
			case ch == '"':
				inString = false
			}
			continue
		}
		switch ch {
		case '"':
			inString = true
		case '{':
			if depth == 0 {
				start = i
			}
			depth++
		case '}':
			depth--
			if depth == 0 && start >= 0 {
				return s[start : i+1]
			}
		case ',':
			if depth == 1 {
				lastTopLevelComma = i
			}
		}
	}

	if start >= 0 {
		end := len(s) - 1
		if lastTopLevelComma > start {
			end = lastTopLevelComma
		}
		trimmed := s[start:minInt(end+1, len(s))]
		trimmed = trailingComma.ReplaceAllString(trimmed, "")
		return trimmed + "}"
	}
	return s
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}
