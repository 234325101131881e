package hybrid

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/voxpense/voxpense/internal/heuristic"
	"github.com/voxpense/voxpense/internal/model"
)

const (
	maxFocusedPromptLength = 1000
	maxPromptOptions       = 6
	focusedSystem          = "Refine only the requested transaction fields and keep JSON minimal."

	// Heuristic values below this confidence are shown as "missing" so an
	// unreliable guess cannot anchor the model.
	heuristicInclusionThreshold = 0.3
)

var splitContextRegex = regexp.MustCompile(`(?i)(splitwise|split|splitting|my share|owe|i owe|owed)`)

// FocusedPromptBuilder emits compact prompts that target only the given
// low-confidence fields: a template block per field when one or two need
// help, a single JSON request for larger sets. Prompts are clamped to a
// fixed character budget.
type FocusedPromptBuilder struct{}

func NewFocusedPromptBuilder() *FocusedPromptBuilder { return &FocusedPromptBuilder{} }

// Build renders the prompt for refining targetFields against the current
// draft.
func (b *FocusedPromptBuilder) Build(
	input string,
	draft heuristic.Draft,
	targetFields []model.FieldKey,
	ctx model.ParsingContext,
) string {
	if len(targetFields) == 0 {
		return focusedSystem + "\nInput: " + input
	}

	ordered := make([]model.FieldKey, len(targetFields))
	copy(ordered, targetFields)
	sort.SliceStable(ordered, func(i, j int) bool {
		return promptFieldRank(ordered[i]) < promptFieldRank(ordered[j])
	})

	var prompt string
	if len(ordered) <= 2 {
		prompt = b.buildTemplatePrompt(ordered, input, draft, ctx)
	} else {
		prompt = b.buildMultiFieldPrompt(ordered, input, draft, ctx)
	}
	if len(prompt) > maxFocusedPromptLength {
		prompt = prompt[:maxFocusedPromptLength]
	}
	return prompt
}

func promptFieldRank(field model.FieldKey) int {
	if rank, ok := fieldOrderIndex[field]; ok {
		return rank
	}
	return len(fieldOrder)
}

func (b *FocusedPromptBuilder) buildTemplatePrompt(
	fields []model.FieldKey,
	input string,
	draft heuristic.Draft,
	ctx model.ParsingContext,
) string {
	var sb strings.Builder
	sb.WriteString(focusedSystem)
	sb.WriteString("\n\nInput: ")
	sb.WriteString(input)
	sb.WriteString("\n\n")
	for _, field := range fields {
		fmt.Fprintf(&sb, "Field: %s (key %q)\n", fieldLabel(field), field.JSONKey())
		fmt.Fprintf(&sb, "Heuristic: %s\n", formatHeuristic(field, draft))
		if options := formatFieldOptions(field, draft, ctx, input); options != "" {
			fmt.Fprintf(&sb, "Allowed values: %s\n", options)
		}
		fmt.Fprintf(&sb, "Instruction: %s\n\n", instructionFor(field, draft))
	}
	appendGuidelines(&sb, fields)
	return sb.String()
}

func (b *FocusedPromptBuilder) buildMultiFieldPrompt(
	fields []model.FieldKey,
	input string,
	draft heuristic.Draft,
	ctx model.ParsingContext,
) string {
	keys := make([]string, len(fields))
	for i, field := range fields {
		keys[i] = fmt.Sprintf("%q", field.JSONKey())
	}

	var sb strings.Builder
	sb.WriteString(focusedSystem)
	sb.WriteString("\n\nInput: ")
	sb.WriteString(input)
	sb.WriteString("\n\n")
	fmt.Fprintf(&sb, "Return a JSON object with only these keys: %s\n", strings.Join(keys, ", "))
	sb.WriteString("Heuristic summary:\n")
	for _, field := range fields {
		fmt.Fprintf(&sb, "- %s: %s\n", field.JSONKey(), formatHeuristic(field, draft))
	}
	if options := buildSharedOptions(fields, draft, ctx, input); options != "" {
		fmt.Fprintf(&sb, "Options: %s\n", options)
	}
	appendGuidelines(&sb, fields)
	return sb.String()
}

func formatHeuristic(field model.FieldKey, draft heuristic.Draft) string {
	confidence := draft.Confidence(field)

	value := "missing"
	if confidence >= heuristicInclusionThreshold {
		switch field {
		case model.FieldMerchant:
			value = quoteOrMissing(draft.Merchant)
		case model.FieldDescription:
			value = quoteOrMissing(draft.Description)
		case model.FieldExpenseCategory:
			value = quoteOrMissing(draft.ExpenseCategory)
		case model.FieldIncomeCategory:
			value = quoteOrMissing(draft.IncomeCategory)
		case model.FieldAccount:
			value = quoteOrMissing(draft.Account)
		case model.FieldNote:
			value = quoteOrMissing(draft.Note)
		case model.FieldTags:
			if len(draft.Tags) > 0 {
				quoted := make([]string, len(draft.Tags))
				for i, tag := range draft.Tags {
					quoted[i] = fmt.Sprintf("%q", tag)
				}
				value = "[" + strings.Join(quoted, ", ") + "]"
			}
		}
	}
	return fmt.Sprintf("%s (confidence %.2f)", value, confidence)
}

func quoteOrMissing(value string) string {
	if strings.TrimSpace(value) == "" {
		return "missing"
	}
	return fmt.Sprintf("%q", value)
}

func fieldOptionSource(field model.FieldKey, ctx model.ParsingContext) []string {
	switch field {
	case model.FieldMerchant:
		return ctx.RecentMerchants
	case model.FieldExpenseCategory:
		if len(ctx.AllowedExpenseCategories) > 0 {
			return ctx.AllowedExpenseCategories
		}
		return ctx.RecentCategories
	case model.FieldIncomeCategory:
		return ctx.AllowedIncomeCategories
	case model.FieldAccount:
		return ctx.AccountOptions()
	case model.FieldTags:
		return ctx.AllowedTags
	default:
		return nil
	}
}

func formatFieldOptions(field model.FieldKey, draft heuristic.Draft, ctx model.ParsingContext, input string) string {
	options := fieldOptionSource(field, ctx)
	if field == model.FieldTags {
		options = filterTagOptions(options, draft, input)
	}
	// Account lists stay complete; fuzzy matching needs every candidate.
	if field != model.FieldAccount && len(options) > maxPromptOptions {
		options = options[:maxPromptOptions]
	}
	return strings.Join(options, ", ")
}

func buildSharedOptions(fields []model.FieldKey, draft heuristic.Draft, ctx model.ParsingContext, input string) string {
	var parts []string
	for _, field := range fields {
		options := formatFieldOptions(field, draft, ctx, input)
		if options == "" {
			continue
		}
		parts = append(parts, field.JSONKey()+"="+options)
	}
	return strings.Join(parts, "; ")
}

// filterTagOptions hides the Splitwise option unless the utterance or draft
// already signals a split, preventing spurious tag suggestions.
func filterTagOptions(options []string, draft heuristic.Draft, input string) []string {
	if len(options) == 0 {
		return options
	}
	allowSplitwise := splitContextRegex.MatchString(strings.ToLower(input))
	if !allowSplitwise {
		for _, tag := range draft.Tags {
			if strings.EqualFold(tag, "splitwise") {
				allowSplitwise = true
				break
			}
		}
	}
	if allowSplitwise {
		return options
	}
	filtered := make([]string, 0, len(options))
	for _, option := range options {
		if strings.EqualFold(option, "splitwise") {
			continue
		}
		filtered = append(filtered, option)
	}
	return filtered
}

func instructionFor(field model.FieldKey, draft heuristic.Draft) string {
	switch field {
	case model.FieldMerchant:
		return `Return the merchant name exactly as a user would expect to see it (e.g., "Starbucks", "Target"). If the input mentions payment methods (e.g., payment apps like Splitwise, Venmo, PayPal, Zelle, etc; or payment cards), identify the actual merchant or service being paid for, NOT the payment method. Return null if the merchant is genuinely unknown.`
	case model.FieldDescription:
		instruction := `Provide a concise noun phrase describing what was actually purchased or the service received (e.g., "Coffee and pastry", "Household items", "Utility bill"). Preserve key numbers or modifiers from the input; do not mention payment methods or account names. Avoid verbs. Do not repeat the merchant name in the description.`
		if draft.Merchant != "" && draft.Confidence(model.FieldMerchant) >= heuristicInclusionThreshold {
			instruction += fmt.Sprintf(" The merchant is '%s' - do not repeat this name in the description.", draft.Merchant)
		}
		return instruction
	case model.FieldExpenseCategory:
		return `Choose the best matching expense category based on what was purchased or the service received:
- 'Eating Out': restaurant meals, takeout, coffee shops, fast food, snacks, drinks
- 'Transportation': vehicle gas/gasoline/fuel for cars, parking, tolls, transit fares, rideshares, vehicle expenses
- 'Groceries': supermarket shopping, food purchases at grocery stores
- 'Home': household supplies, cleaning products, organization items, furniture, home improvement, utilities (gas/electric/water/internet bills - these are home utility bills, not vehicle fuel)
- 'Personal': subscriptions (streaming services, news, software, online services), personal care, entertainment, memberships
- 'Health/medical': doctor visits, therapy appointments, prescriptions, medical equipment, vision care, dental
Return null if none of these categories apply to the transaction.`
	case model.FieldIncomeCategory:
		return "Choose the best matching income category."
	case model.FieldAccount:
		return "Return the account or card name from the allowed list. Match phonetic variations, case differences, and minor spelling differences common in voice-to-text (e.g., 'built' → 'Bilt', 'siti' → 'Citi'). Do NOT infer or guess account names from generic references like 'her card' or 'my card'. Return null if no account name is mentioned."
	case model.FieldTags:
		return "Return tags from the allowed list that match the transaction. Only include tags if explicitly mentioned or clearly implied in the input. Use fuzzy/phonetic matching (e.g., 'autopaid' → 'Auto-Paid'). Return empty array if no tags clearly apply."
	case model.FieldNote:
		return "Return a brief note only when the input explicitly provides one, otherwise null."
	default:
		return ""
	}
}

func fieldLabel(field model.FieldKey) string {
	switch field {
	case model.FieldMerchant:
		return "Merchant"
	case model.FieldDescription:
		return "Description"
	case model.FieldExpenseCategory:
		return "Expense category"
	case model.FieldIncomeCategory:
		return "Income category"
	case model.FieldAccount:
		return "Account"
	case model.FieldTags:
		return "Tags"
	case model.FieldNote:
		return "Note"
	default:
		return string(field)
	}
}

func appendGuidelines(sb *strings.Builder, fields []model.FieldKey) {
	sb.WriteString("Respond with compact JSON containing only the listed keys.\n")
	for _, field := range fields {
		if rule := guidelineFor(field); rule != "" {
			fmt.Fprintf(sb, "Guideline for %s: %s\n", field.JSONKey(), rule)
		}
	}
	sb.WriteString("If a value cannot be improved, return null or omit the field rather than guessing.")
}

func guidelineFor(field model.FieldKey) string {
	switch field {
	case model.FieldMerchant:
		return "Return only the merchant or vendor name—no verbs, adjectives, or trailing phrases. Avoid payment methods."
	case model.FieldDescription:
		return "Provide a concise noun phrase that preserves meaningful numbers or modifiers from the input and avoids payment method names. NEVER include the merchant name in the description."
	case model.FieldExpenseCategory:
		return "Choose exactly one expense category: 'Eating Out' for food/drinks, 'Home' for household items/utility bills (gas/electric/water/internet bills), 'Personal' for subscriptions/services, 'Transportation' for vehicle fuel/parking/transit, 'Groceries' for supermarket food, 'Health/medical' for medical services. Return null if none apply."
	case model.FieldIncomeCategory:
		return "Choose exactly one income category from the allowed list; return null if none apply."
	case model.FieldAccount:
		return "Return the account/card name from the allowed list, matching phonetic variations and spelling differences from voice-to-text. Return null if none apply."
	case model.FieldTags:
		return "Return an array of distinct tags chosen only from the allowed list. If no allowed tag clearly applies, return an empty array."
	default:
		return ""
	}
}
