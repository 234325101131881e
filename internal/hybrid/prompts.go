package hybrid

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/voxpense/voxpense/internal/heuristic"
	"github.com/voxpense/voxpense/internal/model"
)

// systemInstruction is the strict single-shot instruction: schema, rules, and
// the JSON-only contract.
const systemInstruction = `You convert informal spoken expense descriptions into STRICT JSON.
Return JSON only, no prose or markdown. Schema fields:
- amountUsd: number | null
- merchant: string (default "Unknown")
- description: string | null
- type: "Expense" | "Income" | "Transfer"
- expenseCategory: string | null
- incomeCategory: string | null
- tags: string[] (lowercase single words)
- userLocalDate: string (YYYY-MM-DD)
- account: string | null
- splitOverallChargedUsd: number | null
- note: string | null
- confidence: number (0..1)
Rules:
- Numbers are USD (no $ symbol, commas allowed).
- If type = Transfer, expenseCategory and incomeCategory must be null.
- If splitOverallChargedUsd present, amountUsd <= splitOverallChargedUsd.
- Tags array must be lowercase words; omit if none.
- Heuristic hints may be provided; treat them as suggestions and correct them if the utterance disagrees.
- Match amountUsd to the spoken spend/share; never invent implausibly large values.
- When the utterance mentions a card or account, map it to the closest allowed account option (case-insensitive, tolerate small spelling differences).
- For expenses, choose an expenseCategory from allowed options that best fits the merchant/description.
- For description: keep concise (2-6 words); focus on WHAT was purchased or the PURPOSE (e.g., "Groceries", "Dinner", "Running shoes"), not the action of going/buying; omit if it would just repeat the merchant name.`

const minimalSystemInstruction = "Return ONLY valid JSON."

const maxPromptChars = 1700

// ExamplePair is one few-shot demonstration: an utterance and its expected
// JSON output.
type ExamplePair struct {
	ID         string
	Input      string
	OutputJSON string
	Categories []ExampleCategory
}

// ExampleCategory labels what a few-shot example demonstrates.
type ExampleCategory string

// Example categories.
const (
	ExampleExpense      ExampleCategory = "expense"
	ExampleSplit        ExampleCategory = "split"
	ExampleSubscription ExampleCategory = "subscription"
	ExampleIncome       ExampleCategory = "income"
	ExampleTransfer     ExampleCategory = "transfer"
)

func (p ExamplePair) hasCategory(c ExampleCategory) bool {
	for _, have := range p.Categories {
		if have == c {
			return true
		}
	}
	return false
}

var sampleMappings = []ExamplePair{
	{
		ID:    "groceries-simple",
		Input: "I just went to Trader Joe's to get some groceries and I spent 30 dollars",
		OutputJSON: `{"amountUsd":30,"merchant":"Trader Joe's","description":"Groceries",` +
			`"type":"Expense","expenseCategory":"Groceries","incomeCategory":null,"tags":[],` +
			`"userLocalDate":"2025-10-07","account":null,"splitOverallChargedUsd":null,` +
			`"note":null,"confidence":0.85}`,
		Categories: []ExampleCategory{ExampleExpense},
	},
	{
		ID:    "splitwise-utilities",
		Input: "On September 11th the gas bill was charged to my Vanguard Cash Plus account for 22.24 and after splitting with Emily I will only owe 11.12",
		OutputJSON: `{"amountUsd":11.12,"merchant":"Gas Bill","description":null,` +
			`"type":"Expense","expenseCategory":"Utilities","incomeCategory":null,` +
			`"tags":["auto-paid","splitwise"],"userLocalDate":"2025-09-11",` +
			`"account":"Vanguard Cash Plus (Savings)","splitOverallChargedUsd":22.24,` +
			`"note":null,"confidence":0.92}`,
		Categories: []ExampleCategory{ExampleExpense, ExampleSplit},
	},
	{
		ID:    "subscription-expense",
		Input: "On September 10th my New York Times subscription payment was auto charged and it was 26.50 and it was charged to my Chase Sapphire Preferred Card",
		OutputJSON: `{"amountUsd":26.5,"merchant":"NY Times Subscription","description":null,` +
			`"type":"Expense","expenseCategory":"Personal","incomeCategory":null,` +
			`"tags":["auto-paid","subscription"],"userLocalDate":"2025-09-10",` +
			`"account":"Chase Sapphire Preferred","splitOverallChargedUsd":null,` +
			`"note":null,"confidence":0.9}`,
		Categories: []ExampleCategory{ExampleExpense, ExampleSubscription},
	},
	{
		ID:    "income-paycheck",
		Input: "On September 12th I got my paycheck deposit into my Vanguard Cash Plus account and it came out to 3030.09",
		OutputJSON: `{"amountUsd":3030.09,"merchant":"Paycheck + incentive award","description":null,` +
			`"type":"Income","expenseCategory":null,"incomeCategory":"Paycheck","tags":[],` +
			`"userLocalDate":"2025-09-12","account":"Vanguard Cash Plus (Savings)",` +
			`"splitOverallChargedUsd":null,"note":null,"confidence":0.88}`,
		Categories: []ExampleCategory{ExampleIncome},
	},
	{
		ID:    "transfer-savings",
		Input: "On September 9th I transferred 250 dollars from my checking account into Vanguard Cash Plus savings",
		OutputJSON: `{"amountUsd":250.0,"merchant":"Transfer","description":"Transfer from checking",` +
			`"type":"Transfer","expenseCategory":null,"incomeCategory":null,"tags":[],` +
			`"userLocalDate":"2025-09-09","account":"Checking Account",` +
			`"splitOverallChargedUsd":null,"note":null,"confidence":0.85}`,
		Categories: []ExampleCategory{ExampleTransfer},
	},
}

func exampleByCategory(c ExampleCategory) (ExamplePair, bool) {
	for _, pair := range sampleMappings {
		if pair.hasCategory(c) {
			return pair, true
		}
	}
	return ExamplePair{}, false
}

// SchemaKind selects a schema template variant for prompt construction.
type SchemaKind int

// Schema template variants.
const (
	SchemaBasic SchemaKind = iota
	SchemaSplit
	SchemaTransfer
)

const schemaCommon = `Fields:
- amountUsd: number | null
- merchant: string (default "Unknown")
- description: string | null
- type: "Expense" | "Income" | "Transfer"
- expenseCategory: string | null
- incomeCategory: string | null
- tags: string[]
- userLocalDate: string (YYYY-MM-DD)
- account: string | null
- splitOverallChargedUsd: number | null
- note: string | null
- confidence: number (0..1)
Rules:
- USD only numbers (no currency symbols)
- Keep tags concise lowercase single words`

// SchemaTemplate returns a concise, model-friendly schema description for the
// given transaction shape.
func SchemaTemplate(kind SchemaKind) string {
	switch kind {
	case SchemaSplit:
		return schemaCommon + "\nSplit constraint: if splitOverallChargedUsd present, amountUsd <= splitOverallChargedUsd."
	case SchemaTransfer:
		return schemaCommon + "\nIf type = Transfer: amountUsd is the moved amount; expenseCategory = null; incomeCategory = null."
	default:
		return schemaCommon + "\nIf type = Expense or Income: amountUsd is the entry amount."
	}
}

// PromptBuilder composes single-shot prompts: system instruction, targeted
// few-shot examples, context vocabularies, and heuristic hints. Prompts that
// exceed the character budget are progressively degraded until they fit.
type PromptBuilder struct {
	logger *slog.Logger
}

func NewPromptBuilder(logger *slog.Logger) *PromptBuilder {
	if logger == nil {
		logger = slog.Default()
	}
	return &PromptBuilder{logger: logger}
}

// Build renders the full prompt for the utterance, degrading in stages when
// over budget: fewer examples, then no context, then no examples, then no
// hints, then a minimal instruction with truncation as the last resort.
func (b *PromptBuilder) Build(input string, ctx model.ParsingContext, draft *heuristic.Draft) string {
	shots := selectExamples(input, draft)
	contextBlock := buildContextBlock(ctx)
	hintsBlock := buildHintsBlock(draft)

	if p := composePrompt(systemInstruction, shots, contextBlock, hintsBlock, input); len(p) <= maxPromptChars {
		return p
	}

	reduced := shots
	if len(reduced) > 2 {
		reduced = reduced[:2]
	}
	if p := composePrompt(systemInstruction, reduced, contextBlock, hintsBlock, input); len(p) <= maxPromptChars {
		b.logger.Info("prompt trimmed examples to fit budget", "length", len(p))
		return p
	}

	if len(reduced) > 1 {
		reduced = reduced[:1]
	}
	if p := composePrompt(systemInstruction, reduced, contextBlock, hintsBlock, input); len(p) <= maxPromptChars {
		b.logger.Info("prompt reduced to single example", "length", len(p))
		return p
	}

	if p := composePrompt(systemInstruction, reduced, "", hintsBlock, input); len(p) <= maxPromptChars {
		b.logger.Info("prompt dropped context block", "length", len(p))
		return p
	}

	if p := composePrompt(systemInstruction, nil, "", hintsBlock, input); len(p) <= maxPromptChars {
		b.logger.Warn("prompt using minimal form", "length", len(p))
		return p
	}

	if p := composePrompt(systemInstruction, nil, "", "", input); len(p) <= maxPromptChars {
		b.logger.Warn("prompt dropped heuristic hints", "length", len(p))
		return p
	}

	ultra := composePrompt(minimalSystemInstruction, nil, "", "", input)
	if len(ultra) > maxPromptChars {
		b.logger.Warn("ultra minimal prompt still over budget, truncating", "length", len(ultra))
		return ultra[:maxPromptChars]
	}
	b.logger.Warn("prompt using ultra minimal form", "length", len(ultra))
	return ultra
}

func composePrompt(system string, shots []ExamplePair, contextBlock, hintsBlock, input string) string {
	var sb strings.Builder
	sb.WriteString(system)
	sb.WriteString("\n")
	if contextBlock != "" {
		sb.WriteString("\nContext:\n")
		sb.WriteString(contextBlock)
		sb.WriteString("\n")
	}
	if hintsBlock != "" {
		sb.WriteString("\nHeuristic hints (confidence 0..1; adjust if incorrect):\n")
		sb.WriteString(hintsBlock)
		sb.WriteString("\n")
	}
	if len(shots) > 0 {
		sb.WriteString("\nExamples:\n")
		for i, example := range shots {
			if i > 0 {
				sb.WriteString("\n")
			}
			sb.WriteString("- Input: ")
			sb.WriteString(example.Input)
			sb.WriteString("\n  Output: ")
			sb.WriteString(example.OutputJSON)
		}
		sb.WriteString("\n")
	}
	sb.WriteString("\nInput: ")
	sb.WriteString(input)
	return sb.String()
}

func buildContextBlock(ctx model.ParsingContext) string {
	const listCap = 8
	capped := func(values []string) string {
		if len(values) > listCap {
			values = values[:listCap]
		}
		return strings.Join(values, ", ")
	}

	var summary []string
	if len(ctx.RecentMerchants) > 0 {
		summary = append(summary, "recentMerchants="+capped(ctx.RecentMerchants))
	}
	if len(ctx.KnownAccounts) > 0 {
		summary = append(summary, "knownAccounts="+capped(ctx.KnownAccounts))
	}
	if len(ctx.RecentCategories) > 0 {
		summary = append(summary, "recentCategories="+capped(ctx.RecentCategories))
	}

	var allowed []string
	if len(ctx.AllowedExpenseCategories) > 0 {
		allowed = append(allowed, "expenseCategories="+capped(ctx.AllowedExpenseCategories))
	}
	if len(ctx.AllowedIncomeCategories) > 0 {
		allowed = append(allowed, "incomeCategories="+capped(ctx.AllowedIncomeCategories))
	}
	if len(ctx.AllowedTags) > 0 {
		allowed = append(allowed, "tags="+capped(ctx.AllowedTags))
	}
	if accounts := ctx.AccountOptions(); len(accounts) > 0 {
		allowed = append(allowed, "accounts="+capped(accounts))
	}

	var lines []string
	if len(summary) > 0 {
		lines = append(lines, strings.Join(summary, "; "))
	}
	if len(allowed) > 0 {
		lines = append(lines, "allowedOptions: "+strings.Join(allowed, "; "))
	}
	return strings.Join(lines, "\n")
}

// buildHintsBlock renders the heuristic draft as a JSON-ish hint object. Only
// populated fields appear; confidence is attached when positive.
func buildHintsBlock(draft *heuristic.Draft) string {
	if draft == nil {
		return ""
	}

	var hints []string
	appendHint := func(name, rawValue string, confidence float64) {
		if rawValue == "" {
			return
		}
		var sb strings.Builder
		fmt.Fprintf(&sb, "%q:{\"value\":%s", name, rawValue)
		if confidence > 0 {
			fmt.Fprintf(&sb, ",\"confidence\":%.2f", confidence)
		}
		sb.WriteString("}")
		hints = append(hints, sb.String())
	}

	quote := func(value string) string {
		if value == "" {
			return ""
		}
		return fmt.Sprintf("%q", value)
	}

	if draft.AmountUSD != nil {
		appendHint("amountUsd", draft.AmountUSD.String(), draft.Confidence(model.FieldAmount))
	}
	appendHint("merchant", quote(draft.Merchant), draft.Confidence(model.FieldMerchant))
	appendHint("type", quote(string(draft.Type)), draft.Confidence(model.FieldType))
	appendHint("expenseCategory", quote(draft.ExpenseCategory), draft.Confidence(model.FieldExpenseCategory))
	appendHint("incomeCategory", quote(draft.IncomeCategory), draft.Confidence(model.FieldIncomeCategory))
	if len(draft.Tags) > 0 {
		quoted := make([]string, len(draft.Tags))
		for i, tag := range draft.Tags {
			quoted[i] = fmt.Sprintf("%q", tag)
		}
		appendHint("tags", "["+strings.Join(quoted, ",")+"]", draft.Confidence(model.FieldTags))
	}
	if draft.Date != nil {
		appendHint("userLocalDate", quote(draft.Date.Format("2006-01-02")), draft.Confidence(model.FieldDate))
	}
	appendHint("account", quote(draft.Account), draft.Confidence(model.FieldAccount))
	if draft.SplitOverallChargedUSD != nil {
		appendHint("splitOverallChargedUsd", draft.SplitOverallChargedUSD.String(), draft.Confidence(model.FieldSplitOverall))
	}
	appendHint("note", quote(draft.Note), draft.Confidence(model.FieldNote))

	if len(hints) == 0 {
		return ""
	}
	return "{" + strings.Join(hints, ",") + "}"
}

// selectExamples picks up to three few-shot examples matched to the
// utterance: a default expense, a split or subscription example, and income
// or transfer demonstrations when the utterance suggests them.
func selectExamples(input string, draft *heuristic.Draft) []ExamplePair {
	lower := strings.ToLower(input)
	var picks []ExamplePair
	seen := map[string]bool{}
	add := func(pair ExamplePair, ok bool) {
		if !ok || seen[pair.ID] {
			return
		}
		seen[pair.ID] = true
		picks = append(picks, pair)
	}

	add(exampleByCategory(ExampleExpense))

	isIncome := strings.Contains(lower, "paycheck") || strings.Contains(lower, "deposit") || strings.Contains(lower, "income")
	isTransfer := strings.Contains(lower, "transfer") || strings.Contains(lower, "moved")
	isSplit := strings.Contains(lower, "splitwise") || strings.Contains(lower, "my share") || strings.Contains(lower, "overall charged")
	if draft != nil {
		isIncome = isIncome || draft.Type == model.TypeIncome
		isTransfer = isTransfer || draft.Type == model.TypeTransfer
		if draft.SplitOverallChargedUSD != nil {
			isSplit = true
		}
		for _, tag := range draft.Tags {
			if strings.Contains(strings.ToLower(tag), "split") {
				isSplit = true
			}
		}
	}

	if isSplit {
		add(exampleByCategory(ExampleSplit))
	} else {
		add(exampleByCategory(ExampleSubscription))
	}
	if isIncome {
		add(exampleByCategory(ExampleIncome))
	}
	if isTransfer {
		add(exampleByCategory(ExampleTransfer))
	}

	if len(picks) > 3 {
		picks = picks[:3]
	}
	return picks
}
