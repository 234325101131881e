package heuristic

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/voxpense/voxpense/internal/model"
)

const (
	hintWindowRadius      = 60
	shareHintAfterPenalty = 200
)

var (
	numberRegex          = regexp.MustCompile(`\d+(?:[.,]\d+)?`)
	combinedDecimalRegex = regexp.MustCompile(`(\d+)\s+(\d{2})(\D|$)`)
	spokenPointRegex     = regexp.MustCompile(`(?i)(\d+)\s+point\s+(\d+)`)

	wordPattern                 = `(zero|one|two|three|four|five|six|seven|eight|nine|ten|eleven|twelve|thirteen|fourteen|fifteen|sixteen|seventeen|eighteen|nineteen|twenty|thirty|forty|fifty|sixty|seventy|eighty|ninety|hundred)`
	spelledDollarsAndCentsRegex = regexp.MustCompile(`(?i)` + wordPattern + `\s*dollars?\s+and\s+` + wordPattern + `\s*cents?`)
	spelledDollarsCentsRegex    = regexp.MustCompile(`(?i)` + wordPattern + `\s*dollars?\s+` + wordPattern + `\s*cents?`)
	spelledDollarsOnlyRegex     = regexp.MustCompile(`(?i)` + wordPattern + `\s*dollars?`)

	shareHintRegex   = regexp.MustCompile(`(?i)(my share|owe|i owe|i will owe)`)
	splitHintRegex   = regexp.MustCompile(`(?i)(splitwise|my share|split|overall)`)
	overallHintRegex = regexp.MustCompile(`(?i)(overall|total|charged|to my card|overall charged)`)
	merchantRegex    = regexp.MustCompile(`(?i)(?:at|from)\s+([A-Za-z0-9&' ]{2,40})`)
	fourDigitRegex   = regexp.MustCompile(`(\d{4})`)
	amountTailRegex  = regexp.MustCompile(`\s+(?:and\s+)?\$`)
	parenRegex       = regexp.MustCompile(`\([^)]*\)`)
	digitsOnlyRegex  = regexp.MustCompile(`^\d+$`)

	monthDayRegex = regexp.MustCompile(
		`(?i)(january|february|march|april|may|june|july|august|september|october|november|december)\s+(\d{1,2})(?:st|nd|rd|th)?(?:,?\s*(\d{4}))?`)
	dayOfMonthRegex = regexp.MustCompile(
		`(?i)(?:the\s+)?(\d{1,2})(?:st|nd|rd|th)?\s+(?:of\s+)?(january|february|march|april|may|june|july|august|september|october|november|december)(?:,?\s*(\d{4}))?`)
)

var wordToNumber = map[string]int{
	"zero": 0, "one": 1, "two": 2, "three": 3, "four": 4,
	"five": 5, "six": 6, "seven": 7, "eight": 8, "nine": 9,
	"ten": 10, "eleven": 11, "twelve": 12, "thirteen": 13, "fourteen": 14,
	"fifteen": 15, "sixteen": 16, "seventeen": 17, "eighteen": 18, "nineteen": 19,
	"twenty": 20, "thirty": 30, "forty": 40, "fifty": 50,
	"sixty": 60, "seventy": 70, "eighty": 80, "ninety": 90,
	"hundred": 100,
}

var months = map[string]time.Month{
	"january": time.January, "february": time.February, "march": time.March,
	"april": time.April, "may": time.May, "june": time.June,
	"july": time.July, "august": time.August, "september": time.September,
	"october": time.October, "november": time.November, "december": time.December,
}

var verbCues = []string{
	" got ", " get ", " went ", " buy ", " bought ", " charged ",
	" spent ", " paying ", " pay ", " grabbing ", " taking ", " owe ",
}

var fillerPhrases = []string{
	" i just ", " i got ", " couple of ", " charged to my ", " on my ", " for $",
}

var suspiciousMerchantPrefixes = map[string]struct{}{
	"that": {}, "this": {}, "it": {}, "then": {}, "so": {}, "and": {},
	"but": {}, "because": {}, "if": {}, "after": {}, "when": {},
	"while": {}, "my": {}, "our": {}, "their": {}, "his": {}, "her": {}, "i": {},
}

var debtCues = map[string]struct{}{
	"owe": {}, "owed": {}, "owing": {}, "due": {},
}

var merchantTrailingStopwords = []string{
	"and", "it", "for", "on", "using", "with", "to", "costed", "cost",
	"costs", "charged", "the", "was", "is",
}

// Extractor derives obvious transaction fields from an utterance with
// deterministic rules, assigning a per-field confidence to each hit.
type Extractor struct{}

func NewExtractor() *Extractor { return &Extractor{} }

// Extract runs every rule against the input and returns a partially
// populated draft. It never fails; fields it cannot derive stay unset with
// zero confidence.
func (e *Extractor) Extract(input string, ctx model.ParsingContext) Draft {
	normalized := normalizeNumbers(input)
	lower := strings.ToLower(normalized)

	confidences := make(map[model.FieldKey]float64)
	var tags []string

	date := parseDate(lower, ctx)
	if date != nil {
		confidences[model.FieldDate] = 0.85
	}

	// Number tokens inside date phrases must not be mistaken for amounts.
	var dateRanges []span
	for _, m := range monthDayRegex.FindAllStringSubmatchIndex(normalized, -1) {
		dateRanges = appendGroupSpan(dateRanges, m, 2)
		dateRanges = appendGroupSpan(dateRanges, m, 3)
	}
	for _, m := range dayOfMonthRegex.FindAllStringSubmatchIndex(normalized, -1) {
		dateRanges = appendGroupSpan(dateRanges, m, 1)
		dateRanges = appendGroupSpan(dateRanges, m, 3)
	}

	amounts := parseAmounts(normalized, dateRanges)
	if amounts.share != nil {
		confidences[model.FieldAmount] = amounts.shareConfidence
	}
	if amounts.overall != nil {
		confidences[model.FieldSplitOverall] = amounts.overallConfidence
	}

	txType, typeConfidence := inferType(lower)
	confidences[model.FieldType] = typeConfidence

	merchant, merchantConfidence, hasMerchant := inferMerchant(normalized, lower, ctx)
	if hasMerchant {
		confidences[model.FieldMerchant] = merchantConfidence
	}

	account, accountConfidence, hasAccount := inferAccount(lower, ctx)
	if hasAccount {
		confidences[model.FieldAccount] = accountConfidence
	}

	if strings.Contains(lower, "splitwise") || strings.Contains(lower, " split") || strings.Contains(lower, " my share") {
		tags = append(tags, "splitwise")
	}
	if strings.Contains(lower, "auto-paid") || strings.Contains(lower, "auto paid") ||
		strings.Contains(lower, "auto-pay") || strings.Contains(lower, "auto pay") ||
		strings.Contains(lower, "auto charged") {
		tags = append(tags, "auto-paid")
	}
	if strings.Contains(lower, "subscription") || strings.Contains(lower, "recurring") {
		tags = append(tags, "subscription")
	}
	if len(tags) > 0 {
		confidences[model.FieldTags] = 0.6
	}

	return Draft{
		AmountUSD:              amounts.share,
		Merchant:               merchant,
		Type:                   txType,
		Tags:                   dedupe(tags),
		Date:                   date,
		Account:                account,
		SplitOverallChargedUSD: amounts.overall,
		Confidences:            confidences,
	}
}

type span struct{ start, end int }

func appendGroupSpan(spans []span, match []int, group int) []span {
	start, end := match[2*group], match[2*group+1]
	if start < 0 {
		return spans
	}
	return append(spans, span{start, end})
}

func (s span) overlaps(o span) bool {
	return s.start < o.end && o.start < s.end
}

func normalizeNumbers(text string) string {
	updated := normalizeSpelledOutNumbers(text)

	// "17 50" becomes "17.50" when the second token is exactly two digits.
	updated = combinedDecimalRegex.ReplaceAllString(updated, "$1.$2$3")

	// Spoken "seventeen point five" style decimals.
	updated = spokenPointRegex.ReplaceAllString(updated, "$1.$2")
	return updated
}

func normalizeSpelledOutNumbers(text string) string {
	result := strings.ToLower(text)

	replaceDollarsCents := func(re *regexp.Regexp, s string) string {
		return re.ReplaceAllStringFunc(s, func(m string) string {
			groups := re.FindStringSubmatch(m)
			dollars := wordOrLiteral(groups[1])
			cents := wordOrLiteral(groups[2])
			if len(cents) < 2 {
				cents = "0" + cents
			}
			return dollars + "." + cents
		})
	}

	result = replaceDollarsCents(spelledDollarsAndCentsRegex, result)
	result = replaceDollarsCents(spelledDollarsCentsRegex, result)

	result = spelledDollarsOnlyRegex.ReplaceAllStringFunc(result, func(m string) string {
		groups := spelledDollarsOnlyRegex.FindStringSubmatch(m)
		return wordOrLiteral(groups[1])
	})
	return result
}

func wordOrLiteral(word string) string {
	if n, ok := wordToNumber[strings.TrimSpace(strings.ToLower(word))]; ok {
		return strconv.Itoa(n)
	}
	return word
}

func parseDate(lower string, ctx model.ParsingContext) *time.Time {
	ref := ctx.ReferenceDate()

	if m := monthDayRegex.FindStringSubmatch(lower); m != nil {
		day, err := strconv.Atoi(m[2])
		if err != nil {
			return nil
		}
		return resolveDate(m[1], day, m[3], ref)
	}
	if m := dayOfMonthRegex.FindStringSubmatch(lower); m != nil {
		day, err := strconv.Atoi(m[1])
		if err != nil {
			return nil
		}
		return resolveDate(m[2], day, m[3], ref)
	}
	return nil
}

func resolveDate(monthName string, day int, yearText string, ref time.Time) *time.Time {
	month, ok := months[monthName]
	if !ok {
		return nil
	}
	year := ref.Year()
	explicitYear := false
	if yearText != "" {
		parsed, err := strconv.Atoi(yearText)
		if err == nil {
			year = parsed
			explicitYear = true
		}
	}
	candidate := time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
	refMidnight := time.Date(ref.Year(), ref.Month(), ref.Day(), 0, 0, 0, 0, time.UTC)
	// A date far in the future without an explicit year almost certainly
	// referred to the previous year.
	if !explicitYear && candidate.Sub(refMidnight) > 90*24*time.Hour {
		candidate = candidate.AddDate(-1, 0, 0)
	}
	return &candidate
}

type amountCandidate struct {
	value decimal.Decimal
	start int
	end   int
}

type amountParse struct {
	share             *decimal.Decimal
	overall           *decimal.Decimal
	shareConfidence   float64
	overallConfidence float64
}

func parseAmounts(text string, excludeRanges []span) amountParse {
	var candidates []amountCandidate
	for _, m := range numberRegex.FindAllStringIndex(text, -1) {
		tokenSpan := span{m[0], m[1]}
		excluded := false
		for _, r := range excludeRanges {
			if r.overlaps(tokenSpan) {
				excluded = true
				break
			}
		}
		if excluded {
			continue
		}
		value, err := decimal.NewFromString(strings.ReplaceAll(text[m[0]:m[1]], ",", ""))
		if err != nil {
			continue
		}
		candidates = append(candidates, amountCandidate{value, m[0], m[1]})
	}
	if len(candidates) == 0 {
		return amountParse{}
	}

	shareIdx := 0
	bestScore := -1
	for i, candidate := range candidates {
		windowStart := maxInt(0, candidate.start-hintWindowRadius)
		windowEnd := minInt(len(text), candidate.end+hintWindowRadius)
		window := text[windowStart:windowEnd]
		for _, hint := range shareHintRegex.FindAllStringIndex(window, -1) {
			hintStart := windowStart + hint[0]
			distance := absInt(hintStart - candidate.start)
			score := distance
			if hintStart >= candidate.end {
				score += shareHintAfterPenalty
			}
			if bestScore < 0 || score < bestScore {
				bestScore = score
				shareIdx = i
			}
		}
	}
	shareCandidate := candidates[shareIdx]

	var overallCandidate *amountCandidate
	if splitHintRegex.MatchString(strings.ToLower(text)) {
		for i, candidate := range candidates {
			if i == shareIdx {
				continue
			}
			if overallHintRegex.MatchString(windowAround(text, candidate)) {
				c := candidate
				overallCandidate = &c
				break
			}
		}
		if overallCandidate == nil {
			largest := 0
			for i, candidate := range candidates {
				if candidate.value.GreaterThan(candidates[largest].value) {
					largest = i
				}
			}
			c := candidates[largest]
			overallCandidate = &c
		}
	}

	share := shareCandidate.value
	shareConfidence := 0.85
	if shareIdx != 0 {
		shareConfidence = 0.9
	}

	var overall *decimal.Decimal
	overallConfidence := 0.0
	if overallCandidate != nil {
		v := overallCandidate.value
		overall = &v
		overallConfidence = 0.8
	}

	// Split amounts: the smaller value is the share, the larger the overall.
	if overall != nil && share.GreaterThan(*overall) {
		share, *overall = *overall, share
	}
	// A single distinct amount is not a genuine split.
	if overall != nil && share.Equal(*overall) {
		overall = nil
		overallConfidence = 0
	}

	return amountParse{
		share:             &share,
		overall:           overall,
		shareConfidence:   shareConfidence,
		overallConfidence: overallConfidence,
	}
}

func windowAround(text string, candidate amountCandidate) string {
	start := maxInt(0, candidate.start-hintWindowRadius)
	end := minInt(len(text), candidate.end+hintWindowRadius)
	return text[start:end]
}

func inferType(lower string) (model.TransactionType, float64) {
	switch {
	case strings.Contains(lower, "transfer") || strings.Contains(lower, "moved"):
		return model.TypeTransfer, 0.85
	case strings.Contains(lower, "paycheck") || strings.Contains(lower, "deposit") ||
		strings.Contains(lower, "income") || strings.Contains(lower, "refund"):
		return model.TypeIncome, 0.75
	default:
		return model.TypeExpense, 0.6
	}
}

func inferMerchant(original, lower string, ctx model.ParsingContext) (string, float64, bool) {
	for _, merchant := range ctx.RecentMerchants {
		if strings.Contains(lower, strings.ToLower(merchant)) {
			return merchant, 0.9, true
		}
	}

	m := merchantRegex.FindStringSubmatch(original)
	if m == nil {
		return "", 0, false
	}
	merchant := strings.TrimSpace(m[1])
	if merchant == "" {
		return "", 0, false
	}

	withoutAccount := stripAccountMentions(merchant)
	withoutTrailing := stripTrailingStopwords(withoutAccount)
	normalized := withoutTrailing
	if strings.TrimSpace(normalized) == "" {
		normalized = merchant
	}
	confidence := 0.65
	if looksLikeVerboseMerchant(normalized) {
		confidence = 0
	}
	if strings.TrimSpace(normalized) != "" {
		return normalized, confidence, true
	}
	return merchant, confidence, true
}

func stripAccountMentions(candidate string) string {
	lower := strings.ToLower(candidate)
	cues := []string{" card", " account", " visa", " mastercard", " debit", " checking", " savings"}
	patterns := []string{" on my ", " using my ", " with my "}
	cutIndex := len(candidate)
	for _, pattern := range patterns {
		idx := strings.Index(lower, pattern)
		if idx < 0 {
			continue
		}
		tail := lower[idx:]
		for _, cue := range cues {
			if strings.Contains(tail, cue) {
				cutIndex = minInt(cutIndex, idx)
				break
			}
		}
	}
	return strings.TrimRight(candidate[:cutIndex], " \t")
}

func stripTrailingStopwords(merchant string) string {
	result := strings.TrimSpace(merchant)
	lower := strings.ToLower(result)

	cutIndex := len(result)
	for _, stopword := range merchantTrailingStopwords {
		if idx := strings.Index(lower, " "+stopword); idx >= 0 {
			cutIndex = minInt(cutIndex, idx)
		}
	}
	if loc := amountTailRegex.FindStringIndex(lower); loc != nil {
		cutIndex = minInt(cutIndex, loc[0])
	}
	return strings.TrimSpace(result[:cutIndex])
}

// looksLikeVerboseMerchant flags candidates that are sentence fragments
// rather than business names: too long, verb-heavy, starting with a
// conjunction or pronoun, or lacking any capitalization.
func looksLikeVerboseMerchant(value string) bool {
	if len(value) <= 3 {
		return false
	}
	trimmed := strings.TrimSpace(value)
	if len(trimmed) > 30 {
		return true
	}
	lower := strings.ToLower(trimmed)
	tokens := strings.Fields(lower)

	verbHits := 0
	for _, cue := range verbCues {
		if strings.Contains(lower, cue) {
			verbHits++
		}
	}
	if verbHits >= 2 {
		return true
	}

	if len(tokens) > 0 {
		if _, ok := suspiciousMerchantPrefixes[tokens[0]]; ok {
			return true
		}
	}
	for _, token := range tokens {
		if _, ok := debtCues[token]; ok {
			return true
		}
	}
	for _, phrase := range fillerPhrases {
		if strings.Contains(lower, phrase) {
			return true
		}
	}

	hasLetter := false
	hasUpperOrDigit := false
	for _, r := range trimmed {
		if r >= 'a' && r <= 'z' {
			hasLetter = true
		}
		if (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			hasUpperOrDigit = true
		}
	}
	if hasLetter && !hasUpperOrDigit {
		return true
	}

	if verbHits >= 1 && len(trimmed) > 20 {
		return true
	}
	return false
}

func inferAccount(lower string, ctx model.ParsingContext) (string, float64, bool) {
	accounts := ctx.AccountOptions()
	if len(accounts) == 0 {
		return "", 0, false
	}

	// Last-four digits are the strongest signal an utterance names an account.
	for _, account := range accounts {
		if digits := fourDigitRegex.FindString(account); digits != "" && strings.Contains(lower, digits) {
			return account, 0.9, true
		}
	}

	// Keyword overlap handles spoken shorthand like "chase sapphire card"
	// against a configured "Chase Sapphire Preferred (1234)".
	for _, account := range accounts {
		keywords := accountKeywords(account)
		matchCount := 0
		for _, keyword := range keywords {
			if strings.Contains(lower, keyword) {
				matchCount++
			}
		}
		if matchCount >= 2 && len(keywords) > 0 {
			confidence := 0.5
			switch {
			case matchCount == len(keywords):
				confidence = 0.85
			case matchCount >= len(keywords)/2:
				confidence = 0.7
			}
			return account, confidence, true
		}
	}

	for _, account := range accounts {
		if strings.Contains(lower, strings.ToLower(account)) {
			return account, 0.7, true
		}
	}
	return "", 0, false
}

func accountKeywords(accountName string) []string {
	cleaned := strings.ToLower(parenRegex.ReplaceAllString(accountName, ""))
	var keywords []string
	for _, word := range strings.Fields(cleaned) {
		word = strings.TrimSpace(word)
		if len(word) < 3 || digitsOnlyRegex.MatchString(word) {
			continue
		}
		keywords = append(keywords, word)
	}
	return keywords
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}

func absInt(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
