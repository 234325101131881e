package hybrid

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/voxpense/voxpense/internal/heuristic"
	"github.com/voxpense/voxpense/internal/model"
)

// ProcessingMethod identifies which path produced the final result.
type ProcessingMethod string

// Processing methods.
const (
	MethodAI        ProcessingMethod = "AI"
	MethodHeuristic ProcessingMethod = "HEURISTIC"
)

// ProcessingStatistics carries timing for one parse.
type ProcessingStatistics struct {
	Duration time.Duration
}

// HybridParsingResult is the façade's complete answer: the merged
// transaction plus how it was produced.
type HybridParsingResult struct {
	Result     model.ParsedResult
	Method     ProcessingMethod
	Validated  bool
	Confidence float64
	Stats      ProcessingStatistics
	RawJSON    string
	Errors     []string
	Staged     *StagedParsingResult
}

// Option configures a Parser.
type Option func(*Parser)

// WithLegacyMode switches the parser to the single-shot full-prompt path
// instead of staged per-field refinement.
func WithLegacyMode() Option {
	return func(p *Parser) { p.legacy = true }
}

// WithThresholds overrides the confidence threshold policy.
func WithThresholds(t model.FieldConfidenceThresholds) Option {
	return func(p *Parser) { p.thresholds = t }
}

// Parser is the public entry point for hybrid parsing. Staged mode is the
// default; legacy mode sends one full prompt and merges the whole response.
type Parser struct {
	extractor    *heuristic.Extractor
	gateway      Gateway
	orchestrator *Orchestrator
	prompts      *PromptBuilder
	thresholds   model.FieldConfidenceThresholds
	breaker      *CircuitBreaker
	monitor      *ProcessingMonitor
	logger       *slog.Logger
	legacy       bool
}

func NewParser(gateway Gateway, logger *slog.Logger, opts ...Option) *Parser {
	if logger == nil {
		logger = slog.Default()
	}
	extractor := heuristic.NewExtractor()
	p := &Parser{
		extractor:    extractor,
		gateway:      gateway,
		orchestrator: NewOrchestrator(extractor, gateway, logger),
		prompts:      NewPromptBuilder(logger),
		thresholds:   model.DefaultThresholds(),
		breaker:      NewCircuitBreaker(),
		monitor:      NewProcessingMonitor(),
		logger:       logger,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Monitor exposes the parse outcome aggregates.
func (p *Parser) Monitor() *ProcessingMonitor { return p.monitor }

// Breaker exposes the hybrid failure circuit breaker.
func (p *Parser) Breaker() *CircuitBreaker { return p.breaker }

// Parse runs the configured pipeline over the utterance.
func (p *Parser) Parse(ctx context.Context, input string, pctx model.ParsingContext) HybridParsingResult {
	if p.legacy {
		return p.parseLegacy(ctx, input, pctx)
	}
	return p.parseStaged(ctx, input, pctx, nil, nil)
}

// ParseStaged runs the staged pipeline with an optional precomputed stage-1
// snapshot and per-field progress listener.
func (p *Parser) ParseStaged(
	ctx context.Context,
	input string,
	pctx model.ParsingContext,
	snapshot *Stage1Snapshot,
	listener FieldRefinementListener,
) HybridParsingResult {
	return p.parseStaged(ctx, input, pctx, snapshot, listener)
}

// PrepareStage1 exposes the heuristic pass so callers can render a draft
// before refinement completes.
func (p *Parser) PrepareStage1(input string, pctx model.ParsingContext) Stage1Snapshot {
	return p.orchestrator.PrepareStage1(input, pctx)
}

func (p *Parser) parseStaged(
	ctx context.Context,
	input string,
	pctx model.ParsingContext,
	snapshot *Stage1Snapshot,
	listener FieldRefinementListener,
) HybridParsingResult {
	start := time.Now()
	staged := p.orchestrator.ParseStaged(ctx, input, pctx, snapshot, listener)
	elapsed := time.Since(start)

	refined := len(staged.FieldsRefined) > 0
	method := MethodHeuristic
	if refined {
		method = MethodAI
		p.breaker.Reset()
	} else if len(staged.TargetFields) > 0 && staged.HasErrors() {
		p.breaker.RecordFailure()
	}
	validated := refined

	result := staged.MergedResult
	confidence := ScoreConfidence(method, validated, &result)
	outcome := HybridParsingResult{
		Result:     result,
		Method:     method,
		Validated:  validated,
		Confidence: confidence,
		Stats:      ProcessingStatistics{Duration: elapsed},
		Errors:     staged.RefinementErrors,
		Staged:     &staged,
	}
	p.monitor.Record(outcome)
	p.logger.Info("parse complete",
		"method", method,
		"validated", validated,
		"duration_ms", elapsed.Milliseconds(),
		"errors", len(outcome.Errors))
	return outcome
}

func (p *Parser) parseLegacy(ctx context.Context, input string, pctx model.ParsingContext) HybridParsingResult {
	start := time.Now()
	draft := p.extractor.Extract(input, pctx)

	var aiParsed *model.ParsedResult
	var usedAI, validated bool
	var rawJSON string
	var errors []string

	shouldCallAI := draft.RequiresAI(p.thresholds)
	available := p.gateway.Available() && !p.breaker.Open()
	p.logger.Debug("legacy parse decision",
		"shouldCallAI", shouldCallAI,
		"available", available,
		"circuitOpen", p.breaker.Open())

	switch {
	case shouldCallAI && available:
		prompt := p.prompts.Build(input, pctx, &draft)
		payload, err := p.gateway.Structured(ctx, prompt)
		if err != nil || strings.TrimSpace(payload) == "" {
			if err != nil {
				errors = append(errors, "AI failure: "+err.Error())
			}
			p.logger.Warn("model response unusable, falling back to heuristics", "error", err)
			p.breaker.RecordFailure()
			break
		}
		outcome := ValidateRawResponse(payload)
		if outcome.Valid && outcome.NormalizedJSON != "" {
			parsed := mapJSONToParsedResult(outcome.NormalizedJSON, pctx)
			aiParsed = &parsed
			usedAI = true
			validated = true
			rawJSON = outcome.NormalizedJSON
			p.breaker.Reset()
		} else {
			if msg := strings.Join(outcome.Errors, "; "); msg != "" {
				errors = append(errors, msg)
			}
			p.logger.Warn("invalid structured output", "errors", outcome.Errors)
			p.breaker.RecordFailure()
		}
	case shouldCallAI:
		p.logger.Warn("skipping model call, gateway unavailable")
		p.breaker.RecordFailure()
	default:
		p.logger.Debug("skipping model call, heuristics met thresholds")
	}

	merged := p.legacyMerge(draft, aiParsed, pctx)
	elapsed := time.Since(start)

	method := MethodHeuristic
	if usedAI && validated {
		method = MethodAI
	}
	confidence := ScoreConfidence(method, validated, &merged)
	outcome := HybridParsingResult{
		Result:     merged,
		Method:     method,
		Validated:  validated,
		Confidence: confidence,
		Stats:      ProcessingStatistics{Duration: elapsed},
		RawJSON:    rawJSON,
		Errors:     errors,
	}
	p.monitor.Record(outcome)
	p.logger.Info("parse complete",
		"method", method,
		"validated", validated,
		"duration_ms", elapsed.Milliseconds(),
		"errors", len(errors))
	return outcome
}

// mapJSONToParsedResult converts validated model JSON into a transaction.
// Missing merchant defaults to Unknown and missing confidence to 0.75; the
// date always comes from the parsing context since the single-shot schema
// date is unreliable.
func mapJSONToParsedResult(normalizedJSON string, pctx model.ParsingContext) model.ParsedResult {
	var payload map[string]any
	if err := json.Unmarshal([]byte(normalizedJSON), &payload); err != nil {
		payload = map[string]any{}
	}

	str := func(key string) string {
		if s, ok := payload[key].(string); ok {
			return strings.TrimSpace(s)
		}
		return ""
	}
	dec := func(keys ...string) *decimal.Decimal {
		for _, key := range keys {
			if f, ok := payload[key].(float64); ok {
				d := decimal.NewFromFloat(f)
				return &d
			}
		}
		return nil
	}

	merchant := str("merchant")
	if merchant == "" {
		merchant = "Unknown"
	}
	txType, _ := model.NormalizeType(str("type"))

	var tags []string
	if raw, ok := payload["tags"].([]any); ok {
		for _, item := range raw {
			if s, ok := item.(string); ok && strings.TrimSpace(s) != "" {
				tags = append(tags, strings.TrimSpace(s))
			}
		}
	}

	confidence := 0.75
	if f, ok := payload["confidence"].(float64); ok {
		confidence = f
	}

	return model.Sanitize(model.ParsedResult{
		AmountUSD:              dec("amountUsd", "amount"),
		Merchant:               merchant,
		Description:            str("description"),
		Type:                   txType,
		ExpenseCategory:        str("expenseCategory"),
		IncomeCategory:         str("incomeCategory"),
		Tags:                   tags,
		Date:                   pctx.ReferenceDate(),
		Account:                str("account"),
		SplitOverallChargedUSD: dec("splitOverallChargedUsd", "overall"),
		Note:                   str("note"),
		Confidence:             confidence,
	})
}

// legacyMerge combines the heuristic draft with a validated model result.
// The heuristic amount wins only when it cleared its threshold and is at
// least as large as the model's; everything else prefers the model value
// with heuristic backfill.
func (p *Parser) legacyMerge(draft heuristic.Draft, aiParsed *model.ParsedResult, pctx model.ParsingContext) model.ParsedResult {
	base := draft.ToParsedResult(pctx)
	if aiParsed != nil {
		base = *aiParsed
	}

	merged := base
	preferHeuristicAmount := false
	if aiParsed != nil && aiParsed.AmountUSD != nil && draft.AmountUSD != nil {
		clearedThreshold := draft.Confidence(model.FieldAmount) >= p.thresholds.ThresholdFor(model.FieldAmount)
		preferHeuristicAmount = clearedThreshold && draft.AmountUSD.GreaterThanOrEqual(*aiParsed.AmountUSD)
	}
	switch {
	case preferHeuristicAmount:
		merged.AmountUSD = draft.AmountUSD
	case aiParsed != nil && aiParsed.AmountUSD != nil:
		merged.AmountUSD = aiParsed.AmountUSD
	default:
		merged.AmountUSD = draft.AmountUSD
	}

	if merged.Merchant == "" {
		if draft.Merchant != "" {
			merged.Merchant = draft.Merchant
		} else {
			merged.Merchant = "Unknown"
		}
	}
	if merged.Description == "" {
		merged.Description = draft.Description
	}
	if merged.ExpenseCategory == "" {
		merged.ExpenseCategory = draft.ExpenseCategory
	}
	if merged.IncomeCategory == "" {
		merged.IncomeCategory = draft.IncomeCategory
	}
	if merged.Account == "" {
		merged.Account = draft.Account
	}
	if merged.SplitOverallChargedUSD == nil {
		merged.SplitOverallChargedUSD = draft.SplitOverallChargedUSD
	}
	if merged.Note == "" {
		merged.Note = draft.Note
	}
	if draft.Date != nil {
		merged.Date = *draft.Date
	}
	merged.Tags = dedupeStrings(append(append([]string{}, base.Tags...), draft.Tags...))
	if aiParsed == nil {
		merged.Confidence = clamp01(draft.CoverageScore())
	}

	merged = normalizeToAllowedOptions(merged, pctx)
	return model.Sanitize(merged)
}

// normalizeToAllowedOptions enforces the closed vocabularies: categories,
// account, and tags must match a configured option or they are dropped.
func normalizeToAllowedOptions(result model.ParsedResult, pctx model.ParsingContext) model.ParsedResult {
	result.ExpenseCategory = matchOption(result.ExpenseCategory, pctx.AllowedExpenseCategories)
	result.IncomeCategory = matchOption(result.IncomeCategory, pctx.AllowedIncomeCategories)
	result.Account = matchOption(result.Account, pctx.AccountOptions())
	if len(pctx.AllowedTags) > 0 {
		var tags []string
		for _, tag := range result.Tags {
			if matched := matchOption(tag, pctx.AllowedTags); matched != "" {
				tags = append(tags, matched)
			}
		}
		result.Tags = dedupeStrings(tags)
	}
	return result
}
