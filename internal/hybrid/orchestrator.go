package hybrid

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/voxpense/voxpense/internal/heuristic"
	"github.com/voxpense/voxpense/internal/model"
	"github.com/voxpense/voxpense/internal/runlog"
)

const (
	availabilityWaitTimeout  = 8 * time.Second
	availabilityPollInterval = 200 * time.Millisecond
)

// Stage1Snapshot captures the heuristic pass and the fields chosen for
// refinement, so callers can show a draft immediately and run stage 2 later.
type Stage1Snapshot struct {
	Draft          heuristic.Draft
	TargetFields   []model.FieldKey
	Stage1Duration time.Duration
}

// FieldRefinementUpdate reports the outcome of one field refinement.
type FieldRefinementUpdate struct {
	Field    model.FieldKey
	Value    any
	Duration time.Duration
	Err      string
}

// FieldRefinementListener receives per-field progress during staged parsing.
type FieldRefinementListener func(FieldRefinementUpdate)

// StagedParsingResult is the full outcome of a staged parse: the untouched
// stage-1 draft, the refinements that survived validation, and the merged
// transaction.
type StagedParsingResult struct {
	Draft            heuristic.Draft
	RefinedFields    map[model.FieldKey]any
	MergedResult     model.ParsedResult
	FieldsRefined    []model.FieldKey
	TargetFields     []model.FieldKey
	RefinementErrors []string
	Stage1Duration   time.Duration
	Stage2Duration   time.Duration
}

// WasFieldRefined reports whether the field received a refined value.
func (r StagedParsingResult) WasFieldRefined(field model.FieldKey) bool {
	_, ok := r.RefinedFields[field]
	return ok
}

// RefinementValue returns the refined value for the field, if any.
func (r StagedParsingResult) RefinementValue(field model.FieldKey) (any, bool) {
	v, ok := r.RefinedFields[field]
	return v, ok
}

// HasErrors reports whether any refinement attempt failed.
func (r StagedParsingResult) HasErrors() bool { return len(r.RefinementErrors) > 0 }

// TotalDuration is the combined stage-1 and stage-2 wall time.
func (r StagedParsingResult) TotalDuration() time.Duration {
	return r.Stage1Duration + r.Stage2Duration
}

// Orchestrator coordinates the staged pipeline: heuristics, focused
// refinement of low-confidence fields, and the final merge. Refinements fold
// into an evolving draft so each prompt sees the best values so far; the
// merge always starts from the original stage-1 draft.
type Orchestrator struct {
	extractor    *heuristic.Extractor
	gateway      Gateway
	builder      *FocusedPromptBuilder
	thresholds   model.FieldConfidenceThresholds
	logger       *slog.Logger
	waitTimeout  time.Duration
	pollInterval time.Duration
}

func NewOrchestrator(extractor *heuristic.Extractor, gateway Gateway, logger *slog.Logger) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{
		extractor:    extractor,
		gateway:      gateway,
		builder:      NewFocusedPromptBuilder(),
		thresholds:   model.DefaultThresholds(),
		logger:       logger,
		waitTimeout:  availabilityWaitTimeout,
		pollInterval: availabilityPollInterval,
	}
}

// PrepareStage1 runs the heuristic pass and field selection without touching
// the generative model.
func (o *Orchestrator) PrepareStage1(input string, pctx model.ParsingContext) Stage1Snapshot {
	start := time.Now()
	draft := o.extractor.Extract(input, pctx)
	duration := time.Since(start)
	targets := SelectFieldsForRefinement(draft, o.thresholds)
	o.logger.Debug("stage1 heuristics complete",
		"duration_ms", duration.Milliseconds(),
		"targets", fieldNames(targets))
	return Stage1Snapshot{Draft: draft, TargetFields: targets, Stage1Duration: duration}
}

// ParseStaged executes the staged pipeline. A nil snapshot runs stage 1
// inline; a nil listener disables progress callbacks.
func (o *Orchestrator) ParseStaged(
	ctx context.Context,
	input string,
	pctx model.ParsingContext,
	snapshot *Stage1Snapshot,
	listener FieldRefinementListener,
) StagedParsingResult {
	logger := pctx.RunLog

	stage1 := Stage1Snapshot{}
	if snapshot != nil {
		stage1 = *snapshot
	} else {
		stage1 = o.PrepareStage1(input, pctx)
	}
	targets := stage1.TargetFields
	var refinementErrors []string

	available := o.awaitAvailability(ctx, len(targets) > 0)
	logRunEntry(logger, runlog.EntrySummary, "Stage2 target fields",
		fmt.Sprintf("targets=%s aiAvailable=%t", strings.Join(fieldNames(targets), ", "), available), "")

	if len(targets) == 0 || !available {
		if !available && len(targets) > 0 {
			refinementErrors = append(refinementErrors, "AI unavailable")
			o.logger.Warn("generative model unavailable, skipping refinement", "targets", fieldNames(targets))
			logRunEntry(logger, runlog.EntryError, "GenAI unavailable",
				"targets="+strings.Join(fieldNames(targets), ", "), "")
		}
		merged := stage1.Draft.ToParsedResult(pctx)
		logRunEntry(logger, runlog.EntrySummary, "Stage2 skipped",
			fmt.Sprintf("refined=0 errors=%v", refinementErrors), "")
		return StagedParsingResult{
			Draft:            stage1.Draft,
			RefinedFields:    map[model.FieldKey]any{},
			MergedResult:     merged,
			TargetFields:     targets,
			RefinementErrors: refinementErrors,
			Stage1Duration:   stage1.Stage1Duration,
		}
	}

	refined := make(map[model.FieldKey]any)
	var fieldsRefined []model.FieldKey
	var stage2 time.Duration
	currentDraft := stage1.Draft
	for _, field := range targets {
		if ctx.Err() != nil {
			refinementErrors = append(refinementErrors, "cancelled: "+ctx.Err().Error())
			break
		}
		value, duration, errMsg := o.refineSingleField(ctx, field, input, pctx, currentDraft)
		stage2 += duration
		if errMsg != "" {
			refinementErrors = append(refinementErrors, errMsg)
			logRunEntry(logger, runlog.EntryError,
				"Refinement error for "+string(field), errMsg, field.JSONKey())
		}
		normalized := normalizeFieldValue(field, value, pctx)
		if normalized != nil {
			refined[field] = normalized
			fieldsRefined = append(fieldsRefined, field)
			currentDraft = applyRefinementToDraft(currentDraft, field, normalized)
			logRunEntry(logger, runlog.EntrySummary,
				"Refinement applied for "+string(field),
				fmt.Sprintf("duration=%dms\nvalue=%v", duration.Milliseconds(), normalized), field.JSONKey())
		}
		if listener != nil {
			listener(FieldRefinementUpdate{Field: field, Value: normalized, Duration: duration, Err: errMsg})
		}
	}

	var merged model.ParsedResult
	if len(refined) == 0 {
		merged = stage1.Draft.ToParsedResult(pctx)
	} else {
		merged = mergeResults(stage1.Draft, refined, pctx)
	}

	o.logger.Info("staged parsing finished",
		"stage1_ms", stage1.Stage1Duration.Milliseconds(),
		"stage2_ms", stage2.Milliseconds(),
		"refined", len(refined),
		"errors", len(refinementErrors))
	logRunEntry(logger, runlog.EntrySummary, "Staged parsing summary",
		fmt.Sprintf("refined=%s\nerrors=%v\nstage1=%dms stage2=%dms",
			strings.Join(fieldNames(fieldsRefined), ", "), refinementErrors,
			stage1.Stage1Duration.Milliseconds(), stage2.Milliseconds()), "")

	return StagedParsingResult{
		Draft:            stage1.Draft,
		RefinedFields:    refined,
		MergedResult:     merged,
		FieldsRefined:    fieldsRefined,
		TargetFields:     targets,
		RefinementErrors: refinementErrors,
		Stage1Duration:   stage1.Stage1Duration,
		Stage2Duration:   stage2,
	}
}

// refineSingleField prompts for one field and validates the response.
// Returns the raw refined value (nil when refinement produced nothing), the
// call duration, and an error message when the attempt failed.
func (o *Orchestrator) refineSingleField(
	ctx context.Context,
	field model.FieldKey,
	input string,
	pctx model.ParsingContext,
	draft heuristic.Draft,
) (any, time.Duration, string) {
	logger := pctx.RunLog
	prompt := o.builder.Build(input, draft, []model.FieldKey{field}, pctx)
	logRunEntry(logger, runlog.EntryPrompt, "Focused prompt for "+string(field), prompt, field.JSONKey())

	start := time.Now()
	payload, err := o.gateway.Structured(ctx, prompt)
	duration := time.Since(start)
	if err != nil {
		message := "AI failure: " + err.Error()
		o.logger.Error("structured call failed", "field", field, "error", err)
		logRunEntry(logger, runlog.EntryError, "AI failure for "+string(field), err.Error(), field.JSONKey())
		return nil, duration, message
	}
	if strings.TrimSpace(payload) == "" {
		o.logger.Debug("blank payload, keeping heuristic value", "field", field)
		logRunEntry(logger, runlog.EntryError, "AI blank response for "+string(field),
			fmt.Sprintf("duration=%dms", duration.Milliseconds()), field.JSONKey())
		return nil, duration, "AI blank response"
	}

	logRunEntry(logger, runlog.EntryResponse, "Focused response for "+string(field), payload, field.JSONKey())
	validation := ValidateRawResponse(payload)
	if !validation.Valid || validation.NormalizedJSON == "" {
		message := "AI validation failed"
		if len(validation.Errors) > 0 {
			message = strings.Join(validation.Errors, ", ")
		}
		snippet := strings.ReplaceAll(payload, "\n", " ")
		if len(snippet) > 300 {
			snippet = snippet[:300]
		}
		o.logger.Warn("focused refinement invalid", "field", field, "errors", validation.Errors)
		logRunEntry(logger, runlog.EntryValidation, "Validation failed for "+string(field),
			fmt.Sprintf("errors=%v\nresponseSnippet=%s", validation.Errors, snippet), field.JSONKey())
		return nil, duration, message
	}
	logRunEntry(logger, runlog.EntryValidation, "Validation succeeded for "+string(field),
		fmt.Sprintf("duration=%dms\nnormalized=%s", duration.Milliseconds(), validation.NormalizedJSON), field.JSONKey())

	updates := extractFieldUpdates(validation.NormalizedJSON, field)
	return updates, duration, ""
}

// extractFieldUpdates pulls the target field's value out of validated JSON.
// Absent keys and malformed payloads yield nil.
func extractFieldUpdates(normalizedJSON string, field model.FieldKey) any {
	var payload map[string]any
	if err := json.Unmarshal([]byte(normalizedJSON), &payload); err != nil {
		return nil
	}
	value, ok := payload[field.JSONKey()]
	if !ok || value == nil {
		return nil
	}
	switch field {
	case model.FieldMerchant, model.FieldDescription, model.FieldExpenseCategory, model.FieldIncomeCategory, model.FieldAccount:
		text, ok := value.(string)
		if !ok {
			return nil
		}
		text = strings.TrimSpace(text)
		if text == "" {
			return nil
		}
		return text
	case model.FieldTags:
		switch v := value.(type) {
		case []any:
			var tags []string
			for _, item := range v {
				if s, ok := item.(string); ok {
					s = strings.TrimSpace(s)
					if s != "" {
						tags = append(tags, s)
					}
				}
			}
			return tags
		case string:
			if strings.TrimSpace(v) == "" {
				return []string(nil)
			}
			return []string{strings.TrimSpace(v)}
		default:
			return []string(nil)
		}
	default:
		return value
	}
}

// normalizeFieldValue canonicalizes a refined value before it is recorded:
// names get sentence case, the account must match a configured option, tags
// go through vocabulary normalization.
func normalizeFieldValue(field model.FieldKey, value any, pctx model.ParsingContext) any {
	switch field {
	case model.FieldMerchant, model.FieldDescription:
		text := strings.TrimSpace(stringValue(value))
		if text == "" {
			return nil
		}
		return capitalizeFirst(text)
	case model.FieldExpenseCategory, model.FieldIncomeCategory:
		text := strings.TrimSpace(stringValue(value))
		if text == "" {
			return nil
		}
		return text
	case model.FieldAccount:
		text := strings.TrimSpace(stringValue(value))
		if text == "" {
			return nil
		}
		if matched := matchOption(text, pctx.AccountOptions()); matched != "" {
			return matched
		}
		return text
	case model.FieldTags:
		raw, _ := value.([]string)
		normalized := NormalizeTags(raw, pctx.AllowedTags)
		switch {
		case len(normalized) > 0:
			return normalized
		case len(raw) == 0:
			return []string{}
		case len(pctx.AllowedTags) == 0:
			return dedupeStrings(raw)
		default:
			return []string{}
		}
	default:
		return value
	}
}

// mergeResults builds the final transaction from the original stage-1 draft
// and overlays the refined values. The account must resolve against the
// configured vocabulary or it is dropped.
func mergeResults(draft heuristic.Draft, refined map[model.FieldKey]any, pctx model.ParsingContext) model.ParsedResult {
	merged := draft.ToParsedResult(pctx)
	for _, field := range fieldOrder {
		value, ok := refined[field]
		if !ok {
			continue
		}
		switch field {
		case model.FieldMerchant:
			if text := capitalizeFirst(strings.TrimSpace(stringValue(value))); text != "" {
				merged.Merchant = text
			}
		case model.FieldDescription:
			merged.Description = capitalizeFirst(strings.TrimSpace(stringValue(value)))
		case model.FieldExpenseCategory:
			merged.ExpenseCategory = strings.TrimSpace(stringValue(value))
		case model.FieldIncomeCategory:
			merged.IncomeCategory = strings.TrimSpace(stringValue(value))
		case model.FieldAccount:
			if text := strings.TrimSpace(stringValue(value)); text != "" {
				merged.Account = text
			}
		case model.FieldTags:
			raw, _ := value.([]string)
			normalized := NormalizeTags(raw, pctx.AllowedTags)
			switch {
			case len(normalized) > 0:
				merged.Tags = normalized
			case len(raw) == 0:
				merged.Tags = nil
			}
		}
	}
	merged.Tags = NormalizeTags(merged.Tags, pctx.AllowedTags)
	if accounts := pctx.AccountOptions(); len(accounts) > 0 {
		merged.Account = matchOption(merged.Account, accounts)
	}
	return model.Sanitize(merged)
}

// applyRefinementToDraft folds an accepted refinement into the evolving
// draft so later prompts see it, boosting the field's confidence.
func applyRefinementToDraft(draft heuristic.Draft, field model.FieldKey, value any) heuristic.Draft {
	switch field {
	case model.FieldMerchant:
		if text := strings.TrimSpace(stringValue(value)); text != "" {
			draft.Merchant = text
			draft = draft.WithConfidence(model.FieldMerchant, 0.95)
		}
	case model.FieldDescription:
		text := strings.TrimSpace(stringValue(value))
		draft.Description = text
		if text != "" {
			draft = draft.WithConfidence(model.FieldDescription, 0.95)
		}
	case model.FieldExpenseCategory:
		text := strings.TrimSpace(stringValue(value))
		draft.ExpenseCategory = text
		if text != "" {
			draft = draft.WithConfidence(model.FieldExpenseCategory, 0.9)
		}
	case model.FieldIncomeCategory:
		text := strings.TrimSpace(stringValue(value))
		draft.IncomeCategory = text
		if text != "" {
			draft = draft.WithConfidence(model.FieldIncomeCategory, 0.9)
		}
	case model.FieldAccount:
		if text := strings.TrimSpace(stringValue(value)); text != "" {
			draft.Account = text
			draft = draft.WithConfidence(model.FieldAccount, 0.9)
		}
	case model.FieldTags:
		if tags, _ := value.([]string); len(tags) > 0 {
			draft.Tags = tags
			draft = draft.WithConfidence(model.FieldTags, 0.85)
		}
	}
	return draft
}

// awaitAvailability polls the gateway when refinement targets exist, giving
// a slow-starting model a short grace period before falling back.
func (o *Orchestrator) awaitAvailability(ctx context.Context, hasTargets bool) bool {
	if !hasTargets {
		return o.gateway.Available()
	}
	if o.gateway.Available() {
		return true
	}
	if hint, ok := o.gateway.(interface{ NeverAvailable() bool }); ok && hint.NeverAvailable() {
		return false
	}
	o.logger.Warn("generative model unavailable, waiting", "timeout", o.waitTimeout)

	deadline := time.NewTimer(o.waitTimeout)
	defer deadline.Stop()
	ticker := time.NewTicker(o.pollInterval)
	defer ticker.Stop()
	start := time.Now()
	for {
		select {
		case <-ctx.Done():
			return false
		case <-deadline.C:
			o.logger.Warn("generative model still unavailable", "waited", time.Since(start))
			return false
		case <-ticker.C:
			if o.gateway.Available() {
				o.logger.Info("generative model became available", "waited", time.Since(start))
				return true
			}
		}
	}
}

func matchOption(value string, options []string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return ""
	}
	if len(options) == 0 {
		return value
	}
	for _, option := range options {
		if strings.EqualFold(strings.TrimSpace(option), value) {
			return option
		}
	}
	return ""
}

func capitalizeFirst(text string) string {
	if text == "" {
		return text
	}
	runes := []rune(text)
	first := runes[0]
	if first >= 'a' && first <= 'z' {
		runes[0] = first - 'a' + 'A'
	}
	return string(runes)
}

func stringValue(value any) string {
	if s, ok := value.(string); ok {
		return s
	}
	return ""
}

func dedupeStrings(values []string) []string {
	seen := make(map[string]bool, len(values))
	var out []string
	for _, v := range values {
		if seen[v] {
			continue
		}
		seen[v] = true
		out = append(out, v)
	}
	return out
}

func fieldNames(fields []model.FieldKey) []string {
	names := make([]string, len(fields))
	for i, f := range fields {
		names[i] = string(f)
	}
	return names
}

func logRunEntry(builder *runlog.Builder, entryType runlog.EntryType, title, detail, field string) {
	if builder == nil {
		return
	}
	builder.Add(entryType, title, detail, field)
}
