package hybrid

import (
	"strings"
	"unicode"
)

// NormalizeTags maps raw model-suggested tags onto the allowed vocabulary.
// Matching is case-insensitive and also tolerates punctuation and spacing
// differences ("autopaid" matches "Auto-Paid"). Unmatched tags are dropped.
// With no vocabulary configured, tags are title-cased and deduplicated
// instead.
func NormalizeTags(raw, allowed []string) []string {
	if len(raw) == 0 {
		return nil
	}

	canonical := buildCanonicalTagMap(allowed)
	if len(canonical) > 0 {
		seen := make(map[string]struct{}, len(raw))
		var normalized []string
		for _, tag := range raw {
			trimmed := strings.TrimSpace(tag)
			if trimmed == "" {
				continue
			}
			key := strings.ToLower(trimmed)
			match, ok := canonical[key]
			if !ok {
				match, ok = canonical[collapseTag(key)]
			}
			if !ok {
				continue
			}
			if _, dup := seen[match]; dup {
				continue
			}
			seen[match] = struct{}{}
			normalized = append(normalized, match)
		}
		return normalized
	}

	seen := make(map[string]struct{}, len(raw))
	var out []string
	for _, tag := range raw {
		trimmed := strings.TrimSpace(tag)
		if trimmed == "" {
			continue
		}
		titled := titleCaseTag(trimmed)
		if _, dup := seen[titled]; dup {
			continue
		}
		seen[titled] = struct{}{}
		out = append(out, titled)
	}
	return out
}

func buildCanonicalTagMap(allowed []string) map[string]string {
	canonical := make(map[string]string, len(allowed)*2)
	for _, option := range allowed {
		trimmed := strings.TrimSpace(option)
		if trimmed == "" {
			continue
		}
		lower := strings.ToLower(trimmed)
		if _, ok := canonical[lower]; !ok {
			canonical[lower] = trimmed
		}
		collapsed := collapseTag(lower)
		if collapsed != lower {
			if _, ok := canonical[collapsed]; !ok {
				canonical[collapsed] = trimmed
			}
		}
	}
	return canonical
}

func collapseTag(value string) string {
	var b strings.Builder
	b.Grow(len(value))
	for _, r := range value {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}

func titleCaseTag(value string) string {
	lower := strings.ToLower(value)
	var b strings.Builder
	b.Grow(len(value))
	capitalizeNext := true
	for _, r := range lower {
		switch {
		case unicode.IsLetter(r):
			if capitalizeNext {
				b.WriteRune(unicode.ToTitle(r))
			} else {
				b.WriteRune(r)
			}
			capitalizeNext = false
		case unicode.IsDigit(r):
			b.WriteRune(r)
			capitalizeNext = false
		default:
			b.WriteRune(r)
			capitalizeNext = r == ' ' || r == '-' || r == '_' || r == '/'
		}
	}
	return b.String()
}
