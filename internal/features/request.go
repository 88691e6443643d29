// Package features converts raw startup metrics into the typed feature
// vectors the sub-models consume. It owns request normalization
// (funding stage, sector, pattern tags) and completeness accounting.
package features

import (
	"sort"
	"strings"

	"github.com/google/uuid"
)

// Request is an immutable prediction request: the raw feature map plus
// the context derived from it. Build one with NewRequest and do not
// mutate it afterwards; concurrent predictions share it read-only.
type Request struct {
	ID          string
	Raw         map[string]any
	Stage       string
	Sector      string
	PatternTags []string
}

// NewRequest builds a Request from a raw feature map, resolving the
// normalized funding stage, sector, and detected pattern tags from the
// reserved keys "funding_stage", "sector", and "pattern_tags".
func NewRequest(id string, raw map[string]any) Request {
	if id == "" {
		id = uuid.NewString()
	}

	req := Request{
		ID:  id,
		Raw: raw,
	}

	if v, ok := raw["funding_stage"].(string); ok {
		req.Stage = NormalizeStage(v)
	}
	if v, ok := raw["sector"].(string); ok {
		req.Sector = NormalizeSector(v)
	}
	req.PatternTags = patternTags(raw["pattern_tags"])

	return req
}

// HasPattern reports whether the request carries the given pattern tag.
func (r Request) HasPattern(tag string) bool {
	for _, t := range r.PatternTags {
		if t == tag {
			return true
		}
	}
	return false
}

// Numeric returns the named raw feature as a float64. Booleans map to
// 0/1. The second return reports whether a usable value was present.
func (r Request) Numeric(name string) (float64, bool) {
	return toNumeric(r.Raw[name])
}

func toNumeric(v any) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, true
	case float32:
		return float64(x), true
	case int:
		return float64(x), true
	case int64:
		return float64(x), true
	case bool:
		if x {
			return 1, true
		}
		return 0, true
	default:
		return 0, false
	}
}

func patternTags(v any) []string {
	var tags []string
	switch x := v.(type) {
	case []string:
		for _, t := range x {
			tags = append(tags, normalizeKey(t))
		}
	case []any:
		for _, t := range x {
			if s, ok := t.(string); ok {
				tags = append(tags, normalizeKey(s))
			}
		}
	}
	sort.Strings(tags)
	return tags
}

// stageAliases maps common funding-stage spellings to canonical keys.
var stageAliases = map[string]string{
	"preseed":  "pre_seed",
	"angel":    "pre_seed",
	"series_d": "series_c_plus",
	"series_e": "series_c_plus",
	"growth":   "series_c_plus",
}

// NormalizeStage canonicalizes a funding stage label: lowercase,
// underscores for separators, known aliases collapsed.
func NormalizeStage(s string) string {
	key := normalizeKey(s)
	if alias, ok := stageAliases[key]; ok {
		return alias
	}
	return key
}

// NormalizeSector canonicalizes a sector label the same way.
func NormalizeSector(s string) string {
	return normalizeKey(s)
}

func normalizeKey(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	s = strings.ReplaceAll(s, "-", "_")
	s = strings.ReplaceAll(s, " ", "_")
	return s
}
