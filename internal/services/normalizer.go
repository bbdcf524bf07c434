package services

import (
	"encoding/json"
	"strings"

	"github.com/ahmetcoskunkizilkaya/plainnow-backend/internal/models"
)

const (
	fallbackMeaning    = "No summary available"
	fallbackRiskReason = "No specific risk factor identified"
	unparsedRiskReason = "Failed to parse structured output"
)

// AnalysisResult is the provider-independent shape stored with every Document.
type AnalysisResult struct {
	Meaning    string   `json:"meaning"`
	Actions    []string `json:"actions"`
	RiskLevel  string   `json:"riskLevel"`
	RiskReason string   `json:"riskReason"`
}

// Normalized carries the result plus whether it came from the recovery path.
// Callers use Recovered only for observability.
type Normalized struct {
	Result    AnalysisResult
	Recovered bool
}

// Normalize turns raw provider text into a fully populated AnalysisResult.
// It never fails.
func Normalize(raw string) Normalized {
	fields, ok := extractJSONObject(raw)
	if !ok {
		return Normalized{
			Result: applyFallbacks(AnalysisResult{
				Meaning:    strings.TrimSpace(raw),
				Actions:    []string{},
				RiskLevel:  models.RiskLow,
				RiskReason: unparsedRiskReason,
			}),
			Recovered: true,
		}
	}

	return Normalized{Result: applyFallbacks(AnalysisResult{
		Meaning:    stringField(fields, "meaning"),
		Actions:    stringSliceField(fields, "actions"),
		RiskLevel:  stringField(fields, "riskLevel"),
		RiskReason: stringField(fields, "riskReason"),
	})}
}

func applyFallbacks(r AnalysisResult) AnalysisResult {
	if r.Meaning == "" {
		r.Meaning = fallbackMeaning
	}
	if r.Actions == nil {
		r.Actions = []string{}
	}
	r.RiskLevel = normalizeRiskLevel(r.RiskLevel)
	if r.RiskReason == "" {
		r.RiskReason = fallbackRiskReason
	}
	return r
}

// extractJSONObject strips markdown fences and decodes the first JSON object
// found in s.
func extractJSONObject(s string) (map[string]json.RawMessage, bool) {
	content := stripCodeFence(s)
	if content == "" {
		return nil, false
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal([]byte(content), &fields); err == nil && fields != nil {
		return fields, true
	}

	start := strings.Index(content, "{")
	end := strings.LastIndex(content, "}")
	if start < 0 || end <= start {
		return nil, false
	}
	if err := json.Unmarshal([]byte(content[start:end+1]), &fields); err != nil || fields == nil {
		return nil, false
	}
	return fields, true
}

func stripCodeFence(s string) string {
	content := strings.TrimSpace(s)
	if !strings.HasPrefix(content, "```") {
		return content
	}
	content = strings.TrimPrefix(content, "```")
	// Drop the language tag, e.g. ```json
	if nl := strings.IndexByte(content, '\n'); nl >= 0 {
		tag := strings.TrimSpace(content[:nl])
		if tag == "" || !strings.ContainsAny(tag, "{[\"") {
			content = content[nl+1:]
		}
	} else {
		content = strings.TrimPrefix(content, "json")
	}
	content = strings.TrimSpace(content)
	content = strings.TrimSuffix(content, "```")
	return strings.TrimSpace(content)
}

func stringField(fields map[string]json.RawMessage, key string) string {
	raw, ok := fields[key]
	if !ok {
		return ""
	}
	var v string
	if err := json.Unmarshal(raw, &v); err != nil {
		return ""
	}
	return strings.TrimSpace(v)
}

func stringSliceField(fields map[string]json.RawMessage, key string) []string {
	raw, ok := fields[key]
	if !ok {
		return []string{}
	}
	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		return []string{}
	}
	out := make([]string, 0, len(items))
	for _, item := range items {
		var v string
		if err := json.Unmarshal(item, &v); err != nil {
			continue
		}
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}

func normalizeRiskLevel(level string) string {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "high":
		return models.RiskHigh
	case "medium":
		return models.RiskMedium
	default:
		return models.RiskLow
	}
}
