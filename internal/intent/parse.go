package intent

import (
	"encoding/json"
	"strings"
)

// extractJSON pulls the outermost JSON object out of a completion,
// tolerating prose the model wraps around it.
func extractJSON(s string) string {
	s = strings.TrimSpace(s)
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start >= 0 && end > start {
		return s[start : end+1]
	}
	return s
}

// Alternative is a candidate intent proposed during fallback.
type Alternative struct {
	Intent     string  `json:"intent"`
	Confidence float64 `json:"confidence"`
	Reason     string  `json:"reason,omitempty"`
}

// ExtractedEntity is one piece of structured data pulled from a query
// during partial extraction.
type ExtractedEntity struct {
	Name       string  `json:"name"`
	Value      string  `json:"value"`
	Confidence float64 `json:"confidence"`
}

// parseAlternatives decodes the alternative-intent payload. Any decode
// failure yields an empty list so the tier can fall through.
func parseAlternatives(raw string) []Alternative {
	var payload struct {
		Alternatives []Alternative `json:"alternatives"`
	}
	if err := json.Unmarshal([]byte(extractJSON(raw)), &payload); err != nil {
		return nil
	}
	out := make([]Alternative, 0, len(payload.Alternatives))
	for _, alt := range payload.Alternatives {
		if strings.TrimSpace(alt.Intent) == "" {
			continue
		}
		alt.Confidence = clamp01(alt.Confidence)
		out = append(out, alt)
	}
	return out
}

type generalizedGuess struct {
	Intent     string  `json:"intent"`
	Confidence float64 `json:"confidence"`
	Reasoning  string  `json:"reasoning"`
}

// parseGeneralized decodes the generalized-intent payload. Decode
// failures collapse to intent "unknown" with zero confidence.
func parseGeneralized(raw string) generalizedGuess {
	guess := generalizedGuess{Intent: "unknown"}
	if err := json.Unmarshal([]byte(extractJSON(raw)), &guess); err != nil {
		return generalizedGuess{Intent: "unknown"}
	}
	if strings.TrimSpace(guess.Intent) == "" {
		guess.Intent = "unknown"
	}
	guess.Confidence = clamp01(guess.Confidence)
	return guess
}

type partialExtraction struct {
	Intent   string            `json:"intent"`
	Entities []ExtractedEntity `json:"entities"`
	Missing  []string          `json:"missing"`
}

// parsePartial decodes the partial-extraction payload. Decode failures
// yield an empty extraction.
func parsePartial(raw string) partialExtraction {
	var out partialExtraction
	if err := json.Unmarshal([]byte(extractJSON(raw)), &out); err != nil {
		return partialExtraction{}
	}
	entities := out.Entities[:0]
	for _, ent := range out.Entities {
		if strings.TrimSpace(ent.Name) == "" {
			continue
		}
		ent.Confidence = clamp01(ent.Confidence)
		entities = append(entities, ent)
	}
	out.Entities = entities
	return out
}

type reasoningPayload struct {
	Steps []struct {
		Step        int    `json:"step"`
		Description string `json:"description"`
		Outcome     string `json:"outcome"`
	} `json:"steps"`
	Entities         []ExtractedEntity `json:"entities"`
	SuggestedActions []string          `json:"suggested_actions"`
	Conclusion       string            `json:"conclusion"`
	Confidence       float64           `json:"confidence"`
}

// parseReasoning decodes a chain-of-thought draft. ok is false when
// the payload cannot be decoded or carries no steps.
func parseReasoning(raw string) (reasoningPayload, bool) {
	var payload reasoningPayload
	if err := json.Unmarshal([]byte(extractJSON(raw)), &payload); err != nil {
		return reasoningPayload{}, false
	}
	if len(payload.Steps) == 0 {
		return reasoningPayload{}, false
	}
	payload.Confidence = clamp01(payload.Confidence)
	return payload, true
}

type verificationPayload struct {
	IsValid     bool `json:"is_valid"`
	Corrections []struct {
		Step    int    `json:"step"`
		Outcome string `json:"outcome"`
	} `json:"corrections"`
	Conclusion string  `json:"conclusion"`
	Confidence float64 `json:"confidence"`
}

// parseVerification decodes a verification pass. ok is false on any
// decode failure, which leaves the draft untouched.
func parseVerification(raw string) (verificationPayload, bool) {
	trimmed := extractJSON(raw)
	if !strings.HasPrefix(strings.TrimSpace(trimmed), "{") {
		return verificationPayload{}, false
	}
	var payload verificationPayload
	if err := json.Unmarshal([]byte(trimmed), &payload); err != nil {
		return verificationPayload{}, false
	}
	payload.Confidence = clamp01(payload.Confidence)
	return payload, true
}
