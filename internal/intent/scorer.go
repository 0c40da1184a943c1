package intent

import "strings"

// Config tunes classification scoring and fallback escalation. Zero
// values are replaced with defaults by the constructors that accept a
// Config.
type Config struct {
	// SimilarityThreshold is the minimum cosine similarity for a
	// candidate to count as a match when neither the caller nor the
	// model supplies one.
	SimilarityThreshold float64

	// HighConfidenceThreshold marks results safe to act on without
	// caution.
	HighConfidenceThreshold float64

	// MismatchThreshold marks results weak enough to send straight to
	// fallback.
	MismatchThreshold float64

	// AmbiguityMargin is the confidence differential below which the
	// top two candidates are considered ambiguous.
	AmbiguityMargin float64

	// Weights for the confidence blend. They need not sum to 1; the
	// blended score is clamped.
	SemanticWeight float64
	ContextWeight  float64
	HistoryWeight  float64

	// ContextBoostFactor is added when the candidate intent was
	// recently detected in the same conversation; half of it is added
	// for a related intent.
	ContextBoostFactor float64

	// MaxConfidence caps the boosted confidence.
	MaxConfidence float64

	// HistoryWindow is how many recent detections feed historical
	// accuracy.
	HistoryWindow int

	// Fallback tuning.
	MaxAlternatives      int
	MaxClarifyQuestions  int
	GeneralizedThreshold float64
	PartialThreshold     float64
}

// DefaultConfig returns the stock tuning.
func DefaultConfig() Config {
	return Config{
		SimilarityThreshold:     0.5,
		HighConfidenceThreshold: 0.85,
		MismatchThreshold:       0.3,
		AmbiguityMargin:         0.15,
		SemanticWeight:          0.6,
		ContextWeight:           0.25,
		HistoryWeight:           0.15,
		ContextBoostFactor:      0.2,
		MaxConfidence:           1.0,
		HistoryWindow:           10,
		MaxAlternatives:         3,
		MaxClarifyQuestions:     2,
		GeneralizedThreshold:    0.6,
		PartialThreshold:        0.5,
	}
}

// withDefaults fills zero-valued fields from DefaultConfig so partial
// configs behave sanely.
func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.SimilarityThreshold <= 0 {
		c.SimilarityThreshold = d.SimilarityThreshold
	}
	if c.HighConfidenceThreshold <= 0 {
		c.HighConfidenceThreshold = d.HighConfidenceThreshold
	}
	if c.MismatchThreshold <= 0 {
		c.MismatchThreshold = d.MismatchThreshold
	}
	if c.AmbiguityMargin <= 0 {
		c.AmbiguityMargin = d.AmbiguityMargin
	}
	if c.SemanticWeight <= 0 {
		c.SemanticWeight = d.SemanticWeight
	}
	if c.ContextWeight <= 0 {
		c.ContextWeight = d.ContextWeight
	}
	if c.HistoryWeight <= 0 {
		c.HistoryWeight = d.HistoryWeight
	}
	if c.ContextBoostFactor <= 0 {
		c.ContextBoostFactor = d.ContextBoostFactor
	}
	if c.MaxConfidence <= 0 {
		c.MaxConfidence = d.MaxConfidence
	}
	if c.HistoryWindow <= 0 {
		c.HistoryWindow = d.HistoryWindow
	}
	if c.MaxAlternatives <= 0 {
		c.MaxAlternatives = d.MaxAlternatives
	}
	if c.MaxClarifyQuestions <= 0 {
		c.MaxClarifyQuestions = d.MaxClarifyQuestions
	}
	if c.GeneralizedThreshold <= 0 {
		c.GeneralizedThreshold = d.GeneralizedThreshold
	}
	if c.PartialThreshold <= 0 {
		c.PartialThreshold = d.PartialThreshold
	}
	return c
}

// A contextual boost is never allowed past this, no matter how the
// factor is configured.
const maxContextualBoost = 0.5

// How many recent detections are eligible for a contextual boost.
const boostDetectionWindow = 3

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// backReferenceWords are pronouns and deictic words that usually mean
// the query leans on an earlier turn.
var backReferenceWords = map[string]struct{}{
	"it": {}, "that": {}, "this": {}, "they": {}, "them": {},
	"those": {}, "these": {}, "one": {}, "same": {}, "again": {},
}

var backReferencePrefixes = []string{
	"what about", "how about", "and the", "also ",
}

// hasBackReference reports whether the query looks like a follow-up to
// an earlier turn rather than a self-contained question.
func hasBackReference(query string) bool {
	lower := strings.ToLower(strings.TrimSpace(query))
	for _, prefix := range backReferencePrefixes {
		if strings.HasPrefix(lower, prefix) {
			return true
		}
	}
	for _, tok := range strings.Fields(lower) {
		tok = strings.Trim(tok, ".,!?;:\"'")
		if _, ok := backReferenceWords[tok]; ok {
			return true
		}
	}
	return false
}

// contextRelevance scores how much the conversation so far should
// influence this query. Follow-up shaped queries (back-references or
// three tokens or fewer) score 0.8, ordinary continuations 0.4, a
// conversation with a single prior turn 0.2, and no history 0.
func contextRelevance(query string, history []Message) float64 {
	if len(history) == 0 {
		return 0.0
	}
	if hasBackReference(query) || len(strings.Fields(query)) <= 3 {
		return 0.8
	}
	if len(history) == 1 {
		return 0.2
	}
	return 0.4
}

// historicalAccuracy is the share of the last few detections that
// named this intent, discounted when fewer than five detections exist.
func historicalAccuracy(intentName string, detections []Detection, window int) float64 {
	if window <= 0 || len(detections) == 0 {
		return 0
	}
	n := window
	if len(detections) < n {
		n = len(detections)
	}

	name := normalizeName(intentName)
	count := 0
	for i := len(detections) - n; i < len(detections); i++ {
		if normalizeName(detections[i].Intent) == name {
			count++
		}
	}

	rate := float64(count) / float64(n)
	scale := float64(n) / 5.0
	if scale > 1 {
		scale = 1
	}
	return rate * scale
}

// contextualBoost rewards candidates the conversation has recently
// settled on. An exact reappearance earns the full factor, a parent or
// child relation half of it.
func contextualBoost(def *Definition, detections []Detection, factor float64) float64 {
	if factor <= 0 || len(detections) == 0 {
		return 0
	}

	recent := detections
	if len(recent) > boostDetectionWindow {
		recent = recent[len(recent)-boostDetectionWindow:]
	}

	name := normalizeName(def.Name)
	for _, det := range recent {
		if normalizeName(det.Intent) == name {
			return capBoost(factor)
		}
	}
	for _, det := range recent {
		if def.relatedTo(det.Intent) {
			return capBoost(factor / 2)
		}
	}
	return 0
}

func capBoost(boost float64) float64 {
	if boost > maxContextualBoost {
		return maxContextualBoost
	}
	if boost < 0 {
		return 0
	}
	return boost
}

// scoreMatch blends semantic similarity, context relevance, and
// historical accuracy into a final confidence with any contextual
// boost applied. RawScore keeps the pre-boost value.
func scoreMatch(cfg Config, def *Definition, similarity float64, example string, ctxRel float64, detections []Detection) Match {
	hist := historicalAccuracy(def.Name, detections, cfg.HistoryWindow)
	raw := clamp01(similarity*cfg.SemanticWeight + ctxRel*cfg.ContextWeight + hist*cfg.HistoryWeight)
	boost := contextualBoost(def, detections, cfg.ContextBoostFactor)

	confidence := raw + boost
	if confidence > cfg.MaxConfidence {
		confidence = cfg.MaxConfidence
	}
	confidence = clamp01(confidence)

	return Match{
		Intent:             def.Name,
		MatchedExample:     example,
		Similarity:         similarity,
		ContextRelevance:   ctxRel,
		HistoricalAccuracy: hist,
		ContextualBoost:    boost,
		RawScore:           raw,
		Confidence:         confidence,
	}
}
