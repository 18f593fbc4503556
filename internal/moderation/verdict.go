package moderation

import "time"

// Category identifies a harm category reported by the general-purpose
// classifier. The set of known categories is closed; wire keys outside it are
// preserved verbatim so no score is silently dropped, but all policy lookups
// go through the typed constants.
type Category string

const (
	CategorySexual               Category = "sexual"
	CategorySexualMinors         Category = "sexual/minors"
	CategoryHarassment           Category = "harassment"
	CategoryHarassmentThreats    Category = "harassment/threatening"
	CategoryHate                 Category = "hate"
	CategoryHateThreats          Category = "hate/threatening"
	CategoryIllicit              Category = "illicit"
	CategoryIllicitViolent       Category = "illicit/violent"
	CategorySelfHarm             Category = "self-harm"
	CategorySelfHarmIntent       Category = "self-harm/intent"
	CategorySelfHarmInstructions Category = "self-harm/instructions"
	CategoryViolence             Category = "violence"
	CategoryViolenceGraphic      Category = "violence/graphic"
)

var knownCategories = map[Category]bool{
	CategorySexual:               true,
	CategorySexualMinors:         true,
	CategoryHarassment:           true,
	CategoryHarassmentThreats:    true,
	CategoryHate:                 true,
	CategoryHateThreats:          true,
	CategoryIllicit:              true,
	CategoryIllicitViolent:       true,
	CategorySelfHarm:             true,
	CategorySelfHarmIntent:       true,
	CategorySelfHarmInstructions: true,
	CategoryViolence:             true,
	CategoryViolenceGraphic:      true,
}

// ParseCategory maps a wire category name to its typed value. The second
// return reports whether the name is in the known set.
func ParseCategory(name string) (Category, bool) {
	c := Category(name)
	return c, knownCategories[c]
}

// ClassifierVerdict is the normalized outcome of one remote classifier call.
// Available=false means the call failed or timed out; every other field is
// then meaningless and must not be consulted by fusion rules.
type ClassifierVerdict struct {
	Available bool                 `json:"available"`
	Flagged   bool                 `json:"flagged"`
	Label     string               `json:"label,omitempty"`
	Score     float64              `json:"score"`
	Scores    map[Category]float64 `json:"scores,omitempty"`
}

// Unavailable returns the sentinel verdict for a failed classifier call.
func Unavailable() ClassifierVerdict {
	return ClassifierVerdict{}
}

// CategoryScore returns the score for a category, or 0 when absent.
func (v ClassifierVerdict) CategoryScore(c Category) float64 {
	return v.Scores[c]
}

// Reason identifies the terminal fusion rule that produced a decision.
type Reason string

const (
	ReasonRegexSensitive           Reason = "REGEX_SENSITIVE"
	ReasonHighConfidenceMinors     Reason = "HIGH_CONFIDENCE_MINORS"
	ReasonBothClassifiersAgree     Reason = "BOTH_CLASSIFIERS_AGREE"
	ReasonFallbackSingleClassifier Reason = "FALLBACK_SINGLE_CLASSIFIER"
	ReasonFallbackRegexOnly        Reason = "FALLBACK_REGEX_ONLY"
	ReasonClean                    Reason = "CLEAN"
)

// FusedDecision is the single, immutable outcome of the fusion engine for
// one message. It carries the evidence that contributed to the verdict so
// the response, the audit trail and the alerting path all describe the same
// decision.
type FusedDecision struct {
	Blocked     bool    `json:"blocked"`
	Reason      Reason  `json:"reason"`
	Probability float64 `json:"probability,omitempty"`

	// BlockReason is the human-readable branch description carried on the
	// combined-verdict path ("Both APIs flagged content", the fallback
	// variants, or "No content flagged").
	BlockReason string `json:"block_reason,omitempty"`

	Underage    bool              `json:"underage"`
	General     ClassifierVerdict `json:"general"`
	Specialized ClassifierVerdict `json:"specialized"`

	// GeneralRan / SpecializedRan record which remote calls were actually
	// issued, distinguishing the short-circuit and early-exit paths from
	// the full pipeline.
	GeneralRan     bool `json:"general_ran"`
	SpecializedRan bool `json:"specialized_ran"`
}

// DecisionRecord is a fused decision paired with its request identity, as
// emitted on the audit side channels (NATS, Postgres).
type DecisionRecord struct {
	ID       string        `json:"id"`
	Message  string        `json:"message"`
	Decision FusedDecision `json:"decision"`
	At       time.Time     `json:"at"`
}
