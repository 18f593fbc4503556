package moderation

import (
	"context"
	"log"
)

// Decision thresholds. HighConfidenceCutoff is exclusive (a score must
// exceed it); the specialized classifier's own threshold lives in the
// adapter because it defines that classifier's Flagged bit.
const (
	// HighConfidenceCutoff is the general classifier's minors score above
	// which content is blocked without consulting the specialized model.
	HighConfidenceCutoff = 0.98
)

// Block reason strings carried on the combined-verdict path. Wire-visible;
// do not reword.
const (
	BlockReasonBothFlagged        = "Both APIs flagged content"
	BlockReasonNoneFlagged        = "No content flagged"
	BlockReasonGeneralUnavailable = "Custom API flagged or regex flagged content due to OpenAI not available"
	BlockReasonCustomUnavailable  = "OpenAI flagged content due to Custom Moderation not available"
	BlockReasonBothUnavailable    = "Underage regex flagged content due to both APIs not available"
)

// Classifier scores a message. Implementations apply Normalize to the text
// before sending it to their remote model (the raw form is kept for
// notification evidence), and never return an error: remote failures surface
// as a verdict with Available=false.
type Classifier interface {
	Classify(ctx context.Context, raw string) ClassifierVerdict
}

// Engine fuses the lexical layer with the two classifier verdicts.
// It is stateless across requests and safe for concurrent use.
type Engine struct {
	general     Classifier
	specialized Classifier
}

// NewEngine returns an Engine backed by the given classifiers. The general
// classifier is the cheap multi-category model consulted first; the
// specialized one is the custom binary model consulted only when needed.
func NewEngine(general, specialized Classifier) *Engine {
	return &Engine{general: general, specialized: specialized}
}

// state carries the per-request inputs and accumulated verdicts through the
// rule chain.
type state struct {
	raw      string
	underage bool

	general     ClassifierVerdict
	generalRan  bool
	specialized ClassifierVerdict
	specRan     bool
}

// rule evaluates one policy step. It returns a terminal decision and true,
// or false to pass control to the next rule. Rules run in a fixed order and
// the first terminal rule wins, so each step is testable on its own.
type rule func(ctx context.Context, st *state) (FusedDecision, bool)

// Moderate produces the fused decision for a raw message. Pattern matching
// always sees the raw text; the classifier adapters apply the kinship
// normalization to their own wire input.
func (e *Engine) Moderate(ctx context.Context, raw string) FusedDecision {
	st := &state{
		raw:      raw,
		underage: MatchUnderage(raw),
	}

	rules := []rule{
		e.sensitiveShortCircuit,
		e.highConfidenceGeneral,
		e.cleanEarlyExit,
		e.combineVerdicts,
	}

	for _, r := range rules {
		if d, done := r(ctx, st); done {
			return d
		}
	}

	// combineVerdicts is always terminal; this is unreachable.
	return st.decision(false, ReasonClean, BlockReasonNoneFlagged)
}

// sensitiveShortCircuit blocks immediately on an explicit bestiality or
// coprophilia match. Probability 1, no remote call made: the match is both a
// latency/cost saving and a safety net independent of the remote models.
func (e *Engine) sensitiveShortCircuit(_ context.Context, st *state) (FusedDecision, bool) {
	if !MatchSensitive(st.raw) {
		return FusedDecision{}, false
	}
	log.Printf("[fusion] sensitive pattern match, blocking without classifier calls")
	d := st.decision(true, ReasonRegexSensitive, "")
	d.Probability = 1
	return d, true
}

// highConfidenceGeneral invokes the general classifier and blocks when its
// minors score exceeds HighConfidenceCutoff.
func (e *Engine) highConfidenceGeneral(ctx context.Context, st *state) (FusedDecision, bool) {
	st.general = e.general.Classify(ctx, st.raw)
	st.generalRan = true

	score := st.general.CategoryScore(CategorySexualMinors)
	if st.general.Available && score > HighConfidenceCutoff {
		log.Printf("[fusion] high-confidence block, minors score=%.4f", score)
		d := st.decision(true, ReasonHighConfidenceMinors, "")
		d.Probability = score
		return d, true
	}
	return FusedDecision{}, false
}

// cleanEarlyExit approves without the specialized call when the general
// verdict is available and clean and no underage lexical cue is present.
// This skips the more expensive model on the vast majority of traffic.
func (e *Engine) cleanEarlyExit(_ context.Context, st *state) (FusedDecision, bool) {
	if st.general.Available && !st.general.Flagged && !st.underage {
		return st.decision(false, ReasonClean, ""), true
	}
	return FusedDecision{}, false
}

// combineVerdicts invokes the specialized classifier and resolves every
// availability combination. There is no undefined fallback state: all four
// combinations of {general, specialized} x {available, unavailable} map to
// an explicit outcome.
func (e *Engine) combineVerdicts(ctx context.Context, st *state) (FusedDecision, bool) {
	st.specialized = e.specialized.Classify(ctx, st.raw)
	st.specRan = true

	gen, spec := st.general, st.specialized

	switch {
	case gen.Available && spec.Available:
		blocked := (spec.Flagged && gen.Flagged) || (spec.Flagged && st.underage)
		if blocked {
			return st.decision(true, ReasonBothClassifiersAgree, BlockReasonBothFlagged), true
		}
		return st.decision(false, ReasonClean, BlockReasonNoneFlagged), true

	case !gen.Available && spec.Available:
		// The specialized flag alone is deliberately not trusted here;
		// only the underage lexical cue blocks.
		log.Printf("[fusion] general classifier unavailable, falling back to underage pattern")
		if st.underage {
			return st.decision(true, ReasonFallbackRegexOnly, BlockReasonGeneralUnavailable), true
		}
		return st.decision(false, ReasonClean, BlockReasonGeneralUnavailable), true

	case gen.Available && !spec.Available:
		log.Printf("[fusion] specialized classifier unavailable, falling back to general verdict")
		if gen.Flagged {
			return st.decision(true, ReasonFallbackSingleClassifier, BlockReasonCustomUnavailable), true
		}
		return st.decision(false, ReasonClean, BlockReasonCustomUnavailable), true

	default:
		log.Printf("[fusion] both classifiers unavailable, falling back to underage pattern")
		if st.underage {
			return st.decision(true, ReasonFallbackRegexOnly, BlockReasonBothUnavailable), true
		}
		return st.decision(false, ReasonClean, BlockReasonBothUnavailable), true
	}
}

// decision materializes a FusedDecision from the current state.
func (st *state) decision(blocked bool, reason Reason, blockReason string) FusedDecision {
	return FusedDecision{
		Blocked:        blocked,
		Reason:         reason,
		BlockReason:    blockReason,
		Underage:       st.underage,
		General:        st.general,
		Specialized:    st.specialized,
		GeneralRan:     st.generalRan,
		SpecializedRan: st.specRan,
	}
}
