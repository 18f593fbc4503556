package moderation

import (
	"context"
	"testing"
)

// stubClassifier returns a fixed verdict and records whether it was called.
type stubClassifier struct {
	verdict ClassifierVerdict
	called  bool
}

func (s *stubClassifier) Classify(_ context.Context, _ string) ClassifierVerdict {
	s.called = true
	return s.verdict
}

// panicClassifier fails the test if it is ever invoked.
type panicClassifier struct {
	t *testing.T
}

func (p *panicClassifier) Classify(_ context.Context, _ string) ClassifierVerdict {
	p.t.Fatal("classifier invoked on a path that must not call it")
	return ClassifierVerdict{}
}

func available(flagged bool, minorsScore float64) ClassifierVerdict {
	return ClassifierVerdict{
		Available: true,
		Flagged:   flagged,
		Score:     minorsScore,
		Scores:    map[Category]float64{CategorySexualMinors: minorsScore},
	}
}

func TestModerate_SensitiveShortCircuit(t *testing.T) {
	// Both classifiers are wired to fail the test: a sensitive-pattern match
	// must decide without any remote call.
	e := NewEngine(&panicClassifier{t}, &panicClassifier{t})

	d := e.Moderate(context.Background(), "explicit coprophilia content")

	if !d.Blocked {
		t.Fatal("expected block on sensitive pattern match")
	}
	if d.Reason != ReasonRegexSensitive {
		t.Errorf("Reason = %s, want %s", d.Reason, ReasonRegexSensitive)
	}
	if d.Probability != 1 {
		t.Errorf("Probability = %v, want 1", d.Probability)
	}
	if d.GeneralRan || d.SpecializedRan {
		t.Error("no classifier call should have been recorded")
	}
}

func TestModerate_HighConfidenceBlock(t *testing.T) {
	gen := &stubClassifier{verdict: available(true, 0.995)}
	spec := &panicClassifier{t}
	e := NewEngine(gen, spec)

	d := e.Moderate(context.Background(), "some risky message")

	if !d.Blocked || d.Reason != ReasonHighConfidenceMinors {
		t.Fatalf("got blocked=%v reason=%s, want high-confidence block", d.Blocked, d.Reason)
	}
	if d.Probability != 0.995 {
		t.Errorf("Probability = %v, want the minors score 0.995", d.Probability)
	}
}

func TestModerate_HighConfidenceCutoffIsExclusive(t *testing.T) {
	// A score exactly at the cutoff does not trigger the high-confidence
	// block; it falls through to the combined path.
	gen := &stubClassifier{verdict: available(true, HighConfidenceCutoff)}
	spec := &stubClassifier{verdict: available(false, 0)}
	e := NewEngine(gen, spec)

	d := e.Moderate(context.Background(), "borderline message")

	if d.Reason == ReasonHighConfidenceMinors {
		t.Error("score equal to the cutoff must not block as high-confidence")
	}
	if !spec.called {
		t.Error("expected the specialized classifier to be consulted")
	}
}

func TestModerate_CleanEarlyExit(t *testing.T) {
	gen := &stubClassifier{verdict: available(false, 0.01)}
	spec := &panicClassifier{t}
	e := NewEngine(gen, spec)

	d := e.Moderate(context.Background(), "what are your hobbies?")

	if d.Blocked {
		t.Fatal("clean message was blocked")
	}
	if d.Reason != ReasonClean {
		t.Errorf("Reason = %s, want %s", d.Reason, ReasonClean)
	}
	if d.SpecializedRan {
		t.Error("specialized classifier must be skipped on the early-exit path")
	}
}

func TestModerate_UnderageCueDefeatsEarlyExit(t *testing.T) {
	// General is clean, but the raw text carries an underage cue: the
	// specialized classifier must still be consulted.
	gen := &stubClassifier{verdict: available(false, 0.01)}
	spec := &stubClassifier{verdict: available(false, 0)}
	e := NewEngine(gen, spec)

	d := e.Moderate(context.Background(), "story about a 12 year old")

	if !spec.called {
		t.Fatal("specialized classifier was skipped despite underage cue")
	}
	if d.Blocked {
		t.Error("nothing flagged, expected approve")
	}
}

func TestFuse_AvailabilityMatrix(t *testing.T) {
	// Exhaustive availability table for the combined path. The message
	// carries an underage cue in the variants that need one, so the
	// fallback branches are observable.
	underageMsg := "about a 12 year old"
	cleanMsg := "about a grown adult stranger"

	tests := []struct {
		name        string
		msg         string
		general     ClassifierVerdict
		specialized ClassifierVerdict
		blocked     bool
		reason      Reason
		blockReason string
	}{
		{
			name:        "both available both flagged",
			msg:         cleanMsg,
			general:     available(true, 0.7),
			specialized: available(true, 0.9),
			blocked:     true,
			reason:      ReasonBothClassifiersAgree,
			blockReason: BlockReasonBothFlagged,
		},
		{
			name:        "both available specialized flagged with underage cue",
			msg:         underageMsg,
			general:     available(false, 0.2),
			specialized: available(true, 0.9),
			blocked:     true,
			reason:      ReasonBothClassifiersAgree,
			blockReason: BlockReasonBothFlagged,
		},
		{
			name:        "both available only specialized flagged no cue",
			msg:         cleanMsg,
			general:     available(true, 0.7), // flagged=true forces past early exit
			specialized: available(false, 0.1),
			blocked:     false,
			reason:      ReasonClean,
			blockReason: BlockReasonNoneFlagged,
		},
		{
			name:        "general unavailable underage cue blocks",
			msg:         underageMsg,
			general:     Unavailable(),
			specialized: available(true, 0.9),
			blocked:     true,
			reason:      ReasonFallbackRegexOnly,
			blockReason: BlockReasonGeneralUnavailable,
		},
		{
			name: "general unavailable specialized flag alone does not block",
			// Scenario C: the asymmetry is intentional and preserved.
			msg:         cleanMsg,
			general:     Unavailable(),
			specialized: available(true, 0.9),
			blocked:     false,
			reason:      ReasonClean,
			blockReason: BlockReasonGeneralUnavailable,
		},
		{
			name:        "specialized unavailable general flag blocks",
			msg:         cleanMsg,
			general:     available(true, 0.5),
			specialized: Unavailable(),
			blocked:     true,
			reason:      ReasonFallbackSingleClassifier,
			blockReason: BlockReasonCustomUnavailable,
		},
		{
			name:        "specialized unavailable general clean with cue approves",
			msg:         underageMsg,
			general:     available(false, 0.1),
			specialized: Unavailable(),
			blocked:     false,
			reason:      ReasonClean,
			blockReason: BlockReasonCustomUnavailable,
		},
		{
			name:        "both unavailable underage cue blocks",
			msg:         underageMsg,
			general:     Unavailable(),
			specialized: Unavailable(),
			blocked:     true,
			reason:      ReasonFallbackRegexOnly,
			blockReason: BlockReasonBothUnavailable,
		},
		{
			name:        "both unavailable no cue approves",
			msg:         cleanMsg,
			general:     Unavailable(),
			specialized: Unavailable(),
			blocked:     false,
			reason:      ReasonClean,
			blockReason: BlockReasonBothUnavailable,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := NewEngine(
				&stubClassifier{verdict: tt.general},
				&stubClassifier{verdict: tt.specialized},
			)

			d := e.Moderate(context.Background(), tt.msg)

			if d.Blocked != tt.blocked {
				t.Errorf("Blocked = %v, want %v", d.Blocked, tt.blocked)
			}
			if d.Reason != tt.reason {
				t.Errorf("Reason = %s, want %s", d.Reason, tt.reason)
			}
			if d.BlockReason != tt.blockReason {
				t.Errorf("BlockReason = %q, want %q", d.BlockReason, tt.blockReason)
			}
			if !d.SpecializedRan {
				t.Error("combined path must record the specialized call")
			}
		})
	}
}

func TestModerate_BlockInvariant(t *testing.T) {
	// A blocked decision must always trace back to at least one available
	// asserting signal; approve-only inputs can never block.
	e := NewEngine(
		&stubClassifier{verdict: available(false, 0)},
		&stubClassifier{verdict: available(false, 0)},
	)

	d := e.Moderate(context.Background(), "completely ordinary message")
	if d.Blocked {
		t.Fatal("blocked with no asserting verdict")
	}
}

func TestParseCategory(t *testing.T) {
	if c, ok := ParseCategory("sexual/minors"); !ok || c != CategorySexualMinors {
		t.Errorf("ParseCategory(sexual/minors) = %v, %v", c, ok)
	}
	if _, ok := ParseCategory("made-up-category"); ok {
		t.Error("unknown category reported as known")
	}
}
