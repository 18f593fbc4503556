package classifier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/whisper/moderation-api/internal/metrics"
	"github.com/whisper/moderation-api/internal/moderation"
	"github.com/whisper/moderation-api/internal/notify"
)

const (
	// RiskLabel is the label the custom model assigns to sexual content
	// involving minors.
	RiskLabel = "S3"

	// SpecializedThreshold is the minimum score (inclusive) at which an
	// S3-labeled prediction counts as flagged.
	SpecializedThreshold = 0.60
)

// SpecializedConfig holds settings for the custom binary classifier.
type SpecializedConfig struct {
	Endpoint  string
	AuthToken string
	Timeout   time.Duration
}

// DefaultSpecializedConfig returns defaults; Endpoint and AuthToken must be
// set by the caller.
func DefaultSpecializedConfig() SpecializedConfig {
	return SpecializedConfig{Timeout: DefaultTimeout}
}

// Specialized adapts the custom-trained binary classifier. Flagged means the
// prediction carried RiskLabel with a score at or above SpecializedThreshold.
type Specialized struct {
	config   SpecializedConfig
	client   *http.Client
	notifier notify.Notifier
}

// NewSpecialized returns a Specialized adapter. notifier may be nil to
// disable the pre-fusion informational notifications.
func NewSpecialized(config SpecializedConfig, notifier notify.Notifier) *Specialized {
	return &Specialized{
		config:   config,
		client:   &http.Client{Timeout: config.Timeout},
		notifier: notifier,
	}
}

// prediction is one (label, score) pair from the custom model. The endpoint
// returns an array with a single element.
type prediction struct {
	Label string  `json:"label"`
	Score float64 `json:"score"`
}

// Classify scores raw with the custom model. It never returns an error; any
// failure yields an unavailable verdict.
func (s *Specialized) Classify(ctx context.Context, raw string) moderation.ClassifierVerdict {
	ctx, cancel := context.WithTimeout(ctx, s.config.Timeout)
	defer cancel()

	body, err := json.Marshal(map[string]string{"inputs": moderation.Normalize(raw)})
	if err != nil {
		return s.unavailable(fmt.Errorf("marshal request: %w", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.config.Endpoint, bytes.NewReader(body))
	if err != nil {
		return s.unavailable(fmt.Errorf("build request: %w", err))
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+s.config.AuthToken)
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return s.unavailable(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return s.unavailable(fmt.Errorf("unexpected status %s", resp.Status))
	}

	var predictions []prediction
	if err := json.NewDecoder(resp.Body).Decode(&predictions); err != nil {
		return s.unavailable(fmt.Errorf("decode response: %w", err))
	}
	if len(predictions) == 0 {
		return s.unavailable(fmt.Errorf("empty prediction list"))
	}
	p := predictions[0]

	isRiskLabel := p.Label == RiskLabel
	flagged := isRiskLabel && p.Score >= SpecializedThreshold

	verdict := moderation.ClassifierVerdict{
		Available: true,
		Flagged:   flagged,
		Label:     p.Label,
		Score:     p.Score,
	}

	switch {
	case flagged:
		log.Printf("[custom] FLAGGED label=%s score=%.4f", p.Label, p.Score)
		s.notifyPrediction(ctx, raw, p, "Custom Moderation - might need to be blocked", "Blocked")
	case isRiskLabel:
		// Below-threshold S3 predictions are still reported so the audit
		// trail shows near misses.
		log.Printf("[custom] passed label=%s score=%.4f (below threshold)", p.Label, p.Score)
		s.notifyPrediction(ctx, raw, p, "Custom Moderation - passed but has S3 content", "Passed (below threshold)")
	default:
		log.Printf("[custom] passed label=%s score=%.4f", p.Label, p.Score)
	}

	return verdict
}

// notifyPrediction sends the informational pre-fusion notification for a
// prediction, if a notifier is configured.
func (s *Specialized) notifyPrediction(ctx context.Context, raw string, p prediction, title, status string) {
	if s.notifier == nil {
		return
	}
	s.notifier.Notify(ctx, title, []notify.Field{
		{Name: "Content", Value: raw},
		{Name: "Score", Value: formatScore(p.Score)},
		{Name: "Label", Value: p.Label},
		{Name: "Status", Value: status},
	}, notify.SeverityInfo)
}

// unavailable logs the failure, bumps the error counter and returns the
// sentinel verdict.
func (s *Specialized) unavailable(err error) moderation.ClassifierVerdict {
	log.Printf("[custom] moderation call failed: %v", err)
	metrics.ClassifierErrorsTotal.WithLabelValues("custom").Inc()
	return moderation.Unavailable()
}
