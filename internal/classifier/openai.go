// Package classifier wraps the two remote scoring services behind a common
// never-fail contract: every transport, protocol or decode failure is caught
// at the adapter boundary and converted to an unavailable verdict. Adapters
// apply the kinship normalization to their wire input and keep the raw
// message for logging and notification evidence.
package classifier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/whisper/moderation-api/internal/metrics"
	"github.com/whisper/moderation-api/internal/moderation"
	"github.com/whisper/moderation-api/internal/notify"
)

// DefaultTimeout bounds each remote classifier call. Expiry is treated
// exactly like a transport error: the verdict comes back unavailable.
const DefaultTimeout = 10 * time.Second

// GeneralConfig holds settings for the general-purpose moderation model.
type GeneralConfig struct {
	APIKey  string
	BaseURL string        // https://api.openai.com/v1
	Model   string        // omni-moderation-latest
	Timeout time.Duration // per-call timeout
}

// DefaultGeneralConfig returns production defaults; only APIKey must be set.
func DefaultGeneralConfig() GeneralConfig {
	return GeneralConfig{
		BaseURL: "https://api.openai.com/v1",
		Model:   "omni-moderation-latest",
		Timeout: DefaultTimeout,
	}
}

// General adapts the remote multi-category moderation model. Flagged means
// the sexual/minors category boolean came back true.
type General struct {
	config   GeneralConfig
	client   *http.Client
	notifier notify.Notifier
}

// NewGeneral returns a General adapter. notifier may be nil to disable the
// pre-fusion informational notifications.
func NewGeneral(config GeneralConfig, notifier notify.Notifier) *General {
	return &General{
		config:   config,
		client:   &http.Client{Timeout: config.Timeout},
		notifier: notifier,
	}
}

// moderationsRequest is the wire request of the moderations endpoint.
type moderationsRequest struct {
	Model string `json:"model"`
	Input string `json:"input"`
}

// moderationsResponse is the subset of the wire response the policy needs.
type moderationsResponse struct {
	Results []struct {
		Flagged        bool               `json:"flagged"`
		Categories     map[string]bool    `json:"categories"`
		CategoryScores map[string]float64 `json:"category_scores"`
	} `json:"results"`
}

// Classify scores raw with the remote model. It never returns an error; any
// failure yields an unavailable verdict.
func (g *General) Classify(ctx context.Context, raw string) moderation.ClassifierVerdict {
	ctx, cancel := context.WithTimeout(ctx, g.config.Timeout)
	defer cancel()

	body, err := json.Marshal(moderationsRequest{
		Model: g.config.Model,
		Input: moderation.Normalize(raw),
	})
	if err != nil {
		return g.unavailable(fmt.Errorf("marshal request: %w", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.config.BaseURL+"/moderations", bytes.NewReader(body))
	if err != nil {
		return g.unavailable(fmt.Errorf("build request: %w", err))
	}
	req.Header.Set("Authorization", "Bearer "+g.config.APIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.client.Do(req)
	if err != nil {
		return g.unavailable(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return g.unavailable(fmt.Errorf("unexpected status %s", resp.Status))
	}

	var decoded moderationsResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return g.unavailable(fmt.Errorf("decode response: %w", err))
	}
	if len(decoded.Results) == 0 {
		return g.unavailable(fmt.Errorf("empty results"))
	}
	result := decoded.Results[0]

	scores := make(map[moderation.Category]float64, len(result.CategoryScores))
	for name, score := range result.CategoryScores {
		// Unknown wire categories are preserved under their raw name so no
		// score is silently dropped; policy lookups use the typed constants.
		c, _ := moderation.ParseCategory(name)
		scores[c] = score
	}

	minorsScore := scores[moderation.CategorySexualMinors]
	hasMinors := result.Categories[string(moderation.CategorySexualMinors)]

	verdict := moderation.ClassifierVerdict{
		Available: true,
		Flagged:   hasMinors,
		Score:     minorsScore,
		Scores:    scores,
	}

	if hasMinors {
		log.Printf("[openai] FLAGGED minors score=%.4f", minorsScore)
		if g.notifier != nil {
			g.notifier.Notify(ctx, "OpenAI Moderation - might need to be blocked", []notify.Field{
				{Name: "Content", Value: raw},
				{Name: "Sexual/Minors Score", Value: formatScore(minorsScore)},
				{Name: "Categories", Value: formatScores(result.CategoryScores)},
			}, notify.SeverityInfo)
		}
	} else {
		log.Printf("[openai] passed, minors score=%.4f", minorsScore)
	}

	return verdict
}

// unavailable logs the failure, bumps the error counter and returns the
// sentinel verdict.
func (g *General) unavailable(err error) moderation.ClassifierVerdict {
	log.Printf("[openai] moderation call failed: %v", err)
	metrics.ClassifierErrorsTotal.WithLabelValues("openai").Inc()
	return moderation.Unavailable()
}

// formatScore renders a score for notification fields.
func formatScore(score float64) string {
	return strconv.FormatFloat(score, 'g', -1, 64)
}

// formatScores renders a raw score map as compact JSON for notification
// fields; on marshal failure it falls back to the fmt representation.
func formatScores(scores map[string]float64) string {
	b, err := json.Marshal(scores)
	if err != nil {
		return fmt.Sprintf("%v", scores)
	}
	return string(b)
}
