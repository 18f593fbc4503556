package server

import (
	"context"
	"encoding/json"
	"log"
	"net"
	"net/http"
	"strconv"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/whisper/moderation-api/internal/metrics"
	"github.com/whisper/moderation-api/internal/moderation"
	"github.com/whisper/moderation-api/internal/notify"
	"github.com/whisper/moderation-api/internal/ratelimit"
)

// Message validation limits.
const (
	maxMessageBytes = 4096
	maxMessageRunes = 2000
)

// Wire-visible response messages. Clients match on these strings.
const (
	msgHighRisk      = "High-risk content detected"
	msgApproved      = "Content approved"
	msgNotFlagged    = "No content flagged by OpenAI Moderation API"
	msgNoMessage     = "No message provided in the request body"
	msgInvalidBody   = "Invalid request body"
	msgTooLong       = "Message exceeds maximum length"
	msgInvalidUTF8   = "Message is not valid UTF-8"
	msgRateLimited   = "Rate limit exceeded"
	msgInternalError = "Internal server error during content moderation"
	msgHealthy       = "Text moderation API is operational"
)

// moderationRequest is the POST /moderate body. "inputs" is an accepted
// alias for "message"; "message" wins when both are present.
type moderationRequest struct {
	HealthCheck bool   `json:"health_check"`
	Message     string `json:"message"`
	Inputs      string `json:"inputs"`
}

// moderationResponse is the POST /moderate envelope. Pointer fields are
// omitted entirely on paths where the underlying evidence does not exist,
// rather than being serialized as zero values.
type moderationResponse struct {
	Message                 string      `json:"message"`
	IsFlagged               bool        `json:"is_flagged"`
	FlaggedType             string      `json:"flagged_type,omitempty"`
	Probability             *float64    `json:"probability,omitempty"`
	CustomScore             *float64    `json:"custom_score,omitempty"`
	CustomFlagged           *bool       `json:"custom_flagged,omitempty"`
	OpenAIFlagged           *bool       `json:"openai_flagged,omitempty"`
	OpenAISexualMinorsScore *float64    `json:"openai_sexual_minors_score,omitempty"`
	BlockReason             string      `json:"block_reason,omitempty"`
	Details                 interface{} `json:"details,omitempty"`
}

// handleModerate is the main moderation endpoint. It validates the request,
// runs the fusion pipeline, then fans the decision out to notifications and
// sinks before writing the response.
func (s *Server) handleModerate(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	defer func() {
		metrics.RequestDuration.Observe(time.Since(start).Seconds())
	}()

	// A classifier adapter or sink must never take the process down with it.
	defer func() {
		if rec := recover(); rec != nil {
			log.Printf("[server] panic during moderation: %v", rec)
			metrics.RequestsTotal.WithLabelValues("server_error").Inc()
			writeJSON(w, http.StatusInternalServerError, moderationResponse{Message: msgInternalError})
		}
	}()

	if r.Method != http.MethodPost {
		metrics.RequestsTotal.WithLabelValues("client_error").Inc()
		writeJSON(w, http.StatusMethodNotAllowed, moderationResponse{Message: "Method not allowed"})
		return
	}

	ctx := r.Context()

	if s.limiter != nil {
		allowed, _ := s.limiter.Allow(ctx, clientIP(r), ratelimit.RuleModerate)
		if !allowed {
			metrics.RequestsTotal.WithLabelValues("rate_limited").Inc()
			writeJSON(w, http.StatusTooManyRequests, moderationResponse{Message: msgRateLimited})
			return
		}
	}

	r.Body = http.MaxBytesReader(w, r.Body, s.config.MaxBodyBytes)

	var req moderationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		metrics.RequestsTotal.WithLabelValues("client_error").Inc()
		writeJSON(w, http.StatusBadRequest, moderationResponse{Message: msgInvalidBody})
		return
	}

	if req.HealthCheck {
		metrics.RequestsTotal.WithLabelValues("ok").Inc()
		writeJSON(w, http.StatusOK, struct {
			Status    string `json:"status"`
			Message   string `json:"message"`
			Timestamp string `json:"timestamp"`
		}{
			Status:    "ok",
			Message:   msgHealthy,
			Timestamp: time.Now().UTC().Format(time.RFC3339),
		})
		return
	}

	message := req.Message
	if message == "" {
		message = req.Inputs
	}
	if message == "" {
		metrics.RequestsTotal.WithLabelValues("client_error").Inc()
		writeJSON(w, http.StatusBadRequest, moderationResponse{Message: msgNoMessage})
		return
	}

	if errMsg := validateMessage(message); errMsg != "" {
		metrics.RequestsTotal.WithLabelValues("client_error").Inc()
		writeJSON(w, http.StatusBadRequest, moderationResponse{Message: errMsg})
		return
	}

	d := s.moderator.Moderate(ctx, message)

	metrics.DecisionsTotal.WithLabelValues(string(d.Reason)).Inc()
	if d.Blocked {
		metrics.BlockedTotal.Inc()
	}
	metrics.RequestsTotal.WithLabelValues("ok").Inc()

	s.notifyDecision(ctx, message, d)
	s.recordDecision(ctx, message, d)

	writeJSON(w, http.StatusOK, decisionResponse(d))
}

// validateMessage enforces the size and encoding limits. Returns the
// client-facing error message, or "" when the message is acceptable.
func validateMessage(message string) string {
	if len(message) > maxMessageBytes || utf8.RuneCountInString(message) > maxMessageRunes {
		return msgTooLong
	}
	if !utf8.ValidString(message) {
		return msgInvalidUTF8
	}
	return ""
}

// decisionResponse maps a fused decision onto the wire envelope. Each
// terminal pipeline path has its own shape; the combined path carries the
// full evidence set.
func decisionResponse(d moderation.FusedDecision) moderationResponse {
	switch {
	case d.Reason == moderation.ReasonRegexSensitive:
		p := 1.0
		return moderationResponse{
			Message:     msgHighRisk,
			IsFlagged:   true,
			FlaggedType: "sensitive_content_via_regex_match",
			Probability: &p,
			Details:     []string{"sensitive_content"},
		}

	case d.Reason == moderation.ReasonHighConfidenceMinors:
		p := d.Probability
		return moderationResponse{
			Message:     msgHighRisk,
			IsFlagged:   true,
			FlaggedType: string(moderation.CategorySexualMinors),
			Probability: &p,
			Details: map[string]interface{}{
				"reason":                     "High OpenAI confidence score",
				"openai_sexual_minors_score": d.Probability,
			},
		}

	case !d.SpecializedRan:
		// Clean early exit: the general classifier alone approved.
		return moderationResponse{Message: msgNotFlagged}

	default:
		resp := moderationResponse{
			Message:       msgApproved,
			IsFlagged:     d.Blocked,
			CustomScore:   floatPtr(d.Specialized.Score),
			CustomFlagged: boolPtr(d.Specialized.Flagged),
			OpenAIFlagged: boolPtr(d.General.Flagged),
			BlockReason:   d.BlockReason,
		}
		if d.General.Available {
			resp.OpenAISexualMinorsScore = floatPtr(d.General.CategoryScore(moderation.CategorySexualMinors))
		}
		if d.Blocked {
			resp.Message = msgHighRisk
			details := []string{"Custom API Score: " + formatScore(d.Specialized.Score)}
			if d.General.Available {
				details = append(details, "OpenAI Sexual/Minors Score: "+formatScore(d.General.CategoryScore(moderation.CategorySexualMinors)))
			}
			resp.Details = details
		}
		return resp
	}
}

// notifyDecision sends the final-decision alerts. The blocked fallback paths
// produce two notifications: one naming the degraded branch and one with the
// standard final-decision format.
func (s *Server) notifyDecision(ctx context.Context, message string, d moderation.FusedDecision) {
	if s.notifier == nil {
		return
	}

	switch d.Reason {
	case moderation.ReasonRegexSensitive:
		s.notifier.Notify(ctx, "Zoophilia and Coprophilia Regex Detection - Final Decision", []notify.Field{
			{Name: "Content", Value: message},
			{Name: "Type", Value: "Sensitive Content (Extended)"},
			{Name: "Pattern", Value: "SENSITIVE_CONTENT_REGEX"},
		}, notify.SeverityWarning)
		return

	case moderation.ReasonHighConfidenceMinors:
		s.notifier.Notify(ctx, "Content Moderation - High Confidence Block", []notify.Field{
			{Name: "Content", Value: message},
			{Name: "Reason", Value: "High OpenAI confidence score"},
			{Name: "OpenAI Sexual/Minors Score", Value: formatScore(d.Probability)},
		}, notify.SeverityWarning)
		return
	}

	// Early exit on the clean path: no remote disagreement to report.
	if !d.SpecializedRan || !d.Blocked {
		return
	}

	if title := fallbackTitle(d.BlockReason); title != "" {
		s.notifier.Notify(ctx, title, s.evidenceFields(message, d), notify.SeverityWarning)
	}

	s.notifier.Notify(ctx, "Content Moderation - Final Decision", s.evidenceFields(message, d), notify.SeverityWarning)
}

// fallbackTitle names the degraded-availability branch for a blocked
// decision, or "" when both classifiers were reachable.
func fallbackTitle(blockReason string) string {
	switch blockReason {
	case moderation.BlockReasonGeneralUnavailable:
		return "Fall back due OpenAI Moderation not available"
	case moderation.BlockReasonCustomUnavailable:
		return "Fall back due Custom Moderation not available"
	case moderation.BlockReasonBothUnavailable:
		return "Fall back due both APIs not available, using regex"
	}
	return ""
}

// evidenceFields renders the combined-path evidence for a notification.
func (s *Server) evidenceFields(message string, d moderation.FusedDecision) []notify.Field {
	decision := "Passed"
	if d.Blocked {
		decision = "Blocked"
	}

	openAIScore := "n/a"
	if d.General.Available {
		openAIScore = formatScore(d.General.CategoryScore(moderation.CategorySexualMinors))
	}
	customScore, customLabel := "n/a", "n/a"
	if d.Specialized.Available {
		customScore = formatScore(d.Specialized.Score)
		customLabel = d.Specialized.Label
	}

	return []notify.Field{
		{Name: "Content", Value: message},
		{Name: "Decision", Value: decision},
		{Name: "Reason", Value: d.BlockReason},
		{Name: "Custom API Score", Value: customScore},
		{Name: "Custom API Label", Value: customLabel},
		{Name: "OpenAI Sexual/Minors Score", Value: openAIScore},
	}
}

// recordDecision fans the decision out to the registered sinks. Sink errors
// are logged and do not affect the response.
func (s *Server) recordDecision(ctx context.Context, message string, d moderation.FusedDecision) {
	if len(s.sinks) == 0 {
		return
	}

	rec := moderation.DecisionRecord{
		ID:       uuid.New().String(),
		Message:  message,
		Decision: d,
		At:       time.Now().UTC(),
	}

	for _, sink := range s.sinks {
		if err := sink.Record(ctx, rec); err != nil {
			log.Printf("[server] decision sink error id=%s: %v", rec.ID, err)
		}
	}
}

// clientIP extracts the caller's address for rate limiting.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func formatScore(f float64) string {
	return strconv.FormatFloat(f, 'g', -1, 64)
}

func floatPtr(f float64) *float64 { return &f }
func boolPtr(b bool) *bool        { return &b }
