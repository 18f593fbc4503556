// Package notify delivers best-effort operational alerts to a chat-ops
// webhook. Delivery failures are logged and swallowed: nothing in this
// package may alter or delay a moderation verdict that has already been
// computed.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/whisper/moderation-api/internal/metrics"
)

// Severity selects the header emoji and attachment color of a notification.
type Severity string

const (
	SeverityInfo    Severity = "info"
	SeverityWarning Severity = "warning"
)

// Field is one key/value pair rendered in the notification body. Fields are
// a slice, not a map, so the rendered order is deterministic.
type Field struct {
	Name  string
	Value string
}

// Notifier dispatches an operational alert. Implementations are best-effort
// and must never panic or block the caller beyond their own transport call.
type Notifier interface {
	Notify(ctx context.Context, title string, fields []Field, severity Severity)
}

// Slack posts Block Kit formatted messages to an incoming-webhook URL.
type Slack struct {
	webhookURL string
	client     *http.Client
}

// NewSlack returns a Slack notifier for the given webhook URL.
func NewSlack(webhookURL string) *Slack {
	return &Slack{
		webhookURL: webhookURL,
		client:     &http.Client{Timeout: 10 * time.Second},
	}
}

// block is a minimal Block Kit element. Only the shapes used below are
// modeled.
type block struct {
	Type     string      `json:"type"`
	Text     *blockText  `json:"text,omitempty"`
	Fields   []blockText `json:"fields,omitempty"`
	Elements []blockText `json:"elements,omitempty"`
}

type blockText struct {
	Type  string `json:"type"`
	Text  string `json:"text"`
	Emoji bool   `json:"emoji,omitempty"`
}

type payload struct {
	Blocks []block `json:"blocks"`
	Color  string  `json:"color"`
}

// Notify posts a formatted message: severity-colored header, divider, field
// section, and a timestamp context line. Any failure is logged and dropped.
func (s *Slack) Notify(ctx context.Context, title string, fields []Field, severity Severity) {
	if s.webhookURL == "" {
		log.Printf("[notify] webhook URL not configured, skipping notification")
		return
	}

	emoji, color := "ℹ️", "#36a64f"
	if severity == SeverityWarning {
		emoji, color = "\U0001f6a8", "#ff0000"
	}

	sectionFields := make([]blockText, 0, len(fields))
	for _, f := range fields {
		sectionFields = append(sectionFields, blockText{
			Type: "mrkdwn",
			Text: fmt.Sprintf("*%s:*\n%s", f.Name, f.Value),
		})
	}

	p := payload{
		Color: color,
		Blocks: []block{
			{Type: "header", Text: &blockText{Type: "plain_text", Text: emoji + " " + title, Emoji: true}},
			{Type: "divider"},
			{Type: "section", Fields: sectionFields},
			{Type: "context", Elements: []blockText{{
				Type: "mrkdwn",
				Text: "*Timestamp:* " + time.Now().UTC().Format(time.RFC3339),
			}}},
		},
	}

	body, err := json.Marshal(p)
	if err != nil {
		log.Printf("[notify] marshal payload: %v", err)
		return
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.webhookURL, bytes.NewReader(body))
	if err != nil {
		log.Printf("[notify] build request: %v", err)
		return
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		log.Printf("[notify] send notification: %v", err)
		metrics.NotifyFailuresTotal.Inc()
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		log.Printf("[notify] webhook returned status %s", resp.Status)
		metrics.NotifyFailuresTotal.Inc()
	}
}
