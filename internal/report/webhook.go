package report

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/counselops/reconcile/internal/check"
)

// webhookMaxMessages caps how many finding messages go into one card.
const webhookMaxMessages = 10

const (
	colorFailed = "d9534f"
	colorPassed = "5cb85c"
)

// Webhook posts a MessageCard per failed check to a Teams-compatible
// incoming webhook.
type Webhook struct {
	URL        string
	HTTPClient *http.Client
}

type messageCard struct {
	Type       string        `json:"@type"`
	Context    string        `json:"@context"`
	ThemeColor string        `json:"themeColor"`
	Summary    string        `json:"summary"`
	Title      string        `json:"title"`
	Sections   []cardSection `json:"sections"`
}

type cardSection struct {
	Facts []cardFact `json:"facts,omitempty"`
	Text  string     `json:"text,omitempty"`
}

type cardFact struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

func (w *Webhook) client() *http.Client {
	if w.HTTPClient != nil {
		return w.HTTPClient
	}
	return http.DefaultClient
}

// Notify implements Sink.
func (w *Webhook) Notify(ctx context.Context, s Summary) error {
	card := buildCard(s)
	body, err := json.Marshal(card)
	if err != nil {
		return fmt.Errorf("encoding webhook card: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.URL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("building webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.client().Do(req)
	if err != nil {
		return fmt.Errorf("posting webhook card: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}
	return nil
}

func buildCard(s Summary) messageCard {
	themeColor := colorFailed
	if s.Passed {
		themeColor = colorPassed
	}

	facts := []cardFact{
		{Name: "Check", Value: s.Check},
		{Name: "Started", Value: s.Started.Format(time.RFC3339)},
		{Name: "Finished", Value: s.Finished.Format(time.RFC3339)},
	}
	if s.Correlation != "" {
		facts = append(facts, cardFact{Name: "Correlation Id", Value: s.Correlation})
	}

	messages := s.Messages
	if len(messages) > webhookMaxMessages {
		rest := len(messages) - webhookMaxMessages
		messages = append(messages[:webhookMaxMessages:webhookMaxMessages],
			fmt.Sprintf("... and %d more", rest))
	}

	return messageCard{
		Type:       "MessageCard",
		Context:    "http://schema.org/extensions",
		ThemeColor: themeColor,
		Summary:    s.Headline,
		Title:      s.Headline,
		Sections: []cardSection{
			{Facts: facts},
			{Text: strings.Join(messages, "<br>")},
		},
	}
}

// Index implements Sink; the webhook does not index findings.
func (w *Webhook) Index(ctx context.Context, s Summary, results []check.Result) error { return nil }

// OpenResultFile implements Sink; the webhook writes no files.
func (w *Webhook) OpenResultFile(checkName string) (RowWriter, error) { return nil, nil }
