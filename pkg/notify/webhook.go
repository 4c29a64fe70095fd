package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// WebhookConfig holds webhook configuration.
type WebhookConfig struct {
	URL     string            `yaml:"url" json:"url" env:"NEWSDESK_WEBHOOK_URL"`
	Headers map[string]string `yaml:"headers" json:"headers"`
}

const webhookEvent = "articles.published"

// WebhookNotifier posts publish announcements to a webhook URL.
type WebhookNotifier struct {
	config WebhookConfig
	http   *http.Client
	now    func() time.Time
}

// NewWebhookNotifier creates a new webhook notifier.
func NewWebhookNotifier(cfg WebhookConfig) *WebhookNotifier {
	return &WebhookNotifier{
		config: cfg,
		http:   &http.Client{Timeout: 10 * time.Second},
		now:    time.Now,
	}
}

func (w *WebhookNotifier) Channel() Channel { return ChannelWebhook }

// webhookPayload is the JSON body posted for every announcement.
type webhookPayload struct {
	Event    string     `json:"event"`
	SentAt   time.Time  `json:"sentAt"`
	Title    string     `json:"title"`
	Text     string     `json:"text"`
	URL      string     `json:"url,omitempty"`
	Count    int        `json:"count"`
	Articles []Headline `json:"articles"`
}

// Send posts the announcement, including its article batch, to the webhook URL.
func (w *WebhookNotifier) Send(ctx context.Context, msg Message) error {
	articles := msg.Items
	if articles == nil {
		articles = []Headline{}
	}
	body, err := json.Marshal(webhookPayload{
		Event:    webhookEvent,
		SentAt:   w.now().UTC(),
		Title:    msg.Title,
		Text:     msg.Body,
		URL:      msg.URL,
		Count:    len(articles),
		Articles: articles,
	})
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.config.URL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Newsdesk-Event", webhookEvent)
	for k, v := range w.config.Headers {
		req.Header.Set(k, v)
	}

	resp, err := w.http.Do(req)
	if err != nil {
		return fmt.Errorf("send webhook: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 200))
		return fmt.Errorf("webhook returned status %d: %s", resp.StatusCode, snippet)
	}
	return nil
}
